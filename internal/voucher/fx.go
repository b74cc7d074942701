package voucher

import (
	"github.com/programador11r-tec/zkt-sub000/internal/voucher/repository"
	"github.com/programador11r-tec/zkt-sub000/internal/voucher/service"
	"go.uber.org/fx"
)

var Module = fx.Module("voucher.service",
	fx.Provide(repository.Provide),
	fx.Provide(service.NewService),
)
