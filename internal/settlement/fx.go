package settlement

import (
	"github.com/programador11r-tec/zkt-sub000/internal/settlement/repository"
	"github.com/programador11r-tec/zkt-sub000/internal/settlement/service"
	"go.uber.org/fx"
)

var Module = fx.Module("settlement.service",
	fx.Provide(repository.Provide),
	fx.Provide(service.NewService),
)
