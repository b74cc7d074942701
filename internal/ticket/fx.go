package ticket

import (
	"github.com/programador11r-tec/zkt-sub000/internal/ticket/repository"
	"go.uber.org/fx"
)

var Module = fx.Module("ticket",
	fx.Provide(repository.Provide),
	fx.Provide(repository.ProvidePayments),
)
