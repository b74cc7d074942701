package gate

import (
	"github.com/programador11r-tec/zkt-sub000/internal/gate/repository"
	"go.uber.org/fx"
)

var Module = fx.Module("gate.service",
	fx.Provide(repository.Provide),
	fx.Provide(NewClient),
	fx.Provide(NewService),
)
