package fel

import "go.uber.org/fx"

var Module = fx.Module("fel.client",
	fx.Provide(NewClient),
)
