package permission

import "go.uber.org/fx"

var Module = fx.Module("permission",
	fx.Provide(NewTable),
	fx.Provide(NewEngine),
)
