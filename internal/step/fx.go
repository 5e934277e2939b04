package step

import (
	"github.com/smallbiznis/tracechain/internal/step/repository"
	"go.uber.org/fx"
)

var Module = fx.Module("step.repository",
	fx.Provide(repository.Provide),
)
