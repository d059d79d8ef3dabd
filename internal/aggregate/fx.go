package aggregate

import (
	"github.com/smallbiznis/tollgate/internal/aggregate/service"
	"go.uber.org/fx"
)

var Module = fx.Module("aggregate",
	fx.Provide(service.NewService),
)
