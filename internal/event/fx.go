package event

import (
	"github.com/smallbiznis/tollgate/internal/event/service"
	"go.uber.org/fx"
)

var Module = fx.Module("event",
	fx.Provide(service.NewService),
)
