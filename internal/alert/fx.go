package alert

import (
	"github.com/smallbiznis/tollgate/internal/alert/service"
	"go.uber.org/fx"
)

var Module = fx.Module("alert",
	fx.Provide(service.NewService),
)
