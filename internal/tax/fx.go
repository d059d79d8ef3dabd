package tax

import (
	"github.com/smallbiznis/tollgate/internal/tax/service"
	"go.uber.org/fx"
)

var Module = fx.Module("tax",
	fx.Provide(service.NewService),
)
