package account

import (
	"github.com/smallbiznis/tollgate/internal/account/service"
	"go.uber.org/fx"
)

var Module = fx.Module("account",
	fx.Provide(service.NewService),
)
