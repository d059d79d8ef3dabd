package wallet

import (
	"github.com/smallbiznis/tollgate/internal/wallet/service"
	"go.uber.org/fx"
)

var Module = fx.Module("wallet",
	fx.Provide(service.NewService),
)
