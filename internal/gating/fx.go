package gating

import (
	"github.com/smallbiznis/tollgate/internal/gating/service"
	"go.uber.org/fx"
)

var Module = fx.Module("gating",
	fx.Provide(service.NewService),
)
