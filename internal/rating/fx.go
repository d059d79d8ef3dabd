package rating

import (
	"github.com/smallbiznis/tollgate/internal/rating/service"
	"go.uber.org/fx"
)

var Module = fx.Module("rating",
	fx.Provide(service.NewService),
)
