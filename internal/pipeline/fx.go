package pipeline

import (
	"context"

	"go.uber.org/fx"
)

var Module = fx.Module("pipeline",
	fx.Provide(New),
	fx.Invoke(Run),
)

func Run(lc fx.Lifecycle, p *Pipeline) {
	lc.Append(fx.Hook{
		OnStart: func(context.Context) error {
			p.Start()
			return nil
		},
		OnStop: func(context.Context) error {
			p.Stop()
			return nil
		},
	})
}
