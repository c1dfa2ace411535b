package feed

import (
	"context"

	"signal_tracker/internal/modules/feed/service"

	"github.com/gin-gonic/gin"
	"go.uber.org/fx"
)

func Module() fx.Option {
	return fx.Module("feed",
		fx.Provide(
			service.NewHub,
		),
		fx.Invoke(func(lc fx.Lifecycle, engine *gin.Engine, hub *service.Hub) {
			engine.GET("/ws", hub.Handle)

			ctx, cancel := context.WithCancel(context.Background())
			lc.Append(fx.Hook{
				OnStart: func(_ context.Context) error {
					go hub.Run(ctx)
					return nil
				},
				OnStop: func(_ context.Context) error {
					cancel()
					return nil
				},
			})
		}),
	)
}
