package housekeeping

import (
	"context"
	"time"

	"signal_tracker/internal/modules/config"
	feed "signal_tracker/internal/modules/feed/service"
	"signal_tracker/internal/modules/housekeeping/service"
	"signal_tracker/internal/runner"

	"go.uber.org/fx"
	"go.uber.org/zap"
)

func Module() fx.Option {
	return fx.Module("housekeeping",
		fx.Provide(
			func(cfg *config.Config, loc *time.Location, s *runner.Scheduler, hub *feed.Hub, log *zap.Logger) (*service.Status, error) {
				st := service.NewStatus(s, hub, loc, log)
				if err := st.Register(cfg.Housekeeping.StatusCron); err != nil {
					return nil, err
				}
				return st, nil
			},
		),
		fx.Invoke(func(lc fx.Lifecycle, st *service.Status) {
			lc.Append(fx.Hook{
				OnStart: func(_ context.Context) error {
					st.Start()
					return nil
				},
				OnStop: func(_ context.Context) error {
					st.Stop()
					return nil
				},
			})
		}),
	)
}
