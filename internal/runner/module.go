package runner

import (
	"context"
	"time"

	bybit "signal_tracker/internal/modules/bybit/service"
	"signal_tracker/internal/modules/config"
	feed "signal_tracker/internal/modules/feed/service"
	storage "signal_tracker/internal/modules/storage/service"

	"go.uber.org/fx"
	"go.uber.org/zap"
)

func Module() fx.Option {
	return fx.Module("runner",
		fx.Provide(
			func(
				cfg *config.Config,
				loc *time.Location,
				prices *bybit.Client,
				sheet *storage.Sheet,
				hub *feed.Hub,
				log *zap.Logger,
			) *Scheduler {
				return NewScheduler(prices, sheet, hub, log, Options{
					Location:  loc,
					WakeCheck: cfg.Scheduler.WakeCheck,
				})
			},
		),
		fx.Invoke(func(lc fx.Lifecycle, s *Scheduler) {
			lc.Append(fx.Hook{
				OnStop: func(_ context.Context) error {
					// задачи не переживают рестарт, оставшиеся интервалы теряются
					s.Stop()
					return nil
				},
			})
		}),
	)
}
