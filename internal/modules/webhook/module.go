package webhook

import (
	"context"
	"time"

	bybit "signal_tracker/internal/modules/bybit/service"
	cmc "signal_tracker/internal/modules/coinmarketcap/service"
	"signal_tracker/internal/modules/config"
	feed "signal_tracker/internal/modules/feed/service"
	health "signal_tracker/internal/modules/health/service"
	storage "signal_tracker/internal/modules/storage/service"
	telegram "signal_tracker/internal/modules/telegram_bot/service"
	"signal_tracker/internal/modules/webhook/service"
	"signal_tracker/internal/runner"

	"github.com/gin-gonic/gin"
	"go.uber.org/fx"
	"go.uber.org/zap"
)

func Module() fx.Option {
	return fx.Module("webhook",
		fx.Provide(
			func(
				cfg *config.Config,
				loc *time.Location,
				prices *bybit.Client,
				market *cmc.Client,
				notifier *telegram.Telegram,
				sheet *storage.Sheet,
				scheduler *runner.Scheduler,
				hub *feed.Hub,
				state *health.State,
				log *zap.Logger,
			) *service.Processor {
				return service.NewProcessor(service.Deps{
					Prices:    prices,
					Market:    market,
					Notifier:  notifier,
					Store:     sheet,
					Scheduler: scheduler,
					Publisher: hub,
					Tracker:   state,
				}, service.Config{
					ChatID:         cfg.Telegram.ChatID,
					Location:       loc,
					ProcessTimeout: cfg.Webhook.ProcessTimeout,
				}, log)
			},
		),
		fx.Invoke(func(lc fx.Lifecycle, engine *gin.Engine, p *service.Processor) {
			engine.POST("/webhookbybit", p.Handle)
			lc.Append(fx.Hook{
				OnStop: func(_ context.Context) error {
					p.Close()
					return nil
				},
			})
		}),
	)
}
