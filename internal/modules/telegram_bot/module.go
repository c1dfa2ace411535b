package telegram

import (
	"signal_tracker/internal/modules/config"
	"signal_tracker/internal/modules/telegram_bot/service"

	"go.uber.org/fx"
	"go.uber.org/zap"
)

func Module() fx.Option {
	return fx.Module("telegram",
		fx.Provide(
			func(cfg *config.Config, log *zap.Logger) *service.Telegram {
				return service.NewTelegram(service.Config{
					Token:             cfg.Telegram.Token,
					MaxAttempts:       cfg.Telegram.MaxAttempts,
					BaseDelay:         cfg.Telegram.BaseDelay,
					DefaultRetryAfter: cfg.Telegram.DefaultRetryAfter,
				}, log)
			},
		),
	)
}
