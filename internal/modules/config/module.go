package config

import (
	"time"

	"go.uber.org/fx"
)

// Module отдаёт уже прочитанный конфиг и часовой пояс как fx-провайдеры.
// Конфиг читается до fx: из него собирается логгер.
func Module(cfg *Config) fx.Option {
	return fx.Module("config",
		fx.Supply(cfg),
		fx.Provide(
			func(cfg *Config) (*time.Location, error) {
				return cfg.Location()
			},
		),
	)
}
