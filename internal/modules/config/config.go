package config

import (
	"io"
	"os"
	"path/filepath"
	"strings"
	"time"
	_ "time/tzdata"

	"github.com/joho/godotenv"
	"github.com/pkg/errors"
	"github.com/spf13/viper"
	"gopkg.in/yaml.v2"
)

const (
	configDirENV      = "CONFIG_DIR"
	configFilePathENV = "CONFIG_FILE"
	tokenTelegramENV  = "TELEGRAM_TOKEN"
	// имена переменных, которые использовал старый сервис
	legacyTokenENV    = "TOKENTELEGRAM"
	chatTelegramENV   = "CHAT_IDTELEGRAM"
	cmcAPIKeyENV      = "COINMARKETCAP_API_KEY"
	databaseDSN       = "DATABASE_DSN"
	sheetNameENV      = "ID_TABLES"
	storageDriverENV  = "STORAGE_DRIVER"
	sqlitePathENV     = "SQLITE_PATH"
	httpAddrENV       = "HTTP_ADDR"
	logLevelENV       = "LOG_LEVEL"
	timeZoneENV       = "TIME_ZONE"
	tracingEnabledENV = "TRACING_ENABLED"
)

const (
	DriverMemory   = "memory"
	DriverSQLite   = "sqlite"
	DriverPostgres = "postgres"
)

// Config ...
type Config struct {
	Service struct {
		Name string `yaml:"name"`
		Addr string `yaml:"addr"`
	} `yaml:"service"`

	Log struct {
		Level       string `yaml:"level"`
		Development bool   `yaml:"development"`
	} `yaml:"log"`

	Telegram struct {
		Token             string        `yaml:"token"`
		ChatID            string        `yaml:"chat_id"`
		MaxAttempts       int           `yaml:"max_attempts"`
		BaseDelay         time.Duration `yaml:"base_delay"`
		DefaultRetryAfter time.Duration `yaml:"default_retry_after"`
	} `yaml:"telegram"`

	Webhook struct {
		ProcessTimeout time.Duration `yaml:"process_timeout"`
	} `yaml:"webhook"`

	Bybit struct {
		BaseURL  string        `yaml:"base_url"`
		Category string        `yaml:"category"`
		Quote    string        `yaml:"quote"`
		Timeout  time.Duration `yaml:"timeout"`
	} `yaml:"bybit"`

	CoinMarketCap struct {
		BaseURL    string        `yaml:"base_url"`
		CatalogURL string        `yaml:"catalog_url"`
		APIKey     string        `yaml:"api_key"`
		Retries    int           `yaml:"retries"`
		Delay      time.Duration `yaml:"delay"`
		Timeout    time.Duration `yaml:"timeout"`
		UseCatalog bool          `yaml:"use_catalog"`
	} `yaml:"coinmarketcap"`

	Storage struct {
		Driver     string `yaml:"driver"` // memory | sqlite | postgres
		Sheet      string `yaml:"sheet"`
		SQLitePath string `yaml:"sqlite_path"`
		DSN        string `yaml:"db_dsn"`
	} `yaml:"storage"`

	Scheduler struct {
		TimeZone string `yaml:"time_zone"`
		// как часто перепроверять часы во время длинного ожидания
		WakeCheck time.Duration `yaml:"wake_check"`
	} `yaml:"scheduler"`

	Housekeeping struct {
		StatusCron string `yaml:"status_cron"`
	} `yaml:"housekeeping"`

	Tracing struct {
		Enabled bool   `yaml:"enabled"`
		Host    string `yaml:"host"`
		Port    int    `yaml:"port"`
	} `yaml:"tracing"`
}

// Default: значения, поверх которых читается yaml.
func Default() Config {
	var c Config
	c.Service.Name = "signal_tracker"
	c.Service.Addr = ":8000"
	c.Log.Level = "info"

	c.Telegram.MaxAttempts = 3
	c.Telegram.BaseDelay = time.Second
	c.Telegram.DefaultRetryAfter = 5 * time.Second

	c.Webhook.ProcessTimeout = 2 * time.Minute

	c.Bybit.BaseURL = "https://api.bybit.com"
	c.Bybit.Category = "linear"
	c.Bybit.Quote = "USDT"
	c.Bybit.Timeout = 10 * time.Second

	c.CoinMarketCap.BaseURL = "https://pro-api.coinmarketcap.com/v2"
	c.CoinMarketCap.CatalogURL = "https://pro-api.coinmarketcap.com/v1"
	c.CoinMarketCap.Retries = 3
	c.CoinMarketCap.Delay = time.Second
	c.CoinMarketCap.Timeout = 10 * time.Second
	c.CoinMarketCap.UseCatalog = true

	c.Storage.Driver = DriverSQLite
	c.Storage.Sheet = "signals"
	c.Storage.SQLitePath = "data/signals.db"

	c.Scheduler.TimeZone = "Europe/Moscow"
	c.Scheduler.WakeCheck = time.Minute

	c.Housekeeping.StatusCron = "0 */15 * * * *"

	c.Tracing.Host = "localhost"
	c.Tracing.Port = 6831
	return c
}

func NewConfig() (*Config, error) {
	_ = godotenv.Load()

	env := viper.New()
	env.AutomaticEnv()

	dir := env.GetString(configDirENV)
	if dir == "" {
		dir = "configs"
	}
	name := env.GetString(configFilePathENV)
	if name == "" {
		name = "values_local.yaml"
	}
	return Load(filepath.Join(dir, name), env)
}

// Load читает yaml по пути path (отсутствие файла не ошибка) и применяет env.
func Load(path string, env *viper.Viper) (*Config, error) {
	config := Default()

	file, err := os.Open(path)
	switch {
	case err == nil:
		defer func() {
			_ = file.Close()
		}()
		if err := yaml.NewDecoder(file).Decode(&config); err != nil && err != io.EOF {
			return nil, errors.Wrapf(err, "decode config file %s", path)
		}
	case !os.IsNotExist(err):
		return nil, errors.Wrapf(err, "open config file %s", path)
	}

	if env == nil {
		env = viper.New()
		env.AutomaticEnv()
	}
	applyEnv(&config, env)

	if err := config.Validate(); err != nil {
		return nil, err
	}
	return &config, nil
}

func applyEnv(c *Config, env *viper.Viper) {
	setString(env, &c.Telegram.Token, legacyTokenENV)
	setString(env, &c.Telegram.Token, tokenTelegramENV)
	setString(env, &c.Telegram.ChatID, chatTelegramENV)
	setString(env, &c.CoinMarketCap.APIKey, cmcAPIKeyENV)
	setString(env, &c.Storage.DSN, databaseDSN)
	setString(env, &c.Storage.Sheet, sheetNameENV)
	setString(env, &c.Storage.Driver, storageDriverENV)
	setString(env, &c.Storage.SQLitePath, sqlitePathENV)
	setString(env, &c.Service.Addr, httpAddrENV)
	setString(env, &c.Log.Level, logLevelENV)
	setString(env, &c.Scheduler.TimeZone, timeZoneENV)
	if env.IsSet(tracingEnabledENV) {
		c.Tracing.Enabled = env.GetBool(tracingEnabledENV)
	}
	c.Storage.Driver = strings.ToLower(strings.TrimSpace(c.Storage.Driver))
}

func setString(env *viper.Viper, dst *string, key string) {
	if v := env.GetString(key); v != "" {
		*dst = v
	}
}

// Validate проверяет то, без чего сервис не поднимется.
func (c *Config) Validate() error {
	switch c.Storage.Driver {
	case DriverMemory:
	case DriverSQLite:
		if c.Storage.SQLitePath == "" {
			return errors.New("storage.sqlite_path is required for sqlite")
		}
	case DriverPostgres:
		if c.Storage.DSN == "" {
			return errors.New("storage.db_dsn is required for postgres")
		}
	default:
		return errors.Errorf("unknown storage.driver %q", c.Storage.Driver)
	}
	if c.Storage.Sheet == "" {
		return errors.New("storage.sheet is required")
	}
	if _, err := c.Location(); err != nil {
		return err
	}
	if c.Telegram.MaxAttempts <= 0 {
		return errors.New("telegram.max_attempts must be positive")
	}
	if c.CoinMarketCap.Retries <= 0 {
		return errors.New("coinmarketcap.retries must be positive")
	}
	if c.Scheduler.WakeCheck <= 0 {
		return errors.New("scheduler.wake_check must be positive")
	}
	return nil
}

// Location: часовой пояс, в котором пишется время сигнала.
func (c *Config) Location() (*time.Location, error) {
	loc, err := time.LoadLocation(c.Scheduler.TimeZone)
	if err != nil {
		return nil, errors.Wrapf(err, "scheduler.time_zone %q", c.Scheduler.TimeZone)
	}
	return loc, nil
}
