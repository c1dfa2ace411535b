package httpserver

import (
	"context"
	"net"
	"net/http"
	"time"

	"signal_tracker/internal/modules/config"

	"github.com/gin-gonic/gin"
	"go.uber.org/fx"
	"go.uber.org/zap"
)

type Config struct {
	Addr string // например ":8000"
}

func NewConfig(cfg *config.Config) Config {
	return Config{Addr: cfg.Service.Addr}
}

// NewEngine: общий gin для вебхука, health и /ws.
func NewEngine(cfg *config.Config, log *zap.Logger) *gin.Engine {
	if !cfg.Log.Development {
		gin.SetMode(gin.ReleaseMode)
	}
	engine := gin.New()
	engine.Use(gin.Recovery(), accessLog(log.Named("http")))
	return engine
}

func accessLog(log *zap.Logger) gin.HandlerFunc {
	return func(c *gin.Context) {
		start := time.Now()
		c.Next()
		// пробы и метрики дёргаются часто
		switch c.FullPath() {
		case "/livez", "/readyz", "/metrics":
			return
		}
		log.Info("request",
			zap.String("method", c.Request.Method),
			zap.String("path", c.Request.URL.Path),
			zap.Int("status", c.Writer.Status()),
			zap.Duration("latency", time.Since(start)),
			zap.String("client_ip", c.ClientIP()),
		)
	}
}

func RunHTTP(lc fx.Lifecycle, cfg Config, engine *gin.Engine, log *zap.Logger) {
	srv := &http.Server{
		Addr:              cfg.Addr,
		Handler:           engine,
		ReadHeaderTimeout: 5 * time.Second,
	}

	lc.Append(fx.Hook{
		OnStart: func(ctx context.Context) error {
			ln, err := net.Listen("tcp", cfg.Addr)
			if err != nil {
				return err
			}
			log.Info("http listening", zap.String("addr", ln.Addr().String()))
			go func() {
				if err := srv.Serve(ln); err != nil && err != http.ErrServerClosed {
					log.Error("http serve", zap.Error(err))
				}
			}()
			return nil
		},
		OnStop: func(ctx context.Context) error {
			return srv.Shutdown(ctx)
		},
	})
}

func Module() fx.Option {
	return fx.Module("httpserver",
		fx.Provide(
			NewConfig,
			NewEngine,
		),
		fx.Invoke(RunHTTP),
	)
}
