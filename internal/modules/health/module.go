package health

import (
	"context"
	"net/http"

	feed "signal_tracker/internal/modules/feed/service"
	"signal_tracker/internal/modules/health/service"
	"signal_tracker/internal/runner"
	"signal_tracker/pkg/metrics"

	"github.com/gin-gonic/gin"
	"go.uber.org/fx"
)

// TaskCounter: число живых задач пересэмплирования.
type TaskCounter interface {
	Len() int
}

// FeedStats: подписчики живой ленты.
type FeedStats interface {
	Clients() int
	Dropped() int64
}

func RegisterRoutes(engine *gin.Engine, state *service.State, tasks TaskCounter, stats FeedStats) {
	engine.GET("/livez", func(c *gin.Context) {
		// liveness: процесс жив
		c.String(http.StatusOK, "ok")
	})

	engine.GET("/readyz", func(c *gin.Context) {
		// readiness: хранилище открыто, шапка на месте, HTTP слушает
		if !state.Ready() {
			c.String(http.StatusServiceUnavailable, "not ready")
			return
		}
		c.String(http.StatusOK, "ready")
	})

	engine.GET("/healthz", func(c *gin.Context) {
		// полезный JSON для отладки
		c.JSON(http.StatusOK, gin.H{
			"ready":     state.Ready(),
			"uptimeSec": int64(state.Uptime().Seconds()),
			"liveTasks": tasks.Len(),
			"signals":   state.Signals(),
			"lastSignalUnix": func() int64 {
				t := state.LastSignal()
				if t.IsZero() {
					return 0
				}
				return t.Unix()
			}(),
			"feedClients": stats.Clients(),
			"feedDropped": stats.Dropped(),
		})
	})

	engine.GET("/metrics", gin.WrapH(metrics.Handler()))
}

// MarkReady: ready после старта всех модулей, not ready в начале остановки.
func MarkReady(lc fx.Lifecycle, state *service.State) {
	lc.Append(fx.Hook{
		OnStart: func(ctx context.Context) error {
			state.SetReady(true)
			return nil
		},
		OnStop: func(ctx context.Context) error {
			state.SetReady(false)
			return nil
		},
	})
}

func Module() fx.Option {
	return fx.Module("health",
		fx.Provide(
			service.NewState,
			func(s *runner.Scheduler) TaskCounter { return s },
			func(h *feed.Hub) FeedStats { return h },
		),
		fx.Invoke(RegisterRoutes),
	)
}
