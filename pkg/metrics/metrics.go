package metrics

import (
	"net/http"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

var (
	SignalsTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{Name: "signals_total", Help: "Signals accepted by the webhook"},
		[]string{"action"},
	)
	IntervalsTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{Name: "resample_intervals_total", Help: "Resample intervals by outcome"},
		[]string{"interval", "result"},
	)
	NotificationsTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{Name: "notifications_total", Help: "Telegram notifications by outcome"},
		[]string{"result"},
	)
	LiveTasks = prometheus.NewGauge(
		prometheus.GaugeOpts{Name: "resample_live_tasks", Help: "Resample tasks currently scheduled"},
	)
)

// результаты интервала
const (
	ResultSampled     = "sampled"
	ResultFetchFailed = "fetch_failed"
	ResultBadEntry    = "invalid_entry"
	ResultStoreFailed = "store_failed"
)

func init() {
	prometheus.MustRegister(SignalsTotal, IntervalsTotal, NotificationsTotal, LiveTasks)
}

func Handler() http.Handler {
	return promhttp.Handler()
}
