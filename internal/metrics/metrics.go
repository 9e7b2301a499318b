package metrics

import (
	"net/http"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

var (
	// Registry holds the bot's Prometheus collectors.
	Registry = prometheus.NewRegistry()

	startOutcomes = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: "chypto_bot",
			Subsystem: "ledger",
			Name:      "start_outcomes_total",
			Help:      "Total number of processed /start commands by outcome.",
		},
		[]string{"outcome"},
	)

	startDuration = prometheus.NewHistogramVec(
		prometheus.HistogramOpts{
			Namespace: "chypto_bot",
			Subsystem: "ledger",
			Name:      "start_duration_seconds",
			Help:      "Duration of /start processing including store round trips.",
			Buckets:   prometheus.ExponentialBuckets(0.005, 2, 10), // 5ms to ~5s
		},
		[]string{"outcome"},
	)

	storeErrors = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: "chypto_bot",
			Subsystem: "ledger",
			Name:      "store_errors_total",
			Help:      "Total number of failed account store operations.",
		},
		[]string{"op"},
	)

	updates = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: "chypto_bot",
			Subsystem: "telegram",
			Name:      "updates_total",
			Help:      "Total number of Telegram updates received by result.",
		},
		[]string{"result"},
	)

	notifications = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: "chypto_bot",
			Subsystem: "telegram",
			Name:      "notifications_total",
			Help:      "Total number of referrer notifications by delivery status.",
		},
		[]string{"status"},
	)
)

func init() {
	Registry.MustRegister(
		startOutcomes,
		startDuration,
		storeErrors,
		updates,
		notifications,
		collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}),
		collectors.NewGoCollector(),
	)
}

// Handler returns an HTTP handler exposing the registered Prometheus metrics.
func Handler() http.Handler {
	return promhttp.HandlerFor(Registry, promhttp.HandlerOpts{})
}

func ObserveStart(outcome string, d time.Duration) {
	startOutcomes.WithLabelValues(outcome).Inc()
	startDuration.WithLabelValues(outcome).Observe(d.Seconds())
}

func StoreError(op string) {
	storeErrors.WithLabelValues(op).Inc()
}

func Update(result string) {
	updates.WithLabelValues(result).Inc()
}

func Notification(status string) {
	notifications.WithLabelValues(status).Inc()
}
