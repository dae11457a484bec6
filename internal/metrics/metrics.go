package metrics

import (
	"net/http"
	"strconv"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// Chat relay outcomes.
const (
	OutcomeOK            = "ok"
	OutcomeFallback      = "fallback"
	OutcomeInvalid       = "invalid"
	OutcomeMisconfigured = "misconfigured"
	OutcomeLookupError   = "lookup_error"
)

var (
	RequestsTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: "helix",
			Subsystem: "http",
			Name:      "requests_total",
			Help:      "Total number of HTTP requests",
		},
		[]string{"method", "route", "status"},
	)

	RequestDuration = promauto.NewHistogramVec(
		prometheus.HistogramOpts{
			Namespace: "helix",
			Subsystem: "http",
			Name:      "request_duration_seconds",
			Help:      "HTTP request duration in seconds",
			Buckets:   []float64{0.05, 0.1, 0.5, 1, 2, 5, 10, 30},
		},
		[]string{"method", "route"},
	)

	ChatOutcomesTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: "helix",
			Subsystem: "chat",
			Name:      "outcomes_total",
			Help:      "Chat relay requests by outcome",
		},
		[]string{"outcome"},
	)

	// Completion provider latency
	ProviderDuration = promauto.NewHistogramVec(
		prometheus.HistogramOpts{
			Namespace: "helix",
			Subsystem: "completion",
			Name:      "duration_seconds",
			Help:      "Completion provider call duration in seconds",
			Buckets:   []float64{0.25, 0.5, 1, 2, 5, 10, 20, 60},
		},
		[]string{"provider", "status"},
	)
)

// Handler returns the Prometheus metrics handler
func Handler() http.Handler {
	return promhttp.Handler()
}

func RecordRequest(method, route string, status int, elapsed time.Duration) {
	RequestsTotal.WithLabelValues(method, route, strconv.Itoa(status)).Inc()
	RequestDuration.WithLabelValues(method, route).Observe(elapsed.Seconds())
}

func RecordChatOutcome(outcome string) {
	ChatOutcomesTotal.WithLabelValues(outcome).Inc()
}

// RecordProviderCall records one completion call; status is "ok" or "error".
func RecordProviderCall(provider, status string, elapsed time.Duration) {
	ProviderDuration.WithLabelValues(provider, status).Observe(elapsed.Seconds())
}
