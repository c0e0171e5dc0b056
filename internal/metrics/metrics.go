package metrics

import (
	"sync"
	"time"

	"github.com/prometheus/client_golang/prometheus"
)

var (
	once sync.Once

	apiRequests = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: "artisanlink",
			Name:      "api_requests_total",
			Help:      "API requests by operation and outcome.",
		},
		[]string{"operation", "outcome"},
	)

	apiDuration = prometheus.NewHistogramVec(
		prometheus.HistogramOpts{
			Namespace: "artisanlink",
			Name:      "api_request_duration_seconds",
			Help:      "API request latency by operation.",
			Buckets:   prometheus.DefBuckets,
		},
		[]string{"operation"},
	)

	realtimeEvents = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: "artisanlink",
			Name:      "realtime_events_total",
			Help:      "Realtime events received by name.",
		},
		[]string{"event"},
	)

	realtimeReconnects = prometheus.NewCounter(
		prometheus.CounterOpts{
			Namespace: "artisanlink",
			Name:      "realtime_reconnects_total",
			Help:      "Realtime reconnect attempts.",
		},
	)
)

// Register registers Prometheus metrics. Safe to call multiple times.
func Register() {
	once.Do(func() {
		prometheus.MustRegister(apiRequests, apiDuration, realtimeEvents, realtimeReconnects)
	})
}

// ObserveAPI records one finished request.
func ObserveAPI(operation, outcome string, elapsed time.Duration) {
	apiRequests.WithLabelValues(operation, outcome).Inc()
	apiDuration.WithLabelValues(operation).Observe(elapsed.Seconds())
}

// IncRealtimeEvent increments the counter for an event label.
func IncRealtimeEvent(event string) {
	realtimeEvents.WithLabelValues(event).Inc()
}

func IncReconnect() {
	realtimeReconnects.Inc()
}
