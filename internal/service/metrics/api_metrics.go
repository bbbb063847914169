package metrics

import (
	"sync"
	"time"

	"github.com/prometheus/client_golang/prometheus"
)

var (
	once sync.Once

	APILatency = prometheus.NewHistogramVec(
		prometheus.HistogramOpts{
			Namespace: "tokenpulse",
			Subsystem: "api",
			Name:      "latency_seconds",
			Help:      "Latency of monitor API endpoints",
			Buckets:   prometheus.DefBuckets,
		},
		[]string{"endpoint"},
	)

	APIErrors = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: "tokenpulse",
			Subsystem: "api",
			Name:      "errors_total",
			Help:      "Errors by monitor API endpoint",
		},
		[]string{"endpoint", "code"},
	)
)

func Register() {
	once.Do(func() {
		prometheus.MustRegister(APILatency, APIErrors)
	})
}

// Observe records the latency of endpoint since start.
func Observe(endpoint string, start time.Time) {
	APILatency.WithLabelValues(endpoint).Observe(time.Since(start).Seconds())
}

// Failed counts an error answer of endpoint.
func Failed(endpoint, code string) {
	APIErrors.WithLabelValues(endpoint, code).Inc()
}
