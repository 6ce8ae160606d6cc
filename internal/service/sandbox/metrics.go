package sandbox

import (
	"sync"
	"time"

	"github.com/prometheus/client_golang/prometheus"

	"wasmgate/internal/domain"
)

var (
	metricsOnce sync.Once

	executionTotal    *prometheus.CounterVec
	executionDuration prometheus.Histogram
)

func initMetrics() {
	metricsOnce.Do(func() {
		executionTotal = prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: "wasmgate",
			Subsystem: "sandbox",
			Name:      "executions_total",
			Help:      "Count of sandbox executions by terminal status",
		}, []string{"status"})

		executionDuration = prometheus.NewHistogram(prometheus.HistogramOpts{
			Namespace: "wasmgate",
			Subsystem: "sandbox",
			Name:      "execution_duration_seconds",
			Help:      "Wall-clock duration of sandbox executions",
			Buckets:   []float64{0.01, 0.05, 0.1, 0.25, 0.5, 1, 2, 5, 10, 30},
		})

		for _, collector := range []prometheus.Collector{executionTotal, executionDuration} {
			if err := prometheus.Register(collector); err != nil {
				if are, ok := err.(prometheus.AlreadyRegisteredError); ok {
					switch v := are.ExistingCollector.(type) {
					case *prometheus.CounterVec:
						executionTotal = v
					case prometheus.Histogram:
						executionDuration = v
					}
				}
			}
		}
	})
}

// ObserveOutcome records an execution outcome for monitoring.
func ObserveOutcome(status domain.OutcomeStatus, duration time.Duration) {
	initMetrics()
	executionTotal.With(prometheus.Labels{"status": string(status)}).Inc()
	executionDuration.Observe(duration.Seconds())
}
