package admission

import (
	"sync"

	"github.com/prometheus/client_golang/prometheus"
)

var (
	metricsOnce sync.Once

	denialTotal *prometheus.CounterVec
	fallbackHit prometheus.Counter
)

func initMetrics() {
	metricsOnce.Do(func() {
		denialTotal = prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: "wasmgate",
			Subsystem: "admission",
			Name:      "denials_total",
			Help:      "Requests denied by the admission controller",
		}, []string{"window"})

		fallbackHit = prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: "wasmgate",
			Subsystem: "admission",
			Name:      "fallback_total",
			Help:      "Counter operations served by the local fallback backend",
		})

		for _, collector := range []prometheus.Collector{denialTotal, fallbackHit} {
			if err := prometheus.Register(collector); err != nil {
				if are, ok := err.(prometheus.AlreadyRegisteredError); ok {
					switch v := are.ExistingCollector.(type) {
					case *prometheus.CounterVec:
						denialTotal = v
					case prometheus.Counter:
						fallbackHit = v
					}
				}
			}
		}
	})
}

func observeDenial(kind WindowKind) {
	initMetrics()
	denialTotal.With(prometheus.Labels{"window": string(kind)}).Inc()
}

func observeFallback() {
	initMetrics()
	fallbackHit.Inc()
}
