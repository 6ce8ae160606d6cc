package usage

import (
	"sync"

	"github.com/prometheus/client_golang/prometheus"
)

var (
	metricsOnce sync.Once

	droppedTotal prometheus.Counter
	flushedTotal prometheus.Counter
)

func initMetrics() {
	metricsOnce.Do(func() {
		droppedTotal = prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: "wasmgate",
			Subsystem: "usage",
			Name:      "records_dropped_total",
			Help:      "Usage records dropped due to queue pressure or store failure",
		})
		flushedTotal = prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: "wasmgate",
			Subsystem: "usage",
			Name:      "records_flushed_total",
			Help:      "Usage records durably written",
		})

		for _, collector := range []prometheus.Collector{droppedTotal, flushedTotal} {
			if err := prometheus.Register(collector); err != nil {
				if are, ok := err.(prometheus.AlreadyRegisteredError); ok {
					if c, ok := are.ExistingCollector.(prometheus.Counter); ok {
						if collector == droppedTotal {
							droppedTotal = c
						} else {
							flushedTotal = c
						}
					}
				}
			}
		}
	})
}

func observeDropped(n int) {
	initMetrics()
	droppedTotal.Add(float64(n))
}

func observeFlushed(n int) {
	initMetrics()
	flushedTotal.Add(float64(n))
}
