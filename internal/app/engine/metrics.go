package engine

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

// Metrics tracks engine cache behavior.
type Metrics struct {
	loads        *prometheus.CounterVec
	loadFailures *prometheus.CounterVec
	cacheHits    prometheus.Counter
}

var defaultMetrics = newMetrics(prometheus.DefaultRegisterer)

func newMetrics(reg prometheus.Registerer) *Metrics {
	factory := promauto.With(reg)
	return &Metrics{
		loads: factory.NewCounterVec(prometheus.CounterOpts{
			Name: "speechpipe_engine_loads_total",
			Help: "Engine loads started, per model.",
		}, []string{"model"}),
		loadFailures: factory.NewCounterVec(prometheus.CounterOpts{
			Name: "speechpipe_engine_load_failures_total",
			Help: "Engine loads that failed, per model.",
		}, []string{"model"}),
		cacheHits: factory.NewCounter(prometheus.CounterOpts{
			Name: "speechpipe_engine_cache_hits_total",
			Help: "Engine requests served by an existing or in-flight load.",
		}),
	}
}
