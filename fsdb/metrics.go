package fsdb

import (
	"sync"

	"github.com/prometheus/client_golang/prometheus"
)

var metrics = struct {
	tierWrites *prometheus.CounterVec
	indexOps   *prometheus.CounterVec
	collisions *prometheus.CounterVec
}{
	tierWrites: prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: "keydir",
			Name:      "tier_writes",
			Help:      "Records written per storage tier since startup",
		},
		[]string{"tier"},
	),
	indexOps: prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: "keydir",
			Name:      "index_operations",
			Help:      "Index entries linked and unlinked per family since startup",
		},
		[]string{"kind", "op"},
	),
	collisions: prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: "keydir",
			Name:      "index_collisions",
			Help:      "Index collisions detected per family since startup",
		},
		[]string{"kind"},
	),
}

var metricsRegister sync.Once

func registerMetrics() {
	metricsRegister.Do(func() {
		prometheus.MustRegister(metrics.tierWrites)
		prometheus.MustRegister(metrics.indexOps)
		prometheus.MustRegister(metrics.collisions)
	})
}
