// Package metrics declares the Prometheus collectors exported on /metrics.
package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

// Label values.
const (
	CacheHit  = "hit"
	CacheMiss = "miss"
	ResultOK  = "ok"
	ResultErr = "error"
)

var (
	// PlansTotal counts synthesized attack plans by plan_source.
	PlansTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "redteam_plans_total",
		Help: "Attack plans produced, by plan source",
	}, []string{"source"})

	// CacheLookups counts simulation cache lookups by result.
	CacheLookups = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "redteam_cache_lookups_total",
		Help: "Simulation cache lookups by result",
	}, []string{"result"})

	// StoreWrites counts best-effort persistent store writes.
	StoreWrites = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "redteam_store_writes_total",
		Help: "Persistent store writes by operation and result",
	}, []string{"op", "result"})

	// GenerationSeconds tracks generation endpoint latency, failures included.
	GenerationSeconds = promauto.NewHistogram(prometheus.HistogramOpts{
		Name:    "redteam_generation_seconds",
		Help:    "Generation endpoint call duration in seconds",
		Buckets: prometheus.ExponentialBuckets(0.25, 2, 9), // 250ms to ~64s
	})
)

// Result maps a success flag onto the result label.
func Result(ok bool) string {
	if ok {
		return ResultOK
	}
	return ResultErr
}
