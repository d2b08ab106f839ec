package cache

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	// CacheHits tracks cache hits by layer (memory, redis)
	CacheHits = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "aws_cache_hits_total",
			Help: "Total number of AWS response cache hits",
		},
		[]string{"layer"},
	)

	// CacheMisses tracks cache misses
	CacheMisses = promauto.NewCounter(
		prometheus.CounterOpts{
			Name: "aws_cache_misses_total",
			Help: "Total number of AWS response cache misses",
		},
	)

	// CacheEntries tracks the number of entries held in process
	CacheEntries = promauto.NewGaugeVec(
		prometheus.GaugeOpts{
			Name: "aws_cache_entries",
			Help: "Current number of cached AWS responses by layer",
		},
		[]string{"layer"}, // "memory"
	)

	// CacheErrors tracks cache operation errors
	CacheErrors = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "aws_cache_errors_total",
			Help: "Total number of cache operation errors",
		},
		[]string{"operation"}, // "get", "set", "delete"
	)
)
