package pagination

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

// Prometheus metrics for page traversal.
var (
	pagesFetchedTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "pagination_pages_fetched_total",
		Help: "Total pages fetched by operation and outcome",
	}, []string{"operation", "outcome"})

	pageFetchDuration = promauto.NewHistogramVec(prometheus.HistogramOpts{
		Name:    "pagination_page_fetch_duration_seconds",
		Help:    "Duration of a single page fetch by operation",
		Buckets: []float64{0.05, 0.1, 0.25, 0.5, 1, 2, 5, 10},
	}, []string{"operation"})

	// pageWaitDuration measures how long the consumer blocked on a page.
	// With an effective prefetch most observations sit in the lowest bucket.
	pageWaitDuration = promauto.NewHistogramVec(prometheus.HistogramOpts{
		Name:    "pagination_page_wait_seconds",
		Help:    "Time the consumer waited for a page to materialize",
		Buckets: []float64{0.001, 0.01, 0.05, 0.1, 0.5, 1, 5},
	}, []string{"operation"})

	prefetchStartedTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "pagination_prefetch_started_total",
		Help: "Total next-page prefetches started",
	}, []string{"operation"})

	prefetchAbandonedTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "pagination_prefetch_abandoned_total",
		Help: "Total prefetched pages never consumed because the traversal stopped early",
	}, []string{"operation"})

	prefetchInFlight = promauto.NewGaugeVec(prometheus.GaugeOpts{
		Name: "pagination_prefetch_in_flight",
		Help: "Prefetch slots currently registered",
	}, []string{"operation"})
)
