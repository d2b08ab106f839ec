package pagination

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/rs/zerolog/log"
)

// Config holds batch collection configuration
type Config struct {
	// MaxConcurrency is the maximum number of traversals running in parallel
	// Recommendation: 5 for Athena (GetQueryResults is throttled per account)
	MaxConcurrency int
	// Timeout per traversal (all pages of one paginator)
	Timeout time.Duration
	// Buffer size for channels (default: number of paginators)
	BufferSize int
}

// DefaultConfig returns safe default configuration
func DefaultConfig() Config {
	return Config{
		MaxConcurrency: 5,
		Timeout:        2 * time.Minute,
	}
}

// BatchResult represents the outcome of draining a single paginator
type BatchResult[T any] struct {
	Index int
	Items []T
	Error error
}

// CollectAll drains every paginator on a bounded worker pool.
// Returns map of paginator index -> items for traversals that completed.
// When some traversals fail the successful ones are still returned together
// with an error naming how many failed.
func CollectAll[In Request[In], Out Response[T], T any](ctx context.Context, config Config, paginators []*Paginator[In, Out, T]) (map[int][]T, error) {
	start := time.Now()

	if config.MaxConcurrency <= 0 {
		config.MaxConcurrency = 5
	}
	if config.Timeout <= 0 {
		config.Timeout = 2 * time.Minute
	}
	if config.BufferSize <= 0 {
		config.BufferSize = len(paginators)
	}

	results := make(map[int][]T, len(paginators))
	if len(paginators) == 0 {
		return results, nil
	}

	log.Info().
		Int("paginators", len(paginators)).
		Int("workers", config.MaxConcurrency).
		Msg("Starting parallel collection")

	// Single paginator optimization
	if len(paginators) == 1 {
		items, err := collectWithTimeout[In, Out, T](ctx, config.Timeout, paginators[0])
		if err != nil {
			return results, fmt.Errorf("collect paginator 0: %w", err)
		}
		results[0] = items
		log.Info().
			Int("items", len(items)).
			Dur("duration", time.Since(start)).
			Msg("Collection complete (single paginator)")
		return results, nil
	}

	queue := make(chan int, config.BufferSize)
	batchResults := make(chan BatchResult[T], config.BufferSize)

	// Fill queue
	go func() {
		defer close(queue)
		for i := range paginators {
			select {
			case queue <- i:
			case <-ctx.Done():
				return
			}
		}
	}()

	// Start worker pool
	var wg sync.WaitGroup
	for i := 0; i < config.MaxConcurrency; i++ {
		wg.Add(1)
		go collectWorker[In, Out, T](ctx, config.Timeout, paginators, queue, batchResults, &wg, i)
	}

	// Close results channel when all workers done
	go func() {
		wg.Wait()
		close(batchResults)
	}()

	// Collect results
	var firstErr error
	failed := 0
	items := 0
	for result := range batchResults {
		if result.Error != nil {
			failed++
			if firstErr == nil {
				firstErr = result.Error
			}
			log.Warn().
				Err(result.Error).
				Int("paginator", result.Index).
				Int("partial_items", len(result.Items)).
				Msg("Traversal failed")
			continue
		}

		results[result.Index] = result.Items
		items += len(result.Items)
	}

	if firstErr != nil {
		log.Warn().
			Int("succeeded", len(results)).
			Int("failed", failed).
			Msg("Returning partial results")
		return results, fmt.Errorf("collect (partial data: %d/%d paginators): %w", len(results), len(paginators), firstErr)
	}
	if err := ctx.Err(); err != nil && len(results) < len(paginators) {
		return results, fmt.Errorf("collect (partial data: %d/%d paginators): %w", len(results), len(paginators), err)
	}

	log.Info().
		Int("paginators", len(paginators)).
		Int("items", items).
		Dur("duration", time.Since(start)).
		Msg("Collection complete")

	return results, nil
}

// collectWorker drains paginators named by the queue
func collectWorker[In Request[In], Out Response[T], T any](ctx context.Context, timeout time.Duration, paginators []*Paginator[In, Out, T], queue <-chan int, results chan<- BatchResult[T], wg *sync.WaitGroup, workerID int) {
	defer wg.Done()
	processed := 0

	for index := range queue {
		// Check context cancellation
		select {
		case <-ctx.Done():
			log.Debug().
				Int("worker_id", workerID).
				Int("processed", processed).
				Msg("Worker stopping (context cancelled)")
			return
		default:
		}

		items, err := collectWithTimeout[In, Out, T](ctx, timeout, paginators[index])

		// Send result; the collector drains until all workers exit
		results <- BatchResult[T]{
			Index: index,
			Items: items,
			Error: err,
		}

		processed++
	}

	if processed > 0 {
		log.Debug().
			Int("worker_id", workerID).
			Int("processed", processed).
			Msg("Worker completed")
	}
}

func collectWithTimeout[In Request[In], Out Response[T], T any](ctx context.Context, timeout time.Duration, p *Paginator[In, Out, T]) ([]T, error) {
	ctx, cancel := context.WithTimeout(ctx, timeout)
	defer cancel()
	return p.Collect(ctx)
}
