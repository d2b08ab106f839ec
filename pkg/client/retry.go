package client

import (
	"context"
	"fmt"
	"time"

	"github.com/cenkalti/backoff/v4"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"github.com/rs/zerolog/log"
)

// Prometheus metrics for retry operations.
var (
	awsRetriesTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "aws_retries_total",
		Help: "Total number of retry attempts by error class",
	}, []string{"error_class"})

	awsRetryBackoffSeconds = promauto.NewHistogramVec(prometheus.HistogramOpts{
		Name:    "aws_retry_backoff_seconds",
		Help:    "Backoff duration for retries by error class",
		Buckets: []float64{0.05, 0.1, 0.25, 0.5, 1, 2, 5, 10, 20},
	}, []string{"error_class"})

	awsRetryExhaustedTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "aws_retry_exhausted_total",
		Help: "Total number of times retry attempts were exhausted by error class",
	}, []string{"error_class"})
)

// RetryConfig is the retry schedule of one error class.
type RetryConfig struct {
	// MaxAttempts counts every attempt including the first request.
	MaxAttempts int

	// InitialBackoff is the delay before the first retry.
	InitialBackoff time.Duration

	// MaxBackoff caps a single delay.
	MaxBackoff time.Duration

	// Multiplier grows the delay after each retry. Values <= 1 mean 2.
	Multiplier float64

	// Jitter randomizes each delay by ±Jitter of its value.
	Jitter float64
}

// RetryPolicy selects the retry configuration for an error class.
type RetryPolicy func(ErrorClass) RetryConfig

// DefaultRetryConfig mirrors the standard retry mode of the AWS SDKs:
// three attempts with a 20s delay cap.
func DefaultRetryConfig() RetryConfig {
	return RetryConfig{
		MaxAttempts:    3,
		InitialBackoff: 100 * time.Millisecond,
		MaxBackoff:     20 * time.Second,
		Multiplier:     2,
		Jitter:         0.2,
	}
}

// RetryConfigForErrorClass returns the retry configuration for an error class.
// Throttling gets more attempts and a longer first delay so the shared
// throttle state has time to settle.
func RetryConfigForErrorClass(errorClass ErrorClass) RetryConfig {
	config := DefaultRetryConfig()
	switch errorClass {
	case ErrorClassRateLimit:
		config.MaxAttempts = 5
		config.InitialBackoff = 500 * time.Millisecond
	case ErrorClassNetwork:
		config.InitialBackoff = 200 * time.Millisecond
	}
	return config
}

// backOff builds the delay schedule of the configuration.
func (c RetryConfig) backOff() backoff.BackOff {
	b := backoff.NewExponentialBackOff()
	b.InitialInterval = c.InitialBackoff
	b.MaxInterval = c.MaxBackoff
	b.Multiplier = c.Multiplier
	if b.Multiplier <= 1 {
		b.Multiplier = 2
	}
	b.RandomizationFactor = c.Jitter
	// Attempts bound the retries, not elapsed time
	b.MaxElapsedTime = 0
	b.Reset()
	return b
}

// retryWithBackoff calls fn until it succeeds, fails with a class that is not
// retried, or the attempts of that class run out. Each error class keeps its
// own delay schedule, so a throttle after a server error starts from the
// throttling delay.
func retryWithBackoff(ctx context.Context, policy RetryPolicy, fn func() error, classify func(error) ErrorClass) error {
	if policy == nil {
		policy = RetryConfigForErrorClass
	}

	schedules := make(map[ErrorClass]backoff.BackOff)
	var errorClass ErrorClass

	for attempt := 1; ; attempt++ {
		err := fn()
		if err == nil {
			if attempt > 1 {
				log.Info().
					Str("error_class", string(errorClass)).
					Int("attempt", attempt).
					Msg("Request succeeded after retry")
			}
			return nil
		}

		errorClass = classify(err)
		if !shouldRetry(errorClass) {
			return err
		}

		config := policy(errorClass)
		if attempt >= config.MaxAttempts {
			awsRetryExhaustedTotal.WithLabelValues(string(errorClass)).Inc()
			log.Warn().
				Str("error_class", string(errorClass)).
				Int("max_attempts", config.MaxAttempts).
				Msg("Retry attempts exhausted")
			return fmt.Errorf("%w after %d attempts: %w", ErrRetryExhausted, attempt, err)
		}

		schedule, ok := schedules[errorClass]
		if !ok {
			schedule = config.backOff()
			schedules[errorClass] = schedule
		}
		delay := schedule.NextBackOff()

		awsRetriesTotal.WithLabelValues(string(errorClass)).Inc()
		awsRetryBackoffSeconds.WithLabelValues(string(errorClass)).Observe(delay.Seconds())

		log.Debug().
			Str("error_class", string(errorClass)).
			Int("attempt", attempt).
			Dur("backoff", delay).
			Msg("Retrying request after backoff")

		timer := time.NewTimer(delay)
		select {
		case <-ctx.Done():
			timer.Stop()
			log.Warn().
				Str("error_class", string(errorClass)).
				Int("attempt", attempt).
				Msg("Context cancelled during retry backoff")
			return fmt.Errorf("%w: %w", ErrContextCancelled, ctx.Err())
		case <-timer.C:
		}
	}
}
