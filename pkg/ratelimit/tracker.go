package ratelimit

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"github.com/redis/go-redis/v9"
	"github.com/rs/zerolog"
)

// Prometheus metrics for throttle tracking.
var (
	awsRecentThrottles = promauto.NewGaugeVec(prometheus.GaugeOpts{
		Name: "aws_throttle_recent",
		Help: "Throttling responses inside the current window by service",
	}, []string{"service"})

	awsThrottleBlocksTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "aws_throttle_blocks_total",
		Help: "Total number of requests blocked during a critical cooldown",
	}, []string{"service"})

	awsThrottleDelaysTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "aws_throttle_delays_total",
		Help: "Total number of requests delayed in the warning window",
	}, []string{"service"})
)

// DefaultThrottleDelay is how long a request waits in the warning window.
const DefaultThrottleDelay = 1 * time.Second

// Tracker monitors throttling per AWS service and gates requests.
type Tracker struct {
	redis  *redis.Client
	logger zerolog.Logger
	delay  time.Duration
}

// NewTracker creates a new throttle tracker.
func NewTracker(redisClient *redis.Client, logger zerolog.Logger) *Tracker {
	return &Tracker{
		redis:  redisClient,
		logger: logger,
		delay:  DefaultThrottleDelay,
	}
}

// SetDelay overrides the warning window delay (for testing).
func (t *Tracker) SetDelay(d time.Duration) {
	t.delay = d
}

// GetState retrieves the current throttle state of a service from Redis.
// Returns a healthy state if no data exists in Redis.
func (t *Tracker) GetState(ctx context.Context, service string) (*ThrottleState, error) {
	if t.redis == nil {
		return nil, errors.New("throttle tracker has no redis client")
	}

	count, err := t.redis.Get(ctx, redisKey(RedisKeyThrottleCount, service)).Int()
	if err != nil && !errors.Is(err, redis.Nil) {
		return nil, fmt.Errorf("get throttle count: %w", err)
	}

	until, err := t.redis.Get(ctx, redisKey(RedisKeyThrottledUntil, service)).Int64()
	if err != nil && !errors.Is(err, redis.Nil) {
		return nil, fmt.Errorf("get throttled until: %w", err)
	}

	lastUpdate, err := t.redis.Get(ctx, redisKey(RedisKeyLastUpdate, service)).Int64()
	if err != nil && !errors.Is(err, redis.Nil) {
		return nil, fmt.Errorf("get last update: %w", err)
	}

	state := &ThrottleState{
		Service:         service,
		RecentThrottles: count,
	}
	if until > 0 {
		state.ThrottledUntil = time.UnixMilli(until)
	}
	if lastUpdate > 0 {
		state.LastUpdate = time.UnixMilli(lastUpdate)
	} else {
		state.LastUpdate = time.Now()
	}
	state.UpdateHealth()

	return state, nil
}

// RecordThrottle registers a throttling response of a service and extends
// its cooldown.
func (t *Tracker) RecordThrottle(ctx context.Context, service string) (*ThrottleState, error) {
	if t.redis == nil {
		return nil, errors.New("throttle tracker has no redis client")
	}

	countKey := redisKey(RedisKeyThrottleCount, service)
	count, err := t.redis.Incr(ctx, countKey).Result()
	if err != nil {
		return nil, fmt.Errorf("increment throttle count: %w", err)
	}
	if count == 1 {
		// First throttle opens a new window
		if err := t.redis.Expire(ctx, countKey, ThrottleWindow).Err(); err != nil {
			return nil, fmt.Errorf("expire throttle count: %w", err)
		}
	}

	now := time.Now()
	state := &ThrottleState{
		Service:         service,
		RecentThrottles: int(count),
		ThrottledUntil:  now.Add(cooldownFor(int(count))),
		LastUpdate:      now,
	}
	state.UpdateHealth()

	pipe := t.redis.Pipeline()
	pipe.Set(ctx, redisKey(RedisKeyThrottledUntil, service), state.ThrottledUntil.UnixMilli(), ThrottleWindow)
	pipe.Set(ctx, redisKey(RedisKeyLastUpdate, service), now.UnixMilli(), ThrottleWindow)
	if _, err := pipe.Exec(ctx); err != nil {
		return nil, fmt.Errorf("store throttle state in redis: %w", err)
	}

	awsRecentThrottles.WithLabelValues(service).Set(float64(count))

	switch {
	case state.NeedsCriticalBlock():
		t.logger.Error().
			Str("service", service).
			Int("recent_throttles", state.RecentThrottles).
			Time("throttled_until", state.ThrottledUntil).
			Msg("AWS throttling CRITICAL - requests will be blocked")
	case state.NeedsThrottling():
		t.logger.Warn().
			Str("service", service).
			Int("recent_throttles", state.RecentThrottles).
			Msg("AWS throttling WARNING - requests will be delayed")
	default:
		t.logger.Info().
			Str("service", service).
			Int("recent_throttles", state.RecentThrottles).
			Msg("AWS throttle recorded")
	}

	return state, nil
}

// RecordSuccess lets a service recover one step after a successful request.
func (t *Tracker) RecordSuccess(ctx context.Context, service string) error {
	if t.redis == nil {
		return errors.New("throttle tracker has no redis client")
	}

	countKey := redisKey(RedisKeyThrottleCount, service)
	count, err := t.redis.Get(ctx, countKey).Int()
	if errors.Is(err, redis.Nil) {
		return nil
	}
	if err != nil {
		return fmt.Errorf("get throttle count: %w", err)
	}
	if count == 0 {
		return nil
	}

	remaining, err := t.redis.Decr(ctx, countKey).Result()
	if err != nil {
		return fmt.Errorf("decrement throttle count: %w", err)
	}
	if remaining <= 0 {
		if err := t.redis.Del(ctx, countKey, redisKey(RedisKeyThrottledUntil, service)).Err(); err != nil {
			return fmt.Errorf("clear throttle state: %w", err)
		}
		remaining = 0
	}

	awsRecentThrottles.WithLabelValues(service).Set(float64(remaining))
	return nil
}

// ShouldAllowRequest checks if a request to a service should be allowed.
// Returns false while the service is in a critical cooldown.
// Returns true but waits for the throttle delay in the warning window.
func (t *Tracker) ShouldAllowRequest(ctx context.Context, service string) (bool, error) {
	state, err := t.GetState(ctx, service)
	if err != nil {
		return false, fmt.Errorf("get throttle state: %w", err)
	}

	// Critical: Block all requests
	if state.NeedsCriticalBlock() {
		t.logger.Error().
			Str("service", service).
			Int("recent_throttles", state.RecentThrottles).
			Dur("wait_duration", state.CooldownRemaining()).
			Msg("AWS throttling critical - blocking request")

		awsThrottleBlocksTotal.WithLabelValues(service).Inc()
		return false, nil
	}

	// Warning: Delay the request
	if state.NeedsThrottling() {
		t.logger.Warn().
			Str("service", service).
			Int("recent_throttles", state.RecentThrottles).
			Msg("AWS throttling warning - delaying request")

		awsThrottleDelaysTotal.WithLabelValues(service).Inc()
		select {
		case <-ctx.Done():
			return false, ctx.Err()
		case <-time.After(t.delay):
		}
	}

	return true, nil
}
