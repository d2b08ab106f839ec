// Package ratelimit tracks AWS throttling responses per service and gates
// requests on that state. The state lives in Redis so every client process
// talking to the same account backs off together.
package ratelimit

import (
	"fmt"
	"time"
)

// Redis key layout for throttle state. %s is the service name.
const (
	RedisKeyThrottleCount  = "aws:throttle:%s:count"
	RedisKeyThrottledUntil = "aws:throttle:%s:until"
	RedisKeyLastUpdate     = "aws:throttle:%s:last_update"
)

// Thresholds for throttle decisions.
const (
	// ThrottleThresholdWarning slows requests down once a service has
	// throttled this many times inside the current window.
	ThrottleThresholdWarning = 3

	// ThrottleThresholdCritical blocks requests until the cooldown ends.
	ThrottleThresholdCritical = 10

	// ThrottleWindow is how long throttle events count towards the thresholds.
	ThrottleWindow = 60 * time.Second

	// CooldownPerThrottle extends the cooldown for every recorded throttle.
	CooldownPerThrottle = 1 * time.Second

	// MaxCooldown caps the cooldown of a single service.
	MaxCooldown = 30 * time.Second
)

func redisKey(format, service string) string {
	return fmt.Sprintf(format, service)
}

// ThrottleState represents the current throttle state of one AWS service.
// This state is shared across all client instances via Redis.
type ThrottleState struct {
	// Service is the service name, e.g. "athena".
	Service string `json:"service"`

	// RecentThrottles is the number of throttling responses inside ThrottleWindow.
	RecentThrottles int `json:"recent_throttles"`

	// ThrottledUntil is the end of the current cooldown.
	ThrottledUntil time.Time `json:"throttled_until"`

	// LastUpdate is the timestamp when this state was last updated.
	LastUpdate time.Time `json:"last_update"`

	// IsHealthy is true while the service has not crossed the warning threshold.
	IsHealthy bool `json:"is_healthy"`
}

// IsStale returns true if the state data is older than the given duration.
func (s *ThrottleState) IsStale(maxAge time.Duration) bool {
	return time.Since(s.LastUpdate) > maxAge
}

// NeedsCriticalBlock returns true if requests should be blocked until the cooldown ends.
func (s *ThrottleState) NeedsCriticalBlock() bool {
	return s.RecentThrottles >= ThrottleThresholdCritical && s.CooldownRemaining() > 0
}

// NeedsThrottling returns true if requests should be slowed down.
func (s *ThrottleState) NeedsThrottling() bool {
	return s.RecentThrottles >= ThrottleThresholdWarning && !s.NeedsCriticalBlock()
}

// CooldownRemaining returns the duration until the cooldown ends.
// Returns 0 if the cooldown has already passed.
func (s *ThrottleState) CooldownRemaining() time.Duration {
	duration := time.Until(s.ThrottledUntil)
	if duration < 0 {
		return 0
	}
	return duration
}

// UpdateHealth updates the IsHealthy field based on RecentThrottles.
func (s *ThrottleState) UpdateHealth() {
	s.IsHealthy = s.RecentThrottles < ThrottleThresholdWarning
}

// cooldownFor returns the cooldown after the n-th throttle in a window.
func cooldownFor(n int) time.Duration {
	cooldown := time.Duration(n) * CooldownPerThrottle
	if cooldown > MaxCooldown {
		return MaxCooldown
	}
	return cooldown
}
