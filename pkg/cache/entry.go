package cache

import (
	"time"
)

// CacheEntry is a successful AWS JSON response kept for reuse.
type CacheEntry struct {
	// Data is the undecoded response body.
	Data []byte `json:"data"`

	// StatusCode is always 200 today; error responses are never stored.
	StatusCode int `json:"status_code"`

	// RequestID is the x-amzn-RequestId of the response that filled the entry.
	RequestID string `json:"request_id,omitempty"`

	Expires  time.Time `json:"expires"`
	CachedAt time.Time `json:"cached_at"`
}

// IsExpired reports whether the entry must no longer be served.
func (e *CacheEntry) IsExpired() bool {
	return !time.Now().Before(e.Expires)
}

// TTL returns the remaining lifetime, 0 once expired.
func (e *CacheEntry) TTL() time.Duration {
	return max(time.Until(e.Expires), 0)
}

// Age returns how long ago the response was received.
func (e *CacheEntry) Age() time.Duration {
	return time.Since(e.CachedAt)
}
