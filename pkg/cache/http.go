package cache

import (
	"net/http"
	"strconv"
	"strings"
	"time"
)

const (
	// DefaultTTL is the fallback TTL when neither the caller nor the response sets one
	DefaultTTL = 5 * time.Minute
)

// NewEntry builds a CacheEntry for a successful response.
// Cache-Control and Expires response headers win over ttl; a zero ttl
// falls back to DefaultTTL. Responses marked no-store get an already
// expired entry, which Manager.Set ignores.
func NewEntry(statusCode int, header http.Header, body []byte, ttl time.Duration) *CacheEntry {
	now := time.Now()
	entry := &CacheEntry{
		Data:       body,
		StatusCode: statusCode,
		Expires:    parseExpires(header, now, ttl),
		CachedAt:   now,
	}
	if header != nil {
		entry.RequestID = header.Get("X-Amzn-RequestId")
	}
	return entry
}

// parseExpires determines the expiry of a response.
func parseExpires(headers http.Header, now time.Time, ttl time.Duration) time.Time {
	if ttl <= 0 {
		ttl = DefaultTTL
	}
	if headers == nil {
		return now.Add(ttl)
	}

	if cc := headers.Get("Cache-Control"); cc != "" {
		for _, directive := range strings.Split(cc, ",") {
			directive = strings.TrimSpace(strings.ToLower(directive))
			switch {
			case directive == "no-store" || directive == "no-cache":
				return now
			case strings.HasPrefix(directive, "max-age="):
				if seconds, err := strconv.Atoi(strings.TrimPrefix(directive, "max-age=")); err == nil && seconds >= 0 {
					return now.Add(time.Duration(seconds) * time.Second)
				}
			}
		}
	}

	expiresStr := headers.Get("Expires")
	if expiresStr == "" {
		return now.Add(ttl)
	}

	expires, err := http.ParseTime(expiresStr)
	if err != nil {
		// Failed to parse expires header - use caller TTL
		return now.Add(ttl)
	}

	if expires.Before(now) {
		// Already expired
		return now
	}

	return expires
}
