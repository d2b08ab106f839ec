// Package cache provides AWS response caching with a two-layer design.
//
// Read-only operations whose results change rarely (parameter lookups,
// finished query metadata) are cached so repeated calls neither spend API
// quota nor risk throttling:
//
// - In-process LRU layer (hashicorp/golang-lru) for hot keys
// - Shared Redis layer so several processes reuse one response
// - Expiry from Cache-Control/Expires headers or a caller TTL
// - Deterministic cache keys from the signed request body
// - Prometheus metrics for observability
//
// # Basic Usage
//
//	redisClient := redis.NewClient(&redis.Options{
//		Addr: "localhost:6379",
//	})
//
//	manager, err := cache.NewManager(redisClient, 1000)
//	if err != nil {
//		return err
//	}
//
//	key := cache.CacheKey{
//		Service:   "ssm",
//		Operation: "GetParameters",
//		Region:    "eu-west-1",
//		Payload:   []byte(`{"Names":["/app/db/host"]}`),
//	}
//
//	entry, err := manager.Get(ctx, key)
//	if errors.Is(err, cache.ErrCacheMiss) {
//		// Cache miss - call AWS, then store the body
//		entry = cache.NewEntry(http.StatusOK, resp.Header, body, 5*time.Minute)
//		err = manager.Set(ctx, key, entry)
//	}
//
// # Metrics
//
//   - aws_cache_hits_total{layer} - Cache hits per layer
//   - aws_cache_misses_total - Cache misses
//   - aws_cache_entries{layer="memory"} - Entries held in process
//   - aws_cache_errors_total{operation} - Cache operation errors
//
// Responses of requests that return secrets (for example SSM parameters
// fetched WithDecryption) must never be cached; the caller decides which
// operations are cacheable.
package cache
