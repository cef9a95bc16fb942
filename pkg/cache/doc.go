// Package cache stores raw search API page bodies in Redis so repeated runs
// of the same query do not spend API credits.
//
// Entries are keyed by engine and the page's query parameters. The API
// credential is never part of a key.
//
// # Basic Usage
//
//	redisClient := redis.NewClient(&redis.Options{
//		Addr: "localhost:6379",
//	})
//
//	manager := cache.NewManager(redisClient)
//
//	key := cache.CacheKey{
//		Engine: "google",
//		Params: url.Values{"q": []string{"coffee"}, "start": []string{"10"}},
//	}
//
//	entry, err := manager.Get(ctx, key)
//	if errors.Is(err, cache.ErrCacheMiss) {
//		// fetch from the API, then:
//		_ = manager.Set(ctx, key, cache.NewEntry(body, time.Hour))
//	}
//
// # Metrics
//
//   - serp_cache_hits_total{layer="redis"} - Cache hits
//   - serp_cache_misses_total - Cache misses
//   - serp_cache_size_bytes{layer="redis"} - Bytes written or served
//   - serp_cache_errors_total{operation} - Cache operation errors
package cache
