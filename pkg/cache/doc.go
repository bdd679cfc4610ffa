// Package cache provides a Redis-backed cache of volume info shared across
// retrieval requests.
//
// Every request that asks for "all pages" of a volume needs the volume's page
// count before it can be split into work units. The cache keeps that lookup
// off the column store for hot volumes:
//
//   - Entries are JSON documents keyed by a deterministic key
//     (dataapi:volinfo:<volume id>)
//   - Each entry carries its own expiry and is stored with a matching Redis TTL
//   - Expired or undecodable entries are treated as misses
//   - Cache failures never fail a request; the gateway logs and falls through
//     to the backend
//
// # Basic Usage
//
//	redisClient := redis.NewClient(&redis.Options{
//		Addr: "localhost:6379",
//	})
//
//	manager := cache.NewManager(redisClient, 10*time.Minute)
//
//	entry, err := manager.Get(ctx, cache.CacheKey{VolumeID: "mdp.39015012345678"})
//	if err == cache.ErrCacheMiss {
//		// fetch from the column store, then:
//		_ = manager.Set(ctx, cache.NewEntry(info, manager.TTL()))
//	}
//
// # Metrics
//
//   - dataapi_volinfo_cache_hits_total
//   - dataapi_volinfo_cache_misses_total
//   - dataapi_volinfo_cache_size_bytes
//   - dataapi_volinfo_cache_errors_total{operation}
package cache
