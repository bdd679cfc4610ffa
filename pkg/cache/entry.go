package cache

import (
	"time"

	"github.com/htrc/data-api/pkg/volume"
)

// CacheEntry represents cached volume info.
type CacheEntry struct {
	// Info is the cached volume info
	Info volume.Info `json:"info"`

	// Expires is when the cache entry becomes stale
	Expires time.Time `json:"expires"`

	// CachedAt is when we cached this entry
	CachedAt time.Time `json:"cached_at"`
}

// NewEntry creates an entry for info that expires after ttl.
func NewEntry(info volume.Info, ttl time.Duration) *CacheEntry {
	now := time.Now()
	return &CacheEntry{
		Info:     info,
		Expires:  now.Add(ttl),
		CachedAt: now,
	}
}

// IsExpired returns true if the cache entry has expired.
func (e *CacheEntry) IsExpired() bool {
	return time.Now().After(e.Expires)
}

// TTL returns the time until expiration.
// Returns 0 if already expired.
func (e *CacheEntry) TTL() time.Duration {
	ttl := time.Until(e.Expires)
	if ttl < 0 {
		return 0
	}
	return ttl
}
