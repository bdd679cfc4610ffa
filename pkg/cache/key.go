package cache

import "strings"

// KeyPrefix is the namespace of all cache keys.
const KeyPrefix = "dataapi"

// CacheKey identifies a cached volume info entry.
type CacheKey struct {
	// VolumeID is the raw volume ID
	VolumeID string

	// Namespace separates deployments sharing one Redis (optional)
	Namespace string
}

// String generates a deterministic cache key string.
// Format: dataapi[:namespace]:volinfo:<volume id>
//
// Example:
//
//	dataapi:volinfo:mdp.39015012345678
func (k CacheKey) String() string {
	parts := []string{KeyPrefix}
	if ns := strings.Trim(k.Namespace, ":"); ns != "" {
		parts = append(parts, ns)
	}
	parts = append(parts, "volinfo", k.VolumeID)
	return strings.Join(parts, ":")
}
