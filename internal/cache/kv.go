package cache

import "time"

// KV defines the cache contract used by the upstream client.
// Implementations must be safe for concurrent use by multiple goroutines.
type KV interface {
	Get(key string) ([]byte, error)
	// Set stores value under key. A ttl <= 0 uses the store default.
	// It reports whether the value was admitted.
	Set(key string, value []byte, ttl time.Duration) bool
	Delete(key string)
	// InvalidatePattern removes every key containing pattern and returns how many were removed.
	InvalidatePattern(pattern string) int
	// InvalidateEndUser removes every key generated for endUserID.
	InvalidateEndUser(endUserID string) int
	Clear()
}
