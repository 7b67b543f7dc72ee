// Package cache provides a small TTL-aware LRU cache for repeated lookups
// during an ingestion run.
package cache

import (
	"time"
)

// Cache defines the interface for caching operations
type Cache[V any] interface {
	// Get retrieves an item from cache
	Get(key string) (V, bool)

	// Set stores an item in cache
	Set(key string, value V)

	// SetWithTTL stores an item in cache with a custom TTL
	SetWithTTL(key string, value V, ttl time.Duration)

	// Delete removes an item from cache
	Delete(key string)

	// Cleanup removes expired entries
	Cleanup(maxAge time.Duration)

	// Size returns the current cache size
	Size() int

	// Stats returns cache statistics
	Stats() Stats

	// Close properly shuts down the cache
	Close() error
}

// Stats represents cache performance metrics
type Stats struct {
	Hits        int64     `json:"hits"`
	Misses      int64     `json:"misses"`
	Evictions   int64     `json:"evictions"`
	Size        int       `json:"size"`
	MaxSize     int       `json:"max_size"`
	HitRate     float64   `json:"hit_rate"`
	LastCleanup time.Time `json:"last_cleanup"`
}

// Config defines configuration options for cache implementations
type Config struct {
	MaxSize       int           `json:"max_size"`
	DefaultTTL    time.Duration `json:"default_ttl"`
	CleanupPeriod time.Duration `json:"cleanup_period"`
	EnableStats   bool          `json:"enable_stats"`
}

// DefaultConfig returns sensible default configuration
func DefaultConfig() Config {
	return Config{
		MaxSize:     256,
		DefaultTTL:  10 * time.Minute,
		EnableStats: true,
	}
}
