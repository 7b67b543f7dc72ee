package cache

import (
	"container/list"
	"sync"
	"time"
)

type lruEntry[V any] struct {
	key       string
	value     V
	createdAt time.Time
	ttl       time.Duration
}

func (e *lruEntry[V]) expired(now time.Time) bool {
	return e.ttl > 0 && now.Sub(e.createdAt) > e.ttl
}

// LRU implements Cache with least-recently-used eviction
type LRU[V any] struct {
	config       Config
	items        map[string]*list.Element
	evictionList *list.List
	stats        Stats
	mu           sync.Mutex
	stopCleanup  chan struct{}
	cleanupDone  chan struct{}
	now          func() time.Time
}

var _ Cache[string] = (*LRU[string])(nil)

// NewLRU creates a cache. A CleanupPeriod starts a background sweeper that
// Close stops.
func NewLRU[V any](config Config) *LRU[V] {
	if config.MaxSize <= 0 {
		config.MaxSize = DefaultConfig().MaxSize
	}
	c := &LRU[V]{
		config:       config,
		items:        make(map[string]*list.Element),
		evictionList: list.New(),
		stats: Stats{
			MaxSize:     config.MaxSize,
			LastCleanup: time.Now(),
		},
		stopCleanup: make(chan struct{}),
		cleanupDone: make(chan struct{}),
		now:         time.Now,
	}

	if config.CleanupPeriod > 0 {
		go c.backgroundCleanup()
	}
	return c
}

// Get retrieves an item from cache
func (c *LRU[V]) Get(key string) (V, bool) {
	c.mu.Lock()
	defer c.mu.Unlock()

	var zero V
	element, exists := c.items[key]
	if !exists {
		c.miss()
		return zero, false
	}

	entry := element.Value.(*lruEntry[V])
	if entry.expired(c.now()) {
		c.removeElementUnsafe(element)
		c.miss()
		return zero, false
	}

	c.evictionList.MoveToFront(element)
	if c.config.EnableStats {
		c.stats.Hits++
	}
	return entry.value, true
}

func (c *LRU[V]) miss() {
	if c.config.EnableStats {
		c.stats.Misses++
	}
}

// Set stores an item in cache with the default TTL
func (c *LRU[V]) Set(key string, value V) {
	c.SetWithTTL(key, value, c.config.DefaultTTL)
}

// SetWithTTL stores an item in cache with a custom TTL
func (c *LRU[V]) SetWithTTL(key string, value V, ttl time.Duration) {
	c.mu.Lock()
	defer c.mu.Unlock()

	if element, exists := c.items[key]; exists {
		entry := element.Value.(*lruEntry[V])
		entry.value = value
		entry.createdAt = c.now()
		entry.ttl = ttl
		c.evictionList.MoveToFront(element)
		return
	}

	element := c.evictionList.PushFront(&lruEntry[V]{
		key:       key,
		value:     value,
		createdAt: c.now(),
		ttl:       ttl,
	})
	c.items[key] = element

	if c.evictionList.Len() > c.config.MaxSize {
		c.evictOldestUnsafe()
	}
}

// Delete removes an item from cache
func (c *LRU[V]) Delete(key string) {
	c.mu.Lock()
	defer c.mu.Unlock()

	if element, exists := c.items[key]; exists {
		c.removeElementUnsafe(element)
	}
}

// Cleanup removes expired entries and, when maxAge > 0, entries older than it
func (c *LRU[V]) Cleanup(maxAge time.Duration) {
	c.mu.Lock()
	defer c.mu.Unlock()

	now := c.now()
	for _, element := range c.items {
		entry := element.Value.(*lruEntry[V])
		if entry.expired(now) || (maxAge > 0 && now.Sub(entry.createdAt) > maxAge) {
			c.removeElementUnsafe(element)
		}
	}
	c.stats.LastCleanup = now
}

// Size returns the current cache size
func (c *LRU[V]) Size() int {
	c.mu.Lock()
	defer c.mu.Unlock()
	return len(c.items)
}

// Stats returns cache statistics
func (c *LRU[V]) Stats() Stats {
	c.mu.Lock()
	defer c.mu.Unlock()

	stats := c.stats
	stats.Size = len(c.items)
	if total := stats.Hits + stats.Misses; total > 0 {
		stats.HitRate = float64(stats.Hits) / float64(total)
	}
	return stats
}

// Close stops the background sweeper and drops all entries
func (c *LRU[V]) Close() error {
	if c.config.CleanupPeriod > 0 {
		close(c.stopCleanup)
		<-c.cleanupDone
	}

	c.mu.Lock()
	defer c.mu.Unlock()
	c.items = make(map[string]*list.Element)
	c.evictionList = list.New()
	return nil
}

// removeElementUnsafe removes an element from cache (caller must hold lock)
func (c *LRU[V]) removeElementUnsafe(element *list.Element) {
	entry := element.Value.(*lruEntry[V])
	delete(c.items, entry.key)
	c.evictionList.Remove(element)
}

// evictOldestUnsafe evicts the least recently used entry (caller must hold lock)
func (c *LRU[V]) evictOldestUnsafe() {
	if oldest := c.evictionList.Back(); oldest != nil {
		c.removeElementUnsafe(oldest)
		if c.config.EnableStats {
			c.stats.Evictions++
		}
	}
}

func (c *LRU[V]) backgroundCleanup() {
	defer close(c.cleanupDone)

	ticker := time.NewTicker(c.config.CleanupPeriod)
	defer ticker.Stop()

	for {
		select {
		case <-ticker.C:
			c.Cleanup(0)
		case <-c.stopCleanup:
			return
		}
	}
}
