package cache

import (
	"container/list"
	"sync"
	"time"

	"github.com/charmbracelet/log"
	"github.com/dgnsrekt/sovits-player/internal/tts"
	"github.com/dgnsrekt/sovits-player/internal/ttypes"
)

// AudioCache maps cache keys to synthesized clip handles.
// Entries expire a fixed time after they were stored and are removed the
// moment a lookup finds them expired. When the cache grows past MaxEntries
// the oldest stored entries are removed until TrimTo remain. Every removed
// handle is released exactly once.
type AudioCache struct {
	config Config

	// Insertion order, oldest at the back
	items    map[string]*list.Element
	eviction *list.List

	// Synchronization
	mu sync.Mutex

	// Hooks
	now     func() time.Time
	onEvict func(Entry, EvictReason)
	metrics *tts.Metrics
	logger  *log.Logger

	// Metrics
	stats Stats
}

// Option configures an AudioCache.
type Option func(*AudioCache)

// WithClock replaces time.Now.
func WithClock(now func() time.Time) Option {
	return func(c *AudioCache) { c.now = now }
}

// WithEvictHook registers a function called for every removed entry,
// after its handle was released.
func WithEvictHook(fn func(Entry, EvictReason)) Option {
	return func(c *AudioCache) { c.onEvict = fn }
}

// WithMetrics records lookups and evictions.
func WithMetrics(m *tts.Metrics) Option {
	return func(c *AudioCache) { c.metrics = m }
}

// WithLogger sets the logger.
func WithLogger(l *log.Logger) Option {
	return func(c *AudioCache) { c.logger = l }
}

// NewAudioCache creates a cache with the given bounds. Zero fields take
// their defaults.
func NewAudioCache(config Config, opts ...Option) *AudioCache {
	d := DefaultConfig()
	if config.TTL <= 0 {
		config.TTL = d.TTL
	}
	if config.MaxEntries <= 0 {
		config.MaxEntries = d.MaxEntries
	}
	if config.TrimTo < 0 || config.TrimTo > config.MaxEntries {
		config.TrimTo = config.MaxEntries
	}

	c := &AudioCache{
		config:   config,
		items:    make(map[string]*list.Element),
		eviction: list.New(),
		now:      time.Now,
		logger:   log.Default(),
	}
	for _, opt := range opts {
		opt(c)
	}
	return c
}

// evicted is an entry removed under the lock and released after it.
type evicted struct {
	entry  Entry
	reason EvictReason
}

// Lookup returns the entry for key if it is younger than the TTL.
// An expired entry is removed and released and reported as a miss.
func (c *AudioCache) Lookup(key string) (Entry, bool) {
	c.mu.Lock()

	elem, ok := c.items[key]
	if !ok {
		c.stats.Misses++
		c.mu.Unlock()
		c.metrics.CacheLookup("miss")
		return Entry{}, false
	}

	entry := elem.Value.(*Entry)
	if c.now().Sub(entry.CreatedAt) >= c.config.TTL {
		c.stats.Misses++
		c.stats.Expired++
		gone := c.removeElement(elem, EvictExpired)
		c.mu.Unlock()
		c.metrics.CacheLookup("expired")
		c.release(gone)
		return Entry{}, false
	}

	c.stats.Hits++
	out := *entry
	c.mu.Unlock()
	c.metrics.CacheLookup("hit")
	return out, true
}

// Peek returns a fresh entry for key without counting a lookup or removing
// expired entries.
func (c *AudioCache) Peek(key string) (Entry, bool) {
	c.mu.Lock()
	defer c.mu.Unlock()

	elem, ok := c.items[key]
	if !ok {
		return Entry{}, false
	}
	entry := elem.Value.(*Entry)
	if c.now().Sub(entry.CreatedAt) >= c.config.TTL {
		return Entry{}, false
	}
	return *entry, true
}

// Store inserts or overwrites the entry for key and then enforces the bound.
// Overwriting releases the previous handle unless it is the same handle.
func (c *AudioCache) Store(key string, handle *ttypes.AudioHandle) error {
	if handle == nil {
		return ErrNilHandle
	}

	c.mu.Lock()

	var gone []evicted
	now := c.now()

	if elem, ok := c.items[key]; ok {
		entry := elem.Value.(*Entry)
		if entry.Handle != handle {
			gone = append(gone, evicted{entry: *entry, reason: EvictReplaced})
			c.stats.Evictions++
		}
		entry.Handle = handle
		entry.CreatedAt = now
		c.eviction.MoveToFront(elem)
	} else {
		entry := &Entry{Key: key, Handle: handle, CreatedAt: now}
		c.items[key] = c.eviction.PushFront(entry)
	}

	// Trim oldest-first once the bound is exceeded
	if c.eviction.Len() > c.config.MaxEntries {
		for c.eviction.Len() > c.config.TrimTo {
			gone = append(gone, c.removeElement(c.eviction.Back(), EvictTrimmed)...)
		}
	}

	size := len(c.items)
	c.mu.Unlock()

	c.metrics.CacheSize(size)
	c.release(gone)
	return nil
}

// Evict removes key if present.
func (c *AudioCache) Evict(key string) bool {
	c.mu.Lock()
	elem, ok := c.items[key]
	if !ok {
		c.mu.Unlock()
		return false
	}
	gone := c.removeElement(elem, EvictRemoved)
	c.mu.Unlock()

	c.release(gone)
	return true
}

// Sweep removes every expired entry and returns how many were removed.
func (c *AudioCache) Sweep() int {
	c.mu.Lock()

	var gone []evicted
	now := c.now()

	// Start from the back (oldest entries)
	elem := c.eviction.Back()
	for elem != nil {
		prev := elem.Prev()
		entry := elem.Value.(*Entry)
		if now.Sub(entry.CreatedAt) >= c.config.TTL {
			gone = append(gone, c.removeElement(elem, EvictExpired)...)
		}
		elem = prev
	}
	size := len(c.items)
	c.mu.Unlock()

	c.metrics.CacheSize(size)
	c.release(gone)
	return len(gone)
}

// Clear removes all entries.
func (c *AudioCache) Clear() {
	c.mu.Lock()

	gone := make([]evicted, 0, len(c.items))
	for elem := c.eviction.Back(); elem != nil; elem = c.eviction.Back() {
		gone = append(gone, c.removeElement(elem, EvictCleared)...)
	}
	c.mu.Unlock()

	c.metrics.CacheSize(0)
	c.release(gone)
}

// Len returns the number of entries, expired ones included.
func (c *AudioCache) Len() int {
	c.mu.Lock()
	defer c.mu.Unlock()
	return len(c.items)
}

// Contains checks if a key exists without checking its age.
func (c *AudioCache) Contains(key string) bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	_, ok := c.items[key]
	return ok
}

// Keys returns the keys from oldest to newest.
func (c *AudioCache) Keys() []string {
	c.mu.Lock()
	defer c.mu.Unlock()

	keys := make([]string, 0, len(c.items))
	for elem := c.eviction.Back(); elem != nil; elem = elem.Prev() {
		keys = append(keys, elem.Value.(*Entry).Key)
	}
	return keys
}

// Stats returns cache statistics.
func (c *AudioCache) Stats() Stats {
	c.mu.Lock()
	defer c.mu.Unlock()

	stats := c.stats
	stats.Entries = len(c.items)
	if stats.Hits+stats.Misses > 0 {
		stats.HitRate = float64(stats.Hits) / float64(stats.Hits+stats.Misses)
	}
	return stats
}

// removeElement unlinks an element (must be called with lock held).
func (c *AudioCache) removeElement(elem *list.Element, reason EvictReason) []evicted {
	c.eviction.Remove(elem)
	entry := elem.Value.(*Entry)
	delete(c.items, entry.Key)
	c.stats.Evictions++
	return []evicted{{entry: *entry, reason: reason}}
}

// release runs release hooks for removed entries (must be called without the lock).
func (c *AudioCache) release(gone []evicted) {
	for _, g := range gone {
		g.entry.Handle.Release()
		c.metrics.CacheEviction(string(g.reason))
		c.logger.Debug("Cache entry removed", "key", shortKey(g.entry.Key), "reason", g.reason)
		if c.onEvict != nil {
			c.onEvict(g.entry, g.reason)
		}
	}
}

func shortKey(key string) string {
	if len(key) > 12 {
		return key[:12]
	}
	return key
}
