package cache

import (
	"errors"
	"time"

	"github.com/dgnsrekt/sovits-player/internal/ttypes"
)

// Common errors for cache operations
var (
	// ErrNilHandle is returned when storing a nil handle
	ErrNilHandle = errors.New("cannot cache a nil audio handle")

	// ErrResourceReleased is returned when opening a released resource
	ErrResourceReleased = errors.New("resource already released")
)

// EvictReason tells why an entry left the cache
type EvictReason string

const (
	// EvictExpired is used when a lookup or sweep finds the entry too old
	EvictExpired EvictReason = "expired"

	// EvictTrimmed is used when the bound trims the oldest entries
	EvictTrimmed EvictReason = "trimmed"

	// EvictReplaced is used when a store overwrites the key with a new handle
	EvictReplaced EvictReason = "replaced"

	// EvictRemoved is used for explicit Evict calls
	EvictRemoved EvictReason = "removed"

	// EvictCleared is used by Clear
	EvictCleared EvictReason = "cleared"
)

// Entry is a cached clip
type Entry struct {
	Key       string
	Handle    *ttypes.AudioHandle
	CreatedAt time.Time
}

// Stats holds cache performance metrics
type Stats struct {
	// Current state
	Entries int

	// Performance metrics
	Hits      int64   // Number of cache hits
	Misses    int64   // Number of cache misses (expired hits included)
	Expired   int64   // Hits rejected because the entry was too old
	Evictions int64   // Number of removals of any kind
	HitRate   float64 // Calculated hit rate (hits / (hits + misses))
}

// Config holds cache bounds
type Config struct {
	// Entry lifetime
	TTL time.Duration

	// Trim is triggered above this many entries
	MaxEntries int

	// Entries kept after a trim
	TrimTo int
}

// DefaultConfig returns the default bounds: 300s lifetime, 50 entries
// trimmed to 30.
func DefaultConfig() Config {
	return Config{
		TTL:        300 * time.Second,
		MaxEntries: 50,
		TrimTo:     30,
	}
}
