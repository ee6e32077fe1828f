package cache

import (
	"fmt"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/dgnsrekt/sovits-player/internal/ttypes"
)

type fakeClock struct {
	mu  sync.Mutex
	now time.Time
}

func newFakeClock() *fakeClock {
	return &fakeClock{now: time.Date(2024, 1, 1, 12, 0, 0, 0, time.UTC)}
}

func (c *fakeClock) Now() time.Time {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.now
}

func (c *fakeClock) Advance(d time.Duration) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.now = c.now.Add(d)
}

// countedHandle returns a handle whose release increments counter.
func countedHandle(url string, counter *atomic.Int32) *ttypes.AudioHandle {
	return ttypes.NewAudioHandle(url, func() { counter.Add(1) })
}

func TestAudioCache_StoreLookup(t *testing.T) {
	cache := NewAudioCache(DefaultConfig())

	var released atomic.Int32
	h := countedHandle("http://tts/a.wav", &released)
	if err := cache.Store("k1", h); err != nil {
		t.Fatalf("Store failed: %v", err)
	}

	entry, ok := cache.Lookup("k1")
	if !ok {
		t.Fatal("Lookup failed: key not found")
	}
	if entry.Handle.URL != "http://tts/a.wav" {
		t.Errorf("URL = %q", entry.Handle.URL)
	}

	if _, ok := cache.Lookup("missing"); ok {
		t.Error("Lookup should miss for unknown key")
	}

	if err := cache.Store("nil", nil); err != ErrNilHandle {
		t.Errorf("Store(nil) = %v, want ErrNilHandle", err)
	}

	stats := cache.Stats()
	if stats.Hits != 1 || stats.Misses != 1 || stats.Entries != 1 {
		t.Errorf("Stats = %+v", stats)
	}
	if released.Load() != 0 {
		t.Error("Nothing should be released yet")
	}
}

func TestAudioCache_TTL(t *testing.T) {
	clock := newFakeClock()
	var reasons []EvictReason
	cache := NewAudioCache(DefaultConfig(),
		WithClock(clock.Now),
		WithEvictHook(func(_ Entry, r EvictReason) { reasons = append(reasons, r) }),
	)

	var released atomic.Int32
	if err := cache.Store("k", countedHandle("u", &released)); err != nil {
		t.Fatal(err)
	}

	clock.Advance(299 * time.Second)
	if _, ok := cache.Lookup("k"); !ok {
		t.Fatal("Entry should still be valid at 299s")
	}

	clock.Advance(1 * time.Second)
	if _, ok := cache.Lookup("k"); ok {
		t.Fatal("Entry should be expired at 300s")
	}

	if cache.Len() != 0 {
		t.Errorf("Expired entry should be removed, Len = %d", cache.Len())
	}
	if released.Load() != 1 {
		t.Errorf("Expired handle released %d times, want 1", released.Load())
	}
	if len(reasons) != 1 || reasons[0] != EvictExpired {
		t.Errorf("Evict reasons = %v, want [expired]", reasons)
	}

	// A second lookup must not release again
	cache.Lookup("k")
	if released.Load() != 1 {
		t.Errorf("Handle released %d times, want 1", released.Load())
	}
}

func TestAudioCache_BoundTrimsOldest(t *testing.T) {
	cache := NewAudioCache(DefaultConfig())

	counters := make([]*atomic.Int32, 51)
	for i := 0; i < 51; i++ {
		counters[i] = new(atomic.Int32)
		if err := cache.Store(fmt.Sprintf("k%02d", i), countedHandle(fmt.Sprintf("u%d", i), counters[i])); err != nil {
			t.Fatal(err)
		}
		if i < 50 && cache.Len() != i+1 {
			t.Fatalf("Len = %d after %d stores", cache.Len(), i+1)
		}
	}

	if cache.Len() != 30 {
		t.Fatalf("Len = %d after 51 stores, want 30", cache.Len())
	}

	for i := 0; i < 21; i++ {
		if got := counters[i].Load(); got != 1 {
			t.Errorf("k%02d released %d times, want 1", i, got)
		}
		if cache.Contains(fmt.Sprintf("k%02d", i)) {
			t.Errorf("k%02d should have been trimmed", i)
		}
	}
	for i := 21; i < 51; i++ {
		if got := counters[i].Load(); got != 0 {
			t.Errorf("k%02d released %d times, want 0", i, got)
		}
		if !cache.Contains(fmt.Sprintf("k%02d", i)) {
			t.Errorf("k%02d should survive the trim", i)
		}
	}

	keys := cache.Keys()
	if keys[0] != "k21" || keys[len(keys)-1] != "k50" {
		t.Errorf("Keys oldest..newest = %s..%s, want k21..k50", keys[0], keys[len(keys)-1])
	}
}

func TestAudioCache_Overwrite(t *testing.T) {
	cache := NewAudioCache(DefaultConfig())

	var first, second atomic.Int32
	h1 := countedHandle("u1", &first)
	h2 := countedHandle("u2", &second)

	_ = cache.Store("k", h1)
	_ = cache.Store("k", h1)
	if first.Load() != 0 {
		t.Error("Storing the same handle again must not release it")
	}

	_ = cache.Store("k", h2)
	if first.Load() != 1 {
		t.Errorf("Replaced handle released %d times, want 1", first.Load())
	}
	if second.Load() != 0 {
		t.Error("New handle must not be released")
	}

	entry, ok := cache.Lookup("k")
	if !ok || entry.Handle != h2 {
		t.Error("Lookup should return the new handle")
	}
	if cache.Len() != 1 {
		t.Errorf("Len = %d, want 1", cache.Len())
	}
}

func TestAudioCache_OverwriteRefreshesOrder(t *testing.T) {
	cache := NewAudioCache(Config{TTL: time.Minute, MaxEntries: 3, TrimTo: 2})

	var c atomic.Int32
	_ = cache.Store("a", countedHandle("a", &c))
	_ = cache.Store("b", countedHandle("b", &c))
	_ = cache.Store("c", countedHandle("c", &c))
	_ = cache.Store("a", countedHandle("a2", &c)) // a becomes newest
	_ = cache.Store("d", countedHandle("d", &c))  // exceeds 3, trims to 2

	if cache.Contains("b") || cache.Contains("c") {
		t.Error("Oldest entries b and c should be trimmed")
	}
	if !cache.Contains("a") || !cache.Contains("d") {
		t.Error("a and d should remain")
	}
}

func TestAudioCache_EvictSweepClear(t *testing.T) {
	clock := newFakeClock()
	cache := NewAudioCache(DefaultConfig(), WithClock(clock.Now))

	var released atomic.Int32
	_ = cache.Store("old", countedHandle("old", &released))
	clock.Advance(200 * time.Second)
	_ = cache.Store("new", countedHandle("new", &released))
	_ = cache.Store("gone", countedHandle("gone", &released))

	if !cache.Evict("gone") || cache.Evict("gone") {
		t.Error("Evict should succeed once")
	}

	clock.Advance(150 * time.Second)
	if n := cache.Sweep(); n != 1 {
		t.Errorf("Sweep removed %d, want 1", n)
	}
	if !cache.Contains("new") {
		t.Error("Fresh entry should survive the sweep")
	}

	cache.Clear()
	if cache.Len() != 0 {
		t.Errorf("Len = %d after Clear", cache.Len())
	}
	if released.Load() != 3 {
		t.Errorf("Released %d handles, want 3", released.Load())
	}
}

func TestAudioCache_ConcurrentAccess(t *testing.T) {
	cache := NewAudioCache(DefaultConfig())

	var wg sync.WaitGroup
	var released atomic.Int32
	for g := 0; g < 8; g++ {
		wg.Add(1)
		go func(g int) {
			defer wg.Done()
			for i := 0; i < 100; i++ {
				key := fmt.Sprintf("k%d", i%60)
				_ = cache.Store(key, countedHandle(fmt.Sprintf("u%d-%d", g, i), &released))
				cache.Lookup(key)
			}
		}(g)
	}
	wg.Wait()

	if cache.Len() > 50 {
		t.Errorf("Len = %d exceeds the bound", cache.Len())
	}
	// Every handle was either released once or is still cached
	if int(released.Load())+cache.Len() != 800 {
		t.Errorf("released %d + cached %d != 800 stored", released.Load(), cache.Len())
	}
}

func TestAudioCache_PeekLeavesStatsAlone(t *testing.T) {
	clock := newFakeClock()
	cache := NewAudioCache(DefaultConfig(), WithClock(clock.Now))

	var released atomic.Int32
	_ = cache.Store("k", countedHandle("u", &released))

	if _, ok := cache.Peek("k"); !ok {
		t.Fatal("Peek should find a fresh entry")
	}
	if _, ok := cache.Peek("missing"); ok {
		t.Error("Peek should miss for unknown key")
	}

	clock.Advance(301 * time.Second)
	if _, ok := cache.Peek("k"); ok {
		t.Error("Peek should not return an expired entry")
	}
	if cache.Len() != 1 || released.Load() != 0 {
		t.Errorf("Peek must not evict: Len = %d, released = %d", cache.Len(), released.Load())
	}

	stats := cache.Stats()
	if stats.Hits != 0 || stats.Misses != 0 {
		t.Errorf("Peek changed stats: %+v", stats)
	}
}
