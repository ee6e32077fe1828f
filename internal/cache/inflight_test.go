package cache

import (
	"context"
	"errors"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/dgnsrekt/sovits-player/internal/ttypes"
)

func waitFor(t *testing.T, cond func() bool) {
	t.Helper()
	deadline := time.Now().Add(2 * time.Second)
	for !cond() {
		if time.Now().After(deadline) {
			t.Fatal("Timed out waiting for condition")
		}
		time.Sleep(time.Millisecond)
	}
}

func TestInFlight_SharesConcurrentCalls(t *testing.T) {
	f := NewInFlight()
	ctx := context.Background()

	var calls atomic.Int32
	release := make(chan struct{})

	fn := func(context.Context) (Shared, error) {
		calls.Add(1)
		<-release
		return Shared{Handle: ttypes.NewAudioHandle("http://tts/shared.wav", nil)}, nil
	}

	var wg sync.WaitGroup
	results := make([]Shared, 5)
	for i := range results {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			results[i], _, _ = f.Do(ctx, "k", fn)
		}(i)
	}

	waitFor(t, func() bool { return f.Waiting("k") == 5 })
	close(release)
	wg.Wait()

	if calls.Load() != 1 {
		t.Errorf("fn called %d times, want 1", calls.Load())
	}
	for i, r := range results {
		if r.Handle == nil || r.Handle != results[0].Handle {
			t.Errorf("result %d = %v, want the shared handle", i, r.Handle)
		}
	}
	if f.Pending() != 0 {
		t.Errorf("Pending = %d after settle, want 0", f.Pending())
	}
}

func TestInFlight_ForgetsKeyOnSettle(t *testing.T) {
	f := NewInFlight()
	ctx := context.Background()

	var calls atomic.Int32
	fn := func(context.Context) (Shared, error) {
		calls.Add(1)
		return Shared{Handle: ttypes.NewAudioHandle("u", nil)}, nil
	}

	_, _, _ = f.Do(ctx, "k", fn)
	_, _, _ = f.Do(ctx, "k", fn)
	if calls.Load() != 2 {
		t.Errorf("Sequential calls ran fn %d times, want 2", calls.Load())
	}
}

func TestInFlight_SharesFailure(t *testing.T) {
	f := NewInFlight()
	boom := errors.New("boom")

	r, _, err := f.Do(context.Background(), "k", func(context.Context) (Shared, error) { return Shared{}, boom })
	if !errors.Is(err, boom) {
		t.Errorf("err = %v, want boom", err)
	}
	if r.Handle != nil {
		t.Error("handle should be nil on failure")
	}
	if f.Pending() != 0 {
		t.Error("Failed key should be forgotten")
	}
}

func TestInFlight_SharesCacheFlag(t *testing.T) {
	f := NewInFlight()
	ctx := context.Background()
	release := make(chan struct{})

	fn := func(context.Context) (Shared, error) {
		<-release
		return Shared{Handle: ttypes.NewAudioHandle("u", nil), FromCache: true}, nil
	}

	results := make(chan Shared, 2)
	for range 2 {
		go func() {
			r, _, _ := f.Do(ctx, "k", fn)
			results <- r
		}()
	}
	waitFor(t, func() bool { return f.Waiting("k") == 2 })
	close(release)

	for range 2 {
		if r := <-results; !r.FromCache {
			t.Error("Every caller should see the cache flag")
		}
	}
}

func TestInFlight_CallerCancelLeavesOthersWaiting(t *testing.T) {
	f := NewInFlight()
	release := make(chan struct{})

	var callErr atomic.Value
	fn := func(ctx context.Context) (Shared, error) {
		<-release
		if err := ctx.Err(); err != nil {
			callErr.Store(err)
		}
		return Shared{Handle: ttypes.NewAudioHandle("u", nil)}, nil
	}

	firstCtx, cancel := context.WithCancel(context.Background())
	defer cancel()
	first := make(chan error)
	go func() {
		_, _, err := f.Do(firstCtx, "k", fn)
		first <- err
	}()
	waitFor(t, func() bool { return f.Waiting("k") == 1 })

	second := make(chan Shared)
	go func() {
		r, _, _ := f.Do(context.Background(), "k", fn)
		second <- r
	}()
	waitFor(t, func() bool { return f.Waiting("k") == 2 })

	cancel()
	if err := <-first; !errors.Is(err, context.Canceled) {
		t.Errorf("First caller err = %v, want context.Canceled", err)
	}
	if f.Waiting("k") != 1 {
		t.Errorf("Waiting = %d, want 1", f.Waiting("k"))
	}

	close(release)
	if r := <-second; r.Handle == nil {
		t.Error("Remaining caller should receive the shared handle")
	}
	if err := callErr.Load(); err != nil {
		t.Errorf("Shared call saw %v, want a live context", err)
	}
}

func TestInFlight_LastCallerCancelsCall(t *testing.T) {
	f := NewInFlight()
	stopped := make(chan error, 1)

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan error)
	go func() {
		_, _, err := f.Do(ctx, "k", func(callCtx context.Context) (Shared, error) {
			<-callCtx.Done()
			stopped <- callCtx.Err()
			return Shared{}, callCtx.Err()
		})
		done <- err
	}()
	waitFor(t, func() bool { return f.Waiting("k") == 1 })

	cancel()
	if err := <-done; !errors.Is(err, context.Canceled) {
		t.Errorf("err = %v, want context.Canceled", err)
	}
	select {
	case err := <-stopped:
		if !errors.Is(err, context.Canceled) {
			t.Errorf("call context err = %v", err)
		}
	case <-time.After(2 * time.Second):
		t.Fatal("Abandoned call was not canceled")
	}
	if f.Pending() != 0 {
		t.Errorf("Pending = %d, want 0", f.Pending())
	}
}
