package cache

import (
	"context"
	"sync"

	"github.com/dgnsrekt/sovits-player/internal/ttypes"
	"golang.org/x/sync/singleflight"
)

// Shared is the outcome of a call handed to every caller of a key.
type Shared struct {
	Handle *ttypes.AudioHandle

	// The handle came from the cache rather than a new synthesis
	FromCache bool
}

// InFlight shares one synthesis call between concurrent requests for the
// same key. A key is forgotten the moment its call settles, so a later
// request for the key starts a new call unless the cache answers it first.
//
// The shared call runs on its own context, which is canceled only when
// every caller waiting on it has given up.
type InFlight struct {
	group singleflight.Group

	mu    sync.Mutex
	calls map[string]*call
}

type call struct {
	ctx     context.Context
	cancel  context.CancelFunc
	waiters int
}

// NewInFlight creates an empty in-flight table.
func NewInFlight() *InFlight {
	return &InFlight{calls: make(map[string]*call)}
}

// Do runs fn for key unless a call for key is already running, in which
// case it waits for that call and returns its outcome. shared reports
// whether the outcome was delivered to more than one caller.
//
// Canceling ctx stops only this caller's wait.
func (f *InFlight) Do(ctx context.Context, key string, fn func(ctx context.Context) (Shared, error)) (result Shared, shared bool, err error) {
	f.mu.Lock()
	c, ok := f.calls[key]
	if !ok {
		callCtx, cancel := context.WithCancel(context.WithoutCancel(ctx))
		c = &call{ctx: callCtx, cancel: cancel}
		f.calls[key] = c
	}
	c.waiters++
	ch := f.group.DoChan(key, func() (interface{}, error) {
		return fn(c.ctx)
	})
	f.mu.Unlock()

	defer f.leave(key, c)

	select {
	case res := <-ch:
		if res.Err != nil {
			return Shared{}, res.Shared, res.Err
		}
		return res.Val.(Shared), res.Shared, nil
	case <-ctx.Done():
		return Shared{}, false, ctx.Err()
	}
}

// leave drops a waiter. The last one out cancels the call and makes the
// next caller for key start afresh.
func (f *InFlight) leave(key string, c *call) {
	f.mu.Lock()
	defer f.mu.Unlock()

	if c.waiters--; c.waiters > 0 {
		return
	}
	c.cancel()
	if f.calls[key] == c {
		delete(f.calls, key)
		f.group.Forget(key)
	}
}

// Pending returns the number of keys with callers waiting.
func (f *InFlight) Pending() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return len(f.calls)
}

// Waiting returns how many callers are waiting on key.
func (f *InFlight) Waiting(key string) int {
	f.mu.Lock()
	defer f.mu.Unlock()
	if c, ok := f.calls[key]; ok {
		return c.waiters
	}
	return 0
}
