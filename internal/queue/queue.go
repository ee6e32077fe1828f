package queue

import (
	"context"
	"errors"
	"fmt"
	"sync"

	"github.com/charmbracelet/log"
	"github.com/dgnsrekt/sovits-player/internal/tts"
	"github.com/dgnsrekt/sovits-player/internal/ttypes"
)

var (
	// ErrNotActive is returned when pausing a queue that is not playing
	ErrNotActive = errors.New("queue is not playing")

	// ErrNotPaused is returned when resuming a queue that is not paused
	ErrNotPaused = errors.New("queue is not paused")

	// errInterrupted is reported when the player stops a clip on its own
	errInterrupted = errors.New("playback interrupted")
)

// State is the queue's user-visible state.
type State int

const (
	// StateIdle means no run is active
	StateIdle State = iota

	// StateLoading means the current clip is being fetched
	StateLoading

	// StatePlaying means the current clip is playing
	StatePlaying

	// StatePaused means the run is paused; the index is kept
	StatePaused

	// StateStopped is passed through when a run ends or is stopped
	StateStopped
)

// String returns the string representation of the state
func (s State) String() string {
	switch s {
	case StateIdle:
		return "idle"
	case StateLoading:
		return "loading"
	case StatePlaying:
		return "playing"
	case StatePaused:
		return "paused"
	case StateStopped:
		return "stopped"
	default:
		return "unknown"
	}
}

// clipState tracks the current clip inside a run.
type clipState int

const (
	clipNone    clipState = iota
	clipLoading           // fetch in progress
	clipReady             // fetched, parked until resume
	clipPlaying           // handed to the player
	clipEnded             // ended while paused
)

// Token identifies one run. Start and Stop issue a new token.
type Token uint64

// Stats tracks queue activity
type Stats struct {
	Runs        int64
	Completed   int64
	ClipsPlayed int64
	Fetches     int64
	Preloads    int64
	PreloadHits int64
	Failures    int64
}

// Options configures a PlaybackQueue.
type Options struct {
	// Fetch the next clip while the current one plays
	Preload bool

	// Called with the run's token when its last clip ended
	OnFinished func(Token)

	// Called once with the run's token and a PLAYBACK_FAILURE error when
	// a run fails
	OnError func(Token, error)

	// Called when a clip starts playing
	OnClipStart func(index int, item *ttypes.PlaybackItem)

	Metrics *tts.Metrics
	Logger  *log.Logger
}

// PlaybackQueue plays items in order. Hooks are always called without the
// queue lock held. Player methods are called with the lock held.
type PlaybackQueue struct {
	player  ttypes.AudioPlayer
	fetcher ttypes.ResourceFetcher
	opts    Options
	logger  *log.Logger

	mu     sync.Mutex
	state  State
	clip   clipState
	paused bool
	items  []*ttypes.PlaybackItem
	index  int
	token  Token

	// Run context, canceled by Stop to abort fetches
	ctx    context.Context
	cancel context.CancelFunc

	current    ttypes.Resource
	preloading map[int]chan struct{}

	stats Stats
}

// NewPlaybackQueue creates an idle queue.
func NewPlaybackQueue(player ttypes.AudioPlayer, fetcher ttypes.ResourceFetcher, opts Options) *PlaybackQueue {
	logger := opts.Logger
	if logger == nil {
		logger = log.Default()
	}
	return &PlaybackQueue{
		player:     player,
		fetcher:    fetcher,
		opts:       opts,
		logger:     logger,
		preloading: make(map[int]chan struct{}),
	}
}

// Start replaces any current run with items and begins playing the first.
// It returns the token of the new run.
func (q *PlaybackQueue) Start(items []*ttypes.PlaybackItem) Token {
	return q.start(items, false)
}

// StartPaused is Start with the run paused: the first clip is fetched and
// held until Resume.
func (q *PlaybackQueue) StartPaused(items []*ttypes.PlaybackItem) Token {
	return q.start(items, true)
}

func (q *PlaybackQueue) start(items []*ttypes.PlaybackItem, paused bool) Token {
	q.mu.Lock()
	q.token++
	token := q.token
	gone := q.haltLocked()

	if len(items) == 0 {
		q.state = StateIdle
		q.mu.Unlock()
		releaseAll(gone)
		return token
	}

	q.items = append([]*ttypes.PlaybackItem(nil), items...)
	q.index = 0
	q.ctx, q.cancel = context.WithCancel(context.Background())
	q.state = StateLoading
	q.clip = clipLoading
	if paused {
		q.paused = true
		q.state = StatePaused
	}
	q.stats.Runs++
	ctx := q.ctx
	q.mu.Unlock()

	releaseAll(gone)
	q.logger.Debug("Queue started", "items", len(items), "token", token, "paused", paused)
	go q.load(ctx, token, 0)
	return token
}

// Pause pauses the run. A clip still loading is parked when it arrives.
func (q *PlaybackQueue) Pause() error {
	q.mu.Lock()
	defer q.mu.Unlock()

	if q.state != StatePlaying && q.state != StateLoading {
		return ErrNotActive
	}
	if q.clip == clipPlaying {
		if err := q.player.Pause(); err != nil {
			return fmt.Errorf("pause player: %w", err)
		}
	}
	q.paused = true
	q.state = StatePaused
	return nil
}

// Resume continues a paused run: the same clip if one was playing,
// otherwise advancement restarts at the current index.
func (q *PlaybackQueue) Resume() error {
	q.mu.Lock()
	if !q.paused {
		q.mu.Unlock()
		return ErrNotPaused
	}

	token := q.token
	var after func()

	switch q.clip {
	case clipPlaying:
		if err := q.player.Resume(); err != nil {
			q.mu.Unlock()
			return fmt.Errorf("resume player: %w", err)
		}
		q.state = StatePlaying
	case clipLoading:
		q.state = StateLoading
	case clipReady:
		after = q.playLocked(token)
	case clipEnded:
		after = q.advanceLocked(token)
	}
	q.paused = false
	q.mu.Unlock()

	if after != nil {
		after()
	}
	return nil
}

// Stop ends the run, aborts pending fetches and releases every resource the
// queue holds. Continuations of the run become no-ops.
func (q *PlaybackQueue) Stop() {
	q.mu.Lock()
	q.token++
	gone := q.haltLocked()
	q.state = StateIdle
	q.mu.Unlock()

	releaseAll(gone)
}

// State returns the current state.
func (q *PlaybackQueue) State() State {
	q.mu.Lock()
	defer q.mu.Unlock()
	return q.state
}

// IsPlaying reports whether a clip is loading or playing.
func (q *PlaybackQueue) IsPlaying() bool {
	s := q.State()
	return s == StatePlaying || s == StateLoading
}

// IsPaused reports whether the run is paused.
func (q *PlaybackQueue) IsPaused() bool {
	return q.State() == StatePaused
}

// CurrentIndex returns the index of the current clip.
func (q *PlaybackQueue) CurrentIndex() int {
	q.mu.Lock()
	defer q.mu.Unlock()
	return q.index
}

// Len returns the number of items in the run.
func (q *PlaybackQueue) Len() int {
	q.mu.Lock()
	defer q.mu.Unlock()
	return len(q.items)
}

// Token returns the current run token.
func (q *PlaybackQueue) Token() Token {
	q.mu.Lock()
	defer q.mu.Unlock()
	return q.token
}

// Stats returns queue statistics.
func (q *PlaybackQueue) Stats() Stats {
	q.mu.Lock()
	defer q.mu.Unlock()
	return q.stats
}

// load fetches item i, preferring a preloaded resource, and plays it.
func (q *PlaybackQueue) load(ctx context.Context, token Token, i int) {
	q.mu.Lock()
	if token != q.token {
		q.mu.Unlock()
		return
	}
	item := q.items[i]
	wait := q.preloading[i]
	q.mu.Unlock()

	if wait != nil {
		select {
		case <-wait:
		case <-ctx.Done():
		}
	}

	preloaded := true
	res := item.TakePreloaded()
	var err error
	if res == nil {
		preloaded = false
		res, err = q.fetcher.Fetch(ctx, item.URL)
		if err == nil && res == nil {
			err = fmt.Errorf("fetch %s: no resource", item.URL)
		}
	}

	q.mu.Lock()
	if token != q.token {
		q.mu.Unlock()
		if res != nil {
			_ = res.Release()
		}
		return
	}
	if preloaded {
		q.stats.PreloadHits++
	} else {
		q.stats.Fetches++
	}
	if err != nil {
		after := q.failLocked(err)
		q.mu.Unlock()
		after()
		return
	}

	q.current = res
	q.clip = clipReady
	if q.paused {
		q.mu.Unlock()
		q.logger.Debug("Clip parked while paused", "index", i)
		return
	}
	after := q.playLocked(token)
	q.mu.Unlock()
	after()
}

// playLocked hands the current resource to the player (must be called with
// lock held).
func (q *PlaybackQueue) playLocked(token Token) func() {
	i := q.index
	done, err := q.player.Play(q.current)
	if err != nil {
		return q.failLocked(err)
	}

	q.clip = clipPlaying
	q.state = StatePlaying
	q.stats.ClipsPlayed++
	q.opts.Metrics.ClipPlayed()
	go q.watch(token, i, done)

	if q.opts.Preload {
		q.preloadLocked(token, i+1)
	}

	item := q.items[i]
	return func() {
		q.logger.Debug("Playing clip", "index", i, "source", item.Task.Source, "cached", item.FromCache)
		if q.opts.OnClipStart != nil {
			q.opts.OnClipStart(i, item)
		}
	}
}

// watch waits for clip i to end and advances the run.
func (q *PlaybackQueue) watch(token Token, i int, done <-chan error) {
	err, ok := <-done

	q.mu.Lock()
	if token != q.token || i != q.index || q.clip != clipPlaying {
		q.mu.Unlock()
		return
	}
	if !ok {
		err = errInterrupted
	}
	if err != nil {
		after := q.failLocked(err)
		q.mu.Unlock()
		after()
		return
	}

	res := q.current
	q.current = nil
	if q.paused {
		q.clip = clipEnded
		q.mu.Unlock()
		_ = res.Release()
		return
	}
	after := q.advanceLocked(token)
	q.mu.Unlock()

	_ = res.Release()
	after()
}

// advanceLocked moves to the next item or finishes the run (must be called
// with lock held).
func (q *PlaybackQueue) advanceLocked(token Token) func() {
	q.index++
	if q.index >= len(q.items) {
		played := len(q.items)
		q.clip = clipNone
		q.state = StateStopped
		q.token++
		gone := q.haltLocked()
		q.state = StateIdle
		q.stats.Completed++
		return func() {
			releaseAll(gone)
			q.logger.Debug("Queue finished", "clips", played)
			if q.opts.OnFinished != nil {
				q.opts.OnFinished(token)
			}
		}
	}

	q.clip = clipLoading
	q.state = StateLoading
	ctx, i := q.ctx, q.index
	return func() {
		go q.load(ctx, token, i)
	}
}

// failLocked stops the run after a fetch or playback error (must be called
// with lock held).
func (q *PlaybackQueue) failLocked(cause error) func() {
	index, token := q.index, q.token
	q.token++
	gone := q.haltLocked()
	q.state = StateIdle
	q.stats.Failures++
	q.opts.Metrics.PlaybackFailed()

	err := tts.NewTTSError(tts.ErrorCodePlaybackFailure, "audio playback failed",
		fmt.Errorf("%w: %v", tts.ErrPlaybackFailed, cause)).
		WithContext("index", index)
	return func() {
		releaseAll(gone)
		q.logger.Error("Playback failed", "index", index, "error", cause)
		if q.opts.OnError != nil {
			q.opts.OnError(token, err)
		}
	}
}

// preloadLocked fetches item next in the background unless it is already
// resident or being fetched (must be called with lock held).
func (q *PlaybackQueue) preloadLocked(token Token, next int) {
	if next >= len(q.items) {
		return
	}
	item := q.items[next]
	if item.HasPreloaded() || q.preloading[next] != nil {
		return
	}

	ch := make(chan struct{})
	q.preloading[next] = ch
	ctx := q.ctx

	go func() {
		defer close(ch)

		res, err := q.fetcher.Fetch(ctx, item.URL)

		q.mu.Lock()
		if q.preloading[next] == ch {
			delete(q.preloading, next)
		}
		if err == nil && res != nil && token == q.token && item.SetPreloaded(res) {
			q.stats.Preloads++
			res = nil
		}
		q.mu.Unlock()

		if err != nil {
			q.logger.Debug("Preload failed", "index", next, "error", err)
			return
		}
		if res != nil {
			_ = res.Release()
		}
	}()
}

// haltLocked tears down the current run and returns the resources to
// release (must be called with lock held). The caller bumps the token.
func (q *PlaybackQueue) haltLocked() []ttypes.Resource {
	if q.cancel != nil {
		q.cancel()
		q.cancel = nil
	}
	if q.clip == clipPlaying {
		if err := q.player.Stop(); err != nil {
			q.logger.Debug("Stopping player failed", "error", err)
		}
	}

	var gone []ttypes.Resource
	if q.current != nil {
		gone = append(gone, q.current)
		q.current = nil
	}
	for _, item := range q.items {
		if res := item.TakePreloaded(); res != nil {
			gone = append(gone, res)
		}
	}

	q.items = nil
	q.index = 0
	q.clip = clipNone
	q.paused = false
	q.preloading = make(map[int]chan struct{})
	return gone
}

func releaseAll(resources []ttypes.Resource) {
	for _, res := range resources {
		_ = res.Release()
	}
}
