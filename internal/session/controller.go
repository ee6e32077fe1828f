package session

import (
	"context"
	"errors"
	"fmt"
	"sync"

	"github.com/charmbracelet/log"
	"github.com/dgnsrekt/sovits-player/internal/queue"
	"github.com/dgnsrekt/sovits-player/internal/tts"
	"github.com/dgnsrekt/sovits-player/internal/ttypes"
	"github.com/google/uuid"
)

var (
	// ErrNotPlaying is returned when pausing while nothing plays
	ErrNotPlaying = errors.New("nothing is playing")

	// ErrNotPaused is returned when resuming while nothing is paused
	ErrNotPaused = errors.New("playback is not paused")
)

// Generator turns tasks into playable items, dropping failed tasks and
// keeping input order.
type Generator interface {
	GenerateAll(ctx context.Context, tasks []ttypes.Task) []*ttypes.PlaybackItem
}

// CatalogSource reports whether the voice catalog is available.
type CatalogSource interface {
	Loaded() bool
}

// Options configures a Controller.
type Options struct {
	// Fetch the next clip while the current one plays
	Preload bool

	// Called when a clip starts playing
	OnClipStart func(index int, item *ttypes.PlaybackItem)

	// Called after every phase change, without the controller lock held
	OnPhase func(ttypes.Phase)

	Metrics *tts.Metrics
	Logger  *log.Logger
}

// State is a snapshot of the session.
type State struct {
	Phase          ttypes.Phase
	SessionID      string
	PlaybackIndex  int
	QueueLength    int
	PauseRequested bool
	LastCompleted  []*ttypes.PlaybackItem
}

// Controller is the session state machine:
// Idle -> Generating -> Playing <-> Paused -> Stopped.
type Controller struct {
	gen      Generator
	catalogs CatalogSource
	notifier Notifier
	queue    *queue.PlaybackQueue
	opts     Options
	logger   *log.Logger

	mu        sync.Mutex
	phase     ttypes.Phase
	sessionID string

	// generation is bumped by Stop so a running generation is discarded
	generation uint64

	// run is the queue token of the current playback
	run queue.Token

	// pause requested while generating
	pauseRequested bool

	last []*ttypes.PlaybackItem
}

// New creates an idle controller. The playback queue is built on player
// and fetcher and reports back to the controller.
func New(gen Generator, player ttypes.AudioPlayer, fetcher ttypes.ResourceFetcher, catalogs CatalogSource, notifier Notifier, opts Options) *Controller {
	logger := opts.Logger
	if logger == nil {
		logger = log.Default()
	}
	if notifier == nil {
		notifier = discard{}
	}

	c := &Controller{
		gen:      gen,
		catalogs: catalogs,
		notifier: notifier,
		opts:     opts,
		logger:   logger,
	}
	c.queue = queue.NewPlaybackQueue(player, fetcher, queue.Options{
		Preload:     opts.Preload,
		OnFinished:  c.finished,
		OnError:     c.failed,
		OnClipStart: opts.OnClipStart,
		Metrics:     opts.Metrics,
		Logger:      logger,
	})
	return c
}

// Toggle is the play button: it pauses a playing session, resumes a paused
// one and starts tasks otherwise.
func (c *Controller) Toggle(ctx context.Context, tasks []ttypes.Task) error {
	c.mu.Lock()
	phase, pending := c.phase, c.pauseRequested
	c.mu.Unlock()

	switch {
	case phase == ttypes.PhasePaused, phase == ttypes.PhaseGenerating && pending:
		return c.Resume()
	case phase == ttypes.PhasePlaying, phase == ttypes.PhaseGenerating:
		return c.Pause()
	default:
		return c.Start(ctx, tasks)
	}
}

// Start generates tasks and plays the results. It blocks until playback
// has been handed to the queue, the batch failed or the session was
// stopped.
func (c *Controller) Start(ctx context.Context, tasks []ttypes.Task) error {
	return c.generateAndPlay(ctx, tasks, false)
}

// Regenerate is Start with the cache bypassed for every task.
func (c *Controller) Regenerate(ctx context.Context, tasks []ttypes.Task) error {
	return c.generateAndPlay(ctx, tasks, true)
}

func (c *Controller) generateAndPlay(ctx context.Context, tasks []ttypes.Task, bypass bool) error {
	c.mu.Lock()
	if err := c.checkIdleLocked(); err != nil {
		c.mu.Unlock()
		return c.reject(err)
	}
	if c.catalogs == nil || !c.catalogs.Loaded() {
		c.mu.Unlock()
		return c.reject(tts.NewTTSError(tts.ErrorCodeCatalogEmpty,
			"voice catalog not loaded, check the API address", tts.ErrCatalogEmpty))
	}

	batch := playable(tasks, bypass)
	if len(batch) == 0 {
		c.mu.Unlock()
		return c.reject(tts.NewTTSError(tts.ErrorCodeNoTasks,
			"no speakable text found", tts.ErrNoTasks))
	}

	c.generation++
	generation := c.generation
	c.sessionID = uuid.NewString()
	sessionID := c.sessionID
	c.pauseRequested = false
	c.phase = ttypes.PhaseGenerating
	c.mu.Unlock()

	c.changed(ttypes.PhaseGenerating)
	c.logger.Info("Generating audio", "session", sessionID, "tasks", len(batch), "bypass", bypass)

	items := c.gen.GenerateAll(ctx, batch)

	c.mu.Lock()
	if generation != c.generation {
		c.mu.Unlock()
		c.logger.Debug("Generation discarded", "session", sessionID, "items", len(items))
		return nil
	}

	if len(items) == 0 {
		c.phase = ttypes.PhaseStopped
		c.pauseRequested = false
		c.mu.Unlock()

		err := tts.NewTTSError(tts.ErrorCodeBatchExhausted,
			"all audio generation failed, check the TTS server", tts.ErrBatchExhausted).
			WithContext("tasks", len(batch))
		c.changed(ttypes.PhaseStopped)
		c.logger.Error("Batch exhausted", "session", sessionID, "tasks", len(batch))
		c.notifier.Notify(Notification{Level: LevelError, Message: tts.UserMessage(err), Err: err})
		return err
	}

	c.last = items
	phase := c.playLocked(items)
	c.mu.Unlock()

	c.changed(phase)
	if dropped := len(batch) - len(items); dropped > 0 {
		c.notifier.Notify(Notification{
			Level:   LevelWarn,
			Message: fmt.Sprintf("%d of %d lines could not be generated", dropped, len(batch)),
		})
	}
	c.logger.Info("Playback started", "session", sessionID, "clips", len(items))
	return nil
}

// Replay plays the last generated batch again without generating.
func (c *Controller) Replay() error {
	c.mu.Lock()
	if err := c.checkIdleLocked(); err != nil {
		c.mu.Unlock()
		return c.reject(err)
	}
	if len(c.last) == 0 {
		c.mu.Unlock()
		return c.reject(tts.NewTTSError(tts.ErrorCodeNoTasks,
			"nothing to replay yet", tts.ErrNothingToReplay))
	}

	c.generation++
	c.sessionID = uuid.NewString()
	c.pauseRequested = false
	sessionID, clips := c.sessionID, len(c.last)
	phase := c.playLocked(c.last)
	c.mu.Unlock()

	c.changed(phase)
	c.logger.Info("Replaying", "session", sessionID, "clips", clips)
	return nil
}

// playLocked hands fresh copies of items to the queue (must be called with
// lock held). Starting the queue never calls back synchronously.
func (c *Controller) playLocked(items []*ttypes.PlaybackItem) ttypes.Phase {
	run := make([]*ttypes.PlaybackItem, len(items))
	for i, item := range items {
		run[i] = item.Clone()
	}

	if c.pauseRequested {
		c.pauseRequested = false
		c.run = c.queue.StartPaused(run)
		c.phase = ttypes.PhasePaused
		return c.phase
	}
	c.run = c.queue.Start(run)
	c.phase = ttypes.PhasePlaying
	return c.phase
}

// Pause pauses playback. While generating, playback starts paused.
func (c *Controller) Pause() error {
	c.mu.Lock()
	switch c.phase {
	case ttypes.PhaseGenerating:
		c.pauseRequested = true
		c.mu.Unlock()
		return nil
	case ttypes.PhasePlaying:
	default:
		c.mu.Unlock()
		return ErrNotPlaying
	}

	if err := c.queue.Pause(); err != nil {
		c.mu.Unlock()
		return fmt.Errorf("pause: %w", err)
	}
	c.phase = ttypes.PhasePaused
	c.mu.Unlock()

	c.changed(ttypes.PhasePaused)
	return nil
}

// Resume continues paused playback.
func (c *Controller) Resume() error {
	c.mu.Lock()
	switch {
	case c.phase == ttypes.PhaseGenerating && c.pauseRequested:
		c.pauseRequested = false
		c.mu.Unlock()
		return nil
	case c.phase != ttypes.PhasePaused:
		c.mu.Unlock()
		return ErrNotPaused
	}
	c.phase = ttypes.PhasePlaying
	run := c.run
	c.mu.Unlock()

	// The queue may finish the run from inside Resume
	if err := c.queue.Resume(); err != nil {
		c.mu.Lock()
		if c.run == run && c.phase == ttypes.PhasePlaying {
			c.phase = ttypes.PhasePaused
		}
		c.mu.Unlock()
		return fmt.Errorf("resume: %w", err)
	}

	c.changed(c.Phase())
	return nil
}

// Stop ends the session. A running generation is discarded when it
// completes; its clips stay cached.
func (c *Controller) Stop() {
	c.mu.Lock()
	c.generation++
	c.pauseRequested = false
	wasActive := c.phase.Active()
	if wasActive {
		c.phase = ttypes.PhaseStopped
	}
	c.queue.Stop()
	sessionID := c.sessionID
	c.mu.Unlock()

	if wasActive {
		c.changed(ttypes.PhaseStopped)
		c.logger.Info("Stopped", "session", sessionID)
	}
}

// finished is the queue's end-of-run hook.
func (c *Controller) finished(run queue.Token) {
	c.mu.Lock()
	if run != c.run || !c.phase.Active() {
		c.mu.Unlock()
		return
	}
	c.phase = ttypes.PhaseStopped
	sessionID := c.sessionID
	c.mu.Unlock()

	c.changed(ttypes.PhaseStopped)
	c.logger.Info("Playback finished", "session", sessionID)
	c.notifier.Notify(Notification{Level: LevelInfo, Message: "Playback finished"})
}

// failed is the queue's failure hook.
func (c *Controller) failed(run queue.Token, err error) {
	c.mu.Lock()
	if run != c.run || !c.phase.Active() {
		c.mu.Unlock()
		return
	}
	c.phase = ttypes.PhaseStopped
	sessionID := c.sessionID
	c.mu.Unlock()

	c.changed(ttypes.PhaseStopped)
	c.logger.Error("Playback failed", "session", sessionID, "error", err)
	c.notifier.Notify(Notification{Level: LevelError, Message: tts.UserMessage(err), Err: err})
}

// checkIdleLocked rejects starting while a session is active (must be
// called with lock held).
func (c *Controller) checkIdleLocked() error {
	if c.phase.Active() {
		return tts.NewTTSError(tts.ErrorCodeBusy,
			fmt.Sprintf("already %s, stop first", c.phase), tts.ErrBusy)
	}
	return nil
}

func (c *Controller) reject(err error) error {
	c.logger.Warn("Request rejected", "error", err)
	c.notifier.Notify(Notification{Level: LevelWarn, Message: tts.UserMessage(err), Err: err})
	return err
}

func (c *Controller) changed(phase ttypes.Phase) {
	if c.opts.OnPhase != nil {
		c.opts.OnPhase(phase)
	}
}

// playable drops suppressed tasks and marks the rest for bypass if asked.
func playable(tasks []ttypes.Task, bypass bool) []ttypes.Task {
	out := make([]ttypes.Task, 0, len(tasks))
	for _, t := range tasks {
		if t.Suppressed() {
			continue
		}
		if bypass {
			t = t.WithBypass()
		}
		out = append(out, t)
	}
	return out
}

// Phase returns the current phase.
func (c *Controller) Phase() ttypes.Phase {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.phase
}

// IsPlaying reports whether a session is generating, playing or paused.
func (c *Controller) IsPlaying() bool {
	return c.Phase().Active()
}

// IsPaused reports whether playback is paused or will start paused.
func (c *Controller) IsPaused() bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.phase == ttypes.PhasePaused || c.pauseRequested
}

// CurrentIndex returns the index of the clip being played.
func (c *Controller) CurrentIndex() int {
	return c.queue.CurrentIndex()
}

// QueueLength returns the number of clips in the current run.
func (c *Controller) QueueLength() int {
	return c.queue.Len()
}

// CanReplay reports whether Replay would start.
func (c *Controller) CanReplay() bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	return len(c.last) > 0 && !c.phase.Active()
}

// Queue returns the playback queue.
func (c *Controller) Queue() *queue.PlaybackQueue {
	return c.queue
}

// Snapshot returns the current session state.
func (c *Controller) Snapshot() State {
	c.mu.Lock()
	s := State{
		Phase:          c.phase,
		SessionID:      c.sessionID,
		PauseRequested: c.pauseRequested,
		LastCompleted:  append([]*ttypes.PlaybackItem(nil), c.last...),
	}
	c.mu.Unlock()

	s.PlaybackIndex = c.queue.CurrentIndex()
	s.QueueLength = c.queue.Len()
	return s
}
