package audio

import (
	"errors"
	"fmt"
	"io"
	"sync"
	"sync/atomic"
	"time"

	"github.com/dgnsrekt/sovits-player/internal/ttypes"
)

// MockPlayer implements ttypes.AudioPlayer for testing purposes.
// It simulates audio playback without actually producing sound. Clips end
// when the test calls Finish or Fail, or on their own after the configured
// duration when auto-complete is enabled.
type MockPlayer struct {
	// State management
	state atomic.Int32 // PlayerState

	// Current clip
	clip      *mockClip
	audioData []byte
	volume    float64

	// Auto-complete duration, 0 = manual
	autoComplete time.Duration

	// Test callbacks
	callbacks MockCallbacks

	// Synchronization
	mu sync.Mutex

	// Test configuration
	playErr error

	// Metrics for testing
	playCount   atomic.Int64
	pauseCount  atomic.Int64
	resumeCount atomic.Int64
	stopCount   atomic.Int64
}

type mockClip struct {
	done    chan error
	once    sync.Once
	stopCh  chan struct{}
	elapsed time.Duration
	started time.Time
	paused  bool
}

func (c *mockClip) finish(err error, stopped bool) {
	c.once.Do(func() {
		if !stopped {
			c.done <- err
		}
		close(c.done)
		close(c.stopCh)
	})
}

// PlayerState represents the current state of the player.
type PlayerState int32

const (
	StateStopped PlayerState = iota
	StatePlaying
	StatePaused
	StateClosed
)

// String returns the state name
func (s PlayerState) String() string {
	switch s {
	case StateStopped:
		return "stopped"
	case StatePlaying:
		return "playing"
	case StatePaused:
		return "paused"
	case StateClosed:
		return "closed"
	default:
		return "unknown"
	}
}

// MockCallbacks provides hooks for testing. They run with the player's
// lock released.
type MockCallbacks struct {
	OnPlay   func(res ttypes.Resource)
	OnPause  func()
	OnResume func()
	OnStop   func()
	OnClose  func()
}

// DefaultMockPlayer creates a new mock player with default settings.
func DefaultMockPlayer() *MockPlayer {
	mp := &MockPlayer{volume: 1.0}
	mp.state.Store(int32(StateStopped))
	return mp
}

// NewMockPlayer creates a new mock player with custom callbacks.
func NewMockPlayer(callbacks MockCallbacks) *MockPlayer {
	mp := DefaultMockPlayer()
	mp.callbacks = callbacks
	return mp
}

// Play starts a simulated clip.
func (mp *MockPlayer) Play(res ttypes.Resource) (<-chan error, error) {
	if res == nil {
		return nil, errors.New("no clip to play")
	}

	mp.mu.Lock()

	if PlayerState(mp.state.Load()) == StateClosed {
		mp.mu.Unlock()
		return nil, ErrPlayerClosed
	}
	if mp.playErr != nil {
		err := mp.playErr
		mp.mu.Unlock()
		return nil, err
	}

	// Keep the bytes for inspection
	data, err := readAllResource(res)
	if err != nil {
		mp.mu.Unlock()
		return nil, err
	}

	mp.stopLocked()

	c := &mockClip{
		done:    make(chan error, 1),
		stopCh:  make(chan struct{}),
		started: time.Now(),
	}
	mp.clip = c
	mp.audioData = data
	mp.state.Store(int32(StatePlaying))
	mp.playCount.Add(1)

	if mp.autoComplete > 0 {
		go mp.simulatePlayback(c, mp.autoComplete)
	}
	mp.mu.Unlock()

	if mp.callbacks.OnPlay != nil {
		mp.callbacks.OnPlay(res)
	}
	return c.done, nil
}

func readAllResource(res ttypes.Resource) ([]byte, error) {
	rc, err := res.Open()
	if err != nil {
		return nil, fmt.Errorf("open clip: %w", err)
	}
	defer rc.Close()
	return io.ReadAll(rc)
}

// Pause pauses the current playback.
func (mp *MockPlayer) Pause() error {
	mp.mu.Lock()
	currentState := PlayerState(mp.state.Load())
	if currentState != StatePlaying {
		mp.mu.Unlock()
		return fmt.Errorf("cannot pause: player is %s", currentState)
	}

	mp.clip.elapsed += time.Since(mp.clip.started)
	mp.clip.paused = true
	mp.state.Store(int32(StatePaused))
	mp.pauseCount.Add(1)
	mp.mu.Unlock()

	if mp.callbacks.OnPause != nil {
		mp.callbacks.OnPause()
	}
	return nil
}

// Resume resumes paused playback.
func (mp *MockPlayer) Resume() error {
	mp.mu.Lock()
	currentState := PlayerState(mp.state.Load())
	if currentState != StatePaused {
		mp.mu.Unlock()
		return fmt.Errorf("cannot resume: player is %s", currentState)
	}

	mp.clip.started = time.Now()
	mp.clip.paused = false
	mp.state.Store(int32(StatePlaying))
	mp.resumeCount.Add(1)
	mp.mu.Unlock()

	if mp.callbacks.OnResume != nil {
		mp.callbacks.OnResume()
	}
	return nil
}

// Stop stops playback. The clip's channel is closed without a value.
func (mp *MockPlayer) Stop() error {
	mp.mu.Lock()
	stopped := mp.stopLocked()
	mp.mu.Unlock()

	if stopped && mp.callbacks.OnStop != nil {
		mp.callbacks.OnStop()
	}
	return nil
}

// stopLocked is the internal stop implementation (must be called with lock held).
func (mp *MockPlayer) stopLocked() bool {
	c := mp.clip
	if c == nil {
		return false
	}
	mp.clip = nil
	mp.audioData = nil
	c.finish(nil, true)
	if PlayerState(mp.state.Load()) != StateClosed {
		mp.state.Store(int32(StateStopped))
	}
	mp.stopCount.Add(1)
	return true
}

// Finish ends the current clip naturally.
func (mp *MockPlayer) Finish() bool {
	return mp.end(nil)
}

// Fail ends the current clip with err.
func (mp *MockPlayer) Fail(err error) bool {
	if err == nil {
		err = errors.New("simulated playback error")
	}
	return mp.end(err)
}

func (mp *MockPlayer) end(err error) bool {
	mp.mu.Lock()
	defer mp.mu.Unlock()

	c := mp.clip
	if c == nil {
		return false
	}
	mp.clip = nil
	mp.audioData = nil
	mp.state.Store(int32(StateStopped))
	c.finish(err, false)
	return true
}

// IsPlaying returns whether audio is currently playing.
func (mp *MockPlayer) IsPlaying() bool {
	return PlayerState(mp.state.Load()) == StatePlaying
}

// GetPosition returns the simulated playback position.
func (mp *MockPlayer) GetPosition() time.Duration {
	mp.mu.Lock()
	defer mp.mu.Unlock()

	c := mp.clip
	if c == nil {
		return 0
	}
	if c.paused {
		return c.elapsed
	}
	return c.elapsed + time.Since(c.started)
}

// SetVolume sets the playback volume (0.0 to 1.0).
func (mp *MockPlayer) SetVolume(volume float64) error {
	if volume < 0.0 || volume > 1.0 {
		return fmt.Errorf("volume must be between 0.0 and 1.0, got %f", volume)
	}

	mp.mu.Lock()
	defer mp.mu.Unlock()
	mp.volume = volume
	return nil
}

// Close stops playback and rejects further clips.
func (mp *MockPlayer) Close() error {
	mp.mu.Lock()
	mp.stopLocked()
	mp.state.Store(int32(StateClosed))
	mp.mu.Unlock()

	if mp.callbacks.OnClose != nil {
		mp.callbacks.OnClose()
	}
	return nil
}

// simulatePlayback ends c after d of unpaused playback.
func (mp *MockPlayer) simulatePlayback(c *mockClip, d time.Duration) {
	ticker := time.NewTicker(5 * time.Millisecond)
	defer ticker.Stop()

	for {
		select {
		case <-c.stopCh:
			return
		case <-ticker.C:
			mp.mu.Lock()
			if mp.clip != c {
				mp.mu.Unlock()
				return
			}
			played := c.elapsed
			if !c.paused {
				played += time.Since(c.started)
			}
			if played >= d {
				mp.clip = nil
				mp.audioData = nil
				mp.state.Store(int32(StateStopped))
				c.finish(nil, false)
				mp.mu.Unlock()
				return
			}
			mp.mu.Unlock()
		}
	}
}

// Test helper methods

// GetState returns the current player state for testing.
func (mp *MockPlayer) GetState() PlayerState {
	return PlayerState(mp.state.Load())
}

// GetVolume returns the current volume for testing.
func (mp *MockPlayer) GetVolume() float64 {
	mp.mu.Lock()
	defer mp.mu.Unlock()
	return mp.volume
}

// SetAutoComplete makes every later clip end on its own after d.
// Zero returns to manual mode.
func (mp *MockPlayer) SetAutoComplete(d time.Duration) {
	mp.mu.Lock()
	defer mp.mu.Unlock()
	mp.autoComplete = d
}

// SetPlayError makes Play fail with err. Nil clears it.
func (mp *MockPlayer) SetPlayError(err error) {
	mp.mu.Lock()
	defer mp.mu.Unlock()
	mp.playErr = err
}

// GetMetrics returns playback metrics for testing.
func (mp *MockPlayer) GetMetrics() MockPlayerMetrics {
	return MockPlayerMetrics{
		PlayCount:   mp.playCount.Load(),
		PauseCount:  mp.pauseCount.Load(),
		ResumeCount: mp.resumeCount.Load(),
		StopCount:   mp.stopCount.Load(),
	}
}

// MockPlayerMetrics contains playback metrics for testing.
type MockPlayerMetrics struct {
	PlayCount   int64
	PauseCount  int64
	ResumeCount int64
	StopCount   int64
}

// WaitForPlays waits until at least n clips were started.
func (mp *MockPlayer) WaitForPlays(n int64, timeout time.Duration) bool {
	deadline := time.Now().Add(timeout)
	for mp.playCount.Load() < n {
		if time.Now().After(deadline) {
			return false
		}
		time.Sleep(time.Millisecond)
	}
	return true
}

// GetAudioData returns the current clip's bytes for testing.
func (mp *MockPlayer) GetAudioData() []byte {
	mp.mu.Lock()
	defer mp.mu.Unlock()
	if mp.audioData == nil {
		return nil
	}
	data := make([]byte, len(mp.audioData))
	copy(data, mp.audioData)
	return data
}

var _ ttypes.AudioPlayer = (*MockPlayer)(nil)
