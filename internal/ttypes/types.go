// Package ttypes contains shared types and interfaces for the narration pipeline.
// This package is used to break import cycles between tts, engines, audio, cache,
// scheduler, queue and session packages.
package ttypes

import (
	"context"
	"errors"
	"io"
	"sync"
	"sync/atomic"
)

// DoNotPlay is the voice value that suppresses every line of a character.
const DoNotPlay = "_DO_NOT_PLAY_"

// Speed bounds accepted by the synthesis service.
const (
	MinSpeed     = 0.5
	MaxSpeed     = 2.0
	DefaultSpeed = 1.0
)

var (
	// ErrEmptyText indicates a task without speakable text
	ErrEmptyText = errors.New("task text is empty")

	// ErrEmptyVoice indicates a task without a voice
	ErrEmptyVoice = errors.New("task voice is empty")

	// ErrSpeedRange indicates a speed outside MinSpeed..MaxSpeed
	ErrSpeedRange = errors.New("speed must be between 0.5 and 2.0")
)

// Phase represents the user-visible state of a narration session.
type Phase int

const (
	// PhaseIdle indicates nothing has been started yet
	PhaseIdle Phase = iota

	// PhaseGenerating indicates audio is being synthesized
	PhaseGenerating

	// PhasePlaying indicates clips are being played
	PhasePlaying

	// PhasePaused indicates playback is paused mid-queue
	PhasePaused

	// PhaseStopped indicates the last session ended or was stopped
	PhaseStopped
)

// String returns the string representation of the phase
func (p Phase) String() string {
	switch p {
	case PhaseIdle:
		return "idle"
	case PhaseGenerating:
		return "generating"
	case PhasePlaying:
		return "playing"
	case PhasePaused:
		return "paused"
	case PhaseStopped:
		return "stopped"
	default:
		return "unknown"
	}
}

// Active reports whether the phase blocks starting a new session.
func (p Phase) Active() bool {
	return p == PhaseGenerating || p == PhasePlaying || p == PhasePaused
}

// Task is one unit of text to synthesize. Tasks are values; a copy never
// shares state with the original.
type Task struct {
	// Text is the line to speak
	Text string

	// VoiceID names the voice model on the synthesis service
	VoiceID string

	// Version is the API version for the voice; empty means the configured default
	Version string

	// Emotion is the requested emotion; empty means the configured default
	Emotion string

	// Speed is the speaking rate; zero means DefaultSpeed
	Speed float64

	// Source tags where the text came from (character name, "narration", ...)
	Source string

	// BypassCache forces a fresh synthesis
	BypassCache bool
}

// Validate checks that the task can be sent to the synthesis service.
func (t Task) Validate() error {
	if t.Text == "" {
		return ErrEmptyText
	}
	if t.VoiceID == "" {
		return ErrEmptyVoice
	}
	if t.Speed != 0 && (t.Speed < MinSpeed || t.Speed > MaxSpeed) {
		return ErrSpeedRange
	}
	return nil
}

// Suppressed reports whether the task belongs to a muted character.
func (t Task) Suppressed() bool {
	return t.VoiceID == "" || t.VoiceID == DoNotPlay
}

// WithBypass returns a copy of the task that skips cache lookup.
func (t Task) WithBypass() Task {
	t.BypassCache = true
	return t
}

// VoiceSetting is the per-character voice assignment.
type VoiceSetting struct {
	Voice   string   `yaml:"voice" mapstructure:"voice"`
	Version string   `yaml:"version,omitempty" mapstructure:"version"`
	Speed   *float64 `yaml:"speed,omitempty" mapstructure:"speed"`
}

// Suppressed reports whether the setting mutes its character.
func (v VoiceSetting) Suppressed() bool {
	return v.Voice == "" || v.Voice == DoNotPlay
}

// SynthesisRequest is a fully resolved task as sent to the synthesis service.
type SynthesisRequest struct {
	Text     string
	Voice    string
	Version  string
	Emotion  string
	Language string
	Speed    float64

	// Batch is set when the request is part of a multi-task batch
	Batch bool
}

// AudioHandle references a synthesized clip. The release hook runs at most
// once no matter how many times Release is called.
type AudioHandle struct {
	URL string

	release  func()
	once     sync.Once
	released atomic.Bool
}

// NewAudioHandle creates a handle for url. release may be nil.
func NewAudioHandle(url string, release func()) *AudioHandle {
	return &AudioHandle{URL: url, release: release}
}

// Release runs the release hook exactly once.
func (h *AudioHandle) Release() {
	if h == nil {
		return
	}
	h.once.Do(func() {
		h.released.Store(true)
		if h.release != nil {
			h.release()
		}
	})
}

// Released reports whether Release has been called.
func (h *AudioHandle) Released() bool {
	return h != nil && h.released.Load()
}

// Resource is a playable clip held locally.
type Resource interface {
	// Open returns a fresh reader over the clip bytes.
	Open() (io.ReadCloser, error)

	// Size returns the clip size in bytes.
	Size() int64

	// Release frees whatever backs the resource.
	Release() error
}

// PlaybackItem is one generated clip ready to be played.
type PlaybackItem struct {
	Task      Task
	Key       string
	URL       string
	FromCache bool

	mu        sync.Mutex
	preloaded Resource
}

// NewPlaybackItem creates a playback item.
func NewPlaybackItem(task Task, key, url string, fromCache bool) *PlaybackItem {
	return &PlaybackItem{Task: task, Key: key, URL: url, FromCache: fromCache}
}

// SetPreloaded stores a preloaded resource. It returns false when a resource
// is already present, in which case the caller keeps ownership of res.
func (p *PlaybackItem) SetPreloaded(res Resource) bool {
	p.mu.Lock()
	defer p.mu.Unlock()
	if p.preloaded != nil {
		return false
	}
	p.preloaded = res
	return true
}

// TakePreloaded removes and returns the preloaded resource, if any.
func (p *PlaybackItem) TakePreloaded() Resource {
	p.mu.Lock()
	defer p.mu.Unlock()
	res := p.preloaded
	p.preloaded = nil
	return res
}

// HasPreloaded reports whether a preloaded resource is waiting.
func (p *PlaybackItem) HasPreloaded() bool {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.preloaded != nil
}

// ReleasePreloaded drops any preloaded resource.
func (p *PlaybackItem) ReleasePreloaded() {
	if res := p.TakePreloaded(); res != nil {
		_ = res.Release()
	}
}

// Clone returns a copy of the item without its preloaded resource.
func (p *PlaybackItem) Clone() *PlaybackItem {
	return NewPlaybackItem(p.Task, p.Key, p.URL, p.FromCache)
}

// Synthesizer turns a resolved request into a clip handle.
type Synthesizer interface {
	Synthesize(ctx context.Context, req SynthesisRequest) (*AudioHandle, error)
}

// ResourceFetcher turns a clip URL into a playable resource.
type ResourceFetcher interface {
	Fetch(ctx context.Context, url string) (Resource, error)
}

// AudioPlayer defines the contract for audio playback.
// The channel returned by Play yields at most one value, nil when the clip
// ended naturally or an error when playback failed, and is then closed.
// A channel closed without a value means the clip was stopped.
// Implementations must not call back into their caller synchronously.
type AudioPlayer interface {
	// Play starts playback of res.
	Play(res Resource) (<-chan error, error)

	// Pause pauses the current playback.
	Pause() error

	// Resume resumes paused playback.
	Resume() error

	// Stop stops playback and releases resources.
	Stop() error

	// SetVolume sets the playback volume (0.0 to 1.0).
	SetVolume(volume float64) error

	// Close releases audio device and resources.
	Close() error
}
