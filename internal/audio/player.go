package audio

import (
	"bytes"
	"errors"
	"fmt"
	"io"
	"sync"
	"sync/atomic"
	"time"

	"github.com/charmbracelet/log"
	"github.com/dgnsrekt/sovits-player/internal/ttypes"
	"github.com/ebitengine/oto/v3"
)

var (
	// ErrNoAudioDevice is returned when the output device cannot be opened
	ErrNoAudioDevice = errors.New("cannot open audio device")

	// ErrPlayerClosed is returned when using a closed player
	ErrPlayerClosed = errors.New("player is closed")

	// oto allows one context per process
	sharedMu      sync.Mutex
	sharedContext *oto.Context
	sharedFormat  Format
)

// Format is the output format of the audio device.
type Format struct {
	SampleRate int
	Channels   int
}

// Player implements ttypes.AudioPlayer on top of oto. The output device is
// opened on the first Play using the format of that clip, unless the
// configuration fixes the format.
type Player struct {
	config PlayerConfig
	logger *log.Logger

	// Current clip
	clip *clip

	// State management
	state  atomic.Int32  // PlayerState from mock_player.go
	volume atomic.Uint64 // volume * 1e6

	// Synchronization
	mu sync.Mutex
}

// output is the part of *oto.Player a clip drives.
type output interface {
	Play()
	Pause()
	IsPlaying() bool
	SetVolume(volume float64)
	Err() error
	Close() error
}

// clip is one Play call. Its done channel receives at most one value and
// is then closed.
type clip struct {
	player output
	stream *AudioStream
	done   chan error
	quit   chan struct{}
	paused atomic.Bool
	once   sync.Once
}

// finish settles the clip. A stopped clip closes done without a value.
func (c *clip) finish(err error, stopped bool) {
	c.once.Do(func() {
		if !stopped {
			c.done <- err
		}
		close(c.done)
		close(c.quit)
	})
}

// AudioStream keeps decoded samples alive while oto reads them.
type AudioStream struct {
	data     []byte
	reader   io.ReadSeeker
	duration time.Duration

	mu        sync.Mutex
	closed    bool
	closeOnce sync.Once
}

// PlayerConfig contains configuration for the audio player.
type PlayerConfig struct {
	SampleRate   int           // 0 = use the first clip's rate
	Channels     int           // 0 = use the first clip's channels
	BufferSize   time.Duration // device buffer, 0 = oto default
	PollInterval time.Duration // end-of-clip polling
	Logger       *log.Logger
}

// DefaultPlayerConfig returns the default player configuration.
func DefaultPlayerConfig() PlayerConfig {
	return PlayerConfig{
		PollInterval: 20 * time.Millisecond,
	}
}

// NewPlayer creates a new audio player with the specified configuration.
func NewPlayer(config PlayerConfig) (*Player, error) {
	if err := validateConfig(config); err != nil {
		return nil, fmt.Errorf("invalid config: %w", err)
	}
	if config.PollInterval <= 0 {
		config.PollInterval = DefaultPlayerConfig().PollInterval
	}
	logger := config.Logger
	if logger == nil {
		logger = log.Default()
	}

	p := &Player{config: config, logger: logger}
	p.state.Store(int32(StateStopped))
	_ = p.SetVolume(1.0)
	return p, nil
}

// validateConfig validates the player configuration.
func validateConfig(config PlayerConfig) error {
	if config.SampleRate != 0 && (config.SampleRate < 8000 || config.SampleRate > 192000) {
		return fmt.Errorf("sample rate must be between 8000 and 192000 Hz, got %d", config.SampleRate)
	}
	if config.Channels < 0 || config.Channels > 2 {
		return fmt.Errorf("channels must be 1 (mono) or 2 (stereo), got %d", config.Channels)
	}
	if config.BufferSize < 0 {
		return errors.New("buffer size must not be negative")
	}
	return nil
}

// Play decodes res and starts playing it, stopping any current clip.
func (p *Player) Play(res ttypes.Resource) (<-chan error, error) {
	if res == nil {
		return nil, errors.New("no clip to play")
	}
	pcm, err := ReadResource(res)
	if err != nil {
		return nil, err
	}
	if len(pcm.Data) == 0 {
		return nil, errors.New("clip has no samples")
	}

	p.mu.Lock()
	defer p.mu.Unlock()

	if PlayerState(p.state.Load()) == StateClosed {
		return nil, ErrPlayerClosed
	}

	ctx, format, err := p.outputFor(pcm)
	if err != nil {
		return nil, err
	}
	pcm = pcm.WithChannels(format.Channels)
	if pcm.SampleRate != format.SampleRate {
		return nil, fmt.Errorf("clip sample rate %d Hz does not match output rate %d Hz", pcm.SampleRate, format.SampleRate)
	}

	p.stopLocked()

	stream := newAudioStream(pcm)
	player := ctx.NewPlayer(stream.reader)
	player.SetVolume(p.getVolume())

	c := &clip{
		player: player,
		stream: stream,
		done:   make(chan error, 1),
		quit:   make(chan struct{}),
	}
	p.clip = c
	player.Play()
	p.state.Store(int32(StatePlaying))

	go p.monitor(c)
	return c.done, nil
}

// outputFor returns the device context, opening it on first use (must be
// called with lock held).
func (p *Player) outputFor(pcm PCM) (*oto.Context, Format, error) {
	sharedMu.Lock()
	defer sharedMu.Unlock()

	if sharedContext != nil {
		return sharedContext, sharedFormat, nil
	}

	format := Format{SampleRate: p.config.SampleRate, Channels: p.config.Channels}
	if format.SampleRate == 0 {
		format.SampleRate = pcm.SampleRate
	}
	if format.Channels == 0 {
		format.Channels = pcm.Channels
	}

	ctx, ready, err := oto.NewContext(&oto.NewContextOptions{
		SampleRate:   format.SampleRate,
		ChannelCount: format.Channels,
		Format:       oto.FormatSignedInt16LE,
		BufferSize:   p.config.BufferSize,
	})
	if err != nil {
		return nil, Format{}, fmt.Errorf("%w: %v", ErrNoAudioDevice, err)
	}
	<-ready

	sharedContext, sharedFormat = ctx, format
	p.logger.Debug("Audio device opened", "rate", format.SampleRate, "channels", format.Channels)
	return ctx, format, nil
}

// monitor reports the natural end of c.
func (p *Player) monitor(c *clip) {
	ticker := time.NewTicker(p.config.PollInterval)
	defer ticker.Stop()

	for {
		select {
		case <-c.quit:
			return
		case <-ticker.C:
			if !p.endedClip(c) {
				continue
			}

			err := c.player.Err()
			_ = c.player.Close()
			c.stream.Close()
			c.finish(err, false)
			return
		}
	}
}

// endedClip reports whether c ran out on its own and, if so, detaches it.
// It holds the lock so Pause and Resume cannot change the clip between the
// device check and the pause check.
func (p *Player) endedClip(c *clip) bool {
	p.mu.Lock()
	defer p.mu.Unlock()

	if c.player.IsPlaying() || c.paused.Load() {
		return false
	}
	if p.clip == c {
		p.clip = nil
		p.state.Store(int32(StateStopped))
	}
	return true
}

// Pause pauses the current playback.
func (p *Player) Pause() error {
	p.mu.Lock()
	defer p.mu.Unlock()

	currentState := PlayerState(p.state.Load())
	if currentState != StatePlaying || p.clip == nil {
		return fmt.Errorf("cannot pause: player is %s", currentState)
	}

	// Mark first so the monitor does not take the pause for an end
	p.clip.paused.Store(true)
	p.clip.player.Pause()
	p.state.Store(int32(StatePaused))
	return nil
}

// Resume resumes paused playback.
func (p *Player) Resume() error {
	p.mu.Lock()
	defer p.mu.Unlock()

	currentState := PlayerState(p.state.Load())
	if currentState != StatePaused || p.clip == nil {
		return fmt.Errorf("cannot resume: player is %s", currentState)
	}

	p.clip.player.Play()
	p.clip.paused.Store(false)
	p.state.Store(int32(StatePlaying))
	return nil
}

// Stop stops playback. The current clip's channel is closed without a value.
func (p *Player) Stop() error {
	p.mu.Lock()
	defer p.mu.Unlock()

	p.stopLocked()
	return nil
}

// stopLocked stops the current clip (must be called with lock held).
func (p *Player) stopLocked() {
	c := p.clip
	if c == nil {
		return
	}
	p.clip = nil

	c.player.Pause()
	_ = c.player.Close()
	c.stream.Close()
	c.finish(nil, true)

	if PlayerState(p.state.Load()) != StateClosed {
		p.state.Store(int32(StateStopped))
	}
}

// IsPlaying returns whether audio is currently playing.
func (p *Player) IsPlaying() bool {
	return PlayerState(p.state.Load()) == StatePlaying
}

// SetVolume sets the playback volume (0.0 to 1.0).
func (p *Player) SetVolume(volume float64) error {
	if volume < 0.0 || volume > 1.0 {
		return fmt.Errorf("volume must be between 0.0 and 1.0, got %f", volume)
	}

	p.volume.Store(uint64(volume * 1000000))

	p.mu.Lock()
	if p.clip != nil {
		p.clip.player.SetVolume(volume)
	}
	p.mu.Unlock()
	return nil
}

// getVolume gets the current volume.
func (p *Player) getVolume() float64 {
	return float64(p.volume.Load()) / 1000000.0
}

// Close stops playback. The device stays open for the process since oto
// cannot reopen it.
func (p *Player) Close() error {
	p.mu.Lock()
	defer p.mu.Unlock()

	p.stopLocked()
	p.state.Store(int32(StateClosed))
	return nil
}

// GetState returns the current player state.
func (p *Player) GetState() PlayerState {
	return PlayerState(p.state.Load())
}

// GetVolume returns the current volume.
func (p *Player) GetVolume() float64 {
	return p.getVolume()
}

// OutputFormat returns the device format once it has been opened.
func (p *Player) OutputFormat() (Format, bool) {
	sharedMu.Lock()
	defer sharedMu.Unlock()
	return sharedFormat, sharedContext != nil
}

func newAudioStream(pcm PCM) *AudioStream {
	return &AudioStream{
		data:     pcm.Data,
		reader:   bytes.NewReader(pcm.Data),
		duration: pcm.Duration(),
	}
}

// Close closes the audio stream and allows GC of data.
func (s *AudioStream) Close() {
	s.closeOnce.Do(func() {
		s.mu.Lock()
		defer s.mu.Unlock()
		s.closed = true
		s.data = nil
		s.reader = nil
	})
}

// IsClosed returns whether the stream is closed.
func (s *AudioStream) IsClosed() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.closed
}

// GetDuration returns the stream duration.
func (s *AudioStream) GetDuration() time.Duration {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.duration
}

var _ ttypes.AudioPlayer = (*Player)(nil)
