package scheduler

import (
	"context"
	"fmt"
	"sync/atomic"
	"time"

	"github.com/charmbracelet/log"
	"github.com/dgnsrekt/sovits-player/internal/cache"
	"github.com/dgnsrekt/sovits-player/internal/tts"
	"github.com/dgnsrekt/sovits-player/internal/ttypes"
	"golang.org/x/sync/errgroup"
	"golang.org/x/sync/semaphore"
)

// DefaultMaxConcurrent is the number of synthesis calls allowed at once.
const DefaultMaxConcurrent = 3

// CatalogSource provides the voice catalog for an API version.
type CatalogSource interface {
	Catalog(version string) *tts.Catalog
}

// Config holds scheduler settings.
type Config struct {
	// Maximum synthesis calls in flight across all batches
	MaxConcurrent int

	// Values for task fields left empty
	Defaults tts.Defaults
}

// Scheduler generates playback items for tasks.
type Scheduler struct {
	engine   ttypes.Synthesizer
	cache    *cache.AudioCache
	inflight *cache.InFlight
	catalogs CatalogSource
	config   Config

	// Admission control
	permits *semaphore.Weighted
	active  atomic.Int32
	peak    atomic.Int32

	metrics *tts.Metrics
	records *tts.MetricsLogger
	logger  *log.Logger
}

// Option configures a Scheduler.
type Option func(*Scheduler)

// WithMetrics records synthesis sharing.
func WithMetrics(m *tts.Metrics) Option {
	return func(s *Scheduler) { s.metrics = m }
}

// WithLogger sets the logger.
func WithLogger(l *log.Logger) Option {
	return func(s *Scheduler) { s.logger = l }
}

// WithRecords keeps per-request timing records.
func WithRecords(ml *tts.MetricsLogger) Option {
	return func(s *Scheduler) { s.records = ml }
}

// New creates a scheduler. catalogs may be nil, in which case emotions are
// never normalized.
func New(engine ttypes.Synthesizer, audioCache *cache.AudioCache, catalogs CatalogSource, config Config, opts ...Option) *Scheduler {
	if config.MaxConcurrent <= 0 {
		config.MaxConcurrent = DefaultMaxConcurrent
	}
	if audioCache == nil {
		audioCache = cache.NewAudioCache(cache.DefaultConfig())
	}

	s := &Scheduler{
		engine:   engine,
		cache:    audioCache,
		inflight: cache.NewInFlight(),
		catalogs: catalogs,
		config:   config,
		permits:  semaphore.NewWeighted(int64(config.MaxConcurrent)),
		logger:   log.Default(),
	}
	for _, opt := range opts {
		opt(s)
	}
	if s.records == nil {
		s.records = tts.NewMetricsLogger(s.logger, false)
	}
	return s
}

// GenerateAll generates every task and returns the successful items in task
// order. Failed tasks are logged and omitted.
func (s *Scheduler) GenerateAll(ctx context.Context, tasks []ttypes.Task) []*ttypes.PlaybackItem {
	results := make([]*ttypes.PlaybackItem, len(tasks))
	batch := len(tasks) > 1

	var g errgroup.Group
	for i, task := range tasks {
		g.Go(func() error {
			item, err := s.generate(ctx, task, batch)
			if err != nil {
				s.logger.Warn("Dropping task",
					"index", i,
					"source", task.Source,
					"voice", task.VoiceID,
					"code", tts.Code(err),
					"error", err)
				return nil
			}
			results[i] = item
			return nil
		})
	}
	_ = g.Wait()

	items := make([]*ttypes.PlaybackItem, 0, len(results))
	for _, item := range results {
		if item != nil {
			items = append(items, item)
		}
	}
	return items
}

// Generate generates a single task.
func (s *Scheduler) Generate(ctx context.Context, task ttypes.Task) (*ttypes.PlaybackItem, error) {
	return s.generate(ctx, task, false)
}

func (s *Scheduler) generate(ctx context.Context, task ttypes.Task, batch bool) (*ttypes.PlaybackItem, error) {
	r, err := s.resolve(task)
	if err != nil {
		return nil, err
	}
	r.Request.Batch = batch

	start := time.Now()
	record := tts.SynthesisRecord{
		Voice:    r.Request.Voice,
		Emotion:  r.Request.Emotion,
		Language: r.Request.Language,
		Text:     r.Request.Text,
		Start:    start,
	}

	if task.BypassCache {
		handle, err := s.synthesize(ctx, r)
		record.Duration, record.Err = time.Since(start), err
		s.records.Record(record)
		if err != nil {
			return nil, err
		}
		return ttypes.NewPlaybackItem(task, r.Key, handle.URL, false), nil
	}

	if entry, ok := s.cache.Lookup(r.Key); ok {
		record.Duration, record.CacheHit = time.Since(start), true
		s.records.Record(record)
		return ttypes.NewPlaybackItem(task, r.Key, entry.Handle.URL, true), nil
	}

	res, shared, err := s.inflight.Do(ctx, r.Key, func(ctx context.Context) (cache.Shared, error) {
		// A call for this key may have settled between the lookup and now
		if entry, ok := s.cache.Peek(r.Key); ok {
			return cache.Shared{Handle: entry.Handle, FromCache: true}, nil
		}
		handle, err := s.synthesize(ctx, r)
		return cache.Shared{Handle: handle}, err
	})
	if shared {
		s.metrics.Shared()
	}

	record.Duration, record.Shared, record.CacheHit, record.Err = time.Since(start), shared, res.FromCache, err
	s.records.Record(record)
	if err != nil {
		return nil, err
	}
	return ttypes.NewPlaybackItem(task, r.Key, res.Handle.URL, res.FromCache), nil
}

// resolve applies defaults and emotion normalization against the catalog of
// the task's effective version.
func (s *Scheduler) resolve(task ttypes.Task) (tts.Resolved, error) {
	var catalog *tts.Catalog
	if s.catalogs != nil {
		version := task.Version
		if version == "" {
			version = s.config.Defaults.Version
		}
		catalog = s.catalogs.Catalog(version)
	}
	return tts.Resolve(task, catalog, s.config.Defaults)
}

// synthesize waits for a permit, calls the engine and stores the result.
// Cancellation only aborts the wait; an admitted call runs to completion and
// its result is cached even if nobody consumes it.
func (s *Scheduler) synthesize(ctx context.Context, r tts.Resolved) (*ttypes.AudioHandle, error) {
	if err := s.permits.Acquire(ctx, 1); err != nil {
		return nil, fmt.Errorf("waiting for synthesis slot: %w", err)
	}

	n := s.active.Add(1)
	for {
		p := s.peak.Load()
		if n <= p || s.peak.CompareAndSwap(p, n) {
			break
		}
	}

	handle, err := s.engine.Synthesize(context.WithoutCancel(ctx), r.Request)

	s.active.Add(-1)
	s.permits.Release(1)

	if err != nil {
		return nil, err
	}
	if handle == nil {
		return nil, tts.NewTTSError(tts.ErrorCodeSynthesisRejected, "engine returned no clip", tts.ErrSynthesisRejected)
	}
	if err := s.cache.Store(r.Key, handle); err != nil {
		return nil, fmt.Errorf("caching clip: %w", err)
	}
	return handle, nil
}

// Active returns the number of synthesis calls currently running.
func (s *Scheduler) Active() int {
	return int(s.active.Load())
}

// PeakActive returns the highest number of concurrent synthesis calls seen.
func (s *Scheduler) PeakActive() int {
	return int(s.peak.Load())
}

// Pending returns the number of keys with a shared call outstanding.
func (s *Scheduler) Pending() int {
	return s.inflight.Pending()
}

// Cache returns the audio cache.
func (s *Scheduler) Cache() *cache.AudioCache {
	return s.cache
}
