package main

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"sync"
	"time"

	"github.com/charmbracelet/log"
	"github.com/dgnsrekt/sovits-player/internal/audio"
	"github.com/dgnsrekt/sovits-player/internal/cache"
	"github.com/dgnsrekt/sovits-player/internal/detect"
	"github.com/dgnsrekt/sovits-player/internal/scheduler"
	"github.com/dgnsrekt/sovits-player/internal/session"
	"github.com/dgnsrekt/sovits-player/internal/tts"
	"github.com/dgnsrekt/sovits-player/internal/tts/engines"
	"github.com/dgnsrekt/sovits-player/internal/ttypes"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// app wires the pipeline: engine -> catalog -> cache -> scheduler ->
// session -> player.
type app struct {
	cfg        *tts.Config
	configPath string

	registry *prometheus.Registry
	metrics  *tts.Metrics
	records  *tts.MetricsLogger

	engine    *engines.SovitsEngine
	spool     *cache.SpoolStore
	catalogs  *tts.CatalogCache
	clips     *cache.AudioCache
	scheduler *scheduler.Scheduler
	player    ttypes.AudioPlayer
	session   *session.Controller

	detector *detect.Detector
	speed    *tts.SpeedController
	events   *relay

	metricsSrv *http.Server

	// mu guards text and the character table in cfg
	mu   sync.Mutex
	text string
}

// newApp builds the pipeline. player may be nil to use the audio device.
func newApp(cfg *tts.Config, configPath string, player ttypes.AudioPlayer) (*app, error) {
	mode, err := detect.ParseMode(cfg.Detection.Mode)
	if err != nil {
		return nil, err
	}
	quotes, err := detect.ParseQuoteStyle(cfg.Detection.QuotationStyle)
	if err != nil {
		return nil, err
	}

	a := &app{
		cfg:        cfg,
		configPath: configPath,
		registry:   prometheus.NewRegistry(),
		detector:   detect.New(mode, detect.WithQuoteStyle(quotes)),
		speed:      tts.NewSpeedController(cfg.Generation.Speed),
		events:     &relay{},
	}
	a.registry.MustRegister(collectors.NewGoCollector())
	a.metrics = tts.NewMetrics(a.registry)
	a.records = tts.NewMetricsLogger(log.WithPrefix("synthesis"), log.GetLevel() <= log.DebugLevel)

	var store cache.ResourceStore = cache.MemoryStore{}
	if cfg.Playback.SpoolDir != "" {
		a.spool, err = cache.NewSpoolStore(cfg.Playback.SpoolDir, 0)
		if err != nil {
			return nil, err
		}
		store = a.spool
	}

	a.engine, err = engines.NewSovitsEngine(engines.SovitsConfig{
		BaseURL:           cfg.API.BaseURL,
		Timeout:           cfg.API.Timeout,
		CatalogTimeout:    cfg.API.CatalogTimeout,
		RequestsPerMinute: cfg.API.RequestsPerMinute,
		TextSplitMethod:   cfg.API.TextSplitMethod,
		BatchSize:         cfg.API.BatchSize,
		Store:             store,
		Metrics:           a.metrics,
		Logger:            log.WithPrefix("engine"),
	})
	if err != nil {
		a.Close()
		return nil, err
	}

	a.catalogs, err = tts.NewCatalogCache(a.engine, cfg.API.Version, 0)
	if err != nil {
		a.Close()
		return nil, err
	}

	a.clips = cache.NewAudioCache(cache.Config{
		TTL:        cfg.Cache.TTL,
		MaxEntries: cfg.Cache.MaxEntries,
		TrimTo:     cfg.Cache.TrimTo,
	}, cache.WithMetrics(a.metrics), cache.WithLogger(log.WithPrefix("cache")))

	a.scheduler = scheduler.New(a.engine, a.clips, a.catalogs, scheduler.Config{
		MaxConcurrent: cfg.Generation.MaxConcurrent,
		Defaults:      cfg.Defaults(),
	},
		scheduler.WithMetrics(a.metrics),
		scheduler.WithRecords(a.records),
		scheduler.WithLogger(log.WithPrefix("scheduler")),
	)

	if player == nil {
		p, err := audio.NewPlayer(audio.PlayerConfig{Logger: log.WithPrefix("audio")})
		if err != nil {
			a.Close()
			return nil, err
		}
		player = p
	}
	if err := player.SetVolume(cfg.Playback.Volume); err != nil {
		log.Warn("Ignoring volume", "err", err)
	}
	a.player = player

	a.session = session.New(a.scheduler, a.player, a.engine, a.catalogs, a.events, session.Options{
		Preload:     cfg.Playback.Preload,
		OnClipStart: a.events.clipStarted,
		OnPhase:     a.events.phaseChanged,
		Metrics:     a.metrics,
		Logger:      log.WithPrefix("session"),
	})
	return a, nil
}

// loadCatalogs fetches the default version's voices and those of every
// version a character is pinned to.
func (a *app) loadCatalogs(ctx context.Context) error {
	if _, err := a.catalogs.Load(ctx, ""); err != nil {
		return err
	}

	a.mu.Lock()
	versions := map[string]struct{}{}
	for _, setting := range a.cfg.Detection.Characters {
		if setting.Version != "" && setting.Version != a.catalogs.DefaultVersion() {
			versions[setting.Version] = struct{}{}
		}
	}
	a.mu.Unlock()

	for version := range versions {
		if _, err := a.catalogs.Load(ctx, version); err != nil {
			log.Warn("Could not load voice catalog", "version", version, "err", err)
		}
	}
	return nil
}

// setText replaces the narrated text.
func (a *app) setText(text string) {
	a.mu.Lock()
	defer a.mu.Unlock()
	a.text = text
}

// tasks detects the current text and returns its synthesis tasks at the
// current speed. Newly seen characters are written to the config muted.
func (a *app) tasks() []ttypes.Task {
	a.mu.Lock()
	defer a.mu.Unlock()

	result := a.detector.Detect(a.text)
	if a.cfg.RecordCharacters(result.Characters) && a.configPath != "" {
		if err := tts.SaveConfig(a.cfg, a.configPath); err != nil {
			log.Warn("Could not record new characters", "err", err)
		}
	}

	voices := detect.VoicesFromConfig(a.cfg)
	voices.Speed = a.speed.GetSpeed()
	return voices.Tasks(result.Parts)
}

// textChanged starts narration of new text unless a session is running.
func (a *app) textChanged(ctx context.Context, text string) {
	a.setText(text)
	if a.session.IsPlaying() {
		log.Debug("Text changed during playback, not restarting")
		return
	}
	if err := a.session.Start(ctx, a.tasks()); err != nil {
		log.Debug("Auto-play skipped", "err", err)
	}
}

// serveMetrics exposes the registry on addr until Close.
func (a *app) serveMetrics(addr string) {
	mux := http.NewServeMux()
	mux.Handle("/metrics", promhttp.HandlerFor(a.registry, promhttp.HandlerOpts{}))
	a.metricsSrv = &http.Server{
		Addr:              addr,
		Handler:           mux,
		ReadHeaderTimeout: 5 * time.Second,
	}
	go func() {
		log.Info("Serving metrics", "addr", addr)
		if err := a.metricsSrv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			log.Error("Metrics server failed", "err", err)
		}
	}()
}

// Close stops playback and releases every clip.
func (a *app) Close() {
	if a.session != nil {
		a.session.Stop()
	}
	if a.player != nil {
		_ = a.player.Close()
	}
	if a.clips != nil {
		a.clips.Clear()
	}
	if a.spool != nil {
		_ = a.spool.Close()
	}
	if a.metricsSrv != nil {
		ctx, cancel := context.WithTimeout(context.Background(), time.Second)
		_ = a.metricsSrv.Shutdown(ctx)
		cancel()
	}
	a.records.Summary()
}

// relay forwards session events to whichever front end is attached.
type relay struct {
	mu     sync.Mutex
	notify func(session.Notification)
	phase  func(ttypes.Phase)
	clip   func(int, *ttypes.PlaybackItem)
}

func (r *relay) attach(notify func(session.Notification), phase func(ttypes.Phase), clip func(int, *ttypes.PlaybackItem)) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.notify, r.phase, r.clip = notify, phase, clip
}

// Notify implements session.Notifier.
func (r *relay) Notify(n session.Notification) {
	switch n.Level {
	case session.LevelError:
		log.Error(n.Message, "err", n.Err)
	case session.LevelWarn:
		log.Warn(n.Message, "err", n.Err)
	default:
		log.Info(n.Message)
	}

	r.mu.Lock()
	fn := r.notify
	r.mu.Unlock()
	if fn != nil {
		fn(n)
	}
}

func (r *relay) phaseChanged(p ttypes.Phase) {
	log.Debug("Phase changed", "phase", p)
	r.mu.Lock()
	fn := r.phase
	r.mu.Unlock()
	if fn != nil {
		fn(p)
	}
}

func (r *relay) clipStarted(index int, item *ttypes.PlaybackItem) {
	log.Debug("Playing clip", "index", index, "source", item.Task.Source, "cached", item.FromCache)
	r.mu.Lock()
	fn := r.clip
	r.mu.Unlock()
	if fn != nil {
		fn(index, item)
	}
}

// describe formats an error for the terminal, with setup help when the
// service is the problem.
func describe(err error, cfg *tts.Config) string {
	msg := tts.UserMessage(err)
	switch tts.Code(err) {
	case tts.ErrorCodeUnreachable, tts.ErrorCodeTimeout:
		return fmt.Sprintf("%s\n\n%s", msg, faint(fmt.Sprintf("Is the synthesis server running at %s?", cfg.API.BaseURL)))
	}
	return msg
}
