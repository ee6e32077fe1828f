package tts

import (
	"time"

	"github.com/prometheus/client_golang/prometheus"
)

// Synthesis outcomes recorded by Metrics.
const (
	OutcomeOK       = "ok"
	OutcomeTimeout  = "timeout"
	OutcomeRejected = "rejected"
	OutcomeFailed   = "unreachable"
)

// Metrics holds the pipeline's Prometheus collectors. A nil *Metrics is
// valid and records nothing.
type Metrics struct {
	synthesisCalls    *prometheus.CounterVec
	synthesisDuration prometheus.Histogram
	synthesisInFlight prometheus.Gauge
	dedupShared       prometheus.Counter
	cacheLookups      *prometheus.CounterVec
	cacheEvictions    *prometheus.CounterVec
	cacheEntries      prometheus.Gauge
	clipsPlayed       prometheus.Counter
	playbackFailures  prometheus.Counter
}

// NewMetrics creates the collectors and registers them on reg.
func NewMetrics(reg prometheus.Registerer) *Metrics {
	m := &Metrics{
		synthesisCalls: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: "sovits",
			Name:      "synthesis_requests_total",
			Help:      "Synthesis requests by outcome.",
		}, []string{"outcome"}),
		synthesisDuration: prometheus.NewHistogram(prometheus.HistogramOpts{
			Namespace: "sovits",
			Name:      "synthesis_duration_seconds",
			Help:      "Synthesis request latency.",
			Buckets:   []float64{0.25, 0.5, 1, 2, 4, 8, 16, 30},
		}),
		synthesisInFlight: prometheus.NewGauge(prometheus.GaugeOpts{
			Namespace: "sovits",
			Name:      "synthesis_in_flight",
			Help:      "Synthesis requests currently running.",
		}),
		dedupShared: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: "sovits",
			Name:      "synthesis_shared_total",
			Help:      "Tasks served by an identical request already in flight.",
		}),
		cacheLookups: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: "sovits",
			Name:      "cache_lookups_total",
			Help:      "Clip cache lookups by result.",
		}, []string{"result"}),
		cacheEvictions: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: "sovits",
			Name:      "cache_evictions_total",
			Help:      "Clip cache removals by reason.",
		}, []string{"reason"}),
		cacheEntries: prometheus.NewGauge(prometheus.GaugeOpts{
			Namespace: "sovits",
			Name:      "cache_entries",
			Help:      "Clips currently cached.",
		}),
		clipsPlayed: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: "sovits",
			Name:      "clips_played_total",
			Help:      "Clips played to the end.",
		}),
		playbackFailures: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: "sovits",
			Name:      "playback_failures_total",
			Help:      "Sessions stopped by a playback failure.",
		}),
	}

	if reg != nil {
		reg.MustRegister(
			m.synthesisCalls,
			m.synthesisDuration,
			m.synthesisInFlight,
			m.dedupShared,
			m.cacheLookups,
			m.cacheEvictions,
			m.cacheEntries,
			m.clipsPlayed,
			m.playbackFailures,
		)
	}
	return m
}

// ObserveSynthesis records one finished synthesis request.
func (m *Metrics) ObserveSynthesis(err error, d time.Duration) {
	if m == nil {
		return
	}
	outcome := OutcomeOK
	switch Code(err) {
	case "":
		if err != nil {
			outcome = OutcomeFailed
		}
	case ErrorCodeTimeout:
		outcome = OutcomeTimeout
	case ErrorCodeSynthesisRejected:
		outcome = OutcomeRejected
	default:
		outcome = OutcomeFailed
	}
	m.synthesisCalls.WithLabelValues(outcome).Inc()
	m.synthesisDuration.Observe(d.Seconds())
}

// SynthesisStarted marks a request as in flight and returns its completion func.
func (m *Metrics) SynthesisStarted() func() {
	if m == nil {
		return func() {}
	}
	m.synthesisInFlight.Inc()
	return m.synthesisInFlight.Dec
}

// Shared records a task that joined an in-flight request.
func (m *Metrics) Shared() {
	if m == nil {
		return
	}
	m.dedupShared.Inc()
}

// CacheLookup records a lookup result: "hit", "miss" or "expired".
func (m *Metrics) CacheLookup(result string) {
	if m == nil {
		return
	}
	m.cacheLookups.WithLabelValues(result).Inc()
}

// CacheEviction records a removal: "expired", "trimmed", "replaced" or "cleared".
func (m *Metrics) CacheEviction(reason string) {
	if m == nil {
		return
	}
	m.cacheEvictions.WithLabelValues(reason).Inc()
}

// CacheSize records the number of cached clips.
func (m *Metrics) CacheSize(n int) {
	if m == nil {
		return
	}
	m.cacheEntries.Set(float64(n))
}

// ClipPlayed records a clip that played to the end.
func (m *Metrics) ClipPlayed() {
	if m == nil {
		return
	}
	m.clipsPlayed.Inc()
}

// PlaybackFailed records a session stopped by a playback failure.
func (m *Metrics) PlaybackFailed() {
	if m == nil {
		return
	}
	m.playbackFailures.Inc()
}
