package tts

import (
	"sync"
	"time"

	"github.com/charmbracelet/log"
)

// SynthesisRecord describes one synthesis request for the debug log.
type SynthesisRecord struct {
	Voice    string
	Emotion  string
	Language string
	Text     string
	Start    time.Time
	Duration time.Duration
	CacheHit bool
	Shared   bool
	Err      error
}

// MetricsLogger logs per-request timing when debugging is enabled.
type MetricsLogger struct {
	enabled bool
	logger  *log.Logger

	mu      sync.Mutex
	records []SynthesisRecord
}

// NewMetricsLogger creates a logger that keeps request records when enabled.
func NewMetricsLogger(logger *log.Logger, enabled bool) *MetricsLogger {
	if logger == nil {
		logger = log.Default()
	}
	return &MetricsLogger{enabled: enabled, logger: logger}
}

// Record logs a finished request.
func (ml *MetricsLogger) Record(r SynthesisRecord) {
	if ml == nil {
		return
	}

	fields := []interface{}{
		"voice", r.Voice,
		"emotion", r.Emotion,
		"lang", r.Language,
		"chars", len([]rune(r.Text)),
		"duration", r.Duration.Round(time.Millisecond),
		"cache_hit", r.CacheHit,
		"shared", r.Shared,
	}
	if r.Err != nil {
		ml.logger.Warn("Synthesis failed", append(fields, "error", r.Err)...)
	} else {
		ml.logger.Debug("Synthesis complete", fields...)
	}

	if !ml.enabled {
		return
	}
	ml.mu.Lock()
	ml.records = append(ml.records, r)
	ml.mu.Unlock()
}

// Summary logs aggregate numbers over the kept records.
func (ml *MetricsLogger) Summary() {
	if ml == nil || !ml.enabled {
		return
	}
	ml.mu.Lock()
	defer ml.mu.Unlock()

	if len(ml.records) == 0 {
		return
	}

	var total time.Duration
	var hits, failures int
	for _, r := range ml.records {
		total += r.Duration
		if r.CacheHit {
			hits++
		}
		if r.Err != nil {
			failures++
		}
	}
	ml.logger.Info("Synthesis summary",
		"requests", len(ml.records),
		"cache_hits", hits,
		"failures", failures,
		"avg", (total / time.Duration(len(ml.records))).Round(time.Millisecond),
	)
}

// Records returns a copy of the kept records.
func (ml *MetricsLogger) Records() []SynthesisRecord {
	if ml == nil {
		return nil
	}
	ml.mu.Lock()
	defer ml.mu.Unlock()
	out := make([]SynthesisRecord, len(ml.records))
	copy(out, ml.records)
	return out
}
