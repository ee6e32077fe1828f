package tts

import (
	"context"
	"errors"
	"fmt"
	"net/url"
	"strings"
	"time"

	"github.com/dgnsrekt/sovits-player/internal/ttypes"
)

// ValidationResult contains the result of a server check
type ValidationResult struct {
	// BaseURL is the checked service address
	BaseURL string

	// Version is the checked API version
	Version string

	// Available indicates the service answered with at least one voice
	Available bool

	// Voices is the number of voices reported
	Voices int

	// Error contains any validation error
	Error error

	// Guidance provides setup instructions if validation failed
	Guidance string

	// Details contains additional validation information
	Details map[string]string
}

// Validate checks the configuration values.
func (c *Config) Validate() error {
	var errs []error

	u, err := url.Parse(c.API.BaseURL)
	if err != nil || u.Scheme == "" || u.Host == "" {
		errs = append(errs, fmt.Errorf("api.base_url must be an absolute URL, got %q", c.API.BaseURL))
	}
	if c.API.Version == "" {
		errs = append(errs, errors.New("api.version must not be empty"))
	}
	if c.API.Timeout <= 0 {
		errs = append(errs, fmt.Errorf("api.timeout must be positive, got %s", c.API.Timeout))
	}
	if c.API.RequestsPerMinute < 0 {
		errs = append(errs, fmt.Errorf("api.requests_per_minute must not be negative, got %d", c.API.RequestsPerMinute))
	}
	if c.Generation.MaxConcurrent < 1 {
		errs = append(errs, fmt.Errorf("generation.max_concurrent must be at least 1, got %d", c.Generation.MaxConcurrent))
	}
	if err := ValidateSpeed(c.Generation.Speed); err != nil {
		errs = append(errs, fmt.Errorf("generation.speed: %w", err))
	}
	if c.Cache.TTL <= 0 {
		errs = append(errs, fmt.Errorf("cache.ttl must be positive, got %s", c.Cache.TTL))
	}
	if c.Cache.MaxEntries < 1 || c.Cache.TrimTo < 0 || c.Cache.TrimTo > c.Cache.MaxEntries {
		errs = append(errs, fmt.Errorf("cache.trim_to (%d) must be between 0 and cache.max_entries (%d)", c.Cache.TrimTo, c.Cache.MaxEntries))
	}
	if c.Playback.Volume < 0 || c.Playback.Volume > 1 {
		errs = append(errs, fmt.Errorf("playback.volume must be between 0.0 and 1.0, got %.2f", c.Playback.Volume))
	}
	for name, setting := range c.Detection.Characters {
		if setting.Speed != nil {
			if err := ValidateSpeed(*setting.Speed); err != nil {
				errs = append(errs, fmt.Errorf("detection.characters.%s.speed: %w", name, err))
			}
		}
	}

	if len(errs) > 0 {
		return NewTTSError(ErrorCodeInvalidInput, "invalid configuration", errors.Join(errs...))
	}
	return nil
}

// ValidateSpeed checks a speaking rate.
func ValidateSpeed(speed float64) error {
	if speed < ttypes.MinSpeed || speed > ttypes.MaxSpeed {
		return ErrSpeedOutOfRange
	}
	return nil
}

// CheckServer asks the service for its voice catalog and explains failures.
func CheckServer(ctx context.Context, lister ModelLister, cfg *Config) *ValidationResult {
	result := &ValidationResult{
		BaseURL: cfg.API.BaseURL,
		Version: cfg.API.Version,
		Details: make(map[string]string),
	}

	start := time.Now()
	models, err := lister.Models(ctx, cfg.API.Version)
	result.Details["latency"] = time.Since(start).Round(time.Millisecond).String()
	if err != nil {
		result.Error = err
		result.Guidance = buildServerGuidance(cfg, err)
		return result
	}

	result.Voices = len(models)
	if result.Voices == 0 {
		result.Error = ErrCatalogEmpty
		result.Guidance = fmt.Sprintf("The server answered but lists no voices for version %s.\nCheck api.version in your config.", cfg.API.Version)
		return result
	}

	result.Available = true
	return result
}

func buildServerGuidance(cfg *Config, err error) string {
	var b strings.Builder
	switch Code(err) {
	case ErrorCodeUnreachable:
		fmt.Fprintf(&b, "Could not connect to %s.\n\n", cfg.API.BaseURL)
		b.WriteString("Make sure the GPT-SoVITS API server is running, then set its address:\n")
		b.WriteString("  api:\n    base_url: http://127.0.0.1:8000\n")
	case ErrorCodeTimeout:
		fmt.Fprintf(&b, "%s did not answer in time.\n\n", cfg.API.BaseURL)
		b.WriteString("The server may still be loading models. Try again, or raise api.catalog_timeout.\n")
	default:
		fmt.Fprintf(&b, "%s rejected the request.\n\n", cfg.API.BaseURL)
		b.WriteString("Check that api.version matches a version the server supports.\n")
	}
	return b.String()
}
