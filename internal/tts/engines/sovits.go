package engines

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net"
	"net/http"
	"strings"
	"time"

	"github.com/charmbracelet/log"
	"github.com/dgnsrekt/sovits-player/internal/cache"
	"github.com/dgnsrekt/sovits-player/internal/tts"
	"github.com/dgnsrekt/sovits-player/internal/ttypes"
	"github.com/go-resty/resty/v2"
	"golang.org/x/time/rate"
)

// SovitsEngine talks to a GPT-SoVITS style inference server.
// It posts text to /infer_single, lists voices through /models and
// downloads the produced clips.
type SovitsEngine struct {
	client  *resty.Client
	baseURL string

	// Timeouts
	timeout        time.Duration
	catalogTimeout time.Duration

	// Optional request pacing
	rateLimiter *rate.Limiter

	// Request shaping
	textSplitMethod string
	batchSize       int

	// Where fetched clip bytes go
	store cache.ResourceStore

	metrics *tts.Metrics
	logger  *log.Logger
}

// SovitsConfig holds configuration for the engine.
type SovitsConfig struct {
	// Server address, defaults to http://127.0.0.1:8000
	BaseURL string

	// Per-request timeout, defaults to 30s
	Timeout time.Duration

	// Voice catalog timeout, defaults to 10s
	CatalogTimeout time.Duration

	// Requests per minute, 0 disables pacing
	RequestsPerMinute int

	// Text split method sent to the server
	TextSplitMethod string

	// Server side batch size for single requests, doubled for batches
	BatchSize int

	// Store for fetched clips, defaults to memory
	Store cache.ResourceStore

	// HTTPClient overrides the transport (tests)
	HTTPClient *http.Client

	Metrics *tts.Metrics
	Logger  *log.Logger
}

// inferRequest is the /infer_single payload.
type inferRequest struct {
	Text              string  `json:"text"`
	ModelName         string  `json:"model_name"`
	TextLang          string  `json:"text_lang"`
	PromptTextLang    string  `json:"prompt_text_lang"`
	Version           string  `json:"version"`
	DLURL             string  `json:"dl_url"`
	BatchSize         int     `json:"batch_size"`
	BatchThreshold    float64 `json:"batch_threshold"`
	Emotion           string  `json:"emotion"`
	FragmentInterval  float64 `json:"fragment_interval"`
	IfSR              bool    `json:"if_sr"`
	MediaType         string  `json:"media_type"`
	ParallelInfer     bool    `json:"parallel_infer"`
	RepetitionPenalty float64 `json:"repetition_penalty"`
	SampleSteps       int     `json:"sample_steps"`
	Seed              int     `json:"seed"`
	SpeedFacter       float64 `json:"speed_facter"`
	SplitBucket       bool    `json:"split_bucket"`
	Temperature       float64 `json:"temperature"`
	TextSplitMethod   string  `json:"text_split_method"`
	TopK              int     `json:"top_k"`
	TopP              float64 `json:"top_p"`
}

// inferResponse is the /infer_single answer.
type inferResponse struct {
	AudioURL string `json:"audio_url"`
	Reason   string `json:"reason"`
}

// modelsResponse is the /models answer: voice -> language -> emotions.
type modelsResponse struct {
	Models map[string]map[string][]string `json:"models"`
}

// NewSovitsEngine creates a new engine.
func NewSovitsEngine(config SovitsConfig) (*SovitsEngine, error) {
	if config.BaseURL == "" {
		config.BaseURL = "http://127.0.0.1:8000"
	}
	config.BaseURL = strings.TrimRight(config.BaseURL, "/")
	if !strings.HasPrefix(config.BaseURL, "http://") && !strings.HasPrefix(config.BaseURL, "https://") {
		return nil, fmt.Errorf("base URL must start with http:// or https://, got %q", config.BaseURL)
	}
	if config.Timeout <= 0 {
		config.Timeout = 30 * time.Second
	}
	if config.CatalogTimeout <= 0 {
		config.CatalogTimeout = 10 * time.Second
	}
	if config.TextSplitMethod == "" {
		config.TextSplitMethod = "按标点符号切"
	}
	if config.BatchSize <= 0 {
		config.BatchSize = 10
	}
	if config.Store == nil {
		config.Store = cache.MemoryStore{}
	}
	if config.Logger == nil {
		config.Logger = log.Default()
	}

	var client *resty.Client
	if config.HTTPClient != nil {
		client = resty.NewWithClient(config.HTTPClient)
	} else {
		client = resty.New()
	}
	client.SetBaseURL(config.BaseURL).
		SetHeader("Content-Type", "application/json").
		SetHeader("Accept", "application/json")

	var limiter *rate.Limiter
	if config.RequestsPerMinute > 0 {
		limiter = rate.NewLimiter(rate.Every(time.Minute/time.Duration(config.RequestsPerMinute)), 1)
	}

	return &SovitsEngine{
		client:          client,
		baseURL:         config.BaseURL,
		timeout:         config.Timeout,
		catalogTimeout:  config.CatalogTimeout,
		rateLimiter:     limiter,
		textSplitMethod: config.TextSplitMethod,
		batchSize:       config.BatchSize,
		store:           config.Store,
		metrics:         config.Metrics,
		logger:          config.Logger,
	}, nil
}

// BaseURL returns the server address.
func (e *SovitsEngine) BaseURL() string {
	return e.baseURL
}

// Synthesize asks the server to synthesize req and returns a handle to the
// produced clip. Each call gets its own timeout.
func (e *SovitsEngine) Synthesize(ctx context.Context, req ttypes.SynthesisRequest) (*ttypes.AudioHandle, error) {
	if req.Text == "" {
		return nil, tts.NewTTSError(tts.ErrorCodeInvalidInput, "text cannot be empty", ttypes.ErrEmptyText)
	}

	// Pacing happens before the timeout clock starts
	if e.rateLimiter != nil {
		if err := e.rateLimiter.Wait(ctx); err != nil {
			return nil, fmt.Errorf("rate limit wait cancelled: %w", err)
		}
	}

	done := e.metrics.SynthesisStarted()
	defer done()
	start := time.Now()

	handle, err := e.infer(ctx, req)
	e.metrics.ObserveSynthesis(err, time.Since(start))
	return handle, err
}

func (e *SovitsEngine) infer(ctx context.Context, req ttypes.SynthesisRequest) (*ttypes.AudioHandle, error) {
	ctx, cancel := context.WithTimeout(ctx, e.timeout)
	defer cancel()

	batchSize := e.batchSize
	if req.Batch {
		batchSize *= 2
	}

	body := inferRequest{
		Text:              req.Text,
		ModelName:         req.Voice,
		TextLang:          req.Language,
		PromptTextLang:    req.Language,
		Version:           req.Version,
		DLURL:             e.baseURL,
		BatchSize:         batchSize,
		BatchThreshold:    0.75,
		Emotion:           req.Emotion,
		FragmentInterval:  0.3,
		IfSR:              false,
		MediaType:         "wav",
		ParallelInfer:     true,
		RepetitionPenalty: 1.35,
		SampleSteps:       16,
		Seed:              -1,
		SpeedFacter:       req.Speed,
		SplitBucket:       true,
		Temperature:       1,
		TextSplitMethod:   e.textSplitMethod,
		TopK:              10,
		TopP:              1,
	}

	resp, err := e.client.R().
		SetContext(ctx).
		SetBody(body).
		Post("/infer_single")
	if err != nil {
		return nil, e.transportError(ctx, err)
	}

	if resp.IsError() {
		return nil, tts.NewTTSError(tts.ErrorCodeSynthesisRejected, "TTS API error",
			fmt.Errorf("%w: %s", tts.ErrSynthesisRejected, resp.Status())).
			WithContext("status", resp.StatusCode())
	}

	var out inferResponse
	if err := json.Unmarshal(resp.Body(), &out); err != nil {
		return nil, tts.NewTTSError(tts.ErrorCodeSynthesisRejected, "cannot parse server response", err)
	}
	if out.AudioURL == "" {
		reason := out.Reason
		if reason == "" {
			reason = "API did not return audio_url"
		}
		return nil, tts.NewTTSError(tts.ErrorCodeSynthesisRejected, "TTS API error",
			fmt.Errorf("%w: %s", tts.ErrSynthesisRejected, reason)).
			WithContext("reason", reason)
	}

	url := e.resolveURL(out.AudioURL)
	e.logger.Debug("Synthesized clip", "voice", req.Voice, "emotion", req.Emotion, "url", url)
	return ttypes.NewAudioHandle(url, func() {
		e.logger.Debug("Released clip", "url", url)
	}), nil
}

// Models lists the voices available for version.
func (e *SovitsEngine) Models(ctx context.Context, version string) (map[string]map[string][]string, error) {
	ctx, cancel := context.WithTimeout(ctx, e.catalogTimeout)
	defer cancel()

	resp, err := e.client.R().
		SetContext(ctx).
		SetBody(map[string]string{"version": version}).
		Post("/models")
	if err != nil {
		return nil, e.transportError(ctx, err)
	}
	if resp.IsError() {
		return nil, tts.NewTTSError(tts.ErrorCodeSynthesisRejected, "failed to fetch voice list",
			fmt.Errorf("%w: %s", tts.ErrSynthesisRejected, resp.Status()))
	}

	var out modelsResponse
	if err := json.Unmarshal(resp.Body(), &out); err != nil {
		return nil, tts.NewTTSError(tts.ErrorCodeSynthesisRejected, "cannot parse voice list", err)
	}
	if out.Models == nil {
		out.Models = map[string]map[string][]string{}
	}
	e.logger.Debug("Fetched voice list", "version", version, "voices", len(out.Models))
	return out.Models, nil
}

// Fetch downloads a clip and hands its bytes to the resource store.
func (e *SovitsEngine) Fetch(ctx context.Context, url string) (ttypes.Resource, error) {
	ctx, cancel := context.WithTimeout(ctx, e.timeout)
	defer cancel()

	resp, err := e.client.R().
		SetContext(ctx).
		SetHeader("Accept", "audio/wav, */*").
		Get(e.resolveURL(url))
	if err != nil {
		return nil, e.transportError(ctx, err)
	}
	if resp.IsError() {
		return nil, fmt.Errorf("fetch %s: %s", url, resp.Status())
	}
	body := resp.Body()
	if len(body) == 0 {
		return nil, fmt.Errorf("fetch %s: empty body", url)
	}
	return e.store.Put(body)
}

// resolveURL makes server-relative clip paths absolute.
func (e *SovitsEngine) resolveURL(u string) string {
	if strings.HasPrefix(u, "http://") || strings.HasPrefix(u, "https://") {
		return u
	}
	return e.baseURL + "/" + strings.TrimLeft(u, "/")
}

// transportError maps a failed round trip onto the error taxonomy.
func (e *SovitsEngine) transportError(ctx context.Context, err error) error {
	if errors.Is(err, context.Canceled) && ctx.Err() == context.Canceled {
		return err
	}
	var netErr net.Error
	if errors.Is(err, context.DeadlineExceeded) || (errors.As(err, &netErr) && netErr.Timeout()) {
		return tts.NewTTSError(tts.ErrorCodeTimeout, "request timed out",
			fmt.Errorf("%w: %v", tts.ErrSynthesisTimeout, err))
	}
	return tts.NewTTSError(tts.ErrorCodeUnreachable, "cannot connect to TTS server",
		fmt.Errorf("%w: %v", tts.ErrServerUnreachable, err))
}
