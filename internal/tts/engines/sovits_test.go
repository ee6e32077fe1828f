package engines

import (
	"context"
	"encoding/json"
	"errors"
	"io"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/dgnsrekt/sovits-player/internal/tts"
	"github.com/dgnsrekt/sovits-player/internal/ttypes"
)

func testRequest() ttypes.SynthesisRequest {
	return ttypes.SynthesisRequest{
		Text:     "こんにちは",
		Voice:    "alice",
		Version:  "v4",
		Emotion:  "默认",
		Language: tts.LanguageJapanese,
		Speed:    1.0,
	}
}

func newTestEngine(t *testing.T, url string, timeout time.Duration) *SovitsEngine {
	t.Helper()
	engine, err := NewSovitsEngine(SovitsConfig{BaseURL: url, Timeout: timeout, CatalogTimeout: timeout})
	if err != nil {
		t.Fatalf("NewSovitsEngine failed: %v", err)
	}
	return engine
}

func TestNewSovitsEngine(t *testing.T) {
	tests := []struct {
		name        string
		config      SovitsConfig
		expectError bool
	}{
		{"default configuration", SovitsConfig{}, false},
		{"custom url with trailing slash", SovitsConfig{BaseURL: "http://tts.local:9880/"}, false},
		{"rate limited", SovitsConfig{RequestsPerMinute: 30}, false},
		{"missing scheme", SovitsConfig{BaseURL: "tts.local:9880"}, true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			engine, err := NewSovitsEngine(tt.config)
			if tt.expectError {
				if err == nil {
					t.Error("Expected error but got none")
				}
				return
			}
			if err != nil {
				t.Fatalf("Unexpected error: %v", err)
			}
			if strings.HasSuffix(engine.BaseURL(), "/") {
				t.Errorf("BaseURL %q should not end with /", engine.BaseURL())
			}
		})
	}
}

func TestSovitsEngine_Synthesize(t *testing.T) {
	var mu sync.Mutex
	var got inferRequest

	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path != "/infer_single" || r.Method != http.MethodPost {
			http.NotFound(w, r)
			return
		}
		mu.Lock()
		defer mu.Unlock()
		if err := json.NewDecoder(r.Body).Decode(&got); err != nil {
			http.Error(w, err.Error(), http.StatusBadRequest)
			return
		}
		_ = json.NewEncoder(w).Encode(map[string]string{"audio_url": "http://clips/1.wav"})
	}))
	defer server.Close()

	engine := newTestEngine(t, server.URL, time.Second)
	handle, err := engine.Synthesize(context.Background(), testRequest())
	if err != nil {
		t.Fatalf("Synthesize failed: %v", err)
	}
	if handle.URL != "http://clips/1.wav" {
		t.Errorf("URL = %q", handle.URL)
	}

	mu.Lock()
	defer mu.Unlock()
	if got.ModelName != "alice" || got.TextLang != tts.LanguageJapanese || got.PromptTextLang != tts.LanguageJapanese {
		t.Errorf("Request fields = %+v", got)
	}
	if got.MediaType != "wav" || got.Seed != -1 || got.TopK != 10 || got.SpeedFacter != 1.0 || got.BatchSize != 10 {
		t.Errorf("Fixed request fields = %+v", got)
	}
	if got.DLURL != server.URL {
		t.Errorf("dl_url = %q, want %q", got.DLURL, server.URL)
	}
}

func TestSovitsEngine_BatchSize(t *testing.T) {
	sizes := make(chan int, 1)
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		var req inferRequest
		_ = json.NewDecoder(r.Body).Decode(&req)
		sizes <- req.BatchSize
		_, _ = io.WriteString(w, `{"audio_url":"/clips/1.wav"}`)
	}))
	defer server.Close()

	engine := newTestEngine(t, server.URL, time.Second)
	req := testRequest()
	req.Batch = true
	handle, err := engine.Synthesize(context.Background(), req)
	if err != nil {
		t.Fatalf("Synthesize failed: %v", err)
	}
	if size := <-sizes; size != 20 {
		t.Errorf("batch_size = %d, want 20", size)
	}
	if handle.URL != server.URL+"/clips/1.wav" {
		t.Errorf("Relative URL resolved to %q", handle.URL)
	}
}

func TestSovitsEngine_Errors(t *testing.T) {
	tests := []struct {
		name       string
		handler    http.HandlerFunc
		wantCode   tts.ErrorCode
		wantSubstr string
	}{
		{
			name: "missing audio_url with reason",
			handler: func(w http.ResponseWriter, _ *http.Request) {
				_, _ = io.WriteString(w, `{"reason":"model not found"}`)
			},
			wantCode:   tts.ErrorCodeSynthesisRejected,
			wantSubstr: "model not found",
		},
		{
			name: "missing audio_url without reason",
			handler: func(w http.ResponseWriter, _ *http.Request) {
				_, _ = io.WriteString(w, `{}`)
			},
			wantCode:   tts.ErrorCodeSynthesisRejected,
			wantSubstr: "audio_url",
		},
		{
			name: "server error",
			handler: func(w http.ResponseWriter, _ *http.Request) {
				http.Error(w, "boom", http.StatusInternalServerError)
			},
			wantCode:   tts.ErrorCodeSynthesisRejected,
			wantSubstr: "500",
		},
		{
			name: "unparseable body",
			handler: func(w http.ResponseWriter, _ *http.Request) {
				_, _ = io.WriteString(w, `not json`)
			},
			wantCode:   tts.ErrorCodeSynthesisRejected,
			wantSubstr: "cannot parse",
		},
		{
			name: "slow server",
			handler: func(w http.ResponseWriter, r *http.Request) {
				select {
				case <-time.After(2 * time.Second):
				case <-r.Context().Done():
				}
			},
			wantCode: tts.ErrorCodeTimeout,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			server := httptest.NewServer(tt.handler)
			defer server.Close()

			engine := newTestEngine(t, server.URL, 100*time.Millisecond)
			handle, err := engine.Synthesize(context.Background(), testRequest())
			if err == nil {
				t.Fatalf("Expected error, got handle %v", handle)
			}
			if !tts.IsCode(err, tt.wantCode) {
				t.Errorf("Error code = %q, want %q (%v)", tts.Code(err), tt.wantCode, err)
			}
			if tt.wantSubstr != "" && !strings.Contains(err.Error(), tt.wantSubstr) {
				t.Errorf("Error %q should contain %q", err.Error(), tt.wantSubstr)
			}
		})
	}
}

func TestSovitsEngine_Unreachable(t *testing.T) {
	server := httptest.NewServer(http.NotFoundHandler())
	url := server.URL
	server.Close()

	engine := newTestEngine(t, url, time.Second)
	_, err := engine.Synthesize(context.Background(), testRequest())
	if !tts.IsCode(err, tts.ErrorCodeUnreachable) {
		t.Errorf("Error code = %q, want UNREACHABLE (%v)", tts.Code(err), err)
	}
	if !errors.Is(err, tts.ErrServerUnreachable) {
		t.Error("Error should wrap ErrServerUnreachable")
	}
}

func TestSovitsEngine_Canceled(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		<-r.Context().Done()
	}))
	defer server.Close()

	engine := newTestEngine(t, server.URL, 5*time.Second)
	ctx, cancel := context.WithCancel(context.Background())
	time.AfterFunc(50*time.Millisecond, cancel)

	_, err := engine.Synthesize(ctx, testRequest())
	if !errors.Is(err, context.Canceled) {
		t.Errorf("err = %v, want context.Canceled", err)
	}
}

func TestSovitsEngine_Models(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path != "/models" {
			http.NotFound(w, r)
			return
		}
		var body map[string]string
		_ = json.NewDecoder(r.Body).Decode(&body)
		if body["version"] != "v2" {
			http.Error(w, "bad version", http.StatusBadRequest)
			return
		}
		_, _ = io.WriteString(w, `{"models":{"alice":{"中文":["默认","开心"]},"bob":{"日语":["默认"]}}}`)
	}))
	defer server.Close()

	engine := newTestEngine(t, server.URL, time.Second)
	models, err := engine.Models(context.Background(), "v2")
	if err != nil {
		t.Fatalf("Models failed: %v", err)
	}
	if len(models) != 2 {
		t.Fatalf("Models returned %d voices, want 2", len(models))
	}
	if emotions := models["alice"]["中文"]; len(emotions) != 2 || emotions[1] != "开心" {
		t.Errorf("alice emotions = %v", emotions)
	}

	if _, err := engine.Models(context.Background(), "v9"); !tts.IsCode(err, tts.ErrorCodeSynthesisRejected) {
		t.Errorf("Bad version error code = %q", tts.Code(err))
	}
}

func TestSovitsEngine_Fetch(t *testing.T) {
	clip := []byte("RIFF\x24\x00\x00\x00WAVE")
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		switch r.URL.Path {
		case "/clips/1.wav":
			w.Header().Set("Content-Type", "audio/wav")
			_, _ = w.Write(clip)
		default:
			http.NotFound(w, r)
		}
	}))
	defer server.Close()

	engine := newTestEngine(t, server.URL, time.Second)
	res, err := engine.Fetch(context.Background(), server.URL+"/clips/1.wav")
	if err != nil {
		t.Fatalf("Fetch failed: %v", err)
	}
	defer res.Release()

	rc, err := res.Open()
	if err != nil {
		t.Fatalf("Open failed: %v", err)
	}
	data, _ := io.ReadAll(rc)
	_ = rc.Close()
	if string(data) != string(clip) {
		t.Errorf("Fetched %q, want %q", data, clip)
	}

	if _, err := engine.Fetch(context.Background(), "/clips/missing.wav"); err == nil {
		t.Error("Fetch of a missing clip should fail")
	}
}
