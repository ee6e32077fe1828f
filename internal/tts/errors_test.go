package tts

import (
	"errors"
	"fmt"
	"strings"
	"testing"
)

func TestTTSError(t *testing.T) {
	cause := errors.New("connection refused")
	err := NewTTSError(ErrorCodeUnreachable, "cannot connect to TTS server", cause).
		WithContext("url", "http://127.0.0.1:8000")

	if !errors.Is(err, cause) {
		t.Error("TTSError should unwrap to its cause")
	}
	if !strings.Contains(err.Error(), "UNREACHABLE") {
		t.Errorf("Error() = %q, should contain the code", err.Error())
	}
	if err.Context["url"] != "http://127.0.0.1:8000" {
		t.Error("Context value missing")
	}

	wrapped := fmt.Errorf("generate: %w", err)
	if !IsCode(wrapped, ErrorCodeUnreachable) {
		t.Error("IsCode should see through wrapping")
	}
	if Code(errors.New("plain")) != "" {
		t.Error("Plain errors carry no code")
	}
}

func TestTTSError_Classification(t *testing.T) {
	tests := []struct {
		code      ErrorCode
		fatal     bool
		retryable bool
	}{
		{ErrorCodeTimeout, false, true},
		{ErrorCodeUnreachable, false, true},
		{ErrorCodeSynthesisRejected, false, false},
		{ErrorCodeBatchExhausted, true, false},
		{ErrorCodePlaybackFailure, true, false},
		{ErrorCodeBusy, false, true},
	}

	for _, tt := range tests {
		t.Run(string(tt.code), func(t *testing.T) {
			err := NewTTSError(tt.code, "msg", nil)
			if err.IsFatal() != tt.fatal {
				t.Errorf("IsFatal() = %v, want %v", err.IsFatal(), tt.fatal)
			}
			if err.IsRetryable() != tt.retryable {
				t.Errorf("IsRetryable() = %v, want %v", err.IsRetryable(), tt.retryable)
			}
		})
	}
}

func TestUserMessage(t *testing.T) {
	if got := UserMessage(NewTTSError(ErrorCodeSynthesisRejected, "TTS API error", errors.New("model not found"))); got != "TTS API error: model not found" {
		t.Errorf("UserMessage() = %q", got)
	}
	if got := UserMessage(NewTTSError(ErrorCodeBatchExhausted, "all audio generation failed", nil)); got != "all audio generation failed" {
		t.Errorf("UserMessage() = %q", got)
	}
	if got := UserMessage(nil); got != "" {
		t.Errorf("UserMessage(nil) = %q", got)
	}
}
