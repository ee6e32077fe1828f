package tts

import (
	"context"
	"errors"
	"strings"
	"testing"
)

func TestCheckServer(t *testing.T) {
	cfg := DefaultConfig()

	tests := []struct {
		name      string
		lister    *fakeLister
		available bool
		guidance  string
	}{
		{
			name:      "voices listed",
			lister:    &fakeLister{models: map[string]map[string][]string{"alice": {"中文": {"默认"}}}},
			available: true,
		},
		{
			name:     "no voices",
			lister:   &fakeLister{models: map[string]map[string][]string{}},
			guidance: "lists no voices",
		},
		{
			name:     "unreachable",
			lister:   &fakeLister{err: NewTTSError(ErrorCodeUnreachable, "dial failed", errors.New("connection refused"))},
			guidance: "Could not connect",
		},
		{
			name:     "timeout",
			lister:   &fakeLister{err: NewTTSError(ErrorCodeTimeout, "too slow", nil)},
			guidance: "api.catalog_timeout",
		},
		{
			name:     "rejected",
			lister:   &fakeLister{err: NewTTSError(ErrorCodeSynthesisRejected, "bad version", nil)},
			guidance: "api.version",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			result := CheckServer(context.Background(), tt.lister, cfg)
			if result.Available != tt.available {
				t.Errorf("Available = %v, want %v (err %v)", result.Available, tt.available, result.Error)
			}
			if tt.available {
				if result.Voices != 1 || result.Error != nil {
					t.Errorf("result = %+v", result)
				}
				return
			}
			if result.Error == nil {
				t.Error("expected an error")
			}
			if !strings.Contains(result.Guidance, tt.guidance) {
				t.Errorf("guidance %q does not mention %q", result.Guidance, tt.guidance)
			}
			if result.Details["latency"] == "" {
				t.Error("latency should be recorded")
			}
		})
	}
}

func TestValidateSpeed(t *testing.T) {
	for _, speed := range []float64{0.5, 1, 2} {
		if err := ValidateSpeed(speed); err != nil {
			t.Errorf("ValidateSpeed(%v) = %v", speed, err)
		}
	}
	for _, speed := range []float64{0, 0.49, 2.01} {
		if !errors.Is(ValidateSpeed(speed), ErrSpeedOutOfRange) {
			t.Errorf("ValidateSpeed(%v) should be out of range", speed)
		}
	}
}
