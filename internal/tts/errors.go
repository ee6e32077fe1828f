package tts

import (
	"errors"
	"fmt"
)

// Common narration errors
var (
	// ErrSynthesisTimeout indicates the synthesis service did not answer in time
	ErrSynthesisTimeout = errors.New("synthesis request timed out")

	// ErrServerUnreachable indicates the synthesis service could not be reached
	ErrServerUnreachable = errors.New("cannot connect to TTS server")

	// ErrSynthesisRejected indicates the service answered without a clip
	ErrSynthesisRejected = errors.New("synthesis rejected by server")

	// ErrBatchExhausted indicates every task of a batch failed
	ErrBatchExhausted = errors.New("all audio generation failed")

	// ErrPlaybackFailed indicates a clip could not be fetched or played
	ErrPlaybackFailed = errors.New("audio playback failed")

	// ErrCatalogEmpty indicates the voice catalog has not been loaded
	ErrCatalogEmpty = errors.New("voice catalog not loaded")

	// ErrNoTasks indicates nothing speakable was found
	ErrNoTasks = errors.New("no speakable text found")

	// ErrBusy indicates a session is already generating or playing
	ErrBusy = errors.New("a session is already active")

	// ErrNothingToReplay indicates no completed session has been retained
	ErrNothingToReplay = errors.New("nothing to replay")
)

// TTSError represents a narration error with additional context
type TTSError struct {
	Code    ErrorCode
	Message string
	Cause   error
	Context map[string]interface{}
}

// Error implements the error interface
func (e *TTSError) Error() string {
	if e.Cause != nil {
		return fmt.Sprintf("%s: %s: %v", e.Code, e.Message, e.Cause)
	}
	return fmt.Sprintf("%s: %s", e.Code, e.Message)
}

// Unwrap returns the underlying error
func (e *TTSError) Unwrap() error {
	return e.Cause
}

// ErrorCode identifies specific error types
type ErrorCode string

const (
	// Synthesis errors
	ErrorCodeTimeout           ErrorCode = "TIMEOUT"
	ErrorCodeSynthesisRejected ErrorCode = "SYNTHESIS_REJECTED"
	ErrorCodeUnreachable       ErrorCode = "UNREACHABLE"

	// Session errors
	ErrorCodeBatchExhausted  ErrorCode = "BATCH_EXHAUSTED"
	ErrorCodePlaybackFailure ErrorCode = "PLAYBACK_FAILURE"
	ErrorCodeCatalogEmpty    ErrorCode = "CATALOG_EMPTY"
	ErrorCodeNoTasks         ErrorCode = "NO_TASKS"
	ErrorCodeBusy            ErrorCode = "BUSY"

	// Input errors
	ErrorCodeInvalidInput ErrorCode = "INVALID_INPUT"
)

// NewTTSError creates a new error with context
func NewTTSError(code ErrorCode, message string, cause error) *TTSError {
	return &TTSError{
		Code:    code,
		Message: message,
		Cause:   cause,
		Context: make(map[string]interface{}),
	}
}

// WithContext adds context to the error
func (e *TTSError) WithContext(key string, value interface{}) *TTSError {
	e.Context[key] = value
	return e
}

// IsFatal returns true if the error should end the session
func (e *TTSError) IsFatal() bool {
	switch e.Code {
	case ErrorCodeBatchExhausted,
		ErrorCodePlaybackFailure:
		return true
	default:
		return false
	}
}

// IsRetryable returns true if the user may simply try again
func (e *TTSError) IsRetryable() bool {
	switch e.Code {
	case ErrorCodeTimeout,
		ErrorCodeUnreachable,
		ErrorCodeBusy:
		return true
	default:
		return false
	}
}

// Code returns the error code carried by err, or "" when err is not a TTSError.
func Code(err error) ErrorCode {
	var te *TTSError
	if errors.As(err, &te) {
		return te.Code
	}
	return ""
}

// IsCode reports whether err carries code.
func IsCode(err error, code ErrorCode) bool {
	return err != nil && Code(err) == code
}

// UserMessage returns the short message shown in notifications.
func UserMessage(err error) string {
	var te *TTSError
	if errors.As(err, &te) {
		if te.Cause != nil {
			return fmt.Sprintf("%s: %v", te.Message, te.Cause)
		}
		return te.Message
	}
	if err == nil {
		return ""
	}
	return err.Error()
}
