package ttypes

import (
	"errors"
	"fmt"
)

// Common engine errors
var (
	// ErrNoEngineConfigured indicates no engine has been selected
	ErrNoEngineConfigured = errors.New("no engine configured")

	// ErrInvalidEngine indicates an unknown engine was specified
	ErrInvalidEngine = errors.New("invalid engine specified")

	// ErrEngineNotAvailable indicates the selected engine is not available
	ErrEngineNotAvailable = errors.New("selected engine is not available")

	// ErrEmptyInput indicates there was nothing to transcribe or synthesize
	ErrEmptyInput = errors.New("empty input")

	// ErrTextTooLong indicates the text exceeds the engine limit
	ErrTextTooLong = errors.New("text too long")

	// ErrTimeout indicates an engine call timed out
	ErrTimeout = errors.New("operation timed out")
)

// ErrorCode identifies specific error types
type ErrorCode string

const (
	// Engine errors
	ErrorCodeEngineFailure     ErrorCode = "ENGINE_FAILURE"
	ErrorCodeEngineUnavailable ErrorCode = "ENGINE_UNAVAILABLE"
	ErrorCodeEngineTimeout     ErrorCode = "ENGINE_TIMEOUT"
	ErrorCodeRateLimited       ErrorCode = "RATE_LIMITED"

	// Audio errors
	ErrorCodeAudioFormat ErrorCode = "AUDIO_FORMAT"
	ErrorCodeAudioDevice ErrorCode = "AUDIO_DEVICE"

	// Input errors
	ErrorCodeInvalidInput ErrorCode = "INVALID_INPUT"
	ErrorCodeTextTooLong  ErrorCode = "TEXT_TOO_LONG"

	// System errors
	ErrorCodeCanceled ErrorCode = "CANCELED"
)

// EngineError represents an engine failure with additional context.
type EngineError struct {
	Code    ErrorCode
	Engine  string
	Message string
	Cause   error
	Context map[string]interface{}
}

// NewEngineError creates a new engine error.
func NewEngineError(code ErrorCode, engine, message string, cause error) *EngineError {
	return &EngineError{
		Code:    code,
		Engine:  engine,
		Message: message,
		Cause:   cause,
		Context: make(map[string]interface{}),
	}
}

// Error implements the error interface
func (e *EngineError) Error() string {
	prefix := string(e.Code)
	if e.Engine != "" {
		prefix = e.Engine + ": " + prefix
	}
	if e.Cause != nil {
		return fmt.Sprintf("%s: %s: %v", prefix, e.Message, e.Cause)
	}
	return fmt.Sprintf("%s: %s", prefix, e.Message)
}

// Unwrap returns the underlying error
func (e *EngineError) Unwrap() error {
	return e.Cause
}

// WithContext adds context to the error
func (e *EngineError) WithContext(key string, value interface{}) *EngineError {
	e.Context[key] = value
	return e
}

// IsFatal returns true if the error should stop the pipeline rather than
// skip the current chunk or segment.
func (e *EngineError) IsFatal() bool {
	switch e.Code {
	case ErrorCodeEngineUnavailable, ErrorCodeAudioDevice:
		return true
	default:
		return false
	}
}

// IsRetryable returns true if the operation can be retried
func (e *EngineError) IsRetryable() bool {
	switch e.Code {
	case ErrorCodeEngineTimeout, ErrorCodeRateLimited:
		return true
	default:
		return false
	}
}

// IsFatal reports whether err wraps a fatal EngineError.
func IsFatal(err error) bool {
	var ee *EngineError
	return errors.As(err, &ee) && ee.IsFatal()
}
