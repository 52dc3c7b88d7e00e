package ttypes

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"testing"
)

func TestEngineError(t *testing.T) {
	cause := context.DeadlineExceeded
	err := NewEngineError(ErrorCodeEngineTimeout, "piper", "synthesis timed out", cause).
		WithContext("timeout", "10s")

	if !errors.Is(err, context.DeadlineExceeded) {
		t.Error("EngineError does not unwrap to its cause")
	}
	if !strings.Contains(err.Error(), "piper: ENGINE_TIMEOUT: synthesis timed out") {
		t.Errorf("Error() = %q", err.Error())
	}
	if !err.IsRetryable() || err.IsFatal() {
		t.Errorf("timeout: retryable=%v fatal=%v", err.IsRetryable(), err.IsFatal())
	}
	if err.Context["timeout"] != "10s" {
		t.Errorf("context not recorded: %v", err.Context)
	}
}

func TestIsFatal(t *testing.T) {
	tests := []struct {
		name string
		err  error
		want bool
	}{
		{name: "nil", err: nil, want: false},
		{name: "plain", err: errors.New("x"), want: false},
		{name: "unavailable", err: NewEngineError(ErrorCodeEngineUnavailable, "whisper", "binary missing", nil), want: true},
		{name: "wrapped", err: fmt.Errorf("outer: %w", NewEngineError(ErrorCodeAudioDevice, "", "no device", nil)), want: true},
		{name: "failure", err: NewEngineError(ErrorCodeEngineFailure, "gtts", "bad response", nil), want: false},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := IsFatal(tt.err); got != tt.want {
				t.Errorf("IsFatal() = %v, want %v", got, tt.want)
			}
		})
	}
}
