package llm

import (
	"errors"
	"fmt"
	"testing"
)

func TestClassifyError(t *testing.T) {
	tests := []struct {
		name      string
		err       error
		wantType  ErrorType
		retryable bool
	}{
		{"auth 401", errors.New("status 401 unauthorized"), ErrorTypeAuth, false},
		{"invalid key", errors.New("invalid API key provided"), ErrorTypeAuth, false},
		{"model missing", errors.New("the model gpt-5-giga does not exist"), ErrorTypeModel, false},
		{"endpoint 404", errors.New("status 404 not found"), ErrorTypeEndpoint, false},
		{"connection refused", errors.New("dial tcp: connection refused"), ErrorTypeEndpoint, true},
		{"timeout", errors.New("context deadline exceeded"), ErrorTypeEndpoint, true},
		{"rate limit", errors.New("status 429 rate limit exceeded"), ErrorTypeUnknown, true},
		{"server error", errors.New("status 503 service unavailable"), ErrorTypeEndpoint, true},
		{"unknown", errors.New("something odd happened"), ErrorTypeUnknown, false},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got := ClassifyError(tt.err)
			if got.Type != tt.wantType {
				t.Errorf("type = %s, want %s", got.Type, tt.wantType)
			}
			if got.Retryable != tt.retryable {
				t.Errorf("retryable = %v, want %v", got.Retryable, tt.retryable)
			}
		})
	}
}

func TestClassifyErrorPassesThroughStructured(t *testing.T) {
	original := NewError(ErrorTypeAuth, "authentication failed", false, nil)
	wrapped := fmt.Errorf("generate: %w", original)

	if got := ClassifyError(wrapped); got != original {
		t.Errorf("expected the original *Error back, got %v", got)
	}
}

func TestIsRetryable(t *testing.T) {
	retryable := fmt.Errorf("task: %w", NewError(ErrorTypeEndpoint, "server error", true, nil))
	if !IsRetryable(retryable) {
		t.Error("wrapped retryable error should report retryable")
	}
	if IsRetryable(errors.New("plain error")) {
		t.Error("unclassified errors are not retryable")
	}
}
