package llm

import (
	"errors"
	"fmt"
	"testing"
)

func TestNewAPIErrorKinds(t *testing.T) {
	tests := []struct {
		status int
		want   ErrorKind
	}{
		{429, ErrKindRateLimited},
		{401, ErrKindAuthFailed},
		{403, ErrKindAuthFailed},
		{500, ErrKindNetwork},
		{503, ErrKindNetwork},
		{400, ErrKindUnknown},
	}

	for _, tt := range tests {
		err := NewAPIError("test", tt.status, "boom")
		if err.Kind != tt.want {
			t.Errorf("status %d: got kind %s, want %s", tt.status, err.Kind, tt.want)
		}
	}
}

func TestClassifyTypedError(t *testing.T) {
	err := NewAPIError("openai", 429, "slow down")
	if got := Classify(err); got != ErrKindRateLimited {
		t.Fatalf("got %s, want rate_limited", got)
	}

	wrapped := fmt.Errorf("completion failed: %w", err)
	if got := Classify(wrapped); got != ErrKindRateLimited {
		t.Fatalf("wrapped: got %s, want rate_limited", got)
	}
}

func TestClassifySubstringFallback(t *testing.T) {
	tests := []struct {
		err  error
		want ErrorKind
	}{
		{errors.New("upstream returned 429 Too Many Requests"), ErrKindRateLimited},
		{errors.New("Rate limit exceeded for model"), ErrKindRateLimited},
		{errors.New("request failed: status 401"), ErrKindAuthFailed},
		{errors.New("dial tcp: connection refused"), ErrKindNetwork},
		{errors.New("something else"), ErrKindUnknown},
		{nil, ErrKindUnknown},
	}

	for _, tt := range tests {
		if got := Classify(tt.err); got != tt.want {
			t.Errorf("Classify(%v) = %s, want %s", tt.err, got, tt.want)
		}
	}
}

func TestIsRateLimited(t *testing.T) {
	if !IsRateLimited(NewAPIError("x", 429, "")) {
		t.Error("429 should be retryable")
	}
	if IsRateLimited(NewAPIError("x", 401, "bad key")) {
		t.Error("401 should not be retryable")
	}
	if IsRateLimited(NewNetworkError("x", errors.New("connection reset"))) {
		t.Error("network errors should not be retryable")
	}
}

func TestAPIErrorMessageContainsStatus(t *testing.T) {
	err := NewAPIError("gemini", 429, "quota exceeded")
	msg := err.Error()
	if got := Classify(errors.New(msg)); got != ErrKindRateLimited {
		t.Fatalf("rendered message %q should classify as rate_limited, got %s", msg, got)
	}
}
