package types

import (
	"errors"
	"fmt"
	"testing"
)

func TestError_ChainingAndHelpers(t *testing.T) {
	t.Parallel()

	root := errors.New("root")
	err := NewError(ErrUpstreamError, "upstream failed").
		WithCause(root).
		WithHTTPStatus(502).
		WithRetryable(true).
		WithProvider("openai")

	if GetErrorCode(err) != ErrUpstreamError {
		t.Fatalf("expected code %s, got %s", ErrUpstreamError, GetErrorCode(err))
	}
	if !IsRetryable(err) {
		t.Fatalf("expected retryable")
	}
	if !errors.Is(err, root) {
		t.Fatalf("expected errors.Is unwrap to root")
	}
	if got := err.Error(); got != "[UPSTREAM_ERROR] upstream failed: root" {
		t.Fatalf("unexpected error string %q", got)
	}
}

func TestError_FoundThroughWrapping(t *testing.T) {
	t.Parallel()

	inner := Errorf(ErrConfiguration, "%s key missing", "OPENAI_API_KEY")
	wrapped := fmt.Errorf("build client: %w", inner)

	if !IsErrorCode(wrapped, ErrConfiguration) {
		t.Fatalf("expected CONFIGURATION code through wrap, got %q", GetErrorCode(wrapped))
	}
	if IsRetryable(wrapped) {
		t.Fatalf("configuration errors are not retryable")
	}
	if GetErrorCode(errors.New("plain")) != "" {
		t.Fatalf("plain errors carry no code")
	}
}
