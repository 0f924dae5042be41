package llm

import (
	"context"
	"errors"
	"net"
	"net/http"

	"github.com/BaSui01/experimentkit/types"
)

// Error is the structured error every provider returns.
type Error = types.Error

// NewError creates a provider error with retryability derived from code.
func NewError(code types.ErrorCode, message, provider string) *Error {
	return types.NewError(code, message).
		WithProvider(provider).
		WithRetryable(RetryableCode(code))
}

// RetryableCode reports whether a failure with this code is worth another attempt.
// Authentication and request-shape failures are not: the next attempt would
// fail the same way.
func RetryableCode(code types.ErrorCode) bool {
	switch code {
	case types.ErrUnauthorized, types.ErrForbidden, types.ErrInvalidRequest,
		types.ErrConfiguration, types.ErrUnsupportedProvider:
		return false
	}
	return true
}

// ShouldRetry is the retry predicate used by Client.
func ShouldRetry(err error) bool {
	if errors.Is(err, context.Canceled) {
		return false
	}
	if e, ok := types.AsError(err); ok {
		return RetryableCode(e.Code)
	}
	return true
}

// MapHTTPStatus maps an upstream HTTP status to an error code.
func MapHTTPStatus(status int) types.ErrorCode {
	switch {
	case status == http.StatusUnauthorized:
		return types.ErrUnauthorized
	case status == http.StatusForbidden:
		return types.ErrForbidden
	case status == http.StatusTooManyRequests:
		return types.ErrRateLimited
	case status == http.StatusRequestTimeout || status == http.StatusGatewayTimeout:
		return types.ErrTimeout
	case status == http.StatusNotFound:
		return types.ErrNotFound
	case status >= 500:
		return types.ErrUpstreamError
	case status >= 400:
		return types.ErrInvalidRequest
	}
	return types.ErrUpstreamError
}

// MapHTTPError builds the Error for a non-2xx upstream response.
func MapHTTPError(status int, message, provider string) *Error {
	return NewError(MapHTTPStatus(status), message, provider).WithHTTPStatus(status)
}

// MapTransportError classifies a failure that happened before a response arrived.
func MapTransportError(err error, provider string) *Error {
	var netErr net.Error
	if errors.Is(err, context.DeadlineExceeded) || (errors.As(err, &netErr) && netErr.Timeout()) {
		return NewError(types.ErrTimeout, "request timed out", provider).WithCause(err)
	}
	return NewError(types.ErrUpstreamError, "request failed", provider).WithCause(err)
}
