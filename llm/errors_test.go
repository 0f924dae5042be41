package llm

import (
	"context"
	"errors"
	"fmt"
	"testing"

	"github.com/stretchr/testify/assert"

	"github.com/BaSui01/experimentkit/types"
)

func TestMapHTTPStatus(t *testing.T) {
	tests := []struct {
		status    int
		code      types.ErrorCode
		retryable bool
	}{
		{401, types.ErrUnauthorized, false},
		{403, types.ErrForbidden, false},
		{429, types.ErrRateLimited, true},
		{400, types.ErrInvalidRequest, false},
		{422, types.ErrInvalidRequest, false},
		{500, types.ErrUpstreamError, true},
		{503, types.ErrUpstreamError, true},
		{504, types.ErrTimeout, true},
	}
	for _, tt := range tests {
		t.Run(fmt.Sprint(tt.status), func(t *testing.T) {
			err := MapHTTPError(tt.status, "msg", "openai")
			assert.Equal(t, tt.code, err.Code)
			assert.Equal(t, tt.retryable, err.Retryable)
			assert.Equal(t, tt.status, err.HTTPStatus)
			assert.Equal(t, "openai", err.Provider)
		})
	}
}

func TestShouldRetry(t *testing.T) {
	assert.True(t, ShouldRetry(errors.New("connection reset")))
	assert.False(t, ShouldRetry(context.Canceled))
	assert.False(t, ShouldRetry(MapHTTPError(401, "x", "p")))
	assert.True(t, ShouldRetry(fmt.Errorf("wrapped: %w", MapHTTPError(502, "x", "p"))))
}

func TestMapTransportError(t *testing.T) {
	err := MapTransportError(context.DeadlineExceeded, "mistral")
	assert.Equal(t, types.ErrTimeout, err.Code)
	assert.True(t, err.Retryable)
	assert.ErrorIs(t, err, context.DeadlineExceeded)

	err = MapTransportError(errors.New("dial tcp: refused"), "mistral")
	assert.Equal(t, types.ErrUpstreamError, err.Code)
}
