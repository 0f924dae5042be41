package handlers

import (
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"github.com/BaSui01/experimentkit/types"
)

// =============================================================================
// 🧪 Common 函数测试
// =============================================================================

func decodeResponse(t *testing.T, w *httptest.ResponseRecorder) Response {
	t.Helper()
	var resp Response
	require.NoError(t, json.NewDecoder(w.Body).Decode(&resp))
	return resp
}

func TestWriteJSON(t *testing.T) {
	w := httptest.NewRecorder()
	WriteJSON(w, http.StatusCreated, map[string]string{"message": "hello"})

	assert.Equal(t, http.StatusCreated, w.Code)
	assert.Equal(t, "application/json; charset=utf-8", w.Header().Get("Content-Type"))
	assert.Equal(t, "nosniff", w.Header().Get("X-Content-Type-Options"))
	assert.JSONEq(t, `{"message":"hello"}`, w.Body.String())
}

func TestWriteSuccess_CarriesRequestID(t *testing.T) {
	w := httptest.NewRecorder()
	w.Header().Set(RequestIDHeader, "req-42")

	WriteSuccess(w, map[string]string{"key": "value"})

	assert.Equal(t, http.StatusOK, w.Code)
	resp := decodeResponse(t, w)
	assert.True(t, resp.Success)
	assert.Nil(t, resp.Error)
	assert.Equal(t, "req-42", resp.RequestID)
	assert.False(t, resp.Timestamp.IsZero())
	assert.Equal(t, map[string]any{"key": "value"}, resp.Data)
}

func TestWriteError(t *testing.T) {
	tests := []struct {
		name       string
		err        *types.Error
		wantStatus int
	}{
		{"explicit status wins", types.NewError(types.ErrInvalidRequest, "bad").WithHTTPStatus(http.StatusTeapot), http.StatusTeapot},
		{"mapped from code", types.NewError(types.ErrNotFound, "missing"), http.StatusNotFound},
		{"internal with cause", types.NewError(types.ErrInternalError, "boom").WithCause(errors.New("db down")), http.StatusInternalServerError},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			w := httptest.NewRecorder()
			WriteError(w, tt.err, zap.NewNop())

			assert.Equal(t, tt.wantStatus, w.Code)
			resp := decodeResponse(t, w)
			assert.False(t, resp.Success)
			require.NotNil(t, resp.Error)
			assert.Equal(t, string(tt.err.Code), resp.Error.Code)
			assert.Equal(t, tt.err.Message, resp.Error.Message)
			assert.NotContains(t, w.Body.String(), "db down", "causes stay in logs")
		})
	}
}

func TestDecodeJSONBody(t *testing.T) {
	type payload struct {
		Name string `json:"name"`
	}

	tests := []struct {
		name    string
		body    string
		wantErr bool
	}{
		{"valid", `{"name":"x"}`, false},
		{"malformed", `{"name":`, true},
		{"unknown field", `{"name":"x","extra":1}`, true},
		{"empty", ``, true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			w := httptest.NewRecorder()
			r := httptest.NewRequest(http.MethodPost, "/", strings.NewReader(tt.body))

			var dst payload
			err := DecodeJSONBody(w, r, &dst, zap.NewNop())
			if tt.wantErr {
				require.Error(t, err)
				assert.Equal(t, http.StatusBadRequest, w.Code)
				return
			}
			require.NoError(t, err)
			assert.Equal(t, "x", dst.Name)
		})
	}
}

func TestDecodeJSONBody_MaxBodySize(t *testing.T) {
	body := `{"name":"` + strings.Repeat("a", maxBodyBytes+10) + `"}`
	w := httptest.NewRecorder()
	r := httptest.NewRequest(http.MethodPost, "/", strings.NewReader(body))

	var dst map[string]string
	err := DecodeJSONBody(w, r, &dst, zap.NewNop())
	require.Error(t, err)
	assert.Equal(t, http.StatusBadRequest, w.Code)
	assert.Contains(t, w.Body.String(), "request body too large")
}

func TestResponseWriter(t *testing.T) {
	rec := httptest.NewRecorder()
	rw := NewResponseWriter(rec)

	rw.WriteHeader(http.StatusAccepted)
	rw.WriteHeader(http.StatusInternalServerError)
	_, err := rw.Write([]byte("ok"))
	require.NoError(t, err)

	assert.Equal(t, http.StatusAccepted, rw.StatusCode)
	assert.Equal(t, http.StatusAccepted, rec.Code)
	assert.Same(t, rec, rw.Unwrap())
}

func TestMapErrorCodeToHTTPStatus(t *testing.T) {
	tests := map[types.ErrorCode]int{
		types.ErrInvalidRequest:       http.StatusBadRequest,
		types.ErrUnsupportedProvider:  http.StatusBadRequest,
		types.ErrDependencyResolution: http.StatusBadRequest,
		types.ErrAgentExecution:       http.StatusBadRequest,
		types.ErrUnauthorized:         http.StatusUnauthorized,
		types.ErrForbidden:            http.StatusForbidden,
		types.ErrNotFound:             http.StatusNotFound,
		types.ErrConflict:             http.StatusConflict,
		types.ErrRateLimited:          http.StatusTooManyRequests,
		types.ErrTimeout:              http.StatusGatewayTimeout,
		types.ErrUpstreamError:        http.StatusBadGateway,
		types.ErrLLMCallFailed:        http.StatusBadGateway,
		types.ErrConfiguration:        http.StatusServiceUnavailable,
		types.ErrInternalError:        http.StatusInternalServerError,
		types.ErrorCode("SOMETHING"):  http.StatusInternalServerError,
	}
	for code, want := range tests {
		assert.Equal(t, want, mapErrorCodeToHTTPStatus(code), code)
	}
}
