package handlers

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"github.com/BaSui01/experimentkit/api"
)

// =============================================================================
// 🧪 HealthHandler 测试
// =============================================================================

func TestHealthHandler_HandleRoot(t *testing.T) {
	handler := NewHealthHandler("0.1.0", zap.NewNop())

	w := httptest.NewRecorder()
	handler.HandleRoot(w, httptest.NewRequest(http.MethodGet, "/", nil))
	require.Equal(t, http.StatusOK, w.Code)

	var banner api.Banner
	require.NoError(t, json.NewDecoder(w.Body).Decode(&banner))
	assert.Equal(t, "ExperimentKit API", banner.Name)
	assert.Equal(t, "0.1.0", banner.Version)

	w = httptest.NewRecorder()
	handler.HandleRoot(w, httptest.NewRequest(http.MethodGet, "/nope", nil))
	assert.Equal(t, http.StatusNotFound, w.Code)
}

func TestHealthHandler_HandleHealth(t *testing.T) {
	handler := NewHealthHandler("0.1.0", nil)
	handler.RegisterCheck(NewCheck("db", func(context.Context) error { return errors.New("down") }))

	w := httptest.NewRecorder()
	handler.HandleHealth(w, httptest.NewRequest(http.MethodGet, "/health", nil))

	assert.Equal(t, http.StatusOK, w.Code, "liveness ignores dependency checks")
	var status HealthStatus
	require.NoError(t, json.NewDecoder(w.Body).Decode(&status))
	assert.Equal(t, "healthy", status.Status)
	assert.False(t, status.Timestamp.IsZero())
}

func TestHealthHandler_HandleReady(t *testing.T) {
	tests := []struct {
		name       string
		checks     []HealthCheck
		wantStatus int
		wantState  string
	}{
		{
			name:       "no checks",
			wantStatus: http.StatusOK,
			wantState:  "healthy",
		},
		{
			name: "all pass",
			checks: []HealthCheck{
				NewCheck("database", func(context.Context) error { return nil }),
				NewCheck("redis", func(context.Context) error { return nil }),
			},
			wantStatus: http.StatusOK,
			wantState:  "healthy",
		},
		{
			name: "one fails",
			checks: []HealthCheck{
				NewCheck("database", func(context.Context) error { return nil }),
				NewCheck("redis", func(context.Context) error { return errors.New("connection refused") }),
			},
			wantStatus: http.StatusServiceUnavailable,
			wantState:  "unhealthy",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			handler := NewHealthHandler("test", zap.NewNop())
			for _, c := range tt.checks {
				handler.RegisterCheck(c)
			}

			w := httptest.NewRecorder()
			handler.HandleReady(w, httptest.NewRequest(http.MethodGet, "/ready", nil))

			assert.Equal(t, tt.wantStatus, w.Code)
			var status HealthStatus
			require.NoError(t, json.NewDecoder(w.Body).Decode(&status))
			assert.Equal(t, tt.wantState, status.Status)
			assert.Len(t, status.Checks, len(tt.checks))
			if tt.wantState == "unhealthy" {
				assert.Equal(t, "fail", status.Checks["redis"].Status)
				assert.Equal(t, "connection refused", status.Checks["redis"].Message)
				assert.Equal(t, "pass", status.Checks["database"].Status)
			}
		})
	}
}

func TestHealthHandler_ChecksRunConcurrently(t *testing.T) {
	handler := NewHealthHandler("test", zap.NewNop())

	var running atomic.Int32
	release := make(chan struct{})
	slow := func(ctx context.Context) error {
		if running.Add(1) == 3 {
			close(release)
		}
		select {
		case <-release:
			return nil
		case <-ctx.Done():
			return ctx.Err()
		}
	}
	for _, name := range []string{"a", "b", "c"} {
		handler.RegisterCheck(NewCheck(name, slow))
	}

	ctx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
	defer cancel()
	status := handler.Probe(ctx)

	assert.Equal(t, "healthy", status.Status, "checks must overlap to release each other")
	assert.Len(t, status.Checks, 3)
}

func TestHealthHandler_HandleVersion(t *testing.T) {
	handler := NewHealthHandler("1.2.3", zap.NewNop())

	w := httptest.NewRecorder()
	handler.HandleVersion("2024-01-01", "abc123")(w, httptest.NewRequest(http.MethodGet, "/version", nil))

	resp := decodeResponse(t, w)
	require.True(t, resp.Success)
	assert.Equal(t, map[string]any{
		"version":    "1.2.3",
		"build_time": "2024-01-01",
		"git_commit": "abc123",
	}, resp.Data)
}
