package providers

import (
	"context"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/BaSui01/experimentkit/types"
)

func TestReadErrorMessage(t *testing.T) {
	tests := []struct {
		name string
		body string
		want string
	}{
		{"openai style", `{"error":{"message":"bad key","type":"auth"}}`, "bad key (type: auth)"},
		{"message only", `{"error":{"message":"nope"}}`, "nope"},
		{"flat message", `{"message":"flat"}`, "flat"},
		{"plain text", "gateway exploded\n", "gateway exploded"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, ReadErrorMessage(strings.NewReader(tt.body)))
		})
	}
}

func TestPostJSON(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "application/json", r.Header.Get("Content-Type"))
		assert.Equal(t, "v", r.Header.Get("X-Test"))
		switch r.URL.Path {
		case "/ok":
			_, _ = w.Write([]byte(`{"value":"yes"}`))
		case "/limited":
			w.WriteHeader(http.StatusTooManyRequests)
			_, _ = w.Write([]byte(`{"error":{"message":"slow down"}}`))
		default:
			_, _ = w.Write([]byte(`not json`))
		}
	}))
	defer srv.Close()

	client := NewHTTPClient(0)
	headers := map[string]string{"X-Test": "v"}

	var out struct{ Value string }
	require.NoError(t, PostJSON(context.Background(), client, srv.URL+"/ok", headers, map[string]int{"a": 1}, &out, "test"))
	assert.Equal(t, "yes", out.Value)

	err := PostJSON(context.Background(), client, srv.URL+"/limited", headers, nil, &out, "test")
	e, ok := types.AsError(err)
	require.True(t, ok)
	assert.Equal(t, types.ErrRateLimited, e.Code)
	assert.True(t, e.Retryable)
	assert.Equal(t, "slow down", e.Message)

	err = PostJSON(context.Background(), client, srv.URL+"/garbage", headers, nil, &out, "test")
	assert.True(t, types.IsErrorCode(err, types.ErrUpstreamError))
}

func TestEndpoint(t *testing.T) {
	assert.Equal(t, "https://api.x/v1/chat", Endpoint("https://api.x/", "/v1/chat"))
}
