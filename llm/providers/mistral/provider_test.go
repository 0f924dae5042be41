package mistral

import (
	"context"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/BaSui01/experimentkit/llm"
	"github.com/BaSui01/experimentkit/llm/providers"
)

func TestNew_DefaultBaseURL(t *testing.T) {
	p := New(Config{}, nil)
	assert.Equal(t, "mistral", p.Name())
	var _ llm.Provider = p
}

func TestProvider_Completion(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "/v1/chat/completions", r.URL.Path)
		assert.Equal(t, "Bearer m-key", r.Header.Get("Authorization"))
		_, _ = w.Write([]byte(`{"model":"mistral-small","choices":[{"message":{"role":"assistant","content":"ok"}}]}`))
	}))
	defer srv.Close()

	p := New(Config{BaseProviderConfig: providers.BaseProviderConfig{APIKey: "m-key", BaseURL: srv.URL}}, nil)
	resp, err := p.Completion(context.Background(), &llm.ChatRequest{
		Model:    "mistral-small",
		Messages: []llm.Message{{Role: llm.RoleUser, Content: "x"}},
	})
	require.NoError(t, err)
	assert.Equal(t, "ok", resp.Content)
	assert.Equal(t, "mistral", resp.Provider)
}
