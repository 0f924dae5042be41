package anthropic

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/BaSui01/experimentkit/llm"
	"github.com/BaSui01/experimentkit/llm/providers"
	"github.com/BaSui01/experimentkit/types"
)

func TestProvider_Completion(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "/v1/messages", r.URL.Path)
		assert.Equal(t, "a-key", r.Header.Get("x-api-key"))
		assert.Equal(t, APIVersion, r.Header.Get("anthropic-version"))

		var body messagesRequest
		require.NoError(t, json.NewDecoder(r.Body).Decode(&body))
		assert.Equal(t, "You are a precise experiment improvement agent.", body.System)
		require.Len(t, body.Messages, 1)
		assert.Equal(t, "user", body.Messages[0].Role)
		assert.Equal(t, 250, body.MaxTokens)

		_, _ = w.Write([]byte(`{
			"id":"msg_1","model":"claude-3-5-haiku-latest","stop_reason":"end_turn",
			"content":[{"type":"text","text":" Revised hypothesis. "},{"type":"text","text":"ignored"}],
			"usage":{"input_tokens":20,"output_tokens":5}
		}`))
	}))
	defer srv.Close()

	p := New(Config{BaseProviderConfig: providers.BaseProviderConfig{APIKey: "a-key", BaseURL: srv.URL}}, nil)
	resp, err := p.Completion(context.Background(), &llm.ChatRequest{
		Model:     "claude-3-5-haiku-latest",
		MaxTokens: 250,
		Messages: []llm.Message{
			{Role: llm.RoleSystem, Content: "You are a precise experiment improvement agent."},
			{Role: llm.RoleUser, Content: "revise"},
		},
	})
	require.NoError(t, err)
	assert.Equal(t, "Revised hypothesis.", resp.Content)
	assert.Equal(t, "anthropic", resp.Provider)
	assert.Equal(t, 25, resp.Usage.TotalTokens)
}

func TestProvider_Overloaded(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(529)
		_, _ = w.Write([]byte(`{"type":"error","error":{"type":"overloaded_error","message":"Overloaded"}}`))
	}))
	defer srv.Close()

	p := New(Config{BaseProviderConfig: providers.BaseProviderConfig{APIKey: "k", BaseURL: srv.URL}}, nil)
	_, err := p.Completion(context.Background(), &llm.ChatRequest{Model: "m", MaxTokens: 10})
	e, ok := types.AsError(err)
	require.True(t, ok)
	assert.Equal(t, types.ErrUpstreamError, e.Code)
	assert.True(t, e.Retryable)
	assert.Equal(t, "Overloaded (type: overloaded_error)", e.Message)
}
