package llm

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"

	"github.com/BaSui01/experimentkit/types"
)

type MockProvider struct {
	mock.Mock
	name string
}

func (m *MockProvider) Name() string { return m.name }

func (m *MockProvider) Completion(ctx context.Context, req *ChatRequest) (*ChatResponse, error) {
	args := m.Called(ctx, req)
	if resp := args.Get(0); resp != nil {
		return resp.(*ChatResponse), args.Error(1)
	}
	return nil, args.Error(1)
}

func (m *MockProvider) HealthCheck(ctx context.Context) error {
	return m.Called(ctx).Error(0)
}

type recordedCalls struct {
	mu     sync.Mutex
	events []string
}

func (r *recordedCalls) add(s string) {
	r.mu.Lock()
	r.events = append(r.events, s)
	r.mu.Unlock()
}

func (r *recordedCalls) RecordLLMRequest(provider, model string) { r.add("request:" + provider + ":" + model) }
func (r *recordedCalls) RecordLLMDuration(_, status string, _ time.Duration) {
	r.add("duration:" + status)
}
func (r *recordedCalls) RecordLLMSuccess(string)                { r.add("success") }
func (r *recordedCalls) RecordLLMError(_, errorType string)     { r.add("error:" + errorType) }
func (r *recordedCalls) RecordLLMCacheHit(string)               { r.add("cache_hit") }

func testConfig() ClientConfig {
	cfg := DefaultClientConfig()
	cfg.RetryInitialDelay = time.Millisecond
	cfg.RetryMaxDelay = 2 * time.Millisecond
	return cfg
}

func TestClient_CallAppliesDefaults(t *testing.T) {
	p := &MockProvider{name: "openai"}
	p.On("Completion", mock.Anything, mock.MatchedBy(func(req *ChatRequest) bool {
		return req.Model == "gpt-4o-mini" &&
			req.MaxTokens == 250 &&
			req.Temperature == 0.7 &&
			len(req.Messages) == 2 &&
			req.Messages[0].Role == RoleSystem &&
			req.Messages[0].Content == "be terse" &&
			req.Messages[1].Content == "hello"
	})).Return(&ChatResponse{Content: "  hi there \n"}, nil).Once()

	c := NewClient(testConfig(), WithProvider(p))
	out, err := c.Call(context.Background(), CallRequest{Prompt: "hello", SystemMessage: "be terse"})
	require.NoError(t, err)
	assert.Equal(t, "hi there", out)
	p.AssertExpectations(t)
}

func TestClient_ExplicitZeroTemperature(t *testing.T) {
	p := &MockProvider{name: "mistral"}
	p.On("Completion", mock.Anything, mock.MatchedBy(func(req *ChatRequest) bool {
		return req.Temperature == 0 && req.Model == "mistral-small" && req.MaxTokens == 400
	})).Return(&ChatResponse{Content: "ok"}, nil).Once()

	c := NewClient(testConfig(), WithProvider(p))
	_, err := c.Call(context.Background(), CallRequest{
		Prompt:      "x",
		Provider:    "MISTRAL",
		Model:       "mistral-small",
		MaxTokens:   400,
		Temperature: Float32(0),
	})
	require.NoError(t, err)
	p.AssertExpectations(t)
}

func TestClient_RetriesThenSucceeds(t *testing.T) {
	p := &MockProvider{name: "openai"}
	rateLimited := MapHTTPError(429, "slow down", "openai")
	p.On("Completion", mock.Anything, mock.Anything).Return(nil, rateLimited).Twice()
	p.On("Completion", mock.Anything, mock.Anything).Return(&ChatResponse{Content: "third time"}, nil).Once()

	rec := &recordedCalls{}
	c := NewClient(testConfig(), WithProvider(p), WithRecorder(rec))
	out, err := c.Call(context.Background(), CallRequest{Prompt: "p"})
	require.NoError(t, err)
	assert.Equal(t, "third time", out)
	p.AssertNumberOfCalls(t, "Completion", 3)
	assert.Equal(t, []string{"request:openai:gpt-4o-mini", "duration:success", "success"}, rec.events)
}

func TestClient_ExhaustedReturnsCallFailed(t *testing.T) {
	p := &MockProvider{name: "anthropic"}
	upstream := MapHTTPError(503, "overloaded", "anthropic")
	p.On("Completion", mock.Anything, mock.Anything).Return(nil, upstream)

	rec := &recordedCalls{}
	c := NewClient(testConfig(), WithProvider(p), WithRecorder(rec))
	_, err := c.Call(context.Background(), CallRequest{Prompt: "p", Provider: "anthropic"})
	require.Error(t, err)

	p.AssertNumberOfCalls(t, "Completion", 3)
	assert.True(t, types.IsErrorCode(err, types.ErrLLMCallFailed))
	assert.Contains(t, err.Error(), "LLM API call failed after 3 attempts")
	assert.ErrorIs(t, err, upstream)
	assert.Contains(t, rec.events, "error:UPSTREAM_ERROR")
}

func TestClient_AuthFailureIsNotRetried(t *testing.T) {
	p := &MockProvider{name: "openai"}
	p.On("Completion", mock.Anything, mock.Anything).Return(nil, MapHTTPError(401, "bad key", "openai"))

	c := NewClient(testConfig(), WithProvider(p))
	_, err := c.Call(context.Background(), CallRequest{Prompt: "p"})
	require.Error(t, err)
	p.AssertNumberOfCalls(t, "Completion", 1)
	assert.True(t, types.IsErrorCode(err, types.ErrLLMCallFailed))
	assert.Contains(t, err.Error(), "LLM API call failed after 1 attempt: ")
	assert.NotContains(t, err.Error(), "1 attempts")
}

func TestClient_NonRetryableStatusesStopAfterFirstAttempt(t *testing.T) {
	for _, status := range []int{400, 401, 403} {
		t.Run(fmt.Sprint(status), func(t *testing.T) {
			p := &MockProvider{name: "openai"}
			p.On("Completion", mock.Anything, mock.Anything).Return(nil, MapHTTPError(status, "nope", "openai"))

			_, err := NewClient(testConfig(), WithProvider(p)).Call(context.Background(), CallRequest{Prompt: "p"})
			require.Error(t, err)
			p.AssertNumberOfCalls(t, "Completion", 1)
			assert.Contains(t, err.Error(), "after 1 attempt: ")
		})
	}
}

func TestPluralAttempts(t *testing.T) {
	assert.Equal(t, "1 attempt", pluralAttempts(1))
	assert.Equal(t, "2 attempts", pluralAttempts(2))
	assert.Equal(t, "3 attempts", pluralAttempts(3))
}

func TestClient_ProviderRouting(t *testing.T) {
	c := NewClient(testConfig())

	_, err := c.Call(context.Background(), CallRequest{Prompt: "p", Provider: "cohere"})
	assert.True(t, types.IsErrorCode(err, types.ErrUnsupportedProvider))
	assert.Contains(t, err.Error(), "Unsupported provider: cohere")

	_, err = c.Call(context.Background(), CallRequest{Prompt: "p", Provider: "anthropic"})
	assert.True(t, types.IsErrorCode(err, types.ErrConfiguration))
}

func TestClient_CancelledContextStopsRetrying(t *testing.T) {
	cfg := testConfig()
	cfg.RetryInitialDelay = time.Hour
	cfg.RetryMaxDelay = time.Hour

	p := &MockProvider{name: "openai"}
	p.On("Completion", mock.Anything, mock.Anything).Return(nil, MapHTTPError(500, "boom", "openai"))

	ctx, cancel := context.WithTimeout(context.Background(), 20*time.Millisecond)
	defer cancel()

	_, err := NewClient(cfg, WithProvider(p)).Call(ctx, CallRequest{Prompt: "p"})
	require.Error(t, err)
	p.AssertNumberOfCalls(t, "Completion", 1)
	assert.True(t, types.IsErrorCode(err, types.ErrLLMCallFailed))
}

type mapCache struct {
	mu    sync.Mutex
	items map[string]*ChatResponse
}

func (m *mapCache) GetCompletion(_ context.Context, key string) (*ChatResponse, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.items[key], nil
}

func (m *mapCache) SetCompletion(_ context.Context, key string, resp *ChatResponse) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.items[key] = resp
	return nil
}

func TestClient_CacheServesRepeatCalls(t *testing.T) {
	p := &MockProvider{name: "openai"}
	p.On("Completion", mock.Anything, mock.Anything).Return(&ChatResponse{Content: "cached answer"}, nil).Once()

	rec := &recordedCalls{}
	c := NewClient(testConfig(), WithProvider(p), WithRecorder(rec), WithCache(&mapCache{items: map[string]*ChatResponse{}}))

	for i := 0; i < 2; i++ {
		out, err := c.Call(context.Background(), CallRequest{Prompt: "same"})
		require.NoError(t, err)
		assert.Equal(t, "cached answer", out)
	}
	p.AssertNumberOfCalls(t, "Completion", 1)
	assert.Contains(t, rec.events, "cache_hit")
}

type fixedEstimator int

func (f fixedEstimator) CountTokens(string, string) int { return int(f) }

func TestClient_TokenEstimateFillsUsage(t *testing.T) {
	p := &MockProvider{name: "openai"}
	p.On("Completion", mock.Anything, mock.Anything).Return(&ChatResponse{Content: "x"}, nil)

	resp, err := NewClient(testConfig(), WithProvider(p), WithTokenEstimator(fixedEstimator(7))).
		Generate(context.Background(), CallRequest{Prompt: "p", SystemMessage: "s"})
	require.NoError(t, err)
	assert.Equal(t, 14, resp.Usage.PromptTokens)
	assert.Equal(t, "openai", resp.Provider)
	assert.Equal(t, "gpt-4o-mini", resp.Model)
}

func TestCacheKey_Stable(t *testing.T) {
	a := &ChatRequest{Model: "m", Messages: []Message{{Role: RoleUser, Content: "x"}}}
	b := &ChatRequest{Model: "m", Messages: []Message{{Role: RoleUser, Content: "x"}}}
	assert.Equal(t, CacheKey("openai", a), CacheKey("openai", b))
	assert.NotEqual(t, CacheKey("openai", a), CacheKey("mistral", a))
}

func TestHealthCheck(t *testing.T) {
	ok := &MockProvider{name: "openai"}
	ok.On("HealthCheck", mock.Anything).Return(nil)
	bad := &MockProvider{name: "anthropic"}
	bad.On("HealthCheck", mock.Anything).Return(errors.New("down"))

	c := NewClient(testConfig(), WithProvider(ok), WithProvider(bad))
	res := c.HealthCheck(context.Background())
	assert.NoError(t, res["openai"])
	assert.EqualError(t, res["anthropic"], "down")
	assert.Equal(t, []string{"anthropic", "openai"}, c.Providers())
}
