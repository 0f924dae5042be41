package llm

import (
	"context"
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
	"fmt"
	"sort"
	"strings"
	"sync"
	"time"

	"go.uber.org/zap"

	"github.com/BaSui01/experimentkit/llm/retry"
	"github.com/BaSui01/experimentkit/types"
)

// Provider names understood by Client.
const (
	ProviderOpenAI    = "openai"
	ProviderAnthropic = "anthropic"
	ProviderMistral   = "mistral"
)

// KnownProviders lists the provider names Client can route to.
var KnownProviders = []string{ProviderOpenAI, ProviderAnthropic, ProviderMistral}

// IsKnownProvider reports whether name (case-insensitive) is a supported provider.
func IsKnownProvider(name string) bool {
	name = strings.ToLower(name)
	for _, p := range KnownProviders {
		if p == name {
			return true
		}
	}
	return false
}

// ClientConfig holds the defaults applied to every call.
type ClientConfig struct {
	DefaultProvider    string
	DefaultModel       string
	DefaultMaxTokens   int
	DefaultTemperature float32
	Timeout            time.Duration
	MaxAttempts        int
	RetryInitialDelay  time.Duration
	RetryMaxDelay      time.Duration
}

// DefaultClientConfig 返回默认配置：openai / gpt-4o-mini，3 次尝试，60s 超时。
func DefaultClientConfig() ClientConfig {
	return ClientConfig{
		DefaultProvider:    ProviderOpenAI,
		DefaultModel:       "gpt-4o-mini",
		DefaultMaxTokens:   250,
		DefaultTemperature: 0.7,
		Timeout:            60 * time.Second,
		MaxAttempts:        3,
		RetryInitialDelay:  time.Second,
		RetryMaxDelay:      30 * time.Second,
	}
}

// CallRequest is a single-prompt completion request. Zero fields fall back to
// the client defaults; Temperature is a pointer because 0 is a valid value.
type CallRequest struct {
	Prompt        string
	SystemMessage string
	Model         string
	Provider      string
	MaxTokens     int
	Temperature   *float32
	Timeout       time.Duration
}

// Float32 returns a pointer to v.
func Float32(v float32) *float32 { return &v }

// Recorder receives LLM call metrics.
type Recorder interface {
	RecordLLMRequest(provider, model string)
	RecordLLMDuration(provider, status string, d time.Duration)
	RecordLLMSuccess(provider string)
	RecordLLMError(provider, errorType string)
	RecordLLMCacheHit(provider string)
}

type nopRecorder struct{}

func (nopRecorder) RecordLLMRequest(string, string)                  {}
func (nopRecorder) RecordLLMDuration(string, string, time.Duration) {}
func (nopRecorder) RecordLLMSuccess(string)                          {}
func (nopRecorder) RecordLLMError(string, string)                    {}
func (nopRecorder) RecordLLMCacheHit(string)                         {}

// CompletionCache stores completed responses. GetCompletion returns (nil, nil) on a miss.
type CompletionCache interface {
	GetCompletion(ctx context.Context, key string) (*ChatResponse, error)
	SetCompletion(ctx context.Context, key string, resp *ChatResponse) error
}

// TokenEstimator counts prompt tokens locally.
type TokenEstimator interface {
	CountTokens(model, text string) int
}

// ClientOption configures a Client.
type ClientOption func(*Client)

func WithProvider(p Provider) ClientOption {
	return func(c *Client) {
		if p != nil {
			c.providers[strings.ToLower(p.Name())] = p
		}
	}
}

func WithLogger(logger *zap.Logger) ClientOption {
	return func(c *Client) {
		if logger != nil {
			c.logger = logger
		}
	}
}

func WithRecorder(rec Recorder) ClientOption {
	return func(c *Client) {
		if rec != nil {
			c.recorder = rec
		}
	}
}

func WithCache(cache CompletionCache) ClientOption {
	return func(c *Client) { c.cache = cache }
}

func WithTokenEstimator(est TokenEstimator) ClientOption {
	return func(c *Client) { c.estimator = est }
}

// Client routes completion calls to providers with defaults, retries,
// metrics and an optional response cache.
type Client struct {
	mu        sync.RWMutex
	cfg       ClientConfig
	providers map[string]Provider
	logger    *zap.Logger
	recorder  Recorder
	cache     CompletionCache
	estimator TokenEstimator
}

// NewClient creates a client. Invalid numeric settings are replaced with defaults.
func NewClient(cfg ClientConfig, opts ...ClientOption) *Client {
	def := DefaultClientConfig()
	if cfg.DefaultProvider == "" {
		cfg.DefaultProvider = def.DefaultProvider
	}
	if cfg.DefaultModel == "" {
		cfg.DefaultModel = def.DefaultModel
	}
	if cfg.DefaultMaxTokens <= 0 {
		cfg.DefaultMaxTokens = def.DefaultMaxTokens
	}
	if cfg.Timeout <= 0 {
		cfg.Timeout = def.Timeout
	}
	if cfg.MaxAttempts <= 0 {
		cfg.MaxAttempts = def.MaxAttempts
	}
	if cfg.RetryInitialDelay <= 0 {
		cfg.RetryInitialDelay = def.RetryInitialDelay
	}
	if cfg.RetryMaxDelay <= 0 {
		cfg.RetryMaxDelay = def.RetryMaxDelay
	}
	cfg.DefaultProvider = strings.ToLower(cfg.DefaultProvider)

	c := &Client{
		cfg:       cfg,
		providers: make(map[string]Provider),
		logger:    zap.NewNop(),
		recorder:  nopRecorder{},
	}
	for _, opt := range opts {
		opt(c)
	}
	c.logger = c.logger.With(zap.String("component", "llm_client"))
	return c
}

// Config returns the effective defaults.
func (c *Client) Config() ClientConfig { return c.cfg }

// RegisterProvider adds or replaces a provider.
func (c *Client) RegisterProvider(p Provider) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.providers[strings.ToLower(p.Name())] = p
}

// Providers returns the configured provider names, sorted.
func (c *Client) Providers() []string {
	c.mu.RLock()
	defer c.mu.RUnlock()
	out := make([]string, 0, len(c.providers))
	for name := range c.providers {
		out = append(out, name)
	}
	sort.Strings(out)
	return out
}

// Provider resolves name (case-insensitive). A known provider without
// credentials is a configuration error; any other name is unsupported.
func (c *Client) Provider(name string) (Provider, error) {
	name = strings.ToLower(name)
	c.mu.RLock()
	p, ok := c.providers[name]
	c.mu.RUnlock()
	if ok {
		return p, nil
	}
	if IsKnownProvider(name) {
		return nil, types.Errorf(types.ErrConfiguration, "API key for provider %s is not configured", name).
			WithProvider(name)
	}
	return nil, types.Errorf(types.ErrUnsupportedProvider, "Unsupported provider: %s", name).
		WithProvider(name)
}

// Call sends prompt and returns the trimmed completion text.
func (c *Client) Call(ctx context.Context, req CallRequest) (string, error) {
	resp, err := c.Generate(ctx, req)
	if err != nil {
		return "", err
	}
	return resp.Content, nil
}

// Generate is Call with the full response.
func (c *Client) Generate(ctx context.Context, req CallRequest) (*ChatResponse, error) {
	providerName := req.Provider
	if providerName == "" {
		providerName = c.cfg.DefaultProvider
	}
	providerName = strings.ToLower(providerName)

	p, err := c.Provider(providerName)
	if err != nil {
		c.recorder.RecordLLMError(providerName, string(types.GetErrorCode(err)))
		return nil, err
	}

	chat := c.buildRequest(req)
	return c.Complete(ctx, p, chat)
}

func (c *Client) buildRequest(req CallRequest) *ChatRequest {
	chat := &ChatRequest{
		Model:       req.Model,
		MaxTokens:   req.MaxTokens,
		Temperature: c.cfg.DefaultTemperature,
		Timeout:     req.Timeout,
	}
	if chat.Model == "" {
		chat.Model = c.cfg.DefaultModel
	}
	if chat.MaxTokens <= 0 {
		chat.MaxTokens = c.cfg.DefaultMaxTokens
	}
	if req.Temperature != nil {
		chat.Temperature = *req.Temperature
	}
	if chat.Timeout <= 0 {
		chat.Timeout = c.cfg.Timeout
	}
	if req.SystemMessage != "" {
		chat.Messages = append(chat.Messages, Message{Role: RoleSystem, Content: req.SystemMessage})
	}
	chat.Messages = append(chat.Messages, Message{Role: RoleUser, Content: req.Prompt})
	return chat
}

// Complete sends chat to p with caching and retries. Every failure is
// reported as a single CALL_FAILED error wrapping the last provider error.
func (c *Client) Complete(ctx context.Context, p Provider, chat *ChatRequest) (*ChatResponse, error) {
	name := p.Name()
	logger := c.logger.With(zap.String("provider", name), zap.String("model", chat.Model))

	if c.estimator != nil && logger.Core().Enabled(zap.DebugLevel) {
		logger.Debug("llm call prepared", zap.Int("prompt_tokens_estimate", c.estimatePrompt(chat)))
	}

	var key string
	if c.cache != nil {
		key = CacheKey(name, chat)
		cached, err := c.cache.GetCompletion(ctx, key)
		if err != nil {
			logger.Warn("completion cache read failed", zap.Error(err))
		} else if cached != nil {
			c.recorder.RecordLLMCacheHit(name)
			logger.Debug("completion served from cache")
			return cached, nil
		}
	}

	c.recorder.RecordLLMRequest(name, chat.Model)
	start := time.Now()

	attempts := 0
	policy := &retry.RetryPolicy{
		MaxRetries:   c.cfg.MaxAttempts - 1,
		InitialDelay: c.cfg.RetryInitialDelay,
		MaxDelay:     c.cfg.RetryMaxDelay,
		Multiplier:   2.0,
		ShouldRetry:  ShouldRetry,
		OnRetry: func(attempt int, err error, delay time.Duration) {
			logger.Warn("LLM API call failed, retrying",
				zap.Int("attempt", attempt),
				zap.Int("max_attempts", c.cfg.MaxAttempts),
				zap.Duration("delay", delay),
				zap.Error(err),
			)
		},
	}

	var lastErr error
	resp, err := retry.DoWithResultTyped(retry.NewBackoffRetryer(policy, logger), ctx, func() (*ChatResponse, error) {
		attempts++
		attemptCtx, cancel := context.WithTimeout(ctx, chat.Timeout)
		defer cancel()
		r, err := p.Completion(attemptCtx, chat)
		if err != nil {
			lastErr = err
			return nil, err
		}
		return r, nil
	})
	elapsed := time.Since(start)

	if err != nil {
		if lastErr == nil {
			lastErr = err
		}
		errType := string(types.GetErrorCode(lastErr))
		if errType == "" {
			errType = string(types.ErrUpstreamError)
		}
		c.recorder.RecordLLMDuration(name, "error", elapsed)
		c.recorder.RecordLLMError(name, errType)
		logger.Error("LLM API call failed",
			zap.Int("attempts", attempts),
			zap.Duration("duration", elapsed),
			zap.Error(lastErr),
		)
		return nil, types.Errorf(types.ErrLLMCallFailed, "LLM API call failed after %s: %v", pluralAttempts(attempts), lastErr).
			WithCause(lastErr).
			WithProvider(name)
	}

	resp.Content = strings.TrimSpace(resp.Content)
	if resp.Provider == "" {
		resp.Provider = name
	}
	if resp.Model == "" {
		resp.Model = chat.Model
	}
	if resp.Usage.PromptTokens == 0 && c.estimator != nil {
		resp.Usage.PromptTokens = c.estimatePrompt(chat)
	}

	c.recorder.RecordLLMDuration(name, "success", elapsed)
	c.recorder.RecordLLMSuccess(name)
	logger.Info("LLM API call completed",
		zap.Int("attempts", attempts),
		zap.Duration("duration", elapsed),
		zap.Int("completion_tokens", resp.Usage.CompletionTokens),
	)

	if c.cache != nil {
		if err := c.cache.SetCompletion(ctx, key, resp); err != nil {
			logger.Warn("completion cache write failed", zap.Error(err))
		}
	}
	return resp, nil
}

func pluralAttempts(n int) string {
	if n == 1 {
		return "1 attempt"
	}
	return fmt.Sprintf("%d attempts", n)
}

func (c *Client) estimatePrompt(chat *ChatRequest) int {
	total := 0
	for _, m := range chat.Messages {
		total += c.estimator.CountTokens(chat.Model, m.Content)
	}
	return total
}

// HealthCheck probes every configured provider. The map holds nil for healthy providers.
func (c *Client) HealthCheck(ctx context.Context) map[string]error {
	c.mu.RLock()
	providers := make([]Provider, 0, len(c.providers))
	for _, p := range c.providers {
		providers = append(providers, p)
	}
	c.mu.RUnlock()

	out := make(map[string]error, len(providers))
	for _, p := range providers {
		out[p.Name()] = p.HealthCheck(ctx)
	}
	return out
}

// CacheKey derives a stable key from everything that affects the completion.
func CacheKey(provider string, chat *ChatRequest) string {
	payload, _ := json.Marshal(struct {
		Provider    string    `json:"p"`
		Model       string    `json:"m"`
		MaxTokens   int       `json:"t"`
		Temperature float32   `json:"temp"`
		Messages    []Message `json:"msgs"`
	}{provider, chat.Model, chat.MaxTokens, chat.Temperature, chat.Messages})
	sum := sha256.Sum256(payload)
	return "llm:completion:" + hex.EncodeToString(sum[:])
}
