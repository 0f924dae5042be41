// Package anthropic 实现 Anthropic Messages API Provider。
package anthropic

import (
	"context"
	"net/http"
	"strings"

	"go.uber.org/zap"

	"github.com/BaSui01/experimentkit/llm"
	"github.com/BaSui01/experimentkit/llm/providers"
	"github.com/BaSui01/experimentkit/types"
)

const (
	DefaultBaseURL = "https://api.anthropic.com"
	APIVersion     = "2023-06-01"
)

// Config Anthropic Provider 配置
type Config struct {
	providers.BaseProviderConfig `yaml:",inline"`
}

type Provider struct {
	cfg    Config
	client *http.Client
	logger *zap.Logger
}

func New(cfg Config, logger *zap.Logger) *Provider {
	if cfg.BaseURL == "" {
		cfg.BaseURL = DefaultBaseURL
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Provider{
		cfg:    cfg,
		client: providers.NewHTTPClient(cfg.Timeout),
		logger: logger.With(zap.String("provider", llm.ProviderAnthropic)),
	}
}

func (p *Provider) Name() string { return llm.ProviderAnthropic }

func (p *Provider) headers() map[string]string {
	return map[string]string{
		"x-api-key":         p.cfg.APIKey,
		"anthropic-version": APIVersion,
	}
}

type message struct {
	Role    string `json:"role"`
	Content string `json:"content"`
}

type messagesRequest struct {
	Model       string    `json:"model"`
	System      string    `json:"system,omitempty"`
	Messages    []message `json:"messages"`
	MaxTokens   int       `json:"max_tokens"`
	Temperature float32   `json:"temperature"`
}

type messagesResponse struct {
	ID         string `json:"id"`
	Model      string `json:"model"`
	StopReason string `json:"stop_reason"`
	Content    []struct {
		Type string `json:"type"`
		Text string `json:"text"`
	} `json:"content"`
	Usage struct {
		InputTokens  int `json:"input_tokens"`
		OutputTokens int `json:"output_tokens"`
	} `json:"usage"`
}

// Completion 调用 POST {base}/v1/messages。system 消息从 messages 中移出，
// 放入独立的 system 字段；返回第一个内容块的文本。
func (p *Provider) Completion(ctx context.Context, req *llm.ChatRequest) (*llm.ChatResponse, error) {
	model := req.Model
	if model == "" {
		model = p.cfg.Model
	}
	body := messagesRequest{
		Model:       model,
		System:      req.SystemPrompt(),
		MaxTokens:   req.MaxTokens,
		Temperature: req.Temperature,
	}
	for _, m := range req.Messages {
		if m.Role == llm.RoleSystem {
			continue
		}
		body.Messages = append(body.Messages, message{Role: string(m.Role), Content: m.Content})
	}

	var out messagesResponse
	url := providers.Endpoint(p.cfg.BaseURL, "/v1/messages")
	if err := providers.PostJSON(ctx, p.client, url, p.headers(), body, &out, p.Name()); err != nil {
		return nil, err
	}
	if len(out.Content) == 0 {
		return nil, llm.NewError(types.ErrUpstreamError, "response contained no content blocks", p.Name())
	}

	return &llm.ChatResponse{
		ID:           out.ID,
		Provider:     p.Name(),
		Model:        out.Model,
		Content:      strings.TrimSpace(out.Content[0].Text),
		FinishReason: out.StopReason,
		Usage: llm.ChatUsage{
			PromptTokens:     out.Usage.InputTokens,
			CompletionTokens: out.Usage.OutputTokens,
			TotalTokens:      out.Usage.InputTokens + out.Usage.OutputTokens,
		},
	}, nil
}

// HealthCheck 通过 GET /v1/models 探活.
func (p *Provider) HealthCheck(ctx context.Context) error {
	return providers.GetJSON(ctx, p.client, providers.Endpoint(p.cfg.BaseURL, "/v1/models"), p.headers(), nil, p.Name())
}
