// Package openai 实现 OpenAI Chat Completions Provider，同时作为
// OpenAI 兼容接口（如 Mistral）的基础实现。
package openai

import (
	"context"
	"net/http"
	"strings"
	"time"

	"go.uber.org/zap"

	"github.com/BaSui01/experimentkit/llm"
	"github.com/BaSui01/experimentkit/llm/providers"
	"github.com/BaSui01/experimentkit/types"
)

const DefaultBaseURL = "https://api.openai.com"

// Config OpenAI Provider 配置
type Config struct {
	providers.BaseProviderConfig `yaml:",inline"`
	Organization                 string `json:"organization,omitempty" yaml:"organization,omitempty"`

	// ProviderName 允许兼容 Provider 复用本实现，默认 "openai"
	ProviderName string `json:"-" yaml:"-"`
}

// Provider 实现 llm.Provider.
type Provider struct {
	cfg    Config
	client *http.Client
	logger *zap.Logger
}

// New 创建 OpenAI 兼容 Provider 实例.
func New(cfg Config, logger *zap.Logger) *Provider {
	if cfg.BaseURL == "" {
		cfg.BaseURL = DefaultBaseURL
	}
	if cfg.ProviderName == "" {
		cfg.ProviderName = llm.ProviderOpenAI
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Provider{
		cfg:    cfg,
		client: providers.NewHTTPClient(cfg.Timeout),
		logger: logger.With(zap.String("provider", cfg.ProviderName)),
	}
}

func (p *Provider) Name() string { return p.cfg.ProviderName }

func (p *Provider) headers() map[string]string {
	h := map[string]string{"Authorization": "Bearer " + p.cfg.APIKey}
	if p.cfg.Organization != "" {
		h["OpenAI-Organization"] = p.cfg.Organization
	}
	return h
}

type chatMessage struct {
	Role    string `json:"role"`
	Content string `json:"content"`
}

type chatRequest struct {
	Model       string        `json:"model"`
	Messages    []chatMessage `json:"messages"`
	MaxTokens   int           `json:"max_tokens,omitempty"`
	Temperature float32       `json:"temperature"`
}

type chatResponse struct {
	ID      string `json:"id"`
	Model   string `json:"model"`
	Created int64  `json:"created"`
	Choices []struct {
		Index        int         `json:"index"`
		FinishReason string      `json:"finish_reason"`
		Message      chatMessage `json:"message"`
	} `json:"choices"`
	Usage struct {
		PromptTokens     int `json:"prompt_tokens"`
		CompletionTokens int `json:"completion_tokens"`
		TotalTokens      int `json:"total_tokens"`
	} `json:"usage"`
}

// Completion 调用 POST {base}/v1/chat/completions，system 消息保持在最前。
func (p *Provider) Completion(ctx context.Context, req *llm.ChatRequest) (*llm.ChatResponse, error) {
	model := req.Model
	if model == "" {
		model = p.cfg.Model
	}

	body := chatRequest{
		Model:       model,
		MaxTokens:   req.MaxTokens,
		Temperature: req.Temperature,
	}
	for _, m := range req.Messages {
		if m.Role == llm.RoleSystem {
			body.Messages = append(body.Messages, chatMessage{Role: string(m.Role), Content: m.Content})
		}
	}
	for _, m := range req.Messages {
		if m.Role != llm.RoleSystem {
			body.Messages = append(body.Messages, chatMessage{Role: string(m.Role), Content: m.Content})
		}
	}

	var out chatResponse
	url := providers.Endpoint(p.cfg.BaseURL, "/v1/chat/completions")
	if err := providers.PostJSON(ctx, p.client, url, p.headers(), body, &out, p.Name()); err != nil {
		return nil, err
	}
	if len(out.Choices) == 0 {
		return nil, llm.NewError(types.ErrUpstreamError, "response contained no choices", p.Name())
	}

	resp := &llm.ChatResponse{
		ID:           out.ID,
		Provider:     p.Name(),
		Model:        out.Model,
		Content:      strings.TrimSpace(out.Choices[0].Message.Content),
		FinishReason: out.Choices[0].FinishReason,
		Usage: llm.ChatUsage{
			PromptTokens:     out.Usage.PromptTokens,
			CompletionTokens: out.Usage.CompletionTokens,
			TotalTokens:      out.Usage.TotalTokens,
		},
	}
	if out.Created != 0 {
		resp.CreatedAt = time.Unix(out.Created, 0)
	}
	return resp, nil
}

// HealthCheck 通过 GET /v1/models 探活.
func (p *Provider) HealthCheck(ctx context.Context) error {
	return providers.GetJSON(ctx, p.client, providers.Endpoint(p.cfg.BaseURL, "/v1/models"), p.headers(), nil, p.Name())
}
