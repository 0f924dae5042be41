// Package mistral 实现 Mistral AI Provider，复用 OpenAI 兼容实现。
package mistral

import (
	"go.uber.org/zap"

	"github.com/BaSui01/experimentkit/llm"
	"github.com/BaSui01/experimentkit/llm/providers"
	"github.com/BaSui01/experimentkit/llm/providers/openai"
)

const DefaultBaseURL = "https://api.mistral.ai"

// Config Mistral AI Provider 配置
type Config struct {
	providers.BaseProviderConfig `yaml:",inline"`
}

// Provider Mistral AI 使用 OpenAI 兼容的 API 格式.
type Provider struct {
	*openai.Provider
}

// New 创建 Mistral Provider，未提供 BaseURL 时使用官方地址.
func New(cfg Config, logger *zap.Logger) *Provider {
	if cfg.BaseURL == "" {
		cfg.BaseURL = DefaultBaseURL
	}
	return &Provider{
		Provider: openai.New(openai.Config{
			BaseProviderConfig: cfg.BaseProviderConfig,
			ProviderName:       llm.ProviderMistral,
		}, logger),
	}
}
