package llm

import (
	"context"
	"time"
)

type Role string

const (
	RoleSystem    Role = "system"
	RoleUser      Role = "user"
	RoleAssistant Role = "assistant"
)

type Message struct {
	Role    Role   `json:"role"`
	Content string `json:"content"`
}

// ChatRequest 是所有 Provider 共用的请求结构。零值字段由 Client 按配置补全。
type ChatRequest struct {
	Model       string        `json:"model"`
	Messages    []Message     `json:"messages"`
	MaxTokens   int           `json:"max_tokens,omitempty"`
	Temperature float32       `json:"temperature"`
	Timeout     time.Duration `json:"timeout,omitempty"`
}

// SystemPrompt returns the content of all system messages joined by blank lines.
func (r *ChatRequest) SystemPrompt() string {
	var out string
	for _, m := range r.Messages {
		if m.Role != RoleSystem {
			continue
		}
		if out != "" {
			out += "\n\n"
		}
		out += m.Content
	}
	return out
}

type ChatUsage struct {
	PromptTokens     int `json:"prompt_tokens,omitempty"`
	CompletionTokens int `json:"completion_tokens,omitempty"`
	TotalTokens      int `json:"total_tokens,omitempty"`
}

type ChatResponse struct {
	ID           string    `json:"id,omitempty"`
	Provider     string    `json:"provider"`
	Model        string    `json:"model"`
	Content      string    `json:"content"`
	FinishReason string    `json:"finish_reason,omitempty"`
	Usage        ChatUsage `json:"usage"`
	CreatedAt    time.Time `json:"created_at,omitempty"`
}

// Provider 定义统一的 LLM 适配接口。
type Provider interface {
	// Name 返回 Provider 的唯一标识（openai / anthropic / mistral）
	Name() string

	// Completion 发起同步聊天请求
	Completion(ctx context.Context, req *ChatRequest) (*ChatResponse, error)

	// HealthCheck 执行轻量级探活
	HealthCheck(ctx context.Context) error
}
