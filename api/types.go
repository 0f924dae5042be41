package api

import (
	"time"

	"github.com/BaSui01/experimentkit/workflow"
)

// =============================================================================
// Agent 执行类型
// =============================================================================

// AgentConfig 覆盖单个 Agent 的模型设置。仅在该 Agent 首次实例化时生效。
// @Description Agent 构造参数
type AgentConfig struct {
	// 模型名称（例如 gpt-4o-mini）
	Model string `json:"model,omitempty" example:"gpt-4o-mini"`
	// Provider 名称：openai、anthropic、mistral
	Provider string `json:"provider,omitempty" example:"openai"`
	// 生成的最大 token 数
	MaxTokens int `json:"max_tokens,omitempty" example:"250"`
	// 采样温度（0-2）
	Temperature *float64 `json:"temperature,omitempty" example:"0.7"`
	// 系统提示词
	SystemMessage string `json:"system_message,omitempty"`
}

// Args 转换为 Registry 构造参数，只包含非零字段。
func (c *AgentConfig) Args() map[string]any {
	if c == nil {
		return nil
	}
	args := make(map[string]any)
	if c.Model != "" {
		args["model"] = c.Model
	}
	if c.Provider != "" {
		args["provider"] = c.Provider
	}
	if c.MaxTokens > 0 {
		args["max_tokens"] = c.MaxTokens
	}
	if c.Temperature != nil {
		args["temperature"] = *c.Temperature
	}
	if c.SystemMessage != "" {
		args["system_message"] = c.SystemMessage
	}
	if len(args) == 0 {
		return nil
	}
	return args
}

// AgentExecuteRequest Agent 执行请求
// @Description Agent 执行请求结构
type AgentExecuteRequest struct {
	AgentName string         `json:"agent_name" example:"hypothesis_refiner"`
	Inputs    map[string]any `json:"inputs"`
	Config    *AgentConfig   `json:"config,omitempty"`
}

// AgentExecuteResponse Agent 执行响应
// @Description Agent 执行响应结构
type AgentExecuteResponse struct {
	AgentName string         `json:"agent_name"`
	Result    any            `json:"result"`
	Metadata  map[string]any `json:"metadata"`
}

// AgentListResponse 已注册 Agent 列表
type AgentListResponse struct {
	Agents []string `json:"agents"`
}

// =============================================================================
// 工作流类型
// =============================================================================

// HypothesisRequest 假设精炼工作流的输入
// @Description 假设精炼请求
type HypothesisRequest struct {
	Hypothesis string `json:"hypothesis" example:"Shorter onboarding increases activation"`
}

// WorkflowExecuteRequest 执行内联定义的工作流。Definition 为 YAML 或 JSON 文本，
// 也可以直接以对象形式放在 Workflow 字段中。
// @Description 通用工作流执行请求
type WorkflowExecuteRequest struct {
	Definition string               `json:"definition,omitempty"`
	Workflow   *workflow.Definition `json:"workflow,omitempty"`
	Inputs     map[string]any       `json:"inputs,omitempty"`
}

// RunSummary 运行历史列表项
type RunSummary struct {
	ID           string    `json:"id"`
	WorkflowName string    `json:"workflow_name"`
	Status       string    `json:"status"`
	Error        string    `json:"error,omitempty"`
	DurationMS   int64     `json:"duration_ms"`
	StartedAt    time.Time `json:"started_at"`
}

// RunListResponse 运行历史分页结果
type RunListResponse struct {
	Runs   []RunSummary `json:"runs"`
	Limit  int          `json:"limit"`
	Offset int          `json:"offset"`
}

// RunDetail 单次运行的完整记录
type RunDetail struct {
	Inputs map[string]any           `json:"inputs,omitempty"`
	Result *workflow.WorkflowResult `json:"result"`
}

// =============================================================================
// 流式消息类型（WebSocket）
// =============================================================================

// StreamMessageType 流消息类型
type StreamMessageType string

const (
	StreamEvent  StreamMessageType = "event"
	StreamResult StreamMessageType = "result"
	StreamError  StreamMessageType = "error"
)

// StreamMessage 是 WebSocket 上的一帧
type StreamMessage struct {
	Type   StreamMessageType        `json:"type"`
	Event  *workflow.Event          `json:"event,omitempty"`
	Result *workflow.WorkflowResult `json:"result,omitempty"`
	Error  *ErrorDetail             `json:"error,omitempty"`
}

// ErrorDetail 流消息中的错误信息
type ErrorDetail struct {
	Code    string `json:"code"`
	Message string `json:"message"`
}

// =============================================================================
// LLM 直连类型
// =============================================================================

// CompletionRequest 单轮补全请求
// @Description 直接调用 LLM
type CompletionRequest struct {
	Prompt        string   `json:"prompt"`
	SystemMessage string   `json:"system_message,omitempty"`
	Model         string   `json:"model,omitempty"`
	Provider      string   `json:"provider,omitempty"`
	MaxTokens     int      `json:"max_tokens,omitempty"`
	Temperature   *float32 `json:"temperature,omitempty"`
}

// CompletionResponse 补全响应
type CompletionResponse struct {
	ID           string `json:"id,omitempty"`
	Provider     string `json:"provider"`
	Model        string `json:"model"`
	Content      string `json:"content"`
	FinishReason string `json:"finish_reason,omitempty"`
	// 本地估算的提示 token 数
	EstimatedPromptTokens int `json:"estimated_prompt_tokens"`
	PromptTokens          int `json:"prompt_tokens,omitempty"`
	CompletionTokens      int `json:"completion_tokens,omitempty"`
}

// ProviderStatus 单个 Provider 的探活结果
type ProviderStatus struct {
	Name    string `json:"name"`
	Healthy bool   `json:"healthy"`
	Error   string `json:"error,omitempty"`
}

// Banner 根路径响应
type Banner struct {
	Name    string `json:"name"`
	Version string `json:"version"`
	Docs    string `json:"docs"`
}
