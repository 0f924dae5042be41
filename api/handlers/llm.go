package handlers

import (
	"context"
	"net/http"
	"sort"
	"strings"
	"time"

	"go.uber.org/zap"

	"github.com/BaSui01/experimentkit/api"
	"github.com/BaSui01/experimentkit/llm"
	"github.com/BaSui01/experimentkit/types"
)

// Generator 是 LLMHandler 依赖的客户端能力。*llm.Client 满足该接口。
type Generator interface {
	Generate(ctx context.Context, req llm.CallRequest) (*llm.ChatResponse, error)
	HealthCheck(ctx context.Context) map[string]error
	Config() llm.ClientConfig
}

// =============================================================================
// 💬 LLM 直连 Handler
// =============================================================================

// LLMHandler 直接调用已配置的 Provider，便于调试提示词
type LLMHandler struct {
	client  Generator
	counter TokenCounter
	logger  *zap.Logger
}

// NewLLMHandler 创建 LLM 处理器。counter 可以为 nil。
func NewLLMHandler(client Generator, counter TokenCounter, logger *zap.Logger) *LLMHandler {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &LLMHandler{
		client:  client,
		counter: counter,
		logger:  logger.With(zap.String("handler", "llm")),
	}
}

// HandleComplete 处理单轮补全请求
// @Summary 单轮补全
// @Tags llm
// @Accept json
// @Produce json
// @Param request body api.CompletionRequest true "补全请求"
// @Success 200 {object} Response{data=api.CompletionResponse}
// @Failure 400 {object} Response "无效请求"
// @Failure 502 {object} Response "上游错误"
// @Security ApiKeyAuth
// @Router /api/v1/llm/complete [post]
func (h *LLMHandler) HandleComplete(w http.ResponseWriter, r *http.Request) {
	var req api.CompletionRequest
	if err := DecodeJSONBody(w, r, &req, h.logger); err != nil {
		return
	}
	if strings.TrimSpace(req.Prompt) == "" {
		WriteErrorMessage(w, http.StatusBadRequest, types.ErrInvalidRequest, "prompt is required", h.logger)
		return
	}
	if req.Provider != "" && !llm.IsKnownProvider(req.Provider) {
		WriteError(w, types.Errorf(types.ErrUnsupportedProvider, "Unsupported provider: %s", req.Provider), h.logger)
		return
	}
	if req.Temperature != nil && (*req.Temperature < 0 || *req.Temperature > 2) {
		WriteErrorMessage(w, http.StatusBadRequest, types.ErrInvalidRequest, "temperature must be between 0 and 2", h.logger)
		return
	}

	model := req.Model
	if model == "" {
		model = h.client.Config().DefaultModel
	}
	estimated := 0
	if h.counter != nil {
		estimated = h.counter.CountTokens(model, req.SystemMessage+"\n"+req.Prompt)
	}

	start := time.Now()
	resp, err := h.client.Generate(r.Context(), llm.CallRequest{
		Prompt:        req.Prompt,
		SystemMessage: req.SystemMessage,
		Model:         req.Model,
		Provider:      req.Provider,
		MaxTokens:     req.MaxTokens,
		Temperature:   req.Temperature,
	})
	duration := time.Since(start)
	if err != nil {
		h.handleProviderError(w, err)
		return
	}

	h.logger.Info("llm completion",
		zap.String("provider", resp.Provider),
		zap.String("model", resp.Model),
		zap.Int("estimated_prompt_tokens", estimated),
		zap.Int("prompt_tokens", resp.Usage.PromptTokens),
		zap.Int("completion_tokens", resp.Usage.CompletionTokens),
		zap.Duration("duration", duration),
	)

	WriteSuccess(w, api.CompletionResponse{
		ID:                    resp.ID,
		Provider:              resp.Provider,
		Model:                 resp.Model,
		Content:               resp.Content,
		FinishReason:          resp.FinishReason,
		EstimatedPromptTokens: estimated,
		PromptTokens:          resp.Usage.PromptTokens,
		CompletionTokens:      resp.Usage.CompletionTokens,
	})
}

// HandleProviders 列出已配置的 Provider 及其探活结果
// @Summary Provider 状态
// @Tags llm
// @Produce json
// @Success 200 {object} Response{data=[]api.ProviderStatus}
// @Security ApiKeyAuth
// @Router /api/v1/llm/providers [get]
func (h *LLMHandler) HandleProviders(w http.ResponseWriter, r *http.Request) {
	ctx, cancel := context.WithTimeout(r.Context(), readyTimeout)
	defer cancel()

	results := h.client.HealthCheck(ctx)
	out := make([]api.ProviderStatus, 0, len(results))
	for name, err := range results {
		st := api.ProviderStatus{Name: name, Healthy: err == nil}
		if err != nil {
			st.Error = err.Error()
		}
		out = append(out, st)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Name < out[j].Name })

	WriteSuccess(w, out)
}

// handleProviderError 上游状态码不透传给调用方：请求类错误为 400，其余为 502/504
func (h *LLMHandler) handleProviderError(w http.ResponseWriter, err error) {
	typedErr, ok := types.AsError(err)
	if !ok {
		WriteError(w, types.NewError(types.ErrInternalError, "provider error").WithCause(err), h.logger)
		return
	}

	out := types.NewError(typedErr.Code, typedErr.Message).
		WithCause(err).
		WithProvider(typedErr.Provider).
		WithRetryable(typedErr.Retryable)
	switch typedErr.Code {
	case types.ErrInvalidRequest, types.ErrUnsupportedProvider:
		out.WithHTTPStatus(http.StatusBadRequest)
	case types.ErrTimeout:
		out.WithHTTPStatus(http.StatusGatewayTimeout)
	default:
		out.WithHTTPStatus(http.StatusBadGateway)
	}
	WriteError(w, out, h.logger)
}
