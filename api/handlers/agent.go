package handlers

import (
	"encoding/json"
	"errors"
	"net/http"
	"time"

	"go.uber.org/zap"

	"github.com/BaSui01/experimentkit/agent"
	"github.com/BaSui01/experimentkit/api"
	"github.com/BaSui01/experimentkit/types"
)

// TokenCounter 估算提示 token 数。*tokenizer.Counter 满足该接口。
type TokenCounter interface {
	CountTokens(model, text string) int
}

// =============================================================================
// Agent Handler
// =============================================================================

// AgentHandler executes registered capabilities by name.
type AgentHandler struct {
	registry     *agent.Registry
	counter      TokenCounter
	defaultModel string
	logger       *zap.Logger
}

// NewAgentHandler creates an Agent handler. counter may be nil.
func NewAgentHandler(registry *agent.Registry, counter TokenCounter, defaultModel string, logger *zap.Logger) *AgentHandler {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &AgentHandler{
		registry:     registry,
		counter:      counter,
		defaultModel: defaultModel,
		logger:       logger.With(zap.String("handler", "agent")),
	}
}

// =============================================================================
// HTTP Handlers
// =============================================================================

// HandleListAgents lists all registered agents
// @Summary List agents
// @Tags agent
// @Produce json
// @Success 200 {object} Response{data=api.AgentListResponse} "Agent list"
// @Security ApiKeyAuth
// @Router /api/v1/agents/list [get]
func (h *AgentHandler) HandleListAgents(w http.ResponseWriter, r *http.Request) {
	WriteSuccess(w, api.AgentListResponse{Agents: h.registry.List()})
}

// HandleExecuteAgent executes an agent
// @Summary Execute agent
// @Description Execute an agent with the given inputs. config only applies when the agent is first instantiated.
// @Tags agent
// @Accept json
// @Produce json
// @Param request body api.AgentExecuteRequest true "Execution request"
// @Success 200 {object} Response{data=api.AgentExecuteResponse} "Execution result"
// @Failure 400 {object} Response "Invalid request or agent failure"
// @Failure 404 {object} Response "Agent not found"
// @Security ApiKeyAuth
// @Router /api/v1/agents/execute [post]
func (h *AgentHandler) HandleExecuteAgent(w http.ResponseWriter, r *http.Request) {
	var req api.AgentExecuteRequest
	if err := DecodeJSONBody(w, r, &req, h.logger); err != nil {
		return
	}
	if req.AgentName == "" {
		WriteErrorMessage(w, http.StatusBadRequest, types.ErrInvalidRequest, "agent_name is required", h.logger)
		return
	}
	if req.Inputs == nil {
		req.Inputs = map[string]any{}
	}

	capability, err := h.registry.GetInstance(req.AgentName, req.Config.Args())
	if err != nil {
		h.handleLookupError(w, req.AgentName, err)
		return
	}

	start := time.Now()
	result, err := capability.Invoke(r.Context(), req.Inputs)
	elapsed := time.Since(start)
	if err != nil {
		h.handleExecutionError(w, req.AgentName, err)
		return
	}

	metadata := map[string]any{
		"status":      "success",
		"duration_ms": elapsed.Milliseconds(),
	}
	if n := h.estimateInputTokens(req); n > 0 {
		metadata["input_tokens"] = n
	}

	WriteSuccess(w, api.AgentExecuteResponse{
		AgentName: req.AgentName,
		Result:    result,
		Metadata:  metadata,
	})
}

// estimateInputTokens 按请求模型估算输入 token 数
func (h *AgentHandler) estimateInputTokens(req api.AgentExecuteRequest) int {
	if h.counter == nil || len(req.Inputs) == 0 {
		return 0
	}
	model := h.defaultModel
	if req.Config != nil && req.Config.Model != "" {
		model = req.Config.Model
	}
	data, err := json.Marshal(req.Inputs)
	if err != nil {
		return 0
	}
	return h.counter.CountTokens(model, string(data))
}

// handleLookupError 未注册返回 404，构造失败返回 500
func (h *AgentHandler) handleLookupError(w http.ResponseWriter, name string, err error) {
	logger := h.logger.With(zap.String("agent_name", name))
	if errors.Is(err, agent.ErrCapabilityNotFound) {
		WriteError(w, types.Errorf(types.ErrNotFound, "agent %q not found", name).WithCause(err), logger)
		return
	}
	WriteError(w, types.NewError(types.ErrInternalError, "Internal server error: "+err.Error()).WithCause(err), logger)
}

// handleExecutionError Agent 执行失败统一返回 400
func (h *AgentHandler) handleExecutionError(w http.ResponseWriter, name string, err error) {
	apiErr := types.NewError(types.ErrAgentExecution, agent.NewExecutionError(name, err).Error()).
		WithCause(err).
		WithHTTPStatus(http.StatusBadRequest)
	WriteError(w, apiErr, h.logger.With(zap.String("agent_name", name)))
}
