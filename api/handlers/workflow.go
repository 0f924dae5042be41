package handlers

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"strconv"
	"strings"
	"time"

	"github.com/coder/websocket"
	"go.uber.org/zap"

	"github.com/BaSui01/experimentkit/agent/hypothesis"
	"github.com/BaSui01/experimentkit/api"
	"github.com/BaSui01/experimentkit/internal/history"
	"github.com/BaSui01/experimentkit/types"
	"github.com/BaSui01/experimentkit/workflow"
)

// streamReadTimeout 等待客户端发送首帧的时长
const streamReadTimeout = 30 * time.Second

// RunStore 持久化并查询工作流运行记录。*history.Store 满足该接口。
type RunStore interface {
	Save(ctx context.Context, res *workflow.WorkflowResult, inputs map[string]any) error
	Get(ctx context.Context, id string) (*history.RunRecord, error)
	List(ctx context.Context, opts history.ListOptions) ([]history.RunRecord, error)
}

// =============================================================================
// 🔀 Workflow Handler
// =============================================================================

// WorkflowHandler 执行工作流并提供运行历史
type WorkflowHandler struct {
	lookup         workflow.CapabilityLookup
	store          RunStore
	options        []workflow.Option
	originPatterns []string
	logger         *zap.Logger
}

// WorkflowHandlerOption 配置 WorkflowHandler
type WorkflowHandlerOption func(*WorkflowHandler)

// WithRunStore 启用运行历史。未设置时历史接口返回 503。
func WithRunStore(store RunStore) WorkflowHandlerOption {
	return func(h *WorkflowHandler) { h.store = store }
}

// WithWorkflowOptions 传入每次构建工作流时使用的选项（logger、recorder、tracer）
func WithWorkflowOptions(opts ...workflow.Option) WorkflowHandlerOption {
	return func(h *WorkflowHandler) { h.options = append(h.options, opts...) }
}

// WithOriginPatterns 设置 WebSocket 允许的跨域来源
func WithOriginPatterns(patterns ...string) WorkflowHandlerOption {
	return func(h *WorkflowHandler) { h.originPatterns = patterns }
}

// NewWorkflowHandler 创建工作流处理器
func NewWorkflowHandler(lookup workflow.CapabilityLookup, logger *zap.Logger, opts ...WorkflowHandlerOption) *WorkflowHandler {
	if logger == nil {
		logger = zap.NewNop()
	}
	h := &WorkflowHandler{
		lookup: lookup,
		logger: logger.With(zap.String("handler", "workflow")),
	}
	for _, opt := range opts {
		opt(h)
	}
	return h
}

// =============================================================================
// 🎯 HTTP 处理程序
// =============================================================================

// HandleHypothesisRefinement 执行内置的假设精炼工作流
// @Summary Execute hypothesis refinement
// @Tags workflow
// @Accept json
// @Produce json
// @Param hypothesis query string false "Hypothesis (alternative to body)"
// @Param request body api.HypothesisRequest false "Hypothesis"
// @Success 200 {object} Response{data=workflow.WorkflowResult}
// @Failure 400 {object} Response
// @Security ApiKeyAuth
// @Router /api/v1/workflows/hypothesis-refinement/execute [post]
func (h *WorkflowHandler) HandleHypothesisRefinement(w http.ResponseWriter, r *http.Request) {
	text := strings.TrimSpace(r.URL.Query().Get("hypothesis"))
	if text == "" {
		var req api.HypothesisRequest
		if err := DecodeJSONBody(w, r, &req, h.logger); err != nil {
			return
		}
		text = strings.TrimSpace(req.Hypothesis)
	}
	if text == "" {
		WriteErrorMessage(w, http.StatusBadRequest, types.ErrInvalidRequest, "hypothesis is required", h.logger)
		return
	}

	wf := hypothesis.NewRefinementWorkflow(h.options...)
	h.execute(w, r, wf, map[string]any{"hypothesis": text})
}

// HandleExecuteDefinition 执行请求中内联定义的工作流
// @Summary Execute workflow definition
// @Tags workflow
// @Accept json
// @Produce json
// @Param request body api.WorkflowExecuteRequest true "Definition and inputs"
// @Success 200 {object} Response{data=workflow.WorkflowResult}
// @Failure 400 {object} Response
// @Security ApiKeyAuth
// @Router /api/v1/workflows/execute [post]
func (h *WorkflowHandler) HandleExecuteDefinition(w http.ResponseWriter, r *http.Request) {
	var req api.WorkflowExecuteRequest
	if err := DecodeJSONBody(w, r, &req, h.logger); err != nil {
		return
	}

	def, err := definitionFrom(req)
	if err != nil {
		WriteError(w, types.NewError(types.ErrInvalidRequest, err.Error()).WithCause(err), h.logger)
		return
	}

	h.execute(w, r, def.Build(h.options...).Workflow, req.Inputs)
}

func definitionFrom(req api.WorkflowExecuteRequest) (*workflow.Definition, error) {
	switch {
	case req.Workflow != nil:
		if err := req.Workflow.Validate(); err != nil {
			return nil, err
		}
		return req.Workflow, nil
	case strings.TrimSpace(req.Definition) != "":
		return workflow.LoadDefinition(strings.NewReader(req.Definition))
	}
	return nil, errors.New("one of definition or workflow is required")
}

func (h *WorkflowHandler) execute(w http.ResponseWriter, r *http.Request, wf *workflow.Workflow, inputs map[string]any) {
	res, err := wf.Execute(r.Context(), h.lookup, inputs)
	if err != nil {
		WriteError(w, workflowError(err), h.logger.With(zap.String("workflow", wf.Name())))
		return
	}
	h.save(r.Context(), res, inputs)
	WriteSuccess(w, res)
}

// save 写入运行历史。失败只记录日志，不影响响应。
func (h *WorkflowHandler) save(ctx context.Context, res *workflow.WorkflowResult, inputs map[string]any) {
	if h.store == nil {
		return
	}
	if err := h.store.Save(context.WithoutCancel(ctx), res, inputs); err != nil {
		h.logger.Warn("failed to persist workflow run",
			zap.String("run_id", res.ID),
			zap.Error(err),
		)
	}
}

func workflowError(err error) *types.Error {
	switch {
	case errors.Is(err, workflow.ErrDependencyResolution):
		return types.NewError(types.ErrDependencyResolution, err.Error()).WithCause(err)
	case errors.Is(err, workflow.ErrInvalidWorkflow):
		return types.NewError(types.ErrInvalidRequest, err.Error()).WithCause(err)
	}
	return types.NewError(types.ErrInternalError, "Internal server error: "+err.Error()).WithCause(err)
}

// =============================================================================
// 📜 运行历史
// =============================================================================

// HandleListRuns 分页列出运行历史
// @Summary List workflow runs
// @Tags workflow
// @Produce json
// @Param workflow query string false "Workflow name"
// @Param status query string false "Run status"
// @Param limit query int false "Page size (default 20, max 200)"
// @Param offset query int false "Offset"
// @Success 200 {object} Response{data=api.RunListResponse}
// @Failure 503 {object} Response "History not configured"
// @Security ApiKeyAuth
// @Router /api/v1/workflows/runs [get]
func (h *WorkflowHandler) HandleListRuns(w http.ResponseWriter, r *http.Request) {
	if !h.requireStore(w) {
		return
	}

	q := r.URL.Query()
	limit, err := intParam(q.Get("limit"))
	if err != nil {
		WriteErrorMessage(w, http.StatusBadRequest, types.ErrInvalidRequest, "limit must be a non-negative integer", h.logger)
		return
	}
	offset, err := intParam(q.Get("offset"))
	if err != nil {
		WriteErrorMessage(w, http.StatusBadRequest, types.ErrInvalidRequest, "offset must be a non-negative integer", h.logger)
		return
	}

	opts := history.ListOptions{
		Workflow: q.Get("workflow"),
		Status:   q.Get("status"),
		Limit:    limit,
		Offset:   offset,
	}
	records, err := h.store.List(r.Context(), opts)
	if err != nil {
		WriteError(w, types.NewError(types.ErrInternalError, "failed to list workflow runs").WithCause(err), h.logger)
		return
	}

	runs := make([]api.RunSummary, 0, len(records))
	for _, rec := range records {
		runs = append(runs, api.RunSummary{
			ID:           rec.ID,
			WorkflowName: rec.WorkflowName,
			Status:       rec.Status,
			Error:        rec.Error,
			DurationMS:   rec.DurationMS,
			StartedAt:    rec.StartedAt,
		})
	}
	WriteSuccess(w, api.RunListResponse{Runs: runs, Limit: limit, Offset: offset})
}

// HandleGetRun 返回单次运行的完整记录
// @Summary Get workflow run
// @Tags workflow
// @Produce json
// @Param id path string true "Run ID"
// @Success 200 {object} Response{data=api.RunDetail}
// @Failure 404 {object} Response "Run not found"
// @Security ApiKeyAuth
// @Router /api/v1/workflows/runs/{id} [get]
func (h *WorkflowHandler) HandleGetRun(w http.ResponseWriter, r *http.Request) {
	if !h.requireStore(w) {
		return
	}

	id := r.PathValue("id")
	if id == "" {
		WriteErrorMessage(w, http.StatusBadRequest, types.ErrInvalidRequest, "run id is required", h.logger)
		return
	}

	rec, err := h.store.Get(r.Context(), id)
	if errors.Is(err, history.ErrRunNotFound) {
		WriteError(w, types.Errorf(types.ErrNotFound, "workflow run %q not found", id), h.logger)
		return
	}
	if err != nil {
		WriteError(w, types.NewError(types.ErrInternalError, "failed to load workflow run").WithCause(err), h.logger)
		return
	}

	WriteSuccess(w, api.RunDetail{Inputs: rec.Inputs, Result: rec.Result()})
}

func (h *WorkflowHandler) requireStore(w http.ResponseWriter) bool {
	if h.store != nil {
		return true
	}
	WriteErrorMessage(w, http.StatusServiceUnavailable, types.ErrConfiguration, "run history is not configured", h.logger)
	return false
}

func intParam(s string) (int, error) {
	if s == "" {
		return 0, nil
	}
	n, err := strconv.Atoi(s)
	if err != nil {
		return 0, err
	}
	if n < 0 {
		return 0, errors.New("negative value")
	}
	return n, nil
}

// =============================================================================
// 📡 WebSocket 进度流
// =============================================================================

// HandleHypothesisStream 通过 WebSocket 推送假设精炼工作流的每次步骤变化。
// 客户端先发送 {"hypothesis": "..."}，服务端依次推送 event 帧，最后推送 result 帧并关闭连接。
// @Summary Stream hypothesis refinement
// @Tags workflow
// @Router /api/v1/workflows/hypothesis-refinement/stream [get]
func (h *WorkflowHandler) HandleHypothesisStream(w http.ResponseWriter, r *http.Request) {
	conn, err := websocket.Accept(w, r, &websocket.AcceptOptions{
		OriginPatterns: h.originPatterns,
	})
	if err != nil {
		h.logger.Warn("websocket accept failed", zap.Error(err))
		return
	}
	defer conn.CloseNow()

	ctx := r.Context()
	req, err := readHypothesis(ctx, conn)
	if err != nil {
		h.writeFrame(ctx, conn, api.StreamMessage{
			Type:  api.StreamError,
			Error: &api.ErrorDetail{Code: string(types.ErrInvalidRequest), Message: err.Error()},
		})
		_ = conn.Close(websocket.StatusPolicyViolation, "invalid request")
		return
	}

	inputs := map[string]any{"hypothesis": req.Hypothesis}
	opts := append([]workflow.Option{}, h.options...)
	opts = append(opts, workflow.WithListener(func(ev workflow.Event) {
		h.writeFrame(ctx, conn, api.StreamMessage{Type: api.StreamEvent, Event: &ev})
	}))

	res, err := hypothesis.NewRefinementWorkflow(opts...).Execute(ctx, h.lookup, inputs)
	if err != nil {
		apiErr := workflowError(err)
		h.writeFrame(ctx, conn, api.StreamMessage{
			Type:  api.StreamError,
			Error: &api.ErrorDetail{Code: string(apiErr.Code), Message: apiErr.Message},
		})
		_ = conn.Close(websocket.StatusInternalError, "workflow error")
		return
	}

	h.save(ctx, res, inputs)
	h.writeFrame(ctx, conn, api.StreamMessage{Type: api.StreamResult, Result: res})
	_ = conn.Close(websocket.StatusNormalClosure, "done")
}

func readHypothesis(ctx context.Context, conn *websocket.Conn) (api.HypothesisRequest, error) {
	ctx, cancel := context.WithTimeout(ctx, streamReadTimeout)
	defer cancel()

	var req api.HypothesisRequest
	_, data, err := conn.Read(ctx)
	if err != nil {
		return req, err
	}
	if err := json.Unmarshal(data, &req); err != nil {
		return req, errors.New("invalid JSON message")
	}
	req.Hypothesis = strings.TrimSpace(req.Hypothesis)
	if req.Hypothesis == "" {
		return req, errors.New("hypothesis is required")
	}
	return req, nil
}

// writeFrame 写出一帧。客户端断开后的写失败只记录日志，工作流继续完成以便写入历史。
func (h *WorkflowHandler) writeFrame(ctx context.Context, conn *websocket.Conn, msg api.StreamMessage) {
	data, err := json.Marshal(msg)
	if err != nil {
		h.logger.Error("failed to encode stream message", zap.Error(err))
		return
	}
	if err := conn.Write(ctx, websocket.MessageText, data); err != nil {
		h.logger.Debug("stream write failed", zap.String("type", string(msg.Type)), zap.Error(err))
	}
}
