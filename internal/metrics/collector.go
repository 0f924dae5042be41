// Package metrics provides internal metrics collection.
// This package is internal and should not be imported by external projects.
package metrics

import (
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"go.uber.org/zap"
)

// =============================================================================
// 📊 指标收集器
// =============================================================================

// Collector 指标收集器
type Collector struct {
	// HTTP 指标
	httpRequestsTotal   *prometheus.CounterVec
	httpRequestDuration *prometheus.HistogramVec

	// Agent 指标
	agentExecutionsTotal *prometheus.CounterVec
	agentDuration        *prometheus.HistogramVec
	agentErrorsTotal     *prometheus.CounterVec

	// Workflow 指标
	workflowStartedTotal   *prometheus.CounterVec
	workflowCompletedTotal *prometheus.CounterVec
	workflowFailedTotal    *prometheus.CounterVec
	workflowDuration       *prometheus.HistogramVec

	// LLM 指标
	llmRequestsTotal  *prometheus.CounterVec
	llmDuration       *prometheus.HistogramVec
	llmSuccessTotal   *prometheus.CounterVec
	llmErrorsTotal    *prometheus.CounterVec
	llmCacheHitsTotal *prometheus.CounterVec

	logger *zap.Logger
}

// NewCollector 创建指标收集器并注册到默认 Registry
func NewCollector(namespace string, logger *zap.Logger) *Collector {
	return NewCollectorWithRegistry(namespace, prometheus.DefaultRegisterer, logger)
}

// NewCollectorWithRegistry 创建指标收集器并注册到 reg
func NewCollectorWithRegistry(namespace string, reg prometheus.Registerer, logger *zap.Logger) *Collector {
	if logger == nil {
		logger = zap.NewNop()
	}
	factory := promauto.With(reg)
	c := &Collector{
		logger: logger.With(zap.String("component", "metrics")),
	}

	// HTTP 指标
	c.httpRequestsTotal = factory.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "http_requests_total",
			Help:      "Total number of HTTP requests",
		},
		[]string{"method", "path", "status"},
	)
	c.httpRequestDuration = factory.NewHistogramVec(
		prometheus.HistogramOpts{
			Namespace: namespace,
			Name:      "http_request_duration_seconds",
			Help:      "HTTP request duration in seconds",
			Buckets:   prometheus.DefBuckets,
		},
		[]string{"method", "path"},
	)

	// Agent 指标
	c.agentExecutionsTotal = factory.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "agent_executions_total",
			Help:      "Total number of agent executions",
		},
		[]string{"agent_name", "provider"},
	)
	c.agentDuration = factory.NewHistogramVec(
		prometheus.HistogramOpts{
			Namespace: namespace,
			Name:      "agent_duration_seconds",
			Help:      "Agent execution duration in seconds",
			Buckets:   []float64{0.1, 0.5, 1, 2, 5, 10, 30, 60, 120},
		},
		[]string{"agent_name", "status"},
	)
	c.agentErrorsTotal = factory.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "agent_errors_total",
			Help:      "Total number of agent errors",
		},
		[]string{"agent_name", "error_type"},
	)

	// Workflow 指标
	c.workflowStartedTotal = factory.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "workflow_started_total",
			Help:      "Total number of workflow runs started",
		},
		[]string{"workflow"},
	)
	c.workflowCompletedTotal = factory.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "workflow_completed_total",
			Help:      "Total number of workflow runs that finished without a failed step",
		},
		[]string{"workflow", "status"},
	)
	c.workflowFailedTotal = factory.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "workflow_failed_total",
			Help:      "Total number of failed workflow runs",
		},
		[]string{"workflow", "error_type"},
	)
	c.workflowDuration = factory.NewHistogramVec(
		prometheus.HistogramOpts{
			Namespace: namespace,
			Name:      "workflow_duration_seconds",
			Help:      "Workflow run duration in seconds",
			Buckets:   []float64{0.5, 1, 5, 10, 30, 60, 120, 300},
		},
		[]string{"workflow"},
	)

	// LLM 指标
	c.llmRequestsTotal = factory.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "llm_requests_total",
			Help:      "Total number of LLM requests",
		},
		[]string{"provider", "model"},
	)
	c.llmDuration = factory.NewHistogramVec(
		prometheus.HistogramOpts{
			Namespace: namespace,
			Name:      "llm_duration_seconds",
			Help:      "LLM call duration in seconds, retries included",
			Buckets:   []float64{0.1, 0.5, 1, 2, 5, 10, 30, 60},
		},
		[]string{"provider", "status"},
	)
	c.llmSuccessTotal = factory.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "llm_success_total",
			Help:      "Total number of successful LLM calls",
		},
		[]string{"provider"},
	)
	c.llmErrorsTotal = factory.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "llm_errors_total",
			Help:      "Total number of failed LLM calls",
		},
		[]string{"provider", "error_type"},
	)
	c.llmCacheHitsTotal = factory.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "llm_cache_hits_total",
			Help:      "Total number of LLM completions served from cache",
		},
		[]string{"provider"},
	)

	c.logger.Info("metrics collector initialized", zap.String("namespace", namespace))
	return c
}

// =============================================================================
// 🎯 HTTP 指标记录
// =============================================================================

// RecordHTTPRequest 记录 HTTP 请求
func (c *Collector) RecordHTTPRequest(method, path string, status int, duration time.Duration) {
	c.httpRequestsTotal.WithLabelValues(method, path, statusCode(status)).Inc()
	c.httpRequestDuration.WithLabelValues(method, path).Observe(duration.Seconds())
}

// =============================================================================
// 🎭 Agent 指标记录
// =============================================================================

func (c *Collector) RecordAgentExecution(agent, provider string) {
	c.agentExecutionsTotal.WithLabelValues(agent, provider).Inc()
}

func (c *Collector) RecordAgentDuration(agent, status string, d time.Duration) {
	c.agentDuration.WithLabelValues(agent, status).Observe(d.Seconds())
}

func (c *Collector) RecordAgentError(agent, errorType string) {
	c.agentErrorsTotal.WithLabelValues(agent, errorType).Inc()
}

// =============================================================================
// 🔀 Workflow 指标记录
// =============================================================================

func (c *Collector) RecordWorkflowStarted(workflow string) {
	c.workflowStartedTotal.WithLabelValues(workflow).Inc()
}

func (c *Collector) RecordWorkflowCompleted(workflow, status string, d time.Duration) {
	c.workflowCompletedTotal.WithLabelValues(workflow, status).Inc()
	c.workflowDuration.WithLabelValues(workflow).Observe(d.Seconds())
}

func (c *Collector) RecordWorkflowFailed(workflow, errorType string) {
	c.workflowFailedTotal.WithLabelValues(workflow, errorType).Inc()
}

// =============================================================================
// 🤖 LLM 指标记录
// =============================================================================

func (c *Collector) RecordLLMRequest(provider, model string) {
	c.llmRequestsTotal.WithLabelValues(provider, model).Inc()
}

func (c *Collector) RecordLLMDuration(provider, status string, d time.Duration) {
	c.llmDuration.WithLabelValues(provider, status).Observe(d.Seconds())
}

func (c *Collector) RecordLLMSuccess(provider string) {
	c.llmSuccessTotal.WithLabelValues(provider).Inc()
}

func (c *Collector) RecordLLMError(provider, errorType string) {
	c.llmErrorsTotal.WithLabelValues(provider, errorType).Inc()
}

func (c *Collector) RecordLLMCacheHit(provider string) {
	c.llmCacheHitsTotal.WithLabelValues(provider).Inc()
}

// =============================================================================
// 🔧 辅助函数
// =============================================================================

// statusCode 将 HTTP 状态码转换为字符串
func statusCode(code int) string {
	switch {
	case code >= 200 && code < 300:
		return "2xx"
	case code >= 300 && code < 400:
		return "3xx"
	case code >= 400 && code < 500:
		return "4xx"
	case code >= 500:
		return "5xx"
	default:
		return "unknown"
	}
}
