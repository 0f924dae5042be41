package metrics

import (
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"github.com/BaSui01/experimentkit/agent"
	"github.com/BaSui01/experimentkit/llm"
	"github.com/BaSui01/experimentkit/workflow"
)

var (
	_ agent.Recorder    = (*Collector)(nil)
	_ workflow.Recorder = (*Collector)(nil)
	_ llm.Recorder      = (*Collector)(nil)
)

func newTestCollector(t *testing.T) (*Collector, *prometheus.Registry) {
	t.Helper()
	reg := prometheus.NewRegistry()
	return NewCollectorWithRegistry("test", reg, zap.NewNop()), reg
}

// =============================================================================
// 🧪 Collector 测试
// =============================================================================

func TestCollector_AgentMetrics(t *testing.T) {
	c, _ := newTestCollector(t)

	c.RecordAgentExecution("hypothesis_refiner", "openai")
	c.RecordAgentExecution("hypothesis_refiner", "openai")
	c.RecordAgentDuration("hypothesis_refiner", "success", 1500*time.Millisecond)
	c.RecordAgentError("hypothesis_refiner", "RATE_LIMITED")

	assert.Equal(t, 2.0, testutil.ToFloat64(c.agentExecutionsTotal.WithLabelValues("hypothesis_refiner", "openai")))
	assert.Equal(t, 1.0, testutil.ToFloat64(c.agentErrorsTotal.WithLabelValues("hypothesis_refiner", "RATE_LIMITED")))
	assert.Equal(t, 1, testutil.CollectAndCount(c.agentDuration))
}

func TestCollector_WorkflowMetrics(t *testing.T) {
	c, _ := newTestCollector(t)

	c.RecordWorkflowStarted("hypothesis_refinement")
	c.RecordWorkflowStarted("hypothesis_refinement")
	c.RecordWorkflowCompleted("hypothesis_refinement", "completed", 3*time.Second)
	c.RecordWorkflowFailed("hypothesis_refinement", "AGENT_EXECUTION")

	assert.Equal(t, 2.0, testutil.ToFloat64(c.workflowStartedTotal.WithLabelValues("hypothesis_refinement")))
	assert.Equal(t, 1.0, testutil.ToFloat64(c.workflowCompletedTotal.WithLabelValues("hypothesis_refinement", "completed")))
	assert.Equal(t, 1.0, testutil.ToFloat64(c.workflowFailedTotal.WithLabelValues("hypothesis_refinement", "AGENT_EXECUTION")))
}

func TestCollector_LLMMetrics(t *testing.T) {
	c, reg := newTestCollector(t)

	c.RecordLLMRequest("openai", "gpt-4o-mini")
	c.RecordLLMDuration("openai", "success", 800*time.Millisecond)
	c.RecordLLMSuccess("openai")
	c.RecordLLMError("anthropic", "CALL_FAILED")
	c.RecordLLMCacheHit("openai")

	expected := `
# HELP test_llm_success_total Total number of successful LLM calls
# TYPE test_llm_success_total counter
test_llm_success_total{provider="openai"} 1
`
	require.NoError(t, testutil.GatherAndCompare(reg, strings.NewReader(expected), "test_llm_success_total"))
	assert.Equal(t, 1.0, testutil.ToFloat64(c.llmErrorsTotal.WithLabelValues("anthropic", "CALL_FAILED")))
	assert.Equal(t, 1.0, testutil.ToFloat64(c.llmCacheHitsTotal.WithLabelValues("openai")))
}

func TestCollector_HTTPStatusClasses(t *testing.T) {
	c, _ := newTestCollector(t)

	c.RecordHTTPRequest("POST", "/api/v1/agents/execute", 200, 10*time.Millisecond)
	c.RecordHTTPRequest("POST", "/api/v1/agents/execute", 404, 10*time.Millisecond)
	c.RecordHTTPRequest("POST", "/api/v1/agents/execute", 503, 10*time.Millisecond)

	for _, class := range []string{"2xx", "4xx", "5xx"} {
		assert.Equal(t, 1.0, testutil.ToFloat64(c.httpRequestsTotal.WithLabelValues("POST", "/api/v1/agents/execute", class)), class)
	}
}

func TestCollector_ConcurrentRecording(t *testing.T) {
	c, _ := newTestCollector(t)

	var wg sync.WaitGroup
	for i := 0; i < 10; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			c.RecordLLMRequest("openai", "gpt-4o-mini")
			c.RecordWorkflowStarted("wf")
		}()
	}
	wg.Wait()

	assert.Equal(t, 10.0, testutil.ToFloat64(c.llmRequestsTotal.WithLabelValues("openai", "gpt-4o-mini")))
	assert.Equal(t, 10.0, testutil.ToFloat64(c.workflowStartedTotal.WithLabelValues("wf")))
}

func TestCollector_DuplicateRegistrationPanics(t *testing.T) {
	reg := prometheus.NewRegistry()
	NewCollectorWithRegistry("dup", reg, nil)
	assert.Panics(t, func() { NewCollectorWithRegistry("dup", reg, nil) })
}

func TestStatusCode(t *testing.T) {
	assert.Equal(t, "2xx", statusCode(201))
	assert.Equal(t, "3xx", statusCode(302))
	assert.Equal(t, "unknown", statusCode(100))
}
