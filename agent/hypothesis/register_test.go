package hypothesis

import (
	"context"
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"github.com/BaSui01/experimentkit/agent"
	"github.com/BaSui01/experimentkit/workflow"
)

func TestRegister(t *testing.T) {
	reg := agent.NewRegistry(zap.NewNop())
	custom := agent.NewFunc(RefinerName, func(context.Context, map[string]any) (any, error) { return "custom", nil })
	require.NoError(t, reg.Register(RefinerName, agent.Singleton(custom)))

	require.NoError(t, Register(reg, Deps{Caller: newScriptedCaller()}))
	assert.Equal(t, []string{RefinerName, AnalyzerName, ReviserName}, reg.List())

	c, err := reg.Capability(RefinerName)
	require.NoError(t, err)
	assert.Same(t, custom, c, "existing registrations are kept")

	require.NoError(t, Register(reg, Deps{Caller: newScriptedCaller()}), "second call is a no-op")
}

func TestRegister_NilCaller(t *testing.T) {
	assert.Error(t, Register(agent.NewRegistry(nil), Deps{}))
}

func TestConstructor_UsesArgs(t *testing.T) {
	caller := newScriptedCaller()
	reg := agent.NewRegistry(nil)
	require.NoError(t, Register(reg, Deps{
		Caller:   caller,
		Defaults: Settings{Model: "gpt-4o-mini", Provider: "openai"},
	}))

	c, err := reg.GetInstance(AnalyzerName, agent.Args{"model": "mistral-small", "provider": "mistral"})
	require.NoError(t, err)

	_, err = c.Invoke(context.Background(), map[string]any{"refined_hypothesis": "R"})
	require.NoError(t, err)
	require.Len(t, caller.requests, 1)
	assert.Equal(t, "mistral-small", caller.requests[0].Model)
	assert.Equal(t, "mistral", caller.requests[0].Provider)
}

func TestConstructor_Unknown(t *testing.T) {
	_, err := Constructor("nope", Deps{Caller: newScriptedCaller()})
	assert.ErrorIs(t, err, agent.ErrCapabilityNotFound)
}

func TestRefinementWorkflow_Completes(t *testing.T) {
	caller := newScriptedCaller()
	reg := agent.NewRegistry(nil)
	require.NoError(t, Register(reg, Deps{Caller: caller}))

	wf := NewRefinementWorkflow()
	assert.Equal(t, WorkflowName, wf.Name())

	res, err := wf.Execute(context.Background(), reg, map[string]any{"hypothesis": "Sleep helps memory"})
	require.NoError(t, err)

	assert.Equal(t, workflow.StatusCompleted, res.Status)
	assert.Equal(t, caller.answers[refinerProfile.systemMessage], res.StepValue("refine"))
	assert.Equal(t, caller.answers[analyzerProfile.systemMessage], res.StepValue("analyze"))
	assert.Equal(t, caller.answers[reviserProfile.systemMessage], res.FinalResult)

	require.Len(t, caller.requests, 3)
	assert.Contains(t, caller.requests[0].Prompt, "Sleep helps memory")
	assert.Contains(t, caller.requests[1].Prompt, caller.answers[refinerProfile.systemMessage])
	assert.Contains(t, caller.requests[2].Prompt, caller.answers[analyzerProfile.systemMessage])
}

func TestRefinementWorkflow_TypedChain(t *testing.T) {
	caller := newScriptedCaller()
	reg := agent.NewRegistry(nil)
	require.NoError(t, Register(reg, Deps{Caller: caller}))

	res, err := NewRefinementWorkflow().Execute(context.Background(), reg,
		map[string]any{"hypothesis": Hypothesis{Text: "Sleep helps memory"}})
	require.NoError(t, err)

	rev, ok := res.FinalResult.(Revision)
	require.True(t, ok, "typed inputs flow through to a typed revision")
	assert.Equal(t, "Sleep helps memory", rev.Original)
	assert.Equal(t, caller.answers[analyzerProfile.systemMessage], rev.Analysis)
}

func TestRefinementWorkflow_AnalyzerFailure(t *testing.T) {
	caller := newScriptedCaller()
	caller.failures[analyzerProfile.systemMessage] = errors.New("provider down")
	reg := agent.NewRegistry(nil)
	require.NoError(t, Register(reg, Deps{Caller: caller}))

	res, err := NewRefinementWorkflow().Execute(context.Background(), reg, map[string]any{"hypothesis": "h"})
	require.NoError(t, err)

	assert.Equal(t, workflow.StatusFailed, res.Status)
	assert.Equal(t, workflow.StatusCompleted, res.Steps["refine"].Status)
	assert.Equal(t, workflow.StatusFailed, res.Steps["analyze"].Status)
	assert.NotContains(t, res.Steps, "revise")
	assert.Contains(t, res.Error, "agent hypothesis_analyzer execution failed: provider down")
	assert.Nil(t, res.FinalResult)
}
