package workflow

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestPipeline_ParallelGroups(t *testing.T) {
	p := NewPipeline("fanout").
		AddStep("load", "capA", nil, nil, "").
		AddStep("left", "capB", map[string]any{"x": "$load"}, []string{"load"}, "").
		AddStep("right", "capB", map[string]any{"x": "$load"}, []string{"load"}, "").
		AddStep("merge", "capC", map[string]any{"l": "$left", "r": "$right"}, []string{"left", "right"}, "").
		AddParallelSteps("left", "right")

	require.NoError(t, p.ValidateGroups())
	assert.Equal(t, [][]string{{"left", "right"}}, p.ParallelGroups())

	batches, err := p.Batches()
	require.NoError(t, err)
	assert.Len(t, batches, 3)

	caps := newCapabilities().returning("capA", 1).returning("capB", 2).returning("capC", 3)
	res, err := p.Execute(context.Background(), caps, nil)
	require.NoError(t, err)
	assert.Equal(t, StatusCompleted, res.Status)
	assert.Equal(t, 3, res.FinalResult)
	assert.Equal(t, []string{"capA", "capB", "capB", "capC"}, caps.calls)
}

func TestPipeline_ValidateGroupsRejectsBadGroups(t *testing.T) {
	base := func() *Pipeline {
		return NewPipeline("p").
			AddStep("a", "cap", nil, nil, "").
			AddStep("b", "cap", nil, []string{"a"}, "")
	}

	err := base().AddParallelSteps("a", "b").ValidateGroups()
	assert.ErrorIs(t, err, ErrInvalidWorkflow)

	err = base().AddParallelSteps("a", "ghost").ValidateGroups()
	assert.ErrorIs(t, err, ErrInvalidWorkflow)
	assert.Contains(t, err.Error(), "ghost")

	// 传递依赖同样不能放进同一组
	err = base().AddStep("c", "cap", nil, []string{"b"}, "").AddParallelSteps("c", "a").ValidateGroups()
	assert.ErrorIs(t, err, ErrInvalidWorkflow)
	assert.Contains(t, err.Error(), `step "c" depends on "a"`)
}

func TestPipeline_ValidateGroupsAcceptsIndependentStepsAtDifferentDepths(t *testing.T) {
	p := NewPipeline("p").
		AddStep("a", "cap", nil, nil, "").
		AddStep("b", "cap", nil, []string{"a"}, "").
		AddStep("c", "cap", nil, []string{"b"}, "").
		AddStep("d", "cap", nil, nil, "").
		AddParallelSteps("c", "d")

	require.NoError(t, p.ValidateGroups())

	def := &Definition{Name: "p", Steps: p.Steps(), Parallel: p.ParallelGroups()}
	assert.NoError(t, def.Validate())
}
