package history

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"github.com/BaSui01/experimentkit/agent"
	"github.com/BaSui01/experimentkit/config"
	"github.com/BaSui01/experimentkit/internal/database"
	"github.com/BaSui01/experimentkit/workflow"
)

func newTestStore(t *testing.T) *Store {
	t.Helper()
	cfg := config.DatabaseConfig{Driver: "sqlite", Name: ":memory:"}
	db, err := database.Open(cfg, zap.NewNop())
	require.NoError(t, err)

	pool, err := database.NewPoolManager(db, database.PoolConfigFrom(cfg), zap.NewNop())
	require.NoError(t, err)
	t.Cleanup(func() { _ = pool.Close() })

	s := NewStore(pool, zap.NewNop())
	require.NoError(t, s.AutoMigrate(context.Background()))
	return s
}

func runResult(id, name string, status workflow.Status, started time.Time) *workflow.WorkflowResult {
	return &workflow.WorkflowResult{
		ID:           id,
		WorkflowName: name,
		Status:       status,
		Steps: map[string]workflow.StepResult{
			"refine":  {Status: workflow.StatusCompleted, Result: "refined", DurationMS: 12},
			"analyze": {Status: workflow.StatusCompleted, Result: map[string]any{"text": "analysis"}, DurationMS: 8},
		},
		StepOrder:   []string{"refine", "analyze"},
		FinalResult: map[string]any{"text": "analysis"},
		StartedAt:   started,
		FinishedAt:  started.Add(20 * time.Millisecond),
	}
}

func TestStore_SaveAndGet(t *testing.T) {
	s := newTestStore(t)
	ctx := context.Background()
	started := time.Now().UTC().Truncate(time.Millisecond)

	require.NoError(t, s.Save(ctx, runResult("run-1", "hypothesis_refinement", workflow.StatusCompleted, started),
		map[string]any{"hypothesis": "X"}))

	rec, err := s.Get(ctx, "run-1")
	require.NoError(t, err)
	assert.Equal(t, "hypothesis_refinement", rec.WorkflowName)
	assert.Equal(t, "completed", rec.Status)
	assert.Equal(t, int64(20), rec.DurationMS)
	assert.Equal(t, map[string]any{"hypothesis": "X"}, rec.Inputs)
	assert.Equal(t, map[string]any{"text": "analysis"}, rec.FinalResult)
	require.Len(t, rec.Steps, 2)
	assert.Equal(t, "refine", rec.Steps[0].StepName)
	assert.Equal(t, "analyze", rec.Steps[1].StepName)
	assert.Equal(t, "refined", rec.Steps[0].Result)

	res := rec.Result()
	assert.Equal(t, workflow.StatusCompleted, res.Status)
	assert.Equal(t, []string{"refine", "analyze"}, res.StepOrder)
	assert.Equal(t, int64(8), res.Steps["analyze"].DurationMS)
}

func TestStore_GetMissing(t *testing.T) {
	s := newTestStore(t)
	_, err := s.Get(context.Background(), "nope")
	assert.ErrorIs(t, err, ErrRunNotFound)
}

func TestStore_SaveRejectsDuplicateAndMissingID(t *testing.T) {
	s := newTestStore(t)
	ctx := context.Background()
	res := runResult("dup", "wf", workflow.StatusCompleted, time.Now())

	require.NoError(t, s.Save(ctx, res, nil))
	assert.Error(t, s.Save(ctx, res, nil))
	assert.Error(t, s.Save(ctx, &workflow.WorkflowResult{}, nil))
}

func TestStore_ListFiltersAndOrders(t *testing.T) {
	s := newTestStore(t)
	ctx := context.Background()
	base := time.Now().UTC()

	require.NoError(t, s.Save(ctx, runResult("a", "wf-1", workflow.StatusCompleted, base.Add(-3*time.Minute)), nil))
	require.NoError(t, s.Save(ctx, runResult("b", "wf-1", workflow.StatusFailed, base.Add(-2*time.Minute)), nil))
	require.NoError(t, s.Save(ctx, runResult("c", "wf-2", workflow.StatusCompleted, base.Add(-1*time.Minute)), nil))

	all, err := s.List(ctx, ListOptions{})
	require.NoError(t, err)
	require.Len(t, all, 3)
	assert.Equal(t, []string{"c", "b", "a"}, []string{all[0].ID, all[1].ID, all[2].ID})
	assert.Empty(t, all[0].Steps)

	wf1, err := s.List(ctx, ListOptions{Workflow: "wf-1"})
	require.NoError(t, err)
	assert.Len(t, wf1, 2)

	failed, err := s.List(ctx, ListOptions{Status: "failed"})
	require.NoError(t, err)
	require.Len(t, failed, 1)
	assert.Equal(t, "b", failed[0].ID)

	page, err := s.List(ctx, ListOptions{Limit: 1, Offset: 1})
	require.NoError(t, err)
	require.Len(t, page, 1)
	assert.Equal(t, "b", page[0].ID)

	counts, err := s.CountByStatus(ctx)
	require.NoError(t, err)
	assert.Equal(t, map[string]int64{"completed": 2, "failed": 1}, counts)
}

func TestStore_Prune(t *testing.T) {
	s := newTestStore(t)
	ctx := context.Background()
	now := time.Now().UTC()

	require.NoError(t, s.Save(ctx, runResult("old", "wf", workflow.StatusCompleted, now.Add(-48*time.Hour)), nil))
	require.NoError(t, s.Save(ctx, runResult("new", "wf", workflow.StatusCompleted, now), nil))

	deleted, err := s.Prune(ctx, now.Add(-24*time.Hour))
	require.NoError(t, err)
	assert.Equal(t, int64(1), deleted)

	_, err = s.Get(ctx, "old")
	assert.ErrorIs(t, err, ErrRunNotFound)
	_, err = s.Get(ctx, "new")
	assert.NoError(t, err)
}

func TestStore_PersistsExecutedWorkflow(t *testing.T) {
	s := newTestStore(t)
	ctx := context.Background()

	reg := agent.NewRegistry(nil)
	require.NoError(t, reg.Register("upper", func(agent.Args) (agent.Capability, error) {
		return agent.NewFunc("upper", func(_ context.Context, in map[string]any) (any, error) {
			return in["text"].(string) + "!", nil
		}), nil
	}))
	wf := workflow.New("persisted").
		AddStep("first", "upper", map[string]any{"text": "$seed"}, nil, "").
		AddStep("second", "upper", map[string]any{"text": "$first"}, []string{"first"}, "").
		AddStep("never", "upper", nil, nil, "$missing")

	inputs := map[string]any{"seed": "hi"}
	res, err := wf.Execute(ctx, reg, inputs)
	require.NoError(t, err)
	require.NoError(t, s.Save(ctx, res, inputs))

	rec, err := s.Get(ctx, res.ID)
	require.NoError(t, err)
	assert.Equal(t, "completed", rec.Status)
	require.Len(t, rec.Steps, 3)
	assert.Equal(t, "hi!!", rec.Steps[1].Result)
	assert.Equal(t, "skipped", rec.Steps[2].Status)
	assert.Nil(t, rec.FinalResult, "last declared step was skipped")
}

func TestFromResult_WithoutStepOrder(t *testing.T) {
	res := runResult("x", "wf", workflow.StatusCompleted, time.Now())
	res.StepOrder = nil

	rec := FromResult(res, nil)
	assert.Len(t, rec.Steps, 2)
	assert.Equal(t, 0, rec.Steps[0].Position)
	assert.Equal(t, 1, rec.Steps[1].Position)
}
