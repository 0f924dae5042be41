package history

import (
	"time"

	"github.com/BaSui01/experimentkit/workflow"
)

// RunRecord 对应 workflow_runs 表
type RunRecord struct {
	ID           string         `gorm:"primaryKey;size:36" json:"id"`
	WorkflowName string         `gorm:"size:255;not null;index" json:"workflow_name"`
	Status       string         `gorm:"size:32;not null" json:"status"`
	Error        string         `gorm:"type:text;not null;default:''" json:"error,omitempty"`
	Inputs       map[string]any `gorm:"serializer:json" json:"inputs,omitempty"`
	FinalResult  any            `gorm:"serializer:json" json:"final_result"`
	DurationMS   int64          `gorm:"column:duration_ms;not null;default:0" json:"duration_ms"`
	StartedAt    time.Time      `gorm:"not null;index" json:"started_at"`
	FinishedAt   time.Time      `gorm:"not null" json:"finished_at"`
	CreatedAt    time.Time      `json:"created_at"`

	Steps []StepRecord `gorm:"foreignKey:RunID;references:ID" json:"steps,omitempty"`
}

func (RunRecord) TableName() string { return "workflow_runs" }

// StepRecord 对应 workflow_run_steps 表
type StepRecord struct {
	RunID      string `gorm:"primaryKey;size:36" json:"-"`
	StepName   string `gorm:"primaryKey;size:255" json:"step_name"`
	Position   int    `gorm:"not null;default:0" json:"position"`
	Status     string `gorm:"size:32;not null" json:"status"`
	Error      string `gorm:"type:text;not null;default:''" json:"error,omitempty"`
	Result     any    `gorm:"serializer:json" json:"result"`
	DurationMS int64  `gorm:"column:duration_ms;not null;default:0" json:"duration_ms"`
}

func (StepRecord) TableName() string { return "workflow_run_steps" }

// FromResult 将一次运行结果转换为持久化记录
func FromResult(res *workflow.WorkflowResult, inputs map[string]any) *RunRecord {
	rec := &RunRecord{
		ID:           res.ID,
		WorkflowName: res.WorkflowName,
		Status:       string(res.Status),
		Error:        res.Error,
		Inputs:       inputs,
		FinalResult:  res.FinalResult,
		DurationMS:   res.Duration().Milliseconds(),
		StartedAt:    res.StartedAt,
		FinishedAt:   res.FinishedAt,
	}

	seen := make(map[string]bool, len(res.Steps))
	add := func(name string) {
		sr, ok := res.Steps[name]
		if !ok || seen[name] {
			return
		}
		seen[name] = true
		rec.Steps = append(rec.Steps, StepRecord{
			RunID:      res.ID,
			StepName:   name,
			Position:   len(rec.Steps),
			Status:     string(sr.Status),
			Error:      sr.Error,
			Result:     sr.Result,
			DurationMS: sr.DurationMS,
		})
	}
	for _, name := range res.StepOrder {
		add(name)
	}
	// 没有 StepOrder 的结果（例如手工构造）追加剩余步骤
	for name := range res.Steps {
		add(name)
	}
	return rec
}

// Result 将持久化记录还原为运行结果。结果值经过 JSON 往返，类型化结果会变为 map
func (r *RunRecord) Result() *workflow.WorkflowResult {
	res := &workflow.WorkflowResult{
		ID:           r.ID,
		WorkflowName: r.WorkflowName,
		Status:       workflow.Status(r.Status),
		Steps:        make(map[string]workflow.StepResult, len(r.Steps)),
		FinalResult:  r.FinalResult,
		Error:        r.Error,
		StartedAt:    r.StartedAt,
		FinishedAt:   r.FinishedAt,
	}
	for _, s := range r.Steps {
		res.Steps[s.StepName] = workflow.StepResult{
			Status:     workflow.Status(s.Status),
			Result:     s.Result,
			Error:      s.Error,
			DurationMS: s.DurationMS,
		}
		res.StepOrder = append(res.StepOrder, s.StepName)
	}
	return res
}
