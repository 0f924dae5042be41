package hypothesis

import (
	"errors"
	"fmt"

	"go.uber.org/zap"

	"github.com/BaSui01/experimentkit/agent"
	"github.com/BaSui01/experimentkit/workflow"
)

// WorkflowName is the name of the built-in refinement workflow.
const WorkflowName = "hypothesis_refinement"

// Deps are the collaborators shared by the hypothesis agents.
type Deps struct {
	Caller   Caller
	Defaults Settings // usually the configured default model and provider
	Logger   *zap.Logger
	Recorder agent.Recorder
}

// Constructor returns a registry constructor for one of the three agent names.
func Constructor(name string, deps Deps) (agent.Constructor, error) {
	if deps.Caller == nil {
		return nil, errors.New("hypothesis: nil LLM caller")
	}
	var build func(Caller, Settings) agent.Capability
	switch name {
	case RefinerName:
		build = func(c Caller, s Settings) agent.Capability { return NewRefiner(c, s) }
	case AnalyzerName:
		build = func(c Caller, s Settings) agent.Capability { return NewAnalyzer(c, s) }
	case ReviserName:
		build = func(c Caller, s Settings) agent.Capability { return NewReviser(c, s) }
	default:
		return nil, fmt.Errorf("%w: %q", agent.ErrCapabilityNotFound, name)
	}

	return func(args agent.Args) (agent.Capability, error) {
		settings := SettingsFromArgs(args, deps.Defaults)
		return agent.Instrument(build(deps.Caller, settings),
			agent.WithLogger(deps.Logger),
			agent.WithRecorder(deps.Recorder),
			agent.WithProviderLabel(settings.Provider),
		), nil
	}, nil
}

// Register adds the three hypothesis agents to reg. Names that are already
// registered are left untouched.
func Register(reg *agent.Registry, deps Deps) error {
	for _, name := range []string{RefinerName, AnalyzerName, ReviserName} {
		if reg.IsRegistered(name) {
			continue
		}
		ctor, err := Constructor(name, deps)
		if err != nil {
			return err
		}
		if err := reg.Register(name, ctor); err != nil && !errors.Is(err, agent.ErrDuplicateCapability) {
			return err
		}
	}
	return nil
}

// NewRefinementWorkflow builds refine -> analyze -> revise.
func NewRefinementWorkflow(opts ...workflow.Option) *workflow.Workflow {
	return workflow.New(WorkflowName, opts...).
		AddStep("refine", RefinerName,
			map[string]any{"hypothesis": "$hypothesis"}, nil, "").
		AddStep("analyze", AnalyzerName,
			map[string]any{"refined_hypothesis": "$refine"}, []string{"refine"}, "").
		AddStep("revise", ReviserName,
			map[string]any{"original": "$refine", "reflection": "$analyze"}, []string{"analyze"}, "")
}
