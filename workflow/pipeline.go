package workflow

import "fmt"

// Pipeline is a Workflow that also records groups of steps declared safe to
// run in parallel. Execution stays sequential; the groups are checked against
// the declared dependencies and reported to callers.
type Pipeline struct {
	*Workflow
	groups [][]string
}

// NewPipeline creates an empty pipeline.
func NewPipeline(name string, opts ...Option) *Pipeline {
	return &Pipeline{Workflow: New(name, opts...)}
}

// AddStep declares a step and returns p for chaining.
func (p *Pipeline) AddStep(name, capability string, inputs map[string]any, dependsOn []string, condition string) *Pipeline {
	p.Workflow.AddStep(name, capability, inputs, dependsOn, condition)
	return p
}

// AddParallelSteps records names as one parallel group.
func (p *Pipeline) AddParallelSteps(names ...string) *Pipeline {
	p.groups = append(p.groups, append([]string(nil), names...))
	return p
}

// ParallelGroups returns the recorded groups.
func (p *Pipeline) ParallelGroups() [][]string {
	out := make([][]string, len(p.groups))
	for i, g := range p.groups {
		out[i] = append([]string(nil), g...)
	}
	return out
}

// ValidateGroups checks that every grouped name is a declared step and that
// no step of a group depends, directly or transitively, on another step of
// the same group. Steps at different depths may share a group.
func (p *Pipeline) ValidateGroups() error {
	if _, err := p.ExecutionOrder(); err != nil {
		return err
	}
	deps := make(map[string][]string, len(p.steps))
	for _, s := range p.steps {
		deps[s.Name] = s.DependsOn
	}
	closures := make(map[string]map[string]struct{}, len(deps))
	var closure func(name string) map[string]struct{}
	closure = func(name string) map[string]struct{} {
		if c, ok := closures[name]; ok {
			return c
		}
		c := make(map[string]struct{})
		for _, d := range deps[name] {
			c[d] = struct{}{}
			for dd := range closure(d) {
				c[dd] = struct{}{}
			}
		}
		closures[name] = c
		return c
	}

	for gi, g := range p.groups {
		for _, name := range g {
			if _, ok := deps[name]; !ok {
				return fmt.Errorf("%w: parallel group %d references unknown step %q", ErrInvalidWorkflow, gi, name)
			}
		}
		for _, name := range g {
			upstream := closure(name)
			for _, other := range g {
				if other == name {
					continue
				}
				if _, ok := upstream[other]; ok {
					return fmt.Errorf("%w: parallel group %d: step %q depends on %q", ErrInvalidWorkflow, gi, name, other)
				}
			}
		}
	}
	return nil
}
