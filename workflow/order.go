package workflow

import (
	"errors"
	"fmt"
	"strings"
)

// ErrDependencyResolution is returned when no valid execution order exists.
var ErrDependencyResolution = errors.New("unable to resolve step dependencies")

// DependencyError names the steps that could not be placed, either because
// of a cycle or because they depend on a step that does not exist.
type DependencyError struct {
	Unplaced []string
}

func (e *DependencyError) Error() string {
	return fmt.Sprintf("%v: %s", ErrDependencyResolution, strings.Join(e.Unplaced, ", "))
}

func (e *DependencyError) Unwrap() error { return ErrDependencyResolution }

// ResolveOrder returns every step exactly once with each step after all of
// its dependencies. It repeatedly scans the unplaced steps in declaration
// order, placing any step whose dependencies are already placed; a step
// placed during a scan satisfies later steps of the same scan. A scan that
// places nothing fails with a *DependencyError.
func ResolveOrder(steps []StepDefinition) ([]StepDefinition, error) {
	order := make([]StepDefinition, 0, len(steps))
	placed := make(map[string]bool, len(steps))
	remaining := append([]StepDefinition(nil), steps...)

	for len(remaining) > 0 {
		var next []StepDefinition
		for _, s := range remaining {
			if dependenciesMet(s, placed) {
				order = append(order, s)
				placed[s.Name] = true
				continue
			}
			next = append(next, s)
		}
		if len(next) == len(remaining) {
			return nil, &DependencyError{Unplaced: stepNames(next)}
		}
		remaining = next
	}
	return order, nil
}

// ResolveBatches groups steps into layers. Every step of a batch depends only
// on steps of earlier batches, so the steps of one batch are mutually
// independent. Batches keep declaration order.
func ResolveBatches(steps []StepDefinition) ([][]StepDefinition, error) {
	var batches [][]StepDefinition
	placed := make(map[string]bool, len(steps))
	remaining := append([]StepDefinition(nil), steps...)

	for len(remaining) > 0 {
		var batch, next []StepDefinition
		for _, s := range remaining {
			if dependenciesMet(s, placed) {
				batch = append(batch, s)
			} else {
				next = append(next, s)
			}
		}
		if len(batch) == 0 {
			return nil, &DependencyError{Unplaced: stepNames(next)}
		}
		for _, s := range batch {
			placed[s.Name] = true
		}
		batches = append(batches, batch)
		remaining = next
	}
	return batches, nil
}

func dependenciesMet(s StepDefinition, placed map[string]bool) bool {
	for _, dep := range s.DependsOn {
		if !placed[dep] {
			return false
		}
	}
	return true
}
