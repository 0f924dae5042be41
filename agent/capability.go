package agent

import (
	"context"
	"fmt"
)

// Capability is a named unit of work with a single Invoke operation.
type Capability interface {
	Name() string
	Invoke(ctx context.Context, inputs map[string]any) (any, error)
}

// InvokeFunc is the signature of a function-backed capability.
type InvokeFunc func(ctx context.Context, inputs map[string]any) (any, error)

// Func adapts a plain function into a Capability.
type Func struct {
	name string
	fn   InvokeFunc
}

// NewFunc returns a Capability that calls fn.
func NewFunc(name string, fn InvokeFunc) *Func {
	return &Func{name: name, fn: fn}
}

// Name returns the capability name.
func (f *Func) Name() string { return f.name }

// Invoke calls the wrapped function.
func (f *Func) Invoke(ctx context.Context, inputs map[string]any) (any, error) {
	return f.fn(ctx, inputs)
}

// Args are construction arguments handed to a Constructor, e.g. "model" and "provider".
type Args map[string]any

// String returns the string stored under key, or fallback when absent or empty.
func (a Args) String(key, fallback string) string {
	if a == nil {
		return fallback
	}
	if s, ok := a[key].(string); ok && s != "" {
		return s
	}
	return fallback
}

// Constructor builds a Capability from construction arguments.
type Constructor func(args Args) (Capability, error)

// Singleton returns a Constructor that always yields c.
func Singleton(c Capability) Constructor {
	return func(Args) (Capability, error) { return c, nil }
}

// RequireInput fetches a required input value.
func RequireInput(inputs map[string]any, key string) (any, error) {
	v, ok := inputs[key]
	if !ok || v == nil {
		return nil, fmt.Errorf("%w: missing %q", ErrInvalidInput, key)
	}
	return v, nil
}
