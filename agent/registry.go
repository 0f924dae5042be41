package agent

import (
	"fmt"
	"sync"

	"go.uber.org/zap"
)

// RegisterOption customizes a Register call.
type RegisterOption func(*registerOptions)

type registerOptions struct {
	overwrite bool
}

// WithOverwrite replaces an existing registration instead of failing.
func WithOverwrite() RegisterOption {
	return func(o *registerOptions) { o.overwrite = true }
}

// Registry maps capability names to constructors and caches at most one live
// instance per name. Every cached name also exists in the constructor table.
type Registry struct {
	mu        sync.Mutex
	ctors     map[string]Constructor
	order     []string
	instances map[string]Capability
	logger    *zap.Logger
}

// NewRegistry creates an empty registry.
func NewRegistry(logger *zap.Logger) *Registry {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Registry{
		ctors:     make(map[string]Constructor),
		instances: make(map[string]Capability),
		logger:    logger.With(zap.String("component", "capability_registry")),
	}
}

// Register stores ctor under name. Overwriting drops the cached instance so the
// next lookup builds one from the new constructor.
func (r *Registry) Register(name string, ctor Constructor, opts ...RegisterOption) error {
	if name == "" {
		return fmt.Errorf("%w: empty name", ErrInvalidInput)
	}
	if ctor == nil {
		return fmt.Errorf("%w: nil constructor for %q", ErrInvalidInput, name)
	}
	var o registerOptions
	for _, opt := range opts {
		opt(&o)
	}

	r.mu.Lock()
	defer r.mu.Unlock()

	if _, exists := r.ctors[name]; exists {
		if !o.overwrite {
			return fmt.Errorf("%w: %q", ErrDuplicateCapability, name)
		}
		delete(r.instances, name)
	} else {
		r.order = append(r.order, name)
	}
	r.ctors[name] = ctor

	r.logger.Debug("capability registered",
		zap.String("name", name),
		zap.Bool("overwrite", o.overwrite),
	)
	return nil
}

// GetInstance returns the cached instance for name, constructing it with args
// on first request. Once an instance is cached, args of later calls are
// ignored; Unregister or an overwriting Register is needed to rebuild it.
//
// The constructor runs under the registry lock and must not call back into
// the registry.
func (r *Registry) GetInstance(name string, args Args) (Capability, error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	if c, ok := r.instances[name]; ok {
		return c, nil
	}
	ctor, ok := r.ctors[name]
	if !ok {
		return nil, fmt.Errorf("%w: %q", ErrCapabilityNotFound, name)
	}

	c, err := ctor(args)
	if err != nil {
		return nil, fmt.Errorf("construct capability %q: %w", name, err)
	}
	r.instances[name] = c

	r.logger.Debug("capability instance created", zap.String("name", name))
	return c, nil
}

// Capability looks up name with no construction arguments. It lets the
// registry serve as a workflow capability lookup.
func (r *Registry) Capability(name string) (Capability, error) {
	return r.GetInstance(name, nil)
}

// List returns registered names in registration order.
func (r *Registry) List() []string {
	r.mu.Lock()
	defer r.mu.Unlock()

	out := make([]string, len(r.order))
	copy(out, r.order)
	return out
}

// IsRegistered reports whether name has a constructor.
func (r *Registry) IsRegistered(name string) bool {
	r.mu.Lock()
	defer r.mu.Unlock()

	_, ok := r.ctors[name]
	return ok
}

// Unregister removes both the constructor and any cached instance.
func (r *Registry) Unregister(name string) {
	r.mu.Lock()
	defer r.mu.Unlock()

	if _, ok := r.ctors[name]; !ok {
		return
	}
	delete(r.ctors, name)
	delete(r.instances, name)
	for i, n := range r.order {
		if n == name {
			r.order = append(r.order[:i], r.order[i+1:]...)
			break
		}
	}
	r.logger.Debug("capability unregistered", zap.String("name", name))
}
