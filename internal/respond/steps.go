package respond

import (
	"context"
	"fmt"
	"sync"

	"github.com/quintal-io/responder/internal/domain"
)

// StepFunc is an executable hook for one named procedure step,
// registered by operations tooling. The engine enforces only ordering
// and timing around it.
type StepFunc func(ctx context.Context, inc *domain.Incident) error

// StepRegistry maps step names to their executors.
type StepRegistry struct {
	mu    sync.RWMutex
	funcs map[string]StepFunc
}

// NewStepRegistry creates an empty step registry.
func NewStepRegistry() *StepRegistry {
	return &StepRegistry{funcs: make(map[string]StepFunc)}
}

// Register binds an executor to a step name.
func (r *StepRegistry) Register(name string, fn StepFunc) error {
	if name == "" {
		return fmt.Errorf("register step: name is required")
	}
	if fn == nil {
		return fmt.Errorf("register step %q: executor is nil", name)
	}
	r.mu.Lock()
	defer r.mu.Unlock()
	if _, exists := r.funcs[name]; exists {
		return fmt.Errorf("register step %q: already registered", name)
	}
	r.funcs[name] = fn
	return nil
}

// Get returns the executor bound to name.
func (r *StepRegistry) Get(name string) (StepFunc, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	fn, ok := r.funcs[name]
	return fn, ok
}
