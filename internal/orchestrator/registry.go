// internal/orchestrator/registry.go
package orchestrator

import "sync"

// Registry hands out one orchestrator instance per user, creating them
// on demand over a shared set of collaborators.
type Registry struct {
	deps Deps

	mu        sync.Mutex
	instances map[string]*Orchestrator
}

// NewRegistry creates a registry sharing deps across instances.
func NewRegistry(deps Deps) *Registry {
	return &Registry{
		deps:      deps,
		instances: make(map[string]*Orchestrator),
	}
}

// ForUser returns the user's orchestrator, creating it if needed.
func (r *Registry) ForUser(userID string) (*Orchestrator, error) {
	if userID == "" {
		return nil, ErrNotAuthenticated
	}

	r.mu.Lock()
	defer r.mu.Unlock()

	if o, ok := r.instances[userID]; ok {
		return o, nil
	}
	o, err := New(userID, r.deps)
	if err != nil {
		return nil, err
	}
	r.instances[userID] = o
	return o, nil
}
