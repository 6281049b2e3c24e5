package agentstate

import "sync"

// Registry tracks named engines so guarded operations and tooling can
// resolve an agent's engine without threading it through every call.
// Programs that manage a single agent can skip it entirely.
type Registry struct {
	mu      sync.RWMutex
	engines map[string]*Engine
	opts    Options
}

// NewRegistry creates an empty registry. Engines created on demand by
// ForAgent inherit the defaults, with AgentName replaced per agent.
func NewRegistry(defaults Options) *Registry {
	return &Registry{
		engines: make(map[string]*Engine),
		opts:    defaults,
	}
}

// Register stores an engine under the agent's name, replacing any
// previous entry.
func (r *Registry) Register(eng *Engine) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.engines[eng.AgentName()] = eng
}

// Get returns the engine registered for name, or nil.
func (r *Registry) Get(name string) *Engine {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return r.engines[name]
}

// ForAgent returns the engine for name, creating and registering one
// from the registry defaults if none exists.
func (r *Registry) ForAgent(name string) (*Engine, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	if eng, ok := r.engines[name]; ok {
		return eng, nil
	}
	opts := r.opts
	opts.AgentName = name
	eng, err := New(opts)
	if err != nil {
		return nil, err
	}
	r.engines[name] = eng
	return eng, nil
}

// Remove drops the engine registered for name.
func (r *Registry) Remove(name string) {
	r.mu.Lock()
	defer r.mu.Unlock()
	delete(r.engines, name)
}

// Names lists registered agent names.
func (r *Registry) Names() []string {
	r.mu.RLock()
	defer r.mu.RUnlock()
	names := make([]string, 0, len(r.engines))
	for name := range r.engines {
		names = append(names, name)
	}
	return names
}
