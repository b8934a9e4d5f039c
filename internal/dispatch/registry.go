package dispatch

import (
	"fmt"
	"sort"
)

// ActionRegistry maps handler-function names to Action implementations.
//
// The registry is built once at process initialization and injected into the
// Dispatcher by reference - there is no ambient/global lookup. It is not
// safe for concurrent mutation; register everything before dispatching.
type ActionRegistry struct {
	actions map[string]Action
}

// NewActionRegistry creates an empty registry.
func NewActionRegistry() *ActionRegistry {
	return &ActionRegistry{actions: make(map[string]Action)}
}

// Register binds a name to an action. Duplicate names are a wiring bug and
// return an error rather than silently replacing the earlier binding.
func (r *ActionRegistry) Register(name string, action Action) error {
	if name == "" {
		return fmt.Errorf("register action: name is required")
	}
	if action == nil {
		return fmt.Errorf("register action %q: action is nil", name)
	}
	if _, exists := r.actions[name]; exists {
		return fmt.Errorf("register action %q: already registered", name)
	}
	r.actions[name] = action
	return nil
}

// Lookup returns the action bound to name.
func (r *ActionRegistry) Lookup(name string) (Action, bool) {
	a, ok := r.actions[name]
	return a, ok
}

// Names returns the registered names, sorted for stable diagnostics.
func (r *ActionRegistry) Names() []string {
	names := make([]string, 0, len(r.actions))
	for name := range r.actions {
		names = append(names, name)
	}
	sort.Strings(names)
	return names
}
