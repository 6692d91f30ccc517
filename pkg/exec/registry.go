package exec

import (
	"log/slog"
	"sync"
)

// Registry maps tool names to handlers. Names resolve first-come,
// first-served: a second handler for an existing name is ignored with
// a warning.
type Registry struct {
	mu       sync.RWMutex
	handlers map[string]Handler
	order    []string
}

// NewRegistry creates an empty handler registry.
func NewRegistry() *Registry {
	return &Registry{handlers: make(map[string]Handler)}
}

// Register adds a handler under its name.
func (r *Registry) Register(h Handler) {
	r.mu.Lock()
	defer r.mu.Unlock()
	name := h.Name()
	if _, exists := r.handlers[name]; exists {
		slog.Warn("tool handler name conflict, keeping first registration", "tool", name)
		return
	}
	r.handlers[name] = h
	r.order = append(r.order, name)
}

// Lookup returns the handler for a name, or nil.
func (r *Registry) Lookup(name string) Handler {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return r.handlers[name]
}

// Has reports whether a handler is registered for the name.
func (r *Registry) Has(name string) bool {
	return r.Lookup(name) != nil
}

// Names returns registered tool names in registration order.
func (r *Registry) Names() []string {
	r.mu.RLock()
	defer r.mu.RUnlock()
	out := make([]string, len(r.order))
	copy(out, r.order)
	return out
}
