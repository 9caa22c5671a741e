package tools

import (
	"sort"
	"sync"

	"github.com/jyasuu/llm-playground/internal/llm"
)

// Registry holds the current tool catalog. Registration replaces any existing
// definition with the same name; lookups and schema listings are safe for
// concurrent use.
type Registry struct {
	mu   sync.RWMutex
	defs map[string]*Definition
}

func NewRegistry() *Registry {
	return &Registry{defs: make(map[string]*Definition)}
}

// Register adds or replaces a tool definition.
func (r *Registry) Register(def Definition) {
	if def.Name == "" {
		return
	}
	r.mu.Lock()
	defer r.mu.Unlock()
	copied := def
	r.defs[def.Name] = &copied
}

// Unregister removes a tool by name. Unknown names are ignored.
func (r *Registry) Unregister(name string) {
	r.mu.Lock()
	defer r.mu.Unlock()
	delete(r.defs, name)
}

// ReplaceKind swaps every definition of the given kind for the provided set.
// Used when a tool server refresh produces a new discovered catalog.
func (r *Registry) ReplaceKind(kind Kind, defs []Definition) {
	r.mu.Lock()
	defer r.mu.Unlock()

	for name, def := range r.defs {
		if def.Kind == kind {
			delete(r.defs, name)
		}
	}
	for _, def := range defs {
		if def.Name == "" {
			continue
		}
		copied := def
		r.defs[def.Name] = &copied
	}
}

// Get returns the definition for name, or nil when unknown.
func (r *Registry) Get(name string) *Definition {
	r.mu.RLock()
	defer r.mu.RUnlock()

	def, ok := r.defs[name]
	if !ok {
		return nil
	}
	copied := *def
	return &copied
}

// List returns all definitions sorted by name.
func (r *Registry) List() []Definition {
	r.mu.RLock()
	defer r.mu.RUnlock()

	result := make([]Definition, 0, len(r.defs))
	for _, def := range r.defs {
		result = append(result, *def)
	}
	sort.Slice(result, func(i, j int) bool { return result[i].Name < result[j].Name })
	return result
}

// SetEnabled toggles a tool. Returns false when the tool is unknown.
func (r *Registry) SetEnabled(name string, enabled bool) bool {
	r.mu.Lock()
	defer r.mu.Unlock()

	def, ok := r.defs[name]
	if !ok {
		return false
	}
	def.Enabled = enabled
	return true
}

// Schemas returns the provider-facing schemas of every enabled tool, sorted
// by name so the advertised catalog is stable between calls.
func (r *Registry) Schemas() []llm.ToolSchema {
	r.mu.RLock()
	defer r.mu.RUnlock()

	schemas := make([]llm.ToolSchema, 0, len(r.defs))
	for _, def := range r.defs {
		if !def.Enabled {
			continue
		}
		schemas = append(schemas, def.Schema())
	}
	sort.Slice(schemas, func(i, j int) bool { return schemas[i].Name < schemas[j].Name })
	if len(schemas) == 0 {
		return nil
	}
	return schemas
}
