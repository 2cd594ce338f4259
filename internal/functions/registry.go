// Package functions is a static registry of model-callable functions:
// a mapping from function name to a JSON-schema-like parameter description
// and a handler, populated at startup via explicit Register calls. There is
// no filesystem scanning and no dynamic code loading.
package functions

import (
	"context"
	"encoding/json"
	"fmt"
	"sort"
	"strings"
	"sync"
)

// Spec declares one callable function to the model.
type Spec struct {
	Name        string
	Description string
	// Parameters is a JSON-schema object describing the arguments.
	Parameters map[string]any
	Handler    func(ctx context.Context, args json.RawMessage) (string, error)
}

// Registry stores function specs by unique name.
type Registry struct {
	mu    sync.RWMutex
	specs map[string]Spec
}

func NewRegistry() *Registry {
	return &Registry{
		specs: map[string]Spec{},
	}
}

func (r *Registry) Register(s Spec) error {
	name := strings.TrimSpace(s.Name)
	if name == "" {
		return fmt.Errorf("function name is empty")
	}
	if s.Handler == nil {
		return fmt.Errorf("function %s has no handler", name)
	}

	r.mu.Lock()
	defer r.mu.Unlock()
	if _, exists := r.specs[name]; exists {
		return fmt.Errorf("function already registered: %s", name)
	}
	r.specs[name] = s
	return nil
}

// Specs returns all registered specs sorted by name.
func (r *Registry) Specs() []Spec {
	r.mu.RLock()
	defer r.mu.RUnlock()
	names := make([]string, 0, len(r.specs))
	for name := range r.specs {
		names = append(names, name)
	}
	sort.Strings(names)

	out := make([]Spec, 0, len(names))
	for _, name := range names {
		out = append(out, r.specs[name])
	}
	return out
}

// Call invokes the named function with raw JSON arguments.
func (r *Registry) Call(ctx context.Context, name string, args json.RawMessage) (string, error) {
	r.mu.RLock()
	s, ok := r.specs[name]
	r.mu.RUnlock()
	if !ok {
		return "", fmt.Errorf("unknown function: %s", name)
	}
	return s.Handler(ctx, args)
}

// Len reports the number of registered functions.
func (r *Registry) Len() int {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return len(r.specs)
}
