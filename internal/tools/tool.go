package tools

import (
	"context"
	"fmt"
	"sync"

	"github.com/stellarlinkco/coachd/internal/provider"
)

// Tool is the single capability contract every tool implements. Read-only
// tools are idempotent and side-effect-free and may run concurrently;
// mutating tools run sequentially and must re-validate user ownership of
// anything an id parameter points at.
type Tool interface {
	Name() string
	Description() string
	Schema() map[string]any
	ReadOnly() bool
	Execute(ctx context.Context, userID string, params map[string]any) (string, error)
}

// Registry maps tool names to implementations. Dispatch is a map lookup.
type Registry struct {
	mu    sync.RWMutex
	tools map[string]Tool
}

func NewRegistry() *Registry {
	return &Registry{tools: make(map[string]Tool)}
}

func (r *Registry) Register(t Tool) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	if _, exists := r.tools[t.Name()]; exists {
		return fmt.Errorf("tool %q already registered", t.Name())
	}
	r.tools[t.Name()] = t
	return nil
}

func (r *Registry) Get(name string) (Tool, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	t, ok := r.tools[name]
	return t, ok
}

// Clone returns a registry with the same tools, for per-turn augmentation
// without mutating the shared catalog.
func (r *Registry) Clone() *Registry {
	r.mu.RLock()
	defer r.mu.RUnlock()
	clone := NewRegistry()
	for name, t := range r.tools {
		clone.tools[name] = t
	}
	return clone
}

// Definitions renders the catalog in the shape providers consume.
func (r *Registry) Definitions() []provider.ToolDefinition {
	r.mu.RLock()
	defer r.mu.RUnlock()
	defs := make([]provider.ToolDefinition, 0, len(r.tools))
	for _, t := range r.tools {
		defs = append(defs, provider.ToolDefinition{
			Name:        t.Name(),
			Description: t.Description(),
			Parameters:  t.Schema(),
		})
	}
	return defs
}

// objectSchema is a small helper for declaring JSON-schema parameter shapes.
func objectSchema(properties map[string]any, required ...string) map[string]any {
	schema := map[string]any{
		"type":       "object",
		"properties": properties,
	}
	if len(required) > 0 {
		schema["required"] = required
	}
	return schema
}
