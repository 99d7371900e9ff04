package tools

import (
	"context"
	"log/slog"
	"sort"
	"sync"
	"time"
)

// Registry manages tool registration and execution.
type Registry struct {
	tools     map[string]Tool
	order     []string
	mu        sync.RWMutex
	scrubbing bool // scrub credentials from output (default true)
}

func NewRegistry() *Registry {
	return &Registry{
		tools:     make(map[string]Tool),
		scrubbing: true,
	}
}

// SetScrubbing enables or disables credential scrubbing on tool output.
func (r *Registry) SetScrubbing(enabled bool) {
	r.scrubbing = enabled
}

// Register adds a tool. Re-registering a name replaces the tool but
// keeps its original position.
func (r *Registry) Register(tool Tool) {
	r.mu.Lock()
	defer r.mu.Unlock()
	if _, exists := r.tools[tool.Name()]; !exists {
		r.order = append(r.order, tool.Name())
	}
	r.tools[tool.Name()] = tool
}

// Get returns a tool by name.
func (r *Registry) Get(name string) (Tool, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	t, ok := r.tools[name]
	return t, ok
}

// Execute runs a tool by name. Unknown names come back as error
// Results so the caller's handling path stays uniform.
func (r *Registry) Execute(ctx context.Context, name string, args map[string]interface{}) *Result {
	r.mu.RLock()
	tool, ok := r.tools[name]
	r.mu.RUnlock()

	if !ok {
		return ErrorResult("unknown tool: " + name)
	}

	start := time.Now()
	result := tool.Execute(ctx, args)
	duration := time.Since(start)

	if r.scrubbing && result.ForLLM != "" {
		result.ForLLM = ScrubCredentials(result.ForLLM)
	}

	slog.Debug("tool executed",
		"tool", name,
		"duration_ms", duration.Milliseconds(),
		"is_error", result.IsError,
	)

	return result
}

// Definitions returns provider-facing descriptors for all tools in
// registration order. A nil allowlist is unrestricted; a non-nil one
// filters, so an empty allowlist yields no definitions.
func (r *Registry) Definitions(allowed []string) []Definition {
	r.mu.RLock()
	defer r.mu.RUnlock()

	allow := map[string]bool{}
	for _, name := range allowed {
		allow[name] = true
	}

	defs := make([]Definition, 0, len(r.tools))
	for _, name := range r.order {
		if allowed != nil && !allow[name] {
			continue
		}
		defs = append(defs, ToDefinition(r.tools[name]))
	}
	return defs
}

// List returns all registered tool names, sorted.
func (r *Registry) List() []string {
	r.mu.RLock()
	defer r.mu.RUnlock()
	names := make([]string, 0, len(r.tools))
	for name := range r.tools {
		names = append(names, name)
	}
	sort.Strings(names)
	return names
}

// Count returns the number of registered tools.
func (r *Registry) Count() int {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return len(r.tools)
}
