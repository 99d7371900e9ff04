// Package tools implements the capability registry the executor
// invokes for ToolCall selections. Tools are synchronous, thread-safe
// and return a unified Result rather than raising.
package tools

import "context"

// Tool is the interface all capabilities must implement.
type Tool interface {
	Name() string
	Description() string
	Parameters() map[string]interface{}
	Execute(ctx context.Context, args map[string]interface{}) *Result
}

// Definition is the JSON-schema shaped descriptor handed to model
// providers so the model can request tool calls by name.
type Definition struct {
	Name        string                 `json:"name"`
	Description string                 `json:"description"`
	Parameters  map[string]interface{} `json:"parameters,omitempty"`
}

// ToDefinition converts a Tool to its provider-facing descriptor.
func ToDefinition(t Tool) Definition {
	return Definition{
		Name:        t.Name(),
		Description: t.Description(),
		Parameters:  t.Parameters(),
	}
}
