// Package state implements the shared per-run context blackboard.
// A Context is an append-only sequence of Blocks owned by exactly one
// run loop; components read it through View and never mutate returned
// Blocks. Corrections are appended as new Blocks, preserving history.
package state

import "fmt"

// Kind classifies a Block's content.
type Kind string

const (
	KindTurn        Kind = "conversation-turn"
	KindToolResult  Kind = "tool-result"
	KindSkillResult Kind = "skill-result"
	KindError       Kind = "error"
	KindMetadata    Kind = "metadata"
)

var validKinds = map[Kind]bool{
	KindTurn:        true,
	KindToolResult:  true,
	KindSkillResult: true,
	KindError:       true,
	KindMetadata:    true,
}

// Block is one immutable unit of context content.
// Seq is assigned by the Context on append and is monotonic per run.
type Block struct {
	Seq       int               `json:"seq"`
	Iteration int               `json:"iteration"`
	Kind      Kind              `json:"kind"`
	Producer  string            `json:"producer"`
	Content   string            `json:"content"`
	Meta      map[string]string `json:"meta,omitempty"`
}

// MetaTool and friends are well-known Meta keys shared between the
// output handler (which writes them) and the router (which reads them).
const (
	MetaTool       = "tool"       // pending tool name requested by the model
	MetaToolArgs   = "tool_args"  // JSON-encoded arguments for MetaTool
	MetaFinal      = "final"      // "true" when the block is a final answer
	MetaPartial    = "partial"    // "true" when content was recovered best-effort
	MetaCapability = "capability" // capability id that produced an error block
)

// ValidationError reports a structurally invalid Block handed to Append.
type ValidationError struct {
	Field  string
	Reason string
}

func (e *ValidationError) Error() string {
	return fmt.Sprintf("invalid block: %s %s", e.Field, e.Reason)
}

// Validate checks the structural invariants a Block must satisfy before
// it can be committed. Seq must be unset — the Context assigns it.
func (b Block) Validate() error {
	if !validKinds[b.Kind] {
		return &ValidationError{Field: "kind", Reason: fmt.Sprintf("unknown kind %q", b.Kind)}
	}
	if b.Producer == "" {
		return &ValidationError{Field: "producer", Reason: "must not be empty"}
	}
	if b.Iteration < 0 {
		return &ValidationError{Field: "iteration", Reason: "must not be negative"}
	}
	if b.Seq != 0 {
		return &ValidationError{Field: "seq", Reason: "assigned by the context, must be zero"}
	}
	return nil
}

// IsFinal reports whether the block carries a final-answer marker.
func (b Block) IsFinal() bool {
	return b.Meta[MetaFinal] == "true"
}

// PendingTool returns the tool name and JSON args the model requested,
// if any.
func (b Block) PendingTool() (name, argsJSON string, ok bool) {
	name = b.Meta[MetaTool]
	if name == "" {
		return "", "", false
	}
	return name, b.Meta[MetaToolArgs], true
}
