// Package instruction renders the material for the next capability
// call from the current run context and the active skill policy.
// Rendering is deterministic: the same context state and policy always
// produce a byte-identical instruction, which replay depends on.
package instruction

import (
	"fmt"
	"strings"

	"github.com/nextlevelbuilder/runloop/internal/state"
)

// BuildError reports that the context lacks the material an
// instruction requires.
type BuildError struct {
	Missing string
}

func (e *BuildError) Error() string {
	return fmt.Sprintf("cannot build instruction: missing %s", e.Missing)
}

// Instruction is the fully rendered input for the next capability
// call.
type Instruction struct {
	Task    string
	System  string
	History []state.Block

	// ModelAllowed is false when the active skill disables model
	// invocation; the router must then select a tool action.
	ModelAllowed bool

	// PendingTool carries a tool request the model made in its latest
	// turn. The router turns it into a ToolCall selection.
	PendingTool     string
	PendingToolArgs string

	// Tokens is the budgeted token estimate of the rendered text.
	Tokens int
}

// Builder renders Instructions. A zero budget disables history
// trimming.
type Builder struct {
	counter      *TokenCounter
	budget       int
	skillSummary string
}

// New creates a builder. skillSummary is the registry index injected
// into every system section; budget caps the token estimate of the
// rendered history (0 means unlimited).
func New(skillSummary string, budget int) *Builder {
	return &Builder{counter: NewTokenCounter(), budget: budget, skillSummary: skillSummary}
}

// Build renders the instruction for the next capability call.
// Fails with BuildError when the context has no task Block.
func (b *Builder) Build(c *state.Context, policy *state.Policy) (Instruction, error) {
	task, ok := c.Task()
	if !ok {
		return Instruction{}, &BuildError{Missing: "task block"}
	}

	ins := Instruction{
		Task:         task,
		History:      c.View(nil),
		ModelAllowed: policy == nil || !policy.ModelDisabled,
	}

	var sys strings.Builder
	sys.WriteString("You are an autonomous task loop. Work the task one step at a time.\n")
	if b.skillSummary != "" {
		sys.WriteString("\nAvailable skills:\n")
		sys.WriteString(b.skillSummary)
	}
	if policy != nil {
		sys.WriteString("\nActive skill: " + policy.SkillName + "\n")
		if len(policy.AllowedTools) > 0 {
			sys.WriteString("Allowed tools: " + strings.Join(policy.AllowedTools, ", ") + "\n")
		}
		if policy.Body != "" {
			sys.WriteString("\n" + policy.Body + "\n")
		}
	}
	ins.System = sys.String()

	// A tool request is pending only while it is the latest Block;
	// once its tool result lands, the next step goes back to the model.
	if last, ok := c.Last(); ok && last.Kind == state.KindTurn {
		if name, args, ok := last.PendingTool(); ok {
			ins.PendingTool = name
			ins.PendingToolArgs = args
		}
	}

	b.trim(&ins)
	ins.Tokens = b.counter.Count(Render(ins))
	return ins, nil
}

// trim drops the oldest history Blocks until the rendered estimate
// fits the budget. The task Block is always kept.
func (b *Builder) trim(ins *Instruction) {
	if b.budget <= 0 {
		return
	}
	for len(ins.History) > 1 && b.counter.Count(Render(*ins)) > b.budget {
		drop := -1
		for i, blk := range ins.History {
			if blk.Kind == state.KindTurn && blk.Content == ins.Task {
				continue
			}
			drop = i
			break
		}
		if drop == -1 {
			return
		}
		ins.History = append(ins.History[:drop], ins.History[drop+1:]...)
	}
}

// Render serializes an Instruction to the canonical text form sent to
// a model capability. The rendering is stable: fields in fixed order,
// history in sequence order.
func Render(ins Instruction) string {
	var sb strings.Builder
	sb.WriteString(ins.System)
	sb.WriteString("\nTask: " + ins.Task + "\n")
	for _, blk := range ins.History {
		fmt.Fprintf(&sb, "\n[%d %s %s] %s", blk.Seq, blk.Kind, blk.Producer, blk.Content)
	}
	sb.WriteString("\n\nRespond with JSON: {\"thought\": ..., \"tool\": {\"name\", \"args\"}} or {\"thought\": ..., \"final_answer\": ...}.\n")
	return sb.String()
}
