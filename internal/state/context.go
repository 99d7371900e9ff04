package state

import (
	"errors"
	"fmt"
)

// ErrFrozen is returned when a component appends to a context whose run
// has already reached a terminal status.
var ErrFrozen = errors.New("context is frozen")

// ErrSkillActive is returned when a skill activation overlaps an
// existing one. At most one skill is active at a time.
var ErrSkillActive = errors.New("a skill is already active")

// Policy is the overlay an active skill applies to routing and
// instruction building for the remainder of a run.
type Policy struct {
	SkillName     string   `json:"skill_name"`
	AllowedTools  []string `json:"allowed_tools,omitempty"`
	ModelOverride string   `json:"model_override,omitempty"`
	ModelDisabled bool     `json:"model_disabled,omitempty"`
	Body          string   `json:"body,omitempty"`
}

// Allows reports whether the policy permits the given tool. A nil
// policy is unrestricted; an active policy restricts to its allowlist,
// so a skill that declares no tools denies every tool.
func (p *Policy) Allows(tool string) bool {
	if p == nil {
		return true
	}
	for _, t := range p.AllowedTools {
		if t == tool {
			return true
		}
	}
	return false
}

// Context is the single shared state object for one run.
//
// Ownership: exactly one loop goroutine writes per run. That invariant
// is by construction (the loop is single-threaded), so Context carries
// no lock.
type Context struct {
	runID  string
	blocks []Block
	seq    int
	policy *Policy
	frozen bool
}

// New creates an empty context for the given run.
func New(runID string) *Context {
	return &Context{runID: runID}
}

// RunID returns the owning run's identifier.
func (c *Context) RunID() string { return c.runID }

// SetRunID rebinds the context to a new run. A resumed run continues
// a prior run's context under its own identifier.
func (c *Context) SetRunID(id string) { c.runID = id }

// Append validates and commits a Block, returning its assigned
// sequence position (1-based). The only rejection is a structurally
// invalid Block or a frozen context.
func (c *Context) Append(b Block) (int, error) {
	if c.frozen {
		return 0, ErrFrozen
	}
	if err := b.Validate(); err != nil {
		return 0, err
	}
	c.seq++
	b.Seq = c.seq
	c.blocks = append(c.blocks, b)
	return b.Seq, nil
}

// View returns copies of the Blocks matching the filter, in sequence
// order. A nil filter matches everything. Meta maps are copied so
// callers cannot mutate committed state.
func (c *Context) View(filter func(Block) bool) []Block {
	var out []Block
	for _, b := range c.blocks {
		if filter != nil && !filter(b) {
			continue
		}
		out = append(out, copyBlock(b))
	}
	return out
}

// ByIteration is a View filter matching all Blocks of iteration n.
func ByIteration(n int) func(Block) bool {
	return func(b Block) bool { return b.Iteration == n }
}

// ByKind is a View filter matching all Blocks of the given kind.
func ByKind(k Kind) func(Block) bool {
	return func(b Block) bool { return b.Kind == k }
}

// Last returns a copy of the most recently committed Block.
func (c *Context) Last() (Block, bool) {
	if len(c.blocks) == 0 {
		return Block{}, false
	}
	return copyBlock(c.blocks[len(c.blocks)-1]), true
}

// LastOfKind returns a copy of the most recent Block of the given kind.
func (c *Context) LastOfKind(k Kind) (Block, bool) {
	for i := len(c.blocks) - 1; i >= 0; i-- {
		if c.blocks[i].Kind == k {
			return copyBlock(c.blocks[i]), true
		}
	}
	return Block{}, false
}

// Len returns the number of committed Blocks.
func (c *Context) Len() int { return len(c.blocks) }

// Seq returns the current value of the monotonic sequence counter.
func (c *Context) Seq() int { return c.seq }

// Task returns the initial task description, if one was committed.
// By convention the task is the first conversation-turn Block.
func (c *Context) Task() (string, bool) {
	for _, b := range c.blocks {
		if b.Kind == KindTurn {
			return b.Content, true
		}
	}
	return "", false
}

// Activate overlays a skill policy. At most one skill may be active;
// a second activation fails rather than silently replacing the first.
func (c *Context) Activate(p Policy) error {
	if c.frozen {
		return ErrFrozen
	}
	if c.policy != nil {
		return fmt.Errorf("%w: %s", ErrSkillActive, c.policy.SkillName)
	}
	cp := p
	cp.AllowedTools = append([]string(nil), p.AllowedTools...)
	c.policy = &cp
	return nil
}

// Deactivate clears the active skill policy.
func (c *Context) Deactivate() {
	c.policy = nil
}

// ActivePolicy returns a copy of the active skill policy, or nil.
func (c *Context) ActivePolicy() *Policy {
	if c.policy == nil {
		return nil
	}
	cp := *c.policy
	cp.AllowedTools = append([]string(nil), c.policy.AllowedTools...)
	return &cp
}

// Freeze makes the context read-only. Called once the run reaches a
// terminal status; there is no unfreeze.
func (c *Context) Freeze() { c.frozen = true }

// Frozen reports whether the context is read-only.
func (c *Context) Frozen() bool { return c.frozen }

func copyBlock(b Block) Block {
	if b.Meta != nil {
		m := make(map[string]string, len(b.Meta))
		for k, v := range b.Meta {
			m[k] = v
		}
		b.Meta = m
	}
	return b
}
