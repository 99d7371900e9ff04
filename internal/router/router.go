// Package router resolves each iteration's next capability step:
// a model call, a tool call, or a skill activation.
package router

import (
	"encoding/json"
	"fmt"
	"log/slog"

	"github.com/nextlevelbuilder/runloop/internal/instruction"
	"github.com/nextlevelbuilder/runloop/internal/skills"
	"github.com/nextlevelbuilder/runloop/internal/state"
)

// SelectionKind enumerates capability selection outcomes.
type SelectionKind string

const (
	SelectModelCall       SelectionKind = "model_call"
	SelectToolCall        SelectionKind = "tool_call"
	SelectSkillActivation SelectionKind = "skill_activation"
)

// Selection is the routed capability step for one iteration.
type Selection struct {
	Kind SelectionKind

	// ToolCall fields
	Tool string
	Args map[string]interface{}

	// SkillActivation fields
	Skill string
	Score float64
}

// CapabilityDeniedError reports a tool selection outside the active
// skill's allowlist. Denials are loud; the loop records them as error
// Blocks rather than dropping the call.
type CapabilityDeniedError struct {
	Tool  string
	Skill string
}

func (e *CapabilityDeniedError) Error() string {
	return fmt.Sprintf("tool %s is not allowed by active skill %s", e.Tool, e.Skill)
}

// Router owns the skill registry and matcher used for activation
// decisions. Tool availability checks are the executor's concern;
// routing only enforces the policy allowlist.
type Router struct {
	registry *skills.Registry
	matcher  *skills.Matcher
}

func New(registry *skills.Registry, matcher *skills.Matcher) *Router {
	return &Router{registry: registry, matcher: matcher}
}

// Route picks the next capability step.
//
// Order of precedence: a pending tool request from the latest model
// turn wins; otherwise, with no skill active, a skill matching the
// task above the activation threshold wins; otherwise a model call,
// unless the policy disables model invocation, in which case routing
// falls through to the first allowed tool with the task as its query.
func (r *Router) Route(ins instruction.Instruction, policy *state.Policy) (Selection, error) {
	if ins.PendingTool != "" {
		if !policy.Allows(ins.PendingTool) {
			return Selection{}, &CapabilityDeniedError{Tool: ins.PendingTool, Skill: policy.SkillName}
		}
		return Selection{
			Kind: SelectToolCall,
			Tool: ins.PendingTool,
			Args: parseArgs(ins.PendingToolArgs),
		}, nil
	}

	if policy == nil && r.registry != nil && r.matcher != nil {
		if sk, score, ok := r.matcher.Match(ins.Task, r.registry.List()); ok {
			slog.Debug("skill matched", "skill", sk.Name, "score", score)
			return Selection{Kind: SelectSkillActivation, Skill: sk.Name, Score: score}, nil
		}
	}

	if ins.ModelAllowed {
		return Selection{Kind: SelectModelCall}, nil
	}

	// Model invocation is disabled; the run can only proceed through
	// the skill's own tools.
	if policy == nil || len(policy.AllowedTools) == 0 {
		return Selection{}, &CapabilityDeniedError{Tool: "(model)", Skill: skillName(policy)}
	}
	return Selection{
		Kind: SelectToolCall,
		Tool: policy.AllowedTools[0],
		Args: map[string]interface{}{"query": ins.Task},
	}, nil
}

func skillName(policy *state.Policy) string {
	if policy == nil {
		return ""
	}
	return policy.SkillName
}

// parseArgs decodes the model's argument JSON. Malformed argument
// payloads are preserved raw so the tool (or its error result) can
// surface them.
func parseArgs(argsJSON string) map[string]interface{} {
	if argsJSON == "" {
		return map[string]interface{}{}
	}
	var args map[string]interface{}
	if err := json.Unmarshal([]byte(argsJSON), &args); err != nil {
		return map[string]interface{}{"raw": argsJSON}
	}
	return args
}
