// Package executor performs routed capability calls and isolates
// their failures. A failing model or tool invocation never crashes
// the loop; it becomes an error Result the output handler turns into
// an error Block.
package executor

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"golang.org/x/time/rate"

	"github.com/nextlevelbuilder/runloop/internal/instruction"
	"github.com/nextlevelbuilder/runloop/internal/providers"
	"github.com/nextlevelbuilder/runloop/internal/router"
	"github.com/nextlevelbuilder/runloop/internal/state"
	"github.com/nextlevelbuilder/runloop/internal/tools"
)

// ModelCapability is the capability id recorded for model calls.
const ModelCapability = "model"

// ExecutionError reports a capability call that failed after
// exhausting its retry budget.
type ExecutionError struct {
	Capability string
	Attempts   int
	Escalated  bool
	Cause      error
}

func (e *ExecutionError) Error() string {
	return fmt.Sprintf("capability %s failed after %d attempts: %v", e.Capability, e.Attempts, e.Cause)
}

func (e *ExecutionError) Unwrap() error { return e.Cause }

// Result is the raw outcome of one capability call.
type Result struct {
	Capability string
	Payload    string
	IsError    bool
	Err        error
}

// AttemptHook observes every failed attempt, including the ones that
// are later retried.
type AttemptHook func(capability string, attempt int, err error)

// Executor performs routed selections against the model provider and
// the tool registry.
type Executor struct {
	provider    providers.Provider
	tools       *tools.Registry
	retry       RetryConfig
	callTimeout time.Duration
	limiter     *rate.Limiter
	onAttempt   AttemptHook
}

// New creates an executor. callTimeout bounds each individual
// attempt; zero disables the per-call deadline.
func New(provider providers.Provider, registry *tools.Registry, retry RetryConfig, callTimeout time.Duration) *Executor {
	return &Executor{
		provider:    provider,
		tools:       registry,
		retry:       retry,
		callTimeout: callTimeout,
	}
}

// SetRateLimit enables per-run tool call rate limiting.
func (e *Executor) SetRateLimit(perSecond float64, burst int) {
	if perSecond > 0 {
		e.limiter = rate.NewLimiter(rate.Limit(perSecond), burst)
	}
}

// SetAttemptHook registers the per-attempt failure observer.
func (e *Executor) SetAttemptHook(hook AttemptHook) {
	e.onAttempt = hook
}

// Execute performs the selection. The returned Result is an error
// Result when the capability fails beyond its retry budget; Err then
// carries an ExecutionError with Escalated set.
func (e *Executor) Execute(ctx context.Context, sel router.Selection, ins instruction.Instruction, policy *state.Policy) Result {
	switch sel.Kind {
	case router.SelectModelCall:
		return e.runWithRetry(ctx, ModelCapability, func(callCtx context.Context) (string, error) {
			return e.callModel(callCtx, ins, policy)
		})

	case router.SelectToolCall:
		return e.runWithRetry(ctx, sel.Tool, func(callCtx context.Context) (string, error) {
			return e.callTool(callCtx, sel.Tool, sel.Args)
		})

	default:
		err := fmt.Errorf("selection kind %q is not executable", sel.Kind)
		return Result{Capability: string(sel.Kind), Payload: err.Error(), IsError: true, Err: err}
	}
}

func (e *Executor) runWithRetry(ctx context.Context, capability string, call func(context.Context) (string, error)) Result {
	hook := func(attempt int, err error) {
		slog.Warn("capability attempt failed", "capability", capability, "attempt", attempt, "error", err)
		if e.onAttempt != nil {
			e.onAttempt(capability, attempt, err)
		}
	}

	payload, attempts, err := executeWithRetry(ctx, e.retry, hook, func() (string, error) {
		callCtx := ctx
		if e.callTimeout > 0 {
			var cancel context.CancelFunc
			callCtx, cancel = context.WithTimeout(ctx, e.callTimeout)
			defer cancel()
		}
		return call(callCtx)
	})
	if err != nil {
		execErr := &ExecutionError{Capability: capability, Attempts: attempts, Escalated: true, Cause: err}
		return Result{Capability: capability, Payload: execErr.Error(), IsError: true, Err: execErr}
	}
	return Result{Capability: capability, Payload: TruncatePayload(payload)}
}

func (e *Executor) callModel(ctx context.Context, ins instruction.Instruction, policy *state.Policy) (string, error) {
	if e.provider == nil {
		return "", errors.New("no model provider configured")
	}

	req := providers.ChatRequest{
		Messages: []providers.Message{
			{Role: "system", Content: ins.System},
			{Role: "user", Content: instruction.Render(ins)},
		},
	}
	if policy != nil {
		req.Model = policy.ModelOverride
		if e.tools != nil {
			// An active policy always restricts: a skill with no
			// allowed tools advertises none.
			allowed := policy.AllowedTools
			if allowed == nil {
				allowed = []string{}
			}
			req.Tools = toProviderDefs(e.tools.Definitions(allowed))
		}
	} else if e.tools != nil {
		req.Tools = toProviderDefs(e.tools.Definitions(nil))
	}

	resp, err := e.provider.Chat(ctx, req)
	if err != nil {
		return "", err
	}
	return resp.Content, nil
}

func (e *Executor) callTool(ctx context.Context, name string, args map[string]interface{}) (string, error) {
	if e.tools == nil {
		return "", errors.New("no tool registry configured")
	}
	if e.limiter != nil {
		if err := e.limiter.Wait(ctx); err != nil {
			return "", fmt.Errorf("rate limit wait: %w", err)
		}
	}
	res := e.tools.Execute(ctx, name, args)
	if res.IsError {
		if res.Err != nil {
			return "", res.Err
		}
		return "", errors.New(res.ForLLM)
	}
	return res.ForLLM, nil
}

func toProviderDefs(defs []tools.Definition) []providers.ToolDefinition {
	out := make([]providers.ToolDefinition, 0, len(defs))
	for _, d := range defs {
		out = append(out, providers.ToolDefinition{
			Type: "function",
			Function: providers.ToolFunctionSchema{
				Name:        d.Name,
				Description: d.Description,
				Parameters:  d.Parameters,
			},
		})
	}
	return out
}
