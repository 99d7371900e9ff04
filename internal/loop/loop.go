package loop

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/nextlevelbuilder/runloop/internal/executor"
	"github.com/nextlevelbuilder/runloop/internal/instruction"
	"github.com/nextlevelbuilder/runloop/internal/output"
	"github.com/nextlevelbuilder/runloop/internal/providers"
	"github.com/nextlevelbuilder/runloop/internal/router"
	"github.com/nextlevelbuilder/runloop/internal/runlog"
	"github.com/nextlevelbuilder/runloop/internal/runstore"
	"github.com/nextlevelbuilder/runloop/internal/skills"
	"github.com/nextlevelbuilder/runloop/internal/state"
	"github.com/nextlevelbuilder/runloop/internal/tools"
)

// Deps carries the loop's collaborators. Store may be nil; everything
// else is required for a functional run.
type Deps struct {
	Skills   *skills.Registry
	Matcher  *skills.Matcher
	Provider providers.Provider
	Tools    *tools.Registry
	Store    runstore.Store
	Tracker  *runlog.Tracker
}

// Loop drives one run from its task Block to a terminal status.
// It is the single writer of the run's Context.
type Loop struct {
	cfg     Config
	runID   string
	deps    Deps
	builder *instruction.Builder
	router  *router.Router
	exec    *executor.Executor
	handler *output.Handler
	ctrl    *Controller

	buildFailures int
}

// New wires a loop for the given run.
func New(runID string, cfg Config, deps Deps) (*Loop, error) {
	stop, err := NewStopCondition(cfg.StopExpression)
	if err != nil {
		return nil, err
	}

	summary := ""
	if deps.Skills != nil {
		summary = deps.Skills.Summary()
	}

	exec := executor.New(deps.Provider, deps.Tools,
		executor.RetryConfig{Budget: cfg.RetryBudget, BaseDelay: time.Second, MaxDelay: 30 * time.Second},
		cfg.CallTimeout())
	if cfg.ToolRatePerSecond > 0 {
		exec.SetRateLimit(cfg.ToolRatePerSecond, 1)
	}

	return &Loop{
		cfg:     cfg,
		runID:   runID,
		deps:    deps,
		builder: instruction.New(summary, cfg.TokenBudget),
		router:  router.New(deps.Skills, deps.Matcher),
		exec:    exec,
		handler: output.NewHandler(),
		ctrl:    NewController(cfg.MaxIterations, stop),
	}, nil
}

// Run seeds a fresh context with the task and drives it to a
// terminal status.
func (l *Loop) Run(ctx context.Context, task string) (Status, error) {
	c := state.New(l.runID)
	if _, err := c.Append(state.Block{Kind: state.KindTurn, Producer: "operator", Content: task}); err != nil {
		return StatusFailed, err
	}

	l.deps.Tracker.Record(runlog.Event{
		Iteration: 0,
		Phase:     runlog.PhaseConfig,
		Status:    runlog.StatusOK,
		Summary:   "run configuration",
		Payload:   map[string]interface{}{"config": l.cfg, "task": task},
	})
	l.saveRun(ctx, task, "")

	return l.drive(ctx, c, 1)
}

// Resume continues a prior run's restored context as this run.
func (l *Loop) Resume(ctx context.Context, r *Resumed) (Status, error) {
	c := r.Context
	c.SetRunID(l.runID)

	l.deps.Tracker.Record(runlog.Event{
		Iteration: r.Next - 1,
		Phase:     runlog.PhaseConfig,
		Status:    runlog.StatusOK,
		Summary:   fmt.Sprintf("resumed from %s at iteration %d", r.Parent, r.Next-1),
		Payload: map[string]interface{}{
			"config":       l.cfg,
			"parent_run":   r.Parent,
			"resumed_from": r.Next - 1,
		},
	})
	l.append(c, r.Next-1, state.Block{
		Iteration: r.Next - 1,
		Kind:      state.KindMetadata,
		Producer:  "loop",
		Content:   "resumed from run " + r.Parent,
		Meta: map[string]string{
			"parent_run":   r.Parent,
			"resumed_from": fmt.Sprintf("%d", r.Next-1),
		},
	})

	task, _ := c.Task()
	l.saveRun(ctx, task, r.Parent)
	return l.drive(ctx, c, r.Next)
}

func (l *Loop) drive(ctx context.Context, c *state.Context, start int) (Status, error) {
	tracker := l.deps.Tracker

	status := StatusRunning
	iteration := start - 1
	for i := start; ; i++ {
		iteration = i

		// Cancellation is cooperative: observed only here, at the
		// iteration boundary.
		if ctx.Err() != nil {
			status = StatusStoppedByCondition
			tracker.Record(runlog.Event{Iteration: i, Phase: runlog.PhaseTransition, Status: runlog.StatusOK, Summary: string(status)})
			break
		}

		escalated := l.iterate(ctx, c, i)

		tracker.Checkpoint(c, i)

		status = l.ctrl.Evaluate(ctx, c, i, escalated)
		tracker.Record(runlog.Event{
			Iteration: i,
			Phase:     runlog.PhaseTransition,
			Status:    runlog.StatusOK,
			Summary:   string(status),
		})
		if status.Terminal() {
			break
		}
	}

	return status, l.finalize(ctx, c, status, iteration)
}

// iterate performs one iteration's phases. The returned flag marks an
// unrecoverable failure (retry budget exhausted) for the controller.
func (l *Loop) iterate(ctx context.Context, c *state.Context, i int) bool {
	tracker := l.deps.Tracker
	policy := c.ActivePolicy()

	ins, err := l.builder.Build(c, policy)
	if err != nil {
		l.buildFailures++
		tracker.Record(runlog.Event{Iteration: i, Phase: runlog.PhaseBuild, Status: runlog.StatusError, Summary: err.Error()})
		l.append(c, i, state.Block{
			Iteration: i,
			Kind:      state.KindError,
			Producer:  "builder",
			Content:   err.Error(),
		})
		return l.buildFailures > l.cfg.RetryBudget
	}
	tracker.Record(runlog.Event{Iteration: i, Phase: runlog.PhaseBuild, Status: runlog.StatusOK, Summary: fmt.Sprintf("%d tokens", ins.Tokens)})

	sel, err := l.router.Route(ins, policy)
	if err != nil {
		tracker.Record(runlog.Event{Iteration: i, Phase: runlog.PhaseRoute, Status: runlog.StatusError, Summary: err.Error()})
		block := state.Block{
			Iteration: i,
			Kind:      state.KindError,
			Producer:  "router",
			Content:   err.Error(),
		}
		var denied *router.CapabilityDeniedError
		if errors.As(err, &denied) {
			block.Meta = map[string]string{state.MetaCapability: denied.Tool}
		}
		l.append(c, i, block)
		return false
	}
	tracker.Record(runlog.Event{Iteration: i, Phase: runlog.PhaseRoute, Status: runlog.StatusOK, Summary: routeSummary(sel)})

	if sel.Kind == router.SelectSkillActivation {
		l.activateSkill(c, i, sel)
		return false
	}

	l.exec.SetAttemptHook(func(capability string, attempt int, err error) {
		tracker.Record(runlog.Event{
			Iteration: i,
			Phase:     runlog.PhaseExecute,
			Status:    runlog.StatusError,
			Summary:   fmt.Sprintf("%s attempt %d: %v", capability, attempt, err),
		})
	})
	res := l.exec.Execute(ctx, sel, ins, policy)
	if !res.IsError {
		tracker.Record(runlog.Event{Iteration: i, Phase: runlog.PhaseExecute, Status: runlog.StatusOK, Summary: res.Capability})
	}

	block := l.handler.Handle(res, i)
	tracker.Record(runlog.Event{
		Iteration: i,
		Phase:     runlog.PhaseHandle,
		Status:    handleStatus(block),
		Summary:   string(block.Kind),
	})
	if block.Meta[state.MetaPartial] == "true" {
		tracker.WriteDebug(fmt.Sprintf("iter_%d_raw.txt", i), res.Payload)
	}

	l.append(c, i, block)

	var execErr *executor.ExecutionError
	return errors.As(res.Err, &execErr) && execErr.Escalated
}

func (l *Loop) activateSkill(c *state.Context, i int, sel router.Selection) {
	tracker := l.deps.Tracker

	sk, ok := l.deps.Skills.Get(sel.Skill)
	if !ok {
		tracker.Record(runlog.Event{Iteration: i, Phase: runlog.PhaseExecute, Status: runlog.StatusError, Summary: "unknown skill " + sel.Skill})
		return
	}
	body, err := l.deps.Skills.Body(sel.Skill)
	if err != nil {
		slog.Warn("skill body unavailable", "skill", sel.Skill, "error", err)
	}

	err = c.Activate(state.Policy{
		SkillName:     sk.Name,
		AllowedTools:  sk.AllowedTools,
		ModelOverride: sk.ModelOverride,
		ModelDisabled: sk.ModelDisabled,
		Body:          body,
	})
	if err != nil {
		tracker.Record(runlog.Event{Iteration: i, Phase: runlog.PhaseExecute, Status: runlog.StatusError, Summary: err.Error()})
		return
	}

	tracker.Record(runlog.Event{
		Iteration: i,
		Phase:     runlog.PhaseExecute,
		Status:    runlog.StatusOK,
		Summary:   fmt.Sprintf("activated skill %s (score %.2f)", sk.Name, sel.Score),
	})
	l.append(c, i, state.Block{
		Iteration: i,
		Kind:      state.KindSkillResult,
		Producer:  "router",
		Content:   "activated skill " + sk.Name,
		Meta:      map[string]string{"skill": sk.Name},
	})
}

func (l *Loop) append(c *state.Context, i int, b state.Block) {
	seq, err := c.Append(b)
	if err != nil {
		l.deps.Tracker.Record(runlog.Event{Iteration: i, Phase: runlog.PhaseWriteBack, Status: runlog.StatusError, Summary: err.Error()})
		return
	}
	l.deps.Tracker.Record(runlog.Event{
		Iteration: i,
		Phase:     runlog.PhaseWriteBack,
		Status:    runlog.StatusOK,
		Summary:   fmt.Sprintf("block %d (%s)", seq, b.Kind),
	})
}

func (l *Loop) finalize(ctx context.Context, c *state.Context, status Status, iterations int) error {
	c.Freeze()
	tracker := l.deps.Tracker

	content := artifactContent(c)
	partial := status != StatusSucceeded
	path, err := tracker.WriteArtifact(content, partial)
	if err != nil {
		slog.Warn("final artifact not written", "error", err)
	}

	if degraded := tracker.Degraded(); len(degraded) > 0 {
		slog.Warn("run completed with degraded tracking", "run", l.runID, "issues", len(degraded))
	}

	if l.deps.Store != nil {
		if err := l.deps.Store.UpdateStatus(ctx, l.runID, string(status), iterations, path); err != nil {
			slog.Warn("run index not updated", "run", l.runID, "error", err)
		}
	}

	slog.Info("run finished", "run", l.runID, "status", status, "iterations", iterations)
	return tracker.Finalize(string(status))
}

func (l *Loop) saveRun(ctx context.Context, task, parent string) {
	if l.deps.Store == nil {
		return
	}
	err := l.deps.Store.SaveRun(ctx, runstore.Record{
		ID:          l.runID,
		ParentRunID: parent,
		CreatedAt:   time.Now().UTC(),
		Status:      string(StatusRunning),
		Task:        task,
	})
	if err != nil {
		slog.Warn("run index save failed", "run", l.runID, "error", err)
	}
}

// artifactContent extracts the final report body from the terminal
// context: the final-answer Block if one exists, otherwise the most
// recent content-bearing Block.
func artifactContent(c *state.Context) string {
	blocks := c.View(nil)
	for i := len(blocks) - 1; i >= 0; i-- {
		if blocks[i].IsFinal() {
			return blocks[i].Content
		}
	}
	for i := len(blocks) - 1; i >= 0; i-- {
		if blocks[i].Kind != state.KindError && blocks[i].Content != "" {
			return blocks[i].Content
		}
	}
	return "no output produced"
}

func routeSummary(sel router.Selection) string {
	switch sel.Kind {
	case router.SelectToolCall:
		return "tool " + sel.Tool
	case router.SelectSkillActivation:
		return "skill " + sel.Skill
	default:
		return "model"
	}
}

func handleStatus(b state.Block) string {
	if b.Kind == state.KindError {
		return runlog.StatusError
	}
	return runlog.StatusOK
}
