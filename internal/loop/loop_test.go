package loop

import (
	"context"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/nextlevelbuilder/runloop/internal/executor"
	"github.com/nextlevelbuilder/runloop/internal/providers"
	"github.com/nextlevelbuilder/runloop/internal/runlog"
	"github.com/nextlevelbuilder/runloop/internal/skills"
	"github.com/nextlevelbuilder/runloop/internal/state"
	"github.com/nextlevelbuilder/runloop/internal/tools"
)

// scriptProvider replays canned responses in order, repeating the last
// one once the script runs out. The last request is kept for
// assertions on what the builder rendered.
type scriptProvider struct {
	mu        sync.Mutex
	responses []string
	err       error
	calls     int
	lastReq   providers.ChatRequest
}

func (p *scriptProvider) Name() string { return "script" }

func (p *scriptProvider) Chat(_ context.Context, req providers.ChatRequest) (*providers.ChatResponse, error) {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.lastReq = req
	if p.err != nil {
		p.calls++
		return nil, p.err
	}
	i := p.calls
	p.calls++
	if i >= len(p.responses) {
		i = len(p.responses) - 1
	}
	return &providers.ChatResponse{Content: p.responses[i], Model: req.Model}, nil
}

type noteTool struct {
	mu    sync.Mutex
	calls int
}

func (t *noteTool) Name() string                       { return "note.take" }
func (t *noteTool) Description() string                { return "record a note" }
func (t *noteTool) Parameters() map[string]interface{} { return nil }

func (t *noteTool) Execute(_ context.Context, args map[string]interface{}) *tools.Result {
	t.mu.Lock()
	t.calls++
	t.mu.Unlock()
	text, _ := args["text"].(string)
	return tools.NewResult("noted: " + text)
}

func newTestTracker(t *testing.T, outputs, runID string) *runlog.Tracker {
	t.Helper()
	tracker, err := runlog.NewTracker(outputs, runID, 0, false)
	if err != nil {
		t.Fatal(err)
	}
	return tracker
}

func emptySkills(t *testing.T) *skills.Registry {
	t.Helper()
	reg, err := skills.NewRegistry()
	if err != nil {
		t.Fatal(err)
	}
	return reg
}

func TestRunToolThenFinalSucceeds(t *testing.T) {
	outputs := t.TempDir()
	provider := &scriptProvider{responses: []string{
		`{"thought": "I should take a note", "tool": {"name": "note.take", "args": {"text": "hello"}}}`,
		`{"thought": "done", "final_answer": "The note says hello."}`,
	}}
	note := &noteTool{}
	reg := tools.NewRegistry()
	reg.Register(note)

	cfg := DefaultConfig()
	l, err := New("run-a", cfg, Deps{
		Skills:   emptySkills(t),
		Matcher:  skills.NewMatcher(nil, 0),
		Provider: provider,
		Tools:    reg,
		Tracker:  newTestTracker(t, outputs, "run-a"),
	})
	if err != nil {
		t.Fatal(err)
	}

	status, err := l.Run(context.Background(), "take a note saying hello")
	if err != nil {
		t.Fatal(err)
	}
	if status != StatusSucceeded {
		t.Fatalf("status = %s, want succeeded", status)
	}
	if note.calls != 1 {
		t.Errorf("tool calls = %d, want 1", note.calls)
	}
	if provider.calls != 2 {
		t.Errorf("model calls = %d, want 2", provider.calls)
	}

	report, err := os.ReadFile(filepath.Join(outputs, "runs", "run-a", "reports", "final_report.md"))
	if err != nil {
		t.Fatal(err)
	}
	if string(report) != "The note says hello." {
		t.Errorf("report = %q", report)
	}

	events, err := runlog.ReadEvents(filepath.Join(outputs, "runs", "run-a", "runlog", "events.jsonl"))
	if err != nil {
		t.Fatal(err)
	}
	var last runlog.Event
	for _, ev := range events {
		if ev.Phase == runlog.PhaseTransition {
			last = ev
		}
	}
	if last.Summary != string(StatusSucceeded) {
		t.Errorf("final transition = %q", last.Summary)
	}
}

func TestRunSnapshotsAreAppendOnlyPrefixes(t *testing.T) {
	outputs := t.TempDir()
	provider := &scriptProvider{responses: []string{
		`{"thought": "step one"}`,
		`{"thought": "wrapping up", "final_answer": "done"}`,
	}}

	l, err := New("run-snap", DefaultConfig(), Deps{
		Provider: provider,
		Tools:    tools.NewRegistry(),
		Tracker:  newTestTracker(t, outputs, "run-snap"),
	})
	if err != nil {
		t.Fatal(err)
	}
	if _, err := l.Run(context.Background(), "two step task"); err != nil {
		t.Fatal(err)
	}

	load := func(iter int) []state.Block {
		data, err := os.ReadFile(filepath.Join(outputs, "runs", "run-snap", "snapshots", fmt.Sprintf("iter_%d.json", iter)))
		if err != nil {
			t.Fatal(err)
		}
		c, err := state.FromSnapshot(data)
		if err != nil {
			t.Fatal(err)
		}
		return c.View(nil)
	}

	first := load(1)
	second := load(2)
	if len(second) <= len(first) {
		t.Fatalf("second snapshot has %d blocks, first has %d", len(second), len(first))
	}
	for i, b := range first {
		if second[i].Seq != b.Seq || second[i].Content != b.Content || second[i].Kind != b.Kind {
			t.Errorf("block %d diverges between snapshots", i)
		}
	}
}

func TestRunModelFailureEscalatesToFailed(t *testing.T) {
	outputs := t.TempDir()
	provider := &scriptProvider{err: errors.New("upstream 500")}

	cfg := DefaultConfig()
	cfg.MaxIterations = 5
	l, err := New("run-fail", cfg, Deps{
		Provider: provider,
		Tools:    tools.NewRegistry(),
		Tracker:  newTestTracker(t, outputs, "run-fail"),
	})
	if err != nil {
		t.Fatal(err)
	}
	// Shrink the backoff so exhausting the budget stays fast.
	l.exec = executor.New(provider, nil,
		executor.RetryConfig{Budget: cfg.RetryBudget, BaseDelay: time.Millisecond, MaxDelay: 5 * time.Millisecond}, 0)

	status, err := l.Run(context.Background(), "doomed task")
	if err != nil {
		t.Fatal(err)
	}
	if status != StatusFailed {
		t.Fatalf("status = %s, want failed", status)
	}
	if provider.calls != 3 {
		t.Errorf("model attempts = %d, want 3 (budget 2)", provider.calls)
	}

	events, err := runlog.ReadEvents(filepath.Join(outputs, "runs", "run-fail", "runlog", "events.jsonl"))
	if err != nil {
		t.Fatal(err)
	}
	attempts := 0
	for _, ev := range events {
		if ev.Phase == runlog.PhaseExecute && ev.Status == runlog.StatusError {
			attempts++
		}
	}
	if attempts != 3 {
		t.Errorf("observable failed attempts = %d, want 3", attempts)
	}

	report, err := os.ReadFile(filepath.Join(outputs, "runs", "run-fail", "reports", "final_report.md"))
	if err != nil {
		t.Fatal(err)
	}
	if !strings.HasPrefix(string(report), "> Partial result:") {
		t.Error("failed run artifact missing partial annotation")
	}
}

func TestRunStopsAtIterationLimit(t *testing.T) {
	outputs := t.TempDir()
	provider := &scriptProvider{responses: []string{`{"thought": "still thinking"}`}}

	cfg := DefaultConfig()
	cfg.MaxIterations = 3
	l, err := New("run-limit", cfg, Deps{
		Provider: provider,
		Tools:    tools.NewRegistry(),
		Tracker:  newTestTracker(t, outputs, "run-limit"),
	})
	if err != nil {
		t.Fatal(err)
	}

	status, err := l.Run(context.Background(), "never ending task")
	if err != nil {
		t.Fatal(err)
	}
	if status != StatusStoppedByLimit {
		t.Fatalf("status = %s, want stopped_by_limit", status)
	}
	if provider.calls != 3 {
		t.Errorf("model calls = %d, want 3", provider.calls)
	}
}

func TestRunTokenBudgetTrimsHistory(t *testing.T) {
	outputs := t.TempDir()
	filler := strings.Repeat("lorem ipsum dolor sit amet ", 40)
	provider := &scriptProvider{responses: []string{
		`{"thought": "` + filler + `"}`,
		`{"thought": "` + filler + `"}`,
		`{"thought": "done", "final_answer": "condensed"}`,
	}}

	cfg := DefaultConfig()
	cfg.MaxIterations = 4
	cfg.TokenBudget = 120
	l, err := New("run-budget", cfg, Deps{
		Provider: provider,
		Tools:    tools.NewRegistry(),
		Tracker:  newTestTracker(t, outputs, "run-budget"),
	})
	if err != nil {
		t.Fatal(err)
	}

	status, err := l.Run(context.Background(), "condense a very long discussion")
	if err != nil {
		t.Fatal(err)
	}
	if status != StatusSucceeded {
		t.Fatalf("status = %s, want succeeded", status)
	}

	// The final model call renders a trimmed history: the oversized
	// turns are gone, the task block stays.
	rendered := ""
	for _, m := range provider.lastReq.Messages {
		rendered += m.Content
	}
	if strings.Contains(rendered, "lorem ipsum") {
		t.Error("over-budget history still rendered")
	}
	if !strings.Contains(rendered, "condense a very long discussion") {
		t.Error("task block was trimmed")
	}
}

func TestRunCancellationStopsAtBoundary(t *testing.T) {
	outputs := t.TempDir()
	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	l, err := New("run-cancel", DefaultConfig(), Deps{
		Provider: &scriptProvider{responses: []string{`{"thought": "x"}`}},
		Tools:    tools.NewRegistry(),
		Tracker:  newTestTracker(t, outputs, "run-cancel"),
	})
	if err != nil {
		t.Fatal(err)
	}

	status, err := l.Run(ctx, "task")
	if err != nil {
		t.Fatal(err)
	}
	if status != StatusStoppedByCondition {
		t.Fatalf("status = %s, want stopped_by_condition", status)
	}
}

func TestModelDisabledSkillWithoutToolsKeepsRunning(t *testing.T) {
	outputs := t.TempDir()
	skillRoot := t.TempDir()
	dir := filepath.Join(skillRoot, "golang-news")
	if err := os.MkdirAll(dir, 0o755); err != nil {
		t.Fatal(err)
	}
	doc := `---
name: golang-news
description: research golang news
disable_model_invocation: true
---
Use cached indexes only.
`
	if err := os.WriteFile(filepath.Join(dir, "SKILL.md"), []byte(doc), 0o644); err != nil {
		t.Fatal(err)
	}
	reg, err := skills.NewRegistry(skillRoot)
	if err != nil {
		t.Fatal(err)
	}
	if err := reg.Load(); err != nil {
		t.Fatal(err)
	}

	cfg := DefaultConfig()
	cfg.MaxIterations = 3
	l, err := New("run-skill", cfg, Deps{
		Skills:   reg,
		Matcher:  skills.NewMatcher(nil, 0),
		Provider: &scriptProvider{responses: []string{`{"thought": "unused"}`}},
		Tools:    tools.NewRegistry(),
		Tracker:  newTestTracker(t, outputs, "run-skill"),
	})
	if err != nil {
		t.Fatal(err)
	}

	status, err := l.Run(context.Background(), "research golang news")
	if err != nil {
		t.Fatal(err)
	}
	// The denial is recorded, never fatal; the run walks to its limit.
	if status != StatusStoppedByLimit {
		t.Fatalf("status = %s, want stopped_by_limit", status)
	}

	events, err := runlog.ReadEvents(filepath.Join(outputs, "runs", "run-skill", "runlog", "events.jsonl"))
	if err != nil {
		t.Fatal(err)
	}
	denied := 0
	activated := false
	for _, ev := range events {
		if ev.Phase == runlog.PhaseRoute && ev.Status == runlog.StatusError {
			denied++
		}
		if ev.Phase == runlog.PhaseExecute && strings.Contains(ev.Summary, "activated skill golang-news") {
			activated = true
		}
	}
	if !activated {
		t.Error("skill was not activated")
	}
	if denied != 2 {
		t.Errorf("denied routes = %d, want 2", denied)
	}
}

func TestResumeContinuesPriorRun(t *testing.T) {
	outputs := t.TempDir()

	first, err := New("run-parent", Config{MaxIterations: 2, RetryBudget: 2, CallTimeoutSeconds: 60}, Deps{
		Provider: &scriptProvider{responses: []string{`{"thought": "partial progress"}`}},
		Tools:    tools.NewRegistry(),
		Tracker:  newTestTracker(t, outputs, "run-parent"),
	})
	if err != nil {
		t.Fatal(err)
	}
	status, err := first.Run(context.Background(), "long task")
	if err != nil {
		t.Fatal(err)
	}
	if status != StatusStoppedByLimit {
		t.Fatalf("parent status = %s", status)
	}

	res, err := LoadResume(outputs, "run-parent", 0)
	if err != nil {
		t.Fatal(err)
	}
	if res.Next != 3 {
		t.Errorf("resume iteration = %d, want 3", res.Next)
	}
	if res.Config.MaxIterations != 2 {
		t.Errorf("replayed max_iterations = %d, want 2", res.Config.MaxIterations)
	}
	if task, _ := res.Context.Task(); task != "long task" {
		t.Errorf("restored task = %q", task)
	}

	cfg := res.Config
	cfg.MaxIterations = 5
	second, err := New("run-child", cfg, Deps{
		Provider: &scriptProvider{responses: []string{`{"thought": "finishing", "final_answer": "all done"}`}},
		Tools:    tools.NewRegistry(),
		Tracker:  newTestTracker(t, outputs, "run-child"),
	})
	if err != nil {
		t.Fatal(err)
	}
	status, err = second.Resume(context.Background(), res)
	if err != nil {
		t.Fatal(err)
	}
	if status != StatusSucceeded {
		t.Fatalf("resumed status = %s, want succeeded", status)
	}

	// Parent lineage is committed to the resumed context.
	linked := false
	for _, b := range res.Context.View(state.ByKind(state.KindMetadata)) {
		if b.Meta["parent_run"] == "run-parent" {
			linked = true
		}
	}
	if !linked {
		t.Error("resumed context missing parent run metadata")
	}

	report, err := os.ReadFile(filepath.Join(outputs, "runs", "run-child", "reports", "final_report.md"))
	if err != nil {
		t.Fatal(err)
	}
	if string(report) != "all done" {
		t.Errorf("report = %q", report)
	}
}

func TestLoadResumeMissingRun(t *testing.T) {
	if _, err := LoadResume(t.TempDir(), "no-such-run", 0); err == nil {
		t.Error("expected error for unknown run")
	}
}

func TestStopConditionExpression(t *testing.T) {
	stop, err := NewStopCondition(`kind == "tool-result" && content.contains("DONE")`)
	if err != nil {
		t.Fatal(err)
	}
	if stop.Satisfied(state.Block{Kind: state.KindToolResult, Producer: "tool:x", Content: "work DONE"}) != true {
		t.Error("matching block not satisfied")
	}
	if stop.Satisfied(state.Block{Kind: state.KindTurn, Producer: "model", Content: "work DONE"}) {
		t.Error("non-matching kind satisfied")
	}
}

func TestStopConditionRejectsNonBool(t *testing.T) {
	if _, err := NewStopCondition(`content`); err == nil {
		t.Error("non-bool expression accepted")
	}
}
