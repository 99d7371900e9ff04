package instruction

import (
	"errors"
	"strings"
	"testing"

	"github.com/nextlevelbuilder/runloop/internal/state"
)

func seededContext(t *testing.T) *state.Context {
	t.Helper()
	c := state.New("run-1")
	if _, err := c.Append(state.Block{Kind: state.KindTurn, Producer: "operator", Content: "summarize URL X"}); err != nil {
		t.Fatal(err)
	}
	return c
}

func TestBuildRequiresTask(t *testing.T) {
	b := New("", 0)
	_, err := b.Build(state.New("run-1"), nil)
	var be *BuildError
	if !errors.As(err, &be) {
		t.Fatalf("err = %v, want BuildError", err)
	}
}

func TestBuildIsDeterministic(t *testing.T) {
	c := seededContext(t)
	c.Append(state.Block{Iteration: 1, Kind: state.KindToolResult, Producer: "tool:web.search", Content: "three results"})

	b := New("- web-research: Research topics\n", 0)
	policy := &state.Policy{SkillName: "web-research", AllowedTools: []string{"web.search"}}

	first, err := b.Build(c, policy)
	if err != nil {
		t.Fatal(err)
	}
	second, err := b.Build(c, policy)
	if err != nil {
		t.Fatal(err)
	}
	if Render(first) != Render(second) {
		t.Error("renders differ across identical builds")
	}
}

func TestBuildHonorsModelDisabled(t *testing.T) {
	c := seededContext(t)
	b := New("", 0)

	ins, err := b.Build(c, &state.Policy{SkillName: "s", ModelDisabled: true})
	if err != nil {
		t.Fatal(err)
	}
	if ins.ModelAllowed {
		t.Error("instruction allows model calls under a model-disabled policy")
	}
}

func TestBuildCarriesPendingTool(t *testing.T) {
	c := seededContext(t)
	c.Append(state.Block{
		Iteration: 1,
		Kind:      state.KindTurn,
		Producer:  "model",
		Content:   "searching",
		Meta:      map[string]string{state.MetaTool: "web.search", state.MetaToolArgs: `{"q":"x"}`},
	})

	ins, err := New("", 0).Build(c, nil)
	if err != nil {
		t.Fatal(err)
	}
	if ins.PendingTool != "web.search" || ins.PendingToolArgs != `{"q":"x"}` {
		t.Errorf("pending tool = %q %q", ins.PendingTool, ins.PendingToolArgs)
	}
}

func TestBuildDropsSatisfiedToolRequest(t *testing.T) {
	c := seededContext(t)
	c.Append(state.Block{
		Iteration: 1,
		Kind:      state.KindTurn,
		Producer:  "model",
		Content:   "searching",
		Meta:      map[string]string{state.MetaTool: "web.search"},
	})
	c.Append(state.Block{Iteration: 2, Kind: state.KindToolResult, Producer: "tool:web.search", Content: "results"})

	ins, err := New("", 0).Build(c, nil)
	if err != nil {
		t.Fatal(err)
	}
	if ins.PendingTool != "" {
		t.Errorf("tool request still pending after its result: %q", ins.PendingTool)
	}
}

func TestBuildTrimsHistoryToBudgetKeepingTask(t *testing.T) {
	c := seededContext(t)
	filler := strings.Repeat("result text ", 50)
	for i := 0; i < 10; i++ {
		c.Append(state.Block{Iteration: i + 1, Kind: state.KindToolResult, Producer: "tool:web.search", Content: filler})
	}

	b := New("", 200)
	ins, err := b.Build(c, nil)
	if err != nil {
		t.Fatal(err)
	}
	if len(ins.History) >= 11 {
		t.Errorf("history not trimmed: %d blocks", len(ins.History))
	}
	found := false
	for _, blk := range ins.History {
		if blk.Kind == state.KindTurn && blk.Content == "summarize URL X" {
			found = true
		}
	}
	if !found {
		t.Error("task block was trimmed away")
	}
}

func TestRenderIncludesPolicyBody(t *testing.T) {
	c := seededContext(t)
	ins, err := New("", 0).Build(c, &state.Policy{SkillName: "s", Body: "Always cite sources."})
	if err != nil {
		t.Fatal(err)
	}
	if !strings.Contains(Render(ins), "Always cite sources.") {
		t.Error("policy body missing from render")
	}
}

func TestTokenCounterPositive(t *testing.T) {
	tc := NewTokenCounter()
	if got := tc.Count("hello world, this is a short sentence"); got <= 0 {
		t.Errorf("count = %d", got)
	}
	if got := tc.Count(""); got != 0 {
		t.Errorf("empty count = %d", got)
	}
}
