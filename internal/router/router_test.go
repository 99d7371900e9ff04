package router

import (
	"errors"
	"os"
	"path/filepath"
	"testing"

	"github.com/nextlevelbuilder/runloop/internal/instruction"
	"github.com/nextlevelbuilder/runloop/internal/skills"
	"github.com/nextlevelbuilder/runloop/internal/state"
)

func registryWith(t *testing.T, docs map[string]string) *skills.Registry {
	t.Helper()
	root := t.TempDir()
	for name, doc := range docs {
		dir := filepath.Join(root, name)
		if err := os.MkdirAll(dir, 0o755); err != nil {
			t.Fatal(err)
		}
		if err := os.WriteFile(filepath.Join(dir, "SKILL.md"), []byte(doc), 0o644); err != nil {
			t.Fatal(err)
		}
	}
	reg, err := skills.NewRegistry(root)
	if err != nil {
		t.Fatal(err)
	}
	if err := reg.Load(); err != nil {
		t.Fatal(err)
	}
	return reg
}

func TestRoutePendingToolWins(t *testing.T) {
	r := New(nil, nil)
	ins := instruction.Instruction{
		Task:            "do something",
		ModelAllowed:    true,
		PendingTool:     "web.search",
		PendingToolArgs: `{"query":"golang"}`,
	}

	sel, err := r.Route(ins, nil)
	if err != nil {
		t.Fatal(err)
	}
	if sel.Kind != SelectToolCall || sel.Tool != "web.search" {
		t.Errorf("selection = %+v", sel)
	}
	if sel.Args["query"] != "golang" {
		t.Errorf("args = %v", sel.Args)
	}
}

func TestRouteDeniesToolOutsideAllowlist(t *testing.T) {
	r := New(nil, nil)
	ins := instruction.Instruction{
		Task:         "crawl it",
		ModelAllowed: true,
		PendingTool:  "web.crawl",
	}
	policy := &state.Policy{SkillName: "web-research", AllowedTools: []string{"web.search"}}

	_, err := r.Route(ins, policy)
	var denied *CapabilityDeniedError
	if !errors.As(err, &denied) {
		t.Fatalf("err = %v, want CapabilityDeniedError", err)
	}
	if denied.Tool != "web.crawl" || denied.Skill != "web-research" {
		t.Errorf("denied = %+v", denied)
	}
}

func TestRouteActivatesMatchingSkill(t *testing.T) {
	reg := registryWith(t, map[string]string{
		"web-research": "---\nname: web-research\ndescription: research topics on the web\ntags: [web, research]\n---\nbody\n",
	})
	r := New(reg, skills.NewMatcher(skills.OverlapScorer{}, 0.65))

	sel, err := r.Route(instruction.Instruction{Task: "research topics on the web", ModelAllowed: true}, nil)
	if err != nil {
		t.Fatal(err)
	}
	if sel.Kind != SelectSkillActivation || sel.Skill != "web-research" {
		t.Errorf("selection = %+v", sel)
	}
}

func TestRouteFallsBackToModelBelowThreshold(t *testing.T) {
	reg := registryWith(t, map[string]string{
		"web-research": "---\nname: web-research\ndescription: research topics on the web\n---\nbody\n",
	})
	r := New(reg, skills.NewMatcher(skills.OverlapScorer{}, 0.65))

	sel, err := r.Route(instruction.Instruction{Task: "bake sourdough bread overnight", ModelAllowed: true}, nil)
	if err != nil {
		t.Fatal(err)
	}
	if sel.Kind != SelectModelCall {
		t.Errorf("selection = %+v, want model call", sel)
	}
}

func TestRouteNoSecondActivationWhilePolicyActive(t *testing.T) {
	reg := registryWith(t, map[string]string{
		"web-research": "---\nname: web-research\ndescription: research topics on the web\n---\nbody\n",
	})
	r := New(reg, skills.NewMatcher(skills.OverlapScorer{}, 0.65))
	policy := &state.Policy{SkillName: "other"}

	sel, err := r.Route(instruction.Instruction{Task: "research topics on the web", ModelAllowed: true}, policy)
	if err != nil {
		t.Fatal(err)
	}
	if sel.Kind == SelectSkillActivation {
		t.Error("activated a second skill while one is active")
	}
}

func TestRouteModelDisabledUsesFirstAllowedTool(t *testing.T) {
	r := New(nil, nil)
	policy := &state.Policy{SkillName: "s", AllowedTools: []string{"web.search", "web.crawl"}, ModelDisabled: true}

	sel, err := r.Route(instruction.Instruction{Task: "find things", ModelAllowed: false}, policy)
	if err != nil {
		t.Fatal(err)
	}
	if sel.Kind != SelectToolCall || sel.Tool != "web.search" {
		t.Errorf("selection = %+v", sel)
	}
	if sel.Args["query"] != "find things" {
		t.Errorf("args = %v", sel.Args)
	}
}

func TestRouteEmptyAllowlistDeniesEveryTool(t *testing.T) {
	r := New(nil, nil)
	ins := instruction.Instruction{
		Task:         "crawl it",
		ModelAllowed: true,
		PendingTool:  "web.crawl",
	}
	// A skill that declares no tools excludes all of them; only a nil
	// policy is unrestricted.
	policy := &state.Policy{SkillName: "locked-down"}

	_, err := r.Route(ins, policy)
	var denied *CapabilityDeniedError
	if !errors.As(err, &denied) {
		t.Fatalf("err = %v, want CapabilityDeniedError", err)
	}
	if denied.Tool != "web.crawl" || denied.Skill != "locked-down" {
		t.Errorf("denied = %+v", denied)
	}
}

func TestRouteModelDisabledNoToolsIsDenied(t *testing.T) {
	r := New(nil, nil)
	policy := &state.Policy{SkillName: "s", ModelDisabled: true}

	_, err := r.Route(instruction.Instruction{Task: "anything", ModelAllowed: false}, policy)
	var denied *CapabilityDeniedError
	if !errors.As(err, &denied) {
		t.Fatalf("err = %v, want CapabilityDeniedError", err)
	}
}

func TestParseArgsMalformedKeptRaw(t *testing.T) {
	args := parseArgs(`{"broken`)
	if args["raw"] != `{"broken` {
		t.Errorf("args = %v", args)
	}
}
