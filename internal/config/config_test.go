package config

import (
	"os"
	"path/filepath"
	"testing"
)

func TestLoadMissingFileUsesDefaults(t *testing.T) {
	cfg, err := Load(filepath.Join(t.TempDir(), "nope.json5"))
	if err != nil {
		t.Fatal(err)
	}
	if cfg.OutputsDir == "" || len(cfg.SkillRoots) == 0 {
		t.Errorf("defaults not applied: %+v", cfg)
	}
	if cfg.Loop.MaxIterations != 10 || cfg.Loop.RetryBudget != 2 {
		t.Errorf("loop defaults = %+v", cfg.Loop)
	}
	if cfg.Store.SQLitePath == "" {
		t.Error("sqlite path not derived")
	}
}

func TestLoadJSON5WithComments(t *testing.T) {
	path := filepath.Join(t.TempDir(), "config.json5")
	doc := `{
  // where run artifacts land
  outputs_dir: "/tmp/runloop-test",
  provider: {
    kind: "openai",
    model: "gpt-4o-mini",
    api_key: "${RUNLOOP_TEST_KEY}",
  },
  loop: {
    max_iterations: 4,
  },
}`
	if err := os.WriteFile(path, []byte(doc), 0o644); err != nil {
		t.Fatal(err)
	}
	t.Setenv("RUNLOOP_TEST_KEY", "sk-test")

	cfg, err := Load(path)
	if err != nil {
		t.Fatal(err)
	}
	if cfg.OutputsDir != "/tmp/runloop-test" {
		t.Errorf("outputs_dir = %q", cfg.OutputsDir)
	}
	if cfg.Provider.Kind != "openai" || cfg.Provider.Model != "gpt-4o-mini" {
		t.Errorf("provider = %+v", cfg.Provider)
	}
	if cfg.Provider.APIKey != "sk-test" {
		t.Errorf("api key not expanded: %q", cfg.Provider.APIKey)
	}
	if cfg.Loop.MaxIterations != 4 {
		t.Errorf("max_iterations = %d", cfg.Loop.MaxIterations)
	}
	// Fields the file omits keep their defaults.
	if cfg.Loop.RetryBudget != 2 {
		t.Errorf("retry_budget = %d", cfg.Loop.RetryBudget)
	}
	if cfg.Store.SQLitePath != filepath.Join("/tmp/runloop-test", "runs.db") {
		t.Errorf("sqlite path = %q", cfg.Store.SQLitePath)
	}
}

func TestSaveRoundtrip(t *testing.T) {
	path := filepath.Join(t.TempDir(), "config.json5")
	cfg := Default()
	cfg.OutputsDir = "/data/runloop"
	if err := Save(path, cfg); err != nil {
		t.Fatal(err)
	}

	loaded, err := Load(path)
	if err != nil {
		t.Fatal(err)
	}
	if loaded.OutputsDir != "/data/runloop" {
		t.Errorf("outputs_dir = %q", loaded.OutputsDir)
	}
}

func TestLoadRejectsInvalid(t *testing.T) {
	path := filepath.Join(t.TempDir(), "config.json5")
	if err := os.WriteFile(path, []byte("{not valid"), 0o644); err != nil {
		t.Fatal(err)
	}
	if _, err := Load(path); err == nil {
		t.Error("invalid config accepted")
	}
}
