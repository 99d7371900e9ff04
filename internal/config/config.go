// Package config loads the runloop configuration file. The file is
// JSON5 so operators can comment their settings; a missing file means
// defaults.
package config

import (
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"

	"github.com/titanous/json5"

	"github.com/nextlevelbuilder/runloop/internal/loop"
	"github.com/nextlevelbuilder/runloop/internal/mcp"
	"github.com/nextlevelbuilder/runloop/internal/telemetry"
)

// ProviderConfig selects and authenticates the model backend.
type ProviderConfig struct {
	// Kind is "dashscope" or "openai".
	Kind    string `json:"kind"`
	APIKey  string `json:"api_key,omitempty"` // ${ENV_VAR} references are expanded
	BaseURL string `json:"base_url,omitempty"`
	Model   string `json:"model,omitempty"`
}

// StoreConfig selects the run index backend. A Postgres DSN wins over
// the SQLite path.
type StoreConfig struct {
	PostgresDSN string `json:"postgres_dsn,omitempty"`
	SQLitePath  string `json:"sqlite_path,omitempty"`
}

// Config is the full configuration document.
type Config struct {
	OutputsDir string   `json:"outputs_dir,omitempty"`
	SkillRoots []string `json:"skill_roots,omitempty"`
	SkillWatch bool     `json:"skill_watch,omitempty"`
	WebTools   bool     `json:"web_tools,omitempty"`

	Provider  ProviderConfig     `json:"provider,omitempty"`
	Loop      loop.Config        `json:"loop,omitempty"`
	Store     StoreConfig        `json:"store,omitempty"`
	MCP       []mcp.ServerConfig `json:"mcp_servers,omitempty"`
	Telemetry *telemetry.Config  `json:"telemetry,omitempty"`
}

// Default returns the baseline configuration.
func Default() *Config {
	home, err := os.UserHomeDir()
	if err != nil {
		home = "."
	}
	base := filepath.Join(home, ".runloop")
	return &Config{
		OutputsDir: base,
		SkillRoots: []string{filepath.Join(base, "skills"), "skills"},
		WebTools:   true,
		Provider:   ProviderConfig{Kind: "dashscope"},
		Loop:       loop.DefaultConfig(),
	}
}

// DefaultPath returns the conventional config file location.
func DefaultPath() string {
	home, err := os.UserHomeDir()
	if err != nil {
		home = "."
	}
	return filepath.Join(home, ".runloop", "config.json5")
}

// Load reads and parses the config file, overlaying it on defaults.
// A missing file is not an error.
func Load(path string) (*Config, error) {
	cfg := Default()
	data, err := os.ReadFile(path)
	if err != nil {
		if os.IsNotExist(err) {
			cfg.normalize()
			return cfg, nil
		}
		return nil, fmt.Errorf("read config: %w", err)
	}
	if err := json5.Unmarshal(data, cfg); err != nil {
		return nil, fmt.Errorf("parse config %s: %w", path, err)
	}
	cfg.normalize()
	return cfg, nil
}

// Save writes the config as plain JSON (a valid JSON5 subset).
func Save(path string, cfg *Config) error {
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return fmt.Errorf("config dir: %w", err)
	}
	data, err := json.MarshalIndent(cfg, "", "  ")
	if err != nil {
		return fmt.Errorf("marshal config: %w", err)
	}
	return os.WriteFile(path, append(data, '\n'), 0o600)
}

// normalize fills derived fields and expands environment references.
func (c *Config) normalize() {
	if c.OutputsDir == "" {
		c.OutputsDir = Default().OutputsDir
	}
	if len(c.SkillRoots) == 0 {
		c.SkillRoots = Default().SkillRoots
	}
	if c.Store.SQLitePath == "" && c.Store.PostgresDSN == "" {
		c.Store.SQLitePath = filepath.Join(c.OutputsDir, "runs.db")
	}
	if c.Provider.Kind == "" {
		c.Provider.Kind = "dashscope"
	}
	if c.Loop.MaxIterations <= 0 {
		c.Loop.MaxIterations = loop.DefaultConfig().MaxIterations
	}
	if c.Loop.CallTimeoutSeconds <= 0 {
		c.Loop.CallTimeoutSeconds = loop.DefaultConfig().CallTimeoutSeconds
	}
	if c.Loop.RetryBudget < 0 {
		c.Loop.RetryBudget = 0
	}

	c.OutputsDir = os.ExpandEnv(c.OutputsDir)
	c.Provider.APIKey = os.ExpandEnv(c.Provider.APIKey)
	c.Store.PostgresDSN = os.ExpandEnv(c.Store.PostgresDSN)
}
