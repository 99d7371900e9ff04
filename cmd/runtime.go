package cmd

import (
	"context"
	"fmt"
	"log/slog"

	"github.com/nextlevelbuilder/runloop/internal/config"
	"github.com/nextlevelbuilder/runloop/internal/mcp"
	"github.com/nextlevelbuilder/runloop/internal/providers"
	"github.com/nextlevelbuilder/runloop/internal/runstore"
	"github.com/nextlevelbuilder/runloop/internal/skills"
	"github.com/nextlevelbuilder/runloop/internal/tools"
)

// runtime is the assembled set of collaborators a run needs. Close
// releases everything in reverse order of construction.
type runtime struct {
	cfg      *config.Config
	skills   *skills.Registry
	matcher  *skills.Matcher
	provider providers.Provider
	tools    *tools.Registry
	store    runstore.Store
	watcher  *skills.Watcher
	mcpMgr   *mcp.Manager
}

func buildRuntime(ctx context.Context, cfg *config.Config) (*runtime, error) {
	reg, err := skills.NewRegistry(cfg.SkillRoots...)
	if err != nil {
		return nil, err
	}
	if err := reg.Load(); err != nil {
		return nil, fmt.Errorf("load skills: %w", err)
	}

	rt := &runtime{
		cfg:      cfg,
		skills:   reg,
		matcher:  newMatcher(cfg, reg),
		provider: newProvider(cfg.Provider),
		tools:    tools.NewRegistry(),
	}

	rt.tools.Register(tools.EchoTool{})
	rt.tools.Register(tools.ClockTool{})
	if cfg.WebTools {
		rt.tools.Register(tools.NewWebSearchTool())
		rt.tools.Register(tools.NewWebCrawlTool())
	}
	if len(cfg.MCP) > 0 {
		rt.mcpMgr = mcp.Connect(ctx, cfg.MCP, rt.tools)
	}

	rt.store, err = runstore.Open(cfg.Store.PostgresDSN, cfg.Store.SQLitePath)
	if err != nil {
		rt.Close()
		return nil, fmt.Errorf("open run index: %w", err)
	}

	if cfg.SkillWatch {
		w, err := skills.NewWatcher(reg)
		if err != nil {
			slog.Warn("skill watcher unavailable", "error", err)
		} else if err := w.Start(ctx); err != nil {
			slog.Warn("skill watcher not started", "error", err)
		} else {
			rt.watcher = w
		}
	}

	return rt, nil
}

func (rt *runtime) Close() {
	if rt.watcher != nil {
		rt.watcher.Stop()
	}
	if rt.mcpMgr != nil {
		rt.mcpMgr.Close()
	}
	if rt.store != nil {
		if err := rt.store.Close(); err != nil {
			slog.Warn("run index close", "error", err)
		}
	}
}

func newProvider(pc config.ProviderConfig) providers.Provider {
	switch pc.Kind {
	case "openai":
		return providers.NewOpenAIProvider("openai", pc.APIKey, pc.BaseURL, pc.Model)
	default:
		return providers.NewDashScopeProvider(pc.APIKey, pc.BaseURL, pc.Model)
	}
}

func newMatcher(cfg *config.Config, reg *skills.Registry) *skills.Matcher {
	var scorer skills.Scorer
	if cfg.Loop.Scorer == "bm25" {
		scorer = skills.NewBM25Scorer(reg.List())
	}
	return skills.NewMatcher(scorer, cfg.Loop.SkillThreshold)
}
