package mcp

import (
	"context"
	"fmt"
	"log/slog"
	"sync/atomic"
	"time"

	mcpclient "github.com/mark3labs/mcp-go/client"
	mcpgo "github.com/mark3labs/mcp-go/mcp"

	"github.com/nextlevelbuilder/runloop/internal/tools"
)

// ServerConfig describes one MCP server connection. Command selects
// the stdio transport; URL selects streamable HTTP. Exactly one must
// be set.
type ServerConfig struct {
	Name           string   `json:"name"`
	Command        string   `json:"command,omitempty"`
	Args           []string `json:"args,omitempty"`
	Env            []string `json:"env,omitempty"`
	URL            string   `json:"url,omitempty"`
	TimeoutSeconds int      `json:"timeout_seconds,omitempty"`
}

type connection struct {
	name      string
	client    *mcpclient.Client
	connected *atomic.Bool
}

// Manager owns the MCP server connections for one process and
// registers their tools as loop capabilities.
type Manager struct {
	conns []*connection
}

// Connect dials every configured server, lists its tools and
// registers them into the capability registry. A server that fails to
// connect is logged and skipped; the loop runs with whatever came up.
func Connect(ctx context.Context, configs []ServerConfig, registry *tools.Registry) *Manager {
	m := &Manager{}
	for _, cfg := range configs {
		if err := m.connectOne(ctx, cfg, registry); err != nil {
			slog.Warn("mcp server unavailable", "server", cfg.Name, "error", err)
		}
	}
	return m
}

func (m *Manager) connectOne(ctx context.Context, cfg ServerConfig, registry *tools.Registry) error {
	if cfg.Name == "" {
		return fmt.Errorf("mcp server config missing name")
	}

	var (
		c   *mcpclient.Client
		err error
	)
	switch {
	case cfg.Command != "":
		c, err = mcpclient.NewStdioMCPClient(cfg.Command, cfg.Env, cfg.Args...)
	case cfg.URL != "":
		c, err = mcpclient.NewStreamableHttpClient(cfg.URL)
	default:
		return fmt.Errorf("mcp server %q has neither command nor url", cfg.Name)
	}
	if err != nil {
		return fmt.Errorf("dial mcp server %q: %w", cfg.Name, err)
	}

	if err := c.Start(ctx); err != nil {
		c.Close()
		return fmt.Errorf("start mcp client %q: %w", cfg.Name, err)
	}

	initReq := mcpgo.InitializeRequest{}
	initReq.Params.ProtocolVersion = mcpgo.LATEST_PROTOCOL_VERSION
	initReq.Params.ClientInfo = mcpgo.Implementation{Name: "runloop", Version: "1.0"}
	if _, err := c.Initialize(ctx, initReq); err != nil {
		c.Close()
		return fmt.Errorf("initialize mcp server %q: %w", cfg.Name, err)
	}

	listed, err := c.ListTools(ctx, mcpgo.ListToolsRequest{})
	if err != nil {
		c.Close()
		return fmt.Errorf("list tools on %q: %w", cfg.Name, err)
	}

	connected := &atomic.Bool{}
	connected.Store(true)
	conn := &connection{name: cfg.Name, client: c, connected: connected}
	m.conns = append(m.conns, conn)

	timeout := time.Duration(cfg.TimeoutSeconds) * time.Second
	for _, remote := range listed.Tools {
		registry.Register(NewBridgeTool(cfg.Name, remote, c, timeout, connected))
	}
	slog.Info("mcp server connected", "server", cfg.Name, "tools", len(listed.Tools))
	return nil
}

// Close disconnects every server. Registered bridge tools start
// returning disconnected errors immediately.
func (m *Manager) Close() {
	for _, conn := range m.conns {
		conn.connected.Store(false)
		if err := conn.client.Close(); err != nil {
			slog.Warn("mcp client close", "server", conn.name, "error", err)
		}
	}
}

// Servers returns the names of the connected servers.
func (m *Manager) Servers() []string {
	out := make([]string, 0, len(m.conns))
	for _, conn := range m.conns {
		out = append(out, conn.name)
	}
	return out
}
