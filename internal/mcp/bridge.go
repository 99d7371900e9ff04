// Package mcp bridges tools exposed by MCP servers into the loop's
// capability registry. Each remote tool becomes a regular tools.Tool
// whose capability id is "{server}__{tool}".
package mcp

import (
	"context"
	"fmt"
	"strings"
	"sync/atomic"
	"time"

	mcpclient "github.com/mark3labs/mcp-go/client"
	mcpgo "github.com/mark3labs/mcp-go/mcp"

	"github.com/nextlevelbuilder/runloop/internal/tools"
)

// BridgeTool adapts one MCP tool into the tools.Tool interface,
// delegating Execute to the owning server's client.
type BridgeTool struct {
	server     string
	remoteName string
	capability string
	desc       string
	schema     map[string]interface{}
	client     *mcpclient.Client
	timeout    time.Duration
	connected  *atomic.Bool
}

// NewBridgeTool wraps an MCP tool definition. The capability id is
// prefixed with the server name so two servers can expose tools with
// the same remote name.
func NewBridgeTool(server string, remote mcpgo.Tool, client *mcpclient.Client, timeout time.Duration, connected *atomic.Bool) *BridgeTool {
	if timeout <= 0 {
		timeout = 60 * time.Second
	}
	return &BridgeTool{
		server:     server,
		remoteName: remote.Name,
		capability: CapabilityID(server, remote.Name),
		desc:       remote.Description,
		schema:     schemaToMap(remote.InputSchema),
		client:     client,
		timeout:    timeout,
		connected:  connected,
	}
}

// CapabilityID returns the registry name for a server's tool.
func CapabilityID(server, tool string) string {
	if server == "" {
		return tool
	}
	return server + "__" + tool
}

func (t *BridgeTool) Name() string                       { return t.capability }
func (t *BridgeTool) Description() string                { return t.desc }
func (t *BridgeTool) Parameters() map[string]interface{} { return t.schema }

// Server returns the owning MCP server's name.
func (t *BridgeTool) Server() string { return t.server }

// RemoteName returns the tool's name on the server, without prefix.
func (t *BridgeTool) RemoteName() string { return t.remoteName }

func (t *BridgeTool) Execute(ctx context.Context, args map[string]interface{}) *tools.Result {
	if t.connected != nil && !t.connected.Load() {
		return tools.ErrorResult(fmt.Sprintf("MCP server %q is disconnected", t.server))
	}

	callCtx, cancel := context.WithTimeout(ctx, t.timeout)
	defer cancel()

	req := mcpgo.CallToolRequest{}
	req.Params.Name = t.remoteName
	req.Params.Arguments = args

	result, err := t.client.CallTool(callCtx, req)
	if err != nil {
		if callCtx.Err() == context.DeadlineExceeded {
			return tools.ErrorResult(fmt.Sprintf("MCP tool %q timed out after %s", t.capability, t.timeout))
		}
		return tools.ErrorResult(fmt.Sprintf("MCP tool %q error: %v", t.capability, err)).WithError(err)
	}

	text := textContent(result)
	if result.IsError {
		return tools.ErrorResult(text)
	}
	return tools.NewResult(text)
}

// schemaToMap converts an MCP input schema to the JSON-schema map the
// registry hands to model providers.
func schemaToMap(schema mcpgo.ToolInputSchema) map[string]interface{} {
	m := map[string]interface{}{"type": schema.Type}
	if schema.Type == "" {
		m["type"] = "object"
	}
	if len(schema.Properties) > 0 {
		m["properties"] = schema.Properties
	}
	if len(schema.Required) > 0 {
		m["required"] = schema.Required
	}
	if schema.AdditionalProperties != nil {
		m["additionalProperties"] = schema.AdditionalProperties
	}
	return m
}

// textContent concatenates the text parts of a call result. Non-text
// parts are noted but not decoded.
func textContent(result *mcpgo.CallToolResult) string {
	if result == nil || len(result.Content) == 0 {
		return ""
	}
	var parts []string
	for _, c := range result.Content {
		switch v := c.(type) {
		case mcpgo.TextContent:
			parts = append(parts, v.Text)
		case *mcpgo.TextContent:
			parts = append(parts, v.Text)
		default:
			parts = append(parts, fmt.Sprintf("[non-text content: %T]", c))
		}
	}
	return strings.Join(parts, "\n")
}
