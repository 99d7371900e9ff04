package mcp

import (
	"testing"

	mcpgo "github.com/mark3labs/mcp-go/mcp"
)

func TestSchemaToMap(t *testing.T) {
	schema := mcpgo.ToolInputSchema{
		Type: "object",
		Properties: map[string]any{
			"query": map[string]any{
				"type":        "string",
				"description": "Search query",
			},
		},
		Required: []string{"query"},
	}

	m := schemaToMap(schema)

	if m["type"] != "object" {
		t.Errorf("type = %v", m["type"])
	}
	props, ok := m["properties"].(map[string]any)
	if !ok || props["query"] == nil {
		t.Fatalf("properties = %v", m["properties"])
	}
	req, ok := m["required"].([]string)
	if !ok || len(req) != 1 || req[0] != "query" {
		t.Errorf("required = %v", m["required"])
	}
}

func TestSchemaToMapDefaultsToObject(t *testing.T) {
	m := schemaToMap(mcpgo.ToolInputSchema{})
	if m["type"] != "object" {
		t.Errorf("type = %v", m["type"])
	}
}

func TestTextContent(t *testing.T) {
	result := &mcpgo.CallToolResult{
		Content: []mcpgo.Content{
			mcpgo.TextContent{Type: "text", Text: "hello"},
			mcpgo.TextContent{Type: "text", Text: "world"},
		},
	}
	if got := textContent(result); got != "hello\nworld" {
		t.Errorf("got %q", got)
	}
	if got := textContent(nil); got != "" {
		t.Errorf("nil result: %q", got)
	}
	if got := textContent(&mcpgo.CallToolResult{}); got != "" {
		t.Errorf("empty result: %q", got)
	}
}

func TestBridgeToolCapabilityID(t *testing.T) {
	remote := mcpgo.Tool{
		Name:        "query",
		Description: "Run a query",
		InputSchema: mcpgo.ToolInputSchema{Type: "object"},
	}

	bt := NewBridgeTool("pg", remote, nil, 0, nil)
	if bt.Name() != "pg__query" {
		t.Errorf("name = %s", bt.Name())
	}
	if bt.Server() != "pg" || bt.RemoteName() != "query" {
		t.Errorf("server = %s remote = %s", bt.Server(), bt.RemoteName())
	}
	if bt.timeout.Seconds() != 60 {
		t.Errorf("default timeout = %s", bt.timeout)
	}

	if CapabilityID("", "query") != "query" {
		t.Error("empty server should not prefix")
	}
}
