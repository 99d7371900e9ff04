package tools

import (
	"context"
	"time"
)

// EchoTool returns its input unchanged. Registered as text.echo; used
// as the fallback capability for tool-only runs with no richer tools.
type EchoTool struct{}

func (EchoTool) Name() string        { return "text.echo" }
func (EchoTool) Description() string { return "Echo the given text back unchanged." }

func (EchoTool) Parameters() map[string]interface{} {
	return map[string]interface{}{
		"type": "object",
		"properties": map[string]interface{}{
			"text": map[string]interface{}{
				"type":        "string",
				"description": "Text to echo.",
			},
		},
		"required": []string{"text"},
	}
}

func (EchoTool) Execute(ctx context.Context, args map[string]interface{}) *Result {
	text, _ := args["text"].(string)
	if text == "" {
		if q, ok := args["query"].(string); ok {
			text = q
		}
	}
	return NewResult(text)
}

// ClockTool reports the current wall clock time. Registered as
// clock.now.
type ClockTool struct {
	// Now is swappable for tests; defaults to time.Now.
	Now func() time.Time
}

func (ClockTool) Name() string        { return "clock.now" }
func (ClockTool) Description() string { return "Return the current time in RFC 3339 form." }

func (ClockTool) Parameters() map[string]interface{} {
	return map[string]interface{}{
		"type":       "object",
		"properties": map[string]interface{}{},
	}
}

func (t ClockTool) Execute(ctx context.Context, args map[string]interface{}) *Result {
	now := time.Now
	if t.Now != nil {
		now = t.Now
	}
	return NewResult(now().UTC().Format(time.RFC3339))
}
