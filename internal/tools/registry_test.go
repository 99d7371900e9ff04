package tools

import (
	"context"
	"strings"
	"testing"
	"time"
)

func TestRegistryExecute(t *testing.T) {
	r := NewRegistry()
	r.Register(EchoTool{})

	res := r.Execute(context.Background(), "text.echo", map[string]interface{}{"text": "hello"})
	if res.IsError {
		t.Fatalf("unexpected error result: %s", res.ForLLM)
	}
	if res.ForLLM != "hello" {
		t.Errorf("ForLLM = %q", res.ForLLM)
	}
}

func TestRegistryUnknownToolIsErrorResult(t *testing.T) {
	r := NewRegistry()
	res := r.Execute(context.Background(), "no.such.tool", nil)
	if !res.IsError {
		t.Error("unknown tool should produce an error result")
	}
}

func TestRegistryScrubsCredentials(t *testing.T) {
	r := NewRegistry()
	r.Register(EchoTool{})

	leaked := "token is sk-" + strings.Repeat("a", 24)
	res := r.Execute(context.Background(), "text.echo", map[string]interface{}{"text": leaked})
	if strings.Contains(res.ForLLM, "sk-aaaa") {
		t.Errorf("credential not scrubbed: %q", res.ForLLM)
	}
	if !strings.Contains(res.ForLLM, redactedPlaceholder) {
		t.Errorf("no redaction marker in %q", res.ForLLM)
	}
}

func TestRegistryDefinitionsHonorAllowlist(t *testing.T) {
	r := NewRegistry()
	r.Register(EchoTool{})
	r.Register(ClockTool{})

	all := r.Definitions(nil)
	if len(all) != 2 {
		t.Fatalf("definitions = %d, want 2", len(all))
	}
	// Registration order is preserved.
	if all[0].Name != "text.echo" || all[1].Name != "clock.now" {
		t.Errorf("order = %s, %s", all[0].Name, all[1].Name)
	}

	only := r.Definitions([]string{"clock.now"})
	if len(only) != 1 || only[0].Name != "clock.now" {
		t.Errorf("allowlist filter = %+v", only)
	}

	// An empty (non-nil) allowlist excludes everything.
	none := r.Definitions([]string{})
	if len(none) != 0 {
		t.Errorf("empty allowlist yielded %d definitions", len(none))
	}
}

func TestClockTool(t *testing.T) {
	fixed := time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC)
	res := ClockTool{Now: func() time.Time { return fixed }}.Execute(context.Background(), nil)
	if res.ForLLM != "2026-03-01T12:00:00Z" {
		t.Errorf("clock = %q", res.ForLLM)
	}
}

func TestCheckSSRFBlocksPrivateTargets(t *testing.T) {
	for _, raw := range []string{
		"http://localhost/x",
		"http://127.0.0.1/x",
		"http://10.0.0.5/x",
		"http://169.254.169.254/latest/meta-data",
		"http://svc.internal/x",
	} {
		if err := checkSSRF(raw); err == nil {
			t.Errorf("checkSSRF(%s) allowed", raw)
		}
	}
}

func TestHTMLToText(t *testing.T) {
	html := `<html><head><style>p{}</style><script>x()</script></head>` +
		`<body><h1>Title</h1><p>First &amp; second</p></body></html>`
	text := htmlToText(html)
	if strings.Contains(text, "x()") || strings.Contains(text, "p{}") {
		t.Errorf("script/style leaked: %q", text)
	}
	if !strings.Contains(text, "Title") || !strings.Contains(text, "First & second") {
		t.Errorf("content missing: %q", text)
	}
}
