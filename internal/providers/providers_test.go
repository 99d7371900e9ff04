package providers

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"
)

func TestCleanToolSchemasGemini(t *testing.T) {
	tools := []ToolDefinition{{
		Type: "function",
		Function: ToolFunctionSchema{
			Name: "test",
			Parameters: map[string]interface{}{
				"type": "object",
				"properties": map[string]interface{}{
					"name": map[string]interface{}{
						"type":    "string",
						"default": "world",
					},
				},
				"$defs":                map[string]interface{}{"Foo": "bar"},
				"additionalProperties": false,
			},
		},
	}}

	cleaned := CleanToolSchemas("gemini", tools)
	params := cleaned[0].Function.Parameters
	for _, key := range []string{"$defs", "additionalProperties"} {
		if _, ok := params[key]; ok {
			t.Errorf("expected key %q removed", key)
		}
	}
	nested := params["properties"].(map[string]interface{})["name"].(map[string]interface{})
	if _, ok := nested["default"]; ok {
		t.Error("expected nested default removed")
	}
	if _, ok := nested["type"]; !ok {
		t.Error("expected nested type to remain")
	}
}

func TestCleanToolSchemasUnknownProviderUnchanged(t *testing.T) {
	tools := []ToolDefinition{{
		Type: "function",
		Function: ToolFunctionSchema{
			Name:       "test",
			Parameters: map[string]interface{}{"$ref": "x"},
		},
	}}
	cleaned := CleanToolSchemas("openrouter", tools)
	if _, ok := cleaned[0].Function.Parameters["$ref"]; !ok {
		t.Error("expected $ref to remain for unknown provider")
	}
}

func TestOpenAIProviderChat(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path != "/chat/completions" {
			t.Errorf("path = %s", r.URL.Path)
		}
		if got := r.Header.Get("Authorization"); got != "Bearer test-key" {
			t.Errorf("auth = %q", got)
		}
		var req map[string]interface{}
		if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
			t.Fatal(err)
		}
		if req["model"] != "override-model" {
			t.Errorf("model = %v", req["model"])
		}
		json.NewEncoder(w).Encode(map[string]interface{}{
			"model": "override-model",
			"choices": []map[string]interface{}{{
				"message":       map[string]string{"content": `{"final_answer": "done"}`},
				"finish_reason": "stop",
			}},
		})
	}))
	defer srv.Close()

	p := NewOpenAIProvider("openai", "test-key", srv.URL, "default-model")
	resp, err := p.Chat(context.Background(), ChatRequest{
		Model:    "override-model",
		Messages: []Message{{Role: "user", Content: "hi"}},
	})
	if err != nil {
		t.Fatal(err)
	}
	if resp.Content != `{"final_answer": "done"}` {
		t.Errorf("content = %q", resp.Content)
	}
}

func TestOpenAIProviderChatHTTPError(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		http.Error(w, "rate limited", http.StatusTooManyRequests)
	}))
	defer srv.Close()

	p := NewOpenAIProvider("openai", "", srv.URL, "m")
	if _, err := p.Chat(context.Background(), ChatRequest{Messages: []Message{{Role: "user", Content: "hi"}}}); err == nil {
		t.Error("expected error on HTTP 429")
	}
}
