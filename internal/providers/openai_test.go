package providers

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"sync/atomic"
	"testing"
	"time"

	"github.com/steamfamilyzap/kgbot/internal/retry"
)

func TestOpenAIChatToolCall(t *testing.T) {
	var body map[string]any
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path != "/chat/completions" {
			t.Errorf("path = %s", r.URL.Path)
		}
		if got := r.Header.Get("Authorization"); got != "Bearer sk-test" {
			t.Errorf("auth = %q", got)
		}
		if err := json.NewDecoder(r.Body).Decode(&body); err != nil {
			t.Error(err)
		}
		w.Write([]byte(`{"choices":[{"message":{"content":"","tool_calls":[{"id":"call_1","type":"function",
			"function":{"name":"contribute_to_vaquinha","arguments":"{\"amount\":10.5}"}}]},"finish_reason":"tool_calls"}],
			"usage":{"prompt_tokens":5,"completion_tokens":3,"total_tokens":8}}`))
	}))
	defer srv.Close()

	p := NewOpenAIProvider("openai", "sk-test", srv.URL+"/", "gpt-test")
	resp, err := p.Chat(context.Background(), ChatRequest{
		Messages: []Message{{Role: RoleSystem, Content: "sys"}, {Role: RoleUser, Content: "contribuo 10,50"}},
		Tools:    []ToolDefinition{NewFunctionTool("contribute_to_vaquinha", "c", map[string]any{"type": "object"})},
		Options:  map[string]any{OptTemperature: 0.2, OptMaxTokens: 256},
	})
	if err != nil {
		t.Fatal(err)
	}
	if len(resp.ToolCalls) != 1 || resp.ToolCalls[0].Name != "contribute_to_vaquinha" || resp.ToolCalls[0].Arguments["amount"] != 10.5 {
		t.Fatalf("tool calls = %+v", resp.ToolCalls)
	}
	if resp.Usage == nil || resp.Usage.TotalTokens != 8 {
		t.Fatalf("usage = %+v", resp.Usage)
	}
	if body["model"] != "gpt-test" || body["tool_choice"] != "auto" || body["temperature"] != 0.2 || body["max_tokens"] != 256.0 {
		t.Fatalf("request body = %v", body)
	}
}

func TestOpenAIToolResultWireFormat(t *testing.T) {
	p := NewOpenAIProvider("openai", "k", "", "")
	body := p.buildRequestBody("m", ChatRequest{Messages: []Message{
		{Role: RoleAssistant, ToolCalls: []ToolCall{{ID: "c1", Name: "get_vaquinha_status", Arguments: map[string]any{}}}},
		{Role: RoleTool, ToolCallID: "c1", Name: "get_vaquinha_status", Content: `{"game_name":"Portal 2"}`},
	}})
	msgs := body["messages"].([]map[string]any)
	if _, ok := msgs[0]["content"]; ok {
		t.Fatal("assistant tool-call message should omit empty content")
	}
	tc := msgs[0]["tool_calls"].([]map[string]any)[0]
	if tc["type"] != "function" || tc["function"].(map[string]any)["arguments"] != "{}" {
		t.Fatalf("tool call wire = %v", tc)
	}
	if msgs[1]["tool_call_id"] != "c1" {
		t.Fatalf("tool message = %v", msgs[1])
	}
}

func TestOpenAIRetriesServerErrors(t *testing.T) {
	var calls atomic.Int32
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if calls.Add(1) < 3 {
			http.Error(w, "overloaded", http.StatusServiceUnavailable)
			return
		}
		w.Write([]byte(`{"choices":[{"message":{"content":"Oi!"},"finish_reason":"stop"}]}`))
	}))
	defer srv.Close()

	p := NewOpenAIProvider("openai", "k", srv.URL, "m").WithRetry(retry.Config{MaxAttempts: 3, InitialDelay: time.Millisecond, MaxDelay: time.Millisecond})
	resp, err := p.Chat(context.Background(), ChatRequest{Messages: []Message{{Role: RoleUser, Content: "oi"}}})
	if err != nil {
		t.Fatal(err)
	}
	if resp.Content != "Oi!" || calls.Load() != 3 {
		t.Fatalf("content %q after %d calls", resp.Content, calls.Load())
	}
}

func TestOpenAIClientErrorNotRetried(t *testing.T) {
	var calls atomic.Int32
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		calls.Add(1)
		http.Error(w, "bad key", http.StatusUnauthorized)
	}))
	defer srv.Close()

	p := NewOpenAIProvider("openai", "k", srv.URL, "m").WithRetry(retry.Config{MaxAttempts: 3, InitialDelay: time.Millisecond})
	_, err := p.Chat(context.Background(), ChatRequest{Messages: []Message{{Role: RoleUser, Content: "oi"}}})
	var httpErr *retry.HTTPError
	if !errors.As(err, &httpErr) || httpErr.Status != http.StatusUnauthorized {
		t.Fatalf("err = %v", err)
	}
	if calls.Load() != 1 {
		t.Fatalf("calls = %d, want 1", calls.Load())
	}
}
