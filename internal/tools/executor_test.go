package tools

import (
	"context"
	"errors"
	"testing"

	"github.com/jyasuu/llm-playground/internal/llm"
)

type stubInvoker struct {
	result map[string]any
	err    error
	calls  []string
}

func (s *stubInvoker) Invoke(_ context.Context, def *Definition, _ map[string]any) (map[string]any, error) {
	s.calls = append(s.calls, def.Name)
	return s.result, s.err
}

func TestExecuteUnknownTool(t *testing.T) {
	executor := NewExecutor(NewRegistry(), nil)

	resp := executor.Execute(context.Background(), llm.FunctionCall{ID: "call_1", Name: "nope"})

	if resp.ID != "call_1" || resp.Name != "nope" {
		t.Fatalf("response must mirror call identity, got %+v", resp)
	}
	if resp.Content["error"] != "unknown function tool" {
		t.Fatalf("got content %v", resp.Content)
	}
	if !resp.IsError() {
		t.Fatal("unknown tool response should carry an error marker")
	}
}

func TestExecuteDisabledToolIsUnknown(t *testing.T) {
	registry := NewRegistry()
	registry.Register(Definition{Name: "off", Kind: KindMockStatic, MockPayload: `{"x":1}`, Enabled: false})
	executor := NewExecutor(registry, nil)

	resp := executor.Execute(context.Background(), llm.FunctionCall{ID: "c", Name: "off"})
	if resp.Content["error"] != "unknown function tool" {
		t.Fatalf("disabled tools must not execute, got %v", resp.Content)
	}
}

func TestExecuteMockStaticJSONPayload(t *testing.T) {
	registry := NewRegistry()
	registry.Register(Definition{
		Name:        "get_weather",
		Kind:        KindMockStatic,
		MockPayload: `{"temperature": 22, "condition": "sunny"}`,
		Enabled:     true,
	})
	executor := NewExecutor(registry, nil)

	resp := executor.Execute(context.Background(), llm.FunctionCall{ID: "c1", Name: "get_weather"})

	if resp.Content["condition"] != "sunny" {
		t.Fatalf("got content %v", resp.Content)
	}
	if resp.IsError() {
		t.Fatal("mock payload should not be an error")
	}
}

func TestExecuteMockStaticNonJSONPayload(t *testing.T) {
	registry := NewRegistry()
	registry.Register(Definition{
		Name:        "fortune",
		Kind:        KindMockStatic,
		MockPayload: "not json at all",
		Enabled:     true,
	})
	executor := NewExecutor(registry, nil)

	resp := executor.Execute(context.Background(), llm.FunctionCall{ID: "c1", Name: "fortune"})
	if resp.Content["result"] != "not json at all" {
		t.Fatalf("raw payload should land under result, got %v", resp.Content)
	}
}

func TestExecuteDiscoveredToolSuccess(t *testing.T) {
	registry := NewRegistry()
	registry.Register(Definition{
		Name:       "mcp_github_search",
		Kind:       KindDiscovered,
		Server:     "github",
		RemoteName: "search",
		Enabled:    true,
	})
	invoker := &stubInvoker{result: map[string]any{"hits": float64(3)}}
	executor := NewExecutor(registry, invoker)

	resp := executor.Execute(context.Background(), llm.FunctionCall{ID: "c1", Name: "mcp_github_search"})

	if resp.Content["hits"] != float64(3) {
		t.Fatalf("got content %v", resp.Content)
	}
	if len(invoker.calls) != 1 {
		t.Fatalf("invoker called %d times", len(invoker.calls))
	}
}

func TestExecuteDiscoveredToolFailureBecomesData(t *testing.T) {
	registry := NewRegistry()
	registry.Register(Definition{
		Name:       "mcp_github_search",
		Kind:       KindDiscovered,
		Server:     "github",
		RemoteName: "search",
		Enabled:    true,
	})
	invoker := &stubInvoker{err: errors.New("server unreachable")}
	executor := NewExecutor(registry, invoker)

	resp := executor.Execute(context.Background(), llm.FunctionCall{ID: "c1", Name: "mcp_github_search"})

	if resp.Content["error"] != "server unreachable" {
		t.Fatalf("failure should be folded into content, got %v", resp.Content)
	}
}

func TestExecuteDiscoveredWithoutInvoker(t *testing.T) {
	registry := NewRegistry()
	registry.Register(Definition{Name: "mcp_x_y", Kind: KindDiscovered, Server: "x", RemoteName: "y", Enabled: true})
	executor := NewExecutor(registry, nil)

	resp := executor.Execute(context.Background(), llm.FunctionCall{ID: "c1", Name: "mcp_x_y"})
	if !resp.IsError() {
		t.Fatal("missing invoker should produce an error payload, not a panic")
	}
}

func TestExecuteAllPreservesOrder(t *testing.T) {
	registry := NewRegistry()
	registry.Register(Definition{Name: "a", Kind: KindMockStatic, MockPayload: `{"tool":"a"}`, Enabled: true})
	registry.Register(Definition{Name: "b", Kind: KindMockStatic, MockPayload: `{"tool":"b"}`, Enabled: true})
	executor := NewExecutor(registry, nil)

	responses := executor.ExecuteAll(context.Background(), []llm.FunctionCall{
		{ID: "c1", Name: "b"},
		{ID: "c2", Name: "a"},
		{ID: "c3", Name: "missing"},
	})

	if len(responses) != 3 {
		t.Fatalf("got %d responses, want 3", len(responses))
	}
	if responses[0].ID != "c1" || responses[1].ID != "c2" || responses[2].ID != "c3" {
		t.Fatalf("response order must match call order, got %+v", responses)
	}
	if responses[0].Content["tool"] != "b" {
		t.Fatalf("got %v", responses[0].Content)
	}
	if !responses[2].IsError() {
		t.Fatal("missing tool must still produce a response")
	}
}
