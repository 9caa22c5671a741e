package tools

import (
	"context"
	"encoding/json"
	"strings"

	"github.com/jyasuu/llm-playground/internal/llm"
	"github.com/jyasuu/llm-playground/internal/logger"
)

// DiscoveryInvoker proxies a call to an external tool server. Implemented by
// the mcp package; kept as an interface here so tool execution does not need
// to know transport details.
type DiscoveryInvoker interface {
	Invoke(ctx context.Context, def *Definition, arguments map[string]any) (map[string]any, error)
}

// Executor resolves and runs function calls. Execute never returns a Go
// error: every failure is encoded into the response payload under an "error"
// key so the conversation can continue and the model can react to it.
type Executor struct {
	registry *Registry
	invoker  DiscoveryInvoker
	fetcher  *Fetcher
}

func NewExecutor(registry *Registry, invoker DiscoveryInvoker) *Executor {
	return &Executor{
		registry: registry,
		invoker:  invoker,
		fetcher:  NewFetcher(),
	}
}

// Execute runs one function call and returns its response. The response ID
// and name always mirror the call so pairing survives any failure mode.
func (e *Executor) Execute(ctx context.Context, call llm.FunctionCall) *llm.FunctionResponse {
	resp := &llm.FunctionResponse{
		ID:   call.ID,
		Name: call.Name,
	}

	def := e.registry.Get(call.Name)
	if def == nil || !def.Enabled {
		logger.Warn("function call for unknown tool %q", call.Name)
		resp.Content = map[string]any{"error": "unknown function tool"}
		return resp
	}

	switch def.Kind {
	case KindMockStatic:
		resp.Content = decodeMockPayload(def.MockPayload)
	case KindBuiltin:
		resp.Content = e.executeBuiltin(ctx, def, call.Arguments)
	case KindDiscovered:
		resp.Content = e.executeDiscovered(ctx, def, call.Arguments)
	default:
		resp.Content = map[string]any{"error": "unknown function tool"}
	}

	return resp
}

// ExecuteAll runs every call in order and returns the responses in the same
// order, one response per call.
func (e *Executor) ExecuteAll(ctx context.Context, calls []llm.FunctionCall) []llm.FunctionResponse {
	responses := make([]llm.FunctionResponse, 0, len(calls))
	for _, call := range calls {
		responses = append(responses, *e.Execute(ctx, call))
	}
	return responses
}

func (e *Executor) executeBuiltin(ctx context.Context, def *Definition, args map[string]any) map[string]any {
	switch def.Name {
	case FetchToolName:
		result, err := e.fetcher.Fetch(ctx, args)
		if err != nil {
			return map[string]any{"error": err.Error()}
		}
		return result
	default:
		return map[string]any{"error": "unknown function tool"}
	}
}

func (e *Executor) executeDiscovered(ctx context.Context, def *Definition, args map[string]any) map[string]any {
	if e.invoker == nil {
		return map[string]any{"error": "tool server unavailable"}
	}

	result, err := e.invoker.Invoke(ctx, def, args)
	if err != nil {
		logger.Warn("tool %q failed: %v", def.Name, err)
		return map[string]any{"error": err.Error()}
	}
	if result == nil {
		result = map[string]any{}
	}
	return result
}

// decodeMockPayload turns a configured canned payload into a response map.
// JSON objects pass through decoded; anything else is wrapped under "result".
func decodeMockPayload(payload string) map[string]any {
	trimmed := strings.TrimSpace(payload)
	if trimmed == "" {
		return map[string]any{"result": ""}
	}

	var decoded map[string]any
	if err := json.Unmarshal([]byte(trimmed), &decoded); err == nil {
		return decoded
	}
	return map[string]any{"result": payload}
}
