package orchestrator

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/jyasuu/llm-playground/internal/llm"
	"github.com/jyasuu/llm-playground/internal/notify"
	"github.com/jyasuu/llm-playground/internal/session"
	"github.com/jyasuu/llm-playground/internal/tools"
)

// scriptedClient returns canned responses in order; the last script entry
// repeats forever. It records how many calls it served.
type scriptedClient struct {
	mu     sync.Mutex
	script []scriptStep
	calls  int
}

type scriptStep struct {
	resp *llm.CompletionResponse
	err  error
}

func (c *scriptedClient) CompleteWithRequest(_ context.Context, _ *llm.CompletionRequest) (*llm.CompletionResponse, error) {
	c.mu.Lock()
	defer c.mu.Unlock()

	idx := c.calls
	if idx >= len(c.script) {
		idx = len(c.script) - 1
	}
	c.calls++

	step := c.script[idx]
	return step.resp, step.err
}

func (c *scriptedClient) Stream(_ context.Context, _ *llm.CompletionRequest, _ func(string) error) error {
	return errors.New("not scripted")
}

func (c *scriptedClient) GetModelName() string { return "scripted" }

func (c *scriptedClient) callCount() int {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.calls
}

type countingNotifier struct {
	mu       sync.Mutex
	errors   int
	warnings int
}

func (n *countingNotifier) Emit(_ string, severity notify.Severity, _ time.Duration) {
	n.mu.Lock()
	defer n.mu.Unlock()
	switch severity {
	case notify.SeverityError:
		n.errors++
	case notify.SeverityWarning:
		n.warnings++
	}
}

func weatherRegistry(t *testing.T) *tools.Registry {
	t.Helper()
	registry := tools.NewRegistry()
	registry.Register(tools.Definition{
		Name:        "get_weather",
		Kind:        tools.KindMockStatic,
		MockPayload: `{"temperature":22,"condition":"sunny"}`,
		Enabled:     true,
	})
	return registry
}

func newTestOrchestrator(t *testing.T, client llm.Client, notifier notify.Notifier) (*Orchestrator, session.Store, string) {
	t.Helper()

	store := session.NewMemoryStore()
	sess, err := store.CreateSession("test")
	if err != nil {
		t.Fatalf("failed to create session: %v", err)
	}

	registry := weatherRegistry(t)
	executor := tools.NewExecutor(registry, nil)
	settings := Settings{Temperature: 0.7, MaxTokens: 256, RetryBaseDelay: time.Millisecond}

	return New(store, registry, executor, client, settings, notifier), store, sess.ID
}

func runTurn(t *testing.T, orch *Orchestrator, sessionID, text string) TurnEvent {
	t.Helper()

	events, err := orch.Submit(context.Background(), sessionID, text)
	if err != nil {
		t.Fatalf("submit failed: %v", err)
	}

	var terminal TurnEvent
	for event := range events {
		if event.State.Terminal() {
			terminal = event
		}
	}
	if !terminal.State.Terminal() {
		t.Fatal("turn never reached a terminal state")
	}
	return terminal
}

func functionCallResponse() *llm.CompletionResponse {
	return &llm.CompletionResponse{
		FunctionCalls: []llm.FunctionCall{
			{ID: "call_1", Name: "get_weather", Arguments: map[string]any{"location": "Paris"}},
		},
		StopReason: "tool_calls",
	}
}

func TestWeatherScenario(t *testing.T) {
	client := &scriptedClient{script: []scriptStep{
		{resp: functionCallResponse()},
		{resp: &llm.CompletionResponse{Content: "It's 22°C and sunny in Paris.", StopReason: "stop"}},
	}}
	orch, store, sessionID := newTestOrchestrator(t, client, nil)

	terminal := runTurn(t, orch, sessionID, "weather in Paris")

	if terminal.State != StateCompleted {
		t.Fatalf("got state %s, want completed", terminal.State)
	}
	if client.callCount() != 2 {
		t.Fatalf("got %d provider calls, want 2", client.callCount())
	}

	messages, err := store.GetMessages(sessionID)
	if err != nil {
		t.Fatalf("failed to load messages: %v", err)
	}
	// user, assistant+call, function response, assistant final.
	if len(messages) != 4 {
		t.Fatalf("got %d messages, want 4", len(messages))
	}
	if messages[0].Role != llm.RoleUser || messages[0].Content != "weather in Paris" {
		t.Errorf("unexpected user message %+v", messages[0])
	}
	if len(messages[1].FunctionCalls) != 1 {
		t.Errorf("assistant message should carry the call: %+v", messages[1])
	}
	if frs := messages[2].FunctionResponses; len(frs) != 1 || frs[0].Content["condition"] != "sunny" {
		t.Errorf("function response missing mock payload: %+v", messages[2])
	}
	if messages[3].Content != "It's 22°C and sunny in Paris." {
		t.Errorf("unexpected final message %+v", messages[3])
	}

	// The turn guard must be released.
	if err := store.TryBeginTurn(sessionID); err != nil {
		t.Fatalf("session still busy after completion: %v", err)
	}
}

func TestEveryFunctionCallIsAnswered(t *testing.T) {
	client := &scriptedClient{script: []scriptStep{
		{resp: &llm.CompletionResponse{
			FunctionCalls: []llm.FunctionCall{
				{ID: "call_1", Name: "get_weather", Arguments: map[string]any{"location": "Paris"}},
				{ID: "call_2", Name: "unknown_tool"},
			},
		}},
		{resp: &llm.CompletionResponse{Content: "done"}},
	}}
	orch, store, sessionID := newTestOrchestrator(t, client, nil)

	runTurn(t, orch, sessionID, "hi")

	messages, _ := store.GetMessages(sessionID)

	pending := make(map[string]bool)
	for _, msg := range messages {
		for _, call := range msg.FunctionCalls {
			pending[call.ID] = true
		}
		for _, fr := range msg.FunctionResponses {
			if !pending[fr.ID] {
				t.Fatalf("response %q has no earlier matching call", fr.ID)
			}
			delete(pending, fr.ID)
		}
	}
	if len(pending) != 0 {
		t.Fatalf("unanswered function calls: %v", pending)
	}
}

func TestIterationCapForcesTermination(t *testing.T) {
	// Always returns a function call; the loop must stop at the cap.
	client := &scriptedClient{script: []scriptStep{{resp: functionCallResponse()}}}
	notifier := &countingNotifier{}
	orch, store, sessionID := newTestOrchestrator(t, client, notifier)

	terminal := runTurn(t, orch, sessionID, "loop forever")

	if terminal.State != StateCompleted {
		t.Fatalf("got state %s, want completed", terminal.State)
	}
	if client.callCount() != IterationCap {
		t.Fatalf("got %d provider calls, want exactly %d", client.callCount(), IterationCap)
	}
	if notifier.warnings != 1 {
		t.Fatalf("got %d warnings, want 1 for the cap notice", notifier.warnings)
	}

	messages, _ := store.GetMessages(sessionID)
	final := messages[len(messages)-1]
	if final.Role != llm.RoleAssistant || final.Content == "" {
		t.Fatalf("final message should note the limit, got %+v", final)
	}
}

func TestRateLimitedThenSuccess(t *testing.T) {
	rateLimited := scriptStep{err: llm.NewAPIError("test", 429, "slow down")}
	client := &scriptedClient{script: []scriptStep{
		rateLimited, rateLimited, rateLimited,
		{resp: &llm.CompletionResponse{Content: "finally"}},
	}}
	orch, store, sessionID := newTestOrchestrator(t, client, nil)

	terminal := runTurn(t, orch, sessionID, "hi")

	if terminal.State != StateCompleted {
		t.Fatalf("got state %s, want completed", terminal.State)
	}
	if client.callCount() != 4 {
		t.Fatalf("got %d provider calls, want 4", client.callCount())
	}

	messages, _ := store.GetMessages(sessionID)
	if messages[len(messages)-1].Content != "finally" {
		t.Fatalf("unexpected final message %+v", messages[len(messages)-1])
	}
}

func TestAuthFailureFailsTurn(t *testing.T) {
	client := &scriptedClient{script: []scriptStep{
		{err: llm.NewAPIError("test", 401, "invalid api key")},
	}}
	notifier := &countingNotifier{}
	orch, store, sessionID := newTestOrchestrator(t, client, notifier)

	terminal := runTurn(t, orch, sessionID, "hi")

	if terminal.State != StateFailed {
		t.Fatalf("got state %s, want failed", terminal.State)
	}
	if terminal.Err == nil {
		t.Fatal("failed event should carry the error")
	}
	if client.callCount() != 1 {
		t.Fatalf("got %d provider calls, want 1 (no retries)", client.callCount())
	}
	if notifier.errors != 1 {
		t.Fatalf("got %d error notifications, want exactly 1", notifier.errors)
	}

	// The user message survives; nothing else was appended.
	messages, _ := store.GetMessages(sessionID)
	if len(messages) != 1 || messages[0].Role != llm.RoleUser {
		t.Fatalf("failure corrupted the session: %+v", messages)
	}

	if err := store.TryBeginTurn(sessionID); err != nil {
		t.Fatalf("session still busy after failure: %v", err)
	}
}

func TestSubmitRejectsBusySession(t *testing.T) {
	release := make(chan struct{})
	client := &blockingClient{started: make(chan struct{}, 1), release: release}
	orch, _, sessionID := newTestOrchestrator(t, client, nil)

	events, err := orch.Submit(context.Background(), sessionID, "first")
	if err != nil {
		t.Fatalf("first submit failed: %v", err)
	}

	<-client.started
	if _, err := orch.Submit(context.Background(), sessionID, "second"); !errors.Is(err, ErrTurnInFlight) {
		t.Fatalf("got %v, want ErrTurnInFlight", err)
	}

	close(release)
	for range events {
	}

	// After the first turn finishes the session accepts submissions again.
	events2, err := orch.Submit(context.Background(), sessionID, "third")
	if err != nil {
		t.Fatalf("submit after completion failed: %v", err)
	}
	for range events2 {
	}
}

func TestSubmitRejectsEmptyInput(t *testing.T) {
	client := &scriptedClient{script: []scriptStep{{resp: &llm.CompletionResponse{Content: "x"}}}}
	orch, _, sessionID := newTestOrchestrator(t, client, nil)

	if _, err := orch.Submit(context.Background(), sessionID, "   "); !errors.Is(err, ErrEmptyInput) {
		t.Fatalf("got %v, want ErrEmptyInput", err)
	}
}

func TestSubmitUnknownSession(t *testing.T) {
	client := &scriptedClient{script: []scriptStep{{resp: &llm.CompletionResponse{Content: "x"}}}}
	orch, _, _ := newTestOrchestrator(t, client, nil)

	if _, err := orch.Submit(context.Background(), "missing", "hi"); !errors.Is(err, session.ErrNotFound) {
		t.Fatalf("got %v, want ErrNotFound", err)
	}
}

// blockingClient parks the first completion until released, so tests can
// observe the busy state deterministically.
type blockingClient struct {
	started chan struct{}
	release chan struct{}
}

func (c *blockingClient) CompleteWithRequest(ctx context.Context, _ *llm.CompletionRequest) (*llm.CompletionResponse, error) {
	select {
	case c.started <- struct{}{}:
	default:
	}
	select {
	case <-c.release:
	case <-ctx.Done():
		return nil, ctx.Err()
	}
	return &llm.CompletionResponse{Content: "done"}, nil
}

func (c *blockingClient) Stream(context.Context, *llm.CompletionRequest, func(string) error) error {
	return errors.New("not supported")
}

func (c *blockingClient) GetModelName() string { return "blocking" }
