package orchestrator

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"sync"
	"time"

	"github.com/jyasuu/llm-playground/internal/llm"
	"github.com/jyasuu/llm-playground/internal/logger"
	"github.com/jyasuu/llm-playground/internal/notify"
	"github.com/jyasuu/llm-playground/internal/session"
	"github.com/jyasuu/llm-playground/internal/tools"
)

// IterationCap bounds how many times one turn may loop back to the model
// after executing function calls.
const IterationCap = 5

// ErrTurnInFlight is returned by Submit when the session is busy.
var ErrTurnInFlight = session.ErrTurnInFlight

// ErrEmptyInput is returned by Submit when the user text is blank.
var ErrEmptyInput = errors.New("user text must not be empty")

// iterationLimitNotice is appended as the final assistant message when a
// turn is cut off by IterationCap.
const iterationLimitNotice = "Function call limit reached for this turn. Stopping here; send another message to continue."

// TurnState enumerates the states of one conversation turn.
type TurnState string

const (
	StateIdle               TurnState = "idle"
	StateAwaitingLLM        TurnState = "awaiting_llm"
	StateExecutingFunctions TurnState = "executing_functions"
	StateCompleted          TurnState = "completed"
	StateFailed             TurnState = "failed"
)

// Terminal reports whether the state ends a turn.
func (s TurnState) Terminal() bool {
	return s == StateCompleted || s == StateFailed
}

// TurnEvent is one observable step of a turn. Message is set when the event
// carries a freshly appended message; Err is set only on StateFailed.
type TurnEvent struct {
	SessionID string       `json:"session_id"`
	State     TurnState    `json:"state"`
	Iteration int          `json:"iteration"`
	Message   *llm.Message `json:"message,omitempty"`
	Err       error        `json:"-"`
	Error     string       `json:"error,omitempty"`
}

// Settings carries the generation parameters passed through to the provider.
type Settings struct {
	Temperature    float64
	MaxTokens      int
	TopP           float64
	SystemPrompt   string
	RetryBaseDelay time.Duration
}

// turnContext is the per-turn state. It is owned by exactly one goroutine
// from Submit until a terminal event is emitted.
type turnContext struct {
	sessionID string
	iteration int
	events    chan TurnEvent
}

// Orchestrator drives conversation turns: append user message, request a
// completion, execute any function calls, feed results back, repeat until a
// final answer or the iteration cap. All session writes are appends issued
// by this type in state-machine order.
type Orchestrator struct {
	store    session.Store
	registry *tools.Registry
	executor *tools.Executor
	notifier notify.Notifier

	mu       sync.RWMutex
	client   llm.Client
	settings Settings
}

func New(store session.Store, registry *tools.Registry, executor *tools.Executor, client llm.Client, settings Settings, notifier notify.Notifier) *Orchestrator {
	if notifier == nil {
		notifier = notify.NopNotifier{}
	}
	return &Orchestrator{
		store:    store,
		registry: registry,
		executor: executor,
		notifier: notifier,
		client:   client,
		settings: settings,
	}
}

// SetClient swaps the provider client. Turns already in flight keep the
// client they started with.
func (o *Orchestrator) SetClient(client llm.Client) {
	o.mu.Lock()
	defer o.mu.Unlock()
	o.client = client
}

// SetSettings replaces the generation parameters used by future turns.
func (o *Orchestrator) SetSettings(settings Settings) {
	o.mu.Lock()
	defer o.mu.Unlock()
	o.settings = settings
}

func (o *Orchestrator) snapshot() (llm.Client, Settings) {
	o.mu.RLock()
	defer o.mu.RUnlock()
	return o.client, o.settings
}

// Submit starts one turn for the session. It appends the user message before
// returning; the rest of the turn runs on its own goroutine, reporting
// progress on the returned channel. The channel is closed after the terminal
// event. Busy sessions are rejected with ErrTurnInFlight rather than queued
// so two turns can never interleave their appends.
func (o *Orchestrator) Submit(ctx context.Context, sessionID, userText string) (<-chan TurnEvent, error) {
	text := strings.TrimSpace(userText)
	if text == "" {
		return nil, ErrEmptyInput
	}

	client, settings := o.snapshot()
	if client == nil {
		return nil, errors.New("no provider client configured")
	}

	if err := o.store.TryBeginTurn(sessionID); err != nil {
		return nil, err
	}

	userMsg := &llm.Message{Role: llm.RoleUser, Content: text}
	if err := o.store.AppendMessage(sessionID, userMsg); err != nil {
		o.store.EndTurn(sessionID)
		return nil, fmt.Errorf("failed to append user message: %w", err)
	}

	turn := &turnContext{
		sessionID: sessionID,
		events:    make(chan TurnEvent, 16),
	}

	go o.runTurn(ctx, turn, client, settings)

	return turn.events, nil
}

// runTurn owns the turn from the first provider request to the terminal
// state. The busy flag is always cleared on exit.
func (o *Orchestrator) runTurn(ctx context.Context, turn *turnContext, client llm.Client, settings Settings) {
	defer close(turn.events)
	defer o.store.EndTurn(turn.sessionID)

	for {
		o.emit(turn, TurnEvent{State: StateAwaitingLLM})

		resp, err := o.requestCompletion(ctx, turn.sessionID, client, settings)
		if err != nil {
			logger.Error("turn failed for session %s: %v", turn.sessionID, err)
			o.emit(turn, TurnEvent{State: StateFailed, Err: err, Error: err.Error()})
			return
		}

		if len(resp.FunctionCalls) == 0 {
			if resp.Content != "" {
				final := &llm.Message{Role: llm.RoleAssistant, Content: resp.Content}
				if err := o.store.AppendMessage(turn.sessionID, final); err != nil {
					o.emit(turn, TurnEvent{State: StateFailed, Err: err, Error: err.Error()})
					return
				}
				o.emit(turn, TurnEvent{State: StateCompleted, Message: final})
				return
			}
			o.emit(turn, TurnEvent{State: StateCompleted})
			return
		}

		if err := o.executeFunctionCalls(ctx, turn, resp); err != nil {
			o.emit(turn, TurnEvent{State: StateFailed, Err: err, Error: err.Error()})
			return
		}

		turn.iteration++
		if turn.iteration >= IterationCap {
			o.notifier.Emit(
				fmt.Sprintf("Function call limit (%d) reached. Stopping this turn.", IterationCap),
				notify.SeverityWarning,
				6*time.Second,
			)

			final := &llm.Message{Role: llm.RoleAssistant, Content: iterationLimitNotice}
			if err := o.store.AppendMessage(turn.sessionID, final); err != nil {
				o.emit(turn, TurnEvent{State: StateFailed, Err: err, Error: err.Error()})
				return
			}
			o.emit(turn, TurnEvent{State: StateCompleted, Message: final})
			return
		}
	}
}

// requestCompletion performs one retry-wrapped provider exchange over the
// session's full message history.
func (o *Orchestrator) requestCompletion(ctx context.Context, sessionID string, client llm.Client, settings Settings) (*llm.CompletionResponse, error) {
	messages, err := o.store.GetMessages(sessionID)
	if err != nil {
		return nil, fmt.Errorf("failed to load session messages: %w", err)
	}

	req := &llm.CompletionRequest{
		Messages:     messages,
		Tools:        o.registry.Schemas(),
		Temperature:  settings.Temperature,
		MaxTokens:    settings.MaxTokens,
		TopP:         settings.TopP,
		SystemPrompt: settings.SystemPrompt,
	}

	logger.Debug("requesting completion for session %s (%d messages, ~%d tokens)",
		sessionID, len(messages), llm.EstimateRequestTokens(req))

	return llm.CallWithRetry(ctx, func(ctx context.Context) (*llm.CompletionResponse, error) {
		return client.CompleteWithRequest(ctx, req)
	}, llm.RetryOptions{
		BaseDelay: settings.RetryBaseDelay,
		Notifier:  o.notifier,
	})
}

// executeFunctionCalls appends the assistant message carrying the calls,
// runs every call in emission order, and appends one response message per
// call. Every call is answered before the next provider request; tool
// failures are folded into the response payloads, never returned as errors.
func (o *Orchestrator) executeFunctionCalls(ctx context.Context, turn *turnContext, resp *llm.CompletionResponse) error {
	calls := llm.NormalizeFunctionCallIDs(resp.FunctionCalls)

	assistantMsg := &llm.Message{
		Role:          llm.RoleAssistant,
		Content:       resp.Content,
		FunctionCalls: calls,
	}
	if err := o.store.AppendMessage(turn.sessionID, assistantMsg); err != nil {
		return fmt.Errorf("failed to append assistant message: %w", err)
	}
	o.emit(turn, TurnEvent{State: StateExecutingFunctions, Message: assistantMsg})

	for _, call := range calls {
		response := o.executor.Execute(ctx, call)

		responseMsg := &llm.Message{
			Role:              llm.RoleTool,
			FunctionResponses: []llm.FunctionResponse{*response},
		}
		if err := o.store.AppendMessage(turn.sessionID, responseMsg); err != nil {
			return fmt.Errorf("failed to append function response: %w", err)
		}
		o.emit(turn, TurnEvent{State: StateExecutingFunctions, Message: responseMsg})
	}

	return nil
}

// emit delivers an event without ever blocking the turn; slow consumers drop
// intermediate events but terminal states are always observable via the
// session store.
func (o *Orchestrator) emit(turn *turnContext, event TurnEvent) {
	event.SessionID = turn.sessionID
	event.Iteration = turn.iteration

	select {
	case turn.events <- event:
	default:
		logger.Debug("dropping turn event %s for slow consumer on session %s", event.State, turn.sessionID)
	}
}
