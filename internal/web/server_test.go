package web

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/jyasuu/llm-playground/internal/llm"
	"github.com/jyasuu/llm-playground/internal/orchestrator"
	"github.com/jyasuu/llm-playground/internal/session"
	"github.com/jyasuu/llm-playground/internal/tools"
)

type echoClient struct{}

func (echoClient) CompleteWithRequest(_ context.Context, req *llm.CompletionRequest) (*llm.CompletionResponse, error) {
	last := req.Messages[len(req.Messages)-1]
	return &llm.CompletionResponse{Content: "echo: " + last.Content, StopReason: "stop"}, nil
}

func (echoClient) Stream(context.Context, *llm.CompletionRequest, func(string) error) error {
	return errors.New("not supported")
}

func (echoClient) GetModelName() string { return "echo" }

func newTestServer(t *testing.T) (*Server, session.Store) {
	t.Helper()

	store := session.NewMemoryStore()
	registry := tools.NewRegistry()
	registry.Register(tools.Definition{
		Name:        "get_weather",
		Kind:        tools.KindMockStatic,
		MockPayload: `{"temperature":22}`,
		Enabled:     true,
	})
	executor := tools.NewExecutor(registry, nil)
	orch := orchestrator.New(store, registry, executor, echoClient{}, orchestrator.Settings{
		RetryBaseDelay: time.Millisecond,
	}, nil)

	return NewServer(":0", store, orch, registry, nil), store
}

func doJSON(t *testing.T, handler http.Handler, method, path string, body any) *httptest.ResponseRecorder {
	t.Helper()

	var reader *bytes.Reader
	if body != nil {
		data, err := json.Marshal(body)
		if err != nil {
			t.Fatalf("failed to encode body: %v", err)
		}
		reader = bytes.NewReader(data)
	} else {
		reader = bytes.NewReader(nil)
	}

	req := httptest.NewRequest(method, path, reader)
	req.Header.Set("Content-Type", "application/json")
	rec := httptest.NewRecorder()
	handler.ServeHTTP(rec, req)
	return rec
}

func TestSessionEndpoints(t *testing.T) {
	server, _ := newTestServer(t)
	handler := server.Handler()

	rec := doJSON(t, handler, http.MethodPost, "/api/sessions", map[string]string{"title": "My Chat"})
	if rec.Code != http.StatusCreated {
		t.Fatalf("create: got %d: %s", rec.Code, rec.Body)
	}
	var created session.Session
	if err := json.Unmarshal(rec.Body.Bytes(), &created); err != nil {
		t.Fatalf("bad create response: %v", err)
	}
	if created.Title != "My Chat" || created.ID == "" {
		t.Fatalf("unexpected session %+v", created)
	}

	rec = doJSON(t, handler, http.MethodGet, "/api/sessions", nil)
	if rec.Code != http.StatusOK {
		t.Fatalf("list: got %d", rec.Code)
	}
	var listed []session.Session
	json.Unmarshal(rec.Body.Bytes(), &listed)
	if len(listed) != 1 {
		t.Fatalf("got %d sessions", len(listed))
	}

	rec = doJSON(t, handler, http.MethodGet, "/api/sessions/"+created.ID, nil)
	if rec.Code != http.StatusOK {
		t.Fatalf("get: got %d", rec.Code)
	}

	rec = doJSON(t, handler, http.MethodDelete, "/api/sessions/"+created.ID, nil)
	if rec.Code != http.StatusNoContent {
		t.Fatalf("delete: got %d", rec.Code)
	}

	rec = doJSON(t, handler, http.MethodGet, "/api/sessions/"+created.ID, nil)
	if rec.Code != http.StatusNotFound {
		t.Fatalf("get after delete: got %d", rec.Code)
	}
}

func TestSubmitCompletesTurn(t *testing.T) {
	server, store := newTestServer(t)
	handler := server.Handler()
	sess, _ := store.CreateSession("chat")

	rec := doJSON(t, handler, http.MethodPost, "/api/sessions/"+sess.ID+"/messages", map[string]string{"text": "hello"})
	if rec.Code != http.StatusOK {
		t.Fatalf("submit: got %d: %s", rec.Code, rec.Body)
	}

	var terminal orchestrator.TurnEvent
	if err := json.Unmarshal(rec.Body.Bytes(), &terminal); err != nil {
		t.Fatalf("bad submit response: %v", err)
	}
	if terminal.State != orchestrator.StateCompleted {
		t.Fatalf("got state %s", terminal.State)
	}

	messages, _ := store.GetMessages(sess.ID)
	if len(messages) != 2 || messages[1].Content != "echo: hello" {
		t.Fatalf("unexpected messages %+v", messages)
	}
}

func TestSubmitValidation(t *testing.T) {
	server, store := newTestServer(t)
	handler := server.Handler()
	sess, _ := store.CreateSession("chat")

	rec := doJSON(t, handler, http.MethodPost, "/api/sessions/"+sess.ID+"/messages", map[string]string{"text": "  "})
	if rec.Code != http.StatusBadRequest {
		t.Fatalf("blank text: got %d", rec.Code)
	}

	rec = doJSON(t, handler, http.MethodPost, "/api/sessions/missing/messages", map[string]string{"text": "hi"})
	if rec.Code != http.StatusNotFound {
		t.Fatalf("missing session: got %d", rec.Code)
	}
}

func TestSubmitBusySessionConflicts(t *testing.T) {
	server, store := newTestServer(t)
	handler := server.Handler()
	sess, _ := store.CreateSession("chat")

	// Hold the guard directly to simulate an in-flight turn.
	if err := store.TryBeginTurn(sess.ID); err != nil {
		t.Fatalf("failed to mark busy: %v", err)
	}

	rec := doJSON(t, handler, http.MethodPost, "/api/sessions/"+sess.ID+"/messages", map[string]string{"text": "hi"})
	if rec.Code != http.StatusConflict {
		t.Fatalf("busy session: got %d, want 409", rec.Code)
	}
}

func TestToolEndpoints(t *testing.T) {
	server, _ := newTestServer(t)
	handler := server.Handler()

	rec := doJSON(t, handler, http.MethodGet, "/api/tools", nil)
	if rec.Code != http.StatusOK {
		t.Fatalf("list tools: got %d", rec.Code)
	}
	var defs []tools.Definition
	json.Unmarshal(rec.Body.Bytes(), &defs)
	if len(defs) != 1 || defs[0].Name != "get_weather" {
		t.Fatalf("unexpected tools %+v", defs)
	}

	rec = doJSON(t, handler, http.MethodPost, "/api/tools/get_weather", map[string]bool{"enabled": false})
	if rec.Code != http.StatusNoContent {
		t.Fatalf("toggle: got %d", rec.Code)
	}

	rec = doJSON(t, handler, http.MethodPost, "/api/tools/missing", map[string]bool{"enabled": true})
	if rec.Code != http.StatusNotFound {
		t.Fatalf("toggle unknown: got %d", rec.Code)
	}
}

func TestHealthEndpoint(t *testing.T) {
	server, _ := newTestServer(t)
	rec := doJSON(t, server.Handler(), http.MethodGet, "/health", nil)
	if rec.Code != http.StatusOK {
		t.Fatalf("got %d", rec.Code)
	}
}
