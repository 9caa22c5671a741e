package web

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"time"

	"github.com/julienschmidt/httprouter"

	"github.com/jyasuu/llm-playground/internal/logger"
	"github.com/jyasuu/llm-playground/internal/notify"
	"github.com/jyasuu/llm-playground/internal/orchestrator"
	"github.com/jyasuu/llm-playground/internal/session"
	"github.com/jyasuu/llm-playground/internal/tools"
)

// Server exposes the playground over HTTP: a JSON API for sessions, messages
// and tools, plus a WebSocket feed of turn events and notifications.
type Server struct {
	addr     string
	router   *httprouter.Router
	store    session.Store
	orch     *orchestrator.Orchestrator
	registry *tools.Registry
	hub      *Hub

	server          *http.Server
	stopNotifier    func()
	notificationSub <-chan notify.Notification
}

func NewServer(addr string, store session.Store, orch *orchestrator.Orchestrator, registry *tools.Registry, broadcaster *notify.Broadcaster) *Server {
	s := &Server{
		addr:     addr,
		router:   httprouter.New(),
		store:    store,
		orch:     orch,
		registry: registry,
		hub:      NewHub(),
	}

	if broadcaster != nil {
		s.notificationSub, s.stopNotifier = broadcaster.Subscribe()
	}

	s.setupRoutes()
	return s
}

func (s *Server) setupRoutes() {
	s.router.GET("/health", s.handleHealth)

	s.router.GET("/api/sessions", s.handleListSessions)
	s.router.POST("/api/sessions", s.handleCreateSession)
	s.router.GET("/api/sessions/:id", s.handleGetSession)
	s.router.DELETE("/api/sessions/:id", s.handleDeleteSession)
	s.router.GET("/api/sessions/:id/messages", s.handleListMessages)
	s.router.POST("/api/sessions/:id/messages", s.handleSubmit)

	s.router.GET("/api/tools", s.handleListTools)
	s.router.POST("/api/tools/:name", s.handleToggleTool)

	s.router.HandlerFunc(http.MethodGet, "/ws", s.hub.ServeWS)
}

// Start runs the server until Stop is called. Notifications are pumped to
// the WebSocket hub for as long as the server lives.
func (s *Server) Start() error {
	if s.notificationSub != nil {
		go s.pumpNotifications()
	}

	s.server = &http.Server{
		Addr:    s.addr,
		Handler: s.router,
	}

	logger.Info("web gateway listening on %s", s.addr)
	err := s.server.ListenAndServe()
	if errors.Is(err, http.ErrServerClosed) {
		return nil
	}
	return err
}

func (s *Server) Stop() error {
	if s.stopNotifier != nil {
		s.stopNotifier()
	}
	if s.server == nil {
		return nil
	}

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	return s.server.Shutdown(ctx)
}

// Handler exposes the router, mainly for tests.
func (s *Server) Handler() http.Handler {
	return s.router
}

func (s *Server) pumpNotifications() {
	for notification := range s.notificationSub {
		s.hub.Broadcast(Event{Type: "notification", Payload: notification})
	}
}

func (s *Server) handleHealth(w http.ResponseWriter, _ *http.Request, _ httprouter.Params) {
	writeJSON(w, http.StatusOK, map[string]string{"status": "ok"})
}

func (s *Server) handleListSessions(w http.ResponseWriter, _ *http.Request, _ httprouter.Params) {
	sessions, err := s.store.ListSessions()
	if err != nil {
		writeError(w, http.StatusInternalServerError, err)
		return
	}
	if sessions == nil {
		sessions = []*session.Session{}
	}
	writeJSON(w, http.StatusOK, sessions)
}

func (s *Server) handleCreateSession(w http.ResponseWriter, r *http.Request, _ httprouter.Params) {
	var body struct {
		Title string `json:"title"`
	}
	// An empty or malformed body is fine; the title defaults below.
	_ = json.NewDecoder(r.Body).Decode(&body)
	if body.Title == "" {
		body.Title = "New Chat"
	}

	sess, err := s.store.CreateSession(body.Title)
	if err != nil {
		writeError(w, http.StatusInternalServerError, err)
		return
	}
	writeJSON(w, http.StatusCreated, sess)
}

func (s *Server) handleGetSession(w http.ResponseWriter, _ *http.Request, params httprouter.Params) {
	sess, err := s.store.GetSession(params.ByName("id"))
	if err != nil {
		writeStoreError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, sess)
}

func (s *Server) handleDeleteSession(w http.ResponseWriter, _ *http.Request, params httprouter.Params) {
	if err := s.store.DeleteSession(params.ByName("id")); err != nil {
		writeStoreError(w, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

func (s *Server) handleListMessages(w http.ResponseWriter, _ *http.Request, params httprouter.Params) {
	messages, err := s.store.GetMessages(params.ByName("id"))
	if err != nil {
		writeStoreError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, messages)
}

// handleSubmit starts a turn and waits for its terminal state, relaying every
// intermediate event to the WebSocket feed. Busy sessions get 409.
func (s *Server) handleSubmit(w http.ResponseWriter, r *http.Request, params httprouter.Params) {
	sessionID := params.ByName("id")

	var body struct {
		Text string `json:"text"`
	}
	if err := json.NewDecoder(r.Body).Decode(&body); err != nil {
		writeError(w, http.StatusBadRequest, errors.New("request body must be JSON with a text field"))
		return
	}

	events, err := s.orch.Submit(r.Context(), sessionID, body.Text)
	if err != nil {
		switch {
		case errors.Is(err, orchestrator.ErrTurnInFlight):
			writeError(w, http.StatusConflict, err)
		case errors.Is(err, orchestrator.ErrEmptyInput):
			writeError(w, http.StatusBadRequest, err)
		case errors.Is(err, session.ErrNotFound):
			writeError(w, http.StatusNotFound, err)
		default:
			writeError(w, http.StatusInternalServerError, err)
		}
		return
	}

	var terminal orchestrator.TurnEvent
	for event := range events {
		s.hub.Broadcast(Event{Type: "turn_event", Payload: event})
		if event.State.Terminal() {
			terminal = event
		}
	}

	status := http.StatusOK
	if terminal.State == orchestrator.StateFailed {
		status = http.StatusBadGateway
	}
	writeJSON(w, status, terminal)
}

func (s *Server) handleListTools(w http.ResponseWriter, _ *http.Request, _ httprouter.Params) {
	writeJSON(w, http.StatusOK, s.registry.List())
}

func (s *Server) handleToggleTool(w http.ResponseWriter, r *http.Request, params httprouter.Params) {
	var body struct {
		Enabled bool `json:"enabled"`
	}
	if err := json.NewDecoder(r.Body).Decode(&body); err != nil {
		writeError(w, http.StatusBadRequest, errors.New("request body must be JSON with an enabled field"))
		return
	}

	if !s.registry.SetEnabled(params.ByName("name"), body.Enabled) {
		writeError(w, http.StatusNotFound, errors.New("unknown tool"))
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

func writeJSON(w http.ResponseWriter, status int, payload any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(payload); err != nil {
		logger.Error("failed to encode response: %v", err)
	}
}

func writeError(w http.ResponseWriter, status int, err error) {
	writeJSON(w, status, map[string]string{"error": err.Error()})
}

func writeStoreError(w http.ResponseWriter, err error) {
	if errors.Is(err, session.ErrNotFound) {
		writeError(w, http.StatusNotFound, err)
		return
	}
	writeError(w, http.StatusInternalServerError, err)
}
