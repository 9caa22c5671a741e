package session

import (
	"sort"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/jyasuu/llm-playground/internal/llm"
)

// MemoryStore keeps sessions in process memory. Used in tests and when no
// database path is configured.
type MemoryStore struct {
	mu       sync.Mutex
	sessions map[string]*Session
	messages map[string][]*llm.Message
	busy     map[string]bool
}

func NewMemoryStore() *MemoryStore {
	return &MemoryStore{
		sessions: make(map[string]*Session),
		messages: make(map[string][]*llm.Message),
		busy:     make(map[string]bool),
	}
}

func (s *MemoryStore) CreateSession(title string) (*Session, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	now := time.Now()
	sess := &Session{
		ID:        uuid.NewString(),
		Title:     title,
		CreatedAt: now,
		UpdatedAt: now,
	}
	s.sessions[sess.ID] = sess
	return cloneSession(sess), nil
}

func (s *MemoryStore) GetSession(id string) (*Session, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	sess, ok := s.sessions[id]
	if !ok {
		return nil, ErrNotFound
	}
	return cloneSession(sess), nil
}

func (s *MemoryStore) ListSessions() ([]*Session, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	result := make([]*Session, 0, len(s.sessions))
	for _, sess := range s.sessions {
		result = append(result, cloneSession(sess))
	}
	sort.Slice(result, func(i, j int) bool {
		return result[i].UpdatedAt.After(result[j].UpdatedAt)
	})
	return result, nil
}

func (s *MemoryStore) DeleteSession(id string) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if _, ok := s.sessions[id]; !ok {
		return ErrNotFound
	}
	delete(s.sessions, id)
	delete(s.messages, id)
	delete(s.busy, id)
	return nil
}

func (s *MemoryStore) GetMessages(sessionID string) ([]*llm.Message, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if _, ok := s.sessions[sessionID]; !ok {
		return nil, ErrNotFound
	}

	msgs := s.messages[sessionID]
	result := make([]*llm.Message, len(msgs))
	for i, msg := range msgs {
		copied := *msg
		result[i] = &copied
	}
	return result, nil
}

func (s *MemoryStore) AppendMessage(sessionID string, msg *llm.Message) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	sess, ok := s.sessions[sessionID]
	if !ok {
		return ErrNotFound
	}

	if msg.ID == "" {
		msg.ID = uuid.NewString()
	}
	if msg.Timestamp.IsZero() {
		msg.Timestamp = time.Now()
	}

	copied := *msg
	s.messages[sessionID] = append(s.messages[sessionID], &copied)
	sess.UpdatedAt = time.Now()
	return nil
}

func (s *MemoryStore) TryBeginTurn(sessionID string) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if _, ok := s.sessions[sessionID]; !ok {
		return ErrNotFound
	}
	if s.busy[sessionID] {
		return ErrTurnInFlight
	}
	s.busy[sessionID] = true
	return nil
}

func (s *MemoryStore) EndTurn(sessionID string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	delete(s.busy, sessionID)
}

func (s *MemoryStore) Close() error {
	return nil
}

func cloneSession(sess *Session) *Session {
	copied := *sess
	return &copied
}
