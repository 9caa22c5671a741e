package session

import (
	"errors"
	"time"

	"github.com/jyasuu/llm-playground/internal/llm"
)

var (
	// ErrNotFound is returned when a session ID is unknown.
	ErrNotFound = errors.New("session not found")
	// ErrTurnInFlight is returned when a session already has an active turn.
	ErrTurnInFlight = errors.New("a turn is already in flight for this session")
)

// Session is a single conversation.
type Session struct {
	ID        string    `json:"id"`
	Title     string    `json:"title"`
	CreatedAt time.Time `json:"created_at"`
	UpdatedAt time.Time `json:"updated_at"`
}

// Store persists sessions and their append-only message history, and owns
// the per-session turn guard. Implementations must be safe for concurrent
// use.
type Store interface {
	CreateSession(title string) (*Session, error)
	GetSession(id string) (*Session, error)
	ListSessions() ([]*Session, error)
	DeleteSession(id string) error

	// GetMessages returns the session's messages in append order.
	GetMessages(sessionID string) ([]*llm.Message, error)
	// AppendMessage appends one message to the end of the history.
	AppendMessage(sessionID string, msg *llm.Message) error

	// TryBeginTurn atomically marks the session busy. It returns
	// ErrTurnInFlight when another turn holds the session.
	TryBeginTurn(sessionID string) error
	// EndTurn releases the session. Releasing an idle session is a no-op.
	EndTurn(sessionID string)

	Close() error
}
