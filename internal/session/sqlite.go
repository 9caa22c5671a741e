package session

import (
	"database/sql"
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"sync"
	"time"

	"github.com/google/uuid"
	_ "github.com/mattn/go-sqlite3"

	"github.com/jyasuu/llm-playground/internal/llm"
)

// SQLiteStore persists sessions and messages in a SQLite database. Function
// calls and responses are stored as JSON columns since they are opaque to
// the storage layer. The turn guard is process-local: a restart clears it.
type SQLiteStore struct {
	db *sql.DB

	mu   sync.Mutex
	busy map[string]bool
}

func NewSQLiteStore(dbPath string) (*SQLiteStore, error) {
	if err := os.MkdirAll(filepath.Dir(dbPath), 0755); err != nil {
		return nil, fmt.Errorf("failed to create database directory: %w", err)
	}

	db, err := sql.Open("sqlite3", dbPath)
	if err != nil {
		return nil, fmt.Errorf("failed to open database: %w", err)
	}

	if _, err := db.Exec("PRAGMA foreign_keys = ON"); err != nil {
		db.Close()
		return nil, fmt.Errorf("failed to enable foreign keys: %w", err)
	}

	store := &SQLiteStore{db: db, busy: make(map[string]bool)}
	if err := store.migrate(); err != nil {
		db.Close()
		return nil, fmt.Errorf("failed to initialize schema: %w", err)
	}

	return store, nil
}

func (s *SQLiteStore) migrate() error {
	schema := `
	CREATE TABLE IF NOT EXISTS sessions (
		id TEXT PRIMARY KEY,
		title TEXT NOT NULL,
		created_at DATETIME NOT NULL,
		updated_at DATETIME NOT NULL
	);

	CREATE TABLE IF NOT EXISTS messages (
		id TEXT PRIMARY KEY,
		session_id TEXT NOT NULL,
		seq INTEGER NOT NULL,
		role TEXT NOT NULL,
		content TEXT NOT NULL DEFAULT '',
		function_calls TEXT,
		function_responses TEXT,
		created_at DATETIME NOT NULL,
		FOREIGN KEY (session_id) REFERENCES sessions(id) ON DELETE CASCADE
	);

	CREATE INDEX IF NOT EXISTS idx_messages_session_seq ON messages(session_id, seq);
	`

	_, err := s.db.Exec(schema)
	return err
}

func (s *SQLiteStore) Close() error {
	return s.db.Close()
}

func (s *SQLiteStore) CreateSession(title string) (*Session, error) {
	now := time.Now().UTC()
	sess := &Session{
		ID:        uuid.NewString(),
		Title:     title,
		CreatedAt: now,
		UpdatedAt: now,
	}

	_, err := s.db.Exec(
		"INSERT INTO sessions (id, title, created_at, updated_at) VALUES (?, ?, ?, ?)",
		sess.ID, sess.Title, sess.CreatedAt, sess.UpdatedAt,
	)
	if err != nil {
		return nil, fmt.Errorf("failed to create session: %w", err)
	}
	return sess, nil
}

func (s *SQLiteStore) GetSession(id string) (*Session, error) {
	row := s.db.QueryRow("SELECT id, title, created_at, updated_at FROM sessions WHERE id = ?", id)

	var sess Session
	if err := row.Scan(&sess.ID, &sess.Title, &sess.CreatedAt, &sess.UpdatedAt); err != nil {
		if err == sql.ErrNoRows {
			return nil, ErrNotFound
		}
		return nil, fmt.Errorf("failed to load session: %w", err)
	}
	return &sess, nil
}

func (s *SQLiteStore) ListSessions() ([]*Session, error) {
	rows, err := s.db.Query("SELECT id, title, created_at, updated_at FROM sessions ORDER BY updated_at DESC")
	if err != nil {
		return nil, fmt.Errorf("failed to list sessions: %w", err)
	}
	defer rows.Close()

	var result []*Session
	for rows.Next() {
		var sess Session
		if err := rows.Scan(&sess.ID, &sess.Title, &sess.CreatedAt, &sess.UpdatedAt); err != nil {
			return nil, fmt.Errorf("failed to scan session: %w", err)
		}
		result = append(result, &sess)
	}
	return result, rows.Err()
}

func (s *SQLiteStore) DeleteSession(id string) error {
	result, err := s.db.Exec("DELETE FROM sessions WHERE id = ?", id)
	if err != nil {
		return fmt.Errorf("failed to delete session: %w", err)
	}
	affected, err := result.RowsAffected()
	if err != nil {
		return err
	}
	if affected == 0 {
		return ErrNotFound
	}

	s.mu.Lock()
	delete(s.busy, id)
	s.mu.Unlock()
	return nil
}

func (s *SQLiteStore) GetMessages(sessionID string) ([]*llm.Message, error) {
	if _, err := s.GetSession(sessionID); err != nil {
		return nil, err
	}

	rows, err := s.db.Query(
		"SELECT id, role, content, function_calls, function_responses, created_at FROM messages WHERE session_id = ? ORDER BY seq ASC",
		sessionID,
	)
	if err != nil {
		return nil, fmt.Errorf("failed to load messages: %w", err)
	}
	defer rows.Close()

	var result []*llm.Message
	for rows.Next() {
		var (
			msg           llm.Message
			role          string
			callsJSON     sql.NullString
			responsesJSON sql.NullString
		)
		if err := rows.Scan(&msg.ID, &role, &msg.Content, &callsJSON, &responsesJSON, &msg.Timestamp); err != nil {
			return nil, fmt.Errorf("failed to scan message: %w", err)
		}
		msg.Role = llm.Role(role)

		if callsJSON.Valid && callsJSON.String != "" {
			if err := json.Unmarshal([]byte(callsJSON.String), &msg.FunctionCalls); err != nil {
				return nil, fmt.Errorf("corrupt function_calls for message %s: %w", msg.ID, err)
			}
		}
		if responsesJSON.Valid && responsesJSON.String != "" {
			if err := json.Unmarshal([]byte(responsesJSON.String), &msg.FunctionResponses); err != nil {
				return nil, fmt.Errorf("corrupt function_responses for message %s: %w", msg.ID, err)
			}
		}

		result = append(result, &msg)
	}
	return result, rows.Err()
}

func (s *SQLiteStore) AppendMessage(sessionID string, msg *llm.Message) error {
	if _, err := s.GetSession(sessionID); err != nil {
		return err
	}

	if msg.ID == "" {
		msg.ID = uuid.NewString()
	}
	if msg.Timestamp.IsZero() {
		msg.Timestamp = time.Now().UTC()
	}

	var callsJSON, responsesJSON any
	if len(msg.FunctionCalls) > 0 {
		encoded, err := json.Marshal(msg.FunctionCalls)
		if err != nil {
			return fmt.Errorf("failed to encode function calls: %w", err)
		}
		callsJSON = string(encoded)
	}
	if len(msg.FunctionResponses) > 0 {
		encoded, err := json.Marshal(msg.FunctionResponses)
		if err != nil {
			return fmt.Errorf("failed to encode function responses: %w", err)
		}
		responsesJSON = string(encoded)
	}

	tx, err := s.db.Begin()
	if err != nil {
		return fmt.Errorf("failed to begin transaction: %w", err)
	}
	defer tx.Rollback()

	_, err = tx.Exec(
		`INSERT INTO messages (id, session_id, seq, role, content, function_calls, function_responses, created_at)
		 VALUES (?, ?, (SELECT COALESCE(MAX(seq), 0) + 1 FROM messages WHERE session_id = ?), ?, ?, ?, ?, ?)`,
		msg.ID, sessionID, sessionID, string(msg.Role), msg.Content, callsJSON, responsesJSON, msg.Timestamp,
	)
	if err != nil {
		return fmt.Errorf("failed to append message: %w", err)
	}

	if _, err := tx.Exec("UPDATE sessions SET updated_at = ? WHERE id = ?", time.Now().UTC(), sessionID); err != nil {
		return fmt.Errorf("failed to touch session: %w", err)
	}

	return tx.Commit()
}

func (s *SQLiteStore) TryBeginTurn(sessionID string) error {
	if _, err := s.GetSession(sessionID); err != nil {
		return err
	}

	s.mu.Lock()
	defer s.mu.Unlock()
	if s.busy[sessionID] {
		return ErrTurnInFlight
	}
	s.busy[sessionID] = true
	return nil
}

func (s *SQLiteStore) EndTurn(sessionID string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	delete(s.busy, sessionID)
}
