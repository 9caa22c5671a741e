// Package notify carries user-visible notifications from the engine to
// whatever frontend is attached. The engine only emits; sinks decide how to
// render or forward.
package notify

import (
	"sync"
	"time"

	"github.com/jyasuu/llm-playground/internal/logger"
)

// Severity classifies a notification for display purposes.
type Severity int

const (
	SeverityInfo Severity = iota
	SeverityWarning
	SeverityError
)

// String returns the string representation of the severity
func (s Severity) String() string {
	switch s {
	case SeverityInfo:
		return "info"
	case SeverityWarning:
		return "warning"
	case SeverityError:
		return "error"
	default:
		return "unknown"
	}
}

// Notification is a single user-visible message with a display duration hint.
type Notification struct {
	Text     string        `json:"text"`
	Severity Severity      `json:"severity"`
	Duration time.Duration `json:"duration_ms"`
	Time     time.Time     `json:"time"`
}

// Notifier receives notifications emitted by the engine.
type Notifier interface {
	Emit(text string, severity Severity, duration time.Duration)
}

// NopNotifier discards all notifications.
type NopNotifier struct{}

func (NopNotifier) Emit(string, Severity, time.Duration) {}

// LogNotifier writes notifications to the global logger.
type LogNotifier struct{}

func (LogNotifier) Emit(text string, severity Severity, duration time.Duration) {
	switch severity {
	case SeverityError:
		logger.Error("notification: %s", text)
	case SeverityWarning:
		logger.Warn("notification: %s", text)
	default:
		logger.Info("notification: %s", text)
	}
}

// Broadcaster fans notifications out to subscriber channels. Slow subscribers
// drop notifications rather than block the emitting turn.
type Broadcaster struct {
	mu   sync.Mutex
	subs map[chan Notification]struct{}
}

// NewBroadcaster creates an empty broadcaster.
func NewBroadcaster() *Broadcaster {
	return &Broadcaster{subs: make(map[chan Notification]struct{})}
}

// Subscribe registers a new subscriber channel and returns it with a cancel func.
func (b *Broadcaster) Subscribe() (<-chan Notification, func()) {
	ch := make(chan Notification, 16)

	b.mu.Lock()
	b.subs[ch] = struct{}{}
	b.mu.Unlock()

	cancel := func() {
		b.mu.Lock()
		if _, ok := b.subs[ch]; ok {
			delete(b.subs, ch)
			close(ch)
		}
		b.mu.Unlock()
	}
	return ch, cancel
}

// Emit implements Notifier.
func (b *Broadcaster) Emit(text string, severity Severity, duration time.Duration) {
	n := Notification{
		Text:     text,
		Severity: severity,
		Duration: duration,
		Time:     time.Now(),
	}

	b.mu.Lock()
	defer b.mu.Unlock()
	for ch := range b.subs {
		select {
		case ch <- n:
		default:
		}
	}
}

// Multi combines several notifiers into one.
type Multi []Notifier

func (m Multi) Emit(text string, severity Severity, duration time.Duration) {
	for _, n := range m {
		if n != nil {
			n.Emit(text, severity, duration)
		}
	}
}
