package logger

import (
	"fmt"
	"io"
	"log"
	"os"
	"path/filepath"
	"sync"
	"time"
)

// Level is the minimum severity a logger lets through.
type Level int

const (
	LevelDebug Level = iota
	LevelInfo
	LevelWarn
	LevelError
	// LevelNone is above every message severity and suppresses all output.
	LevelNone
)

func (l Level) String() string {
	switch l {
	case LevelDebug:
		return "DEBUG"
	case LevelInfo:
		return "INFO"
	case LevelWarn:
		return "WARN"
	case LevelError:
		return "ERROR"
	case LevelNone:
		return "NONE"
	default:
		return "UNKNOWN"
	}
}

// ParseLevel maps a config/flag string to a Level. Unrecognized values
// fall back to LevelInfo.
func ParseLevel(s string) Level {
	switch s {
	case "debug", "DEBUG":
		return LevelDebug
	case "info", "INFO":
		return LevelInfo
	case "warn", "WARN", "warning", "WARNING":
		return LevelWarn
	case "error", "ERROR":
		return LevelError
	case "none", "NONE":
		return LevelNone
	default:
		return LevelInfo
	}
}

// Logger writes timestamped, level-tagged lines to stderr or to a file.
// The level is fixed at construction; concurrent writes are serialized by
// the underlying log.Logger.
type Logger struct {
	level Level
	out   *log.Logger
	file  *os.File
}

var (
	globalLogger *Logger
	once         sync.Once
)

// Init sets up the process-wide logger. An empty logPath keeps output on
// stderr. Only the first call takes effect.
func Init(level Level, logPath string) error {
	var err error
	once.Do(func() {
		globalLogger, err = New(level, logPath)
	})
	return err
}

// New creates a logger writing to stderr, or to logPath when one is given.
// The file and its directory are created as needed; existing files are
// appended to.
func New(level Level, logPath string) (*Logger, error) {
	if logPath == "" {
		return newWithWriter(level, os.Stderr), nil
	}

	if err := os.MkdirAll(filepath.Dir(logPath), 0755); err != nil {
		return nil, fmt.Errorf("failed to create log directory: %w", err)
	}
	file, err := os.OpenFile(logPath, os.O_CREATE|os.O_WRONLY|os.O_APPEND, 0644)
	if err != nil {
		return nil, fmt.Errorf("failed to open log file: %w", err)
	}

	l := newWithWriter(level, file)
	l.file = file
	return l, nil
}

func newWithWriter(level Level, w io.Writer) *Logger {
	return &Logger{level: level, out: log.New(w, "", 0)}
}

// Global returns the process-wide logger. Before Init it falls back to an
// info-level stderr logger so early messages are never lost.
func Global() *Logger {
	if globalLogger == nil {
		globalLogger = newWithWriter(LevelInfo, os.Stderr)
	}
	return globalLogger
}

// GetLevel returns the minimum severity this logger emits.
func (l *Logger) GetLevel() Level {
	return l.level
}

func (l *Logger) log(level Level, format string, args ...any) {
	if level < l.level {
		return
	}

	timestamp := time.Now().Format("2006-01-02 15:04:05.000")
	l.out.Printf("%s [%s] %s", timestamp, level, fmt.Sprintf(format, args...))
}

func (l *Logger) Debug(format string, args ...any) {
	l.log(LevelDebug, format, args...)
}

func (l *Logger) Info(format string, args ...any) {
	l.log(LevelInfo, format, args...)
}

func (l *Logger) Warn(format string, args ...any) {
	l.log(LevelWarn, format, args...)
}

func (l *Logger) Error(format string, args ...any) {
	l.log(LevelError, format, args...)
}

// Close releases the log file, if any.
func (l *Logger) Close() error {
	if l.file != nil {
		return l.file.Close()
	}
	return nil
}

// Debug logs through the global logger.
func Debug(format string, args ...any) {
	Global().Debug(format, args...)
}

// Info logs through the global logger.
func Info(format string, args ...any) {
	Global().Info(format, args...)
}

// Warn logs through the global logger.
func Warn(format string, args ...any) {
	Global().Warn(format, args...)
}

// Error logs through the global logger.
func Error(format string, args ...any) {
	Global().Error(format, args...)
}
