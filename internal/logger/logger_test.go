package logger

import (
	"bytes"
	"log/slog"
	"os"
	"path/filepath"
	"strings"
	"testing"
)

func TestParseLevel(t *testing.T) {
	tests := map[string]Level{
		"debug":   LevelDebug,
		"INFO":    LevelInfo,
		"warning": LevelWarn,
		"ERROR":   LevelError,
		"none":    LevelNone,
		"bogus":   LevelInfo,
		"":        LevelInfo,
	}
	for input, want := range tests {
		if got := ParseLevel(input); got != want {
			t.Errorf("ParseLevel(%q) = %s, want %s", input, got, want)
		}
	}
}

func TestEmptyPathWritesToStderr(t *testing.T) {
	l, err := New(LevelInfo, "")
	if err != nil {
		t.Fatalf("New failed: %v", err)
	}
	if l.out.Writer() != os.Stderr {
		t.Fatal("logger without a file path should write to stderr, not discard output")
	}
	if l.GetLevel() != LevelInfo {
		t.Fatalf("got level %s, want info", l.GetLevel())
	}
}

func TestLevelFiltering(t *testing.T) {
	var buf bytes.Buffer
	l := newWithWriter(LevelWarn, &buf)

	l.Debug("quiet")
	l.Info("quiet")
	l.Warn("loud warning")
	l.Error("loud error")

	out := buf.String()
	if strings.Contains(out, "quiet") {
		t.Fatalf("messages below the level leaked through: %q", out)
	}
	if !strings.Contains(out, "[WARN] loud warning") || !strings.Contains(out, "[ERROR] loud error") {
		t.Fatalf("expected warn and error lines, got %q", out)
	}
}

func TestLevelNoneSuppressesEverything(t *testing.T) {
	var buf bytes.Buffer
	l := newWithWriter(LevelNone, &buf)

	l.Error("boom")

	if buf.Len() != 0 {
		t.Fatalf("LevelNone should emit nothing, got %q", buf.String())
	}
}

func TestFileSink(t *testing.T) {
	path := filepath.Join(t.TempDir(), "logs", "playground.log")

	l, err := New(LevelInfo, path)
	if err != nil {
		t.Fatalf("New failed: %v", err)
	}
	l.Info("provider %s ready", "openai")
	if err := l.Close(); err != nil {
		t.Fatalf("close failed: %v", err)
	}

	data, err := os.ReadFile(path)
	if err != nil {
		t.Fatalf("failed to read log file: %v", err)
	}
	if !strings.Contains(string(data), "[INFO] provider openai ready") {
		t.Fatalf("log line missing from file: %q", data)
	}
}

func TestSlogHandlerForwardsRecords(t *testing.T) {
	var buf bytes.Buffer
	l := newWithWriter(LevelDebug, &buf)

	log := slog.New(NewSlogHandler(l))
	log.Info("completion done", "provider", "openai", "tokens", 42)

	out := buf.String()
	if !strings.Contains(out, "[INFO] completion done") {
		t.Fatalf("message missing: %q", out)
	}
	if !strings.Contains(out, "provider=openai") || !strings.Contains(out, "tokens=42") {
		t.Fatalf("attrs missing: %q", out)
	}
}

func TestSlogHandlerGroupsPrefixKeys(t *testing.T) {
	var buf bytes.Buffer
	l := newWithWriter(LevelDebug, &buf)

	log := slog.New(NewSlogHandler(l)).WithGroup("req")
	log.Warn("slow request", "tokens", 42)

	if !strings.Contains(buf.String(), "req.tokens=42") {
		t.Fatalf("group prefix missing: %q", buf.String())
	}
}

func TestSlogHandlerRespectsLevel(t *testing.T) {
	var buf bytes.Buffer
	l := newWithWriter(LevelError, &buf)

	log := slog.New(NewSlogHandler(l))
	log.Info("chatty")

	if buf.Len() != 0 {
		t.Fatalf("info record should be gated at error level, got %q", buf.String())
	}
}

func TestNewSlogHandlerNilLogger(t *testing.T) {
	if NewSlogHandler(nil) != nil {
		t.Fatal("nil logger should yield a nil handler")
	}
}
