package logger

import (
	"context"
	"fmt"
	"log/slog"
	"strings"
)

// NewSlogHandler adapts a Logger into a slog.Handler so dependencies that
// log through log/slog share the same sink and level gate. Returns nil for
// a nil logger.
func NewSlogHandler(l *Logger) slog.Handler {
	if l == nil {
		return nil
	}
	return &slogHandler{log: l}
}

type slogHandler struct {
	log    *Logger
	groups []string
	attrs  []slog.Attr
}

func (h *slogHandler) Enabled(_ context.Context, level slog.Level) bool {
	return levelFromSlog(level) >= h.log.GetLevel()
}

func (h *slogHandler) Handle(_ context.Context, record slog.Record) error {
	attrs := make([]slog.Attr, 0, len(h.attrs)+record.NumAttrs())
	attrs = append(attrs, h.attrs...)
	record.Attrs(func(attr slog.Attr) bool {
		attrs = append(attrs, attr)
		return true
	})

	msg := record.Message
	if rendered := renderAttrs(h.groups, attrs); rendered != "" {
		if msg == "" {
			msg = rendered
		} else {
			msg += " " + rendered
		}
	}

	h.log.log(levelFromSlog(record.Level), "%s", msg)
	return nil
}

func (h *slogHandler) WithAttrs(attrs []slog.Attr) slog.Handler {
	merged := make([]slog.Attr, 0, len(h.attrs)+len(attrs))
	merged = append(merged, h.attrs...)
	merged = append(merged, attrs...)
	return &slogHandler{log: h.log, groups: h.groups, attrs: merged}
}

func (h *slogHandler) WithGroup(name string) slog.Handler {
	if name == "" {
		return h
	}
	groups := make([]string, 0, len(h.groups)+1)
	groups = append(groups, h.groups...)
	groups = append(groups, name)
	return &slogHandler{log: h.log, groups: groups, attrs: h.attrs}
}

func levelFromSlog(level slog.Level) Level {
	switch {
	case level >= slog.LevelError:
		return LevelError
	case level >= slog.LevelWarn:
		return LevelWarn
	case level >= slog.LevelInfo:
		return LevelInfo
	default:
		return LevelDebug
	}
}

// renderAttrs flattens attrs into "key=value" pairs, joining group names
// into dotted key prefixes.
func renderAttrs(groups []string, attrs []slog.Attr) string {
	var b strings.Builder
	for _, attr := range attrs {
		writeAttr(&b, groups, attr)
	}
	return b.String()
}

func writeAttr(b *strings.Builder, groups []string, attr slog.Attr) {
	if attr.Equal(slog.Attr{}) {
		return
	}

	if attr.Value.Kind() == slog.KindGroup {
		nested := groups
		if attr.Key != "" {
			nested = append(append([]string(nil), groups...), attr.Key)
		}
		for _, member := range attr.Value.Group() {
			writeAttr(b, nested, member)
		}
		return
	}

	if attr.Key == "" {
		return
	}
	if b.Len() > 0 {
		b.WriteByte(' ')
	}
	key := attr.Key
	if len(groups) > 0 {
		key = strings.Join(groups, ".") + "." + key
	}
	fmt.Fprintf(b, "%s=%v", key, attr.Value)
}
