package logging

import (
	"context"
	"fmt"
	"io"
	"log/slog"
	"strings"
	"sync"

	"github.com/fatih/color"
)

var (
	levelColors = map[slog.Level]*color.Color{
		slog.LevelDebug: color.New(color.FgHiBlack),
		slog.LevelInfo:  color.New(color.FgCyan),
		slog.LevelWarn:  color.New(color.FgYellow),
		slog.LevelError: color.New(color.FgRed, color.Bold),
	}
	keyColor  = color.New(color.FgHiBlack)
	timeColor = color.New(color.FgHiBlack)
)

// PrettyHandler renders records as one coloured line:
//
//	15:04:05 INFO  message key=value ...
type PrettyHandler struct {
	opts   slog.HandlerOptions
	attrs  []slog.Attr
	groups []string

	mu *sync.Mutex
	w  io.Writer
}

// NewPrettyHandler creates a PrettyHandler. Colour follows fatih/color's
// terminal detection, so redirected output stays plain.
func NewPrettyHandler(w io.Writer, opts *slog.HandlerOptions) *PrettyHandler {
	h := &PrettyHandler{w: w, mu: &sync.Mutex{}}
	if opts != nil {
		h.opts = *opts
	}
	return h
}

func (h *PrettyHandler) Enabled(_ context.Context, level slog.Level) bool {
	minLevel := slog.LevelInfo
	if h.opts.Level != nil {
		minLevel = h.opts.Level.Level()
	}
	return level >= minLevel
}

func (h *PrettyHandler) Handle(_ context.Context, r slog.Record) error {
	var b strings.Builder
	if !r.Time.IsZero() {
		b.WriteString(timeColor.Sprint(r.Time.Format("15:04:05")))
		b.WriteByte(' ')
	}
	b.WriteString(levelColor(r.Level).Sprintf("%-5s", r.Level.String()))
	b.WriteByte(' ')
	b.WriteString(r.Message)

	prefix := strings.Join(h.groups, ".")
	for _, a := range h.attrs {
		writeAttr(&b, "", a)
	}
	r.Attrs(func(a slog.Attr) bool {
		writeAttr(&b, prefix, a)
		return true
	})
	b.WriteByte('\n')

	h.mu.Lock()
	defer h.mu.Unlock()
	_, err := io.WriteString(h.w, b.String())
	return err
}

func (h *PrettyHandler) WithAttrs(attrs []slog.Attr) slog.Handler {
	next := *h
	prefix := strings.Join(h.groups, ".")
	next.attrs = append([]slog.Attr{}, h.attrs...)
	for _, a := range attrs {
		if prefix != "" {
			a.Key = prefix + "." + a.Key
		}
		next.attrs = append(next.attrs, a)
	}
	return &next
}

func (h *PrettyHandler) WithGroup(name string) slog.Handler {
	if name == "" {
		return h
	}
	next := *h
	next.groups = append(append([]string{}, h.groups...), name)
	return &next
}

func levelColor(l slog.Level) *color.Color {
	switch {
	case l >= slog.LevelError:
		return levelColors[slog.LevelError]
	case l >= slog.LevelWarn:
		return levelColors[slog.LevelWarn]
	case l >= slog.LevelInfo:
		return levelColors[slog.LevelInfo]
	default:
		return levelColors[slog.LevelDebug]
	}
}

func writeAttr(b *strings.Builder, prefix string, a slog.Attr) {
	a.Value = a.Value.Resolve()
	if a.Equal(slog.Attr{}) {
		return
	}
	key := a.Key
	if prefix != "" {
		key = prefix + "." + key
	}
	if a.Value.Kind() == slog.KindGroup {
		for _, ga := range a.Value.Group() {
			writeAttr(b, key, ga)
		}
		return
	}
	b.WriteByte(' ')
	b.WriteString(keyColor.Sprint(key + "="))
	val := a.Value.String()
	if strings.ContainsAny(val, " \t\n\"") {
		val = fmt.Sprintf("%q", val)
	}
	b.WriteString(val)
}
