// Package logger builds the process slog.Logger.
//
// While the terminal is in raw mode a bare "\n" does not return the cursor to
// column zero, so the raw writer frames every line with "\r\n".
package logger

import (
	"bytes"
	"io"
	"log/slog"
	"strings"
	"sync"
)

// Options configures New.
type Options struct {
	// Level is one of debug, info, warn, error. Unknown values mean info.
	Level string
	// Raw translates line endings for a terminal in raw mode.
	Raw bool
	// JSON selects the JSON handler instead of the text handler.
	JSON bool
}

// New returns a logger writing to w.
func New(w io.Writer, opts Options) *slog.Logger {
	if opts.Raw {
		w = NewRawWriter(w)
	}
	handlerOpts := &slog.HandlerOptions{Level: ParseLevel(opts.Level)}
	if opts.JSON {
		return slog.New(slog.NewJSONHandler(w, handlerOpts))
	}
	return slog.New(slog.NewTextHandler(w, handlerOpts))
}

// Discard returns a logger that drops everything.
func Discard() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, &slog.HandlerOptions{Level: slog.LevelError + 1}))
}

// ParseLevel maps a level name to a slog.Level.
func ParseLevel(s string) slog.Level {
	switch strings.ToLower(strings.TrimSpace(s)) {
	case "debug":
		return slog.LevelDebug
	case "warn", "warning":
		return slog.LevelWarn
	case "error":
		return slog.LevelError
	default:
		return slog.LevelInfo
	}
}

// RawWriter rewrites "\n" as "\r\n". It is safe for concurrent use.
type RawWriter struct {
	w  io.Writer
	mu sync.Mutex
}

// NewRawWriter wraps w.
func NewRawWriter(w io.Writer) *RawWriter {
	return &RawWriter{w: w}
}

// Write translates p and writes it in one call. It reports len(p) on success.
func (r *RawWriter) Write(p []byte) (int, error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	out := make([]byte, 0, len(p)+bytes.Count(p, []byte{'\n'}))
	for i, b := range p {
		if b == '\n' && (i == 0 || p[i-1] != '\r') {
			out = append(out, '\r')
		}
		out = append(out, b)
	}
	if _, err := r.w.Write(out); err != nil {
		return 0, err
	}
	return len(p), nil
}
