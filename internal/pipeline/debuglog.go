package pipeline

import (
	"context"
	"log/slog"
	"sync"
)

// DebugLogEntry is one captured record from a debug-mode request, returned
// as part of the debug JSON wrapper (ss6, "captured log entries").
type DebugLogEntry struct {
	Level   string
	Message string
	Attrs   map[string]any
}

// ringLogHandler buffers the last N records in memory instead of writing
// them anywhere; it exists only to be read back out via Entries() once the
// request finishes (SUPPLEMENTED FEATURES: "Debug-mode log capture").
type ringLogHandler struct {
	mu      sync.Mutex
	entries []DebugLogEntry
	limit   int
}

func newRingLogHandler(limit int) *ringLogHandler {
	return &ringLogHandler{limit: limit}
}

func (h *ringLogHandler) Enabled(context.Context, slog.Level) bool { return true }

func (h *ringLogHandler) Handle(_ context.Context, r slog.Record) error {
	attrs := make(map[string]any, r.NumAttrs())
	r.Attrs(func(a slog.Attr) bool {
		attrs[a.Key] = a.Value.Any()
		return true
	})

	h.mu.Lock()
	defer h.mu.Unlock()
	h.entries = append(h.entries, DebugLogEntry{Level: r.Level.String(), Message: r.Message, Attrs: attrs})
	if len(h.entries) > h.limit {
		h.entries = h.entries[len(h.entries)-h.limit:]
	}
	return nil
}

func (h *ringLogHandler) WithAttrs([]slog.Attr) slog.Handler { return h }
func (h *ringLogHandler) WithGroup(string) slog.Handler      { return h }

func (h *ringLogHandler) Entries() []DebugLogEntry {
	h.mu.Lock()
	defer h.mu.Unlock()
	out := make([]DebugLogEntry, len(h.entries))
	copy(out, h.entries)
	return out
}

type debugLogKey struct{}

// WithDebugLogCapture attaches a ring-buffer log handler to ctx and returns
// both the new context and a logger bound to it; pair with DebugLogEntries
// to read the captured records back once the request finishes.
func WithDebugLogCapture(ctx context.Context, capacity int) (context.Context, *slog.Logger) {
	h := newRingLogHandler(capacity)
	ctx = context.WithValue(ctx, debugLogKey{}, h)
	return ctx, slog.New(h)
}

// DebugLogEntries returns the records captured by WithDebugLogCapture, or
// nil if the request's context was never wrapped with one.
func DebugLogEntries(ctx context.Context) []DebugLogEntry {
	h, ok := ctx.Value(debugLogKey{}).(*ringLogHandler)
	if !ok {
		return nil
	}
	return h.Entries()
}
