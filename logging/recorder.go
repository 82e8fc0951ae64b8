package logging

import (
	"context"
	"log/slog"
	"sync"
	"time"
)

// Entry is a single recorded log record.
type Entry struct {
	Time       time.Time
	Level      slog.Level
	Message    string
	Attributes map[string]any
}

// Recorder is an slog.Handler that keeps every record it sees, optionally
// passing them on to another handler.
type Recorder struct {
	next  slog.Handler
	attrs []slog.Attr
	sink  *entrySink
}

type entrySink struct {
	mu      sync.Mutex
	entries []Entry
}

// NewRecorder returns a Recorder. next may be nil.
func NewRecorder(next slog.Handler) *Recorder {
	return &Recorder{next: next, sink: &entrySink{}}
}

// Enabled records every level regardless of next.
func (r *Recorder) Enabled(context.Context, slog.Level) bool {
	return true
}

// Handle records the entry, then passes it to next if next accepts the level.
func (r *Recorder) Handle(ctx context.Context, rec slog.Record) error {
	entry := Entry{
		Time:       rec.Time,
		Level:      rec.Level,
		Message:    rec.Message,
		Attributes: make(map[string]any, rec.NumAttrs()+len(r.attrs)),
	}
	for _, a := range r.attrs {
		entry.Attributes[a.Key] = resolveValue(a.Value)
	}
	rec.Attrs(func(a slog.Attr) bool {
		entry.Attributes[a.Key] = resolveValue(a.Value)
		return true
	})

	r.sink.mu.Lock()
	r.sink.entries = append(r.sink.entries, entry)
	r.sink.mu.Unlock()

	if r.next != nil && r.next.Enabled(ctx, rec.Level) {
		return r.next.Handle(ctx, rec)
	}
	return nil
}

// WithAttrs returns a Recorder sharing the same entries.
func (r *Recorder) WithAttrs(attrs []slog.Attr) slog.Handler {
	merged := make([]slog.Attr, 0, len(r.attrs)+len(attrs))
	merged = append(merged, r.attrs...)
	merged = append(merged, attrs...)

	var next slog.Handler
	if r.next != nil {
		next = r.next.WithAttrs(attrs)
	}
	return &Recorder{next: next, attrs: merged, sink: r.sink}
}

// WithGroup returns a Recorder sharing the same entries. Group names are
// passed to next but not reflected in recorded attribute keys.
func (r *Recorder) WithGroup(name string) slog.Handler {
	var next slog.Handler
	if r.next != nil {
		next = r.next.WithGroup(name)
	}
	return &Recorder{next: next, attrs: r.attrs, sink: r.sink}
}

// Entries returns a copy of everything recorded so far.
func (r *Recorder) Entries() []Entry {
	r.sink.mu.Lock()
	defer r.sink.mu.Unlock()
	out := make([]Entry, len(r.sink.entries))
	copy(out, r.sink.entries)
	return out
}

// Has reports whether a record with the given level and message was seen.
func (r *Recorder) Has(level slog.Level, msg string) bool {
	for _, e := range r.Entries() {
		if e.Level == level && e.Message == msg {
			return true
		}
	}
	return false
}

// Reset discards all recorded entries.
func (r *Recorder) Reset() {
	r.sink.mu.Lock()
	r.sink.entries = nil
	r.sink.mu.Unlock()
}

// resolveValue converts a slog.Value to a plain Go value. Errors become
// their message.
func resolveValue(v slog.Value) any {
	v = v.Resolve()
	switch v.Kind() {
	case slog.KindString:
		return v.String()
	case slog.KindInt64:
		return v.Int64()
	case slog.KindUint64:
		return v.Uint64()
	case slog.KindFloat64:
		return v.Float64()
	case slog.KindBool:
		return v.Bool()
	case slog.KindDuration:
		return v.Duration().String()
	case slog.KindTime:
		return v.Time()
	case slog.KindGroup:
		attrs := v.Group()
		group := make(map[string]any, len(attrs))
		for _, a := range attrs {
			group[a.Key] = resolveValue(a.Value)
		}
		return group
	default:
		if err, ok := v.Any().(error); ok {
			return err.Error()
		}
		return v.Any()
	}
}
