// Package tracing records in-process span trees carried through contexts.
// A finished tree is written to slog at debug level, one record per span.
package tracing

import (
	"context"
	"log/slog"
	"sync"
	"time"
)

type contextKey struct{}

// Span is a timed operation within a trace.
type Span struct {
	Name      string
	TraceID   string
	StartTime time.Time
	Duration  time.Duration
	Children  []*Span
	attrs     []slog.Attr
	mu        sync.Mutex
}

// StartSpan starts a root span and stores it in the returned context.
func StartSpan(ctx context.Context, name, traceID string) (context.Context, *Span) {
	span := &Span{Name: name, TraceID: traceID, StartTime: time.Now()}
	return context.WithValue(ctx, contextKey{}, span), span
}

// StartChildSpan starts a span under the one in ctx. Without a parent the
// span is a detached root.
func StartChildSpan(ctx context.Context, name string) (context.Context, *Span) {
	child := &Span{Name: name, StartTime: time.Now()}
	if parent := SpanFromContext(ctx); parent != nil {
		child.TraceID = parent.TraceID
		parent.mu.Lock()
		parent.Children = append(parent.Children, child)
		parent.mu.Unlock()
	}
	return context.WithValue(ctx, contextKey{}, child), child
}

// End records the span's duration.
func (s *Span) End() {
	s.mu.Lock()
	s.Duration = time.Since(s.StartTime)
	s.mu.Unlock()
}

// SetAttr attaches an attribute. Later values for a key win.
func (s *Span) SetAttr(key string, value any) {
	s.mu.Lock()
	defer s.mu.Unlock()
	for i := range s.attrs {
		if s.attrs[i].Key == key {
			s.attrs[i] = slog.Any(key, value)
			return
		}
	}
	s.attrs = append(s.attrs, slog.Any(key, value))
}

// Attr returns the value of an attribute.
func (s *Span) Attr(key string) (any, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	for _, a := range s.attrs {
		if a.Key == key {
			return a.Value.Any(), true
		}
	}
	return nil, false
}

// SpanFromContext returns the current span of ctx, or nil.
func SpanFromContext(ctx context.Context) *Span {
	span, _ := ctx.Value(contextKey{}).(*Span)
	return span
}

// Log writes the span tree to l at debug level.
func (s *Span) Log(ctx context.Context, l *slog.Logger) {
	if !l.Enabled(ctx, slog.LevelDebug) {
		return
	}
	s.log(ctx, l, 0)
}

func (s *Span) log(ctx context.Context, l *slog.Logger, depth int) {
	s.mu.Lock()
	attrs := append([]slog.Attr{
		slog.String("trace_id", s.TraceID),
		slog.String("span", s.Name),
		slog.Float64("duration_ms", float64(s.Duration.Microseconds())/1000),
		slog.Int("depth", depth),
	}, s.attrs...)
	children := append([]*Span(nil), s.Children...)
	s.mu.Unlock()
	l.LogAttrs(ctx, slog.LevelDebug, "span", attrs...)
	for _, child := range children {
		child.log(ctx, l, depth+1)
	}
}
