package tracing

import (
	"bytes"
	"context"
	"encoding/json"
	"log/slog"
	"strings"
	"testing"
)

func TestSpanTree(t *testing.T) {
	ctx, root := StartSpan(context.Background(), "search", "req-1")
	_, parse := StartChildSpan(ctx, "parse")
	parse.SetAttr("terms", 2)
	parse.SetAttr("terms", 3)
	parse.End()
	_, match := StartChildSpan(ctx, "match")
	match.End()
	root.End()

	if SpanFromContext(ctx) != root {
		t.Fatal("root not in context")
	}
	if len(root.Children) != 2 || parse.TraceID != "req-1" {
		t.Fatalf("children = %d, trace = %q", len(root.Children), parse.TraceID)
	}
	if v, ok := parse.Attr("terms"); !ok || v != int64(3) {
		t.Fatalf("terms = %v, %v", v, ok)
	}

	var buf bytes.Buffer
	l := slog.New(slog.NewJSONHandler(&buf, &slog.HandlerOptions{Level: slog.LevelDebug}))
	root.Log(ctx, l)
	lines := strings.Split(strings.TrimSpace(buf.String()), "\n")
	if len(lines) != 3 {
		t.Fatalf("logged %d records: %s", len(lines), buf.String())
	}
	var rec map[string]any
	if err := json.Unmarshal([]byte(lines[1]), &rec); err != nil {
		t.Fatal(err)
	}
	if rec["span"] != "parse" || rec["depth"] != float64(1) || rec["terms"] != float64(3) {
		t.Fatalf("record = %v", rec)
	}

	buf.Reset()
	root.Log(ctx, slog.New(slog.NewJSONHandler(&buf, nil)))
	if buf.Len() != 0 {
		t.Fatalf("logged at info level: %s", buf.String())
	}
}

func TestDetachedChild(t *testing.T) {
	_, span := StartChildSpan(context.Background(), "orphan")
	span.End()
	if span.TraceID != "" || span.Duration < 0 {
		t.Fatalf("span = %+v", span)
	}
}
