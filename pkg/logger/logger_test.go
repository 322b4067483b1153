package logger

import (
	"bytes"
	"context"
	"encoding/json"
	"log/slog"
	"testing"
)

func TestFromContextCarriesRequestID(t *testing.T) {
	prev := slog.Default()
	t.Cleanup(func() { slog.SetDefault(prev) })

	var buf bytes.Buffer
	SetupWriter(&buf, "debug", "json")
	ctx := WithRequestID(context.Background(), "req-42")
	FromContext(ctx).Debug("searched", "query", "godfather")

	var rec map[string]any
	if err := json.Unmarshal(buf.Bytes(), &rec); err != nil {
		t.Fatalf("decoding %q: %v", buf.String(), err)
	}
	if rec["request_id"] != "req-42" || rec["query"] != "godfather" || rec["level"] != "DEBUG" {
		t.Fatalf("record = %v", rec)
	}

	buf.Reset()
	FromContext(context.Background()).Info("plain")
	if bytes.Contains(buf.Bytes(), []byte("request_id")) {
		t.Fatalf("request_id without one in context: %s", buf.String())
	}
}

func TestParseLevel(t *testing.T) {
	for in, want := range map[string]slog.Level{
		"debug": slog.LevelDebug,
		"warn":  slog.LevelWarn,
		"error": slog.LevelError,
		"info":  slog.LevelInfo,
		"":      slog.LevelInfo,
		"LOUD":  slog.LevelInfo,
	} {
		if got := ParseLevel(in); got != want {
			t.Errorf("ParseLevel(%q) = %v, want %v", in, got, want)
		}
	}
}

func TestSetupWriterTextFormat(t *testing.T) {
	prev := slog.Default()
	t.Cleanup(func() { slog.SetDefault(prev) })

	var buf bytes.Buffer
	SetupWriter(&buf, "warn", "text")
	slog.Info("hidden")
	slog.Warn("shown")
	if bytes.Contains(buf.Bytes(), []byte("hidden")) || !bytes.Contains(buf.Bytes(), []byte("msg=shown")) {
		t.Fatalf("output = %q", buf.String())
	}
}
