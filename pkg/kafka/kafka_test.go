package kafka

import (
	"context"
	"testing"

	"github.com/Adithya-Monish-Kumar-K/searchcore/pkg/logger"
)

type payload struct {
	ID   int64  `json:"id"`
	Name string `json:"name"`
}

func TestEncodeCarriesRequestID(t *testing.T) {
	ctx := logger.WithRequestID(context.Background(), "req-1")
	msg, err := encode(ctx, Event{Key: "42", Value: payload{ID: 42, Name: "x"}})
	if err != nil {
		t.Fatal(err)
	}
	if string(msg.Key) != "42" || string(msg.Value) != `{"id":42,"name":"x"}` {
		t.Fatalf("message = %s / %s", msg.Key, msg.Value)
	}
	if len(msg.Headers) != 1 || msg.Headers[0].Key != requestIDHeader || string(msg.Headers[0].Value) != "req-1" {
		t.Fatalf("headers = %+v", msg.Headers)
	}

	msg, err = encode(context.Background(), Event{Key: "1", Value: 1})
	if err != nil {
		t.Fatal(err)
	}
	if len(msg.Headers) != 0 {
		t.Fatalf("unexpected headers %+v", msg.Headers)
	}
}

func TestEncodeRejectsUnmarshalable(t *testing.T) {
	if _, err := encode(context.Background(), Event{Value: make(chan int)}); err == nil {
		t.Fatal("expected an error")
	}
}

func TestDecodeJSON(t *testing.T) {
	got, err := DecodeJSON[payload]([]byte(`{"id":7,"name":"seven"}`))
	if err != nil || got.ID != 7 || got.Name != "seven" {
		t.Fatalf("DecodeJSON = %+v, %v", got, err)
	}
	if _, err := DecodeJSON[payload]([]byte(`{`)); err == nil {
		t.Fatal("expected an error for truncated JSON")
	}
}

func TestMessageContext(t *testing.T) {
	ctx := Message{RequestID: "abc"}.Context(context.Background())
	if logger.RequestID(ctx) != "abc" {
		t.Fatalf("request id = %q", logger.RequestID(ctx))
	}
	if logger.RequestID(Message{}.Context(context.Background())) != "" {
		t.Fatal("empty message set a request id")
	}
}

func TestHandlerFunc(t *testing.T) {
	var seen []int64
	var h Handler = HandlerFunc(func(_ context.Context, m Message) error {
		seen = append(seen, m.Offset)
		return nil
	})
	for i := range 3 {
		if err := h.Handle(context.Background(), Message{Offset: int64(i)}); err != nil {
			t.Fatal(err)
		}
	}
	if err := h.Flush(context.Background()); err != nil {
		t.Fatal(err)
	}
	if len(seen) != 3 || seen[2] != 2 {
		t.Fatalf("seen = %v", seen)
	}
}
