// ABOUTME: Tests for message transports
// ABOUTME: Covers pipe ordering and close semantics and the WebSocket transport
package protocol

import (
	"context"
	"errors"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/gorilla/websocket"
)

func receive(t *testing.T, tr Transport) Message {
	t.Helper()
	select {
	case msg, ok := <-tr.Messages():
		if !ok {
			t.Fatal("transport closed unexpectedly")
		}
		return msg
	case <-time.After(2 * time.Second):
		t.Fatal("timed out waiting for message")
	}
	return Message{}
}

func TestPipeOrdering(t *testing.T) {
	a, b := Pipe()
	defer a.Close()

	for i := 0; i < 10; i++ {
		if err := a.Send(NewMessage(TypeTick, TickPayload{Time: int64(i)})); err != nil {
			t.Fatalf("send %d failed: %v", i, err)
		}
	}

	for i := 0; i < 10; i++ {
		var tick TickPayload
		if err := DecodePayload(receive(t, b), &tick); err != nil {
			t.Fatalf("decode failed: %v", err)
		}
		if tick.Time != int64(i) {
			t.Errorf("expected message %d, got %d", i, tick.Time)
		}
	}

	// Reverse direction
	if err := b.Send(NewMessage(TypeSync, nil)); err != nil {
		t.Fatalf("send failed: %v", err)
	}
	if msg := receive(t, a); msg.Type != TypeSync {
		t.Errorf("expected sync, got %s", msg.Type)
	}
}

func TestPipeClose(t *testing.T) {
	a, b := Pipe()

	if err := b.Close(); err != nil {
		t.Fatalf("close failed: %v", err)
	}
	if err := b.Close(); err != nil {
		t.Errorf("second close should be a no-op, got %v", err)
	}

	if err := a.Send(NewMessage(TypeStart, nil)); !errors.Is(err, ErrClosed) {
		t.Errorf("expected ErrClosed from peer, got %v", err)
	}
	if err := b.Send(NewMessage(TypeStart, nil)); !errors.Is(err, ErrClosed) {
		t.Errorf("expected ErrClosed from closed end, got %v", err)
	}

	if _, ok := <-a.Messages(); ok {
		t.Error("expected peer receive channel to be closed")
	}
	if _, ok := <-b.Messages(); ok {
		t.Error("expected receive channel to be closed")
	}
}

func TestPipeCloseUnblocksSender(t *testing.T) {
	a, b := Pipe()

	// Fill the peer's buffer so the next send blocks
	for i := 0; i < pipeBuffer; i++ {
		if err := a.Send(NewMessage(TypeTick, nil)); err != nil {
			t.Fatalf("send %d failed: %v", i, err)
		}
	}

	result := make(chan error, 1)
	go func() {
		result <- a.Send(NewMessage(TypeTick, nil))
	}()

	time.Sleep(20 * time.Millisecond)
	b.Close()

	select {
	case err := <-result:
		if !errors.Is(err, ErrClosed) {
			t.Errorf("expected ErrClosed, got %v", err)
		}
	case <-time.After(2 * time.Second):
		t.Fatal("blocked sender was not released by Close")
	}
}

// echoServer upgrades and echoes every message back with type "echo:<type>"
func echoServer(t *testing.T) *httptest.Server {
	upgrader := websocket.Upgrader{}
	return httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		conn, err := upgrader.Upgrade(w, r, nil)
		if err != nil {
			t.Errorf("upgrade failed: %v", err)
			return
		}
		tr := NewWSTransport(conn, nil)
		defer tr.Close()

		for msg := range tr.Messages() {
			msg.Type = "echo:" + msg.Type
			if err := tr.Send(msg); err != nil {
				return
			}
		}
	}))
}

func TestWSTransportRoundTrip(t *testing.T) {
	server := echoServer(t)
	defer server.Close()

	wsURL := "ws" + strings.TrimPrefix(server.URL, "http")
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	tr, err := Dial(ctx, wsURL, nil)
	if err != nil {
		t.Fatalf("dial failed: %v", err)
	}
	defer tr.Close()

	if err := tr.Send(NewMessage(TypeSynced, SyncedPayload{Offset: 42.5, ServerTime: 1706500000000})); err != nil {
		t.Fatalf("send failed: %v", err)
	}

	msg := receive(t, tr)
	if msg.Type != "echo:synced" {
		t.Errorf("expected echo:synced, got %s", msg.Type)
	}

	var synced SyncedPayload
	if err := DecodePayload(msg, &synced); err != nil {
		t.Fatalf("decode failed: %v", err)
	}
	if synced.Offset != 42.5 || synced.ServerTime != 1706500000000 {
		t.Errorf("unexpected payload %+v", synced)
	}
}

func TestWSTransportClose(t *testing.T) {
	server := echoServer(t)
	defer server.Close()

	tr, err := Dial(context.Background(), "ws"+strings.TrimPrefix(server.URL, "http"), nil)
	if err != nil {
		t.Fatalf("dial failed: %v", err)
	}

	tr.Close()

	if err := tr.Send(NewMessage(TypeStart, nil)); !errors.Is(err, ErrClosed) {
		t.Errorf("expected ErrClosed after close, got %v", err)
	}

	select {
	case _, ok := <-tr.Messages():
		if ok {
			t.Error("expected receive channel to be closed")
		}
	case <-time.After(2 * time.Second):
		t.Fatal("receive channel not closed after Close")
	}
}

func TestDialFailure(t *testing.T) {
	server := httptest.NewServer(http.NotFoundHandler())
	defer server.Close()

	if _, err := Dial(context.Background(), "ws"+strings.TrimPrefix(server.URL, "http"), nil); err == nil {
		t.Error("expected dial to fail against a non-WebSocket endpoint")
	}
}
