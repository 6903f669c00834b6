package websocket

import (
	"context"
	"io"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/gorilla/websocket"
)

func testLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

func TestHubRegisterAndUnregister(t *testing.T) {
	hub := NewHub(testLogger())
	client := &Client{
		ID:   "client-1",
		Room: "room-1",
		Send: make(chan *Message, 1),
		Hub:  hub,
	}

	hub.registerClient(client)
	if hub.GetRoomSize("room-1") != 1 {
		t.Fatalf("expected room size 1")
	}

	hub.unregisterClient(client)
	if hub.GetRoomSize("room-1") != 0 {
		t.Fatalf("expected room to be empty")
	}
	if _, ok := <-client.Send; ok {
		t.Fatalf("expected send channel to be closed")
	}

	// A second unregister must not close the channel twice.
	hub.unregisterClient(client)
}

func TestHubBroadcastToRoom(t *testing.T) {
	hub := NewHub(testLogger())
	client := &Client{ID: "client-1", Room: "room-1", Send: make(chan *Message, 1), Hub: hub}
	other := &Client{ID: "client-2", Room: "room-2", Send: make(chan *Message, 1), Hub: hub}

	hub.registerClient(client)
	hub.registerClient(other)

	hub.broadcastToRoom(&BroadcastMessage{Room: "room-1", Message: &Message{Type: "ping"}})

	select {
	case received := <-client.Send:
		if received.Type != "ping" {
			t.Fatalf("expected ping message, got %q", received.Type)
		}
	default:
		t.Fatalf("expected message to be delivered")
	}

	select {
	case received := <-other.Send:
		t.Fatalf("client in another room received %q", received.Type)
	default:
	}
}

func TestHubBroadcastExcludesSender(t *testing.T) {
	hub := NewHub(testLogger())
	a := &Client{ID: "a", Room: "room", Send: make(chan *Message, 1), Hub: hub}
	b := &Client{ID: "b", Room: "room", Send: make(chan *Message, 1), Hub: hub}
	hub.registerClient(a)
	hub.registerClient(b)

	hub.broadcastToRoom(&BroadcastMessage{Room: "room", Message: &Message{Type: "chat"}, Exclude: a})

	if len(a.Send) != 0 {
		t.Fatalf("excluded client received a message")
	}
	if len(b.Send) != 1 {
		t.Fatalf("expected one message for b, got %d", len(b.Send))
	}
}

func TestHubDropsWhenClientBufferFull(t *testing.T) {
	hub := NewHub(testLogger())
	client := &Client{ID: "slow", Room: "room", Send: make(chan *Message, 1), Hub: hub}
	hub.registerClient(client)

	hub.broadcastToRoom(&BroadcastMessage{Room: "room", Message: &Message{Type: "first"}})
	hub.broadcastToRoom(&BroadcastMessage{Room: "room", Message: &Message{Type: "second"}})

	if got := (<-client.Send).Type; got != "first" {
		t.Fatalf("expected first message to survive, got %q", got)
	}
}

func TestClientSendMessage(t *testing.T) {
	client := &Client{ID: "c", Send: make(chan *Message, 1)}
	if err := client.SendMessage("hello", "world"); err != nil {
		t.Fatalf("SendMessage failed: %v", err)
	}
	if err := client.SendMessage("hello", "again"); err == nil {
		t.Fatalf("expected error when buffer is full")
	}
	<-client.Send
	client.closeSend()
	if err := client.SendMessage("hello", "closed"); err == nil {
		t.Fatalf("expected error on closed channel")
	}
}

func TestHubDeliversOverWebSocket(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	hub := NewHub(testLogger())
	go hub.Run(ctx)

	upgrader := websocket.Upgrader{}
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		conn, err := upgrader.Upgrade(w, r, nil)
		if err != nil {
			return
		}
		client := NewClient(hub, conn, "servers")
		hub.Register <- client
		go client.WritePump()
		client.ReadPump()
	}))
	defer srv.Close()

	conn, _, err := websocket.DefaultDialer.Dial("ws"+strings.TrimPrefix(srv.URL, "http"), nil)
	if err != nil {
		t.Fatalf("dial: %v", err)
	}
	defer conn.Close()

	deadline := time.Now().Add(5 * time.Second)
	for hub.GetRoomSize("servers") == 0 {
		if time.Now().After(deadline) {
			t.Fatalf("client never joined")
		}
		time.Sleep(10 * time.Millisecond)
	}

	hub.BroadcastToRoom("servers", NewMessage("server_status", map[string]any{"server_id": "alpha", "status": "running"}))

	conn.SetReadDeadline(time.Now().Add(5 * time.Second))
	var msg Message
	if err := conn.ReadJSON(&msg); err != nil {
		t.Fatalf("read: %v", err)
	}
	if msg.Type != "server_status" {
		t.Fatalf("expected server_status, got %q", msg.Type)
	}
	payload, ok := msg.Payload.(map[string]any)
	if !ok || payload["server_id"] != "alpha" {
		t.Fatalf("unexpected payload: %#v", msg.Payload)
	}

	cancel()
	conn.SetReadDeadline(time.Now().Add(5 * time.Second))
	for {
		if _, _, err := conn.ReadMessage(); err != nil {
			break
		}
	}
}

func TestBroadcastToRoomAfterStop(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	hub := NewHub(testLogger())
	done := make(chan struct{})
	go func() {
		hub.Run(ctx)
		close(done)
	}()
	cancel()
	<-done

	for range 300 {
		hub.BroadcastToRoom("room", NewMessage("late", nil))
	}

	if hub.Join(&Client{ID: "late", Room: "room", Send: make(chan *Message, 1), Hub: hub}) {
		t.Fatal("Join succeeded on a stopped hub")
	}
}
