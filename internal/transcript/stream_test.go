package transcript

import (
	"encoding/json"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/gorilla/websocket"
)

func dialHub(t *testing.T, srv *httptest.Server) *websocket.Conn {
	t.Helper()
	url := "ws" + strings.TrimPrefix(srv.URL, "http")
	conn, _, err := websocket.DefaultDialer.Dial(url, nil)
	if err != nil {
		t.Fatalf("dial: %v", err)
	}
	return conn
}

func waitForListeners(t *testing.T, hub *Hub, want int) {
	t.Helper()
	deadline := time.Now().Add(2 * time.Second)
	for hub.ListenerCount() != want {
		if time.Now().After(deadline) {
			t.Fatalf("listeners = %d, want %d", hub.ListenerCount(), want)
		}
		time.Sleep(10 * time.Millisecond)
	}
}

func TestHubBroadcastsToListeners(t *testing.T) {
	hub := NewHub()
	srv := httptest.NewServer(hub)
	defer srv.Close()
	defer hub.Close()

	conn := dialHub(t, srv)
	defer conn.Close()
	waitForListeners(t, hub, 1)

	ts := time.Date(2026, time.March, 1, 12, 0, 0, 0, time.UTC)
	hub.Broadcast("g1", "c1", []Utterance{
		{SpeakerID: "10", Text: "hello", Timestamp: ts},
	})

	conn.SetReadDeadline(time.Now().Add(2 * time.Second))
	_, payload, err := conn.ReadMessage()
	if err != nil {
		t.Fatalf("read: %v", err)
	}
	var msg StreamMessage
	if err := json.Unmarshal(payload, &msg); err != nil {
		t.Fatalf("unmarshal: %v", err)
	}
	if msg.Type != "transcript" || msg.GuildID != "g1" || msg.ChannelID != "c1" {
		t.Fatalf("unexpected frame: %+v", msg)
	}
	if len(msg.Lines) != 1 || msg.Lines[0].SpeakerID != "10" || msg.Lines[0].Text != "hello" {
		t.Fatalf("unexpected lines: %+v", msg.Lines)
	}
	if !msg.Lines[0].Timestamp.Equal(ts) {
		t.Fatalf("timestamp = %v, want %v", msg.Lines[0].Timestamp, ts)
	}
}

func TestHubDropsDisconnectedListeners(t *testing.T) {
	hub := NewHub()
	srv := httptest.NewServer(hub)
	defer srv.Close()
	defer hub.Close()

	conn := dialHub(t, srv)
	waitForListeners(t, hub, 1)
	conn.Close()
	waitForListeners(t, hub, 0)

	// Broadcasting with no listeners must not block or panic.
	hub.Broadcast("g1", "c1", []Utterance{{SpeakerID: "10", Text: "hi", Timestamp: time.Now()}})
}

func TestHubCloseDisconnectsClients(t *testing.T) {
	hub := NewHub()
	srv := httptest.NewServer(hub)
	defer srv.Close()

	conn := dialHub(t, srv)
	defer conn.Close()
	waitForListeners(t, hub, 1)

	hub.Close()
	conn.SetReadDeadline(time.Now().Add(2 * time.Second))
	if _, _, err := conn.ReadMessage(); err == nil {
		t.Fatal("expected read to fail after hub close")
	}
}
