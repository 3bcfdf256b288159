package server

import (
	"encoding/json"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/gorilla/websocket"

	"github.com/engaging-workplace/clarity/internal/transcript"
)

func TestWSBroadcastEventShape(t *testing.T) {
	hub := NewHub()
	ch := hub.Subscribe()
	defer hub.Unsubscribe(ch)

	hub.BroadcastTranscriptLogged(transcript.NewRecord(time.Now(), "session-1", transcript.SpeakerParticipant, "test line"))

	select {
	case msg := <-ch:
		var payload map[string]any
		if err := json.Unmarshal(msg, &payload); err != nil {
			t.Fatalf("unmarshal failed: %v", err)
		}
		if payload["type"] != "transcript_logged" {
			t.Fatalf("expected event type transcript_logged, got %#v", payload["type"])
		}
		if payload["speaker"] != "user" || payload["transcript"] != "test line" {
			t.Fatalf("unexpected payload %s", msg)
		}
	case <-time.After(1 * time.Second):
		t.Fatal("timeout waiting for websocket broadcast")
	}
}

func TestWSClientReceivesEvents(t *testing.T) {
	hub := NewHub()
	srv := httptest.NewServer(Handler(Deps{Hub: hub}))
	defer srv.Close()

	conn, _, err := websocket.DefaultDialer.Dial("ws"+strings.TrimPrefix(srv.URL, "http")+"/ws", nil)
	if err != nil {
		t.Fatalf("dial: %v", err)
	}
	defer conn.Close()
	_ = conn.SetReadDeadline(time.Now().Add(2 * time.Second))

	_, first, err := conn.ReadMessage()
	if err != nil {
		t.Fatalf("read connection event: %v", err)
	}
	if !strings.Contains(string(first), `"type":"connection"`) {
		t.Fatalf("expected connection event, got %s", first)
	}

	// The subscription is registered right after the connection event.
	deadline := time.Now().Add(time.Second)
	for {
		hub.mu.RLock()
		n := len(hub.clients)
		hub.mu.RUnlock()
		if n == 1 || time.Now().After(deadline) {
			break
		}
		time.Sleep(5 * time.Millisecond)
	}

	hub.BroadcastSummaryReady("session-1", "Positive", "completed")
	_, msg, err := conn.ReadMessage()
	if err != nil {
		t.Fatalf("read summary event: %v", err)
	}
	if !strings.Contains(string(msg), `"type":"summary_ready"`) {
		t.Fatalf("expected summary_ready, got %s", msg)
	}
}

func TestHubUnsubscribeTwice(t *testing.T) {
	hub := NewHub()
	ch := hub.Subscribe()
	hub.Unsubscribe(ch)
	hub.Unsubscribe(ch)
}
