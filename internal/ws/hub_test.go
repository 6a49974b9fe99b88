package ws

import (
	"context"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"matchengine/internal/messaging"

	"github.com/goccy/go-json"
	"github.com/gorilla/websocket"
	"github.com/rs/zerolog"
)

func TestHub_BroadcastsJobEvents(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	hub := NewHub(zerolog.Nop())
	go func() { _ = hub.Serve(ctx) }()

	srv := httptest.NewServer(NewHandler(hub, nil, zerolog.Nop()))
	defer srv.Close()

	url := "ws" + strings.TrimPrefix(srv.URL, "http")
	conn, _, err := websocket.DefaultDialer.Dial(url, nil)
	if err != nil {
		t.Fatalf("dial: %v", err)
	}
	defer conn.Close()

	deadline := time.Now().Add(2 * time.Second)
	for hub.ClientCount() == 0 {
		if time.Now().After(deadline) {
			t.Fatalf("client never registered")
		}
		time.Sleep(5 * time.Millisecond)
	}

	hub.NotifyJobEvent(messaging.JobEvent{Type: messaging.EventCompleted, JobID: "job-1", Matches: 2})

	_ = conn.SetReadDeadline(time.Now().Add(2 * time.Second))
	_, msg, err := conn.ReadMessage()
	if err != nil {
		t.Fatalf("read: %v", err)
	}

	var got jobEnvelope
	if err := json.Unmarshal(msg, &got); err != nil {
		t.Fatalf("decode: %v", err)
	}
	if got.Type != "matching_job" || got.Event.JobID != "job-1" || got.Event.Type != messaging.EventCompleted {
		t.Fatalf("unexpected frame: %s", msg)
	}
}

func TestHub_RejectsUnknownOrigin(t *testing.T) {
	hub := NewHub(zerolog.Nop())
	srv := httptest.NewServer(NewHandler(hub, []string{"https://ops.example"}, zerolog.Nop()))
	defer srv.Close()

	url := "ws" + strings.TrimPrefix(srv.URL, "http")
	header := map[string][]string{"Origin": {"https://evil.example"}}
	if _, _, err := websocket.DefaultDialer.Dial(url, header); err == nil {
		t.Fatalf("expected handshake to fail for unknown origin")
	}
}
