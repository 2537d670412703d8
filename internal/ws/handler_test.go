package ws

import (
	"context"
	"encoding/base64"
	"encoding/json"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/coder/websocket"

	"github.com/alphaq-labs/helixr/internal/domain"
	"github.com/alphaq-labs/helixr/internal/retry"
	"github.com/alphaq-labs/helixr/internal/session"
	"github.com/alphaq-labs/helixr/internal/turn"
)

type echoGenerator struct{}

func (echoGenerator) Generate(ctx context.Context, history []domain.Turn) (string, error) {
	last := history[len(history)-1]
	if last.IsAudio() {
		return "heard you", nil
	}
	return "echo: " + last.Text, nil
}

type noopDevices struct{}

func (noopDevices) Apply(ctx context.Context, device int, action domain.Action) (bool, string) {
	return true, "ok"
}

const testMaxAudioBytes = 8 << 20

func newTestServer(t *testing.T) *httptest.Server {
	t.Helper()
	ctx, cancel := context.WithCancel(context.Background())
	t.Cleanup(cancel)

	processor := turn.NewProcessor(turn.Options{
		Generator:     echoGenerator{},
		Devices:       noopDevices{},
		ChatRetry:     retry.Policy{MaxRetries: 0, BaseDelay: time.Millisecond},
		SynthRetry:    retry.Policy{MaxRetries: 0, BaseDelay: time.Millisecond},
		MaxAudioBytes: testMaxAudioBytes,
		MaxTextBytes:  1 << 10,
	})
	registry := session.NewRegistry(ctx, 4, processor.Process)

	h := NewHandler(registry, processor, testMaxAudioBytes, "*", true)
	srv := httptest.NewServer(h)
	t.Cleanup(srv.Close)
	return srv
}

func dialTestServer(t *testing.T, srv *httptest.Server) *websocket.Conn {
	t.Helper()
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	conn, _, err := websocket.Dial(ctx, "ws"+strings.TrimPrefix(srv.URL, "http"), nil)
	if err != nil {
		t.Fatalf("dial: %v", err)
	}
	t.Cleanup(func() { _ = conn.Close(websocket.StatusNormalClosure, "test done") })
	return conn
}

func send(t *testing.T, conn *websocket.Conn, msg wsMessage) {
	t.Helper()
	data, err := json.Marshal(msg)
	if err != nil {
		t.Fatalf("marshal: %v", err)
	}
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	if err := conn.Write(ctx, websocket.MessageText, data); err != nil {
		t.Fatalf("write %s: %v", msg.Type, err)
	}
}

func recv(t *testing.T, conn *websocket.Conn) session.Event {
	t.Helper()
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	_, data, err := conn.Read(ctx)
	if err != nil {
		t.Fatalf("read: %v", err)
	}
	var ev session.Event
	if err := json.Unmarshal(data, &ev); err != nil {
		t.Fatalf("unmarshal event %q: %v", data, err)
	}
	return ev
}

func TestSessionProtocol(t *testing.T) {
	srv := newTestServer(t)
	conn := dialTestServer(t, srv)

	send(t, conn, wsMessage{Type: "ping"})
	if ev := recv(t, conn); ev.Type != "pong" {
		t.Fatalf("ping response = %+v, want pong", ev)
	}

	// A turn without a session is rejected.
	send(t, conn, wsMessage{Type: "turn", Text: "hello"})
	if ev := recv(t, conn); ev.Type != turn.EventError {
		t.Fatalf("turn before start = %+v, want error event", ev)
	}

	send(t, conn, wsMessage{Type: "start"})
	if ev := recv(t, conn); ev.Type != "started" {
		t.Fatalf("start response = %+v, want started", ev)
	}

	send(t, conn, wsMessage{Type: "turn", Text: "hello"})
	ev := recv(t, conn)
	if ev.Type != turn.EventTextReply || ev.Reply != "echo: hello" {
		t.Fatalf("text turn reply = %+v, want echoed text-reply", ev)
	}

	send(t, conn, wsMessage{Type: "not a real type"})
	if ev := recv(t, conn); ev.Type != turn.EventError {
		t.Fatalf("unknown type response = %+v, want error event", ev)
	}

	send(t, conn, wsMessage{Type: "stop"})
	if ev := recv(t, conn); ev.Type != "stopped" {
		t.Fatalf("stop response = %+v, want stopped", ev)
	}

	// The session is gone after stop.
	send(t, conn, wsMessage{Type: "turn", Text: "anyone there"})
	if ev := recv(t, conn); ev.Type != turn.EventError {
		t.Fatalf("turn after stop = %+v, want error event", ev)
	}
}

func TestLargeAudioTurnSurvivesTransport(t *testing.T) {
	srv := newTestServer(t)
	conn := dialTestServer(t, srv)

	send(t, conn, wsMessage{Type: "start"})
	if ev := recv(t, conn); ev.Type != "started" {
		t.Fatalf("start response = %+v, want started", ev)
	}

	// Well past the library's default read limit but under the audio
	// ceiling: the turn must reach the pipeline, not drop the socket.
	audio := make([]byte, 100<<10)
	send(t, conn, wsMessage{
		Type:     "turn",
		Audio:    base64.StdEncoding.EncodeToString(audio),
		MimeType: "audio/wav",
	})
	ev := recv(t, conn)
	if ev.Type != turn.EventTextReply || ev.Reply != "heard you" {
		t.Fatalf("large audio turn reply = %+v, want text-reply", ev)
	}
}

func TestOversizedAudioTurnIsPayloadError(t *testing.T) {
	srv := newTestServer(t)
	conn := dialTestServer(t, srv)

	send(t, conn, wsMessage{Type: "start"})
	if ev := recv(t, conn); ev.Type != "started" {
		t.Fatalf("start response = %+v, want started", ev)
	}

	audio := make([]byte, testMaxAudioBytes+1)
	send(t, conn, wsMessage{
		Type:     "turn",
		Audio:    base64.StdEncoding.EncodeToString(audio),
		MimeType: "audio/wav",
	})
	ev := recv(t, conn)
	if ev.Type != turn.EventError || !strings.Contains(ev.Message, "too large") {
		t.Fatalf("oversized turn response = %+v, want payload-too-large error", ev)
	}

	// The connection and session survive the rejection.
	send(t, conn, wsMessage{Type: "turn", Text: "still here"})
	if ev := recv(t, conn); ev.Type != turn.EventTextReply {
		t.Fatalf("follow-up turn reply = %+v, want text-reply", ev)
	}
}

func TestMalformedMessageIsSoftError(t *testing.T) {
	srv := newTestServer(t)
	conn := dialTestServer(t, srv)

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	if err := conn.Write(ctx, websocket.MessageText, []byte("{not json")); err != nil {
		t.Fatalf("write: %v", err)
	}
	if ev := recv(t, conn); ev.Type != turn.EventError {
		t.Fatalf("malformed message response = %+v, want error event", ev)
	}

	// Connection stays usable.
	send(t, conn, wsMessage{Type: "ping"})
	if ev := recv(t, conn); ev.Type != "pong" {
		t.Fatalf("ping after malformed message = %+v, want pong", ev)
	}
}

func TestCheckOrigin(t *testing.T) {
	tests := []struct {
		name          string
		allowedOrigin string
		isDev         bool
		origin        string
		want          bool
	}{
		{"dev mode allows anything", "https://app.example.com", true, "https://evil.example.net", true},
		{"matching origin", "https://app.example.com", false, "https://app.example.com", true},
		{"mismatched origin", "https://app.example.com", false, "https://evil.example.net", false},
		{"no origin header", "https://app.example.com", false, "", true},
		{"wildcard allows anything", "*", false, "https://anywhere.example.net", true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			h := NewHandler(nil, nil, testMaxAudioBytes, tt.allowedOrigin, tt.isDev)
			r := httptest.NewRequest("GET", "/ws/session", nil)
			if tt.origin != "" {
				r.Header.Set("Origin", tt.origin)
			}
			if got := h.checkOrigin(r); got != tt.want {
				t.Errorf("checkOrigin() = %v, want %v", got, tt.want)
			}
		})
	}
}
