// Package ws exposes the session orchestrator over a WebSocket
// connection: one connection drives one conversational session.
package ws

import (
	"context"
	"encoding/base64"
	"encoding/json"
	"errors"
	"log/slog"
	"net/http"
	"sync"

	"github.com/coder/websocket"

	"github.com/alphaq-labs/helixr/internal/identity"
	"github.com/alphaq-labs/helixr/internal/session"
	"github.com/alphaq-labs/helixr/internal/turn"
)

// Handler upgrades connections and routes inbound session messages.
type Handler struct {
	registry      *session.Registry
	processor     *turn.Processor
	readLimit     int64
	allowedOrigin string
	isDev         bool
}

// NewHandler creates a WebSocket session handler. maxAudioBytes is the
// audio turn ceiling; the connection read limit is sized from it so
// oversized turns surface as payload errors, not connection drops.
func NewHandler(registry *session.Registry, processor *turn.Processor, maxAudioBytes int64, allowedOrigin string, isDev bool) *Handler {
	return &Handler{
		registry:  registry,
		processor: processor,
		// Base64 inflates the payload by 4/3; the envelope adds a
		// little more on top.
		readLimit:     maxAudioBytes*4/3 + 4096,
		allowedOrigin: allowedOrigin,
		isDev:         isDev,
	}
}

// connSink delivers session events to one connection. Writes are
// serialized: the worker goroutine and the read loop both emit.
type connSink struct {
	conn *websocket.Conn
	mu   sync.Mutex
}

func (s *connSink) Emit(ev session.Event) {
	data, err := json.Marshal(ev)
	if err != nil {
		slog.Error("failed to marshal event", "error", err, "type", ev.Type)
		return
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	// The websocket library tracks its own connection state; a write
	// after close fails cleanly.
	if err := s.conn.Write(context.Background(), websocket.MessageText, data); err != nil {
		slog.Debug("WebSocket write error", "error", err, "type", ev.Type)
	}
}

// wsMessage is the inbound message envelope.
type wsMessage struct {
	Type     string `json:"type"`
	Text     string `json:"text,omitempty"`
	Audio    string `json:"audio,omitempty"` // base64
	MimeType string `json:"mime_type,omitempty"`
}

// ServeHTTP implements http.Handler for WebSocket upgrade.
func (h *Handler) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	userID := identity.UserIDFromContext(r.Context())
	sessionID := identity.SessionIDFromContext(r.Context())
	sessionKey := userID + ":" + sessionID
	slog.Info("WebSocket connection request", "user_id", userID, "session_id", sessionID, "ip", r.RemoteAddr)

	if !h.checkOrigin(r) {
		http.Error(w, "origin not allowed", http.StatusForbidden)
		return
	}

	conn, err := websocket.Accept(w, r, &websocket.AcceptOptions{
		OriginPatterns: []string{"*"},
	})
	if err != nil {
		slog.Error("Failed to accept WebSocket", "error", err, "user_id", userID)
		return
	}
	// The library's default read limit is far below an audio turn;
	// oversized payloads must reach the validator, not kill the socket.
	conn.SetReadLimit(h.readLimit)
	defer func() {
		if closeErr := conn.Close(websocket.StatusNormalClosure, "session ended"); closeErr != nil {
			slog.Debug("Failed to close websocket", "error", closeErr, "user_id", userID)
		}
	}()

	sink := &connSink{conn: conn}
	opened := false
	defer func() {
		// Disconnect closes the session: the in-flight turn drains,
		// queued turns are discarded.
		if opened {
			h.registry.Close(sessionKey)
		}
	}()

	h.readLoop(r.Context(), conn, sink, sessionKey, &opened)
	slog.Info("WebSocket connection ended", "user_id", userID, "session_id", sessionID)
}

func (h *Handler) readLoop(ctx context.Context, conn *websocket.Conn, sink *connSink, sessionKey string, opened *bool) {
	for {
		_, data, err := conn.Read(ctx)
		if err != nil {
			if websocket.CloseStatus(err) != -1 {
				slog.Debug("WebSocket closed by client", "session_key", sessionKey)
			} else if !errors.Is(err, context.Canceled) {
				slog.Warn("WebSocket read error", "error", err, "session_key", sessionKey)
			}
			return
		}

		var msg wsMessage
		if err := json.Unmarshal(data, &msg); err != nil {
			sink.Emit(errorEvent("malformed message"))
			continue
		}

		switch msg.Type {
		case "start":
			h.handleStart(sink, sessionKey, opened)
		case "turn":
			h.handleTurn(sink, sessionKey, msg, *opened)
		case "stop":
			if *opened {
				h.registry.Close(sessionKey)
				*opened = false
			}
			sink.Emit(session.Event{Type: "stopped"})
		case "ping":
			sink.Emit(session.Event{Type: "pong"})
		default:
			sink.Emit(errorEvent("unknown message type"))
		}
	}
}

func (h *Handler) handleStart(sink *connSink, sessionKey string, opened *bool) {
	if *opened {
		// Start on a live session is a reset: close out the old state
		// and open fresh. History does not survive.
		h.registry.Close(sessionKey)
		*opened = false
	}

	if _, err := h.registry.Open(sessionKey, sink); err != nil {
		if errors.Is(err, session.ErrAlreadyActive) {
			sink.Emit(errorEvent("session already active on another connection"))
		} else {
			slog.Error("Failed to open session", "error", err, "session_key", sessionKey)
			sink.Emit(errorEvent("failed to start session"))
		}
		return
	}
	*opened = true
	sink.Emit(session.Event{Type: "started"})
}

func (h *Handler) handleTurn(sink *connSink, sessionKey string, msg wsMessage, opened bool) {
	if !opened {
		sink.Emit(errorEvent("no active session, send start first"))
		return
	}
	sess, ok := h.registry.Get(sessionKey)
	if !ok {
		sink.Emit(errorEvent("session expired, send start again"))
		return
	}

	payload := session.Payload{Text: msg.Text}
	if msg.Audio != "" {
		audio, err := base64.StdEncoding.DecodeString(msg.Audio)
		if err != nil {
			sink.Emit(errorEvent("invalid audio encoding"))
			return
		}
		payload = session.Payload{Audio: audio, MimeType: msg.MimeType}
	}

	if err := h.processor.Submit(sess, payload); err != nil {
		switch {
		case errors.Is(err, turn.ErrEmptyPayload):
			sink.Emit(errorEvent("turn payload is empty"))
		case errors.Is(err, turn.ErrPayloadTooLarge):
			sink.Emit(errorEvent("turn payload too large"))
		case errors.Is(err, session.ErrQueueFull):
			sink.Emit(errorEvent("too many pending turns, slow down"))
		case errors.Is(err, session.ErrClosed):
			sink.Emit(errorEvent("session closed"))
		default:
			slog.Error("Failed to submit turn", "error", err, "session_key", sessionKey)
			sink.Emit(errorEvent("failed to submit turn"))
		}
	}
}

func errorEvent(msg string) session.Event {
	return session.Event{Type: turn.EventError, Message: msg, Category: "unknown"}
}

func (h *Handler) checkOrigin(r *http.Request) bool {
	if h.isDev {
		return true
	}
	origin := r.Header.Get("Origin")
	if origin == "" || h.allowedOrigin == "*" {
		return true
	}
	if origin == h.allowedOrigin {
		return true
	}
	slog.Warn("WebSocket origin rejected", "origin", origin, "allowed", h.allowedOrigin)
	return false
}
