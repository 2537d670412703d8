// Package session owns per-connection conversation state and the
// serialization discipline that keeps concurrent turns safe.
package session

import (
	"context"
	"errors"
	"sync"
	"time"

	"github.com/alphaq-labs/helixr/internal/domain"
)

var (
	// ErrClosed is returned when a turn is submitted to a closed session.
	ErrClosed = errors.New("session closed")
	// ErrQueueFull is returned when the session's turn queue is at
	// capacity. Submission never blocks on model latency.
	ErrQueueFull = errors.New("session turn queue full")
)

// State is a session's lifecycle phase.
type State int32

const (
	// StateIdle means the session is registered with no turn in flight.
	StateIdle State = iota
	// StateProcessing means one turn holds the serialization token.
	StateProcessing
	// StateClosed is terminal; the registry entry has been removed.
	StateClosed
)

// Event is an outbound notification scoped to the originating connection.
type Event struct {
	Type     string `json:"type"`
	Reply    string `json:"reply,omitempty"`
	Partial  bool   `json:"partial,omitempty"`
	AudioURL string `json:"audio_url,omitempty"`
	Message  string `json:"message,omitempty"`
	Category string `json:"category,omitempty"`
}

// Sink delivers events back to the session's connection.
type Sink interface {
	Emit(Event)
}

// Payload is one inbound turn submission: text, or audio bytes with a
// declared mime type.
type Payload struct {
	Text     string
	Audio    []byte
	MimeType string
}

// TurnFunc processes one admitted turn. The session's worker goroutine
// invokes it serially, so implementations may touch session history
// without further locking.
type TurnFunc func(ctx context.Context, s *Session, p Payload)

// Session holds one live connection's conversation state. The queue plus
// single worker goroutine is the serialization token: exactly one turn is
// ever in flight, and turns complete in submission order.
type Session struct {
	ID   string
	sink Sink

	mu       sync.Mutex
	state    State
	closed   bool
	lastSeen time.Time

	// history is only touched by the worker goroutine.
	history []domain.Turn

	queue   chan Payload
	quit    chan struct{}
	drained chan struct{}
}

func newSession(id string, sink Sink, queueDepth int) *Session {
	return &Session{
		ID:       id,
		sink:     sink,
		state:    StateIdle,
		lastSeen: time.Now(),
		queue:    make(chan Payload, queueDepth),
		quit:     make(chan struct{}),
		drained:  make(chan struct{}),
	}
}

// Submit admits a turn to the session's FIFO queue. It fails when the
// session is closed or the queue is at capacity; it never blocks.
func (s *Session) Submit(p Payload) error {
	s.mu.Lock()
	if s.closed {
		s.mu.Unlock()
		return ErrClosed
	}
	s.lastSeen = time.Now()
	s.mu.Unlock()

	select {
	case s.queue <- p:
		return nil
	default:
		return ErrQueueFull
	}
}

// State returns the session's current lifecycle state.
func (s *Session) State() State {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.state
}

// LastSeen returns the time of the session's most recent activity.
func (s *Session) LastSeen() time.Time {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.lastSeen
}

// History returns the session's conversation history. Only the worker
// goroutine (via TurnFunc) may call it.
func (s *Session) History() []domain.Turn {
	return s.history
}

// Append adds a turn to the history. Worker goroutine only.
func (s *Session) Append(t domain.Turn) {
	s.history = append(s.history, t)
}

// ResetHistory clears the conversation history after an alternation
// violation or upstream protocol rejection. Worker goroutine only.
func (s *Session) ResetHistory() {
	s.history = nil
}

// Emit sends an event to the session's connection.
func (s *Session) Emit(ev Event) {
	s.sink.Emit(ev)
}

// run is the session worker: it drains the FIFO queue one turn at a
// time. On quit it finishes nothing new; an in-flight turn has already
// completed by the time quit is observed.
func (s *Session) run(ctx context.Context, process TurnFunc) {
	defer close(s.drained)
	for {
		select {
		case <-s.quit:
			return
		case p := <-s.queue:
			// Re-check quit so queued turns are dropped after close.
			select {
			case <-s.quit:
				return
			default:
			}
			s.setState(StateProcessing)
			process(ctx, s, p)
			s.setState(StateIdle)
		}
	}
}

func (s *Session) setState(st State) {
	s.mu.Lock()
	if !s.closed {
		s.state = st
	}
	s.mu.Unlock()
}

// close marks the session closed, admits no further turns, and waits for
// the in-flight turn to finish (graceful drain). Queued-but-unstarted
// turns are discarded.
func (s *Session) close() {
	s.mu.Lock()
	if s.closed {
		s.mu.Unlock()
		<-s.drained
		return
	}
	s.closed = true
	s.state = StateClosed
	s.mu.Unlock()

	close(s.quit)
	<-s.drained
}
