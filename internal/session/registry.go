package session

import (
	"context"
	"errors"
	"hash/fnv"
	"log/slog"
	"sync"
	"time"
)

// ErrAlreadyActive is returned by Open when a session already exists for
// the id. Double-starts are never silent.
var ErrAlreadyActive = errors.New("session already active")

const shardCount = 16

// Registry owns all live sessions. The map is sharded by session id so
// unrelated sessions never contend on a single lock.
type Registry struct {
	shards     [shardCount]*shard
	process    TurnFunc
	baseCtx    context.Context
	queueDepth int
}

type shard struct {
	mu       sync.RWMutex
	sessions map[string]*Session
}

// NewRegistry creates a Registry. baseCtx bounds the lifetime of all
// session workers; it is the server's context, not a per-connection one,
// so an in-flight turn survives its connection closing (graceful drain).
func NewRegistry(baseCtx context.Context, queueDepth int, process TurnFunc) *Registry {
	r := &Registry{
		process:    process,
		baseCtx:    baseCtx,
		queueDepth: queueDepth,
	}
	for i := range r.shards {
		r.shards[i] = &shard{sessions: make(map[string]*Session)}
	}
	return r
}

func (r *Registry) shardFor(id string) *shard {
	h := fnv.New32a()
	_, _ = h.Write([]byte(id))
	return r.shards[h.Sum32()%shardCount]
}

// Open creates session state for id and starts its worker. It fails with
// ErrAlreadyActive when a session is already open for that id.
func (r *Registry) Open(id string, sink Sink) (*Session, error) {
	sh := r.shardFor(id)
	sh.mu.Lock()
	defer sh.mu.Unlock()

	if _, exists := sh.sessions[id]; exists {
		return nil, ErrAlreadyActive
	}

	s := newSession(id, sink, r.queueDepth)
	sh.sessions[id] = s
	go s.run(r.baseCtx, r.process)

	slog.Info("session opened", "session_id", id)
	return s, nil
}

// Get returns the session for id, if one is open.
func (r *Registry) Get(id string) (*Session, bool) {
	sh := r.shardFor(id)
	sh.mu.RLock()
	defer sh.mu.RUnlock()
	s, ok := sh.sessions[id]
	return s, ok
}

// Close removes the session for id and drains its in-flight turn.
// Closing a nonexistent session is a no-op, not an error.
func (r *Registry) Close(id string) {
	sh := r.shardFor(id)
	sh.mu.Lock()
	s, ok := sh.sessions[id]
	if ok {
		delete(sh.sessions, id)
	}
	sh.mu.Unlock()

	if !ok {
		return
	}
	s.close()
	slog.Info("session closed", "session_id", id)
}

// CloseIdle closes every session whose last activity is older than ttl
// and returns the number closed.
func (r *Registry) CloseIdle(ttl time.Duration) int {
	cutoff := time.Now().Add(-ttl)
	var stale []string

	for _, sh := range r.shards {
		sh.mu.RLock()
		for id, s := range sh.sessions {
			if s.LastSeen().Before(cutoff) {
				stale = append(stale, id)
			}
		}
		sh.mu.RUnlock()
	}

	for _, id := range stale {
		slog.Info("closing idle session", "session_id", id, "ttl", ttl)
		r.Close(id)
	}
	return len(stale)
}

// StartIdleSweeper runs a background loop that closes idle sessions
// every interval until ctx is cancelled.
func (r *Registry) StartIdleSweeper(ctx context.Context, interval, ttl time.Duration) {
	go func() {
		ticker := time.NewTicker(interval)
		defer ticker.Stop()
		for {
			select {
			case <-ctx.Done():
				return
			case <-ticker.C:
				if n := r.CloseIdle(ttl); n > 0 {
					slog.Info("idle session sweep complete", "closed", n)
				}
			}
		}
	}()
}
