package mcp

import (
	"context"
	"errors"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/rs/zerolog/log"
)

// ErrStreamOpen is returned when a session already has a server stream attached.
var ErrStreamOpen = errors.New("session stream already open")

// Session is one client conversation on the HTTP transport. It lives until
// the client deletes it, it sits idle past the TTL, or the registry closes.
type Session struct {
	ctx      context.Context
	cancel   context.CancelFunc
	lastSeen time.Time
	ID       string
	active   int
	mu       sync.Mutex
	stream   bool
}

func newSession(id string) *Session {
	ctx, cancel := context.WithCancel(context.Background())
	return &Session{
		ID:       id,
		ctx:      ctx,
		cancel:   cancel,
		lastSeen: time.Now(),
	}
}

// Begin derives a call context from parent that is also cancelled when the
// session ends. The returned release must be called exactly once the call
// finishes; extra calls are no-ops.
func (s *Session) Begin(parent context.Context) (context.Context, func()) {
	ctx, cancel := context.WithCancel(parent)
	stop := context.AfterFunc(s.ctx, cancel)

	s.mu.Lock()
	s.active++
	s.lastSeen = time.Now()
	s.mu.Unlock()

	return ctx, sync.OnceFunc(func() {
		stop()
		cancel()
		s.mu.Lock()
		s.active--
		s.lastSeen = time.Now()
		s.mu.Unlock()
	})
}

// Active returns the number of calls holding a context from Begin.
func (s *Session) Active() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.active
}

// Done is closed when the session is terminated.
func (s *Session) Done() <-chan struct{} {
	return s.ctx.Done()
}

// attachStream marks the session as having a server stream. The returned
// detach clears the mark.
func (s *Session) attachStream() (func(), error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.stream {
		return nil, ErrStreamOpen
	}
	s.stream = true
	return sync.OnceFunc(func() {
		s.mu.Lock()
		s.stream = false
		s.lastSeen = time.Now()
		s.mu.Unlock()
	}), nil
}

func (s *Session) touch() {
	s.mu.Lock()
	s.lastSeen = time.Now()
	s.mu.Unlock()
}

// idleSince reports whether the session has had no calls or stream since before t.
func (s *Session) idleSince(t time.Time) bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.active == 0 && !s.stream && s.lastSeen.Before(t)
}

// Sessions is the token to session registry.
type Sessions struct {
	ctx      context.Context
	cancel   context.CancelFunc
	sessions map[string]*Session
	onChange func(int)
	ttl      time.Duration
	mu       sync.RWMutex
}

// NewSessions creates a registry. A positive ttl starts a janitor that
// terminates idle sessions; onChange, if set, receives the session count
// after every change.
func NewSessions(ttl time.Duration, onChange func(int)) *Sessions {
	ctx, cancel := context.WithCancel(context.Background())
	r := &Sessions{
		ctx:      ctx,
		cancel:   cancel,
		sessions: make(map[string]*Session),
		onChange: onChange,
		ttl:      ttl,
	}
	if ttl > 0 {
		go r.cleanupLoop()
	}
	return r
}

// Create registers a new session under a fresh token.
func (r *Sessions) Create() *Session {
	s := newSession(uuid.NewString())

	r.mu.Lock()
	r.sessions[s.ID] = s
	n := len(r.sessions)
	r.mu.Unlock()

	r.changed(n)
	log.Debug().Str("sessionId", s.ID).Msg("MCP session created")
	return s
}

// Get returns the live session for id.
func (r *Sessions) Get(id string) (*Session, bool) {
	r.mu.RLock()
	s, ok := r.sessions[id]
	r.mu.RUnlock()
	if !ok {
		return nil, false
	}
	s.touch()
	return s, true
}

// Terminate removes the session and cancels everything running under it.
// It reports whether the session existed.
func (r *Sessions) Terminate(id string) bool {
	r.mu.Lock()
	s, ok := r.sessions[id]
	if ok {
		delete(r.sessions, id)
	}
	n := len(r.sessions)
	r.mu.Unlock()

	if !ok {
		return false
	}
	s.cancel()
	r.changed(n)
	log.Debug().Str("sessionId", id).Msg("MCP session terminated")
	return true
}

// Len returns the number of live sessions.
func (r *Sessions) Len() int {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return len(r.sessions)
}

// Close terminates every session and stops the janitor.
func (r *Sessions) Close() {
	r.cancel()

	r.mu.Lock()
	closing := r.sessions
	r.sessions = make(map[string]*Session)
	r.mu.Unlock()

	for _, s := range closing {
		s.cancel()
	}
	r.changed(0)
}

// cleanupLoop periodically expires idle sessions.
func (r *Sessions) cleanupLoop() {
	interval := min(max(r.ttl/2, 10*time.Millisecond), time.Minute)
	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	for {
		select {
		case <-r.ctx.Done():
			return
		case <-ticker.C:
			r.expire(time.Now().Add(-r.ttl))
		}
	}
}

// expire terminates sessions idle since before cutoff and returns how many.
func (r *Sessions) expire(cutoff time.Time) int {
	r.mu.RLock()
	var stale []string
	for id, s := range r.sessions {
		if s.idleSince(cutoff) {
			stale = append(stale, id)
		}
	}
	r.mu.RUnlock()

	expired := 0
	for _, id := range stale {
		if r.Terminate(id) {
			expired++
		}
	}
	if expired > 0 {
		log.Info().Int("expired", expired).Msg("Expired idle MCP sessions")
	}
	return expired
}

func (r *Sessions) changed(n int) {
	if r.onChange != nil {
		r.onChange(n)
	}
}
