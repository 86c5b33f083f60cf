package server

import (
	"fmt"
	"sync"
	"sync/atomic"
	"time"

	"github.com/nako4/nako4/compiler"
)

// Session is a named variable scope that survives across requests.
type Session struct {
	ID      string
	Name    string
	Created time.Time

	worker   *Worker
	lastUsed time.Time
}

// Worker returns the goroutine that owns the session's variables.
func (s *Session) Worker() *Worker {
	return s.worker
}

// SessionStore manages sessions.
type SessionStore struct {
	mu       sync.Mutex
	sessions map[string]*Session
	nextID   atomic.Uint64
	opts     compiler.Options
}

// NewSessionStore creates a session store whose sessions compile with opts.
func NewSessionStore(opts compiler.Options) *SessionStore {
	return &SessionStore{
		sessions: make(map[string]*Session),
		opts:     opts,
	}
}

// Create creates a new session with an optional name.
func (s *SessionStore) Create(name string) *Session {
	id := fmt.Sprintf("s-%d", s.nextID.Add(1))

	now := time.Now()
	session := &Session{
		ID:       id,
		Name:     name,
		Created:  now,
		worker:   NewWorker(compiler.NewSession(s.opts)),
		lastUsed: now,
	}

	s.mu.Lock()
	s.sessions[id] = session
	s.mu.Unlock()

	log.Debugf("session %s created", id)
	return session
}

// Get retrieves a session by ID and marks it as used.
func (s *SessionStore) Get(id string) (*Session, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()

	session, ok := s.sessions[id]
	if ok {
		session.lastUsed = time.Now()
	}
	return session, ok
}

// Len returns the number of live sessions.
func (s *SessionStore) Len() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.sessions)
}

// Destroy removes a session and stops its worker. It reports whether the
// session existed.
func (s *SessionStore) Destroy(id string) bool {
	s.mu.Lock()
	session, ok := s.sessions[id]
	delete(s.sessions, id)
	s.mu.Unlock()

	if ok {
		session.worker.Stop()
		log.Debugf("session %s destroyed", id)
	}
	return ok
}

// DestroyAll removes every session.
func (s *SessionStore) DestroyAll() {
	s.mu.Lock()
	sessions := s.sessions
	s.sessions = make(map[string]*Session)
	s.mu.Unlock()

	for _, session := range sessions {
		session.worker.Stop()
	}
}

// Sweep removes sessions that haven't been used within the TTL.
func (s *SessionStore) Sweep(ttl time.Duration) int {
	cutoff := time.Now().Add(-ttl)

	s.mu.Lock()
	var expired []*Session
	for id, session := range s.sessions {
		if session.lastUsed.Before(cutoff) {
			expired = append(expired, session)
			delete(s.sessions, id)
		}
	}
	s.mu.Unlock()

	for _, session := range expired {
		session.worker.Stop()
	}
	if len(expired) > 0 {
		log.Infof("expired %d idle sessions", len(expired))
	}
	return len(expired)
}

// StartSweeper runs periodic TTL sweeps in the background.
// Returns a stop function.
func (s *SessionStore) StartSweeper(interval, ttl time.Duration) func() {
	ticker := time.NewTicker(interval)
	done := make(chan struct{})
	go func() {
		for {
			select {
			case <-ticker.C:
				s.Sweep(ttl)
			case <-done:
				ticker.Stop()
				return
			}
		}
	}()
	var once sync.Once
	return func() { once.Do(func() { close(done) }) }
}
