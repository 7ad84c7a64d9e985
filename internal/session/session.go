// Package session owns the per-visitor record stores. A session is created on
// first contact, serialised by its own mutex, and torn down on End or once it
// has been idle for longer than the manager's timeout.
package session

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/google/uuid"

	"growpilot/pkg/domain"
)

// DefaultIdleTimeout is used when the manager is built without one.
const DefaultIdleTimeout = 2 * time.Hour

// ErrNotFound is returned for unknown, ended or expired session IDs.
var ErrNotFound = errors.New("session not found")

// Opener returns a fresh, empty record store.
type Opener func(ctx context.Context) (domain.RecordStore, error)

// Session pairs an ID with the store holding that visitor's records.
type Session struct {
	ID        string
	CreatedAt time.Time

	mu       sync.Mutex
	store    domain.RecordStore
	lastSeen time.Time
}

// Store returns the session's record store.
func (s *Session) Store() domain.RecordStore { return s.store }

// Do runs fn with the session locked so requests from one visitor never
// interleave.
func (s *Session) Do(fn func(domain.RecordStore) error) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	return fn(s.store)
}

// Option customises a Manager.
type Option func(*Manager)

// WithIdleTimeout sets how long an untouched session survives. Values <= 0
// keep the default.
func WithIdleTimeout(d time.Duration) Option {
	return func(m *Manager) {
		if d > 0 {
			m.idle = d
		}
	}
}

// WithClock overrides time.Now.
func WithClock(now func() time.Time) Option {
	return func(m *Manager) {
		if now != nil {
			m.now = now
		}
	}
}

// WithOnClose registers a hook invoked after a session's store is closed.
func WithOnClose(fn func(id string, err error)) Option {
	return func(m *Manager) {
		m.onClose = fn
	}
}

// Manager tracks live sessions.
type Manager struct {
	open    Opener
	idle    time.Duration
	now     func() time.Time
	onClose func(id string, err error)

	mu       sync.Mutex
	sessions map[string]*Session
}

// NewManager builds a manager that creates stores with open.
func NewManager(open Opener, opts ...Option) *Manager {
	m := &Manager{
		open:     open,
		idle:     DefaultIdleTimeout,
		now:      time.Now,
		sessions: make(map[string]*Session),
	}
	for _, opt := range opts {
		opt(m)
	}
	return m
}

// IdleTimeout reports the configured idle timeout.
func (m *Manager) IdleTimeout() time.Duration { return m.idle }

// Create starts a session with four empty logs.
func (m *Manager) Create(ctx context.Context) (*Session, error) {
	if m.open == nil {
		return nil, errors.New("session manager has no store opener")
	}
	store, err := m.open(ctx)
	if err != nil {
		return nil, fmt.Errorf("open session store: %w", err)
	}
	now := m.now()
	s := &Session{ID: uuid.NewString(), CreatedAt: now, store: store, lastSeen: now}
	m.mu.Lock()
	m.sessions[s.ID] = s
	m.mu.Unlock()
	return s, nil
}

// Get returns a live session and refreshes its idle clock. An expired session
// is torn down and reported as missing.
func (m *Manager) Get(id string) (*Session, bool) {
	now := m.now()
	m.mu.Lock()
	s, ok := m.sessions[id]
	if !ok {
		m.mu.Unlock()
		return nil, false
	}
	if m.expired(s, now) {
		delete(m.sessions, id)
		m.mu.Unlock()
		m.close(s)
		return nil, false
	}
	s.lastSeen = now
	m.mu.Unlock()
	return s, true
}

// Lookup is Get with an error for callers that propagate one.
func (m *Manager) Lookup(id string) (*Session, error) {
	s, ok := m.Get(id)
	if !ok {
		return nil, fmt.Errorf("%w: %q", ErrNotFound, id)
	}
	return s, nil
}

// End tears a session down. It reports whether the session existed.
func (m *Manager) End(id string) bool {
	m.mu.Lock()
	s, ok := m.sessions[id]
	delete(m.sessions, id)
	m.mu.Unlock()
	if ok {
		m.close(s)
	}
	return ok
}

// Sweep ends every idle session and returns how many were removed.
func (m *Manager) Sweep() int {
	now := m.now()
	var stale []*Session
	m.mu.Lock()
	for id, s := range m.sessions {
		if m.expired(s, now) {
			stale = append(stale, s)
			delete(m.sessions, id)
		}
	}
	m.mu.Unlock()
	for _, s := range stale {
		m.close(s)
	}
	return len(stale)
}

// Len returns the number of tracked sessions, expired ones included until
// the next Get or Sweep.
func (m *Manager) Len() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return len(m.sessions)
}

// Close ends every session.
func (m *Manager) Close() {
	m.mu.Lock()
	all := make([]*Session, 0, len(m.sessions))
	for id, s := range m.sessions {
		all = append(all, s)
		delete(m.sessions, id)
	}
	m.mu.Unlock()
	for _, s := range all {
		m.close(s)
	}
}

func (m *Manager) expired(s *Session, now time.Time) bool {
	return now.Sub(s.lastSeen) > m.idle
}

// close waits for in-flight work on the session before releasing its store.
func (m *Manager) close(s *Session) {
	s.mu.Lock()
	err := s.store.Close()
	s.mu.Unlock()
	if m.onClose != nil {
		m.onClose(s.ID, err)
	}
}
