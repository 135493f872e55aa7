package session

import (
	"context"
	"sync"
	"time"

	"github.com/google/uuid"
)

// Manager holds the live sessions and evicts idle ones.
type Manager struct {
	engine Engine
	opts   Options
	ttl    time.Duration

	mu       sync.Mutex
	sessions map[string]*Session
}

// NewManager returns an empty manager. A ttl of zero disables eviction.
func NewManager(engine Engine, opts Options, ttl time.Duration) *Manager {
	return &Manager{
		engine:   engine,
		opts:     opts.withDefaults(),
		ttl:      ttl,
		sessions: make(map[string]*Session),
	}
}

// Create starts a new idle session with a random id.
func (m *Manager) Create() *Session {
	s := New(uuid.NewString(), m.engine, m.opts)

	m.mu.Lock()
	m.sessions[s.ID()] = s
	n := len(m.sessions)
	m.mu.Unlock()

	m.opts.Logger.Debug("session created", "session", s.ID(), "sessions", n)
	return s
}

// Get returns the session with id or ErrNotFound. A successful lookup counts
// as activity, so a page that keeps polling keeps its session alive.
func (m *Manager) Get(id string) (*Session, error) {
	if _, err := uuid.Parse(id); err != nil {
		return nil, ErrNotFound
	}

	m.mu.Lock()
	s, ok := m.sessions[id]
	m.mu.Unlock()
	if !ok {
		return nil, ErrNotFound
	}
	s.touch()
	return s, nil
}

// Delete resets and forgets the session with id.
func (m *Manager) Delete(id string) error {
	m.mu.Lock()
	s, ok := m.sessions[id]
	delete(m.sessions, id)
	m.mu.Unlock()
	if !ok {
		return ErrNotFound
	}

	s.Reset()
	m.opts.Logger.Debug("session deleted", "session", id)
	return nil
}

// Len returns the number of live sessions.
func (m *Manager) Len() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return len(m.sessions)
}

// Sweep evicts sessions idle for longer than the TTL and returns how many it
// evicted. Evicted sessions are reset, releasing their rasters.
func (m *Manager) Sweep() int {
	if m.ttl <= 0 {
		return 0
	}
	cutoff := m.opts.Now().Add(-m.ttl)

	var expired []*Session
	m.mu.Lock()
	for id, s := range m.sessions {
		if s.LastUsed().Before(cutoff) {
			expired = append(expired, s)
			delete(m.sessions, id)
		}
	}
	m.mu.Unlock()

	for _, s := range expired {
		s.Reset()
		m.opts.Logger.Info("session evicted", "session", s.ID(), "ttl", m.ttl)
	}
	return len(expired)
}

// Run sweeps periodically until ctx is done, then resets every remaining
// session.
func (m *Manager) Run(ctx context.Context) {
	defer m.Close()
	if m.ttl <= 0 {
		<-ctx.Done()
		return
	}

	interval := m.ttl / 4
	if interval < time.Second {
		interval = time.Second
	}
	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			m.Sweep()
		}
	}
}

// Close resets and forgets every session.
func (m *Manager) Close() {
	m.mu.Lock()
	all := make([]*Session, 0, len(m.sessions))
	for id, s := range m.sessions {
		all = append(all, s)
		delete(m.sessions, id)
	}
	m.mu.Unlock()

	for _, s := range all {
		s.Reset()
	}
}
