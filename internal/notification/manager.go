package notification

import (
	"context"
	"errors"
	"sync"
	"time"

	"github.com/patrickmn/go-cache"
	"github.com/rs/zerolog/log"
	"golang.org/x/sync/singleflight"

	appErrors "github.com/unclebandit/retention-backend/internal/errors"
	"github.com/unclebandit/retention-backend/internal/queue"
)

var errManagerClosed = errors.New("session manager closed")

// Manager keeps one Session per user for the HTTP surface. Sessions start on
// first use and are closed when idle for longer than the TTL, when ended
// explicitly, or on Close.
type Manager struct {
	source queue.Source
	stores Stores
	opts   Options

	// mu guards cache mutations and closed. It is never held across Start.
	mu       sync.Mutex
	closed   bool
	sessions *cache.Cache
	starts   singleflight.Group
}

func NewManager(source queue.Source, stores Stores, opts Options, ttl time.Duration) *Manager {
	return newManager(source, stores, opts, ttl, ttl/2)
}

func newManager(source queue.Source, stores Stores, opts Options, ttl, cleanup time.Duration) *Manager {
	m := &Manager{
		source:   source,
		stores:   stores,
		opts:     opts,
		sessions: cache.New(ttl, cleanup),
	}
	m.sessions.OnEvicted(func(userID string, v interface{}) {
		m.release(userID, v.(*Session))
	})
	return m
}

// Get returns the user's session, starting a new one if needed. Every call
// pushes the idle deadline back. Concurrent first calls for one user share a
// single start; a session that fails to start is closed.
func (m *Manager) Get(ctx context.Context, userID string) (*Session, error) {
	if s, ok, err := m.lookup(userID); ok || err != nil {
		return s, err
	}

	v, err, _ := m.starts.Do(userID, func() (interface{}, error) {
		if s, ok, err := m.lookup(userID); ok || err != nil {
			return s, err
		}
		return m.start(ctx, userID)
	})
	if err != nil {
		return nil, err
	}
	return v.(*Session), nil
}

func (m *Manager) lookup(userID string) (*Session, bool, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.closed {
		return nil, false, appErrors.AdapterUnavailable("notification sessions", errManagerClosed)
	}
	v, ok := m.sessions.Get(userID)
	if !ok {
		return nil, false, nil
	}
	s := v.(*Session)
	m.sessions.SetDefault(userID, s)
	return s, true, nil
}

func (m *Manager) start(ctx context.Context, userID string) (*Session, error) {
	// An expired entry is invisible to Get but still open; close it before replacing it.
	m.mu.Lock()
	m.sessions.DeleteExpired()
	m.mu.Unlock()

	s := NewSession(userID, m.source, m.stores, m.opts)
	if err := s.Start(ctx); err != nil {
		m.discard(userID, s)
		return nil, err
	}

	m.mu.Lock()
	if m.closed {
		m.mu.Unlock()
		m.discard(userID, s)
		return nil, appErrors.AdapterUnavailable("notification sessions", errManagerClosed)
	}
	m.sessions.SetDefault(userID, s)
	if m.opts.Metrics != nil {
		m.opts.Metrics.ActiveSessions.Inc()
	}
	m.mu.Unlock()

	log.Debug().Str("user_id", userID).Msg("notification session started")
	return s, nil
}

func (m *Manager) discard(userID string, s *Session) {
	if err := s.Close(); err != nil {
		log.Warn().Err(err).Str("user_id", userID).Msg("failed to release subscriptions of unstarted session")
	}
}

// End closes the user's session if there is one.
func (m *Manager) End(userID string) {
	m.mu.Lock()
	defer m.mu.Unlock()
	// Delete runs the eviction callback.
	m.sessions.Delete(userID)
}

// Len reports the number of live sessions.
func (m *Manager) Len() int {
	return m.sessions.ItemCount()
}

// Close ends every session, expired ones included, and refuses new ones.
func (m *Manager) Close() {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.closed = true
	// Items skips entries past their TTL that the janitor has not reached yet.
	m.sessions.DeleteExpired()
	for userID := range m.sessions.Items() {
		m.sessions.Delete(userID)
	}
}

func (m *Manager) release(userID string, s *Session) {
	if err := s.Close(); err != nil {
		log.Warn().Err(err).Str("user_id", userID).Msg("failed to release notification subscriptions")
	}
	if m.opts.Metrics != nil {
		m.opts.Metrics.ActiveSessions.Dec()
	}
	log.Debug().Str("user_id", userID).Msg("notification session closed")
}
