// Package session keeps ingested statements in memory, keyed by session id.
package session

import (
	"errors"
	"log/slog"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/FACorreiaa/mpesa-insights/internal/domain/statement"
)

// ErrNotFound is returned for unknown or expired sessions.
var ErrNotFound = errors.New("session not found")

// Session is an immutable snapshot of one session's state.
type Session struct {
	ID        uuid.UUID
	Version   uint64
	Statement *statement.Statement
	CreatedAt time.Time
	UpdatedAt time.Time
}

// Gauge receives the number of live sessions.
type Gauge interface {
	Set(float64)
}

// EvictFunc is called after a session is removed.
type EvictFunc func(id uuid.UUID)

type record struct {
	snapshot   *Session
	lastAccess time.Time
}

// Store holds sessions. Writes are serialized; readers receive immutable
// snapshots and never block each other for long.
type Store struct {
	mu       sync.RWMutex
	sessions map[uuid.UUID]*record
	ttl      time.Duration
	now      func() time.Time
	gauge    Gauge
	onEvict  []EvictFunc
	logger   *slog.Logger
}

// Option configures a Store.
type Option func(*Store)

// WithClock overrides time.Now.
func WithClock(now func() time.Time) Option {
	return func(s *Store) { s.now = now }
}

// WithGauge reports the live session count.
func WithGauge(g Gauge) Option {
	return func(s *Store) { s.gauge = g }
}

// NewStore creates a store whose sessions expire ttl after last access.
// A zero ttl disables expiry.
func NewStore(ttl time.Duration, logger *slog.Logger, opts ...Option) *Store {
	s := &Store{
		sessions: make(map[uuid.UUID]*record),
		ttl:      ttl,
		now:      time.Now,
		logger:   logger,
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// OnEvict registers a listener for deletions and expiries.
func (s *Store) OnEvict(fn EvictFunc) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.onEvict = append(s.onEvict, fn)
}

// Create reserves a new empty session.
func (s *Store) Create() *Session {
	now := s.now()
	snap := &Session{ID: uuid.New(), CreatedAt: now, UpdatedAt: now}

	s.mu.Lock()
	s.sessions[snap.ID] = &record{snapshot: snap, lastAccess: now}
	n := len(s.sessions)
	s.mu.Unlock()

	s.report(n)
	return snap
}

// Replace swaps in stmt as the session's statement and bumps its version.
// An unknown id creates the session. The last writer wins.
func (s *Store) Replace(id uuid.UUID, stmt *statement.Statement) *Session {
	now := s.now()

	s.mu.Lock()
	rec, ok := s.sessions[id]
	next := &Session{ID: id, Version: 1, Statement: stmt, CreatedAt: now, UpdatedAt: now}
	if ok {
		next.Version = rec.snapshot.Version + 1
		next.CreatedAt = rec.snapshot.CreatedAt
	}
	s.sessions[id] = &record{snapshot: next, lastAccess: now}
	n := len(s.sessions)
	s.mu.Unlock()

	s.report(n)
	s.logger.Debug("session replaced",
		slog.String("session_id", id.String()),
		slog.Uint64("version", next.Version))
	return next
}

// Get returns the current snapshot and refreshes its expiry.
func (s *Store) Get(id uuid.UUID) (*Session, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	rec, ok := s.sessions[id]
	if !ok || s.expired(rec, s.now()) {
		return nil, ErrNotFound
	}
	rec.lastAccess = s.now()
	return rec.snapshot, nil
}

// Peek returns the current snapshot without refreshing its expiry.
func (s *Store) Peek(id uuid.UUID) (*Session, bool) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	rec, ok := s.sessions[id]
	if !ok {
		return nil, false
	}
	return rec.snapshot, true
}

// Delete removes a session.
func (s *Store) Delete(id uuid.UUID) error {
	s.mu.Lock()
	_, ok := s.sessions[id]
	delete(s.sessions, id)
	n := len(s.sessions)
	listeners := s.onEvict
	s.mu.Unlock()

	if !ok {
		return ErrNotFound
	}
	s.report(n)
	for _, fn := range listeners {
		fn(id)
	}
	return nil
}

// Sweep removes sessions idle for longer than the TTL and returns how many
// were removed.
func (s *Store) Sweep(now time.Time) int {
	s.mu.Lock()
	var evicted []uuid.UUID
	for id, rec := range s.sessions {
		if s.expired(rec, now) {
			delete(s.sessions, id)
			evicted = append(evicted, id)
		}
	}
	n := len(s.sessions)
	listeners := s.onEvict
	s.mu.Unlock()

	if len(evicted) == 0 {
		return 0
	}
	s.report(n)
	for _, id := range evicted {
		for _, fn := range listeners {
			fn(id)
		}
	}
	s.logger.Info("expired sessions swept",
		slog.Int("evicted", len(evicted)),
		slog.Int("remaining", n))
	return len(evicted)
}

// Len returns the number of sessions.
func (s *Store) Len() int {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return len(s.sessions)
}

func (s *Store) expired(rec *record, now time.Time) bool {
	return s.ttl > 0 && now.Sub(rec.lastAccess) > s.ttl
}

func (s *Store) report(n int) {
	if s.gauge != nil {
		s.gauge.Set(float64(n))
	}
}
