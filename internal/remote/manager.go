package remote

import (
	"context"
	"errors"
	"sync"
	"time"

	"github.com/rs/zerolog"
	"github.com/yz4230/shipyard/internal/metrics"
)

const (
	DefaultIdleTimeout   = 5 * time.Minute
	DefaultEvictInterval = time.Minute
	DefaultProbeTimeout  = 10 * time.Second
)

type entry struct {
	mu       sync.Mutex
	session  Session
	lastUsed time.Time
	// leases counts Acquire calls on session not yet released
	leases  int
	removed bool
}

// Manager caches one session per endpoint and hands it out to every caller
// targeting that endpoint.
type Manager struct {
	dialer       Dialer
	log          zerolog.Logger
	probeTimeout time.Duration
	now          func() time.Time

	mu      sync.Mutex
	entries map[Key]*entry
}

type ManagerOption func(*Manager)

func WithProbeTimeout(d time.Duration) ManagerOption {
	return func(m *Manager) { m.probeTimeout = d }
}

func WithClock(now func() time.Time) ManagerOption {
	return func(m *Manager) { m.now = now }
}

func NewManager(dialer Dialer, log zerolog.Logger, opts ...ManagerOption) *Manager {
	m := &Manager{
		dialer:       dialer,
		log:          log.With().Str("component", "sessions").Logger(),
		probeTimeout: DefaultProbeTimeout,
		now:          time.Now,
		entries:      map[Key]*entry{},
	}
	for _, opt := range opts {
		opt(m)
	}
	return m
}

// Acquire returns the cached session for ep when it still answers a probe,
// otherwise it replaces it with a freshly dialed one. The caller holds a lease on the
// session until it calls Release; leased sessions are never evicted as idle.
func (m *Manager) Acquire(ctx context.Context, ep Endpoint, auth Auth) (Session, error) {
	if err := auth.Validate(); err != nil {
		return nil, err
	}
	key := ep.Key()
	for {
		e := m.entry(key)
		e.mu.Lock()
		if e.removed {
			// evicted while we waited for the lock
			e.mu.Unlock()
			continue
		}
		s, err := m.acquireLocked(ctx, key, e, ep, auth)
		e.mu.Unlock()
		return s, err
	}
}

func (m *Manager) entry(key Key) *entry {
	m.mu.Lock()
	defer m.mu.Unlock()
	e, ok := m.entries[key]
	if !ok {
		e = &entry{}
		m.entries[key] = e
	}
	return e
}

func (m *Manager) acquireLocked(ctx context.Context, key Key, e *entry, ep Endpoint, auth Auth) (Session, error) {
	log := m.log.With().Str("key", string(key)).Logger()
	if e.session != nil {
		probeCtx, cancel := context.WithTimeout(ctx, m.probeTimeout)
		err := e.session.Ping(probeCtx)
		cancel()
		if err == nil {
			e.lastUsed = m.now()
			e.leases++
			metrics.SessionEventsTotal.WithLabelValues("reused").Inc()
			return e.session, nil
		}
		log.Warn().Err(err).Msg("cached session did not answer probe, reconnecting")
		metrics.SessionEventsTotal.WithLabelValues("probe_failed").Inc()
		_ = e.session.Close()
		e.session = nil
		e.leases = 0
		metrics.SessionsOpen.Dec()
	}

	s, err := m.dialer.Dial(ctx, ep, auth)
	if err != nil {
		metrics.SessionEventsTotal.WithLabelValues("dial_failed").Inc()
		e.removed = true
		m.mu.Lock()
		if m.entries[key] == e {
			delete(m.entries, key)
		}
		m.mu.Unlock()
		var ce *ConnectError
		if !errors.As(err, &ce) {
			err = &ConnectError{Endpoint: ep, Err: err}
		}
		return nil, err
	}
	e.session = s
	e.lastUsed = m.now()
	e.leases = 1
	metrics.SessionEventsTotal.WithLabelValues("created").Inc()
	metrics.SessionsOpen.Inc()
	log.Info().Msg("ssh session established")
	return s, nil
}

// Release returns a lease on s taken by Acquire for ep and marks the session used now.
// Releasing a session that was replaced or closed in the meantime is a no-op.
func (m *Manager) Release(ep Endpoint, s Session) {
	m.mu.Lock()
	e, ok := m.entries[ep.Key()]
	m.mu.Unlock()
	if !ok {
		return
	}
	e.mu.Lock()
	defer e.mu.Unlock()
	if e.removed || e.session != s {
		return
	}
	if e.leases > 0 {
		e.leases--
	}
	e.lastUsed = m.now()
}

// EvictIdle closes sessions without leases that were unused for longer than maxAge and
// returns how many were closed.
func (m *Manager) EvictIdle(maxAge time.Duration) int {
	now := m.now()
	return m.removeWhere(func(e *entry) bool {
		if e.leases > 0 {
			return false
		}
		return e.session == nil || now.Sub(e.lastUsed) > maxAge
	}, "evicted")
}

// CloseAll closes every cached session.
func (m *Manager) CloseAll() int {
	return m.removeWhere(func(*entry) bool { return true }, "closed")
}

func (m *Manager) removeWhere(match func(*entry) bool, reason string) int {
	m.mu.Lock()
	snapshot := make(map[Key]*entry, len(m.entries))
	for k, e := range m.entries {
		snapshot[k] = e
	}
	m.mu.Unlock()

	n := 0
	for key, e := range snapshot {
		e.mu.Lock()
		if e.removed || !match(e) {
			e.mu.Unlock()
			continue
		}
		if e.session != nil {
			if err := e.session.Close(); err != nil {
				m.log.Debug().Err(err).Str("key", string(key)).Msg("close session")
			}
			e.session = nil
			metrics.SessionsOpen.Dec()
			metrics.SessionEventsTotal.WithLabelValues("evicted").Inc()
			m.log.Info().Str("key", string(key)).Str("reason", reason).Msg("ssh session closed")
			n++
		}
		e.removed = true
		m.mu.Lock()
		if m.entries[key] == e {
			delete(m.entries, key)
		}
		m.mu.Unlock()
		e.mu.Unlock()
	}
	return n
}

// Len returns the number of cached sessions.
func (m *Manager) Len() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return len(m.entries)
}

// RunEvictionLoop evicts idle sessions every interval until ctx is done.
func (m *Manager) RunEvictionLoop(ctx context.Context, interval, maxAge time.Duration) {
	if interval <= 0 {
		interval = DefaultEvictInterval
	}
	if maxAge <= 0 {
		maxAge = DefaultIdleTimeout
	}
	ticker := time.NewTicker(interval)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			if n := m.EvictIdle(maxAge); n > 0 {
				m.log.Debug().Int("count", n).Msg("evicted idle sessions")
			}
		}
	}
}
