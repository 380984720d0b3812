package session

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/fundsavy/fundsavy/pkg/auth"
	"github.com/fundsavy/fundsavy/pkg/middleware"
)

// DefaultTTL is how long a session lasts when no TTL is configured.
const DefaultTTL = 24 * time.Hour

// Manager issues and resolves sessions.
type Manager struct {
	store  Store
	ttl    time.Duration
	logger *slog.Logger
	now    func() time.Time

	mu      sync.Mutex
	live    map[string]*auth.Session
	closing bool
}

// ManagerOption configures a Manager.
type ManagerOption func(*Manager)

// WithTTL sets the session lifetime.
func WithTTL(ttl time.Duration) ManagerOption {
	return func(m *Manager) {
		if ttl > 0 {
			m.ttl = ttl
		}
	}
}

// WithLogger sets the manager logger.
func WithLogger(logger *slog.Logger) ManagerOption {
	return func(m *Manager) {
		if logger != nil {
			m.logger = logger
		}
	}
}

// NewManager creates a manager persisting sessions in store.
func NewManager(store Store, opts ...ManagerOption) *Manager {
	m := &Manager{
		store:  store,
		ttl:    DefaultTTL,
		logger: slog.Default(),
		now:    time.Now,
		live:   make(map[string]*auth.Session),
	}
	for _, opt := range opts {
		opt(m)
	}
	return m
}

// Create starts a session for p. The principal's SessionID and ExpiresAt
// are assigned here.
func (m *Manager) Create(ctx context.Context, p auth.Principal) (*auth.Session, error) {
	p.SessionID = uuid.NewString()
	p.ExpiresAt = m.now().Add(m.ttl)

	data, err := json.Marshal(p)
	if err != nil {
		return nil, fmt.Errorf("session: encoding principal: %w", err)
	}
	if err := m.store.Save(ctx, p.SessionID, data, p.ExpiresAt); err != nil {
		return nil, fmt.Errorf("session: saving %s: %w", p.SessionID, err)
	}

	sess := m.track(p)
	m.logger.Info("session started", "session", p.SessionID, "user", p.ID, "provider", p.Provider)
	return sess, nil
}

// Resolve returns the active session with the given ID. Sessions persisted
// by an earlier process are revived from the store.
func (m *Manager) Resolve(ctx context.Context, sessionID string) (*auth.Session, error) {
	if sessionID == "" {
		return nil, auth.ErrUnauthorized
	}

	m.mu.Lock()
	sess, ok := m.live[sessionID]
	m.mu.Unlock()
	if ok && sess.Err() == nil {
		return sess, nil
	}

	data, err := m.store.Load(ctx, sessionID)
	if errors.Is(err, ErrNotFound) {
		return nil, auth.ErrUnauthorized
	}
	if err != nil {
		return nil, fmt.Errorf("session: loading %s: %w", sessionID, err)
	}

	var p auth.Principal
	if err := json.Unmarshal(data, &p); err != nil {
		return nil, fmt.Errorf("session: decoding %s: %w", sessionID, err)
	}
	if p.SessionID != sessionID || p.Expired(m.now()) {
		return nil, auth.ErrUnauthorized
	}
	return m.track(p), nil
}

// End signs out the session with the given ID.
func (m *Manager) End(ctx context.Context, sessionID string) error {
	sess, err := m.Resolve(ctx, sessionID)
	if err != nil {
		return err
	}
	sess.SignOut()
	return nil
}

// Count returns the number of live sessions.
func (m *Manager) Count() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return len(m.live)
}

// Close signs out every live session. Stored records are kept so that
// sessions survive a restart with a persistent store.
func (m *Manager) Close() {
	m.mu.Lock()
	m.closing = true
	live := make([]*auth.Session, 0, len(m.live))
	for _, s := range m.live {
		live = append(live, s)
	}
	m.mu.Unlock()

	for _, s := range live {
		s.SignOut()
	}
}

func (m *Manager) track(p auth.Principal) *auth.Session {
	m.mu.Lock()
	if existing, ok := m.live[p.SessionID]; ok && existing.Err() == nil {
		m.mu.Unlock()
		return existing
	}
	sess := auth.Start(p)
	m.live[p.SessionID] = sess
	m.mu.Unlock()

	middleware.RecordSessionStart()
	sess.OnSignOut(func() {
		m.mu.Lock()
		if m.live[p.SessionID] == sess {
			delete(m.live, p.SessionID)
		}
		closing := m.closing
		m.mu.Unlock()
		middleware.RecordSessionEnd()

		// Expired records are left to the store's cleanup.
		if !closing && errors.Is(sess.Err(), auth.ErrSessionEnded) {
			if err := m.store.Delete(context.Background(), p.SessionID); err != nil {
				m.logger.Warn("session delete failed", "session", p.SessionID, "error", err)
			}
			m.logger.Info("session ended", "session", p.SessionID, "user", p.ID)
		}
	})
	return sess
}
