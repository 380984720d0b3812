package session

import (
	"context"
	"sync"
	"time"
)

// MemoryStore is an in-memory session store, suitable for a single server.
type MemoryStore struct {
	mu       sync.RWMutex
	records  map[string]*record
	closed   bool
	done     chan struct{}
	onExpire func(sessionID string)
}

type record struct {
	data      []byte
	expiresAt time.Time
}

// MemoryStoreOption configures MemoryStore behavior.
type MemoryStoreOption func(*memoryStoreConfig)

type memoryStoreConfig struct {
	cleanupInterval time.Duration
	onExpire        func(sessionID string)
}

// WithCleanupInterval sets how often expired records are removed.
// Default: 1 minute.
func WithCleanupInterval(d time.Duration) MemoryStoreOption {
	return func(c *memoryStoreConfig) {
		c.cleanupInterval = d
	}
}

// WithExpireHook sets a function called for each record removed by cleanup.
func WithExpireHook(fn func(sessionID string)) MemoryStoreOption {
	return func(c *memoryStoreConfig) {
		c.onExpire = fn
	}
}

// NewMemoryStore creates a new in-memory session store.
func NewMemoryStore(opts ...MemoryStoreOption) *MemoryStore {
	cfg := &memoryStoreConfig{
		cleanupInterval: time.Minute,
	}
	for _, opt := range opts {
		opt(cfg)
	}

	store := &MemoryStore{
		records:  make(map[string]*record),
		done:     make(chan struct{}),
		onExpire: cfg.onExpire,
	}

	go store.cleanupLoop(cfg.cleanupInterval)
	return store
}

// Save stores a record with an expiration time.
func (m *MemoryStore) Save(ctx context.Context, sessionID string, data []byte, expiresAt time.Time) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	if m.closed {
		return ErrStoreClosed{}
	}

	m.records[sessionID] = &record{
		data:      append([]byte(nil), data...),
		expiresAt: expiresAt,
	}
	return nil
}

// Load retrieves a record if it exists and hasn't expired.
func (m *MemoryStore) Load(ctx context.Context, sessionID string) ([]byte, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	if m.closed {
		return nil, ErrStoreClosed{}
	}

	r, ok := m.records[sessionID]
	if !ok || time.Now().After(r.expiresAt) {
		return nil, ErrNotFound
	}
	return append([]byte(nil), r.data...), nil
}

// Delete removes a record from the store.
func (m *MemoryStore) Delete(ctx context.Context, sessionID string) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	if m.closed {
		return ErrStoreClosed{}
	}

	delete(m.records, sessionID)
	return nil
}

// Touch updates the expiration time for a record.
func (m *MemoryStore) Touch(ctx context.Context, sessionID string, expiresAt time.Time) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	if m.closed {
		return ErrStoreClosed{}
	}

	if r, ok := m.records[sessionID]; ok {
		r.expiresAt = expiresAt
	}
	return nil
}

// Close shuts down the store and releases resources.
func (m *MemoryStore) Close() error {
	m.mu.Lock()
	defer m.mu.Unlock()

	if m.closed {
		return nil
	}

	m.closed = true
	close(m.done)
	m.records = nil
	return nil
}

// Count returns the number of records in the store, expired or not.
func (m *MemoryStore) Count() int {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return len(m.records)
}

func (m *MemoryStore) cleanupLoop(interval time.Duration) {
	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	for {
		select {
		case <-ticker.C:
			m.cleanup()
		case <-m.done:
			return
		}
	}
}

func (m *MemoryStore) cleanup() {
	m.mu.Lock()
	if m.closed {
		m.mu.Unlock()
		return
	}

	now := time.Now()
	var expired []string
	for id, r := range m.records {
		if now.After(r.expiresAt) {
			expired = append(expired, id)
			delete(m.records, id)
		}
	}
	m.mu.Unlock()

	if m.onExpire != nil {
		for _, id := range expired {
			m.onExpire(id)
		}
	}
}
