package session

import (
	"context"
	"fmt"
	"sync"
	"time"

	"log/slog"

	"github.com/veloir/stagehand/internal/logging"
	"github.com/veloir/stagehand/pkg/domain"
	"github.com/veloir/stagehand/pkg/ports"
)

// lockEntry holds the mutex and the reference count.
type lockEntry struct {
	mu   sync.Mutex
	refs int
}

// Manager orchestrates thread state access, ensuring a later message
// always sees the state left by the prior message's trace append.
// It uses reference counting to garbage collect unused locks.
type Manager struct {
	store ports.ThreadStateStore

	mu    sync.Mutex
	locks map[string]*lockEntry

	locker  ports.DistributedLocker // optional, for multi-replica deployments
	lockTTL time.Duration
	logger  *slog.Logger
}

// Option configures the Manager.
type Option func(*Manager)

// WithLocker enables distributed locking across replicas.
func WithLocker(locker ports.DistributedLocker) Option {
	return func(m *Manager) {
		m.locker = locker
	}
}

// WithLockTTL overrides the distributed lock TTL (default 30s).
func WithLockTTL(ttl time.Duration) Option {
	return func(m *Manager) {
		m.lockTTL = ttl
	}
}

// WithLogger configures a logger for deferred errors.
func WithLogger(logger *slog.Logger) Option {
	return func(m *Manager) {
		m.logger = logger
	}
}

// NewManager creates a thread manager over the given state store.
func NewManager(store ports.ThreadStateStore, opts ...Option) *Manager {
	m := &Manager{
		store:   store,
		locks:   make(map[string]*lockEntry),
		lockTTL: 30 * time.Second,
		logger:  logging.NewNop(),
	}
	for _, opt := range opts {
		opt(m)
	}
	return m
}

// acquire gets or creates a lock entry and increments its reference count.
func (m *Manager) acquire(threadID string) *lockEntry {
	m.mu.Lock()
	defer m.mu.Unlock()

	entry, exists := m.locks[threadID]
	if !exists {
		entry = &lockEntry{}
		m.locks[threadID] = entry
	}
	entry.refs++
	return entry
}

// release decrements the reference count and deletes the entry at zero.
func (m *Manager) release(threadID string) {
	m.mu.Lock()
	defer m.mu.Unlock()

	entry, exists := m.locks[threadID]
	if !exists {
		return
	}

	entry.refs--
	if entry.refs <= 0 {
		delete(m.locks, threadID)
	}
}

// Load retrieves an existing thread from the store.
func (m *Manager) Load(ctx context.Context, threadID string) (*domain.ThreadState, error) {
	var state *domain.ThreadState
	err := m.WithLock(ctx, threadID, func(ctx context.Context) error {
		var err error
		state, err = m.store.Load(ctx, threadID)
		return err
	})
	return state, err
}

// LoadOrStart tries to load a thread. If not found, it initializes a
// new one at the entry stage and persists it to reserve the ID.
func (m *Manager) LoadOrStart(ctx context.Context, threadID, entryStageID string) (*domain.ThreadState, error) {
	var state *domain.ThreadState
	err := m.WithLock(ctx, threadID, func(ctx context.Context) error {
		var err error
		state, err = m.store.Load(ctx, threadID)
		if err == nil {
			return nil
		}
		if err != domain.ErrThreadNotFound {
			return fmt.Errorf("failed to check thread existence: %w", err)
		}

		state = domain.NewThreadState(threadID, entryStageID)
		state.Version = 1
		if err := m.store.Save(ctx, threadID, state); err != nil {
			return fmt.Errorf("failed to initialize thread: %w", err)
		}
		return nil
	})
	return state, err
}

// Save persists the thread state.
func (m *Manager) Save(ctx context.Context, threadID string, state *domain.ThreadState) error {
	return m.WithLock(ctx, threadID, func(ctx context.Context) error {
		return m.store.Save(ctx, threadID, state)
	})
}

// Delete removes the thread from the store.
func (m *Manager) Delete(ctx context.Context, threadID string) error {
	return m.WithLock(ctx, threadID, func(ctx context.Context) error {
		return m.store.Delete(ctx, threadID)
	})
}

// Store returns the underlying state store.
func (m *Manager) Store() ports.ThreadStateStore {
	return m.store
}

// WithLock executes fn while holding the lock for the thread. Nested
// calls from inside fn must use the store directly, not the manager.
func (m *Manager) WithLock(ctx context.Context, threadID string, fn func(context.Context) error) error {
	entry := m.acquire(threadID)
	entry.mu.Lock()
	defer func() {
		entry.mu.Unlock()
		m.release(threadID)
	}()

	if m.locker != nil {
		unlock, err := m.locker.Lock(ctx, threadID, m.lockTTL)
		if err != nil {
			return fmt.Errorf("failed to acquire distributed lock: %w", err)
		}
		defer func() {
			if err := unlock(ctx); err != nil {
				m.logger.Warn("failed to release distributed lock (will expire via TTL)",
					"thread_id", threadID,
					"err", err,
				)
			}
		}()
	}

	return fn(ctx)
}
