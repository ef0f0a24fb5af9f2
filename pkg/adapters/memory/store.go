// Package memory provides in-memory store adapters, used for local
// development and as the default wiring in tests.
package memory

import (
	"context"
	"fmt"
	"sync"

	"github.com/veloir/stagehand/pkg/domain"
)

// StateStore implements ports.ThreadStateStore in memory.
type StateStore struct {
	mu   sync.RWMutex
	data map[string]*domain.ThreadState
}

// NewStateStore creates an empty state store.
func NewStateStore() *StateStore {
	return &StateStore{data: make(map[string]*domain.ThreadState)}
}

// Load retrieves a deep copy of the stored state.
func (s *StateStore) Load(ctx context.Context, threadID string) (*domain.ThreadState, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	state, ok := s.data[threadID]
	if !ok {
		return nil, domain.ErrThreadNotFound
	}
	return state.Clone(), nil
}

// Save persists a deep copy, enforcing the optimistic version counter.
func (s *StateStore) Save(ctx context.Context, threadID string, state *domain.ThreadState) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if current, ok := s.data[threadID]; ok && state.Version <= current.Version {
		return fmt.Errorf("save thread %s at version %d (stored %d): %w",
			threadID, state.Version, current.Version, domain.ErrVersionConflict)
	}
	s.data[threadID] = state.Clone()
	return nil
}

// Delete removes the thread.
func (s *StateStore) Delete(ctx context.Context, threadID string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	delete(s.data, threadID)
	return nil
}

// TraceStore implements ports.TraceStore in memory. Appends enforce the
// gapless per-thread sequence so a defective caller fails loudly.
type TraceStore struct {
	mu   sync.RWMutex
	data map[string][]domain.TraceRecord
}

// NewTraceStore creates an empty trace store.
func NewTraceStore() *TraceStore {
	return &TraceStore{data: make(map[string][]domain.TraceRecord)}
}

// Append adds a record. The seq must be exactly last+1.
func (s *TraceStore) Append(ctx context.Context, rec domain.TraceRecord) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	seq := s.data[rec.ThreadID]
	want := int64(len(seq)) + 1
	if rec.Seq != want {
		return fmt.Errorf("trace append for thread %s: got seq %d, want %d", rec.ThreadID, rec.Seq, want)
	}
	s.data[rec.ThreadID] = append(seq, rec)
	return nil
}

// LoadSequence returns all records for the thread ordered by seq.
func (s *TraceStore) LoadSequence(ctx context.Context, threadID string) ([]domain.TraceRecord, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return append([]domain.TraceRecord(nil), s.data[threadID]...), nil
}
