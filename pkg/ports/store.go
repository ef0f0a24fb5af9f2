package ports

import (
	"context"

	"github.com/veloir/stagehand/pkg/domain"
)

// ThreadStateStore persists conversation thread state.
type ThreadStateStore interface {
	// Load retrieves the state for a given thread ID.
	// Returns domain.ErrThreadNotFound if the thread does not exist.
	Load(ctx context.Context, threadID string) (*domain.ThreadState, error)

	// Save persists the state. Implementations must reject writes whose
	// Version does not advance the stored one with domain.ErrVersionConflict.
	Save(ctx context.Context, threadID string, state *domain.ThreadState) error

	// Delete removes the state for a given thread ID.
	Delete(ctx context.Context, threadID string) error
}

// TraceStore is the append-only log of executed stage invocations.
// LoadSequence must return records strictly ordered by the gapless
// per-thread sequence number; this ordering is the only hard contract
// at the boundary.
type TraceStore interface {
	Append(ctx context.Context, rec domain.TraceRecord) error
	LoadSequence(ctx context.Context, threadID string) ([]domain.TraceRecord, error)
}
