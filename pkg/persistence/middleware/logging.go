package middleware

import (
	"context"
	"time"

	"log/slog"

	"github.com/veloir/stagehand/pkg/domain"
	"github.com/veloir/stagehand/pkg/ports"
)

type loggingMiddleware struct {
	next   ports.ThreadStateStore
	logger *slog.Logger
}

// NewLoggingMiddleware logs every store operation with its duration,
// useful when diagnosing persistence latency.
func NewLoggingMiddleware(logger *slog.Logger) Middleware {
	return func(next ports.ThreadStateStore) ports.ThreadStateStore {
		return &loggingMiddleware{next: next, logger: logger}
	}
}

func (m *loggingMiddleware) Save(ctx context.Context, threadID string, state *domain.ThreadState) error {
	start := time.Now()
	err := m.next.Save(ctx, threadID, state)
	m.log("save", threadID, start, err, "version", state.Version)
	return err
}

func (m *loggingMiddleware) Load(ctx context.Context, threadID string) (*domain.ThreadState, error) {
	start := time.Now()
	state, err := m.next.Load(ctx, threadID)
	m.log("load", threadID, start, err)
	return state, err
}

func (m *loggingMiddleware) Delete(ctx context.Context, threadID string) error {
	start := time.Now()
	err := m.next.Delete(ctx, threadID)
	m.log("delete", threadID, start, err)
	return err
}

func (m *loggingMiddleware) log(op, threadID string, start time.Time, err error, extra ...any) {
	args := append([]any{
		"op", op,
		"thread_id", threadID,
		"duration", time.Since(start),
	}, extra...)
	if err != nil {
		args = append(args, "err", err)
		m.logger.Warn("state store operation failed", args...)
		return
	}
	m.logger.Debug("state store operation", args...)
}
