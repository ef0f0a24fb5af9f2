package domain

import (
	"context"
	"time"
)

// StageEvent represents entry to or exit from a stage during execution.
type StageEvent struct {
	Timestamp time.Time `json:"timestamp"`
	ThreadID  string    `json:"thread_id"`
	StageID   string    `json:"stage_id"`
}

// TraceEvent is emitted after a trace record is durably appended.
type TraceEvent struct {
	Timestamp time.Time `json:"timestamp"`
	ThreadID  string    `json:"thread_id"`
	Seq       int64     `json:"seq"`
	StageID   string    `json:"stage_id"`
	Duration  time.Duration
}

// LifecycleHooks defines callbacks for executor observability.
type LifecycleHooks struct {
	OnStageEnter  func(context.Context, *StageEvent)
	OnStageLeave  func(context.Context, *StageEvent)
	OnTraceAppend func(context.Context, *TraceEvent)
}
