// Package runtime implements the live execution path of the pipeline:
// stage routing and the per-turn executor state machine.
package runtime

import (
	"context"
	"fmt"
	"time"

	"log/slog"

	"github.com/veloir/stagehand/internal/logging"
	"github.com/veloir/stagehand/pkg/classifier"
	"github.com/veloir/stagehand/pkg/domain"
	"github.com/veloir/stagehand/pkg/flags"
	"github.com/veloir/stagehand/pkg/ports"
	"github.com/veloir/stagehand/pkg/session"
)

// visitsKey is the reserved DDSState key tracking per-stage entry counts
// for the loop budget. Reserved meta keys use a leading underscore.
const visitsKey = "_stage_visits"

// IntentClassifier is the classification capability the executor consults.
type IntentClassifier interface {
	Classify(ctx context.Context, text string, opts classifier.Options) (domain.IntentResult, error)
}

// Executor runs one pipeline turn per inbound message. Per-thread
// serialization comes from the session manager; the trace append is the
// ordering boundary: visible state is updated only after the matching
// trace record is durably appended.
type Executor struct {
	catalog      domain.Catalog
	router       *Router
	classifier   IntentClassifier
	threads      *session.Manager
	traces       ports.TraceStore
	instructions ports.InstructionProvider
	registry     *ports.LogicRegistry
	flags        *flags.Controller

	hooks       domain.LifecycleHooks
	logger      *slog.Logger
	maxRevisits int
	now         func() time.Time
}

// Option configures the Executor.
type Option func(*Executor)

// WithLifecycleHooks registers observability hooks.
func WithLifecycleHooks(hooks domain.LifecycleHooks) Option {
	return func(e *Executor) {
		e.hooks = hooks
	}
}

// WithLogger sets a structured logger.
func WithLogger(logger *slog.Logger) Option {
	return func(e *Executor) {
		if logger != nil {
			e.logger = logger
		}
	}
}

// WithMaxStageRevisits bounds how often a single stage may be re-entered
// on one thread. Zero means unbounded (loops are legal conversation
// structure; the budget is a safety valve, not a cycle ban).
func WithMaxStageRevisits(n int) Option {
	return func(e *Executor) {
		e.maxRevisits = n
	}
}

// WithClock overrides the trace timestamp source.
func WithClock(now func() time.Time) Option {
	return func(e *Executor) {
		e.now = now
	}
}

// NewExecutor wires the executor. The catalog must already be validated
// and the registry's coverage checked; NewExecutor trusts both.
func NewExecutor(
	catalog domain.Catalog,
	router *Router,
	cls IntentClassifier,
	threads *session.Manager,
	traces ports.TraceStore,
	instructions ports.InstructionProvider,
	registry *ports.LogicRegistry,
	flagCtl *flags.Controller,
	opts ...Option,
) *Executor {
	e := &Executor{
		catalog:      catalog,
		router:       router,
		classifier:   cls,
		threads:      threads,
		traces:       traces,
		instructions: instructions,
		registry:     registry,
		flags:        flagCtl,
		logger:       logging.NewNop(),
		now:          time.Now,
	}
	for _, opt := range opts {
		opt(e)
	}
	return e
}

// Execute runs one turn: classify, route, run stage logic, append the
// trace, then persist the updated thread state. Classifier, router and
// stage-logic failures abort the turn without mutating thread state or
// appending a trace.
func (e *Executor) Execute(ctx context.Context, threadID, message string) (*domain.StageOutcome, error) {
	var outcome *domain.StageOutcome
	err := e.threads.WithLock(ctx, threadID, func(ctx context.Context) error {
		var err error
		outcome, err = e.executeLocked(ctx, threadID, message)
		return err
	})
	return outcome, err
}

func (e *Executor) executeLocked(ctx context.Context, threadID, message string) (*domain.StageOutcome, error) {
	store := e.threads.Store()

	state, err := store.Load(ctx, threadID)
	if err == domain.ErrThreadNotFound {
		state = domain.NewThreadState(threadID, e.catalog.EntryStageID)
		state.Version = 1
		if err := store.Save(ctx, threadID, state); err != nil {
			return nil, &domain.PersistenceError{Op: "save_state", Err: err}
		}
	} else if err != nil {
		return nil, fmt.Errorf("failed to load thread %s: %w", threadID, err)
	}

	if state.Status == domain.StatusComplete {
		return &domain.StageOutcome{
			ThreadID:      threadID,
			StageID:       state.CurrentStageID,
			EndOfPipeline: true,
		}, nil
	}

	// CLASSIFYING
	snapshot := e.flags.Get()
	intent, err := e.classifier.Classify(ctx, message, classifier.Options{
		Language:       state.Language,
		Threshold:      snapshot.Float(flags.ConfidenceThreshold, classifier.DefaultThreshold),
		UseLLMFallback: snapshot.Bool(flags.UseLLMFallback, false),
	})
	if err != nil {
		return nil, fmt.Errorf("classification failed: %w", err)
	}

	// ROUTING
	nextID, err := e.router.Route(ctx, state.CurrentStageID, state, intent)
	if err == domain.ErrEndOfPipeline {
		// Current stage is terminal: completion, not an error.
		return &domain.StageOutcome{
			ThreadID:      threadID,
			StageID:       state.CurrentStageID,
			EndOfPipeline: true,
		}, nil
	}
	if err != nil {
		return nil, err
	}

	if e.maxRevisits > 0 && stageVisits(state, nextID) >= e.maxRevisits {
		return nil, &domain.RoutingError{
			Code:    domain.CodeLoopBudgetExceeded,
			StageID: nextID,
			Detail:  fmt.Sprintf("stage re-entered more than %d times", e.maxRevisits),
		}
	}

	// EXECUTING_STAGE
	stage, _ := e.catalog.Get(nextID) // validated graph guarantees the id is real
	started := e.now()
	e.emitStageEnter(ctx, threadID, nextID)

	var instr domain.InstructionSet
	if stage.InstructionSetID != "" {
		instr, err = e.instructions.Get(ctx, stage.InstructionSetID)
		if err != nil {
			return nil, fmt.Errorf("instruction set for stage %s: %w", nextID, err)
		}
	}

	logic, ok := e.registry.Get(nextID)
	if !ok {
		// Coverage is validated at startup; reaching this means the
		// registry was swapped out from under us.
		return nil, fmt.Errorf("no logic registered for stage %s", nextID)
	}

	stateBefore := state.Clone()
	output, effects, err := logic.Run(ctx, instr, state.Clone(), state.Profile, intent)
	if err != nil {
		return nil, fmt.Errorf("stage %s logic failed: %w", nextID, err)
	}
	e.emitStageLeave(ctx, threadID, nextID)

	// RECORDING_TRACE. The store's sequence is authoritative so that a
	// crash between append and state save stays recoverable.
	prior, err := e.traces.LoadSequence(ctx, threadID)
	if err != nil {
		return nil, &domain.PersistenceError{Op: "append_trace", Err: err}
	}
	seq := int64(len(prior)) + 1

	rec := domain.TraceRecord{
		ThreadID:     threadID,
		Seq:          seq,
		StageID:      nextID,
		Intent:       intent,
		StateBefore:  stateBefore,
		Message:      message,
		Output:       output,
		SideEffects:  effects,
		FlagSnapshot: snapshot,
		Timestamp:    e.now().UTC(),
	}
	if err := e.traces.Append(ctx, rec); err != nil {
		return nil, &domain.PersistenceError{Op: "append_trace", Err: err}
	}
	e.emitTraceAppend(ctx, threadID, seq, nextID, e.now().Sub(started))

	// Visible state is updated only now that the trace exists.
	state.CurrentStageID = nextID
	for k, v := range output.Data {
		state.DDSState[k] = v
	}
	bumpStageVisits(state, nextID)
	state.Messages = append(state.Messages,
		domain.Message{Role: "user", Text: message, Timestamp: rec.Timestamp},
	)
	if output.Text != "" {
		state.Messages = append(state.Messages,
			domain.Message{Role: "assistant", Text: output.Text, Timestamp: rec.Timestamp},
		)
	}
	state.Status = domain.StatusAwaitingInput
	endOfPipeline := stage.Terminal()
	if endOfPipeline {
		state.Status = domain.StatusComplete
	}
	state.Version++

	if err := store.Save(ctx, threadID, state); err != nil {
		// The trace exists without the state update; state is
		// re-derivable from the trace on recovery. The caller must
		// retry the whole message.
		return nil, &domain.PersistenceError{Op: "save_state", Err: err}
	}

	e.logger.Debug("turn executed",
		"thread_id", threadID,
		"stage_id", nextID,
		"seq", seq,
		"intent", intent.Category,
		"end_of_pipeline", endOfPipeline,
	)

	return &domain.StageOutcome{
		ThreadID:      threadID,
		StageID:       nextID,
		Seq:           seq,
		Output:        output,
		EndOfPipeline: endOfPipeline,
	}, nil
}

func stageVisits(state *domain.ThreadState, stageID string) int {
	visits, _ := state.DDSState[visitsKey].(map[string]any)
	n, _ := visits[stageID].(int)
	if n == 0 {
		// JSON round trips store numbers as float64.
		if f, ok := visits[stageID].(float64); ok {
			n = int(f)
		}
	}
	return n
}

func bumpStageVisits(state *domain.ThreadState, stageID string) {
	visits, ok := state.DDSState[visitsKey].(map[string]any)
	if !ok {
		visits = make(map[string]any)
		state.DDSState[visitsKey] = visits
	}
	visits[stageID] = stageVisits(state, stageID) + 1
}

func (e *Executor) emitStageEnter(ctx context.Context, threadID, stageID string) {
	if e.hooks.OnStageEnter != nil {
		e.hooks.OnStageEnter(ctx, &domain.StageEvent{Timestamp: e.now(), ThreadID: threadID, StageID: stageID})
	}
}

func (e *Executor) emitStageLeave(ctx context.Context, threadID, stageID string) {
	if e.hooks.OnStageLeave != nil {
		e.hooks.OnStageLeave(ctx, &domain.StageEvent{Timestamp: e.now(), ThreadID: threadID, StageID: stageID})
	}
}

func (e *Executor) emitTraceAppend(ctx context.Context, threadID string, seq int64, stageID string, d time.Duration) {
	if e.hooks.OnTraceAppend != nil {
		e.hooks.OnTraceAppend(ctx, &domain.TraceEvent{Timestamp: e.now(), ThreadID: threadID, Seq: seq, StageID: stageID, Duration: d})
	}
}
