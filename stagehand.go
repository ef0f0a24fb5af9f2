package stagehand

import (
	"context"
	"fmt"

	"log/slog"

	"github.com/veloir/stagehand/internal/logging"
	"github.com/veloir/stagehand/internal/runtime"
	"github.com/veloir/stagehand/internal/validator"
	"github.com/veloir/stagehand/pkg/classifier"
	"github.com/veloir/stagehand/pkg/domain"
	"github.com/veloir/stagehand/pkg/flags"
	"github.com/veloir/stagehand/pkg/ports"
	"github.com/veloir/stagehand/pkg/replay"
	"github.com/veloir/stagehand/pkg/session"

	memoryadapter "github.com/veloir/stagehand/pkg/adapters/memory"
)

// Engine is the high-level entry point for the Stagehand library. It
// wraps the internal pipeline runtime and provides a simplified API for
// consumers.
type Engine struct {
	catalog  domain.Catalog
	loader   ports.CatalogLoader
	threads  *session.Manager
	traces   ports.TraceStore
	flagCtl  *flags.Controller
	registry *ports.LogicRegistry
	executor *runtime.Executor
	replayer *replay.Engine

	stateStore   ports.ThreadStateStore
	locker       ports.DistributedLocker
	instructions ports.InstructionProvider
	fallback     classifier.Fallback
	evaluator    runtime.ConditionEvaluator
	hooks        domain.LifecycleHooks
	logger       *slog.Logger
	initialFlags domain.FlagSet
	maxRevisits  int
}

// Option defines a functional option for configuring the Engine.
type Option func(*Engine)

// WithLogger sets a custom structured logger for the engine.
func WithLogger(logger *slog.Logger) Option {
	return func(e *Engine) {
		e.logger = logger
	}
}

// WithStateStore injects a thread state store. Defaults to in-memory.
func WithStateStore(store ports.ThreadStateStore) Option {
	return func(e *Engine) {
		e.stateStore = store
	}
}

// WithTraceStore injects a trace store. Defaults to in-memory.
func WithTraceStore(store ports.TraceStore) Option {
	return func(e *Engine) {
		e.traces = store
	}
}

// WithLocker enables distributed per-thread locking across replicas.
func WithLocker(locker ports.DistributedLocker) Option {
	return func(e *Engine) {
		e.locker = locker
	}
}

// WithFlags seeds the feature flag set.
func WithFlags(initial domain.FlagSet) Option {
	return func(e *Engine) {
		e.initialFlags = initial
	}
}

// WithClassifierFallback plugs the non-deterministic classification
// fallback, consulted when heuristic confidence is low and the
// useLLMFallback flag is on.
func WithClassifierFallback(f classifier.Fallback) Option {
	return func(e *Engine) {
		e.fallback = f
	}
}

// WithInstructionProvider injects the instruction set backend.
func WithInstructionProvider(p ports.InstructionProvider) Option {
	return func(e *Engine) {
		e.instructions = p
	}
}

// WithLogic binds stage logic to a stage id. Every catalog stage must
// have a binding; New fails otherwise.
func WithLogic(stageID string, logic ports.StageLogic) Option {
	return func(e *Engine) {
		e.registry.Register(stageID, logic)
	}
}

// WithLogicFunc is WithLogic for plain functions.
func WithLogicFunc(stageID string, fn ports.StageLogicFunc) Option {
	return WithLogic(stageID, fn)
}

// WithLifecycleHooks registers observability hooks.
func WithLifecycleHooks(hooks domain.LifecycleHooks) Option {
	return func(e *Engine) {
		e.hooks = hooks
	}
}

// WithGuardEvaluator sets a custom guard evaluator, replacing the
// built-in predicate language.
func WithGuardEvaluator(eval runtime.ConditionEvaluator) Option {
	return func(e *Engine) {
		e.evaluator = eval
	}
}

// WithMaxStageRevisits bounds per-stage re-entries on one thread.
// Zero (the default) means unbounded.
func WithMaxStageRevisits(n int) Option {
	return func(e *Engine) {
		e.maxRevisits = n
	}
}

// New initializes a Stagehand Engine over the given catalog loader.
// The catalog is validated before anything starts: a malformed graph
// returns a *domain.ConfigurationError and no engine.
func New(loader ports.CatalogLoader, opts ...Option) (*Engine, error) {
	if loader == nil {
		return nil, fmt.Errorf("catalog loader is required")
	}

	eng := &Engine{
		loader:   loader,
		registry: ports.NewLogicRegistry(),
	}
	for _, opt := range opts {
		opt(eng)
	}

	if eng.logger == nil {
		eng.logger = logging.NewNop()
	}

	catalog, err := loader.LoadCatalog(context.Background())
	if err != nil {
		return nil, fmt.Errorf("failed to load catalog: %w", err)
	}
	eng.catalog = catalog

	if result := validator.Validate(catalog, catalog.EntryStageID); !result.Valid {
		return nil, &domain.ConfigurationError{Result: result}
	}
	if err := eng.registry.ValidateCoverage(catalog); err != nil {
		return nil, err
	}

	if eng.stateStore == nil {
		eng.stateStore = memoryadapter.NewStateStore()
	}
	if eng.traces == nil {
		eng.traces = memoryadapter.NewTraceStore()
	}
	eng.flagCtl = flags.NewController(eng.initialFlags)

	sessionOpts := []session.Option{session.WithLogger(eng.logger)}
	if eng.locker != nil {
		sessionOpts = append(sessionOpts, session.WithLocker(eng.locker))
	}
	eng.threads = session.NewManager(eng.stateStore, sessionOpts...)

	eng.executor = runtime.NewExecutor(
		catalog,
		runtime.NewRouter(catalog, eng.evaluator),
		classifier.New(eng.fallback),
		eng.threads,
		eng.traces,
		eng.instructions,
		eng.registry,
		eng.flagCtl,
		runtime.WithLifecycleHooks(eng.hooks),
		runtime.WithLogger(eng.logger),
		runtime.WithMaxStageRevisits(eng.maxRevisits),
	)
	eng.replayer = replay.NewEngine(catalog, eng.traces, eng.instructions, eng.registry, eng.logger)

	return eng, nil
}

// Execute runs one pipeline turn for the thread. An unknown thread id
// starts a fresh thread at the entry stage.
func (e *Engine) Execute(ctx context.Context, threadID, message string) (*domain.StageOutcome, error) {
	return e.executor.Execute(ctx, threadID, message)
}

// Replay re-walks the thread's recorded trace under the given options.
func (e *Engine) Replay(ctx context.Context, threadID string, opts replay.Options) (*replay.Result, error) {
	return e.replayer.Replay(ctx, threadID, opts)
}

// Thread returns the current state of a thread.
func (e *Engine) Thread(ctx context.Context, threadID string) (*domain.ThreadState, error) {
	return e.threads.Load(ctx, threadID)
}

// DeleteThread removes a thread's state. Its trace is kept.
func (e *Engine) DeleteThread(ctx context.Context, threadID string) error {
	return e.threads.Delete(ctx, threadID)
}

// Trace returns the thread's full trace sequence, ordered by seq.
func (e *Engine) Trace(ctx context.Context, threadID string) ([]domain.TraceRecord, error) {
	return e.traces.LoadSequence(ctx, threadID)
}

// Inspect returns the stage catalog for visualization or introspection
// tools.
func (e *Engine) Inspect() domain.Catalog {
	return e.catalog
}

// Flags returns the live feature flag controller.
func (e *Engine) Flags() *flags.Controller {
	return e.flagCtl
}

// Watch returns a channel that signals when the underlying catalog
// backend changes. Returns an error if the loader does not support
// watching.
func (e *Engine) Watch(ctx context.Context) (<-chan struct{}, error) {
	if w, ok := e.loader.(ports.Watchable); ok {
		return w.Watch(ctx)
	}
	return nil, fmt.Errorf("current loader does not support watching")
}
