package runtime

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/veloir/stagehand/pkg/adapters/memory"
	"github.com/veloir/stagehand/pkg/classifier"
	"github.com/veloir/stagehand/pkg/domain"
	"github.com/veloir/stagehand/pkg/flags"
	"github.com/veloir/stagehand/pkg/ports"
	"github.com/veloir/stagehand/pkg/session"
)

type fixture struct {
	executor *Executor
	states   *memory.StateStore
	traces   *memory.TraceStore
	registry *ports.LogicRegistry
	flags    *flags.Controller
}

func echoLogic(text string) ports.StageLogic {
	return ports.StageLogicFunc(func(ctx context.Context, instr domain.InstructionSet, state *domain.ThreadState, profile domain.Profile, intent domain.IntentResult) (domain.StageOutput, []domain.SideEffect, error) {
		return domain.StageOutput{Text: text}, nil, nil
	})
}

func newFixture(t *testing.T, catalog domain.Catalog, opts ...Option) *fixture {
	t.Helper()

	registry := ports.NewLogicRegistry()
	for id := range catalog.Stages {
		registry.Register(id, echoLogic("ran "+id))
	}
	require.NoError(t, registry.ValidateCoverage(catalog))

	states := memory.NewStateStore()
	traces := memory.NewTraceStore()
	ctl := flags.NewController(nil)

	exec := NewExecutor(
		catalog,
		NewRouter(catalog, nil),
		classifier.New(nil),
		session.NewManager(states),
		traces,
		nil,
		registry,
		ctl,
		opts...,
	)
	return &fixture{executor: exec, states: states, traces: traces, registry: registry, flags: ctl}
}

func TestExecute_RoutesByIntent(t *testing.T) {
	f := newFixture(t, routingCatalog())
	ctx := context.Background()

	out, err := f.executor.Execute(ctx, "t1", "hello there")
	require.NoError(t, err)
	assert.Equal(t, "b", out.StageID)
	assert.Equal(t, int64(1), out.Seq)
	assert.Equal(t, "ran b", out.Output.Text)
	assert.False(t, out.EndOfPipeline)

	state, err := f.states.Load(ctx, "t1")
	require.NoError(t, err)
	assert.Equal(t, "b", state.CurrentStageID)
	assert.Equal(t, domain.StatusAwaitingInput, state.Status)
	assert.Equal(t, int64(2), state.Version)
	require.Len(t, state.Messages, 2)
	assert.Equal(t, "user", state.Messages[0].Role)
	assert.Equal(t, "hello there", state.Messages[0].Text)
	assert.Equal(t, "assistant", state.Messages[1].Role)

	recs, err := f.traces.LoadSequence(ctx, "t1")
	require.NoError(t, err)
	require.Len(t, recs, 1)
	assert.Equal(t, int64(1), recs[0].Seq)
	assert.Equal(t, "b", recs[0].StageID)
	assert.Equal(t, "greet", recs[0].Intent.Category)
	assert.Equal(t, "a", recs[0].StateBefore.CurrentStageID, "trace captures state before the transition")
}

func TestExecute_TerminalStageCompletesThread(t *testing.T) {
	f := newFixture(t, routingCatalog())
	ctx := context.Background()

	_, err := f.executor.Execute(ctx, "t1", "hello")
	require.NoError(t, err)

	// b's only transition is unconditional to terminal z.
	out, err := f.executor.Execute(ctx, "t1", "whatever")
	require.NoError(t, err)
	assert.Equal(t, "z", out.StageID)
	assert.True(t, out.EndOfPipeline)
	assert.Equal(t, "ran z", out.Output.Text, "terminal stage logic still runs")

	state, err := f.states.Load(ctx, "t1")
	require.NoError(t, err)
	assert.Equal(t, domain.StatusComplete, state.Status)

	// Further messages no-op: no trace, no state mutation.
	out, err = f.executor.Execute(ctx, "t1", "still there?")
	require.NoError(t, err)
	assert.True(t, out.EndOfPipeline)
	assert.Zero(t, out.Seq)

	recs, err := f.traces.LoadSequence(ctx, "t1")
	require.NoError(t, err)
	assert.Len(t, recs, 2)
}

func TestExecute_NoMatchLeavesStateUntouched(t *testing.T) {
	f := newFixture(t, routingCatalog())
	ctx := context.Background()

	_, err := f.executor.Execute(ctx, "t1", "gibberish xyzzy")
	require.True(t, domain.IsRoutingError(err))

	state, err := f.states.Load(ctx, "t1")
	require.NoError(t, err)
	assert.Equal(t, "a", state.CurrentStageID, "failed turn must not advance the stage")
	assert.Empty(t, state.Messages)

	recs, err := f.traces.LoadSequence(ctx, "t1")
	require.NoError(t, err)
	assert.Empty(t, recs, "failed turn must not append a trace")
}

func TestExecute_LogicFailureIsAllOrNothing(t *testing.T) {
	f := newFixture(t, routingCatalog())
	f.registry.Register("b", ports.StageLogicFunc(func(ctx context.Context, instr domain.InstructionSet, state *domain.ThreadState, profile domain.Profile, intent domain.IntentResult) (domain.StageOutput, []domain.SideEffect, error) {
		return domain.StageOutput{}, nil, errors.New("backend down")
	}))
	ctx := context.Background()

	_, err := f.executor.Execute(ctx, "t1", "hello")
	require.ErrorContains(t, err, "backend down")

	recs, err := f.traces.LoadSequence(ctx, "t1")
	require.NoError(t, err)
	assert.Empty(t, recs)

	state, err := f.states.Load(ctx, "t1")
	require.NoError(t, err)
	assert.Equal(t, "a", state.CurrentStageID)
	assert.Equal(t, int64(1), state.Version, "only the initial reservation write")
}

type failingTraceStore struct {
	*memory.TraceStore
}

func (s *failingTraceStore) Append(ctx context.Context, rec domain.TraceRecord) error {
	return errors.New("disk full")
}

func TestExecute_TraceAppendFailure(t *testing.T) {
	catalog := routingCatalog()
	registry := ports.NewLogicRegistry()
	for id := range catalog.Stages {
		registry.Register(id, echoLogic("ran "+id))
	}
	states := memory.NewStateStore()

	exec := NewExecutor(
		catalog,
		NewRouter(catalog, nil),
		classifier.New(nil),
		session.NewManager(states),
		&failingTraceStore{memory.NewTraceStore()},
		nil,
		registry,
		flags.NewController(nil),
	)

	_, err := exec.Execute(context.Background(), "t1", "hello")
	var pe *domain.PersistenceError
	require.ErrorAs(t, err, &pe)
	assert.Equal(t, "append_trace", pe.Op)

	state, err := states.Load(context.Background(), "t1")
	require.NoError(t, err)
	assert.Equal(t, "a", state.CurrentStageID, "state must not advance past a failed append")
}

func TestExecute_StateOutputMergedIntoDDSState(t *testing.T) {
	f := newFixture(t, routingCatalog())
	f.registry.Register("b", ports.StageLogicFunc(func(ctx context.Context, instr domain.InstructionSet, state *domain.ThreadState, profile domain.Profile, intent domain.IntentResult) (domain.StageOutput, []domain.SideEffect, error) {
		return domain.StageOutput{Text: "ok", Data: map[string]any{"plan_ready": true}}, nil, nil
	}))
	ctx := context.Background()

	_, err := f.executor.Execute(ctx, "t1", "hello")
	require.NoError(t, err)

	state, err := f.states.Load(ctx, "t1")
	require.NoError(t, err)
	assert.Equal(t, true, state.DDSState["plan_ready"])
}

func TestExecute_FlagSnapshotRecorded(t *testing.T) {
	f := newFixture(t, routingCatalog())
	f.flags.Update(domain.FlagSet{flags.ConfidenceThreshold: 0.4, "useModularPipeline": true})
	ctx := context.Background()

	_, err := f.executor.Execute(ctx, "t1", "hello")
	require.NoError(t, err)

	// Flags changed after the turn must not retroactively appear.
	f.flags.Update(domain.FlagSet{"useModularPipeline": false})

	recs, err := f.traces.LoadSequence(ctx, "t1")
	require.NoError(t, err)
	require.Len(t, recs, 1)
	assert.Equal(t, true, recs[0].FlagSnapshot["useModularPipeline"])
}

func TestExecute_LoopBudget(t *testing.T) {
	catalog := domain.Catalog{
		EntryStageID: "ping",
		Stages: map[string]domain.Stage{
			"ping": {ID: "ping", Transitions: []domain.Transition{{To: "pong"}}},
			"pong": {ID: "pong", Transitions: []domain.Transition{{To: "ping"}}},
		},
	}
	f := newFixture(t, catalog, WithMaxStageRevisits(2))
	ctx := context.Background()

	var err error
	for i := 0; i < 4; i++ {
		_, err = f.executor.Execute(ctx, "t1", fmt.Sprintf("turn %d", i))
		require.NoError(t, err)
	}

	// Fifth turn would enter pong a third time.
	_, err = f.executor.Execute(ctx, "t1", "turn 4")
	var re *domain.RoutingError
	require.ErrorAs(t, err, &re)
	assert.Equal(t, domain.CodeLoopBudgetExceeded, re.Code)
	assert.Equal(t, "pong", re.StageID)
}

func TestExecute_ConcurrentTurnsSerialize(t *testing.T) {
	catalog := domain.Catalog{
		EntryStageID: "loop",
		Stages: map[string]domain.Stage{
			"loop": {ID: "loop", Transitions: []domain.Transition{{To: "loop"}}},
		},
	}
	f := newFixture(t, catalog)
	ctx := context.Background()

	const turns = 8
	var wg sync.WaitGroup
	for i := 0; i < turns; i++ {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			_, err := f.executor.Execute(ctx, "t1", fmt.Sprintf("msg %d", i))
			assert.NoError(t, err)
		}(i)
	}
	wg.Wait()

	recs, err := f.traces.LoadSequence(ctx, "t1")
	require.NoError(t, err)
	require.Len(t, recs, turns)
	for i, rec := range recs {
		assert.Equal(t, int64(i+1), rec.Seq, "sequence must be gapless")
	}

	state, err := f.states.Load(ctx, "t1")
	require.NoError(t, err)
	assert.Equal(t, int64(turns+1), state.Version)
}

func TestExecute_Hooks(t *testing.T) {
	var entered, left []string
	var appended []int64
	f := newFixture(t, routingCatalog(), WithLifecycleHooks(domain.LifecycleHooks{
		OnStageEnter: func(ctx context.Context, ev *domain.StageEvent) { entered = append(entered, ev.StageID) },
		OnStageLeave: func(ctx context.Context, ev *domain.StageEvent) { left = append(left, ev.StageID) },
		OnTraceAppend: func(ctx context.Context, ev *domain.TraceEvent) {
			appended = append(appended, ev.Seq)
			assert.GreaterOrEqual(t, ev.Duration, time.Duration(0))
		},
	}))

	_, err := f.executor.Execute(context.Background(), "t1", "hello")
	require.NoError(t, err)
	assert.Equal(t, []string{"b"}, entered)
	assert.Equal(t, []string{"b"}, left)
	assert.Equal(t, []int64{1}, appended)
}
