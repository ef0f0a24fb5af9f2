package replay

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/veloir/stagehand/pkg/adapters/memory"
	"github.com/veloir/stagehand/pkg/domain"
	"github.com/veloir/stagehand/pkg/ports"
)

func seedCatalog() domain.Catalog {
	return domain.Catalog{
		EntryStageID: "a",
		Stages: map[string]domain.Stage{
			"a": {ID: "a", Transitions: []domain.Transition{{To: "b"}}},
			"b": {ID: "b"},
		},
	}
}

func seedTrace(t *testing.T, traces *memory.TraceStore) {
	t.Helper()
	base := domain.NewThreadState("t1", "a")
	base.Version = 1

	for seq, rec := range []struct {
		stage  string
		text   string
		intent string
	}{
		{"a", "recorded a", "greet"},
		{"b", "recorded b", "unknown"},
	} {
		state := base.Clone()
		require.NoError(t, traces.Append(context.Background(), domain.TraceRecord{
			ThreadID:    "t1",
			Seq:         int64(seq) + 1,
			StageID:     rec.stage,
			Intent:      domain.IntentResult{Category: rec.intent, Confidence: 0.9},
			StateBefore: state,
			Message:     "msg",
			Output:      domain.StageOutput{Text: rec.text},
			Timestamp:   time.Now().UTC(),
		}))
	}
}

type countingLogic struct {
	calls int
	text  string
	fn    func(ctx context.Context) (domain.StageOutput, []domain.SideEffect)
}

func (l *countingLogic) Run(ctx context.Context, instr domain.InstructionSet, state *domain.ThreadState, profile domain.Profile, intent domain.IntentResult) (domain.StageOutput, []domain.SideEffect, error) {
	l.calls++
	if l.fn != nil {
		out, effects := l.fn(ctx)
		return out, effects, nil
	}
	return domain.StageOutput{Text: l.text}, nil, nil
}

func newEngine(t *testing.T, logicA, logicB ports.StageLogic) (*Engine, *memory.TraceStore) {
	t.Helper()
	traces := memory.NewTraceStore()
	seedTrace(t, traces)

	registry := ports.NewLogicRegistry()
	registry.Register("a", logicA)
	registry.Register("b", logicB)

	return NewEngine(seedCatalog(), traces, nil, registry, nil), traces
}

func TestReplay_SummaryNeverInvokesLogic(t *testing.T) {
	a := &countingLogic{text: "recorded a"}
	b := &countingLogic{text: "recorded b"}
	engine, _ := newEngine(t, a, b)

	result, err := engine.Replay(context.Background(), "t1", Options{Mode: ModeSummary})
	require.NoError(t, err)

	assert.Zero(t, a.calls)
	assert.Zero(t, b.calls)
	require.Len(t, result.Steps, 2)
	assert.False(t, result.Diverged)
	assert.Equal(t, "recorded a", result.Steps[0].RecordedOutput.Text)
	assert.Nil(t, result.Steps[0].ReplayedOutput)
	assert.Equal(t, "greet", result.Steps[0].Intent.Category)
}

func TestReplay_FullMatchesRecording(t *testing.T) {
	a := &countingLogic{text: "recorded a"}
	b := &countingLogic{text: "recorded b"}
	engine, _ := newEngine(t, a, b)

	result, err := engine.Replay(context.Background(), "t1", Options{Mode: ModeFull})
	require.NoError(t, err)

	assert.Equal(t, 1, a.calls)
	assert.Equal(t, 1, b.calls)
	assert.False(t, result.Diverged)
	require.NotNil(t, result.Steps[0].ReplayedOutput)
	assert.Equal(t, "recorded a", result.Steps[0].ReplayedOutput.Text)
}

func TestReplay_DivergenceDetected(t *testing.T) {
	a := &countingLogic{text: "recorded a"}
	b := &countingLogic{text: "something new"}
	engine, _ := newEngine(t, a, b)

	result, err := engine.Replay(context.Background(), "t1", Options{Mode: ModeFull})
	require.NoError(t, err)

	assert.True(t, result.Diverged)
	assert.False(t, result.Steps[0].Diverged)
	assert.True(t, result.Steps[1].Diverged)
	assert.Contains(t, result.Steps[1].Warnings[0], "output text differs")
}

func TestReplay_DryNeverInvokesLogic(t *testing.T) {
	a := &countingLogic{text: "recorded a"}
	b := &countingLogic{text: "recorded b"}
	engine, _ := newEngine(t, a, b)

	result, err := engine.Replay(context.Background(), "t1", Options{Mode: ModeDry})
	require.NoError(t, err)

	assert.Zero(t, a.calls)
	assert.Zero(t, b.calls)
	assert.False(t, result.Diverged)
	require.Len(t, result.Steps, 2)
	assert.Nil(t, result.Steps[0].ReplayedOutput)
}

func TestReplay_DryFlagsStageMissingFromCatalog(t *testing.T) {
	a := &countingLogic{text: "recorded a"}
	b := &countingLogic{text: "recorded b"}
	engine, traces := newEngine(t, a, b)

	require.NoError(t, traces.Append(context.Background(), domain.TraceRecord{
		ThreadID:  "t1",
		Seq:       3,
		StageID:   "retired",
		Intent:    domain.IntentResult{Category: "unknown"},
		Output:    domain.StageOutput{Text: "old output"},
		Timestamp: time.Now().UTC(),
	}))

	result, err := engine.Replay(context.Background(), "t1", Options{Mode: ModeDry})
	require.NoError(t, err)

	assert.Zero(t, a.calls)
	assert.True(t, result.Diverged)
	require.Len(t, result.Steps, 3)
	assert.False(t, result.Steps[1].Diverged)
	assert.True(t, result.Steps[2].Diverged)
	assert.Contains(t, result.Steps[2].Warnings[0], "no longer in catalog")
}

func TestReplay_FullSkipExternalFlagsContext(t *testing.T) {
	var sawSkip bool
	a := &countingLogic{fn: func(ctx context.Context) (domain.StageOutput, []domain.SideEffect) {
		sawSkip = SkipExternal(ctx)
		return domain.StageOutput{Text: "recorded a"}, nil
	}}
	b := &countingLogic{text: "recorded b"}
	engine, _ := newEngine(t, a, b)

	result, err := engine.Replay(context.Background(), "t1", Options{Mode: ModeFull, SkipExternalCalls: true})
	require.NoError(t, err)

	assert.True(t, sawSkip, "skipExternalCalls must flag the context")
	assert.False(t, result.Diverged)
}

func TestReplay_UnsafeEffectsSubstituted(t *testing.T) {
	traces := memory.NewTraceStore()
	base := domain.NewThreadState("t1", "a")
	base.Version = 1
	require.NoError(t, traces.Append(context.Background(), domain.TraceRecord{
		ThreadID:    "t1",
		Seq:         1,
		StageID:     "a",
		Intent:      domain.IntentResult{Category: "greet"},
		StateBefore: base,
		Output:      domain.StageOutput{Text: "hi"},
		SideEffects: []domain.SideEffect{
			{Kind: "email", Payload: map[string]any{"to": "x@y"}, ReplaySafe: false},
			{Kind: "cache_set", Payload: map[string]any{"k": "old"}, ReplaySafe: true},
		},
		Timestamp: time.Now().UTC(),
	}))

	logic := &countingLogic{fn: func(ctx context.Context) (domain.StageOutput, []domain.SideEffect) {
		return domain.StageOutput{Text: "hi"}, []domain.SideEffect{
			{Kind: "email", Payload: map[string]any{"to": "other@y"}, ReplaySafe: false},
			{Kind: "cache_set", Payload: map[string]any{"k": "new"}, ReplaySafe: true},
		}
	}}
	registry := ports.NewLogicRegistry()
	registry.Register("a", logic)
	engine := NewEngine(seedCatalog(), traces, nil, registry, nil)

	result, err := engine.Replay(context.Background(), "t1", Options{Mode: ModeFull, SkipExternalCalls: true})
	require.NoError(t, err)
	require.Len(t, result.Steps, 1)

	effects := result.Steps[0].SideEffects
	require.Len(t, effects, 2)
	assert.Equal(t, "x@y", effects[0].Payload["to"], "unsafe effect keeps the recorded payload")
	assert.Equal(t, "new", effects[1].Payload["k"], "safe effect carries the replayed payload")

	// Without skipExternalCalls the replayed descriptors stand as-is.
	result, err = engine.Replay(context.Background(), "t1", Options{Mode: ModeFull})
	require.NoError(t, err)
	require.Len(t, result.Steps, 1)
	assert.Equal(t, "other@y", result.Steps[0].SideEffects[0].Payload["to"])
}

func TestReplay_UpToSeq(t *testing.T) {
	a := &countingLogic{text: "recorded a"}
	b := &countingLogic{text: "recorded b"}
	engine, _ := newEngine(t, a, b)

	result, err := engine.Replay(context.Background(), "t1", Options{Mode: ModeSummary, UpToSeq: 1})
	require.NoError(t, err)
	require.Len(t, result.Steps, 1)
	assert.Equal(t, int64(1), result.Steps[0].Seq)
}

func TestReplay_UnknownThread(t *testing.T) {
	engine := NewEngine(seedCatalog(), memory.NewTraceStore(), nil, ports.NewLogicRegistry(), nil)
	_, err := engine.Replay(context.Background(), "ghost", Options{})
	assert.ErrorIs(t, err, domain.ErrThreadNotFound)
}

func TestOptionsFromMap(t *testing.T) {
	opts, err := OptionsFromMap(map[string]any{
		"mode":              "full",
		"skipExternalCalls": "true",
		"upToSeq":           "3",
	})
	require.NoError(t, err)
	assert.Equal(t, ModeFull, opts.Mode)
	assert.True(t, opts.SkipExternalCalls)
	assert.Equal(t, int64(3), opts.UpToSeq)

	_, err = OptionsFromMap(map[string]any{"mode": "sideways"})
	assert.ErrorContains(t, err, "unknown replay mode")

	_, err = OptionsFromMap(map[string]any{"moed": "full"})
	assert.Error(t, err, "unknown keys are rejected")

	opts, err = OptionsFromMap(nil)
	require.NoError(t, err)
	assert.Equal(t, ModeFull, opts.Mode)
}
