// Package tests provides reusable contract suites that verify store
// adapters comply with the ports interfaces.
package tests

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/veloir/stagehand/pkg/domain"
	"github.com/veloir/stagehand/pkg/ports"
)

// ThreadStateStoreContract verifies an adapter complies with
// ports.ThreadStateStore, including version conflict detection.
func ThreadStateStoreContract(t *testing.T, store ports.ThreadStateStore) {
	t.Helper()
	ctx := context.Background()

	t.Run("Load_NotFound", func(t *testing.T) {
		_, err := store.Load(ctx, "missing-thread")
		assert.ErrorIs(t, err, domain.ErrThreadNotFound)
	})

	t.Run("Save_Load_RoundTrip", func(t *testing.T) {
		state := domain.NewThreadState("t1", "greeting")
		state.DDSState["step"] = "initial"
		state.Version = 1
		require.NoError(t, store.Save(ctx, "t1", state))

		loaded, err := store.Load(ctx, "t1")
		require.NoError(t, err)
		assert.Equal(t, "greeting", loaded.CurrentStageID)
		assert.Equal(t, "initial", loaded.DDSState["step"])
		assert.Equal(t, int64(1), loaded.Version)
	})

	t.Run("Save_StaleVersion", func(t *testing.T) {
		state := domain.NewThreadState("t2", "greeting")
		state.Version = 2
		require.NoError(t, store.Save(ctx, "t2", state))

		stale := state.Clone()
		stale.Version = 2 // does not advance
		assert.ErrorIs(t, store.Save(ctx, "t2", stale), domain.ErrVersionConflict)

		fresh := state.Clone()
		fresh.Version = 3
		assert.NoError(t, store.Save(ctx, "t2", fresh))
	})

	t.Run("Delete", func(t *testing.T) {
		state := domain.NewThreadState("t3", "greeting")
		state.Version = 1
		require.NoError(t, store.Save(ctx, "t3", state))
		require.NoError(t, store.Delete(ctx, "t3"))
		_, err := store.Load(ctx, "t3")
		assert.ErrorIs(t, err, domain.ErrThreadNotFound)
	})
}

// TraceStoreContract verifies an adapter complies with ports.TraceStore:
// append-only, and LoadSequence strictly ordered by seq.
func TraceStoreContract(t *testing.T, store ports.TraceStore) {
	t.Helper()
	ctx := context.Background()

	t.Run("Empty_Sequence", func(t *testing.T) {
		recs, err := store.LoadSequence(ctx, "no-such-thread")
		require.NoError(t, err)
		assert.Empty(t, recs)
	})

	t.Run("Append_Ordered", func(t *testing.T) {
		for seq := int64(1); seq <= 3; seq++ {
			rec := domain.TraceRecord{
				ThreadID:     "tr1",
				Seq:          seq,
				StageID:      "greeting",
				Intent:       domain.IntentResult{Category: "greet", Confidence: 0.9},
				StateBefore:  domain.NewThreadState("tr1", "greeting"),
				Output:       domain.StageOutput{Text: "hello"},
				FlagSnapshot: domain.FlagSet{"useLLMFallback": false},
				Timestamp:    time.Now().UTC(),
			}
			require.NoError(t, store.Append(ctx, rec))
		}

		recs, err := store.LoadSequence(ctx, "tr1")
		require.NoError(t, err)
		require.Len(t, recs, 3)
		for i, rec := range recs {
			assert.Equal(t, int64(i+1), rec.Seq, "sequence must be gapless and ordered")
			assert.Equal(t, "tr1", rec.ThreadID)
		}
		assert.Equal(t, "greet", recs[0].Intent.Category)
		assert.False(t, recs[0].FlagSnapshot.Bool("useLLMFallback", true))
	})

	t.Run("Threads_Isolated", func(t *testing.T) {
		rec := domain.TraceRecord{ThreadID: "tr2", Seq: 1, StageID: "greeting", Timestamp: time.Now().UTC()}
		require.NoError(t, store.Append(ctx, rec))

		recs, err := store.LoadSequence(ctx, "tr2")
		require.NoError(t, err)
		assert.Len(t, recs, 1)
	})
}
