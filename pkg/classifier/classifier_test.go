package classifier

import (
	"context"
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/veloir/stagehand/pkg/domain"
)

type stubFallback struct {
	result domain.IntentResult
	err    error
	calls  int
}

func (s *stubFallback) Classify(ctx context.Context, text string) (domain.IntentResult, error) {
	s.calls++
	return s.result, s.err
}

func TestClassify_Heuristic(t *testing.T) {
	c := New(nil)
	ctx := context.Background()

	got, err := c.Classify(ctx, "Hello there!", Options{})
	require.NoError(t, err)
	assert.Equal(t, "greet", got.Category)
	assert.False(t, got.NonDeterministic)
	assert.Greater(t, got.Confidence, 0.5)

	money, err := c.Classify(ctx, "I need to cut my spending and save money", Options{})
	require.NoError(t, err)
	assert.Equal(t, "cost_reduction", money.Category)
	assert.Contains(t, money.Tags, "financial")
}

func TestClassify_Idempotent(t *testing.T) {
	c := New(nil)
	ctx := context.Background()
	opts := Options{Language: "en"}

	first, err := c.Classify(ctx, "help me learn a new skill", opts)
	require.NoError(t, err)
	second, err := c.Classify(ctx, "help me learn a new skill", opts)
	require.NoError(t, err)

	assert.Equal(t, first.Category, second.Category)
	assert.Equal(t, first.Tags, second.Tags)
	assert.Equal(t, first.Confidence, second.Confidence)
}

func TestClassify_EmptyInput(t *testing.T) {
	c := New(nil)

	got, err := c.Classify(context.Background(), "   ", Options{})
	require.NoError(t, err)
	assert.Equal(t, CategoryUnknown, got.Category)
	assert.InDelta(t, 0.1, got.Confidence, 0.001)
}

func TestClassify_FallbackConsultedBelowThreshold(t *testing.T) {
	fb := &stubFallback{result: domain.IntentResult{Category: "visa_question", Confidence: 0.6}}
	c := New(fb)

	got, err := c.Classify(context.Background(), "zzz qqq", Options{UseLLMFallback: true})
	require.NoError(t, err)
	assert.Equal(t, 1, fb.calls)
	assert.Equal(t, "visa_question", got.Category)
	assert.True(t, got.NonDeterministic, "fallback results must be marked non-deterministic")
	assert.Equal(t, "llm_fallback", got.Raw["method"])
}

func TestClassify_FallbackNotConsultedWhenDisabled(t *testing.T) {
	fb := &stubFallback{result: domain.IntentResult{Category: "x"}}
	c := New(fb)

	got, err := c.Classify(context.Background(), "zzz qqq", Options{UseLLMFallback: false})
	require.NoError(t, err)
	assert.Zero(t, fb.calls)
	assert.Equal(t, CategoryUnknown, got.Category)
}

func TestClassify_FallbackFailureDegrades(t *testing.T) {
	fb := &stubFallback{err: errors.New("model unavailable")}
	c := New(fb)

	got, err := c.Classify(context.Background(), "zzz qqq", Options{UseLLMFallback: true})
	require.NoError(t, err, "fallback failure must not abort the turn")
	assert.Equal(t, CategoryUnknown, got.Category)
	assert.InDelta(t, 0.1, got.Confidence, 0.001)
	assert.Equal(t, "fallback_error", got.Raw["reason"])
}
