package instructions

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/veloir/stagehand/pkg/domain"
	"github.com/veloir/stagehand/pkg/ports"
)

type countingProvider struct {
	inner ports.InstructionProvider
	calls int
}

func (c *countingProvider) Get(ctx context.Context, id string) (domain.InstructionSet, error) {
	c.calls++
	return c.inner.Get(ctx, id)
}

func TestStaticProvider(t *testing.T) {
	p := NewStaticProvider(domain.InstructionSet{ID: "greet-v1", Prompt: "Say hello"})

	got, err := p.Get(context.Background(), "greet-v1")
	require.NoError(t, err)
	assert.Equal(t, "Say hello", got.Prompt)

	_, err = p.Get(context.Background(), "nope")
	assert.ErrorIs(t, err, ports.ErrInstructionSetNotFound)
}

func TestCachedProvider(t *testing.T) {
	counting := &countingProvider{inner: NewStaticProvider(domain.InstructionSet{ID: "a"})}
	cached, err := NewCachedProvider(counting, 8)
	require.NoError(t, err)

	ctx := context.Background()
	_, err = cached.Get(ctx, "a")
	require.NoError(t, err)
	_, err = cached.Get(ctx, "a")
	require.NoError(t, err)
	assert.Equal(t, 1, counting.calls, "second hit must come from cache")

	_, err = cached.Get(ctx, "missing")
	assert.Error(t, err)
	assert.Equal(t, 2, counting.calls, "errors are not cached")
}
