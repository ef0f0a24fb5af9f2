// Package instructions provides instruction set providers: a static
// in-memory provider and an LRU caching decorator for remote backends.
package instructions

import (
	"context"
	"fmt"

	lru "github.com/hashicorp/golang-lru/v2"

	"github.com/veloir/stagehand/pkg/domain"
	"github.com/veloir/stagehand/pkg/ports"
)

// StaticProvider serves instruction sets from an in-memory map.
type StaticProvider struct {
	sets map[string]domain.InstructionSet
}

// NewStaticProvider creates a provider over the given sets.
func NewStaticProvider(sets ...domain.InstructionSet) *StaticProvider {
	p := &StaticProvider{sets: make(map[string]domain.InstructionSet, len(sets))}
	for _, s := range sets {
		p.sets[s.ID] = s
	}
	return p
}

// Get returns the instruction set for the id.
func (p *StaticProvider) Get(ctx context.Context, id string) (domain.InstructionSet, error) {
	s, ok := p.sets[id]
	if !ok {
		return domain.InstructionSet{}, fmt.Errorf("instruction set %q: %w", id, ports.ErrInstructionSetNotFound)
	}
	return s, nil
}

// CachedProvider decorates another provider with an LRU cache.
// Instruction sets change out-of-band and rarely, so a small cache
// removes the backend round trip from the hot path.
type CachedProvider struct {
	inner ports.InstructionProvider
	cache *lru.Cache[string, domain.InstructionSet]
}

// NewCachedProvider wraps inner with a cache of the given size.
func NewCachedProvider(inner ports.InstructionProvider, size int) (*CachedProvider, error) {
	cache, err := lru.New[string, domain.InstructionSet](size)
	if err != nil {
		return nil, err
	}
	return &CachedProvider{inner: inner, cache: cache}, nil
}

// Get serves from cache, falling through to the inner provider.
func (p *CachedProvider) Get(ctx context.Context, id string) (domain.InstructionSet, error) {
	if s, ok := p.cache.Get(id); ok {
		return s, nil
	}
	s, err := p.inner.Get(ctx, id)
	if err != nil {
		return domain.InstructionSet{}, err
	}
	p.cache.Add(id, s)
	return s, nil
}
