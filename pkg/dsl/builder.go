package dsl

import (
	"fmt"

	"github.com/veloir/stagehand/pkg/domain"
)

// Builder accumulates stages into a catalog.
type Builder struct {
	entry  string
	order  []string
	stages map[string]*StageBuilder
}

// New creates an empty catalog builder.
func New() *Builder {
	return &Builder{stages: make(map[string]*StageBuilder)}
}

// Entry designates the entry stage id.
func (b *Builder) Entry(id string) *Builder {
	b.entry = id
	return b
}

// Stage creates or returns the builder for the given stage id.
func (b *Builder) Stage(id string) *StageBuilder {
	if sb, ok := b.stages[id]; ok {
		return sb
	}
	sb := &StageBuilder{
		stage:   domain.Stage{ID: id},
		builder: b,
	}
	b.stages[id] = sb
	b.order = append(b.order, id)
	return sb
}

// Build compiles the accumulated stages into a catalog. The first
// declared stage becomes the entry when Entry was never called.
// Structural validation happens later, when the engine starts.
func (b *Builder) Build() (domain.Catalog, error) {
	if len(b.order) == 0 {
		return domain.Catalog{}, fmt.Errorf("catalog has no stages")
	}
	entry := b.entry
	if entry == "" {
		entry = b.order[0]
	}

	catalog := domain.Catalog{
		EntryStageID: entry,
		Stages:       make(map[string]domain.Stage, len(b.stages)),
	}
	for id, sb := range b.stages {
		catalog.Stages[id] = sb.stage
	}
	return catalog, nil
}

// StageBuilder provides a fluent API for configuring one stage.
type StageBuilder struct {
	stage   domain.Stage
	builder *Builder
}

// Name sets the human-readable stage name.
func (s *StageBuilder) Name(name string) *StageBuilder {
	s.stage.Name = name
	return s
}

// Instructions references the instruction set consumed by this stage's
// logic.
func (s *StageBuilder) Instructions(id string) *StageBuilder {
	s.stage.InstructionSetID = id
	return s
}

// Meta adds a metadata key-value pair.
func (s *StageBuilder) Meta(key, value string) *StageBuilder {
	if s.stage.Metadata == nil {
		s.stage.Metadata = make(map[string]string)
	}
	s.stage.Metadata[key] = value
	return s
}

// Branch adds a guarded transition to the target stage.
func (s *StageBuilder) Branch(guard, target string) *StageBuilder {
	s.stage.Transitions = append(s.stage.Transitions, domain.Transition{
		To:    target,
		Guard: guard,
	})
	return s
}

// Go adds an unconditional transition. Declare it last; an earlier
// unconditional transition shadows everything after it and the
// validator rejects the catalog.
func (s *StageBuilder) Go(target string) *StageBuilder {
	s.stage.Transitions = append(s.stage.Transitions, domain.Transition{To: target})
	return s
}

// Terminal marks intent explicitly; a stage with no transitions is
// terminal either way, so this is documentation in builder chains.
func (s *StageBuilder) Terminal() *StageBuilder {
	return s
}

// Stage hops back to the parent builder to declare another stage.
func (s *StageBuilder) Stage(id string) *StageBuilder {
	return s.builder.Stage(id)
}

// Entry designates the entry stage on the parent builder.
func (s *StageBuilder) Entry(id string) *StageBuilder {
	s.builder.Entry(id)
	return s
}

// Build finishes the chain.
func (s *StageBuilder) Build() (domain.Catalog, error) {
	return s.builder.Build()
}
