package ports

import (
	"context"
	"fmt"
	"sort"

	"github.com/veloir/stagehand/pkg/domain"
)

// StageLogic is the pluggable capability executed when a stage runs.
type StageLogic interface {
	Run(ctx context.Context, instr domain.InstructionSet, state *domain.ThreadState, profile domain.Profile, intent domain.IntentResult) (domain.StageOutput, []domain.SideEffect, error)
}

// StageLogicFunc adapts a function to the StageLogic interface.
type StageLogicFunc func(ctx context.Context, instr domain.InstructionSet, state *domain.ThreadState, profile domain.Profile, intent domain.IntentResult) (domain.StageOutput, []domain.SideEffect, error)

func (f StageLogicFunc) Run(ctx context.Context, instr domain.InstructionSet, state *domain.ThreadState, profile domain.Profile, intent domain.IntentResult) (domain.StageOutput, []domain.SideEffect, error) {
	return f(ctx, instr, state, profile, intent)
}

// LogicRegistry maps stage ids to their logic implementation.
// It is populated at startup and read-only afterwards.
type LogicRegistry struct {
	logic map[string]StageLogic
}

// NewLogicRegistry creates an empty registry.
func NewLogicRegistry() *LogicRegistry {
	return &LogicRegistry{logic: make(map[string]StageLogic)}
}

// Register binds a stage id to its logic. Registering twice overwrites.
func (r *LogicRegistry) Register(stageID string, l StageLogic) {
	r.logic[stageID] = l
}

// Get returns the logic registered for the stage id.
func (r *LogicRegistry) Get(stageID string) (StageLogic, bool) {
	l, ok := r.logic[stageID]
	return l, ok
}

// ValidateCoverage checks that every catalog stage has a registered
// implementation. Called at startup so a missing binding fails fast
// instead of at first invocation.
func (r *LogicRegistry) ValidateCoverage(catalog domain.Catalog) error {
	var missing []string
	for id := range catalog.Stages {
		if _, ok := r.logic[id]; !ok {
			missing = append(missing, id)
		}
	}
	if len(missing) > 0 {
		sort.Strings(missing)
		return fmt.Errorf("stages without registered logic: %v", missing)
	}
	return nil
}
