// Package validator checks that a stage catalog forms a well-formed
// transition graph before the pipeline is allowed to start.
package validator

import (
	"fmt"
	"sort"

	"github.com/veloir/stagehand/internal/guard"
	"github.com/veloir/stagehand/pkg/domain"
)

// Validate is a pure function over the catalog. Checks, in order:
// entry stage exists, every transition target exists, every stage is
// reachable from entry (BFS), guards parse against the predicate
// language, and unconditional transitions are declared last.
//
// Cycles are never reported: self and back edges are legal conversation
// loops (e.g. a clarify stage looping to itself).
func Validate(catalog domain.Catalog, entryStageID string) domain.ValidationResult {
	var errs []domain.ValidationError

	if _, ok := catalog.Stages[entryStageID]; !ok {
		errs = append(errs, domain.ValidationError{
			Kind:   domain.KindMissingEntry,
			Detail: fmt.Sprintf("entry stage %q not in catalog", entryStageID),
		})
		// Without an entry there is nothing to traverse; remaining
		// checks still run so all defects surface in one pass.
	}

	for _, id := range sortedIDs(catalog) {
		stage := catalog.Stages[id]
		errs = append(errs, checkTransitions(catalog, stage)...)
		errs = append(errs, checkGuards(stage)...)
	}

	errs = append(errs, checkReachability(catalog, entryStageID)...)

	return domain.ValidationResult{Valid: len(errs) == 0, Errors: errs}
}

func checkTransitions(catalog domain.Catalog, stage domain.Stage) []domain.ValidationError {
	var errs []domain.ValidationError

	for i, tr := range stage.Transitions {
		if _, ok := catalog.Stages[tr.To]; !ok {
			errs = append(errs, domain.ValidationError{
				Kind:    domain.KindDanglingTransition,
				StageID: stage.ID,
				Detail:  fmt.Sprintf("transition target %q does not exist", tr.To),
			})
		}
		// An unconditional transition anywhere but last shadows every
		// transition after it. Reported, not silently reordered.
		if tr.Guard == "" && i != len(stage.Transitions)-1 {
			errs = append(errs, domain.ValidationError{
				Kind:    domain.KindUnconditionalOrder,
				StageID: stage.ID,
				Detail:  fmt.Sprintf("unconditional transition to %q declared before position %d", tr.To, len(stage.Transitions)),
			})
		}
	}
	return errs
}

func checkGuards(stage domain.Stage) []domain.ValidationError {
	var errs []domain.ValidationError
	for _, tr := range stage.Transitions {
		if tr.Guard == "" {
			continue
		}
		if _, err := guard.Parse(tr.Guard); err != nil {
			errs = append(errs, domain.ValidationError{
				Kind:    domain.KindInvalidGuard,
				StageID: stage.ID,
				Detail:  err.Error(),
			})
		}
	}
	return errs
}

// checkReachability runs a breadth-first traversal from entry and
// reports every stage the crawl never visits.
func checkReachability(catalog domain.Catalog, entryStageID string) []domain.ValidationError {
	if _, ok := catalog.Stages[entryStageID]; !ok {
		return nil
	}

	visited := map[string]bool{entryStageID: true}
	queue := []string{entryStageID}

	for len(queue) > 0 {
		currentID := queue[0]
		queue = queue[1:]

		stage, ok := catalog.Stages[currentID]
		if !ok {
			continue // dangling target, already reported
		}
		for _, tr := range stage.Transitions {
			if !visited[tr.To] {
				visited[tr.To] = true
				queue = append(queue, tr.To)
			}
		}
	}

	var errs []domain.ValidationError
	for _, id := range sortedIDs(catalog) {
		if !visited[id] {
			errs = append(errs, domain.ValidationError{
				Kind:    domain.KindUnreachableStage,
				StageID: id,
				Detail:  fmt.Sprintf("stage %q is not reachable from entry %q", id, entryStageID),
			})
		}
	}
	return errs
}

func sortedIDs(catalog domain.Catalog) []string {
	ids := catalog.IDs()
	sort.Strings(ids)
	return ids
}
