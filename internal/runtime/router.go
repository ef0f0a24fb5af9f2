package runtime

import (
	"context"
	"fmt"

	"github.com/veloir/stagehand/internal/guard"
	"github.com/veloir/stagehand/pkg/domain"
)

// ConditionEvaluator evaluates a guard expression over (state, intent).
// The default wraps the guard package; hosts can inject their own.
type ConditionEvaluator func(ctx context.Context, expr string, state map[string]any, intent domain.IntentResult) (bool, error)

// DefaultEvaluator parses and evaluates guards with the built-in
// predicate language.
func DefaultEvaluator(ctx context.Context, expr string, state map[string]any, intent domain.IntentResult) (bool, error) {
	p, err := guard.Parse(expr)
	if err != nil {
		return false, err
	}
	return p.Eval(state, intent), nil
}

// Router chooses the next stage from the validated graph.
type Router struct {
	catalog   domain.Catalog
	evaluator ConditionEvaluator
}

// NewRouter creates a router over a validated catalog.
func NewRouter(catalog domain.Catalog, evaluator ConditionEvaluator) *Router {
	if evaluator == nil {
		evaluator = DefaultEvaluator
	}
	return &Router{catalog: catalog, evaluator: evaluator}
}

// Route evaluates the current stage's transitions in declaration order
// and returns the first match. A terminal stage yields
// domain.ErrEndOfPipeline, which is completion, not a failure. No match
// on a non-terminal stage is a configuration defect surfaced as a
// RoutingError.
func (r *Router) Route(ctx context.Context, currentStageID string, state *domain.ThreadState, intent domain.IntentResult) (string, error) {
	stage, ok := r.catalog.Get(currentStageID)
	if !ok {
		return "", fmt.Errorf("current stage %q not in catalog", currentStageID)
	}

	if stage.Terminal() {
		return "", domain.ErrEndOfPipeline
	}

	for _, tr := range stage.Transitions {
		if tr.Guard == "" {
			// Unconditional match. The validator guarantees it is the
			// last declared transition.
			return tr.To, nil
		}
		ok, err := r.evaluator(ctx, tr.Guard, state.DDSState, intent)
		if err != nil {
			return "", fmt.Errorf("guard %q on stage %s: %w", tr.Guard, currentStageID, err)
		}
		if ok {
			return tr.To, nil
		}
	}

	return "", &domain.RoutingError{
		Code:    domain.CodeNoMatchingTransition,
		StageID: currentStageID,
		Detail:  fmt.Sprintf("no transition matched intent %q", intent.Category),
	}
}
