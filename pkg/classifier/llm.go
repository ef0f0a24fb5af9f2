package classifier

import (
	"context"
	"fmt"
	"strings"

	"github.com/tmc/langchaingo/llms"

	"github.com/veloir/stagehand/pkg/domain"
)

const fallbackPrompt = `Classify the user message into a single short intent category
(lowercase snake_case, e.g. cost_reduction, skill_learning, greet, unknown).
Answer with the category only, nothing else.

Message: %s`

// LLMFallback classifies via a langchaingo model. Results are inherently
// non-deterministic; the caller records the raw output verbatim so
// replay can substitute it instead of re-invoking the model.
type LLMFallback struct {
	model llms.Model
}

// NewLLMFallback wraps a langchaingo model.
func NewLLMFallback(model llms.Model) *LLMFallback {
	return &LLMFallback{model: model}
}

// Classify asks the model for a category. Time bounds are enforced by
// the caller's context, not here.
func (f *LLMFallback) Classify(ctx context.Context, text string) (domain.IntentResult, error) {
	completion, err := llms.GenerateFromSinglePrompt(ctx, f.model, fmt.Sprintf(fallbackPrompt, text))
	if err != nil {
		return domain.IntentResult{}, fmt.Errorf("llm fallback: %w", err)
	}

	category := strings.ToLower(strings.TrimSpace(completion))
	category = strings.Trim(category, `"'`)
	if category == "" {
		category = CategoryUnknown
	}
	// Keep only the first token if the model rambles.
	if idx := strings.IndexAny(category, " \n\t"); idx > 0 {
		category = category[:idx]
	}

	return domain.IntentResult{
		Category:   category,
		Confidence: 0.6,
		Raw:        map[string]any{"completion": completion},
	}, nil
}
