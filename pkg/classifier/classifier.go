// Package classifier maps free-text input to an intent category, tags
// and a confidence value. The keyword heuristic runs first and is fully
// deterministic; an optional LLM fallback is consulted only when the
// heuristic confidence falls below the configured threshold and the
// useLLMFallback flag is on. Fallback results are marked
// non-deterministic so replay substitutes the recorded value.
package classifier

import (
	"context"
	"strings"

	"github.com/veloir/stagehand/pkg/domain"
)

// DefaultThreshold is the confidence below which the fallback is consulted.
const DefaultThreshold = 0.5

// CategoryUnknown is the degraded default category.
const CategoryUnknown = "unknown"

// Options control a single classification call. Identical text and
// options yield identical results on the heuristic path.
type Options struct {
	Language       string
	Threshold      float64
	UseLLMFallback bool
}

// Fallback is the pluggable non-deterministic classification capability.
type Fallback interface {
	Classify(ctx context.Context, text string) (domain.IntentResult, error)
}

// pattern is one keyword heuristic rule.
type pattern struct {
	category   string
	keywords   []string
	confidence float64
	tags       []string
}

var patterns = []pattern{
	{category: "greet", keywords: []string{"hello", "hi", "hey", "good morning", "good evening", "greetings"}, confidence: 0.95, tags: []string{"social"}},
	{category: "cost_reduction", keywords: []string{"reduce", "cut", "save", "spending", "expenses", "budget", "money", "cost", "cheaper", "afford"}, confidence: 0.9, tags: []string{"financial"}},
	{category: "skill_learning", keywords: []string{"learn", "study", "course", "training", "skill", "education", "teach", "master"}, confidence: 0.85, tags: []string{"education"}},
	{category: "health_improvement", keywords: []string{"health", "fitness", "exercise", "diet", "weight", "wellness", "medical", "doctor"}, confidence: 0.85, tags: []string{"health"}},
	{category: "career_advancement", keywords: []string{"career", "job", "promotion", "work", "professional", "salary", "position", "advance"}, confidence: 0.85, tags: []string{"career"}},
	{category: "relationship_improvement", keywords: []string{"relationship", "partner", "marriage", "family", "friend", "social", "communication"}, confidence: 0.85, tags: []string{"relationships"}},
	{category: "stress_management", keywords: []string{"stress", "anxiety", "worried", "overwhelmed", "pressure", "tension", "relax"}, confidence: 0.8, tags: []string{"health"}},
	{category: "time_management", keywords: []string{"time", "schedule", "busy", "balance", "productivity", "efficient"}, confidence: 0.8, tags: []string{"personal-growth"}},
	{category: "goal_achievement", keywords: []string{"goal", "achieve", "accomplish", "target", "objective", "success", "complete"}, confidence: 0.75, tags: []string{"personal-growth"}},
}

// minMatchScore is the heuristic floor below which no pattern is chosen.
const minMatchScore = 0.3

// Classifier implements deterministic-first intent classification.
type Classifier struct {
	fallback Fallback
}

// New creates a classifier. fallback may be nil, in which case low
// confidence results are returned as-is.
func New(fallback Fallback) *Classifier {
	return &Classifier{fallback: fallback}
}

// Classify maps text to an intent. The heuristic path is idempotent.
// When the fallback itself fails, classification degrades to the
// default low-confidence category rather than aborting the turn.
func (c *Classifier) Classify(ctx context.Context, text string, opts Options) (domain.IntentResult, error) {
	threshold := opts.Threshold
	if threshold == 0 {
		threshold = DefaultThreshold
	}

	result := classifyHeuristic(text)

	if result.Confidence >= threshold || !opts.UseLLMFallback || c.fallback == nil {
		return result, nil
	}

	llm, err := c.fallback.Classify(ctx, text)
	if err != nil {
		degraded := domain.IntentResult{
			Category:   CategoryUnknown,
			Confidence: 0.1,
			Raw:        map[string]any{"method": "fallback", "reason": "fallback_error", "error": err.Error()},
		}
		return degraded, nil
	}

	llm.NonDeterministic = true
	if llm.Raw == nil {
		llm.Raw = map[string]any{}
	}
	llm.Raw["method"] = "llm_fallback"
	return llm, nil
}

func classifyHeuristic(text string) domain.IntentResult {
	normalized := strings.ToLower(strings.TrimSpace(text))
	if normalized == "" {
		return domain.IntentResult{
			Category:   CategoryUnknown,
			Confidence: 0.1,
			Raw:        map[string]any{"method": "heuristic", "reason": "empty_input"},
		}
	}

	var best *pattern
	var bestScore float64

	for i := range patterns {
		p := &patterns[i]
		matches := 0
		for _, kw := range p.keywords {
			if strings.Contains(normalized, kw) {
				matches++
			}
		}
		if matches == 0 {
			continue
		}
		coverage := float64(matches) / float64(len(p.keywords))
		score := p.confidence * (0.6 + 0.4*coverage)
		if score > bestScore {
			bestScore = score
			best = p
		}
	}

	if best != nil && bestScore > minMatchScore {
		conf := bestScore
		if conf > best.confidence {
			conf = best.confidence
		}
		return domain.IntentResult{
			Category:   best.category,
			Tags:       append([]string(nil), best.tags...),
			Confidence: conf,
			Raw:        map[string]any{"method": "heuristic", "score": bestScore},
		}
	}

	return domain.IntentResult{
		Category:   CategoryUnknown,
		Confidence: 0.3,
		Raw:        map[string]any{"method": "heuristic", "reason": "no_pattern_match"},
	}
}
