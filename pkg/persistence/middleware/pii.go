package middleware

import (
	"context"
	"regexp"

	"github.com/veloir/stagehand/pkg/domain"
	"github.com/veloir/stagehand/pkg/ports"
)

type piiMiddleware struct {
	next     ports.ThreadStateStore
	patterns []*regexp.Regexp
}

// NewPIIMiddleware creates a middleware that masks the values of state
// and profile keys matching the patterns before they reach the store.
// The in-memory state used by the running pipeline stays unmasked.
func NewPIIMiddleware(patternStrings []string) Middleware {
	patterns := make([]*regexp.Regexp, len(patternStrings))
	for i, p := range patternStrings {
		patterns[i] = regexp.MustCompile(p)
	}
	return func(next ports.ThreadStateStore) ports.ThreadStateStore {
		return &piiMiddleware{next: next, patterns: patterns}
	}
}

func (m *piiMiddleware) Save(ctx context.Context, threadID string, state *domain.ThreadState) error {
	cloned := state.Clone()
	// Nested maps are shared by Clone; maskedCopy rebuilds them so the
	// caller's state is never touched.
	cloned.DDSState = maskedCopy(state.DDSState, m.patterns)
	if state.Profile.Fields != nil {
		cloned.Profile.Fields = maskedCopy(state.Profile.Fields, m.patterns)
	}
	return m.next.Save(ctx, threadID, cloned)
}

func (m *piiMiddleware) Load(ctx context.Context, threadID string) (*domain.ThreadState, error) {
	return m.next.Load(ctx, threadID)
}

func (m *piiMiddleware) Delete(ctx context.Context, threadID string) error {
	return m.next.Delete(ctx, threadID)
}

func maskedCopy(m map[string]any, patterns []*regexp.Regexp) map[string]any {
	out := make(map[string]any, len(m))
	for k, v := range m {
		if matchesAny(k, patterns) {
			out[k] = "***"
			continue
		}
		if subMap, ok := v.(map[string]any); ok {
			out[k] = maskedCopy(subMap, patterns)
			continue
		}
		out[k] = v
	}
	return out
}

func matchesAny(key string, patterns []*regexp.Regexp) bool {
	for _, p := range patterns {
		if p.MatchString(key) {
			return true
		}
	}
	return false
}
