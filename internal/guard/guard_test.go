package guard

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/veloir/stagehand/pkg/domain"
)

func TestParse_Valid(t *testing.T) {
	cases := []string{
		`intent == "greet"`,
		`intent != 'greet'`,
		`confidence >= 0.6`,
		`confidence < 1`,
		`state.step == "discovery"`,
		`state.loop_count <= 3`,
		`intent == "greet" && confidence >= 0.5`,
		`state.profile.tier == "pro"`,
	}
	for _, expr := range cases {
		_, err := Parse(expr)
		assert.NoError(t, err, expr)
	}
}

func TestParse_Invalid(t *testing.T) {
	cases := []string{
		``,
		`intent`,
		`intent == greet`,          // unquoted string
		`intent >= "greet"`,        // ordering on string
		`intent == 3`,              // numeric intent
		`mood == "happy"`,          // unknown identifier
		`state. == "x"`,            // missing key
		`confidence >= `,           // missing rhs
		`confidence >= threshold`,  // unresolvable literal
	}
	for _, expr := range cases {
		_, err := Parse(expr)
		assert.Error(t, err, expr)
	}
}

func TestEval_IntentAndConfidence(t *testing.T) {
	p, err := Parse(`intent == "greet" && confidence >= 0.5`)
	require.NoError(t, err)

	assert.True(t, p.Eval(nil, domain.IntentResult{Category: "greet", Confidence: 0.9}))
	assert.False(t, p.Eval(nil, domain.IntentResult{Category: "greet", Confidence: 0.2}))
	assert.False(t, p.Eval(nil, domain.IntentResult{Category: "bye", Confidence: 0.9}))
}

func TestEval_StateKeys(t *testing.T) {
	state := map[string]any{
		"step": "discovery",
		"counters": map[string]any{
			"clarify": 2,
		},
	}

	p, err := Parse(`state.step == "discovery"`)
	require.NoError(t, err)
	assert.True(t, p.Eval(state, domain.IntentResult{}))

	nested, err := Parse(`state.counters.clarify >= 2`)
	require.NoError(t, err)
	assert.True(t, nested.Eval(state, domain.IntentResult{}))

	// Missing keys evaluate false, not error.
	missing, err := Parse(`state.absent == "x"`)
	require.NoError(t, err)
	assert.False(t, missing.Eval(state, domain.IntentResult{}))
}

func TestParse_OperatorInsideLiteral(t *testing.T) {
	p, err := Parse(`intent != "x==y"`)
	require.NoError(t, err)
	assert.True(t, p.Eval(nil, domain.IntentResult{Category: "other"}))
	assert.False(t, p.Eval(nil, domain.IntentResult{Category: "x==y"}))

	gt, err := Parse(`state.note == "a>b"`)
	require.NoError(t, err)
	assert.True(t, gt.Eval(map[string]any{"note": "a>b"}, domain.IntentResult{}))
}

func TestEval_TypeMismatchIsFalse(t *testing.T) {
	state := map[string]any{"step": 42}

	p, err := Parse(`state.step == "discovery"`)
	require.NoError(t, err)
	assert.False(t, p.Eval(state, domain.IntentResult{}))
}
