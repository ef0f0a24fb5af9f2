// Package guard implements the small predicate language used on stage
// transitions. A guard is a conjunction of comparison clauses over the
// classified intent and the thread's state blob:
//
//	intent == "greet"
//	confidence >= 0.6 && state.step != "done"
//
// Left-hand sides are "intent", "confidence", or "state.<key>". Guards
// are parsed once at catalog validation time; evaluation is a pure,
// bounded-time computation.
package guard

import (
	"fmt"
	"strconv"
	"strings"

	"github.com/veloir/stagehand/pkg/domain"
)

type op string

const (
	opEq op = "=="
	opNe op = "!="
	opGe op = ">="
	opLe op = "<="
	opGt op = ">"
	opLt op = "<"
)

// clause is one comparison: lhs op literal.
type clause struct {
	lhs string // "intent", "confidence", or "state.<key>"
	op  op
	str string
	num float64
	// isNum selects which literal field carries the value.
	isNum bool
}

// Predicate is a parsed guard expression.
type Predicate struct {
	raw     string
	clauses []clause
}

// Parse compiles a guard expression. An empty expression is rejected;
// callers treat empty guards as unconditional before parsing.
func Parse(expr string) (*Predicate, error) {
	trimmed := strings.TrimSpace(expr)
	if trimmed == "" {
		return nil, fmt.Errorf("empty guard expression")
	}

	p := &Predicate{raw: expr}
	for _, part := range strings.Split(trimmed, "&&") {
		c, err := parseClause(part)
		if err != nil {
			return nil, fmt.Errorf("guard %q: %w", expr, err)
		}
		p.clauses = append(p.clauses, c)
	}
	return p, nil
}

func parseClause(s string) (clause, error) {
	s = strings.TrimSpace(s)

	// Scan left to right, skipping quoted literals so operator
	// characters inside them are never picked up.
	var quote byte
	for i := 0; i < len(s); i++ {
		c := s[i]
		if quote != 0 {
			if c == quote {
				quote = 0
			}
			continue
		}
		if c == '"' || c == '\'' {
			quote = c
			continue
		}
		// Two-char operators must be tried before their one-char prefixes.
		for _, candidate := range []op{opEq, opNe, opGe, opLe, opGt, opLt} {
			if strings.HasPrefix(s[i:], string(candidate)) {
				lhs := strings.TrimSpace(s[:i])
				rhs := strings.TrimSpace(s[i+len(candidate):])
				return buildClause(lhs, candidate, rhs)
			}
		}
	}
	return clause{}, fmt.Errorf("no comparison operator in clause %q", s)
}

func buildClause(lhs string, o op, rhs string) (clause, error) {
	switch {
	case lhs == "intent", lhs == "confidence", strings.HasPrefix(lhs, "state."):
	default:
		return clause{}, fmt.Errorf("unknown identifier %q (want intent, confidence or state.<key>)", lhs)
	}
	if lhs == "state." {
		return clause{}, fmt.Errorf("state identifier missing key")
	}
	if rhs == "" {
		return clause{}, fmt.Errorf("missing right-hand side for %q", lhs)
	}

	c := clause{lhs: lhs, op: o}

	if isQuoted(rhs) {
		if o != opEq && o != opNe {
			return clause{}, fmt.Errorf("operator %s not valid for string literal", o)
		}
		c.str = rhs[1 : len(rhs)-1]
		return c, nil
	}

	num, err := strconv.ParseFloat(rhs, 64)
	if err != nil {
		return clause{}, fmt.Errorf("invalid literal %q (want quoted string or number)", rhs)
	}
	c.num = num
	c.isNum = true
	if lhs == "intent" {
		return clause{}, fmt.Errorf("intent compares against a quoted string, got %q", rhs)
	}
	return c, nil
}

func isQuoted(s string) bool {
	if len(s) < 2 {
		return false
	}
	return (s[0] == '"' && s[len(s)-1] == '"') || (s[0] == '\'' && s[len(s)-1] == '\'')
}

// String returns the original expression.
func (p *Predicate) String() string { return p.raw }

// Eval evaluates the predicate over (state, intent). All clauses must
// hold. A clause over a missing state key evaluates false rather than
// erroring, so partially populated threads can still route.
func (p *Predicate) Eval(state map[string]any, intent domain.IntentResult) bool {
	for _, c := range p.clauses {
		if !evalClause(c, state, intent) {
			return false
		}
	}
	return true
}

func evalClause(c clause, state map[string]any, intent domain.IntentResult) bool {
	switch c.lhs {
	case "intent":
		return compareString(intent.Category, c.op, c.str)
	case "confidence":
		return compareNumber(intent.Confidence, c.op, c.num)
	}

	key := strings.TrimPrefix(c.lhs, "state.")
	val, ok := lookup(state, key)
	if !ok {
		return false
	}

	if c.isNum {
		num, ok := asNumber(val)
		if !ok {
			return false
		}
		return compareNumber(num, c.op, c.num)
	}
	str, ok := val.(string)
	if !ok {
		return false
	}
	return compareString(str, c.op, c.str)
}

// lookup resolves a possibly dotted key against nested maps.
func lookup(state map[string]any, key string) (any, bool) {
	parts := strings.Split(key, ".")
	var cur any = state
	for _, part := range parts {
		m, ok := cur.(map[string]any)
		if !ok {
			return nil, false
		}
		cur, ok = m[part]
		if !ok {
			return nil, false
		}
	}
	return cur, true
}

func asNumber(v any) (float64, bool) {
	switch n := v.(type) {
	case float64:
		return n, true
	case float32:
		return float64(n), true
	case int:
		return float64(n), true
	case int64:
		return float64(n), true
	}
	return 0, false
}

func compareString(a string, o op, b string) bool {
	switch o {
	case opEq:
		return a == b
	case opNe:
		return a != b
	}
	return false
}

func compareNumber(a float64, o op, b float64) bool {
	switch o {
	case opEq:
		return a == b
	case opNe:
		return a != b
	case opGe:
		return a >= b
	case opLe:
		return a <= b
	case opGt:
		return a > b
	case opLt:
		return a < b
	}
	return false
}
