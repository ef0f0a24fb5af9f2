package domain

// IntentResult is the outcome of classifying one inbound message. It is
// transient: consumed by the router for that turn and captured verbatim
// into the trace record, never persisted on its own.
type IntentResult struct {
	// Category is an open-ended string key, e.g. "greet" or "unknown".
	Category string `json:"category"`

	Tags []string `json:"tags,omitempty"`

	// Confidence is in [0,1].
	Confidence float64 `json:"confidence"`

	// NonDeterministic marks results produced by the LLM fallback path.
	// Replay substitutes the recorded value instead of re-classifying.
	NonDeterministic bool `json:"non_deterministic,omitempty"`

	// Raw is the verbatim classifier output, kept for replay fidelity.
	Raw map[string]any `json:"raw,omitempty"`
}
