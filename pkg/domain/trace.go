package domain

import "time"

// FlagSet is a mapping from flag name to a boolean/string/number value.
type FlagSet map[string]any

// Clone returns a copy of the flag set.
func (f FlagSet) Clone() FlagSet {
	out := make(FlagSet, len(f))
	for k, v := range f {
		out[k] = v
	}
	return out
}

// Bool reads a boolean flag, returning def when absent or mistyped.
func (f FlagSet) Bool(name string, def bool) bool {
	if v, ok := f[name].(bool); ok {
		return v
	}
	return def
}

// Float reads a numeric flag, returning def when absent or mistyped.
func (f FlagSet) Float(name string, def float64) float64 {
	switch v := f[name].(type) {
	case float64:
		return v
	case int:
		return float64(v)
	case int64:
		return float64(v)
	}
	return def
}

// SideEffect describes one external side effect emitted by stage logic.
// Effects are classified at the point of emission: ReplaySafe effects
// may be re-executed during replay, unsafe ones are substituted with
// the recorded output.
type SideEffect struct {
	Kind       string         `json:"kind"`
	Payload    map[string]any `json:"payload,omitempty"`
	ReplaySafe bool           `json:"replay_safe"`
}

// StageOutput is what stage logic produces for one turn.
type StageOutput struct {
	Text string `json:"text,omitempty"`

	// Data is merged into the thread's DDSState after the trace is
	// appended.
	Data map[string]any `json:"data,omitempty"`
}

// TraceRecord captures one stage execution. Records are append-only and
// immutable once written; (ThreadID, Seq) identifies a record and Seq is
// contiguous and gapless per thread.
type TraceRecord struct {
	ThreadID string `json:"thread_id"`
	Seq      int64  `json:"seq"`

	StageID string `json:"stage_id"`

	// Inputs consumed.
	Intent      IntentResult `json:"intent"`
	StateBefore *ThreadState `json:"state_before"`
	Message     string       `json:"message"`

	// Outputs produced.
	Output      StageOutput  `json:"output"`
	SideEffects []SideEffect `json:"side_effects,omitempty"`

	// FlagSnapshot holds the feature flags active at execution time so
	// replay uses these, not current flags.
	FlagSnapshot FlagSet `json:"flag_snapshot"`

	Timestamp time.Time `json:"timestamp"`
}

// StageOutcome is returned to the caller after one executed turn.
type StageOutcome struct {
	ThreadID string      `json:"thread_id"`
	StageID  string      `json:"stage_id"`
	Seq      int64       `json:"seq"`
	Output   StageOutput `json:"output"`

	// EndOfPipeline is true when the executed stage is terminal (or the
	// thread was already complete). It is the sentinel distinguishing
	// normal completion from a routing failure.
	EndOfPipeline bool `json:"end_of_pipeline"`
}
