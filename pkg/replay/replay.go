// Package replay re-walks recorded trace sequences. A replay is
// read-only: it never mutates thread state, appends trace records, or
// re-runs the classifier. Recorded intents and flag snapshots are
// authoritative, so non-deterministic turns replay with the values that
// were actually observed.
package replay

import (
	"context"
	"fmt"
	"reflect"

	"log/slog"

	"github.com/veloir/stagehand/internal/logging"
	"github.com/veloir/stagehand/pkg/domain"
	"github.com/veloir/stagehand/pkg/ports"
)

type ctxKey struct{}

// WithSkipExternal marks the context so stage logic knows external
// calls must be suppressed during this run.
func WithSkipExternal(ctx context.Context) context.Context {
	return context.WithValue(ctx, ctxKey{}, true)
}

// SkipExternal reports whether the context demands suppressing external
// calls. Stage logic doing outbound work should consult this.
func SkipExternal(ctx context.Context) bool {
	v, _ := ctx.Value(ctxKey{}).(bool)
	return v
}

// Step is one replayed trace record.
type Step struct {
	Seq     int64               `json:"seq"`
	StageID string              `json:"stage_id"`
	Intent  domain.IntentResult `json:"intent"`
	Message string              `json:"message"`

	RecordedOutput domain.StageOutput  `json:"recorded_output"`
	ReplayedOutput *domain.StageOutput `json:"replayed_output,omitempty"`

	// SideEffects holds the effective effects for this step. In full
	// mode with external calls suppressed, unsafe effects carry their
	// recorded payloads; otherwise the replayed descriptors are
	// reported as-is.
	SideEffects []domain.SideEffect `json:"side_effects,omitempty"`

	Diverged bool     `json:"diverged,omitempty"`
	Warnings []string `json:"warnings,omitempty"`
}

// Result is the outcome of replaying one thread.
type Result struct {
	ThreadID string `json:"thread_id"`
	Mode     Mode   `json:"mode"`
	Steps    []Step `json:"steps"`
	Diverged bool   `json:"diverged"`
}

// Engine replays trace sequences against the current stage logic.
type Engine struct {
	catalog      domain.Catalog
	traces       ports.TraceStore
	instructions ports.InstructionProvider
	registry     *ports.LogicRegistry
	logger       *slog.Logger
}

// NewEngine creates a replay engine. instructions may be nil when no
// stage references an instruction set.
func NewEngine(catalog domain.Catalog, traces ports.TraceStore, instructions ports.InstructionProvider, registry *ports.LogicRegistry, logger *slog.Logger) *Engine {
	if logger == nil {
		logger = logging.NewNop()
	}
	return &Engine{catalog: catalog, traces: traces, instructions: instructions, registry: registry, logger: logger}
}

// Replay walks the thread's trace sequence under the given options.
// Summary mode builds the timeline without invoking any stage logic.
// Dry mode additionally checks each record's stage against the current
// catalog, still without executing anything. Only full mode re-runs
// each record's logic against the recorded state and intent, flagging
// divergence between replayed and recorded outputs.
func (e *Engine) Replay(ctx context.Context, threadID string, opts Options) (*Result, error) {
	opts = opts.normalized()
	if err := opts.validate(); err != nil {
		return nil, err
	}

	recs, err := e.traces.LoadSequence(ctx, threadID)
	if err != nil {
		return nil, fmt.Errorf("failed to load trace for thread %s: %w", threadID, err)
	}
	if len(recs) == 0 {
		return nil, domain.ErrThreadNotFound
	}

	if opts.SkipExternalCalls {
		ctx = WithSkipExternal(ctx)
	}

	result := &Result{ThreadID: threadID, Mode: opts.Mode}
	for _, rec := range recs {
		if opts.UpToSeq > 0 && rec.Seq > opts.UpToSeq {
			break
		}

		step := Step{
			Seq:            rec.Seq,
			StageID:        rec.StageID,
			Intent:         rec.Intent,
			Message:        rec.Message,
			RecordedOutput: rec.Output,
			SideEffects:    rec.SideEffects,
		}

		switch opts.Mode {
		case ModeDry:
			if _, ok := e.catalog.Get(rec.StageID); !ok {
				step.Diverged = true
				step.Warnings = append(step.Warnings, fmt.Sprintf("stage %s no longer in catalog", rec.StageID))
			}
		case ModeFull:
			if err := e.rerun(ctx, rec, &step, opts.SkipExternalCalls); err != nil {
				return nil, err
			}
		}

		if step.Diverged {
			result.Diverged = true
		}
		result.Steps = append(result.Steps, step)
	}

	e.logger.Debug("replay finished",
		"thread_id", threadID,
		"mode", string(opts.Mode),
		"steps", len(result.Steps),
		"diverged", result.Diverged,
	)
	return result, nil
}

func (e *Engine) rerun(ctx context.Context, rec domain.TraceRecord, step *Step, skipExternal bool) error {
	logic, ok := e.registry.Get(rec.StageID)
	if !ok {
		// The catalog changed since the record was written.
		step.Diverged = true
		step.Warnings = append(step.Warnings, fmt.Sprintf("no logic registered for stage %s", rec.StageID))
		return nil
	}

	// The record does not pin the instruction set; replay uses the
	// current catalog binding. Instruction drift surfaces as output
	// divergence, not as a dedicated warning.
	var instr domain.InstructionSet
	if stage, ok := e.catalog.Get(rec.StageID); ok && stage.InstructionSetID != "" && e.instructions != nil {
		var err error
		instr, err = e.instructions.Get(ctx, stage.InstructionSetID)
		if err != nil {
			step.Warnings = append(step.Warnings, fmt.Sprintf("instruction set %s unavailable: %v", stage.InstructionSetID, err))
		}
	}

	state := rec.StateBefore.Clone()
	var profile domain.Profile
	if rec.StateBefore != nil {
		profile = rec.StateBefore.Profile
	}

	output, effects, err := logic.Run(ctx, instr, state, profile, rec.Intent)
	if err != nil {
		step.Diverged = true
		step.Warnings = append(step.Warnings, fmt.Sprintf("stage logic failed on replay: %v", err))
		return nil
	}
	step.ReplayedOutput = &output

	if output.Text != rec.Output.Text {
		step.Diverged = true
		step.Warnings = append(step.Warnings, "output text differs from recording")
	}
	if !reflect.DeepEqual(normalizeData(output.Data), normalizeData(rec.Output.Data)) {
		step.Diverged = true
		step.Warnings = append(step.Warnings, "output data differs from recording")
	}

	// With external calls suppressed, unsafe effects are substituted
	// with the recording so replay never repeats them. Otherwise the
	// replayed descriptors stand on their own.
	if skipExternal {
		step.SideEffects = substituteEffects(effects, rec.SideEffects)
	} else {
		step.SideEffects = effects
	}
	if len(effects) != len(rec.SideEffects) {
		step.Diverged = true
		step.Warnings = append(step.Warnings, fmt.Sprintf("side effect count differs: replayed %d, recorded %d", len(effects), len(rec.SideEffects)))
	}
	return nil
}

func substituteEffects(replayed, recorded []domain.SideEffect) []domain.SideEffect {
	out := make([]domain.SideEffect, 0, len(recorded))
	for i, rec := range recorded {
		if rec.ReplaySafe && i < len(replayed) {
			out = append(out, replayed[i])
			continue
		}
		out = append(out, rec)
	}
	return out
}

// normalizeData treats nil and empty maps as equivalent.
func normalizeData(m map[string]any) map[string]any {
	if len(m) == 0 {
		return nil
	}
	return m
}
