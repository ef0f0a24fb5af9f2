package replay

import (
	"fmt"

	"github.com/mitchellh/mapstructure"
)

// Mode selects how much of the recording is re-executed.
type Mode string

const (
	// ModeFull re-runs stage logic for every record.
	ModeFull Mode = "full"

	// ModeSummary builds the timeline without invoking any stage logic.
	ModeSummary Mode = "summary"

	// ModeDry checks every record's stage against the current catalog
	// without invoking any stage logic.
	ModeDry Mode = "dry"
)

// Options control one replay run. The zero value replays the full
// sequence in full mode.
type Options struct {
	Mode Mode `mapstructure:"mode" json:"mode"`

	// SkipExternalCalls suppresses external calls during a full replay:
	// the context is flagged for stage logic and unsafe side effects
	// take their recorded payloads. Summary and dry modes never execute
	// logic, so the flag has no effect there.
	SkipExternalCalls bool `mapstructure:"skipExternalCalls" json:"skip_external_calls"`

	// UpToSeq stops the replay after this sequence number. Zero replays
	// everything.
	UpToSeq int64 `mapstructure:"upToSeq" json:"up_to_seq"`
}

// OptionsFromMap decodes loosely-typed debug flags, as supplied on the
// wire, into Options. Unknown keys are rejected so typos fail loudly.
func OptionsFromMap(m map[string]any) (Options, error) {
	var opts Options
	dec, err := mapstructure.NewDecoder(&mapstructure.DecoderConfig{
		Result:           &opts,
		ErrorUnused:      true,
		WeaklyTypedInput: true,
	})
	if err != nil {
		return Options{}, err
	}
	if err := dec.Decode(m); err != nil {
		return Options{}, fmt.Errorf("invalid replay options: %w", err)
	}
	opts = opts.normalized()
	if err := opts.validate(); err != nil {
		return Options{}, err
	}
	return opts, nil
}

func (o Options) normalized() Options {
	if o.Mode == "" {
		o.Mode = ModeFull
	}
	return o
}

func (o Options) validate() error {
	switch o.Mode {
	case ModeFull, ModeSummary, ModeDry:
		return nil
	default:
		return fmt.Errorf("unknown replay mode %q", o.Mode)
	}
}
