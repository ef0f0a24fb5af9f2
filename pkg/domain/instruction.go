package domain

// InstructionSet is the unit of configuration consumed by stage logic.
// The core treats the body as opaque; typed decoding is up to the
// registered logic.
type InstructionSet struct {
	ID     string         `json:"id" yaml:"id"`
	Prompt string         `json:"prompt,omitempty" yaml:"prompt,omitempty"`
	Params map[string]any `json:"params,omitempty" yaml:"params,omitempty"`
}
