package domain

// Stage is a named unit of conversation logic. A stage with zero
// outgoing transitions is terminal.
type Stage struct {
	ID   string `json:"id" yaml:"id"`
	Name string `json:"name" yaml:"name"`

	// InstructionSetID references the instruction set consumed by the
	// stage logic when this stage executes.
	InstructionSetID string `json:"instruction_set_id,omitempty" yaml:"instruction_set,omitempty"`

	// Transitions are evaluated in declaration order. A transition with
	// an empty Guard matches unconditionally and must be declared last.
	Transitions []Transition `json:"transitions,omitempty" yaml:"transitions,omitempty"`

	// Metadata allows for extensible key-value pairs.
	Metadata map[string]string `json:"metadata,omitempty" yaml:"metadata,omitempty"`
}

// Terminal reports whether the stage has no outgoing transitions.
func (s Stage) Terminal() bool {
	return len(s.Transitions) == 0
}

// Transition defines a rule to move from one stage to another.
type Transition struct {
	To string `json:"to" yaml:"to"`

	// Guard is a predicate over (state, intent) that must evaluate to
	// true for this transition to be taken. e.g. `intent == "greet"`.
	// If empty, the transition always matches.
	Guard string `json:"guard,omitempty" yaml:"guard,omitempty"`
}

// Catalog is the full set of stages plus the designated entry stage.
type Catalog struct {
	EntryStageID string
	Stages       map[string]Stage
}

// Get returns the stage for the given id.
func (c Catalog) Get(id string) (Stage, bool) {
	s, ok := c.Stages[id]
	return s, ok
}

// IDs returns all stage ids in the catalog, in no particular order.
func (c Catalog) IDs() []string {
	ids := make([]string, 0, len(c.Stages))
	for id := range c.Stages {
		ids = append(ids, id)
	}
	return ids
}
