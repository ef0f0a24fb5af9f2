package domain

import "time"

// ThreadStatus defines the current mode of a conversation thread.
type ThreadStatus string

const (
	StatusAwaitingInput  ThreadStatus = "awaiting_input"
	StatusClassifying    ThreadStatus = "classifying"
	StatusRouting        ThreadStatus = "routing"
	StatusExecutingStage ThreadStatus = "executing_stage"
	StatusRecordingTrace ThreadStatus = "recording_trace"
	StatusComplete       ThreadStatus = "complete"
)

// Message is one entry in the ordered message history of a thread.
type Message struct {
	Role      string    `json:"role"` // "user" or "assistant"
	Text      string    `json:"text"`
	Timestamp time.Time `json:"timestamp"`
}

// Profile is the user profile snapshot attached to a thread.
type Profile struct {
	UserID   string         `json:"user_id,omitempty"`
	UserType string         `json:"user_type,omitempty"`
	Fields   map[string]any `json:"fields,omitempty"`
}

// ThreadState is the durable state of one conversation thread. It is
// owned exclusively by the conversation and mutated only by the
// pipeline executor, once per inbound message.
type ThreadState struct {
	ThreadID       string       `json:"thread_id"`
	CurrentStageID string       `json:"current_stage_id"`
	Status         ThreadStatus `json:"status"`

	// DDSState is the opaque structured state blob read by guard
	// predicates and mutated by stage logic output.
	DDSState map[string]any `json:"dds_state"`

	Profile  Profile   `json:"profile"`
	Language string    `json:"language,omitempty"`
	Mode     string    `json:"mode,omitempty"`
	Messages []Message `json:"messages,omitempty"`

	// Version is an optimistic concurrency counter, bumped on every
	// save. Stores reject writes that do not advance it.
	Version int64 `json:"version"`
}

// NewThreadState creates a clean thread state starting at entryStageID.
func NewThreadState(threadID, entryStageID string) *ThreadState {
	return &ThreadState{
		ThreadID:       threadID,
		CurrentStageID: entryStageID,
		Status:         StatusAwaitingInput,
		DDSState:       make(map[string]any),
		Language:       "en",
	}
}

// Clone returns a copy of the state with deep-copied maps and slices,
// safe for mutation without affecting the source.
func (s *ThreadState) Clone() *ThreadState {
	if s == nil {
		return nil
	}
	next := *s
	next.DDSState = make(map[string]any, len(s.DDSState))
	for k, v := range s.DDSState {
		next.DDSState[k] = v
	}
	next.Messages = append([]Message(nil), s.Messages...)
	if s.Profile.Fields != nil {
		next.Profile.Fields = make(map[string]any, len(s.Profile.Fields))
		for k, v := range s.Profile.Fields {
			next.Profile.Fields[k] = v
		}
	}
	return &next
}
