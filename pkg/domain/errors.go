package domain

import (
	"errors"
	"fmt"
)

// ErrThreadNotFound is returned when a thread ID cannot be found in the store.
var ErrThreadNotFound = errors.New("thread not found")

// ErrEndOfPipeline is the sentinel returned by the router when the
// current stage is terminal. It is not a failure.
var ErrEndOfPipeline = errors.New("end of pipeline")

// ErrVersionConflict is returned when a state save does not advance the
// optimistic version counter (another process updated the thread).
var ErrVersionConflict = errors.New("thread state version conflict")

// ValidationErrorKind categorizes catalog validation failures.
type ValidationErrorKind string

const (
	KindMissingEntry       ValidationErrorKind = "MISSING_ENTRY"
	KindDanglingTransition ValidationErrorKind = "DANGLING_TRANSITION"
	KindUnreachableStage   ValidationErrorKind = "UNREACHABLE_STAGE"
	KindInvalidGuard       ValidationErrorKind = "INVALID_GUARD"
	KindUnconditionalOrder ValidationErrorKind = "UNCONDITIONAL_ORDER"
)

// ValidationError is one defect found in the stage catalog.
type ValidationError struct {
	Kind    ValidationErrorKind `json:"kind"`
	StageID string              `json:"stage_id,omitempty"`
	Detail  string              `json:"detail"`
}

func (e ValidationError) Error() string {
	if e.StageID != "" {
		return fmt.Sprintf("%s: %s (stage=%s)", e.Kind, e.Detail, e.StageID)
	}
	return fmt.Sprintf("%s: %s", e.Kind, e.Detail)
}

// ValidationResult is the outcome of validating a catalog.
type ValidationResult struct {
	Valid  bool              `json:"valid"`
	Errors []ValidationError `json:"errors,omitempty"`
}

// ConfigurationError wraps validation failures detected at catalog load
// time. It is fatal: the pipeline must not start with an invalid graph.
type ConfigurationError struct {
	Result ValidationResult
}

func (e *ConfigurationError) Error() string {
	return fmt.Sprintf("invalid stage catalog: %d error(s)", len(e.Result.Errors))
}

// RoutingErrorCode categorizes routing failures.
type RoutingErrorCode string

const (
	// CodeNoMatchingTransition indicates no guard matched on a
	// non-terminal stage. A configuration defect, retryable by the user.
	CodeNoMatchingTransition RoutingErrorCode = "NO_MATCHING_TRANSITION"

	// CodeLoopBudgetExceeded indicates a stage was re-entered more times
	// than the configured revisit budget allows.
	CodeLoopBudgetExceeded RoutingErrorCode = "LOOP_BUDGET_EXCEEDED"
)

// RoutingError aborts the current turn without mutating thread state.
type RoutingError struct {
	Code    RoutingErrorCode
	StageID string
	Detail  string
}

func (e *RoutingError) Error() string {
	return fmt.Sprintf("%s: %s (stage=%s)", e.Code, e.Detail, e.StageID)
}

// IsRoutingError reports whether err is a RoutingError, unwrapping as needed.
func IsRoutingError(err error) bool {
	var re *RoutingError
	return errors.As(err, &re)
}

// PersistenceError marks a failed trace append or state save. The whole
// turn is treated as failed and the caller must retry the message.
type PersistenceError struct {
	Op  string // "append_trace" or "save_state"
	Err error
}

func (e *PersistenceError) Error() string {
	return fmt.Sprintf("persistence failure during %s: %v", e.Op, e.Err)
}

func (e *PersistenceError) Unwrap() error { return e.Err }
