package workflow

import (
	"errors"
	"fmt"
)

var (
	// ErrNotFoundOrAccessDenied is returned when the task does not exist or the
	// acting user is neither the project owner nor the assignee. The two causes
	// are deliberately indistinguishable.
	ErrNotFoundOrAccessDenied = errors.New("task not found or access denied")

	// ErrInvalidTransition is returned when no edge exists between the task's
	// current state and the requested target state
	ErrInvalidTransition = errors.New("invalid state transition")

	// ErrConditionsNotMet is returned when an edge exists but one of its
	// conditions evaluated false
	ErrConditionsNotMet = errors.New("transition conditions not met")

	// ErrTargetStateNotFound is returned when the target state cannot be resolved
	ErrTargetStateNotFound = errors.New("target state not found")

	// ErrInternal is returned for persistence or unexpected failures
	ErrInternal = errors.New("internal error")

	// ErrInvalidEdge is returned when a transition does not fit a project's graph
	ErrInvalidEdge = errors.New("invalid workflow edge")
)

// ErrorKind classifies transition failures
type ErrorKind int

const (
	KindNone ErrorKind = iota
	KindNotFoundOrAccessDenied
	KindInvalidTransition
	KindConditionsNotMet
	KindTargetStateNotFound
	KindInternal
)

// String returns the string representation of the kind
func (k ErrorKind) String() string {
	switch k {
	case KindNone:
		return "None"
	case KindNotFoundOrAccessDenied:
		return "NotFoundOrAccessDenied"
	case KindInvalidTransition:
		return "InvalidTransition"
	case KindConditionsNotMet:
		return "ConditionsNotMet"
	case KindTargetStateNotFound:
		return "TargetStateNotFound"
	default:
		return "InternalError"
	}
}

// IsValidation reports whether the kind is a terminal validation failure
// rather than an execution failure
func (k ErrorKind) IsValidation() bool {
	switch k {
	case KindNotFoundOrAccessDenied, KindInvalidTransition, KindConditionsNotMet, KindTargetStateNotFound:
		return true
	}
	return false
}

// TransitionError describes a failed transition attempt
type TransitionError struct {
	Kind      ErrorKind
	TaskID    int64
	ToStateID int64

	// Conditions lists the failed condition names for KindConditionsNotMet
	Conditions []string

	Err error
}

// Error implements error
func (e *TransitionError) Error() string {
	msg := fmt.Sprintf("transition task %d to state %d: %s", e.TaskID, e.ToStateID, e.Kind)
	if len(e.Conditions) > 0 {
		msg += fmt.Sprintf(" %v", e.Conditions)
	}
	if e.Err != nil {
		msg += ": " + e.Err.Error()
	}
	return msg
}

// Unwrap returns the underlying error
func (e *TransitionError) Unwrap() error {
	return e.Err
}

// Is matches the sentinel error for the kind
func (e *TransitionError) Is(target error) bool {
	return sentinelFor(e.Kind) == target
}

func sentinelFor(k ErrorKind) error {
	switch k {
	case KindNotFoundOrAccessDenied:
		return ErrNotFoundOrAccessDenied
	case KindInvalidTransition:
		return ErrInvalidTransition
	case KindConditionsNotMet:
		return ErrConditionsNotMet
	case KindTargetStateNotFound:
		return ErrTargetStateNotFound
	case KindInternal:
		return ErrInternal
	}
	return nil
}

// KindOf returns the kind of a transition error. Nil maps to KindNone and any
// error that is not a TransitionError maps to KindInternal.
func KindOf(err error) ErrorKind {
	if err == nil {
		return KindNone
	}
	var te *TransitionError
	if errors.As(err, &te) {
		return te.Kind
	}
	return KindInternal
}
