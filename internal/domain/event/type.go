package event

// Type identifies the type of domain event
type Type string

const (
	TypeTaskTransitioned       Type = "task.transitioned"
	TypeTransitionRejected     Type = "task.transition_rejected"
	TypeAutomaticPassCompleted Type = "automatic.pass_completed"
)

// String returns the string representation of the event type
func (t Type) String() string {
	return string(t)
}

// IsValid checks if the event type is one of the defined constants
func (t Type) IsValid() bool {
	switch t {
	case TypeTaskTransitioned,
		TypeTransitionRejected,
		TypeAutomaticPassCompleted:
		return true
	default:
		return false
	}
}

// Payload keys used by workflow events
const (
	KeyFromStateID = "from_state_id"
	KeyToStateID   = "to_state_id"
	KeyToStateType = "to_state_type"
	KeyUserID      = "user_id"
	KeyAutomatic   = "automatic"
	KeyReason      = "reason"
	KeyProcessed   = "processed"
	KeyFailed      = "failed"
	KeyExamined    = "examined"
)
