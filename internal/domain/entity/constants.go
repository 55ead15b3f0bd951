package entity

import "fmt"

// StateType is the semantic type of a workflow state
type StateType string

const (
	StateTypeStart      StateType = "START"
	StateTypeInProgress StateType = "IN_PROGRESS"
	StateTypeReview     StateType = "REVIEW"
	StateTypeCompleted  StateType = "COMPLETED"
	StateTypeCancelled  StateType = "CANCELLED"
)

var validStateTypes = map[StateType]bool{
	StateTypeStart:      true,
	StateTypeInProgress: true,
	StateTypeReview:     true,
	StateTypeCompleted:  true,
	StateTypeCancelled:  true,
}

// String returns the string representation of the state type
func (t StateType) String() string {
	return string(t)
}

// IsValid returns true if the state type is one of the defined constants
func (t StateType) IsValid() bool {
	return validStateTypes[t]
}

// IsAutomaticCandidate reports whether tasks in a state of this type are
// considered by the automatic transition processor
func (t StateType) IsAutomaticCandidate() bool {
	return t == StateTypeStart || t == StateTypeInProgress
}

// Priority is the ordinal priority of a task (Low < Medium < High < Critical)
type Priority int

const (
	PriorityLow      Priority = 1
	PriorityMedium   Priority = 2
	PriorityHigh     Priority = 3
	PriorityCritical Priority = 4
)

var priorityNames = map[Priority]string{
	PriorityLow:      "LOW",
	PriorityMedium:   "MEDIUM",
	PriorityHigh:     "HIGH",
	PriorityCritical: "CRITICAL",
}

// String returns the string representation of the priority
func (p Priority) String() string {
	if name, ok := priorityNames[p]; ok {
		return name
	}
	return fmt.Sprintf("PRIORITY(%d)", int(p))
}

// IsValid returns true if the priority is one of the defined constants
func (p Priority) IsValid() bool {
	_, ok := priorityNames[p]
	return ok
}

// AtLeast reports whether p is ordinally greater than or equal to min
func (p Priority) AtLeast(min Priority) bool {
	return p >= min
}

// ParsePriority converts a priority name (case-sensitive, upper case) to a Priority
func ParsePriority(s string) (Priority, error) {
	for p, name := range priorityNames {
		if name == s {
			return p, nil
		}
	}
	return 0, fmt.Errorf("unknown priority: %q", s)
}

// System info tags recorded on audit entries
const (
	SystemInfoManual    = "Manual transition"
	SystemInfoAutomatic = "Automatic transition"
)
