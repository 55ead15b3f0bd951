package entity

import "time"

// WorkflowState is a named, ordered, typed node in a project's task lifecycle
type WorkflowState struct {
	ID          int64     `json:"id"`
	ProjectID   int64     `json:"project_id"`
	Name        string    `json:"name"`
	Description string    `json:"description,omitempty"`
	Type        StateType `json:"type"`
	Order       int       `json:"order"`
	Color       string    `json:"color,omitempty"`
	CreatedAt   time.Time `json:"created_at"`
}

// WorkflowTransition is a directed edge between two states of the same project.
//
// ConditionExpression is a comma-separated list of condition names, all of
// which must pass for the transition to be permitted. An empty expression
// means the transition is ungated.
type WorkflowTransition struct {
	ID                  int64     `json:"id"`
	Name                string    `json:"name"`
	Description         string    `json:"description,omitempty"`
	FromStateID         int64     `json:"from_state_id"`
	ToStateID           int64     `json:"to_state_id"`
	ConditionExpression string    `json:"condition_expression,omitempty"`
	IsAutomatic         bool      `json:"is_automatic"`
	Order               int       `json:"order"`
	CreatedAt           time.Time `json:"created_at"`
}

// Default state colors
const (
	ColorGray  = "#6B7280"
	ColorBlue  = "#3B82F6"
	ColorAmber = "#F59E0B"
	ColorGreen = "#10B981"
)
