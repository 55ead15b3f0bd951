package entity

import "time"

// Task is a unit of work that moves through its project's workflow states.
//
// Invariant: CompletedAt is set if and only if the current workflow state is
// of type StateTypeCompleted. The workflow engine maintains this on every
// transition.
type Task struct {
	ID          int64    `json:"id"`
	ProjectID   int64    `json:"project_id"`
	Title       string   `json:"title"`
	Description string   `json:"description,omitempty"`
	Priority    Priority `json:"priority"`

	// Assignee is optional; empty means unassigned
	AssigneeID string `json:"assignee_id,omitempty"`

	WorkflowStateID int64 `json:"workflow_state_id"`

	DueDate     *time.Time `json:"due_date,omitempty"`
	CompletedAt *time.Time `json:"completed_at,omitempty"`
	CreatedAt   time.Time  `json:"created_at"`
	UpdatedAt   time.Time  `json:"updated_at"`

	// Version is the optimistic concurrency token, bumped on every update
	Version int64 `json:"version"`
}

// HasAssignee reports whether the task is assigned to someone
func (t *Task) HasAssignee() bool {
	return t.AssigneeID != ""
}

// Clone returns a copy of the task that shares no pointers with the original
func (t *Task) Clone() *Task {
	c := *t
	if t.DueDate != nil {
		d := *t.DueDate
		c.DueDate = &d
	}
	if t.CompletedAt != nil {
		d := *t.CompletedAt
		c.CompletedAt = &d
	}
	return &c
}
