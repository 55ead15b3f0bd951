package workflow

import (
	"time"

	"github.com/garyjia/taskflow/internal/domain/entity"
)

// EvalContext bundles everything a condition may look at
type EvalContext struct {
	Task     *entity.Task
	Assignee *entity.User
	Owner    *entity.User
	Project  *entity.Project
	Now      time.Time
}

// Condition is a named, side-effect-free predicate gating a transition
type Condition interface {
	Evaluate(ec EvalContext) bool
}

// ConditionFunc adapts a plain function to the Condition interface
type ConditionFunc func(ec EvalContext) bool

// Evaluate implements Condition
func (f ConditionFunc) Evaluate(ec EvalContext) bool {
	return f(ec)
}

// TimeField selects the task timestamp a TimeCondition measures from
type TimeField string

const (
	FieldCreatedAt TimeField = "created_at"
	FieldUpdatedAt TimeField = "updated_at"
	FieldDueDate   TimeField = "due_date"
)

// TimeCondition passes once Delay has elapsed since the selected task timestamp.
// An unset or unknown field falls back to created_at.
type TimeCondition struct {
	Field TimeField
	Delay time.Duration
}

// Evaluate implements Condition
func (c TimeCondition) Evaluate(ec EvalContext) bool {
	if ec.Task == nil {
		return false
	}
	ref := c.reference(ec.Task)
	return !ec.Now.Before(ref.Add(c.Delay))
}

func (c TimeCondition) reference(task *entity.Task) time.Time {
	switch c.Field {
	case FieldUpdatedAt:
		return task.UpdatedAt
	case FieldDueDate:
		if task.DueDate != nil {
			return *task.DueDate
		}
	}
	return task.CreatedAt
}

// PriorityCondition passes when the task priority is at least Min
type PriorityCondition struct {
	Min entity.Priority
}

// Evaluate implements Condition
func (c PriorityCondition) Evaluate(ec EvalContext) bool {
	if ec.Task == nil {
		return false
	}
	return ec.Task.Priority.AtLeast(c.Min)
}

// AssignmentCondition passes when the task has an assignee, or when it has
// none if Required is false
type AssignmentCondition struct {
	Required bool
}

// Evaluate implements Condition
func (c AssignmentCondition) Evaluate(ec EvalContext) bool {
	if ec.Task == nil {
		return false
	}
	return ec.Task.HasAssignee() == c.Required
}
