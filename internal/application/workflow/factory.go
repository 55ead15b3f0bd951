package workflow

import (
	"context"
	"fmt"
	"time"

	"github.com/garyjia/taskflow/internal/application/port"
	"github.com/garyjia/taskflow/internal/domain/entity"
)

// StateDefinition describes a state of a workflow template
type StateDefinition struct {
	Key         string
	Name        string
	Description string
	Type        entity.StateType
	Color       string
}

// TransitionDefinition describes an edge of a workflow template by state keys
type TransitionDefinition struct {
	Name                string
	Description         string
	From                string
	To                  string
	ConditionExpression string
	IsAutomatic         bool
}

// Template is an ordered set of states and transitions that can be applied to a project
type Template struct {
	States      []StateDefinition
	Transitions []TransitionDefinition
}

// DefaultTemplate returns the four-state board every new project starts with
func DefaultTemplate() Template {
	return Template{
		States: []StateDefinition{
			{Key: "todo", Name: "Todo", Description: "Work not started yet", Type: entity.StateTypeStart, Color: entity.ColorGray},
			{Key: "in_progress", Name: "In Progress", Description: "Work in progress", Type: entity.StateTypeInProgress, Color: entity.ColorBlue},
			{Key: "review", Name: "Review", Description: "Waiting for review", Type: entity.StateTypeReview, Color: entity.ColorAmber},
			{Key: "done", Name: "Done", Description: "Work completed", Type: entity.StateTypeCompleted, Color: entity.ColorGreen},
		},
		Transitions: []TransitionDefinition{
			{Name: "Start Progress", From: "todo", To: "in_progress"},
			{Name: "Send for Review", From: "in_progress", To: "review"},
			{Name: "Complete Task", From: "review", To: "done"},
			{Name: "Back to Todo", From: "review", To: "todo"},
			{Name: "Back to Progress", From: "review", To: "in_progress"},
			{Name: "Reopen Task", From: "done", To: "todo"},
		},
	}
}

// ApplyTemplate creates the template's states and transitions for a project in
// one transaction. Projects that already have states are left untouched and
// applied is false.
func ApplyTemplate(ctx context.Context, store port.Store, projectID int64, tpl Template, now time.Time) (applied bool, err error) {
	err = store.Tx.WithTransaction(ctx, func(txCtx context.Context) error {
		existing, err := store.States.ListByProject(txCtx, projectID)
		if err != nil {
			return fmt.Errorf("load states of project %d: %w", projectID, err)
		}
		if len(existing) > 0 {
			return nil
		}

		ids := make(map[string]int64, len(tpl.States))
		for i, def := range tpl.States {
			if _, dup := ids[def.Key]; dup {
				return fmt.Errorf("template state key %q is duplicated", def.Key)
			}
			state := &entity.WorkflowState{
				ProjectID:   projectID,
				Name:        def.Name,
				Description: def.Description,
				Type:        def.Type,
				Order:       i + 1,
				Color:       def.Color,
				CreatedAt:   now,
			}
			if err := store.States.Create(txCtx, state); err != nil {
				return fmt.Errorf("create state %q: %w", def.Name, err)
			}
			ids[def.Key] = state.ID
		}

		for i, def := range tpl.Transitions {
			from, ok := ids[def.From]
			if !ok {
				return fmt.Errorf("transition %q references unknown state %q", def.Name, def.From)
			}
			to, ok := ids[def.To]
			if !ok {
				return fmt.Errorf("transition %q references unknown state %q", def.Name, def.To)
			}
			t := &entity.WorkflowTransition{
				Name:                def.Name,
				Description:         def.Description,
				FromStateID:         from,
				ToStateID:           to,
				ConditionExpression: def.ConditionExpression,
				IsAutomatic:         def.IsAutomatic,
				Order:               i + 1,
				CreatedAt:           now,
			}
			if err := store.Transitions.Create(txCtx, t); err != nil {
				return fmt.Errorf("create transition %q: %w", def.Name, err)
			}
		}

		applied = true
		return nil
	})
	return applied, err
}
