package memory

import (
	"context"
	"fmt"
	"sort"

	"github.com/garyjia/taskflow/internal/application/port"
	"github.com/garyjia/taskflow/internal/domain/entity"
)

type taskRepo struct{ s *Store }

func (r *taskRepo) Create(ctx context.Context, task *entity.Task) error {
	return r.s.read(ctx, func(d *data) error {
		if task.ID == 0 {
			task.ID = d.id()
		}
		if task.Version == 0 {
			task.Version = 1
		}
		d.tasks[task.ID] = task.Clone()
		return nil
	})
}

func (r *taskRepo) GetByID(ctx context.Context, id int64) (*entity.Task, error) {
	var out *entity.Task
	err := r.s.read(ctx, func(d *data) error {
		if t, ok := d.tasks[id]; ok {
			out = t.Clone()
		}
		return nil
	})
	return out, err
}

func (r *taskRepo) GetVisibleByID(ctx context.Context, id int64, userID string) (*entity.Task, error) {
	var out *entity.Task
	err := r.s.read(ctx, func(d *data) error {
		t, ok := d.tasks[id]
		if !ok || userID == "" {
			return nil
		}
		p, ok := d.projects[t.ProjectID]
		if !ok {
			return nil
		}
		if p.OwnerID == userID || t.AssigneeID == userID {
			out = t.Clone()
		}
		return nil
	})
	return out, err
}

func (r *taskRepo) ListByStateTypes(ctx context.Context, projectID *int64, types []entity.StateType) ([]*entity.Task, error) {
	wanted := make(map[entity.StateType]bool, len(types))
	for _, t := range types {
		wanted[t] = true
	}

	var out []*entity.Task
	err := r.s.read(ctx, func(d *data) error {
		for _, t := range d.tasks {
			if projectID != nil && t.ProjectID != *projectID {
				continue
			}
			st, ok := d.states[t.WorkflowStateID]
			if !ok || !wanted[st.Type] {
				continue
			}
			out = append(out, t.Clone())
		}
		return nil
	})
	sort.Slice(out, func(i, j int) bool { return out[i].ID < out[j].ID })
	return out, err
}

func (r *taskRepo) UpdateWithVersion(ctx context.Context, task *entity.Task) error {
	return r.s.write(ctx, OpTaskUpdate, func(d *data) error {
		stored, ok := d.tasks[task.ID]
		if !ok {
			return errNotFound("task", task.ID)
		}
		if stored.Version != task.Version {
			return port.ErrVersionConflict
		}

		updated := stored.Clone()
		updated.WorkflowStateID = task.WorkflowStateID
		updated.UpdatedAt = task.UpdatedAt
		updated.CompletedAt = nil
		if task.CompletedAt != nil {
			c := *task.CompletedAt
			updated.CompletedAt = &c
		}
		updated.Version++
		d.tasks[task.ID] = updated

		task.Version = updated.Version
		return nil
	})
}

type projectRepo struct{ s *Store }

func (r *projectRepo) Create(ctx context.Context, project *entity.Project) error {
	return r.s.read(ctx, func(d *data) error {
		if project.ID == 0 {
			project.ID = d.id()
		}
		c := *project
		d.projects[project.ID] = &c
		return nil
	})
}

func (r *projectRepo) GetByID(ctx context.Context, id int64) (*entity.Project, error) {
	var out *entity.Project
	err := r.s.read(ctx, func(d *data) error {
		if p, ok := d.projects[id]; ok {
			c := *p
			out = &c
		}
		return nil
	})
	return out, err
}

type userRepo struct{ s *Store }

func (r *userRepo) Create(ctx context.Context, user *entity.User) error {
	if user.ID == "" {
		return fmt.Errorf("user id cannot be empty")
	}
	return r.s.read(ctx, func(d *data) error {
		c := *user
		d.users[user.ID] = &c
		return nil
	})
}

func (r *userRepo) GetByID(ctx context.Context, id string) (*entity.User, error) {
	var out *entity.User
	err := r.s.read(ctx, func(d *data) error {
		if u, ok := d.users[id]; ok {
			c := *u
			out = &c
		}
		return nil
	})
	return out, err
}

type stateRepo struct{ s *Store }

func (r *stateRepo) Create(ctx context.Context, state *entity.WorkflowState) error {
	return r.s.read(ctx, func(d *data) error {
		if state.ID == 0 {
			state.ID = d.id()
		}
		c := *state
		d.states[state.ID] = &c
		return nil
	})
}

func (r *stateRepo) GetByID(ctx context.Context, id int64) (*entity.WorkflowState, error) {
	var out *entity.WorkflowState
	err := r.s.read(ctx, func(d *data) error {
		if st, ok := d.states[id]; ok {
			c := *st
			out = &c
		}
		return nil
	})
	return out, err
}

func (r *stateRepo) ListByProject(ctx context.Context, projectID int64) ([]*entity.WorkflowState, error) {
	var out []*entity.WorkflowState
	err := r.s.read(ctx, func(d *data) error {
		for _, st := range d.states {
			if st.ProjectID == projectID {
				c := *st
				out = append(out, &c)
			}
		}
		return nil
	})
	sort.Slice(out, func(i, j int) bool {
		if out[i].Order != out[j].Order {
			return out[i].Order < out[j].Order
		}
		return out[i].ID < out[j].ID
	})
	return out, err
}

type transitionRepo struct{ s *Store }

func (r *transitionRepo) Create(ctx context.Context, transition *entity.WorkflowTransition) error {
	return r.s.read(ctx, func(d *data) error {
		for _, t := range d.transitions {
			if t.FromStateID == transition.FromStateID && t.ToStateID == transition.ToStateID {
				return fmt.Errorf("transition %d -> %d: %w", t.FromStateID, t.ToStateID, port.ErrDuplicate)
			}
		}
		if transition.ID == 0 {
			transition.ID = d.id()
		}
		c := *transition
		d.transitions[transition.ID] = &c
		return nil
	})
}

func (r *transitionRepo) GetByID(ctx context.Context, id int64) (*entity.WorkflowTransition, error) {
	var out *entity.WorkflowTransition
	err := r.s.read(ctx, func(d *data) error {
		if t, ok := d.transitions[id]; ok {
			c := *t
			out = &c
		}
		return nil
	})
	return out, err
}

func (r *transitionRepo) ListByProject(ctx context.Context, projectID int64) ([]*entity.WorkflowTransition, error) {
	var out []*entity.WorkflowTransition
	err := r.s.read(ctx, func(d *data) error {
		for _, t := range d.transitions {
			from, ok := d.states[t.FromStateID]
			if !ok || from.ProjectID != projectID {
				continue
			}
			c := *t
			out = append(out, &c)
		}
		return nil
	})
	sort.Slice(out, func(i, j int) bool {
		if out[i].Order != out[j].Order {
			return out[i].Order < out[j].Order
		}
		return out[i].ID < out[j].ID
	})
	return out, err
}

type auditRepo struct{ s *Store }

func (r *auditRepo) Create(ctx context.Context, entry *entity.AuditEntry) error {
	return r.s.write(ctx, OpAuditCreate, func(d *data) error {
		if entry.ID == 0 {
			entry.ID = d.id()
		}
		c := *entry
		d.audit = append(d.audit, &c)
		return nil
	})
}

func (r *auditRepo) ListByTaskID(ctx context.Context, taskID int64, order port.SortOrder) ([]*entity.AuditRecord, error) {
	var out []*entity.AuditRecord
	err := r.s.read(ctx, func(d *data) error {
		for _, e := range d.audit {
			if e.TaskID != taskID {
				continue
			}
			rec := &entity.AuditRecord{AuditEntry: *e}
			if st, ok := d.states[e.FromStateID]; ok {
				rec.FromStateName = st.Name
			}
			if st, ok := d.states[e.ToStateID]; ok {
				rec.ToStateName = st.Name
			}
			rec.UserDisplayName = d.users[e.UserID].DisplayName()
			out = append(out, rec)
		}
		return nil
	})

	sort.SliceStable(out, func(i, j int) bool {
		a, b := out[i], out[j]
		if !a.TransitionedAt.Equal(b.TransitionedAt) {
			if order == port.SortDescending {
				return a.TransitionedAt.After(b.TransitionedAt)
			}
			return a.TransitionedAt.Before(b.TransitionedAt)
		}
		if order == port.SortDescending {
			return a.ID > b.ID
		}
		return a.ID < b.ID
	})
	return out, err
}

var (
	_ port.TaskRepository       = (*taskRepo)(nil)
	_ port.ProjectRepository    = (*projectRepo)(nil)
	_ port.UserRepository       = (*userRepo)(nil)
	_ port.StateRepository      = (*stateRepo)(nil)
	_ port.TransitionRepository = (*transitionRepo)(nil)
	_ port.AuditRepository      = (*auditRepo)(nil)
	_ port.TransactionManager   = (*Store)(nil)
)
