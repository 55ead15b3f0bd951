package port

import (
	"context"
	"errors"

	"github.com/garyjia/taskflow/internal/domain/entity"
)

// ErrVersionConflict is returned by TaskRepository.UpdateWithVersion when the
// stored row no longer carries the version the caller read
var ErrVersionConflict = errors.New("task version conflict")

// ErrDuplicate is returned when an insert violates a uniqueness rule, such
// as a second transition between the same pair of states
var ErrDuplicate = errors.New("duplicate record")

// SortOrder selects the direction of time-ordered listings
type SortOrder string

const (
	SortAscending  SortOrder = "asc"
	SortDescending SortOrder = "desc"
)

// IsValid returns true for SortAscending and SortDescending
func (o SortOrder) IsValid() bool {
	return o == SortAscending || o == SortDescending
}

// ParseSortOrder converts "asc"/"desc" into a SortOrder. An empty string
// yields the given default.
func ParseSortOrder(s string, def SortOrder) (SortOrder, error) {
	if s == "" {
		return def, nil
	}
	o := SortOrder(s)
	if !o.IsValid() {
		return "", errors.New("sort order must be asc or desc")
	}
	return o, nil
}

// TaskRepository defines persistence operations for Task.
// Lookups return nil, nil when no row matches.
type TaskRepository interface {
	Create(ctx context.Context, task *entity.Task) error
	GetByID(ctx context.Context, id int64) (*entity.Task, error)

	// GetVisibleByID returns the task only when userID owns its project or is its assignee
	GetVisibleByID(ctx context.Context, id int64, userID string) (*entity.Task, error)

	// ListByStateTypes returns tasks whose current state has one of the given
	// types, ordered by id. A nil projectID means all projects.
	ListByStateTypes(ctx context.Context, projectID *int64, types []entity.StateType) ([]*entity.Task, error)

	// UpdateWithVersion persists WorkflowStateID, CompletedAt and UpdatedAt if the
	// stored version equals task.Version, then increments task.Version.
	// Returns ErrVersionConflict otherwise.
	UpdateWithVersion(ctx context.Context, task *entity.Task) error
}

// ProjectRepository defines persistence operations for Project
type ProjectRepository interface {
	Create(ctx context.Context, project *entity.Project) error
	GetByID(ctx context.Context, id int64) (*entity.Project, error)
}

// UserRepository defines persistence operations for User
type UserRepository interface {
	Create(ctx context.Context, user *entity.User) error
	GetByID(ctx context.Context, id string) (*entity.User, error)
}

// StateRepository defines persistence operations for WorkflowState
type StateRepository interface {
	Create(ctx context.Context, state *entity.WorkflowState) error
	GetByID(ctx context.Context, id int64) (*entity.WorkflowState, error)

	// ListByProject returns the project's states ordered by Order, then id
	ListByProject(ctx context.Context, projectID int64) ([]*entity.WorkflowState, error)
}

// TransitionRepository defines persistence operations for WorkflowTransition
type TransitionRepository interface {
	Create(ctx context.Context, transition *entity.WorkflowTransition) error
	GetByID(ctx context.Context, id int64) (*entity.WorkflowTransition, error)

	// ListByProject returns every transition whose source state belongs to the
	// project, ordered by Order, then id
	ListByProject(ctx context.Context, projectID int64) ([]*entity.WorkflowTransition, error)
}

// AuditRepository defines persistence operations for AuditEntry. Entries are
// append-only.
type AuditRepository interface {
	Create(ctx context.Context, entry *entity.AuditEntry) error

	// ListByTaskID returns the task's entries joined with state names and the
	// acting user's display name, ordered by TransitionedAt then id
	ListByTaskID(ctx context.Context, taskID int64, order SortOrder) ([]*entity.AuditRecord, error)
}

// TransactionManager handles database transactions. Repositories called with
// the ctx passed to fn take part in the transaction.
type TransactionManager interface {
	WithTransaction(ctx context.Context, fn func(ctx context.Context) error) error
}

// Store bundles the repositories the workflow engine works against
type Store struct {
	Tasks       TaskRepository
	Projects    ProjectRepository
	Users       UserRepository
	States      StateRepository
	Transitions TransitionRepository
	Audit       AuditRepository
	Tx          TransactionManager
}
