package workflow

import (
	"context"

	"github.com/garyjia/taskflow/internal/application/port"
	"github.com/garyjia/taskflow/internal/domain/entity"
	domainwf "github.com/garyjia/taskflow/internal/domain/workflow"
)

// HistoryOrder selects the ordering of audit history
type HistoryOrder = port.SortOrder

const (
	Ascending  = port.SortAscending
	Descending = port.SortDescending
)

// TransitionRequest asks to move a task to another state on behalf of a user
type TransitionRequest struct {
	TaskID    int64
	ToStateID int64
	UserID    string
	Comment   string
}

// TransitionResult describes a committed transition
type TransitionResult struct {
	Task      *entity.Task
	FromState *entity.WorkflowState
	ToState   *entity.WorkflowState
	Audit     *entity.AuditEntry
}

// Engine validates and executes task state transitions
type Engine interface {
	// Transition moves a task to ToStateID. Failures are *domainwf.TransitionError;
	// use domainwf.KindOf to classify them.
	Transition(ctx context.Context, req TransitionRequest) (*TransitionResult, error)

	// ProcessAutomatic applies at most one automatic transition to every task in
	// a Start or InProgress state, optionally limited to one project. Per-task
	// failures are logged and skipped. On cancellation it returns the tasks
	// transitioned so far together with ctx.Err().
	ProcessAutomatic(ctx context.Context, projectID *int64) ([]*entity.Task, error)

	// GetHistory returns the task's audit trail in the requested order
	GetHistory(ctx context.Context, taskID int64, order HistoryOrder) ([]*entity.AuditRecord, error)

	// Graph loads the current state graph of a project
	Graph(ctx context.Context, projectID int64) (*domainwf.Graph, error)

	// Registry returns the condition registry used for evaluation
	Registry() *domainwf.Registry
}

// Logger is the logging dependency of the engine
type Logger interface {
	Info(msg string, keysAndValues ...interface{})
	Warn(msg string, keysAndValues ...interface{})
	Error(msg string, keysAndValues ...interface{})
}

type nopLogger struct{}

func (nopLogger) Info(string, ...interface{})  {}
func (nopLogger) Warn(string, ...interface{})  {}
func (nopLogger) Error(string, ...interface{}) {}
