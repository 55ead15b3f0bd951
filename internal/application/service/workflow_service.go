package service

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/go-playground/validator/v10"

	"github.com/garyjia/taskflow/internal/application/port"
	"github.com/garyjia/taskflow/internal/application/workflow"
	"github.com/garyjia/taskflow/internal/domain/entity"
	domainwf "github.com/garyjia/taskflow/internal/domain/workflow"
)

// Logger interface for service logging
type Logger interface {
	Info(msg string, keysAndValues ...interface{})
	Error(msg string, keysAndValues ...interface{})
}

var (
	// ErrProjectNotFoundOrAccessDenied is returned when the project does not
	// exist or the user does not own it
	ErrProjectNotFoundOrAccessDenied = errors.New("project not found or access denied")

	// ErrInvalidDefinition is returned when a workflow definition is rejected
	ErrInvalidDefinition = errors.New("invalid workflow definition")
)

// User-facing messages for transition failures
const (
	MsgNotFoundOrAccessDenied = "Task not found or access denied"
	MsgInvalidTransition      = "Invalid transition"
	MsgConditionsNotMet       = "Transition conditions not met"
	MsgTargetStateNotFound    = "Target state not found"
	MsgInternal               = "Internal server error"
)

// TransitionResponse is the boundary result of a manual transition
type TransitionResponse struct {
	Success      bool   `json:"success"`
	ErrorMessage string `json:"error_message,omitempty"`

	// Kind is the failure classification, KindNone on success
	Kind domainwf.ErrorKind `json:"-"`

	Task *entity.Task `json:"task,omitempty"`
}

// TaskSummary identifies a task in batch results
type TaskSummary struct {
	ID    int64  `json:"id"`
	Title string `json:"title"`
}

// ProcessAutomaticResponse summarises an automatic transition pass
type ProcessAutomaticResponse struct {
	ProcessedCount int           `json:"processed_count"`
	ProcessedTasks []TaskSummary `json:"processed_tasks"`
	// Incomplete is set when the pass was cancelled before every task was examined
	Incomplete bool `json:"incomplete,omitempty"`
}

// AuditView is one line of a task's audit history
type AuditView struct {
	FromStateName   string    `json:"from_state_name"`
	ToStateName     string    `json:"to_state_name"`
	UserDisplayName string    `json:"user_display_name"`
	Comment         string    `json:"comment,omitempty"`
	TransitionedAt  time.Time `json:"transitioned_at"`
	SystemInfo      string    `json:"system_info,omitempty"`
}

// TransitionView is a transition with its endpoint names resolved
type TransitionView struct {
	ID                  int64  `json:"id"`
	Name                string `json:"name"`
	Description         string `json:"description,omitempty"`
	FromStateID         int64  `json:"from_state_id"`
	FromStateName       string `json:"from_state_name"`
	ToStateID           int64  `json:"to_state_id"`
	ToStateName         string `json:"to_state_name"`
	ConditionExpression string `json:"condition_expression,omitempty"`
	IsAutomatic         bool   `json:"is_automatic"`
	Order               int    `json:"order"`
}

// NewTransition is a transition definition submitted by a project owner
type NewTransition struct {
	Name                string `json:"name" validate:"required,max=100"`
	Description         string `json:"description" validate:"max=500"`
	FromStateID         int64  `json:"from_state_id" validate:"required,gt=0"`
	ToStateID           int64  `json:"to_state_id" validate:"required,gt=0,nefield=FromStateID"`
	ConditionExpression string `json:"condition_expression" validate:"max=500"`
	IsAutomatic         bool   `json:"is_automatic"`
	Order               int    `json:"order" validate:"gte=0"`
}

// WorkflowView is a project's full workflow definition
type WorkflowView struct {
	States      []*entity.WorkflowState `json:"states"`
	Transitions []TransitionView        `json:"transitions"`
}

// WorkflowService is the boundary between request handlers and the workflow engine
type WorkflowService interface {
	Transition(ctx context.Context, taskID, toStateID int64, userID, comment string) TransitionResponse
	ProcessAutomaticTransitions(ctx context.Context, projectID *int64) (*ProcessAutomaticResponse, error)
	ProcessProjectAutomaticTransitions(ctx context.Context, projectID int64, userID string) (*ProcessAutomaticResponse, error)
	GetAuditHistory(ctx context.Context, taskID int64, userID string, order workflow.HistoryOrder) ([]AuditView, error)

	SetupDefaultWorkflow(ctx context.Context, projectID int64, userID string) (*WorkflowView, error)
	ListStates(ctx context.Context, projectID int64, userID string) ([]*entity.WorkflowState, error)
	ListTransitions(ctx context.Context, projectID int64, userID string) ([]TransitionView, error)
	AvailableTransitions(ctx context.Context, taskID int64, userID string) ([]TransitionView, error)
	AddTransition(ctx context.Context, projectID int64, userID string, def NewTransition) (*entity.WorkflowTransition, error)
}

type workflowServiceImpl struct {
	engine   workflow.Engine
	store    port.Store
	validate *validator.Validate
	logger   Logger
	now      func() time.Time
}

// NewWorkflowService creates a new WorkflowService
func NewWorkflowService(engine workflow.Engine, store port.Store, logger Logger) WorkflowService {
	return &workflowServiceImpl{
		engine:   engine,
		store:    store,
		validate: validator.New(validator.WithRequiredStructEnabled()),
		logger:   logger,
		now:      time.Now,
	}
}

// Transition executes a manual transition and maps failures to fixed messages.
// Internal failure details are logged by the engine and never returned.
func (s *workflowServiceImpl) Transition(ctx context.Context, taskID, toStateID int64, userID, comment string) TransitionResponse {
	result, err := s.engine.Transition(ctx, workflow.TransitionRequest{
		TaskID:    taskID,
		ToStateID: toStateID,
		UserID:    userID,
		Comment:   comment,
	})
	if err != nil {
		kind := domainwf.KindOf(err)
		return TransitionResponse{Success: false, ErrorMessage: messageFor(kind), Kind: kind}
	}

	s.logger.Info("Task transitioned",
		"task_id", taskID,
		"from_state_id", result.Audit.FromStateID,
		"to_state_id", result.Audit.ToStateID,
		"user_id", userID,
	)
	return TransitionResponse{Success: true, Kind: domainwf.KindNone, Task: result.Task}
}

func messageFor(kind domainwf.ErrorKind) string {
	switch kind {
	case domainwf.KindNotFoundOrAccessDenied:
		return MsgNotFoundOrAccessDenied
	case domainwf.KindInvalidTransition:
		return MsgInvalidTransition
	case domainwf.KindConditionsNotMet:
		return MsgConditionsNotMet
	case domainwf.KindTargetStateNotFound:
		return MsgTargetStateNotFound
	default:
		return MsgInternal
	}
}

// ProcessProjectAutomaticTransitions runs an automatic pass over one project
// on behalf of its owner
func (s *workflowServiceImpl) ProcessProjectAutomaticTransitions(ctx context.Context, projectID int64, userID string) (*ProcessAutomaticResponse, error) {
	if _, err := s.ownedProject(ctx, projectID, userID); err != nil {
		return nil, err
	}
	return s.ProcessAutomaticTransitions(ctx, &projectID)
}

// ProcessAutomaticTransitions runs one automatic pass over the given project,
// or over every project when projectID is nil. It performs no ownership check
// and is meant for the scheduler and operator tooling. Tasks transitioned
// before a cancellation are still reported alongside the error.
func (s *workflowServiceImpl) ProcessAutomaticTransitions(ctx context.Context, projectID *int64) (*ProcessAutomaticResponse, error) {
	tasks, err := s.engine.ProcessAutomatic(ctx, projectID)

	resp := &ProcessAutomaticResponse{
		ProcessedCount: len(tasks),
		ProcessedTasks: make([]TaskSummary, 0, len(tasks)),
	}
	for _, t := range tasks {
		resp.ProcessedTasks = append(resp.ProcessedTasks, TaskSummary{ID: t.ID, Title: t.Title})
	}

	if err != nil {
		resp.Incomplete = errors.Is(err, context.Canceled) || errors.Is(err, context.DeadlineExceeded)
		s.logger.Error("Automatic pass did not complete", "error", err, "processed", resp.ProcessedCount)
		return resp, fmt.Errorf("process automatic transitions: %w", err)
	}
	return resp, nil
}

// GetAuditHistory returns the task's history if the user can see the task
func (s *workflowServiceImpl) GetAuditHistory(ctx context.Context, taskID int64, userID string, order workflow.HistoryOrder) ([]AuditView, error) {
	if _, err := s.visibleTask(ctx, taskID, userID); err != nil {
		return nil, err
	}

	records, err := s.engine.GetHistory(ctx, taskID, order)
	if err != nil {
		return nil, err
	}

	views := make([]AuditView, 0, len(records))
	for _, r := range records {
		views = append(views, AuditView{
			FromStateName:   r.FromStateName,
			ToStateName:     r.ToStateName,
			UserDisplayName: r.UserDisplayName,
			Comment:         r.Comment,
			TransitionedAt:  r.TransitionedAt,
			SystemInfo:      r.SystemInfo,
		})
	}
	return views, nil
}

// SetupDefaultWorkflow seeds the default board if the project has no states yet
func (s *workflowServiceImpl) SetupDefaultWorkflow(ctx context.Context, projectID int64, userID string) (*WorkflowView, error) {
	if _, err := s.ownedProject(ctx, projectID, userID); err != nil {
		return nil, err
	}

	applied, err := workflow.ApplyTemplate(ctx, s.store, projectID, workflow.DefaultTemplate(), s.now())
	if err != nil {
		s.logger.Error("Failed to set up default workflow", "error", err, "project_id", projectID)
		return nil, fmt.Errorf("set up default workflow: %w", err)
	}
	if applied {
		s.logger.Info("Default workflow created", "project_id", projectID)
	}

	graph, err := s.engine.Graph(ctx, projectID)
	if err != nil {
		return nil, err
	}
	return &WorkflowView{
		States:      graph.States(),
		Transitions: transitionViews(graph, graph.Transitions()),
	}, nil
}

// ListStates returns the project's states ordered by display order
func (s *workflowServiceImpl) ListStates(ctx context.Context, projectID int64, userID string) ([]*entity.WorkflowState, error) {
	if _, err := s.ownedProject(ctx, projectID, userID); err != nil {
		return nil, err
	}

	states, err := s.store.States.ListByProject(ctx, projectID)
	if err != nil {
		return nil, fmt.Errorf("list states: %w", err)
	}
	return states, nil
}

// ListTransitions returns the project's valid transitions with state names
func (s *workflowServiceImpl) ListTransitions(ctx context.Context, projectID int64, userID string) ([]TransitionView, error) {
	if _, err := s.ownedProject(ctx, projectID, userID); err != nil {
		return nil, err
	}

	graph, err := s.engine.Graph(ctx, projectID)
	if err != nil {
		return nil, err
	}
	return transitionViews(graph, graph.Transitions()), nil
}

// AvailableTransitions lists the edges leaving the task's current state
func (s *workflowServiceImpl) AvailableTransitions(ctx context.Context, taskID int64, userID string) ([]TransitionView, error) {
	task, err := s.visibleTask(ctx, taskID, userID)
	if err != nil {
		return nil, err
	}

	graph, err := s.engine.Graph(ctx, task.ProjectID)
	if err != nil {
		return nil, err
	}
	return transitionViews(graph, graph.Outgoing(task.WorkflowStateID)), nil
}

// AddTransition validates and stores a new edge in the project's graph
func (s *workflowServiceImpl) AddTransition(ctx context.Context, projectID int64, userID string, def NewTransition) (*entity.WorkflowTransition, error) {
	if err := s.validate.Struct(def); err != nil {
		return nil, fmt.Errorf("%w: %w", ErrInvalidDefinition, err)
	}
	if _, err := s.ownedProject(ctx, projectID, userID); err != nil {
		return nil, err
	}
	if unknown := s.engine.Registry().Unknown(def.ConditionExpression); len(unknown) > 0 {
		return nil, fmt.Errorf("%w: unknown conditions %v", ErrInvalidDefinition, unknown)
	}

	t := &entity.WorkflowTransition{
		Name:                def.Name,
		Description:         def.Description,
		FromStateID:         def.FromStateID,
		ToStateID:           def.ToStateID,
		ConditionExpression: def.ConditionExpression,
		IsAutomatic:         def.IsAutomatic,
		Order:               def.Order,
		CreatedAt:           s.now(),
	}

	// Validate against the current graph and insert in one transaction
	err := s.store.Tx.WithTransaction(ctx, func(txCtx context.Context) error {
		graph, err := s.engine.Graph(txCtx, projectID)
		if err != nil {
			return err
		}
		b := domainwf.NewBuilder(projectID)
		for _, st := range graph.States() {
			if err := b.AddState(st); err != nil {
				return err
			}
		}
		for _, existing := range graph.Transitions() {
			if err := b.Permit(existing); err != nil {
				return err
			}
		}
		if err := b.Permit(t); err != nil {
			return fmt.Errorf("%w: %w", ErrInvalidDefinition, err)
		}
		if err := s.store.Transitions.Create(txCtx, t); err != nil {
			if errors.Is(err, port.ErrDuplicate) {
				return fmt.Errorf("%w: %w", ErrInvalidDefinition, err)
			}
			return err
		}
		return nil
	})
	if err != nil {
		return nil, err
	}

	s.logger.Info("Transition added",
		"project_id", projectID,
		"transition_id", t.ID,
		"from_state_id", t.FromStateID,
		"to_state_id", t.ToStateID,
	)
	return t, nil
}

func (s *workflowServiceImpl) visibleTask(ctx context.Context, taskID int64, userID string) (*entity.Task, error) {
	task, err := s.store.Tasks.GetVisibleByID(ctx, taskID, userID)
	if err != nil {
		return nil, fmt.Errorf("load task: %w", err)
	}
	if task == nil {
		return nil, domainwf.ErrNotFoundOrAccessDenied
	}
	return task, nil
}

func (s *workflowServiceImpl) ownedProject(ctx context.Context, projectID int64, userID string) (*entity.Project, error) {
	project, err := s.store.Projects.GetByID(ctx, projectID)
	if err != nil {
		return nil, fmt.Errorf("load project: %w", err)
	}
	if project == nil || userID == "" || project.OwnerID != userID {
		return nil, ErrProjectNotFoundOrAccessDenied
	}
	return project, nil
}

func transitionViews(graph *domainwf.Graph, ts []*entity.WorkflowTransition) []TransitionView {
	views := make([]TransitionView, 0, len(ts))
	for _, t := range ts {
		v := TransitionView{
			ID:                  t.ID,
			Name:                t.Name,
			Description:         t.Description,
			FromStateID:         t.FromStateID,
			ToStateID:           t.ToStateID,
			ConditionExpression: t.ConditionExpression,
			IsAutomatic:         t.IsAutomatic,
			Order:               t.Order,
		}
		if st := graph.State(t.FromStateID); st != nil {
			v.FromStateName = st.Name
		}
		if st := graph.State(t.ToStateID); st != nil {
			v.ToStateName = st.Name
		}
		views = append(views, v)
	}
	return views
}
