package workflow

import (
	"context"
	"errors"
	"fmt"
	"time"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"

	"github.com/garyjia/taskflow/internal/application/dispatcher"
	"github.com/garyjia/taskflow/internal/application/port"
	"github.com/garyjia/taskflow/internal/domain/entity"
	"github.com/garyjia/taskflow/internal/domain/event"
	domainwf "github.com/garyjia/taskflow/internal/domain/workflow"
)

// DefaultMaxConflictRetries is how often a transition is re-validated after
// losing a version race
const DefaultMaxConflictRetries = 3

const (
	attrTaskID    = "taskflow.task.id"
	attrToStateID = "taskflow.state.to_id"
	attrProjectID = "taskflow.project.id"
	attrUserID    = "taskflow.user.id"
)

// engineImpl is the concrete implementation of Engine
type engineImpl struct {
	store      port.Store
	registry   *domainwf.Registry
	dispatcher dispatcher.Dispatcher
	logger     Logger
	tracer     trace.Tracer
	now        func() time.Time
	maxRetries int
}

// EngineOption configures the workflow engine
type EngineOption func(*engineImpl)

// WithDispatcher sets the event dispatcher for emitting events
func WithDispatcher(d dispatcher.Dispatcher) EngineOption {
	return func(e *engineImpl) {
		e.dispatcher = d
	}
}

// WithRegistry replaces the default condition registry
func WithRegistry(r *domainwf.Registry) EngineOption {
	return func(e *engineImpl) {
		e.registry = r
	}
}

// WithLogger sets the engine logger
func WithLogger(l Logger) EngineOption {
	return func(e *engineImpl) {
		e.logger = l
	}
}

// WithTracer sets the tracer used for engine spans
func WithTracer(t trace.Tracer) EngineOption {
	return func(e *engineImpl) {
		e.tracer = t
	}
}

// WithClock overrides the time source
func WithClock(now func() time.Time) EngineOption {
	return func(e *engineImpl) {
		e.now = now
	}
}

// WithMaxConflictRetries sets how many times a transition is retried after a
// version conflict. Negative values are treated as zero.
func WithMaxConflictRetries(n int) EngineOption {
	return func(e *engineImpl) {
		if n < 0 {
			n = 0
		}
		e.maxRetries = n
	}
}

// NewEngine creates a new workflow engine over the given store
func NewEngine(store port.Store, opts ...EngineOption) Engine {
	e := &engineImpl{
		store:      store,
		registry:   domainwf.NewRegistry(),
		logger:     nopLogger{},
		tracer:     otel.Tracer("github.com/garyjia/taskflow/workflow"),
		now:        time.Now,
		maxRetries: DefaultMaxConflictRetries,
	}

	for _, opt := range opts {
		opt(e)
	}

	return e
}

// Registry returns the condition registry
func (e *engineImpl) Registry() *domainwf.Registry {
	return e.registry
}

// Transition validates and executes a manual transition
func (e *engineImpl) Transition(ctx context.Context, req TransitionRequest) (*TransitionResult, error) {
	ctx, span := e.tracer.Start(ctx, "workflow.Transition", trace.WithAttributes(
		attribute.Int64(attrTaskID, req.TaskID),
		attribute.Int64(attrToStateID, req.ToStateID),
		attribute.String(attrUserID, req.UserID),
	))
	defer span.End()

	result, err := e.execute(ctx, req, entity.SystemInfoManual, nil, nil)
	if err != nil {
		e.reportFailure(ctx, span, req, err)
		return nil, err
	}

	e.publishTransitioned(ctx, result, false)
	return result, nil
}

// errCandidateMoved reports that a task picked by the automatic pass no
// longer sits on the automatic edge that was selected for it
var errCandidateMoved = errors.New("task left the automatic transition's source state")

// edgePin restricts an attempt to one automatic edge. A task reloaded in
// another state, or an edge that is no longer automatic, is not executed.
type edgePin struct {
	fromStateID  int64
	transitionID int64
}

func (p *edgePin) allows(task *entity.Task, edge *entity.WorkflowTransition) bool {
	return task.WorkflowStateID == p.fromStateID &&
		edge != nil &&
		edge.ID == p.transitionID &&
		edge.IsAutomatic
}

// execute runs the validation and write sequence, retrying it from the start
// when the task row changed underneath
func (e *engineImpl) execute(ctx context.Context, req TransitionRequest, systemInfo string, graph *domainwf.Graph, pin *edgePin) (*TransitionResult, error) {
	var lastErr error
	for attempt := 0; attempt <= e.maxRetries; attempt++ {
		result, err := e.attempt(ctx, req, systemInfo, graph, pin)
		if err == nil {
			return result, nil
		}
		if !errors.Is(err, port.ErrVersionConflict) {
			return nil, err
		}

		lastErr = err
		e.logger.Warn("Task changed concurrently, re-validating transition",
			"task_id", req.TaskID,
			"to_state_id", req.ToStateID,
			"attempt", attempt+1,
		)
	}

	return nil, &domainwf.TransitionError{
		Kind:      domainwf.KindInternal,
		TaskID:    req.TaskID,
		ToStateID: req.ToStateID,
		Err:       fmt.Errorf("gave up after %d attempts: %w", e.maxRetries+1, lastErr),
	}
}

// attempt performs one validation pass and, when it succeeds, the atomic
// task update plus audit insert. A version conflict is returned unwrapped.
func (e *engineImpl) attempt(ctx context.Context, req TransitionRequest, systemInfo string, graph *domainwf.Graph, pin *edgePin) (*TransitionResult, error) {
	fail := func(kind domainwf.ErrorKind, err error) error {
		return &domainwf.TransitionError{Kind: kind, TaskID: req.TaskID, ToStateID: req.ToStateID, Err: err}
	}

	// Visibility is checked before anything else so hidden tasks stay indistinguishable from missing ones
	task, err := e.store.Tasks.GetVisibleByID(ctx, req.TaskID, req.UserID)
	if err != nil {
		return nil, fail(domainwf.KindInternal, fmt.Errorf("load task: %w", err))
	}
	if task == nil {
		return nil, fail(domainwf.KindNotFoundOrAccessDenied, nil)
	}

	if graph == nil || graph.ProjectID() != task.ProjectID {
		graph, err = e.Graph(ctx, task.ProjectID)
		if err != nil {
			return nil, fail(domainwf.KindInternal, err)
		}
	}

	edge := graph.Edge(task.WorkflowStateID, req.ToStateID)
	if pin != nil && !pin.allows(task, edge) {
		return nil, errCandidateMoved
	}
	if edge == nil {
		return nil, fail(domainwf.KindInvalidTransition, nil)
	}

	if len(domainwf.ParseExpression(edge.ConditionExpression)) > 0 {
		ec, err := e.evalContext(ctx, task, nil)
		if err != nil {
			return nil, fail(domainwf.KindInternal, err)
		}
		ev := e.evaluate(edge, ec)
		if !ev.Passed {
			return nil, &domainwf.TransitionError{
				Kind:       domainwf.KindConditionsNotMet,
				TaskID:     req.TaskID,
				ToStateID:  req.ToStateID,
				Conditions: ev.Failed,
			}
		}
	}

	target := graph.State(req.ToStateID)
	if target == nil {
		return nil, fail(domainwf.KindTargetStateNotFound, nil)
	}

	fromStateID := task.WorkflowStateID
	now := e.now()

	updated := task.Clone()
	updated.WorkflowStateID = target.ID
	updated.UpdatedAt = now
	if target.Type == entity.StateTypeCompleted {
		completedAt := now
		updated.CompletedAt = &completedAt
	} else {
		updated.CompletedAt = nil
	}

	entry := &entity.AuditEntry{
		TaskID:         task.ID,
		FromStateID:    fromStateID,
		ToStateID:      target.ID,
		UserID:         req.UserID,
		Comment:        req.Comment,
		TransitionedAt: now,
		SystemInfo:     systemInfo,
	}

	err = e.store.Tx.WithTransaction(ctx, func(txCtx context.Context) error {
		if err := e.store.Tasks.UpdateWithVersion(txCtx, updated); err != nil {
			return err
		}
		if err := e.store.Audit.Create(txCtx, entry); err != nil {
			return fmt.Errorf("insert audit entry: %w", err)
		}
		return nil
	})
	if err != nil {
		if errors.Is(err, port.ErrVersionConflict) {
			return nil, err
		}
		return nil, fail(domainwf.KindInternal, fmt.Errorf("persist transition: %w", err))
	}

	return &TransitionResult{
		Task:      updated,
		FromState: graph.State(fromStateID),
		ToState:   target,
		Audit:     entry,
	}, nil
}

// evaluate runs the edge's condition expression, logging unknown names
func (e *engineImpl) evaluate(edge *entity.WorkflowTransition, ec domainwf.EvalContext) domainwf.Evaluation {
	ev := e.registry.Evaluate(edge.ConditionExpression, ec)
	if len(ev.Unknown) > 0 {
		e.logger.Warn("Transition references unknown conditions, treating them as passed",
			"transition_id", edge.ID,
			"conditions", ev.Unknown,
		)
	}
	return ev
}

// evalContext gathers the task's project, owner and assignee. A preloaded
// project may be passed to save a lookup.
func (e *engineImpl) evalContext(ctx context.Context, task *entity.Task, project *entity.Project) (domainwf.EvalContext, error) {
	ec := domainwf.EvalContext{Task: task, Project: project, Now: e.now()}

	if ec.Project == nil {
		p, err := e.store.Projects.GetByID(ctx, task.ProjectID)
		if err != nil {
			return ec, fmt.Errorf("load project %d: %w", task.ProjectID, err)
		}
		ec.Project = p
	}

	if ec.Project != nil && ec.Project.OwnerID != "" {
		owner, err := e.store.Users.GetByID(ctx, ec.Project.OwnerID)
		if err != nil {
			return ec, fmt.Errorf("load owner %s: %w", ec.Project.OwnerID, err)
		}
		ec.Owner = owner
	}

	if task.HasAssignee() {
		assignee, err := e.store.Users.GetByID(ctx, task.AssigneeID)
		if err != nil {
			return ec, fmt.Errorf("load assignee %s: %w", task.AssigneeID, err)
		}
		ec.Assignee = assignee
	}

	return ec, nil
}

// Graph loads a project's states and transitions. Definitions that break graph
// invariants are left out and logged.
func (e *engineImpl) Graph(ctx context.Context, projectID int64) (*domainwf.Graph, error) {
	states, err := e.store.States.ListByProject(ctx, projectID)
	if err != nil {
		return nil, fmt.Errorf("load states of project %d: %w", projectID, err)
	}
	transitions, err := e.store.Transitions.ListByProject(ctx, projectID)
	if err != nil {
		return nil, fmt.Errorf("load transitions of project %d: %w", projectID, err)
	}

	graph, invalid := domainwf.LoadGraph(projectID, states, transitions)
	if invalid != nil {
		e.logger.Warn("Ignoring invalid workflow definitions",
			"project_id", projectID,
			"error", invalid,
		)
	}
	return graph, nil
}

// reportFailure logs internal failures with full context and publishes
// rejections of manual transitions
func (e *engineImpl) reportFailure(ctx context.Context, span trace.Span, req TransitionRequest, err error) {
	kind := domainwf.KindOf(err)
	span.SetAttributes(attribute.String("taskflow.transition.error_kind", kind.String()))

	if !kind.IsValidation() {
		span.RecordError(err)
		span.SetStatus(codes.Error, err.Error())
		e.logger.Error("Transition failed",
			"task_id", req.TaskID,
			"to_state_id", req.ToStateID,
			"user_id", req.UserID,
			"error", err,
		)
	}

	if e.dispatcher != nil {
		evt := event.NewEventWithCorrelation(event.TypeTransitionRejected, req.TaskID, 0, map[string]interface{}{
			event.KeyToStateID: req.ToStateID,
			event.KeyUserID:    req.UserID,
			event.KeyReason:    kind.String(),
		}, correlationID(ctx))
		e.dispatcher.DispatchAsync(ctx, evt)
	}
}

func (e *engineImpl) publishTransitioned(ctx context.Context, result *TransitionResult, automatic bool) {
	if e.dispatcher == nil {
		return
	}

	evt := event.NewEventWithCorrelation(event.TypeTaskTransitioned, result.Task.ID, result.Task.ProjectID, map[string]interface{}{
		event.KeyFromStateID: result.Audit.FromStateID,
		event.KeyToStateID:   result.Audit.ToStateID,
		event.KeyToStateType: result.ToState.Type.String(),
		event.KeyUserID:      result.Audit.UserID,
		event.KeyAutomatic:   automatic,
	}, correlationID(ctx))
	e.dispatcher.DispatchAsync(ctx, evt)
}

// correlationID ties events to the trace they were raised in. Without a
// recording trace every event starts its own chain.
func correlationID(ctx context.Context) string {
	sc := trace.SpanContextFromContext(ctx)
	if !sc.HasTraceID() {
		return ""
	}
	return sc.TraceID().String()
}

// GetHistory returns the audit trail of a task
func (e *engineImpl) GetHistory(ctx context.Context, taskID int64, order HistoryOrder) ([]*entity.AuditRecord, error) {
	if !order.IsValid() {
		return nil, fmt.Errorf("invalid history order %q", order)
	}

	records, err := e.store.Audit.ListByTaskID(ctx, taskID, order)
	if err != nil {
		return nil, fmt.Errorf("load history of task %d: %w", taskID, err)
	}
	return records, nil
}
