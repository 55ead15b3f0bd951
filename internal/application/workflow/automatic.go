package workflow

import (
	"context"
	"errors"
	"fmt"

	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"

	"github.com/garyjia/taskflow/internal/domain/entity"
	"github.com/garyjia/taskflow/internal/domain/event"
	domainwf "github.com/garyjia/taskflow/internal/domain/workflow"
)

var automaticCandidateTypes = []entity.StateType{
	entity.StateTypeStart,
	entity.StateTypeInProgress,
}

// automaticPass caches per-project definitions for the duration of one pass.
// The cache is dropped when the pass returns; definitions edited meanwhile
// are picked up by the next pass, and every execution re-checks its edge.
type automaticPass struct {
	engine   *engineImpl
	graphs   map[int64]*domainwf.Graph
	projects map[int64]*entity.Project
}

func (p *automaticPass) graph(ctx context.Context, projectID int64) (*domainwf.Graph, error) {
	if g, ok := p.graphs[projectID]; ok {
		return g, nil
	}
	g, err := p.engine.Graph(ctx, projectID)
	if err != nil {
		return nil, err
	}
	p.graphs[projectID] = g
	return g, nil
}

func (p *automaticPass) project(ctx context.Context, projectID int64) (*entity.Project, error) {
	if pr, ok := p.projects[projectID]; ok {
		return pr, nil
	}
	pr, err := p.engine.store.Projects.GetByID(ctx, projectID)
	if err != nil {
		return nil, fmt.Errorf("load project %d: %w", projectID, err)
	}
	if pr == nil {
		return nil, fmt.Errorf("project %d not found", projectID)
	}
	p.projects[projectID] = pr
	return pr, nil
}

// ProcessAutomatic runs one automatic transition pass
func (e *engineImpl) ProcessAutomatic(ctx context.Context, projectID *int64) ([]*entity.Task, error) {
	attrs := []attribute.KeyValue{}
	if projectID != nil {
		attrs = append(attrs, attribute.Int64(attrProjectID, *projectID))
	}
	ctx, span := e.tracer.Start(ctx, "workflow.ProcessAutomatic", trace.WithAttributes(attrs...))
	defer span.End()

	tasks, err := e.store.Tasks.ListByStateTypes(ctx, projectID, automaticCandidateTypes)
	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, err.Error())
		return nil, fmt.Errorf("list automatic candidates: %w", err)
	}

	pass := &automaticPass{
		engine:   e,
		graphs:   make(map[int64]*domainwf.Graph),
		projects: make(map[int64]*entity.Project),
	}

	var processed []*entity.Task
	failed := 0
	examined := 0

	for _, task := range tasks {
		if err := ctx.Err(); err != nil {
			e.logger.Warn("Automatic pass cancelled",
				"examined", examined,
				"processed", len(processed),
				"error", err,
			)
			e.publishPass(ctx, projectID, examined, len(processed), failed)
			return processed, err
		}

		examined++
		updated, err := e.processTask(ctx, pass, task)
		if err != nil {
			failed++
			e.logger.Error("Automatic transition failed",
				"task_id", task.ID,
				"project_id", task.ProjectID,
				"error", err,
			)
			continue
		}
		if updated != nil {
			processed = append(processed, updated)
		}
	}

	span.SetAttributes(
		attribute.Int("taskflow.automatic.examined", examined),
		attribute.Int("taskflow.automatic.processed", len(processed)),
		attribute.Int("taskflow.automatic.failed", failed),
	)
	e.logger.Info("Automatic pass completed",
		"examined", examined,
		"processed", len(processed),
		"failed", failed,
	)
	e.publishPass(ctx, projectID, examined, len(processed), failed)

	return processed, nil
}

// processTask applies the first automatic transition whose conditions pass.
// Returns nil, nil when no transition applies.
func (e *engineImpl) processTask(ctx context.Context, pass *automaticPass, task *entity.Task) (*entity.Task, error) {
	graph, err := pass.graph(ctx, task.ProjectID)
	if err != nil {
		return nil, err
	}

	candidates := graph.Automatic(task.WorkflowStateID)
	if len(candidates) == 0 {
		return nil, nil
	}

	project, err := pass.project(ctx, task.ProjectID)
	if err != nil {
		return nil, err
	}

	ec, err := e.evalContext(ctx, task, project)
	if err != nil {
		return nil, err
	}

	for _, edge := range candidates {
		if !e.evaluate(edge, ec).Passed {
			continue
		}

		req := TransitionRequest{
			TaskID:    task.ID,
			ToStateID: edge.ToStateID,
			UserID:    project.OwnerID,
			Comment:   entity.SystemInfoAutomatic,
		}
		pin := &edgePin{fromStateID: task.WorkflowStateID, transitionID: edge.ID}
		result, err := e.execute(ctx, req, entity.SystemInfoAutomatic, graph, pin)
		if errors.Is(err, errCandidateMoved) {
			e.logger.Info("Task changed state during automatic pass, skipping",
				"task_id", task.ID,
				"from_state_id", task.WorkflowStateID,
				"transition_id", edge.ID,
			)
			return nil, nil
		}
		if err != nil {
			return nil, err
		}

		e.publishTransitioned(ctx, result, true)
		return result.Task, nil
	}

	return nil, nil
}

func (e *engineImpl) publishPass(ctx context.Context, projectID *int64, examined, processed, failed int) {
	if e.dispatcher == nil {
		return
	}

	var scope int64
	if projectID != nil {
		scope = *projectID
	}
	evt := event.NewEventWithCorrelation(event.TypeAutomaticPassCompleted, 0, scope, map[string]interface{}{
		event.KeyExamined:  examined,
		event.KeyProcessed: processed,
		event.KeyFailed:    failed,
	}, correlationID(ctx))
	e.dispatcher.DispatchAsync(ctx, evt)
}
