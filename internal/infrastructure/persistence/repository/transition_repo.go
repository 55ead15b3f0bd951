package repository

import (
	"context"
	"database/sql"
	"fmt"

	"github.com/garyjia/taskflow/internal/application/port"
	"github.com/garyjia/taskflow/internal/domain/entity"
	"github.com/garyjia/taskflow/internal/infrastructure/persistence/sqlite"
	"go.uber.org/zap"
)

// TransitionRepository implements port.TransitionRepository
type TransitionRepository struct {
	db     *sql.DB
	logger *zap.Logger
}

// NewTransitionRepository creates a new workflow transition repository
func NewTransitionRepository(db *sql.DB, logger *zap.Logger) port.TransitionRepository {
	return &TransitionRepository{
		db:     db,
		logger: logger,
	}
}

const transitionColumns = `t.id, t.name, t.description, t.from_state_id, t.to_state_id,
		t.condition_expression, t.is_automatic, t.sort_order, t.created_at`

// Create inserts a transition and sets its generated id. A second edge for
// the same (from, to) pair violates the table's unique constraint.
func (r *TransitionRepository) Create(ctx context.Context, transition *entity.WorkflowTransition) error {
	query := `
		INSERT INTO workflow_transitions (
			name, description, from_state_id, to_state_id,
			condition_expression, is_automatic, sort_order, created_at
		) VALUES (?, ?, ?, ?, ?, ?, ?, ?)
	`

	transition.CreatedAt = utc(transition.CreatedAt)
	result, err := sqlite.GetExecutor(ctx, r.db).ExecContext(ctx, query,
		transition.Name,
		nullString(transition.Description),
		transition.FromStateID,
		transition.ToStateID,
		nullString(transition.ConditionExpression),
		transition.IsAutomatic,
		transition.Order,
		transition.CreatedAt,
	)
	if isUniqueViolation(err) {
		return fmt.Errorf("transition %d -> %d: %w", transition.FromStateID, transition.ToStateID, port.ErrDuplicate)
	}
	if err != nil {
		r.logger.Error("Failed to create workflow transition",
			zap.Int64("from_state_id", transition.FromStateID),
			zap.Int64("to_state_id", transition.ToStateID),
			zap.Error(err))
		return fmt.Errorf("failed to create workflow transition: %w", err)
	}

	id, err := result.LastInsertId()
	if err != nil {
		return fmt.Errorf("failed to get last insert id: %w", err)
	}

	transition.ID = id
	return nil
}

// GetByID retrieves a transition by id
func (r *TransitionRepository) GetByID(ctx context.Context, id int64) (*entity.WorkflowTransition, error) {
	query := `SELECT ` + transitionColumns + ` FROM workflow_transitions t WHERE t.id = ?`

	transition, err := r.scanTransition(sqlite.GetExecutor(ctx, r.db).QueryRowContext(ctx, query, id))
	if err == sql.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		r.logger.Error("Failed to get workflow transition by ID",
			zap.Int64("transition_id", id),
			zap.Error(err))
		return nil, fmt.Errorf("failed to get workflow transition: %w", err)
	}

	return transition, nil
}

// ListByProject returns every transition leaving a state of the project,
// ordered by sort order, then id
func (r *TransitionRepository) ListByProject(ctx context.Context, projectID int64) ([]*entity.WorkflowTransition, error) {
	query := `
		SELECT ` + transitionColumns + `
		FROM workflow_transitions t
		JOIN workflow_states s ON s.id = t.from_state_id
		WHERE s.project_id = ?
		ORDER BY t.sort_order, t.id
	`

	rows, err := sqlite.GetExecutor(ctx, r.db).QueryContext(ctx, query, projectID)
	if err != nil {
		r.logger.Error("Failed to list workflow transitions",
			zap.Int64("project_id", projectID),
			zap.Error(err))
		return nil, fmt.Errorf("failed to list workflow transitions: %w", err)
	}
	defer rows.Close()

	var transitions []*entity.WorkflowTransition
	for rows.Next() {
		transition, err := r.scanTransition(rows)
		if err != nil {
			return nil, fmt.Errorf("failed to scan workflow transition: %w", err)
		}
		transitions = append(transitions, transition)
	}

	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("error iterating workflow transitions: %w", err)
	}

	return transitions, nil
}

func (r *TransitionRepository) scanTransition(s scanner) (*entity.WorkflowTransition, error) {
	var t entity.WorkflowTransition
	var description, expression sql.NullString

	err := s.Scan(
		&t.ID,
		&t.Name,
		&description,
		&t.FromStateID,
		&t.ToStateID,
		&expression,
		&t.IsAutomatic,
		&t.Order,
		&t.CreatedAt,
	)
	if err != nil {
		return nil, err
	}

	t.Description = description.String
	t.ConditionExpression = expression.String
	return &t, nil
}
