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

// StateRepository implements port.StateRepository
type StateRepository struct {
	db     *sql.DB
	logger *zap.Logger
}

// NewStateRepository creates a new workflow state repository
func NewStateRepository(db *sql.DB, logger *zap.Logger) port.StateRepository {
	return &StateRepository{
		db:     db,
		logger: logger,
	}
}

const stateColumns = `id, project_id, name, description, type, sort_order, color, created_at`

// Create inserts a workflow state and sets its generated id
func (r *StateRepository) Create(ctx context.Context, state *entity.WorkflowState) error {
	query := `
		INSERT INTO workflow_states (project_id, name, description, type, sort_order, color, created_at)
		VALUES (?, ?, ?, ?, ?, ?, ?)
	`

	state.CreatedAt = utc(state.CreatedAt)
	result, err := sqlite.GetExecutor(ctx, r.db).ExecContext(ctx, query,
		state.ProjectID,
		state.Name,
		nullString(state.Description),
		state.Type.String(),
		state.Order,
		nullString(state.Color),
		state.CreatedAt,
	)
	if err != nil {
		r.logger.Error("Failed to create workflow state",
			zap.Int64("project_id", state.ProjectID),
			zap.String("name", state.Name),
			zap.Error(err))
		return fmt.Errorf("failed to create workflow state: %w", err)
	}

	id, err := result.LastInsertId()
	if err != nil {
		return fmt.Errorf("failed to get last insert id: %w", err)
	}

	state.ID = id
	return nil
}

// GetByID retrieves a workflow state by id
func (r *StateRepository) GetByID(ctx context.Context, id int64) (*entity.WorkflowState, error) {
	query := `SELECT ` + stateColumns + ` FROM workflow_states WHERE id = ?`

	state, err := r.scanState(sqlite.GetExecutor(ctx, r.db).QueryRowContext(ctx, query, id))
	if err == sql.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		r.logger.Error("Failed to get workflow state by ID",
			zap.Int64("state_id", id),
			zap.Error(err))
		return nil, fmt.Errorf("failed to get workflow state: %w", err)
	}

	return state, nil
}

// ListByProject returns the project's states ordered by sort order, then id
func (r *StateRepository) ListByProject(ctx context.Context, projectID int64) ([]*entity.WorkflowState, error) {
	query := `
		SELECT ` + stateColumns + `
		FROM workflow_states
		WHERE project_id = ?
		ORDER BY sort_order, id
	`

	rows, err := sqlite.GetExecutor(ctx, r.db).QueryContext(ctx, query, projectID)
	if err != nil {
		r.logger.Error("Failed to list workflow states",
			zap.Int64("project_id", projectID),
			zap.Error(err))
		return nil, fmt.Errorf("failed to list workflow states: %w", err)
	}
	defer rows.Close()

	var states []*entity.WorkflowState
	for rows.Next() {
		state, err := r.scanState(rows)
		if err != nil {
			return nil, fmt.Errorf("failed to scan workflow state: %w", err)
		}
		states = append(states, state)
	}

	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("error iterating workflow states: %w", err)
	}

	return states, nil
}

func (r *StateRepository) scanState(s scanner) (*entity.WorkflowState, error) {
	var state entity.WorkflowState
	var stateType string
	var description, color sql.NullString

	err := s.Scan(
		&state.ID,
		&state.ProjectID,
		&state.Name,
		&description,
		&stateType,
		&state.Order,
		&color,
		&state.CreatedAt,
	)
	if err != nil {
		return nil, err
	}

	state.Type = entity.StateType(stateType)
	state.Description = description.String
	state.Color = color.String
	return &state, nil
}
