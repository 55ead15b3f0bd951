package repository

import (
	"context"
	"database/sql"
	"fmt"
	"strings"

	"github.com/garyjia/taskflow/internal/application/port"
	"github.com/garyjia/taskflow/internal/domain/entity"
	"github.com/garyjia/taskflow/internal/infrastructure/persistence/sqlite"
	"go.uber.org/zap"
)

// TaskRepository implements port.TaskRepository
type TaskRepository struct {
	db     *sql.DB
	logger *zap.Logger
}

// NewTaskRepository creates a new task repository
func NewTaskRepository(db *sql.DB, logger *zap.Logger) port.TaskRepository {
	return &TaskRepository{
		db:     db,
		logger: logger,
	}
}

const taskColumns = `t.id, t.project_id, t.title, t.description, t.priority, t.assignee_id,
		t.workflow_state_id, t.due_date, t.completed_at, t.created_at, t.updated_at, t.version`

// Create inserts a task at version 1 and sets its generated id
func (r *TaskRepository) Create(ctx context.Context, task *entity.Task) error {
	query := `
		INSERT INTO tasks (
			project_id, title, description, priority, assignee_id,
			workflow_state_id, due_date, completed_at, created_at, updated_at, version
		) VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, 1)
	`

	task.CreatedAt = utc(task.CreatedAt)
	if task.UpdatedAt.IsZero() {
		task.UpdatedAt = task.CreatedAt
	}

	result, err := sqlite.GetExecutor(ctx, r.db).ExecContext(ctx, query,
		task.ProjectID,
		task.Title,
		nullString(task.Description),
		int(task.Priority),
		nullString(task.AssigneeID),
		task.WorkflowStateID,
		nullTime(task.DueDate),
		nullTime(task.CompletedAt),
		task.CreatedAt,
		task.UpdatedAt.UTC(),
	)
	if err != nil {
		r.logger.Error("Failed to create task",
			zap.Int64("project_id", task.ProjectID),
			zap.String("title", task.Title),
			zap.Error(err))
		return fmt.Errorf("failed to create task: %w", err)
	}

	id, err := result.LastInsertId()
	if err != nil {
		return fmt.Errorf("failed to get last insert id: %w", err)
	}

	task.ID = id
	task.Version = 1
	return nil
}

// GetByID retrieves a task by id regardless of who is asking
func (r *TaskRepository) GetByID(ctx context.Context, id int64) (*entity.Task, error) {
	query := `SELECT ` + taskColumns + ` FROM tasks t WHERE t.id = ?`

	task, err := r.scanTask(sqlite.GetExecutor(ctx, r.db).QueryRowContext(ctx, query, id))
	if err == sql.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		r.logger.Error("Failed to get task by ID",
			zap.Int64("task_id", id),
			zap.Error(err))
		return nil, fmt.Errorf("failed to get task: %w", err)
	}

	return task, nil
}

// GetVisibleByID retrieves a task only if userID owns its project or is its assignee
func (r *TaskRepository) GetVisibleByID(ctx context.Context, id int64, userID string) (*entity.Task, error) {
	if userID == "" {
		return nil, nil
	}

	query := `
		SELECT ` + taskColumns + `
		FROM tasks t
		JOIN projects p ON p.id = t.project_id
		WHERE t.id = ? AND (p.owner_id = ? OR t.assignee_id = ?)
	`

	task, err := r.scanTask(sqlite.GetExecutor(ctx, r.db).QueryRowContext(ctx, query, id, userID, userID))
	if err == sql.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		r.logger.Error("Failed to get visible task",
			zap.Int64("task_id", id),
			zap.String("user_id", userID),
			zap.Error(err))
		return nil, fmt.Errorf("failed to get task: %w", err)
	}

	return task, nil
}

// ListByStateTypes returns tasks whose current state has one of the given types
func (r *TaskRepository) ListByStateTypes(ctx context.Context, projectID *int64, types []entity.StateType) ([]*entity.Task, error) {
	if len(types) == 0 {
		return nil, nil
	}

	args := make([]interface{}, 0, len(types)+1)
	placeholders := make([]string, len(types))
	for i, st := range types {
		placeholders[i] = "?"
		args = append(args, st.String())
	}

	query := `
		SELECT ` + taskColumns + `
		FROM tasks t
		JOIN workflow_states s ON s.id = t.workflow_state_id
		WHERE s.type IN (` + strings.Join(placeholders, ", ") + `)`
	if projectID != nil {
		query += ` AND t.project_id = ?`
		args = append(args, *projectID)
	}
	query += ` ORDER BY t.id`

	rows, err := sqlite.GetExecutor(ctx, r.db).QueryContext(ctx, query, args...)
	if err != nil {
		r.logger.Error("Failed to list tasks by state type", zap.Error(err))
		return nil, fmt.Errorf("failed to list tasks: %w", err)
	}
	defer rows.Close()

	var tasks []*entity.Task
	for rows.Next() {
		task, err := r.scanTask(rows)
		if err != nil {
			return nil, fmt.Errorf("failed to scan task: %w", err)
		}
		tasks = append(tasks, task)
	}

	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("error iterating tasks: %w", err)
	}

	return tasks, nil
}

// UpdateWithVersion writes the workflow fields guarded by the version token
func (r *TaskRepository) UpdateWithVersion(ctx context.Context, task *entity.Task) error {
	query := `
		UPDATE tasks
		SET workflow_state_id = ?, completed_at = ?, updated_at = ?, version = version + 1
		WHERE id = ? AND version = ?
	`

	result, err := sqlite.GetExecutor(ctx, r.db).ExecContext(ctx, query,
		task.WorkflowStateID,
		nullTime(task.CompletedAt),
		task.UpdatedAt.UTC(),
		task.ID,
		task.Version,
	)
	if err != nil {
		r.logger.Error("Failed to update task",
			zap.Int64("task_id", task.ID),
			zap.Error(err))
		return fmt.Errorf("failed to update task: %w", err)
	}

	affected, err := result.RowsAffected()
	if err != nil {
		return fmt.Errorf("failed to get affected rows: %w", err)
	}
	if affected == 0 {
		return fmt.Errorf("task %d at version %d: %w", task.ID, task.Version, port.ErrVersionConflict)
	}

	task.Version++
	return nil
}

func (r *TaskRepository) scanTask(s scanner) (*entity.Task, error) {
	var task entity.Task
	var priority int
	var description, assigneeID sql.NullString
	var dueDate, completedAt sql.NullTime

	err := s.Scan(
		&task.ID,
		&task.ProjectID,
		&task.Title,
		&description,
		&priority,
		&assigneeID,
		&task.WorkflowStateID,
		&dueDate,
		&completedAt,
		&task.CreatedAt,
		&task.UpdatedAt,
		&task.Version,
	)
	if err != nil {
		return nil, err
	}

	task.Priority = entity.Priority(priority)
	task.Description = description.String
	task.AssigneeID = assigneeID.String
	task.DueDate = timePtr(dueDate)
	task.CompletedAt = timePtr(completedAt)
	return &task, nil
}
