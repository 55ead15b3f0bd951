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

// ProjectRepository implements port.ProjectRepository
type ProjectRepository struct {
	db     *sql.DB
	logger *zap.Logger
}

// NewProjectRepository creates a new project repository
func NewProjectRepository(db *sql.DB, logger *zap.Logger) port.ProjectRepository {
	return &ProjectRepository{
		db:     db,
		logger: logger,
	}
}

// Create inserts a project and sets its generated id
func (r *ProjectRepository) Create(ctx context.Context, project *entity.Project) error {
	query := `
		INSERT INTO projects (name, description, owner_id, created_at, updated_at)
		VALUES (?, ?, ?, ?, ?)
	`

	project.CreatedAt = utc(project.CreatedAt)
	if project.UpdatedAt.IsZero() {
		project.UpdatedAt = project.CreatedAt
	}

	result, err := sqlite.GetExecutor(ctx, r.db).ExecContext(ctx, query,
		project.Name,
		nullString(project.Description),
		project.OwnerID,
		project.CreatedAt,
		project.UpdatedAt.UTC(),
	)
	if err != nil {
		r.logger.Error("Failed to create project",
			zap.String("name", project.Name),
			zap.String("owner_id", project.OwnerID),
			zap.Error(err))
		return fmt.Errorf("failed to create project: %w", err)
	}

	id, err := result.LastInsertId()
	if err != nil {
		return fmt.Errorf("failed to get last insert id: %w", err)
	}

	project.ID = id
	return nil
}

// GetByID retrieves a project by id
func (r *ProjectRepository) GetByID(ctx context.Context, id int64) (*entity.Project, error) {
	query := `
		SELECT id, name, description, owner_id, created_at, updated_at
		FROM projects
		WHERE id = ?
	`

	var project entity.Project
	var description sql.NullString
	err := sqlite.GetExecutor(ctx, r.db).QueryRowContext(ctx, query, id).Scan(
		&project.ID,
		&project.Name,
		&description,
		&project.OwnerID,
		&project.CreatedAt,
		&project.UpdatedAt,
	)
	if err == sql.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		r.logger.Error("Failed to get project by ID",
			zap.Int64("project_id", id),
			zap.Error(err))
		return nil, fmt.Errorf("failed to get project: %w", err)
	}

	project.Description = description.String
	return &project, nil
}
