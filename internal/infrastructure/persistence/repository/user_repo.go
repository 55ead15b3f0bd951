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

// UserRepository implements port.UserRepository
type UserRepository struct {
	db     *sql.DB
	logger *zap.Logger
}

// NewUserRepository creates a new user repository
func NewUserRepository(db *sql.DB, logger *zap.Logger) port.UserRepository {
	return &UserRepository{
		db:     db,
		logger: logger,
	}
}

// Create inserts a user with a caller-chosen id
func (r *UserRepository) Create(ctx context.Context, user *entity.User) error {
	query := `
		INSERT INTO users (id, email, first_name, last_name, created_at)
		VALUES (?, ?, ?, ?, ?)
	`

	user.CreatedAt = utc(user.CreatedAt)
	_, err := sqlite.GetExecutor(ctx, r.db).ExecContext(ctx, query,
		user.ID,
		user.Email,
		nullString(user.FirstName),
		nullString(user.LastName),
		user.CreatedAt,
	)
	if err != nil {
		r.logger.Error("Failed to create user",
			zap.String("user_id", user.ID),
			zap.Error(err))
		return fmt.Errorf("failed to create user: %w", err)
	}

	return nil
}

// GetByID retrieves a user by id
func (r *UserRepository) GetByID(ctx context.Context, id string) (*entity.User, error) {
	query := `
		SELECT id, email, first_name, last_name, created_at
		FROM users
		WHERE id = ?
	`

	var user entity.User
	var firstName, lastName sql.NullString
	err := sqlite.GetExecutor(ctx, r.db).QueryRowContext(ctx, query, id).Scan(
		&user.ID,
		&user.Email,
		&firstName,
		&lastName,
		&user.CreatedAt,
	)
	if err == sql.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		r.logger.Error("Failed to get user by ID",
			zap.String("user_id", id),
			zap.Error(err))
		return nil, fmt.Errorf("failed to get user: %w", err)
	}

	user.FirstName = firstName.String
	user.LastName = lastName.String
	return &user, nil
}
