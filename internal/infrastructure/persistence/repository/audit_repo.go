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

// AuditRepository implements port.AuditRepository
type AuditRepository struct {
	db     *sql.DB
	logger *zap.Logger
}

// NewAuditRepository creates a new workflow audit repository
func NewAuditRepository(db *sql.DB, logger *zap.Logger) port.AuditRepository {
	return &AuditRepository{
		db:     db,
		logger: logger,
	}
}

// Create appends an audit entry and sets its generated id
func (r *AuditRepository) Create(ctx context.Context, entry *entity.AuditEntry) error {
	query := `
		INSERT INTO workflow_audit_entries (
			task_id, from_state_id, to_state_id, user_id,
			comment, transitioned_at, system_info
		) VALUES (?, ?, ?, ?, ?, ?, ?)
	`

	entry.TransitionedAt = utc(entry.TransitionedAt)
	result, err := sqlite.GetExecutor(ctx, r.db).ExecContext(ctx, query,
		entry.TaskID,
		entry.FromStateID,
		entry.ToStateID,
		entry.UserID,
		nullString(entry.Comment),
		entry.TransitionedAt,
		nullString(entry.SystemInfo),
	)
	if err != nil {
		r.logger.Error("Failed to create audit entry",
			zap.Int64("task_id", entry.TaskID),
			zap.Int64("to_state_id", entry.ToStateID),
			zap.Error(err))
		return fmt.Errorf("failed to create audit entry: %w", err)
	}

	id, err := result.LastInsertId()
	if err != nil {
		return fmt.Errorf("failed to get last insert id: %w", err)
	}

	entry.ID = id
	return nil
}

// ListByTaskID returns the task's audit trail joined with state names and
// the acting user's name parts
func (r *AuditRepository) ListByTaskID(ctx context.Context, taskID int64, order port.SortOrder) ([]*entity.AuditRecord, error) {
	direction := "DESC"
	if order == port.SortAscending {
		direction = "ASC"
	}

	query := `
		SELECT a.id, a.task_id, a.from_state_id, a.to_state_id, a.user_id,
			a.comment, a.transitioned_at, a.system_info,
			COALESCE(fs.name, ''), COALESCE(ts.name, ''),
			u.email, u.first_name, u.last_name
		FROM workflow_audit_entries a
		LEFT JOIN workflow_states fs ON fs.id = a.from_state_id
		LEFT JOIN workflow_states ts ON ts.id = a.to_state_id
		LEFT JOIN users u ON u.id = a.user_id
		WHERE a.task_id = ?
		ORDER BY a.transitioned_at ` + direction + `, a.id ` + direction

	rows, err := sqlite.GetExecutor(ctx, r.db).QueryContext(ctx, query, taskID)
	if err != nil {
		r.logger.Error("Failed to list audit entries",
			zap.Int64("task_id", taskID),
			zap.Error(err))
		return nil, fmt.Errorf("failed to list audit entries: %w", err)
	}
	defer rows.Close()

	var records []*entity.AuditRecord
	for rows.Next() {
		var rec entity.AuditRecord
		var comment, systemInfo sql.NullString
		var email, firstName, lastName sql.NullString

		err := rows.Scan(
			&rec.ID,
			&rec.TaskID,
			&rec.FromStateID,
			&rec.ToStateID,
			&rec.UserID,
			&comment,
			&rec.TransitionedAt,
			&systemInfo,
			&rec.FromStateName,
			&rec.ToStateName,
			&email,
			&firstName,
			&lastName,
		)
		if err != nil {
			return nil, fmt.Errorf("failed to scan audit entry: %w", err)
		}

		rec.Comment = comment.String
		rec.SystemInfo = systemInfo.String

		// A deleted or unknown actor renders as "Unknown"
		var actor *entity.User
		if email.Valid {
			actor = &entity.User{Email: email.String, FirstName: firstName.String, LastName: lastName.String}
		}
		rec.UserDisplayName = actor.DisplayName()

		records = append(records, &rec)
	}

	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("error iterating audit entries: %w", err)
	}

	return records, nil
}
