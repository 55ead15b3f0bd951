package repository

import (
	"github.com/garyjia/taskflow/internal/application/port"
	"github.com/garyjia/taskflow/internal/infrastructure/persistence/sqlite"
	"go.uber.org/zap"
)

// NewStore wires the SQLite repositories and transaction manager over db
func NewStore(db *sqlite.DB, logger *zap.Logger) port.Store {
	return port.Store{
		Tasks:       NewTaskRepository(db.DB, logger),
		Projects:    NewProjectRepository(db.DB, logger),
		Users:       NewUserRepository(db.DB, logger),
		States:      NewStateRepository(db.DB, logger),
		Transitions: NewTransitionRepository(db.DB, logger),
		Audit:       NewAuditRepository(db.DB, logger),
		Tx:          db,
	}
}
