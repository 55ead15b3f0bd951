package entity

import "time"

// AuditEntry is the immutable record of one executed transition
type AuditEntry struct {
	ID             int64     `json:"id"`
	TaskID         int64     `json:"task_id"`
	FromStateID    int64     `json:"from_state_id"`
	ToStateID      int64     `json:"to_state_id"`
	UserID         string    `json:"user_id"`
	Comment        string    `json:"comment,omitempty"`
	TransitionedAt time.Time `json:"transitioned_at"`
	SystemInfo     string    `json:"system_info,omitempty"`
}

// AuditRecord is an audit entry joined with the names it references, as
// returned by history queries
type AuditRecord struct {
	AuditEntry
	FromStateName   string `json:"from_state_name"`
	ToStateName     string `json:"to_state_name"`
	UserDisplayName string `json:"user_display_name"`
}
