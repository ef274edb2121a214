package domain

import (
	"time"

	"github.com/google/uuid"
)

// AuditEvent records a user-visible action against a tenant's resources.
// Append-only; never updated or deleted.
type AuditEvent struct {
	ID         uuid.UUID         `json:"id"`
	TenantID   uuid.UUID         `json:"tenant_id"`
	UserID     *uuid.UUID        `json:"user_id"`
	ProjectID  *uuid.UUID        `json:"project_id"`
	Action     string            `json:"action"`
	EntityType string            `json:"entity_type"`
	EntityID   string            `json:"entity_id"`
	Details    map[string]string `json:"details"`
	CreatedAt  time.Time         `json:"created_at"`
}
