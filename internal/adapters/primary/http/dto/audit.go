package dto

import (
	"time"

	"github.com/google/uuid"

	"training-pipeline-service/internal/core/domain"
)

type AuditEventResponse struct {
	ID         uuid.UUID         `json:"id"`
	TenantID   uuid.UUID         `json:"tenant_id"`
	UserID     *uuid.UUID        `json:"user_id,omitempty"`
	ProjectID  *uuid.UUID        `json:"project_id,omitempty"`
	Action     string            `json:"action"`
	EntityType string            `json:"entity_type"`
	EntityID   string            `json:"entity_id"`
	Details    map[string]string `json:"details,omitempty"`
	CreatedAt  string            `json:"created_at"`
}

func ToAuditEventResponse(event *domain.AuditEvent) AuditEventResponse {
	return AuditEventResponse{
		ID:         event.ID,
		TenantID:   event.TenantID,
		UserID:     event.UserID,
		ProjectID:  event.ProjectID,
		Action:     event.Action,
		EntityType: event.EntityType,
		EntityID:   event.EntityID,
		Details:    event.Details,
		CreatedAt:  event.CreatedAt.Format(time.RFC3339),
	}
}
