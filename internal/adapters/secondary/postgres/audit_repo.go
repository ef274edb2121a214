package postgres

import (
	"context"
	"encoding/json"
	"fmt"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5/pgxpool"

	"training-pipeline-service/internal/core/domain"
	ports "training-pipeline-service/internal/core/ports/output"
)

type auditRepo struct {
	pool *pgxpool.Pool
}

func NewAuditLogRepository(pool *pgxpool.Pool) ports.AuditLogRepository {
	return &auditRepo{pool: pool}
}

func (r *auditRepo) Append(ctx context.Context, event *domain.AuditEvent) error {
	detailsJSON, err := json.Marshal(event.Details)
	if err != nil {
		return fmt.Errorf("marshal audit details: %w", err)
	}

	query := `
		INSERT INTO audit_event
			(id, tenant_id, user_id, project_id, action, entity_type, entity_id, details, created_at)
		VALUES ($1,$2,$3,$4,$5,$6,$7,$8,$9)
	`
	_, err = r.pool.Exec(ctx, query,
		event.ID, event.TenantID, event.UserID, event.ProjectID,
		event.Action, event.EntityType, event.EntityID, detailsJSON, event.CreatedAt,
	)
	if err != nil {
		return fmt.Errorf("append audit event: %w", err)
	}
	return nil
}

func (r *auditRepo) ListByTenant(ctx context.Context, tenantID uuid.UUID, limit int) ([]*domain.AuditEvent, error) {
	if limit <= 0 {
		limit = 50
	}

	query := `
		SELECT id, tenant_id, user_id, project_id, action, entity_type, entity_id, details, created_at
		FROM audit_event
		WHERE tenant_id = $1
		ORDER BY created_at DESC
		LIMIT $2
	`
	rows, err := r.pool.Query(ctx, query, tenantID, limit)
	if err != nil {
		return nil, fmt.Errorf("list audit events: %w", err)
	}
	defer rows.Close()

	var events []*domain.AuditEvent
	for rows.Next() {
		event := &domain.AuditEvent{}
		var detailsJSON []byte

		err := rows.Scan(
			&event.ID, &event.TenantID, &event.UserID, &event.ProjectID,
			&event.Action, &event.EntityType, &event.EntityID,
			&detailsJSON, &event.CreatedAt,
		)
		if err != nil {
			return nil, fmt.Errorf("scan audit event row: %w", err)
		}
		if len(detailsJSON) > 0 {
			if err := json.Unmarshal(detailsJSON, &event.Details); err != nil {
				return nil, fmt.Errorf("unmarshal audit details: %w", err)
			}
		}
		events = append(events, event)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate audit event rows: %w", err)
	}

	return events, nil
}
