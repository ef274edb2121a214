package postgres

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/jackc/pgx/v5/pgxpool"

	"training-pipeline-service/internal/core/domain"
	ports "training-pipeline-service/internal/core/ports/output"
)

type runEventRepo struct {
	pool *pgxpool.Pool
}

func NewRunEventRepository(pool *pgxpool.Pool) ports.RunEventRepository {
	return &runEventRepo{pool: pool}
}

func (r *runEventRepo) Append(ctx context.Context, event *domain.RunEvent) error {
	detailsJSON, err := json.Marshal(event.Details)
	if err != nil {
		return fmt.Errorf("marshal event details: %w", err)
	}

	var fromState *string
	if event.FromState != nil {
		s := string(*event.FromState)
		fromState = &s
	}

	// Seq is assigned here so appends from concurrent writers stay dense and
	// ordered per run. Two writers can compute the same seq; the unique
	// (run_id, seq) index rejects the loser, who recomputes and retries.
	query := `
		INSERT INTO run_event
			(id, run_id, tenant_id, project_id, seq, from_state, to_state, message, details, created_at)
		VALUES ($1,$2,$3,$4,
			(SELECT COALESCE(MAX(seq),0)+1 FROM run_event WHERE run_id=$2),
			$5,$6,$7,$8,$9)
		RETURNING seq
	`
	for attempt := 0; ; attempt++ {
		err = r.pool.QueryRow(ctx, query,
			event.ID, event.RunID, event.TenantID, event.ProjectID,
			fromState, string(event.ToState), event.Message, detailsJSON, event.CreatedAt,
		).Scan(&event.Seq)
		if err == nil {
			return nil
		}
		var pgErr *pgconn.PgError
		if errors.As(err, &pgErr) && pgErr.Code == "23505" && attempt < 3 {
			continue
		}
		return fmt.Errorf("append run event: %w", err)
	}
}

func (r *runEventRepo) ListByRun(ctx context.Context, runID uuid.UUID) ([]*domain.RunEvent, error) {
	query := `
		SELECT id, run_id, tenant_id, project_id, seq, from_state, to_state, message, details, created_at
		FROM run_event
		WHERE run_id = $1
		ORDER BY seq ASC
	`
	rows, err := r.pool.Query(ctx, query, runID)
	if err != nil {
		return nil, fmt.Errorf("list run events: %w", err)
	}
	defer rows.Close()

	var events []*domain.RunEvent
	for rows.Next() {
		event := &domain.RunEvent{}
		var fromState *string
		var detailsJSON []byte

		err := rows.Scan(
			&event.ID, &event.RunID, &event.TenantID, &event.ProjectID,
			&event.Seq, &fromState, &event.ToState, &event.Message,
			&detailsJSON, &event.CreatedAt,
		)
		if err != nil {
			return nil, fmt.Errorf("scan run event row: %w", err)
		}

		if fromState != nil {
			s := domain.RunState(*fromState)
			event.FromState = &s
		}
		if len(detailsJSON) > 0 {
			if err := json.Unmarshal(detailsJSON, &event.Details); err != nil {
				return nil, fmt.Errorf("unmarshal event details: %w", err)
			}
		}
		events = append(events, event)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate run event rows: %w", err)
	}

	return events, nil
}
