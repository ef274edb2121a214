package postgres

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"training-pipeline-service/internal/core/domain"
	ports "training-pipeline-service/internal/core/ports/output"
)

type datasetVersionRepo struct {
	pool *pgxpool.Pool
}

// NewDatasetVersionReader reads dataset versions materialized by the upstream
// dataset builder. This adapter never writes to the table.
func NewDatasetVersionReader(pool *pgxpool.Pool) ports.DatasetVersionReader {
	return &datasetVersionRepo{pool: pool}
}

func (r *datasetVersionRepo) GetByID(ctx context.Context, tenantID uuid.UUID, id uuid.UUID) (*domain.DatasetVersion, error) {
	query := `
		SELECT id, tenant_id, project_id, name, status, paths, stats, created_at
		FROM dataset_version
		WHERE id = $1 AND tenant_id = $2
	`
	version := &domain.DatasetVersion{}
	var pathsJSON, statsJSON []byte

	err := r.pool.QueryRow(ctx, query, id, tenantID).Scan(
		&version.ID, &version.TenantID, &version.ProjectID, &version.Name,
		&version.Status, &pathsJSON, &statsJSON, &version.CreatedAt,
	)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, domain.ErrDatasetNotFound
		}
		return nil, fmt.Errorf("get dataset version: %w", err)
	}

	if len(pathsJSON) > 0 {
		if err := json.Unmarshal(pathsJSON, &version.Paths); err != nil {
			return nil, fmt.Errorf("unmarshal dataset paths: %w", err)
		}
	}
	if len(statsJSON) > 0 {
		if err := json.Unmarshal(statsJSON, &version.Stats); err != nil {
			return nil, fmt.Errorf("unmarshal dataset stats: %w", err)
		}
	}
	return version, nil
}
