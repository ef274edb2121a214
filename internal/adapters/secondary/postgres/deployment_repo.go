package postgres

import (
	"context"
	"errors"
	"fmt"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/jackc/pgx/v5/pgxpool"

	"training-pipeline-service/internal/core/domain"
	ports "training-pipeline-service/internal/core/ports/output"
)

type deploymentRepo struct {
	pool *pgxpool.Pool
}

func NewDeploymentRepository(pool *pgxpool.Pool) ports.DeploymentRepository {
	return &deploymentRepo{pool: pool}
}

const deploymentColumns = `
	id, tenant_id, project_id, training_run_id, version, status, package_path,
	endpoint_url, created_at, retired_at`

func (r *deploymentRepo) GetByID(ctx context.Context, tenantID uuid.UUID, id uuid.UUID) (*domain.Deployment, error) {
	query := fmt.Sprintf(`SELECT %s FROM deployment WHERE id = $1 AND tenant_id = $2`, deploymentColumns)
	deployment, err := scanDeployment(r.pool.QueryRow(ctx, query, id, tenantID))
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, domain.ErrDeploymentNotFound
		}
		return nil, fmt.Errorf("get deployment by id: %w", err)
	}
	return deployment, nil
}

func (r *deploymentRepo) GetActive(ctx context.Context, tenantID uuid.UUID, projectID uuid.UUID) (*domain.Deployment, error) {
	query := fmt.Sprintf(`
		SELECT %s FROM deployment
		WHERE tenant_id = $1 AND project_id = $2 AND status = $3`, deploymentColumns)
	deployment, err := scanDeployment(r.pool.QueryRow(ctx, query, tenantID, projectID, string(domain.DeploymentStatusActive)))
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, domain.ErrNoActiveDeployment
		}
		return nil, fmt.Errorf("get active deployment: %w", err)
	}
	return deployment, nil
}

func (r *deploymentRepo) ListByProject(ctx context.Context, tenantID uuid.UUID, projectID uuid.UUID) ([]*domain.Deployment, error) {
	query := fmt.Sprintf(`
		SELECT %s FROM deployment
		WHERE tenant_id = $1 AND project_id = $2
		ORDER BY created_at DESC`, deploymentColumns)
	rows, err := r.pool.Query(ctx, query, tenantID, projectID)
	if err != nil {
		return nil, fmt.Errorf("list deployments: %w", err)
	}
	defer rows.Close()

	var deployments []*domain.Deployment
	for rows.Next() {
		deployment, err := scanDeployment(rows)
		if err != nil {
			return nil, fmt.Errorf("scan deployment row: %w", err)
		}
		deployments = append(deployments, deployment)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate deployment rows: %w", err)
	}

	return deployments, nil
}

// ActivateExclusive retires the current active deployment and inserts the new
// one in the same transaction; the project row lock taken by the retire update
// serializes concurrent activations so readers never see two actives.
func (r *deploymentRepo) ActivateExclusive(ctx context.Context, deployment *domain.Deployment) error {
	tx, err := r.pool.Begin(ctx)
	if err != nil {
		return fmt.Errorf("begin activate transaction: %w", err)
	}
	defer tx.Rollback(ctx)

	retireQuery := `
		UPDATE deployment
		SET status = $1, retired_at = NOW()
		WHERE tenant_id = $2 AND project_id = $3 AND status = $4
	`
	_, err = tx.Exec(ctx, retireQuery,
		string(domain.DeploymentStatusRetired), deployment.TenantID,
		deployment.ProjectID, string(domain.DeploymentStatusActive),
	)
	if err != nil {
		return fmt.Errorf("retire active deployment: %w", err)
	}

	insertQuery := `
		INSERT INTO deployment
			(id, tenant_id, project_id, training_run_id, version, status,
			 package_path, endpoint_url, created_at)
		VALUES ($1,$2,$3,$4,$5,$6,$7,$8,$9)
	`
	_, err = tx.Exec(ctx, insertQuery,
		deployment.ID, deployment.TenantID, deployment.ProjectID,
		deployment.TrainingRunID, deployment.Version, string(deployment.Status),
		deployment.PackagePath, deployment.EndpointURL, deployment.CreatedAt,
	)
	if err != nil {
		var pgErr *pgconn.PgError
		if errors.As(err, &pgErr) && pgErr.Code == "23505" {
			return domain.ErrDuplicateVersion
		}
		return fmt.Errorf("insert deployment: %w", err)
	}

	if err := tx.Commit(ctx); err != nil {
		return fmt.Errorf("commit activate transaction: %w", err)
	}
	return nil
}

func scanDeployment(row pgx.Row) (*domain.Deployment, error) {
	deployment := &domain.Deployment{}
	err := row.Scan(
		&deployment.ID, &deployment.TenantID, &deployment.ProjectID,
		&deployment.TrainingRunID, &deployment.Version, &deployment.Status,
		&deployment.PackagePath, &deployment.EndpointURL,
		&deployment.CreatedAt, &deployment.RetiredAt,
	)
	if err != nil {
		return nil, err
	}
	return deployment, nil
}
