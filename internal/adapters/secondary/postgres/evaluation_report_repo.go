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

type evaluationReportRepo struct {
	pool *pgxpool.Pool
}

func NewEvaluationReportRepository(pool *pgxpool.Pool) ports.EvaluationReportRepository {
	return &evaluationReportRepo{pool: pool}
}

const reportColumns = `
	id, tenant_id, project_id, training_run_id, metrics, go_no_go, failures, report_path, created_at`

func (r *evaluationReportRepo) Create(ctx context.Context, report *domain.EvaluationReport) error {
	metricsJSON, err := json.Marshal(report.Metrics)
	if err != nil {
		return fmt.Errorf("marshal metrics: %w", err)
	}
	failuresJSON, err := json.Marshal(report.Failures)
	if err != nil {
		return fmt.Errorf("marshal failures: %w", err)
	}

	query := `
		INSERT INTO evaluation_report
			(id, tenant_id, project_id, training_run_id, metrics, go_no_go, failures, report_path, created_at)
		VALUES ($1,$2,$3,$4,$5,$6,$7,$8,$9)
	`
	_, err = r.pool.Exec(ctx, query,
		report.ID, report.TenantID, report.ProjectID, report.TrainingRunID,
		metricsJSON, report.GoNoGo, failuresJSON, report.ReportPath, report.CreatedAt,
	)
	if err != nil {
		return fmt.Errorf("create evaluation report: %w", err)
	}
	return nil
}

func (r *evaluationReportRepo) GetByID(ctx context.Context, id uuid.UUID) (*domain.EvaluationReport, error) {
	query := fmt.Sprintf(`SELECT %s FROM evaluation_report WHERE id = $1`, reportColumns)
	return r.queryOne(ctx, query, id)
}

func (r *evaluationReportRepo) GetByRunID(ctx context.Context, runID uuid.UUID) (*domain.EvaluationReport, error) {
	query := fmt.Sprintf(`SELECT %s FROM evaluation_report WHERE training_run_id = $1`, reportColumns)
	return r.queryOne(ctx, query, runID)
}

func (r *evaluationReportRepo) LatestForProject(ctx context.Context, projectID uuid.UUID, excludeRunID uuid.UUID) (*domain.EvaluationReport, error) {
	query := fmt.Sprintf(`
		SELECT %s FROM evaluation_report
		WHERE project_id = $1 AND training_run_id <> $2
		ORDER BY created_at DESC
		LIMIT 1`, reportColumns)
	return r.queryOne(ctx, query, projectID, excludeRunID)
}

func (r *evaluationReportRepo) queryOne(ctx context.Context, query string, args ...interface{}) (*domain.EvaluationReport, error) {
	report := &domain.EvaluationReport{}
	var metricsJSON, failuresJSON []byte

	err := r.pool.QueryRow(ctx, query, args...).Scan(
		&report.ID, &report.TenantID, &report.ProjectID, &report.TrainingRunID,
		&metricsJSON, &report.GoNoGo, &failuresJSON, &report.ReportPath, &report.CreatedAt,
	)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, domain.ErrReportNotFound
		}
		return nil, fmt.Errorf("get evaluation report: %w", err)
	}

	if err := json.Unmarshal(metricsJSON, &report.Metrics); err != nil {
		return nil, fmt.Errorf("unmarshal metrics: %w", err)
	}
	if len(failuresJSON) > 0 {
		if err := json.Unmarshal(failuresJSON, &report.Failures); err != nil {
			return nil, fmt.Errorf("unmarshal failures: %w", err)
		}
	}
	return report, nil
}
