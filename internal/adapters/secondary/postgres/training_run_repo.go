package postgres

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"strings"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"training-pipeline-service/internal/core/domain"
	ports "training-pipeline-service/internal/core/ports/output"
)

type trainingRunRepo struct {
	pool *pgxpool.Pool
}

func NewTrainingRunRepository(pool *pgxpool.Pool) ports.TrainingRunRepository {
	return &trainingRunRepo{pool: pool}
}

const runColumns = `
	id, created_at, updated_at, tenant_id, project_id, dataset_version_id,
	requested_by_user_id, base_model_id, config, state, state_message,
	progress, vram_estimate_gb, retry_count, checkpoint_path, adapter_path,
	package_path, eval_report_id, error_message, data_rights_confirmed`

func (r *trainingRunRepo) Create(ctx context.Context, run *domain.TrainingRun) error {
	configJSON, err := json.Marshal(run.Config)
	if err != nil {
		return fmt.Errorf("marshal config: %w", err)
	}

	query := `
		INSERT INTO training_run
			(id, created_at, updated_at, tenant_id, project_id, dataset_version_id,
			 requested_by_user_id, base_model_id, config, state, state_message,
			 progress, vram_estimate_gb, retry_count, checkpoint_path, adapter_path,
			 package_path, eval_report_id, error_message, data_rights_confirmed)
		VALUES ($1,$2,$3,$4,$5,$6,$7,$8,$9,$10,$11,$12,$13,$14,$15,$16,$17,$18,$19,$20)
	`
	_, err = r.pool.Exec(ctx, query,
		run.ID, run.CreatedAt, run.UpdatedAt, run.TenantID, run.ProjectID,
		run.DatasetVersionID, run.RequestedByUserID, run.BaseModelID, configJSON,
		string(run.State), run.StateMessage, run.Progress, run.VRAMEstimateGB,
		run.RetryCount, run.CheckpointPath, run.AdapterPath, run.PackagePath,
		run.EvalReportID, run.ErrorMessage, run.DataRightsConfirmed,
	)
	if err != nil {
		return fmt.Errorf("create training run: %w", err)
	}
	return nil
}

func (r *trainingRunRepo) GetByID(ctx context.Context, tenantID uuid.UUID, id uuid.UUID) (*domain.TrainingRun, error) {
	query := fmt.Sprintf(`SELECT %s FROM training_run WHERE id = $1`, runColumns)
	args := []interface{}{id}
	if tenantID != uuid.Nil {
		query += ` AND tenant_id = $2`
		args = append(args, tenantID)
	}

	run, err := scanRun(r.pool.QueryRow(ctx, query, args...))
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, domain.ErrRunNotFound
		}
		return nil, fmt.Errorf("get training run by id: %w", err)
	}
	return run, nil
}

func (r *trainingRunRepo) List(ctx context.Context, filter ports.RunListFilter) ([]*domain.TrainingRun, int, error) {
	conditions := []string{}
	args := []interface{}{}
	argPos := 1

	if filter.TenantID != uuid.Nil {
		conditions = append(conditions, fmt.Sprintf("tenant_id = $%d", argPos))
		args = append(args, filter.TenantID)
		argPos++
	}
	if filter.ProjectID != uuid.Nil {
		conditions = append(conditions, fmt.Sprintf("project_id = $%d", argPos))
		args = append(args, filter.ProjectID)
		argPos++
	}
	if filter.State != "" {
		conditions = append(conditions, fmt.Sprintf("state = $%d", argPos))
		args = append(args, filter.State)
		argPos++
	}

	whereClause := "1=1"
	if len(conditions) > 0 {
		whereClause = strings.Join(conditions, " AND ")
	}

	countQuery := fmt.Sprintf("SELECT COUNT(*) FROM training_run WHERE %s", whereClause)
	var total int
	if err := r.pool.QueryRow(ctx, countQuery, args...).Scan(&total); err != nil {
		return nil, 0, fmt.Errorf("count training runs: %w", err)
	}

	orderBy := "created_at DESC"
	if filter.SortBy != "" {
		dir := "DESC"
		if filter.Order == "asc" {
			dir = "ASC"
		}
		orderBy = fmt.Sprintf("%s %s", filter.SortBy, dir)
	}

	query := fmt.Sprintf(`SELECT %s FROM training_run WHERE %s ORDER BY %s LIMIT $%d OFFSET $%d`,
		runColumns, whereClause, orderBy, argPos, argPos+1)
	args = append(args, filter.Limit, filter.Offset)

	rows, err := r.pool.Query(ctx, query, args...)
	if err != nil {
		return nil, 0, fmt.Errorf("list training runs: %w", err)
	}
	defer rows.Close()

	var runs []*domain.TrainingRun
	for rows.Next() {
		run, err := scanRun(rows)
		if err != nil {
			return nil, 0, fmt.Errorf("scan training run row: %w", err)
		}
		runs = append(runs, run)
	}
	if err := rows.Err(); err != nil {
		return nil, 0, fmt.Errorf("iterate training run rows: %w", err)
	}

	return runs, total, nil
}

func (r *trainingRunRepo) Update(ctx context.Context, run *domain.TrainingRun) error {
	configJSON, err := json.Marshal(run.Config)
	if err != nil {
		return fmt.Errorf("marshal config: %w", err)
	}

	query := `
		UPDATE training_run
		SET config=$1, state_message=$2, progress=$3, vram_estimate_gb=$4,
			retry_count=$5, checkpoint_path=$6, adapter_path=$7, package_path=$8,
			eval_report_id=$9, error_message=$10, updated_at=NOW()
		WHERE id=$11
	`
	result, err := r.pool.Exec(ctx, query,
		configJSON, run.StateMessage, run.Progress, run.VRAMEstimateGB,
		run.RetryCount, run.CheckpointPath, run.AdapterPath, run.PackagePath,
		run.EvalReportID, run.ErrorMessage, run.ID,
	)
	if err != nil {
		return fmt.Errorf("update training run: %w", err)
	}
	if result.RowsAffected() == 0 {
		return domain.ErrRunNotFound
	}
	return nil
}

func (r *trainingRunRepo) CompareAndSwapState(ctx context.Context, id uuid.UUID, expect, next domain.RunState, message string) (bool, error) {
	query := `
		UPDATE training_run
		SET state=$1, state_message=$2, updated_at=NOW()
		WHERE id=$3 AND state=$4
	`
	result, err := r.pool.Exec(ctx, query, string(next), message, id, string(expect))
	if err != nil {
		return false, fmt.Errorf("compare-and-swap run state: %w", err)
	}
	return result.RowsAffected() == 1, nil
}

// ClaimOldestQueued claims through a single statement: the inner select picks
// the oldest queued run with SKIP LOCKED so concurrent claimants fan out, and
// the state guard on the outer update keeps the write conditional.
func (r *trainingRunRepo) ClaimOldestQueued(ctx context.Context) (*domain.TrainingRun, error) {
	query := fmt.Sprintf(`
		UPDATE training_run
		SET state=$1, state_message='Picked by worker', updated_at=NOW()
		WHERE id = (
			SELECT id FROM training_run
			WHERE state=$2
			ORDER BY created_at ASC
			LIMIT 1
			FOR UPDATE SKIP LOCKED
		) AND state=$2
		RETURNING %s`, runColumns)

	run, err := scanRun(r.pool.QueryRow(ctx, query, string(domain.RunStatePreflight), string(domain.RunStateQueued)))
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, nil
		}
		return nil, fmt.Errorf("claim oldest queued run: %w", err)
	}
	return run, nil
}

func scanRun(row pgx.Row) (*domain.TrainingRun, error) {
	run := &domain.TrainingRun{}
	var configJSON []byte

	err := row.Scan(
		&run.ID, &run.CreatedAt, &run.UpdatedAt, &run.TenantID, &run.ProjectID,
		&run.DatasetVersionID, &run.RequestedByUserID, &run.BaseModelID,
		&configJSON, &run.State, &run.StateMessage, &run.Progress,
		&run.VRAMEstimateGB, &run.RetryCount, &run.CheckpointPath,
		&run.AdapterPath, &run.PackagePath, &run.EvalReportID,
		&run.ErrorMessage, &run.DataRightsConfirmed,
	)
	if err != nil {
		return nil, err
	}

	if len(configJSON) > 0 {
		if err := json.Unmarshal(configJSON, &run.Config); err != nil {
			return nil, fmt.Errorf("unmarshal config: %w", err)
		}
	}
	return run, nil
}
