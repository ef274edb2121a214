package ports

import (
	"context"

	"github.com/google/uuid"

	"training-pipeline-service/internal/core/domain"
)

type RunListFilter struct {
	TenantID  uuid.UUID
	ProjectID uuid.UUID
	State     string
	SortBy    string
	Order     string
	Limit     int
	Offset    int
}

// TrainingRunRepository stores runs. ClaimOldestQueued and CompareAndSwapState
// are the only operations that must be race-free; both are conditional writes
// keyed on the expected prior state.
type TrainingRunRepository interface {
	Create(ctx context.Context, run *domain.TrainingRun) error
	// GetByID is tenant-scoped; a zero tenantID skips the scoping for
	// internal callers such as workers.
	GetByID(ctx context.Context, tenantID uuid.UUID, id uuid.UUID) (*domain.TrainingRun, error)
	List(ctx context.Context, filter RunListFilter) ([]*domain.TrainingRun, int, error)

	// Update persists mutable fields of a run the caller already holds
	// exclusively. It must not be used to change State; use
	// CompareAndSwapState for that.
	Update(ctx context.Context, run *domain.TrainingRun) error

	// CompareAndSwapState sets the run's state to next only if the stored
	// state still equals expect. Returns false when another writer got there
	// first; no other field is touched in that case.
	CompareAndSwapState(ctx context.Context, id uuid.UUID, expect, next domain.RunState, message string) (bool, error)

	// ClaimOldestQueued atomically moves the oldest QUEUED run to PREFLIGHT
	// and returns it. Returns nil when no run is claimable.
	ClaimOldestQueued(ctx context.Context) (*domain.TrainingRun, error)
}

type RunEventRepository interface {
	// Append writes the event with the next per-run sequence number.
	Append(ctx context.Context, event *domain.RunEvent) error
	ListByRun(ctx context.Context, runID uuid.UUID) ([]*domain.RunEvent, error)
}

type EvaluationReportRepository interface {
	Create(ctx context.Context, report *domain.EvaluationReport) error
	GetByID(ctx context.Context, id uuid.UUID) (*domain.EvaluationReport, error)
	GetByRunID(ctx context.Context, runID uuid.UUID) (*domain.EvaluationReport, error)
	// LatestForProject returns the most recent report for the project
	// excluding the given run, or ErrReportNotFound.
	LatestForProject(ctx context.Context, projectID uuid.UUID, excludeRunID uuid.UUID) (*domain.EvaluationReport, error)
}

type DeploymentRepository interface {
	GetByID(ctx context.Context, tenantID uuid.UUID, id uuid.UUID) (*domain.Deployment, error)
	GetActive(ctx context.Context, tenantID uuid.UUID, projectID uuid.UUID) (*domain.Deployment, error)
	ListByProject(ctx context.Context, tenantID uuid.UUID, projectID uuid.UUID) ([]*domain.Deployment, error)

	// ActivateExclusive inserts the deployment as ACTIVE and retires any
	// currently active deployment for the same project in one atomic step.
	// A reader never observes two actives. Returns ErrDuplicateVersion when
	// the version label is taken for the project.
	ActivateExclusive(ctx context.Context, deployment *domain.Deployment) error
}

// DatasetVersionReader is the view of the upstream dataset builder the
// orchestrator depends on. Read-only by construction.
type DatasetVersionReader interface {
	GetByID(ctx context.Context, tenantID uuid.UUID, id uuid.UUID) (*domain.DatasetVersion, error)
}

type AuditLogRepository interface {
	Append(ctx context.Context, event *domain.AuditEvent) error
	ListByTenant(ctx context.Context, tenantID uuid.UUID, limit int) ([]*domain.AuditEvent, error)
}
