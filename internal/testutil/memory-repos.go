package testutil

import (
	"context"
	"sort"
	"sync"

	"github.com/google/uuid"

	"training-pipeline-service/internal/core/domain"
	ports "training-pipeline-service/internal/core/ports/output"
)

// In-memory fakes with the same conditional-write semantics as the postgres
// adapters. Used where tests exercise real concurrency (claim races, CAS
// losers) that testify mocks cannot express.

type FakeRunRepo struct {
	mu   sync.Mutex
	runs map[uuid.UUID]*domain.TrainingRun
}

func NewFakeRunRepo() *FakeRunRepo {
	return &FakeRunRepo{runs: make(map[uuid.UUID]*domain.TrainingRun)}
}

func (r *FakeRunRepo) Create(ctx context.Context, run *domain.TrainingRun) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	clone := *run
	r.runs[run.ID] = &clone
	return nil
}

func (r *FakeRunRepo) GetByID(ctx context.Context, tenantID uuid.UUID, id uuid.UUID) (*domain.TrainingRun, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	run, ok := r.runs[id]
	if !ok {
		return nil, domain.ErrRunNotFound
	}
	if tenantID != uuid.Nil && run.TenantID != tenantID {
		return nil, domain.ErrRunNotFound
	}
	clone := *run
	return &clone, nil
}

func (r *FakeRunRepo) List(ctx context.Context, filter ports.RunListFilter) ([]*domain.TrainingRun, int, error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	var matched []*domain.TrainingRun
	for _, run := range r.runs {
		if filter.TenantID != uuid.Nil && run.TenantID != filter.TenantID {
			continue
		}
		if filter.ProjectID != uuid.Nil && run.ProjectID != filter.ProjectID {
			continue
		}
		if filter.State != "" && string(run.State) != filter.State {
			continue
		}
		clone := *run
		matched = append(matched, &clone)
	}
	sort.Slice(matched, func(i, j int) bool {
		return matched[i].CreatedAt.After(matched[j].CreatedAt)
	})

	total := len(matched)
	if filter.Offset > 0 {
		if filter.Offset >= len(matched) {
			matched = nil
		} else {
			matched = matched[filter.Offset:]
		}
	}
	if filter.Limit > 0 && len(matched) > filter.Limit {
		matched = matched[:filter.Limit]
	}
	return matched, total, nil
}

func (r *FakeRunRepo) Update(ctx context.Context, run *domain.TrainingRun) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	current, ok := r.runs[run.ID]
	if !ok {
		return domain.ErrRunNotFound
	}
	clone := *run
	clone.State = current.State
	clone.StateMessage = current.StateMessage
	r.runs[run.ID] = &clone
	return nil
}

func (r *FakeRunRepo) CompareAndSwapState(ctx context.Context, id uuid.UUID, expect, next domain.RunState, message string) (bool, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	run, ok := r.runs[id]
	if !ok || run.State != expect {
		return false, nil
	}
	run.State = next
	run.StateMessage = message
	return true, nil
}

func (r *FakeRunRepo) ClaimOldestQueued(ctx context.Context) (*domain.TrainingRun, error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	var oldest *domain.TrainingRun
	for _, run := range r.runs {
		if run.State != domain.RunStateQueued {
			continue
		}
		if oldest == nil || run.CreatedAt.Before(oldest.CreatedAt) {
			oldest = run
		}
	}
	if oldest == nil {
		return nil, nil
	}

	oldest.State = domain.RunStatePreflight
	oldest.StateMessage = "Picked by worker"
	clone := *oldest
	return &clone, nil
}

type FakeEventRepo struct {
	mu     sync.Mutex
	events map[uuid.UUID][]*domain.RunEvent
}

func NewFakeEventRepo() *FakeEventRepo {
	return &FakeEventRepo{events: make(map[uuid.UUID][]*domain.RunEvent)}
}

func (r *FakeEventRepo) Append(ctx context.Context, event *domain.RunEvent) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	clone := *event
	clone.Seq = len(r.events[event.RunID]) + 1
	event.Seq = clone.Seq
	r.events[event.RunID] = append(r.events[event.RunID], &clone)
	return nil
}

func (r *FakeEventRepo) ListByRun(ctx context.Context, runID uuid.UUID) ([]*domain.RunEvent, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	events := make([]*domain.RunEvent, 0, len(r.events[runID]))
	for _, event := range r.events[runID] {
		clone := *event
		events = append(events, &clone)
	}
	return events, nil
}

type FakeReportRepo struct {
	mu      sync.Mutex
	reports map[uuid.UUID]*domain.EvaluationReport
}

func NewFakeReportRepo() *FakeReportRepo {
	return &FakeReportRepo{reports: make(map[uuid.UUID]*domain.EvaluationReport)}
}

func (r *FakeReportRepo) Create(ctx context.Context, report *domain.EvaluationReport) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	clone := *report
	r.reports[report.ID] = &clone
	return nil
}

func (r *FakeReportRepo) GetByID(ctx context.Context, id uuid.UUID) (*domain.EvaluationReport, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	report, ok := r.reports[id]
	if !ok {
		return nil, domain.ErrReportNotFound
	}
	clone := *report
	return &clone, nil
}

func (r *FakeReportRepo) GetByRunID(ctx context.Context, runID uuid.UUID) (*domain.EvaluationReport, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	for _, report := range r.reports {
		if report.TrainingRunID == runID {
			clone := *report
			return &clone, nil
		}
	}
	return nil, domain.ErrReportNotFound
}

func (r *FakeReportRepo) LatestForProject(ctx context.Context, projectID uuid.UUID, excludeRunID uuid.UUID) (*domain.EvaluationReport, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	var latest *domain.EvaluationReport
	for _, report := range r.reports {
		if report.ProjectID != projectID || report.TrainingRunID == excludeRunID {
			continue
		}
		if latest == nil || report.CreatedAt.After(latest.CreatedAt) {
			latest = report
		}
	}
	if latest == nil {
		return nil, domain.ErrReportNotFound
	}
	clone := *latest
	return &clone, nil
}

type FakeDeploymentRepo struct {
	mu          sync.Mutex
	deployments map[uuid.UUID]*domain.Deployment
}

func NewFakeDeploymentRepo() *FakeDeploymentRepo {
	return &FakeDeploymentRepo{deployments: make(map[uuid.UUID]*domain.Deployment)}
}

func (r *FakeDeploymentRepo) GetByID(ctx context.Context, tenantID uuid.UUID, id uuid.UUID) (*domain.Deployment, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	deployment, ok := r.deployments[id]
	if !ok || deployment.TenantID != tenantID {
		return nil, domain.ErrDeploymentNotFound
	}
	clone := *deployment
	return &clone, nil
}

func (r *FakeDeploymentRepo) GetActive(ctx context.Context, tenantID uuid.UUID, projectID uuid.UUID) (*domain.Deployment, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	for _, deployment := range r.deployments {
		if deployment.TenantID == tenantID && deployment.ProjectID == projectID &&
			deployment.Status == domain.DeploymentStatusActive {
			clone := *deployment
			return &clone, nil
		}
	}
	return nil, domain.ErrNoActiveDeployment
}

func (r *FakeDeploymentRepo) ListByProject(ctx context.Context, tenantID uuid.UUID, projectID uuid.UUID) ([]*domain.Deployment, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	var deployments []*domain.Deployment
	for _, deployment := range r.deployments {
		if deployment.TenantID == tenantID && deployment.ProjectID == projectID {
			clone := *deployment
			deployments = append(deployments, &clone)
		}
	}
	sort.Slice(deployments, func(i, j int) bool {
		return deployments[i].CreatedAt.After(deployments[j].CreatedAt)
	})
	return deployments, nil
}

func (r *FakeDeploymentRepo) ActivateExclusive(ctx context.Context, deployment *domain.Deployment) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	for _, existing := range r.deployments {
		if existing.ProjectID == deployment.ProjectID && existing.Version == deployment.Version {
			return domain.ErrDuplicateVersion
		}
	}
	for _, existing := range r.deployments {
		if existing.TenantID == deployment.TenantID && existing.ProjectID == deployment.ProjectID &&
			existing.Status == domain.DeploymentStatusActive {
			existing.Status = domain.DeploymentStatusRetired
			retiredAt := deployment.CreatedAt
			existing.RetiredAt = &retiredAt
		}
	}

	clone := *deployment
	r.deployments[deployment.ID] = &clone
	return nil
}

type FakeDatasetReader struct {
	mu       sync.Mutex
	versions map[uuid.UUID]*domain.DatasetVersion
}

func NewFakeDatasetReader() *FakeDatasetReader {
	return &FakeDatasetReader{versions: make(map[uuid.UUID]*domain.DatasetVersion)}
}

func (r *FakeDatasetReader) Put(version *domain.DatasetVersion) {
	r.mu.Lock()
	defer r.mu.Unlock()
	clone := *version
	r.versions[version.ID] = &clone
}

func (r *FakeDatasetReader) GetByID(ctx context.Context, tenantID uuid.UUID, id uuid.UUID) (*domain.DatasetVersion, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	version, ok := r.versions[id]
	if !ok || version.TenantID != tenantID {
		return nil, domain.ErrDatasetNotFound
	}
	clone := *version
	return &clone, nil
}

type FakeAuditRepo struct {
	mu     sync.Mutex
	events []*domain.AuditEvent
}

func NewFakeAuditRepo() *FakeAuditRepo {
	return &FakeAuditRepo{}
}

func (r *FakeAuditRepo) Append(ctx context.Context, event *domain.AuditEvent) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	clone := *event
	r.events = append(r.events, &clone)
	return nil
}

func (r *FakeAuditRepo) ListByTenant(ctx context.Context, tenantID uuid.UUID, limit int) ([]*domain.AuditEvent, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	var events []*domain.AuditEvent
	for _, event := range r.events {
		if event.TenantID == tenantID {
			clone := *event
			events = append(events, &clone)
		}
	}
	if limit > 0 && len(events) > limit {
		events = events[:limit]
	}
	return events, nil
}

// Actions returns the recorded action names in append order.
func (r *FakeAuditRepo) Actions() []string {
	r.mu.Lock()
	defer r.mu.Unlock()
	actions := make([]string, 0, len(r.events))
	for _, event := range r.events {
		actions = append(actions, event.Action)
	}
	return actions
}
