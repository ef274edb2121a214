package testutil

import (
	"context"

	"github.com/google/uuid"
	"github.com/stretchr/testify/mock"

	"training-pipeline-service/internal/core/domain"
	ports "training-pipeline-service/internal/core/ports/output"
)

// MockTrainingRunRepo is a mock of TrainingRunRepository.
type MockTrainingRunRepo struct {
	mock.Mock
}

func (m *MockTrainingRunRepo) Create(ctx context.Context, run *domain.TrainingRun) error {
	args := m.Called(ctx, run)
	return args.Error(0)
}

func (m *MockTrainingRunRepo) GetByID(ctx context.Context, tenantID uuid.UUID, id uuid.UUID) (*domain.TrainingRun, error) {
	args := m.Called(ctx, tenantID, id)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*domain.TrainingRun), args.Error(1)
}

func (m *MockTrainingRunRepo) List(ctx context.Context, filter ports.RunListFilter) ([]*domain.TrainingRun, int, error) {
	args := m.Called(ctx, filter)
	if args.Get(0) == nil {
		return nil, args.Int(1), args.Error(2)
	}
	return args.Get(0).([]*domain.TrainingRun), args.Int(1), args.Error(2)
}

func (m *MockTrainingRunRepo) Update(ctx context.Context, run *domain.TrainingRun) error {
	args := m.Called(ctx, run)
	return args.Error(0)
}

func (m *MockTrainingRunRepo) CompareAndSwapState(ctx context.Context, id uuid.UUID, expect, next domain.RunState, message string) (bool, error) {
	args := m.Called(ctx, id, expect, next, message)
	return args.Bool(0), args.Error(1)
}

func (m *MockTrainingRunRepo) ClaimOldestQueued(ctx context.Context) (*domain.TrainingRun, error) {
	args := m.Called(ctx)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*domain.TrainingRun), args.Error(1)
}

// MockRunEventRepo is a mock of RunEventRepository.
type MockRunEventRepo struct {
	mock.Mock
}

func (m *MockRunEventRepo) Append(ctx context.Context, event *domain.RunEvent) error {
	args := m.Called(ctx, event)
	return args.Error(0)
}

func (m *MockRunEventRepo) ListByRun(ctx context.Context, runID uuid.UUID) ([]*domain.RunEvent, error) {
	args := m.Called(ctx, runID)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).([]*domain.RunEvent), args.Error(1)
}

// MockEvaluationReportRepo is a mock of EvaluationReportRepository.
type MockEvaluationReportRepo struct {
	mock.Mock
}

func (m *MockEvaluationReportRepo) Create(ctx context.Context, report *domain.EvaluationReport) error {
	args := m.Called(ctx, report)
	return args.Error(0)
}

func (m *MockEvaluationReportRepo) GetByID(ctx context.Context, id uuid.UUID) (*domain.EvaluationReport, error) {
	args := m.Called(ctx, id)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*domain.EvaluationReport), args.Error(1)
}

func (m *MockEvaluationReportRepo) GetByRunID(ctx context.Context, runID uuid.UUID) (*domain.EvaluationReport, error) {
	args := m.Called(ctx, runID)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*domain.EvaluationReport), args.Error(1)
}

func (m *MockEvaluationReportRepo) LatestForProject(ctx context.Context, projectID uuid.UUID, excludeRunID uuid.UUID) (*domain.EvaluationReport, error) {
	args := m.Called(ctx, projectID, excludeRunID)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*domain.EvaluationReport), args.Error(1)
}

// MockDeploymentRepo is a mock of DeploymentRepository.
type MockDeploymentRepo struct {
	mock.Mock
}

func (m *MockDeploymentRepo) GetByID(ctx context.Context, tenantID uuid.UUID, id uuid.UUID) (*domain.Deployment, error) {
	args := m.Called(ctx, tenantID, id)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*domain.Deployment), args.Error(1)
}

func (m *MockDeploymentRepo) GetActive(ctx context.Context, tenantID uuid.UUID, projectID uuid.UUID) (*domain.Deployment, error) {
	args := m.Called(ctx, tenantID, projectID)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*domain.Deployment), args.Error(1)
}

func (m *MockDeploymentRepo) ListByProject(ctx context.Context, tenantID uuid.UUID, projectID uuid.UUID) ([]*domain.Deployment, error) {
	args := m.Called(ctx, tenantID, projectID)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).([]*domain.Deployment), args.Error(1)
}

func (m *MockDeploymentRepo) ActivateExclusive(ctx context.Context, deployment *domain.Deployment) error {
	args := m.Called(ctx, deployment)
	return args.Error(0)
}

// MockDatasetVersionReader is a mock of DatasetVersionReader.
type MockDatasetVersionReader struct {
	mock.Mock
}

func (m *MockDatasetVersionReader) GetByID(ctx context.Context, tenantID uuid.UUID, id uuid.UUID) (*domain.DatasetVersion, error) {
	args := m.Called(ctx, tenantID, id)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*domain.DatasetVersion), args.Error(1)
}

// MockAuditLogRepo is a mock of AuditLogRepository.
type MockAuditLogRepo struct {
	mock.Mock
}

func (m *MockAuditLogRepo) Append(ctx context.Context, event *domain.AuditEvent) error {
	args := m.Called(ctx, event)
	return args.Error(0)
}

func (m *MockAuditLogRepo) ListByTenant(ctx context.Context, tenantID uuid.UUID, limit int) ([]*domain.AuditEvent, error) {
	args := m.Called(ctx, tenantID, limit)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).([]*domain.AuditEvent), args.Error(1)
}

// MockExecutionBackend is a mock of ExecutionBackend.
type MockExecutionBackend struct {
	mock.Mock
}

func (m *MockExecutionBackend) Run(ctx context.Context, spec ports.RunSpec, progress ports.ProgressFunc) (*ports.TrainResult, error) {
	args := m.Called(ctx, spec, progress)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*ports.TrainResult), args.Error(1)
}

// MockInferenceBackend is a mock of InferenceBackend.
type MockInferenceBackend struct {
	mock.Mock
}

func (m *MockInferenceBackend) Generate(ctx context.Context, system string, prompt string) (string, error) {
	args := m.Called(ctx, system, prompt)
	return args.String(0), args.Error(1)
}

// MockQuotaClient is a mock of QuotaClient.
type MockQuotaClient struct {
	mock.Mock
}

func (m *MockQuotaClient) CheckAndReserve(ctx context.Context, tenantID uuid.UUID, resource string, amount int) (bool, error) {
	args := m.Called(ctx, tenantID, resource, amount)
	return args.Bool(0), args.Error(1)
}
