package ports

import (
	"context"

	"github.com/google/uuid"

	"training-pipeline-service/internal/core/domain"
)

// RunSpec is everything an execution backend needs to train one adapter.
type RunSpec struct {
	RunID       uuid.UUID
	OutputDir   string
	BaseModelID string
	Dataset     domain.DatasetPaths
	Config      domain.TrainingConfig
}

// TrainResult is transient; the orchestrator copies what it needs onto the run.
type TrainResult struct {
	CheckpointPath string
	AdapterPath    string
	FinalLoss      float64
	Steps          int
}

// TrainerError wraps a backend failure. Retryable errors are retried with
// backoff up to the orchestrator's attempt bound; anything else fails the run
// immediately.
type TrainerError struct {
	Message   string
	Retryable bool
}

func (e *TrainerError) Error() string { return e.Message }

// ProgressFunc receives monotonic progress in [0,1]. Returning an error tells
// the backend to stop at the next checkpoint; this is how cooperative
// cancellation reaches a running trainer.
type ProgressFunc func(progress float64) error

// ExecutionBackend performs the actual training. Implementations must respect
// ctx deadlines and call progress at least once per checkpoint.
type ExecutionBackend interface {
	Run(ctx context.Context, spec RunSpec, progress ProgressFunc) (*TrainResult, error)
}

// InferenceBackend generates text for the deployment router.
type InferenceBackend interface {
	Generate(ctx context.Context, system string, prompt string) (string, error)
}

// QuotaClient is the tenant quota service. CheckAndReserve returns false when
// the tenant's monthly allowance for the resource is exhausted.
type QuotaClient interface {
	CheckAndReserve(ctx context.Context, tenantID uuid.UUID, resource string, amount int) (bool, error)
}
