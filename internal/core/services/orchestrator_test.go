package services

import (
	"context"
	"errors"
	"os"
	"path/filepath"
	"sync"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/mock"

	"training-pipeline-service/internal/config"
	"training-pipeline-service/internal/core/domain"
	ports "training-pipeline-service/internal/core/ports/output"
	"training-pipeline-service/internal/testutil"
)

// stubBackend adapts a function to the ExecutionBackend port.
type stubBackend struct {
	run func(ctx context.Context, spec ports.RunSpec, progress ports.ProgressFunc) (*ports.TrainResult, error)
}

func (b *stubBackend) Run(ctx context.Context, spec ports.RunSpec, progress ports.ProgressFunc) (*ports.TrainResult, error) {
	return b.run(ctx, spec, progress)
}

// succeedingBackend writes a minimal adapter directory and reports full
// progress, the way the simulator does.
func succeedingBackend(t *testing.T) *stubBackend {
	return &stubBackend{run: func(ctx context.Context, spec ports.RunSpec, progress ports.ProgressFunc) (*ports.TrainResult, error) {
		adapterDir := filepath.Join(spec.OutputDir, "adapter")
		if err := os.MkdirAll(adapterDir, 0o755); err != nil {
			return nil, err
		}
		if err := os.WriteFile(filepath.Join(adapterDir, "adapter_model.safetensors"), []byte("weights"), 0o644); err != nil {
			return nil, err
		}
		if err := progress(0.5); err != nil {
			return nil, &ports.TrainerError{Message: err.Error()}
		}
		if err := progress(1.0); err != nil {
			return nil, &ports.TrainerError{Message: err.Error()}
		}
		return &ports.TrainResult{
			CheckpointPath: filepath.Join(spec.OutputDir, "checkpoints"),
			AdapterPath:    adapterDir,
			FinalLoss:      0.42,
			Steps:          100,
		}, nil
	}}
}

type fixture struct {
	orch     *Orchestrator
	runs     *testutil.FakeRunRepo
	events   *testutil.FakeEventRepo
	reports  *testutil.FakeReportRepo
	datasets *testutil.FakeDatasetReader
	audit    *testutil.FakeAuditRepo

	tenantID  uuid.UUID
	projectID uuid.UUID
	dataset   *domain.DatasetVersion
}

func newFixture(t *testing.T, backend ports.ExecutionBackend) *fixture {
	t.Helper()

	runs := testutil.NewFakeRunRepo()
	events := testutil.NewFakeEventRepo()
	reports := testutil.NewFakeReportRepo()
	datasets := testutil.NewFakeDatasetReader()
	audit := testutil.NewFakeAuditRepo()

	tenantID := uuid.New()
	projectID := uuid.New()

	dir := t.TempDir()
	goldPath := filepath.Join(dir, "gold.jsonl")
	writeGoldFile(t, goldPath)

	dataset := &domain.DatasetVersion{
		ID:        uuid.New(),
		TenantID:  tenantID,
		ProjectID: projectID,
		Name:      "support-kb-v3",
		Status:    domain.DatasetStatusReady,
		Paths: domain.DatasetPaths{
			Train: filepath.Join(dir, "train.jsonl"),
			Val:   filepath.Join(dir, "val.jsonl"),
			Test:  filepath.Join(dir, "test.jsonl"),
			Gold:  goldPath,
		},
		CreatedAt: time.Now(),
	}
	datasets.Put(dataset)

	estimator := newTestEstimator()
	evaluator := NewEvaluationService(reports, evalConfig())
	trainerCfg := config.TrainerConfig{
		Backend:      "simulator",
		Timeout:      time.Minute,
		MaxRetries:   2,
		RetryBackoff: time.Millisecond,
		ArtifactRoot: filepath.Join(dir, "runs"),
	}

	orch := NewOrchestrator(runs, events, datasets, audit, nil, backend, estimator, evaluator, NewPackager(), trainerCfg)
	orch.sleep = func(context.Context, time.Duration) error { return nil }

	return &fixture{
		orch:      orch,
		runs:      runs,
		events:    events,
		reports:   reports,
		datasets:  datasets,
		audit:     audit,
		tenantID:  tenantID,
		projectID: projectID,
		dataset:   dataset,
	}
}

func (f *fixture) submit(t *testing.T) *domain.TrainingRun {
	t.Helper()
	run, err := f.orch.Submit(context.Background(), SubmitRequest{
		TenantID:            f.tenantID,
		ProjectID:           f.projectID,
		DatasetVersionID:    f.dataset.ID,
		BaseModelID:         "mistral-7b",
		DataRightsConfirmed: true,
	})
	assert.NoError(t, err)
	return run
}

func TestSubmit_CreatesQueuedRun(t *testing.T) {
	f := newFixture(t, succeedingBackend(t))

	run := f.submit(t)

	assert.Equal(t, domain.RunStateQueued, run.State)
	assert.Equal(t, 16, run.Config.LoraRank)
	assert.Greater(t, run.VRAMEstimateGB, 0.0)
	assert.True(t, run.DataRightsConfirmed)

	events, err := f.orch.RunEvents(context.Background(), run.ID)
	assert.NoError(t, err)
	assert.Len(t, events, 1)
	assert.Nil(t, events[0].FromState)
	assert.Equal(t, domain.RunStateQueued, events[0].ToState)

	assert.Contains(t, f.audit.Actions(), "training_run_created")
}

func TestSubmit_RequiresDataRights(t *testing.T) {
	f := newFixture(t, succeedingBackend(t))

	_, err := f.orch.Submit(context.Background(), SubmitRequest{
		TenantID:         f.tenantID,
		ProjectID:        f.projectID,
		DatasetVersionID: f.dataset.ID,
		BaseModelID:      "mistral-7b",
	})
	assert.ErrorIs(t, err, domain.ErrDataRightsNotConfirmed)
}

func TestSubmit_RejectsUnusableDataset(t *testing.T) {
	f := newFixture(t, succeedingBackend(t))
	f.dataset.Status = domain.DatasetStatusBuilding
	f.datasets.Put(f.dataset)

	_, err := f.orch.Submit(context.Background(), SubmitRequest{
		TenantID:            f.tenantID,
		ProjectID:           f.projectID,
		DatasetVersionID:    f.dataset.ID,
		BaseModelID:         "mistral-7b",
		DataRightsConfirmed: true,
	})
	assert.ErrorIs(t, err, domain.ErrDatasetNotUsable)
}

func TestSubmit_RejectsForeignProjectDataset(t *testing.T) {
	f := newFixture(t, succeedingBackend(t))

	_, err := f.orch.Submit(context.Background(), SubmitRequest{
		TenantID:            f.tenantID,
		ProjectID:           uuid.New(),
		DatasetVersionID:    f.dataset.ID,
		BaseModelID:         "mistral-7b",
		DataRightsConfirmed: true,
	})
	assert.ErrorIs(t, err, domain.ErrDatasetNotFound)
}

func TestSubmit_RejectsUnapprovedModel(t *testing.T) {
	f := newFixture(t, succeedingBackend(t))

	_, err := f.orch.Submit(context.Background(), SubmitRequest{
		TenantID:            f.tenantID,
		ProjectID:           f.projectID,
		DatasetVersionID:    f.dataset.ID,
		BaseModelID:         "qwen-14b",
		DataRightsConfirmed: true,
	})
	assert.ErrorIs(t, err, domain.ErrBaseModelNotApproved)
}

func TestSubmit_RejectsOversizedConfig(t *testing.T) {
	f := newFixture(t, succeedingBackend(t))

	_, err := f.orch.Submit(context.Background(), SubmitRequest{
		TenantID:         f.tenantID,
		ProjectID:        f.projectID,
		DatasetVersionID: f.dataset.ID,
		BaseModelID:      "llama-8b",
		Config: domain.TrainingConfig{
			SequenceLength:            8192,
			LoraRank:                  128,
			PerDeviceBatchSize:        8,
			GradientAccumulationSteps: 8,
			Precision:                 "fp32",
		},
		DataRightsConfirmed: true,
	})
	assert.ErrorIs(t, err, domain.ErrConfigExceedsVRAM)
}

func TestSubmit_QuotaExceeded(t *testing.T) {
	f := newFixture(t, succeedingBackend(t))
	quota := new(testutil.MockQuotaClient)
	quota.On("CheckAndReserve", mock.Anything, f.tenantID, "training_runs", 1).Return(false, nil)
	f.orch.quota = quota

	_, err := f.orch.Submit(context.Background(), SubmitRequest{
		TenantID:            f.tenantID,
		ProjectID:           f.projectID,
		DatasetVersionID:    f.dataset.ID,
		BaseModelID:         "mistral-7b",
		DataRightsConfirmed: true,
	})
	assert.ErrorIs(t, err, domain.ErrQuotaExceeded)
}

func TestClaimNext_EmptyQueue(t *testing.T) {
	f := newFixture(t, succeedingBackend(t))

	run, err := f.orch.ClaimNext(context.Background())
	assert.NoError(t, err)
	assert.Nil(t, run)
}

func TestClaimNext_FIFOOrder(t *testing.T) {
	f := newFixture(t, succeedingBackend(t))

	first := f.submit(t)
	time.Sleep(2 * time.Millisecond)
	f.submit(t)

	claimed, err := f.orch.ClaimNext(context.Background())
	assert.NoError(t, err)
	assert.Equal(t, first.ID, claimed.ID)
	assert.Equal(t, domain.RunStatePreflight, claimed.State)
}

func TestClaimNext_ExactlyOneWinner(t *testing.T) {
	f := newFixture(t, succeedingBackend(t))
	run := f.submit(t)

	const claimants = 16
	var wg sync.WaitGroup
	winners := make(chan uuid.UUID, claimants)
	for i := 0; i < claimants; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			claimed, err := f.orch.ClaimNext(context.Background())
			assert.NoError(t, err)
			if claimed != nil {
				winners <- claimed.ID
			}
		}()
	}
	wg.Wait()
	close(winners)

	var won []uuid.UUID
	for id := range winners {
		won = append(won, id)
	}
	assert.Len(t, won, 1)
	assert.Equal(t, run.ID, won[0])
}

func TestAdvance_FullPipelineToReady(t *testing.T) {
	f := newFixture(t, succeedingBackend(t))
	f.submit(t)

	claimed, err := f.orch.ClaimNext(context.Background())
	assert.NoError(t, err)

	done, err := f.orch.Advance(context.Background(), claimed.ID)
	assert.NoError(t, err)
	assert.Equal(t, domain.RunStateReady, done.State)

	final, err := f.runs.GetByID(context.Background(), f.tenantID, claimed.ID)
	assert.NoError(t, err)
	assert.Equal(t, domain.RunStateReady, final.State)
	assert.Equal(t, 1.0, final.Progress)
	assert.NotEmpty(t, final.AdapterPath)
	assert.NotEmpty(t, final.PackagePath)
	assert.FileExists(t, final.PackagePath)
	assert.NotNil(t, final.EvalReportID)

	report, err := f.reports.GetByRunID(context.Background(), claimed.ID)
	assert.NoError(t, err)
	assert.True(t, report.GoNoGo)

	events, err := f.orch.RunEvents(context.Background(), claimed.ID)
	assert.NoError(t, err)
	var states []domain.RunState
	for _, event := range events {
		states = append(states, event.ToState)
	}
	assert.Equal(t, []domain.RunState{
		domain.RunStateQueued, domain.RunStatePreflight, domain.RunStateStaging,
		domain.RunStateTraining, domain.RunStateEvaluating, domain.RunStatePackaging,
		domain.RunStateReady,
	}, states)
}

// faultyUpdateRepo fails a bounded number of Update calls before delegating.
type faultyUpdateRepo struct {
	ports.TrainingRunRepository

	mu       sync.Mutex
	failures int
}

func (r *faultyUpdateRepo) Update(ctx context.Context, run *domain.TrainingRun) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.failures > 0 {
		r.failures--
		return errors.New("transient write fault")
	}
	return r.TrainingRunRepository.Update(ctx, run)
}

func TestAdvance_PreflightPersistFaultFailsRun(t *testing.T) {
	f := newFixture(t, succeedingBackend(t))
	f.submit(t)

	claimed, err := f.orch.ClaimNext(context.Background())
	assert.NoError(t, err)

	// The first write after the claim is the estimate persist.
	f.orch.runs = &faultyUpdateRepo{TrainingRunRepository: f.runs, failures: 1}

	done, err := f.orch.Advance(context.Background(), claimed.ID)
	assert.NoError(t, err)
	assert.Equal(t, domain.RunStateFailed, done.State)

	final, err := f.runs.GetByID(context.Background(), f.tenantID, claimed.ID)
	assert.NoError(t, err)
	assert.True(t, final.State.IsTerminal())
	assert.Equal(t, domain.RunStateFailed, final.State)
	assert.Contains(t, final.ErrorMessage, "persist preflight estimate")
}

func TestAdvance_NoGoVerdictStillReachesReady(t *testing.T) {
	f := newFixture(t, succeedingBackend(t))
	strict := evalConfig()
	strict.ExactMatchThreshold = 1.1
	f.orch.evaluator = NewEvaluationService(f.reports, strict)

	f.submit(t)
	claimed, err := f.orch.ClaimNext(context.Background())
	assert.NoError(t, err)

	done, err := f.orch.Advance(context.Background(), claimed.ID)
	assert.NoError(t, err)
	assert.Equal(t, domain.RunStateReady, done.State)
	assert.NotNil(t, done.EvalReportID)
	assert.NotEmpty(t, done.PackagePath)

	report, err := f.reports.GetByRunID(context.Background(), claimed.ID)
	assert.NoError(t, err)
	assert.False(t, report.GoNoGo)

	// READY is the activation precondition, not the verdict.
	deployments := testutil.NewFakeDeploymentRepo()
	svc := NewDeploymentService(deployments, f.runs, f.audit, nil, inferenceConfig())
	deployment, err := svc.Activate(context.Background(), ActivateRequest{
		TenantID:      f.tenantID,
		ProjectID:     f.projectID,
		TrainingRunID: claimed.ID,
		Version:       "v1",
	})
	assert.NoError(t, err)
	assert.Equal(t, domain.DeploymentStatusActive, deployment.Status)
}

func TestRunEvents_ConcurrentAppendsKeepDenseSequence(t *testing.T) {
	f := newFixture(t, succeedingBackend(t))
	run := f.submit(t)

	const writers = 16
	var wg sync.WaitGroup
	for i := 0; i < writers; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			from := domain.RunStateQueued
			event := &domain.RunEvent{
				ID:        uuid.New(),
				RunID:     run.ID,
				TenantID:  run.TenantID,
				ProjectID: run.ProjectID,
				FromState: &from,
				ToState:   domain.RunStatePreflight,
				Message:   "claimed",
				CreatedAt: time.Now(),
			}
			assert.NoError(t, f.events.Append(context.Background(), event))
		}()
	}
	wg.Wait()

	events, err := f.events.ListByRun(context.Background(), run.ID)
	assert.NoError(t, err)

	seen := map[int]bool{}
	for _, event := range events {
		assert.False(t, seen[event.Seq])
		seen[event.Seq] = true
	}
	for seq := 1; seq <= len(events); seq++ {
		assert.True(t, seen[seq])
	}
}

func TestAdvance_RequiresClaim(t *testing.T) {
	f := newFixture(t, succeedingBackend(t))
	run := f.submit(t)

	_, err := f.orch.Advance(context.Background(), run.ID)
	assert.ErrorIs(t, err, domain.ErrRunNotClaimed)
}

func TestAdvance_NonRetryableFailure(t *testing.T) {
	backend := &stubBackend{run: func(ctx context.Context, spec ports.RunSpec, progress ports.ProgressFunc) (*ports.TrainResult, error) {
		return nil, &ports.TrainerError{Message: "CUDA out of memory"}
	}}
	f := newFixture(t, backend)
	f.submit(t)

	claimed, err := f.orch.ClaimNext(context.Background())
	assert.NoError(t, err)

	done, err := f.orch.Advance(context.Background(), claimed.ID)
	assert.NoError(t, err)
	assert.Equal(t, domain.RunStateFailed, done.State)

	final, _ := f.runs.GetByID(context.Background(), f.tenantID, claimed.ID)
	assert.Contains(t, final.ErrorMessage, "CUDA out of memory")
	assert.Contains(t, f.audit.Actions(), "training_run_failed")
}

func TestAdvance_RetryableFailureRetries(t *testing.T) {
	attempts := 0
	inner := succeedingBackend(t)
	backend := &stubBackend{run: func(ctx context.Context, spec ports.RunSpec, progress ports.ProgressFunc) (*ports.TrainResult, error) {
		attempts++
		if attempts < 3 {
			return nil, &ports.TrainerError{Message: "node preempted", Retryable: true}
		}
		return inner.run(ctx, spec, progress)
	}}
	f := newFixture(t, backend)
	f.submit(t)

	claimed, _ := f.orch.ClaimNext(context.Background())
	done, err := f.orch.Advance(context.Background(), claimed.ID)
	assert.NoError(t, err)
	assert.Equal(t, domain.RunStateReady, done.State)
	assert.Equal(t, 3, attempts)

	final, _ := f.runs.GetByID(context.Background(), f.tenantID, claimed.ID)
	assert.Equal(t, 2, final.RetryCount)
}

func TestAdvance_RetriesExhausted(t *testing.T) {
	backend := &stubBackend{run: func(ctx context.Context, spec ports.RunSpec, progress ports.ProgressFunc) (*ports.TrainResult, error) {
		return nil, &ports.TrainerError{Message: "node preempted", Retryable: true}
	}}
	f := newFixture(t, backend)
	f.submit(t)

	claimed, _ := f.orch.ClaimNext(context.Background())
	done, err := f.orch.Advance(context.Background(), claimed.ID)
	assert.NoError(t, err)
	assert.Equal(t, domain.RunStateFailed, done.State)
}

func TestAdvance_CancelDuringTraining(t *testing.T) {
	f := newFixture(t, nil)
	backend := &stubBackend{run: func(ctx context.Context, spec ports.RunSpec, progress ports.ProgressFunc) (*ports.TrainResult, error) {
		// Cancel arrives mid-training; the next progress checkpoint sees it.
		_, err := f.orch.Cancel(context.Background(), f.tenantID, spec.RunID, nil)
		if err != nil {
			return nil, err
		}
		if err := progress(0.5); err != nil {
			return nil, &ports.TrainerError{Message: err.Error()}
		}
		return nil, &ports.TrainerError{Message: "should have stopped"}
	}}
	f.orch.backend = backend
	f.submit(t)

	claimed, _ := f.orch.ClaimNext(context.Background())
	done, err := f.orch.Advance(context.Background(), claimed.ID)
	assert.NoError(t, err)
	assert.Equal(t, domain.RunStateCancelled, done.State)

	final, _ := f.runs.GetByID(context.Background(), f.tenantID, claimed.ID)
	assert.Equal(t, domain.RunStateCancelled, final.State)
	assert.Empty(t, final.ErrorMessage)
}

func TestAdvance_ProgressResetsAtTrainingEntry(t *testing.T) {
	var observed []float64
	f := newFixture(t, nil)
	backend := &stubBackend{run: func(ctx context.Context, spec ports.RunSpec, progress ports.ProgressFunc) (*ports.TrainResult, error) {
		current, err := f.runs.GetByID(context.Background(), uuid.Nil, spec.RunID)
		if err != nil {
			return nil, err
		}
		observed = append(observed, current.Progress)
		return succeedingBackend(t).run(ctx, spec, progress)
	}}
	f.orch.backend = backend
	f.submit(t)

	claimed, _ := f.orch.ClaimNext(context.Background())
	done, err := f.orch.Advance(context.Background(), claimed.ID)
	assert.NoError(t, err)
	assert.Equal(t, domain.RunStateReady, done.State)

	// Entering TRAINING resets progress to zero before the backend runs.
	assert.Equal(t, []float64{0}, observed)
}

func TestCancel_QueuedRun(t *testing.T) {
	f := newFixture(t, succeedingBackend(t))
	run := f.submit(t)

	cancelled, err := f.orch.Cancel(context.Background(), f.tenantID, run.ID, nil)
	assert.NoError(t, err)
	assert.Equal(t, domain.RunStateCancelled, cancelled.State)
	assert.Contains(t, f.audit.Actions(), "training_run_cancelled")
}

func TestCancel_ReadyRunRejected(t *testing.T) {
	f := newFixture(t, succeedingBackend(t))
	f.submit(t)

	claimed, _ := f.orch.ClaimNext(context.Background())
	done, _ := f.orch.Advance(context.Background(), claimed.ID)
	assert.Equal(t, domain.RunStateReady, done.State)

	_, err := f.orch.Cancel(context.Background(), f.tenantID, claimed.ID, nil)
	assert.ErrorIs(t, err, domain.ErrInvalidStateTransition)
}

func TestRetry_FailedRunRequeues(t *testing.T) {
	backend := &stubBackend{run: func(ctx context.Context, spec ports.RunSpec, progress ports.ProgressFunc) (*ports.TrainResult, error) {
		return nil, &ports.TrainerError{Message: "boom"}
	}}
	f := newFixture(t, backend)
	f.submit(t)

	claimed, _ := f.orch.ClaimNext(context.Background())
	done, _ := f.orch.Advance(context.Background(), claimed.ID)
	assert.Equal(t, domain.RunStateFailed, done.State)

	retried, err := f.orch.Retry(context.Background(), f.tenantID, claimed.ID, nil)
	assert.NoError(t, err)
	assert.Equal(t, domain.RunStateQueued, retried.State)
	assert.Equal(t, 0.0, retried.Progress)
	assert.Empty(t, retried.ErrorMessage)
}

func TestRetry_RunningRunRejected(t *testing.T) {
	f := newFixture(t, succeedingBackend(t))
	run := f.submit(t)

	_, err := f.orch.Retry(context.Background(), f.tenantID, run.ID, nil)
	assert.ErrorIs(t, err, domain.ErrRunNotRetryable)
}

func TestListRuns_CapsLimit(t *testing.T) {
	f := newFixture(t, succeedingBackend(t))
	f.submit(t)

	runs, total, err := f.orch.ListRuns(context.Background(), ports.RunListFilter{
		TenantID: f.tenantID,
		Limit:    10_000,
	})
	assert.NoError(t, err)
	assert.Equal(t, 1, total)
	assert.Len(t, runs, 1)
}
