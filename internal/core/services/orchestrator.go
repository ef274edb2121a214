package services

import (
	"context"
	"errors"
	"fmt"
	"path/filepath"
	"time"

	"github.com/google/uuid"
	log "github.com/sirupsen/logrus"

	"training-pipeline-service/internal/config"
	"training-pipeline-service/internal/core/domain"
	ports "training-pipeline-service/internal/core/ports/output"
	"training-pipeline-service/internal/metrics"
)

// Orchestrator owns the run state machine: submission, the atomic queue claim,
// driving a claimed run to a terminal state, cancellation, and retry. All
// coordination between workers goes through conditional state writes on the
// run repository; the orchestrator holds no cross-run in-memory state.
type Orchestrator struct {
	runs      ports.TrainingRunRepository
	events    ports.RunEventRepository
	datasets  ports.DatasetVersionReader
	audit     ports.AuditLogRepository
	quota     ports.QuotaClient
	backend   ports.ExecutionBackend
	estimator *PreflightEstimator
	evaluator *EvaluationService
	packager  *Packager
	trainer   config.TrainerConfig

	// sleep is swapped out in tests to avoid real backoff waits.
	sleep func(context.Context, time.Duration) error
}

func NewOrchestrator(
	runs ports.TrainingRunRepository,
	events ports.RunEventRepository,
	datasets ports.DatasetVersionReader,
	audit ports.AuditLogRepository,
	quota ports.QuotaClient,
	backend ports.ExecutionBackend,
	estimator *PreflightEstimator,
	evaluator *EvaluationService,
	packager *Packager,
	trainer config.TrainerConfig,
) *Orchestrator {
	return &Orchestrator{
		runs:      runs,
		events:    events,
		datasets:  datasets,
		audit:     audit,
		quota:     quota,
		backend:   backend,
		estimator: estimator,
		evaluator: evaluator,
		packager:  packager,
		trainer:   trainer,
		sleep:     sleepCtx,
	}
}

type SubmitRequest struct {
	TenantID            uuid.UUID
	ProjectID           uuid.UUID
	DatasetVersionID    uuid.UUID
	RequestedBy         *uuid.UUID
	BaseModelID         string
	Config              domain.TrainingConfig
	DataRightsConfirmed bool
}

// Submit validates the request and creates a run in QUEUED. Validation
// failures are returned synchronously and leave no run behind.
func (s *Orchestrator) Submit(ctx context.Context, req SubmitRequest) (*domain.TrainingRun, error) {
	if !req.DataRightsConfirmed {
		return nil, domain.ErrDataRightsNotConfirmed
	}

	if s.quota != nil {
		ok, err := s.quota.CheckAndReserve(ctx, req.TenantID, "training_runs", 1)
		if err != nil {
			return nil, fmt.Errorf("quota check: %w", err)
		}
		if !ok {
			return nil, domain.ErrQuotaExceeded
		}
	}

	dataset, err := s.datasets.GetByID(ctx, req.TenantID, req.DatasetVersionID)
	if err != nil {
		return nil, err
	}
	if dataset.ProjectID != req.ProjectID {
		return nil, domain.ErrDatasetNotFound
	}
	if !dataset.Status.Usable() {
		return nil, domain.ErrDatasetNotUsable
	}

	if _, err := s.estimator.LookupModel(req.BaseModelID); err != nil {
		return nil, err
	}

	cfg := req.Config.WithDefaults()
	estimate := s.estimator.Estimate(cfg, req.BaseModelID)
	if !estimate.WillFit {
		return nil, domain.ErrConfigExceedsVRAM
	}

	now := time.Now()
	run := &domain.TrainingRun{
		ID:                  uuid.New(),
		CreatedAt:           now,
		UpdatedAt:           now,
		TenantID:            req.TenantID,
		ProjectID:           req.ProjectID,
		DatasetVersionID:    req.DatasetVersionID,
		RequestedByUserID:   req.RequestedBy,
		BaseModelID:         req.BaseModelID,
		Config:              cfg,
		State:               domain.RunStateQueued,
		StateMessage:        "Queued",
		VRAMEstimateGB:      estimate.EstimatedGB,
		DataRightsConfirmed: true,
	}
	if err := s.runs.Create(ctx, run); err != nil {
		return nil, fmt.Errorf("create run: %w", err)
	}

	s.appendEvent(ctx, run, nil, domain.RunStateQueued, "Run queued", nil)
	s.logAudit(ctx, run, req.RequestedBy, "training_run_created", map[string]string{
		"base_model_id":    req.BaseModelID,
		"vram_estimate_gb": fmt.Sprintf("%.2f", estimate.EstimatedGB),
	})

	return run, nil
}

// ClaimNext atomically claims the oldest QUEUED run for the caller, moving it
// to PREFLIGHT. Exactly one concurrent caller wins a given run; the claim is
// held until Advance reaches a terminal state. Returns nil when the queue is
// empty.
func (s *Orchestrator) ClaimNext(ctx context.Context) (*domain.TrainingRun, error) {
	run, err := s.runs.ClaimOldestQueued(ctx)
	if err != nil {
		return nil, fmt.Errorf("claim next run: %w", err)
	}
	if run == nil {
		return nil, nil
	}

	from := domain.RunStateQueued
	s.appendEvent(ctx, run, &from, domain.RunStatePreflight, "Picked by worker", nil)
	metrics.RunTransitions.WithLabelValues(string(domain.RunStatePreflight)).Inc()
	return run, nil
}

// Advance drives one claimed run through the remaining states until READY,
// FAILED, or CANCELLED. The caller must hold the claim (run in PREFLIGHT).
// Lifecycle failures are recorded on the run, never returned; the error return
// covers only misuse and infrastructure faults that prevented any progress.
func (s *Orchestrator) Advance(ctx context.Context, runID uuid.UUID) (run *domain.TrainingRun, err error) {
	run, err = s.runs.GetByID(ctx, uuid.Nil, runID)
	if err != nil {
		return nil, err
	}
	if run.State != domain.RunStatePreflight {
		return nil, domain.ErrRunNotClaimed
	}

	// A run must never be left stuck in a non-terminal state because of an
	// unexpected fault.
	defer func() {
		if r := recover(); r != nil {
			log.WithField("run_id", runID).Errorf("advance panicked: %v", r)
			s.fail(ctx, run, domain.ErrInternal, fmt.Sprintf("internal error: %v", r))
			err = nil
		}
	}()

	dataset, derr := s.datasets.GetByID(ctx, run.TenantID, run.DatasetVersionID)
	if derr != nil {
		s.fail(ctx, run, domain.ErrStagingFailed, "dataset version missing")
		return run, nil
	}

	runDir := filepath.Join(s.trainer.ArtifactRoot, run.TenantID.String(), run.ProjectID.String(), run.ID.String())

	// PREFLIGHT
	estimate := s.estimator.Estimate(run.Config, run.BaseModelID)
	run.VRAMEstimateGB = estimate.EstimatedGB
	run.Progress = 0.1
	if uerr := s.runs.Update(ctx, run); uerr != nil {
		s.fail(ctx, run, domain.ErrInternal, fmt.Sprintf("persist preflight estimate: %v", uerr))
		return run, nil
	}
	if _, merr := s.estimator.LookupModel(run.BaseModelID); merr != nil {
		s.fail(ctx, run, domain.ErrResourceExceeded, merr.Error())
		return run, nil
	}
	if !estimate.WillFit {
		s.fail(ctx, run, domain.ErrResourceExceeded,
			fmt.Sprintf("estimated %.2f GB exceeds safe limit %.2f GB", estimate.EstimatedGB, estimate.SafeLimitGB))
		return run, nil
	}

	if stop := s.transition(ctx, run, domain.RunStateStaging, "Staging artifacts"); stop {
		return run, nil
	}

	// STAGING
	if !dataset.Status.Usable() {
		s.fail(ctx, run, domain.ErrStagingFailed, "dataset status invalid for training")
		return run, nil
	}
	snapshot := map[string]any{
		"dataset_version_id": run.DatasetVersionID.String(),
		"base_model_id":      run.BaseModelID,
		"config":             run.Config,
	}
	if werr := writeJSON(filepath.Join(runDir, "run_config_snapshot.json"), snapshot); werr != nil {
		s.fail(ctx, run, domain.ErrStagingFailed, werr.Error())
		return run, nil
	}
	run.Progress = 0.25
	if uerr := s.runs.Update(ctx, run); uerr != nil {
		s.fail(ctx, run, domain.ErrStagingFailed, uerr.Error())
		return run, nil
	}

	if stop := s.transition(ctx, run, domain.RunStateTraining, "Training adapter"); stop {
		return run, nil
	}

	// TRAINING: progress restarts at 0 and is driven by the backend from here
	// until the phase completes.
	run.Progress = 0
	if uerr := s.runs.Update(ctx, run); uerr != nil {
		s.fail(ctx, run, domain.ErrTrainingFailed, uerr.Error())
		return run, nil
	}

	result, terr := s.runTraining(ctx, run, dataset, runDir)
	if terr != nil {
		if cancelled := s.refreshCancelled(ctx, run); cancelled {
			return run, nil
		}
		reason := domain.ErrTrainingFailed
		if errors.Is(terr, context.DeadlineExceeded) {
			reason = domain.ErrTrainingTimeout
		}
		s.fail(ctx, run, reason, terr.Error())
		return run, nil
	}
	run.CheckpointPath = result.CheckpointPath
	run.AdapterPath = result.AdapterPath
	run.Progress = 1.0
	if uerr := s.runs.Update(ctx, run); uerr != nil {
		s.fail(ctx, run, domain.ErrTrainingFailed, uerr.Error())
		return run, nil
	}

	if stop := s.transition(ctx, run, domain.RunStateEvaluating, "Running evaluation"); stop {
		return run, nil
	}

	// EVALUATING: a NO-GO verdict does not fail the run; it only blocks
	// activation downstream.
	report, eerr := s.evaluator.EvaluateRun(ctx, run, dataset)
	if eerr != nil {
		s.fail(ctx, run, domain.ErrEvaluationFailed, eerr.Error())
		return run, nil
	}
	run.EvalReportID = &report.ID
	if uerr := s.runs.Update(ctx, run); uerr != nil {
		s.fail(ctx, run, domain.ErrEvaluationFailed, uerr.Error())
		return run, nil
	}

	if stop := s.transition(ctx, run, domain.RunStatePackaging, "Building deployment package"); stop {
		return run, nil
	}

	// PACKAGING
	pkg, perr := s.packager.Package(filepath.Join(runDir, "package"), run, report)
	if perr != nil {
		s.fail(ctx, run, domain.ErrPackagingFailed, perr.Error())
		return run, nil
	}
	run.PackagePath = pkg
	if uerr := s.runs.Update(ctx, run); uerr != nil {
		s.fail(ctx, run, domain.ErrPackagingFailed, uerr.Error())
		return run, nil
	}

	if stop := s.transition(ctx, run, domain.RunStateReady, "Run complete"); stop {
		return run, nil
	}

	s.logAudit(ctx, run, run.RequestedByUserID, "training_run_ready", map[string]string{
		"eval_report_id": report.ID.String(),
		"go_no_go":       fmt.Sprintf("%t", report.GoNoGo),
		"package_path":   run.PackagePath,
	})
	return run, nil
}

// runTraining invokes the execution backend with the configured timeout,
// retrying transient failures with backoff. Retries do not reset progress.
func (s *Orchestrator) runTraining(ctx context.Context, run *domain.TrainingRun, dataset *domain.DatasetVersion, runDir string) (*ports.TrainResult, error) {
	spec := ports.RunSpec{
		RunID:       run.ID,
		OutputDir:   runDir,
		BaseModelID: run.BaseModelID,
		Dataset:     dataset.Paths,
		Config:      run.Config,
	}

	progress := func(p float64) error {
		current, err := s.runs.GetByID(ctx, uuid.Nil, run.ID)
		if err == nil && current.State == domain.RunStateCancelled {
			return fmt.Errorf("run cancelled")
		}
		if p > run.Progress {
			run.Progress = p
			if err := s.runs.Update(ctx, run); err != nil {
				log.WithError(err).WithField("run_id", run.ID).Warn("persist progress failed")
			}
		}
		return nil
	}

	started := time.Now()
	defer func() {
		metrics.TrainingDuration.Observe(time.Since(started).Seconds())
	}()

	var lastErr error
	for attempt := 0; ; attempt++ {
		trainCtx := ctx
		var cancel context.CancelFunc
		if s.trainer.Timeout > 0 {
			trainCtx, cancel = context.WithTimeout(ctx, s.trainer.Timeout)
		}
		result, err := s.backend.Run(trainCtx, spec, progress)
		if cancel != nil {
			cancel()
		}
		if err == nil {
			return result, nil
		}
		lastErr = err

		var terr *ports.TrainerError
		if !errors.As(err, &terr) || !terr.Retryable || attempt >= s.trainer.MaxRetries {
			return nil, lastErr
		}

		run.RetryCount++
		if uerr := s.runs.Update(ctx, run); uerr != nil {
			log.WithError(uerr).WithField("run_id", run.ID).Warn("persist retry count failed")
		}
		log.WithFields(log.Fields{
			"run_id":  run.ID,
			"attempt": attempt + 1,
		}).Warn("transient trainer failure, retrying")

		if serr := s.sleep(ctx, s.trainer.RetryBackoff*time.Duration(attempt+1)); serr != nil {
			return nil, lastErr
		}
	}
}

// Cancel marks a run CANCELLED. Allowed from QUEUED through EVALUATING; a run
// in PACKAGING or a terminal state cannot be cancelled. An in-flight backend
// invocation observes the cancellation at its next progress checkpoint.
func (s *Orchestrator) Cancel(ctx context.Context, tenantID, runID uuid.UUID, userID *uuid.UUID) (*domain.TrainingRun, error) {
	run, err := s.runs.GetByID(ctx, tenantID, runID)
	if err != nil {
		return nil, err
	}

	// The state may move under us; retry the conditional write against the
	// observed state a few times before giving up.
	for attempt := 0; attempt < 3; attempt++ {
		if !run.State.Cancellable() {
			return nil, fmt.Errorf("%w: cannot cancel run in state %s", domain.ErrInvalidStateTransition, run.State)
		}
		from := run.State
		ok, err := s.runs.CompareAndSwapState(ctx, run.ID, from, domain.RunStateCancelled, "Run cancelled by user")
		if err != nil {
			return nil, fmt.Errorf("cancel run: %w", err)
		}
		if ok {
			run.State = domain.RunStateCancelled
			run.StateMessage = "Run cancelled by user"
			s.appendEvent(ctx, run, &from, domain.RunStateCancelled, "Run cancelled by user", nil)
			metrics.RunTransitions.WithLabelValues(string(domain.RunStateCancelled)).Inc()
			s.logAudit(ctx, run, userID, "training_run_cancelled", nil)
			return run, nil
		}
		run, err = s.runs.GetByID(ctx, tenantID, runID)
		if err != nil {
			return nil, err
		}
	}
	return nil, fmt.Errorf("%w: cannot cancel run in state %s", domain.ErrInvalidStateTransition, run.State)
}

// Retry re-queues a FAILED or CANCELLED run. Progress and the error message
// reset; the retry counter does not.
func (s *Orchestrator) Retry(ctx context.Context, tenantID, runID uuid.UUID, userID *uuid.UUID) (*domain.TrainingRun, error) {
	run, err := s.runs.GetByID(ctx, tenantID, runID)
	if err != nil {
		return nil, err
	}
	if run.State != domain.RunStateFailed && run.State != domain.RunStateCancelled {
		return nil, domain.ErrRunNotRetryable
	}

	from := run.State
	ok, err := s.runs.CompareAndSwapState(ctx, run.ID, from, domain.RunStateQueued, "Retry queued")
	if err != nil {
		return nil, fmt.Errorf("retry run: %w", err)
	}
	if !ok {
		return nil, domain.ErrRunNotRetryable
	}

	run.State = domain.RunStateQueued
	run.StateMessage = "Retry queued"
	run.Progress = 0
	run.ErrorMessage = ""
	if err := s.runs.Update(ctx, run); err != nil {
		return nil, fmt.Errorf("reset run for retry: %w", err)
	}

	s.appendEvent(ctx, run, &from, domain.RunStateQueued, "Retry queued", nil)
	s.logAudit(ctx, run, userID, "training_run_retried", nil)
	return run, nil
}

func (s *Orchestrator) GetRun(ctx context.Context, tenantID, runID uuid.UUID) (*domain.TrainingRun, error) {
	return s.runs.GetByID(ctx, tenantID, runID)
}

func (s *Orchestrator) ListRuns(ctx context.Context, filter ports.RunListFilter) ([]*domain.TrainingRun, int, error) {
	if filter.Limit <= 0 {
		filter.Limit = 20
	}
	if filter.Limit > 100 {
		filter.Limit = 100
	}
	return s.runs.List(ctx, filter)
}

func (s *Orchestrator) RunEvents(ctx context.Context, runID uuid.UUID) ([]*domain.RunEvent, error) {
	return s.events.ListByRun(ctx, runID)
}

// AuditTrail returns the tenant's most recent audit events, newest first.
func (s *Orchestrator) AuditTrail(ctx context.Context, tenantID uuid.UUID, limit int) ([]*domain.AuditEvent, error) {
	if s.audit == nil {
		return nil, nil
	}
	if limit <= 0 || limit > 200 {
		limit = 50
	}
	return s.audit.ListByTenant(ctx, tenantID, limit)
}

// transition performs one forward step of the state machine through a
// conditional write. Returns true when the caller must stop: either the run
// was cancelled concurrently, or the stored state no longer matches the claim.
func (s *Orchestrator) transition(ctx context.Context, run *domain.TrainingRun, to domain.RunState, message string) (stop bool) {
	from := run.State
	if !domain.CanTransition(from, to) {
		s.fail(ctx, run, domain.ErrInternal, fmt.Sprintf("illegal transition %s -> %s", from, to))
		return true
	}

	ok, err := s.runs.CompareAndSwapState(ctx, run.ID, from, to, message)
	if err != nil {
		s.fail(ctx, run, domain.ErrInternal, fmt.Sprintf("transition write failed: %v", err))
		return true
	}
	if !ok {
		// Lost the conditional write: the only legal concurrent writer is a
		// cancel. Anything else means the claim was violated.
		if s.refreshCancelled(ctx, run) {
			return true
		}
		s.fail(ctx, run, domain.ErrInternal, "state changed outside claim")
		return true
	}

	run.State = to
	run.StateMessage = message
	s.appendEvent(ctx, run, &from, to, message, nil)
	metrics.RunTransitions.WithLabelValues(string(to)).Inc()
	return false
}

// fail moves the run to FAILED from whatever non-terminal state it is in and
// records the reason. Safe to call twice; a terminal run is left untouched.
func (s *Orchestrator) fail(ctx context.Context, run *domain.TrainingRun, reason error, detail string) {
	current, err := s.runs.GetByID(ctx, uuid.Nil, run.ID)
	if err == nil {
		run = current
	}
	if run.State.IsTerminal() {
		return
	}

	from := run.State
	ok, err := s.runs.CompareAndSwapState(ctx, run.ID, from, domain.RunStateFailed, "Run failed")
	if err != nil || !ok {
		log.WithFields(log.Fields{"run_id": run.ID, "from": from}).
			WithError(err).Error("failed to mark run FAILED")
		return
	}

	run.State = domain.RunStateFailed
	run.StateMessage = "Run failed"
	run.ErrorMessage = fmt.Sprintf("%s: %s", reason.Error(), detail)
	if uerr := s.runs.Update(ctx, run); uerr != nil {
		log.WithError(uerr).WithField("run_id", run.ID).Error("persist failure detail")
	}

	s.appendEvent(ctx, run, &from, domain.RunStateFailed, "Run failed", map[string]string{"error": run.ErrorMessage})
	metrics.RunTransitions.WithLabelValues(string(domain.RunStateFailed)).Inc()
	metrics.RunFailures.Inc()
	s.logAudit(ctx, run, run.RequestedByUserID, "training_run_failed", map[string]string{"error": run.ErrorMessage})
}

// refreshCancelled reloads the run and reports whether it was cancelled by a
// concurrent writer, updating the local copy either way.
func (s *Orchestrator) refreshCancelled(ctx context.Context, run *domain.TrainingRun) bool {
	current, err := s.runs.GetByID(ctx, uuid.Nil, run.ID)
	if err != nil {
		return false
	}
	*run = *current
	return current.State == domain.RunStateCancelled
}

func (s *Orchestrator) appendEvent(ctx context.Context, run *domain.TrainingRun, from *domain.RunState, to domain.RunState, message string, details map[string]string) {
	event := &domain.RunEvent{
		ID:        uuid.New(),
		RunID:     run.ID,
		TenantID:  run.TenantID,
		ProjectID: run.ProjectID,
		FromState: from,
		ToState:   to,
		Message:   message,
		Details:   details,
		CreatedAt: time.Now(),
	}
	if err := s.events.Append(ctx, event); err != nil {
		log.WithError(err).WithField("run_id", run.ID).Error("append run event")
	}
}

func (s *Orchestrator) logAudit(ctx context.Context, run *domain.TrainingRun, userID *uuid.UUID, action string, details map[string]string) {
	if s.audit == nil {
		return
	}
	projectID := run.ProjectID
	event := &domain.AuditEvent{
		ID:         uuid.New(),
		TenantID:   run.TenantID,
		UserID:     userID,
		ProjectID:  &projectID,
		Action:     action,
		EntityType: "training_run",
		EntityID:   run.ID.String(),
		Details:    details,
		CreatedAt:  time.Now(),
	}
	if err := s.audit.Append(ctx, event); err != nil {
		log.WithError(err).WithField("run_id", run.ID).Warn("append audit event")
	}
}

func sleepCtx(ctx context.Context, d time.Duration) error {
	if d <= 0 {
		return nil
	}
	timer := time.NewTimer(d)
	defer timer.Stop()
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-timer.C:
		return nil
	}
}
