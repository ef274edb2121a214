package domain

import "errors"

// ============================================================================
// Submission / Validation Errors
// ============================================================================

var (
	ErrDataRightsNotConfirmed = errors.New("client data rights confirmation is required")
	ErrBaseModelNotApproved   = errors.New("base model is not in the approved registry")
	ErrDatasetNotFound        = errors.New("dataset version not found")
	ErrDatasetNotUsable       = errors.New("dataset version is not in a usable state")
	ErrConfigExceedsVRAM      = errors.New("training config exceeds safe VRAM limits")
	ErrQuotaExceeded          = errors.New("monthly training run quota exhausted")
	ErrMissingTenantID        = errors.New("tenant ID is required (X-Tenant-ID header)")
	ErrMissingProjectID       = errors.New("project ID is required")
	ErrForbidden              = errors.New("role is not allowed to perform this action")
)

// ============================================================================
// Run Lifecycle Errors
// ============================================================================

var (
	ErrRunNotFound            = errors.New("training run not found")
	ErrInvalidStateTransition = errors.New("invalid run state transition")
	ErrRunNotClaimed          = errors.New("run is not exclusively held by this worker")
	ErrRunNotRetryable        = errors.New("only failed or cancelled runs can be retried")
)

// Run failure reasons. These fail the run and are recorded in error_message;
// they are never surfaced as errors to the submit caller.
var (
	ErrResourceExceeded = errors.New("vram preflight failed")
	ErrStagingFailed    = errors.New("staging failed")
	ErrTrainingFailed   = errors.New("training backend failed")
	ErrTrainingTimeout  = errors.New("training backend exceeded time ceiling")
	ErrEvaluationFailed = errors.New("evaluation failed")
	ErrPackagingFailed  = errors.New("packaging failed")
	ErrInternal         = errors.New("internal error")
)

// ============================================================================
// Deployment Errors
// ============================================================================

var (
	ErrRunNotReady         = errors.New("training run is not deployable")
	ErrDuplicateVersion    = errors.New("version label already exists for this project")
	ErrNoActiveDeployment  = errors.New("no active deployment for project")
	ErrDeploymentNotFound  = errors.New("deployment not found")
	ErrInvalidVersionLabel = errors.New("version label is required")
)

// ============================================================================
// Evaluation Errors
// ============================================================================

var (
	ErrReportNotFound = errors.New("evaluation report not found")
	ErrNoGoldExamples = errors.New("no evaluation rows available")
)
