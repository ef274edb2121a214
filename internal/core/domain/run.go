package domain

import (
	"time"

	"github.com/google/uuid"
)

type RunState string

const (
	RunStateQueued     RunState = "QUEUED"
	RunStatePreflight  RunState = "PREFLIGHT"
	RunStateStaging    RunState = "STAGING"
	RunStateTraining   RunState = "TRAINING"
	RunStateEvaluating RunState = "EVALUATING"
	RunStatePackaging  RunState = "PACKAGING"
	RunStateReady      RunState = "READY"
	RunStateFailed     RunState = "FAILED"
	RunStateCancelled  RunState = "CANCELLED"
)

// allowedTransitions is the full state machine for a training run. FAILED and
// CANCELLED re-queue is the retry path; READY is terminal.
var allowedTransitions = map[RunState][]RunState{
	RunStateQueued:     {RunStatePreflight, RunStateCancelled},
	RunStatePreflight:  {RunStateStaging, RunStateFailed, RunStateCancelled},
	RunStateStaging:    {RunStateTraining, RunStateFailed, RunStateCancelled},
	RunStateTraining:   {RunStateEvaluating, RunStateFailed, RunStateCancelled},
	RunStateEvaluating: {RunStatePackaging, RunStateFailed, RunStateCancelled},
	RunStatePackaging:  {RunStateReady, RunStateFailed},
	RunStateReady:      {},
	RunStateFailed:     {RunStateQueued},
	RunStateCancelled:  {RunStateQueued},
}

// CanTransition reports whether moving from -> to is a legal edge of the run
// state machine.
func CanTransition(from, to RunState) bool {
	for _, next := range allowedTransitions[from] {
		if next == to {
			return true
		}
	}
	return false
}

// IsTerminal reports whether a run in this state has finished processing.
// FAILED and CANCELLED are terminal for a worker even though a retry may
// re-queue the run later.
func (s RunState) IsTerminal() bool {
	return s == RunStateReady || s == RunStateFailed || s == RunStateCancelled
}

// Cancellable states are every state before PACKAGING.
func (s RunState) Cancellable() bool {
	switch s {
	case RunStateQueued, RunStatePreflight, RunStateStaging, RunStateTraining, RunStateEvaluating:
		return true
	}
	return false
}

// TrainingConfig is the LoRA fine-tune configuration submitted with a run.
type TrainingConfig struct {
	LoraRank                  int     `json:"lora_rank"`
	LoraAlpha                 int     `json:"lora_alpha"`
	LoraDropout               float64 `json:"lora_dropout"`
	SequenceLength            int     `json:"sequence_length"`
	PerDeviceBatchSize        int     `json:"per_device_batch_size"`
	GradientAccumulationSteps int     `json:"gradient_accumulation_steps"`
	Precision                 string  `json:"precision"`
	Epochs                    int     `json:"epochs"`
	MaxSteps                  int     `json:"max_steps"`
	Use4Bit                   bool    `json:"use_4bit"`
}

// WithDefaults fills unset fields with the values the trainer assumes.
func (c TrainingConfig) WithDefaults() TrainingConfig {
	if c.LoraRank <= 0 {
		c.LoraRank = 16
	}
	if c.LoraAlpha <= 0 {
		c.LoraAlpha = 32
	}
	if c.SequenceLength <= 0 {
		c.SequenceLength = 1024
	}
	if c.PerDeviceBatchSize <= 0 {
		c.PerDeviceBatchSize = 1
	}
	if c.GradientAccumulationSteps <= 0 {
		c.GradientAccumulationSteps = 1
	}
	if c.Precision == "" {
		c.Precision = "bf16"
	}
	if c.Epochs <= 0 {
		c.Epochs = 1
	}
	return c
}

type TrainingRun struct {
	ID                  uuid.UUID      `json:"id"`
	CreatedAt           time.Time      `json:"created_at"`
	UpdatedAt           time.Time      `json:"updated_at"`
	TenantID            uuid.UUID      `json:"tenant_id"`
	ProjectID           uuid.UUID      `json:"project_id"`
	DatasetVersionID    uuid.UUID      `json:"dataset_version_id"`
	RequestedByUserID   *uuid.UUID     `json:"requested_by_user_id"`
	BaseModelID         string         `json:"base_model_id"`
	Config              TrainingConfig `json:"config"`
	State               RunState       `json:"state"`
	StateMessage        string         `json:"state_message"`
	Progress            float64        `json:"progress"`
	VRAMEstimateGB      float64        `json:"vram_estimate_gb"`
	RetryCount          int            `json:"retry_count"`
	CheckpointPath      string         `json:"checkpoint_path"`
	AdapterPath         string         `json:"adapter_path"`
	PackagePath         string         `json:"package_path"`
	EvalReportID        *uuid.UUID     `json:"eval_report_id"`
	ErrorMessage        string         `json:"error_message"`
	DataRightsConfirmed bool           `json:"data_rights_confirmed"`
}

// BaseModel is an entry in the approved base-model registry.
type BaseModel struct {
	SizeB    float64 `mapstructure:"size_b" json:"size_b"`
	Approved bool    `mapstructure:"approved" json:"approved"`
}
