package dto

import (
	"time"

	"github.com/google/uuid"

	"training-pipeline-service/internal/core/domain"
)

type TrainingConfigDTO struct {
	LoraRank                  int     `json:"lora_rank"`
	LoraAlpha                 int     `json:"lora_alpha"`
	LoraDropout               float64 `json:"lora_dropout"`
	SequenceLength            int     `json:"sequence_length"`
	PerDeviceBatchSize        int     `json:"per_device_batch_size"`
	GradientAccumulationSteps int     `json:"gradient_accumulation_steps"`
	Precision                 string  `json:"precision"`
	Epochs                    int     `json:"epochs"`
	MaxSteps                  int     `json:"max_steps"`
	// Pointer so an omitted flag is distinguishable from an explicit false;
	// the trainer quantizes by default.
	Use4Bit *bool `json:"use_4bit"`
}

type SubmitRunRequest struct {
	ProjectID           uuid.UUID          `json:"project_id" binding:"required"`
	DatasetVersionID    uuid.UUID          `json:"dataset_version_id" binding:"required"`
	BaseModelID         string             `json:"base_model_id" binding:"required"`
	Config              *TrainingConfigDTO `json:"config"`
	DataRightsConfirmed bool               `json:"data_rights_confirmed"`
}

type RunResponse struct {
	ID                uuid.UUID         `json:"id"`
	CreatedAt         string            `json:"created_at"`
	UpdatedAt         string            `json:"updated_at"`
	TenantID          uuid.UUID         `json:"tenant_id"`
	ProjectID         uuid.UUID         `json:"project_id"`
	DatasetVersionID  uuid.UUID         `json:"dataset_version_id"`
	RequestedByUserID *uuid.UUID        `json:"requested_by_user_id,omitempty"`
	BaseModelID       string            `json:"base_model_id"`
	Config            TrainingConfigDTO `json:"config"`
	State             string            `json:"state"`
	StateMessage      string            `json:"state_message"`
	Progress          float64           `json:"progress"`
	VRAMEstimateGB    float64           `json:"vram_estimate_gb"`
	RetryCount        int               `json:"retry_count"`
	CheckpointPath    string            `json:"checkpoint_path,omitempty"`
	AdapterPath       string            `json:"adapter_path,omitempty"`
	PackagePath       string            `json:"package_path,omitempty"`
	EvalReportID      *uuid.UUID        `json:"eval_report_id,omitempty"`
	ErrorMessage      string            `json:"error_message,omitempty"`
}

type ListRunsResponse struct {
	Items      []RunResponse `json:"items"`
	Total      int           `json:"total"`
	PageSize   int           `json:"page_size"`
	NextOffset int           `json:"next_offset"`
}

type RunEventResponse struct {
	ID        uuid.UUID         `json:"id"`
	RunID     uuid.UUID         `json:"run_id"`
	Seq       int               `json:"seq"`
	FromState *string           `json:"from_state"`
	ToState   string            `json:"to_state"`
	Message   string            `json:"message"`
	Details   map[string]string `json:"details,omitempty"`
	CreatedAt string            `json:"created_at"`
}

type EstimateVRAMRequest struct {
	BaseModelID string             `json:"base_model_id" binding:"required"`
	Config      *TrainingConfigDTO `json:"config"`
}

func (d *TrainingConfigDTO) ToDomain() domain.TrainingConfig {
	if d == nil {
		return domain.TrainingConfig{Use4Bit: true}
	}
	use4bit := true
	if d.Use4Bit != nil {
		use4bit = *d.Use4Bit
	}
	return domain.TrainingConfig{
		LoraRank:                  d.LoraRank,
		LoraAlpha:                 d.LoraAlpha,
		LoraDropout:               d.LoraDropout,
		SequenceLength:            d.SequenceLength,
		PerDeviceBatchSize:        d.PerDeviceBatchSize,
		GradientAccumulationSteps: d.GradientAccumulationSteps,
		Precision:                 d.Precision,
		Epochs:                    d.Epochs,
		MaxSteps:                  d.MaxSteps,
		Use4Bit:                   use4bit,
	}
}

func toConfigDTO(c domain.TrainingConfig) TrainingConfigDTO {
	return TrainingConfigDTO{
		LoraRank:                  c.LoraRank,
		LoraAlpha:                 c.LoraAlpha,
		LoraDropout:               c.LoraDropout,
		SequenceLength:            c.SequenceLength,
		PerDeviceBatchSize:        c.PerDeviceBatchSize,
		GradientAccumulationSteps: c.GradientAccumulationSteps,
		Precision:                 c.Precision,
		Epochs:                    c.Epochs,
		MaxSteps:                  c.MaxSteps,
		Use4Bit:                   &c.Use4Bit,
	}
}

func ToRunResponse(run *domain.TrainingRun) RunResponse {
	return RunResponse{
		ID:                run.ID,
		CreatedAt:         run.CreatedAt.Format(time.RFC3339),
		UpdatedAt:         run.UpdatedAt.Format(time.RFC3339),
		TenantID:          run.TenantID,
		ProjectID:         run.ProjectID,
		DatasetVersionID:  run.DatasetVersionID,
		RequestedByUserID: run.RequestedByUserID,
		BaseModelID:       run.BaseModelID,
		Config:            toConfigDTO(run.Config),
		State:             string(run.State),
		StateMessage:      run.StateMessage,
		Progress:          run.Progress,
		VRAMEstimateGB:    run.VRAMEstimateGB,
		RetryCount:        run.RetryCount,
		CheckpointPath:    run.CheckpointPath,
		AdapterPath:       run.AdapterPath,
		PackagePath:       run.PackagePath,
		EvalReportID:      run.EvalReportID,
		ErrorMessage:      run.ErrorMessage,
	}
}

func ToRunEventResponse(event *domain.RunEvent) RunEventResponse {
	var fromState *string
	if event.FromState != nil {
		s := string(*event.FromState)
		fromState = &s
	}
	return RunEventResponse{
		ID:        event.ID,
		RunID:     event.RunID,
		Seq:       event.Seq,
		FromState: fromState,
		ToState:   string(event.ToState),
		Message:   event.Message,
		Details:   event.Details,
		CreatedAt: event.CreatedAt.Format(time.RFC3339),
	}
}
