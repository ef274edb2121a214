package services

import (
	"fmt"

	"training-pipeline-service/internal/config"
	"training-pipeline-service/internal/core/domain"
)

// VRAMEstimate is the outcome of a resource preflight check.
type VRAMEstimate struct {
	EstimatedGB    float64 `json:"estimated_gb"`
	SafeLimitGB    float64 `json:"safe_limit_gb"`
	WillFit        bool    `json:"will_fit"`
	Recommendation string  `json:"recommendation"`
	BaseModelID    string  `json:"base_model_id"`
}

// PreflightEstimator computes the accelerator memory a run configuration will
// need. It is a pure function of the config and the base-model registry; it
// performs no IO.
type PreflightEstimator struct {
	maxVRAMGB    float64
	safetyFactor float64
	models       map[string]domain.BaseModel
}

func NewPreflightEstimator(cfg config.PreflightConfig, models map[string]domain.BaseModel) *PreflightEstimator {
	return &PreflightEstimator{
		maxVRAMGB:    cfg.MaxGPUVRAMGB,
		safetyFactor: cfg.VRAMSafetyFactor,
		models:       models,
	}
}

// referenceModelSizeB anchors the base cost: 4.2 GB covers a 7B base with the
// adapter and optimizer state at the reference settings.
const (
	referenceBaseGB    = 4.2
	referenceModelSize = 7.0
)

func (e *PreflightEstimator) Estimate(cfg domain.TrainingConfig, baseModelID string) VRAMEstimate {
	cfg = cfg.WithDefaults()

	seqFactor := float64(cfg.SequenceLength) / 1024
	rankFactor := float64(cfg.LoraRank) / 16
	accum := cfg.GradientAccumulationSteps
	if accum < 1 {
		accum = 1
	}
	batchFactor := float64(cfg.PerDeviceBatchSize*accum) / 8

	precisionFactor := 1.0
	if cfg.Precision == "bf16" || cfg.Precision == "fp16" {
		precisionFactor = 0.78
	}
	quantFactor := 1.0
	if cfg.Use4Bit {
		quantFactor = 0.7
	}

	sizeFactor := 1.0
	if m, ok := e.models[baseModelID]; ok && m.SizeB > 0 {
		sizeFactor = m.SizeB / referenceModelSize
	}

	estimate := referenceBaseGB * sizeFactor * seqFactor *
		(0.7 + 0.3*rankFactor) * (0.6 + 0.4*batchFactor) *
		precisionFactor * quantFactor

	safeLimit := e.maxVRAMGB * e.safetyFactor
	willFit := estimate <= safeLimit

	recommendation := "config_safe"
	if !willFit {
		recommendation = "Reduce sequence length, enable 4-bit, lower effective batch, or use cloud burst."
	}

	return VRAMEstimate{
		EstimatedGB:    round2(estimate),
		SafeLimitGB:    round2(safeLimit),
		WillFit:        willFit,
		Recommendation: recommendation,
		BaseModelID:    baseModelID,
	}
}

func round2(v float64) float64 {
	return float64(int(v*100+0.5)) / 100
}

// LookupModel returns the registry entry for a base model, or an error when
// the model is absent or not approved.
func (e *PreflightEstimator) LookupModel(baseModelID string) (domain.BaseModel, error) {
	m, ok := e.models[baseModelID]
	if !ok || !m.Approved {
		return domain.BaseModel{}, fmt.Errorf("%w: %s", domain.ErrBaseModelNotApproved, baseModelID)
	}
	return m, nil
}
