package services

import (
	"testing"

	"github.com/stretchr/testify/assert"

	"training-pipeline-service/internal/config"
	"training-pipeline-service/internal/core/domain"
)

func testModels() map[string]domain.BaseModel {
	return map[string]domain.BaseModel{
		"llama-8b":   {SizeB: 8, Approved: true},
		"mistral-7b": {SizeB: 7, Approved: true},
		"qwen-14b":   {SizeB: 14, Approved: false},
	}
}

func newTestEstimator() *PreflightEstimator {
	return NewPreflightEstimator(config.PreflightConfig{
		MaxGPUVRAMGB:     24,
		VRAMSafetyFactor: 0.85,
	}, testModels())
}

func TestEstimate_DefaultConfigFits(t *testing.T) {
	estimator := newTestEstimator()

	estimate := estimator.Estimate(domain.TrainingConfig{}, "mistral-7b")

	assert.True(t, estimate.WillFit)
	assert.Equal(t, "config_safe", estimate.Recommendation)
	assert.InDelta(t, 20.4, estimate.SafeLimitGB, 0.001)
	assert.Greater(t, estimate.EstimatedGB, 0.0)
	assert.LessOrEqual(t, estimate.EstimatedGB, estimate.SafeLimitGB)
}

func TestEstimate_GrowsWithSequenceLength(t *testing.T) {
	estimator := newTestEstimator()

	short := estimator.Estimate(domain.TrainingConfig{SequenceLength: 1024}, "mistral-7b")
	long := estimator.Estimate(domain.TrainingConfig{SequenceLength: 4096}, "mistral-7b")

	assert.Greater(t, long.EstimatedGB, short.EstimatedGB)
	assert.InDelta(t, short.EstimatedGB*4, long.EstimatedGB, 0.05)
}

func TestEstimate_GrowsWithRankAndBatch(t *testing.T) {
	estimator := newTestEstimator()

	base := estimator.Estimate(domain.TrainingConfig{}, "mistral-7b")
	bigRank := estimator.Estimate(domain.TrainingConfig{LoraRank: 64}, "mistral-7b")
	bigBatch := estimator.Estimate(domain.TrainingConfig{PerDeviceBatchSize: 8, GradientAccumulationSteps: 4}, "mistral-7b")

	assert.Greater(t, bigRank.EstimatedGB, base.EstimatedGB)
	assert.Greater(t, bigBatch.EstimatedGB, base.EstimatedGB)
}

func TestEstimate_QuantizationAndPrecisionReduce(t *testing.T) {
	estimator := newTestEstimator()

	fp32 := estimator.Estimate(domain.TrainingConfig{Precision: "fp32"}, "mistral-7b")
	bf16 := estimator.Estimate(domain.TrainingConfig{Precision: "bf16"}, "mistral-7b")
	quant := estimator.Estimate(domain.TrainingConfig{Precision: "bf16", Use4Bit: true}, "mistral-7b")

	assert.Greater(t, fp32.EstimatedGB, bf16.EstimatedGB)
	assert.Greater(t, bf16.EstimatedGB, quant.EstimatedGB)
}

func TestEstimate_ScalesWithModelSize(t *testing.T) {
	estimator := newTestEstimator()

	small := estimator.Estimate(domain.TrainingConfig{}, "mistral-7b")
	large := estimator.Estimate(domain.TrainingConfig{}, "qwen-14b")

	assert.InDelta(t, small.EstimatedGB*2, large.EstimatedGB, 0.05)
}

func TestEstimate_OversizedConfigRejected(t *testing.T) {
	estimator := newTestEstimator()

	estimate := estimator.Estimate(domain.TrainingConfig{
		SequenceLength:            8192,
		LoraRank:                  128,
		PerDeviceBatchSize:        8,
		GradientAccumulationSteps: 8,
		Precision:                 "fp32",
	}, "llama-8b")

	assert.False(t, estimate.WillFit)
	assert.Contains(t, estimate.Recommendation, "4-bit")
}

func TestLookupModel(t *testing.T) {
	estimator := newTestEstimator()

	model, err := estimator.LookupModel("llama-8b")
	assert.NoError(t, err)
	assert.Equal(t, 8.0, model.SizeB)

	_, err = estimator.LookupModel("qwen-14b")
	assert.ErrorIs(t, err, domain.ErrBaseModelNotApproved)

	_, err = estimator.LookupModel("unknown-model")
	assert.ErrorIs(t, err, domain.ErrBaseModelNotApproved)
}
