package domain

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestCanTransition_HappyPath(t *testing.T) {
	path := []RunState{
		RunStateQueued, RunStatePreflight, RunStateStaging, RunStateTraining,
		RunStateEvaluating, RunStatePackaging, RunStateReady,
	}
	for i := 0; i < len(path)-1; i++ {
		assert.True(t, CanTransition(path[i], path[i+1]), "%s -> %s", path[i], path[i+1])
	}
}

func TestCanTransition_NoSkipping(t *testing.T) {
	assert.False(t, CanTransition(RunStateQueued, RunStateTraining))
	assert.False(t, CanTransition(RunStatePreflight, RunStateEvaluating))
	assert.False(t, CanTransition(RunStateStaging, RunStateReady))
}

func TestCanTransition_NoBackwards(t *testing.T) {
	assert.False(t, CanTransition(RunStateTraining, RunStateStaging))
	assert.False(t, CanTransition(RunStateReady, RunStatePackaging))
	assert.False(t, CanTransition(RunStateReady, RunStateQueued))
}

func TestCanTransition_PackagingCannotCancel(t *testing.T) {
	assert.False(t, CanTransition(RunStatePackaging, RunStateCancelled))
	assert.True(t, CanTransition(RunStatePackaging, RunStateFailed))
}

func TestCanTransition_RetryEdges(t *testing.T) {
	assert.True(t, CanTransition(RunStateFailed, RunStateQueued))
	assert.True(t, CanTransition(RunStateCancelled, RunStateQueued))
}

func TestRunState_IsTerminal(t *testing.T) {
	assert.True(t, RunStateReady.IsTerminal())
	assert.True(t, RunStateFailed.IsTerminal())
	assert.True(t, RunStateCancelled.IsTerminal())
	assert.False(t, RunStateTraining.IsTerminal())
	assert.False(t, RunStateQueued.IsTerminal())
}

func TestRunState_Cancellable(t *testing.T) {
	for _, state := range []RunState{RunStateQueued, RunStatePreflight, RunStateStaging, RunStateTraining, RunStateEvaluating} {
		assert.True(t, state.Cancellable(), string(state))
	}
	for _, state := range []RunState{RunStatePackaging, RunStateReady, RunStateFailed, RunStateCancelled} {
		assert.False(t, state.Cancellable(), string(state))
	}
}

func TestTrainingConfig_WithDefaults(t *testing.T) {
	cfg := TrainingConfig{}.WithDefaults()

	assert.Equal(t, 16, cfg.LoraRank)
	assert.Equal(t, 32, cfg.LoraAlpha)
	assert.Equal(t, 1024, cfg.SequenceLength)
	assert.Equal(t, 1, cfg.PerDeviceBatchSize)
	assert.Equal(t, 1, cfg.GradientAccumulationSteps)
	assert.Equal(t, "bf16", cfg.Precision)
	assert.Equal(t, 1, cfg.Epochs)
}

func TestTrainingConfig_WithDefaults_KeepsExplicitValues(t *testing.T) {
	cfg := TrainingConfig{LoraRank: 64, SequenceLength: 4096, Precision: "fp16"}.WithDefaults()

	assert.Equal(t, 64, cfg.LoraRank)
	assert.Equal(t, 4096, cfg.SequenceLength)
	assert.Equal(t, "fp16", cfg.Precision)
}

func TestDatasetStatus_Usable(t *testing.T) {
	assert.True(t, DatasetStatusReady.Usable())
	assert.True(t, DatasetStatusNeedsReview.Usable())
	assert.False(t, DatasetStatusBuilding.Usable())
	assert.False(t, DatasetStatusFailed.Usable())
}

func TestParseRole(t *testing.T) {
	role, ok := ParseRole("manager")
	assert.True(t, ok)
	assert.Equal(t, RoleManager, role)

	_, ok = ParseRole("superuser")
	assert.False(t, ok)
}

func TestRole_CanMutate(t *testing.T) {
	assert.True(t, RoleOwner.CanMutate())
	assert.True(t, RoleManager.CanMutate())
	assert.False(t, RoleReviewer.CanMutate())
	assert.False(t, RoleViewer.CanMutate())
}
