package trainer

import (
	"context"
	"errors"
	"path/filepath"
	"testing"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"

	"training-pipeline-service/internal/core/domain"
	ports "training-pipeline-service/internal/core/ports/output"
)

func simulatorSpec(t *testing.T) ports.RunSpec {
	t.Helper()
	return ports.RunSpec{
		RunID:       uuid.New(),
		OutputDir:   t.TempDir(),
		BaseModelID: "mistral-7b",
		Config:      domain.TrainingConfig{}.WithDefaults(),
	}
}

func TestSimulator_ProducesArtifacts(t *testing.T) {
	sim := NewSimulator(0)
	spec := simulatorSpec(t)

	var progressed []float64
	result, err := sim.Run(context.Background(), spec, func(p float64) error {
		progressed = append(progressed, p)
		return nil
	})
	assert.NoError(t, err)

	assert.Equal(t, 100, result.Steps)
	assert.Greater(t, result.FinalLoss, 0.0)
	assert.Less(t, result.FinalLoss, 2.5)
	assert.FileExists(t, filepath.Join(result.CheckpointPath, "checkpoint.json"))
	assert.FileExists(t, filepath.Join(result.AdapterPath, "adapter_config.json"))
	assert.FileExists(t, filepath.Join(result.AdapterPath, "adapter_model.safetensors"))

	assert.Len(t, progressed, simulatorSteps)
	for i := 1; i < len(progressed); i++ {
		assert.Greater(t, progressed[i], progressed[i-1])
	}
	assert.Equal(t, 1.0, progressed[len(progressed)-1])
}

func TestSimulator_StopsOnProgressError(t *testing.T) {
	sim := NewSimulator(0)
	spec := simulatorSpec(t)

	calls := 0
	_, err := sim.Run(context.Background(), spec, func(p float64) error {
		calls++
		if calls >= 3 {
			return errors.New("run cancelled")
		}
		return nil
	})

	var terr *ports.TrainerError
	assert.ErrorAs(t, err, &terr)
	assert.False(t, terr.Retryable)
	assert.Contains(t, terr.Message, "run cancelled")
	assert.Equal(t, 3, calls)
}

func TestSimulator_HonorsContextCancellation(t *testing.T) {
	sim := NewSimulator(0)
	spec := simulatorSpec(t)

	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	_, err := sim.Run(ctx, spec, func(p float64) error { return nil })
	assert.ErrorIs(t, err, context.Canceled)
}

func TestNew_SelectsBackend(t *testing.T) {
	cfg := testConfig("simulator")
	backend, err := New(cfg)
	assert.NoError(t, err)
	assert.IsType(t, &Simulator{}, backend)

	cfg = testConfig("command")
	cfg.Trainer.CommandTemplate = "echo training {output_dir}"
	backend, err = New(cfg)
	assert.NoError(t, err)
	assert.IsType(t, &CommandBackend{}, backend)

	cfg = testConfig("warp-drive")
	_, err = New(cfg)
	assert.Error(t, err)
}

func TestNew_CommandRequiresTemplate(t *testing.T) {
	cfg := testConfig("command")
	_, err := New(cfg)
	assert.Error(t, err)
}

func TestNew_KubeJobRequiresEnabledCluster(t *testing.T) {
	cfg := testConfig("kubejob")
	_, err := New(cfg)
	assert.Error(t, err)
}
