package trainer

import (
	"context"
	"os"
	"path/filepath"
	"testing"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"

	"training-pipeline-service/internal/config"
	"training-pipeline-service/internal/core/domain"
	ports "training-pipeline-service/internal/core/ports/output"
)

func testConfig(backend string) *config.Config {
	return &config.Config{
		Trainer: config.TrainerConfig{Backend: backend},
	}
}

func commandSpec(t *testing.T) ports.RunSpec {
	t.Helper()
	return ports.RunSpec{
		RunID:       uuid.New(),
		OutputDir:   t.TempDir(),
		BaseModelID: "mistral-7b",
		Dataset: domain.DatasetPaths{
			Train: "train.jsonl",
			Val:   "val.jsonl",
			Test:  "test.jsonl",
		},
		Config: domain.TrainingConfig{}.WithDefaults(),
	}
}

func TestCommandBackend_RunsRenderedTemplate(t *testing.T) {
	backend, err := NewCommandBackend("touch {adapter_dir}/adapter_model.safetensors")
	assert.NoError(t, err)

	spec := commandSpec(t)
	result, err := backend.Run(context.Background(), spec, func(float64) error { return nil })
	assert.NoError(t, err)
	assert.Equal(t, filepath.Join(spec.OutputDir, "adapter"), result.AdapterPath)
	assert.FileExists(t, filepath.Join(result.AdapterPath, "adapter_model.safetensors"))
	// The backend writes adapter_config.json when the trainer does not.
	assert.FileExists(t, filepath.Join(result.AdapterPath, "adapter_config.json"))
	assert.FileExists(t, filepath.Join(spec.OutputDir, "trainer_command_result.json"))
}

func TestCommandBackend_ExportsRunEnvironment(t *testing.T) {
	backend, err := NewCommandBackend(
		`sh -c 'echo "$LORA_TRAIN_PATH" > {output_dir}/seen.txt' && touch {adapter_dir}/adapter_model.safetensors`)
	assert.NoError(t, err)

	spec := commandSpec(t)
	_, err = backend.Run(context.Background(), spec, func(float64) error { return nil })
	assert.NoError(t, err)

	seen, err := os.ReadFile(filepath.Join(spec.OutputDir, "seen.txt"))
	assert.NoError(t, err)
	assert.Equal(t, "train.jsonl\n", string(seen))
}

func TestCommandBackend_CancelledBeforeStart(t *testing.T) {
	backend, err := NewCommandBackend("sleep 5")
	assert.NoError(t, err)

	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	// The process never starts; the backend must surface the context error
	// rather than touch a nil process state.
	_, err = backend.Run(ctx, commandSpec(t), func(float64) error { return nil })
	assert.ErrorIs(t, err, context.Canceled)
}

func TestCommandBackend_NonZeroExitFails(t *testing.T) {
	backend, err := NewCommandBackend("exit 3")
	assert.NoError(t, err)

	_, err = backend.Run(context.Background(), commandSpec(t), func(float64) error { return nil })
	var terr *ports.TrainerError
	assert.ErrorAs(t, err, &terr)
	assert.Contains(t, terr.Message, "code 3")
}

func TestCommandBackend_MissingAdapterFails(t *testing.T) {
	backend, err := NewCommandBackend("true")
	assert.NoError(t, err)

	_, err = backend.Run(context.Background(), commandSpec(t), func(float64) error { return nil })
	var terr *ports.TrainerError
	assert.ErrorAs(t, err, &terr)
	assert.Contains(t, terr.Message, "adapter_model.safetensors")
}
