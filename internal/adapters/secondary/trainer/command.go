package trainer

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"os/exec"
	"path/filepath"
	"strings"

	log "github.com/sirupsen/logrus"

	ports "training-pipeline-service/internal/core/ports/output"
)

// CommandBackend runs an external trainer process for real GPU jobs. The
// command template is rendered with the run's paths and executed through the
// shell; artifacts are validated after exit.
type CommandBackend struct {
	template string
}

func NewCommandBackend(template string) (*CommandBackend, error) {
	if template == "" {
		return nil, errors.New("command backend requires TRAINER_COMMAND_TEMPLATE")
	}
	return &CommandBackend{template: template}, nil
}

func (t *CommandBackend) Run(ctx context.Context, spec ports.RunSpec, progress ports.ProgressFunc) (*ports.TrainResult, error) {
	checkpointDir := filepath.Join(spec.OutputDir, "checkpoints", "external")
	adapterDir := filepath.Join(spec.OutputDir, "adapter")
	for _, dir := range []string{checkpointDir, adapterDir} {
		if err := os.MkdirAll(dir, 0o755); err != nil {
			return nil, &ports.TrainerError{Message: fmt.Sprintf("create %s: %v", dir, err)}
		}
	}

	command := strings.NewReplacer(
		"{output_dir}", spec.OutputDir,
		"{adapter_dir}", adapterDir,
		"{checkpoint_dir}", checkpointDir,
		"{train_path}", spec.Dataset.Train,
		"{val_path}", spec.Dataset.Val,
		"{test_path}", spec.Dataset.Test,
		"{base_model_id}", spec.BaseModelID,
	).Replace(t.template)

	configJSON, err := json.Marshal(spec.Config)
	if err != nil {
		return nil, &ports.TrainerError{Message: fmt.Sprintf("marshal config: %v", err)}
	}

	cmd := exec.CommandContext(ctx, "sh", "-c", command)
	cmd.Dir = spec.OutputDir
	cmd.Env = append(os.Environ(),
		"LORA_BASE_MODEL_ID="+spec.BaseModelID,
		"LORA_TRAIN_PATH="+spec.Dataset.Train,
		"LORA_VAL_PATH="+spec.Dataset.Val,
		"LORA_TEST_PATH="+spec.Dataset.Test,
		"LORA_CONFIG_JSON="+string(configJSON),
		"LORA_ADAPTER_DIR="+adapterDir,
		"LORA_CHECKPOINT_DIR="+checkpointDir,
	)

	var stdout, stderr bytes.Buffer
	cmd.Stdout = &stdout
	cmd.Stderr = &stderr

	if err := progress(0); err != nil {
		return nil, &ports.TrainerError{Message: fmt.Sprintf("stopped before launch: %v", err)}
	}

	log.WithField("run_id", spec.RunID).Debug("launching external trainer")
	runErr := cmd.Run()

	// ProcessState stays nil when the command never started.
	exitCode := -1
	if cmd.ProcessState != nil {
		exitCode = cmd.ProcessState.ExitCode()
	}

	result := map[string]any{
		"command":     command,
		"return_code": exitCode,
		"stdout_tail": tail(stdout.String(), 4000),
		"stderr_tail": tail(stderr.String(), 4000),
	}
	if werr := writeJSONFile(filepath.Join(spec.OutputDir, "trainer_command_result.json"), result); werr != nil {
		log.WithError(werr).Warn("write trainer command result")
	}

	if ctx.Err() != nil {
		return nil, ctx.Err()
	}
	if runErr != nil {
		return nil, &ports.TrainerError{
			Message: fmt.Sprintf("external trainer failed with code %d: %s",
				exitCode, tail(stderr.String(), 500)),
		}
	}

	if _, err := os.Stat(filepath.Join(adapterDir, "adapter_model.safetensors")); err != nil {
		return nil, &ports.TrainerError{Message: "external trainer did not produce adapter_model.safetensors"}
	}
	if _, err := os.Stat(filepath.Join(adapterDir, "adapter_config.json")); err != nil {
		adapterConfig := map[string]any{"base_model": spec.BaseModelID, "lora": spec.Config}
		if werr := writeJSONFile(filepath.Join(adapterDir, "adapter_config.json"), adapterConfig); werr != nil {
			return nil, &ports.TrainerError{Message: werr.Error()}
		}
	}

	if err := progress(1); err != nil {
		return nil, &ports.TrainerError{Message: fmt.Sprintf("stopped after completion: %v", err)}
	}

	return &ports.TrainResult{
		CheckpointPath: checkpointDir,
		AdapterPath:    adapterDir,
	}, nil
}

func tail(s string, n int) string {
	if len(s) <= n {
		return s
	}
	return s[len(s)-n:]
}
