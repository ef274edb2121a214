package trainer

import (
	"context"
	"encoding/json"
	"fmt"
	"math"
	"os"
	"path/filepath"
	"time"

	ports "training-pipeline-service/internal/core/ports/output"
)

// Simulator is the deterministic execution backend used for CI and local
// smoke tests. It produces the same artifact layout a real trainer would and
// reports monotonic progress through the supplied callback, honoring
// cooperative cancellation between steps.
type Simulator struct {
	// StepDelay paces the progress loop; zero makes the run effectively
	// instant, which is what tests want.
	StepDelay time.Duration
}

func NewSimulator(stepDelay time.Duration) *Simulator {
	return &Simulator{StepDelay: stepDelay}
}

const simulatorSteps = 20

func (t *Simulator) Run(ctx context.Context, spec ports.RunSpec, progress ports.ProgressFunc) (*ports.TrainResult, error) {
	checkpointDir := filepath.Join(spec.OutputDir, "checkpoints", "step-100")
	adapterDir := filepath.Join(spec.OutputDir, "adapter")
	for _, dir := range []string{checkpointDir, adapterDir} {
		if err := os.MkdirAll(dir, 0o755); err != nil {
			return nil, &ports.TrainerError{Message: fmt.Sprintf("create %s: %v", dir, err)}
		}
	}

	loss := 2.5
	for step := 1; step <= simulatorSteps; step++ {
		select {
		case <-ctx.Done():
			return nil, ctx.Err()
		default:
		}
		if t.StepDelay > 0 {
			time.Sleep(t.StepDelay)
		}

		p := float64(step) / simulatorSteps
		loss = 0.4 + 2.1*math.Exp(-3*p)
		if err := progress(p); err != nil {
			return nil, &ports.TrainerError{Message: fmt.Sprintf("stopped at step %d: %v", step, err)}
		}
	}

	checkpoint := map[string]any{
		"base_model_id":   spec.BaseModelID,
		"dataset_paths":   spec.Dataset,
		"config":          spec.Config,
		"checkpoint_step": 100,
		"backend":         "simulator",
		"final_loss":      loss,
	}
	if err := writeJSONFile(filepath.Join(checkpointDir, "checkpoint.json"), checkpoint); err != nil {
		return nil, &ports.TrainerError{Message: err.Error()}
	}
	adapterConfig := map[string]any{
		"base_model": spec.BaseModelID,
		"lora":       spec.Config,
	}
	if err := writeJSONFile(filepath.Join(adapterDir, "adapter_config.json"), adapterConfig); err != nil {
		return nil, &ports.TrainerError{Message: err.Error()}
	}
	if err := os.WriteFile(filepath.Join(adapterDir, "adapter_model.safetensors"), []byte("simulated-adapter-weights"), 0o644); err != nil {
		return nil, &ports.TrainerError{Message: fmt.Sprintf("write adapter weights: %v", err)}
	}

	return &ports.TrainResult{
		CheckpointPath: checkpointDir,
		AdapterPath:    adapterDir,
		FinalLoss:      loss,
		Steps:          100,
	}, nil
}

func writeJSONFile(path string, payload any) error {
	data, err := json.MarshalIndent(payload, "", "  ")
	if err != nil {
		return fmt.Errorf("marshal %s: %w", path, err)
	}
	if err := os.WriteFile(path, data, 0o644); err != nil {
		return fmt.Errorf("write %s: %w", path, err)
	}
	return nil
}
