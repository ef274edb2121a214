package trainer

import (
	"fmt"

	"training-pipeline-service/internal/config"
	ports "training-pipeline-service/internal/core/ports/output"
)

// New selects the execution backend from configuration.
func New(cfg *config.Config) (ports.ExecutionBackend, error) {
	switch cfg.Trainer.Backend {
	case "simulator", "":
		return NewSimulator(0), nil
	case "command":
		return NewCommandBackend(cfg.Trainer.CommandTemplate)
	case "kubejob":
		if !cfg.Kubernetes.Enabled {
			return nil, fmt.Errorf("kubejob backend requires K8S_ENABLED=true")
		}
		return NewKubeJobBackend(&cfg.Kubernetes)
	default:
		return nil, fmt.Errorf("unknown trainer backend %q", cfg.Trainer.Backend)
	}
}
