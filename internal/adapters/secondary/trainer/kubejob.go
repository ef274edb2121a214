package trainer

import (
	"context"
	"fmt"
	"os"
	"path/filepath"
	"time"

	metav1 "k8s.io/apimachinery/pkg/apis/meta/v1"
	"k8s.io/apimachinery/pkg/apis/meta/v1/unstructured"
	"k8s.io/apimachinery/pkg/runtime/schema"
	"k8s.io/client-go/dynamic"
	"k8s.io/client-go/rest"
	"k8s.io/client-go/tools/clientcmd"

	"training-pipeline-service/internal/config"
	ports "training-pipeline-service/internal/core/ports/output"
)

var jobGVR = schema.GroupVersionResource{
	Group:    "batch",
	Version:  "v1",
	Resource: "jobs",
}

// KubeJobBackend launches the trainer as a Kubernetes Job and polls it to
// completion. Progress is coarse: the backend only knows queued, running, and
// done, so it reports the phase boundaries and lets checkpoint files carry the
// detail.
type KubeJobBackend struct {
	client    dynamic.Interface
	namespace string
	image     string
	poll      time.Duration
}

func NewKubeJobBackend(cfg *config.KubernetesConfig) (*KubeJobBackend, error) {
	var restCfg *rest.Config
	var err error

	if cfg.InCluster {
		restCfg, err = rest.InClusterConfig()
	} else if cfg.KubeConfigPath != "" {
		restCfg, err = clientcmd.BuildConfigFromFlags("", cfg.KubeConfigPath)
	} else {
		home, _ := os.UserHomeDir()
		kubeconfig := filepath.Join(home, ".kube", "config")
		restCfg, err = clientcmd.BuildConfigFromFlags("", kubeconfig)
	}
	if err != nil {
		return nil, fmt.Errorf("build k8s config: %w", err)
	}

	client, err := dynamic.NewForConfig(restCfg)
	if err != nil {
		return nil, fmt.Errorf("create dynamic client: %w", err)
	}

	namespace := cfg.Namespace
	if namespace == "" {
		namespace = "training"
	}
	if cfg.TrainerImage == "" {
		return nil, fmt.Errorf("kubejob backend requires K8S_TRAINER_IMAGE")
	}

	return &KubeJobBackend{
		client:    client,
		namespace: namespace,
		image:     cfg.TrainerImage,
		poll:      10 * time.Second,
	}, nil
}

func (t *KubeJobBackend) Run(ctx context.Context, spec ports.RunSpec, progress ports.ProgressFunc) (*ports.TrainResult, error) {
	checkpointDir := filepath.Join(spec.OutputDir, "checkpoints", "kubejob")
	adapterDir := filepath.Join(spec.OutputDir, "adapter")
	for _, dir := range []string{checkpointDir, adapterDir} {
		if err := os.MkdirAll(dir, 0o755); err != nil {
			return nil, &ports.TrainerError{Message: fmt.Sprintf("create %s: %v", dir, err)}
		}
	}

	name := fmt.Sprintf("train-%s", spec.RunID.String()[:8])
	obj := t.buildJob(name, spec, adapterDir, checkpointDir)

	if _, err := t.client.Resource(jobGVR).Namespace(t.namespace).Create(ctx, obj, metav1.CreateOptions{}); err != nil {
		return nil, &ports.TrainerError{Message: fmt.Sprintf("create trainer job: %v", err), Retryable: true}
	}
	defer func() {
		policy := metav1.DeletePropagationBackground
		_ = t.client.Resource(jobGVR).Namespace(t.namespace).Delete(context.Background(), name, metav1.DeleteOptions{PropagationPolicy: &policy})
	}()

	if err := progress(0.05); err != nil {
		return nil, &ports.TrainerError{Message: fmt.Sprintf("stopped after submit: %v", err)}
	}

	ticker := time.NewTicker(t.poll)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return nil, ctx.Err()
		case <-ticker.C:
		}

		job, err := t.client.Resource(jobGVR).Namespace(t.namespace).Get(ctx, name, metav1.GetOptions{})
		if err != nil {
			return nil, &ports.TrainerError{Message: fmt.Sprintf("poll trainer job: %v", err), Retryable: true}
		}

		succeeded, _, _ := unstructured.NestedInt64(job.Object, "status", "succeeded")
		failed, _, _ := unstructured.NestedInt64(job.Object, "status", "failed")
		active, _, _ := unstructured.NestedInt64(job.Object, "status", "active")

		switch {
		case succeeded > 0:
			if err := progress(1); err != nil {
				return nil, &ports.TrainerError{Message: fmt.Sprintf("stopped after completion: %v", err)}
			}
			return &ports.TrainResult{
				CheckpointPath: checkpointDir,
				AdapterPath:    adapterDir,
			}, nil
		case failed > 0:
			return nil, &ports.TrainerError{Message: fmt.Sprintf("trainer job %s failed", name)}
		case active > 0:
			if err := progress(0.5); err != nil {
				return nil, &ports.TrainerError{Message: fmt.Sprintf("stopped while running: %v", err)}
			}
		}
	}
}

func (t *KubeJobBackend) buildJob(name string, spec ports.RunSpec, adapterDir, checkpointDir string) *unstructured.Unstructured {
	return &unstructured.Unstructured{
		Object: map[string]any{
			"apiVersion": "batch/v1",
			"kind":       "Job",
			"metadata": map[string]any{
				"name":      name,
				"namespace": t.namespace,
				"labels": map[string]any{
					"app":    "pipeline-trainer",
					"run-id": spec.RunID.String(),
				},
			},
			"spec": map[string]any{
				"backoffLimit": int64(0),
				"template": map[string]any{
					"spec": map[string]any{
						"restartPolicy": "Never",
						"containers": []any{
							map[string]any{
								"name":  "trainer",
								"image": t.image,
								"env": []any{
									map[string]any{"name": "LORA_BASE_MODEL_ID", "value": spec.BaseModelID},
									map[string]any{"name": "LORA_TRAIN_PATH", "value": spec.Dataset.Train},
									map[string]any{"name": "LORA_VAL_PATH", "value": spec.Dataset.Val},
									map[string]any{"name": "LORA_TEST_PATH", "value": spec.Dataset.Test},
									map[string]any{"name": "LORA_ADAPTER_DIR", "value": adapterDir},
									map[string]any{"name": "LORA_CHECKPOINT_DIR", "value": checkpointDir},
								},
							},
						},
					},
				},
			},
		},
	}
}
