package services

import (
	"archive/zip"
	"fmt"
	"io"
	"os"
	"path/filepath"

	"training-pipeline-service/internal/core/domain"
)

// Packager builds the deployable bundle for a finished run: adapter artifacts,
// the run manifest, and the serving policy, zipped into a single archive the
// deployment router can reference.
type Packager struct{}

func NewPackager() *Packager {
	return &Packager{}
}

func (p *Packager) Package(targetDir string, run *domain.TrainingRun, report *domain.EvaluationReport) (string, error) {
	bundleRoot := filepath.Join(targetDir, "bundle")
	if err := os.RemoveAll(bundleRoot); err != nil {
		return "", fmt.Errorf("clean bundle dir: %w", err)
	}
	if err := os.MkdirAll(bundleRoot, 0o755); err != nil {
		return "", fmt.Errorf("create bundle dir: %w", err)
	}

	if run.AdapterPath != "" {
		if err := copyTree(run.AdapterPath, filepath.Join(bundleRoot, "adapter")); err != nil {
			return "", fmt.Errorf("copy adapter: %w", err)
		}
	}

	manifest := map[string]any{
		"run_id":             run.ID.String(),
		"dataset_version_id": run.DatasetVersionID.String(),
		"base_model_id":      run.BaseModelID,
		"eval_report_id":     report.ID.String(),
		"go_no_go":           report.GoNoGo,
	}
	if err := writeJSON(filepath.Join(bundleRoot, "run_manifest.json"), manifest); err != nil {
		return "", err
	}

	servingPolicy := map[string]any{
		"api": map[string]string{"path": "/api/v1/inference/chat", "method": "POST"},
		"runtime_policy": map[string]bool{
			"must_ground_facts":          true,
			"refusal_on_missing_context": true,
		},
	}
	if err := writeJSON(filepath.Join(bundleRoot, "inference_config.json"), servingPolicy); err != nil {
		return "", err
	}

	archivePath := filepath.Join(targetDir, "deployment_bundle.zip")
	if err := zipTree(bundleRoot, archivePath); err != nil {
		return "", fmt.Errorf("archive bundle: %w", err)
	}
	return archivePath, nil
}

func copyTree(src, dst string) error {
	return filepath.Walk(src, func(path string, info os.FileInfo, err error) error {
		if err != nil {
			return err
		}
		rel, err := filepath.Rel(src, path)
		if err != nil {
			return err
		}
		target := filepath.Join(dst, rel)
		if info.IsDir() {
			return os.MkdirAll(target, 0o755)
		}
		in, err := os.Open(path)
		if err != nil {
			return err
		}
		defer in.Close()
		if err := os.MkdirAll(filepath.Dir(target), 0o755); err != nil {
			return err
		}
		out, err := os.Create(target)
		if err != nil {
			return err
		}
		defer out.Close()
		_, err = io.Copy(out, in)
		return err
	})
}

func zipTree(root, archivePath string) error {
	f, err := os.Create(archivePath)
	if err != nil {
		return err
	}
	defer f.Close()

	w := zip.NewWriter(f)
	defer w.Close()

	return filepath.Walk(root, func(path string, info os.FileInfo, err error) error {
		if err != nil || info.IsDir() {
			return err
		}
		rel, err := filepath.Rel(root, path)
		if err != nil {
			return err
		}
		entry, err := w.Create(filepath.ToSlash(rel))
		if err != nil {
			return err
		}
		in, err := os.Open(path)
		if err != nil {
			return err
		}
		defer in.Close()
		_, err = io.Copy(entry, in)
		return err
	})
}
