package domain

import (
	"time"

	"github.com/google/uuid"
)

type DeploymentStatus string

const (
	DeploymentStatusActive  DeploymentStatus = "ACTIVE"
	DeploymentStatusRetired DeploymentStatus = "RETIRED"
)

// Deployment binds a READY training run to serving traffic for a project.
// At most one ACTIVE deployment exists per project at any time.
type Deployment struct {
	ID            uuid.UUID        `json:"id"`
	TenantID      uuid.UUID        `json:"tenant_id"`
	ProjectID     uuid.UUID        `json:"project_id"`
	TrainingRunID uuid.UUID        `json:"training_run_id"`
	Version       string           `json:"version"`
	Status        DeploymentStatus `json:"status"`
	PackagePath   string           `json:"package_path"`
	EndpointURL   string           `json:"endpoint_url"`
	CreatedAt     time.Time        `json:"created_at"`
	RetiredAt     *time.Time       `json:"retired_at"`
}

// ContextDoc is a grounding source supplied to inference.
type ContextDoc struct {
	ID   string `json:"id"`
	Text string `json:"text"`
}

// Citation is a retrieved snippet returned alongside a generated answer so the
// caller can trace which sources grounded it.
type Citation struct {
	DocumentID string  `json:"document_id"`
	Snippet    string  `json:"snippet"`
	Score      float64 `json:"score"`
}

// ChatResult is the outcome of one inference call through the active deployment.
type ChatResult struct {
	Answer    string     `json:"answer"`
	Citations []Citation `json:"citations"`
	Refused   bool       `json:"refused"`
	LatencyMs int64      `json:"latency_ms"`
}
