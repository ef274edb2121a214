package dto

import (
	"time"

	"github.com/google/uuid"

	"training-pipeline-service/internal/core/domain"
)

type ActivateDeploymentRequest struct {
	ProjectID     uuid.UUID `json:"project_id" binding:"required"`
	TrainingRunID uuid.UUID `json:"training_run_id" binding:"required"`
	Version       string    `json:"version" binding:"required,max=64"`
	EndpointURL   string    `json:"endpoint_url"`
}

type DeploymentResponse struct {
	ID            uuid.UUID `json:"id"`
	TenantID      uuid.UUID `json:"tenant_id"`
	ProjectID     uuid.UUID `json:"project_id"`
	TrainingRunID uuid.UUID `json:"training_run_id"`
	Version       string    `json:"version"`
	Status        string    `json:"status"`
	PackagePath   string    `json:"package_path"`
	EndpointURL   string    `json:"endpoint_url,omitempty"`
	CreatedAt     string    `json:"created_at"`
	RetiredAt     *string   `json:"retired_at,omitempty"`
}

type ListDeploymentsResponse struct {
	Items []DeploymentResponse `json:"items"`
	Total int                  `json:"total"`
}

func ToDeploymentResponse(deployment *domain.Deployment) DeploymentResponse {
	var retiredAt *string
	if deployment.RetiredAt != nil {
		s := deployment.RetiredAt.Format(time.RFC3339)
		retiredAt = &s
	}
	return DeploymentResponse{
		ID:            deployment.ID,
		TenantID:      deployment.TenantID,
		ProjectID:     deployment.ProjectID,
		TrainingRunID: deployment.TrainingRunID,
		Version:       deployment.Version,
		Status:        string(deployment.Status),
		PackagePath:   deployment.PackagePath,
		EndpointURL:   deployment.EndpointURL,
		CreatedAt:     deployment.CreatedAt.Format(time.RFC3339),
		RetiredAt:     retiredAt,
	}
}
