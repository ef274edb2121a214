package handlers

import (
	"net/http"

	"training-pipeline-service/internal/adapters/primary/http/dto"
	"training-pipeline-service/internal/core/services"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"
	log "github.com/sirupsen/logrus"
)

func (h *Handler) ActivateDeployment(c *gin.Context) {
	identity, ok := callerWithWrite(c)
	if !ok {
		return
	}

	var req dto.ActivateDeploymentRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}

	deployment, err := h.deployments.Activate(c.Request.Context(), services.ActivateRequest{
		TenantID:      identity.TenantID,
		ProjectID:     req.ProjectID,
		TrainingRunID: req.TrainingRunID,
		Version:       req.Version,
		EndpointURL:   req.EndpointURL,
		UserID:        identity.UserID,
	})
	if err != nil {
		log.WithError(err).Error("activate deployment failed")
		mapDomainError(c, err)
		return
	}

	c.JSON(http.StatusCreated, dto.ToDeploymentResponse(deployment))
}

func (h *Handler) ListDeployments(c *gin.Context) {
	identity, ok := caller(c)
	if !ok {
		return
	}

	projectID, err := uuid.Parse(c.Query("project_id"))
	if err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "invalid project id"})
		return
	}

	deployments, err := h.deployments.ListByProject(c.Request.Context(), identity.TenantID, projectID)
	if err != nil {
		log.WithError(err).Error("list deployments failed")
		mapDomainError(c, err)
		return
	}

	items := make([]dto.DeploymentResponse, 0, len(deployments))
	for _, deployment := range deployments {
		items = append(items, dto.ToDeploymentResponse(deployment))
	}

	c.JSON(http.StatusOK, dto.ListDeploymentsResponse{Items: items, Total: len(items)})
}

func (h *Handler) GetActiveDeployment(c *gin.Context) {
	identity, ok := caller(c)
	if !ok {
		return
	}

	projectID, err := uuid.Parse(c.Query("project_id"))
	if err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "invalid project id"})
		return
	}

	deployment, err := h.deployments.ResolveActive(c.Request.Context(), identity.TenantID, projectID)
	if err != nil {
		mapDomainError(c, err)
		return
	}

	c.JSON(http.StatusOK, dto.ToDeploymentResponse(deployment))
}
