package handlers

import (
	"net/http"

	"training-pipeline-service/internal/adapters/primary/http/dto"
	"training-pipeline-service/internal/core/services"

	"github.com/gin-gonic/gin"
	log "github.com/sirupsen/logrus"
)

func (h *Handler) Chat(c *gin.Context) {
	identity, ok := caller(c)
	if !ok {
		return
	}

	var req dto.ChatRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}

	result, err := h.deployments.Infer(c.Request.Context(), services.InferRequest{
		TenantID:    identity.TenantID,
		ProjectID:   req.ProjectID,
		Question:    req.Question,
		ContextDocs: req.DocsToDomain(),
	})
	if err != nil {
		log.WithError(err).Error("chat inference failed")
		mapDomainError(c, err)
		return
	}

	c.JSON(http.StatusOK, dto.ToChatResponse(result))
}
