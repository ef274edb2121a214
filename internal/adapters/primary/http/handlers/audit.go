package handlers

import (
	"net/http"
	"strconv"

	"training-pipeline-service/internal/adapters/primary/http/dto"

	"github.com/gin-gonic/gin"
	log "github.com/sirupsen/logrus"
)

func (h *Handler) ListAuditEvents(c *gin.Context) {
	identity, ok := caller(c)
	if !ok {
		return
	}

	limit, _ := strconv.Atoi(c.DefaultQuery("limit", "50"))

	events, err := h.orchestrator.AuditTrail(c.Request.Context(), identity.TenantID, limit)
	if err != nil {
		log.WithError(err).Error("list audit events failed")
		mapDomainError(c, err)
		return
	}

	items := make([]dto.AuditEventResponse, 0, len(events))
	for _, event := range events {
		items = append(items, dto.ToAuditEventResponse(event))
	}

	c.JSON(http.StatusOK, gin.H{"items": items, "total": len(items)})
}
