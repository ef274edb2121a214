package handlers

import (
	"net/http"
	"strconv"

	"training-pipeline-service/internal/adapters/primary/http/dto"
	"training-pipeline-service/internal/adapters/primary/http/middleware"
	"training-pipeline-service/internal/core/domain"
	ports "training-pipeline-service/internal/core/ports/output"
	"training-pipeline-service/internal/core/services"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"
	log "github.com/sirupsen/logrus"
)

func (h *Handler) SubmitRun(c *gin.Context) {
	identity, ok := callerWithWrite(c)
	if !ok {
		return
	}

	var req dto.SubmitRunRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}

	run, err := h.orchestrator.Submit(c.Request.Context(), services.SubmitRequest{
		TenantID:            identity.TenantID,
		ProjectID:           req.ProjectID,
		DatasetVersionID:    req.DatasetVersionID,
		RequestedBy:         identity.UserID,
		BaseModelID:         req.BaseModelID,
		Config:              req.Config.ToDomain(),
		DataRightsConfirmed: req.DataRightsConfirmed,
	})
	if err != nil {
		log.WithError(err).Error("submit run failed")
		mapDomainError(c, err)
		return
	}

	c.JSON(http.StatusCreated, dto.ToRunResponse(run))
}

func (h *Handler) ListRuns(c *gin.Context) {
	identity, ok := caller(c)
	if !ok {
		return
	}

	limit, _ := strconv.Atoi(c.DefaultQuery("limit", "20"))
	offset, _ := strconv.Atoi(c.DefaultQuery("offset", "0"))

	filter := ports.RunListFilter{
		TenantID: identity.TenantID,
		State:    c.Query("state"),
		SortBy:   c.Query("sort_by"),
		Order:    c.Query("order"),
		Limit:    limit,
		Offset:   offset,
	}
	if projectParam := c.Query("project_id"); projectParam != "" {
		projectID, err := uuid.Parse(projectParam)
		if err != nil {
			c.JSON(http.StatusBadRequest, gin.H{"error": "invalid project id"})
			return
		}
		filter.ProjectID = projectID
	}

	runs, total, err := h.orchestrator.ListRuns(c.Request.Context(), filter)
	if err != nil {
		log.WithError(err).Error("list runs failed")
		mapDomainError(c, err)
		return
	}

	items := make([]dto.RunResponse, 0, len(runs))
	for _, run := range runs {
		items = append(items, dto.ToRunResponse(run))
	}

	c.JSON(http.StatusOK, dto.ListRunsResponse{
		Items:      items,
		Total:      total,
		PageSize:   filter.Limit,
		NextOffset: offset + len(items),
	})
}

func (h *Handler) GetRun(c *gin.Context) {
	identity, ok := caller(c)
	if !ok {
		return
	}

	id, err := uuid.Parse(c.Param("id"))
	if err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "invalid run id"})
		return
	}

	run, err := h.orchestrator.GetRun(c.Request.Context(), identity.TenantID, id)
	if err != nil {
		mapDomainError(c, err)
		return
	}

	c.JSON(http.StatusOK, dto.ToRunResponse(run))
}

func (h *Handler) ListRunEvents(c *gin.Context) {
	identity, ok := caller(c)
	if !ok {
		return
	}

	id, err := uuid.Parse(c.Param("id"))
	if err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "invalid run id"})
		return
	}

	// Tenant scoping happens through the run lookup; events carry no
	// tenant filter of their own.
	if _, err := h.orchestrator.GetRun(c.Request.Context(), identity.TenantID, id); err != nil {
		mapDomainError(c, err)
		return
	}

	events, err := h.orchestrator.RunEvents(c.Request.Context(), id)
	if err != nil {
		log.WithError(err).Error("list run events failed")
		mapDomainError(c, err)
		return
	}

	items := make([]dto.RunEventResponse, 0, len(events))
	for _, event := range events {
		items = append(items, dto.ToRunEventResponse(event))
	}

	c.JSON(http.StatusOK, gin.H{"items": items, "total": len(items)})
}

func (h *Handler) GetRunReport(c *gin.Context) {
	identity, ok := caller(c)
	if !ok {
		return
	}

	id, err := uuid.Parse(c.Param("id"))
	if err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "invalid run id"})
		return
	}

	if _, err := h.orchestrator.GetRun(c.Request.Context(), identity.TenantID, id); err != nil {
		mapDomainError(c, err)
		return
	}

	report, err := h.evaluations.GetReportForRun(c.Request.Context(), id)
	if err != nil {
		mapDomainError(c, err)
		return
	}

	c.JSON(http.StatusOK, dto.ToEvaluationReportResponse(report))
}

func (h *Handler) CancelRun(c *gin.Context) {
	identity, ok := callerWithWrite(c)
	if !ok {
		return
	}

	id, err := uuid.Parse(c.Param("id"))
	if err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "invalid run id"})
		return
	}

	run, err := h.orchestrator.Cancel(c.Request.Context(), identity.TenantID, id, identity.UserID)
	if err != nil {
		log.WithError(err).Error("cancel run failed")
		mapDomainError(c, err)
		return
	}

	c.JSON(http.StatusOK, dto.ToRunResponse(run))
}

func (h *Handler) RetryRun(c *gin.Context) {
	identity, ok := callerWithWrite(c)
	if !ok {
		return
	}

	id, err := uuid.Parse(c.Param("id"))
	if err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "invalid run id"})
		return
	}

	run, err := h.orchestrator.Retry(c.Request.Context(), identity.TenantID, id, identity.UserID)
	if err != nil {
		log.WithError(err).Error("retry run failed")
		mapDomainError(c, err)
		return
	}

	c.JSON(http.StatusOK, dto.ToRunResponse(run))
}

func (h *Handler) EstimateVRAM(c *gin.Context) {
	if _, ok := caller(c); !ok {
		return
	}

	var req dto.EstimateVRAMRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}

	if _, err := h.estimator.LookupModel(req.BaseModelID); err != nil {
		mapDomainError(c, err)
		return
	}

	estimate := h.estimator.Estimate(req.Config.ToDomain().WithDefaults(), req.BaseModelID)
	c.JSON(http.StatusOK, estimate)
}

func (h *Handler) GetReport(c *gin.Context) {
	identity, ok := caller(c)
	if !ok {
		return
	}

	id, err := uuid.Parse(c.Param("id"))
	if err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "invalid report id"})
		return
	}

	report, err := h.evaluations.GetReport(c.Request.Context(), id)
	if err != nil {
		mapDomainError(c, err)
		return
	}
	if report.TenantID != identity.TenantID {
		mapDomainError(c, domain.ErrReportNotFound)
		return
	}

	c.JSON(http.StatusOK, dto.ToEvaluationReportResponse(report))
}

func caller(c *gin.Context) (domain.Identity, bool) {
	identity, ok := middleware.CallerIdentity(c)
	if !ok {
		c.JSON(http.StatusBadRequest, gin.H{"error": domain.ErrMissingTenantID.Error()})
		return domain.Identity{}, false
	}
	return identity, true
}

func callerWithWrite(c *gin.Context) (domain.Identity, bool) {
	identity, ok := caller(c)
	if !ok {
		return domain.Identity{}, false
	}
	if !identity.Role.CanMutate() {
		c.JSON(http.StatusForbidden, gin.H{"error": domain.ErrForbidden.Error()})
		return domain.Identity{}, false
	}
	return identity, true
}
