package handlers

import (
	"training-pipeline-service/internal/core/services"

	"github.com/gin-gonic/gin"
)

type Handler struct {
	orchestrator *services.Orchestrator
	estimator    *services.PreflightEstimator
	evaluations  *services.EvaluationService
	deployments  *services.DeploymentService
}

func New(
	orchestrator *services.Orchestrator,
	estimator *services.PreflightEstimator,
	evaluations *services.EvaluationService,
	deployments *services.DeploymentService,
) *Handler {
	return &Handler{
		orchestrator: orchestrator,
		estimator:    estimator,
		evaluations:  evaluations,
		deployments:  deployments,
	}
}

func (h *Handler) RegisterRoutes(r *gin.RouterGroup) {
	// Training Runs
	r.POST("/runs", h.SubmitRun)
	r.GET("/runs", h.ListRuns)
	r.GET("/runs/:id", h.GetRun)
	r.GET("/runs/:id/events", h.ListRunEvents)
	r.GET("/runs/:id/report", h.GetRunReport)
	r.POST("/runs/:id/cancel", h.CancelRun)
	r.POST("/runs/:id/retry", h.RetryRun)

	// Resource Preflight
	r.POST("/preflight/estimate", h.EstimateVRAM)

	// Evaluation Reports
	r.GET("/reports/:id", h.GetReport)

	// Deployments
	r.POST("/deployments", h.ActivateDeployment)
	r.GET("/deployments", h.ListDeployments)
	r.GET("/deployments/active", h.GetActiveDeployment)

	// Inference through the active deployment
	r.POST("/chat", h.Chat)

	// Audit trail (read-only)
	r.GET("/audit", h.ListAuditEvents)
}
