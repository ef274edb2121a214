package handlers

import (
	"errors"
	"net/http"

	"training-pipeline-service/internal/core/domain"

	"github.com/gin-gonic/gin"
)

func mapDomainError(c *gin.Context, err error) {
	switch {
	// Not found errors
	case errors.Is(err, domain.ErrRunNotFound),
		errors.Is(err, domain.ErrDatasetNotFound),
		errors.Is(err, domain.ErrReportNotFound),
		errors.Is(err, domain.ErrDeploymentNotFound),
		errors.Is(err, domain.ErrNoActiveDeployment):
		c.JSON(http.StatusNotFound, gin.H{"error": err.Error()})

	// Conflict errors
	case errors.Is(err, domain.ErrInvalidStateTransition),
		errors.Is(err, domain.ErrRunNotRetryable),
		errors.Is(err, domain.ErrRunNotReady),
		errors.Is(err, domain.ErrDuplicateVersion):
		c.JSON(http.StatusConflict, gin.H{"error": err.Error()})

	// Bad request / validation errors
	case errors.Is(err, domain.ErrDataRightsNotConfirmed),
		errors.Is(err, domain.ErrBaseModelNotApproved),
		errors.Is(err, domain.ErrDatasetNotUsable),
		errors.Is(err, domain.ErrConfigExceedsVRAM),
		errors.Is(err, domain.ErrMissingTenantID),
		errors.Is(err, domain.ErrMissingProjectID),
		errors.Is(err, domain.ErrInvalidVersionLabel),
		errors.Is(err, domain.ErrNoGoldExamples):
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})

	// Authorization errors
	case errors.Is(err, domain.ErrForbidden):
		c.JSON(http.StatusForbidden, gin.H{"error": err.Error()})

	// Quota exhaustion
	case errors.Is(err, domain.ErrQuotaExceeded):
		c.JSON(http.StatusTooManyRequests, gin.H{"error": err.Error()})

	default:
		c.JSON(http.StatusInternalServerError, gin.H{"error": "internal server error"})
	}
}
