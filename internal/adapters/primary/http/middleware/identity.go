package middleware

import (
	"net/http"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"

	"training-pipeline-service/internal/core/domain"
)

const (
	headerTenantID = "X-Tenant-ID"
	headerUserID   = "X-User-ID"
	headerUserRole = "X-User-Role"

	identityKey = "identity"
)

// Identity extracts the caller context established by the upstream auth layer.
// Tenant is mandatory on every request; user and role are best effort, with
// the role defaulting to viewer so an absent header never grants writes.
func Identity() gin.HandlerFunc {
	return func(c *gin.Context) {
		tenantHeader := c.GetHeader(headerTenantID)
		if tenantHeader == "" {
			c.AbortWithStatusJSON(http.StatusBadRequest, gin.H{"error": domain.ErrMissingTenantID.Error()})
			return
		}
		tenantID, err := uuid.Parse(tenantHeader)
		if err != nil {
			c.AbortWithStatusJSON(http.StatusBadRequest, gin.H{"error": "invalid tenant id"})
			return
		}

		identity := domain.Identity{TenantID: tenantID, Role: domain.RoleViewer}

		if userHeader := c.GetHeader(headerUserID); userHeader != "" {
			userID, err := uuid.Parse(userHeader)
			if err != nil {
				c.AbortWithStatusJSON(http.StatusBadRequest, gin.H{"error": "invalid user id"})
				return
			}
			identity.UserID = &userID
		}

		if roleHeader := c.GetHeader(headerUserRole); roleHeader != "" {
			role, ok := domain.ParseRole(roleHeader)
			if !ok {
				c.AbortWithStatusJSON(http.StatusBadRequest, gin.H{"error": "invalid user role"})
				return
			}
			identity.Role = role
		}

		c.Set(identityKey, identity)
		c.Next()
	}
}

// CallerIdentity returns the identity stored by the Identity middleware.
func CallerIdentity(c *gin.Context) (domain.Identity, bool) {
	value, exists := c.Get(identityKey)
	if !exists {
		return domain.Identity{}, false
	}
	identity, ok := value.(domain.Identity)
	return identity, ok
}
