package gin

import (
	"github.com/gin-gonic/gin"
	"github.com/google/uuid"
	"github.com/steyzi/server/internal/domain/billing"
	"github.com/steyzi/server/internal/shared/middleware"
	"github.com/steyzi/server/internal/shared/response"
)

// GetTenantIDFromContext extracts the tenant ID set by the auth middleware.
// Returns the tenant ID and true if present, or uuid.Nil and false after
// writing a 401 response.
func GetTenantIDFromContext(c *gin.Context) (uuid.UUID, bool) {
	tenantID := middleware.GetTenantID(c)
	if tenantID == uuid.Nil {
		response.Unauthorized(c, "")
		return uuid.Nil, false
	}
	return tenantID, true
}

// tierFromContext returns the tier claim from the token, if any. The quota
// layer derives the tier itself when the claim is absent.
func tierFromContext(c *gin.Context) billing.TenantTier {
	return billing.TenantTier(middleware.GetTier(c))
}
