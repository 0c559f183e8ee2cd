package gin

import (
	"net/http"

	"github.com/gin-gonic/gin"
	"github.com/steyzi/server/internal/domain/billing"
	"github.com/steyzi/server/internal/shared/metrics"
	"github.com/steyzi/server/internal/shared/response"
)

// quotaHandler serves capacity check, usage and top-up endpoints.
type quotaHandler struct {
	domain  *billing.Domain
	metrics *metrics.Metrics
}

// NewQuotaHandler creates a new quota HTTP handler.
func NewQuotaHandler(domain *billing.Domain, m *metrics.Metrics) *quotaHandler {
	return &quotaHandler{domain: domain, metrics: m}
}

// CheckCapacity decides whether the tenant may add capacity units. A denial
// is a 200 with can_add=false and an overage quote, not an error status: the
// frontend drives its top-up dialog from the body.
func (h *quotaHandler) CheckCapacity(c *gin.Context) {
	tenantID, ok := GetTenantIDFromContext(c)
	if !ok {
		return
	}

	var req struct {
		Kind  string `json:"kind" binding:"required"`
		Delta int64  `json:"delta"`
	}
	if err := c.ShouldBindJSON(&req); err != nil {
		response.BadRequest(c, err.Error())
		return
	}

	result, quote, err := h.domain.CheckCapacity(
		c.Request.Context(), tenantID, billing.CapacityKind(req.Kind), req.Delta, tierFromContext(c))
	if err != nil {
		response.HandleErrorWithDefault(c, err, lifecycleMappings)
		return
	}

	h.metrics.RecordQuotaCheck(result.Kind.String(), string(result.Tier), quotaOutcome(result))

	body := gin.H{"result": result}
	if quote != nil {
		body["quote"] = quote
	}
	c.JSON(http.StatusOK, body)
}

// QuotaStatus reports both capacity counters without requesting anything.
func (h *quotaHandler) QuotaStatus(c *gin.Context) {
	tenantID, ok := GetTenantIDFromContext(c)
	if !ok {
		return
	}

	beds, branches, err := h.domain.QuotaStatus(c.Request.Context(), tenantID)
	if err != nil {
		response.HandleErrorWithDefault(c, err, lifecycleMappings)
		return
	}

	c.JSON(http.StatusOK, gin.H{
		"beds":     beds,
		"branches": branches,
	})
}

// ConfirmTopUp purchases additional entitlement units after payment.
func (h *quotaHandler) ConfirmTopUp(c *gin.Context) {
	tenantID, ok := GetTenantIDFromContext(c)
	if !ok {
		return
	}

	var req struct {
		Kind  string `json:"kind" binding:"required"`
		Units int64  `json:"units" binding:"required"`
	}
	if err := c.ShouldBindJSON(&req); err != nil {
		response.BadRequest(c, err.Error())
		return
	}

	sub, err := h.domain.ConfirmTopUp(c.Request.Context(), tenantID, billing.CapacityKind(req.Kind), req.Units)
	if err != nil {
		// An unmapped error here is almost always the entitlement provider.
		if !response.HandleError(c, err, lifecycleMappings) {
			response.Error(c, http.StatusBadGateway, "failed to confirm top-up")
		}
		return
	}

	h.metrics.RecordTopUp(req.Kind)
	c.JSON(http.StatusOK, subscriptionResponse(sub))
}

// RecordUsageDelta adjusts the tenant's consumption counter. Called by the
// property services after their own writes succeed.
func (h *quotaHandler) RecordUsageDelta(c *gin.Context) {
	tenantID, ok := GetTenantIDFromContext(c)
	if !ok {
		return
	}

	var req struct {
		Kind  string `json:"kind" binding:"required"`
		Delta int64  `json:"delta"`
	}
	if err := c.ShouldBindJSON(&req); err != nil {
		response.BadRequest(c, err.Error())
		return
	}

	err := h.domain.RecordUsageDelta(c.Request.Context(), tenantID, billing.CapacityKind(req.Kind), req.Delta)
	if err != nil {
		response.HandleErrorWithDefault(c, err, lifecycleMappings)
		return
	}

	c.JSON(http.StatusNoContent, nil)
}

// CheckBulkUpload gates a resident bulk-upload batch by tier.
func (h *quotaHandler) CheckBulkUpload(c *gin.Context) {
	tenantID, ok := GetTenantIDFromContext(c)
	if !ok {
		return
	}

	var req struct {
		BatchSize int `json:"batch_size" binding:"required"`
	}
	if err := c.ShouldBindJSON(&req); err != nil {
		response.BadRequest(c, err.Error())
		return
	}

	result, err := h.domain.CheckBulkUpload(c.Request.Context(), tenantID, req.BatchSize)
	if err != nil {
		response.HandleErrorWithDefault(c, err, lifecycleMappings)
		return
	}

	c.JSON(http.StatusOK, result)
}

func quotaOutcome(result *billing.QuotaCheckResult) string {
	switch {
	case result.Unlimited():
		return "unlimited"
	case result.CanAdd:
		return "allowed"
	default:
		return "denied"
	}
}
