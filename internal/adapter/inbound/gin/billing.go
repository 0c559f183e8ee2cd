package gin

import (
	"errors"
	"net/http"

	"github.com/gin-gonic/gin"
	"github.com/steyzi/server/internal/domain/billing"
	"github.com/steyzi/server/internal/shared/metrics"
	"github.com/steyzi/server/internal/shared/response"
)

// billingHandler serves plan catalog and subscription lifecycle endpoints.
type billingHandler struct {
	domain  *billing.Domain
	metrics *metrics.Metrics
}

// NewBillingHandler creates a new billing HTTP handler.
func NewBillingHandler(domain *billing.Domain, m *metrics.Metrics) *billingHandler {
	return &billingHandler{domain: domain, metrics: m}
}

// lifecycleMappings translate domain errors shared by the billing endpoints
// into HTTP responses. Errors not listed here fall through to a 500.
var lifecycleMappings = []response.ErrorMapping{
	{Err: billing.ErrSubscriptionNotFound, Status: http.StatusNotFound, Message: "subscription not found"},
	{Err: billing.ErrPlanNotFound, Status: http.StatusNotFound, Message: "plan not found"},
	{Err: billing.ErrPlanNotActive, Status: http.StatusBadRequest, Message: "plan is not active"},
	{Err: billing.ErrSubscriptionExists, Status: http.StatusConflict, Message: "tenant already has a live subscription"},
	{Err: billing.ErrInvalidTransition, Status: http.StatusConflict},
	{Err: billing.ErrConcurrentModification, Status: http.StatusConflict, Message: "subscription changed concurrently, retry"},
	{Err: billing.ErrInvalidArgument, Status: http.StatusBadRequest},
	{Err: billing.ErrInvalidPlan, Status: http.StatusBadRequest},
}

// --- Plan catalog ---

func (h *billingHandler) ListPlans(c *gin.Context) {
	plans, err := h.domain.ListPlans(c.Request.Context())
	if err != nil {
		response.InternalError(c, "failed to list plans")
		return
	}

	resp := make([]gin.H, len(plans))
	for i, plan := range plans {
		resp[i] = planResponse(plan)
	}

	c.JSON(http.StatusOK, gin.H{"plans": resp})
}

func (h *billingHandler) GetPlan(c *gin.Context) {
	planID := c.Param("id")
	if planID == "" {
		response.BadRequest(c, "plan ID is required")
		return
	}

	plan, err := h.domain.GetPlan(c.Request.Context(), planID)
	if err != nil {
		response.HandleErrorWithDefault(c, err, lifecycleMappings)
		return
	}

	c.JSON(http.StatusOK, planResponse(plan))
}

// PreviewCost quotes a plan at a prospective bed and branch count.
func (h *billingHandler) PreviewCost(c *gin.Context) {
	var req struct {
		PlanID   string `json:"plan_id" binding:"required"`
		Beds     int    `json:"beds"`
		Branches int    `json:"branches"`
	}
	if err := c.ShouldBindJSON(&req); err != nil {
		response.BadRequest(c, err.Error())
		return
	}
	if req.Branches == 0 {
		req.Branches = 1
	}

	breakdown, err := h.domain.PreviewCost(c.Request.Context(), req.PlanID, req.Beds, req.Branches)
	if err != nil {
		response.HandleErrorWithDefault(c, err, lifecycleMappings)
		return
	}

	c.JSON(http.StatusOK, breakdown)
}

// --- Subscription lifecycle ---

func (h *billingHandler) GetSubscription(c *gin.Context) {
	tenantID, ok := GetTenantIDFromContext(c)
	if !ok {
		return
	}

	sub, err := h.domain.GetSubscription(c.Request.Context(), tenantID)
	if err != nil {
		response.HandleErrorWithDefault(c, err, lifecycleMappings)
		return
	}

	c.JSON(http.StatusOK, subscriptionResponse(sub))
}

func (h *billingHandler) SelectPlan(c *gin.Context) {
	tenantID, ok := GetTenantIDFromContext(c)
	if !ok {
		return
	}

	var req struct {
		PlanID string `json:"plan_id" binding:"required"`
	}
	if err := c.ShouldBindJSON(&req); err != nil {
		response.BadRequest(c, err.Error())
		return
	}

	sub, err := h.domain.SelectPlan(c.Request.Context(), tenantID, req.PlanID)
	if err != nil {
		response.HandleErrorWithDefault(c, err, lifecycleMappings)
		return
	}

	h.metrics.RecordTransition(sub.Status.String())
	c.JSON(http.StatusCreated, subscriptionResponse(sub))
}

func (h *billingHandler) CancelSubscription(c *gin.Context) {
	tenantID, ok := GetTenantIDFromContext(c)
	if !ok {
		return
	}

	var req struct {
		Reason string `json:"reason"`
	}
	_ = c.ShouldBindJSON(&req)

	sub, err := h.domain.Cancel(c.Request.Context(), tenantID, req.Reason)
	if err != nil {
		response.HandleErrorWithDefault(c, err, lifecycleMappings)
		return
	}

	h.metrics.RecordTransition(sub.Status.String())
	c.JSON(http.StatusOK, subscriptionResponse(sub))
}

func (h *billingHandler) SwitchPlan(c *gin.Context) {
	tenantID, ok := GetTenantIDFromContext(c)
	if !ok {
		return
	}

	var req struct {
		PlanID     string `json:"plan_id" binding:"required"`
		ForceTopUp bool   `json:"force_top_up"`
	}
	if err := c.ShouldBindJSON(&req); err != nil {
		response.BadRequest(c, err.Error())
		return
	}

	sub, err := h.domain.SwitchPlan(c.Request.Context(), tenantID, req.PlanID, req.ForceTopUp)
	if err != nil {
		if errors.Is(err, billing.ErrCapacityViolation) {
			response.PaymentRequired(c, err.Error(), nil)
			return
		}
		response.HandleErrorWithDefault(c, err, lifecycleMappings)
		return
	}

	h.metrics.RecordTransition(sub.Status.String())
	c.JSON(http.StatusOK, subscriptionResponse(sub))
}

func (h *billingHandler) GetSubscriptionHistory(c *gin.Context) {
	tenantID, ok := GetTenantIDFromContext(c)
	if !ok {
		return
	}

	subs, err := h.domain.History(c.Request.Context(), tenantID)
	if err != nil {
		response.InternalError(c, "failed to list subscription history")
		return
	}

	resp := make([]gin.H, len(subs))
	for i, sub := range subs {
		resp[i] = subscriptionResponse(sub)
	}
	c.JSON(http.StatusOK, gin.H{"subscriptions": resp})
}

// HandleRenewal applies a successful renewal payment reported by the billing
// provider. Idempotent under provider retries.
func (h *billingHandler) HandleRenewal(c *gin.Context) {
	tenantID, ok := GetTenantIDFromContext(c)
	if !ok {
		return
	}

	sub, err := h.domain.HandleRenewal(c.Request.Context(), tenantID)
	if err != nil {
		response.HandleErrorWithDefault(c, err, lifecycleMappings)
		return
	}

	h.metrics.RecordTransition(sub.Status.String())
	c.JSON(http.StatusOK, subscriptionResponse(sub))
}

// --- Response mapping ---

func planResponse(plan *billing.Plan) gin.H {
	return gin.H{
		"id":                      plan.ID,
		"name":                    plan.Name,
		"description":             plan.Description,
		"billing_cycle":           plan.BillingCycle,
		"base_price":              plan.BasePrice,
		"base_bed_count":          plan.BaseBedCount,
		"top_up_price_per_bed":    plan.TopUpPricePerBed,
		"max_beds_allowed":        plan.MaxBedsAllowed,
		"allow_multiple_branches": plan.AllowMultipleBranches,
		"branch_count":            plan.BranchCount,
		"cost_per_branch":         plan.CostPerBranch,
		"annual_discount_percent": plan.AnnualDiscountPercent,
		"trial_period_days":       plan.TrialPeriodDays,
		"features":                plan.Features,
		"display_order":           plan.DisplayOrder,
	}
}

func subscriptionResponse(sub *billing.Subscription) gin.H {
	resp := gin.H{
		"id":             sub.ID,
		"tenant_id":      sub.TenantID,
		"plan_id":        sub.PlanID,
		"status":         sub.Status,
		"start_date":     sub.StartDate,
		"end_date":       sub.EndDate,
		"trial_end_date": sub.TrialEndDate,
		"total_beds":     sub.TotalBeds,
		"total_branches": sub.TotalBranches,
		"beds_used":      sub.Usage.BedsUsed,
		"branches_used":  sub.Usage.BranchesUsed,
		"auto_renew":     sub.AutoRenew,
	}
	if sub.CancelledAt != nil {
		resp["cancelled_at"] = sub.CancelledAt
		resp["cancellation_reason"] = sub.CancellationReason
	}
	if sub.Plan != nil {
		resp["plan"] = planResponse(sub.Plan)
	}
	return resp
}
