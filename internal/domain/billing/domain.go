package billing

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"
)

// Domain implements billing business logic over the outbound ports.
// Pricing and quota math stays in the pure functions of this package; Domain
// adds the plumbing: loading records, refreshing usage counters, submitting
// entitlement changes and persisting transitions.
type Domain struct {
	repo        Repository
	ledger      UsageLedger
	entitlement EntitlementAPI
	logger      *zap.Logger
}

// NewBillingDomain creates a new billing domain service.
func NewBillingDomain(repo Repository, ledger UsageLedger, entitlement EntitlementAPI, logger *zap.Logger) *Domain {
	return &Domain{
		repo:        repo,
		ledger:      ledger,
		entitlement: entitlement,
		logger:      logger,
	}
}

// --- Plan Operations ---

func (d *Domain) ListPlans(ctx context.Context) ([]*Plan, error) {
	return d.repo.ListActivePlans(ctx)
}

func (d *Domain) GetPlan(ctx context.Context, id string) (*Plan, error) {
	if id == "" {
		return nil, fmt.Errorf("%w: plan id is required", ErrInvalidArgument)
	}
	return d.repo.GetPlan(ctx, id)
}

// PreviewCost quotes a plan at a prospective bed and branch count. Drives the
// upgrade/top-up choice in the UI before anything is committed.
func (d *Domain) PreviewCost(ctx context.Context, planID string, beds, branches int) (*CostBreakdown, error) {
	plan, err := d.GetPlan(ctx, planID)
	if err != nil {
		return nil, err
	}
	return CalculateCost(plan, beds, branches)
}

// --- Subscription Operations ---

func (d *Domain) GetSubscription(ctx context.Context, tenantID uuid.UUID) (*Subscription, error) {
	return d.repo.GetCurrentSubscription(ctx, tenantID)
}

// SelectPlan creates the tenant's subscription on first plan selection, or a
// fresh record after cancellation. Resubscribing to the same plan on an
// expired record revives that record instead.
func (d *Domain) SelectPlan(ctx context.Context, tenantID uuid.UUID, planID string) (*Subscription, error) {
	plan, err := d.GetPlan(ctx, planID)
	if err != nil {
		return nil, err
	}
	if !plan.Active {
		return nil, ErrPlanNotActive
	}

	now := time.Now().UTC()

	existing, err := d.repo.GetCurrentSubscription(ctx, tenantID)
	if err != nil && !errors.Is(err, ErrSubscriptionNotFound) {
		return nil, err
	}
	if existing != nil {
		switch {
		case existing.IsActive():
			return nil, ErrSubscriptionExists
		case existing.Status == StatusExpired && existing.PlanID == planID:
			expected := existing.Version
			if err := existing.Activate(now); err != nil {
				return nil, err
			}
			if err := d.repo.UpdateSubscription(ctx, existing, expected); err != nil {
				return nil, err
			}
			d.logger.Info("subscription resubscribed",
				zap.String("tenant_id", tenantID.String()),
				zap.String("plan_id", planID),
			)
			return existing, nil
		}
		// Cancelled or expired-with-different-plan records stay as history.
	}

	sub, err := NewSubscription(tenantID, plan, now)
	if err != nil {
		return nil, err
	}
	if err := d.repo.CreateSubscription(ctx, sub); err != nil {
		return nil, fmt.Errorf("create subscription: %w", err)
	}

	d.logger.Info("subscription created",
		zap.String("tenant_id", tenantID.String()),
		zap.String("plan_id", planID),
		zap.String("status", sub.Status.String()),
	)
	return sub, nil
}

// History returns every subscription record for a tenant, newest first,
// including superseded and terminal records.
func (d *Domain) History(ctx context.Context, tenantID uuid.UUID) ([]*Subscription, error) {
	return d.repo.ListSubscriptionHistory(ctx, tenantID)
}

// Cancel cancels the tenant's subscription and submits the cancellation to
// the billing provider. Cancelling twice is a no-op returning the
// already-cancelled record.
func (d *Domain) Cancel(ctx context.Context, tenantID uuid.UUID, reason string) (*Subscription, error) {
	sub, err := d.repo.GetCurrentSubscription(ctx, tenantID)
	if errors.Is(err, ErrSubscriptionNotFound) {
		// A cancelled record drops out of the live lookup. Fall back to the
		// newest historical record so a retried cancel stays a no-op.
		history, herr := d.repo.ListSubscriptionHistory(ctx, tenantID)
		if herr != nil {
			return nil, herr
		}
		if len(history) > 0 && history[0].IsCancelled() {
			return history[0], nil
		}
		return nil, err
	}
	if err != nil {
		return nil, err
	}

	expected := sub.Version
	if err := sub.Cancel(time.Now().UTC(), reason); err != nil {
		return nil, err
	}

	// The provider's cancellation endpoint accepts duplicate submissions for
	// a tenant, so notifying before the version check is safe: a conflicting
	// write below surfaces ErrConcurrentModification and the caller's retry
	// submits again.
	if err := d.entitlement.SubmitCancellation(ctx, tenantID, reason); err != nil {
		return nil, fmt.Errorf("submit cancellation: %w", err)
	}
	if err := d.repo.UpdateSubscription(ctx, sub, expected); err != nil {
		return nil, err
	}

	d.logger.Info("subscription cancelled",
		zap.String("tenant_id", tenantID.String()),
		zap.String("reason", reason),
	)
	return sub, nil
}

// SwitchPlan moves the tenant to a different plan. The superseded record is
// retained and tagged upgraded or downgraded; a new active record takes over.
//
// A switch that would leave current usage above the target entitlement is
// rejected with ErrCapacityViolation unless forceTopUp is set, in which case
// the new entitlement is raised to cover usage atomically with the switch.
func (d *Domain) SwitchPlan(ctx context.Context, tenantID uuid.UUID, targetPlanID string, forceTopUp bool) (*Subscription, error) {
	target, err := d.GetPlan(ctx, targetPlanID)
	if err != nil {
		return nil, err
	}
	if !target.Active {
		return nil, ErrPlanNotActive
	}

	current, err := d.repo.GetCurrentSubscription(ctx, tenantID)
	if err != nil {
		return nil, err
	}
	if !current.IsActive() {
		return nil, fmt.Errorf("%w: cannot switch plan from status %s", ErrInvalidTransition, current.Status)
	}
	if current.PlanID == targetPlanID {
		return current, nil
	}

	usage := d.currentUsage(ctx, current)

	now := time.Now().UTC()
	next, err := NewSubscription(tenantID, target, now)
	if err != nil {
		return nil, err
	}
	next.Status = StatusActive
	end := periodEnd(now, target.BillingCycle)
	next.EndDate = &end
	next.TrialEndDate = nil
	next.Usage = *usage

	for _, kind := range []CapacityKind{KindBed, KindBranch} {
		used := next.UsedFor(kind)
		if used <= next.EffectiveLimit(kind) {
			continue
		}
		if !forceTopUp {
			return nil, fmt.Errorf("%w: %s usage %d exceeds target entitlement %d",
				ErrCapacityViolation, kind, used, next.EffectiveLimit(kind))
		}
		if err := next.ApplyTopUp(kind, used-next.EffectiveLimit(kind), now); err != nil {
			return nil, err
		}
	}

	tag := StatusUpgraded
	if target.BasePrice < planBasePrice(current) {
		tag = StatusDowngraded
	}

	expected := current.Version
	if err := current.MarkSuperseded(tag, now); err != nil {
		return nil, err
	}
	// Supersede and create ride one transaction: a failure must not leave the
	// tenant with only a tagged historical record and no live one.
	if err := d.repo.SwitchSubscription(ctx, current, expected, next); err != nil {
		return nil, err
	}

	d.logger.Info("plan switched",
		zap.String("tenant_id", tenantID.String()),
		zap.String("from_plan", current.PlanID),
		zap.String("to_plan", targetPlanID),
		zap.String("tag", tag.String()),
	)
	return next, nil
}

// --- Quota Operations ---

// CheckCapacity runs a capacity check for a tenant. Usage counters are
// refreshed from the ledger before evaluating; tier may be empty, in which
// case it is derived from the subscription. When the check denies, quote
// carries the itemized cost of the entitlement that would cover the request.
func (d *Domain) CheckCapacity(ctx context.Context, tenantID uuid.UUID, kind CapacityKind, delta int64, tier TenantTier) (*QuotaCheckResult, *CostBreakdown, error) {
	sub, err := d.repo.GetCurrentSubscription(ctx, tenantID)
	if err != nil && !errors.Is(err, ErrSubscriptionNotFound) {
		return nil, nil, err
	}
	if sub != nil {
		sub.Usage = *d.currentUsage(ctx, sub)
	}
	if tier == "" {
		tier = TierFor(sub)
	}

	result, err := CheckCapacity(sub, kind, delta, tier)
	if err != nil {
		return nil, nil, err
	}
	if result.CanAdd || sub == nil || sub.Plan == nil {
		return result, nil, nil
	}

	// Quote the plan at the entitlement that would cover the request.
	beds := int(sub.TotalBeds)
	branches := int(sub.TotalBranches)
	if kind == KindBranch {
		branches = int(result.NewTotal)
	} else {
		beds = int(result.NewTotal)
	}
	quote, err := CalculateCost(sub.Plan, beds, branches)
	if err != nil {
		d.logger.Warn("overage quote failed", zap.Error(err), zap.String("tenant_id", tenantID.String()))
		return result, nil, nil
	}
	return result, quote, nil
}

// QuotaStatus reports both capacity counters without requesting anything.
func (d *Domain) QuotaStatus(ctx context.Context, tenantID uuid.UUID) (beds, branches *QuotaCheckResult, err error) {
	beds, _, err = d.CheckCapacity(ctx, tenantID, KindBed, 0, "")
	if err != nil {
		return nil, nil, err
	}
	branches, _, err = d.CheckCapacity(ctx, tenantID, KindBranch, 0, "")
	if err != nil {
		return nil, nil, err
	}
	return beds, branches, nil
}

// ConfirmTopUp purchases additional entitlement units. The numbers are
// submitted to the external entitlement endpoint before the record is raised.
func (d *Domain) ConfirmTopUp(ctx context.Context, tenantID uuid.UUID, kind CapacityKind, units int64) (*Subscription, error) {
	if !kind.IsValid() {
		return nil, fmt.Errorf("%w: unknown capacity kind %q", ErrInvalidArgument, kind)
	}
	if units <= 0 {
		return nil, fmt.Errorf("%w: top-up units must be positive", ErrInvalidArgument)
	}

	sub, err := d.repo.GetCurrentSubscription(ctx, tenantID)
	if err != nil {
		return nil, err
	}
	if !sub.IsActive() {
		return nil, fmt.Errorf("%w: cannot top up a %s subscription", ErrInvalidTransition, sub.Status)
	}
	if sub.Plan == nil {
		return nil, fmt.Errorf("subscription %s has no plan loaded", sub.ID)
	}

	inc := &EntitlementIncrease{}
	switch kind {
	case KindBranch:
		if !sub.Plan.AllowMultipleBranches {
			return nil, fmt.Errorf("%w: plan %s does not allow multiple branches", ErrInvalidArgument, sub.PlanID)
		}
		newMax := sub.TotalBranches + units
		if newMax > int64(sub.Plan.BranchCount) {
			return nil, fmt.Errorf("%w: plan %s caps branches at %d", ErrInvalidArgument, sub.PlanID, sub.Plan.BranchCount)
		}
		inc.AdditionalBranches = units
		inc.NewMaxBranches = newMax
	default:
		newMax := sub.TotalBeds + units
		if sub.Plan.MaxBedsAllowed != nil && newMax > int64(*sub.Plan.MaxBedsAllowed) {
			return nil, fmt.Errorf("%w: plan %s caps beds at %d", ErrInvalidArgument, sub.PlanID, *sub.Plan.MaxBedsAllowed)
		}
		inc.AdditionalBeds = units
		inc.NewMaxBeds = newMax
	}

	if err := d.entitlement.IncreaseEntitlement(ctx, tenantID, inc); err != nil {
		return nil, fmt.Errorf("increase entitlement: %w", err)
	}

	now := time.Now().UTC()
	expected := sub.Version
	if err := sub.ApplyTopUp(kind, units, now); err != nil {
		return nil, err
	}
	if err := d.repo.UpdateSubscription(ctx, sub, expected); err != nil {
		return nil, err
	}

	d.logger.Info("entitlement topped up",
		zap.String("tenant_id", tenantID.String()),
		zap.String("kind", kind.String()),
		zap.Int64("units", units),
	)
	return sub, nil
}

// RecordUsageDelta updates the tenant's consumption counter. Property CRUD
// services call this only after their own write succeeded; the counter is
// eventually consistent with their database.
func (d *Domain) RecordUsageDelta(ctx context.Context, tenantID uuid.UUID, kind CapacityKind, delta int64) error {
	if !kind.IsValid() {
		return fmt.Errorf("%w: unknown capacity kind %q", ErrInvalidArgument, kind)
	}
	if delta == 0 {
		return nil
	}
	return d.ledger.RecordDelta(ctx, tenantID, kind, delta)
}

// --- Lifecycle Sweep ---

// HandleRenewal applies a successful external renewal payment: a due trial
// converts to active, a due active period rolls over. Idempotent under retry.
func (d *Domain) HandleRenewal(ctx context.Context, tenantID uuid.UUID) (*Subscription, error) {
	sub, err := d.repo.GetCurrentSubscription(ctx, tenantID)
	if err != nil {
		return nil, err
	}

	expected := sub.Version
	changed, err := sub.EvaluateExpiry(time.Now().UTC(), true)
	if err != nil {
		return nil, err
	}
	if !changed {
		return sub, nil
	}
	if err := d.repo.UpdateSubscription(ctx, sub, expected); err != nil {
		return nil, err
	}
	return sub, nil
}

// RunExpirySweep expires due trials and lapsed periods as of now. Safe to run
// from any periodic job; already-expired records are untouched. Returns the
// number of records expired.
func (d *Domain) RunExpirySweep(ctx context.Context, now time.Time) (int, error) {
	due, err := d.repo.ListExpiryDue(ctx, now, 500)
	if err != nil {
		return 0, fmt.Errorf("list expiry due: %w", err)
	}

	expired := 0
	for _, sub := range due {
		expected := sub.Version
		changed, err := sub.EvaluateExpiry(now, false)
		if err != nil {
			d.logger.Error("expiry evaluation failed",
				zap.Error(err),
				zap.String("subscription_id", sub.ID.String()),
			)
			continue
		}
		if !changed {
			continue
		}
		if err := d.repo.UpdateSubscription(ctx, sub, expected); err != nil {
			if errors.Is(err, ErrConcurrentModification) {
				// Another writer got there first; the next sweep settles it.
				continue
			}
			d.logger.Error("expiry update failed",
				zap.Error(err),
				zap.String("subscription_id", sub.ID.String()),
			)
			continue
		}
		expired++
	}
	return expired, nil
}

// --- Bulk Upload ---

// CheckBulkUpload gates a resident bulk-upload batch by tier. Layered on top
// of CheckCapacity, never a substitute for it.
func (d *Domain) CheckBulkUpload(ctx context.Context, tenantID uuid.UUID, batchSize int) (*BulkUploadResult, error) {
	sub, err := d.repo.GetCurrentSubscription(ctx, tenantID)
	if err != nil && !errors.Is(err, ErrSubscriptionNotFound) {
		return nil, err
	}
	return CheckBulkUpload(TierFor(sub), batchSize)
}

// --- Helpers ---

// currentUsage refreshes counters from the ledger, falling back to the
// persisted snapshot when the ledger is unavailable.
func (d *Domain) currentUsage(ctx context.Context, sub *Subscription) *Usage {
	usage, err := d.ledger.GetUsage(ctx, sub.TenantID)
	if err != nil {
		d.logger.Warn("usage ledger unavailable, using snapshot",
			zap.Error(err),
			zap.String("tenant_id", sub.TenantID.String()),
		)
		snapshot := sub.Usage
		return &snapshot
	}
	return usage
}

func planBasePrice(sub *Subscription) float64 {
	if sub.Plan != nil {
		return sub.Plan.BasePrice
	}
	return 0
}
