package billing

import (
	"fmt"
	"time"

	"github.com/google/uuid"
)

// Usage holds the tenant's current consumption counters. Counters are
// maintained by the property CRUD services through the UsageLedger and are
// eventually consistent with the entitlement on the subscription record.
type Usage struct {
	BedsUsed     int64 `json:"beds_used"`
	BranchesUsed int64 `json:"branches_used"`
}

// Subscription is the aggregate root for a tenant's subscription.
// A tenant has at most one live record at a time; superseded records are
// retained for history and tagged upgraded/downgraded.
//
// Version supports optimistic locking: a transition must be persisted against
// the version it was computed from, and the repository fails with
// ErrConcurrentModification on a stale version.
type Subscription struct {
	ID       uuid.UUID
	TenantID uuid.UUID
	PlanID   string
	Status   SubscriptionStatus

	StartDate    time.Time
	EndDate      *time.Time // required when status != trial
	TrialEndDate *time.Time // required when status == trial

	// Entitlement currently purchased (plan base + top-ups), not plan defaults.
	TotalBeds     int64
	TotalBranches int64

	// Optional per-tenant overrides negotiated outside the plan.
	CustomBedLimit    *int64
	CustomBranchLimit *int64

	Usage Usage

	AutoRenew          bool
	CancelledAt        *time.Time
	CancellationReason string

	Version   int64
	CreatedAt time.Time
	UpdatedAt time.Time

	// Loaded relation, may be nil.
	Plan *Plan
}

// NewSubscription creates a subscription for a tenant selecting a plan.
// Plans with a trial period start in trial; everything else starts active.
func NewSubscription(tenantID uuid.UUID, plan *Plan, now time.Time) (*Subscription, error) {
	if tenantID == uuid.Nil {
		return nil, fmt.Errorf("%w: tenant id is required", ErrInvalidArgument)
	}
	if plan == nil {
		return nil, fmt.Errorf("%w: plan is required", ErrInvalidArgument)
	}
	if err := plan.Validate(); err != nil {
		return nil, err
	}

	sub := &Subscription{
		ID:            uuid.New(),
		TenantID:      tenantID,
		PlanID:        plan.ID,
		StartDate:     now,
		TotalBeds:     int64(plan.BaseBedCount),
		TotalBranches: 1, // first branch always included
		Version:       1,
		CreatedAt:     now,
		UpdatedAt:     now,
		Plan:          plan,
	}

	if plan.HasTrial() {
		trialEnd := now.AddDate(0, 0, plan.TrialPeriodDays)
		sub.Status = StatusTrial
		sub.TrialEndDate = &trialEnd
	} else {
		end := periodEnd(now, plan.BillingCycle)
		sub.Status = StatusActive
		sub.EndDate = &end
	}

	return sub, nil
}

// IsActive returns true if the record grants entitlement right now.
func (s *Subscription) IsActive() bool {
	return s.Status.IsActive()
}

// IsCancelled returns true if the record is cancelled.
func (s *Subscription) IsCancelled() bool {
	return s.Status == StatusCancelled
}

// IsTrialing returns true if the record is in its trial period.
func (s *Subscription) IsTrialing() bool {
	return s.Status == StatusTrial
}

// EffectiveLimit returns the entitlement for a capacity kind, honoring any
// per-tenant override.
func (s *Subscription) EffectiveLimit(kind CapacityKind) int64 {
	switch kind {
	case KindBranch:
		if s.CustomBranchLimit != nil {
			return *s.CustomBranchLimit
		}
		return s.TotalBranches
	default:
		if s.CustomBedLimit != nil {
			return *s.CustomBedLimit
		}
		return s.TotalBeds
	}
}

// UsedFor returns the consumption counter for a capacity kind.
func (s *Subscription) UsedFor(kind CapacityKind) int64 {
	if kind == KindBranch {
		return s.Usage.BranchesUsed
	}
	return s.Usage.BedsUsed
}

// transition moves the record to a target status, enforcing the transition
// table. Applying a transition the record is already in is a no-op so that
// retries stay idempotent.
func (s *Subscription) transition(to SubscriptionStatus, now time.Time) error {
	if s.Status == to {
		return nil
	}
	if !CanTransition(s.Status, to) {
		return fmt.Errorf("%w: %s -> %s", ErrInvalidTransition, s.Status, to)
	}
	s.Status = to
	s.UpdatedAt = now
	return nil
}

// Activate converts a trial to paid before the trial ends, or revives an
// expired record on resubscription. A new billing period starts at now.
func (s *Subscription) Activate(now time.Time) error {
	if s.Status == StatusActive {
		return nil
	}
	if err := s.transition(StatusActive, now); err != nil {
		return err
	}
	end := periodEnd(now, s.billingCycle())
	s.StartDate = now
	s.EndDate = &end
	s.TrialEndDate = nil
	s.CancelledAt = nil
	s.CancellationReason = ""
	return nil
}

// Cancel cancels the record with a reason. Cancelling an already-cancelled
// record is a no-op; cancelling an expired record is rejected.
func (s *Subscription) Cancel(now time.Time, reason string) error {
	if s.IsCancelled() {
		return nil
	}
	if err := s.transition(StatusCancelled, now); err != nil {
		return err
	}
	s.CancelledAt = &now
	s.CancellationReason = reason
	s.AutoRenew = false
	return nil
}

// MarkSuperseded tags this record as upgraded or downgraded when a plan
// switch creates a newer record.
func (s *Subscription) MarkSuperseded(tag SubscriptionStatus, now time.Time) error {
	if tag != StatusUpgraded && tag != StatusDowngraded {
		return fmt.Errorf("%w: %s is not a supersession tag", ErrInvalidArgument, tag)
	}
	return s.transition(tag, now)
}

// RenewPeriod starts a new billing period ending one cycle after now.
func (s *Subscription) RenewPeriod(now time.Time) {
	end := periodEnd(now, s.billingCycle())
	s.StartDate = now
	s.EndDate = &end
	s.UpdatedAt = now
}

// ApplyTopUp raises the purchased entitlement after a confirmed top-up.
func (s *Subscription) ApplyTopUp(kind CapacityKind, units int64, now time.Time) error {
	if units <= 0 {
		return fmt.Errorf("%w: top-up units must be positive", ErrInvalidArgument)
	}
	if kind == KindBranch {
		s.TotalBranches += units
	} else {
		s.TotalBeds += units
	}
	s.UpdatedAt = now
	return nil
}

// ExpiryDue reports whether the record is past its trial or period end.
func (s *Subscription) ExpiryDue(now time.Time) bool {
	switch s.Status {
	case StatusTrial:
		return s.TrialEndDate != nil && now.After(*s.TrialEndDate)
	case StatusActive:
		return s.EndDate != nil && now.After(*s.EndDate)
	}
	return false
}

// EvaluateExpiry applies time-based expiry as of now. renewed reports whether
// an external renewal (auto-renew payment) succeeded for this period; when it
// did, the record rolls into a new period instead of expiring. The call is
// idempotent: records that are not due, or already expired, are untouched.
// It returns true if the record changed.
func (s *Subscription) EvaluateExpiry(now time.Time, renewed bool) (bool, error) {
	if !s.ExpiryDue(now) {
		return false, nil
	}
	if renewed && s.AutoRenew {
		if s.Status == StatusTrial {
			if err := s.Activate(now); err != nil {
				return false, err
			}
			return true, nil
		}
		s.RenewPeriod(now)
		return true, nil
	}
	if err := s.transition(StatusExpired, now); err != nil {
		return false, err
	}
	return true, nil
}

func (s *Subscription) billingCycle() BillingCycle {
	if s.Plan != nil && s.Plan.BillingCycle.IsValid() {
		return s.Plan.BillingCycle
	}
	return BillingCycleMonthly
}

func periodEnd(from time.Time, cycle BillingCycle) time.Time {
	if cycle == BillingCycleAnnual {
		return from.AddDate(1, 0, 0)
	}
	return from.AddDate(0, 1, 0)
}
