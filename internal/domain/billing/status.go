package billing

// BillingCycle represents the billing period.
type BillingCycle string

const (
	BillingCycleMonthly BillingCycle = "monthly"
	BillingCycleAnnual  BillingCycle = "annual"
)

// String returns the string representation of the billing cycle.
func (b BillingCycle) String() string {
	return string(b)
}

// IsValid checks if the billing cycle is valid.
func (b BillingCycle) IsValid() bool {
	switch b {
	case BillingCycleMonthly, BillingCycleAnnual:
		return true
	}
	return false
}

// SubscriptionStatus represents the status of a subscription record.
//
// Upgraded and Downgraded are historical tags: they are applied to a
// superseded record when a plan switch creates a newer record. A live
// record is always trial, active, expired or cancelled.
type SubscriptionStatus string

const (
	StatusTrial      SubscriptionStatus = "trial"
	StatusActive     SubscriptionStatus = "active"
	StatusExpired    SubscriptionStatus = "expired"
	StatusCancelled  SubscriptionStatus = "cancelled"
	StatusUpgraded   SubscriptionStatus = "upgraded"
	StatusDowngraded SubscriptionStatus = "downgraded"
)

// String returns the string representation of the status.
func (s SubscriptionStatus) String() string {
	return string(s)
}

// IsValid checks if the status is valid.
func (s SubscriptionStatus) IsValid() bool {
	switch s {
	case StatusTrial, StatusActive, StatusExpired, StatusCancelled, StatusUpgraded, StatusDowngraded:
		return true
	}
	return false
}

// IsLive returns true if the record carries a live status rather than a
// historical tag.
func (s SubscriptionStatus) IsLive() bool {
	switch s {
	case StatusTrial, StatusActive, StatusExpired, StatusCancelled:
		return true
	}
	return false
}

// IsActive returns true if the subscription grants entitlement right now.
func (s SubscriptionStatus) IsActive() bool {
	return s == StatusActive || s == StatusTrial
}

// TenantTier classifies a tenant for quota-exceeded handling. The tier is
// derived once per request (see TierFor) and echoed back in quota results so
// callers can branch without re-deriving it.
type TenantTier string

const (
	TierTrial TenantTier = "trial"
	TierFree  TenantTier = "free"
	TierPaid  TenantTier = "paid"
)

// String returns the string representation of the tier.
func (t TenantTier) String() string {
	return string(t)
}

// IsValid checks if the tier is valid.
func (t TenantTier) IsValid() bool {
	switch t {
	case TierTrial, TierFree, TierPaid:
		return true
	}
	return false
}

// CapacityKind identifies which entitlement counter a quota check targets.
type CapacityKind string

const (
	KindBed    CapacityKind = "bed"
	KindBranch CapacityKind = "branch"
)

// String returns the string representation of the kind.
func (k CapacityKind) String() string {
	return string(k)
}

// IsValid checks if the capacity kind is valid.
func (k CapacityKind) IsValid() bool {
	return k == KindBed || k == KindBranch
}

// Transition represents a status transition on a single record.
type Transition struct {
	From SubscriptionStatus
	To   SubscriptionStatus
}

// validTransitions defines all allowed status transitions.
var validTransitions = map[Transition]bool{
	{StatusTrial, StatusActive}:      true, // plan purchased before trial end
	{StatusTrial, StatusExpired}:     true, // trial ran out without conversion
	{StatusTrial, StatusCancelled}:   true, // explicit cancellation during trial
	{StatusActive, StatusExpired}:    true, // period ended without renewal
	{StatusActive, StatusCancelled}:  true, // explicit cancellation
	{StatusActive, StatusUpgraded}:   true, // superseded by a pricier plan
	{StatusActive, StatusDowngraded}: true, // superseded by a cheaper plan
	{StatusExpired, StatusActive}:    true, // resubscription on the same record
}

// CanTransition checks if a transition between two statuses is allowed.
func CanTransition(from, to SubscriptionStatus) bool {
	return validTransitions[Transition{from, to}]
}
