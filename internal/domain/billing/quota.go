package billing

import "fmt"

// UnlimitedCapacity is the limit sentinel reported while a tenant is still
// onboarding (no plan selected yet). A tenant must be able to build out their
// property before committing to billing, so capacity is unbounded until the
// first plan purchase.
const UnlimitedCapacity int64 = -1

// QuotaCheckResult is the outcome of a capacity check. A denial is a normal
// decision outcome, not an error: callers branch on CanAdd and use Overage
// with CalculateCost to quote the top-up that would cover the request.
type QuotaCheckResult struct {
	CanAdd    bool  `json:"can_add"`
	Limit     int64 `json:"limit"` // UnlimitedCapacity while onboarding
	Used      int64 `json:"used"`
	Requested int64 `json:"requested"`
	NewTotal  int64 `json:"new_total"`
	Remaining int64 `json:"remaining"`
	// Overage is how many units beyond the limit the request needs, 0 if none.
	Overage int64 `json:"overage"`

	// Echoed back so callers pick the right quota-exceeded flow
	// (trial cap vs free-tier cap vs purchased cap) without re-deriving tier.
	Kind CapacityKind `json:"kind"`
	Tier TenantTier   `json:"tier"`
}

// Unlimited returns true if the check ran against onboarding capacity.
func (r *QuotaCheckResult) Unlimited() bool {
	return r.Limit == UnlimitedCapacity
}

// CheckCapacity decides whether a tenant may consume delta additional units
// of a capacity kind. Read-only: it mutates nothing and is safe to call
// concurrently. sub may be nil for tenants that have not selected a plan yet;
// those are treated as unlimited.
//
// A delta of zero always allows, even when existing usage already exceeds the
// limit (the check gates new consumption, not the current state).
func CheckCapacity(sub *Subscription, kind CapacityKind, delta int64, tier TenantTier) (*QuotaCheckResult, error) {
	if !kind.IsValid() {
		return nil, fmt.Errorf("%w: unknown capacity kind %q", ErrInvalidArgument, kind)
	}
	if delta < 0 {
		return nil, fmt.Errorf("%w: delta must not be negative", ErrInvalidArgument)
	}
	if !tier.IsValid() {
		return nil, fmt.Errorf("%w: unknown tenant tier %q", ErrInvalidArgument, tier)
	}

	if sub == nil || sub.PlanID == "" {
		return &QuotaCheckResult{
			CanAdd:    true,
			Limit:     UnlimitedCapacity,
			Requested: delta,
			NewTotal:  delta,
			Remaining: UnlimitedCapacity,
			Kind:      kind,
			Tier:      tier,
		}, nil
	}

	limit := sub.EffectiveLimit(kind)
	used := sub.UsedFor(kind)
	newTotal := used + delta

	result := &QuotaCheckResult{
		Limit:     limit,
		Used:      used,
		Requested: delta,
		NewTotal:  newTotal,
		Remaining: max(0, limit-used),
		Kind:      kind,
		Tier:      tier,
	}

	if delta == 0 || newTotal <= limit {
		result.CanAdd = true
	} else {
		result.Overage = newTotal - limit
	}

	return result, nil
}

// TierFor derives the tenant tier from a subscription. This is the single
// derivation site; callers that already know the tier pass it straight to
// CheckCapacity instead.
func TierFor(sub *Subscription) TenantTier {
	switch {
	case sub == nil || sub.PlanID == "":
		return TierTrial
	case sub.IsTrialing():
		return TierTrial
	case sub.Plan != nil && sub.Plan.IsFree():
		return TierFree
	default:
		return TierPaid
	}
}

// BulkUploadResult is the outcome of a bulk-upload batch check.
type BulkUploadResult struct {
	Allowed   bool       `json:"allowed"`
	Limit     int        `json:"limit"`
	Requested int        `json:"requested"`
	Tier      TenantTier `json:"tier"`
}

// bulkUploadLimits caps the size of a single resident bulk-upload batch per
// tier. This is a coarser check layered on top of CheckCapacity, not a
// replacement for it: the backend enforces batch shape here and bed capacity
// separately.
var bulkUploadLimits = map[TenantTier]int{
	TierTrial: 50,
	TierFree:  25,
	TierPaid:  500,
}

// CheckBulkUpload decides whether a single upload batch of the given size is
// acceptable for a tier. It does not consult the bed counters.
func CheckBulkUpload(tier TenantTier, batchSize int) (*BulkUploadResult, error) {
	if !tier.IsValid() {
		return nil, fmt.Errorf("%w: unknown tenant tier %q", ErrInvalidArgument, tier)
	}
	if batchSize < 0 {
		return nil, fmt.Errorf("%w: batch size must not be negative", ErrInvalidArgument)
	}
	limit := bulkUploadLimits[tier]
	return &BulkUploadResult{
		Allowed:   batchSize <= limit,
		Limit:     limit,
		Requested: batchSize,
		Tier:      tier,
	}, nil
}
