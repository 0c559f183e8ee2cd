package billing

import "errors"

// Domain errors for billing.
//
// A failed capacity check is not an error: CheckCapacity reports denial
// inside QuotaCheckResult and callers branch on CanAdd.
var (
	// Input errors
	ErrInvalidArgument = errors.New("invalid argument")
	ErrInvalidPlan     = errors.New("invalid plan")

	// Lookup errors
	ErrPlanNotFound         = errors.New("plan not found")
	ErrPlanNotActive        = errors.New("plan is not active")
	ErrSubscriptionNotFound = errors.New("subscription not found")
	ErrSubscriptionExists   = errors.New("subscription already exists")

	// Lifecycle errors
	ErrInvalidTransition      = errors.New("invalid subscription transition")
	ErrCapacityViolation      = errors.New("plan change would violate current usage")
	ErrConcurrentModification = errors.New("subscription was modified concurrently")
)
