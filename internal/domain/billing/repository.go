package billing

import (
	"context"
	"time"

	"github.com/google/uuid"
)

// Repository defines the persistence contract for billing.
// Implementations live in internal/infra/persistence.
type Repository interface {
	// Plan operations
	ListActivePlans(ctx context.Context) ([]*Plan, error)
	GetPlan(ctx context.Context, id string) (*Plan, error)

	// Subscription operations
	CreateSubscription(ctx context.Context, sub *Subscription) error
	// GetCurrentSubscription returns the tenant's live record with its plan
	// loaded, or ErrSubscriptionNotFound.
	GetCurrentSubscription(ctx context.Context, tenantID uuid.UUID) (*Subscription, error)
	// UpdateSubscription persists a mutated record against the version it was
	// read at. It fails with ErrConcurrentModification on a stale version and
	// bumps the version on success.
	UpdateSubscription(ctx context.Context, sub *Subscription, expectedVersion int64) error
	// SwitchSubscription atomically persists a plan switch: the superseded
	// record is updated against expectedVersion and the successor inserted
	// together, so a failed switch leaves the current record live.
	SwitchSubscription(ctx context.Context, superseded *Subscription, expectedVersion int64, next *Subscription) error
	// ListSubscriptionHistory returns all records for a tenant, newest first.
	ListSubscriptionHistory(ctx context.Context, tenantID uuid.UUID) ([]*Subscription, error)
	// ListExpiryDue returns live records whose trial or period end precedes now.
	ListExpiryDue(ctx context.Context, now time.Time, limit int) ([]*Subscription, error)
}

// UsageLedger exposes the tenant's consumption counters. Reads feed
// CheckCapacity; writes happen only after the underlying property CRUD write
// succeeded, so counters are eventually consistent with the database.
type UsageLedger interface {
	GetUsage(ctx context.Context, tenantID uuid.UUID) (*Usage, error)
	RecordDelta(ctx context.Context, tenantID uuid.UUID, kind CapacityKind, delta int64) error
}

// EntitlementIncrease is the payload submitted to the external entitlement
// endpoint when a top-up is confirmed.
type EntitlementIncrease struct {
	AdditionalBeds     int64 `json:"additional_beds,omitempty"`
	NewMaxBeds         int64 `json:"new_max_beds,omitempty"`
	AdditionalBranches int64 `json:"additional_branches,omitempty"`
	NewMaxBranches     int64 `json:"new_max_branches,omitempty"`
}

// EntitlementAPI is the outbound contract to the billing provider. The core
// computes the numbers; the adapter performs the network call.
type EntitlementAPI interface {
	IncreaseEntitlement(ctx context.Context, tenantID uuid.UUID, inc *EntitlementIncrease) error
	SubmitCancellation(ctx context.Context, tenantID uuid.UUID, reason string) error
}
