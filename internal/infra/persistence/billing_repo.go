package persistence

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/steyzi/server/internal/domain/billing"
	"github.com/steyzi/server/internal/infra/persistence/entity"
	"gorm.io/gorm"
)

// liveStatuses are the statuses that grant or may still grant entitlement.
// Expired is included so that a lapsed record can be revived on resubscription
// before a new record is created.
var liveStatuses = []billing.SubscriptionStatus{
	billing.StatusTrial,
	billing.StatusActive,
	billing.StatusExpired,
}

// BillingRepository implements billing.Repository interface.
type BillingRepository struct {
	db *gorm.DB
}

// NewBillingRepository creates a new billing repository.
func NewBillingRepository(db *gorm.DB) *BillingRepository {
	return &BillingRepository{db: db}
}

// --- Plan Operations ---

func (r *BillingRepository) ListActivePlans(ctx context.Context) ([]*billing.Plan, error) {
	var entities []*entity.PlanEntity
	err := r.db.WithContext(ctx).
		Where("active = ?", true).
		Order("display_order ASC").
		Find(&entities).Error
	if err != nil {
		return nil, fmt.Errorf("list active plans: %w", err)
	}

	plans := make([]*billing.Plan, len(entities))
	for i, ent := range entities {
		plans[i] = ent.ToDomain()
	}
	return plans, nil
}

func (r *BillingRepository) GetPlan(ctx context.Context, id string) (*billing.Plan, error) {
	var ent entity.PlanEntity
	err := r.db.WithContext(ctx).First(&ent, "id = ?", id).Error
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, billing.ErrPlanNotFound
		}
		return nil, fmt.Errorf("get plan: %w", err)
	}
	return ent.ToDomain(), nil
}

// SeedPlans inserts the given plans if they do not exist yet. Existing rows
// are left untouched so that operator edits survive restarts.
func (r *BillingRepository) SeedPlans(ctx context.Context, plans []*billing.Plan) error {
	for _, plan := range plans {
		ent := entity.FromDomainPlan(plan)
		err := r.db.WithContext(ctx).
			Where("id = ?", plan.ID).
			FirstOrCreate(ent).Error
		if err != nil {
			return fmt.Errorf("seed plan %s: %w", plan.ID, err)
		}
	}
	return nil
}

// --- Subscription Operations ---

func (r *BillingRepository) CreateSubscription(ctx context.Context, sub *billing.Subscription) error {
	ent := entity.FromDomainSubscription(sub)
	if err := r.db.WithContext(ctx).Create(ent).Error; err != nil {
		return fmt.Errorf("create subscription: %w", err)
	}
	return nil
}

// GetCurrentSubscription returns the tenant's newest live record with the plan
// loaded. Superseded and cancelled records are not considered.
func (r *BillingRepository) GetCurrentSubscription(ctx context.Context, tenantID uuid.UUID) (*billing.Subscription, error) {
	var ent entity.SubscriptionEntity
	err := r.db.WithContext(ctx).
		Preload("Plan").
		Where("tenant_id = ? AND status IN ?", tenantID, liveStatuses).
		Order("created_at DESC").
		First(&ent).Error
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, billing.ErrSubscriptionNotFound
		}
		return nil, fmt.Errorf("get current subscription: %w", err)
	}
	return ent.ToDomain(), nil
}

// UpdateSubscription persists a mutated record against the version it was
// read at. A stale expectedVersion matches no row and fails with
// ErrConcurrentModification; on success the stored version is bumped.
func (r *BillingRepository) UpdateSubscription(ctx context.Context, sub *billing.Subscription, expectedVersion int64) error {
	if err := casUpdate(r.db.WithContext(ctx), sub, expectedVersion); err != nil {
		if errors.Is(err, billing.ErrConcurrentModification) {
			return err
		}
		return fmt.Errorf("update subscription: %w", err)
	}
	sub.Version = expectedVersion + 1
	return nil
}

// SwitchSubscription supersedes the current record and inserts its successor
// in one transaction. A failure on either write rolls both back, so the
// tenant never ends up with only a tagged historical record.
func (r *BillingRepository) SwitchSubscription(ctx context.Context, superseded *billing.Subscription, expectedVersion int64, next *billing.Subscription) error {
	err := r.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		if err := casUpdate(tx, superseded, expectedVersion); err != nil {
			return err
		}
		if err := tx.Create(entity.FromDomainSubscription(next)).Error; err != nil {
			return fmt.Errorf("create successor: %w", err)
		}
		return nil
	})
	if err != nil {
		if errors.Is(err, billing.ErrConcurrentModification) {
			return err
		}
		return fmt.Errorf("switch subscription: %w", err)
	}
	superseded.Version = expectedVersion + 1
	return nil
}

// casUpdate writes a record against the version it was read at. The caller
// bumps the in-memory version only after the surrounding work committed.
func casUpdate(db *gorm.DB, sub *billing.Subscription, expectedVersion int64) error {
	ent := entity.FromDomainSubscription(sub)
	ent.Version = expectedVersion + 1

	result := db.Model(&entity.SubscriptionEntity{}).
		Where("id = ? AND version = ?", sub.ID, expectedVersion).
		Select("*").
		Omit("id", "tenant_id", "created_at", "plan_id").
		Updates(ent)
	if result.Error != nil {
		return result.Error
	}
	if result.RowsAffected == 0 {
		return billing.ErrConcurrentModification
	}
	return nil
}

// ListSubscriptionHistory returns every record for a tenant, newest first.
func (r *BillingRepository) ListSubscriptionHistory(ctx context.Context, tenantID uuid.UUID) ([]*billing.Subscription, error) {
	var entities []*entity.SubscriptionEntity
	err := r.db.WithContext(ctx).
		Preload("Plan").
		Where("tenant_id = ?", tenantID).
		Order("created_at DESC").
		Find(&entities).Error
	if err != nil {
		return nil, fmt.Errorf("list subscription history: %w", err)
	}

	subs := make([]*billing.Subscription, len(entities))
	for i, ent := range entities {
		subs[i] = ent.ToDomain()
	}
	return subs, nil
}

// UpdateUsageSnapshot writes fresh counters onto the tenant's live record.
// Counters are not guarded state, so this bypasses the version check and
// deliberately does not bump the version.
func (r *BillingRepository) UpdateUsageSnapshot(ctx context.Context, tenantID uuid.UUID, usage billing.Usage) error {
	err := r.db.WithContext(ctx).
		Model(&entity.SubscriptionEntity{}).
		Where("tenant_id = ? AND status IN ?", tenantID, liveStatuses).
		Updates(map[string]any{
			"beds_used":     usage.BedsUsed,
			"branches_used": usage.BranchesUsed,
		}).Error
	if err != nil {
		return fmt.Errorf("update usage snapshot: %w", err)
	}
	return nil
}

// ListExpiryDue returns records whose trial or billing period ended before
// now, up to limit, oldest due first.
func (r *BillingRepository) ListExpiryDue(ctx context.Context, now time.Time, limit int) ([]*billing.Subscription, error) {
	var entities []*entity.SubscriptionEntity
	err := r.db.WithContext(ctx).
		Preload("Plan").
		Where("(status = ? AND trial_end_date < ?) OR (status = ? AND end_date < ?)",
			billing.StatusTrial, now, billing.StatusActive, now).
		Order("COALESCE(trial_end_date, end_date) ASC").
		Limit(limit).
		Find(&entities).Error
	if err != nil {
		return nil, fmt.Errorf("list expiry due: %w", err)
	}

	subs := make([]*billing.Subscription, len(entities))
	for i, ent := range entities {
		subs[i] = ent.ToDomain()
	}
	return subs, nil
}

// Ensure BillingRepository implements billing.Repository.
var _ billing.Repository = (*BillingRepository)(nil)
