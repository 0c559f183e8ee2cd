package entity

import (
	"time"

	"github.com/google/uuid"
	"github.com/lib/pq"
	"github.com/steyzi/server/internal/domain/billing"
)

// PlanEntity is the GORM model for plans table.
type PlanEntity struct {
	ID                    string `gorm:"primaryKey"`
	Name                  string `gorm:"not null"`
	Description           string
	BillingCycle          billing.BillingCycle `gorm:"not null"`
	BasePrice             float64              `gorm:"type:decimal(12,2);not null"`
	BaseBedCount          int                  `gorm:"not null"`
	TopUpPricePerBed      float64              `gorm:"type:decimal(12,2);not null;default:0"`
	MaxBedsAllowed        *int
	AllowMultipleBranches bool           `gorm:"default:false"`
	BranchCount           int            `gorm:"not null;default:1"`
	CostPerBranch         float64        `gorm:"type:decimal(12,2);not null;default:0"`
	AnnualDiscountPercent float64        `gorm:"type:decimal(5,2);not null;default:0"`
	TrialPeriodDays       int            `gorm:"not null;default:0"`
	Features              pq.StringArray `gorm:"type:text[]"`
	Active                bool           `gorm:"default:true"`
	DisplayOrder          int            `gorm:"default:0"`

	CreatedAt time.Time
	UpdatedAt time.Time
}

// TableName returns the database table name.
func (PlanEntity) TableName() string {
	return "plans"
}

// ToDomain converts the entity to a domain Plan.
func (e *PlanEntity) ToDomain() *billing.Plan {
	return &billing.Plan{
		ID:                    e.ID,
		Name:                  e.Name,
		Description:           e.Description,
		BillingCycle:          e.BillingCycle,
		BasePrice:             e.BasePrice,
		BaseBedCount:          e.BaseBedCount,
		TopUpPricePerBed:      e.TopUpPricePerBed,
		MaxBedsAllowed:        e.MaxBedsAllowed,
		AllowMultipleBranches: e.AllowMultipleBranches,
		BranchCount:           e.BranchCount,
		CostPerBranch:         e.CostPerBranch,
		AnnualDiscountPercent: e.AnnualDiscountPercent,
		TrialPeriodDays:       e.TrialPeriodDays,
		Features:              []string(e.Features),
		Active:                e.Active,
		DisplayOrder:          e.DisplayOrder,
	}
}

// FromDomainPlan converts a domain Plan to an entity.
func FromDomainPlan(p *billing.Plan) *PlanEntity {
	return &PlanEntity{
		ID:                    p.ID,
		Name:                  p.Name,
		Description:           p.Description,
		BillingCycle:          p.BillingCycle,
		BasePrice:             p.BasePrice,
		BaseBedCount:          p.BaseBedCount,
		TopUpPricePerBed:      p.TopUpPricePerBed,
		MaxBedsAllowed:        p.MaxBedsAllowed,
		AllowMultipleBranches: p.AllowMultipleBranches,
		BranchCount:           p.BranchCount,
		CostPerBranch:         p.CostPerBranch,
		AnnualDiscountPercent: p.AnnualDiscountPercent,
		TrialPeriodDays:       p.TrialPeriodDays,
		Features:              pq.StringArray(p.Features),
		Active:                p.Active,
		DisplayOrder:          p.DisplayOrder,
	}
}

// SubscriptionEntity is the GORM model for subscriptions table.
// One live record per tenant; superseded and terminal records stay for history.
type SubscriptionEntity struct {
	ID       uuid.UUID                  `gorm:"type:uuid;primaryKey;default:gen_random_uuid()"`
	TenantID uuid.UUID                  `gorm:"type:uuid;index;not null"`
	PlanID   string                     `gorm:"not null"`
	Status   billing.SubscriptionStatus `gorm:"not null;index"`

	StartDate    time.Time `gorm:"not null"`
	EndDate      *time.Time
	TrialEndDate *time.Time

	TotalBeds     int64 `gorm:"not null"`
	TotalBranches int64 `gorm:"not null;default:1"`

	CustomBedLimit    *int64
	CustomBranchLimit *int64

	BedsUsed     int64 `gorm:"not null;default:0"`
	BranchesUsed int64 `gorm:"not null;default:0"`

	AutoRenew          bool `gorm:"default:false"`
	CancelledAt        *time.Time
	CancellationReason string

	Version   int64 `gorm:"not null;default:1"`
	CreatedAt time.Time
	UpdatedAt time.Time

	// Relations
	Plan *PlanEntity `gorm:"foreignKey:PlanID"`
}

// TableName returns the database table name.
func (SubscriptionEntity) TableName() string {
	return "subscriptions"
}

// ToDomain converts the entity to a domain Subscription.
func (e *SubscriptionEntity) ToDomain() *billing.Subscription {
	var plan *billing.Plan
	if e.Plan != nil {
		plan = e.Plan.ToDomain()
	}

	return &billing.Subscription{
		ID:                e.ID,
		TenantID:          e.TenantID,
		PlanID:            e.PlanID,
		Status:            e.Status,
		StartDate:         e.StartDate,
		EndDate:           e.EndDate,
		TrialEndDate:      e.TrialEndDate,
		TotalBeds:         e.TotalBeds,
		TotalBranches:     e.TotalBranches,
		CustomBedLimit:    e.CustomBedLimit,
		CustomBranchLimit: e.CustomBranchLimit,
		Usage: billing.Usage{
			BedsUsed:     e.BedsUsed,
			BranchesUsed: e.BranchesUsed,
		},
		AutoRenew:          e.AutoRenew,
		CancelledAt:        e.CancelledAt,
		CancellationReason: e.CancellationReason,
		Version:            e.Version,
		CreatedAt:          e.CreatedAt,
		UpdatedAt:          e.UpdatedAt,
		Plan:               plan,
	}
}

// FromDomainSubscription converts a domain Subscription to an entity.
func FromDomainSubscription(s *billing.Subscription) *SubscriptionEntity {
	return &SubscriptionEntity{
		ID:                 s.ID,
		TenantID:           s.TenantID,
		PlanID:             s.PlanID,
		Status:             s.Status,
		StartDate:          s.StartDate,
		EndDate:            s.EndDate,
		TrialEndDate:       s.TrialEndDate,
		TotalBeds:          s.TotalBeds,
		TotalBranches:      s.TotalBranches,
		CustomBedLimit:     s.CustomBedLimit,
		CustomBranchLimit:  s.CustomBranchLimit,
		BedsUsed:           s.Usage.BedsUsed,
		BranchesUsed:       s.Usage.BranchesUsed,
		AutoRenew:          s.AutoRenew,
		CancelledAt:        s.CancelledAt,
		CancellationReason: s.CancellationReason,
		Version:            s.Version,
		CreatedAt:          s.CreatedAt,
		UpdatedAt:          s.UpdatedAt,
	}
}
