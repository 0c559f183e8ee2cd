package billing

import (
	"context"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
)

// --- Mock implementations ---

type MockRepository struct {
	mock.Mock
}

func (m *MockRepository) ListActivePlans(ctx context.Context) ([]*Plan, error) {
	args := m.Called(ctx)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).([]*Plan), args.Error(1)
}

func (m *MockRepository) GetPlan(ctx context.Context, id string) (*Plan, error) {
	args := m.Called(ctx, id)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*Plan), args.Error(1)
}

func (m *MockRepository) CreateSubscription(ctx context.Context, sub *Subscription) error {
	args := m.Called(ctx, sub)
	return args.Error(0)
}

func (m *MockRepository) GetCurrentSubscription(ctx context.Context, tenantID uuid.UUID) (*Subscription, error) {
	args := m.Called(ctx, tenantID)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*Subscription), args.Error(1)
}

func (m *MockRepository) UpdateSubscription(ctx context.Context, sub *Subscription, expectedVersion int64) error {
	args := m.Called(ctx, sub, expectedVersion)
	return args.Error(0)
}

func (m *MockRepository) SwitchSubscription(ctx context.Context, superseded *Subscription, expectedVersion int64, next *Subscription) error {
	args := m.Called(ctx, superseded, expectedVersion, next)
	return args.Error(0)
}

func (m *MockRepository) ListSubscriptionHistory(ctx context.Context, tenantID uuid.UUID) ([]*Subscription, error) {
	args := m.Called(ctx, tenantID)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).([]*Subscription), args.Error(1)
}

func (m *MockRepository) ListExpiryDue(ctx context.Context, now time.Time, limit int) ([]*Subscription, error) {
	args := m.Called(ctx, now, limit)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).([]*Subscription), args.Error(1)
}

type MockLedger struct {
	mock.Mock
}

func (m *MockLedger) GetUsage(ctx context.Context, tenantID uuid.UUID) (*Usage, error) {
	args := m.Called(ctx, tenantID)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*Usage), args.Error(1)
}

func (m *MockLedger) RecordDelta(ctx context.Context, tenantID uuid.UUID, kind CapacityKind, delta int64) error {
	args := m.Called(ctx, tenantID, kind, delta)
	return args.Error(0)
}

type MockEntitlementAPI struct {
	mock.Mock
}

func (m *MockEntitlementAPI) IncreaseEntitlement(ctx context.Context, tenantID uuid.UUID, inc *EntitlementIncrease) error {
	args := m.Called(ctx, tenantID, inc)
	return args.Error(0)
}

func (m *MockEntitlementAPI) SubmitCancellation(ctx context.Context, tenantID uuid.UUID, reason string) error {
	args := m.Called(ctx, tenantID, reason)
	return args.Error(0)
}

func newTestDomain() (*Domain, *MockRepository, *MockLedger, *MockEntitlementAPI) {
	repo := new(MockRepository)
	ledger := new(MockLedger)
	entitlement := new(MockEntitlementAPI)
	return NewBillingDomain(repo, ledger, entitlement, zap.NewNop()), repo, ledger, entitlement
}

// --- Tests ---

func TestDomain_SelectPlan(t *testing.T) {
	tenantID := uuid.New()

	t.Run("creates trial subscription", func(t *testing.T) {
		domain, repo, _, _ := newTestDomain()
		repo.On("GetPlan", mock.Anything, "starter").Return(trialPlan(), nil)
		repo.On("GetCurrentSubscription", mock.Anything, tenantID).Return(nil, ErrSubscriptionNotFound)
		repo.On("CreateSubscription", mock.Anything, mock.Anything).Return(nil)

		sub, err := domain.SelectPlan(context.Background(), tenantID, "starter")
		require.NoError(t, err)
		assert.Equal(t, StatusTrial, sub.Status)
		repo.AssertExpectations(t)
	})

	t.Run("rejects second live subscription", func(t *testing.T) {
		domain, repo, _, _ := newTestDomain()
		repo.On("GetPlan", mock.Anything, "standard").Return(monthlyPlan(), nil)
		repo.On("GetCurrentSubscription", mock.Anything, tenantID).Return(paidSubscription(20, 0), nil)

		_, err := domain.SelectPlan(context.Background(), tenantID, "standard")
		assert.ErrorIs(t, err, ErrSubscriptionExists)
	})

	t.Run("rejects inactive plan", func(t *testing.T) {
		domain, repo, _, _ := newTestDomain()
		inactive := monthlyPlan()
		inactive.Active = false
		repo.On("GetPlan", mock.Anything, "standard").Return(inactive, nil)

		_, err := domain.SelectPlan(context.Background(), tenantID, "standard")
		assert.ErrorIs(t, err, ErrPlanNotActive)
	})

	t.Run("revives expired record for same plan", func(t *testing.T) {
		domain, repo, _, _ := newTestDomain()
		expired := paidSubscription(20, 5)
		expired.Status = StatusExpired
		repo.On("GetPlan", mock.Anything, "standard").Return(monthlyPlan(), nil)
		repo.On("GetCurrentSubscription", mock.Anything, tenantID).Return(expired, nil)
		repo.On("UpdateSubscription", mock.Anything, expired, int64(1)).Return(nil)

		sub, err := domain.SelectPlan(context.Background(), tenantID, "standard")
		require.NoError(t, err)
		assert.Equal(t, StatusActive, sub.Status)
		assert.Equal(t, expired.ID, sub.ID)
	})
}

func TestDomain_CheckCapacity(t *testing.T) {
	tenantID := uuid.New()

	t.Run("onboarding tenant is unlimited", func(t *testing.T) {
		domain, repo, _, _ := newTestDomain()
		repo.On("GetCurrentSubscription", mock.Anything, tenantID).Return(nil, ErrSubscriptionNotFound)

		result, quote, err := domain.CheckCapacity(context.Background(), tenantID, KindBed, 500, "")
		require.NoError(t, err)
		assert.True(t, result.CanAdd)
		assert.True(t, result.Unlimited())
		assert.Nil(t, quote)
	})

	t.Run("refreshes usage from ledger", func(t *testing.T) {
		domain, repo, ledger, _ := newTestDomain()
		sub := paidSubscription(20, 0) // stale snapshot
		sub.TenantID = tenantID
		repo.On("GetCurrentSubscription", mock.Anything, tenantID).Return(sub, nil)
		ledger.On("GetUsage", mock.Anything, tenantID).Return(&Usage{BedsUsed: 18}, nil)

		result, quote, err := domain.CheckCapacity(context.Background(), tenantID, KindBed, 5, TierPaid)
		require.NoError(t, err)
		assert.False(t, result.CanAdd)
		assert.Equal(t, int64(18), result.Used)
		assert.Equal(t, int64(3), result.Overage)

		// Denials come with a quote covering the requested total of 23 beds.
		require.NotNil(t, quote)
		assert.Equal(t, 13, quote.ExtraBeds)
		assert.Equal(t, 13*150.0, quote.TopUpCost)
	})

	t.Run("falls back to snapshot when ledger fails", func(t *testing.T) {
		domain, repo, ledger, _ := newTestDomain()
		sub := paidSubscription(20, 12)
		sub.TenantID = tenantID
		repo.On("GetCurrentSubscription", mock.Anything, tenantID).Return(sub, nil)
		ledger.On("GetUsage", mock.Anything, tenantID).Return(nil, context.DeadlineExceeded)

		result, _, err := domain.CheckCapacity(context.Background(), tenantID, KindBed, 5, TierPaid)
		require.NoError(t, err)
		assert.Equal(t, int64(12), result.Used)
	})
}

func TestDomain_ConfirmTopUp(t *testing.T) {
	tenantID := uuid.New()

	t.Run("submits entitlement increase", func(t *testing.T) {
		domain, repo, _, entitlement := newTestDomain()
		sub := paidSubscription(20, 18)
		sub.TenantID = tenantID
		repo.On("GetCurrentSubscription", mock.Anything, tenantID).Return(sub, nil)
		entitlement.On("IncreaseEntitlement", mock.Anything, tenantID, &EntitlementIncrease{
			AdditionalBeds: 5,
			NewMaxBeds:     25,
		}).Return(nil)
		repo.On("UpdateSubscription", mock.Anything, sub, int64(1)).Return(nil)

		out, err := domain.ConfirmTopUp(context.Background(), tenantID, KindBed, 5)
		require.NoError(t, err)
		assert.Equal(t, int64(25), out.TotalBeds)
		entitlement.AssertExpectations(t)
	})

	t.Run("respects plan bed cap", func(t *testing.T) {
		domain, repo, _, _ := newTestDomain()
		sub := paidSubscription(20, 0)
		sub.TenantID = tenantID
		bedCap := 22
		sub.Plan.MaxBedsAllowed = &bedCap
		repo.On("GetCurrentSubscription", mock.Anything, tenantID).Return(sub, nil)

		_, err := domain.ConfirmTopUp(context.Background(), tenantID, KindBed, 5)
		assert.ErrorIs(t, err, ErrInvalidArgument)
	})

	t.Run("rejects branch top-up on single-branch plan", func(t *testing.T) {
		domain, repo, _, _ := newTestDomain()
		sub := paidSubscription(20, 0)
		sub.TenantID = tenantID
		repo.On("GetCurrentSubscription", mock.Anything, tenantID).Return(sub, nil)

		_, err := domain.ConfirmTopUp(context.Background(), tenantID, KindBranch, 1)
		assert.ErrorIs(t, err, ErrInvalidArgument)
	})

	t.Run("does not raise entitlement when the provider call fails", func(t *testing.T) {
		domain, repo, _, entitlement := newTestDomain()
		sub := paidSubscription(20, 0)
		sub.TenantID = tenantID
		repo.On("GetCurrentSubscription", mock.Anything, tenantID).Return(sub, nil)
		entitlement.On("IncreaseEntitlement", mock.Anything, tenantID, mock.Anything).Return(assert.AnError)

		_, err := domain.ConfirmTopUp(context.Background(), tenantID, KindBed, 5)
		assert.Error(t, err)
		assert.Equal(t, int64(20), sub.TotalBeds)
	})
}

func TestDomain_Cancel(t *testing.T) {
	tenantID := uuid.New()

	t.Run("cancels and submits reason", func(t *testing.T) {
		domain, repo, _, entitlement := newTestDomain()
		sub := paidSubscription(20, 0)
		sub.TenantID = tenantID
		repo.On("GetCurrentSubscription", mock.Anything, tenantID).Return(sub, nil)
		entitlement.On("SubmitCancellation", mock.Anything, tenantID, "closing down").Return(nil)
		repo.On("UpdateSubscription", mock.Anything, sub, int64(1)).Return(nil)

		out, err := domain.Cancel(context.Background(), tenantID, "closing down")
		require.NoError(t, err)
		assert.Equal(t, StatusCancelled, out.Status)
		entitlement.AssertExpectations(t)
	})

	t.Run("second cancel returns the record without side effects", func(t *testing.T) {
		// A cancelled record is invisible to the live lookup, so a retried
		// cancel sees not-found and must fall back to history.
		domain, repo, _, entitlement := newTestDomain()
		sub := paidSubscription(20, 0)
		sub.TenantID = tenantID
		require.NoError(t, sub.Cancel(time.Now().UTC(), "done"))
		repo.On("GetCurrentSubscription", mock.Anything, tenantID).Return(nil, ErrSubscriptionNotFound)
		repo.On("ListSubscriptionHistory", mock.Anything, tenantID).Return([]*Subscription{sub}, nil)

		out, err := domain.Cancel(context.Background(), tenantID, "again")
		require.NoError(t, err)
		assert.Equal(t, "done", out.CancellationReason)
		entitlement.AssertNotCalled(t, "SubmitCancellation", mock.Anything, mock.Anything, mock.Anything)
		repo.AssertNotCalled(t, "UpdateSubscription", mock.Anything, mock.Anything, mock.Anything)
	})

	t.Run("tenant with no record at all gets not-found", func(t *testing.T) {
		domain, repo, _, _ := newTestDomain()
		repo.On("GetCurrentSubscription", mock.Anything, tenantID).Return(nil, ErrSubscriptionNotFound)
		repo.On("ListSubscriptionHistory", mock.Anything, tenantID).Return([]*Subscription{}, nil)

		_, err := domain.Cancel(context.Background(), tenantID, "x")
		assert.ErrorIs(t, err, ErrSubscriptionNotFound)
	})

	t.Run("version conflict surfaces and the retry resubmits", func(t *testing.T) {
		domain, repo, _, entitlement := newTestDomain()
		sub := paidSubscription(20, 0)
		sub.TenantID = tenantID
		repo.On("GetCurrentSubscription", mock.Anything, tenantID).Return(sub, nil).Once()
		entitlement.On("SubmitCancellation", mock.Anything, tenantID, "closing down").Return(nil).Twice()
		repo.On("UpdateSubscription", mock.Anything, sub, int64(1)).Return(ErrConcurrentModification).Once()

		_, err := domain.Cancel(context.Background(), tenantID, "closing down")
		assert.ErrorIs(t, err, ErrConcurrentModification)

		// The conflicting write did not cancel, so the retry reads the fresh
		// version and the provider absorbs the duplicate submission.
		fresh := paidSubscription(20, 0)
		fresh.TenantID = tenantID
		fresh.Version = 2
		repo.On("GetCurrentSubscription", mock.Anything, tenantID).Return(fresh, nil).Once()
		repo.On("UpdateSubscription", mock.Anything, fresh, int64(2)).Return(nil).Once()

		out, err := domain.Cancel(context.Background(), tenantID, "closing down")
		require.NoError(t, err)
		assert.Equal(t, StatusCancelled, out.Status)
		entitlement.AssertExpectations(t)
	})
}

func TestDomain_SwitchPlan(t *testing.T) {
	tenantID := uuid.New()

	bigPlan := func() *Plan {
		plan := monthlyPlan()
		plan.ID = "premium"
		plan.BasePrice = 3000
		plan.BaseBedCount = 50
		return plan
	}

	smallPlan := func() *Plan {
		plan := monthlyPlan()
		plan.ID = "lite"
		plan.BasePrice = 400
		plan.BaseBedCount = 5
		return plan
	}

	t.Run("upgrade tags the old record", func(t *testing.T) {
		domain, repo, ledger, _ := newTestDomain()
		current := paidSubscription(20, 15)
		current.TenantID = tenantID
		repo.On("GetPlan", mock.Anything, "premium").Return(bigPlan(), nil)
		repo.On("GetCurrentSubscription", mock.Anything, tenantID).Return(current, nil)
		ledger.On("GetUsage", mock.Anything, tenantID).Return(&Usage{BedsUsed: 15, BranchesUsed: 1}, nil)
		repo.On("SwitchSubscription", mock.Anything, current, int64(1), mock.Anything).Return(nil)

		next, err := domain.SwitchPlan(context.Background(), tenantID, "premium", false)
		require.NoError(t, err)

		assert.Equal(t, StatusUpgraded, current.Status)
		assert.Equal(t, StatusActive, next.Status)
		assert.Equal(t, "premium", next.PlanID)
		assert.Equal(t, int64(50), next.TotalBeds)
		assert.Equal(t, int64(15), next.Usage.BedsUsed)
	})

	t.Run("downgrade below usage is rejected", func(t *testing.T) {
		domain, repo, ledger, _ := newTestDomain()
		current := paidSubscription(20, 15)
		current.TenantID = tenantID
		repo.On("GetPlan", mock.Anything, "lite").Return(smallPlan(), nil)
		repo.On("GetCurrentSubscription", mock.Anything, tenantID).Return(current, nil)
		ledger.On("GetUsage", mock.Anything, tenantID).Return(&Usage{BedsUsed: 15, BranchesUsed: 1}, nil)

		_, err := domain.SwitchPlan(context.Background(), tenantID, "lite", false)
		assert.ErrorIs(t, err, ErrCapacityViolation)
		assert.Equal(t, StatusActive, current.Status)
	})

	t.Run("forced downgrade tops up atomically", func(t *testing.T) {
		domain, repo, ledger, _ := newTestDomain()
		current := paidSubscription(20, 15)
		current.TenantID = tenantID
		repo.On("GetPlan", mock.Anything, "lite").Return(smallPlan(), nil)
		repo.On("GetCurrentSubscription", mock.Anything, tenantID).Return(current, nil)
		ledger.On("GetUsage", mock.Anything, tenantID).Return(&Usage{BedsUsed: 15, BranchesUsed: 1}, nil)
		repo.On("SwitchSubscription", mock.Anything, current, int64(1), mock.Anything).Return(nil)

		next, err := domain.SwitchPlan(context.Background(), tenantID, "lite", true)
		require.NoError(t, err)

		assert.Equal(t, StatusDowngraded, current.Status)
		assert.Equal(t, int64(15), next.TotalBeds) // raised to cover usage
	})

	t.Run("persist failure errors without separate writes", func(t *testing.T) {
		// Supersede and create must ride a single repository call so a
		// failed switch cannot strand the tenant on a tagged record.
		domain, repo, ledger, _ := newTestDomain()
		current := paidSubscription(20, 15)
		current.TenantID = tenantID
		repo.On("GetPlan", mock.Anything, "premium").Return(bigPlan(), nil)
		repo.On("GetCurrentSubscription", mock.Anything, tenantID).Return(current, nil)
		ledger.On("GetUsage", mock.Anything, tenantID).Return(&Usage{BedsUsed: 15, BranchesUsed: 1}, nil)
		repo.On("SwitchSubscription", mock.Anything, current, int64(1), mock.Anything).Return(assert.AnError)

		_, err := domain.SwitchPlan(context.Background(), tenantID, "premium", false)
		require.Error(t, err)
		repo.AssertNotCalled(t, "UpdateSubscription", mock.Anything, mock.Anything, mock.Anything)
		repo.AssertNotCalled(t, "CreateSubscription", mock.Anything, mock.Anything)
	})

	t.Run("switching to the same plan is a no-op", func(t *testing.T) {
		domain, repo, _, _ := newTestDomain()
		current := paidSubscription(20, 15)
		current.TenantID = tenantID
		repo.On("GetPlan", mock.Anything, "standard").Return(monthlyPlan(), nil)
		repo.On("GetCurrentSubscription", mock.Anything, tenantID).Return(current, nil)

		out, err := domain.SwitchPlan(context.Background(), tenantID, "standard", false)
		require.NoError(t, err)
		assert.Equal(t, current, out)
	})
}

func TestDomain_RunExpirySweep(t *testing.T) {
	now := time.Date(2026, 4, 1, 3, 0, 0, 0, time.UTC)

	t.Run("expires due records", func(t *testing.T) {
		domain, repo, _, _ := newTestDomain()

		dueTrial, _ := NewSubscription(uuid.New(), trialPlan(), now.AddDate(0, 0, -30))
		dueActive, _ := NewSubscription(uuid.New(), monthlyPlan(), now.AddDate(0, -2, 0))

		repo.On("ListExpiryDue", mock.Anything, now, 500).Return([]*Subscription{dueTrial, dueActive}, nil)
		repo.On("UpdateSubscription", mock.Anything, mock.Anything, int64(1)).Return(nil)

		expired, err := domain.RunExpirySweep(context.Background(), now)
		require.NoError(t, err)
		assert.Equal(t, 2, expired)
		assert.Equal(t, StatusExpired, dueTrial.Status)
		assert.Equal(t, StatusExpired, dueActive.Status)
	})

	t.Run("skips records taken by a concurrent writer", func(t *testing.T) {
		domain, repo, _, _ := newTestDomain()
		due, _ := NewSubscription(uuid.New(), trialPlan(), now.AddDate(0, 0, -30))
		repo.On("ListExpiryDue", mock.Anything, now, 500).Return([]*Subscription{due}, nil)
		repo.On("UpdateSubscription", mock.Anything, due, int64(1)).Return(ErrConcurrentModification)

		expired, err := domain.RunExpirySweep(context.Background(), now)
		require.NoError(t, err)
		assert.Zero(t, expired)
	})
}

func TestDomain_RecordUsageDelta(t *testing.T) {
	tenantID := uuid.New()

	t.Run("forwards to the ledger", func(t *testing.T) {
		domain, _, ledger, _ := newTestDomain()
		ledger.On("RecordDelta", mock.Anything, tenantID, KindBed, int64(3)).Return(nil)

		require.NoError(t, domain.RecordUsageDelta(context.Background(), tenantID, KindBed, 3))
		ledger.AssertExpectations(t)
	})

	t.Run("zero delta is a no-op", func(t *testing.T) {
		domain, _, ledger, _ := newTestDomain()
		require.NoError(t, domain.RecordUsageDelta(context.Background(), tenantID, KindBed, 0))
		ledger.AssertNotCalled(t, "RecordDelta", mock.Anything, mock.Anything, mock.Anything, mock.Anything)
	})

	t.Run("rejects unknown kind", func(t *testing.T) {
		domain, _, _, _ := newTestDomain()
		err := domain.RecordUsageDelta(context.Background(), tenantID, "room", 1)
		assert.ErrorIs(t, err, ErrInvalidArgument)
	})
}

func TestDomain_CheckBulkUpload(t *testing.T) {
	tenantID := uuid.New()

	domain, repo, _, _ := newTestDomain()
	repo.On("GetCurrentSubscription", mock.Anything, tenantID).Return(nil, ErrSubscriptionNotFound)

	out, err := domain.CheckBulkUpload(context.Background(), tenantID, 40)
	require.NoError(t, err)
	assert.Equal(t, TierTrial, out.Tier)
	assert.True(t, out.Allowed)
}
