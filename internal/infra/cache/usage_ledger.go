package cache

import (
	"context"
	"errors"
	"fmt"
	"strconv"

	"github.com/google/uuid"
	"github.com/redis/go-redis/v9"
	"github.com/steyzi/server/internal/domain/billing"
	"github.com/steyzi/server/internal/shared/metrics"
)

const (
	bedsKeyPrefix     = "usage:beds:"
	branchesKeyPrefix = "usage:branches:"
)

// ErrNoCounters is returned when a tenant has no counters in the ledger yet.
// Callers fall back to the persisted usage snapshot.
var ErrNoCounters = errors.New("no usage counters for tenant")

// UsageLedger keeps per-tenant consumption counters in Redis. Property CRUD
// services record deltas after their own writes succeed; the quota layer reads
// the counters before every capacity decision. Counters have no TTL, they live
// as long as the tenant does.
type UsageLedger struct {
	client  redis.UniversalClient
	metrics *metrics.Metrics
}

// NewUsageLedger creates a Redis-backed usage ledger.
func NewUsageLedger(client redis.UniversalClient, m *metrics.Metrics) *UsageLedger {
	return &UsageLedger{client: client, metrics: m}
}

func bedsKey(tenantID uuid.UUID) string {
	return bedsKeyPrefix + tenantID.String()
}

func branchesKey(tenantID uuid.UUID) string {
	return branchesKeyPrefix + tenantID.String()
}

// GetUsage returns the tenant's current counters. When neither counter exists
// yet it returns ErrNoCounters rather than claiming zero usage, since the
// ledger may simply not have been primed after a cache loss.
func (l *UsageLedger) GetUsage(ctx context.Context, tenantID uuid.UUID) (*billing.Usage, error) {
	vals, err := l.client.MGet(ctx, bedsKey(tenantID), branchesKey(tenantID)).Result()
	if err != nil {
		return nil, fmt.Errorf("get usage counters: %w", err)
	}
	if vals[0] == nil && vals[1] == nil {
		l.metrics.RecordCacheMiss("usage")
		return nil, ErrNoCounters
	}
	l.metrics.RecordCacheHit("usage")

	usage := &billing.Usage{}
	if usage.BedsUsed, err = parseCounter(vals[0]); err != nil {
		return nil, fmt.Errorf("beds counter: %w", err)
	}
	if usage.BranchesUsed, err = parseCounter(vals[1]); err != nil {
		return nil, fmt.Errorf("branches counter: %w", err)
	}
	return usage, nil
}

// RecordDelta adjusts a counter by delta, which may be negative. The counter
// is clamped at zero so that replayed decrements cannot drive it negative.
func (l *UsageLedger) RecordDelta(ctx context.Context, tenantID uuid.UUID, kind billing.CapacityKind, delta int64) error {
	key := bedsKey(tenantID)
	if kind == billing.KindBranch {
		key = branchesKey(tenantID)
	}

	val, err := l.client.IncrBy(ctx, key, delta).Result()
	if err != nil {
		return fmt.Errorf("record usage delta: %w", err)
	}
	if val < 0 {
		if err := l.client.Set(ctx, key, 0, 0).Err(); err != nil {
			return fmt.Errorf("clamp usage counter: %w", err)
		}
	}
	return nil
}

// Prime seeds the counters from a snapshot, only where no counter exists.
// Used on subscription load after a cache loss.
func (l *UsageLedger) Prime(ctx context.Context, tenantID uuid.UUID, usage billing.Usage) error {
	if err := l.client.SetNX(ctx, bedsKey(tenantID), usage.BedsUsed, 0).Err(); err != nil {
		return fmt.Errorf("prime beds counter: %w", err)
	}
	if err := l.client.SetNX(ctx, branchesKey(tenantID), usage.BranchesUsed, 0).Err(); err != nil {
		return fmt.Errorf("prime branches counter: %w", err)
	}
	return nil
}

func parseCounter(val any) (int64, error) {
	if val == nil {
		return 0, nil
	}
	s, ok := val.(string)
	if !ok {
		return 0, fmt.Errorf("unexpected counter type %T", val)
	}
	n, err := strconv.ParseInt(s, 10, 64)
	if err != nil {
		return 0, err
	}
	if n < 0 {
		n = 0
	}
	return n, nil
}

// Ensure UsageLedger implements billing.UsageLedger.
var _ billing.UsageLedger = (*UsageLedger)(nil)
