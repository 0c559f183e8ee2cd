package cache

import (
	"context"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/steyzi/server/internal/domain/billing"
	"go.uber.org/zap"
)

// SnapshotStore persists usage counters onto the tenant's subscription row.
type SnapshotStore interface {
	UpdateUsageSnapshot(ctx context.Context, tenantID uuid.UUID, usage billing.Usage) error
}

type snapshot struct {
	tenantID uuid.UUID
	usage    billing.Usage
}

// SyncingLedger wraps a UsageLedger and asynchronously writes counter changes
// through to the database snapshot. The snapshot is what the quota layer
// falls back to when Redis is unavailable, so it should lag the ledger by
// seconds, not days.
type SyncingLedger struct {
	inner  billing.UsageLedger
	store  SnapshotStore
	logger *zap.Logger
	buffer chan snapshot
	wg     sync.WaitGroup
	done   chan struct{}
}

// NewSyncingLedger creates a write-through wrapper around a ledger.
func NewSyncingLedger(inner billing.UsageLedger, store SnapshotStore, logger *zap.Logger, bufferSize int) *SyncingLedger {
	if bufferSize <= 0 {
		bufferSize = 1000
	}
	l := &SyncingLedger{
		inner:  inner,
		store:  store,
		logger: logger,
		buffer: make(chan snapshot, bufferSize),
		done:   make(chan struct{}),
	}
	l.start()
	return l
}

// GetUsage reads from the wrapped ledger.
func (l *SyncingLedger) GetUsage(ctx context.Context, tenantID uuid.UUID) (*billing.Usage, error) {
	return l.inner.GetUsage(ctx, tenantID)
}

// RecordDelta applies the delta to the wrapped ledger and queues the fresh
// counters for snapshot persistence. A full queue drops the snapshot write,
// never the counter update; the next delta re-queues current values.
func (l *SyncingLedger) RecordDelta(ctx context.Context, tenantID uuid.UUID, kind billing.CapacityKind, delta int64) error {
	if err := l.inner.RecordDelta(ctx, tenantID, kind, delta); err != nil {
		return err
	}

	usage, err := l.inner.GetUsage(ctx, tenantID)
	if err != nil {
		l.logger.Warn("skip snapshot sync, counters unreadable",
			zap.Error(err),
			zap.String("tenant_id", tenantID.String()),
		)
		return nil
	}

	select {
	case l.buffer <- snapshot{tenantID: tenantID, usage: *usage}:
	default:
		l.logger.Warn("snapshot sync buffer full, dropping write",
			zap.String("tenant_id", tenantID.String()),
		)
	}
	return nil
}

// Close stops the syncer and flushes queued snapshots.
func (l *SyncingLedger) Close() {
	close(l.done)
	l.wg.Wait()
}

func (l *SyncingLedger) start() {
	l.wg.Add(1)
	go func() {
		defer l.wg.Done()
		for {
			select {
			case s := <-l.buffer:
				l.persist(s)
			case <-l.done:
				// Flush remaining snapshots
				for {
					select {
					case s := <-l.buffer:
						l.persist(s)
					default:
						return
					}
				}
			}
		}
	}()
}

func (l *SyncingLedger) persist(s snapshot) {
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	if err := l.store.UpdateUsageSnapshot(ctx, s.tenantID, s.usage); err != nil {
		l.logger.Error("failed to persist usage snapshot",
			zap.Error(err),
			zap.String("tenant_id", s.tenantID.String()),
		)
	}
}

// Ensure SyncingLedger implements billing.UsageLedger.
var _ billing.UsageLedger = (*SyncingLedger)(nil)
