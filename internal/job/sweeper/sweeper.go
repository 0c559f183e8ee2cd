package sweeper

import (
	"context"
	"time"

	"github.com/robfig/cron/v3"
	"github.com/steyzi/server/internal/domain/billing"
	"github.com/steyzi/server/internal/shared/config"
	"github.com/steyzi/server/internal/shared/metrics"
	"go.uber.org/zap"
)

// Sweeper periodically expires subscriptions whose trial or billing period
// has lapsed. The sweep is idempotent and safe to run on several instances
// at once: optimistic locking makes concurrent sweeps skip each other's rows.
type Sweeper struct {
	domain  *billing.Domain
	cron    *cron.Cron
	metrics *metrics.Metrics
	logger  *zap.Logger

	schedule string
}

// New creates a sweeper on the configured cron schedule.
func New(domain *billing.Domain, cfg *config.SweepConfig, m *metrics.Metrics, logger *zap.Logger) *Sweeper {
	return &Sweeper{
		domain:   domain,
		cron:     cron.New(),
		metrics:  m,
		logger:   logger,
		schedule: cfg.Schedule,
	}
}

// Start registers the sweep job and starts the scheduler.
func (s *Sweeper) Start() error {
	_, err := s.cron.AddFunc(s.schedule, s.runOnce)
	if err != nil {
		return err
	}
	s.cron.Start()
	s.logger.Info("expiry sweeper started", zap.String("schedule", s.schedule))
	return nil
}

// Stop stops the scheduler and waits for a running sweep to finish.
func (s *Sweeper) Stop() {
	ctx := s.cron.Stop()
	<-ctx.Done()
	s.logger.Info("expiry sweeper stopped")
}

func (s *Sweeper) runOnce() {
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Minute)
	defer cancel()

	start := time.Now()
	expired, err := s.domain.RunExpirySweep(ctx, start.UTC())
	if err != nil {
		s.logger.Error("expiry sweep failed", zap.Error(err))
		return
	}

	s.metrics.RecordExpirySweep(expired, time.Since(start))
	if expired > 0 {
		s.logger.Info("expiry sweep completed",
			zap.Int("expired", expired),
			zap.Duration("duration", time.Since(start)),
		)
	}
}
