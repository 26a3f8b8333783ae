package fulfillment

import (
	"context"
	"time"

	"github.com/rs/zerolog/log"

	"github.com/dataplug/dataplug-api/internal/domain/order"
	"github.com/dataplug/dataplug-api/internal/pkg/metrics"
)

// SweepStore lists sweep candidates and applies the cleanup flag.
type SweepStore interface {
	ListNonTerminalOlderThan(ctx context.Context, age time.Duration, limit int) ([]order.Order, error)
	MarkPermanentlyFailed(ctx context.Context, olderThan time.Duration) (int64, error)
}

// Reconciler is the per-order reconcile entry point (the Dispatcher).
type Reconciler interface {
	Reconcile(ctx context.Context, reference string) error
}

// Sweeper is the periodic reconciliation driver: re-polls stale in-flight
// orders and flags long-dead failures. Also runnable on demand through the
// cron endpoints.
type Sweeper struct {
	store        SweepStore
	reconciler   Reconciler
	interval     time.Duration
	minAge       time.Duration
	requestDelay time.Duration
	retention    time.Duration
	batchSize    int
	metrics      *metrics.Metrics
}

func NewSweeper(store SweepStore, reconciler Reconciler, interval, minAge, requestDelay, retention time.Duration, m *metrics.Metrics) *Sweeper {
	return &Sweeper{
		store:        store,
		reconciler:   reconciler,
		interval:     interval,
		minAge:       minAge,
		requestDelay: requestDelay,
		retention:    retention,
		batchSize:    100,
		metrics:      m,
	}
}

// Run loops until the context is cancelled. Interval <= 0 disables the
// internal ticker; the cron endpoints remain available.
func (s *Sweeper) Run(ctx context.Context) {
	if s.interval <= 0 {
		log.Info().Msg("internal sweep disabled")
		return
	}

	ticker := time.NewTicker(s.interval)
	defer ticker.Stop()

	log.Info().Dur("interval", s.interval).Msg("reconciliation sweep started")
	for {
		select {
		case <-ctx.Done():
			log.Info().Msg("reconciliation sweep stopped")
			return
		case <-ticker.C:
			if n, err := s.SweepStatuses(ctx); err != nil {
				log.Error().Err(err).Msg("status sweep failed")
			} else if n > 0 {
				log.Info().Int("orders", n).Msg("status sweep applied")
			}
			if n, err := s.CleanupFailed(ctx); err != nil {
				log.Error().Err(err).Msg("cleanup sweep failed")
			} else if n > 0 {
				log.Info().Int64("orders", n).Msg("orders marked permanently failed")
			}
		}
	}
}

// SweepStatuses re-polls every non-terminal paid order older than the
// minimum age. The inter-request delay keeps the provider from being
// hammered.
func (s *Sweeper) SweepStatuses(ctx context.Context) (int, error) {
	orders, err := s.store.ListNonTerminalOlderThan(ctx, s.minAge, s.batchSize)
	if err != nil {
		return 0, err
	}

	examined := 0
	for i, o := range orders {
		if i > 0 && s.requestDelay > 0 {
			select {
			case <-time.After(s.requestDelay):
			case <-ctx.Done():
				return examined, ctx.Err()
			}
		}
		if err := s.reconciler.Reconcile(ctx, o.Reference); err != nil {
			log.Warn().Err(err).Str("reference", o.Reference).Msg("sweep reconcile failed")
			continue
		}
		examined++
		if s.metrics != nil {
			s.metrics.SweepOrdersExaminedTotal.Inc()
		}
	}
	return examined, nil
}

// CleanupFailed flags orders stuck in delivery FAILED beyond the retention
// window. Bookkeeping only, not a retry.
func (s *Sweeper) CleanupFailed(ctx context.Context) (int64, error) {
	return s.store.MarkPermanentlyFailed(ctx, s.retention)
}
