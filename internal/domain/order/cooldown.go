package order

import (
	"context"
	"time"

	"github.com/dataplug/dataplug-api/internal/pkg/metrics"
)

// CooldownGuard rejects a new data-bundle order for a beneficiary phone
// ordered within the window. The supply provider penalizes rapid repeat
// top-ups to the same number.
type CooldownGuard struct {
	repo    *Repository
	window  time.Duration
	now     func() time.Time
	metrics *metrics.Metrics
}

func NewCooldownGuard(repo *Repository, window time.Duration, m *metrics.Metrics) *CooldownGuard {
	return &CooldownGuard{repo: repo, window: window, now: time.Now, metrics: m}
}

// Window is the configured cooldown duration; zero disables the guard.
func (g *CooldownGuard) Window() time.Duration {
	if g == nil {
		return 0
	}
	return g.window
}

// Check looks up the most recent data-bundle order for the normalized
// phone. Must run for every unique beneficiary before any debit.
func (g *CooldownGuard) Check(ctx context.Context, phone string) (bool, time.Duration, error) {
	if g.window <= 0 {
		return true, 0, nil
	}

	last, found, err := g.repo.LastBundleOrderTime(ctx, phone)
	if err != nil {
		return false, 0, err
	}
	if !found {
		return true, 0, nil
	}

	elapsed := g.now().Sub(last)
	if elapsed >= g.window {
		return true, 0, nil
	}

	if g.metrics != nil {
		g.metrics.CooldownRejectionsTotal.Inc()
	}
	return false, g.window - elapsed, nil
}
