// AngelaMos | 2026
// sweeper.go

package entitlement

import (
	"context"
	"log/slog"
	"time"
)

type ExpiredStore interface {
	DowngradeExpired(ctx context.Context, now time.Time) (int64, error)
}

// Sweeper periodically downgrades every lapsed subscription in one statement.
type Sweeper struct {
	store    ExpiredStore
	interval time.Duration
	now      func() time.Time
	logger   *slog.Logger
}

func NewSweeper(
	store ExpiredStore,
	interval time.Duration,
	logger *slog.Logger,
) *Sweeper {
	return &Sweeper{
		store:    store,
		interval: interval,
		now:      time.Now,
		logger:   logger,
	}
}

func (s *Sweeper) Run(ctx context.Context) {
	if s.interval <= 0 {
		return
	}

	ticker := time.NewTicker(s.interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			//nolint:errcheck // logged inside SweepOnce
			_, _ = s.SweepOnce(ctx)
		}
	}
}

func (s *Sweeper) SweepOnce(ctx context.Context) (int64, error) {
	n, err := s.store.DowngradeExpired(ctx, s.now())
	if err != nil {
		s.logger.Warn("subscription sweep failed", "error", err)
		return 0, err
	}

	if n > 0 {
		s.logger.Info("downgraded expired subscriptions", "count", n)
	}

	return n, nil
}
