package repository

import (
	"context"
	"log/slog"
	"time"
)

// sweepTimeout bounds a single DeleteExpired pass.
const sweepTimeout = 30 * time.Second

// Sweeper periodically removes expired records from stores without native
// expiry. Redis reclaims keys through TTLs on its own; Postgres and memory
// stores need this pass.
type Sweeper struct {
	store    Repository
	interval time.Duration
	logger   *slog.Logger
	now      func() time.Time
}

// NewSweeper returns a Sweeper that calls DeleteExpired on store every
// interval. logger may be nil.
func NewSweeper(store Repository, interval time.Duration, logger *slog.Logger) *Sweeper {
	if logger == nil {
		logger = slog.Default()
	}
	return &Sweeper{
		store:    store,
		interval: interval,
		logger:   logger,
		now:      func() time.Time { return time.Now().UTC() },
	}
}

// Run sweeps on each tick until ctx is cancelled. Sweep failures are logged
// and the next tick retries; a failing store never stops the loop.
func (s *Sweeper) Run(ctx context.Context) {
	ticker := time.NewTicker(s.interval)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			s.sweep(ctx)
		}
	}
}

func (s *Sweeper) sweep(ctx context.Context) {
	sctx, cancel := context.WithTimeout(ctx, sweepTimeout)
	defer cancel()
	n, err := s.store.DeleteExpired(sctx, s.now())
	if err != nil {
		s.logger.Error("refresh token sweep failed", "err", err)
		return
	}
	if n > 0 {
		s.logger.Info("swept expired refresh tokens", "removed", n)
	}
}
