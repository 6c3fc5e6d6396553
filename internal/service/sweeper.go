package service

import (
	"context"
	"log"
	"time"
)

// Sweeper periodically flips active offers whose expiry date has passed to
// inactive.  It is a convergence mechanism, not a gate: the reservation
// guard already refuses expired offers on its own, so a late or skipped
// sweep can never cause an oversell, only a stale listing.
type Sweeper struct {
	inv      Inventory
	interval time.Duration
	now      func() time.Time
}

// NewSweeper builds a Sweeper that runs every interval.
func NewSweeper(inv Inventory, interval time.Duration) *Sweeper {
	return &Sweeper{inv: inv, interval: interval, now: time.Now}
}

// RunOnce performs a single sweep pass and returns how many offers it
// deactivated.  Running it again immediately deactivates nothing.
func (s *Sweeper) RunOnce(ctx context.Context) (int64, error) {
	return s.inv.DeactivateExpired(ctx, s.now())
}

// Start runs sweep passes until ctx is cancelled.  A failing pass is logged
// and retried on the next tick; offers it missed stay guarded by the
// reserve-time expiry check in the meantime.
func (s *Sweeper) Start(ctx context.Context) {
	ticker := time.NewTicker(s.interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			n, err := s.RunOnce(ctx)
			if err != nil {
				log.Printf("[SWEEP] pass failed: %v", err)
				continue
			}
			if n > 0 {
				log.Printf("[SWEEP] deactivated %d expired offers", n)
			}
		}
	}
}
