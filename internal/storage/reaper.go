package storage

import (
	"context"
	"time"

	"couplesync/backend/internal/logging"
	"couplesync/backend/internal/metrics"
)

// LeaseReaper periodically enforces lease expiry. Every client runs one; the
// claim in Reap keeps concurrent reapers from double-firing.
type LeaseReaper struct {
	Store    Reaper
	Interval time.Duration
}

// Serve runs until ctx is done. It satisfies suture.Service.
func (r *LeaseReaper) Serve(ctx context.Context) error {
	ticker := time.NewTicker(r.Interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-ticker.C:
			r.ReapOnce(ctx)
		}
	}
}

// ReapOnce runs a single pass and logs the outcome.
func (r *LeaseReaper) ReapOnce(ctx context.Context) int {
	n, err := r.Store.Reap(ctx)
	if err != nil {
		metrics.StoreErrors.WithLabelValues("reap").Inc()
		logging.Warn().Err(err).Msg("lease reap failed")
	}
	if n > 0 {
		metrics.LeasesReaped.Add(float64(n))
		logging.Info().Int("fired", n).Msg("expired leases reaped")
	}
	return n
}

func (r *LeaseReaper) String() string { return "lease-reaper" }
