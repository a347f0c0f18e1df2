package services

import (
	"context"
	"log"
	"time"

	"github.com/paulexconde/signalq/internal/pkg/workerpool"
)

// Sweeper periodically removes sessions whose validity window ended longer
// than the retention period ago; their answers go with them via cascade.
// Sessions inside the retention window are untouched, so already-recorded
// answers stay retrievable per the usual retrieval rule.
type Sweeper struct {
	store     Store
	pool      *workerpool.WorkerPool
	interval  time.Duration
	retention time.Duration
}

// NewSweeper instantiates a Sweeper scheduling one sweep per interval.
func NewSweeper(store Store, pool *workerpool.WorkerPool, interval, retention time.Duration) *Sweeper {
	return &Sweeper{
		store:     store,
		pool:      pool,
		interval:  interval,
		retention: retention,
	}
}

// Run blocks until ctx is canceled, submitting sweep jobs to the pool.
func (s *Sweeper) Run(ctx context.Context) {
	ticker := time.NewTicker(s.interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			log.Println("Sweeper received shutdown signal")
			return
		case <-ticker.C:
			s.pool.Submit(workerpool.WithRetry(3, time.Second, func() error {
				return s.sweep(ctx)
			}))
		}
	}
}

func (s *Sweeper) sweep(ctx context.Context) error {
	cutoff := time.Now().Add(-s.retention)

	deleted, err := s.store.DeleteSessionsExpiredBefore(ctx, cutoff)
	if err != nil {
		return err
	}
	if deleted > 0 {
		log.Printf("Sweeper removed %d sessions expired before %s", deleted, cutoff.Format(time.RFC3339))
	}
	return nil
}
