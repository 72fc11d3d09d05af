package recording

import (
	"context"
	"log"
	"time"
)

// Sweeper drives CleanupStale on a fixed interval for deployments without
// an external cron. It stops when its context is cancelled.
type Sweeper struct {
	svc             *Service
	interval        time.Duration
	inactiveMinutes int
}

func NewSweeper(svc *Service, interval time.Duration, inactiveMinutes int) *Sweeper {
	return &Sweeper{svc: svc, interval: interval, inactiveMinutes: inactiveMinutes}
}

func (w *Sweeper) Run(ctx context.Context) {
	log.Printf("staleness sweeper running every %s (threshold %dm)", w.interval, w.inactiveMinutes)
	ticker := time.NewTicker(w.interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			log.Printf("staleness sweeper stopped")
			return
		case <-ticker.C:
			result, err := w.svc.CleanupStale(ctx, w.inactiveMinutes)
			if err != nil {
				log.Printf("staleness sweep failed: %v", err)
				continue
			}
			if result.AbandonedCount > 0 {
				log.Printf("staleness sweep abandoned %d session(s): %v", result.AbandonedCount, result.SessionIDs)
			}
		}
	}
}
