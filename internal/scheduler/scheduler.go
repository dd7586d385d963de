// Package scheduler triggers matching passes on a fixed interval. It carries
// no coordination state of its own: overlapping or redundant passes are safe
// because the store-level drop claim makes the second writer a no-op.
package scheduler

import (
	"context"
	"log"
	"time"

	"drop-match-api/internal/models"
	"drop-match-api/internal/service"
)

// Scheduler runs the matching pass every interval until stopped.
type Scheduler struct {
	svc      *service.Service
	interval time.Duration
	ticker   *time.Ticker
	stop     chan struct{}
	done     chan struct{}
}

// New creates a scheduler. Start must be called to begin ticking.
func New(svc *service.Service, interval time.Duration) *Scheduler {
	return &Scheduler{
		svc:      svc,
		interval: interval,
		stop:     make(chan struct{}),
		done:     make(chan struct{}),
	}
}

// Start begins the periodic matching loop in a background goroutine.
func (s *Scheduler) Start() {
	s.ticker = time.NewTicker(s.interval)

	go func() {
		defer close(s.done)
		for {
			select {
			case <-s.ticker.C:
				s.runOnce()
			case <-s.stop:
				return
			}
		}
	}()

	log.Printf("scheduler: matching every %s", s.interval)
}

// Stop halts the loop and waits for an in-flight pass to finish.
func (s *Scheduler) Stop() {
	s.ticker.Stop()
	close(s.stop)
	<-s.done
}

// runOnce executes a single pass. Failures are logged and swallowed; nobody
// is waiting synchronously on a timer tick, and the next tick retries.
func (s *Scheduler) runOnce() models.RunSummary {
	ctx, cancel := context.WithTimeout(context.Background(), s.interval)
	defer cancel()

	summary, err := s.svc.RunMatching(ctx, time.Now().UTC())
	if err != nil {
		log.Printf("scheduler: matching pass failed: %v", err)
		return summary
	}

	if summary.DropsScanned > 0 {
		log.Printf("scheduler: scanned %d drops, created %d matches, %d unmatched, %d errors",
			summary.DropsScanned, summary.MatchesCreated, summary.Unmatched, len(summary.Errors))
	}
	return summary
}
