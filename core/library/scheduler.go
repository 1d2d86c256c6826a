package library

import (
	"context"
	"fmt"
	"time"
)

// Scheduler runs the notifications pipeline at a fixed interval: once on start, then on every tick.
type Scheduler struct {
	svc      *Service
	interval time.Duration
	done     chan struct{}
}

func NewScheduler(svc *Service, interval time.Duration) *Scheduler {
	return &Scheduler{svc: svc, interval: interval, done: make(chan struct{})}
}

// Start runs the schedule in the background until ctx is done. Done() is closed afterwards.
// A run still in progress when ctx is done is canceled along with it.
func (s *Scheduler) Start(ctx context.Context) {
	go func() {
		defer close(s.done)

		ticker := time.NewTicker(s.interval)
		defer ticker.Stop()

		s.runOnce(ctx)
		for {
			select {
			case <-ctx.Done():
				return
			case <-ticker.C:
				s.runOnce(ctx)
			}
		}
	}()
}

func (s *Scheduler) Done() <-chan struct{} { return s.done }

func (s *Scheduler) runOnce(ctx context.Context) {
	if ctx.Err() != nil {
		return
	}
	if _, err := s.svc.Run(ctx, RunOptions{}); err != nil {
		s.svc.logger.Error(fmt.Sprintf("scheduled library notifications run: %v", err), err)
	}
}
