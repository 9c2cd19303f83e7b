// Package scheduler drives the engine on a periodic cadence. The ticker is
// injectable so ticks are deterministically testable without wall-clock
// waits.
package scheduler

import (
	"context"
	"log/slog"
	"time"
)

// Ticker abstracts time.Ticker for tests.
type Ticker interface {
	C() <-chan time.Time
	Stop()
}

type realTicker struct {
	t *time.Ticker
}

func (r realTicker) C() <-chan time.Time { return r.t.C }
func (r realTicker) Stop()               { r.t.Stop() }

// NewTicker returns a Ticker backed by time.Ticker.
func NewTicker(d time.Duration) Ticker {
	return realTicker{t: time.NewTicker(d)}
}

// Scheduler runs a job once immediately and then on every tick until the
// context is cancelled.
type Scheduler struct {
	interval  time.Duration
	job       func(ctx context.Context)
	newTicker func(time.Duration) Ticker
}

// New creates a scheduler with the real clock.
func New(interval time.Duration, job func(ctx context.Context)) *Scheduler {
	return NewWithTicker(interval, job, NewTicker)
}

// NewWithTicker creates a scheduler with an injectable ticker factory for
// tests.
func NewWithTicker(interval time.Duration, job func(ctx context.Context), newTicker func(time.Duration) Ticker) *Scheduler {
	return &Scheduler{
		interval:  interval,
		job:       job,
		newTicker: newTicker,
	}
}

// Run blocks until ctx is cancelled. The job runs once on start, then once
// per interval. A slow job delays the next run; ticks never overlap within
// one scheduler.
func (s *Scheduler) Run(ctx context.Context) error {
	slog.Info("Starting evaluation scheduler", "interval", s.interval)

	// Run immediately on startup, matching the original deployment.
	s.job(ctx)

	ticker := s.newTicker(s.interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			slog.Info("Evaluation scheduler stopped")
			return nil
		case <-ticker.C():
			s.job(ctx)
		}
	}
}
