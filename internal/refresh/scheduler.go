// Package refresh drives periodic rebuilds of the services that serve
// archive-backed data.
package refresh

import (
	"context"
	"fmt"
	"sync/atomic"
	"time"

	"go.uber.org/multierr"
	"go.uber.org/zap"

	"github.com/ciscoinsights/device-insights/internal/logging"
	"github.com/ciscoinsights/device-insights/internal/metrics"
)

// Refresher is anything that can rebuild its served state from the
// archives as they exist now.
type Refresher interface {
	Name() string
	Refresh(ctx context.Context) error
}

// Clock supplies cycle timestamps.
type Clock interface {
	Now() time.Time
}

// Scheduler cycles every registered refresher once at startup and then
// on a fixed interval. A refresher failure never stops the cycle or the
// scheduler; the refresher keeps serving its previous state.
type Scheduler struct {
	interval   time.Duration
	clock      Clock
	logger     *zap.Logger
	refreshers []Refresher

	refreshing atomic.Bool
	lastCycle  atomic.Pointer[time.Time]
}

// New returns a scheduler cycling the given refreshers every interval.
// A non-positive interval falls back to one hour.
func New(interval time.Duration, clk Clock, logger *zap.Logger, refreshers ...Refresher) *Scheduler {
	if interval <= 0 {
		interval = time.Hour
	}
	return &Scheduler{
		interval:   interval,
		clock:      clk,
		logger:     logging.WithComponent(logger, "refresh"),
		refreshers: refreshers,
	}
}

// Run blocks, cycling refreshers until the context finishes. The first
// cycle runs immediately; callers launch Run on its own goroutine and
// abandon it on shutdown by canceling the context.
func (s *Scheduler) Run(ctx context.Context) {
	if err := s.RunOnce(ctx); err != nil {
		s.logger.Warn("refresh cycle had failures", zap.Error(err))
	}
	ticker := time.NewTicker(s.interval)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			s.logger.Info("refresh scheduler stopping")
			return
		case <-ticker.C:
			if err := s.RunOnce(ctx); err != nil {
				s.logger.Warn("refresh cycle had failures", zap.Error(err))
			}
		}
	}
}

// RunOnce runs exactly one cycle over every refresher, in registration
// order. Failures are collected rather than short-circuiting, so one
// broken refresher cannot starve the rest.
func (s *Scheduler) RunOnce(ctx context.Context) error {
	s.refreshing.Store(true)
	defer s.refreshing.Store(false)

	var errs error
	for _, r := range s.refreshers {
		if err := ctx.Err(); err != nil {
			return multierr.Append(errs, err)
		}
		start := time.Now()
		if err := r.Refresh(ctx); err != nil {
			s.logger.Error("refresh failed",
				zap.String("refresher", r.Name()),
				zap.Error(err))
			metrics.ObserveRefresh(r.Name(), "error", time.Since(start))
			errs = multierr.Append(errs, fmt.Errorf("%s: %w", r.Name(), err))
			continue
		}
		metrics.ObserveRefresh(r.Name(), "success", time.Since(start))
		s.logger.Info("refresh complete",
			zap.String("refresher", r.Name()),
			zap.Duration("elapsed", time.Since(start)))
	}
	now := s.clock.Now()
	s.lastCycle.Store(&now)
	return errs
}

// Refreshing reports whether a cycle is in flight.
func (s *Scheduler) Refreshing() bool {
	return s.refreshing.Load()
}

// LastCycle returns the completion time of the most recent cycle, or the
// zero time before the first one finishes.
func (s *Scheduler) LastCycle() time.Time {
	if t := s.lastCycle.Load(); t != nil {
		return *t
	}
	return time.Time{}
}
