package update

import (
	"context"
	"time"

	"github.com/cenkalti/backoff/v4"
	"github.com/rs/zerolog"
)

// Scheduler defaults.
const (
	DefaultCheckInterval = 6 * time.Hour
	minRetryInterval     = 30 * time.Second
)

// Scheduler re-checks the active channel periodically. After a failed check
// the next attempt follows an exponential backoff capped at the interval.
type Scheduler struct {
	checker  *Checker
	interval time.Duration
	retry    backoff.BackOff
	logger   zerolog.Logger
}

// SchedulerOption configures a Scheduler.
type SchedulerOption func(*Scheduler)

// WithRetryBackOff replaces the policy used between failed checks.
func WithRetryBackOff(b backoff.BackOff) SchedulerOption {
	return func(s *Scheduler) {
		s.retry = b
	}
}

// WithSchedulerLogger sets the scheduler's logger.
func WithSchedulerLogger(logger zerolog.Logger) SchedulerOption {
	return func(s *Scheduler) {
		s.logger = logger
	}
}

// NewScheduler creates a scheduler for c. A non-positive interval uses DefaultCheckInterval.
func NewScheduler(c *Checker, interval time.Duration, opts ...SchedulerOption) *Scheduler {
	if interval <= 0 {
		interval = DefaultCheckInterval
	}
	s := &Scheduler{
		checker:  c,
		interval: interval,
		logger:   zerolog.Nop(),
	}
	for _, opt := range opts {
		opt(s)
	}
	if s.retry == nil {
		eb := backoff.NewExponentialBackOff()
		eb.InitialInterval = minRetryInterval
		if eb.InitialInterval > interval {
			eb.InitialInterval = interval
		}
		eb.MaxInterval = interval
		eb.MaxElapsedTime = 0
		s.retry = eb
	}
	s.retry.Reset()
	return s
}

// Run checks immediately, then keeps checking until ctx is done.
func (s *Scheduler) Run(ctx context.Context) error {
	timer := time.NewTimer(0)
	defer timer.Stop()

	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-timer.C:
		}

		state, err := s.checkOnce(ctx)
		if err != nil {
			return err
		}
		delay := s.next(state)
		s.logger.Debug().
			Str("channel", string(state.Channel)).
			Dur("next", delay).
			Bool("failed", state.LastError != nil).
			Msg("scheduled update check")
		timer.Reset(delay)
	}
}

func (s *Scheduler) checkOnce(ctx context.Context) (State, error) {
	s.checker.RequestActiveCheck()
	return s.checker.WaitIdle(ctx)
}

// next returns the delay before the following check.
func (s *Scheduler) next(state State) time.Duration {
	if state.LastError == nil {
		s.retry.Reset()
		return s.interval
	}
	d := s.retry.NextBackOff()
	if d == backoff.Stop || d > s.interval {
		return s.interval
	}
	return d
}
