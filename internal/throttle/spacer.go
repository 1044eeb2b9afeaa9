// Package throttle spaces outbound requests so that consecutive calls through
// one Spacer never leave closer together than a configured interval.
package throttle

import (
	"context"
	"sync"
	"time"
)

// Spacer enforces a minimum gap between the completion of one request and the
// dispatch of the next. The completion mark is updated after every attempt,
// successful or not.
type Spacer struct {
	mu       sync.Mutex
	interval time.Duration
	last     time.Time
	clk      func() time.Time
	sleep    func(ctx context.Context, d time.Duration) error
}

type Option func(*Spacer)

// WithClock replaces time.Now.
func WithClock(clk func() time.Time) Option {
	return func(s *Spacer) {
		if clk != nil {
			s.clk = clk
		}
	}
}

// WithSleep replaces the context-aware sleep used while waiting.
func WithSleep(sleep func(ctx context.Context, d time.Duration) error) Option {
	return func(s *Spacer) {
		if sleep != nil {
			s.sleep = sleep
		}
	}
}

// New returns a Spacer; a non-positive interval disables spacing.
func New(interval time.Duration, opts ...Option) *Spacer {
	s := &Spacer{
		interval: interval,
		clk:      time.Now,
		sleep:    sleepCtx,
	}
	for _, o := range opts {
		o(s)
	}
	return s
}

// Do blocks until the interval has elapsed since the previous request
// completed, then runs fn. Calls are serialized.
func (s *Spacer) Do(ctx context.Context, fn func() error) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if err := s.waitLocked(ctx); err != nil {
		return err
	}
	err := fn()
	s.last = s.clk()
	return err
}

// Wait returns how long the next call would block right now.
func (s *Spacer) Wait() time.Duration {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.remainingLocked()
}

func (s *Spacer) remainingLocked() time.Duration {
	if s.interval <= 0 || s.last.IsZero() {
		return 0
	}
	now := s.clk()
	elapsed := now.Sub(s.last)
	if elapsed < 0 {
		// clock went backwards: restart the gap from now
		s.last = now
		elapsed = 0
	}
	if elapsed >= s.interval {
		return 0
	}
	return s.interval - elapsed
}

func (s *Spacer) waitLocked(ctx context.Context) error {
	for {
		d := s.remainingLocked()
		if d <= 0 {
			return ctx.Err()
		}
		if err := s.sleep(ctx, d); err != nil {
			return err
		}
	}
}

func sleepCtx(ctx context.Context, d time.Duration) error {
	t := time.NewTimer(d)
	defer t.Stop()
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-t.C:
		return nil
	}
}
