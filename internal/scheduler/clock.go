package scheduler

import (
	"context"
	"time"
)

// Clock is the time source the loop waits on.
type Clock interface {
	Now() time.Time
	After(d time.Duration) <-chan time.Time
}

type realClock struct{}

func (realClock) Now() time.Time                         { return time.Now() }
func (realClock) After(d time.Duration) <-chan time.Time { return time.After(d) }

// RealClock returns the wall clock.
func RealClock() Clock {
	return realClock{}
}

// NextRun returns when the pass after one finishing at now is due.
func NextRun(now time.Time, interval time.Duration) time.Time {
	if interval <= 0 {
		return now
	}
	return now.Add(interval)
}

// Wait blocks until clock reaches until or ctx is done, and returns ctx's
// error in the latter case. A time in the past returns immediately.
func Wait(ctx context.Context, clock Clock, until time.Time) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	d := until.Sub(clock.Now())
	if d <= 0 {
		return nil
	}
	select {
	case <-clock.After(d):
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}
