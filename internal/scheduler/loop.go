// Package scheduler drives sync passes: once, or repeatedly on an interval.
//
// Passes never overlap. The next pass is scheduled from the completion of
// the previous one, so a pass that runs longer than the interval delays the
// next tick instead of queueing several.
package scheduler

import (
	"context"
	"fmt"
	"strconv"
	"time"

	"github.com/rs/zerolog"
)

// Config controls when passes run.
type Config struct {
	// Repeat runs passes on Interval until shutdown. Without it exactly one
	// pass runs and Run returns.
	Repeat   bool
	Interval time.Duration
	// RunOnStart runs the first repeated pass immediately instead of one
	// interval after start.
	RunOnStart bool
}

// Pass runs one reconciliation pass.
type Pass func(ctx context.Context)

// Loop runs passes according to its Config.
type Loop struct {
	cfg   Config
	pass  Pass
	clock Clock
	log   zerolog.Logger
}

// Option configures a Loop.
type Option func(*Loop)

// WithClock sets the clock the loop waits on.
func WithClock(c Clock) Option {
	return func(l *Loop) {
		l.clock = c
	}
}

// WithLogger sets the loop logger.
func WithLogger(log zerolog.Logger) Option {
	return func(l *Loop) {
		l.log = log
	}
}

// NewLoop creates a Loop running pass.
func NewLoop(cfg Config, pass Pass, opts ...Option) *Loop {
	l := &Loop{
		cfg:   cfg,
		pass:  pass,
		clock: RealClock(),
		log:   zerolog.Nop(),
	}
	for _, opt := range opts {
		opt(l)
	}
	return l
}

// Run executes passes until the configuration says to stop or ctx is done.
// Shutdown is not an error.
func (l *Loop) Run(ctx context.Context) error {
	if !l.cfg.Repeat {
		l.runPass(ctx, time.Time{})
		return nil
	}
	if l.cfg.Interval <= 0 {
		return fmt.Errorf("repeat interval must be positive, got %s", l.cfg.Interval)
	}

	next := l.clock.Now()
	if !l.cfg.RunOnStart {
		next = NextRun(next, l.cfg.Interval)
		l.log.Info().Time("next_run", next).Msgf("First pass in %s hours", hours(l.cfg.Interval))
	}

	for {
		if err := Wait(ctx, l.clock, next); err != nil {
			l.log.Info().Msg("Shutting down, quitting")
			return nil
		}
		next = NextRun(l.runPass(ctx, next), l.cfg.Interval)
		if ctx.Err() != nil {
			return nil
		}
	}
}

// runPass runs one pass, logs its completion and returns when it finished.
func (l *Loop) runPass(ctx context.Context, due time.Time) time.Time {
	start := l.clock.Now()
	if !due.IsZero() && start.Sub(due) > time.Second {
		l.log.Debug().Dur("late_by", start.Sub(due)).Msg("Pass started late")
	}

	l.pass(ctx)

	finished := l.clock.Now()
	elapsed := HumanDuration(finished.Sub(start))
	switch {
	case ctx.Err() != nil:
		l.log.Info().Str("duration", elapsed).Msgf("Pass interrupted after %s, quitting", elapsed)
	case l.cfg.Repeat:
		l.log.Info().Str("duration", elapsed).Time("next_run", NextRun(finished, l.cfg.Interval)).
			Msgf("Pass finished in %s, see you again in %s hours", elapsed, hours(l.cfg.Interval))
	default:
		l.log.Info().Str("duration", elapsed).Msgf("Pass finished in %s, quitting", elapsed)
	}
	return finished
}

// HumanDuration formats d as whole minutes and seconds, e.g. "2m5s".
func HumanDuration(d time.Duration) string {
	if d < 0 {
		d = 0
	}
	minutes := int(d / time.Minute)
	seconds := int((d % time.Minute) / time.Second)
	return fmt.Sprintf("%dm%ds", minutes, seconds)
}

func hours(d time.Duration) string {
	return strconv.FormatFloat(d.Hours(), 'f', -1, 64)
}
