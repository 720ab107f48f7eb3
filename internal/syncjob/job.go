// Package syncjob runs one sync pass: fetch the desired list once, then
// reconcile every configured security group against it.
package syncjob

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/rs/zerolog"

	"github.com/imamik/sgsync/internal/iplist"
	"github.com/imamik/sgsync/internal/metrics"
	"github.com/imamik/sgsync/internal/reconcile"
	"github.com/imamik/sgsync/internal/secgroup"
	"github.com/imamik/sgsync/internal/util/async"
)

// Fetcher retrieves the desired CIDR list.
type Fetcher interface {
	Fetch(ctx context.Context, source string, format iplist.Format) (iplist.List, error)
}

// Recorder observes pass and target outcomes.
type Recorder interface {
	ListFetched(entries int)
	TargetDone(target secgroup.Target, result string)
	PassDone(result string, duration time.Duration, finished time.Time)
}

// Config describes what a pass syncs.
type Config struct {
	Source      string
	Format      iplist.Format
	MinLength   int
	Targets     []secgroup.Target
	Concurrency int
	CallTimeout time.Duration
}

// Job runs sync passes.
type Job struct {
	cfg        Config
	fetcher    Fetcher
	resolver   secgroup.Resolver
	reconciler *reconcile.Reconciler
	recorder   Recorder
	now        func() time.Time
	log        zerolog.Logger
}

// Option configures a Job.
type Option func(*Job)

// WithRecorder sets the recorder for pass outcomes.
func WithRecorder(rec Recorder) Option {
	return func(j *Job) {
		j.recorder = rec
	}
}

// WithClock sets the time source used to stamp reports.
func WithClock(now func() time.Time) Option {
	return func(j *Job) {
		j.now = now
	}
}

// WithLogger sets the job logger.
func WithLogger(l zerolog.Logger) Option {
	return func(j *Job) {
		j.log = l
	}
}

// New creates a Job.
func New(cfg Config, fetcher Fetcher, resolver secgroup.Resolver, reconciler *reconcile.Reconciler, opts ...Option) *Job {
	if cfg.CallTimeout <= 0 {
		cfg.CallTimeout = 30 * time.Second
	}
	j := &Job{
		cfg:        cfg,
		fetcher:    fetcher,
		resolver:   resolver,
		reconciler: reconciler,
		recorder:   nopRecorder{},
		now:        time.Now,
		log:        zerolog.Nop(),
	}
	for _, opt := range opts {
		opt(j)
	}
	return j
}

// RunPass fetches the list and reconciles every target. It never returns an
// error: fetch failures and the minimum length safeguard skip the pass, and
// target failures are recorded per target.
func (j *Job) RunPass(ctx context.Context) (report PassReport) {
	report = PassReport{Started: j.now(), DryRun: j.reconciler.DryRun()}
	defer func() {
		report.Finished = j.now()
		j.recorder.PassDone(report.Result(), report.Duration(), report.Finished)
	}()

	desired, err := j.fetch(ctx)
	if err != nil {
		report.Err = err
		return report
	}
	report.Entries = len(desired)

	report.Targets = make([]TargetReport, len(j.cfg.Targets))
	tasks := make([]async.Task, len(j.cfg.Targets))
	for i, target := range j.cfg.Targets {
		report.Targets[i].Target = target
		tasks[i] = async.Task{
			Name: target.String(),
			Func: func(ctx context.Context) error {
				report.Targets[i] = j.syncTarget(ctx, target, desired)
				return report.Targets[i].Err
			},
		}
	}

	if err := async.RunParallel(ctx, tasks, j.cfg.Concurrency); err != nil {
		j.log.Error().Err(err).Msg("Some security groups failed to sync")
	}
	if ctx.Err() != nil {
		report.Interrupted = true
		j.log.Warn().Msg("Pass interrupted by shutdown")
	}
	return report
}

func (j *Job) fetch(ctx context.Context) (iplist.List, error) {
	desired, err := j.fetcher.Fetch(ctx, j.cfg.Source, j.cfg.Format)
	if err != nil {
		j.log.Error().Err(err).Str("source", j.cfg.Source).Msg("Failed to fetch ip list, skipping this pass")
		return nil, err
	}
	j.recorder.ListFetched(len(desired))

	if err := iplist.CheckMinLength(desired, j.cfg.MinLength); err != nil {
		j.log.Warn().Err(err).Int("entries", len(desired)).Int("min_length", j.cfg.MinLength).
			Msg("IP list is too short, refusing to sync")
		return nil, err
	}
	j.log.Info().Int("entries", len(desired)).Msg("Fetched ip list")
	return desired, nil
}

func (j *Job) syncTarget(ctx context.Context, target secgroup.Target, desired iplist.List) TargetReport {
	log := j.log.With().Str("target", target.String()).Logger()
	report := TargetReport{Target: target, Started: true}
	defer func() {
		j.recorder.TargetDone(target, report.Result())
	}()

	client, err := j.resolver.ClientFor(ctx, target)
	if err != nil {
		report.Err = fmt.Errorf("failed to create client: %w", err)
		log.Error().Err(err).Msg("Cannot reach security group")
		return report
	}

	callCtx, cancel := context.WithTimeout(context.WithoutCancel(ctx), j.cfg.CallTimeout)
	meta, err := client.DescribeGroup(callCtx)
	cancel()
	if err != nil {
		if errors.Is(err, secgroup.ErrGroupNotFound) {
			report.NotFound = true
			log.Warn().Err(err).Msg("Security group not found, skipping")
			return report
		}
		report.Err = fmt.Errorf("failed to describe security group: %w", err)
		log.Error().Err(err).Msg("Failed to describe security group")
		return report
	}
	log.Info().Str("name", meta.Name).Msg("Syncing security group")

	sum, err := j.reconciler.Reconcile(ctx, target, client, desired)
	report.Summary = sum
	if err != nil {
		report.Err = err
		log.Error().Err(err).Msg("Failed to reconcile security group")
		return report
	}

	log.Info().
		Int("added", sum.Added).
		Int("removed", sum.Removed).
		Int("unchanged", sum.Unchanged).
		Int("dry_run", sum.DryRun).
		Int("failed", sum.Failed).
		Bool("interrupted", sum.Interrupted).
		Msg("Security group synced")
	return report
}

type nopRecorder struct{}

func (nopRecorder) ListFetched(int)                           {}
func (nopRecorder) TargetDone(secgroup.Target, string)        {}
func (nopRecorder) PassDone(string, time.Duration, time.Time) {}

var _ Recorder = (*metrics.Metrics)(nil)
