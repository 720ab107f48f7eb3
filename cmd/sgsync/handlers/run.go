// Package handlers implements the business logic for CLI commands.
//
// Handlers are framework-agnostic and can be tested independently of the
// CLI framework.
package handlers

import (
	"context"
	"errors"
	"fmt"
	"io"
	"net/url"
	"os"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/rs/zerolog"

	"github.com/imamik/sgsync/internal/config"
	"github.com/imamik/sgsync/internal/iplist"
	"github.com/imamik/sgsync/internal/logging"
	"github.com/imamik/sgsync/internal/metrics"
	"github.com/imamik/sgsync/internal/platform"
	"github.com/imamik/sgsync/internal/platform/ec2"
	"github.com/imamik/sgsync/internal/platform/hcloud"
	"github.com/imamik/sgsync/internal/platform/s3"
	"github.com/imamik/sgsync/internal/reconcile"
	"github.com/imamik/sgsync/internal/scheduler"
	"github.com/imamik/sgsync/internal/secgroup"
	"github.com/imamik/sgsync/internal/syncjob"
)

const appName = "sgsync"

// Factory function variables - can be replaced in tests for dependency injection.
var (
	// loadConfig loads and validates the configuration.
	loadConfig = config.Load

	// logOutput is where logs are written.
	logOutput = func() io.Writer { return os.Stderr }

	// newEC2Resolver creates the resolver for AWS targets.
	newEC2Resolver = func(ctx context.Context, log zerolog.Logger) (secgroup.Resolver, error) {
		return ec2.NewResolver(ctx, appName, log)
	}

	// newHCloudResolver creates the resolver for Hetzner Cloud targets.
	newHCloudResolver = func(token, version string, log zerolog.Logger) secgroup.Resolver {
		return hcloud.NewResolver(token, version, hcloud.WithLogger(log))
	}

	// newObjectGetter creates the S3 client for s3:// list sources.
	newObjectGetter = func(ctx context.Context, opts s3.Options) (iplist.ObjectGetter, error) {
		return s3.NewClient(ctx, opts)
	}

	// newClock returns the scheduler clock.
	newClock = scheduler.RealClock
)

// Run loads the configuration and syncs until the schedule ends or ctx is
// cancelled. Only configuration and client setup errors are returned.
func Run(ctx context.Context, configPath, version string) error {
	cfg, err := loadConfig(configPath)
	if err != nil {
		return err
	}
	if cfg.AppVersion == "" {
		cfg.AppVersion = version
	}

	levels, err := cfg.LogLevels()
	if err != nil {
		return err
	}
	logs, err := newLogFactory(cfg, levels)
	if err != nil {
		return err
	}
	log := logs.For(logging.Main)

	targets, err := cfg.Targets()
	if err != nil {
		return err
	}
	format, err := cfg.ListFormat()
	if err != nil {
		return err
	}

	log.Info().
		Str("version", cfg.AppVersion).
		Bool("dry_run", cfg.DryRun).
		Str("source", cfg.List.Source).
		Str("format", string(format)).
		Int("targets", len(targets)).
		Bool("repeat", cfg.Schedule.Repeat).
		Str("log_levels", levels.String()).
		Msg("Starting sgsync")
	if cfg.DryRun {
		log.Warn().Msg("DRY_RUN is enabled, no rule will be changed")
	}

	fetcher, err := newFetcher(ctx, cfg, logs)
	if err != nil {
		return err
	}

	resolver, err := newResolver(ctx, cfg, logs)
	if err != nil {
		return err
	}

	reg := prometheus.NewRegistry()
	reg.MustRegister(
		collectors.NewGoCollector(),
		collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}),
	)
	m := metrics.New(reg)
	if cfg.MetricsAddr != "" {
		metricsLog := logs.For(logging.Metrics)
		go func() {
			if err := metrics.Serve(ctx, cfg.MetricsAddr, reg, metricsLog); err != nil {
				metricsLog.Error().Err(err).Msg("Metrics server stopped")
			}
		}()
	}

	reconciler := reconcile.New(
		reconcile.WithDryRun(cfg.DryRun),
		reconcile.WithSystemName(cfg.RuleDescriptionName),
		reconcile.WithCallTimeout(cfg.Timeouts.API),
		reconcile.WithRecorder(m),
		reconcile.WithLogger(logs.For(logging.Reconcile)),
	)

	job := syncjob.New(syncjob.Config{
		Source:      cfg.List.Source,
		Format:      format,
		MinLength:   cfg.List.MinLength,
		Targets:     targets,
		Concurrency: cfg.TargetConcurrency,
		CallTimeout: cfg.Timeouts.API,
	}, fetcher, resolver, reconciler,
		syncjob.WithRecorder(m),
		syncjob.WithLogger(logs.For(logging.SyncJob)),
	)

	loop := scheduler.NewLoop(scheduler.Config{
		Repeat:     cfg.Schedule.Repeat,
		Interval:   cfg.RepeatInterval(),
		RunOnStart: cfg.Schedule.RunOnStart,
	}, func(ctx context.Context) {
		job.RunPass(ctx)
	},
		scheduler.WithClock(newClock()),
		scheduler.WithLogger(logs.For(logging.Scheduler)),
	)

	if err := loop.Run(ctx); err != nil {
		return fmt.Errorf("scheduler failed: %w", err)
	}
	if errors.Is(ctx.Err(), context.Canceled) {
		log.Info().Msg("Stopped by signal")
	}
	return nil
}

func newLogFactory(cfg *config.Config, levels logging.Levels) (*logging.Factory, error) {
	format, err := cfg.LogFormat()
	if err != nil {
		return nil, err
	}
	return logging.New(logging.Config{
		Levels: levels,
		Format: format,
		Output: logOutput(),
	}), nil
}

func newFetcher(ctx context.Context, cfg *config.Config, logs *logging.Factory) (*iplist.Fetcher, error) {
	opts := []iplist.Option{
		iplist.WithService(cfg.List.Service),
		iplist.WithTimeout(cfg.Timeouts.Fetch),
		iplist.WithRetries(cfg.Timeouts.FetchRetries, time.Second),
		iplist.WithUserAgent(appName + "/" + cfg.AppVersion),
		iplist.WithLogger(logs.For(logging.IPList)),
	}

	if u, err := url.Parse(cfg.List.Source); err == nil && u.Scheme == "s3" {
		getter, err := newObjectGetter(ctx, s3.Options{
			Endpoint:  cfg.List.S3.Endpoint,
			Region:    cfg.List.S3.Region,
			AccessKey: cfg.List.S3.AccessKey,
			SecretKey: cfg.List.S3.SecretKey,
			PathStyle: cfg.List.S3.PathStyle,
		})
		if err != nil {
			return nil, fmt.Errorf("failed to create S3 client: %w", err)
		}
		opts = append(opts, iplist.WithObjectGetter(getter))
	}

	return iplist.NewFetcher(opts...), nil
}

func newResolver(ctx context.Context, cfg *config.Config, logs *logging.Factory) (*platform.Router, error) {
	router := platform.NewRouter()

	if cfg.UsesProvider(secgroup.ProviderAWS) {
		r, err := newEC2Resolver(ctx, logs.For(logging.EC2))
		if err != nil {
			return nil, err
		}
		router.Register(secgroup.ProviderAWS, r)
	}
	if cfg.UsesProvider(secgroup.ProviderHCloud) {
		router.Register(secgroup.ProviderHCloud, newHCloudResolver(cfg.HCloudToken, cfg.AppVersion, logs.For(logging.HCloud)))
	}
	return router, nil
}
