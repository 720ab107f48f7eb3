package config

import (
	"fmt"
	"net/url"
	"time"

	"github.com/imamik/sgsync/internal/iplist"
	"github.com/imamik/sgsync/internal/logging"
	"github.com/imamik/sgsync/internal/secgroup"
)

// Validate checks the configuration for errors and returns the first one found.
func (c *Config) Validate() error {
	if err := c.validateList(); err != nil {
		return fmt.Errorf("ip list: %w", err)
	}

	targets, err := c.Targets()
	if err != nil {
		return err
	}
	if len(targets) == 0 {
		return fmt.Errorf("SECURITY_GROUP_IDS is required")
	}
	for _, t := range targets {
		if t.Provider == secgroup.ProviderHCloud && c.HCloudToken == "" {
			return fmt.Errorf("HCLOUD_TOKEN is required for target %s", t)
		}
	}

	if c.Schedule.Repeat && c.RepeatInterval() <= 0 {
		return fmt.Errorf("repeat interval must be positive, got %s", c.RepeatInterval())
	}
	if c.Schedule.IntervalHours < 0 {
		return fmt.Errorf("REPEAT_INTERVAL_HOURS must not be negative, got %d", c.Schedule.IntervalHours)
	}

	if err := c.validateTimeouts(); err != nil {
		return fmt.Errorf("timeouts: %w", err)
	}

	if c.TargetConcurrency < 1 {
		return fmt.Errorf("TARGET_CONCURRENCY must be at least 1, got %d", c.TargetConcurrency)
	}
	if c.RuleDescriptionName == "" {
		return fmt.Errorf("RULE_DESCRIPTION_NAME must not be empty")
	}

	if _, err := c.LogLevels(); err != nil {
		return err
	}
	if _, err := c.LogFormat(); err != nil {
		return err
	}
	return nil
}

func (c *Config) validateList() error {
	if c.List.Source == "" {
		return fmt.Errorf("IP_LIST_SOURCE is required")
	}
	u, err := url.Parse(c.List.Source)
	if err != nil {
		return fmt.Errorf("invalid IP_LIST_SOURCE %q: %w", c.List.Source, err)
	}
	switch u.Scheme {
	case "http", "https":
		if u.Host == "" {
			return fmt.Errorf("IP_LIST_SOURCE %q has no host", c.List.Source)
		}
	case "s3":
		if u.Host == "" || len(u.Path) <= 1 {
			return fmt.Errorf("IP_LIST_SOURCE %q must look like s3://bucket/key", c.List.Source)
		}
	default:
		return fmt.Errorf("IP_LIST_SOURCE %q must use http, https or s3", c.List.Source)
	}

	if _, err := c.ListFormat(); err != nil {
		return err
	}
	if c.List.MinLength < 0 {
		return fmt.Errorf("IP_LIST_MIN_LENGTH must not be negative, got %d", c.List.MinLength)
	}
	return nil
}

func (c *Config) validateTimeouts() error {
	if c.Timeouts.Fetch <= 0 {
		return fmt.Errorf("FETCH_TIMEOUT must be positive, got %s", c.Timeouts.Fetch)
	}
	if c.Timeouts.API <= 0 {
		return fmt.Errorf("API_TIMEOUT must be positive, got %s", c.Timeouts.API)
	}
	if c.Timeouts.FetchRetries < 0 {
		return fmt.Errorf("FETCH_RETRIES must not be negative, got %d", c.Timeouts.FetchRetries)
	}
	return nil
}

// Targets parses SecurityGroupIDs.
func (c *Config) Targets() ([]secgroup.Target, error) {
	targets, err := secgroup.ParseTargets(c.SecurityGroupIDs)
	if err != nil {
		return nil, fmt.Errorf("invalid SECURITY_GROUP_IDS: %w", err)
	}
	return targets, nil
}

// ListFormat parses the list format.
func (c *Config) ListFormat() (iplist.Format, error) {
	f, err := iplist.ParseFormat(c.List.Format)
	if err != nil {
		return "", fmt.Errorf("invalid IP_LIST_FORMAT: %w", err)
	}
	return f, nil
}

// RepeatInterval returns the pass interval, preferring IntervalHours when set.
func (c *Config) RepeatInterval() time.Duration {
	if c.Schedule.IntervalHours > 0 {
		return time.Duration(c.Schedule.IntervalHours) * time.Hour
	}
	return c.Schedule.Interval
}

// LogLevels parses the default level and the per-subsystem overrides.
func (c *Config) LogLevels() (logging.Levels, error) {
	levels, err := logging.ParseLevels(c.Log.Level, c.Log.Overrides)
	if err != nil {
		return logging.Levels{}, fmt.Errorf("invalid log levels: %w", err)
	}
	return levels, nil
}

// LogFormat parses the log output format.
func (c *Config) LogFormat() (logging.Format, error) {
	f, err := logging.ParseFormat(c.Log.Format)
	if err != nil {
		return "", fmt.Errorf("invalid LOG_FORMAT: %w", err)
	}
	return f, nil
}

// UsesProvider reports whether any target is managed by provider.
func (c *Config) UsesProvider(provider string) bool {
	targets, err := c.Targets()
	if err != nil {
		return false
	}
	for _, t := range targets {
		if t.Provider == provider {
			return true
		}
	}
	return false
}
