package config

import (
	"time"

	"github.com/imamik/sgsync/internal/iplist"
	"github.com/imamik/sgsync/internal/reconcile"
)

// Config is the full process configuration.
type Config struct {
	DryRun bool `yaml:"dry_run" env:"DRY_RUN"`

	List ListConfig `yaml:"ip_list"`

	// SecurityGroupIDs is a whitespace-separated list of "region:group-id"
	// targets. Hetzner firewalls use the region "hcloud".
	SecurityGroupIDs string `yaml:"security_group_ids" env:"SECURITY_GROUP_IDS"`

	Schedule ScheduleConfig `yaml:"schedule"`
	Timeouts Timeouts       `yaml:"timeouts"`
	Log      LogConfig      `yaml:"log"`

	TargetConcurrency   int    `yaml:"target_concurrency" env:"TARGET_CONCURRENCY"`
	RuleDescriptionName string `yaml:"rule_description_name" env:"RULE_DESCRIPTION_NAME"`
	MetricsAddr         string `yaml:"metrics_addr" env:"METRICS_ADDR"`
	AppVersion          string `yaml:"app_version" env:"APP_VERSION"`

	// HCloudToken is only read from the environment.
	HCloudToken string `yaml:"-" env:"HCLOUD_TOKEN"`
}

// ListConfig describes where the desired CIDR list comes from.
type ListConfig struct {
	Source    string   `yaml:"source" env:"IP_LIST_SOURCE"`
	Format    string   `yaml:"format" env:"IP_LIST_FORMAT"`
	Service   string   `yaml:"service" env:"IP_LIST_SERVICE"`
	MinLength int      `yaml:"min_length" env:"IP_LIST_MIN_LENGTH"`
	S3        S3Config `yaml:"s3"`
}

// S3Config configures the client for s3:// list sources. Empty credentials
// fall back to the default AWS credential chain.
type S3Config struct {
	Endpoint  string `yaml:"endpoint" env:"IP_LIST_S3_ENDPOINT"`
	Region    string `yaml:"region" env:"IP_LIST_S3_REGION"`
	PathStyle bool   `yaml:"path_style" env:"IP_LIST_S3_PATH_STYLE"`
	AccessKey string `yaml:"-" env:"IP_LIST_S3_ACCESS_KEY"`
	SecretKey string `yaml:"-" env:"IP_LIST_S3_SECRET_KEY"`
}

// ScheduleConfig controls when passes run.
type ScheduleConfig struct {
	Repeat     bool          `yaml:"repeat" env:"REPEAT"`
	Interval   time.Duration `yaml:"interval" env:"REPEAT_INTERVAL"`
	RunOnStart bool          `yaml:"run_on_start" env:"RUN_ON_START"`

	// IntervalHours overrides Interval when positive.
	IntervalHours int `yaml:"interval_hours" env:"REPEAT_INTERVAL_HOURS"`
}

// LogConfig controls log levels and output format.
type LogConfig struct {
	Level  string `yaml:"level" env:"LOG_LEVEL"`
	Format string `yaml:"format" env:"LOG_FORMAT"`

	// Overrides holds "subsystem:LEVEL" pairs.
	Overrides string `yaml:"overrides" env:"OTHER_LOG_LEVELS"`
}

// Default returns the configuration used when nothing is set.
func Default() *Config {
	return &Config{
		DryRun: true,
		List: ListConfig{
			Format:    string(iplist.FormatPlain),
			Service:   iplist.DefaultService,
			MinLength: 10,
		},
		Schedule: ScheduleConfig{
			Interval:   6 * time.Hour,
			RunOnStart: true,
		},
		Timeouts:            DefaultTimeouts(),
		Log:                 LogConfig{Level: "info", Format: "auto"},
		TargetConcurrency:   1,
		RuleDescriptionName: reconcile.DefaultSystemName,
	}
}
