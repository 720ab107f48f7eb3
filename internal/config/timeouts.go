package config

import "time"

// Timeouts bounds every outbound call.
type Timeouts struct {
	// Fetch bounds each attempt to download the ip list.
	Fetch time.Duration `yaml:"fetch" env:"FETCH_TIMEOUT"`
	// FetchRetries is the number of retries after a failed download.
	FetchRetries int `yaml:"fetch_retries" env:"FETCH_RETRIES"`
	// API bounds each security group API call.
	API time.Duration `yaml:"api" env:"API_TIMEOUT"`
}

// DefaultTimeouts returns the default timeout values.
func DefaultTimeouts() Timeouts {
	return Timeouts{
		Fetch:        30 * time.Second,
		FetchRetries: 2,
		API:          30 * time.Second,
	}
}
