// Package config provides configuration loading and management for the scraper server.
package config

import (
	"fmt"
	"os"
	"path/filepath"
	"time"

	"gopkg.in/yaml.v3"
)

// Defaults applied when the corresponding setting is absent from the file.
const (
	// DefaultAddress is the default listen address for the HTTP API
	DefaultAddress = ":8080"

	// DefaultDataDir is the default directory for snapshot storage
	DefaultDataDir = "./data"

	// DefaultExtractorEndpoint is the default base URL of the extraction service
	DefaultExtractorEndpoint = "http://localhost:8090"

	// DefaultDailyRunAt is the default time-of-day for the daily full refresh
	DefaultDailyRunAt = "00:00"

	// DefaultStalenessThreshold is the maximum snapshot age before a refresh
	DefaultStalenessThreshold = 24 * time.Hour

	// DefaultSourceDelay is the pause between sources within one batch
	DefaultSourceDelay = 2 * time.Second

	// DefaultPollInterval is how often the scheduler checks for due jobs
	DefaultPollInterval = 30 * time.Second

	// DefaultMaxManualJobs caps concurrently running manual triggers
	DefaultMaxManualJobs = 4
)

// Option defines the interface for configuration loader options
type Option func(*loaderConfig) error

// loaderConfig defines the configuration for loading a configuration
type loaderConfig struct {
	path string
}

// WithConfigPath loads configuration from a YAML file
func WithConfigPath(path string) Option {
	return func(cfg *loaderConfig) error {
		if path == "" {
			return fmt.Errorf("path is required")
		}

		// Resolve symlinks to prevent symlink attacks.
		// Note that this calls filepath.Clean internally.
		realPath, err := filepath.EvalSymlinks(path)
		if err != nil {
			return fmt.Errorf("failed to evaluate symlinks: %w", err)
		}

		// Validate the path to prevent path traversal attacks
		if !filepath.IsAbs(realPath) {
			if !filepath.IsLocal(realPath) {
				return fmt.Errorf("path is not local or contains invalid traversal: %s", path)
			}
		}

		cfg.path = realPath
		return nil
	}
}

// Config represents the root configuration structure. Durations are given
// as Go duration strings (e.g. "24h", "2s").
type Config struct {
	// Address is the listen address for the HTTP API
	Address string `yaml:"address,omitempty"`

	// DataDir is the directory where snapshot files are stored
	DataDir string `yaml:"dataDir,omitempty"`

	// ExtractorEndpoint is the base URL of the extraction service that
	// performs the actual MyGAP page scraping
	ExtractorEndpoint string `yaml:"extractorEndpoint,omitempty"`

	// StalenessThreshold is the maximum age for a snapshot to be served
	// from cache without a refresh
	StalenessThreshold string `yaml:"stalenessThreshold,omitempty"`

	// Scheduler holds the background refresh settings
	Scheduler SchedulerConfig `yaml:"scheduler,omitempty"`
}

// SchedulerConfig defines background refresh settings
type SchedulerConfig struct {
	// DailyRunAt is the time-of-day ("HH:MM", 24-hour) for the daily full refresh
	DailyRunAt string `yaml:"dailyRunAt,omitempty"`

	// SourceDelay is the pause inserted between sources within one batch
	SourceDelay string `yaml:"sourceDelay,omitempty"`

	// PollInterval is how often the background loop checks for due jobs
	PollInterval string `yaml:"pollInterval,omitempty"`

	// MaxManualJobs caps the number of concurrently running manual triggers
	MaxManualJobs int `yaml:"maxManualJobs,omitempty"`
}

// Default returns a configuration populated with all default values
func Default() *Config {
	return &Config{
		Address:            DefaultAddress,
		DataDir:            DefaultDataDir,
		ExtractorEndpoint:  DefaultExtractorEndpoint,
		StalenessThreshold: DefaultStalenessThreshold.String(),
		Scheduler: SchedulerConfig{
			DailyRunAt:    DefaultDailyRunAt,
			SourceDelay:   DefaultSourceDelay.String(),
			PollInterval:  DefaultPollInterval.String(),
			MaxManualJobs: DefaultMaxManualJobs,
		},
	}
}

// LoadConfig loads and parses configuration from a YAML file, filling in
// defaults for any setting the file omits
func LoadConfig(opts ...Option) (*Config, error) {
	loaderCfg := &loaderConfig{}
	for _, opt := range opts {
		if err := opt(loaderCfg); err != nil {
			return nil, err
		}
	}

	if loaderCfg.path == "" {
		return nil, fmt.Errorf("path is required")
	}

	data, err := os.ReadFile(loaderCfg.path)
	if err != nil {
		return nil, fmt.Errorf("failed to read config file: %w", err)
	}

	config := Default()
	if err := yaml.Unmarshal(data, config); err != nil {
		return nil, fmt.Errorf("failed to parse YAML config: %w", err)
	}
	config.applyDefaults()

	if err := config.Validate(); err != nil {
		return nil, fmt.Errorf("invalid configuration: %w", err)
	}

	return config, nil
}

// applyDefaults fills in zero values left by explicit empty settings
func (c *Config) applyDefaults() {
	if c.Address == "" {
		c.Address = DefaultAddress
	}
	if c.DataDir == "" {
		c.DataDir = DefaultDataDir
	}
	if c.ExtractorEndpoint == "" {
		c.ExtractorEndpoint = DefaultExtractorEndpoint
	}
	if c.StalenessThreshold == "" {
		c.StalenessThreshold = DefaultStalenessThreshold.String()
	}
	if c.Scheduler.DailyRunAt == "" {
		c.Scheduler.DailyRunAt = DefaultDailyRunAt
	}
	if c.Scheduler.SourceDelay == "" {
		c.Scheduler.SourceDelay = DefaultSourceDelay.String()
	}
	if c.Scheduler.PollInterval == "" {
		c.Scheduler.PollInterval = DefaultPollInterval.String()
	}
	if c.Scheduler.MaxManualJobs == 0 {
		c.Scheduler.MaxManualJobs = DefaultMaxManualJobs
	}
}

// Validate performs validation on the configuration
func (c *Config) Validate() error {
	if c == nil {
		return fmt.Errorf("config cannot be nil")
	}

	if _, err := ParseTimeOfDay(c.Scheduler.DailyRunAt); err != nil {
		return fmt.Errorf("scheduler.dailyRunAt: %w", err)
	}

	threshold, err := time.ParseDuration(c.StalenessThreshold)
	if err != nil {
		return fmt.Errorf("stalenessThreshold: %w", err)
	}
	if threshold <= 0 {
		return fmt.Errorf("stalenessThreshold must be positive, got %s", c.StalenessThreshold)
	}

	delay, err := time.ParseDuration(c.Scheduler.SourceDelay)
	if err != nil {
		return fmt.Errorf("scheduler.sourceDelay: %w", err)
	}
	if delay < 0 {
		return fmt.Errorf("scheduler.sourceDelay must not be negative, got %s", c.Scheduler.SourceDelay)
	}

	interval, err := time.ParseDuration(c.Scheduler.PollInterval)
	if err != nil {
		return fmt.Errorf("scheduler.pollInterval: %w", err)
	}
	if interval <= 0 {
		return fmt.Errorf("scheduler.pollInterval must be positive, got %s", c.Scheduler.PollInterval)
	}

	if c.Scheduler.MaxManualJobs <= 0 {
		return fmt.Errorf("scheduler.maxManualJobs must be positive, got %d", c.Scheduler.MaxManualJobs)
	}

	return nil
}

// GetStalenessThreshold returns the parsed staleness threshold.
// The configuration must have been validated first.
func (c *Config) GetStalenessThreshold() time.Duration {
	d, err := time.ParseDuration(c.StalenessThreshold)
	if err != nil {
		return DefaultStalenessThreshold
	}
	return d
}

// GetSourceDelay returns the parsed inter-source delay
func (c *Config) GetSourceDelay() time.Duration {
	d, err := time.ParseDuration(c.Scheduler.SourceDelay)
	if err != nil {
		return DefaultSourceDelay
	}
	return d
}

// GetPollInterval returns the parsed scheduler poll interval
func (c *Config) GetPollInterval() time.Duration {
	d, err := time.ParseDuration(c.Scheduler.PollInterval)
	if err != nil {
		return DefaultPollInterval
	}
	return d
}

// TimeOfDay is a clock time without a date, in the local time zone
type TimeOfDay struct {
	Hour   int
	Minute int
}

// ParseTimeOfDay parses an "HH:MM" (24-hour) string
func ParseTimeOfDay(s string) (TimeOfDay, error) {
	t, err := time.Parse("15:04", s)
	if err != nil {
		return TimeOfDay{}, fmt.Errorf("invalid time-of-day %q, expected HH:MM: %w", s, err)
	}
	return TimeOfDay{Hour: t.Hour(), Minute: t.Minute()}, nil
}

// Next returns the first instant after now that falls on this time-of-day
func (t TimeOfDay) Next(now time.Time) time.Time {
	next := time.Date(now.Year(), now.Month(), now.Day(), t.Hour, t.Minute, 0, 0, now.Location())
	if !next.After(now) {
		next = next.AddDate(0, 0, 1)
	}
	return next
}

// String returns the "HH:MM" representation
func (t TimeOfDay) String() string {
	return fmt.Sprintf("%02d:%02d", t.Hour, t.Minute)
}
