// Package config loads the engine's process-wide tunables: default
// cache size, default concurrency limit, scheduler aging interval, and
// whether a suspension store is enabled. Grounded on the teacher
// corpus's config package (kbukum-gokit/config/base.go) — a
// mapstructure-tagged struct with ApplyDefaults/Validate — generalized
// from a service's BaseConfig to the engine's own tunables.
package config

import (
	"fmt"
	"time"
)

// Config holds the engine-wide defaults. Packages exec, sched and store
// do not read it: cmd/loomctl copies the concurrency, scheduler and
// suspension-store fields into what it constructs. DefaultCacheSize is
// defaulted and validated but not passed on.
type Config struct {
	DefaultCacheSize      int           `yaml:"default_cache_size" mapstructure:"default_cache_size"`
	DefaultConcurrency    int           `yaml:"default_concurrency" mapstructure:"default_concurrency"`
	SchedulerMaxQueueSize int           `yaml:"scheduler_max_queue_size" mapstructure:"scheduler_max_queue_size"`
	SchedulerAgingEvery   time.Duration `yaml:"scheduler_aging_every" mapstructure:"scheduler_aging_every"`
	SchedulerBoostPerTick int           `yaml:"scheduler_boost_per_tick" mapstructure:"scheduler_boost_per_tick"`
	SuspensionStoreEnabled bool         `yaml:"suspension_store_enabled" mapstructure:"suspension_store_enabled"`
	Logging               LoggingConfig `yaml:"logging" mapstructure:"logging"`
}

// LoggingConfig mirrors package logging's Config, duplicated here (rather
// than imported) so package config has no dependency on package logging —
// the caller copies fields across at startup.
type LoggingConfig struct {
	Level  string `yaml:"level" mapstructure:"level"`
	Format string `yaml:"format" mapstructure:"format"`
	Output string `yaml:"output" mapstructure:"output"`
}

// ApplyDefaults fills unset fields with the engine's defaults.
func (c *Config) ApplyDefaults() {
	if c.DefaultCacheSize == 0 {
		c.DefaultCacheSize = 1024
	}
	if c.DefaultConcurrency == 0 {
		c.DefaultConcurrency = 8
	}
	if c.SchedulerMaxQueueSize == 0 {
		c.SchedulerMaxQueueSize = 10_000
	}
	if c.SchedulerAgingEvery == 0 {
		c.SchedulerAgingEvery = 5 * time.Second
	}
	if c.SchedulerBoostPerTick == 0 {
		c.SchedulerBoostPerTick = 1
	}
	if c.Logging.Level == "" {
		c.Logging.Level = "info"
	}
	if c.Logging.Format == "" {
		c.Logging.Format = "console"
	}
	if c.Logging.Output == "" {
		c.Logging.Output = "stdout"
	}
}

// Validate rejects a Config with an out-of-range tunable.
func (c *Config) Validate() error {
	if c.DefaultCacheSize < 1 {
		return fmt.Errorf("default_cache_size must be >= 1 (got %d)", c.DefaultCacheSize)
	}
	if c.DefaultConcurrency < 1 {
		return fmt.Errorf("default_concurrency must be >= 1 (got %d)", c.DefaultConcurrency)
	}
	if c.SchedulerMaxQueueSize < 1 {
		return fmt.Errorf("scheduler_max_queue_size must be >= 1 (got %d)", c.SchedulerMaxQueueSize)
	}
	if c.SchedulerAgingEvery <= 0 {
		return fmt.Errorf("scheduler_aging_every must be positive (got %s)", c.SchedulerAgingEvery)
	}
	return nil
}
