package config

import (
	"fmt"
	"strings"

	"github.com/spf13/viper"
)

// Load reads configuration from configFile (if non-empty), then
// LOOM_-prefixed environment variables, applies defaults, and
// validates the result. An empty configFile skips the file read —
// environment and defaults still apply.
func Load(configFile string) (*Config, error) {
	v := viper.New()
	v.SetEnvPrefix("LOOM")
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()
	// Unmarshal only sees keys viper already knows, so AutomaticEnv alone
	// would not reach keys absent from the file; bind each one explicitly.
	for _, key := range []string{
		"default_cache_size", "default_concurrency", "scheduler_max_queue_size",
		"scheduler_aging_every", "scheduler_boost_per_tick", "suspension_store_enabled",
		"logging.level", "logging.format", "logging.output",
	} {
		_ = v.BindEnv(key)
	}

	if configFile != "" {
		v.SetConfigFile(configFile)
		if err := v.ReadInConfig(); err != nil {
			return nil, fmt.Errorf("reading config file %q: %w", configFile, err)
		}
	}

	var cfg Config
	if err := v.Unmarshal(&cfg); err != nil {
		return nil, fmt.Errorf("unmarshaling config: %w", err)
	}
	cfg.ApplyDefaults()
	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("invalid config: %w", err)
	}
	return &cfg, nil
}
