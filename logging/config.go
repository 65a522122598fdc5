// Package logging wraps zerolog.Logger with the engine's field/format
// conventions, grounded on the teacher corpus's logger package
// (kbukum-gokit/logger) rather than the teacher repo itself, which logs
// ad hoc per example rather than through a shared wrapper.
package logging

import "fmt"

// Config configures a Logger.
type Config struct {
	Level   string `yaml:"level" mapstructure:"level"`
	Format  string `yaml:"format" mapstructure:"format"`
	Output  string `yaml:"output" mapstructure:"output"`
	NoColor bool   `yaml:"no_color" mapstructure:"no_color"`
	Caller  bool   `yaml:"caller" mapstructure:"caller"`
}

// ApplyDefaults fills unset fields with their defaults.
func (c *Config) ApplyDefaults() {
	if c.Level == "" {
		c.Level = "info"
	}
	if c.Format == "" {
		c.Format = "console"
	}
	if c.Output == "" {
		c.Output = "stdout"
	}
}

// Validate rejects a Config with an unrecognized level or format.
func (c *Config) Validate() error {
	switch c.Level {
	case "debug", "info", "warn", "error", "fatal", "trace":
	default:
		return fmt.Errorf("logging.level must be one of debug|info|warn|error|fatal|trace (got %q)", c.Level)
	}
	switch c.Format {
	case "json", "console":
	default:
		return fmt.Errorf("logging.format must be one of json|console (got %q)", c.Format)
	}
	return nil
}
