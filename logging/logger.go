package logging

import (
	"io"
	"os"
	"strings"
	"time"

	"github.com/rs/zerolog"
)

// Logger wraps zerolog.Logger with the engine's component tagging.
type Logger struct {
	logger zerolog.Logger
}

// New constructs a Logger from cfg, applying ApplyDefaults to its own
// copy of cfg; the caller's Config is left unchanged.
func New(cfg Config) *Logger {
	cfg.ApplyDefaults()

	level, err := zerolog.ParseLevel(cfg.Level)
	if err != nil {
		level = zerolog.InfoLevel
	}

	var out io.Writer = os.Stdout
	if strings.EqualFold(cfg.Format, "console") {
		out = zerolog.ConsoleWriter{Out: os.Stdout, NoColor: cfg.NoColor, TimeFormat: time.RFC3339}
	}

	zl := zerolog.New(out).Level(level).With().Timestamp().Logger()
	if cfg.Caller {
		zl = zl.With().Caller().Logger()
	}
	return &Logger{logger: zl}
}

// NewNop returns a Logger that discards everything, for tests and
// callers that pass no logger configuration.
func NewNop() *Logger {
	return &Logger{logger: zerolog.Nop()}
}

// Zerolog returns the underlying zerolog.Logger, the shape package policy
// and package exec accept directly.
func (l *Logger) Zerolog() *zerolog.Logger { return &l.logger }

// WithComponent returns a Logger tagged with component, for per-package
// sub-loggers (e.g. "checker", "executor", "scheduler").
func (l *Logger) WithComponent(component string) *Logger {
	return &Logger{logger: l.logger.With().Str("component", component).Logger()}
}

// WithExecution returns a Logger tagged with an executionId, for per-run
// sub-loggers inside the DAG executor.
func (l *Logger) WithExecution(executionID string) *Logger {
	return &Logger{logger: l.logger.With().Str("execution_id", executionID).Logger()}
}

func (l *Logger) Debug(msg string) { l.logger.Debug().Msg(msg) }
func (l *Logger) Info(msg string)  { l.logger.Info().Msg(msg) }
func (l *Logger) Warn(msg string)  { l.logger.Warn().Msg(msg) }

func (l *Logger) Error(err error, msg string) { l.logger.Error().Err(err).Msg(msg) }
