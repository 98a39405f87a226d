// Package logger provides JSON structured logging using zerolog, with
// optional size-based file rotation.
package logger

import (
	"fmt"
	"io"
	"os"
	"time"

	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"
	lj "gopkg.in/natefinch/lumberjack.v2"
)

// Default rotation settings for file output.
const (
	DefaultMaxSizeMB  = 10
	DefaultMaxBackups = 3
	DefaultMaxAgeDays = 7
)

// Config selects level and destination of the process log.
type Config struct {
	Level      string     `json:"level" mapstructure:"level"`
	Debug      bool       `json:"debug" mapstructure:"debug"`
	Output     string     `json:"output" mapstructure:"output"` // "stdout", "stderr" or "file"
	TimeFormat string     `json:"time_format" mapstructure:"time_format"`
	File       FileConfig `json:"file" mapstructure:"file"`
}

// FileConfig follows lumberjack rotation semantics.
type FileConfig struct {
	Path       string `json:"path" mapstructure:"path"`
	MaxSizeMB  int    `json:"max_size_mb" mapstructure:"max_size_mb"`
	MaxBackups int    `json:"max_backups" mapstructure:"max_backups"`
	MaxAgeDays int    `json:"max_age_days" mapstructure:"max_age_days"`
	Compress   bool   `json:"compress" mapstructure:"compress"`
}

var (
	globalLogger zerolog.Logger
	closer       io.Closer
)

func init() {
	globalLogger = zerolog.New(os.Stdout).With().Timestamp().Logger()
	zerolog.TimeFieldFormat = time.RFC3339
}

// Init replaces the global logger according to cfg.
func Init(cfg Config) error {
	out, c, err := cfg.Writer()
	if err != nil {
		return err
	}

	level := zerolog.InfoLevel
	if cfg.Debug {
		level = zerolog.DebugLevel
	} else if cfg.Level != "" {
		level, err = zerolog.ParseLevel(cfg.Level)
		if err != nil {
			return fmt.Errorf("invalid log level %q: %w", cfg.Level, err)
		}
	}

	if cfg.TimeFormat != "" {
		zerolog.TimeFieldFormat = cfg.TimeFormat
	}

	if closer != nil {
		_ = closer.Close()
	}
	closer = c

	globalLogger = zerolog.New(out).Level(level).With().Timestamp().Logger()
	log.Logger = globalLogger
	return nil
}

// Writer resolves the configured output. The returned closer is nil for the
// standard streams.
func (c Config) Writer() (io.Writer, io.Closer, error) {
	switch c.Output {
	case "", "stdout":
		return os.Stdout, nil, nil
	case "stderr":
		return os.Stderr, nil, nil
	case "file":
		if c.File.Path == "" {
			return nil, nil, fmt.Errorf("log output is file but no path is set")
		}
		w := &lj.Logger{
			Filename:   c.File.Path,
			MaxSize:    valOr(c.File.MaxSizeMB, DefaultMaxSizeMB),
			MaxBackups: valOr(c.File.MaxBackups, DefaultMaxBackups),
			MaxAge:     valOr(c.File.MaxAgeDays, DefaultMaxAgeDays),
			Compress:   c.File.Compress,
		}
		return w, w, nil
	default:
		return nil, nil, fmt.Errorf("unknown log output %q", c.Output)
	}
}

// Close flushes and closes a file destination, if any.
func Close() error {
	if closer == nil {
		return nil
	}
	err := closer.Close()
	closer = nil
	return err
}

// WithComponent returns a child logger tagged with component.
func WithComponent(component string) zerolog.Logger {
	return globalLogger.With().Str("component", component).Logger()
}

func valOr(v int, def int) int {
	if v <= 0 {
		return def
	}
	return v
}
