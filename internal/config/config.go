package config

import (
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/franckalain/medtrack/internal/logger"
	"github.com/franckalain/medtrack/internal/recognition"
	"github.com/spf13/viper"
)

// EnvPrefix prefixes every environment override, e.g. MEDTRACK_SERVER_PORT.
const EnvPrefix = "MEDTRACK"

// Config holds all application configuration
type Config struct {
	Server struct {
		Port      string `json:"port" mapstructure:"port"`
		StaticDir string `json:"static_dir" mapstructure:"static_dir"`
		Debug     bool   `json:"debug" mapstructure:"debug"`
	} `json:"server" mapstructure:"server"`

	Database struct {
		Path string `json:"path" mapstructure:"path"`
	} `json:"database" mapstructure:"database"`

	ML recognition.Config `json:"ml" mapstructure:"ml"`

	Logging logger.Config `json:"logging" mapstructure:"logging"`

	Capture struct {
		// AcquireTimeoutSeconds bounds how long the server waits for the
		// client to report its camera feed.
		AcquireTimeoutSeconds int `json:"acquire_timeout_seconds" mapstructure:"acquire_timeout_seconds"`
	} `json:"capture" mapstructure:"capture"`
}

// AcquireTimeout returns the camera acquisition timeout.
func (c *Config) AcquireTimeout() time.Duration {
	return time.Duration(c.Capture.AcquireTimeoutSeconds) * time.Second
}

func setDefaults(v *viper.Viper) {
	v.SetDefault("server.static_dir", "./static")
	v.SetDefault("server.debug", false)
	v.SetDefault("database.path", "medtrack.db")
	v.SetDefault("ml.type", "local")
	v.SetDefault("ml.google.project_id", "")
	v.SetDefault("ml.google.location", "")
	v.SetDefault("ml.google.credentials_file", "")
	v.SetDefault("ml.google.model", "")
	v.SetDefault("logging.level", "info")
	v.SetDefault("logging.debug", false)
	v.SetDefault("logging.output", "stdout")
	v.SetDefault("logging.time_format", "")
	v.SetDefault("logging.file.path", "")
	v.SetDefault("logging.file.max_size_mb", logger.DefaultMaxSizeMB)
	v.SetDefault("logging.file.max_backups", logger.DefaultMaxBackups)
	v.SetDefault("logging.file.max_age_days", logger.DefaultMaxAgeDays)
	v.SetDefault("logging.file.compress", false)
	v.SetDefault("capture.acquire_timeout_seconds", 30)
}

// LoadConfig loads configuration from a JSON file, then applies MEDTRACK_*
// environment overrides. A missing file is not an error; every other value has
// a default except the server port.
func LoadConfig(configPath string) (*Config, error) {
	v := viper.New()
	setDefaults(v)

	v.SetEnvPrefix(EnvPrefix)
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()
	if err := v.BindEnv("server.port"); err != nil {
		return nil, fmt.Errorf("failed to bind server port: %w", err)
	}

	if configPath != "" {
		if _, err := os.Stat(configPath); err == nil {
			v.SetConfigFile(configPath)
			v.SetConfigType("json")
			if err := v.ReadInConfig(); err != nil {
				return nil, fmt.Errorf("failed to read config file: %w", err)
			}
		} else if !os.IsNotExist(err) {
			return nil, fmt.Errorf("failed to stat config file: %w", err)
		}
	}

	var config Config
	if err := v.Unmarshal(&config); err != nil {
		return nil, fmt.Errorf("failed to parse config file: %w", err)
	}

	if config.Server.Port == "" {
		return nil, fmt.Errorf("server port is not set in config file")
	}
	if config.Capture.AcquireTimeoutSeconds <= 0 {
		return nil, fmt.Errorf("capture.acquire_timeout_seconds must be positive")
	}

	return &config, nil
}

// GetConfigPath returns the path to the configuration file
func GetConfigPath() string {
	// First try environment variable
	if path := os.Getenv("MEDTRACK_CONFIG"); path != "" {
		return path
	}

	// Then try config directory
	configDir := "config"
	if _, err := os.Stat(configDir); err == nil {
		return filepath.Join(configDir, "config.json")
	}

	// Finally, try current directory
	return "config.json"
}
