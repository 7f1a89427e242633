package config

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"github.com/spf13/viper"
)

const (
	// ConfigFileName is the base name for configuration files.
	ConfigFileName = "pagesift"

	// EnvPrefix is the prefix for environment variables.
	EnvPrefix = "PAGESIFT"
)

// Loader loads configuration from files, environment, and bound flags.
type Loader struct {
	v *viper.Viper
}

// NewLoader creates a loader over the global viper instance so cobra flag
// bindings participate in precedence.
func NewLoader() *Loader {
	return &Loader{v: viper.GetViper()}
}

// Load reads configuration from all sources and validates the result.
func (l *Loader) Load() (*Config, error) {
	l.v.SetConfigName(ConfigFileName)
	l.v.SetConfigType("yaml")
	l.addConfigPaths()
	l.setupEnvironment()
	l.setDefaults()

	if err := l.v.ReadInConfig(); err != nil {
		// A missing config file is fine; defaults and env vars apply.
		var notFound viper.ConfigFileNotFoundError
		if !errors.As(err, &notFound) {
			return nil, fmt.Errorf("error reading config file: %w", err)
		}
	}

	var cfg Config
	if err := l.v.Unmarshal(&cfg); err != nil {
		return nil, fmt.Errorf("error unmarshaling config: %w", err)
	}
	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("configuration validation failed: %w", err)
	}
	return &cfg, nil
}

// SetConfigFile points the loader at an explicit config file path.
func (l *Loader) SetConfigFile(path string) {
	l.v.SetConfigFile(path)
}

func (l *Loader) addConfigPaths() {
	l.v.AddConfigPath(".")
	if home, err := os.UserHomeDir(); err == nil {
		l.v.AddConfigPath(home)
		l.v.AddConfigPath(filepath.Join(home, ".config", "pagesift"))
	}
	l.v.AddConfigPath("/etc/pagesift")
}

func (l *Loader) setupEnvironment() {
	l.v.SetEnvPrefix(EnvPrefix)
	l.v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	l.v.AutomaticEnv()
}

func (l *Loader) setDefaults() {
	l.v.SetDefault("log_level", "info")
	l.v.SetDefault("verbose", false)

	l.v.SetDefault("pipeline.language", "")
	l.v.SetDefault("pipeline.render_scale", 2.0)
	l.v.SetDefault("pipeline.min_image_width", 50)
	l.v.SetDefault("pipeline.min_image_height", 50)
	l.v.SetDefault("pipeline.max_workers", 0)

	l.v.SetDefault("server.host", "localhost")
	l.v.SetDefault("server.port", 8080)
	l.v.SetDefault("server.cors_origin", "*")
	l.v.SetDefault("server.max_upload_mb", 50)
	l.v.SetDefault("server.timeout_sec", 120)
	l.v.SetDefault("server.shutdown_timeout_sec", 10)

	l.v.SetDefault("server.rate_limit.enabled", false)
	l.v.SetDefault("server.rate_limit.requests_per_minute", 60)
	l.v.SetDefault("server.rate_limit.max_requests_per_day", 0)
	l.v.SetDefault("server.rate_limit.max_data_per_day", 0)
}
