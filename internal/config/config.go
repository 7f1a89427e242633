// Package config defines the application configuration and loads it from
// configuration files, environment variables, and command-line flags via
// viper, in that order of increasing precedence.
package config

import (
	"fmt"
	"strings"
)

// Config is the complete pagesift configuration.
type Config struct {
	LogLevel string `mapstructure:"log_level" yaml:"log_level" json:"log_level"`
	Verbose  bool   `mapstructure:"verbose" yaml:"verbose" json:"verbose"`

	Pipeline PipelineConfig `mapstructure:"pipeline" yaml:"pipeline" json:"pipeline"`
	Server   ServerConfig   `mapstructure:"server" yaml:"server" json:"server"`
}

// PipelineConfig contains extraction pipeline settings.
type PipelineConfig struct {
	// Language is the default recognition language (BCP-47 tag or a
	// native Tesseract code).
	Language string `mapstructure:"language" yaml:"language" json:"language"`

	// RenderScale is the page rasterization oversampling factor.
	RenderScale float64 `mapstructure:"render_scale" yaml:"render_scale" json:"render_scale"`

	// MinImageWidth/MinImageHeight filter embedded bitmaps at or below
	// these dimensions.
	MinImageWidth  int `mapstructure:"min_image_width" yaml:"min_image_width" json:"min_image_width"`
	MinImageHeight int `mapstructure:"min_image_height" yaml:"min_image_height" json:"min_image_height"`

	// MaxWorkers bounds per-page parallel rasterization (0 = NumCPU).
	MaxWorkers int `mapstructure:"max_workers" yaml:"max_workers" json:"max_workers"`
}

// ServerConfig contains HTTP server settings.
type ServerConfig struct {
	Host               string `mapstructure:"host" yaml:"host" json:"host"`
	Port               int    `mapstructure:"port" yaml:"port" json:"port"`
	CORSOrigin         string `mapstructure:"cors_origin" yaml:"cors_origin" json:"cors_origin"`
	MaxUploadMB        int64  `mapstructure:"max_upload_mb" yaml:"max_upload_mb" json:"max_upload_mb"`
	TimeoutSec         int    `mapstructure:"timeout_sec" yaml:"timeout_sec" json:"timeout_sec"`
	ShutdownTimeoutSec int    `mapstructure:"shutdown_timeout_sec" yaml:"shutdown_timeout_sec" json:"shutdown_timeout_sec"`

	RateLimit RateLimitConfig `mapstructure:"rate_limit" yaml:"rate_limit" json:"rate_limit"`
}

// RateLimitConfig contains request throttling settings.
type RateLimitConfig struct {
	Enabled           bool  `mapstructure:"enabled" yaml:"enabled" json:"enabled"`
	RequestsPerMinute int   `mapstructure:"requests_per_minute" yaml:"requests_per_minute" json:"requests_per_minute"`
	MaxRequestsPerDay int   `mapstructure:"max_requests_per_day" yaml:"max_requests_per_day" json:"max_requests_per_day"`
	MaxDataPerDay     int64 `mapstructure:"max_data_per_day" yaml:"max_data_per_day" json:"max_data_per_day"`
}

// Validate checks the configuration for values no command can run with.
func (c *Config) Validate() error {
	switch strings.ToLower(c.LogLevel) {
	case "", "debug", "info", "warn", "error":
	default:
		return fmt.Errorf("invalid log_level %q", c.LogLevel)
	}
	if c.Server.Port < 1 || c.Server.Port > 65535 {
		return fmt.Errorf("invalid server port %d", c.Server.Port)
	}
	if c.Server.MaxUploadMB <= 0 {
		return fmt.Errorf("server max_upload_mb must be positive, got %d", c.Server.MaxUploadMB)
	}
	if c.Pipeline.RenderScale <= 0 {
		return fmt.Errorf("pipeline render_scale must be positive, got %v", c.Pipeline.RenderScale)
	}
	if c.Pipeline.MaxWorkers < 0 {
		return fmt.Errorf("pipeline max_workers must not be negative, got %d", c.Pipeline.MaxWorkers)
	}
	return nil
}
