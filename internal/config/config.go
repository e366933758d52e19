package config

import (
	"fmt"
	"strings"
	"time"

	"github.com/spf13/viper"
)

// EnvPrefix prefixes environment overrides, e.g. SAFEDL_LOGGING_LEVEL
const EnvPrefix = "SAFEDL"

// Config represents the entire application configuration
type Config struct {
	Download    DownloadConfig    `mapstructure:"download"`
	HTTP        HTTPConfig        `mapstructure:"http"`
	Logging     LoggingConfig     `mapstructure:"logging"`
	Database    DatabaseConfig    `mapstructure:"database"`
	Maintenance MaintenanceConfig `mapstructure:"maintenance"`
	History     HistoryConfig     `mapstructure:"history"`
}

// DownloadConfig contains transfer settings
type DownloadConfig struct {
	DestDir               string `mapstructure:"dest_dir"`
	StagingSuffix         string `mapstructure:"staging_suffix"`
	BufferSizeKB          int    `mapstructure:"buffer_size_kb"`
	ChunkSizeKB           int    `mapstructure:"chunk_size_kb"`
	UserAgent             string `mapstructure:"user_agent"`
	InactivityTimeout     string `mapstructure:"inactivity_timeout"`
	ResponseHeaderTimeout string `mapstructure:"response_header_timeout"`
	CheckFreeSpace        bool   `mapstructure:"check_free_space"`
}

// HTTPConfig contains HTTP control API configuration
type HTTPConfig struct {
	BindAddr     string `mapstructure:"bind_addr"`
	Username     string `mapstructure:"username"`
	Password     string `mapstructure:"password"`
	ReadTimeout  string `mapstructure:"read_timeout"`
	WriteTimeout string `mapstructure:"write_timeout"`
	IdleTimeout  string `mapstructure:"idle_timeout"`
}

// LoggingConfig contains logging settings
type LoggingConfig struct {
	Level  string `mapstructure:"level"`
	Format string `mapstructure:"format"`
}

// DatabaseConfig contains history database settings
type DatabaseConfig struct {
	Path string `mapstructure:"path"`
}

// MaintenanceConfig contains background maintenance settings
type MaintenanceConfig struct {
	ScanDirs           []string `mapstructure:"scan_dirs"`
	StaleCheckInterval string   `mapstructure:"stale_check_interval"`
	StaleAfter         string   `mapstructure:"stale_after"`
	CleanupInterval    string   `mapstructure:"cleanup_interval"`
	StagingMaxAge      string   `mapstructure:"staging_max_age"`
	HistoryMaxAge      string   `mapstructure:"history_max_age"`
}

// HistoryConfig contains history journaling settings
type HistoryConfig struct {
	ProgressInterval string `mapstructure:"progress_interval"`
}

// Load loads configuration from the specified file path. An empty path
// uses defaults and environment overrides only.
func Load(configPath string) (*Config, error) {
	v := viper.New()
	setDefaults(v)

	v.SetEnvPrefix(EnvPrefix)
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	// Read config file
	if configPath != "" {
		v.SetConfigFile(configPath)
		v.SetConfigType("yaml")
		if err := v.ReadInConfig(); err != nil {
			return nil, fmt.Errorf("failed to read config file: %w", err)
		}
	}

	var config Config
	if err := v.Unmarshal(&config); err != nil {
		return nil, fmt.Errorf("failed to unmarshal config: %w", err)
	}

	// Validate configuration
	if err := config.Validate(); err != nil {
		return nil, fmt.Errorf("config validation failed: %w", err)
	}

	return &config, nil
}

func setDefaults(v *viper.Viper) {
	v.SetDefault("download.dest_dir", "")
	v.SetDefault("download.staging_suffix", ".downloading")
	v.SetDefault("download.buffer_size_kb", 256)
	v.SetDefault("download.chunk_size_kb", 32)
	v.SetDefault("download.user_agent", "safe-downloader/1.0")
	v.SetDefault("download.inactivity_timeout", "0s")
	v.SetDefault("download.response_header_timeout", "0s")
	v.SetDefault("download.check_free_space", true)
	v.SetDefault("http.bind_addr", "127.0.0.1:8080")
	v.SetDefault("http.username", "")
	v.SetDefault("http.password", "")
	v.SetDefault("http.read_timeout", "30s")
	v.SetDefault("http.write_timeout", "30s")
	v.SetDefault("http.idle_timeout", "60s")
	v.SetDefault("logging.level", "info")
	v.SetDefault("logging.format", "text")
	v.SetDefault("database.path", "")
	v.SetDefault("maintenance.scan_dirs", []string{})
	v.SetDefault("maintenance.stale_check_interval", "1m")
	v.SetDefault("maintenance.stale_after", "5m")
	v.SetDefault("maintenance.cleanup_interval", "1h")
	v.SetDefault("maintenance.staging_max_age", "24h")
	v.SetDefault("maintenance.history_max_age", "720h")
	v.SetDefault("history.progress_interval", "2s")
}

// Validate validates the configuration
func (c *Config) Validate() error {
	// Validate download config
	if c.Download.StagingSuffix == "" {
		return fmt.Errorf("download.staging_suffix is required")
	}
	if strings.ContainsAny(c.Download.StagingSuffix, `/\`) {
		return fmt.Errorf("download.staging_suffix must not contain path separators")
	}
	if c.Download.BufferSizeKB <= 0 {
		return fmt.Errorf("download.buffer_size_kb must be positive")
	}
	if c.Download.ChunkSizeKB <= 0 {
		return fmt.Errorf("download.chunk_size_kb must be positive")
	}

	durations := map[string]string{
		"download.inactivity_timeout":      c.Download.InactivityTimeout,
		"download.response_header_timeout": c.Download.ResponseHeaderTimeout,
		"http.read_timeout":                c.HTTP.ReadTimeout,
		"http.write_timeout":               c.HTTP.WriteTimeout,
		"http.idle_timeout":                c.HTTP.IdleTimeout,
		"maintenance.stale_check_interval": c.Maintenance.StaleCheckInterval,
		"maintenance.stale_after":          c.Maintenance.StaleAfter,
		"maintenance.cleanup_interval":     c.Maintenance.CleanupInterval,
		"maintenance.staging_max_age":      c.Maintenance.StagingMaxAge,
		"maintenance.history_max_age":      c.Maintenance.HistoryMaxAge,
		"history.progress_interval":        c.History.ProgressInterval,
	}
	for key, value := range durations {
		if value == "" {
			continue
		}
		d, err := time.ParseDuration(value)
		if err != nil {
			return fmt.Errorf("invalid %s: %w", key, err)
		}
		if d < 0 {
			return fmt.Errorf("%s must not be negative", key)
		}
	}

	// Validate HTTP auth
	if c.HTTP.Username != "" && c.HTTP.Password == "" {
		return fmt.Errorf("http.password is required when http.username is set")
	}

	// Validate logging config
	switch c.Logging.Level {
	case "debug", "info", "warn", "error":
		// Valid levels
	default:
		return fmt.Errorf("invalid logging.level: %s", c.Logging.Level)
	}

	switch c.Logging.Format {
	case "json", "text":
		// Valid formats
	default:
		return fmt.Errorf("invalid logging.format: %s", c.Logging.Format)
	}

	return nil
}

// parseDuration parses value, returning fallback when it is empty or invalid
func parseDuration(value string, fallback time.Duration) time.Duration {
	d, err := time.ParseDuration(value)
	if err != nil || d < 0 {
		return fallback
	}
	return d
}

// GetBufferSize returns the staging write buffer size in bytes
func (c *DownloadConfig) GetBufferSize() int {
	if c.BufferSizeKB <= 0 {
		return 256 * 1024 // 256KB default
	}
	return c.BufferSizeKB * 1024
}

// GetChunkSize returns the network read size in bytes
func (c *DownloadConfig) GetChunkSize() int {
	if c.ChunkSizeKB <= 0 {
		return 32 * 1024
	}
	return c.ChunkSizeKB * 1024
}

// GetInactivityTimeout returns the inactivity timeout; 0 disables it
func (c *DownloadConfig) GetInactivityTimeout() time.Duration {
	return parseDuration(c.InactivityTimeout, 0)
}

// GetResponseHeaderTimeout returns the response header timeout; 0 waits forever
func (c *DownloadConfig) GetResponseHeaderTimeout() time.Duration {
	return parseDuration(c.ResponseHeaderTimeout, 0)
}

// GetReadTimeout returns the read timeout as time.Duration
func (c *HTTPConfig) GetReadTimeout() time.Duration {
	d := parseDuration(c.ReadTimeout, 0)
	if d == 0 {
		return 30 * time.Second
	}
	return d
}

// GetWriteTimeout returns the write timeout as time.Duration
func (c *HTTPConfig) GetWriteTimeout() time.Duration {
	d := parseDuration(c.WriteTimeout, 0)
	if d == 0 {
		return 30 * time.Second
	}
	return d
}

// GetIdleTimeout returns the idle timeout as time.Duration
func (c *HTTPConfig) GetIdleTimeout() time.Duration {
	d := parseDuration(c.IdleTimeout, 0)
	if d == 0 {
		return 60 * time.Second
	}
	return d
}

// GetStaleCheckInterval returns the interrupted-transfer check interval
func (c *MaintenanceConfig) GetStaleCheckInterval() time.Duration {
	return parseDuration(c.StaleCheckInterval, time.Minute)
}

// GetStaleAfter returns how long an unowned record may stay silent
func (c *MaintenanceConfig) GetStaleAfter() time.Duration {
	return parseDuration(c.StaleAfter, 5*time.Minute)
}

// GetCleanupInterval returns the cleanup interval
func (c *MaintenanceConfig) GetCleanupInterval() time.Duration {
	return parseDuration(c.CleanupInterval, time.Hour)
}

// GetStagingMaxAge returns the maximum age of leftover staging files
func (c *MaintenanceConfig) GetStagingMaxAge() time.Duration {
	return parseDuration(c.StagingMaxAge, 24*time.Hour)
}

// GetHistoryMaxAge returns the retention of finished history records
func (c *MaintenanceConfig) GetHistoryMaxAge() time.Duration {
	return parseDuration(c.HistoryMaxAge, 30*24*time.Hour)
}

// GetProgressInterval returns the minimum interval between persisted progress rows
func (c *HistoryConfig) GetProgressInterval() time.Duration {
	d := parseDuration(c.ProgressInterval, 0)
	if d == 0 {
		return 2 * time.Second
	}
	return d
}
