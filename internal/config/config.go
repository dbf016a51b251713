// Package config provides configuration management for encodarr using Viper.
// It supports configuration from files, environment variables, and defaults.
package config

import (
	"errors"
	"fmt"
	"path/filepath"
	"reflect"
	"strings"
	"time"

	"github.com/go-viper/mapstructure/v2"
	"github.com/spf13/viper"

	"github.com/jmylchreest/encodarr/pkg/duration"
)

// Default configuration values.
const (
	defaultServerPort        = 8080
	defaultServerTimeout     = 30 * time.Second
	defaultShutdownTimeout   = 10 * time.Second
	defaultMaxOpenConns      = 25
	defaultMaxIdleConns      = 10
	defaultConnMaxIdleTime   = 30 * time.Minute
	defaultMaxConcurrentJobs = 10
	defaultStopGrace         = 10 * time.Second
	defaultStartupDeadline   = 30 * time.Second
	defaultSegmentDuration   = 6
	defaultStatsRetention    = 24 * time.Hour
	defaultStatsBatchSize    = 10
	defaultStatsFlush        = time.Second
	defaultMetricsInterval   = 5 * time.Second
)

// Config holds all configuration for the application.
type Config struct {
	Server   ServerConfig   `mapstructure:"server"`
	Database DatabaseConfig `mapstructure:"database"`
	Storage  StorageConfig  `mapstructure:"storage"`
	Logging  LoggingConfig  `mapstructure:"logging"`
	Encoder  EncoderConfig  `mapstructure:"encoder"`
}

// ServerConfig holds HTTP server configuration.
type ServerConfig struct {
	Host            string        `mapstructure:"host"`
	Port            int           `mapstructure:"port"`
	ReadTimeout     time.Duration `mapstructure:"read_timeout"`
	WriteTimeout    time.Duration `mapstructure:"write_timeout"`
	ShutdownTimeout time.Duration `mapstructure:"shutdown_timeout"`
	CORSOrigins     []string      `mapstructure:"cors_origins"`
}

// DatabaseConfig holds database connection configuration.
type DatabaseConfig struct {
	Driver          string        `mapstructure:"driver"` // sqlite, postgres, mysql
	DSN             string        `mapstructure:"dsn"`
	MaxOpenConns    int           `mapstructure:"max_open_conns"`
	MaxIdleConns    int           `mapstructure:"max_idle_conns"`
	ConnMaxLifetime time.Duration `mapstructure:"conn_max_lifetime"`
	ConnMaxIdleTime time.Duration `mapstructure:"conn_max_idle_time"`
	LogLevel        string        `mapstructure:"log_level"` // silent, error, warn, info
}

// StorageConfig holds file storage configuration.
type StorageConfig struct {
	BaseDir      string `mapstructure:"base_dir"`
	InputDir     string `mapstructure:"input_dir"`
	OutputDir    string `mapstructure:"output_dir"`
	HLSDir       string `mapstructure:"hls_dir"`
	LogDir       string `mapstructure:"log_dir"`
	HLSPublicURL string `mapstructure:"hls_public_url"`
}

// LoggingConfig holds logging configuration.
type LoggingConfig struct {
	Level      string `mapstructure:"level"`  // debug, info, warn, error
	Format     string `mapstructure:"format"` // json, text
	AddSource  bool   `mapstructure:"add_source"`
	TimeFormat string `mapstructure:"time_format"`
}

// EncoderConfig holds ffmpeg process supervision configuration.
type EncoderConfig struct {
	BinaryPath            string        `mapstructure:"binary_path"` // Path to ffmpeg binary (empty = auto-detect)
	MaxConcurrentJobs     int           `mapstructure:"max_concurrent_jobs"`
	StopGrace             time.Duration `mapstructure:"stop_grace"`       // SIGTERM to SIGKILL escalation window
	StartupDeadline       time.Duration `mapstructure:"startup_deadline"` // first output or exit expected within this
	AutoRestartJobsOnBoot bool          `mapstructure:"auto_restart_jobs_on_boot"`
	DefaultSegmentDur     int           `mapstructure:"default_segment_duration"` // seconds
	StatsRetention        time.Duration `mapstructure:"stats_retention"`
	StatsBatchSize        int           `mapstructure:"stats_batch_size"`
	StatsFlushInterval    time.Duration `mapstructure:"stats_flush_interval"`
	MetricsInterval       time.Duration `mapstructure:"metrics_interval"` // host metric sampling period
}

// Load reads configuration from file and environment variables.
// Environment variables take precedence over file configuration.
// Environment variables are prefixed with ENCODARR_ and use underscores for nesting.
// Example: ENCODARR_SERVER_PORT=8080.
func Load(configPath string) (*Config, error) {
	v := viper.New()

	SetDefaults(v)

	if configPath != "" {
		v.SetConfigFile(configPath)
	} else {
		v.SetConfigName("config")
		v.SetConfigType("yaml")
		v.AddConfigPath(".")
		v.AddConfigPath("./configs")
		v.AddConfigPath("/etc/encodarr")
		v.AddConfigPath("$HOME/.encodarr")
	}

	v.SetEnvPrefix("ENCODARR")
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	// Bare env names kept for container deployments that predate the
	// ENCODARR_ prefix.
	bindLegacyEnv(v)

	if err := v.ReadInConfig(); err != nil {
		var configFileNotFoundError viper.ConfigFileNotFoundError
		if !errors.As(err, &configFileNotFoundError) {
			return nil, fmt.Errorf("reading config file: %w", err)
		}
		// Config file not found is OK - we'll use defaults and env vars
	}

	var cfg Config
	if err := v.Unmarshal(&cfg, viper.DecodeHook(mapstructure.ComposeDecodeHookFunc(
		extendedDurationHook(),
		mapstructure.StringToTimeDurationHookFunc(),
		mapstructure.StringToSliceHookFunc(","),
	))); err != nil {
		return nil, fmt.Errorf("unmarshaling config: %w", err)
	}

	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("validating config: %w", err)
	}

	return &cfg, nil
}

// extendedDurationHook parses duration strings with the extended units
// from pkg/duration, so config files can say "30d" or "2w" where the
// standard library only accepts hours and below.
func extendedDurationHook() mapstructure.DecodeHookFuncType {
	durationType := reflect.TypeOf(time.Duration(0))
	return func(from reflect.Type, to reflect.Type, data any) (any, error) {
		if from.Kind() != reflect.String || to != durationType {
			return data, nil
		}
		return duration.Parse(data.(string))
	}
}

// bindLegacyEnv maps unprefixed environment variables onto their viper keys.
func bindLegacyEnv(v *viper.Viper) {
	aliases := map[string]string{
		"encoder.max_concurrent_jobs":       "MAX_CONCURRENT_JOBS",
		"encoder.auto_restart_jobs_on_boot": "AUTO_RESTART_JOBS_ON_BOOT",
		"encoder.default_segment_duration":  "DEFAULT_SEGMENT_DURATION",
		"storage.hls_public_url":            "HLS_URL",
		"storage.input_dir":                 "INPUT_PATH",
		"storage.output_dir":                "OUTPUT_PATH",
		"storage.base_dir":                  "DATA_PATH",
	}
	for key, env := range aliases {
		// BindEnv only errors on an empty key.
		_ = v.BindEnv(key, "ENCODARR_"+strings.ToUpper(strings.ReplaceAll(key, ".", "_")), env)
	}
}

// SetDefaults configures default values for all configuration options.
// This should be called before reading the config file to ensure defaults are in place.
func SetDefaults(v *viper.Viper) {
	// Server defaults
	v.SetDefault("server.host", "0.0.0.0")
	v.SetDefault("server.port", defaultServerPort)
	v.SetDefault("server.read_timeout", defaultServerTimeout)
	v.SetDefault("server.write_timeout", defaultServerTimeout)
	v.SetDefault("server.shutdown_timeout", defaultShutdownTimeout)
	v.SetDefault("server.cors_origins", []string{"*"})

	// Database defaults
	v.SetDefault("database.driver", "sqlite")
	v.SetDefault("database.dsn", "encodarr.db")
	v.SetDefault("database.max_open_conns", defaultMaxOpenConns)
	v.SetDefault("database.max_idle_conns", defaultMaxIdleConns)
	v.SetDefault("database.conn_max_lifetime", time.Hour)
	v.SetDefault("database.conn_max_idle_time", defaultConnMaxIdleTime)
	v.SetDefault("database.log_level", "warn")

	// Storage defaults
	v.SetDefault("storage.base_dir", "./data")
	v.SetDefault("storage.input_dir", "input")
	v.SetDefault("storage.output_dir", "output")
	v.SetDefault("storage.hls_dir", "hls")
	v.SetDefault("storage.log_dir", "logs")
	v.SetDefault("storage.hls_public_url", "")

	// Logging defaults
	v.SetDefault("logging.level", "info")
	v.SetDefault("logging.format", "json")
	v.SetDefault("logging.add_source", false)
	v.SetDefault("logging.time_format", time.RFC3339)

	// Encoder defaults
	v.SetDefault("encoder.binary_path", "")
	v.SetDefault("encoder.max_concurrent_jobs", defaultMaxConcurrentJobs)
	v.SetDefault("encoder.stop_grace", defaultStopGrace)
	v.SetDefault("encoder.startup_deadline", defaultStartupDeadline)
	v.SetDefault("encoder.auto_restart_jobs_on_boot", false)
	v.SetDefault("encoder.default_segment_duration", defaultSegmentDuration)
	v.SetDefault("encoder.stats_retention", defaultStatsRetention)
	v.SetDefault("encoder.stats_batch_size", defaultStatsBatchSize)
	v.SetDefault("encoder.stats_flush_interval", defaultStatsFlush)
	v.SetDefault("encoder.metrics_interval", defaultMetricsInterval)
}

// Validate checks the configuration for errors.
func (c *Config) Validate() error {
	const maxPort = 65535
	if c.Server.Port < 1 || c.Server.Port > maxPort {
		return fmt.Errorf("server.port must be between 1 and %d", maxPort)
	}

	validDrivers := map[string]bool{"sqlite": true, "postgres": true, "mysql": true}
	if !validDrivers[c.Database.Driver] {
		return fmt.Errorf("database.driver must be one of: sqlite, postgres, mysql")
	}
	if c.Database.DSN == "" {
		return fmt.Errorf("database.dsn is required")
	}

	if c.Storage.BaseDir == "" {
		return fmt.Errorf("storage.base_dir is required")
	}

	validLevels := map[string]bool{"debug": true, "info": true, "warn": true, "error": true}
	if !validLevels[c.Logging.Level] {
		return fmt.Errorf("logging.level must be one of: debug, info, warn, error")
	}
	validFormats := map[string]bool{"json": true, "text": true}
	if !validFormats[c.Logging.Format] {
		return fmt.Errorf("logging.format must be one of: json, text")
	}

	if c.Encoder.MaxConcurrentJobs < 1 {
		return fmt.Errorf("encoder.max_concurrent_jobs must be at least 1")
	}
	if c.Encoder.StopGrace <= 0 {
		return fmt.Errorf("encoder.stop_grace must be positive")
	}
	if c.Encoder.StartupDeadline <= 0 {
		return fmt.Errorf("encoder.startup_deadline must be positive")
	}
	if c.Encoder.DefaultSegmentDur < 1 || c.Encoder.DefaultSegmentDur > 30 {
		return fmt.Errorf("encoder.default_segment_duration must be between 1 and 30")
	}
	if c.Encoder.StatsBatchSize < 1 {
		return fmt.Errorf("encoder.stats_batch_size must be at least 1")
	}
	if c.Encoder.StatsFlushInterval <= 0 {
		return fmt.Errorf("encoder.stats_flush_interval must be positive")
	}

	return nil
}

// Address returns the server address in host:port format.
func (c *ServerConfig) Address() string {
	return fmt.Sprintf("%s:%d", c.Host, c.Port)
}

// resolve joins dir onto BaseDir unless dir is already absolute.
func (c *StorageConfig) resolve(dir string) string {
	if filepath.IsAbs(dir) {
		return dir
	}
	return filepath.Join(c.BaseDir, dir)
}

// InputPath returns the full path to the input media directory.
func (c *StorageConfig) InputPath() string {
	return c.resolve(c.InputDir)
}

// OutputPath returns the full path to the file output directory.
func (c *StorageConfig) OutputPath() string {
	return c.resolve(c.OutputDir)
}

// HLSPath returns the full path to the HLS output root.
func (c *StorageConfig) HLSPath() string {
	return c.resolve(c.HLSDir)
}

// LogPath returns the full path to the per-job log directory.
func (c *StorageConfig) LogPath() string {
	return c.resolve(c.LogDir)
}
