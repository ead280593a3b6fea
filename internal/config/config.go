package config

import (
	"fmt"
	"os"
	"strings"
	"time"

	"github.com/spf13/viper"
)

// Config holds the complete application configuration.
type Config struct {
	Storage       StorageConfig       `mapstructure:"storage"`
	Logging       LoggingConfig       `mapstructure:"logging"`
	Tracking      TrackingConfig      `mapstructure:"tracking"`
	Notifications NotificationsConfig `mapstructure:"notifications"`
	Portal        PortalConfig        `mapstructure:"portal"`
	Metrics       MetricsConfig       `mapstructure:"metrics"`
}

// StorageConfig defines storage backend settings.
type StorageConfig struct {
	Type  string      `mapstructure:"type"` // "bolt" or "redis"
	Path  string      `mapstructure:"path"`
	Redis RedisConfig `mapstructure:"redis"`
}

// RedisConfig defines Redis connection settings.
type RedisConfig struct {
	Host         string `mapstructure:"host"`
	Port         int    `mapstructure:"port"`
	Password     string `mapstructure:"password"`
	DB           int    `mapstructure:"db"`
	PoolSize     int    `mapstructure:"pool_size"`
	MinIdleConns int    `mapstructure:"min_idle_conns"`
	DialTimeout  string `mapstructure:"dial_timeout"`
	ReadTimeout  string `mapstructure:"read_timeout"`
	WriteTimeout string `mapstructure:"write_timeout"`
}

// LoggingConfig defines logging behavior.
type LoggingConfig struct {
	Level  string `mapstructure:"level"`
	Format string `mapstructure:"format"`
}

// TrackingConfig defines accrual loop settings.
type TrackingConfig struct {
	// TickInterval is the accrual cadence. One minute of usage is
	// recorded per elapsed minute regardless of the tick cadence.
	TickInterval string `mapstructure:"tick_interval"`
}

// NotificationsConfig defines how alerts are delivered.
type NotificationsConfig struct {
	Notifier string `mapstructure:"notifier"` // "log" or "command"
	// Command is invoked as: command <title> <body> <connection-id>
	Command string `mapstructure:"command"`
}

// PortalConfig defines the captive-portal scrape settings.
type PortalConfig struct {
	URL          string `mapstructure:"url"`
	Timeout      string `mapstructure:"timeout"`
	SyncInterval string `mapstructure:"sync_interval"` // empty disables periodic sync
}

// MetricsConfig defines the metrics endpoint settings.
type MetricsConfig struct {
	Enabled     bool   `mapstructure:"enabled"`
	Port        int    `mapstructure:"port"`
	BindAddress string `mapstructure:"bind_address"`
}

// Load loads configuration from file and environment variables.
func Load(configPath string) (*Config, error) {
	v := viper.New()

	setDefaults(v)

	v.SetConfigFile(configPath)
	v.SetEnvPrefix("WIFIMETER")
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	if err := v.ReadInConfig(); err != nil {
		_, notFound := err.(viper.ConfigFileNotFoundError)
		if !notFound && !os.IsNotExist(err) {
			return nil, fmt.Errorf("failed to read config file: %w", err)
		}
		// Config file not found, use defaults and environment variables
	}

	var config Config
	if err := v.Unmarshal(&config); err != nil {
		return nil, fmt.Errorf("failed to unmarshal config: %w", err)
	}

	if err := Validate(&config); err != nil {
		return nil, fmt.Errorf("invalid configuration: %w", err)
	}

	return &config, nil
}

// Default returns a configuration built from defaults only.
func Default() *Config {
	v := viper.New()
	setDefaults(v)

	var config Config
	_ = v.Unmarshal(&config)
	return &config
}

func setDefaults(v *viper.Viper) {
	// Storage defaults
	v.SetDefault("storage.type", "bolt")
	v.SetDefault("storage.path", "/var/lib/wifimeter/wifimeter.bolt")
	v.SetDefault("storage.redis.host", "127.0.0.1")
	v.SetDefault("storage.redis.port", 6379)
	v.SetDefault("storage.redis.db", 0)
	v.SetDefault("storage.redis.pool_size", 10)
	v.SetDefault("storage.redis.min_idle_conns", 2)
	v.SetDefault("storage.redis.dial_timeout", "5s")
	v.SetDefault("storage.redis.read_timeout", "3s")
	v.SetDefault("storage.redis.write_timeout", "3s")

	// Logging defaults
	v.SetDefault("logging.level", "info")
	v.SetDefault("logging.format", "json")

	// Tracking defaults
	v.SetDefault("tracking.tick_interval", "1m")

	// Notification defaults
	v.SetDefault("notifications.notifier", "log")

	// Portal defaults
	v.SetDefault("portal.timeout", "30s")

	// Metrics defaults
	v.SetDefault("metrics.enabled", true)
	v.SetDefault("metrics.port", 9090)
	v.SetDefault("metrics.bind_address", "0.0.0.0")
}

// Validate checks the configuration for invalid values.
func Validate(cfg *Config) error {
	switch cfg.Storage.Type {
	case "bolt":
		if cfg.Storage.Path == "" {
			return fmt.Errorf("storage.path is required for bolt storage")
		}
	case "redis":
		if cfg.Storage.Redis.Host == "" {
			return fmt.Errorf("storage.redis.host is required for redis storage")
		}
	default:
		return fmt.Errorf("storage.type must be \"bolt\" or \"redis\", got %q", cfg.Storage.Type)
	}

	switch cfg.Logging.Level {
	case "debug", "info", "warn", "error":
	default:
		return fmt.Errorf("logging.level must be debug, info, warn or error, got %q", cfg.Logging.Level)
	}

	switch cfg.Logging.Format {
	case "json", "text":
	default:
		return fmt.Errorf("logging.format must be json or text, got %q", cfg.Logging.Format)
	}

	tick, err := time.ParseDuration(cfg.Tracking.TickInterval)
	if err != nil {
		return fmt.Errorf("invalid tracking.tick_interval: %w", err)
	}
	if tick < time.Second {
		return fmt.Errorf("tracking.tick_interval must be at least 1s, got %s", tick)
	}

	switch cfg.Notifications.Notifier {
	case "log":
	case "command":
		if cfg.Notifications.Command == "" {
			return fmt.Errorf("notifications.command is required for the command notifier")
		}
	default:
		return fmt.Errorf("notifications.notifier must be \"log\" or \"command\", got %q", cfg.Notifications.Notifier)
	}

	if _, err := time.ParseDuration(cfg.Portal.Timeout); err != nil {
		return fmt.Errorf("invalid portal.timeout: %w", err)
	}
	if cfg.Portal.SyncInterval != "" {
		if _, err := time.ParseDuration(cfg.Portal.SyncInterval); err != nil {
			return fmt.Errorf("invalid portal.sync_interval: %w", err)
		}
	}

	if cfg.Metrics.Enabled && (cfg.Metrics.Port < 1 || cfg.Metrics.Port > 65535) {
		return fmt.Errorf("metrics.port must be in [1, 65535], got %d", cfg.Metrics.Port)
	}

	return nil
}
