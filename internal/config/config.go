package config

import (
	"os"
	"path/filepath"
	"time"

	"github.com/pixperk/sharelock/pkg/manager"
	"github.com/spf13/viper"
)

// Config represents the complete sharelock configuration
type Config struct {
	Database DatabaseConfig `mapstructure:"database"`
	Lock     LockConfig     `mapstructure:"lock"`
	Log      LogConfig      `mapstructure:"log"`
	Metrics  MetricsConfig  `mapstructure:"metrics"`
}

// DatabaseConfig locates the shared database file
type DatabaseConfig struct {
	// Path is the database file on the network share
	Path string `mapstructure:"path"`
	// IOTimeout bounds how long one store operation waits for the file
	IOTimeout time.Duration `mapstructure:"io_timeout"`
}

// LockConfig holds the two protocol tunables
type LockConfig struct {
	// HeartbeatInterval is how often a holder refreshes its record
	HeartbeatInterval time.Duration `mapstructure:"heartbeat_interval"`
	// StaleAfter is the heartbeat silence after which others may reclaim the lock
	StaleAfter time.Duration `mapstructure:"stale_after"`
}

// LogConfig controls log output
type LogConfig struct {
	// Level is one of debug, info, warn, error
	Level string `mapstructure:"level"`
	// Format is text or json
	Format string `mapstructure:"format"`
}

// MetricsConfig controls the optional prometheus endpoint of long-running commands
type MetricsConfig struct {
	// Addr is the listen address, empty disables the endpoint
	Addr string `mapstructure:"addr"`
}

// Manager returns the lock manager configuration
func (c *Config) Manager() manager.Config {
	return manager.Config{
		HeartbeatInterval: c.Lock.HeartbeatInterval,
		StaleAfter:        c.Lock.StaleAfter,
	}
}

// Default returns the built-in configuration
func Default() *Config {
	return &Config{
		Database: DatabaseConfig{
			Path:      "compliance.db",
			IOTimeout: 5 * time.Second,
		},
		Lock: LockConfig{
			HeartbeatInterval: manager.DefaultHeartbeatInterval,
			StaleAfter:        manager.DefaultStaleAfter,
		},
		Log: LogConfig{
			Level:  "info",
			Format: "text",
		},
	}
}

// SetDefaults registers the defaults on v
func SetDefaults(v *viper.Viper) {
	defaults := Default()

	v.SetDefault("database.path", defaults.Database.Path)
	v.SetDefault("database.io_timeout", defaults.Database.IOTimeout)

	v.SetDefault("lock.heartbeat_interval", defaults.Lock.HeartbeatInterval)
	v.SetDefault("lock.stale_after", defaults.Lock.StaleAfter)

	v.SetDefault("log.level", defaults.Log.Level)
	v.SetDefault("log.format", defaults.Log.Format)

	v.SetDefault("metrics.addr", defaults.Metrics.Addr)
}

// Load reads the configuration from v into a Config struct and validates it
func Load(v *viper.Viper) (*Config, error) {
	var cfg Config
	if err := v.Unmarshal(&cfg); err != nil {
		return nil, err
	}

	if errs := cfg.Validate(); len(errs) > 0 {
		return nil, ValidationErrors(errs)
	}

	return &cfg, nil
}

// ConfigDir returns the path to the user's config directory
func ConfigDir() string {
	if xdg := os.Getenv("XDG_CONFIG_HOME"); xdg != "" {
		return filepath.Join(xdg, "sharelock")
	}
	home, err := os.UserHomeDir()
	if err != nil {
		return ".sharelock"
	}
	return filepath.Join(home, ".config", "sharelock")
}
