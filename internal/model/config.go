package model

import (
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/spf13/viper"
)

// Database drivers.
const (
	DriverSQLite   = "sqlite"
	DriverPostgres = "postgres"
)

// DatabaseConfig selects and locates the backing store.
type DatabaseConfig struct {
	// Driver is "sqlite" or "postgres".
	Driver string `mapstructure:"driver" yaml:"driver"`

	// Path is the SQLite database file.
	Path string `mapstructure:"path" yaml:"path"`

	// DSN is the Postgres connection string. When empty, it is read from
	// the system keyring.
	DSN string `mapstructure:"dsn" yaml:"dsn"`
}

// EngineConfig tunes classification and store access.
type EngineConfig struct {
	// UpcomingDays is the last day count that still yields an info reminder.
	UpcomingDays int `mapstructure:"upcoming_days" yaml:"upcoming_days"`

	// StoreTimeoutSec bounds every individual store call.
	StoreTimeoutSec int `mapstructure:"store_timeout_sec" yaml:"store_timeout_sec"`

	// CatalogPath replaces the built-in English message catalog.
	CatalogPath string `mapstructure:"catalog_path" yaml:"catalog_path"`
}

// StoreTimeout returns the per-call store timeout.
func (c EngineConfig) StoreTimeout() time.Duration {
	if c.StoreTimeoutSec <= 0 {
		return 5 * time.Second
	}
	return time.Duration(c.StoreTimeoutSec) * time.Second
}

// SweepConfig controls the periodic reconciliation sweep.
type SweepConfig struct {
	IntervalSec int  `mapstructure:"interval_sec" yaml:"interval_sec"`
	RunOnStart  bool `mapstructure:"run_on_start" yaml:"run_on_start"`
}

// Interval returns the sweep interval.
func (c SweepConfig) Interval() time.Duration {
	if c.IntervalSec <= 0 {
		return time.Hour
	}
	return time.Duration(c.IntervalSec) * time.Second
}

// ServerConfig holds HTTP API settings.
type ServerConfig struct {
	Addr string `mapstructure:"addr" yaml:"addr"`
}

// LogConfig holds logging preferences.
type LogConfig struct {
	Level  string `mapstructure:"level" yaml:"level"`
	Format string `mapstructure:"format" yaml:"format"`
}

// AppConfig is the top-level application configuration.
type AppConfig struct {
	Database DatabaseConfig `mapstructure:"database" yaml:"database"`
	Engine   EngineConfig   `mapstructure:"engine" yaml:"engine"`
	Sweep    SweepConfig    `mapstructure:"sweep" yaml:"sweep"`
	Server   ServerConfig   `mapstructure:"server" yaml:"server"`
	Log      LogConfig      `mapstructure:"log" yaml:"log"`
}

// DefaultConfigPath returns the default path for the configuration file,
// located at ~/.config/taskreminders/config.yaml.
func DefaultConfigPath() string {
	home, err := os.UserHomeDir()
	if err != nil {
		return filepath.Join(".", "config.yaml")
	}
	return filepath.Join(home, ".config", "taskreminders", "config.yaml")
}

// defaultDatabasePath places the SQLite file next to the config file.
func defaultDatabasePath() string {
	return filepath.Join(filepath.Dir(DefaultConfigPath()), "reminders.db")
}

// defaultAppConfig returns a sensible default configuration.
func defaultAppConfig() *AppConfig {
	return &AppConfig{
		Database: DatabaseConfig{
			Driver: DriverSQLite,
			Path:   defaultDatabasePath(),
		},
		Engine: EngineConfig{
			UpcomingDays:    4,
			StoreTimeoutSec: 5,
		},
		Sweep: SweepConfig{
			IntervalSec: 3600,
			RunOnStart:  true,
		},
		Server: ServerConfig{Addr: ":8080"},
		Log: LogConfig{
			Level:  "info",
			Format: "text",
		},
	}
}

// LoadConfig reads configuration from the given YAML file path using Viper.
// Environment variables prefixed with TASKREMINDERS_ override file values
// (e.g. TASKREMINDERS_DATABASE_DRIVER). If the file does not exist, the
// defaults plus any environment overrides are returned.
func LoadConfig(path string) (*AppConfig, error) {
	v := viper.New()
	v.SetConfigFile(path)
	v.SetConfigType("yaml")
	v.SetEnvPrefix("taskreminders")
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	// Set defaults so missing keys resolve to sensible values.
	def := defaultAppConfig()
	v.SetDefault("database.driver", def.Database.Driver)
	v.SetDefault("database.path", def.Database.Path)
	v.SetDefault("database.dsn", "")
	v.SetDefault("engine.upcoming_days", def.Engine.UpcomingDays)
	v.SetDefault("engine.store_timeout_sec", def.Engine.StoreTimeoutSec)
	v.SetDefault("engine.catalog_path", "")
	v.SetDefault("sweep.interval_sec", def.Sweep.IntervalSec)
	v.SetDefault("sweep.run_on_start", def.Sweep.RunOnStart)
	v.SetDefault("server.addr", def.Server.Addr)
	v.SetDefault("log.level", def.Log.Level)
	v.SetDefault("log.format", def.Log.Format)

	if err := v.ReadInConfig(); err != nil {
		_, isPathErr := err.(*os.PathError)
		_, isNotFound := err.(viper.ConfigFileNotFoundError)
		if !isPathErr && !isNotFound {
			return nil, fmt.Errorf("reading config %s: %w", path, err)
		}
	}

	cfg := defaultAppConfig()
	if err := v.Unmarshal(cfg); err != nil {
		return nil, fmt.Errorf("parsing config %s: %w", path, err)
	}

	if err := cfg.validate(); err != nil {
		return nil, fmt.Errorf("invalid config %s: %w", path, err)
	}
	return cfg, nil
}

func (c *AppConfig) validate() error {
	switch c.Database.Driver {
	case DriverSQLite:
		if c.Database.Path == "" {
			return fmt.Errorf("database.path is required for sqlite")
		}
	case DriverPostgres:
	default:
		return fmt.Errorf("unknown database.driver %q", c.Database.Driver)
	}
	if c.Engine.UpcomingDays < 2 {
		return fmt.Errorf("engine.upcoming_days must be at least 2, got %d", c.Engine.UpcomingDays)
	}
	return nil
}

// SaveConfig writes the given configuration to a YAML file at path,
// creating parent directories if needed.
func SaveConfig(path string, cfg *AppConfig) error {
	dir := filepath.Dir(path)
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return fmt.Errorf("creating config directory %s: %w", dir, err)
	}

	v := viper.New()
	v.SetConfigFile(path)
	v.SetConfigType("yaml")

	v.Set("database", cfg.Database)
	v.Set("engine", cfg.Engine)
	v.Set("sweep", cfg.Sweep)
	v.Set("server", cfg.Server)
	v.Set("log", cfg.Log)

	if err := v.WriteConfigAs(path); err != nil {
		return fmt.Errorf("writing config to %s: %w", path, err)
	}

	return nil
}
