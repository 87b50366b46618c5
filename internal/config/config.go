// Package config provides configuration for the fluxtask engine.
package config

import (
	"fmt"
	"os"
	"strconv"

	"gopkg.in/yaml.v3"
)

const (
	// DefaultWorkerPort is the default HTTP port for the worker service.
	DefaultWorkerPort = 38080

	// DefaultDBPath is the default sqlite database path.
	DefaultDBPath = "fluxtask.db"
)

// Config holds the application configuration. Loaded from an optional
// YAML file, then overridden by FLUXTASK_* environment variables.
type Config struct {
	// Worker settings
	WorkerPort int `yaml:"worker_port"`

	// Database settings. A non-empty PostgresDSN selects the Postgres
	// store; otherwise the sqlite store at DBPath is used.
	DBPath      string `yaml:"db_path"`
	PostgresDSN string `yaml:"postgres_dsn"`
	MaxConns    int    `yaml:"max_conns"`

	// Redis settings. Empty address disables the insights cache.
	RedisAddr    string `yaml:"redis_addr"`
	CacheTTLSecs int    `yaml:"cache_ttl_secs"`

	// Learning tunables. These are hot-reloadable via Watch.
	LearningRate float64 `yaml:"learning_rate"`
	Alpha        float64 `yaml:"alpha"`

	// Anomaly detection tunables, also hot-reloadable.
	AnomalyMinSamples int     `yaml:"anomaly_min_samples"`
	AnomalyZThreshold float64 `yaml:"anomaly_z_threshold"`

	// Logging
	LogLevel string `yaml:"log_level"`
}

// Default returns a Config with default values.
func Default() *Config {
	return &Config{
		WorkerPort:        DefaultWorkerPort,
		DBPath:            DefaultDBPath,
		MaxConns:          4,
		CacheTTLSecs:      300,
		LearningRate:      0.1,
		Alpha:             0.2,
		AnomalyMinSamples: 10,
		AnomalyZThreshold: 2.5,
		LogLevel:          "info",
	}
}

// Load reads configuration from the YAML file at path (missing file is
// fine), then applies environment overrides. An empty path skips the
// file entirely.
func Load(path string) (*Config, error) {
	cfg := Default()

	if path != "" {
		data, err := os.ReadFile(path)
		if err != nil && !os.IsNotExist(err) {
			return nil, fmt.Errorf("read config %s: %w", path, err)
		}
		if err == nil {
			if err := yaml.Unmarshal(data, cfg); err != nil {
				return nil, fmt.Errorf("parse config %s: %w", path, err)
			}
		}
	}

	cfg.applyEnv()
	if err := cfg.validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

func (c *Config) applyEnv() {
	if v := os.Getenv("FLUXTASK_WORKER_PORT"); v != "" {
		if n, err := strconv.Atoi(v); err == nil {
			c.WorkerPort = n
		}
	}
	if v := os.Getenv("FLUXTASK_DB_PATH"); v != "" {
		c.DBPath = v
	}
	if v := os.Getenv("FLUXTASK_POSTGRES_DSN"); v != "" {
		c.PostgresDSN = v
	}
	if v := os.Getenv("FLUXTASK_MAX_CONNS"); v != "" {
		if n, err := strconv.Atoi(v); err == nil && n > 0 {
			c.MaxConns = n
		}
	}
	if v := os.Getenv("FLUXTASK_REDIS_ADDR"); v != "" {
		c.RedisAddr = v
	}
	if v := os.Getenv("FLUXTASK_CACHE_TTL_SECS"); v != "" {
		if n, err := strconv.Atoi(v); err == nil && n > 0 {
			c.CacheTTLSecs = n
		}
	}
	if v := os.Getenv("FLUXTASK_LEARNING_RATE"); v != "" {
		if f, err := strconv.ParseFloat(v, 64); err == nil && f > 0 {
			c.LearningRate = f
		}
	}
	if v := os.Getenv("FLUXTASK_ALPHA"); v != "" {
		if f, err := strconv.ParseFloat(v, 64); err == nil && f > 0 && f <= 1 {
			c.Alpha = f
		}
	}
	if v := os.Getenv("FLUXTASK_LOG_LEVEL"); v != "" {
		c.LogLevel = v
	}
}

func (c *Config) validate() error {
	if c.WorkerPort <= 0 || c.WorkerPort > 65535 {
		return fmt.Errorf("invalid worker_port %d", c.WorkerPort)
	}
	if c.LearningRate <= 0 || c.LearningRate >= 1 {
		return fmt.Errorf("learning_rate must be in (0,1), got %g", c.LearningRate)
	}
	if c.Alpha <= 0 || c.Alpha > 1 {
		return fmt.Errorf("alpha must be in (0,1], got %g", c.Alpha)
	}
	if c.AnomalyZThreshold <= 0 {
		return fmt.Errorf("anomaly_z_threshold must be positive, got %g", c.AnomalyZThreshold)
	}
	return nil
}
