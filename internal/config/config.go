// Package config loads runtime settings from an optional YAML file with
// environment-variable overrides (a .env file is honored when present).
package config

import (
	"fmt"
	"log/slog"
	"os"
	"strconv"
	"time"

	"github.com/joho/godotenv"
	"gopkg.in/yaml.v3"
)

// Duration wraps time.Duration so YAML values can be written as "30s" or
// "60m".
type Duration time.Duration

// Std returns the wrapped time.Duration.
func (d Duration) Std() time.Duration {
	return time.Duration(d)
}

// UnmarshalYAML implements yaml.Unmarshaler.
func (d *Duration) UnmarshalYAML(value *yaml.Node) error {
	var raw string
	if err := value.Decode(&raw); err != nil {
		return err
	}
	parsed, err := time.ParseDuration(raw)
	if err != nil {
		return fmt.Errorf("invalid duration %q: %w", raw, err)
	}
	*d = Duration(parsed)
	return nil
}

// Config holds every runtime setting. Zero-value fields fall back to
// Default() values during Load.
type Config struct {
	// StorePath is the SQLite database file. ":memory:" runs without a file.
	StorePath string `yaml:"store_path"`

	// RestaurantID scopes orders and the QR provisioning registry.
	RestaurantID string `yaml:"restaurant_id"`

	// BaseURL prefixes the per-table ordering URLs written to the QR registry.
	BaseURL string `yaml:"base_url"`

	SweepInterval   Duration `yaml:"sweep_interval"`
	StaleOrderAge   Duration `yaml:"stale_order_age"`
	FullResyncEvery int      `yaml:"full_resync_every"`

	LogLevel string `yaml:"log_level"`
}

// Default returns the built-in settings.
func Default() Config {
	return Config{
		StorePath:       "dinesync.db",
		RestaurantID:    "default",
		BaseURL:         "https://order.local",
		SweepInterval:   Duration(30 * time.Second),
		StaleOrderAge:   Duration(60 * time.Minute),
		FullResyncEvery: 10,
		LogLevel:        "info",
	}
}

// Load reads the config file at path (optional: "" skips the file), then
// applies DINESYNC_* environment overrides. A .env file in the working
// directory is loaded first if present.
func Load(path string) (Config, error) {
	// Missing .env is the normal case, not an error.
	_ = godotenv.Load()

	cfg := Default()
	if path != "" {
		data, err := os.ReadFile(path)
		if err != nil {
			return Config{}, fmt.Errorf("read config: %w", err)
		}
		if err := yaml.Unmarshal(data, &cfg); err != nil {
			return Config{}, fmt.Errorf("parse config: %w", err)
		}
	}
	if err := applyEnv(&cfg); err != nil {
		return Config{}, err
	}
	return cfg, nil
}

func applyEnv(cfg *Config) error {
	if v := os.Getenv("DINESYNC_STORE_PATH"); v != "" {
		cfg.StorePath = v
	}
	if v := os.Getenv("DINESYNC_RESTAURANT_ID"); v != "" {
		cfg.RestaurantID = v
	}
	if v := os.Getenv("DINESYNC_BASE_URL"); v != "" {
		cfg.BaseURL = v
	}
	if v := os.Getenv("DINESYNC_SWEEP_INTERVAL"); v != "" {
		d, err := time.ParseDuration(v)
		if err != nil {
			return fmt.Errorf("DINESYNC_SWEEP_INTERVAL: %w", err)
		}
		cfg.SweepInterval = Duration(d)
	}
	if v := os.Getenv("DINESYNC_STALE_ORDER_AGE"); v != "" {
		d, err := time.ParseDuration(v)
		if err != nil {
			return fmt.Errorf("DINESYNC_STALE_ORDER_AGE: %w", err)
		}
		cfg.StaleOrderAge = Duration(d)
	}
	if v := os.Getenv("DINESYNC_FULL_RESYNC_EVERY"); v != "" {
		n, err := strconv.Atoi(v)
		if err != nil {
			return fmt.Errorf("DINESYNC_FULL_RESYNC_EVERY: %w", err)
		}
		cfg.FullResyncEvery = n
	}
	if v := os.Getenv("DINESYNC_LOG_LEVEL"); v != "" {
		cfg.LogLevel = v
	}
	return nil
}

// SlogLevel maps the configured level name to a slog.Level.
// Unknown names fall back to info.
func (c Config) SlogLevel() slog.Level {
	switch c.LogLevel {
	case "debug":
		return slog.LevelDebug
	case "warn":
		return slog.LevelWarn
	case "error":
		return slog.LevelError
	default:
		return slog.LevelInfo
	}
}
