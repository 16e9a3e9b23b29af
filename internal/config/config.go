// Package config holds the tunable rule thresholds and service settings.
//
// Values are layered: Default, then an optional YAML file, then environment
// variables (optionally seeded from a .env file). Command-line flags are
// applied last by the binaries themselves.
package config

import (
	"errors"
	"fmt"
	"log/slog"
	"os"
	"strconv"
	"strings"

	"github.com/joho/godotenv"
	"gopkg.in/yaml.v3"
)

// ErrInvalidConfig is wrapped by every validation failure.
var ErrInvalidConfig = errors.New("invalid config")

// Config is the full configuration of the monitor.
type Config struct {
	Rules    Rules    `yaml:"rules" json:"rules"`
	Server   Server   `yaml:"server" json:"server"`
	Webhooks Webhooks `yaml:"webhooks" json:"webhooks"`
	LogLevel string   `yaml:"log_level" json:"log_level"`
}

// Rules carries the thresholds of the five detectors.
type Rules struct {
	LargeAmountThreshold       float64 `yaml:"large_amount_threshold" json:"large_amount_threshold"`
	OddHourBound               int     `yaml:"odd_hour_bound" json:"odd_hour_bound"` // inclusive
	HighFrequencyWindowCount   int     `yaml:"high_frequency_window_count" json:"high_frequency_window_count"`
	HighFrequencyWindowMinutes int     `yaml:"high_frequency_window_minutes" json:"high_frequency_window_minutes"`
	LocationWindowHours        int     `yaml:"location_window_hours" json:"location_window_hours"`
	OutlierMultiplier          float64 `yaml:"outlier_multiplier" json:"outlier_multiplier"`

	// Parallel runs the per-transaction, per-user and per-merchant stages
	// concurrently. Output is identical either way.
	Parallel bool `yaml:"parallel" json:"parallel"`
}

// Server configures the HTTP API.
type Server struct {
	Port int `yaml:"port" json:"port"`
}

// Webhooks configures alert delivery after a run.
type Webhooks struct {
	URLs     []string `yaml:"urls" json:"urls"`
	MinFlags int      `yaml:"min_flags" json:"min_flags"` // fire when a run has at least this many flags
}

// DefaultRules returns the documented rule defaults.
func DefaultRules() Rules {
	return Rules{
		LargeAmountThreshold:       10000,
		OddHourBound:               5,
		HighFrequencyWindowCount:   5,
		HighFrequencyWindowMinutes: 10,
		LocationWindowHours:        1,
		OutlierMultiplier:          10,
	}
}

// Default returns the configuration used when nothing else is supplied.
func Default() *Config {
	return &Config{
		Rules:    DefaultRules(),
		Server:   Server{Port: 8080},
		Webhooks: Webhooks{MinFlags: 1},
		LogLevel: "info",
	}
}

// Load builds a Config from defaults, the YAML file at path (skipped when
// path is empty) and the process environment. The result is validated.
func Load(path string) (*Config, error) {
	cfg := Default()

	if path != "" {
		if err := loadFile(path, cfg); err != nil {
			return nil, err
		}
	}

	if err := applyEnv(cfg); err != nil {
		return nil, err
	}

	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

// LoadEnvFile loads KEY=VALUE pairs from a .env file into the process
// environment without overriding variables that are already set.
// A missing file is not an error.
func LoadEnvFile(path string) error {
	if _, err := os.Stat(path); os.IsNotExist(err) {
		return nil
	}
	if err := godotenv.Load(path); err != nil {
		return fmt.Errorf("load env file %s: %w", path, err)
	}
	return nil
}

func loadFile(path string, cfg *Config) error {
	data, err := os.ReadFile(path)
	if err != nil {
		return fmt.Errorf("read config %s: %w", path, err)
	}
	if err := yaml.Unmarshal(data, cfg); err != nil {
		return fmt.Errorf("parse config %s: %w", path, err)
	}
	return nil
}

// ─── Environment overrides ────────────────────────────────────────────────────

// Environment variable names understood by applyEnv.
const (
	EnvLargeAmountThreshold = "TXMON_LARGE_AMOUNT_THRESHOLD"
	EnvOddHourBound         = "TXMON_ODD_HOUR_BOUND"
	EnvWindowCount          = "TXMON_HIGH_FREQUENCY_WINDOW_COUNT"
	EnvWindowMinutes        = "TXMON_HIGH_FREQUENCY_WINDOW_MINUTES"
	EnvLocationWindowHours  = "TXMON_LOCATION_WINDOW_HOURS"
	EnvOutlierMultiplier    = "TXMON_OUTLIER_MULTIPLIER"
	EnvParallel             = "TXMON_PARALLEL"
	EnvWebhookURLs          = "TXMON_WEBHOOK_URLS" // comma separated
	EnvWebhookMinFlags      = "TXMON_WEBHOOK_MIN_FLAGS"
	EnvLogLevel             = "TXMON_LOG_LEVEL"
	EnvPort                 = "PORT"
)

func applyEnv(cfg *Config) error {
	floats := []struct {
		key string
		dst *float64
	}{
		{EnvLargeAmountThreshold, &cfg.Rules.LargeAmountThreshold},
		{EnvOutlierMultiplier, &cfg.Rules.OutlierMultiplier},
	}
	for _, f := range floats {
		if v := os.Getenv(f.key); v != "" {
			parsed, err := strconv.ParseFloat(v, 64)
			if err != nil {
				return fmt.Errorf("%w: %s=%q is not a number", ErrInvalidConfig, f.key, v)
			}
			*f.dst = parsed
		}
	}

	ints := []struct {
		key string
		dst *int
	}{
		{EnvOddHourBound, &cfg.Rules.OddHourBound},
		{EnvWindowCount, &cfg.Rules.HighFrequencyWindowCount},
		{EnvWindowMinutes, &cfg.Rules.HighFrequencyWindowMinutes},
		{EnvLocationWindowHours, &cfg.Rules.LocationWindowHours},
		{EnvWebhookMinFlags, &cfg.Webhooks.MinFlags},
		{EnvPort, &cfg.Server.Port},
	}
	for _, i := range ints {
		if v := os.Getenv(i.key); v != "" {
			parsed, err := strconv.Atoi(v)
			if err != nil {
				return fmt.Errorf("%w: %s=%q is not an integer", ErrInvalidConfig, i.key, v)
			}
			*i.dst = parsed
		}
	}

	if v := os.Getenv(EnvParallel); v != "" {
		parsed, err := strconv.ParseBool(v)
		if err != nil {
			return fmt.Errorf("%w: %s=%q is not a boolean", ErrInvalidConfig, EnvParallel, v)
		}
		cfg.Rules.Parallel = parsed
	}

	if v := os.Getenv(EnvWebhookURLs); v != "" {
		var urls []string
		for _, u := range strings.Split(v, ",") {
			if u = strings.TrimSpace(u); u != "" {
				urls = append(urls, u)
			}
		}
		cfg.Webhooks.URLs = urls
	}

	if v := os.Getenv(EnvLogLevel); v != "" {
		cfg.LogLevel = v
	}
	return nil
}

// ─── Validation ───────────────────────────────────────────────────────────────

// Validate checks that every value is usable by the engine and the server.
func (c *Config) Validate() error {
	if err := c.Rules.Validate(); err != nil {
		return err
	}
	if c.Server.Port < 0 || c.Server.Port > 65535 {
		return fmt.Errorf("%w: server.port must be between 0 and 65535", ErrInvalidConfig)
	}
	if c.Webhooks.MinFlags < 0 {
		return fmt.Errorf("%w: webhooks.min_flags must not be negative", ErrInvalidConfig)
	}
	if _, err := ParseLevel(c.LogLevel); err != nil {
		return err
	}
	return nil
}

// Validate checks the rule thresholds.
func (r Rules) Validate() error {
	switch {
	case r.LargeAmountThreshold < 0:
		return fmt.Errorf("%w: large_amount_threshold must not be negative", ErrInvalidConfig)
	case r.OddHourBound < 0 || r.OddHourBound > 23:
		return fmt.Errorf("%w: odd_hour_bound must be between 0 and 23", ErrInvalidConfig)
	case r.HighFrequencyWindowCount < 2:
		return fmt.Errorf("%w: high_frequency_window_count must be at least 2", ErrInvalidConfig)
	case r.HighFrequencyWindowMinutes < 0:
		return fmt.Errorf("%w: high_frequency_window_minutes must not be negative", ErrInvalidConfig)
	case r.LocationWindowHours < 0:
		return fmt.Errorf("%w: location_window_hours must not be negative", ErrInvalidConfig)
	case r.OutlierMultiplier <= 0:
		return fmt.Errorf("%w: outlier_multiplier must be greater than 0", ErrInvalidConfig)
	}
	return nil
}

// ParseLevel maps a log_level string to a slog level. Empty means info.
func ParseLevel(s string) (slog.Level, error) {
	switch strings.ToLower(s) {
	case "", "info":
		return slog.LevelInfo, nil
	case "debug":
		return slog.LevelDebug, nil
	case "warn", "warning":
		return slog.LevelWarn, nil
	case "error":
		return slog.LevelError, nil
	}
	return slog.LevelInfo, fmt.Errorf("%w: unknown log_level %q", ErrInvalidConfig, s)
}
