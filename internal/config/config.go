// Package config loads shotlens configuration from file and environment.
//
// Precedence (highest to lowest):
//  1. Environment variables (SHOTLENS_*), including those set by a .env file
//  2. Config file
//  3. Built-in defaults
//
// Config file search order:
//  1. The path given with --config-file
//  2. .shotlens.yaml in current directory
//  3. ~/.config/shotlens/config.yaml
package config

import (
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"strconv"
	"strings"
	"time"

	"github.com/joho/godotenv"
	"gopkg.in/yaml.v3"
)

// Immediate is the parsed value of a disabled delay: the engine and the
// transport treat a negative duration as "do not wait".
const Immediate time.Duration = -1

// Config holds all shotlens configuration.
type Config struct {
	// Editor engine
	Debounce  string `yaml:"debounce"` // Go duration string, "0"/"off" revalidates on every edit
	CacheSize int    `yaml:"cache_size"`

	// Capture bridge
	Command        string   `yaml:"command"`
	Args           []string `yaml:"args"`
	SettleDelay    string   `yaml:"settle_delay"`
	RequestTimeout string   `yaml:"request_timeout"`

	// Presentation
	LogLevel string `yaml:"log_level"` // debug, info, warn, error
	Theme    string `yaml:"theme"`     // dark, light

	// OTEL
	OTELEndpoint string `yaml:"otel_endpoint"`
	OTELHeaders  string `yaml:"otel_headers"` // Comma-separated key=value pairs

	// Parsed durations (not from YAML, set after loading)
	DebounceDuration       time.Duration `yaml:"-"`
	SettleDelayDuration    time.Duration `yaml:"-"`
	RequestTimeoutDuration time.Duration `yaml:"-"`

	// ConfigFile is the path to the config file that was loaded (empty if none).
	ConfigFile string `yaml:"-"`
}

// Defaults returns a Config with all default values.
func Defaults() *Config {
	return &Config{
		Debounce:       "100ms",
		CacheSize:      256,
		SettleDelay:    "1s",
		RequestTimeout: "30s",
		LogLevel:       "info",
		Theme:          "dark",
	}
}

// Load reads configuration from file and environment variables.
// Environment variables always override file values. path, when set,
// must exist.
func Load(path string) (*Config, error) {
	cfg := Defaults()

	// Values already in the environment take precedence over .env.
	_ = godotenv.Load()

	path, data, err := findConfigFile(path)
	switch {
	case err == nil:
		var fileCfg Config
		if err := yaml.Unmarshal(data, &fileCfg); err != nil {
			return nil, fmt.Errorf("parsing config file %s: %w", path, err)
		}
		cfg.ConfigFile = path
		mergeFile(cfg, &fileCfg)
	case path != "":
		return nil, err
	}

	mergeEnv(cfg)

	cfg.DebounceDuration, err = parseDurationOrDisable(cfg.Debounce, 100*time.Millisecond)
	if err != nil {
		return nil, fmt.Errorf("invalid debounce %q: %w", cfg.Debounce, err)
	}
	if cfg.DebounceDuration == 0 {
		cfg.DebounceDuration = Immediate
	}
	cfg.SettleDelayDuration, err = parseDurationOrDisable(cfg.SettleDelay, time.Second)
	if err != nil {
		return nil, fmt.Errorf("invalid settle delay %q: %w", cfg.SettleDelay, err)
	}
	if cfg.SettleDelayDuration == 0 {
		cfg.SettleDelayDuration = Immediate
	}
	cfg.RequestTimeoutDuration, err = parseDurationOrDisable(cfg.RequestTimeout, 30*time.Second)
	if err != nil {
		return nil, fmt.Errorf("invalid request timeout %q: %w", cfg.RequestTimeout, err)
	}
	if cfg.RequestTimeoutDuration <= 0 {
		return nil, fmt.Errorf("invalid request timeout %q: must be positive", cfg.RequestTimeout)
	}
	if cfg.CacheSize <= 0 {
		return nil, fmt.Errorf("invalid cache size %d: must be positive", cfg.CacheSize)
	}
	if _, err := ParseLogLevel(cfg.LogLevel); err != nil {
		return nil, err
	}

	return cfg, nil
}

// findConfigFile searches for a config file and returns its path and contents.
// An explicit path is returned even on error so the caller can report it.
func findConfigFile(explicit string) (string, []byte, error) {
	if explicit != "" {
		data, err := os.ReadFile(explicit)
		if err != nil {
			return explicit, nil, fmt.Errorf("reading config file: %w", err)
		}
		return explicit, data, nil
	}

	if data, err := os.ReadFile(".shotlens.yaml"); err == nil {
		return ".shotlens.yaml", data, nil
	}

	if home, err := os.UserHomeDir(); err == nil {
		path := filepath.Join(home, ".config", "shotlens", "config.yaml")
		if data, err := os.ReadFile(path); err == nil {
			return path, data, nil
		}
	}

	return "", nil, fmt.Errorf("no config file found")
}

// mergeFile applies non-zero file values onto cfg.
func mergeFile(cfg *Config, file *Config) {
	if file.Debounce != "" {
		cfg.Debounce = file.Debounce
	}
	if file.CacheSize != 0 {
		cfg.CacheSize = file.CacheSize
	}
	if file.Command != "" {
		cfg.Command = file.Command
	}
	if len(file.Args) > 0 {
		cfg.Args = file.Args
	}
	if file.SettleDelay != "" {
		cfg.SettleDelay = file.SettleDelay
	}
	if file.RequestTimeout != "" {
		cfg.RequestTimeout = file.RequestTimeout
	}
	if file.LogLevel != "" {
		cfg.LogLevel = file.LogLevel
	}
	if file.Theme != "" {
		cfg.Theme = file.Theme
	}
	if file.OTELEndpoint != "" {
		cfg.OTELEndpoint = file.OTELEndpoint
	}
	if file.OTELHeaders != "" {
		cfg.OTELHeaders = file.OTELHeaders
	}
}

// mergeEnv applies environment variables onto cfg. Env always wins.
func mergeEnv(cfg *Config) {
	if v := os.Getenv("SHOTLENS_DEBOUNCE"); v != "" {
		cfg.Debounce = v
	}
	if v := os.Getenv("SHOTLENS_CACHE_SIZE"); v != "" {
		if n, err := strconv.Atoi(v); err == nil {
			cfg.CacheSize = n
		}
	}
	if v := os.Getenv("SHOTLENS_COMMAND"); v != "" {
		cfg.Command = v
	}
	if v := os.Getenv("SHOTLENS_ARGS"); v != "" {
		cfg.Args = strings.Fields(v)
	}
	if v := os.Getenv("SHOTLENS_SETTLE_DELAY"); v != "" {
		cfg.SettleDelay = v
	}
	if v := os.Getenv("SHOTLENS_REQUEST_TIMEOUT"); v != "" {
		cfg.RequestTimeout = v
	}
	if v := os.Getenv("SHOTLENS_LOG_LEVEL"); v != "" {
		cfg.LogLevel = v
	}
	if v := os.Getenv("SHOTLENS_THEME"); v != "" {
		cfg.Theme = v
	}
	if v := os.Getenv("OTEL_EXPORTER_OTLP_ENDPOINT"); v != "" {
		cfg.OTELEndpoint = v
	}
	if v := os.Getenv("OTEL_EXPORTER_OTLP_HEADERS"); v != "" {
		cfg.OTELHeaders = v
	}
}

// parseDurationOrDisable parses a duration string. "0", "off", "disable" return 0.
// Empty string returns the fallback value.
func parseDurationOrDisable(s string, fallback time.Duration) (time.Duration, error) {
	if s == "" {
		return fallback, nil
	}
	if s == "0" || s == "off" || s == "disable" {
		return 0, nil
	}
	return time.ParseDuration(s)
}

// ParseLogLevel maps a level name to its slog level.
func ParseLogLevel(s string) (slog.Level, error) {
	var level slog.Level
	if err := level.UnmarshalText([]byte(s)); err != nil {
		return 0, fmt.Errorf("invalid log level %q: want debug, info, warn or error", s)
	}
	return level, nil
}
