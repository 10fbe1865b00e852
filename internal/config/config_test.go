package config

import (
	"log/slog"
	"os"
	"path/filepath"
	"testing"
	"time"
)

var envKeys = []string{
	"SHOTLENS_DEBOUNCE", "SHOTLENS_CACHE_SIZE", "SHOTLENS_COMMAND", "SHOTLENS_ARGS",
	"SHOTLENS_SETTLE_DELAY", "SHOTLENS_REQUEST_TIMEOUT", "SHOTLENS_LOG_LEVEL",
	"SHOTLENS_THEME", "OTEL_EXPORTER_OTLP_ENDPOINT", "OTEL_EXPORTER_OTLP_HEADERS",
}

// isolate runs the test in an empty directory with an empty HOME and no
// SHOTLENS_* variables set.
func isolate(t *testing.T) string {
	t.Helper()
	dir := t.TempDir()
	t.Setenv("HOME", t.TempDir())
	for _, key := range envKeys {
		t.Setenv(key, "")
	}
	origDir, _ := os.Getwd()
	t.Cleanup(func() { os.Chdir(origDir) })
	if err := os.Chdir(dir); err != nil {
		t.Fatal(err)
	}
	return dir
}

func TestDefaults(t *testing.T) {
	cfg := Defaults()

	if cfg.Debounce != "100ms" {
		t.Errorf("Debounce: got %q, want %q", cfg.Debounce, "100ms")
	}
	if cfg.CacheSize != 256 {
		t.Errorf("CacheSize: got %d, want %d", cfg.CacheSize, 256)
	}
	if cfg.SettleDelay != "1s" {
		t.Errorf("SettleDelay: got %q, want %q", cfg.SettleDelay, "1s")
	}
	if cfg.RequestTimeout != "30s" {
		t.Errorf("RequestTimeout: got %q, want %q", cfg.RequestTimeout, "30s")
	}
	if cfg.LogLevel != "info" {
		t.Errorf("LogLevel: got %q, want %q", cfg.LogLevel, "info")
	}
	if cfg.Theme != "dark" {
		t.Errorf("Theme: got %q, want %q", cfg.Theme, "dark")
	}
	if cfg.Command != "" {
		t.Errorf("Command: got %q, want empty", cfg.Command)
	}
}

func TestLoadDefaults(t *testing.T) {
	isolate(t)

	cfg, err := Load("")
	if err != nil {
		t.Fatalf("Load() error: %v", err)
	}
	if cfg.ConfigFile != "" {
		t.Errorf("ConfigFile: got %q, want empty", cfg.ConfigFile)
	}
	if cfg.DebounceDuration != 100*time.Millisecond {
		t.Errorf("DebounceDuration: got %v, want 100ms", cfg.DebounceDuration)
	}
	if cfg.SettleDelayDuration != time.Second {
		t.Errorf("SettleDelayDuration: got %v, want 1s", cfg.SettleDelayDuration)
	}
	if cfg.RequestTimeoutDuration != 30*time.Second {
		t.Errorf("RequestTimeoutDuration: got %v, want 30s", cfg.RequestTimeoutDuration)
	}
}

func TestParseDurationOrDisable(t *testing.T) {
	tests := []struct {
		name    string
		input   string
		wantMs  int64
		wantErr bool
	}{
		{"empty returns fallback", "", 5000, false},
		{"zero disables", "0", 0, false},
		{"off disables", "off", 0, false},
		{"disable disables", "disable", 0, false},
		{"valid duration", "30s", 30000, false},
		{"valid short duration", "250ms", 250, false},
		{"invalid", "not-a-duration", 0, true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, err := parseDurationOrDisable(tt.input, 5*time.Second)
			if (err != nil) != tt.wantErr {
				t.Fatalf("parseDurationOrDisable(%q): error = %v, wantErr = %v", tt.input, err, tt.wantErr)
			}
			if !tt.wantErr && got.Milliseconds() != tt.wantMs {
				t.Errorf("parseDurationOrDisable(%q) = %v, want %dms", tt.input, got, tt.wantMs)
			}
		})
	}
}

func TestLoadFromFile(t *testing.T) {
	dir := isolate(t)
	content := `debounce: 250ms
cache_size: 64
command: node
args:
  - dist/server.js
  - --stdio
settle_delay: "off"
request_timeout: 5s
log_level: debug
theme: light
otel_endpoint: http://localhost:4318
`
	if err := os.WriteFile(filepath.Join(dir, ".shotlens.yaml"), []byte(content), 0644); err != nil {
		t.Fatal(err)
	}

	cfg, err := Load("")
	if err != nil {
		t.Fatalf("Load() error: %v", err)
	}

	if cfg.ConfigFile != ".shotlens.yaml" {
		t.Errorf("ConfigFile: got %q, want %q", cfg.ConfigFile, ".shotlens.yaml")
	}
	if cfg.DebounceDuration != 250*time.Millisecond {
		t.Errorf("DebounceDuration: got %v, want 250ms", cfg.DebounceDuration)
	}
	if cfg.CacheSize != 64 {
		t.Errorf("CacheSize: got %d, want %d", cfg.CacheSize, 64)
	}
	if cfg.Command != "node" {
		t.Errorf("Command: got %q, want %q", cfg.Command, "node")
	}
	if len(cfg.Args) != 2 || cfg.Args[1] != "--stdio" {
		t.Errorf("Args: got %v, want [dist/server.js --stdio]", cfg.Args)
	}
	if cfg.SettleDelayDuration != Immediate {
		t.Errorf("SettleDelayDuration: got %v, want Immediate", cfg.SettleDelayDuration)
	}
	if cfg.RequestTimeoutDuration != 5*time.Second {
		t.Errorf("RequestTimeoutDuration: got %v, want 5s", cfg.RequestTimeoutDuration)
	}
	if cfg.LogLevel != "debug" {
		t.Errorf("LogLevel: got %q, want %q", cfg.LogLevel, "debug")
	}
	if cfg.Theme != "light" {
		t.Errorf("Theme: got %q, want %q", cfg.Theme, "light")
	}
	if cfg.OTELEndpoint != "http://localhost:4318" {
		t.Errorf("OTELEndpoint: got %q", cfg.OTELEndpoint)
	}
}

func TestLoadExplicitPath(t *testing.T) {
	dir := isolate(t)
	path := filepath.Join(dir, "custom.yaml")
	if err := os.WriteFile(path, []byte("command: capture-server\n"), 0644); err != nil {
		t.Fatal(err)
	}
	// The explicit file wins over the working directory one.
	if err := os.WriteFile(filepath.Join(dir, ".shotlens.yaml"), []byte("command: other\n"), 0644); err != nil {
		t.Fatal(err)
	}

	cfg, err := Load(path)
	if err != nil {
		t.Fatalf("Load() error: %v", err)
	}
	if cfg.Command != "capture-server" {
		t.Errorf("Command: got %q, want %q", cfg.Command, "capture-server")
	}
	if cfg.ConfigFile != path {
		t.Errorf("ConfigFile: got %q, want %q", cfg.ConfigFile, path)
	}

	if _, err := Load(filepath.Join(dir, "missing.yaml")); err == nil {
		t.Error("Load(missing): expected error")
	}
}

func TestLoadHomeConfig(t *testing.T) {
	isolate(t)
	home := os.Getenv("HOME")
	path := filepath.Join(home, ".config", "shotlens", "config.yaml")
	if err := os.MkdirAll(filepath.Dir(path), 0755); err != nil {
		t.Fatal(err)
	}
	if err := os.WriteFile(path, []byte("theme: light\n"), 0644); err != nil {
		t.Fatal(err)
	}

	cfg, err := Load("")
	if err != nil {
		t.Fatalf("Load() error: %v", err)
	}
	if cfg.ConfigFile != path {
		t.Errorf("ConfigFile: got %q, want %q", cfg.ConfigFile, path)
	}
	if cfg.Theme != "light" {
		t.Errorf("Theme: got %q, want %q", cfg.Theme, "light")
	}
}

func TestEnvOverridesFile(t *testing.T) {
	dir := isolate(t)
	content := `debounce: 250ms
command: node
theme: light
`
	if err := os.WriteFile(filepath.Join(dir, ".shotlens.yaml"), []byte(content), 0644); err != nil {
		t.Fatal(err)
	}

	t.Setenv("SHOTLENS_DEBOUNCE", "off")
	t.Setenv("SHOTLENS_COMMAND", "bun")
	t.Setenv("SHOTLENS_ARGS", "run server.ts")
	t.Setenv("SHOTLENS_CACHE_SIZE", "8")

	cfg, err := Load("")
	if err != nil {
		t.Fatalf("Load() error: %v", err)
	}

	if cfg.DebounceDuration != Immediate {
		t.Errorf("DebounceDuration: got %v, want Immediate (env should override file)", cfg.DebounceDuration)
	}
	if cfg.Command != "bun" {
		t.Errorf("Command: got %q, want %q (env should override file)", cfg.Command, "bun")
	}
	if len(cfg.Args) != 2 || cfg.Args[0] != "run" {
		t.Errorf("Args: got %v, want [run server.ts]", cfg.Args)
	}
	if cfg.CacheSize != 8 {
		t.Errorf("CacheSize: got %d, want 8", cfg.CacheSize)
	}
	if cfg.Theme != "light" {
		t.Errorf("Theme: got %q, want %q (file value kept)", cfg.Theme, "light")
	}
}

func TestDotEnv(t *testing.T) {
	dir := isolate(t)
	// godotenv only fills variables that are absent from the environment.
	os.Unsetenv("SHOTLENS_THEME")
	if err := os.WriteFile(filepath.Join(dir, ".env"), []byte("SHOTLENS_THEME=light\n"), 0644); err != nil {
		t.Fatal(err)
	}

	cfg, err := Load("")
	if err != nil {
		t.Fatalf("Load() error: %v", err)
	}
	if cfg.Theme != "light" {
		t.Errorf("Theme: got %q, want %q from .env", cfg.Theme, "light")
	}
}

func TestLoadInvalid(t *testing.T) {
	tests := []struct {
		name string
		key  string
		val  string
	}{
		{"bad debounce", "SHOTLENS_DEBOUNCE", "soon"},
		{"bad settle delay", "SHOTLENS_SETTLE_DELAY", "1 second"},
		{"disabled timeout", "SHOTLENS_REQUEST_TIMEOUT", "off"},
		{"zero cache", "SHOTLENS_CACHE_SIZE", "-4"},
		{"bad log level", "SHOTLENS_LOG_LEVEL", "loud"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			isolate(t)
			t.Setenv(tt.key, tt.val)
			if _, err := Load(""); err == nil {
				t.Errorf("Load() with %s=%q: expected error", tt.key, tt.val)
			}
		})
	}
}

func TestParseLogLevel(t *testing.T) {
	tests := []struct {
		input string
		want  slog.Level
	}{
		{"debug", slog.LevelDebug},
		{"info", slog.LevelInfo},
		{"WARN", slog.LevelWarn},
		{"error", slog.LevelError},
	}
	for _, tt := range tests {
		got, err := ParseLogLevel(tt.input)
		if err != nil {
			t.Fatalf("ParseLogLevel(%q): %v", tt.input, err)
		}
		if got != tt.want {
			t.Errorf("ParseLogLevel(%q) = %v, want %v", tt.input, got, tt.want)
		}
	}
}
