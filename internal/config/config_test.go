package config_test

import (
	"errors"
	"log/slog"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/Lack-Of-Name/CadNav/internal/config"
)

func TestDefaultConfig(t *testing.T) {
	t.Parallel()

	cfg := config.DefaultConfig()

	if cfg.Server.Port != 4000 {
		t.Errorf("Server.Port = %d, want 4000", cfg.Server.Port)
	}
	if cfg.Session.CodeLength != 6 {
		t.Errorf("Session.CodeLength = %d, want 6", cfg.Session.CodeLength)
	}
	if cfg.Session.LocationIntervalMs != 10_000 {
		t.Errorf("Session.LocationIntervalMs = %d, want 10000", cfg.Session.LocationIntervalMs)
	}
	if cfg.Session.TTLMs != (6 * time.Hour).Milliseconds() {
		t.Errorf("Session.TTLMs = %d, want 6h", cfg.Session.TTLMs)
	}
	if cfg.Session.HostResumeGraceMs != (15 * time.Minute).Milliseconds() {
		t.Errorf("Session.HostResumeGraceMs = %d, want 15m", cfg.Session.HostResumeGraceMs)
	}
	if cfg.Limits.MaxClientRoutes != 8 {
		t.Errorf("Limits.MaxClientRoutes = %d, want 8", cfg.Limits.MaxClientRoutes)
	}
	if cfg.Limits.MaxRoutePoints != 80 {
		t.Errorf("Limits.MaxRoutePoints = %d, want 80", cfg.Limits.MaxRoutePoints)
	}
	if cfg.Traffic.WindowS != 900 {
		t.Errorf("Traffic.WindowS = %d, want 900", cfg.Traffic.WindowS)
	}
	if err := config.Validate(cfg); err != nil {
		t.Errorf("Validate(DefaultConfig()) error: %v", err)
	}
}

func TestLoadWithoutFile(t *testing.T) {
	cfg, err := config.Load("")
	if err != nil {
		t.Fatalf("Load(\"\") error: %v", err)
	}
	if cfg.Server.Port != 4000 {
		t.Errorf("Server.Port = %d, want default 4000", cfg.Server.Port)
	}
}

func TestLoadEnvOverrides(t *testing.T) {
	t.Setenv("SERVER_PORT", "4100")
	t.Setenv("SESSION_CODE_LENGTH", "8")
	t.Setenv("MAX_CLIENT_ROUTES", "4")
	t.Setenv("TRAFFIC_WINDOW_S", "120")
	t.Setenv("LOG_LEVEL", "debug")

	cfg, err := config.Load("")
	if err != nil {
		t.Fatalf("Load(\"\") error: %v", err)
	}
	if cfg.Server.Port != 4100 {
		t.Errorf("Server.Port = %d, want 4100", cfg.Server.Port)
	}
	if cfg.Session.CodeLength != 8 {
		t.Errorf("Session.CodeLength = %d, want 8", cfg.Session.CodeLength)
	}
	if cfg.Limits.MaxClientRoutes != 4 {
		t.Errorf("Limits.MaxClientRoutes = %d, want 4", cfg.Limits.MaxClientRoutes)
	}
	if cfg.Traffic.WindowS != 120 {
		t.Errorf("Traffic.WindowS = %d, want 120", cfg.Traffic.WindowS)
	}
	if cfg.Log.Level != "debug" {
		t.Errorf("Log.Level = %q, want debug", cfg.Log.Level)
	}
}

func TestLoadLegacyPortFallback(t *testing.T) {
	t.Setenv("MISSION_SERVER_PORT", "4200")

	cfg, err := config.Load("")
	if err != nil {
		t.Fatalf("Load(\"\") error: %v", err)
	}
	if cfg.Server.Port != 4200 {
		t.Errorf("Server.Port = %d, want 4200 via MISSION_SERVER_PORT", cfg.Server.Port)
	}
}

func TestLoadPortPrecedence(t *testing.T) {
	t.Setenv("MISSION_SERVER_PORT", "4200")
	t.Setenv("SERVER_PORT", "4300")

	cfg, err := config.Load("")
	if err != nil {
		t.Fatalf("Load(\"\") error: %v", err)
	}
	if cfg.Server.Port != 4300 {
		t.Errorf("Server.Port = %d, want SERVER_PORT to win (4300)", cfg.Server.Port)
	}
}

func TestLoadClampsTrafficWindow(t *testing.T) {
	t.Setenv("TRAFFIC_WINDOW_S", "5")

	cfg, err := config.Load("")
	if err != nil {
		t.Fatalf("Load(\"\") error: %v", err)
	}
	if cfg.Traffic.WindowS != config.MinTrafficWindowS {
		t.Errorf("Traffic.WindowS = %d, want floored %d", cfg.Traffic.WindowS, config.MinTrafficWindowS)
	}
}

func TestLoadYAMLFile(t *testing.T) {
	t.Parallel()

	path := filepath.Join(t.TempDir(), "cadnav.yaml")
	yaml := `
server:
  port: 5000
log:
  level: warn
  format: text
session:
  code_length: 7
`
	if err := os.WriteFile(path, []byte(yaml), 0o600); err != nil {
		t.Fatalf("write config file: %v", err)
	}

	cfg, err := config.Load(path)
	if err != nil {
		t.Fatalf("Load(%q) error: %v", path, err)
	}
	if cfg.Server.Port != 5000 {
		t.Errorf("Server.Port = %d, want 5000", cfg.Server.Port)
	}
	if cfg.Log.Level != "warn" || cfg.Log.Format != "text" {
		t.Errorf("Log = %+v, want warn/text", cfg.Log)
	}
	if cfg.Session.CodeLength != 7 {
		t.Errorf("Session.CodeLength = %d, want 7", cfg.Session.CodeLength)
	}
	// Fields absent from the file keep their defaults.
	if cfg.Limits.MaxClientRoutes != 8 {
		t.Errorf("Limits.MaxClientRoutes = %d, want default 8", cfg.Limits.MaxClientRoutes)
	}
}

func TestLoadMissingFile(t *testing.T) {
	t.Parallel()

	if _, err := config.Load(filepath.Join(t.TempDir(), "missing.yaml")); err == nil {
		t.Error("Load() with a missing file succeeded, want error")
	}
}

func TestValidate(t *testing.T) {
	t.Parallel()

	tests := []struct {
		name    string
		mutate  func(*config.Config)
		wantErr error
	}{
		{"bad port low", func(c *config.Config) { c.Server.Port = 0 }, config.ErrInvalidPort},
		{"bad port high", func(c *config.Config) { c.Server.Port = 70_000 }, config.ErrInvalidPort},
		{"bad code length", func(c *config.Config) { c.Session.CodeLength = 0 }, config.ErrInvalidCodeLength},
		{"bad ttl", func(c *config.Config) { c.Session.TTLMs = 0 }, config.ErrInvalidTTL},
		{"bad grace", func(c *config.Config) { c.Session.HostResumeGraceMs = -1 }, config.ErrInvalidResumeGrace},
		{"bad route cap", func(c *config.Config) { c.Limits.MaxClientRoutes = 0 }, config.ErrInvalidRouteCap},
		{"bad point cap", func(c *config.Config) { c.Limits.MaxRoutePoints = 0 }, config.ErrInvalidPointCap},
		{"empty metrics addr", func(c *config.Config) { c.Metrics.Addr = "" }, config.ErrEmptyMetricsAddr},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()
			cfg := config.DefaultConfig()
			tt.mutate(cfg)
			if err := config.Validate(cfg); !errors.Is(err, tt.wantErr) {
				t.Errorf("Validate() error = %v, want %v", err, tt.wantErr)
			}
		})
	}
}

func TestParseLogLevel(t *testing.T) {
	t.Parallel()

	tests := []struct {
		in   string
		want slog.Level
	}{
		{"debug", slog.LevelDebug},
		{"info", slog.LevelInfo},
		{"warn", slog.LevelWarn},
		{"error", slog.LevelError},
		{"WARN", slog.LevelWarn},
		{"unknown", slog.LevelInfo},
		{"", slog.LevelInfo},
	}

	for _, tt := range tests {
		if got := config.ParseLogLevel(tt.in); got != tt.want {
			t.Errorf("ParseLogLevel(%q) = %v, want %v", tt.in, got, tt.want)
		}
	}
}
