// Package config manages cadnavd configuration using koanf/v2.
//
// Supports an optional YAML file plus environment variable overrides.
// The recognized environment names are the flat ones the deployment
// surface has always used (SERVER_PORT, SESSION_CODE_LENGTH, ...);
// they map onto the structured keys below.
package config

import (
	"errors"
	"fmt"
	"log/slog"
	"strings"
	"time"

	"github.com/knadh/koanf/parsers/yaml"
	"github.com/knadh/koanf/providers/env"
	"github.com/knadh/koanf/providers/file"
	"github.com/knadh/koanf/v2"
)

// -------------------------------------------------------------------------
// Configuration Structures
// -------------------------------------------------------------------------

// Config holds the complete cadnavd configuration.
type Config struct {
	Server  ServerConfig  `koanf:"server"`
	Metrics MetricsConfig `koanf:"metrics"`
	Log     LogConfig     `koanf:"log"`
	Session SessionConfig `koanf:"session"`
	Limits  LimitsConfig  `koanf:"limits"`
	Traffic TrafficConfig `koanf:"traffic"`
}

// ServerConfig holds the WebSocket/HTTP listener configuration.
type ServerConfig struct {
	// Port is the listening port for the WebSocket endpoint and the
	// health probe.
	Port int `koanf:"port"`
}

// MetricsConfig holds the Prometheus metrics endpoint configuration.
type MetricsConfig struct {
	// Addr is the HTTP listen address for the metrics endpoint (e.g., ":9100").
	Addr string `koanf:"addr"`
	// Path is the URL path for the metrics endpoint (e.g., "/metrics").
	Path string `koanf:"path"`
}

// LogConfig holds the logging configuration.
type LogConfig struct {
	// Level is the log level: "debug", "info", "warn", "error".
	Level string `koanf:"level"`
	// Format is the log output format: "json" or "text".
	Format string `koanf:"format"`
}

// SessionConfig holds session lifecycle parameters.
type SessionConfig struct {
	// CodeLength is the session code length.
	CodeLength int `koanf:"code_length"`

	// LocationIntervalMs is the initial location cadence in
	// milliseconds. The relay clamps it to its supported range at
	// runtime, along with every later cadence change.
	LocationIntervalMs int `koanf:"location_interval_ms"`

	// TTLMs is the idle session time-to-live in milliseconds.
	TTLMs int64 `koanf:"ttl_ms"`

	// HostResumeGraceMs is how long a session with a detached host
	// stays resumable, in milliseconds.
	HostResumeGraceMs int64 `koanf:"host_resume_grace_ms"`
}

// LimitsConfig holds payload bounds.
type LimitsConfig struct {
	// MaxClientRoutes is the per-client route cap.
	MaxClientRoutes int `koanf:"max_client_routes"`

	// MaxRoutePoints is the per-route point cap.
	MaxRoutePoints int `koanf:"max_route_points"`
}

// TrafficConfig holds the byte meter configuration.
type TrafficConfig struct {
	// WindowS is the metering window depth in seconds. Floor 60.
	WindowS int `koanf:"window_s"`
}

// -------------------------------------------------------------------------
// Defaults & Bounds
// -------------------------------------------------------------------------

// MinTrafficWindowS is the floor for the metering window depth.
const MinTrafficWindowS = 60

// DefaultConfig returns a Config populated with the relay's defaults.
func DefaultConfig() *Config {
	return &Config{
		Server: ServerConfig{
			Port: 4000,
		},
		Metrics: MetricsConfig{
			Addr: ":9100",
			Path: "/metrics",
		},
		Log: LogConfig{
			Level:  "info",
			Format: "json",
		},
		Session: SessionConfig{
			CodeLength:         6,
			LocationIntervalMs: 10_000,
			TTLMs:              (6 * time.Hour).Milliseconds(),
			HostResumeGraceMs:  (15 * time.Minute).Milliseconds(),
		},
		Limits: LimitsConfig{
			MaxClientRoutes: 8,
			MaxRoutePoints:  80,
		},
		Traffic: TrafficConfig{
			WindowS: 900,
		},
	}
}

// -------------------------------------------------------------------------
// Loader
// -------------------------------------------------------------------------

// envKeys maps the recognized flat environment names to structured
// config keys. Entries are applied in order, so SERVER_PORT overrides
// the legacy MISSION_SERVER_PORT fallback when both are set.
var envKeys = []struct {
	name string
	key  string
}{
	{"MISSION_SERVER_PORT", "server.port"},
	{"SERVER_PORT", "server.port"},
	{"SESSION_CODE_LENGTH", "session.code_length"},
	{"LOCATION_INTERVAL_MS", "session.location_interval_ms"},
	{"SESSION_TTL_MS", "session.ttl_ms"},
	{"HOST_RESUME_GRACE_MS", "session.host_resume_grace_ms"},
	{"MAX_CLIENT_ROUTES", "limits.max_client_routes"},
	{"MAX_ROUTE_POINTS", "limits.max_route_points"},
	{"TRAFFIC_WINDOW_S", "traffic.window_s"},
	{"METRICS_ADDR", "metrics.addr"},
	{"LOG_LEVEL", "log.level"},
	{"LOG_FORMAT", "log.format"},
}

// Load reads configuration from an optional YAML file at path, overlays
// environment variable overrides, and merges on top of DefaultConfig().
// An empty path skips the file layer. Missing fields inherit defaults.
func Load(path string) (*Config, error) {
	k := koanf.New(".")

	defaults := DefaultConfig()
	if err := loadDefaults(k, defaults); err != nil {
		return nil, fmt.Errorf("load config defaults: %w", err)
	}

	if path != "" {
		if err := k.Load(file.Provider(path), yaml.Parser()); err != nil {
			return nil, fmt.Errorf("load config from %s: %w", path, err)
		}
	}

	// Environment overrides, one provider per recognized name. Later
	// entries win, which gives SERVER_PORT priority over the legacy
	// MISSION_SERVER_PORT spelling.
	for _, ek := range envKeys {
		mapper := envMapper(ek.name, ek.key)
		if err := k.Load(env.Provider("", ".", mapper), nil); err != nil {
			return nil, fmt.Errorf("load env override %s: %w", ek.name, err)
		}
	}

	cfg := &Config{}
	if err := k.Unmarshal("", cfg); err != nil {
		return nil, fmt.Errorf("unmarshal config: %w", err)
	}

	normalize(cfg)

	if err := Validate(cfg); err != nil {
		return nil, fmt.Errorf("validate config: %w", err)
	}

	return cfg, nil
}

// envMapper returns a koanf env key callback that admits exactly one
// environment variable, mapping it to the given config key. Every other
// variable is dropped (empty return).
func envMapper(name, key string) func(string) string {
	return func(s string) string {
		if s == name {
			return key
		}
		return ""
	}
}

// loadDefaults seeds koanf with the default config as the base layer.
func loadDefaults(k *koanf.Koanf, defaults *Config) error {
	defaultMap := map[string]any{
		"server.port":                  defaults.Server.Port,
		"metrics.addr":                 defaults.Metrics.Addr,
		"metrics.path":                 defaults.Metrics.Path,
		"log.level":                    defaults.Log.Level,
		"log.format":                   defaults.Log.Format,
		"session.code_length":          defaults.Session.CodeLength,
		"session.location_interval_ms": defaults.Session.LocationIntervalMs,
		"session.ttl_ms":               defaults.Session.TTLMs,
		"session.host_resume_grace_ms": defaults.Session.HostResumeGraceMs,
		"limits.max_client_routes":     defaults.Limits.MaxClientRoutes,
		"limits.max_route_points":      defaults.Limits.MaxRoutePoints,
		"traffic.window_s":             defaults.Traffic.WindowS,
	}

	for key, val := range defaultMap {
		if err := k.Set(key, val); err != nil {
			return fmt.Errorf("set default %s: %w", key, err)
		}
	}

	return nil
}

// normalize floors the traffic window to its minimum depth.
func normalize(cfg *Config) {
	if cfg.Traffic.WindowS < MinTrafficWindowS {
		cfg.Traffic.WindowS = MinTrafficWindowS
	}
}

// -------------------------------------------------------------------------
// Validation
// -------------------------------------------------------------------------

// Validation errors.
var (
	// ErrInvalidPort indicates the listen port is out of range.
	ErrInvalidPort = errors.New("server.port must be in 1..65535")

	// ErrInvalidCodeLength indicates a nonpositive session code length.
	ErrInvalidCodeLength = errors.New("session.code_length must be >= 1")

	// ErrInvalidTTL indicates a nonpositive session TTL.
	ErrInvalidTTL = errors.New("session.ttl_ms must be > 0")

	// ErrInvalidResumeGrace indicates a nonpositive host resume grace.
	ErrInvalidResumeGrace = errors.New("session.host_resume_grace_ms must be > 0")

	// ErrInvalidRouteCap indicates a nonpositive route cap.
	ErrInvalidRouteCap = errors.New("limits.max_client_routes must be >= 1")

	// ErrInvalidPointCap indicates a nonpositive route point cap.
	ErrInvalidPointCap = errors.New("limits.max_route_points must be >= 1")

	// ErrEmptyMetricsAddr indicates the metrics listen address is empty.
	ErrEmptyMetricsAddr = errors.New("metrics.addr must not be empty")
)

// Validate checks the configuration for logical errors.
// Returns the first validation error encountered.
func Validate(cfg *Config) error {
	if cfg.Server.Port < 1 || cfg.Server.Port > 65535 {
		return ErrInvalidPort
	}
	if cfg.Session.CodeLength < 1 {
		return ErrInvalidCodeLength
	}
	if cfg.Session.TTLMs <= 0 {
		return ErrInvalidTTL
	}
	if cfg.Session.HostResumeGraceMs <= 0 {
		return ErrInvalidResumeGrace
	}
	if cfg.Limits.MaxClientRoutes < 1 {
		return ErrInvalidRouteCap
	}
	if cfg.Limits.MaxRoutePoints < 1 {
		return ErrInvalidPointCap
	}
	if cfg.Metrics.Addr == "" {
		return ErrEmptyMetricsAddr
	}
	return nil
}

// -------------------------------------------------------------------------
// Log Level Parsing
// -------------------------------------------------------------------------

// ParseLogLevel maps a configuration log level string to the
// corresponding slog.Level. Unknown values default to slog.LevelInfo.
//
// Recognized values: "debug", "info", "warn", "error" (case-insensitive).
func ParseLogLevel(level string) slog.Level {
	switch strings.ToLower(level) {
	case "debug":
		return slog.LevelDebug
	case "info":
		return slog.LevelInfo
	case "warn":
		return slog.LevelWarn
	case "error":
		return slog.LevelError
	default:
		return slog.LevelInfo
	}
}
