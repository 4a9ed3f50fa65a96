// Package config provides configuration management for placefeed.
package config

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strconv"
	"strings"
	"sync"
	"time"

	"github.com/goccy/go-json"
)

const (
	// DefaultPort is the default HTTP port for the gateway.
	DefaultPort = 37780

	// DefaultBasePath is where the MCP endpoint is mounted.
	DefaultBasePath = "/mcp"

	// Store backends.
	BackendPostgres = "postgres"
	BackendSupabase = "supabase"
)

// Config holds the application configuration.
type Config struct {
	// HTTP settings
	Host     string `json:"host"`
	BasePath string `json:"base_path"`
	Token    string `json:"-"` // Shared bearer token; empty disables auth
	Port     int    `json:"port"`

	// Transport settings
	SessionTTL   time.Duration `json:"session_ttl"`
	KeepAlive    time.Duration `json:"keepalive"`
	MaxBodyBytes int64         `json:"max_body_bytes"`

	// Rate limiting (per client IP); RateLimit <= 0 disables it
	RateLimit float64 `json:"rate_limit"`
	RateBurst int     `json:"rate_burst"`

	// Store settings
	Backend        string        `json:"backend"`
	DatabaseDSN    string        `json:"-"`
	SupabaseURL    string        `json:"supabase_url"`
	SupabaseKey    string        `json:"-"`
	SupabaseSchema string        `json:"supabase_schema"`
	MaxConns       int           `json:"max_conns"`
	QueryTimeout   time.Duration `json:"query_timeout"`
	AutoMigrate    bool          `json:"auto_migrate"`
}

var (
	globalConfig *Config
	configOnce   sync.Once
	configMu     sync.RWMutex
)

// DataDir returns the data directory path (~/.placefeed).
func DataDir() string {
	home, _ := os.UserHomeDir()
	return filepath.Join(home, ".placefeed")
}

// SettingsPath returns the settings file path. PLACEFEED_SETTINGS overrides it.
func SettingsPath() string {
	if p := os.Getenv("PLACEFEED_SETTINGS"); p != "" {
		return p
	}
	return filepath.Join(DataDir(), "settings.json")
}

// EnsureDataDir creates the data directory if it doesn't exist.
func EnsureDataDir() error {
	return os.MkdirAll(filepath.Dir(SettingsPath()), 0750)
}

// EnsureSettings creates a default settings file if it doesn't exist.
func EnsureSettings() error {
	path := SettingsPath()

	if _, err := os.Stat(path); err == nil {
		return nil
	}

	// Secrets are never written here; they come from the environment.
	defaultSettings := `{
  "PLACEFEED_PORT": 37780,
  "PLACEFEED_BACKEND": "postgres",
  "PLACEFEED_SESSION_TTL": "30m",
  "PLACEFEED_RATE_LIMIT": 20,
  "PLACEFEED_RATE_BURST": 40
}
`
	return os.WriteFile(path, []byte(defaultSettings), 0600)
}

// EnsureAll ensures all required directories and files exist.
func EnsureAll() error {
	if err := EnsureDataDir(); err != nil {
		return err
	}
	if err := EnsureSettings(); err != nil {
		return err
	}
	return nil
}

// Default returns a Config with default values.
func Default() *Config {
	return &Config{
		Host:         "",
		Port:         DefaultPort,
		BasePath:     DefaultBasePath,
		SessionTTL:   30 * time.Minute,
		KeepAlive:    25 * time.Second,
		MaxBodyBytes: 1 << 20,
		RateLimit:    20,
		RateBurst:    40,
		Backend:      BackendPostgres,
		MaxConns:     10,
		QueryTimeout: 5 * time.Second,
	}
}

// Load loads configuration from the settings file, merging with defaults,
// then applies environment overrides.
func Load() (*Config, error) {
	cfg := Default()

	data, err := os.ReadFile(SettingsPath())
	switch {
	case err == nil:
		// Load settings into a map to preserve unknown fields
		var settings map[string]any
		if err := json.Unmarshal(data, &settings); err != nil {
			return nil, fmt.Errorf("parse %s: %w", SettingsPath(), err)
		}
		applySettings(cfg, settings)
	case !os.IsNotExist(err):
		return nil, err
	}

	applyEnv(cfg)

	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

func applySettings(cfg *Config, settings map[string]any) {
	if v, ok := settings["PLACEFEED_HOST"].(string); ok {
		cfg.Host = v
	}
	if v, ok := settings["PLACEFEED_PORT"].(float64); ok && v > 0 {
		cfg.Port = int(v)
	}
	if v, ok := settings["PLACEFEED_BASE_PATH"].(string); ok && v != "" {
		cfg.BasePath = v
	}
	if v, ok := settings["PLACEFEED_SESSION_TTL"].(string); ok {
		if d, err := time.ParseDuration(v); err == nil {
			cfg.SessionTTL = d
		}
	}
	if v, ok := settings["PLACEFEED_KEEPALIVE"].(string); ok {
		if d, err := time.ParseDuration(v); err == nil && d > 0 {
			cfg.KeepAlive = d
		}
	}
	if v, ok := settings["PLACEFEED_MAX_BODY_BYTES"].(float64); ok && v > 0 {
		cfg.MaxBodyBytes = int64(v)
	}
	if v, ok := settings["PLACEFEED_RATE_LIMIT"].(float64); ok {
		cfg.RateLimit = v
	}
	if v, ok := settings["PLACEFEED_RATE_BURST"].(float64); ok && v > 0 {
		cfg.RateBurst = int(v)
	}
	if v, ok := settings["PLACEFEED_BACKEND"].(string); ok && v != "" {
		cfg.Backend = strings.ToLower(v)
	}
	if v, ok := settings["PLACEFEED_MAX_CONNS"].(float64); ok && v > 0 {
		cfg.MaxConns = int(v)
	}
	if v, ok := settings["PLACEFEED_QUERY_TIMEOUT"].(string); ok {
		if d, err := time.ParseDuration(v); err == nil && d > 0 {
			cfg.QueryTimeout = d
		}
	}
	if v, ok := settings["PLACEFEED_AUTO_MIGRATE"].(bool); ok {
		cfg.AutoMigrate = v
	}
	if v, ok := settings["SUPABASE_URL"].(string); ok {
		cfg.SupabaseURL = v
	}
	if v, ok := settings["SUPABASE_SCHEMA"].(string); ok {
		cfg.SupabaseSchema = v
	}
}

func applyEnv(cfg *Config) {
	if v := os.Getenv("PLACEFEED_HOST"); v != "" {
		cfg.Host = v
	}
	if v := os.Getenv("PLACEFEED_PORT"); v != "" {
		if p, err := strconv.Atoi(v); err == nil && p > 0 {
			cfg.Port = p
		}
	}
	if v := os.Getenv("PLACEFEED_BASE_PATH"); v != "" {
		cfg.BasePath = v
	}
	if v := os.Getenv("PLACEFEED_TOKEN"); v != "" {
		cfg.Token = v
	}
	if v := os.Getenv("PLACEFEED_SESSION_TTL"); v != "" {
		if d, err := time.ParseDuration(v); err == nil {
			cfg.SessionTTL = d
		}
	}
	if v := os.Getenv("PLACEFEED_RATE_LIMIT"); v != "" {
		if f, err := strconv.ParseFloat(v, 64); err == nil {
			cfg.RateLimit = f
		}
	}
	if v := os.Getenv("PLACEFEED_BACKEND"); v != "" {
		cfg.Backend = strings.ToLower(v)
	}
	if v := os.Getenv("PLACEFEED_DATABASE_DSN"); v != "" {
		cfg.DatabaseDSN = v
	} else if v := os.Getenv("DATABASE_DSN"); v != "" {
		cfg.DatabaseDSN = v
	}
	if v := os.Getenv("PLACEFEED_AUTO_MIGRATE"); v != "" {
		if b, err := strconv.ParseBool(v); err == nil {
			cfg.AutoMigrate = b
		}
	}
	if v := os.Getenv("SUPABASE_URL"); v != "" {
		cfg.SupabaseURL = v
	}
	if v := os.Getenv("SUPABASE_SERVICE_ROLE_KEY"); v != "" {
		cfg.SupabaseKey = v
	}
}

// Validate reports settings the gateway cannot start with.
func (c *Config) Validate() error {
	var errs []error
	if c.Port <= 0 || c.Port > 65535 {
		errs = append(errs, fmt.Errorf("port %d out of range", c.Port))
	}
	if !strings.HasPrefix(c.BasePath, "/") {
		errs = append(errs, fmt.Errorf("base path %q must start with /", c.BasePath))
	}
	if c.SessionTTL < 0 {
		errs = append(errs, errors.New("session ttl must not be negative"))
	}
	switch c.Backend {
	case BackendPostgres, BackendSupabase:
	default:
		errs = append(errs, fmt.Errorf("unknown backend %q", c.Backend))
	}
	return errors.Join(errs...)
}

// StoreConfigured reports whether the selected backend has its credentials.
func (c *Config) StoreConfigured() error {
	switch c.Backend {
	case BackendSupabase:
		if c.SupabaseURL == "" || c.SupabaseKey == "" {
			return errors.New("SUPABASE_URL and SUPABASE_SERVICE_ROLE_KEY must be set")
		}
	default:
		if c.DatabaseDSN == "" {
			return errors.New("PLACEFEED_DATABASE_DSN must be set")
		}
	}
	return nil
}

// Addr returns the listen address.
func (c *Config) Addr() string {
	return fmt.Sprintf("%s:%d", c.Host, c.Port)
}

// Get returns the global configuration, loading it if necessary.
func Get() *Config {
	configOnce.Do(func() {
		var err error
		globalConfig, err = Load()
		if err != nil {
			globalConfig = Default()
		}
	})

	configMu.RLock()
	defer configMu.RUnlock()
	return globalConfig
}
