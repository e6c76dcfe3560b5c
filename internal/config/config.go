// Package config loads service settings from an optional .env file, an
// optional YAML file named by CONFIG_FILE, and environment variables, in
// that order of increasing precedence.
package config

import (
	"errors"
	"fmt"
	"io/fs"
	"log"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/joho/godotenv"
	"gopkg.in/yaml.v3"
)

type Config struct {
	Port          string `yaml:"port"`
	DatabaseURL   string `yaml:"database_url"`
	DBMigrate     bool   `yaml:"db_migrate"`
	MigrationsDir string `yaml:"migrations_dir"`
	RedisURL      string `yaml:"redis_url"`
	OpenAPIPath   string `yaml:"openapi_path"`

	Auth      Auth      `yaml:"auth"`
	RateLimit RateLimit `yaml:"rate_limit"`
	Solver    Solver    `yaml:"solver"`
	Webhooks  Webhooks  `yaml:"webhooks"`

	ShutdownTimeout time.Duration `yaml:"shutdown_timeout"`
}

type Auth struct {
	Mode        string `yaml:"mode"` // dev, hmac, jwks
	HMACSecret  string `yaml:"hmac_secret"`
	JWKSURL     string `yaml:"jwks_url"`
	TenantClaim string `yaml:"tenant_claim"`
	RoleClaim   string `yaml:"role_claim"`
}

// RateLimit is per tenant. RPS <= 0 disables limiting.
type RateLimit struct {
	RPS   float64 `yaml:"rps"`
	Burst int     `yaml:"burst"`
}

// Solver bounds the service around the solver. The search policy itself is fixed.
type Solver struct {
	MaxConcurrent int   `yaml:"max_concurrent"`
	MaxBodyBytes  int64 `yaml:"max_body_bytes"`
}

type Webhooks struct {
	Enabled     bool `yaml:"enabled"`
	MaxAttempts int  `yaml:"max_attempts"`
}

func Default() Config {
	return Config{
		Port:            "8080",
		MigrationsDir:   "db/migrations",
		OpenAPIPath:     "openapi/openapi.yaml",
		Auth:            Auth{Mode: "dev", TenantClaim: "tenant", RoleClaim: "role"},
		RateLimit:       RateLimit{RPS: 0, Burst: 10},
		Solver:          Solver{MaxConcurrent: 4, MaxBodyBytes: 8 << 20},
		Webhooks:        Webhooks{Enabled: true, MaxAttempts: 10},
		ShutdownTimeout: 10 * time.Second,
	}
}

// Load builds the configuration. A missing .env file is not an error.
func Load() (Config, error) {
	if err := godotenv.Load(); err != nil && !errors.Is(err, fs.ErrNotExist) {
		return Config{}, fmt.Errorf("config: .env: %w", err)
	}
	cfg := Default()
	if path := os.Getenv("CONFIG_FILE"); path != "" {
		if err := cfg.loadFile(path); err != nil {
			return Config{}, err
		}
	}
	if err := cfg.applyEnv(os.LookupEnv); err != nil {
		return Config{}, err
	}
	if err := cfg.Validate(); err != nil {
		return Config{}, err
	}
	return cfg, nil
}

func (c *Config) loadFile(path string) error {
	data, err := os.ReadFile(path)
	if err != nil {
		return fmt.Errorf("config: read %s: %w", path, err)
	}
	if err := yaml.Unmarshal(data, c); err != nil {
		return fmt.Errorf("config: parse %s: %w", path, err)
	}
	log.Printf("config: loaded file=%s", path)
	return nil
}

func (c *Config) applyEnv(lookup func(string) (string, bool)) error {
	str := func(key string, dst *string) {
		if v, ok := lookup(key); ok && v != "" {
			*dst = v
		}
	}
	var firstErr error
	num := func(key string, set func(string) error) {
		v, ok := lookup(key)
		if !ok || v == "" {
			return
		}
		if err := set(v); err != nil && firstErr == nil {
			firstErr = fmt.Errorf("config: %s=%q: %w", key, v, err)
		}
	}
	str("PORT", &c.Port)
	str("DATABASE_URL", &c.DatabaseURL)
	str("MIGRATIONS_DIR", &c.MigrationsDir)
	str("REDIS_URL", &c.RedisURL)
	str("OPENAPI_PATH", &c.OpenAPIPath)
	str("AUTH_HMAC_SECRET", &c.Auth.HMACSecret)
	str("AUTH_JWKS_URL", &c.Auth.JWKSURL)
	str("AUTH_TENANT_CLAIM", &c.Auth.TenantClaim)
	str("AUTH_ROLE_CLAIM", &c.Auth.RoleClaim)
	if v, ok := lookup("AUTH_MODE"); ok && v != "" {
		c.Auth.Mode = strings.ToLower(strings.TrimSpace(v))
	}
	num("DB_MIGRATE", func(v string) (err error) { c.DBMigrate, err = strconv.ParseBool(v); return })
	num("WEBHOOKS_ENABLED", func(v string) (err error) { c.Webhooks.Enabled, err = strconv.ParseBool(v); return })
	num("WEBHOOK_MAX_ATTEMPTS", func(v string) (err error) { c.Webhooks.MaxAttempts, err = strconv.Atoi(v); return })
	num("RATE_RPS", func(v string) (err error) { c.RateLimit.RPS, err = strconv.ParseFloat(v, 64); return })
	num("RATE_BURST", func(v string) (err error) { c.RateLimit.Burst, err = strconv.Atoi(v); return })
	num("SOLVER_MAX_CONCURRENT", func(v string) (err error) { c.Solver.MaxConcurrent, err = strconv.Atoi(v); return })
	num("MAX_BODY_BYTES", func(v string) (err error) { c.Solver.MaxBodyBytes, err = strconv.ParseInt(v, 10, 64); return })
	num("SHUTDOWN_TIMEOUT", func(v string) (err error) { c.ShutdownTimeout, err = time.ParseDuration(v); return })
	return firstErr
}

func (c Config) Validate() error {
	switch c.Auth.Mode {
	case "dev", "hmac", "jwks":
	default:
		return fmt.Errorf("config: unknown auth mode %q", c.Auth.Mode)
	}
	if c.Auth.Mode == "hmac" && c.Auth.HMACSecret == "" {
		return errors.New("config: AUTH_HMAC_SECRET required for hmac auth")
	}
	if c.Auth.Mode == "jwks" && c.Auth.JWKSURL == "" {
		return errors.New("config: AUTH_JWKS_URL required for jwks auth")
	}
	if c.Solver.MaxConcurrent <= 0 {
		return fmt.Errorf("config: solver max_concurrent must be positive, got %d", c.Solver.MaxConcurrent)
	}
	if c.Solver.MaxBodyBytes <= 0 {
		return fmt.Errorf("config: max_body_bytes must be positive, got %d", c.Solver.MaxBodyBytes)
	}
	if c.RateLimit.RPS > 0 && c.RateLimit.Burst <= 0 {
		return errors.New("config: rate_limit burst must be positive when rps is set")
	}
	return nil
}

// Redacted is the configuration as shown on /debug/info.
func (c Config) Redacted() map[string]any {
	return map[string]any{
		"port":              c.Port,
		"storage":           c.storageKind(),
		"dbMigrate":         c.DBMigrate,
		"broker":            c.brokerKind(),
		"authMode":          c.Auth.Mode,
		"rateRps":           c.RateLimit.RPS,
		"rateBurst":         c.RateLimit.Burst,
		"solverConcurrency": c.Solver.MaxConcurrent,
		"maxBodyBytes":      c.Solver.MaxBodyBytes,
		"webhooks":          c.Webhooks.Enabled,
		"webhookAttempts":   c.Webhooks.MaxAttempts,
	}
}

func (c Config) storageKind() string {
	if c.DatabaseURL != "" {
		return "postgres"
	}
	return "memory"
}

func (c Config) brokerKind() string {
	if c.RedisURL != "" {
		return "redis"
	}
	return "memory"
}
