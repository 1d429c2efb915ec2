package config

import (
	"fmt"
	"strings"
	"time"

	"github.com/caarlos0/env/v11"
	"github.com/golang-jwt/jwt/v5"
	"github.com/joho/godotenv"
)

const (
	BackendGoTrue = "gotrue"
	BackendLocal  = "local"
)

// Config holds all application configuration.
type Config struct {
	Server   ServerConfig
	Database DatabaseConfig
	Identity IdentityConfig
	Signup   SignupConfig
	Logging  LoggingConfig
}

// ServerConfig contains HTTP server configuration.
type ServerConfig struct {
	Addr            string        `env:"SERVER_ADDR"             envDefault:":8080"`
	ReadTimeout     time.Duration `env:"SERVER_READ_TIMEOUT"     envDefault:"10s"`
	WriteTimeout    time.Duration `env:"SERVER_WRITE_TIMEOUT"    envDefault:"15s"`
	ShutdownTimeout time.Duration `env:"SERVER_SHUTDOWN_TIMEOUT" envDefault:"30s"`
	AllowedOrigins  []string      `env:"CORS_ALLOWED_ORIGINS"    envDefault:"http://localhost:5173" envSeparator:","`
}

// DatabaseConfig contains connection pool configuration.
type DatabaseConfig struct {
	URL             string        `env:"DATABASE_URL"`
	MaxConns        int32         `env:"DB_MAX_CONNS"          envDefault:"20"`
	MinConns        int32         `env:"DB_MIN_CONNS"          envDefault:"2"`
	MaxConnLifetime time.Duration `env:"DB_MAX_CONN_LIFETIME"  envDefault:"30m"`
	MaxConnIdleTime time.Duration `env:"DB_MAX_CONN_IDLE_TIME" envDefault:"10m"`
}

// IdentityConfig selects and configures the identity provider.
type IdentityConfig struct {
	Backend string `env:"IDENTITY_BACKEND" envDefault:"gotrue"`

	SupabaseURL     string        `env:"SUPABASE_URL"`
	AnonKey         string        `env:"SUPABASE_ANON_KEY"`
	ServiceRoleKey  string        `env:"SUPABASE_SERVICE_ROLE_KEY"`
	ProviderTimeout time.Duration `env:"IDENTITY_TIMEOUT" envDefault:"10s"`

	JWTSecret  string        `env:"LOCAL_AUTH_JWT_SECRET"`
	TokenTTL   time.Duration `env:"LOCAL_AUTH_TOKEN_TTL"   envDefault:"1h"`
	BcryptCost int           `env:"LOCAL_AUTH_BCRYPT_COST" envDefault:"12"`
}

// SignupConfig toggles optional registration behaviour.
type SignupConfig struct {
	StrictRoles       bool `env:"SIGNUP_STRICT_ROLES"       envDefault:"false"`
	CompensateOrphans bool `env:"SIGNUP_COMPENSATE_ORPHANS" envDefault:"false"`
}

// LoggingConfig contains logging configuration.
type LoggingConfig struct {
	Level  string `env:"LOG_LEVEL"  envDefault:"info"`
	Format string `env:"LOG_FORMAT" envDefault:"json"`
}

// Load reads configuration from the environment. Files listed in envFiles
// are loaded first without overriding variables that are already set; a
// missing file is not an error.
func Load(envFiles ...string) (*Config, error) {
	if len(envFiles) == 0 {
		envFiles = []string{".env"}
	}
	for _, f := range envFiles {
		_ = godotenv.Load(f)
	}

	var cfg Config
	if err := env.Parse(&cfg); err != nil {
		return nil, fmt.Errorf("config: parse env: %w", err)
	}

	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("invalid configuration: %w", err)
	}

	return &cfg, nil
}

// Validate validates the configuration.
func (c *Config) Validate() error {
	if c.Database.URL == "" {
		return fmt.Errorf("DATABASE_URL must be set")
	}

	switch c.Identity.Backend {
	case BackendGoTrue:
		if c.Identity.SupabaseURL == "" || c.Identity.AnonKey == "" {
			return fmt.Errorf("SUPABASE_URL and SUPABASE_ANON_KEY are required for the %s backend", BackendGoTrue)
		}
		if c.Signup.CompensateOrphans {
			if err := validateServiceKey(c.Identity.ServiceRoleKey); err != nil {
				return err
			}
		}
	case BackendLocal:
		if len(c.Identity.JWTSecret) < 32 {
			return fmt.Errorf("LOCAL_AUTH_JWT_SECRET must be at least 32 bytes for the %s backend", BackendLocal)
		}
	default:
		return fmt.Errorf("unsupported identity backend: %q", c.Identity.Backend)
	}

	switch strings.ToLower(c.Logging.Format) {
	case "json", "console":
	default:
		return fmt.Errorf("unsupported log format: %q", c.Logging.Format)
	}

	return nil
}

// validateServiceKey checks that the admin key can delete users. Legacy keys
// are JWTs carrying role=service_role; newer projects issue opaque
// sb_secret_ keys.
func validateServiceKey(key string) error {
	if key == "" {
		return fmt.Errorf("SUPABASE_SERVICE_ROLE_KEY is required when SIGNUP_COMPENSATE_ORPHANS is enabled")
	}
	if strings.HasPrefix(key, "sb_secret_") {
		return nil
	}

	claims := jwt.MapClaims{}
	if _, _, err := jwt.NewParser().ParseUnverified(key, claims); err != nil {
		return fmt.Errorf("SUPABASE_SERVICE_ROLE_KEY is not a valid key: %w", err)
	}
	if role, _ := claims["role"].(string); role != "service_role" {
		return fmt.Errorf("SUPABASE_SERVICE_ROLE_KEY has role %q, want service_role", role)
	}
	return nil
}
