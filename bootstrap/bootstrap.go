// Package bootstrap assembles the registration workflow from configuration.
package bootstrap

import (
	"context"
	"fmt"

	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/rs/zerolog"

	"signupflow/auth"
	"signupflow/config"
	"signupflow/db"
	"signupflow/gotrue"
	"signupflow/localauth"
	"signupflow/profile"
)

// App is the wired workflow plus the resources it owns.
type App struct {
	Pool     *pgxpool.Pool
	Service  *auth.Service
	Identity auth.IdentityProvider
}

// Build opens the pool and wires the provider selected by cfg.
func Build(ctx context.Context, cfg *config.Config, logger zerolog.Logger) (*App, error) {
	pool, err := db.NewPool(ctx, cfg.Database.URL, db.PoolConfig{
		MaxConns:        cfg.Database.MaxConns,
		MinConns:        cfg.Database.MinConns,
		MaxConnLifetime: cfg.Database.MaxConnLifetime,
		MaxConnIdleTime: cfg.Database.MaxConnIdleTime,
	})
	if err != nil {
		return nil, fmt.Errorf("bootstrap database pool: %w", err)
	}

	identity, err := NewIdentityProvider(cfg.Identity, pool)
	if err != nil {
		pool.Close()
		return nil, err
	}

	svc := auth.NewService(identity, profile.NewRepository(pool), logger, auth.Options{
		StrictRoles: cfg.Signup.StrictRoles,
		Compensate:  cfg.Signup.CompensateOrphans,
	})

	logger.Info().
		Str("identity_backend", cfg.Identity.Backend).
		Bool("strict_roles", cfg.Signup.StrictRoles).
		Bool("compensate_orphans", cfg.Signup.CompensateOrphans).
		Msg("registration workflow ready")

	return &App{Pool: pool, Service: svc, Identity: identity}, nil
}

// NewIdentityProvider returns the provider named by cfg.Backend.
func NewIdentityProvider(cfg config.IdentityConfig, pool *pgxpool.Pool) (auth.IdentityProvider, error) {
	switch cfg.Backend {
	case config.BackendGoTrue:
		return gotrue.NewClient(gotrue.Config{
			URL:            cfg.SupabaseURL,
			AnonKey:        cfg.AnonKey,
			ServiceRoleKey: cfg.ServiceRoleKey,
			Timeout:        cfg.ProviderTimeout,
		}, nil), nil
	case config.BackendLocal:
		if pool == nil {
			return nil, fmt.Errorf("bootstrap: %s backend needs a database pool", config.BackendLocal)
		}
		return localauth.NewProvider(pool, localauth.Config{
			JWTSecret:  cfg.JWTSecret,
			TokenTTL:   cfg.TokenTTL,
			BcryptCost: cfg.BcryptCost,
		}), nil
	default:
		return nil, fmt.Errorf("bootstrap: unsupported identity backend %q", cfg.Backend)
	}
}

// Close releases the pool.
func (a *App) Close() {
	if a.Pool != nil {
		a.Pool.Close()
	}
}
