package profile

import (
	"context"
	"errors"
	"fmt"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/jackc/pgx/v5/pgxpool"
)

var (
	// ErrNotFound signals no profile row exists for the user.
	ErrNotFound = errors.New("profile: not found")
	// ErrDuplicateProfile signals a profile row already exists for the user.
	ErrDuplicateProfile = errors.New("profile: already exists for user")
)

// Repository writes and reads role-specific profile rows.
type Repository struct {
	pool *pgxpool.Pool
}

// NewRepository wires a pgxpool-backed repository implementation.
func NewRepository(pool *pgxpool.Pool) *Repository {
	return &Repository{pool: pool}
}

// InsertAgent stores a new agent profile.
func (r *Repository) InsertAgent(ctx context.Context, p AgentProfile) error {
	const insertSQL = `
		INSERT INTO agent_profiles (user_id, name, subscription_tier, subscription_status)
		VALUES ($1, NULLIF($2, ''), $3, $4)
	`

	if _, err := r.pool.Exec(ctx, insertSQL, p.UserID, p.Name, p.SubscriptionTier, p.SubscriptionStatus); err != nil {
		return mapInsertErr("agent", err)
	}
	return nil
}

// InsertClient stores a new client profile.
func (r *Repository) InsertClient(ctx context.Context, p ClientProfile) error {
	const insertSQL = `
		INSERT INTO client_profiles (user_id, name, preferred_areas, preferred_contact)
		VALUES ($1, NULLIF($2, ''), $3, $4)
	`

	areas := p.PreferredAreas
	if areas == nil {
		areas = []string{}
	}

	if _, err := r.pool.Exec(ctx, insertSQL, p.UserID, p.Name, areas, p.PreferredContact); err != nil {
		return mapInsertErr("client", err)
	}
	return nil
}

// GetAgent fetches the agent profile for a user.
func (r *Repository) GetAgent(ctx context.Context, userID string) (AgentProfile, error) {
	const query = `
		SELECT user_id::text, COALESCE(name, ''), subscription_tier, subscription_status, created_at
		FROM agent_profiles
		WHERE user_id = $1
	`

	var p AgentProfile
	err := r.pool.QueryRow(ctx, query, userID).Scan(
		&p.UserID,
		&p.Name,
		&p.SubscriptionTier,
		&p.SubscriptionStatus,
		&p.CreatedAt,
	)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return AgentProfile{}, ErrNotFound
		}
		return AgentProfile{}, fmt.Errorf("profile: get agent: %w", err)
	}
	return p, nil
}

// GetClient fetches the client profile for a user.
func (r *Repository) GetClient(ctx context.Context, userID string) (ClientProfile, error) {
	const query = `
		SELECT user_id::text, COALESCE(name, ''), preferred_areas, preferred_contact, created_at
		FROM client_profiles
		WHERE user_id = $1
	`

	var p ClientProfile
	err := r.pool.QueryRow(ctx, query, userID).Scan(
		&p.UserID,
		&p.Name,
		&p.PreferredAreas,
		&p.PreferredContact,
		&p.CreatedAt,
	)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return ClientProfile{}, ErrNotFound
		}
		return ClientProfile{}, fmt.Errorf("profile: get client: %w", err)
	}
	if p.PreferredAreas == nil {
		p.PreferredAreas = []string{}
	}
	return p, nil
}

func mapInsertErr(kind string, err error) error {
	var pgErr *pgconn.PgError
	if errors.As(err, &pgErr) && pgErr.Code == "23505" {
		return ErrDuplicateProfile
	}
	return fmt.Errorf("profile: insert %s: %w", kind, err)
}
