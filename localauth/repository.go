package localauth

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/jackc/pgx/v5/pgxpool"
)

var (
	// ErrIdentityNotFound signals the identity does not exist.
	ErrIdentityNotFound = errors.New("localauth: identity not found")
	// ErrDuplicateEmail signals the email is already registered.
	ErrDuplicateEmail = errors.New("localauth: email already exists")
)

// identity mirrors the auth_identities table.
type identity struct {
	ID           string
	Email        string
	PasswordHash string
	UserMetadata map[string]any
	CreatedAt    time.Time
}

type identityStore interface {
	CreateIdentity(ctx context.Context, params createIdentityParams) (identity, error)
	DeleteIdentity(ctx context.Context, id string) error
}

type createIdentityParams struct {
	ID           string
	Email        string
	PasswordHash string
	UserMetadata map[string]any
}

// PGRepository implements Repository backed by PostgreSQL.
type PGRepository struct {
	pool *pgxpool.Pool
}

// NewRepository creates a PostgreSQL-backed identity repository.
func NewRepository(pool *pgxpool.Pool) *PGRepository {
	return &PGRepository{pool: pool}
}

// CreateIdentity inserts a new identity with a hashed password.
func (r *PGRepository) CreateIdentity(ctx context.Context, params createIdentityParams) (identity, error) {
	const insertSQL = `
		INSERT INTO auth_identities (id, email, password_hash, user_metadata)
		VALUES ($1, $2, $3, $4)
		RETURNING id::text, email, password_hash, user_metadata, created_at
	`

	meta, err := json.Marshal(params.UserMetadata)
	if err != nil {
		return identity{}, fmt.Errorf("localauth: marshal metadata: %w", err)
	}

	ident, err := scanIdentity(r.pool.QueryRow(ctx, insertSQL, params.ID, params.Email, params.PasswordHash, meta))
	if err != nil {
		var pgErr *pgconn.PgError
		if errors.As(err, &pgErr) && pgErr.Code == "23505" {
			return identity{}, ErrDuplicateEmail
		}
		return identity{}, fmt.Errorf("localauth: create identity: %w", err)
	}

	return ident, nil
}

// DeleteIdentity removes an identity by ID.
func (r *PGRepository) DeleteIdentity(ctx context.Context, id string) error {
	tag, err := r.pool.Exec(ctx, `DELETE FROM auth_identities WHERE id = $1`, id)
	if err != nil {
		return fmt.Errorf("localauth: delete identity: %w", err)
	}
	if tag.RowsAffected() == 0 {
		return ErrIdentityNotFound
	}
	return nil
}

func scanIdentity(row pgx.Row) (identity, error) {
	var (
		ident identity
		meta  []byte
	)
	err := row.Scan(
		&ident.ID,
		&ident.Email,
		&ident.PasswordHash,
		&meta,
		&ident.CreatedAt,
	)
	if err != nil {
		return identity{}, err
	}

	ident.UserMetadata = map[string]any{}
	if len(meta) > 0 {
		if err := json.Unmarshal(meta, &ident.UserMetadata); err != nil {
			return identity{}, fmt.Errorf("localauth: decode metadata: %w", err)
		}
	}
	return ident, nil
}
