// Package localauth is a PostgreSQL-backed stand-in for the hosted identity
// provider. It speaks the same error vocabulary so the registration workflow
// behaves identically against either backend.
package localauth

import (
	"context"
	"crypto/rand"
	"encoding/base64"
	"errors"
	"fmt"
	"net/http"
	"strings"
	"time"

	"github.com/golang-jwt/jwt/v5"
	"github.com/google/uuid"
	"github.com/jackc/pgx/v5/pgxpool"
	"golang.org/x/crypto/bcrypt"

	"signupflow/auth"
)

const minPasswordLength = 6

// Config controls token issuance and hashing.
type Config struct {
	JWTSecret  string
	TokenTTL   time.Duration
	BcryptCost int
}

// Claims is the access token payload.
type Claims struct {
	Email        string         `json:"email"`
	Role         string         `json:"role"`
	UserMetadata map[string]any `json:"user_metadata,omitempty"`
	jwt.RegisteredClaims
}

// Provider implements auth.IdentityProvider.
type Provider struct {
	store     identityStore
	jwtSecret []byte
	tokenTTL  time.Duration
	cost      int
	now       func() time.Time
}

// NewProvider creates a provider over the auth_identities table.
func NewProvider(pool *pgxpool.Pool, cfg Config) *Provider {
	return newProvider(NewRepository(pool), cfg)
}

func newProvider(store identityStore, cfg Config) *Provider {
	ttl := cfg.TokenTTL
	if ttl <= 0 {
		ttl = time.Hour
	}
	cost := cfg.BcryptCost
	if cost == 0 {
		cost = bcrypt.DefaultCost
	}
	return &Provider{
		store:     store,
		jwtSecret: []byte(cfg.JWTSecret),
		tokenTTL:  ttl,
		cost:      cost,
		now:       time.Now,
	}
}

// SignUp creates an identity and issues a session for it.
func (p *Provider) SignUp(ctx context.Context, params auth.SignUpParams) (auth.SignUpResult, error) {
	email := strings.TrimSpace(params.Email)
	if email == "" {
		return auth.SignUpResult{}, &auth.ProviderError{
			Status:  http.StatusBadRequest,
			Code:    "validation_failed",
			Message: "To signup, please provide your email",
		}
	}
	if len(params.Password) < minPasswordLength {
		return auth.SignUpResult{}, &auth.ProviderError{
			Status:  http.StatusUnprocessableEntity,
			Code:    "weak_password",
			Message: fmt.Sprintf("Password should be at least %d characters.", minPasswordLength),
		}
	}

	hash, err := bcrypt.GenerateFromPassword([]byte(params.Password), p.cost)
	if err != nil {
		return auth.SignUpResult{}, fmt.Errorf("localauth: hash password: %w", err)
	}

	meta := map[string]any{}
	if params.Data.Name != "" {
		meta["name"] = params.Data.Name
	}
	if params.Data.Role != "" {
		meta["role"] = string(params.Data.Role)
	}

	ident, err := p.store.CreateIdentity(ctx, createIdentityParams{
		ID:           uuid.NewString(),
		Email:        strings.ToLower(email),
		PasswordHash: string(hash),
		UserMetadata: meta,
	})
	if err != nil {
		if errors.Is(err, ErrDuplicateEmail) {
			return auth.SignUpResult{}, &auth.ProviderError{
				Status:  http.StatusUnprocessableEntity,
				Code:    "user_already_exists",
				Message: "User already registered",
			}
		}
		return auth.SignUpResult{}, err
	}

	user := &auth.Identity{
		ID:           ident.ID,
		Email:        ident.Email,
		UserMetadata: ident.UserMetadata,
		CreatedAt:    ident.CreatedAt,
	}

	session, err := p.issueSession(user)
	if err != nil {
		return auth.SignUpResult{}, err
	}

	return auth.SignUpResult{User: user, Session: session}, nil
}

// DeleteUser removes an identity.
func (p *Provider) DeleteUser(ctx context.Context, userID string) error {
	if err := p.store.DeleteIdentity(ctx, userID); err != nil {
		if errors.Is(err, ErrIdentityNotFound) {
			return &auth.ProviderError{Status: http.StatusNotFound, Code: "user_not_found", Message: "User not found"}
		}
		return err
	}
	return nil
}

// parseAccessToken validates a token issued by this provider.
func (p *Provider) parseAccessToken(tokenString string) (*Claims, error) {
	claims := &Claims{}
	token, err := jwt.ParseWithClaims(tokenString, claims, func(token *jwt.Token) (interface{}, error) {
		if _, ok := token.Method.(*jwt.SigningMethodHMAC); !ok {
			return nil, fmt.Errorf("unexpected signing method: %v", token.Header["alg"])
		}
		return p.jwtSecret, nil
	}, jwt.WithTimeFunc(p.now))
	if err != nil {
		return nil, fmt.Errorf("localauth: parse token: %w", err)
	}
	if !token.Valid {
		return nil, fmt.Errorf("localauth: invalid token")
	}
	return claims, nil
}

func (p *Provider) issueSession(user *auth.Identity) (*auth.Session, error) {
	now := p.now()
	expiresAt := now.Add(p.tokenTTL)

	claims := Claims{
		Email:        user.Email,
		Role:         "authenticated",
		UserMetadata: user.UserMetadata,
		RegisteredClaims: jwt.RegisteredClaims{
			Subject:   user.ID,
			IssuedAt:  jwt.NewNumericDate(now),
			ExpiresAt: jwt.NewNumericDate(expiresAt),
		},
	}

	token := jwt.NewWithClaims(jwt.SigningMethodHS256, claims)
	accessToken, err := token.SignedString(p.jwtSecret)
	if err != nil {
		return nil, fmt.Errorf("localauth: sign access token: %w", err)
	}

	refresh := make([]byte, 32)
	if _, err := rand.Read(refresh); err != nil {
		return nil, fmt.Errorf("localauth: refresh token: %w", err)
	}

	return &auth.Session{
		AccessToken:  accessToken,
		RefreshToken: base64.RawURLEncoding.EncodeToString(refresh),
		TokenType:    "bearer",
		ExpiresIn:    int64(p.tokenTTL / time.Second),
		ExpiresAt:    expiresAt,
	}, nil
}
