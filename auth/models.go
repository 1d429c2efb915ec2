package auth

import "time"

type Role string

const (
	RoleAgent  Role = "agent"
	RoleClient Role = "client"
)

// UserData is the caller-supplied part of a user. Both fields are optional;
// the role selects which profile table receives a row.
type UserData struct {
	Name string
	Role Role
}

// UserMetadata is stored by the identity provider alongside the identity.
type UserMetadata struct {
	Name string `json:"name,omitempty"`
	Role Role   `json:"role,omitempty"`
}

// Identity is the provider-owned record created by a signup. The workflow
// only reads the ID back; the rest is passed through to callers.
type Identity struct {
	ID           string
	Email        string
	UserMetadata map[string]any
	CreatedAt    time.Time
}

// Session is issued by the provider on a successful signup. It is nil when
// the provider requires email confirmation before issuing tokens.
type Session struct {
	AccessToken  string
	RefreshToken string
	TokenType    string
	ExpiresIn    int64
	ExpiresAt    time.Time
}

// SignUpParams is the payload sent to the identity provider.
type SignUpParams struct {
	Email    string
	Password string
	Data     UserMetadata
}

// SignUpResult mirrors the provider's {user, session} envelope.
type SignUpResult struct {
	User    *Identity
	Session *Session
}

// Result is returned from a completed registration.
type Result struct {
	Session *Session
	User    *Identity
}

func isKnownRole(role Role) bool {
	switch role {
	case RoleAgent, RoleClient:
		return true
	default:
		return false
	}
}
