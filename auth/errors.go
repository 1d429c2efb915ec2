package auth

import (
	"errors"
	"fmt"
	"strings"
)

// Kind classifies registration failures for callers that need to map them
// onto transport status codes.
type Kind string

const (
	KindAccountExists Kind = "account_exists"
	KindInvalidRole   Kind = "invalid_role"
	KindProvider      Kind = "provider"
	KindNoUser        Kind = "no_user"
	KindProfile       Kind = "profile"
	KindInternal      Kind = "internal"
)

// Error is the single error shape that leaves Service.Register.
type Error struct {
	Kind    Kind
	Message string
	Err     error
}

func (e *Error) Error() string {
	return e.Message
}

func (e *Error) Unwrap() error {
	return e.Err
}

// Is matches sentinel errors by kind so wrapped instances compare equal to
// the exported values below.
func (e *Error) Is(target error) bool {
	t, ok := target.(*Error)
	if !ok {
		return false
	}
	return t.Kind == e.Kind && t.Err == nil
}

var (
	// ErrAccountExists signals the email is already registered with the provider.
	ErrAccountExists = &Error{
		Kind:    KindAccountExists,
		Message: "An account with this email already exists. Please try logging in instead.",
	}
	// ErrNoUserReturned signals the provider reported success without a user.
	ErrNoUserReturned = &Error{
		Kind:    KindNoUser,
		Message: "Registration failed - no user data returned",
	}
	// ErrRegistrationFailed is the generic failure for anything unclassified.
	ErrRegistrationFailed = &Error{
		Kind:    KindInternal,
		Message: "Registration failed",
	}
	// ErrInvalidRole is returned in strict mode for roles without a profile table.
	ErrInvalidRole = &Error{
		Kind:    KindInvalidRole,
		Message: "Registration failed - unsupported role",
	}
)

// ProviderError is the error reported by an identity provider. Code is the
// provider's stable error code when it sends one.
type ProviderError struct {
	Status  int
	Code    string
	Message string
}

func (e *ProviderError) Error() string {
	if e.Message == "" {
		return fmt.Sprintf("identity provider error (status %d)", e.Status)
	}
	return e.Message
}

var duplicateCodes = map[string]struct{}{
	"user_already_exists": {},
	"email_exists":        {},
}

// IsDuplicateAccount reports whether a provider error means the email is
// already registered. The code is checked first; the message match covers
// providers that only send free text.
func IsDuplicateAccount(err error) bool {
	var perr *ProviderError
	if !errors.As(err, &perr) {
		return false
	}
	if _, ok := duplicateCodes[perr.Code]; ok {
		return true
	}
	return strings.Contains(strings.ToLower(perr.Message), "already registered")
}

// KindOf returns the kind of a registration error, or KindInternal for
// errors of any other shape.
func KindOf(err error) Kind {
	var aerr *Error
	if errors.As(err, &aerr) {
		return aerr.Kind
	}
	return KindInternal
}

func wrap(kind Kind, message string, err error) *Error {
	return &Error{Kind: kind, Message: message, Err: err}
}
