package auth

import (
	"context"
	"errors"

	"github.com/rs/zerolog"

	"signupflow/profile"
)

// IdentityProvider is the external service of record for credentials.
type IdentityProvider interface {
	SignUp(ctx context.Context, params SignUpParams) (SignUpResult, error)
	DeleteUser(ctx context.Context, userID string) error
}

// ProfileStore persists the role-specific profile row.
type ProfileStore interface {
	InsertAgent(ctx context.Context, p profile.AgentProfile) error
	InsertClient(ctx context.Context, p profile.ClientProfile) error
}

// Options toggles behaviour that is off by default.
type Options struct {
	// StrictRoles rejects roles other than agent and client before the
	// provider is called.
	StrictRoles bool
	// Compensate deletes the new identity when its profile insert fails.
	Compensate bool
}

// Service runs the registration workflow.
type Service struct {
	identity IdentityProvider
	profiles ProfileStore
	logger   zerolog.Logger
	opts     Options
}

// NewService creates a registration service.
func NewService(identity IdentityProvider, profiles ProfileStore, logger zerolog.Logger, opts Options) *Service {
	return &Service{
		identity: identity,
		profiles: profiles,
		logger:   logger.With().Str("component", "registration").Logger(),
		opts:     opts,
	}
}

// Register creates an identity with the provider and then the profile row
// selected by data.Role. A failed profile insert leaves the identity in
// place unless Options.Compensate is set.
func (s *Service) Register(ctx context.Context, email, password string, data UserData) (Result, error) {
	log := s.logger.With().Str("email", email).Str("role", string(data.Role)).Logger()

	if s.opts.StrictRoles && !isKnownRole(data.Role) {
		log.Warn().Str("event", "signup_rejected").Msg("unsupported role")
		return Result{}, ErrInvalidRole
	}

	log.Info().Str("event", "signup_started").Msg("starting registration")

	res, err := s.identity.SignUp(ctx, SignUpParams{
		Email:    email,
		Password: password,
		Data:     UserMetadata{Name: data.Name, Role: data.Role},
	})
	if err != nil {
		log.Error().Err(err).Str("event", "signup_failed").Msg("identity provider error")
		return Result{}, classifySignUpErr(err)
	}

	if res.User == nil {
		log.Error().Str("event", "signup_failed").Msg("no user data returned from signup")
		return Result{}, ErrNoUserReturned
	}

	userID := res.User.ID
	log = log.With().Str("user_id", userID).Logger()
	log.Info().Str("event", "signup_succeeded").Msg("user registered")

	if err := s.createProfile(ctx, userID, data); err != nil {
		log.Error().Err(err).Str("event", "profile_failed").Msg("profile creation error")
		if s.opts.Compensate {
			s.compensate(ctx, log, userID)
		}
		return Result{}, wrap(KindProfile, err.Error(), err)
	}

	return Result{Session: res.Session, User: res.User}, nil
}

func (s *Service) createProfile(ctx context.Context, userID string, data UserData) error {
	log := s.logger.With().Str("user_id", userID).Str("role", string(data.Role)).Logger()

	switch data.Role {
	case RoleAgent:
		if err := s.profiles.InsertAgent(ctx, profile.NewAgentProfile(userID, data.Name)); err != nil {
			return err
		}
	case RoleClient:
		if err := s.profiles.InsertClient(ctx, profile.NewClientProfile(userID, data.Name)); err != nil {
			return err
		}
	default:
		log.Warn().Str("event", "profile_skipped").Msg("no profile table for role")
		return nil
	}

	log.Info().Str("event", "profile_created").Msg("profile created")
	return nil
}

func (s *Service) compensate(ctx context.Context, log zerolog.Logger, userID string) {
	// The caller's context may already be done; the delete still has to run.
	if err := s.identity.DeleteUser(context.WithoutCancel(ctx), userID); err != nil {
		log.Error().Err(err).Str("event", "compensation_failed").Msg("orphaned identity left behind")
		return
	}
	log.Info().Str("event", "identity_compensated").Msg("identity removed after profile failure")
}

func classifySignUpErr(err error) error {
	if IsDuplicateAccount(err) {
		return wrap(KindAccountExists, ErrAccountExists.Message, err)
	}

	var perr *ProviderError
	if errors.As(err, &perr) {
		return wrap(KindProvider, perr.Error(), err)
	}

	return wrap(KindInternal, ErrRegistrationFailed.Message, err)
}
