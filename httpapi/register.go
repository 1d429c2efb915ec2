package httpapi

import (
	"encoding/json"
	"errors"
	"net/http"
	"time"

	"github.com/go-playground/validator/v10"

	"signupflow/auth"
)

type registerRequest struct {
	Email    string `json:"email" validate:"required"`
	Password string `json:"password" validate:"required"`
	Name     string `json:"name" validate:"max=200"`
	Role     string `json:"role" validate:"max=32"`
}

type userResponse struct {
	ID           string         `json:"id"`
	Email        string         `json:"email"`
	UserMetadata map[string]any `json:"userMetadata"`
	CreatedAt    string         `json:"createdAt,omitempty"`
}

type sessionResponse struct {
	AccessToken  string `json:"accessToken"`
	RefreshToken string `json:"refreshToken"`
	TokenType    string `json:"tokenType"`
	ExpiresIn    int64  `json:"expiresIn"`
	ExpiresAt    string `json:"expiresAt,omitempty"`
}

type registerResponse struct {
	User    userResponse     `json:"user"`
	Session *sessionResponse `json:"session"`
}

func (s *Server) handleRegister(w http.ResponseWriter, r *http.Request) {
	var req registerRequest
	if err := json.NewDecoder(http.MaxBytesReader(w, r.Body, 1<<16)).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "invalid JSON payload")
		return
	}
	if err := s.validate.Struct(req); err != nil {
		writeError(w, http.StatusBadRequest, validationMessage(err))
		return
	}

	res, err := s.registrar.Register(r.Context(), req.Email, req.Password, auth.UserData{
		Name: req.Name,
		Role: auth.Role(req.Role),
	})
	if err != nil {
		kind := auth.KindOf(err)
		s.metrics.ObserveRegistration(req.Role, string(kind))
		writeError(w, statusFor(err), s.publicMessage(r, kind, err))
		return
	}
	s.metrics.ObserveRegistration(req.Role, "success")

	writeJSON(w, http.StatusCreated, toRegisterResponse(res))
}

// statusFor maps a registration error onto an HTTP status. Provider client
// errors keep their status; provider failures become 502.
func statusFor(err error) int {
	switch auth.KindOf(err) {
	case auth.KindAccountExists:
		return http.StatusConflict
	case auth.KindInvalidRole:
		return http.StatusBadRequest
	case auth.KindProvider:
		var perr *auth.ProviderError
		if errors.As(err, &perr) && perr.Status >= 400 && perr.Status < 500 {
			return perr.Status
		}
		return http.StatusBadGateway
	case auth.KindNoUser:
		return http.StatusBadGateway
	default:
		return http.StatusInternalServerError
	}
}

// publicMessage hides store and transport detail from clients. The full
// error is logged under the request id instead.
func (s *Server) publicMessage(r *http.Request, kind auth.Kind, err error) string {
	switch kind {
	case auth.KindProfile, auth.KindInternal:
		s.logger.Error().
			Err(err).
			Str("kind", string(kind)).
			Str("request_id", requestIDFrom(r.Context())).
			Msg("registration failed")
		return auth.ErrRegistrationFailed.Message
	default:
		return err.Error()
	}
}

func validationMessage(err error) string {
	var verrs validator.ValidationErrors
	if errors.As(err, &verrs) && len(verrs) > 0 {
		fe := verrs[0]
		if fe.Tag() == "required" {
			return fe.Field() + " is required"
		}
		return fe.Field() + " is invalid"
	}
	return "invalid request"
}

func toRegisterResponse(res auth.Result) registerResponse {
	var out registerResponse
	if res.User != nil {
		meta := res.User.UserMetadata
		if meta == nil {
			meta = map[string]any{}
		}
		out.User = userResponse{
			ID:           res.User.ID,
			Email:        res.User.Email,
			UserMetadata: meta,
		}
		if !res.User.CreatedAt.IsZero() {
			out.User.CreatedAt = res.User.CreatedAt.UTC().Format(time.RFC3339)
		}
	}
	if res.Session != nil {
		out.Session = &sessionResponse{
			AccessToken:  res.Session.AccessToken,
			RefreshToken: res.Session.RefreshToken,
			TokenType:    res.Session.TokenType,
			ExpiresIn:    res.Session.ExpiresIn,
		}
		if !res.Session.ExpiresAt.IsZero() {
			out.Session.ExpiresAt = res.Session.ExpiresAt.UTC().Format(time.RFC3339)
		}
	}
	return out
}
