// Package gotrue talks to a hosted Supabase Auth (GoTrue) instance.
package gotrue

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"
	"time"

	"signupflow/auth"
)

// ErrServiceKeyMissing is returned by admin calls when no service role key
// was configured.
var ErrServiceKeyMissing = errors.New("gotrue: service role key not configured")

// Config points the client at a project.
type Config struct {
	URL            string
	AnonKey        string
	ServiceRoleKey string
	Timeout        time.Duration
}

// Client implements auth.IdentityProvider over the GoTrue REST API.
type Client struct {
	baseURL    string
	anonKey    string
	serviceKey string
	http       *http.Client
}

// NewClient builds a client. A nil httpClient gets one with cfg.Timeout.
func NewClient(cfg Config, httpClient *http.Client) *Client {
	if httpClient == nil {
		timeout := cfg.Timeout
		if timeout <= 0 {
			timeout = 10 * time.Second
		}
		httpClient = &http.Client{Timeout: timeout}
	}
	return &Client{
		baseURL:    strings.TrimRight(cfg.URL, "/") + "/auth/v1",
		anonKey:    cfg.AnonKey,
		serviceKey: cfg.ServiceRoleKey,
		http:       httpClient,
	}
}

type signUpRequest struct {
	Email    string            `json:"email"`
	Password string            `json:"password"`
	Data     auth.UserMetadata `json:"data"`
}

type userPayload struct {
	ID           string         `json:"id"`
	Email        string         `json:"email"`
	UserMetadata map[string]any `json:"user_metadata"`
	CreatedAt    time.Time      `json:"created_at"`
}

// signUpResponse covers both shapes the endpoint returns: a session envelope
// when autoconfirm is on, and a bare user when email confirmation is pending.
type signUpResponse struct {
	AccessToken  string       `json:"access_token"`
	RefreshToken string       `json:"refresh_token"`
	TokenType    string       `json:"token_type"`
	ExpiresIn    int64        `json:"expires_in"`
	ExpiresAt    int64        `json:"expires_at"`
	User         *userPayload `json:"user"`
	userPayload
}

// SignUp calls POST /auth/v1/signup.
func (c *Client) SignUp(ctx context.Context, params auth.SignUpParams) (auth.SignUpResult, error) {
	body, err := json.Marshal(signUpRequest{
		Email:    params.Email,
		Password: params.Password,
		Data:     params.Data,
	})
	if err != nil {
		return auth.SignUpResult{}, fmt.Errorf("gotrue: encode signup: %w", err)
	}

	var resp signUpResponse
	if err := c.do(ctx, http.MethodPost, "/signup", c.anonKey, body, &resp); err != nil {
		return auth.SignUpResult{}, err
	}

	var result auth.SignUpResult
	switch {
	case resp.User != nil && resp.User.ID != "":
		result.User = resp.User.toIdentity()
	case resp.ID != "":
		result.User = resp.userPayload.toIdentity()
	}

	if resp.AccessToken != "" {
		session := &auth.Session{
			AccessToken:  resp.AccessToken,
			RefreshToken: resp.RefreshToken,
			TokenType:    resp.TokenType,
			ExpiresIn:    resp.ExpiresIn,
		}
		if resp.ExpiresAt > 0 {
			session.ExpiresAt = time.Unix(resp.ExpiresAt, 0).UTC()
		}
		result.Session = session
	}

	return result, nil
}

// DeleteUser calls DELETE /auth/v1/admin/users/{id} with the service role key.
func (c *Client) DeleteUser(ctx context.Context, userID string) error {
	if c.serviceKey == "" {
		return ErrServiceKeyMissing
	}
	return c.do(ctx, http.MethodDelete, "/admin/users/"+url.PathEscape(userID), c.serviceKey, nil, nil)
}

func (c *Client) do(ctx context.Context, method, path, key string, body []byte, out any) error {
	var reader io.Reader
	if body != nil {
		reader = bytes.NewReader(body)
	}

	req, err := http.NewRequestWithContext(ctx, method, c.baseURL+path, reader)
	if err != nil {
		return fmt.Errorf("gotrue: build request: %w", err)
	}
	req.Header.Set("apikey", key)
	req.Header.Set("Authorization", "Bearer "+key)
	req.Header.Set("Accept", "application/json")
	if body != nil {
		req.Header.Set("Content-Type", "application/json")
	}

	resp, err := c.http.Do(req)
	if err != nil {
		return fmt.Errorf("gotrue: %s %s: %w", method, path, err)
	}
	defer resp.Body.Close()

	payload, err := io.ReadAll(io.LimitReader(resp.Body, 1<<20))
	if err != nil {
		return fmt.Errorf("gotrue: read response: %w", err)
	}

	if resp.StatusCode >= http.StatusBadRequest {
		return decodeError(resp.StatusCode, payload)
	}

	if out == nil || len(bytes.TrimSpace(payload)) == 0 {
		return nil
	}
	if err := json.Unmarshal(payload, out); err != nil {
		return fmt.Errorf("gotrue: decode response: %w", err)
	}
	return nil
}

type errorPayload struct {
	Code             json.RawMessage `json:"code"`
	ErrorCode        string          `json:"error_code"`
	Msg              string          `json:"msg"`
	Message          string          `json:"message"`
	Error            string          `json:"error"`
	ErrorDescription string          `json:"error_description"`
}

func decodeError(status int, payload []byte) error {
	perr := &auth.ProviderError{Status: status}

	var body errorPayload
	if err := json.Unmarshal(payload, &body); err != nil {
		perr.Message = strings.TrimSpace(string(payload))
		return perr
	}

	perr.Code = body.ErrorCode
	if perr.Code == "" {
		// Older servers put the string code in "code"; newer ones send the
		// HTTP status there and the string in "error_code".
		var code string
		if json.Unmarshal(body.Code, &code) == nil {
			perr.Code = code
		} else if body.Error != "" {
			perr.Code = body.Error
		}
	}

	for _, msg := range []string{body.Msg, body.Message, body.ErrorDescription, body.Error} {
		if msg != "" {
			perr.Message = msg
			break
		}
	}
	return perr
}

func (u *userPayload) toIdentity() *auth.Identity {
	meta := u.UserMetadata
	if meta == nil {
		meta = map[string]any{}
	}
	return &auth.Identity{
		ID:           u.ID,
		Email:        u.Email,
		UserMetadata: meta,
		CreatedAt:    u.CreatedAt,
	}
}
