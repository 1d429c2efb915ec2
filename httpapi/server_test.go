package httpapi

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/rs/zerolog"

	"signupflow/auth"
	"signupflow/metrics"
)

type stubRegistrar struct {
	result auth.Result
	err    error

	gotEmail    string
	gotPassword string
	gotData     auth.UserData
	calls       int
}

func (s *stubRegistrar) Register(_ context.Context, email, password string, data auth.UserData) (auth.Result, error) {
	s.calls++
	s.gotEmail, s.gotPassword, s.gotData = email, password, data
	return s.result, s.err
}

type stubPinger struct {
	err error
}

func (s stubPinger) Ping(context.Context) error {
	return s.err
}

func newTestServer(reg Registrar, db Pinger) *Server {
	return NewServer(reg, db, zerolog.Nop(), metrics.New(nil), Config{AllowedOrigins: []string{"http://localhost:5173"}})
}

func TestHandleRegister_Success(t *testing.T) {
	created := time.Date(2026, 10, 16, 9, 0, 0, 0, time.UTC)
	reg := &stubRegistrar{result: auth.Result{
		User: &auth.Identity{
			ID:           "u-1",
			Email:        "alice@example.com",
			UserMetadata: map[string]any{"name": "Alice", "role": "agent"},
			CreatedAt:    created,
		},
		Session: &auth.Session{AccessToken: "access", RefreshToken: "refresh", TokenType: "bearer", ExpiresIn: 3600},
	}}
	server := newTestServer(reg, nil)

	body := strings.NewReader(`{"email":"alice@example.com","password":"supersafe","name":"Alice","role":"agent"}`)
	req := httptest.NewRequest(http.MethodPost, "/api/auth/register", body)
	rec := httptest.NewRecorder()

	server.handleRegister(rec, req)

	if rec.Code != http.StatusCreated {
		t.Fatalf("expected 201, got %d: %s", rec.Code, rec.Body.String())
	}
	if reg.gotEmail != "alice@example.com" || reg.gotPassword != "supersafe" || reg.gotData.Role != auth.RoleAgent || reg.gotData.Name != "Alice" {
		t.Fatalf("unexpected registrar input: %q %q %+v", reg.gotEmail, reg.gotPassword, reg.gotData)
	}

	var resp registerResponse
	if err := json.Unmarshal(rec.Body.Bytes(), &resp); err != nil {
		t.Fatalf("decode response: %v", err)
	}
	if resp.User.ID != "u-1" || resp.User.CreatedAt != created.Format(time.RFC3339) {
		t.Fatalf("unexpected user payload: %+v", resp.User)
	}
	if resp.Session == nil || resp.Session.AccessToken != "access" || resp.Session.ExpiresIn != 3600 {
		t.Fatalf("unexpected session payload: %+v", resp.Session)
	}
}

func TestHandleRegister_PendingConfirmationHasNullSession(t *testing.T) {
	server := newTestServer(&stubRegistrar{result: auth.Result{User: &auth.Identity{ID: "u-2"}}}, nil)

	req := httptest.NewRequest(http.MethodPost, "/api/auth/register", strings.NewReader(`{"email":"b@example.com","password":"supersafe"}`))
	rec := httptest.NewRecorder()
	server.handleRegister(rec, req)

	if rec.Code != http.StatusCreated {
		t.Fatalf("expected 201, got %d", rec.Code)
	}
	if !strings.Contains(rec.Body.String(), `"session":null`) {
		t.Fatalf("expected null session, got %s", rec.Body.String())
	}
}

func TestHandleRegister_BadRequests(t *testing.T) {
	cases := []struct {
		name    string
		body    string
		wantMsg string
	}{
		{name: "invalid json", body: `{"email":`, wantMsg: "invalid JSON payload"},
		{name: "missing email", body: `{"password":"supersafe"}`, wantMsg: "email is required"},
		{name: "missing password", body: `{"email":"a@example.com"}`, wantMsg: "password is required"},
		{name: "oversized role", body: `{"email":"a@example.com","password":"x","role":"` + strings.Repeat("r", 40) + `"}`, wantMsg: "role is invalid"},
	}

	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			reg := &stubRegistrar{}
			server := newTestServer(reg, nil)

			req := httptest.NewRequest(http.MethodPost, "/api/auth/register", strings.NewReader(tc.body))
			rec := httptest.NewRecorder()
			server.handleRegister(rec, req)

			if rec.Code != http.StatusBadRequest {
				t.Fatalf("expected 400, got %d", rec.Code)
			}
			var resp errorResponse
			if err := json.Unmarshal(rec.Body.Bytes(), &resp); err != nil {
				t.Fatalf("decode error: %v", err)
			}
			if resp.Error != tc.wantMsg {
				t.Fatalf("expected %q, got %q", tc.wantMsg, resp.Error)
			}
			if reg.calls != 0 {
				t.Fatal("registrar should not be called for invalid input")
			}
		})
	}
}

func TestHandleRegister_ErrorMapping(t *testing.T) {
	cases := []struct {
		name       string
		err        error
		wantStatus int
		wantMsg    string
	}{
		{
			name:       "duplicate",
			err:        &auth.Error{Kind: auth.KindAccountExists, Message: auth.ErrAccountExists.Message, Err: &auth.ProviderError{Status: 422, Code: "user_already_exists"}},
			wantStatus: http.StatusConflict,
			wantMsg:    auth.ErrAccountExists.Message,
		},
		{
			name:       "strict role",
			err:        auth.ErrInvalidRole,
			wantStatus: http.StatusBadRequest,
			wantMsg:    auth.ErrInvalidRole.Message,
		},
		{
			name:       "provider client error",
			err:        &auth.Error{Kind: auth.KindProvider, Message: "Password should be at least 6 characters.", Err: &auth.ProviderError{Status: 422, Code: "weak_password", Message: "Password should be at least 6 characters."}},
			wantStatus: http.StatusUnprocessableEntity,
			wantMsg:    "Password should be at least 6 characters.",
		},
		{
			name:       "provider outage",
			err:        &auth.Error{Kind: auth.KindProvider, Message: "upstream unavailable", Err: &auth.ProviderError{Status: 503, Message: "upstream unavailable"}},
			wantStatus: http.StatusBadGateway,
			wantMsg:    "upstream unavailable",
		},
		{
			name:       "no user",
			err:        auth.ErrNoUserReturned,
			wantStatus: http.StatusBadGateway,
			wantMsg:    auth.ErrNoUserReturned.Message,
		},
		{
			name:       "profile failure",
			err:        &auth.Error{Kind: auth.KindProfile, Message: "profile: insert agent: boom", Err: errors.New("boom")},
			wantStatus: http.StatusInternalServerError,
			wantMsg:    "Registration failed",
		},
		{
			name:       "unclassified",
			err:        errors.New("boom"),
			wantStatus: http.StatusInternalServerError,
			wantMsg:    "Registration failed",
		},
	}

	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			server := newTestServer(&stubRegistrar{err: tc.err}, nil)

			req := httptest.NewRequest(http.MethodPost, "/api/auth/register", strings.NewReader(`{"email":"a@example.com","password":"supersafe","role":"agent"}`))
			rec := httptest.NewRecorder()
			server.handleRegister(rec, req)

			if rec.Code != tc.wantStatus {
				t.Fatalf("expected %d, got %d", tc.wantStatus, rec.Code)
			}
			var resp errorResponse
			if err := json.Unmarshal(rec.Body.Bytes(), &resp); err != nil {
				t.Fatalf("decode error: %v", err)
			}
			if resp.Error != tc.wantMsg {
				t.Fatalf("expected %q, got %q", tc.wantMsg, resp.Error)
			}
		})
	}
}

func TestHandleHealth(t *testing.T) {
	ok := newTestServer(&stubRegistrar{}, stubPinger{})
	rec := httptest.NewRecorder()
	ok.handleHealth(rec, httptest.NewRequest(http.MethodGet, "/healthz", nil))
	if rec.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d", rec.Code)
	}

	down := newTestServer(&stubRegistrar{}, stubPinger{err: errors.New("connection refused")})
	rec = httptest.NewRecorder()
	down.handleHealth(rec, httptest.NewRequest(http.MethodGet, "/healthz", nil))
	if rec.Code != http.StatusServiceUnavailable {
		t.Fatalf("expected 503, got %d", rec.Code)
	}
}

func TestRoutes_RequestIDAndMetrics(t *testing.T) {
	reg := &stubRegistrar{err: auth.ErrNoUserReturned}
	srv := httptest.NewServer(newTestServer(reg, stubPinger{}).Routes())
	defer srv.Close()

	req, err := http.NewRequest(http.MethodPost, srv.URL+"/api/auth/register", strings.NewReader(`{"email":"a@example.com","password":"supersafe","role":"client"}`))
	if err != nil {
		t.Fatalf("build request: %v", err)
	}
	req.Header.Set(requestIDHeader, "req-123")
	resp, err := srv.Client().Do(req)
	if err != nil {
		t.Fatalf("register: %v", err)
	}
	resp.Body.Close()

	if resp.StatusCode != http.StatusBadGateway {
		t.Fatalf("expected 502, got %d", resp.StatusCode)
	}
	if resp.Header.Get(requestIDHeader) != "req-123" {
		t.Fatalf("expected request id echoed, got %q", resp.Header.Get(requestIDHeader))
	}

	resp, err = srv.Client().Get(srv.URL + "/metrics")
	if err != nil {
		t.Fatalf("metrics: %v", err)
	}
	defer resp.Body.Close()
	body, _ := io.ReadAll(resp.Body)

	if !strings.Contains(string(body), `signupflow_registrations_total{outcome="no_user",role="client"} 1`) {
		t.Fatalf("expected registration counter, got:\n%s", body)
	}
	if !strings.Contains(string(body), `path="/api/auth/register"`) {
		t.Fatalf("expected route-labelled http metrics, got:\n%s", body)
	}
}

func TestRoutes_GeneratesRequestID(t *testing.T) {
	srv := httptest.NewServer(newTestServer(&stubRegistrar{}, stubPinger{}).Routes())
	defer srv.Close()

	resp, err := srv.Client().Get(srv.URL + "/healthz")
	if err != nil {
		t.Fatalf("healthz: %v", err)
	}
	resp.Body.Close()

	if resp.StatusCode != http.StatusOK || resp.Header.Get(requestIDHeader) == "" {
		t.Fatalf("expected 200 with request id, got %d %q", resp.StatusCode, resp.Header.Get(requestIDHeader))
	}
}

func TestHandleRegister_StoreErrorStaysInLog(t *testing.T) {
	storeErr := errors.New(`ERROR: insert or update on table "agent_profiles" violates foreign key constraint "agent_profiles_user_id_fkey" (SQLSTATE 23503)`)
	reg := &stubRegistrar{err: &auth.Error{Kind: auth.KindProfile, Message: "profile: insert agent: " + storeErr.Error(), Err: storeErr}}

	var logs bytes.Buffer
	server := NewServer(reg, nil, zerolog.New(&logs), metrics.New(nil), Config{})
	srv := httptest.NewServer(server.Routes())
	defer srv.Close()

	req, err := http.NewRequest(http.MethodPost, srv.URL+"/api/auth/register", strings.NewReader(`{"email":"a@example.com","password":"supersafe","role":"agent"}`))
	if err != nil {
		t.Fatalf("build request: %v", err)
	}
	req.Header.Set(requestIDHeader, "req-store-1")
	resp, err := srv.Client().Do(req)
	if err != nil {
		t.Fatalf("register: %v", err)
	}
	body, _ := io.ReadAll(resp.Body)
	resp.Body.Close()

	if resp.StatusCode != http.StatusInternalServerError {
		t.Fatalf("expected 500, got %d", resp.StatusCode)
	}
	if strings.Contains(string(body), "agent_profiles") || strings.Contains(string(body), "SQLSTATE") {
		t.Fatalf("store detail leaked to client: %s", body)
	}
	if !strings.Contains(string(body), auth.ErrRegistrationFailed.Message) {
		t.Fatalf("expected generic message, got %s", body)
	}
	if !strings.Contains(logs.String(), "SQLSTATE 23503") || !strings.Contains(logs.String(), `"request_id":"req-store-1"`) {
		t.Fatalf("expected detail logged with request id, got %s", logs.String())
	}
}

func TestRoutes_UnknownRolesShareOneSeries(t *testing.T) {
	srv := httptest.NewServer(newTestServer(&stubRegistrar{result: auth.Result{User: &auth.Identity{ID: "u-1"}}}, nil).Routes())
	defer srv.Close()

	for i := 0; i < 25; i++ {
		payload := fmt.Sprintf(`{"email":"u%d@example.com","password":"supersafe","role":"junk-%d"}`, i, i)
		resp, err := srv.Client().Post(srv.URL+"/api/auth/register", "application/json", strings.NewReader(payload))
		if err != nil {
			t.Fatalf("register %d: %v", i, err)
		}
		resp.Body.Close()
	}

	resp, err := srv.Client().Get(srv.URL + "/metrics")
	if err != nil {
		t.Fatalf("metrics: %v", err)
	}
	defer resp.Body.Close()
	body, _ := io.ReadAll(resp.Body)

	series := 0
	for _, line := range strings.Split(string(body), "\n") {
		if strings.HasPrefix(line, "signupflow_registrations_total{") {
			series++
		}
	}
	if series != 1 {
		t.Fatalf("expected one registration series, got %d:\n%s", series, body)
	}
	if !strings.Contains(string(body), `signupflow_registrations_total{outcome="success",role="other"} 25`) {
		t.Fatalf("expected unknown roles counted as other:\n%s", body)
	}
}
