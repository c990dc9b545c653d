package handler

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/hitoshi/movemonth/internal/authz"
	"github.com/hitoshi/movemonth/internal/model"
)

func findCookie(resp *http.Response, name string) *http.Cookie {
	for _, c := range resp.Cookies() {
		if c.Name == name {
			return c
		}
	}
	return nil
}

func TestAuthHandler_Login_SetsStateAndRedirects(t *testing.T) {
	var gotState string
	svc := &mockAuthService{
		getLoginURLFn: func(state string) string {
			gotState = state
			return "https://accounts.google.com/o/oauth2/auth?state=" + state
		},
	}
	h := NewAuthHandler(svc, AuthHandlerConfig{BaseURL: "http://localhost:3000"})

	w := httptest.NewRecorder()
	h.Login(w, httptest.NewRequest(http.MethodGet, "/auth/google/login", nil))

	resp := w.Result()
	if resp.StatusCode != http.StatusTemporaryRedirect {
		t.Fatalf("status = %d, want %d", resp.StatusCode, http.StatusTemporaryRedirect)
	}
	if !strings.HasPrefix(resp.Header.Get("Location"), "https://accounts.google.com/") {
		t.Errorf("Location = %q", resp.Header.Get("Location"))
	}
	state := findCookie(resp, oauthStateCookie)
	if state == nil || state.Value != gotState || len(gotState) != 32 {
		t.Fatalf("state cookie = %+v, service state = %q", state, gotState)
	}
	if !state.HttpOnly {
		t.Error("state cookie should be HttpOnly")
	}
}

func TestAuthHandler_Callback_Success_SetsSessionCookie(t *testing.T) {
	svc := &mockAuthService{
		handleCallbackFn: func(ctx context.Context, code string) (*model.Session, error) {
			if code != "test-code" {
				t.Errorf("code = %q", code)
			}
			return &model.Session{ID: "session-abc", UserID: "user-1", ExpiresAt: time.Now().Add(time.Hour)}, nil
		},
	}
	h := NewAuthHandler(svc, AuthHandlerConfig{BaseURL: "http://localhost:3000", SessionMaxAge: 86400})

	req := httptest.NewRequest(http.MethodGet, "/auth/google/callback?code=test-code&state=s1", nil)
	req.AddCookie(&http.Cookie{Name: oauthStateCookie, Value: "s1"})
	w := httptest.NewRecorder()
	h.Callback(w, req)

	resp := w.Result()
	if resp.StatusCode != http.StatusTemporaryRedirect {
		t.Fatalf("status = %d", resp.StatusCode)
	}
	if loc := resp.Header.Get("Location"); loc != "http://localhost:3000/dashboard" {
		t.Errorf("Location = %q", loc)
	}
	session := findCookie(resp, "session_id")
	if session == nil || session.Value != "session-abc" {
		t.Fatalf("session cookie = %+v", session)
	}
	if !session.HttpOnly || session.SameSite != http.SameSiteLaxMode || session.MaxAge != 86400 {
		t.Errorf("session cookie attributes = %+v", session)
	}
}

func TestAuthHandler_Callback_StateMismatch(t *testing.T) {
	h := NewAuthHandler(&mockAuthService{}, AuthHandlerConfig{BaseURL: "http://localhost:3000"})

	tests := []struct {
		name   string
		query  string
		cookie string
	}{
		{"mismatch", "?code=c&state=wrong", "right"},
		{"no cookie", "?code=c&state=s", ""},
		{"empty state", "?code=c", ""},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			req := httptest.NewRequest(http.MethodGet, "/auth/google/callback"+tt.query, nil)
			if tt.cookie != "" {
				req.AddCookie(&http.Cookie{Name: oauthStateCookie, Value: tt.cookie})
			}
			w := httptest.NewRecorder()
			h.Callback(w, req)

			if w.Code != http.StatusBadRequest {
				t.Errorf("status = %d, want 400", w.Code)
			}
		})
	}
}

func TestAuthHandler_Callback_MissingCode(t *testing.T) {
	h := NewAuthHandler(&mockAuthService{}, AuthHandlerConfig{BaseURL: "http://localhost:3000"})

	req := httptest.NewRequest(http.MethodGet, "/auth/google/callback?state=s1", nil)
	req.AddCookie(&http.Cookie{Name: oauthStateCookie, Value: "s1"})
	w := httptest.NewRecorder()
	h.Callback(w, req)

	if w.Code != http.StatusBadRequest {
		t.Errorf("status = %d, want 400", w.Code)
	}
}

func TestAuthHandler_Callback_ServiceFailureRedirectsWithError(t *testing.T) {
	svc := &mockAuthService{
		handleCallbackFn: func(ctx context.Context, code string) (*model.Session, error) {
			return nil, errors.New("exchange failed")
		},
	}
	h := NewAuthHandler(svc, AuthHandlerConfig{BaseURL: "http://localhost:3000"})

	req := httptest.NewRequest(http.MethodGet, "/auth/google/callback?code=c&state=s1", nil)
	req.AddCookie(&http.Cookie{Name: oauthStateCookie, Value: "s1"})
	w := httptest.NewRecorder()
	h.Callback(w, req)

	resp := w.Result()
	if loc := resp.Header.Get("Location"); loc != "http://localhost:3000/?error=sign_in_failed" {
		t.Errorf("Location = %q", loc)
	}
	if findCookie(resp, "session_id") != nil {
		t.Error("session cookie must not be set on failure")
	}
}

func TestAuthHandler_Logout_ClearsCookie(t *testing.T) {
	var deleted string
	svc := &mockAuthService{
		logoutFn: func(ctx context.Context, sessionID string) error {
			deleted = sessionID
			return nil
		},
	}
	h := NewAuthHandler(svc, AuthHandlerConfig{BaseURL: "http://localhost:3000"})

	req := httptest.NewRequest(http.MethodPost, "/auth/logout", nil)
	req.AddCookie(&http.Cookie{Name: "session_id", Value: "session-abc"})
	w := httptest.NewRecorder()
	h.Logout(w, req)

	resp := w.Result()
	if resp.StatusCode != http.StatusNoContent {
		t.Errorf("status = %d, want 204", resp.StatusCode)
	}
	if deleted != "session-abc" {
		t.Errorf("deleted = %q", deleted)
	}
	if c := findCookie(resp, "session_id"); c == nil || c.MaxAge != -1 {
		t.Errorf("session cookie should be cleared, got %+v", c)
	}
}

func TestAuthHandler_Me(t *testing.T) {
	svc := &mockAuthService{
		meFn: func(ctx context.Context, p authz.Principal) (*model.Profile, error) {
			return &model.Profile{ID: p.UserID, Email: "ada@example.com", Role: p.Role}, nil
		},
	}
	h := NewAuthHandler(svc, AuthHandlerConfig{})

	req := httptest.NewRequest(http.MethodGet, "/auth/me", nil)
	req = req.WithContext(withPrincipal(req.Context(), adminPrincipal))
	w := httptest.NewRecorder()
	h.Me(w, req)

	if w.Code != http.StatusOK {
		t.Fatalf("status = %d, want 200", w.Code)
	}
	var body profileResponse
	if err := json.NewDecoder(w.Body).Decode(&body); err != nil {
		t.Fatalf("decode: %v", err)
	}
	if body.ID != "admin-1" || body.Role != "admin" || body.DisplayName != model.AnonymousName {
		t.Errorf("body = %+v", body)
	}
}

func TestAuthHandler_Me_Unauthenticated(t *testing.T) {
	h := NewAuthHandler(&mockAuthService{}, AuthHandlerConfig{})

	w := httptest.NewRecorder()
	h.Me(w, httptest.NewRequest(http.MethodGet, "/auth/me", nil))

	if w.Code != http.StatusUnauthorized {
		t.Errorf("status = %d, want 401", w.Code)
	}
}
