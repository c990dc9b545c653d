package strava

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"net/url"
	"strings"
	"testing"
	"time"
)

func newTestLogger(buf *bytes.Buffer) *slog.Logger {
	return slog.New(slog.NewJSONHandler(buf, &slog.HandlerOptions{
		Level: slog.LevelInfo,
	}))
}

func newTestClient(t *testing.T, server *httptest.Server) *Client {
	t.Helper()
	var buf bytes.Buffer
	return NewClient(server.Client(), newTestLogger(&buf), Config{
		ClientID:     "12345",
		ClientSecret: "shh",
		RedirectURL:  "http://localhost:8080/api/strava/callback",
		OAuthURL:     server.URL + "/oauth",
		APIURL:       server.URL + "/api/v3",
		PerPage:      30,
	}, nil)
}

func TestNewClient_Defaults(t *testing.T) {
	var buf bytes.Buffer
	c := NewClient(http.DefaultClient, newTestLogger(&buf), Config{}, nil)
	if c.cfg.OAuthURL != DefaultOAuthURL || c.cfg.APIURL != DefaultAPIURL {
		t.Errorf("URLs = %s %s", c.cfg.OAuthURL, c.cfg.APIURL)
	}
	if c.cfg.PerPage != 30 {
		t.Errorf("PerPage = %d, want 30", c.cfg.PerPage)
	}
}

func TestClient_AuthorizeURL(t *testing.T) {
	var buf bytes.Buffer
	c := NewClient(http.DefaultClient, newTestLogger(&buf), Config{
		ClientID:    "12345",
		RedirectURL: "http://localhost:8080/api/strava/callback",
	}, nil)

	raw := c.AuthorizeURL("state-xyz")
	u, err := url.Parse(raw)
	if err != nil {
		t.Fatalf("invalid URL: %v", err)
	}
	if !strings.HasPrefix(raw, DefaultOAuthURL+"/authorize?") {
		t.Errorf("URL = %s", raw)
	}
	q := u.Query()
	checks := map[string]string{
		"client_id":       "12345",
		"redirect_uri":    "http://localhost:8080/api/strava/callback",
		"response_type":   "code",
		"approval_prompt": "force",
		"scope":           "read,activity:read_all,profile:read_all",
		"state":           "state-xyz",
	}
	for k, want := range checks {
		if got := q.Get(k); got != want {
			t.Errorf("%s = %q, want %q", k, got, want)
		}
	}
}

func TestClient_ExchangeCode(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.Method != http.MethodPost || r.URL.Path != "/oauth/token" {
			t.Errorf("request = %s %s", r.Method, r.URL.Path)
		}
		var body map[string]string
		if err := json.NewDecoder(r.Body).Decode(&body); err != nil {
			t.Fatalf("decode body: %v", err)
		}
		if body["grant_type"] != "authorization_code" || body["code"] != "auth-code" {
			t.Errorf("body = %v", body)
		}
		if body["client_id"] != "12345" || body["client_secret"] != "shh" {
			t.Errorf("client credentials = %v", body)
		}
		w.Header().Set("Content-Type", "application/json")
		w.Write([]byte(`{"access_token":"at","refresh_token":"rt","expires_at":1718000000,"athlete":{"id":987}}`))
	}))
	defer server.Close()

	c := newTestClient(t, server)
	tokens, err := c.ExchangeCode(context.Background(), "auth-code")
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if tokens.AccessToken != "at" || tokens.RefreshToken != "rt" || tokens.AthleteID != 987 {
		t.Errorf("tokens = %+v", tokens)
	}
	if !tokens.ExpiresAt.Equal(time.Unix(1718000000, 0)) {
		t.Errorf("ExpiresAt = %v", tokens.ExpiresAt)
	}
}

func TestClient_RefreshToken(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		var body map[string]string
		json.NewDecoder(r.Body).Decode(&body)
		if body["grant_type"] != "refresh_token" || body["refresh_token"] != "old-rt" {
			t.Errorf("body = %v", body)
		}
		w.Write([]byte(`{"access_token":"new-at","refresh_token":"new-rt","expires_at":1718003600}`))
	}))
	defer server.Close()

	c := newTestClient(t, server)
	tokens, err := c.RefreshToken(context.Background(), "old-rt")
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if tokens.AccessToken != "new-at" || tokens.RefreshToken != "new-rt" {
		t.Errorf("tokens = %+v", tokens)
	}
}

func TestClient_TokenErrors(t *testing.T) {
	tests := []struct {
		name   string
		status int
		body   string
	}{
		{"bad request", http.StatusBadRequest, `{"message":"Bad Request"}`},
		{"missing fields", http.StatusOK, `{"access_token":"at"}`},
		{"invalid json", http.StatusOK, `not json`},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
				w.WriteHeader(tt.status)
				w.Write([]byte(tt.body))
			}))
			defer server.Close()

			c := newTestClient(t, server)
			if _, err := c.RefreshToken(context.Background(), "rt"); err == nil {
				t.Fatal("expected error, got nil")
			}
		})
	}
}

func TestClient_ListActivities(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path != "/api/v3/athlete/activities" {
			t.Errorf("path = %s", r.URL.Path)
		}
		if r.URL.Query().Get("per_page") != "30" {
			t.Errorf("per_page = %s, want 30", r.URL.Query().Get("per_page"))
		}
		if r.Header.Get("Authorization") != "Bearer at" {
			t.Errorf("Authorization = %s", r.Header.Get("Authorization"))
		}
		w.Write([]byte(`[{"id":111,"type":"Ride","distance":5000,"moving_time":900,"start_date":"2024-06-15T07:00:00Z"}]`))
	}))
	defer server.Close()

	c := newTestClient(t, server)
	activities, err := c.ListActivities(context.Background(), "at")
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if len(activities) != 1 {
		t.Fatalf("len = %d, want 1", len(activities))
	}
	a := activities[0]
	if a.ID != 111 || a.Type != "Ride" || a.Distance != 5000 || a.MovingTime != 900 {
		t.Errorf("activity = %+v", a)
	}
	if !a.StartDate.Equal(time.Date(2024, 6, 15, 7, 0, 0, 0, time.UTC)) {
		t.Errorf("StartDate = %v", a.StartDate)
	}
}

func TestClient_ListActivities_Unauthorized(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusUnauthorized)
	}))
	defer server.Close()

	c := newTestClient(t, server)
	_, err := c.ListActivities(context.Background(), "at")
	if !errors.Is(err, ErrUnauthorized) {
		t.Errorf("err = %v, want ErrUnauthorized", err)
	}
}

func TestClient_ListActivities_ServerError(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusServiceUnavailable)
	}))
	defer server.Close()

	c := newTestClient(t, server)
	_, err := c.ListActivities(context.Background(), "at")
	var statusErr *StatusError
	if !errors.As(err, &statusErr) || statusErr.StatusCode != http.StatusServiceUnavailable {
		t.Errorf("err = %v, want StatusError 503", err)
	}
}

func TestClient_ListActivities_Timeout(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		select {
		case <-r.Context().Done():
		case <-time.After(2 * time.Second):
		}
	}))
	defer server.Close()

	c := newTestClient(t, server)
	ctx, cancel := context.WithTimeout(context.Background(), 50*time.Millisecond)
	defer cancel()

	_, err := c.ListActivities(ctx, "at")
	if err == nil {
		t.Fatal("expected timeout error, got nil")
	}
	if !errors.Is(err, context.DeadlineExceeded) {
		t.Errorf("err = %v, want deadline exceeded", err)
	}
}

func TestClient_ListActivities_EmptyArray(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Write([]byte(`[]`))
	}))
	defer server.Close()

	c := newTestClient(t, server)
	activities, err := c.ListActivities(context.Background(), "at")
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if activities == nil || len(activities) != 0 {
		t.Errorf("activities = %v, want empty non-nil", activities)
	}
}
