package middleware

import (
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
)

func csrfTestHandler(config CSRFConfig, called *bool) http.Handler {
	return NewCSRFMiddleware(config)(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		*called = true
		w.WriteHeader(http.StatusOK)
	}))
}

func findCSRFCookie(resp *http.Response) *http.Cookie {
	for _, c := range resp.Cookies() {
		if c.Name == csrfCookieName {
			return c
		}
	}
	return nil
}

func TestCSRFMiddleware_SafeMethodsPassWithoutToken(t *testing.T) {
	for _, method := range []string{http.MethodGet, http.MethodHead, http.MethodOptions} {
		t.Run(method, func(t *testing.T) {
			var called bool
			w := httptest.NewRecorder()
			csrfTestHandler(CSRFConfig{}, &called).ServeHTTP(w, httptest.NewRequest(method, "/api/challenges", nil))

			if !called {
				t.Fatalf("handler should be called for %s", method)
			}
			if findCSRFCookie(w.Result()) == nil {
				t.Error("expected csrf_token cookie to be issued")
			}
		})
	}
}

func TestCSRFMiddleware_SafeMethodKeepsExistingCookie(t *testing.T) {
	var called bool
	req := httptest.NewRequest(http.MethodGet, "/api/profile", nil)
	req.AddCookie(&http.Cookie{Name: csrfCookieName, Value: "existing"})
	w := httptest.NewRecorder()
	csrfTestHandler(CSRFConfig{}, &called).ServeHTTP(w, req)

	if findCSRFCookie(w.Result()) != nil {
		t.Error("existing csrf_token cookie should not be replaced")
	}
}

func TestCSRFMiddleware_IssuedCookieAttributes(t *testing.T) {
	var called bool
	w := httptest.NewRecorder()
	csrfTestHandler(CSRFConfig{CookieSecure: true, CookieDomain: "movemonth.example.com"}, &called).
		ServeHTTP(w, httptest.NewRequest(http.MethodGet, "/api/challenges", nil))

	c := findCSRFCookie(w.Result())
	if c == nil {
		t.Fatal("csrf_token cookie not set")
	}
	if len(c.Value) != 64 {
		t.Errorf("token length = %d, want 64 hex chars", len(c.Value))
	}
	if c.HttpOnly {
		t.Error("csrf_token must be readable from JavaScript")
	}
	if !c.Secure || c.Domain != "movemonth.example.com" || c.Path != "/" || c.SameSite != http.SameSiteLaxMode {
		t.Errorf("cookie = %+v", c)
	}
}

func TestCSRFMiddleware_StateChangingMethods(t *testing.T) {
	tests := []struct {
		name   string
		cookie string
		header string
		want   int
	}{
		{"no cookie", "", "tok", http.StatusForbidden},
		{"no header", "tok", "", http.StatusForbidden},
		{"mismatch", "tok", "other", http.StatusForbidden},
		{"match", "tok", "tok", http.StatusOK},
	}

	for _, method := range []string{http.MethodPost, http.MethodPut, http.MethodPatch, http.MethodDelete} {
		for _, tt := range tests {
			t.Run(method+" "+tt.name, func(t *testing.T) {
				req := httptest.NewRequest(method, "/api/activities", strings.NewReader(`{}`))
				if tt.cookie != "" {
					req.AddCookie(&http.Cookie{Name: csrfCookieName, Value: tt.cookie})
				}
				if tt.header != "" {
					req.Header.Set(csrfHeaderName, tt.header)
				}

				var called bool
				w := httptest.NewRecorder()
				csrfTestHandler(CSRFConfig{}, &called).ServeHTTP(w, req)

				if w.Code != tt.want {
					t.Errorf("status = %d, want %d", w.Code, tt.want)
				}
				if called != (tt.want == http.StatusOK) {
					t.Errorf("handler called = %v", called)
				}
				if tt.want == http.StatusForbidden {
					var body ErrorResponseBody
					json.NewDecoder(w.Body).Decode(&body)
					if body.Code != "FORBIDDEN" {
						t.Errorf("code = %q, want FORBIDDEN", body.Code)
					}
				}
			})
		}
	}
}

func TestCSRFTokenHandler(t *testing.T) {
	t.Run("issues new token", func(t *testing.T) {
		w := httptest.NewRecorder()
		NewCSRFTokenHandler(CSRFConfig{}).ServeHTTP(w, httptest.NewRequest(http.MethodGet, "/api/csrf-token", nil))

		var body struct {
			Token string `json:"token"`
		}
		if err := json.NewDecoder(w.Body).Decode(&body); err != nil {
			t.Fatalf("decode: %v", err)
		}
		c := findCSRFCookie(w.Result())
		if c == nil || c.Value != body.Token || body.Token == "" {
			t.Errorf("cookie = %+v, token = %q", c, body.Token)
		}
		if w.Header().Get("Cache-Control") != "no-store" {
			t.Errorf("Cache-Control = %q", w.Header().Get("Cache-Control"))
		}
	})

	t.Run("returns existing token", func(t *testing.T) {
		req := httptest.NewRequest(http.MethodGet, "/api/csrf-token", nil)
		req.AddCookie(&http.Cookie{Name: csrfCookieName, Value: "existing"})
		w := httptest.NewRecorder()
		NewCSRFTokenHandler(CSRFConfig{}).ServeHTTP(w, req)

		var body struct {
			Token string `json:"token"`
		}
		json.NewDecoder(w.Body).Decode(&body)
		if body.Token != "existing" {
			t.Errorf("token = %q, want existing", body.Token)
		}
		if findCSRFCookie(w.Result()) != nil {
			t.Error("cookie should not be reissued")
		}
	})
}
