package middleware

import (
	"bytes"
	"context"
	"encoding/json"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/hitoshi/movemonth/internal/authz"
	"github.com/hitoshi/movemonth/internal/model"
)

func newBufferLogger() (*slog.Logger, *bytes.Buffer) {
	var buf bytes.Buffer
	return slog.New(slog.NewJSONHandler(&buf, &slog.HandlerOptions{Level: slog.LevelDebug})), &buf
}

func decodeLogEntry(t *testing.T, buf *bytes.Buffer) map[string]any {
	t.Helper()
	var entry map[string]any
	if err := json.Unmarshal(buf.Bytes(), &entry); err != nil {
		t.Fatalf("failed to parse JSON log: %v\nraw: %s", err, buf.String())
	}
	return entry
}

func TestLoggingMiddleware_RequestFields(t *testing.T) {
	logger, buf := newBufferLogger()
	handler := NewLoggingMiddleware(logger)(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusCreated)
	}))

	req := httptest.NewRequest(http.MethodPost, "/api/activities?x=1", nil)
	handler.ServeHTTP(httptest.NewRecorder(), req)

	entry := decodeLogEntry(t, buf)
	if entry["msg"] != "http_request" {
		t.Errorf("msg = %v, want http_request", entry["msg"])
	}
	if entry["method"] != "POST" {
		t.Errorf("method = %v, want POST", entry["method"])
	}
	if entry["path"] != "/api/activities" {
		t.Errorf("path = %v, want /api/activities (クエリ文字列は含まない)", entry["path"])
	}
	if entry["status"] != float64(http.StatusCreated) {
		t.Errorf("status = %v, want 201", entry["status"])
	}
	if d, ok := entry["duration_ms"].(float64); !ok || d < 0 {
		t.Errorf("duration_ms = %v, want non-negative number", entry["duration_ms"])
	}
	if _, ok := entry["user_id"]; ok {
		t.Error("user_id should be omitted for anonymous requests")
	}
}

func TestLoggingMiddleware_LevelByStatus(t *testing.T) {
	tests := []struct {
		status int
		want   string
	}{
		{http.StatusOK, "INFO"},
		{http.StatusFound, "INFO"},
		{http.StatusNotFound, "WARN"},
		{http.StatusTooManyRequests, "WARN"},
		{http.StatusBadGateway, "ERROR"},
		{http.StatusServiceUnavailable, "ERROR"},
	}

	for _, tt := range tests {
		t.Run(http.StatusText(tt.status), func(t *testing.T) {
			logger, buf := newBufferLogger()
			handler := NewLoggingMiddleware(logger)(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
				w.WriteHeader(tt.status)
			}))
			handler.ServeHTTP(httptest.NewRecorder(), httptest.NewRequest(http.MethodGet, "/api/challenges", nil))

			entry := decodeLogEntry(t, buf)
			if entry["level"] != tt.want {
				t.Errorf("level = %v, want %s", entry["level"], tt.want)
			}
		})
	}
}

// TestLoggingMiddleware_RecordsPrincipalFromInnerSession は外側のログミドルウェアが
// 内側のセッションミドルウェアで解決されたユーザーとロールを出力することを検証する。
func TestLoggingMiddleware_RecordsPrincipalFromInnerSession(t *testing.T) {
	logger, buf := newBufferLogger()
	chain := NewLoggingMiddleware(logger)(
		NewSessionMiddleware(validResolver())(
			http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
				w.WriteHeader(http.StatusNoContent)
			}),
		),
	)

	req := httptest.NewRequest(http.MethodDelete, "/api/activities/a-1", nil)
	req.AddCookie(&http.Cookie{Name: SessionCookieName, Value: "valid-session-id"})
	chain.ServeHTTP(httptest.NewRecorder(), req)

	entry := decodeLogEntry(t, buf)
	if entry["user_id"] != "user-123" {
		t.Errorf("user_id = %v, want user-123", entry["user_id"])
	}
	if entry["role"] != string(model.RoleAdmin) {
		t.Errorf("role = %v, want %s", entry["role"], model.RoleAdmin)
	}
}

func TestLoggingMiddleware_UnauthenticatedSessionLogsWarnWithoutUser(t *testing.T) {
	logger, buf := newBufferLogger()
	chain := NewLoggingMiddleware(logger)(
		NewSessionMiddleware(validResolver())(
			http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
				t.Error("handler should not be reached")
			}),
		),
	)

	chain.ServeHTTP(httptest.NewRecorder(), httptest.NewRequest(http.MethodGet, "/api/profile", nil))

	entry := decodeLogEntry(t, buf)
	if entry["status"] != float64(http.StatusUnauthorized) {
		t.Errorf("status = %v, want 401", entry["status"])
	}
	if entry["level"] != "WARN" {
		t.Errorf("level = %v, want WARN", entry["level"])
	}
	if _, ok := entry["user_id"]; ok {
		t.Error("user_id should be omitted when the session is rejected")
	}
}

func TestLoggingMiddleware_PrincipalAlreadyInContext(t *testing.T) {
	logger, buf := newBufferLogger()
	handler := NewLoggingMiddleware(logger)(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {}))

	ctx := context.WithValue(context.Background(), principalContextKey,
		authz.Principal{UserID: "user-456", Role: model.RoleEmployee})
	req := httptest.NewRequest(http.MethodGet, "/api/leaderboard", nil).WithContext(ctx)
	handler.ServeHTTP(httptest.NewRecorder(), req)

	entry := decodeLogEntry(t, buf)
	if entry["user_id"] != "user-456" {
		t.Errorf("user_id = %v, want user-456", entry["user_id"])
	}
	if entry["role"] != string(model.RoleEmployee) {
		t.Errorf("role = %v, want employee", entry["role"])
	}
}

func TestStatusRecorder_WriteWithoutHeaderRecords200(t *testing.T) {
	w := httptest.NewRecorder()
	rec := &statusRecorder{ResponseWriter: w, statusCode: http.StatusTeapot}

	if _, err := rec.Write([]byte(`{"ok":true}`)); err != nil {
		t.Fatalf("Write error: %v", err)
	}
	rec.WriteHeader(http.StatusInternalServerError)

	if rec.statusCode != http.StatusOK {
		t.Errorf("statusCode = %d, want 200", rec.statusCode)
	}
	if w.Body.String() != `{"ok":true}` {
		t.Errorf("body = %q", w.Body.String())
	}
}
