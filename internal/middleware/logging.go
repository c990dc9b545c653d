package middleware

import (
	"context"
	"log/slog"
	"net/http"
	"time"

	"github.com/hitoshi/movemonth/internal/authz"
)

// statusRecorder はhttp.ResponseWriterをラップし、最初に書き込まれたステータスコードを保持する。
type statusRecorder struct {
	http.ResponseWriter
	statusCode int
	written    bool
}

func (sr *statusRecorder) WriteHeader(code int) {
	if !sr.written {
		sr.statusCode = code
		sr.written = true
	}
	sr.ResponseWriter.WriteHeader(code)
}

func (sr *statusRecorder) Write(b []byte) (int, error) {
	if !sr.written {
		sr.WriteHeader(http.StatusOK)
	}
	return sr.ResponseWriter.Write(b)
}

var requestLogKey = contextKey("request_log")

// requestLog はログミドルウェアより内側で解決された主体を書き戻す入れ物。
type requestLog struct {
	principal authz.Principal
}

// recordPrincipal は内側のセッションミドルウェアが解決した主体をリクエストログに記録する。
// ログミドルウェアを通っていないコンテキストでは何もしない。
func recordPrincipal(ctx context.Context, p authz.Principal) {
	if rl, ok := ctx.Value(requestLogKey).(*requestLog); ok {
		rl.principal = p
	}
}

// levelForStatus はレスポンスステータスに対応するログレベルを返す。
func levelForStatus(status int) slog.Level {
	switch {
	case status >= 500:
		return slog.LevelError
	case status >= 400:
		return slog.LevelWarn
	default:
		return slog.LevelInfo
	}
}

// NewLoggingMiddleware はリクエストごとに1行の"http_request"ログを出力するミドルウェアを返す。
// 認証済みリクエストではuser_idとroleも出力する。
func NewLoggingMiddleware(logger *slog.Logger) func(next http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			start := time.Now()
			rec := &statusRecorder{ResponseWriter: w, statusCode: http.StatusOK}
			info := &requestLog{}

			next.ServeHTTP(rec, r.WithContext(context.WithValue(r.Context(), requestLogKey, info)))

			attrs := []slog.Attr{
				slog.String("method", r.Method),
				slog.String("path", r.URL.Path),
				slog.Int("status", rec.statusCode),
				slog.Float64("duration_ms", float64(time.Since(start).Microseconds())/1000),
			}

			p := info.principal
			if p.UserID == "" {
				p, _ = PrincipalFromContext(r.Context())
			}
			if p.UserID != "" {
				attrs = append(attrs,
					slog.String("user_id", p.UserID),
					slog.String("role", string(p.Role)),
				)
			}

			logger.LogAttrs(r.Context(), levelForStatus(rec.statusCode), "http_request", attrs...)
		})
	}
}
