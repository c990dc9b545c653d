package handler

import (
	"context"
	"log/slog"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/hitoshi/movemonth/internal/middleware"
)

// HealthChecker はヘルスチェックでDB疎通を確認するためのインターフェース。
// *sql.DBが実装する。
type HealthChecker interface {
	PingContext(ctx context.Context) error
}

// RouterDeps はNewRouterに必要な依存関係をまとめた構造体。
type RouterDeps struct {
	// ミドルウェア依存
	Logger            *slog.Logger
	HealthChecker     HealthChecker
	MetricsHandler    http.Handler
	PrincipalResolver middleware.PrincipalResolver
	CORSAllowedOrigin string
	CSRFConfig        middleware.CSRFConfig
	RateLimiter       *middleware.RateLimiter

	// 認証
	AuthService AuthServiceInterface
	AuthConfig  AuthHandlerConfig

	// ドメイン
	ProfileService     ProfileServiceInterface
	ChallengeService   ChallengeServiceInterface
	ActivityService    ActivityServiceInterface
	LeaderboardService LeaderboardServiceInterface
	StravaService      StravaServiceInterface
	StravaConfig       StravaHandlerConfig
}

// NewRouter は全エンドポイントのルーティングとミドルウェアチェーンを構成したchi.Routerを返す。
//
// ミドルウェアスタックの実行順序:
//
//	SecurityHeaders → Recovery → Logging → CORS → Session → RateLimit(General) → CSRF
//
// /health, /metrics, /api/csrf-token とサインインのルートはセッションを要求しない。
func NewRouter(deps *RouterDeps) http.Handler {
	logger := deps.Logger
	if logger == nil {
		logger = slog.Default()
	}

	r := chi.NewRouter()
	r.Use(middleware.NewSecurityHeadersMiddleware(deps.CSRFConfig.CookieSecure))
	r.Use(middleware.NewRecoveryMiddleware(logger))
	r.Use(middleware.NewLoggingMiddleware(logger))
	r.Use(middleware.NewCORSMiddleware(deps.CORSAllowedOrigin))

	authHandler := NewAuthHandler(deps.AuthService, deps.AuthConfig)
	profileHandler := NewProfileHandler(deps.ProfileService)
	challengeHandler := NewChallengeHandler(deps.ChallengeService)
	activityHandler := NewActivityHandler(deps.ActivityService)
	leaderboardHandler := NewLeaderboardHandler(deps.LeaderboardService)
	stravaHandler := NewStravaHandler(deps.StravaService, deps.StravaConfig)

	// --- 認証不要のルート ---

	r.Get("/health", healthHandler(deps.HealthChecker))
	if deps.MetricsHandler != nil {
		r.Method(http.MethodGet, "/metrics", deps.MetricsHandler)
	}
	r.Method(http.MethodGet, "/api/csrf-token", middleware.NewCSRFTokenHandler(deps.CSRFConfig))

	r.Route("/auth", func(r chi.Router) {
		r.Get("/google/login", authHandler.Login)
		r.Get("/google/callback", authHandler.Callback)
		r.With(middleware.NewCSRFMiddleware(deps.CSRFConfig)).Post("/logout", authHandler.Logout)
		r.With(middleware.NewSessionMiddleware(deps.PrincipalResolver)).Get("/me", authHandler.Me)
	})

	// --- ブラウザ遷移のルート ---
	// 認証失敗時はJSONではなくサインインへリダイレクトする
	r.Group(func(r chi.Router) {
		r.Use(middleware.NewBrowserSessionMiddleware(deps.PrincipalResolver, "/auth/google/login"))
		r.Use(deps.RateLimiter.SyncMiddleware())

		r.Get("/api/strava/connect", stravaHandler.Connect)
		r.Get("/api/strava/callback", stravaHandler.Callback)
	})

	// --- 認証が必要なAPIルート ---
	r.Group(func(r chi.Router) {
		r.Use(middleware.NewSessionMiddleware(deps.PrincipalResolver))
		r.Use(deps.RateLimiter.GeneralMiddleware())
		r.Use(middleware.NewCSRFMiddleware(deps.CSRFConfig))

		r.Get("/api/profile", profileHandler.GetProfile)
		r.Put("/api/profile", profileHandler.UpdateProfile)

		r.Route("/api/challenges", func(r chi.Router) {
			r.Get("/", challengeHandler.ListChallenges)
			r.Post("/", challengeHandler.CreateChallenge)
			r.Get("/current", challengeHandler.CurrentChallenge)
			r.Get("/{id}", challengeHandler.GetChallenge)
			r.Get("/{id}/leaderboard", leaderboardHandler.ChallengeLeaderboard)
		})

		r.Get("/api/leaderboard/current", leaderboardHandler.CurrentLeaderboard)

		r.Get("/api/activities", activityHandler.ListActivities)
		r.Post("/api/activities", activityHandler.RecordActivity)

		r.Route("/api/strava", func(r chi.Router) {
			r.Get("/status", stravaHandler.Status)
			r.With(deps.RateLimiter.SyncMiddleware()).Post("/sync", stravaHandler.Sync)
			r.Delete("/connection", stravaHandler.Disconnect)
		})
	})

	return r
}

// healthHandler はDB疎通を確認するヘルスチェックハンドラーを返す。
func healthHandler(checker HealthChecker) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		if checker != nil {
			ctx, cancel := context.WithTimeout(r.Context(), 2*time.Second)
			defer cancel()
			if err := checker.PingContext(ctx); err != nil {
				slog.Error("health check failed", slog.String("error", err.Error()))
				writeJSON(w, http.StatusServiceUnavailable, map[string]string{"status": "unavailable"})
				return
			}
		}
		writeJSON(w, http.StatusOK, map[string]string{"status": "ok"})
	}
}
