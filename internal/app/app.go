package app

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/hitoshi/movemonth/internal/activity"
	"github.com/hitoshi/movemonth/internal/auth"
	"github.com/hitoshi/movemonth/internal/authz"
	"github.com/hitoshi/movemonth/internal/challenge"
	"github.com/hitoshi/movemonth/internal/config"
	"github.com/hitoshi/movemonth/internal/database"
	"github.com/hitoshi/movemonth/internal/handler"
	"github.com/hitoshi/movemonth/internal/leaderboard"
	"github.com/hitoshi/movemonth/internal/logger"
	"github.com/hitoshi/movemonth/internal/metrics"
	"github.com/hitoshi/movemonth/internal/middleware"
	"github.com/hitoshi/movemonth/internal/profile"
	"github.com/hitoshi/movemonth/internal/repository"
	"github.com/hitoshi/movemonth/internal/security"
	"github.com/hitoshi/movemonth/internal/strava"
	"github.com/hitoshi/movemonth/internal/stravasync"
	"github.com/hitoshi/movemonth/internal/worker/cleanup"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
)

// dbConnectTimeout は起動時のDB疎通確認のタイムアウト。
const dbConnectTimeout = 10 * time.Second

// Init はアプリケーションの初期化を行う。
// JSON構造化ログをセットアップし、環境変数からConfigを読み込む。
// writerが指定された場合はログ出力先としてそのwriterを使用する。
func Init(w io.Writer) (*config.Config, error) {
	// 1. ログの初期化（設定読み込み前にログを使えるようにする）
	logger.SetupDefault(w)

	// 2. 環境変数から設定を読み込む
	cfg, err := config.Load()
	if err != nil {
		return nil, fmt.Errorf("failed to load config: %w", err)
	}

	return cfg, nil
}

// Run はアプリケーションのメインエントリーポイント。
// コマンドライン引数からサブコマンドを解析し、対応するモードで起動する。
// argsにはos.Args[1:]を渡す。
func Run(w io.Writer, args []string) error {
	cmd, err := ParseCommand(args)
	if err != nil {
		return err
	}

	// healthcheck は軽量サブコマンドのため、フル初期化をスキップする
	if cmd == CommandHealthcheck {
		port := os.Getenv("SERVER_PORT")
		if port == "" {
			port = "8080"
		}
		return runHealthcheck(fmt.Sprintf("http://localhost:%s/health", port))
	}

	cfg, err := Init(w)
	if err != nil {
		return fmt.Errorf("initialization failed: %w", err)
	}

	slog.Info("starting application",
		slog.String("command", string(cmd)),
		slog.String("port", cfg.ServerPort),
		slog.String("base_url", cfg.BaseURL),
	)

	// SIGINTまたはSIGTERMでキャンセルされるコンテキスト
	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	switch cmd {
	case CommandWorker:
		return runWorker(ctx, cfg)
	case CommandMigrate:
		return runMigrate(cfg)
	default:
		return runServe(ctx, cfg)
	}
}

// runServe はAPIサーバーモードで起動する。
// DB接続を開き、全依存関係をワイヤリングし、HTTPサーバーを起動する。
// コンテキストがキャンセルされるとグレースフルシャットダウンを行う。
func runServe(ctx context.Context, cfg *config.Config) error {
	db, err := database.Connect(ctx, cfg.DatabaseURL, database.DefaultPoolConfig(), dbConnectTimeout)
	if err != nil {
		return err
	}
	defer db.Close()

	slog.Info("database connection established")

	router, closeRouter := buildRouter(cfg, db, slog.Default())
	defer closeRouter()

	server := &http.Server{
		Addr:         ":" + cfg.ServerPort,
		Handler:      router,
		ReadTimeout:  15 * time.Second,
		WriteTimeout: 30 * time.Second,
		IdleTimeout:  60 * time.Second,
	}

	errCh := make(chan error, 1)
	go func() {
		slog.Info("API server starting", slog.String("addr", server.Addr))
		if err := server.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			errCh <- err
		}
		close(errCh)
	}()

	select {
	case err := <-errCh:
		if err != nil {
			return fmt.Errorf("server listen error: %w", err)
		}
		return nil
	case <-ctx.Done():
	}

	slog.Info("shutting down API server...")

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()

	if err := server.Shutdown(shutdownCtx); err != nil {
		return fmt.Errorf("server shutdown failed: %w", err)
	}

	slog.Info("API server stopped gracefully")
	return nil
}

// buildRouter はDB接続から全サービスを組み立て、ルーターを返す。
// 返される関数はレートリミッタのクリーンアップを停止する。
func buildRouter(cfg *config.Config, db *sql.DB, log *slog.Logger) (http.Handler, func()) {
	// 1. リポジトリの初期化
	profileRepo := repository.NewPostgresProfileRepo(db)
	sessionRepo := repository.NewPostgresSessionRepo(db)
	challengeRepo := repository.NewPostgresChallengeRepo(db)
	activityRepo := repository.NewPostgresActivityRepo(db)
	stravaRepo := repository.NewPostgresStravaConnectionRepo(db)

	// 2. メトリクス
	registry := prometheus.NewRegistry()
	registry.MustRegister(
		collectors.NewGoCollector(),
		collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}),
	)
	collector := metrics.NewCollector(registry)

	// 3. セキュリティサービスの初期化
	ssrfGuard := security.NewSSRFGuard()
	sanitizer := security.NewTextSanitizer()

	// 4. 認証
	oauthProvider := auth.NewGoogleOAuthProvider(ssrfGuard.NewSafeClient(10*time.Second), auth.GoogleOAuthConfig{
		ClientID:     cfg.GoogleClientID,
		ClientSecret: cfg.GoogleClientSecret,
		RedirectURL:  cfg.GoogleRedirectURL,
	})
	authService := auth.NewService(oauthProvider, profileRepo, sessionRepo, auth.ServiceConfig{
		SessionMaxAge: cfg.SessionMaxAge,
		IsAdminEmail:  cfg.IsAdminEmail,
	})
	gate := authz.NewGate(sessionRepo, profileRepo)

	// 5. Strava
	stravaHTTP, safe := ssrfGuard.OutboundClient(cfg.StravaTimeout, cfg.StravaOAuthURL, cfg.StravaAPIURL)
	if !safe {
		log.Warn("strava base URL is not public, SSRF protection disabled for strava client",
			slog.String("oauth_url", cfg.StravaOAuthURL),
			slog.String("api_url", cfg.StravaAPIURL),
		)
	}
	stravaClient := strava.NewClient(stravaHTTP, log, strava.Config{
		ClientID:     cfg.StravaClientID,
		ClientSecret: cfg.StravaClientSecret,
		RedirectURL:  cfg.StravaRedirectURL,
		OAuthURL:     cfg.StravaOAuthURL,
		APIURL:       cfg.StravaAPIURL,
		PerPage:      cfg.StravaPerPage,
	}, collector)
	stravaAPI := strava.NewBreakerClient(stravaClient, log, strava.DefaultBreakerSettings())

	// 6. ドメインサービスの初期化
	profileService := profile.NewService(profileRepo, sanitizer)
	challengeService := challenge.NewService(challengeRepo, sanitizer)
	activityService := activity.NewService(activityRepo, challengeRepo, collector)
	leaderboardService := leaderboard.NewService(activityRepo, challengeRepo, collector)
	syncService := stravasync.NewService(stravaAPI, stravaRepo, challengeRepo, collector, log, cfg.StravaTimeout)

	// 7. ルーターの構築
	limiter := middleware.NewRateLimiter(middleware.PerMinuteRateLimiterConfig(cfg.RateLimitGeneral, cfg.RateLimitSync))
	csrfConfig := middleware.CSRFConfig{
		CookieSecure: cfg.CookieSecure,
		CookieDomain: cfg.CookieDomain,
	}

	deps := &handler.RouterDeps{
		Logger:            log,
		HealthChecker:     db,
		MetricsHandler:    metrics.Handler(registry),
		PrincipalResolver: gate,
		CORSAllowedOrigin: cfg.CORSAllowedOrigin,
		CSRFConfig:        csrfConfig,
		RateLimiter:       limiter,

		AuthService: authService,
		AuthConfig: handler.AuthHandlerConfig{
			BaseURL:       cfg.BaseURL,
			CookieDomain:  cfg.CookieDomain,
			CookieSecure:  cfg.CookieSecure,
			SessionMaxAge: cfg.SessionMaxAge,
		},

		ProfileService:     profileService,
		ChallengeService:   challengeService,
		ActivityService:    activityService,
		LeaderboardService: handler.NewLeaderboardServiceAdapter(leaderboardService),
		StravaService:      handler.NewStravaServiceAdapter(syncService),
		StravaConfig: handler.StravaHandlerConfig{
			BaseURL:      cfg.BaseURL,
			CookieSecure: cfg.CookieSecure,
		},
	}

	return handler.NewRouter(deps), limiter.Stop
}

// runWorker はワーカーモードで起動する。
// DB接続を開き、期限切れセッションのクリーンアップを定期実行する。
// コンテキストがキャンセルされるまで戻らない。
func runWorker(ctx context.Context, cfg *config.Config) error {
	db, err := database.Connect(ctx, cfg.DatabaseURL, database.PoolConfig{MaxOpenConns: 2, MaxIdleConns: 1}, dbConnectTimeout)
	if err != nil {
		return err
	}
	defer db.Close()

	slog.Info("database connection established (worker)")

	sessionRepo := repository.NewPostgresSessionRepo(db)
	cleanupJob := cleanup.NewCleanupJob(sessionRepo, slog.Default())

	slog.Info("worker starting",
		slog.Duration("session_cleanup_interval", cfg.SessionCleanupInterval),
	)

	cleanupJob.Start(ctx, cfg.SessionCleanupInterval)

	slog.Info("worker stopped gracefully")
	return nil
}

// runMigrate はデータベースマイグレーションを実行する。
// すべての未適用マイグレーションを順番に適用する。
func runMigrate(cfg *config.Config) error {
	slog.Info("running database migrations",
		slog.String("database_url", maskDatabaseURL(cfg.DatabaseURL)),
	)

	if err := database.RunMigrations(cfg.DatabaseURL); err != nil {
		return fmt.Errorf("migration failed: %w", err)
	}

	slog.Info("database migrations completed successfully")
	return nil
}

// runHealthcheck はヘルスチェックを実行する。
// distroless環境でのDockerヘルスチェック用サブコマンド。
func runHealthcheck(url string) error {
	client := &http.Client{Timeout: 5 * time.Second}

	resp, err := client.Get(url)
	if err != nil {
		return fmt.Errorf("health check failed: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return fmt.Errorf("health check returned status %d", resp.StatusCode)
	}

	return nil
}

// maskDatabaseURL はデータベースURLの認証情報をマスクする。
func maskDatabaseURL(url string) string {
	if len(url) > 20 {
		return url[:12] + "***@..."
	}
	return "***"
}
