package handler

import (
	"context"
	"errors"
	"log/slog"
	"net/http"
	"net/url"
	"time"

	"github.com/hitoshi/movemonth/internal/authz"
	"github.com/hitoshi/movemonth/internal/middleware"
	"github.com/hitoshi/movemonth/internal/model"
)

const (
	stravaStateCookie = "strava_oauth_state"
	stravaCookiePath  = "/api/strava"

	// stravaResultPath はブラウザ連携フローの戻り先。
	stravaResultPath = "/dashboard/strava"
)

// StravaServiceInterface はStravaハンドラーが必要とするサービスインターフェース。
type StravaServiceInterface interface {
	AuthorizeURL(state string) string
	Connect(ctx context.Context, p authz.Principal, code string) (*syncResponse, error)
	Sync(ctx context.Context, p authz.Principal) (*syncResponse, error)
	Status(ctx context.Context, p authz.Principal) (*stravaStatusResponse, error)
	Disconnect(ctx context.Context, p authz.Principal) error
}

// StravaHandlerConfig はStravaハンドラーの設定。
type StravaHandlerConfig struct {
	BaseURL      string
	CookieSecure bool
}

// StravaHandler はStrava連携・同期のHTTPハンドラー。
type StravaHandler struct {
	service StravaServiceInterface
	config  StravaHandlerConfig
}

// NewStravaHandler はStravaHandlerを生成する。
func NewStravaHandler(service StravaServiceInterface, config StravaHandlerConfig) *StravaHandler {
	return &StravaHandler{service: service, config: config}
}

// syncResponse は同期結果のAPIレスポンス。
type syncResponse struct {
	Fetched     int    `json:"fetched"`
	Inserted    int    `json:"inserted"`
	Updated     int    `json:"updated"`
	Skipped     int    `json:"skipped"`
	Tagged      int    `json:"tagged"`
	ChallengeID string `json:"challenge_id,omitempty"`
}

// stravaStatusResponse は連携状態のAPIレスポンス。
type stravaStatusResponse struct {
	Connected    bool       `json:"connected"`
	AthleteID    int64      `json:"athlete_id,omitempty"`
	ExpiresAt    *time.Time `json:"expires_at,omitempty"`
	LastSyncedAt *time.Time `json:"last_synced_at,omitempty"`
}

// Connect はStravaの認可画面へリダイレクトする。
// GET /api/strava/connect
func (h *StravaHandler) Connect(w http.ResponseWriter, r *http.Request) {
	p, err := middleware.PrincipalFromContext(r.Context())
	if err != nil {
		h.redirectResult(w, r, "error", model.ErrCodeUnauthenticated)
		return
	}
	if err := authz.Require(p, authz.CapSyncActivities); err != nil {
		h.redirectResult(w, r, "error", model.ErrCodeForbidden)
		return
	}

	state, err := generateState()
	if err != nil {
		slog.Error("failed to generate strava oauth state", slog.String("error", err.Error()))
		middleware.WriteInternalServerError(w)
		return
	}

	setStateCookie(w, stravaStateCookie, state, stravaCookiePath, h.config.CookieSecure)
	http.Redirect(w, r, h.service.AuthorizeURL(state), http.StatusTemporaryRedirect)
}

// Callback はStravaからのコールバックを処理し、連携と初回同期を行う。
// 結果はクエリパラメータ付きでダッシュボードへリダイレクトして伝える。
// GET /api/strava/callback?code=xxx&state=yyy
func (h *StravaHandler) Callback(w http.ResponseWriter, r *http.Request) {
	p, err := middleware.PrincipalFromContext(r.Context())
	if err != nil {
		h.redirectResult(w, r, "error", model.ErrCodeUnauthenticated)
		return
	}

	if !consumeState(w, r, stravaStateCookie, stravaCookiePath, h.config.CookieSecure) {
		slog.Warn("strava oauth state mismatch", slog.String("user_id", p.UserID))
		h.redirectResult(w, r, "error", "invalid_state")
		return
	}

	// 利用者が認可画面で拒否した場合
	if denied := r.URL.Query().Get("error"); denied != "" {
		h.redirectResult(w, r, "error", denied)
		return
	}

	if _, err := h.service.Connect(r.Context(), p, r.URL.Query().Get("code")); err != nil {
		code := "INTERNAL_ERROR"
		var apiErr *model.APIError
		if errors.As(err, &apiErr) {
			code = apiErr.Code
		}
		slog.Warn("strava connect failed",
			slog.String("user_id", p.UserID),
			slog.String("code", code),
			slog.String("error", err.Error()),
		)
		h.redirectResult(w, r, "error", code)
		return
	}

	h.redirectResult(w, r, "message", "activities_synced")
}

// Status は連携状態を返す。
// GET /api/strava/status
func (h *StravaHandler) Status(w http.ResponseWriter, r *http.Request) {
	p, ok := principalOrUnauthorized(w, r)
	if !ok {
		return
	}

	status, err := h.service.Status(r.Context(), p)
	if err != nil {
		handleServiceError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, status)
}

// Sync は直近のアクティビティを取り込む。
// POST /api/strava/sync
func (h *StravaHandler) Sync(w http.ResponseWriter, r *http.Request) {
	p, ok := principalOrUnauthorized(w, r)
	if !ok {
		return
	}

	res, err := h.service.Sync(r.Context(), p)
	if err != nil {
		handleServiceError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, res)
}

// Disconnect は連携を解除する。取り込み済みのアクティビティは残る。
// DELETE /api/strava/connection
func (h *StravaHandler) Disconnect(w http.ResponseWriter, r *http.Request) {
	p, ok := principalOrUnauthorized(w, r)
	if !ok {
		return
	}

	if err := h.service.Disconnect(r.Context(), p); err != nil {
		handleServiceError(w, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

func (h *StravaHandler) redirectResult(w http.ResponseWriter, r *http.Request, key, value string) {
	target := h.config.BaseURL + stravaResultPath + "?" + url.Values{key: {value}}.Encode()
	http.Redirect(w, r, target, http.StatusFound)
}
