package handler

import (
	"context"
	"net/http"

	"github.com/go-chi/chi/v5"
	"github.com/hitoshi/movemonth/internal/authz"
)

// LeaderboardServiceInterface はリーダーボードハンドラーが必要とするサービスインターフェース。
type LeaderboardServiceInterface interface {
	ForChallenge(ctx context.Context, p authz.Principal, challengeID string) (*leaderboardResponse, error)
	Current(ctx context.Context, p authz.Principal) (*leaderboardResponse, error)
}

// LeaderboardHandler はリーダーボードのHTTPハンドラー。
type LeaderboardHandler struct {
	service LeaderboardServiceInterface
}

// NewLeaderboardHandler はLeaderboardHandlerを生成する。
func NewLeaderboardHandler(service LeaderboardServiceInterface) *LeaderboardHandler {
	return &LeaderboardHandler{service: service}
}

// leaderboardEntryResponse はリーダーボードの1行。
type leaderboardEntryResponse struct {
	Rank            int     `json:"rank"`
	UserID          string  `json:"user_id"`
	DisplayName     string  `json:"display_name"`
	Department      string  `json:"department"`
	TotalDistance   float64 `json:"total_distance"`
	ActivityCount   int     `json:"activity_count"`
	ProgressPercent float64 `json:"progress_percent"`
}

// leaderboardResponse はリーダーボードのAPIレスポンス。
type leaderboardResponse struct {
	Challenge challengeResponse          `json:"challenge"`
	DaysLeft  int                        `json:"days_left"`
	Entries   []leaderboardEntryResponse `json:"entries"`
}

// ChallengeLeaderboard は指定チャレンジのリーダーボードを返す。
// GET /api/challenges/{id}/leaderboard
func (h *LeaderboardHandler) ChallengeLeaderboard(w http.ResponseWriter, r *http.Request) {
	p, ok := principalOrUnauthorized(w, r)
	if !ok {
		return
	}

	board, err := h.service.ForChallenge(r.Context(), p, chi.URLParam(r, "id"))
	if err != nil {
		handleServiceError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, board)
}

// CurrentLeaderboard は開催中チャレンジのリーダーボードを返す。
// GET /api/leaderboard/current
func (h *LeaderboardHandler) CurrentLeaderboard(w http.ResponseWriter, r *http.Request) {
	p, ok := principalOrUnauthorized(w, r)
	if !ok {
		return
	}

	board, err := h.service.Current(r.Context(), p)
	if err != nil {
		handleServiceError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, board)
}
