package handler

import (
	"context"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/hitoshi/movemonth/internal/authz"
	"github.com/hitoshi/movemonth/internal/challenge"
	"github.com/hitoshi/movemonth/internal/model"
)

// ChallengeServiceInterface はチャレンジハンドラーが必要とするサービスインターフェース。
type ChallengeServiceInterface interface {
	Create(ctx context.Context, p authz.Principal, in challenge.CreateInput) (*model.Challenge, error)
	Get(ctx context.Context, id string) (*model.Challenge, error)
	Current(ctx context.Context) (*model.Challenge, error)
	ListUpcoming(ctx context.Context) ([]*model.Challenge, error)
	ListCompleted(ctx context.Context) ([]*model.Challenge, error)
	ListAll(ctx context.Context) ([]*model.Challenge, error)
}

// ChallengeHandler はチャレンジ管理のHTTPハンドラー。
type ChallengeHandler struct {
	service ChallengeServiceInterface
}

// NewChallengeHandler はChallengeHandlerを生成する。
func NewChallengeHandler(service ChallengeServiceInterface) *ChallengeHandler {
	return &ChallengeHandler{service: service}
}

// challengeResponse はチャレンジのAPIレスポンス。
type challengeResponse struct {
	ID           string    `json:"id"`
	Title        string    `json:"title"`
	Description  string    `json:"description"`
	ActivityType string    `json:"activity_type"`
	StartDate    string    `json:"start_date"`
	EndDate      string    `json:"end_date"`
	TargetGoal   float64   `json:"target_goal"`
	CreatedBy    string    `json:"created_by"`
	CreatedAt    time.Time `json:"created_at"`
}

func toChallengeResponse(c *model.Challenge) challengeResponse {
	return challengeResponse{
		ID:           c.ID,
		Title:        c.Title,
		Description:  c.Description,
		ActivityType: string(c.ActivityType),
		StartDate:    c.StartDate.Format(model.DateLayout),
		EndDate:      c.EndDate.Format(model.DateLayout),
		TargetGoal:   c.TargetGoal,
		CreatedBy:    c.CreatedBy,
		CreatedAt:    c.CreatedAt,
	}
}

// CreateChallenge はチャレンジを作成する。管理者のみ。
// POST /api/challenges
func (h *ChallengeHandler) CreateChallenge(w http.ResponseWriter, r *http.Request) {
	p, ok := principalOrUnauthorized(w, r)
	if !ok {
		return
	}

	var in challenge.CreateInput
	if !decodeJSON(w, r, &in) {
		return
	}

	c, err := h.service.Create(r.Context(), p, in)
	if err != nil {
		handleServiceError(w, err)
		return
	}
	writeJSON(w, http.StatusCreated, toChallengeResponse(c))
}

// ListChallenges はstatusに応じたチャレンジ一覧を返す。
// GET /api/challenges?status=upcoming|completed|all
func (h *ChallengeHandler) ListChallenges(w http.ResponseWriter, r *http.Request) {
	var (
		challenges []*model.Challenge
		err        error
	)
	switch status := r.URL.Query().Get("status"); status {
	case "", "all":
		challenges, err = h.service.ListAll(r.Context())
	case "upcoming":
		challenges, err = h.service.ListUpcoming(r.Context())
	case "completed":
		challenges, err = h.service.ListCompleted(r.Context())
	default:
		handleServiceError(w, model.NewInvalidInputError("statusはupcoming, completed, allのいずれかを指定してください。"))
		return
	}
	if err != nil {
		handleServiceError(w, err)
		return
	}

	resp := make([]challengeResponse, len(challenges))
	for i, c := range challenges {
		resp[i] = toChallengeResponse(c)
	}
	writeJSON(w, http.StatusOK, resp)
}

// GetChallenge はチャレンジ詳細を返す。
// GET /api/challenges/{id}
func (h *ChallengeHandler) GetChallenge(w http.ResponseWriter, r *http.Request) {
	c, err := h.service.Get(r.Context(), chi.URLParam(r, "id"))
	if err != nil {
		handleServiceError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, toChallengeResponse(c))
}

// CurrentChallenge は開催中のチャレンジを返す。
// GET /api/challenges/current
func (h *ChallengeHandler) CurrentChallenge(w http.ResponseWriter, r *http.Request) {
	c, err := h.service.Current(r.Context())
	if err != nil {
		handleServiceError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, toChallengeResponse(c))
}
