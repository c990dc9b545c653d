package handler

import (
	"context"
	"encoding/json"
	"net/http"
	"strconv"
	"strings"
	"time"

	"github.com/hitoshi/movemonth/internal/activity"
	"github.com/hitoshi/movemonth/internal/authz"
	"github.com/hitoshi/movemonth/internal/model"
)

// ActivityServiceInterface はアクティビティハンドラーが必要とするサービスインターフェース。
type ActivityServiceInterface interface {
	Record(ctx context.Context, p authz.Principal, in activity.RecordInput) (*model.Activity, error)
	ListMine(ctx context.Context, p authz.Principal, q activity.ListQuery) (*activity.ActivityPage, error)
}

// ActivityHandler はアクティビティ登録・一覧のHTTPハンドラー。
type ActivityHandler struct {
	service ActivityServiceInterface
}

// NewActivityHandler はActivityHandlerを生成する。
func NewActivityHandler(service ActivityServiceInterface) *ActivityHandler {
	return &ActivityHandler{service: service}
}

// recordActivityRequest は手入力アクティビティの登録リクエスト。
// distanceは数値と文字列のどちらでも受け付ける。
type recordActivityRequest struct {
	ChallengeID  string          `json:"challenge_id"`
	Distance     json.RawMessage `json:"distance"`
	ActivityDate string          `json:"activity_date"`
}

// activityResponse はアクティビティのAPIレスポンス。
type activityResponse struct {
	ID           string    `json:"id"`
	ChallengeID  *string   `json:"challenge_id"`
	ActivityType string    `json:"activity_type"`
	Distance     float64   `json:"distance"`
	Duration     *int      `json:"duration"`
	ActivityDate string    `json:"activity_date"`
	Source       string    `json:"source"`
	CreatedAt    time.Time `json:"created_at"`
}

func toActivityResponse(a *model.Activity) activityResponse {
	return activityResponse{
		ID:           a.ID,
		ChallengeID:  a.ChallengeID,
		ActivityType: string(a.ActivityType),
		Distance:     a.Distance,
		Duration:     a.Duration,
		ActivityDate: a.ActivityDate.UTC().Format(model.DateLayout),
		Source:       string(a.Source),
		CreatedAt:    a.CreatedAt,
	}
}

// rawNumber はJSONの数値または文字列をそのままの文字列として取り出す。
func rawNumber(raw json.RawMessage) string {
	var s string
	if err := json.Unmarshal(raw, &s); err == nil {
		return s
	}
	v := strings.TrimSpace(string(raw))
	if v == "null" {
		return ""
	}
	return v
}

// RecordActivity は本人のアクティビティを登録する。
// POST /api/activities
func (h *ActivityHandler) RecordActivity(w http.ResponseWriter, r *http.Request) {
	p, ok := principalOrUnauthorized(w, r)
	if !ok {
		return
	}

	var req recordActivityRequest
	if !decodeJSON(w, r, &req) {
		return
	}

	a, err := h.service.Record(r.Context(), p, activity.RecordInput{
		ChallengeID:  req.ChallengeID,
		Distance:     rawNumber(req.Distance),
		ActivityDate: req.ActivityDate,
	})
	if err != nil {
		handleServiceError(w, err)
		return
	}
	writeJSON(w, http.StatusCreated, toActivityResponse(a))
}

// ListActivities は本人のアクティビティを活動日の降順で1ページ分返す。
// 続きがある場合はX-Has-MoreとX-Next-Offsetヘッダーで知らせる。
// GET /api/activities?challenge_id=&limit=&offset=
func (h *ActivityHandler) ListActivities(w http.ResponseWriter, r *http.Request) {
	p, ok := principalOrUnauthorized(w, r)
	if !ok {
		return
	}

	query := r.URL.Query()
	limit, err := intQueryParam(query.Get("limit"))
	if err != nil {
		handleServiceError(w, model.NewInvalidInputError("limit must be an integer"))
		return
	}
	offset, err := intQueryParam(query.Get("offset"))
	if err != nil {
		handleServiceError(w, model.NewInvalidInputError("offset must be an integer"))
		return
	}

	page, err := h.service.ListMine(r.Context(), p, activity.ListQuery{
		ChallengeID: query.Get("challenge_id"),
		Limit:       limit,
		Offset:      offset,
	})
	if err != nil {
		handleServiceError(w, err)
		return
	}

	resp := make([]activityResponse, len(page.Activities))
	for i, a := range page.Activities {
		resp[i] = toActivityResponse(a)
	}
	w.Header().Set("X-Has-More", strconv.FormatBool(page.HasMore))
	if page.HasMore {
		w.Header().Set("X-Next-Offset", strconv.Itoa(page.NextOffset))
	}
	writeJSON(w, http.StatusOK, resp)
}

// intQueryParam は空文字列を0として整数のクエリパラメータを解析する。
func intQueryParam(v string) (int, error) {
	v = strings.TrimSpace(v)
	if v == "" {
		return 0, nil
	}
	return strconv.Atoi(v)
}
