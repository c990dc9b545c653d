package handler

import (
	"context"
	"net/http"

	"github.com/hitoshi/movemonth/internal/authz"
	"github.com/hitoshi/movemonth/internal/model"
	"github.com/hitoshi/movemonth/internal/profile"
)

// ProfileServiceInterface はプロフィールハンドラーが必要とするサービスインターフェース。
type ProfileServiceInterface interface {
	Get(ctx context.Context, p authz.Principal) (*model.Profile, error)
	Update(ctx context.Context, p authz.Principal, in profile.UpdateInput) (*model.Profile, error)
}

// ProfileHandler は本人のプロフィール参照・更新のHTTPハンドラー。
type ProfileHandler struct {
	service ProfileServiceInterface
}

// NewProfileHandler はProfileHandlerを生成する。
func NewProfileHandler(service ProfileServiceInterface) *ProfileHandler {
	return &ProfileHandler{service: service}
}

// GetProfile は本人のプロフィールを返す。
// GET /api/profile
func (h *ProfileHandler) GetProfile(w http.ResponseWriter, r *http.Request) {
	p, ok := principalOrUnauthorized(w, r)
	if !ok {
		return
	}

	prof, err := h.service.Get(r.Context(), p)
	if err != nil {
		handleServiceError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, toProfileResponse(prof))
}

// UpdateProfile は氏名・部署・役職を更新する。
// PUT /api/profile
func (h *ProfileHandler) UpdateProfile(w http.ResponseWriter, r *http.Request) {
	p, ok := principalOrUnauthorized(w, r)
	if !ok {
		return
	}

	var in profile.UpdateInput
	if !decodeJSON(w, r, &in) {
		return
	}

	prof, err := h.service.Update(r.Context(), p, in)
	if err != nil {
		handleServiceError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, toProfileResponse(prof))
}
