// Package profile はプロフィールの参照と本人による編集を提供する。
package profile

import (
	"context"
	"fmt"
	"log/slog"

	"github.com/hitoshi/movemonth/internal/authz"
	"github.com/hitoshi/movemonth/internal/model"
	"github.com/hitoshi/movemonth/internal/repository"
	"github.com/hitoshi/movemonth/internal/security"
	"github.com/hitoshi/movemonth/internal/validation"
)

// UpdateInput はプロフィール更新リクエスト。
// メールアドレスとロールは変更できない。
type UpdateInput struct {
	FullName   string `json:"full_name" validate:"max=100"`
	Department string `json:"department" validate:"max=100"`
	JobTitle   string `json:"title" validate:"max=100"`
}

// Service はプロフィール管理のサービス層。
type Service struct {
	repo      repository.ProfileRepository
	sanitizer security.TextSanitizerService
}

// NewService はServiceの新しいインスタンスを生成する。
func NewService(repo repository.ProfileRepository, sanitizer security.TextSanitizerService) *Service {
	return &Service{repo: repo, sanitizer: sanitizer}
}

// Get は主体自身のプロフィールを返す。
func (s *Service) Get(ctx context.Context, p authz.Principal) (*model.Profile, error) {
	if p.UserID == "" {
		return nil, model.NewUnauthenticatedError()
	}
	profile, err := s.repo.FindByID(ctx, p.UserID)
	if err != nil {
		return nil, model.NewStoreUnavailableError(fmt.Errorf("プロフィールの取得に失敗しました: %w", err))
	}
	if profile == nil {
		return nil, model.NewProfileNotFoundError()
	}
	return profile, nil
}

// Update は主体自身の氏名・部署・役職を更新する。
// 空文字列は未設定として保存する。
func (s *Service) Update(ctx context.Context, p authz.Principal, in UpdateInput) (*model.Profile, error) {
	if err := authz.Require(p, authz.CapEditOwnProfile); err != nil {
		return nil, err
	}

	in.FullName = s.sanitizer.Sanitize(in.FullName)
	in.Department = s.sanitizer.Sanitize(in.Department)
	in.JobTitle = s.sanitizer.Sanitize(in.JobTitle)
	if apiErr := validation.ValidateStruct(&in); apiErr != nil {
		return nil, apiErr
	}

	updated, err := s.repo.UpdateDetails(ctx, p.UserID, repository.ProfileDetails{
		FullName:   in.FullName,
		Department: in.Department,
		JobTitle:   in.JobTitle,
	})
	if err != nil {
		return nil, model.NewStoreUnavailableError(fmt.Errorf("プロフィールの更新に失敗しました: %w", err))
	}
	if updated == nil {
		return nil, model.NewProfileNotFoundError()
	}

	slog.Info("プロフィールを更新しました",
		slog.String("user_id", p.UserID),
	)
	return updated, nil
}
