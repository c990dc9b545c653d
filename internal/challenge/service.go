// Package challenge はチャレンジの作成と参照のドメインロジックを提供する。
package challenge

import (
	"context"
	"fmt"
	"time"

	"github.com/google/uuid"

	"github.com/hitoshi/movemonth/internal/authz"
	"github.com/hitoshi/movemonth/internal/model"
	"github.com/hitoshi/movemonth/internal/repository"
	"github.com/hitoshi/movemonth/internal/security"
	"github.com/hitoshi/movemonth/internal/validation"
)

// CreateInput はチャレンジ作成リクエスト。
type CreateInput struct {
	Title        string  `json:"title" validate:"required,max=200"`
	Description  string  `json:"description" validate:"max=2000"`
	ActivityType string  `json:"activity_type" validate:"required,activity_type"`
	StartDate    string  `json:"start_date" validate:"required,date_only"`
	EndDate      string  `json:"end_date" validate:"required,date_only"`
	TargetGoal   float64 `json:"target_goal" validate:"gt=0"`
}

// Service はチャレンジ管理のサービス層。
type Service struct {
	repo      repository.ChallengeRepository
	sanitizer security.TextSanitizerService
	now       func() time.Time
}

// NewService はServiceの新しいインスタンスを生成する。
func NewService(repo repository.ChallengeRepository, sanitizer security.TextSanitizerService) *Service {
	return &Service{
		repo:      repo,
		sanitizer: sanitizer,
		now:       time.Now,
	}
}

// Create は管理者としてチャレンジを作成する。
// 期間が既存チャレンジと重なる場合はCHALLENGE_OVERLAPを返す。
func (s *Service) Create(ctx context.Context, p authz.Principal, in CreateInput) (*model.Challenge, error) {
	if err := authz.Require(p, authz.CapCreateChallenge); err != nil {
		return nil, err
	}

	in.Title = s.sanitizer.Sanitize(in.Title)
	in.Description = s.sanitizer.Sanitize(in.Description)
	if apiErr := validation.ValidateStruct(&in); apiErr != nil {
		return nil, apiErr
	}

	activityType, _ := model.ParseActivityType(in.ActivityType)
	start, _ := model.ParseDate(in.StartDate)
	end, _ := model.ParseDate(in.EndDate)
	if start.After(end) {
		return nil, model.NewInvalidInputError("start_date must be on or before end_date")
	}

	now := s.now()
	c := &model.Challenge{
		ID:           uuid.New().String(),
		Title:        in.Title,
		Description:  in.Description,
		ActivityType: activityType,
		StartDate:    start,
		EndDate:      end,
		TargetGoal:   in.TargetGoal,
		CreatedBy:    p.UserID,
		CreatedAt:    now,
		UpdatedAt:    now,
	}

	conflict, err := s.repo.CreateIfNoOverlap(ctx, c)
	if err != nil {
		return nil, model.NewStoreUnavailableError(fmt.Errorf("チャレンジの作成に失敗しました: %w", err))
	}
	if conflict != nil {
		return nil, model.NewChallengeOverlapError(conflict)
	}
	return c, nil
}

// Get は指定IDのチャレンジを返す。
func (s *Service) Get(ctx context.Context, id string) (*model.Challenge, error) {
	if _, err := uuid.Parse(id); err != nil {
		return nil, model.NewInvalidInputError("challenge_id is malformed")
	}
	c, err := s.repo.FindByID(ctx, id)
	if err != nil {
		return nil, model.NewStoreUnavailableError(fmt.Errorf("チャレンジの取得に失敗しました: %w", err))
	}
	if c == nil {
		return nil, model.NewChallengeNotFoundError(id)
	}
	return c, nil
}

// Current は今日を期間に含むチャレンジを返す。
func (s *Service) Current(ctx context.Context) (*model.Challenge, error) {
	c, err := s.repo.FindCurrent(ctx, model.DayOf(s.now()))
	if err != nil {
		return nil, model.NewStoreUnavailableError(fmt.Errorf("開催中チャレンジの取得に失敗しました: %w", err))
	}
	if c == nil {
		return nil, model.NewNoCurrentChallengeError()
	}
	return c, nil
}

// ListUpcoming は開始前のチャレンジを開始日の昇順で返す。
func (s *Service) ListUpcoming(ctx context.Context) ([]*model.Challenge, error) {
	return s.list(s.repo.ListUpcoming(ctx, model.DayOf(s.now())))
}

// ListCompleted は終了済みのチャレンジを終了日の降順で返す。
func (s *Service) ListCompleted(ctx context.Context) ([]*model.Challenge, error) {
	return s.list(s.repo.ListCompleted(ctx, model.DayOf(s.now())))
}

// ListAll は全チャレンジを開始日の降順で返す。
func (s *Service) ListAll(ctx context.Context) ([]*model.Challenge, error) {
	return s.list(s.repo.ListAll(ctx))
}

func (s *Service) list(challenges []*model.Challenge, err error) ([]*model.Challenge, error) {
	if err != nil {
		return nil, model.NewStoreUnavailableError(fmt.Errorf("チャレンジ一覧の取得に失敗しました: %w", err))
	}
	if challenges == nil {
		challenges = []*model.Challenge{}
	}
	return challenges, nil
}
