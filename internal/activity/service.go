// Package activity はアクティビティ登録の検証ロジックを提供する。
package activity

import (
	"context"
	"fmt"
	"math"
	"strconv"
	"strings"
	"time"

	"github.com/google/uuid"

	"github.com/hitoshi/movemonth/internal/authz"
	"github.com/hitoshi/movemonth/internal/metrics"
	"github.com/hitoshi/movemonth/internal/model"
	"github.com/hitoshi/movemonth/internal/repository"
)

const (
	// DefaultListLimit はlimit未指定時のアクティビティ一覧の取得件数。
	DefaultListLimit = 50
	// MaxListLimit は1ページで取得できる最大件数。
	MaxListLimit = 100
)

// ListQuery はアクティビティ一覧の絞り込みとページング条件。
// Limitが0の場合はDefaultListLimitを使う。
type ListQuery struct {
	ChallengeID string
	Limit       int
	Offset      int
}

// ActivityPage はアクティビティ一覧の1ページ分。
// HasMoreがtrueの場合、NextOffsetを指定すると続きを取得できる。
type ActivityPage struct {
	Activities []*model.Activity
	HasMore    bool
	NextOffset int
}

// RecordInput は手入力アクティビティの登録リクエスト。
// 文字列のまま受け取り、サービス層で解析する。
// 運動種別はチャレンジから決まるため受け付けない。
type RecordInput struct {
	ChallengeID  string
	Distance     string
	ActivityDate string
}

// Service はアクティビティ登録・一覧のサービス層。
type Service struct {
	activityRepo  repository.ActivityRepository
	challengeRepo repository.ChallengeRepository
	metrics       metrics.MetricsCollector
	now           func() time.Time
}

// NewService はServiceの新しいインスタンスを生成する。
func NewService(
	activityRepo repository.ActivityRepository,
	challengeRepo repository.ChallengeRepository,
	collector metrics.MetricsCollector,
) *Service {
	if collector == nil {
		collector = metrics.Nop{}
	}
	return &Service{
		activityRepo:  activityRepo,
		challengeRepo: challengeRepo,
		metrics:       collector,
		now:           time.Now,
	}
}

// Record は主体のアクティビティとして手入力の記録を検証して保存する。
// 検証順は距離、日付、チャレンジの存在、期間の順。
func (s *Service) Record(ctx context.Context, p authz.Principal, in RecordInput) (*model.Activity, error) {
	if err := authz.Require(p, authz.CapRecordActivity); err != nil {
		return nil, err
	}

	distance, err := ParseDistance(in.Distance)
	if err != nil {
		return nil, err
	}

	activityDate, err := model.ParseDateOrTimestamp(strings.TrimSpace(in.ActivityDate))
	if err != nil {
		return nil, model.NewInvalidInputError("activity_date must be YYYY-MM-DD or RFC 3339")
	}

	challengeID := strings.TrimSpace(in.ChallengeID)
	if challengeID == "" {
		return nil, model.NewInvalidInputError("challenge_id is required")
	}
	if _, err := uuid.Parse(challengeID); err != nil {
		return nil, model.NewInvalidInputError("challenge_id is malformed")
	}

	challenge, err := s.challengeRepo.FindByID(ctx, challengeID)
	if err != nil {
		return nil, model.NewStoreUnavailableError(fmt.Errorf("チャレンジの取得に失敗しました: %w", err))
	}
	if challenge == nil {
		return nil, model.NewChallengeNotFoundError(challengeID)
	}

	activityDate = model.WallClockUTC(activityDate)
	if !challenge.Contains(activityDate) {
		return nil, model.NewOutOfWindowError(challenge)
	}

	now := s.now()
	a := &model.Activity{
		ID:           uuid.New().String(),
		UserID:       p.UserID,
		ChallengeID:  &challenge.ID,
		ActivityType: challenge.ActivityType,
		Distance:     distance,
		ActivityDate: activityDate,
		Source:       model.ActivitySourceManual,
		CreatedAt:    now,
		UpdatedAt:    now,
	}

	if err := s.activityRepo.Create(ctx, a); err != nil {
		return nil, model.NewStoreUnavailableError(fmt.Errorf("アクティビティの保存に失敗しました: %w", err))
	}
	s.metrics.RecordActivityRecorded(string(model.ActivitySourceManual))

	return a, nil
}

// ListMine は主体のアクティビティを活動日の新しい順に1ページ分返す。
// ChallengeIDが空でない場合はそのチャレンジに属するものに絞り込む。
func (s *Service) ListMine(ctx context.Context, p authz.Principal, q ListQuery) (*ActivityPage, error) {
	if p.UserID == "" {
		return nil, model.NewUnauthenticatedError()
	}
	challengeID := strings.TrimSpace(q.ChallengeID)
	if challengeID != "" {
		if _, err := uuid.Parse(challengeID); err != nil {
			return nil, model.NewInvalidInputError("challenge_id is malformed")
		}
	}
	limit := q.Limit
	if limit == 0 {
		limit = DefaultListLimit
	}
	if limit < 0 || limit > MaxListLimit {
		return nil, model.NewInvalidInputError(fmt.Sprintf("limit must be between 1 and %d", MaxListLimit))
	}
	if q.Offset < 0 {
		return nil, model.NewInvalidInputError("offset must not be negative")
	}

	// 1件多く取得して続きの有無を判定する
	activities, err := s.activityRepo.ListByUser(ctx, p.UserID, challengeID, limit+1, q.Offset)
	if err != nil {
		return nil, model.NewStoreUnavailableError(fmt.Errorf("アクティビティ一覧の取得に失敗しました: %w", err))
	}

	page := &ActivityPage{Activities: activities}
	if len(activities) > limit {
		page.Activities = activities[:limit]
		page.HasMore = true
		page.NextOffset = q.Offset + limit
	}
	if page.Activities == nil {
		page.Activities = []*model.Activity{}
	}
	return page, nil
}

// ParseDistance は距離（km）の文字列を解析する。
// 有限かつ0より大きい値のみ受け付ける。
func ParseDistance(raw string) (float64, error) {
	d, err := strconv.ParseFloat(strings.TrimSpace(raw), 64)
	if err != nil || math.IsNaN(d) || math.IsInf(d, 0) {
		return 0, model.NewInvalidInputError("distance must be a number")
	}
	if d <= 0 {
		return 0, model.NewInvalidInputError("distance must be greater than 0")
	}
	return d, nil
}

// CountsToward は指定日・種別の記録がチャレンジの集計対象になるかを返す。
// 手入力の期間チェックと同じく暦日で判定し、種別の一致も要求する。
func CountsToward(c *model.Challenge, activityDate time.Time, t model.ActivityType) bool {
	if c == nil {
		return false
	}
	return c.ActivityType == t && c.Contains(activityDate)
}
