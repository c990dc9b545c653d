// Package leaderboard はチャレンジごとの距離集計とランキングを提供する。
// 参加者ごとの合計距離はここでのみ計算する。
package leaderboard

import (
	"context"
	"fmt"
	"math"
	"sort"
	"strings"
	"time"

	"github.com/google/uuid"

	"github.com/hitoshi/movemonth/internal/authz"
	"github.com/hitoshi/movemonth/internal/metrics"
	"github.com/hitoshi/movemonth/internal/model"
	"github.com/hitoshi/movemonth/internal/repository"
)

// Entry はリーダーボードの1行。
type Entry struct {
	Rank            int
	UserID          string
	DisplayName     string
	Department      string
	TotalDistance   float64 // km
	ActivityCount   int
	ProgressPercent float64 // 目標距離に対する達成率
}

// Board はチャレンジとそのランキング。
type Board struct {
	Challenge *model.Challenge
	Entries   []Entry
	DaysLeft  int
}

// Rank は集計行を合計距離の降順に並べ、1から順位を振る。
// 同距離の場合はユーザーIDの昇順で順序を決める。
// 表示名が空の参加者はAnonymousとして表示する。
func Rank(totals []model.ParticipantTotal, targetGoal float64) []Entry {
	sorted := make([]model.ParticipantTotal, len(totals))
	copy(sorted, totals)
	sort.SliceStable(sorted, func(i, j int) bool {
		if sorted[i].TotalDistance != sorted[j].TotalDistance {
			return sorted[i].TotalDistance > sorted[j].TotalDistance
		}
		return sorted[i].UserID < sorted[j].UserID
	})

	entries := make([]Entry, len(sorted))
	for i, t := range sorted {
		name := strings.TrimSpace(t.FullName)
		if name == "" {
			name = model.AnonymousName
		}
		entries[i] = Entry{
			Rank:            i + 1,
			UserID:          t.UserID,
			DisplayName:     name,
			Department:      t.Department,
			TotalDistance:   t.TotalDistance,
			ActivityCount:   t.ActivityCount,
			ProgressPercent: progressPercent(t.TotalDistance, targetGoal),
		}
	}
	return entries
}

// progressPercent は達成率を小数第1位で丸めて返す。
func progressPercent(total, goal float64) float64 {
	if goal <= 0 {
		return 0
	}
	return math.Round(total/goal*1000) / 10
}

// Service はリーダーボードのサービス層。
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

// ForChallenge は指定チャレンジのリーダーボードを返す。
func (s *Service) ForChallenge(ctx context.Context, p authz.Principal, challengeID string) (*Board, error) {
	if err := authz.Require(p, authz.CapViewLeaderboard); err != nil {
		return nil, err
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

	return s.build(ctx, challenge)
}

// Current は開催中のチャレンジのリーダーボードを残り日数付きで返す。
func (s *Service) Current(ctx context.Context, p authz.Principal) (*Board, error) {
	if err := authz.Require(p, authz.CapViewLeaderboard); err != nil {
		return nil, err
	}

	challenge, err := s.challengeRepo.FindCurrent(ctx, model.DayOf(s.now()))
	if err != nil {
		return nil, model.NewStoreUnavailableError(fmt.Errorf("開催中チャレンジの取得に失敗しました: %w", err))
	}
	if challenge == nil {
		return nil, model.NewNoCurrentChallengeError()
	}

	return s.build(ctx, challenge)
}

func (s *Service) build(ctx context.Context, challenge *model.Challenge) (*Board, error) {
	start := time.Now()
	totals, err := s.activityRepo.TotalsByChallenge(ctx, challenge.ID)
	if err != nil {
		return nil, model.NewStoreUnavailableError(fmt.Errorf("リーダーボードの集計に失敗しました: %w", err))
	}
	s.metrics.RecordLeaderboardLatency(time.Since(start))

	return &Board{
		Challenge: challenge,
		Entries:   Rank(totals, challenge.TargetGoal),
		DaysLeft:  challenge.DaysLeft(s.now()),
	}, nil
}
