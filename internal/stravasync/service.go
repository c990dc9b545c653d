// Package stravasync はStrava連携の状態管理とアクティビティ同期を提供する。
package stravasync

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strings"
	"time"

	"github.com/hitoshi/movemonth/internal/activity"
	"github.com/hitoshi/movemonth/internal/authz"
	"github.com/hitoshi/movemonth/internal/metrics"
	"github.com/hitoshi/movemonth/internal/model"
	"github.com/hitoshi/movemonth/internal/repository"
	"github.com/hitoshi/movemonth/internal/strava"
)

// Result は1回の同期の結果。
type Result struct {
	Fetched     int
	Inserted    int
	Updated     int
	Skipped     int // 対応しない運動種別
	Tagged      int // 開催中チャレンジに紐付けた件数
	ChallengeID string
}

// Status は連携状態。
type Status struct {
	Connected    bool
	AthleteID    int64
	ExpiresAt    *time.Time
	LastSyncedAt *time.Time
}

// Service はStrava連携のサービス層。
type Service struct {
	api        strava.API
	conns      repository.StravaConnectionRepository
	challenges repository.ChallengeRepository
	metrics    metrics.MetricsCollector
	logger     *slog.Logger
	timeout    time.Duration
	now        func() time.Time
	locks      *keyedMutex
}

// NewService はServiceの新しいインスタンスを生成する。
// timeoutはStravaへの1回の呼び出しに適用する。
func NewService(
	api strava.API,
	conns repository.StravaConnectionRepository,
	challenges repository.ChallengeRepository,
	collector metrics.MetricsCollector,
	logger *slog.Logger,
	timeout time.Duration,
) *Service {
	if collector == nil {
		collector = metrics.Nop{}
	}
	if timeout <= 0 {
		timeout = 10 * time.Second
	}
	return &Service{
		api:        api,
		conns:      conns,
		challenges: challenges,
		metrics:    collector,
		logger:     logger,
		timeout:    timeout,
		now:        time.Now,
		locks:      newKeyedMutex(),
	}
}

// AuthorizeURL はStravaの認可画面のURLを返す。
func (s *Service) AuthorizeURL(state string) string {
	return s.api.AuthorizeURL(state)
}

// Connect は認可コードをトークンに交換して連携情報を保存し、続けて1回同期する。
// 同期に失敗しても連携情報は保存されたままになる。
func (s *Service) Connect(ctx context.Context, p authz.Principal, code string) (*Result, error) {
	if err := authz.Require(p, authz.CapSyncActivities); err != nil {
		return nil, err
	}
	code = strings.TrimSpace(code)
	if code == "" {
		return nil, model.NewInvalidInputError("authorization code is required")
	}

	callCtx, cancel := context.WithTimeout(ctx, s.timeout)
	tokens, err := s.api.ExchangeCode(callCtx, code)
	cancel()
	if err != nil {
		return nil, s.tokenError(err)
	}

	conn := &model.StravaConnection{
		UserID:       p.UserID,
		AthleteID:    tokens.AthleteID,
		AccessToken:  tokens.AccessToken,
		RefreshToken: tokens.RefreshToken,
		ExpiresAt:    tokens.ExpiresAt,
	}
	if err := s.conns.Save(ctx, conn); err != nil {
		return nil, model.NewStoreUnavailableError(fmt.Errorf("Strava連携情報の保存に失敗しました: %w", err))
	}

	s.logger.Info("Stravaアカウントを連携しました",
		slog.String("user_id", p.UserID),
		slog.Int64("athlete_id", tokens.AthleteID),
	)

	return s.Sync(ctx, p)
}

// Sync はStravaの直近のアクティビティを取り込む。
// 同一ユーザーの同期は直列に実行する。
// 書き込みは1トランザクションで行い、失敗時は何も書き込まない。
func (s *Service) Sync(ctx context.Context, p authz.Principal) (res *Result, err error) {
	if err := authz.Require(p, authz.CapSyncActivities); err != nil {
		return nil, err
	}

	unlock := s.locks.Lock(p.UserID)
	defer unlock()

	start := time.Now()
	defer func() {
		s.metrics.RecordSyncLatency(time.Since(start))
		var apiErr *model.APIError
		switch {
		case err == nil:
			s.metrics.RecordSyncResult(metrics.OutcomeSuccess)
		case errors.As(err, &apiErr):
			s.metrics.RecordSyncResult(apiErr.Code)
		default:
			s.metrics.RecordSyncResult(metrics.OutcomeFailure)
		}
	}()

	conn, err := s.conns.FindByUserID(ctx, p.UserID)
	if err != nil {
		return nil, model.NewStoreUnavailableError(fmt.Errorf("Strava連携情報の取得に失敗しました: %w", err))
	}
	if conn == nil {
		return nil, model.NewStravaNotConnectedError()
	}

	accessToken, err := s.accessToken(ctx, conn)
	if err != nil {
		return nil, err
	}

	callCtx, cancel := context.WithTimeout(ctx, s.timeout)
	remote, err := s.api.ListActivities(callCtx, accessToken)
	cancel()
	if err != nil {
		if errors.Is(err, strava.ErrUnauthorized) {
			return nil, model.NewUpstreamAuthFailureError(err)
		}
		return nil, model.NewUpstreamUnavailableError(err)
	}

	now := s.now()
	mapped, skipped := strava.MapActivities(p.UserID, remote, now)

	current, err := s.challenges.FindCurrent(ctx, model.DayOf(now))
	if err != nil {
		return nil, model.NewStoreUnavailableError(fmt.Errorf("開催中チャレンジの取得に失敗しました: %w", err))
	}

	res = &Result{Fetched: len(remote), Skipped: skipped}
	if current != nil {
		res.ChallengeID = current.ID
		for _, a := range mapped {
			if activity.CountsToward(current, a.ActivityDate, a.ActivityType) {
				id := current.ID
				a.ChallengeID = &id
				res.Tagged++
			}
		}
	}

	imported, err := s.conns.ImportActivities(ctx, p.UserID, mapped, now)
	if err != nil {
		return nil, model.NewStoreUnavailableError(fmt.Errorf("アクティビティの取り込みに失敗しました: %w", err))
	}
	res.Inserted = imported.Inserted
	res.Updated = imported.Updated
	s.metrics.RecordActivitiesImported(imported.Inserted, imported.Updated, skipped)

	s.logger.Info("Strava同期が完了しました",
		slog.String("user_id", p.UserID),
		slog.Int("fetched", res.Fetched),
		slog.Int("inserted", res.Inserted),
		slog.Int("updated", res.Updated),
		slog.Int("skipped", res.Skipped),
		slog.Int("tagged", res.Tagged),
	)
	return res, nil
}

// accessToken は有効なアクセストークンを返す。期限切れの場合は更新して保存する。
// 他の処理が先に更新していた場合はそのトークンを使う。
func (s *Service) accessToken(ctx context.Context, conn *model.StravaConnection) (string, error) {
	if !conn.TokenExpired(s.now()) {
		return conn.AccessToken, nil
	}

	callCtx, cancel := context.WithTimeout(ctx, s.timeout)
	tokens, err := s.api.RefreshToken(callCtx, conn.RefreshToken)
	cancel()
	if err != nil {
		s.metrics.RecordTokenRefresh(metrics.OutcomeFailure)
		s.logger.Warn("Stravaトークンの更新に失敗しました",
			slog.String("user_id", conn.UserID),
			slog.String("error", err.Error()),
		)
		return "", s.tokenError(err)
	}
	s.metrics.RecordTokenRefresh(metrics.OutcomeSuccess)

	updated, err := s.conns.UpdateTokens(ctx, conn.UserID, conn.Version, tokens)
	if err != nil {
		return "", model.NewStoreUnavailableError(fmt.Errorf("Stravaトークンの保存に失敗しました: %w", err))
	}
	if updated {
		return tokens.AccessToken, nil
	}

	// 別プロセスが先に更新した
	winner, err := s.conns.FindByUserID(ctx, conn.UserID)
	if err != nil {
		return "", model.NewStoreUnavailableError(fmt.Errorf("Strava連携情報の再取得に失敗しました: %w", err))
	}
	if winner == nil {
		return "", model.NewStravaNotConnectedError()
	}
	if winner.TokenExpired(s.now()) {
		return "", model.NewUpstreamAuthFailureError(errors.New("token refreshed concurrently but still expired"))
	}
	s.logger.Info("Stravaトークンは別の処理で更新済みでした",
		slog.String("user_id", conn.UserID),
		slog.Int("version", winner.Version),
	)
	return winner.AccessToken, nil
}

// tokenError はトークンエンドポイントの失敗をAPIErrorに変換する。
// ブレーカー遮断中はUPSTREAM_UNAVAILABLEとする。
func (s *Service) tokenError(err error) error {
	if strava.IsCircuitOpen(err) {
		return model.NewUpstreamUnavailableError(err)
	}
	return model.NewUpstreamAuthFailureError(err)
}

// Status は連携状態を返す。
func (s *Service) Status(ctx context.Context, p authz.Principal) (*Status, error) {
	if p.UserID == "" {
		return nil, model.NewUnauthenticatedError()
	}
	conn, err := s.conns.FindByUserID(ctx, p.UserID)
	if err != nil {
		return nil, model.NewStoreUnavailableError(fmt.Errorf("Strava連携情報の取得に失敗しました: %w", err))
	}
	if conn == nil {
		return &Status{Connected: false}, nil
	}
	expiresAt := conn.ExpiresAt
	return &Status{
		Connected:    true,
		AthleteID:    conn.AthleteID,
		ExpiresAt:    &expiresAt,
		LastSyncedAt: conn.LastSyncedAt,
	}, nil
}

// Disconnect は保存済みの認証情報を削除する。取り込み済みのアクティビティは残す。
func (s *Service) Disconnect(ctx context.Context, p authz.Principal) error {
	if err := authz.Require(p, authz.CapSyncActivities); err != nil {
		return err
	}

	unlock := s.locks.Lock(p.UserID)
	defer unlock()

	if err := s.conns.Delete(ctx, p.UserID); err != nil {
		return model.NewStoreUnavailableError(fmt.Errorf("Strava連携情報の削除に失敗しました: %w", err))
	}
	s.logger.Info("Strava連携を解除しました",
		slog.String("user_id", p.UserID),
	)
	return nil
}
