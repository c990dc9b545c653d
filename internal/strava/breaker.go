package strava

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	gobreaker "github.com/sony/gobreaker/v2"

	"github.com/hitoshi/movemonth/internal/model"
)

// BreakerSettings はサーキットブレーカーの設定。
type BreakerSettings struct {
	// MinRequests は遮断判定に必要な最小リクエスト数。
	MinRequests uint32
	// FailureRatio はこの割合以上失敗した場合に遮断する。
	FailureRatio float64
	// OpenTimeout は遮断から半開状態に移るまでの時間。
	OpenTimeout time.Duration
}

// DefaultBreakerSettings はデフォルトの設定を返す。
func DefaultBreakerSettings() BreakerSettings {
	return BreakerSettings{
		MinRequests:  5,
		FailureRatio: 0.6,
		OpenTimeout:  time.Minute,
	}
}

// BreakerClient はStrava API呼び出しをサーキットブレーカーで保護する。
// 遮断中の呼び出しはgobreaker.ErrOpenStateを返す。
// 401はStrava側の障害ではないため失敗として数えない。
type BreakerClient struct {
	api API
	cb  *gobreaker.CircuitBreaker[any]
}

// NewBreakerClient はBreakerClientを生成する。
func NewBreakerClient(api API, logger *slog.Logger, settings BreakerSettings) *BreakerClient {
	cb := gobreaker.NewCircuitBreaker[any](gobreaker.Settings{
		Name:        "strava-api",
		MaxRequests: 1,
		Interval:    time.Minute,
		Timeout:     settings.OpenTimeout,
		ReadyToTrip: func(counts gobreaker.Counts) bool {
			if counts.Requests < settings.MinRequests {
				return false
			}
			return float64(counts.TotalFailures)/float64(counts.Requests) >= settings.FailureRatio
		},
		IsSuccessful: func(err error) bool {
			return err == nil || errors.Is(err, ErrUnauthorized) || errors.Is(err, context.Canceled)
		},
		OnStateChange: func(name string, from, to gobreaker.State) {
			logger.Warn("サーキットブレーカーの状態が変化しました",
				slog.String("breaker", name),
				slog.String("from", from.String()),
				slog.String("to", to.String()),
			)
		},
	})
	return &BreakerClient{api: api, cb: cb}
}

// State は現在のブレーカー状態を返す。
func (b *BreakerClient) State() gobreaker.State {
	return b.cb.State()
}

// AuthorizeURL は外部呼び出しを伴わないためブレーカーを通さない。
func (b *BreakerClient) AuthorizeURL(state string) string {
	return b.api.AuthorizeURL(state)
}

// ExchangeCode は認可コードをトークンに交換する。
func (b *BreakerClient) ExchangeCode(ctx context.Context, code string) (model.StravaTokens, error) {
	return castResult[model.StravaTokens](b.cb.Execute(func() (any, error) {
		return b.api.ExchangeCode(ctx, code)
	}))
}

// RefreshToken はアクセストークンを更新する。
func (b *BreakerClient) RefreshToken(ctx context.Context, refreshToken string) (model.StravaTokens, error) {
	return castResult[model.StravaTokens](b.cb.Execute(func() (any, error) {
		return b.api.RefreshToken(ctx, refreshToken)
	}))
}

// ListActivities はアクティビティ一覧を取得する。
func (b *BreakerClient) ListActivities(ctx context.Context, accessToken string) ([]Activity, error) {
	return castResult[[]Activity](b.cb.Execute(func() (any, error) {
		return b.api.ListActivities(ctx, accessToken)
	}))
}

func castResult[T any](result any, err error) (T, error) {
	var zero T
	if err != nil {
		return zero, err
	}
	typed, ok := result.(T)
	if !ok {
		return zero, fmt.Errorf("circuit breaker: unexpected result type %T", result)
	}
	return typed, nil
}

// IsCircuitOpen はエラーがブレーカーによる遮断を示すかを返す。
func IsCircuitOpen(err error) bool {
	return errors.Is(err, gobreaker.ErrOpenState) || errors.Is(err, gobreaker.ErrTooManyRequests)
}

// compile-time interface check
var _ API = (*BreakerClient)(nil)
