// Package model はドメインモデルを定義する。
package model

import "fmt"

// APIError は統一エラーフォーマットを表す。
// UIに表示する原因カテゴリと対処方法を含む。
type APIError struct {
	Code     string // エラーコード
	Message  string // エラーメッセージ
	Category string // カテゴリ: auth, validation, challenge, activity, strava, system
	Action   string // ユーザー向け対処方法
	Err      error  // 原因となったエラー（ログ用。レスポンスには含めない）
}

// Error はerrorインターフェースを実装する。
func (e *APIError) Error() string {
	if e.Err != nil {
		return fmt.Sprintf("[%s] %s: %v", e.Code, e.Message, e.Err)
	}
	return fmt.Sprintf("[%s] %s", e.Code, e.Message)
}

// Unwrap は原因となったエラーを返す。
func (e *APIError) Unwrap() error {
	return e.Err
}

// 定義済みエラーコード
const (
	ErrCodeInvalidInput        = "INVALID_INPUT"
	ErrCodeUnauthenticated     = "UNAUTHENTICATED"
	ErrCodeForbidden           = "FORBIDDEN"
	ErrCodeOutOfWindow         = "OUT_OF_WINDOW"
	ErrCodeChallengeNotFound   = "CHALLENGE_NOT_FOUND"
	ErrCodeProfileNotFound     = "PROFILE_NOT_FOUND"
	ErrCodeNoCurrentChallenge  = "NO_CURRENT_CHALLENGE"
	ErrCodeChallengeOverlap    = "CHALLENGE_OVERLAP"
	ErrCodeStravaNotConnected  = "STRAVA_NOT_CONNECTED"
	ErrCodeUpstreamUnavailable = "UPSTREAM_UNAVAILABLE"
	ErrCodeUpstreamAuthFailure = "UPSTREAM_AUTH_FAILURE"
	ErrCodeStoreUnavailable    = "STORE_UNAVAILABLE"
)

// IsNotFound はエラーコードが参照先未検出の系統かを返す。
func (e *APIError) IsNotFound() bool {
	switch e.Code {
	case ErrCodeChallengeNotFound, ErrCodeProfileNotFound, ErrCodeNoCurrentChallenge, ErrCodeStravaNotConnected:
		return true
	default:
		return false
	}
}

// Retryable は時間をおいた再試行で成功しうる障害かを返す。
func (e *APIError) Retryable() bool {
	switch e.Code {
	case ErrCodeUpstreamUnavailable, ErrCodeStoreUnavailable:
		return true
	default:
		return false
	}
}

// NewInvalidInputError は入力値不正エラーを生成する。
// reasonはそのままユーザーに表示される。
func NewInvalidInputError(reason string) *APIError {
	return &APIError{
		Code:     ErrCodeInvalidInput,
		Message:  reason,
		Category: "validation",
		Action:   "入力内容を確認してください。",
	}
}

// NewUnauthenticatedError は未認証エラーを生成する。
func NewUnauthenticatedError() *APIError {
	return &APIError{
		Code:     ErrCodeUnauthenticated,
		Message:  "認証が必要です。",
		Category: "auth",
		Action:   "ログインしてください。",
	}
}

// NewForbiddenError は権限不足エラーを生成する。
func NewForbiddenError(operation string) *APIError {
	return &APIError{
		Code:     ErrCodeForbidden,
		Message:  fmt.Sprintf("この操作を実行する権限がありません: %s", operation),
		Category: "auth",
		Action:   "管理者に問い合わせてください。",
	}
}

// NewOutOfWindowError はアクティビティ日付がチャレンジ期間外の場合のエラーを生成する。
func NewOutOfWindowError(c *Challenge) *APIError {
	return &APIError{
		Code: ErrCodeOutOfWindow,
		Message: fmt.Sprintf("アクティビティの日付はチャレンジ期間内（%s〜%s）である必要があります。",
			c.StartDate.Format(DateLayout), c.EndDate.Format(DateLayout)),
		Category: "activity",
		Action:   "チャレンジ期間内の日付を指定してください。",
	}
}

// NewChallengeNotFoundError はチャレンジ未検出エラーを生成する。
func NewChallengeNotFoundError(challengeID string) *APIError {
	return &APIError{
		Code:     ErrCodeChallengeNotFound,
		Message:  fmt.Sprintf("指定されたチャレンジが見つかりません: %s", challengeID),
		Category: "challenge",
		Action:   "チャレンジIDを確認してください。",
	}
}

// NewProfileNotFoundError はプロフィール未検出エラーを生成する。
func NewProfileNotFoundError() *APIError {
	return &APIError{
		Code:     ErrCodeProfileNotFound,
		Message:  "プロフィールが見つかりません。",
		Category: "auth",
		Action:   "ログインし直してください。",
	}
}

// NewNoCurrentChallengeError は開催中のチャレンジがない場合のエラーを生成する。
func NewNoCurrentChallengeError() *APIError {
	return &APIError{
		Code:     ErrCodeNoCurrentChallenge,
		Message:  "現在開催中のチャレンジはありません。",
		Category: "challenge",
		Action:   "次のチャレンジの開始をお待ちください。",
	}
}

// NewChallengeOverlapError は既存チャレンジと期間が重なる場合のエラーを生成する。
func NewChallengeOverlapError(existing *Challenge) *APIError {
	return &APIError{
		Code: ErrCodeChallengeOverlap,
		Message: fmt.Sprintf("既存のチャレンジ「%s」（%s〜%s）と期間が重なっています。",
			existing.Title, existing.StartDate.Format(DateLayout), existing.EndDate.Format(DateLayout)),
		Category: "challenge",
		Action:   "他のチャレンジと重ならない期間を指定してください。",
	}
}

// NewStravaNotConnectedError はStrava未連携エラーを生成する。
func NewStravaNotConnectedError() *APIError {
	return &APIError{
		Code:     ErrCodeStravaNotConnected,
		Message:  "Stravaアカウントが連携されていません。",
		Category: "strava",
		Action:   "Stravaと連携してから同期してください。",
	}
}

// NewUpstreamUnavailableError はStrava APIの呼び出し失敗エラーを生成する。
func NewUpstreamUnavailableError(err error) *APIError {
	return &APIError{
		Code:     ErrCodeUpstreamUnavailable,
		Message:  "Stravaからアクティビティを取得できませんでした。",
		Category: "strava",
		Action:   "しばらく待ってから再度同期してください。",
		Err:      err,
	}
}

// NewUpstreamAuthFailureError はStravaの認証情報の交換・更新失敗エラーを生成する。
func NewUpstreamAuthFailureError(err error) *APIError {
	return &APIError{
		Code:     ErrCodeUpstreamAuthFailure,
		Message:  "Stravaの認証に失敗しました。",
		Category: "strava",
		Action:   "Stravaと再連携してください。",
		Err:      err,
	}
}

// NewStoreUnavailableError は永続化層の失敗エラーを生成する。
func NewStoreUnavailableError(err error) *APIError {
	return &APIError{
		Code:     ErrCodeStoreUnavailable,
		Message:  "データの読み書きに失敗しました。",
		Category: "system",
		Action:   "しばらく待ってから再度お試しください。",
		Err:      err,
	}
}
