package model

import "time"

// StravaConnection はユーザーとStravaアカウントの連携情報を表す。
// Versionはトークン更新の楽観的排他制御に使用する。
type StravaConnection struct {
	UserID       string
	AthleteID    int64
	AccessToken  string
	RefreshToken string
	ExpiresAt    time.Time
	Version      int
	LastSyncedAt *time.Time
	CreatedAt    time.Time
	UpdatedAt    time.Time
}

// TokenExpired はアクセストークンが期限切れ（expires_at <= now）かを返す。
func (c *StravaConnection) TokenExpired(now time.Time) bool {
	return !c.ExpiresAt.After(now)
}

// StravaTokens はトークンエンドポイントから取得した認証情報。
type StravaTokens struct {
	AccessToken  string
	RefreshToken string
	ExpiresAt    time.Time
	AthleteID    int64
}
