package model

import "time"

// ActivitySource はアクティビティの登録経路を表す。
type ActivitySource string

const (
	// ActivitySourceManual は手入力されたアクティビティ。
	ActivitySourceManual ActivitySource = "manual"
	// ActivitySourceStrava はStrava同期で取り込まれたアクティビティ。
	ActivitySourceStrava ActivitySource = "strava"
)

// Activity は1回の運動記録を表す。
type Activity struct {
	ID           string
	UserID       string
	ChallengeID  *string // 同期で取り込まれ、どのチャレンジにも属さない場合はnil
	ActivityType ActivityType
	Distance     float64 // km
	Duration     *int    // 秒。同期時のみ設定される
	ActivityDate time.Time
	Source       ActivitySource
	ExternalID   string // Strava側のアクティビティID。手入力の場合は空
	CreatedAt    time.Time
	UpdatedAt    time.Time
}

// ParticipantTotal はチャレンジ内の参加者ごとの合計距離の集計行。
// リポジトリのGROUP BY結果をそのまま表す。
type ParticipantTotal struct {
	UserID        string
	FullName      string
	Department    string
	TotalDistance float64
	ActivityCount int
}
