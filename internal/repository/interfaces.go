// Package repository はデータ永続化のインターフェースを定義する。
package repository

import (
	"context"
	"time"

	"github.com/hitoshi/movemonth/internal/model"
)

// ProfileRepository はプロフィールデータの永続化インターフェース。
type ProfileRepository interface {
	// FindByID は指定IDのプロフィールを取得する。見つからない場合はnilを返す。
	FindByID(ctx context.Context, id string) (*model.Profile, error)

	// CreateWithIdentity はプロフィールとidentityを同一トランザクションで作成する。
	CreateWithIdentity(ctx context.Context, profile *model.Profile, identity *model.Identity) error

	// FindByIdentity は外部IdPのアカウントに紐付くプロフィールを取得する。
	// 見つからない場合はnilを返す。
	FindByIdentity(ctx context.Context, provider, providerUserID string) (*model.Profile, error)

	// UpdateDetails は氏名・部署・役職を更新し、更新後のプロフィールを返す。
	// ロールは変更しない。見つからない場合はnilを返す。
	UpdateDetails(ctx context.Context, id string, details ProfileDetails) (*model.Profile, error)
}

// ProfileDetails は本人が編集可能なプロフィール項目。
type ProfileDetails struct {
	FullName   string
	Department string
	JobTitle   string
}

// SessionRepository はセッションデータの永続化インターフェース。
type SessionRepository interface {
	// Create はセッションを作成する。
	Create(ctx context.Context, session *model.Session) error
	// FindByID は指定IDのセッションを取得する。期限切れの場合はnilを返す。
	FindByID(ctx context.Context, id string) (*model.Session, error)
	// DeleteByID は指定IDのセッションを削除する。
	DeleteByID(ctx context.Context, id string) error
	// DeleteExpired はbefore時点で期限切れのセッションを削除し、削除件数を返す。
	DeleteExpired(ctx context.Context, before time.Time) (int64, error)
}

// ChallengeRepository はチャレンジデータの永続化インターフェース。
// dayはUTC 0時の暦日を渡す。
type ChallengeRepository interface {
	// FindByID は指定IDのチャレンジを取得する。見つからない場合はnilを返す。
	FindByID(ctx context.Context, id string) (*model.Challenge, error)

	// FindCurrent はdayを期間に含むチャレンジを取得する。見つからない場合はnilを返す。
	// 複数該当する場合は開始日が最も遅いものを返す。
	FindCurrent(ctx context.Context, day time.Time) (*model.Challenge, error)

	// CreateIfNoOverlap は期間が重なる既存チャレンジがなければ作成する。
	// 重なるチャレンジが存在する場合は作成せずにそのチャレンジを返す。
	CreateIfNoOverlap(ctx context.Context, challenge *model.Challenge) (*model.Challenge, error)

	// ListUpcoming は開始日がdayより後のチャレンジを開始日の昇順で返す。
	ListUpcoming(ctx context.Context, day time.Time) ([]*model.Challenge, error)

	// ListCompleted は終了日がdayより前のチャレンジを終了日の降順で返す。
	ListCompleted(ctx context.Context, day time.Time) ([]*model.Challenge, error)

	// ListAll は全チャレンジを開始日の降順で返す。
	ListAll(ctx context.Context) ([]*model.Challenge, error)
}

// ActivityRepository はアクティビティデータの永続化インターフェース。
type ActivityRepository interface {
	// Create は手入力のアクティビティを作成する。
	Create(ctx context.Context, activity *model.Activity) error

	// ListByUser はユーザーのアクティビティを活動日の降順でoffset件目からlimit件返す。
	// challengeIDが空でない場合はそのチャレンジに属するものに絞り込む。
	ListByUser(ctx context.Context, userID, challengeID string, limit, offset int) ([]*model.Activity, error)

	// TotalsByChallenge はチャレンジに属するアクティビティの距離をユーザーごとに合計する。
	// 並び順は保証しない。
	TotalsByChallenge(ctx context.Context, challengeID string) ([]model.ParticipantTotal, error)
}

// ImportResult は同期取り込みの書き込み結果。
type ImportResult struct {
	Inserted int
	Updated  int
}

// StravaConnectionRepository はStrava連携情報の永続化インターフェース。
type StravaConnectionRepository interface {
	// FindByUserID はユーザーの連携情報を取得する。見つからない場合はnilを返す。
	FindByUserID(ctx context.Context, userID string) (*model.StravaConnection, error)

	// Save は連携情報を作成または置き換える。versionはインクリメントされる。
	Save(ctx context.Context, conn *model.StravaConnection) error

	// UpdateTokens は保存済みversionがexpectedVersionと一致する場合のみトークンを更新する。
	// 他の更新に先を越された場合はfalseを返す。
	UpdateTokens(ctx context.Context, userID string, expectedVersion int, tokens model.StravaTokens) (bool, error)

	// Delete は連携情報を削除する。存在しない場合もエラーにしない。
	Delete(ctx context.Context, userID string) error

	// ImportActivities は同期したアクティビティを1トランザクションでUPSERTし、
	// 同じトランザクション内でlast_synced_atを更新する。
	// 途中で失敗した場合は何も書き込まない。
	ImportActivities(ctx context.Context, userID string, activities []*model.Activity, syncedAt time.Time) (ImportResult, error)
}
