// Package authz はロールに基づく操作可否の判定と、
// セッションから認証済み主体を解決する認可ゲートを提供する。
package authz

import (
	"context"
	"fmt"

	"github.com/hitoshi/movemonth/internal/model"
)

// Capability は認可判定の対象となる操作を表す。
type Capability string

const (
	CapCreateChallenge Capability = "create_challenge"
	CapRecordActivity  Capability = "record_activity"
	CapSyncActivities  Capability = "sync_activities"
	CapViewLeaderboard Capability = "view_leaderboard"
	CapEditOwnProfile  Capability = "edit_own_profile"
)

// Can はロールが操作を実行できるかを返す。
// 未知のロールは何も実行できない。
func Can(role model.Role, c Capability) bool {
	switch role {
	case model.RoleAdmin:
		return true
	case model.RoleEmployee:
		return c == CapRecordActivity || c == CapSyncActivities ||
			c == CapViewLeaderboard || c == CapEditOwnProfile
	default:
		return false
	}
}

// Principal は認証済みのリクエスト主体。
// アクティビティの所有者は常にUserIDで決まり、リクエストから他人を指定することはできない。
type Principal struct {
	UserID string
	Role   model.Role
}

// Require は主体が操作を実行できない場合にFORBIDDENエラーを返す。
func Require(p Principal, c Capability) error {
	if p.UserID == "" {
		return model.NewUnauthenticatedError()
	}
	if !Can(p.Role, c) {
		return model.NewForbiddenError(string(c))
	}
	return nil
}

// SessionFinder はセッションの検索に必要なインターフェース。
// repository.SessionRepositoryの部分集合として定義する。
type SessionFinder interface {
	FindByID(ctx context.Context, id string) (*model.Session, error)
}

// ProfileFinder はプロフィールの検索に必要なインターフェース。
type ProfileFinder interface {
	FindByID(ctx context.Context, id string) (*model.Profile, error)
}

// Gate はセッショントークンを認証済み主体に解決する。
type Gate struct {
	sessions SessionFinder
	profiles ProfileFinder
}

// NewGate はGateを生成する。
func NewGate(sessions SessionFinder, profiles ProfileFinder) *Gate {
	return &Gate{sessions: sessions, profiles: profiles}
}

// Resolve はセッショントークンから主体を解決する。
// トークンが空・無効・期限切れ、またはプロフィールが存在しない場合はUNAUTHENTICATEDを返す。
// 永続化層の失敗はSTORE_UNAVAILABLEとして返す。
func (g *Gate) Resolve(ctx context.Context, token string) (Principal, error) {
	if token == "" {
		return Principal{}, model.NewUnauthenticatedError()
	}

	session, err := g.sessions.FindByID(ctx, token)
	if err != nil {
		return Principal{}, model.NewStoreUnavailableError(fmt.Errorf("find session: %w", err))
	}
	if session == nil {
		return Principal{}, model.NewUnauthenticatedError()
	}

	profile, err := g.profiles.FindByID(ctx, session.UserID)
	if err != nil {
		return Principal{}, model.NewStoreUnavailableError(fmt.Errorf("find profile: %w", err))
	}
	if profile == nil {
		return Principal{}, model.NewUnauthenticatedError()
	}

	return Principal{UserID: profile.ID, Role: profile.Role}, nil
}
