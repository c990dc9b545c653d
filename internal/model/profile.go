// Package model はドメインモデルを定義する。
package model

import "time"

// Role はプロフィールの権限ロールを表す。
// admin と employee の2値のみを取る閉じた型。
type Role string

const (
	// RoleAdmin はチャレンジを作成できる管理者ロール。
	RoleAdmin Role = "admin"
	// RoleEmployee は一般参加者ロール。
	RoleEmployee Role = "employee"
)

// NormalizeRole はDBに保存された文字列をRoleに変換する。
// 未知の値は最小権限のRoleEmployeeとして扱う。
func NormalizeRole(s string) Role {
	switch Role(s) {
	case RoleAdmin:
		return RoleAdmin
	default:
		return RoleEmployee
	}
}

// Profile は認証済みの参加者1人を表す。
// 初回ログイン時に作成され、削除されない。
type Profile struct {
	ID         string
	Email      string
	FullName   string // 任意
	Role       Role
	Department string // 任意
	JobTitle   string // 任意
	CreatedAt  time.Time
	UpdatedAt  time.Time
}

// DisplayName はリーダーボード等で表示する名前を返す。
// 氏名が未設定の場合は匿名のプレースホルダーを返す。
func (p *Profile) DisplayName() string {
	if p.FullName == "" {
		return AnonymousName
	}
	return p.FullName
}

// AnonymousName は氏名未設定の参加者に使う表示名。
const AnonymousName = "Anonymous"

// Identity は外部IdPとの紐付け情報を表す。
type Identity struct {
	ID             string
	ProfileID      string
	Provider       string
	ProviderUserID string
	CreatedAt      time.Time
}

// Session はユーザーのログインセッションを表す。
type Session struct {
	ID        string
	UserID    string
	ExpiresAt time.Time
	CreatedAt time.Time
}
