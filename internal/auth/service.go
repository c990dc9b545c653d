// Package auth はGoogleアカウントによるサインインとセッション管理を提供する。
package auth

import (
	"context"
	"crypto/rand"
	"encoding/hex"
	"fmt"
	"log/slog"
	"time"

	"github.com/google/uuid"
	"github.com/hitoshi/movemonth/internal/authz"
	"github.com/hitoshi/movemonth/internal/model"
	"github.com/hitoshi/movemonth/internal/repository"
)

// OAuthUserInfo はOAuthプロバイダーから取得したアカウント情報を表す。
type OAuthUserInfo struct {
	ProviderUserID string
	Email          string
	Name           string
	Provider       string
}

// OAuthProvider はサインインに使うOAuthプロバイダーのインターフェース。
type OAuthProvider interface {
	// GetLoginURL は認証URLを生成する。
	GetLoginURL(state string) string
	// ExchangeCode は認可コードを交換し、アカウント情報を取得する。
	ExchangeCode(ctx context.Context, code string) (*OAuthUserInfo, error)
}

// ServiceConfig は認証サービスの設定。
type ServiceConfig struct {
	SessionMaxAge int // セッション有効期間（秒）

	// IsAdminEmail は初回サインイン時に管理者ロールを付与するかを判定する。
	// nilの場合は全員employeeとなる。
	IsAdminEmail func(email string) bool
}

// Service はサインインに関するビジネスロジックを提供する。
type Service struct {
	oauth    OAuthProvider
	profiles repository.ProfileRepository
	sessions repository.SessionRepository
	config   ServiceConfig
	now      func() time.Time
}

// NewService はServiceを生成する。
func NewService(
	oauth OAuthProvider,
	profiles repository.ProfileRepository,
	sessions repository.SessionRepository,
	config ServiceConfig,
) *Service {
	return &Service{
		oauth:    oauth,
		profiles: profiles,
		sessions: sessions,
		config:   config,
		now:      time.Now,
	}
}

// GetLoginURL はOAuth認証URLを生成する。
func (s *Service) GetLoginURL(state string) string {
	return s.oauth.GetLoginURL(state)
}

// HandleCallback はOAuthコールバックを処理し、セッションを発行する。
// 未登録のアカウントの場合はプロフィールとidentityを同一トランザクションで作成する。
// ロールは作成時にのみ決定し、以後のサインインでは変更しない。
func (s *Service) HandleCallback(ctx context.Context, code string) (*model.Session, error) {
	info, err := s.oauth.ExchangeCode(ctx, code)
	if err != nil {
		return nil, fmt.Errorf("failed to exchange oauth code: %w", err)
	}

	profile, err := s.profiles.FindByIdentity(ctx, info.Provider, info.ProviderUserID)
	if err != nil {
		return nil, model.NewStoreUnavailableError(fmt.Errorf("identityの検索に失敗しました: %w", err))
	}

	if profile != nil {
		slog.Info("existing profile signed in",
			slog.String("user_id", profile.ID),
			slog.String("provider", info.Provider),
		)
	} else {
		profile, err = s.createProfile(ctx, info)
		if err != nil {
			return nil, err
		}
	}

	session, err := s.createSession(ctx, profile.ID)
	if err != nil {
		return nil, model.NewStoreUnavailableError(fmt.Errorf("セッションの作成に失敗しました: %w", err))
	}
	return session, nil
}

func (s *Service) createProfile(ctx context.Context, info *OAuthUserInfo) (*model.Profile, error) {
	now := s.now()
	role := model.RoleEmployee
	if s.config.IsAdminEmail != nil && s.config.IsAdminEmail(info.Email) {
		role = model.RoleAdmin
	}

	profile := &model.Profile{
		ID:        uuid.New().String(),
		Email:     info.Email,
		FullName:  info.Name,
		Role:      role,
		CreatedAt: now,
		UpdatedAt: now,
	}
	identity := &model.Identity{
		ID:             uuid.New().String(),
		ProfileID:      profile.ID,
		Provider:       info.Provider,
		ProviderUserID: info.ProviderUserID,
		CreatedAt:      now,
	}

	if err := s.profiles.CreateWithIdentity(ctx, profile, identity); err != nil {
		return nil, model.NewStoreUnavailableError(fmt.Errorf("プロフィールの作成に失敗しました: %w", err))
	}

	slog.Info("new profile created",
		slog.String("user_id", profile.ID),
		slog.String("role", string(role)),
		slog.String("provider", info.Provider),
	)
	return profile, nil
}

// Logout はセッションを破棄する。
func (s *Service) Logout(ctx context.Context, sessionID string) error {
	if sessionID == "" {
		return model.NewUnauthenticatedError()
	}
	if err := s.sessions.DeleteByID(ctx, sessionID); err != nil {
		return model.NewStoreUnavailableError(fmt.Errorf("セッションの削除に失敗しました: %w", err))
	}
	slog.Info("user logged out")
	return nil
}

// Me は認証済み主体のプロフィールを返す。
func (s *Service) Me(ctx context.Context, p authz.Principal) (*model.Profile, error) {
	if p.UserID == "" {
		return nil, model.NewUnauthenticatedError()
	}
	profile, err := s.profiles.FindByID(ctx, p.UserID)
	if err != nil {
		return nil, model.NewStoreUnavailableError(fmt.Errorf("プロフィールの取得に失敗しました: %w", err))
	}
	if profile == nil {
		return nil, model.NewProfileNotFoundError()
	}
	return profile, nil
}

func (s *Service) createSession(ctx context.Context, userID string) (*model.Session, error) {
	sessionID, err := generateSessionID()
	if err != nil {
		return nil, fmt.Errorf("failed to generate session ID: %w", err)
	}

	now := s.now()
	session := &model.Session{
		ID:        sessionID,
		UserID:    userID,
		ExpiresAt: now.Add(time.Duration(s.config.SessionMaxAge) * time.Second),
		CreatedAt: now,
	}
	if err := s.sessions.Create(ctx, session); err != nil {
		return nil, fmt.Errorf("failed to save session: %w", err)
	}
	return session, nil
}

// generateSessionID は256bitの乱数からセッションIDを生成する。
func generateSessionID() (string, error) {
	b := make([]byte, 32)
	if _, err := rand.Read(b); err != nil {
		return "", err
	}
	return hex.EncodeToString(b), nil
}
