package handler

import (
	"context"
	"errors"

	"github.com/hitoshi/movemonth/internal/activity"
	"github.com/hitoshi/movemonth/internal/authz"
	"github.com/hitoshi/movemonth/internal/challenge"
	"github.com/hitoshi/movemonth/internal/middleware"
	"github.com/hitoshi/movemonth/internal/model"
	"github.com/hitoshi/movemonth/internal/profile"
)

// --- モック定義 ---

type mockAuthService struct {
	getLoginURLFn    func(state string) string
	handleCallbackFn func(ctx context.Context, code string) (*model.Session, error)
	logoutFn         func(ctx context.Context, sessionID string) error
	meFn             func(ctx context.Context, p authz.Principal) (*model.Profile, error)
}

func (m *mockAuthService) GetLoginURL(state string) string {
	if m.getLoginURLFn != nil {
		return m.getLoginURLFn(state)
	}
	return ""
}

func (m *mockAuthService) HandleCallback(ctx context.Context, code string) (*model.Session, error) {
	if m.handleCallbackFn != nil {
		return m.handleCallbackFn(ctx, code)
	}
	return nil, errors.New("not implemented")
}

func (m *mockAuthService) Logout(ctx context.Context, sessionID string) error {
	if m.logoutFn != nil {
		return m.logoutFn(ctx, sessionID)
	}
	return nil
}

func (m *mockAuthService) Me(ctx context.Context, p authz.Principal) (*model.Profile, error) {
	if m.meFn != nil {
		return m.meFn(ctx, p)
	}
	return nil, model.NewProfileNotFoundError()
}

type mockProfileService struct {
	getFn    func(ctx context.Context, p authz.Principal) (*model.Profile, error)
	updateFn func(ctx context.Context, p authz.Principal, in profile.UpdateInput) (*model.Profile, error)
}

func (m *mockProfileService) Get(ctx context.Context, p authz.Principal) (*model.Profile, error) {
	return m.getFn(ctx, p)
}

func (m *mockProfileService) Update(ctx context.Context, p authz.Principal, in profile.UpdateInput) (*model.Profile, error) {
	return m.updateFn(ctx, p, in)
}

type mockChallengeService struct {
	createFn        func(ctx context.Context, p authz.Principal, in challenge.CreateInput) (*model.Challenge, error)
	getFn           func(ctx context.Context, id string) (*model.Challenge, error)
	currentFn       func(ctx context.Context) (*model.Challenge, error)
	listUpcomingFn  func(ctx context.Context) ([]*model.Challenge, error)
	listCompletedFn func(ctx context.Context) ([]*model.Challenge, error)
	listAllFn       func(ctx context.Context) ([]*model.Challenge, error)
}

func (m *mockChallengeService) Create(ctx context.Context, p authz.Principal, in challenge.CreateInput) (*model.Challenge, error) {
	return m.createFn(ctx, p, in)
}

func (m *mockChallengeService) Get(ctx context.Context, id string) (*model.Challenge, error) {
	return m.getFn(ctx, id)
}

func (m *mockChallengeService) Current(ctx context.Context) (*model.Challenge, error) {
	return m.currentFn(ctx)
}

func (m *mockChallengeService) ListUpcoming(ctx context.Context) ([]*model.Challenge, error) {
	return m.listUpcomingFn(ctx)
}

func (m *mockChallengeService) ListCompleted(ctx context.Context) ([]*model.Challenge, error) {
	return m.listCompletedFn(ctx)
}

func (m *mockChallengeService) ListAll(ctx context.Context) ([]*model.Challenge, error) {
	return m.listAllFn(ctx)
}

type mockActivityService struct {
	recordFn   func(ctx context.Context, p authz.Principal, in activity.RecordInput) (*model.Activity, error)
	listMineFn func(ctx context.Context, p authz.Principal, q activity.ListQuery) (*activity.ActivityPage, error)
}

func (m *mockActivityService) Record(ctx context.Context, p authz.Principal, in activity.RecordInput) (*model.Activity, error) {
	return m.recordFn(ctx, p, in)
}

func (m *mockActivityService) ListMine(ctx context.Context, p authz.Principal, q activity.ListQuery) (*activity.ActivityPage, error) {
	return m.listMineFn(ctx, p, q)
}

type mockLeaderboardService struct {
	forChallengeFn func(ctx context.Context, p authz.Principal, id string) (*leaderboardResponse, error)
	currentFn      func(ctx context.Context, p authz.Principal) (*leaderboardResponse, error)
}

func (m *mockLeaderboardService) ForChallenge(ctx context.Context, p authz.Principal, id string) (*leaderboardResponse, error) {
	return m.forChallengeFn(ctx, p, id)
}

func (m *mockLeaderboardService) Current(ctx context.Context, p authz.Principal) (*leaderboardResponse, error) {
	return m.currentFn(ctx, p)
}

type mockStravaService struct {
	authorizeURLFn func(state string) string
	connectFn      func(ctx context.Context, p authz.Principal, code string) (*syncResponse, error)
	syncFn         func(ctx context.Context, p authz.Principal) (*syncResponse, error)
	statusFn       func(ctx context.Context, p authz.Principal) (*stravaStatusResponse, error)
	disconnectFn   func(ctx context.Context, p authz.Principal) error
}

func (m *mockStravaService) AuthorizeURL(state string) string {
	if m.authorizeURLFn != nil {
		return m.authorizeURLFn(state)
	}
	return "https://www.strava.com/oauth/authorize?state=" + state
}

func (m *mockStravaService) Connect(ctx context.Context, p authz.Principal, code string) (*syncResponse, error) {
	return m.connectFn(ctx, p, code)
}

func (m *mockStravaService) Sync(ctx context.Context, p authz.Principal) (*syncResponse, error) {
	return m.syncFn(ctx, p)
}

func (m *mockStravaService) Status(ctx context.Context, p authz.Principal) (*stravaStatusResponse, error) {
	return m.statusFn(ctx, p)
}

func (m *mockStravaService) Disconnect(ctx context.Context, p authz.Principal) error {
	return m.disconnectFn(ctx, p)
}

// mockResolver はセッショントークンと主体の対応表で解決する。
type mockResolver struct {
	principals map[string]authz.Principal
	err        error
}

func (m *mockResolver) Resolve(ctx context.Context, token string) (authz.Principal, error) {
	if m.err != nil {
		return authz.Principal{}, m.err
	}
	if p, ok := m.principals[token]; ok {
		return p, nil
	}
	return authz.Principal{}, model.NewUnauthenticatedError()
}

// --- compile-time interface checks ---
var (
	_ AuthServiceInterface         = (*mockAuthService)(nil)
	_ ProfileServiceInterface      = (*mockProfileService)(nil)
	_ ChallengeServiceInterface    = (*mockChallengeService)(nil)
	_ ActivityServiceInterface     = (*mockActivityService)(nil)
	_ LeaderboardServiceInterface  = (*mockLeaderboardService)(nil)
	_ StravaServiceInterface       = (*mockStravaService)(nil)
	_ middleware.PrincipalResolver = (*mockResolver)(nil)
)

var (
	employeePrincipal = authz.Principal{UserID: "user-1", Role: model.RoleEmployee}
	adminPrincipal    = authz.Principal{UserID: "admin-1", Role: model.RoleAdmin}
)

// withPrincipal はセッションミドルウェアを通過した状態のコンテキストを作る。
func withPrincipal(ctx context.Context, p authz.Principal) context.Context {
	return middleware.ContextWithPrincipal(ctx, p)
}
