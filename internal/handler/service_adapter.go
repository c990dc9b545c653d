package handler

import (
	"context"

	"github.com/hitoshi/movemonth/internal/authz"
	"github.com/hitoshi/movemonth/internal/leaderboard"
	"github.com/hitoshi/movemonth/internal/stravasync"
)

// LeaderboardServiceAdapter は leaderboard.Service を LeaderboardServiceInterface に適合させるアダプタ。
type LeaderboardServiceAdapter struct {
	svc *leaderboard.Service
}

// NewLeaderboardServiceAdapter はLeaderboardServiceAdapterを生成する。
func NewLeaderboardServiceAdapter(svc *leaderboard.Service) *LeaderboardServiceAdapter {
	return &LeaderboardServiceAdapter{svc: svc}
}

// ForChallenge は指定チャレンジのリーダーボードをhandlerレスポンス型で返す。
func (a *LeaderboardServiceAdapter) ForChallenge(ctx context.Context, p authz.Principal, challengeID string) (*leaderboardResponse, error) {
	board, err := a.svc.ForChallenge(ctx, p, challengeID)
	if err != nil {
		return nil, err
	}
	return toLeaderboardResponse(board), nil
}

// Current は開催中チャレンジのリーダーボードをhandlerレスポンス型で返す。
func (a *LeaderboardServiceAdapter) Current(ctx context.Context, p authz.Principal) (*leaderboardResponse, error) {
	board, err := a.svc.Current(ctx, p)
	if err != nil {
		return nil, err
	}
	return toLeaderboardResponse(board), nil
}

func toLeaderboardResponse(b *leaderboard.Board) *leaderboardResponse {
	entries := make([]leaderboardEntryResponse, len(b.Entries))
	for i, e := range b.Entries {
		entries[i] = leaderboardEntryResponse{
			Rank:            e.Rank,
			UserID:          e.UserID,
			DisplayName:     e.DisplayName,
			Department:      e.Department,
			TotalDistance:   e.TotalDistance,
			ActivityCount:   e.ActivityCount,
			ProgressPercent: e.ProgressPercent,
		}
	}
	return &leaderboardResponse{
		Challenge: toChallengeResponse(b.Challenge),
		DaysLeft:  b.DaysLeft,
		Entries:   entries,
	}
}

// StravaServiceAdapter は stravasync.Service を StravaServiceInterface に適合させるアダプタ。
type StravaServiceAdapter struct {
	svc *stravasync.Service
}

// NewStravaServiceAdapter はStravaServiceAdapterを生成する。
func NewStravaServiceAdapter(svc *stravasync.Service) *StravaServiceAdapter {
	return &StravaServiceAdapter{svc: svc}
}

// AuthorizeURL はStravaの認可画面のURLを返す。
func (a *StravaServiceAdapter) AuthorizeURL(state string) string {
	return a.svc.AuthorizeURL(state)
}

// Connect は連携と初回同期を行い、結果をhandlerレスポンス型で返す。
func (a *StravaServiceAdapter) Connect(ctx context.Context, p authz.Principal, code string) (*syncResponse, error) {
	res, err := a.svc.Connect(ctx, p, code)
	if err != nil {
		return nil, err
	}
	return toSyncResponse(res), nil
}

// Sync は同期を行い、結果をhandlerレスポンス型で返す。
func (a *StravaServiceAdapter) Sync(ctx context.Context, p authz.Principal) (*syncResponse, error) {
	res, err := a.svc.Sync(ctx, p)
	if err != nil {
		return nil, err
	}
	return toSyncResponse(res), nil
}

// Status は連携状態をhandlerレスポンス型で返す。
func (a *StravaServiceAdapter) Status(ctx context.Context, p authz.Principal) (*stravaStatusResponse, error) {
	st, err := a.svc.Status(ctx, p)
	if err != nil {
		return nil, err
	}
	return &stravaStatusResponse{
		Connected:    st.Connected,
		AthleteID:    st.AthleteID,
		ExpiresAt:    st.ExpiresAt,
		LastSyncedAt: st.LastSyncedAt,
	}, nil
}

// Disconnect は連携を解除する。
func (a *StravaServiceAdapter) Disconnect(ctx context.Context, p authz.Principal) error {
	return a.svc.Disconnect(ctx, p)
}

func toSyncResponse(r *stravasync.Result) *syncResponse {
	return &syncResponse{
		Fetched:     r.Fetched,
		Inserted:    r.Inserted,
		Updated:     r.Updated,
		Skipped:     r.Skipped,
		Tagged:      r.Tagged,
		ChallengeID: r.ChallengeID,
	}
}

// compile-time interface checks
var (
	_ LeaderboardServiceInterface = (*LeaderboardServiceAdapter)(nil)
	_ StravaServiceInterface      = (*StravaServiceAdapter)(nil)
)
