package repository

import (
	"context"
	"database/sql"
	"fmt"
	"time"

	"github.com/hitoshi/movemonth/internal/model"
)

// PostgresStravaConnectionRepo はPostgreSQLを使用したStrava連携リポジトリ。
type PostgresStravaConnectionRepo struct {
	db *sql.DB
}

// NewPostgresStravaConnectionRepo はPostgresStravaConnectionRepoを生成する。
func NewPostgresStravaConnectionRepo(db *sql.DB) *PostgresStravaConnectionRepo {
	return &PostgresStravaConnectionRepo{db: db}
}

// FindByUserID はユーザーの連携情報を取得する。見つからない場合はnilを返す。
func (r *PostgresStravaConnectionRepo) FindByUserID(ctx context.Context, userID string) (*model.StravaConnection, error) {
	c := &model.StravaConnection{}
	var lastSynced sql.NullTime
	err := r.db.QueryRowContext(ctx,
		`SELECT user_id, athlete_id, access_token, refresh_token, expires_at, version, last_synced_at, created_at, updated_at
		 FROM strava_connections
		 WHERE user_id = $1`,
		userID,
	).Scan(&c.UserID, &c.AthleteID, &c.AccessToken, &c.RefreshToken, &c.ExpiresAt,
		&c.Version, &lastSynced, &c.CreatedAt, &c.UpdatedAt)

	if err == sql.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("failed to find strava connection: %w", err)
	}
	if lastSynced.Valid {
		t := lastSynced.Time
		c.LastSyncedAt = &t
	}
	return c, nil
}

// Save は連携情報を作成または置き換える。
// 再連携時もlast_synced_atは保持し、versionはインクリメントする。
func (r *PostgresStravaConnectionRepo) Save(ctx context.Context, conn *model.StravaConnection) error {
	err := r.db.QueryRowContext(ctx,
		`INSERT INTO strava_connections (user_id, athlete_id, access_token, refresh_token, expires_at, version, created_at, updated_at)
		 VALUES ($1, $2, $3, $4, $5, 1, now(), now())
		 ON CONFLICT (user_id) DO UPDATE SET
		     athlete_id = EXCLUDED.athlete_id,
		     access_token = EXCLUDED.access_token,
		     refresh_token = EXCLUDED.refresh_token,
		     expires_at = EXCLUDED.expires_at,
		     version = strava_connections.version + 1,
		     updated_at = now()
		 RETURNING version, created_at, updated_at`,
		conn.UserID, conn.AthleteID, conn.AccessToken, conn.RefreshToken, conn.ExpiresAt,
	).Scan(&conn.Version, &conn.CreatedAt, &conn.UpdatedAt)
	if err != nil {
		return fmt.Errorf("failed to save strava connection: %w", err)
	}
	return nil
}

// UpdateTokens は保存済みversionがexpectedVersionと一致する場合のみトークンを更新する。
// 他の更新に先を越された場合はfalseを返す。
func (r *PostgresStravaConnectionRepo) UpdateTokens(ctx context.Context, userID string, expectedVersion int, tokens model.StravaTokens) (bool, error) {
	result, err := r.db.ExecContext(ctx,
		`UPDATE strava_connections
		 SET access_token = $3, refresh_token = $4, expires_at = $5,
		     version = version + 1, updated_at = now()
		 WHERE user_id = $1 AND version = $2`,
		userID, expectedVersion, tokens.AccessToken, tokens.RefreshToken, tokens.ExpiresAt,
	)
	if err != nil {
		return false, fmt.Errorf("failed to update strava tokens: %w", err)
	}
	n, err := result.RowsAffected()
	if err != nil {
		return false, fmt.Errorf("failed to get rows affected: %w", err)
	}
	return n == 1, nil
}

// Delete は連携情報を削除する。存在しない場合もエラーにしない。
func (r *PostgresStravaConnectionRepo) Delete(ctx context.Context, userID string) error {
	_, err := r.db.ExecContext(ctx,
		`DELETE FROM strava_connections WHERE user_id = $1`,
		userID,
	)
	if err != nil {
		return fmt.Errorf("failed to delete strava connection: %w", err)
	}
	return nil
}

// ImportActivities は同期したアクティビティを1トランザクションでUPSERTし、
// 同じトランザクション内でlast_synced_atを更新する。
// 新しいchallenge_idがNULLの場合、既存のタグは更新後の種別と暦日がそのチャレンジに
// まだ合致するときだけ保持し、合致しなければ外す。
func (r *PostgresStravaConnectionRepo) ImportActivities(ctx context.Context, userID string, activities []*model.Activity, syncedAt time.Time) (ImportResult, error) {
	var res ImportResult

	tx, err := r.db.BeginTx(ctx, nil)
	if err != nil {
		return res, fmt.Errorf("failed to begin transaction: %w", err)
	}
	defer tx.Rollback()

	// $11は期間判定に使う暦日（activity.CountsTowardと同じくActivityDateのロケーションでの年月日）
	stmt, err := tx.PrepareContext(ctx,
		`INSERT INTO activities (id, user_id, challenge_id, activity_type, distance, duration, activity_date, source, external_id, created_at, updated_at)
		 VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $10)
		 ON CONFLICT (user_id, source, external_id) WHERE external_id IS NOT NULL
		 DO UPDATE SET
		     challenge_id = CASE
		         WHEN EXCLUDED.challenge_id IS NOT NULL THEN EXCLUDED.challenge_id
		         WHEN EXISTS (
		             SELECT 1 FROM challenges c
		             WHERE c.id = activities.challenge_id
		               AND c.activity_type = EXCLUDED.activity_type
		               AND $11::date BETWEEN c.start_date AND c.end_date
		         ) THEN activities.challenge_id
		         ELSE NULL
		     END,
		     activity_type = EXCLUDED.activity_type,
		     distance = EXCLUDED.distance,
		     duration = EXCLUDED.duration,
		     activity_date = EXCLUDED.activity_date,
		     updated_at = EXCLUDED.updated_at
		 RETURNING (xmax = 0)`)
	if err != nil {
		return res, fmt.Errorf("failed to prepare activity upsert: %w", err)
	}
	defer stmt.Close()

	for _, a := range activities {
		var inserted bool
		err := stmt.QueryRowContext(ctx,
			a.ID, userID, a.ChallengeID, string(a.ActivityType), a.Distance, a.Duration,
			a.ActivityDate, string(a.Source), nullString(a.ExternalID), syncedAt,
			model.DayOf(a.ActivityDate).Format(model.DateLayout),
		).Scan(&inserted)
		if err != nil {
			return ImportResult{}, fmt.Errorf("failed to upsert activity %s: %w", a.ExternalID, err)
		}
		if inserted {
			res.Inserted++
		} else {
			res.Updated++
		}
	}

	_, err = tx.ExecContext(ctx,
		`UPDATE strava_connections SET last_synced_at = $2, updated_at = $2 WHERE user_id = $1`,
		userID, syncedAt,
	)
	if err != nil {
		return ImportResult{}, fmt.Errorf("failed to update last_synced_at: %w", err)
	}

	if err := tx.Commit(); err != nil {
		return ImportResult{}, fmt.Errorf("failed to commit transaction: %w", err)
	}
	return res, nil
}

// compile-time interface check
var _ StravaConnectionRepository = (*PostgresStravaConnectionRepo)(nil)
