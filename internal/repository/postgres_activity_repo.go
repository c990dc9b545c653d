package repository

import (
	"context"
	"database/sql"
	"fmt"

	"github.com/hitoshi/movemonth/internal/model"
)

// PostgresActivityRepo はPostgreSQLを使用したアクティビティリポジトリ。
type PostgresActivityRepo struct {
	db *sql.DB
}

// NewPostgresActivityRepo はPostgresActivityRepoを生成する。
func NewPostgresActivityRepo(db *sql.DB) *PostgresActivityRepo {
	return &PostgresActivityRepo{db: db}
}

const activityColumns = `id, user_id, challenge_id, activity_type, distance, duration, activity_date, source, external_id, created_at, updated_at`

func scanActivity(row interface{ Scan(...any) error }) (*model.Activity, error) {
	a := &model.Activity{}
	var (
		challengeID  sql.NullString
		duration     sql.NullInt64
		externalID   sql.NullString
		activityType string
		source       string
	)
	err := row.Scan(&a.ID, &a.UserID, &challengeID, &activityType, &a.Distance, &duration,
		&a.ActivityDate, &source, &externalID, &a.CreatedAt, &a.UpdatedAt)
	if err != nil {
		return nil, err
	}
	if challengeID.Valid {
		id := challengeID.String
		a.ChallengeID = &id
	}
	if duration.Valid {
		d := int(duration.Int64)
		a.Duration = &d
	}
	// 活動日はUTCの壁時計として保存しているため、セッションのタイムゾーンに依らずUTCで扱う
	a.ActivityDate = a.ActivityDate.UTC()
	a.ExternalID = externalID.String
	a.ActivityType = model.ActivityType(activityType)
	a.Source = model.ActivitySource(source)
	return a, nil
}

// nullString は空文字列をNULLとして扱う。
func nullString(s string) sql.NullString {
	return sql.NullString{String: s, Valid: s != ""}
}

// Create は手入力のアクティビティを作成する。
func (r *PostgresActivityRepo) Create(ctx context.Context, activity *model.Activity) error {
	_, err := r.db.ExecContext(ctx,
		`INSERT INTO activities (id, user_id, challenge_id, activity_type, distance, duration, activity_date, source, external_id, created_at, updated_at)
		 VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11)`,
		activity.ID, activity.UserID, activity.ChallengeID, string(activity.ActivityType),
		activity.Distance, activity.Duration, activity.ActivityDate, string(activity.Source),
		nullString(activity.ExternalID), activity.CreatedAt, activity.UpdatedAt,
	)
	if err != nil {
		return fmt.Errorf("failed to insert activity: %w", err)
	}
	return nil
}

// ListByUser はユーザーのアクティビティを活動日の降順でoffset件目からlimit件返す。
// challengeIDが空でない場合はそのチャレンジに属するものに絞り込む。
func (r *PostgresActivityRepo) ListByUser(ctx context.Context, userID, challengeID string, limit, offset int) ([]*model.Activity, error) {
	rows, err := r.db.QueryContext(ctx,
		`SELECT `+activityColumns+`
		 FROM activities
		 WHERE user_id = $1
		   AND ($2::uuid IS NULL OR challenge_id = $2::uuid)
		 ORDER BY activity_date DESC, created_at DESC, id
		 LIMIT $3 OFFSET $4`,
		userID, nullString(challengeID), limit, offset,
	)
	if err != nil {
		return nil, fmt.Errorf("failed to list activities: %w", err)
	}
	defer rows.Close()

	activities := []*model.Activity{}
	for rows.Next() {
		a, err := scanActivity(rows)
		if err != nil {
			return nil, fmt.Errorf("failed to scan activity: %w", err)
		}
		activities = append(activities, a)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("failed to iterate activities: %w", err)
	}
	return activities, nil
}

// TotalsByChallenge はチャレンジに属するアクティビティの距離をユーザーごとに合計する。
// プロフィールが存在しない行も集計対象とし、表示名は空文字列になる。
func (r *PostgresActivityRepo) TotalsByChallenge(ctx context.Context, challengeID string) ([]model.ParticipantTotal, error) {
	rows, err := r.db.QueryContext(ctx,
		`SELECT a.user_id,
		        COALESCE(p.full_name, ''),
		        COALESCE(p.department, ''),
		        SUM(a.distance),
		        COUNT(*)
		 FROM activities a
		 LEFT JOIN profiles p ON p.id = a.user_id
		 WHERE a.challenge_id = $1
		 GROUP BY a.user_id, p.full_name, p.department`,
		challengeID,
	)
	if err != nil {
		return nil, fmt.Errorf("failed to aggregate activities: %w", err)
	}
	defer rows.Close()

	totals := []model.ParticipantTotal{}
	for rows.Next() {
		var t model.ParticipantTotal
		if err := rows.Scan(&t.UserID, &t.FullName, &t.Department, &t.TotalDistance, &t.ActivityCount); err != nil {
			return nil, fmt.Errorf("failed to scan participant total: %w", err)
		}
		totals = append(totals, t)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("failed to iterate participant totals: %w", err)
	}
	return totals, nil
}

// compile-time interface check
var _ ActivityRepository = (*PostgresActivityRepo)(nil)
