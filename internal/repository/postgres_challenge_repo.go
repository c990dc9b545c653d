package repository

import (
	"context"
	"database/sql"
	"fmt"
	"time"

	"github.com/hitoshi/movemonth/internal/model"
)

// challengeCreateLockKey はチャレンジ作成を直列化するアドバイザリロックのキー。
const challengeCreateLockKey = 7_100_001

// PostgresChallengeRepo はPostgreSQLを使用したチャレンジリポジトリ。
type PostgresChallengeRepo struct {
	db *sql.DB
}

// NewPostgresChallengeRepo はPostgresChallengeRepoを生成する。
func NewPostgresChallengeRepo(db *sql.DB) *PostgresChallengeRepo {
	return &PostgresChallengeRepo{db: db}
}

const challengeColumns = `id, title, description, activity_type, start_date, end_date, target_goal, created_by, created_at, updated_at`

func scanChallenge(row interface{ Scan(...any) error }) (*model.Challenge, error) {
	c := &model.Challenge{}
	var activityType string
	err := row.Scan(&c.ID, &c.Title, &c.Description, &activityType, &c.StartDate, &c.EndDate,
		&c.TargetGoal, &c.CreatedBy, &c.CreatedAt, &c.UpdatedAt)
	if err != nil {
		return nil, err
	}
	c.ActivityType = model.ActivityType(activityType)
	c.StartDate = model.DayOf(c.StartDate)
	c.EndDate = model.DayOf(c.EndDate)
	return c, nil
}

func (r *PostgresChallengeRepo) queryChallenges(ctx context.Context, query string, args ...any) ([]*model.Challenge, error) {
	rows, err := r.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("failed to list challenges: %w", err)
	}
	defer rows.Close()

	challenges := []*model.Challenge{}
	for rows.Next() {
		c, err := scanChallenge(rows)
		if err != nil {
			return nil, fmt.Errorf("failed to scan challenge: %w", err)
		}
		challenges = append(challenges, c)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("failed to iterate challenges: %w", err)
	}
	return challenges, nil
}

// FindByID は指定IDのチャレンジを取得する。見つからない場合はnilを返す。
func (r *PostgresChallengeRepo) FindByID(ctx context.Context, id string) (*model.Challenge, error) {
	c, err := scanChallenge(r.db.QueryRowContext(ctx,
		`SELECT `+challengeColumns+` FROM challenges WHERE id = $1`, id))
	if err == sql.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("failed to find challenge by ID: %w", err)
	}
	return c, nil
}

// FindCurrent はdayを期間に含むチャレンジを取得する。見つからない場合はnilを返す。
// 作成時に重複を拒否しているため通常は1件だが、複数該当する場合は開始日が最も遅いものを返す。
func (r *PostgresChallengeRepo) FindCurrent(ctx context.Context, day time.Time) (*model.Challenge, error) {
	c, err := scanChallenge(r.db.QueryRowContext(ctx,
		`SELECT `+challengeColumns+`
		 FROM challenges
		 WHERE start_date <= $1 AND end_date >= $1
		 ORDER BY start_date DESC, id ASC
		 LIMIT 1`,
		day.Format(model.DateLayout)))
	if err == sql.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("failed to find current challenge: %w", err)
	}
	return c, nil
}

// CreateIfNoOverlap は期間が重なる既存チャレンジがなければ作成する。
// 同時作成による重複を防ぐため、トランザクションスコープのアドバイザリロックで直列化する。
func (r *PostgresChallengeRepo) CreateIfNoOverlap(ctx context.Context, challenge *model.Challenge) (*model.Challenge, error) {
	tx, err := r.db.BeginTx(ctx, nil)
	if err != nil {
		return nil, fmt.Errorf("failed to begin transaction: %w", err)
	}
	defer tx.Rollback()

	if _, err := tx.ExecContext(ctx, `SELECT pg_advisory_xact_lock($1)`, challengeCreateLockKey); err != nil {
		return nil, fmt.Errorf("failed to acquire challenge lock: %w", err)
	}

	start := challenge.StartDate.Format(model.DateLayout)
	end := challenge.EndDate.Format(model.DateLayout)

	existing, err := scanChallenge(tx.QueryRowContext(ctx,
		`SELECT `+challengeColumns+`
		 FROM challenges
		 WHERE start_date <= $2 AND end_date >= $1
		 ORDER BY start_date ASC
		 LIMIT 1`,
		start, end))
	if err == nil {
		return existing, nil
	}
	if err != sql.ErrNoRows {
		return nil, fmt.Errorf("failed to check overlapping challenges: %w", err)
	}

	_, err = tx.ExecContext(ctx,
		`INSERT INTO challenges (id, title, description, activity_type, start_date, end_date, target_goal, created_by, created_at, updated_at)
		 VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10)`,
		challenge.ID, challenge.Title, challenge.Description, string(challenge.ActivityType),
		start, end, challenge.TargetGoal, challenge.CreatedBy, challenge.CreatedAt, challenge.UpdatedAt,
	)
	if err != nil {
		return nil, fmt.Errorf("failed to insert challenge: %w", err)
	}

	if err := tx.Commit(); err != nil {
		return nil, fmt.Errorf("failed to commit transaction: %w", err)
	}
	return nil, nil
}

// ListUpcoming は開始日がdayより後のチャレンジを開始日の昇順で返す。
func (r *PostgresChallengeRepo) ListUpcoming(ctx context.Context, day time.Time) ([]*model.Challenge, error) {
	return r.queryChallenges(ctx,
		`SELECT `+challengeColumns+` FROM challenges WHERE start_date > $1 ORDER BY start_date ASC`,
		day.Format(model.DateLayout))
}

// ListCompleted は終了日がdayより前のチャレンジを終了日の降順で返す。
func (r *PostgresChallengeRepo) ListCompleted(ctx context.Context, day time.Time) ([]*model.Challenge, error) {
	return r.queryChallenges(ctx,
		`SELECT `+challengeColumns+` FROM challenges WHERE end_date < $1 ORDER BY end_date DESC`,
		day.Format(model.DateLayout))
}

// ListAll は全チャレンジを開始日の降順で返す。
func (r *PostgresChallengeRepo) ListAll(ctx context.Context) ([]*model.Challenge, error) {
	return r.queryChallenges(ctx,
		`SELECT `+challengeColumns+` FROM challenges ORDER BY start_date DESC`)
}

// compile-time interface check
var _ ChallengeRepository = (*PostgresChallengeRepo)(nil)
