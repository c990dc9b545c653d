package repository

import (
	"context"
	"database/sql"
	"fmt"

	"github.com/hitoshi/movemonth/internal/model"
)

// PostgresProfileRepo はPostgreSQLを使用したプロフィールリポジトリ。
type PostgresProfileRepo struct {
	db *sql.DB
}

// NewPostgresProfileRepo はPostgresProfileRepoを生成する。
func NewPostgresProfileRepo(db *sql.DB) *PostgresProfileRepo {
	return &PostgresProfileRepo{db: db}
}

const profileColumns = `id, email, full_name, role, department, job_title, created_at, updated_at`

func scanProfile(row interface{ Scan(...any) error }) (*model.Profile, error) {
	p := &model.Profile{}
	var role string
	if err := row.Scan(&p.ID, &p.Email, &p.FullName, &role, &p.Department, &p.JobTitle, &p.CreatedAt, &p.UpdatedAt); err != nil {
		return nil, err
	}
	p.Role = model.NormalizeRole(role)
	return p, nil
}

// FindByID は指定IDのプロフィールを取得する。見つからない場合はnilを返す。
func (r *PostgresProfileRepo) FindByID(ctx context.Context, id string) (*model.Profile, error) {
	p, err := scanProfile(r.db.QueryRowContext(ctx,
		`SELECT `+profileColumns+` FROM profiles WHERE id = $1`, id))
	if err == sql.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("failed to find profile by ID: %w", err)
	}
	return p, nil
}

// FindByIdentity は外部IdPのアカウントに紐付くプロフィールを取得する。
// 見つからない場合はnilを返す。
func (r *PostgresProfileRepo) FindByIdentity(ctx context.Context, provider, providerUserID string) (*model.Profile, error) {
	p, err := scanProfile(r.db.QueryRowContext(ctx,
		`SELECT p.id, p.email, p.full_name, p.role, p.department, p.job_title, p.created_at, p.updated_at
		 FROM identities i
		 JOIN profiles p ON p.id = i.user_id
		 WHERE i.provider = $1 AND i.provider_user_id = $2`,
		provider, providerUserID))
	if err == sql.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("failed to find profile by identity: %w", err)
	}
	return p, nil
}

// CreateWithIdentity はプロフィールとidentityを同一トランザクションで作成する。
func (r *PostgresProfileRepo) CreateWithIdentity(ctx context.Context, profile *model.Profile, identity *model.Identity) error {
	tx, err := r.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("failed to begin transaction: %w", err)
	}
	defer tx.Rollback()

	_, err = tx.ExecContext(ctx,
		`INSERT INTO profiles (id, email, full_name, role, department, job_title, created_at, updated_at)
		 VALUES ($1, $2, $3, $4, $5, $6, $7, $8)`,
		profile.ID, profile.Email, profile.FullName, string(profile.Role),
		profile.Department, profile.JobTitle, profile.CreatedAt, profile.UpdatedAt,
	)
	if err != nil {
		return fmt.Errorf("failed to insert profile: %w", err)
	}

	_, err = tx.ExecContext(ctx,
		`INSERT INTO identities (id, user_id, provider, provider_user_id, created_at)
		 VALUES ($1, $2, $3, $4, $5)`,
		identity.ID, identity.ProfileID, identity.Provider, identity.ProviderUserID, identity.CreatedAt,
	)
	if err != nil {
		return fmt.Errorf("failed to insert identity: %w", err)
	}

	if err := tx.Commit(); err != nil {
		return fmt.Errorf("failed to commit transaction: %w", err)
	}
	return nil
}

// UpdateDetails は氏名・部署・役職を更新し、更新後のプロフィールを返す。
// 見つからない場合はnilを返す。
func (r *PostgresProfileRepo) UpdateDetails(ctx context.Context, id string, details ProfileDetails) (*model.Profile, error) {
	p, err := scanProfile(r.db.QueryRowContext(ctx,
		`UPDATE profiles
		 SET full_name = $2, department = $3, job_title = $4, updated_at = now()
		 WHERE id = $1
		 RETURNING `+profileColumns,
		id, details.FullName, details.Department, details.JobTitle,
	))
	if err == sql.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("failed to update profile: %w", err)
	}
	return p, nil
}

// compile-time interface check
var _ ProfileRepository = (*PostgresProfileRepo)(nil)
