package repository

import (
	"context"
	"database/sql"
	"encoding/json"
	"fmt"

	"github.com/hitoshi/steamauth/internal/model"
)

// PostgresProfileRepo はprofilesテーブル（jsonb）を使用したプロフィールリポジトリ。
type PostgresProfileRepo struct {
	db *sql.DB
}

// NewPostgresProfileRepo はPostgresProfileRepoを生成する。
func NewPostgresProfileRepo(db *sql.DB) *PostgresProfileRepo {
	return &PostgresProfileRepo{db: db}
}

// FindByUserID はプロフィールを取得する。存在しない場合はnilを返す。
func (r *PostgresProfileRepo) FindByUserID(ctx context.Context, userID string) (*model.Profile, error) {
	var data []byte
	err := r.db.QueryRowContext(ctx,
		`SELECT data FROM profiles WHERE user_id = $1`,
		userID,
	).Scan(&data)

	if err == sql.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("failed to find profile: %w", err)
	}

	profile := &model.Profile{}
	if err := json.Unmarshal(data, profile); err != nil {
		return nil, fmt.Errorf("failed to decode profile: %w", err)
	}
	return profile, nil
}

// FindUserIDBySteamID はsteamidが一致するプロフィールのユーザーIDを返す。
func (r *PostgresProfileRepo) FindUserIDBySteamID(ctx context.Context, steamID string) (string, error) {
	var userID string
	err := r.db.QueryRowContext(ctx,
		`SELECT user_id FROM profiles WHERE data->'steam'->>'steamid' = $1`,
		steamID,
	).Scan(&userID)

	if err == sql.ErrNoRows {
		return "", nil
	}
	if err != nil {
		return "", fmt.Errorf("failed to find profile by steamid: %w", err)
	}
	return userID, nil
}

// Merge はjsonbの || 演算子でトップレベルキー単位のマージを行う。
// 同一キーへの並行書き込みは後勝ちになる。
func (r *PostgresProfileRepo) Merge(ctx context.Context, userID string, patch *model.ProfilePatch) error {
	return mergeProfile(ctx, r.db, userID, patch)
}

// execer は *sql.DB と *sql.Tx の共通部分。
type execer interface {
	ExecContext(ctx context.Context, query string, args ...any) (sql.Result, error)
}

func mergeProfile(ctx context.Context, db execer, userID string, patch *model.ProfilePatch) error {
	data, err := json.Marshal(patch)
	if err != nil {
		return fmt.Errorf("failed to encode profile: %w", err)
	}

	_, err = db.ExecContext(ctx,
		`INSERT INTO profiles (user_id, data, updated_at)
		 VALUES ($1, $2, now())
		 ON CONFLICT (user_id) DO UPDATE
		 SET data = profiles.data || EXCLUDED.data, updated_at = now()`,
		userID, data,
	)
	if err != nil {
		return fmt.Errorf("failed to merge profile: %w", err)
	}
	return nil
}

// compile-time interface check
var _ ProfileRepository = (*PostgresProfileRepo)(nil)
