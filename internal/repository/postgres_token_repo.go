package repository

import (
	"context"
	"database/sql"
	"encoding/json"
	"fmt"

	"github.com/hitoshi/steamauth/internal/model"
)

// PostgresTokenRepo はtokensテーブル（jsonb）を使用したトークンリポジトリ。
type PostgresTokenRepo struct {
	db *sql.DB
}

// NewPostgresTokenRepo はPostgresTokenRepoを生成する。
func NewPostgresTokenRepo(db *sql.DB) *PostgresTokenRepo {
	return &PostgresTokenRepo{db: db}
}

// FindByUserID はトークンドキュメントを取得する。存在しない場合はnilを返す。
func (r *PostgresTokenRepo) FindByUserID(ctx context.Context, userID string) (*model.Tokens, error) {
	var data []byte
	err := r.db.QueryRowContext(ctx,
		`SELECT data FROM tokens WHERE user_id = $1`,
		userID,
	).Scan(&data)

	if err == sql.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("failed to find tokens: %w", err)
	}

	tokens := &model.Tokens{}
	if err := json.Unmarshal(data, tokens); err != nil {
		return nil, fmt.Errorf("failed to decode tokens: %w", err)
	}
	return tokens, nil
}

// MergeDiscord はdiscordキーのみを上書きし、他プロバイダーのトークンは維持する。
func (r *PostgresTokenRepo) MergeDiscord(ctx context.Context, userID string, token *model.StoredToken) error {
	data, err := json.Marshal(model.Tokens{Discord: token})
	if err != nil {
		return fmt.Errorf("failed to encode tokens: %w", err)
	}

	_, err = r.db.ExecContext(ctx,
		`INSERT INTO tokens (user_id, data, updated_at)
		 VALUES ($1, $2, now())
		 ON CONFLICT (user_id) DO UPDATE
		 SET data = tokens.data || EXCLUDED.data, updated_at = now()`,
		userID, data,
	)
	if err != nil {
		return fmt.Errorf("failed to merge tokens: %w", err)
	}
	return nil
}

// compile-time interface check
var _ TokenRepository = (*PostgresTokenRepo)(nil)
