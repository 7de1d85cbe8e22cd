package repository

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"

	"github.com/hitoshi/steamauth/internal/model"
)

const defaultSessionKeyPrefix = "steamauth:session:"

// RedisSessionRepo はRedisを使用したセッションリポジトリ。
// 有効期限はキーのTTLで管理するため、定期削除ジョブは不要。
type RedisSessionRepo struct {
	client    redis.UniversalClient
	keyPrefix string
}

// storedSession はRedisに保存するセッションの形式。
type storedSession struct {
	State     json.RawMessage `json:"state"`
	ExpiresAt time.Time       `json:"expires_at"`
	CreatedAt time.Time       `json:"created_at"`
}

// NewRedisSessionRepo はREDIS_URLからクライアントを生成し、疎通確認を行う。
func NewRedisSessionRepo(ctx context.Context, redisURL string) (*RedisSessionRepo, error) {
	opts, err := redis.ParseURL(redisURL)
	if err != nil {
		return nil, fmt.Errorf("invalid redis url: %w", err)
	}

	client := redis.NewClient(opts)
	if err := client.Ping(ctx).Err(); err != nil {
		_ = client.Close()
		return nil, fmt.Errorf("failed to connect to redis: %w", err)
	}

	return NewRedisSessionRepoWithClient(client, defaultSessionKeyPrefix), nil
}

// NewRedisSessionRepoWithClient は生成済みクライアントからRedisSessionRepoを生成する。
func NewRedisSessionRepoWithClient(client redis.UniversalClient, keyPrefix string) *RedisSessionRepo {
	return &RedisSessionRepo{client: client, keyPrefix: keyPrefix}
}

// Close はRedisクライアントを閉じる。
func (r *RedisSessionRepo) Close() error {
	return r.client.Close()
}

// Save はセッションを作成または上書きする。TTLはExpiresAtまでの残り時間。
func (r *RedisSessionRepo) Save(ctx context.Context, session *model.Session) error {
	ttl := time.Until(session.ExpiresAt)
	if ttl <= 0 {
		return fmt.Errorf("session already expired")
	}

	state, err := model.MarshalSessionState(session.State)
	if err != nil {
		return err
	}
	data, err := json.Marshal(storedSession{
		State:     state,
		ExpiresAt: session.ExpiresAt,
		CreatedAt: session.CreatedAt,
	})
	if err != nil {
		return fmt.Errorf("failed to encode session: %w", err)
	}

	if err := r.client.Set(ctx, r.key(session.ID), data, ttl).Err(); err != nil {
		return fmt.Errorf("failed to save session: %w", err)
	}
	return nil
}

// FindByID は指定IDのセッションを取得する。存在しない場合はnilを返す。
func (r *RedisSessionRepo) FindByID(ctx context.Context, id string) (*model.Session, error) {
	data, err := r.client.Get(ctx, r.key(id)).Bytes()
	if err != nil {
		if errors.Is(err, redis.Nil) {
			return nil, nil
		}
		return nil, fmt.Errorf("failed to find session: %w", err)
	}

	var stored storedSession
	if err := json.Unmarshal(data, &stored); err != nil {
		return nil, fmt.Errorf("failed to decode session: %w", err)
	}

	state, err := model.UnmarshalSessionState(stored.State)
	if err != nil {
		return nil, err
	}

	return &model.Session{
		ID:        id,
		State:     state,
		ExpiresAt: stored.ExpiresAt,
		CreatedAt: stored.CreatedAt,
	}, nil
}

// DeleteByID は指定IDのセッションを削除する。
func (r *RedisSessionRepo) DeleteByID(ctx context.Context, id string) error {
	if err := r.client.Del(ctx, r.key(id)).Err(); err != nil {
		return fmt.Errorf("failed to delete session: %w", err)
	}
	return nil
}

func (r *RedisSessionRepo) key(id string) string {
	return r.keyPrefix + id
}

// compile-time interface check
var _ SessionRepository = (*RedisSessionRepo)(nil)
