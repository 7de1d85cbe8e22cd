// Package repository はデータ永続化のインターフェースを定義する。
package repository

import (
	"context"

	"github.com/hitoshi/steamauth/internal/model"
)

// UserRepository はユーザーレコードの永続化インターフェース。
type UserRepository interface {
	// FindByID は指定IDのユーザーを取得する。見つからない場合はnilを返す。
	FindByID(ctx context.Context, id string) (*model.User, error)

	// CreateWithProfile はユーザーの作成とプロフィールのマージを同一トランザクションで行う。
	CreateWithProfile(ctx context.Context, user *model.User, patch *model.ProfilePatch) error

	// UpdateWithProfile は表示名・アバターURLの更新とプロフィールのマージを同一トランザクションで行う。
	UpdateWithProfile(ctx context.Context, id, displayName, photoURL string, patch *model.ProfilePatch) error
}

// ProfileRepository はプロフィールドキュメント（profiles/{uid}）の永続化インターフェース。
type ProfileRepository interface {
	// FindByUserID はプロフィールを取得する。存在しない場合はnilを返す。
	FindByUserID(ctx context.Context, userID string) (*model.Profile, error)

	// FindUserIDBySteamID はsteamidが一致するプロフィールのユーザーIDを返す。
	// 見つからない場合は空文字列を返す。
	FindUserIDBySteamID(ctx context.Context, steamID string) (string, error)

	// Merge はプロフィールにキー単位でマージ書き込みする。
	// patchに含まれないトップレベルキーは既存の値を維持する。
	Merge(ctx context.Context, userID string, patch *model.ProfilePatch) error
}

// TokenRepository はOAuthトークン（tokens/{uid}）の永続化インターフェース。
type TokenRepository interface {
	// FindByUserID はトークンドキュメントを取得する。存在しない場合はnilを返す。
	FindByUserID(ctx context.Context, userID string) (*model.Tokens, error)

	// MergeDiscord はdiscordキーのみを上書きする。
	MergeDiscord(ctx context.Context, userID string, token *model.StoredToken) error
}

// SessionRepository はセッションデータの永続化インターフェース。
type SessionRepository interface {
	// Save はセッションを作成または上書きする。
	Save(ctx context.Context, session *model.Session) error
	// FindByID は指定IDのセッションを取得する。存在しないか期限切れの場合はnilを返す。
	FindByID(ctx context.Context, id string) (*model.Session, error)
	// DeleteByID は指定IDのセッションを削除する。
	DeleteByID(ctx context.Context, id string) error
}
