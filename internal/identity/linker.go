// Package identity は外部IdPのアイデンティティとユーザーレコードの突き合わせを行う。
package identity

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"github.com/google/uuid"
	"golang.org/x/sync/errgroup"

	"github.com/hitoshi/steamauth/internal/model"
	"github.com/hitoshi/steamauth/internal/repository"
)

// DefaultAvatarURL はSteamがアバターを返さなかった場合に使う画像。
const DefaultAvatarURL = "https://steamcdn-a.akamaihd.net/steamcommunity/public/images/avatars/fe/fef49e7fa7e1997310d705b2a6158ff8dc1cdfeb_full.jpg"

// placeholderEmailDomain はSteamユーザーに割り当てるプレースホルダーメールのドメイン。
const placeholderEmailDomain = "steamcommunity.com"

// NameSanitizer は表示名の無害化インターフェース。
type NameSanitizer interface {
	Sanitize(name string) string
}

// Linker はユーザーレコードの作成・更新と、セカンダリIdPの紐付けを行う。
type Linker struct {
	users     repository.UserRepository
	profiles  repository.ProfileRepository
	tokens    repository.TokenRepository
	sanitizer NameSanitizer
	now       func() time.Time
	newID     func() string
}

// NewLinker はLinkerを生成する。
func NewLinker(
	users repository.UserRepository,
	profiles repository.ProfileRepository,
	tokens repository.TokenRepository,
	sanitizer NameSanitizer,
) *Linker {
	return &Linker{
		users:     users,
		profiles:  profiles,
		tokens:    tokens,
		sanitizer: sanitizer,
		now:       time.Now,
		newID:     func() string { return uuid.New().String() },
	}
}

// ResolvePrimaryIdentity はSteamアイデンティティに対応するユーザーを返す。
// 未登録の場合は新規作成し、登録済みの場合は表示名とアバターをSteamの値で上書きする。
// どちらの場合もSteamプロフィール全体をprofiles/{uid}にマージする。
// ユーザーレコードとプロフィールの書き込みは一つのトランザクションで行う。
func (l *Linker) ResolvePrimaryIdentity(ctx context.Context, steam *model.SteamIdentity) (*model.User, error) {
	if steam == nil || steam.SteamID == "" {
		return nil, fmt.Errorf("steam identity is required")
	}

	displayName := l.sanitizer.Sanitize(steam.DisplayName)
	photoURL := steam.AvatarURL
	if photoURL == "" {
		photoURL = DefaultAvatarURL
	}

	userID, err := l.profiles.FindUserIDBySteamID(ctx, steam.SteamID)
	if err != nil {
		return nil, fmt.Errorf("failed to look up steam profile: %w", err)
	}

	var user *model.User
	if userID != "" {
		user, err = l.users.FindByID(ctx, userID)
		if err != nil {
			return nil, fmt.Errorf("failed to find user: %w", err)
		}
	}

	patch := &model.ProfilePatch{
		DisplayName: &displayName,
		PhotoURL:    &photoURL,
		Steam:       steam.Raw,
	}

	if user != nil {
		if err := l.users.UpdateWithProfile(ctx, user.ID, displayName, photoURL, patch); err != nil {
			return nil, fmt.Errorf("failed to update user: %w", err)
		}
		user.DisplayName = displayName
		user.PhotoURL = photoURL
		slog.Info("existing user logged in",
			slog.String("user_id", user.ID),
			slog.String("provider", string(model.ProviderSteam)),
		)
	} else {
		now := l.now()
		user = &model.User{
			ID:            l.newID(),
			Email:         steam.SteamID + "@" + placeholderEmailDomain,
			EmailVerified: false,
			DisplayName:   displayName,
			PhotoURL:      photoURL,
			Disabled:      false,
			CreatedAt:     now,
			UpdatedAt:     now,
		}
		if err := l.users.CreateWithProfile(ctx, user, patch); err != nil {
			return nil, fmt.Errorf("failed to create user: %w", err)
		}
		slog.Info("new user created",
			slog.String("user_id", user.ID),
			slog.String("provider", string(model.ProviderSteam)),
		)
	}

	profile, err := l.profiles.FindByUserID(ctx, user.ID)
	if err != nil {
		return nil, fmt.Errorf("failed to load profile: %w", err)
	}
	if profile == nil {
		profile = &model.Profile{}
		profile.Apply(patch)
	}
	user.Profile = profile

	return user, nil
}

// LinkSecondaryIdentity は認証済みユーザーにDiscordアカウントを紐付ける。
// 同じDiscordアカウントの再紐付けは成功扱いとし、別のアカウントが紐付け済みの場合はAlreadyLinkedを返す。
// プロフィールとトークンの書き込みは並行して行い、片方が失敗しても他方はロールバックしない。
func (l *Linker) LinkSecondaryIdentity(ctx context.Context, userID string, discord *model.DiscordIdentity, token *model.StoredToken) error {
	if userID == "" {
		return model.NewSessionInvalidError("user id missing")
	}
	if discord == nil || discord.ID == "" {
		return fmt.Errorf("discord identity is required")
	}

	user, err := l.users.FindByID(ctx, userID)
	if err != nil {
		return fmt.Errorf("failed to find user: %w", err)
	}
	if user == nil {
		return model.NewUserNotFoundError(userID)
	}

	profile, err := l.profiles.FindByUserID(ctx, userID)
	if err != nil {
		return fmt.Errorf("failed to load profile: %w", err)
	}
	if linked := profile.DiscordID(); linked != "" && linked != discord.ID {
		slog.Warn("discord link rejected",
			slog.String("user_id", userID),
			slog.String("reason", "already linked to a different account"),
		)
		return model.NewAlreadyLinkedError()
	}

	var g errgroup.Group
	g.Go(func() error {
		if err := l.profiles.Merge(ctx, userID, &model.ProfilePatch{Discord: discord.Raw}); err != nil {
			return fmt.Errorf("failed to store discord profile: %w", err)
		}
		return nil
	})
	g.Go(func() error {
		if err := l.tokens.MergeDiscord(ctx, userID, token); err != nil {
			return fmt.Errorf("failed to store discord token: %w", err)
		}
		return nil
	})
	if err := g.Wait(); err != nil {
		return err
	}

	slog.Info("discord account linked", slog.String("user_id", userID))
	return nil
}
