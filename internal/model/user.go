// Package model はドメインモデルを定義する。
package model

import (
	"encoding/json"
	"time"
)

// Provider は外部IdPの種別を表す。
type Provider string

const (
	// ProviderSteam はプライマリIdP（アカウントを作成・特定する）。
	ProviderSteam Provider = "steam"
	// ProviderDiscord はセカンダリIdP（既存アカウントへの紐付けのみ）。
	ProviderDiscord Provider = "discord"
)

// User はプラットフォーム上の永続的なユーザーレコードを表す。
type User struct {
	ID            string
	Email         string
	EmailVerified bool
	DisplayName   string
	PhotoURL      string
	Disabled      bool
	CreatedAt     time.Time
	UpdatedAt     time.Time

	// Profile はResolvePrimaryIdentity等でマージ済みのプロフィール。未ロードの場合はnil。
	Profile *Profile
}

// Profile は profiles/{uid} に保存されるプロフィールドキュメント。
// steam / discord にはプロバイダーから受け取ったJSONをそのまま保持する。
type Profile struct {
	DisplayName string          `json:"displayName,omitempty"`
	PhotoURL    string          `json:"photoURL,omitempty"`
	Steam       json.RawMessage `json:"steam,omitempty"`
	Discord     json.RawMessage `json:"discord,omitempty"`
}

// DiscordID は紐付け済みDiscordプロフィールのIDを返す。未紐付けの場合は空文字列。
func (p *Profile) DiscordID() string {
	if p == nil || len(p.Discord) == 0 {
		return ""
	}
	var v struct {
		ID string `json:"id"`
	}
	if err := json.Unmarshal(p.Discord, &v); err != nil {
		return ""
	}
	return v.ID
}

// SteamID は紐付け済みSteamプロフィールのsteamidを返す。
func (p *Profile) SteamID() string {
	if p == nil || len(p.Steam) == 0 {
		return ""
	}
	var v struct {
		SteamID string `json:"steamid"`
	}
	if err := json.Unmarshal(p.Steam, &v); err != nil {
		return ""
	}
	return v.SteamID
}

// ProfilePatch は profiles/{uid} へのキー単位マージ書き込みの内容。
// nil のフィールドは既存の値を維持する。空文字列を指すポインタは空文字列で上書きする。
type ProfilePatch struct {
	DisplayName *string         `json:"displayName,omitempty"`
	PhotoURL    *string         `json:"photoURL,omitempty"`
	Steam       json.RawMessage `json:"steam,omitempty"`
	Discord     json.RawMessage `json:"discord,omitempty"`
}

// Apply はpatchをプロフィールに適用する。
func (p *Profile) Apply(patch *ProfilePatch) {
	if patch == nil {
		return
	}
	if patch.DisplayName != nil {
		p.DisplayName = *patch.DisplayName
	}
	if patch.PhotoURL != nil {
		p.PhotoURL = *patch.PhotoURL
	}
	if len(patch.Steam) > 0 {
		p.Steam = patch.Steam
	}
	if len(patch.Discord) > 0 {
		p.Discord = patch.Discord
	}
}

// StoredToken は tokens/{uid} に保存されるOAuthトークン情報。
// Expires はミリ秒単位のUNIX時刻。
type StoredToken struct {
	AccessToken  string `json:"access_token"`
	RefreshToken string `json:"refresh_token"`
	Expires      int64  `json:"expires"`
	TokenType    string `json:"token_type"`
	Scope        string `json:"scope"`
}

// Tokens は tokens/{uid} ドキュメント。
type Tokens struct {
	Discord *StoredToken `json:"discord,omitempty"`
}

// SteamIdentity はSteamから受け取った外部アイデンティティ。
type SteamIdentity struct {
	SteamID     string
	DisplayName string
	AvatarURL   string          // avatarfull
	Raw         json.RawMessage // GetPlayerSummariesのplayerオブジェクト
}

// DiscordIdentity はDiscordから受け取った外部アイデンティティ。
type DiscordIdentity struct {
	ID       string
	Username string
	Email    string
	Raw      json.RawMessage // /users/@me のレスポンス
}
