package provider

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"

	"golang.org/x/oauth2"

	"github.com/hitoshi/steamauth/internal/model"
)

const (
	defaultDiscordAuthURL  = "https://discord.com/oauth2/authorize"
	defaultDiscordTokenURL = "https://discord.com/api/oauth2/token"
	defaultDiscordUserURL  = "https://discord.com/api/users/@me"
)

// DefaultDiscordScopes はDiscord連携で要求するスコープ。
var DefaultDiscordScopes = []string{"identify", "email", "guilds.join", "guilds"}

// DiscordConfig はDiscordプロバイダーの設定。
type DiscordConfig struct {
	ClientID     string
	ClientSecret string
	RedirectURL  string // ROOT_URL + /auth/discord/callback
	Scopes       []string

	// テスト用にオーバーライド可能なURL
	AuthURL  string
	TokenURL string
	UserURL  string

	HTTPClient *http.Client
}

// DiscordProvider はDiscord OAuth2による認証を提供する。
type DiscordProvider struct {
	oauth   *oauth2.Config
	userURL string
	client  *http.Client
}

// NewDiscordProvider はDiscordProviderを生成する。
func NewDiscordProvider(config DiscordConfig) *DiscordProvider {
	if config.AuthURL == "" {
		config.AuthURL = defaultDiscordAuthURL
	}
	if config.TokenURL == "" {
		config.TokenURL = defaultDiscordTokenURL
	}
	if config.UserURL == "" {
		config.UserURL = defaultDiscordUserURL
	}
	if len(config.Scopes) == 0 {
		config.Scopes = DefaultDiscordScopes
	}
	client := config.HTTPClient
	if client == nil {
		client = http.DefaultClient
	}

	return &DiscordProvider{
		oauth: &oauth2.Config{
			ClientID:     config.ClientID,
			ClientSecret: config.ClientSecret,
			RedirectURL:  config.RedirectURL,
			Scopes:       config.Scopes,
			Endpoint: oauth2.Endpoint{
				AuthURL:   config.AuthURL,
				TokenURL:  config.TokenURL,
				AuthStyle: oauth2.AuthStyleInParams,
			},
		},
		userURL: config.UserURL,
		client:  client,
	}
}

// AuthURL はDiscordの認可URLを生成する。
func (p *DiscordProvider) AuthURL(state string) string {
	return p.oauth.AuthCodeURL(state)
}

// Exchange は認可コードをトークンに交換し、Discordユーザー情報を取得する。
func (p *DiscordProvider) Exchange(ctx context.Context, code string) (*model.DiscordIdentity, *model.StoredToken, error) {
	if code == "" {
		return nil, nil, fmt.Errorf("missing authorization code")
	}

	ctx = context.WithValue(ctx, oauth2.HTTPClient, p.client)

	tok, err := p.oauth.Exchange(ctx, code)
	if err != nil {
		return nil, nil, fmt.Errorf("failed to exchange token: %w", err)
	}

	identity, err := p.fetchUser(ctx, tok)
	if err != nil {
		return nil, nil, fmt.Errorf("failed to fetch user: %w", err)
	}

	stored := &model.StoredToken{
		AccessToken:  tok.AccessToken,
		RefreshToken: tok.RefreshToken,
		TokenType:    tok.TokenType,
	}
	if !tok.Expiry.IsZero() {
		stored.Expires = tok.Expiry.UnixMilli()
	}
	if scope, ok := tok.Extra("scope").(string); ok {
		stored.Scope = scope
	}

	return identity, stored, nil
}

// discordUser は /users/@me のうち使用するフィールド。
type discordUser struct {
	ID       string `json:"id"`
	Username string `json:"username"`
	Email    string `json:"email"`
}

func (p *DiscordProvider) fetchUser(ctx context.Context, tok *oauth2.Token) (*model.DiscordIdentity, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, p.userURL, nil)
	if err != nil {
		return nil, fmt.Errorf("failed to create user request: %w", err)
	}

	resp, err := p.oauth.Client(ctx, tok).Do(req)
	if err != nil {
		return nil, err
	}
	defer resp.Body.Close()

	body, err := io.ReadAll(io.LimitReader(resp.Body, maxProviderResponseSize))
	if err != nil {
		return nil, fmt.Errorf("failed to read user response: %w", err)
	}
	if resp.StatusCode != http.StatusOK {
		return nil, fmt.Errorf("user fetch failed with status %d", resp.StatusCode)
	}

	var user discordUser
	if err := json.Unmarshal(body, &user); err != nil {
		return nil, fmt.Errorf("failed to parse user response: %w", err)
	}
	if user.ID == "" {
		return nil, fmt.Errorf("empty id in user response")
	}

	return &model.DiscordIdentity{
		ID:       user.ID,
		Username: user.Username,
		Email:    user.Email,
		Raw:      json.RawMessage(body),
	}, nil
}
