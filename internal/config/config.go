// Package config は環境変数からアプリケーション設定を読み込む。
package config

import (
	"encoding/json"
	"fmt"
	"net/url"
	"sort"
	"strings"
	"time"

	"github.com/caarlos0/env/v11"
)

// SessionStore の選択肢。
const (
	SessionStorePostgres = "postgres"
	SessionStoreRedis    = "redis"
)

// Config はアプリケーション全体の設定を保持する。
// 環境変数から起動時に1回読み込み、イミュータブルとして扱う。
type Config struct {
	// Database
	DatabaseURL string `env:"DATABASE_URL"`

	// Steam
	SteamAPIKey string `env:"STEAM_API_KEY"`
	Realm       string `env:"REALM"`

	// Discord
	DiscordClientID     string   `env:"DISCORD_CLIENT_ID"`
	DiscordClientSecret string   `env:"DISCORD_CLIENT_SECRET"`
	DiscordScopes       []string `env:"DISCORD_SCOPES" envSeparator:"," envDefault:"identify,email,guilds.join,guilds"`

	// Credential
	JWTPrivateKey     string        `env:"JWT_PRIVATE_KEY"`
	JWTPublicKey      string        `env:"JWT_PUBLIC_KEY"`
	JWTIssuer         string        `env:"JWT_ISSUER" envDefault:"steam-login"`
	JWTAlgorithm      string        `env:"JWT_ALGORITHM" envDefault:"RS256"`
	CredentialTTL     time.Duration `env:"CREDENTIAL_TTL" envDefault:"1h"`
	LongLivedTokenTTL time.Duration `env:"LONGLIVED_TOKEN_TTL" envDefault:"720h"`

	// id_token検証（未設定の場合は自身の署名鍵で検証する）
	IDTokenIssuer   string `env:"ID_TOKEN_ISSUER"`
	IDTokenJWKSURL  string `env:"ID_TOKEN_JWKS_URL"`
	IDTokenAudience string `env:"ID_TOKEN_AUDIENCE"`

	// Clients
	ClientsJSON string `env:"CLIENTS"`
	Clients     map[string]string

	// Session
	SessionSecret          string        `env:"SESSION_SECRET"`
	SessionTTL             time.Duration `env:"SESSION_TTL" envDefault:"15m"`
	SessionStore           string        `env:"SESSION_STORE" envDefault:"postgres"`
	RedisURL               string        `env:"REDIS_URL"`
	SessionCleanupInterval time.Duration `env:"SESSION_CLEANUP_INTERVAL" envDefault:"1h"`

	// Rate Limit（req/min/IP）
	RateLimitAuth  int `env:"RATE_LIMIT_AUTH" envDefault:"60"`
	RateLimitToken int `env:"RATE_LIMIT_TOKEN" envDefault:"10"`

	// Logging
	LogLevel string `env:"LOG_LEVEL" envDefault:"info"`

	// Server
	ServerPort string `env:"SERVER_PORT" envDefault:"8080"`
	RootURL    string `env:"ROOT_URL"`

	// Cookie
	CookieSecure bool
	CookieDomain string `env:"COOKIE_DOMAIN"`
}

// Load は環境変数からConfigを読み込む。
// 必須環境変数が未設定の場合は、未設定のものを全て列挙したエラーを返す。
func Load() (*Config, error) {
	cfg := &Config{}
	if err := env.Parse(cfg); err != nil {
		return nil, fmt.Errorf("parse env: %w", err)
	}

	required := []struct {
		name  string
		value string
	}{
		{"DATABASE_URL", cfg.DatabaseURL},
		{"STEAM_API_KEY", cfg.SteamAPIKey},
		{"DISCORD_CLIENT_ID", cfg.DiscordClientID},
		{"DISCORD_CLIENT_SECRET", cfg.DiscordClientSecret},
		{"JWT_PRIVATE_KEY", cfg.JWTPrivateKey},
		{"JWT_PUBLIC_KEY", cfg.JWTPublicKey},
		{"CLIENTS", cfg.ClientsJSON},
		{"ROOT_URL", cfg.RootURL},
		{"SESSION_SECRET", cfg.SessionSecret},
	}
	var missing []string
	for _, r := range required {
		if strings.TrimSpace(r.value) == "" {
			missing = append(missing, r.name)
		}
	}
	if cfg.SessionStore == SessionStoreRedis && cfg.RedisURL == "" {
		missing = append(missing, "REDIS_URL")
	}
	if len(missing) > 0 {
		return nil, fmt.Errorf("required environment variables are not set: %v", missing)
	}

	clients, err := parseClients(cfg.ClientsJSON)
	if err != nil {
		return nil, err
	}
	cfg.Clients = clients

	root, err := url.Parse(cfg.RootURL)
	if err != nil || root.Host == "" || (root.Scheme != "http" && root.Scheme != "https") {
		return nil, fmt.Errorf("ROOT_URL must be an absolute http(s) url: %q", cfg.RootURL)
	}
	cfg.RootURL = strings.TrimRight(cfg.RootURL, "/")
	if cfg.Realm == "" {
		cfg.Realm = cfg.RootURL
	}
	cfg.CookieSecure = root.Scheme == "https"

	switch cfg.SessionStore {
	case SessionStorePostgres, SessionStoreRedis:
	default:
		return nil, fmt.Errorf("SESSION_STORE must be %q or %q: %q", SessionStorePostgres, SessionStoreRedis, cfg.SessionStore)
	}

	if cfg.IDTokenIssuer != "" && cfg.IDTokenJWKSURL == "" {
		return nil, fmt.Errorf("ID_TOKEN_JWKS_URL is required when ID_TOKEN_ISSUER is set")
	}

	// PEMを1行で渡す環境向けに "\n" エスケープを展開する
	cfg.JWTPrivateKey = unescapePEM(cfg.JWTPrivateKey)
	cfg.JWTPublicKey = unescapePEM(cfg.JWTPublicKey)

	return cfg, nil
}

// SteamCallbackURL はSteam OpenIDのreturn_toを返す。
func (c *Config) SteamCallbackURL() string {
	return c.RootURL + "/auth/steam/callback"
}

// DiscordCallbackURL はDiscord OAuth2のredirect_uriを返す。
func (c *Config) DiscordCallbackURL() string {
	return c.RootURL + "/auth/discord/callback"
}

// ClientIDs は登録済みclient_idをソートして返す。
func (c *Config) ClientIDs() []string {
	ids := make([]string, 0, len(c.Clients))
	for id := range c.Clients {
		ids = append(ids, id)
	}
	sort.Strings(ids)
	return ids
}

func parseClients(raw string) (map[string]string, error) {
	var clients map[string]string
	if err := json.Unmarshal([]byte(raw), &clients); err != nil {
		return nil, fmt.Errorf("CLIENTS must be a JSON object of client id to url: %w", err)
	}
	if len(clients) == 0 {
		return nil, fmt.Errorf("CLIENTS must register at least one client")
	}
	for id, raw := range clients {
		u, err := url.Parse(raw)
		if err != nil || u.Host == "" || (u.Scheme != "http" && u.Scheme != "https") {
			return nil, fmt.Errorf("CLIENTS[%q] must be an absolute http(s) url: %q", id, raw)
		}
	}
	return clients, nil
}

func unescapePEM(s string) string {
	return strings.ReplaceAll(s, `\n`, "\n")
}
