// Package provider は外部IdP（Steam, Discord）への委譲とid_tokenの検証を提供する。
package provider

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"regexp"

	"github.com/yohcop/openid-go"

	"github.com/hitoshi/steamauth/internal/model"
)

const (
	defaultSteamOpenIDEndpoint     = "https://steamcommunity.com/openid/login"
	defaultSteamPlayerSummariesURL = "https://api.steampowered.com/ISteamUser/GetPlayerSummaries/v0002/"

	openIDNamespace        = "http://specs.openid.net/auth/2.0"
	openIDIdentifierSelect = "http://specs.openid.net/auth/2.0/identifier_select"

	maxProviderResponseSize = 1 << 20
)

var steamClaimedIDPattern = regexp.MustCompile(`^https?://steamcommunity\.com/openid/id/(\d+)$`)

// SteamConfig はSteamプロバイダーの設定。
type SteamConfig struct {
	APIKey    string
	ReturnURL string // ROOT_URL + /auth/steam/callback
	Realm     string

	// テスト用にオーバーライド可能なURL
	OpenIDEndpoint     string
	PlayerSummariesURL string

	HTTPClient *http.Client
}

// SteamProvider はSteam OpenID 2.0による認証とプロフィール取得を提供する。
type SteamProvider struct {
	config    SteamConfig
	client    *http.Client
	openID    *openid.OpenID
	nonces    openid.NonceStore
	discovery openid.DiscoveryCache
}

// NewSteamProvider はSteamProviderを生成する。
func NewSteamProvider(config SteamConfig) *SteamProvider {
	if config.OpenIDEndpoint == "" {
		config.OpenIDEndpoint = defaultSteamOpenIDEndpoint
	}
	if config.PlayerSummariesURL == "" {
		config.PlayerSummariesURL = defaultSteamPlayerSummariesURL
	}
	if config.Realm == "" {
		config.Realm = config.ReturnURL
	}
	client := config.HTTPClient
	if client == nil {
		client = http.DefaultClient
	}
	return &SteamProvider{
		config:    config,
		client:    client,
		openID:    openid.NewOpenID(client),
		nonces:    openid.NewSimpleNonceStore(),
		discovery: steamDiscovery{endpoint: config.OpenIDEndpoint},
	}
}

// AuthURL はSteamのOpenIDログインURLを生成する。
func (p *SteamProvider) AuthURL() string {
	params := url.Values{
		"openid.ns":         {openIDNamespace},
		"openid.mode":       {"checkid_setup"},
		"openid.return_to":  {p.config.ReturnURL},
		"openid.realm":      {p.config.Realm},
		"openid.identity":   {openIDIdentifierSelect},
		"openid.claimed_id": {openIDIdentifierSelect},
	}
	return p.config.OpenIDEndpoint + "?" + params.Encode()
}

// Authenticate はコールバックのアサーションを検証し、Steamプロフィールを取得する。
func (p *SteamProvider) Authenticate(ctx context.Context, query url.Values) (*model.SteamIdentity, error) {
	steamID, err := p.Verify(ctx, query)
	if err != nil {
		return nil, err
	}
	return p.FetchProfile(ctx, steamID)
}

// Verify はOpenIDアサーションを検証し、SteamIDを返す。
// return_to、署名対象フィールド、response_nonce の鮮度と再利用、check_authentication による署名を検証する。
func (p *SteamProvider) Verify(ctx context.Context, query url.Values) (string, error) {
	switch mode := query.Get("openid.mode"); mode {
	case "id_res":
	case "cancel":
		return "", fmt.Errorf("steam login cancelled by user")
	default:
		return "", fmt.Errorf("unexpected openid.mode %q", mode)
	}

	// 設定と異なるOPへの問い合わせは行わない
	if query.Get("openid.op_endpoint") != p.config.OpenIDEndpoint {
		return "", fmt.Errorf("unexpected openid.op_endpoint %q", query.Get("openid.op_endpoint"))
	}
	if !steamClaimedIDPattern.MatchString(query.Get("openid.claimed_id")) {
		return "", fmt.Errorf("invalid openid.claimed_id %q", query.Get("openid.claimed_id"))
	}
	if err := ctx.Err(); err != nil {
		return "", err
	}

	claimedID, err := p.openID.Verify(p.config.ReturnURL+"?"+query.Encode(), p.discovery, p.nonces)
	if err != nil {
		return "", fmt.Errorf("steam rejected openid assertion: %w", err)
	}

	m := steamClaimedIDPattern.FindStringSubmatch(claimedID)
	if m == nil {
		return "", fmt.Errorf("invalid openid.claimed_id %q", claimedID)
	}
	return m[1], nil
}

// steamDiscovery はSteamのOPエンドポイントが固定であることを利用し、
// claimed_id のディスカバリーをネットワークに問い合わせずに解決する。
type steamDiscovery struct {
	endpoint string
}

func (d steamDiscovery) Put(string, openid.DiscoveredInfo) {}

func (d steamDiscovery) Get(id string) openid.DiscoveredInfo {
	if !steamClaimedIDPattern.MatchString(id) {
		return nil
	}
	return steamDiscoveredInfo{endpoint: d.endpoint, claimedID: id}
}

type steamDiscoveredInfo struct {
	endpoint  string
	claimedID string
}

func (i steamDiscoveredInfo) OpEndpoint() string { return i.endpoint }
func (i steamDiscoveredInfo) OpLocalID() string  { return i.claimedID }
func (i steamDiscoveredInfo) ClaimedID() string  { return i.claimedID }

// steamPlayerSummaries はGetPlayerSummariesのレスポンス。
type steamPlayerSummaries struct {
	Response struct {
		Players []json.RawMessage `json:"players"`
	} `json:"response"`
}

// steamPlayer はplayerオブジェクトのうち使用するフィールド。
type steamPlayer struct {
	SteamID     string `json:"steamid"`
	PersonaName string `json:"personaname"`
	AvatarFull  string `json:"avatarfull"`
}

// FetchProfile はSteam Web APIからプレイヤー情報を取得する。
func (p *SteamProvider) FetchProfile(ctx context.Context, steamID string) (*model.SteamIdentity, error) {
	params := url.Values{
		"key":      {p.config.APIKey},
		"steamids": {steamID},
	}
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, p.config.PlayerSummariesURL+"?"+params.Encode(), nil)
	if err != nil {
		return nil, fmt.Errorf("failed to create player summaries request: %w", err)
	}

	body, err := p.do(req)
	if err != nil {
		return nil, fmt.Errorf("failed to fetch player summaries: %w", err)
	}

	var summaries steamPlayerSummaries
	if err := json.Unmarshal(body, &summaries); err != nil {
		return nil, fmt.Errorf("failed to parse player summaries: %w", err)
	}
	if len(summaries.Response.Players) == 0 {
		return nil, fmt.Errorf("steam player %s not found", steamID)
	}

	raw := summaries.Response.Players[0]
	var player steamPlayer
	if err := json.Unmarshal(raw, &player); err != nil {
		return nil, fmt.Errorf("failed to parse player: %w", err)
	}
	if player.SteamID != steamID {
		return nil, fmt.Errorf("player summaries returned steamid %q, want %q", player.SteamID, steamID)
	}

	return &model.SteamIdentity{
		SteamID:     player.SteamID,
		DisplayName: player.PersonaName,
		AvatarURL:   player.AvatarFull,
		Raw:         raw,
	}, nil
}

func (p *SteamProvider) do(req *http.Request) ([]byte, error) {
	resp, err := p.client.Do(req)
	if err != nil {
		return nil, err
	}
	defer resp.Body.Close()

	body, err := io.ReadAll(io.LimitReader(resp.Body, maxProviderResponseSize))
	if err != nil {
		return nil, fmt.Errorf("failed to read response: %w", err)
	}
	if resp.StatusCode != http.StatusOK {
		return nil, fmt.Errorf("unexpected status %d", resp.StatusCode)
	}
	return body, nil
}
