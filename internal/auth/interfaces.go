package auth

import (
	"context"
	"net/http"
	"net/url"
	"time"

	"github.com/hitoshi/steamauth/internal/credential"
	"github.com/hitoshi/steamauth/internal/model"
	"github.com/hitoshi/steamauth/internal/provider"
)

// ClientResolver は登録済みクライアントのリダイレクト先を解決する。
type ClientResolver interface {
	Resolve(clientID string) (string, error)
	RedirectURL(clientID string, query url.Values) (string, error)
}

// SessionStore はセッションの発行と破棄を行う。
type SessionStore interface {
	Begin(ctx context.Context, w http.ResponseWriter, current *model.Session, state model.SessionState) (*model.Session, error)
	Destroy(ctx context.Context, w http.ResponseWriter, sess *model.Session) error
}

// SteamAuthenticator はプライマリIdP（Steam）への委譲を行う。
type SteamAuthenticator interface {
	AuthURL() string
	Authenticate(ctx context.Context, query url.Values) (*model.SteamIdentity, error)
}

// DiscordAuthenticator はセカンダリIdP（Discord）への委譲を行う。
type DiscordAuthenticator interface {
	AuthURL(state string) string
	Exchange(ctx context.Context, code string) (*model.DiscordIdentity, *model.StoredToken, error)
}

// IdentityLinker は外部アイデンティティとユーザーレコードを突き合わせる。
type IdentityLinker interface {
	ResolvePrimaryIdentity(ctx context.Context, steam *model.SteamIdentity) (*model.User, error)
	LinkSecondaryIdentity(ctx context.Context, userID string, discord *model.DiscordIdentity, token *model.StoredToken) error
}

// CredentialIssuer は署名済みクレデンシャルを発行する。
type CredentialIssuer interface {
	Issue(uid, audience string) (*credential.Credential, error)
	IssueLongLived(uid, audience string) (*credential.Credential, error)
}

// Recorder は認証フローのメトリクスを記録する。
type Recorder interface {
	RecordLogin(provider, outcome string)
	RecordLink(outcome string)
	RecordCredentialIssued(kind string)
	RecordProviderLatency(provider string, duration time.Duration)
}

// IDTokenVerifier はプライマリIdPで認証済みであることを示すid_tokenを検証する。
type IDTokenVerifier = provider.IDTokenVerifier
