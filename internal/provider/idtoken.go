package provider

import (
	"context"
	"fmt"
	"net/http"

	"github.com/coreos/go-oidc/v3/oidc"

	"github.com/hitoshi/steamauth/internal/credential"
)

// VerifiedIDToken は検証済みid_tokenから取り出した主体。
type VerifiedIDToken struct {
	UID      string
	Audience string
}

// IDTokenVerifier はプライマリIdPで認証済みのユーザーを示すid_tokenを検証する。
type IDTokenVerifier interface {
	VerifyIDToken(ctx context.Context, rawToken string) (*VerifiedIDToken, error)
}

// OIDCConfig は外部発行のid_tokenを検証するための設定。
type OIDCConfig struct {
	Issuer   string
	JWKSURL  string
	Audience string

	HTTPClient *http.Client
}

// OIDCVerifier は外部のOIDC発行者（Firebase securetoken等）のid_tokenを検証する。
type OIDCVerifier struct {
	verifier *oidc.IDTokenVerifier
}

// NewOIDCVerifier はリモートJWKSから署名鍵を取得するOIDCVerifierを生成する。
// ctxは鍵の取得に使われるため、サーバーの寿命と同じものを渡す。
func NewOIDCVerifier(ctx context.Context, config OIDCConfig) (*OIDCVerifier, error) {
	if config.Issuer == "" || config.JWKSURL == "" {
		return nil, fmt.Errorf("issuer and jwks url are required")
	}
	if config.HTTPClient != nil {
		ctx = oidc.ClientContext(ctx, config.HTTPClient)
	}
	keySet := oidc.NewRemoteKeySet(ctx, config.JWKSURL)
	return NewOIDCVerifierWithKeySet(config.Issuer, config.Audience, keySet), nil
}

// NewOIDCVerifierWithKeySet は指定したKeySetで検証するOIDCVerifierを生成する。
// audienceが空の場合はaudを検証しない。
func NewOIDCVerifierWithKeySet(issuer, audience string, keySet oidc.KeySet) *OIDCVerifier {
	return &OIDCVerifier{
		verifier: oidc.NewVerifier(issuer, keySet, &oidc.Config{
			ClientID:          audience,
			SkipClientIDCheck: audience == "",
		}),
	}
}

// VerifyIDToken は署名・発行者・有効期限・audienceを検証する。
// Firebaseのid_tokenはuser_idクレームにuidを持つため、存在すればそちらを優先する。
func (v *OIDCVerifier) VerifyIDToken(ctx context.Context, rawToken string) (*VerifiedIDToken, error) {
	tok, err := v.verifier.Verify(ctx, rawToken)
	if err != nil {
		return nil, err
	}

	var claims struct {
		UserID string `json:"user_id"`
	}
	if err := tok.Claims(&claims); err != nil {
		return nil, fmt.Errorf("failed to decode id token claims: %w", err)
	}

	uid := claims.UserID
	if uid == "" {
		uid = tok.Subject
	}
	if uid == "" {
		return nil, fmt.Errorf("id token has no subject")
	}

	verified := &VerifiedIDToken{UID: uid}
	if len(tok.Audience) > 0 {
		verified.Audience = tok.Audience[0]
	}
	return verified, nil
}

// CredentialVerifier は自身が発行したクレデンシャルの検証インターフェース。
type CredentialVerifier interface {
	Verify(tokenString string) (*credential.Claims, error)
}

// LocalVerifier は本サービスが発行したログイン用クレデンシャルをid_tokenとして受け付ける。
// 外部の発行者が設定されていない場合に使用する。
// 長期クレデンシャルは受け付けない。
type LocalVerifier struct {
	issuer CredentialVerifier
}

// NewLocalVerifier はLocalVerifierを生成する。
func NewLocalVerifier(issuer CredentialVerifier) *LocalVerifier {
	return &LocalVerifier{issuer: issuer}
}

// VerifyIDToken はクレデンシャルの署名・有効期限・用途を検証する。
func (v *LocalVerifier) VerifyIDToken(ctx context.Context, rawToken string) (*VerifiedIDToken, error) {
	claims, err := v.issuer.Verify(rawToken)
	if err != nil {
		return nil, err
	}
	if claims.TokenUse != credential.UseLogin {
		return nil, fmt.Errorf("%w: token_use %q is not accepted as id token", credential.ErrInvalidToken, claims.TokenUse)
	}

	uid := claims.UID
	if uid == "" {
		uid = claims.Subject
	}
	verified := &VerifiedIDToken{UID: uid}
	if len(claims.Audience) > 0 {
		verified.Audience = claims.Audience[0]
	}
	return verified, nil
}

// compile-time interface check
var (
	_ IDTokenVerifier    = (*OIDCVerifier)(nil)
	_ IDTokenVerifier    = (*LocalVerifier)(nil)
	_ CredentialVerifier = (*credential.Issuer)(nil)
)
