// Package credential はクライアントアプリケーション向けの署名付きクレデンシャル（JWT）を発行・検証する。
package credential

import (
	"crypto"
	"crypto/rsa"
	"crypto/x509"
	"encoding/base64"
	"encoding/pem"
	"errors"
	"fmt"
	"time"

	"github.com/go-jose/go-jose/v4"
	"github.com/golang-jwt/jwt/v5"
)

var (
	ErrInvalidToken = errors.New("invalid token")
	ErrExpiredToken = errors.New("token expired")
)

// Config はIssuerの設定。
type Config struct {
	PrivateKeyPEM string
	PublicKeyPEM  string
	Issuer        string
	Algorithm     string           // RS256, RS384, RS512
	TTL           time.Duration    // Steamログイン直後に発行するクレデンシャルの有効期間
	LongLivedTTL  time.Duration    // /longlived-token で発行するクレデンシャルの有効期間
	Now           func() time.Time // nilの場合は time.Now
}

// クレデンシャルの用途。token_use クレームに載せる。
const (
	// UseLogin はSteamログイン直後に発行する短期クレデンシャル。
	UseLogin = "login"
	// UseLongLived は /longlived-token で発行する長期クレデンシャル。
	UseLongLived = "long_lived"
)

// Claims は発行するクレデンシャルのペイロード。
type Claims struct {
	UID      string `json:"uid"`
	TokenUse string `json:"token_use"`
	jwt.RegisteredClaims
}

// Credential は発行済みトークンと絶対有効期限。
type Credential struct {
	Token     string
	ExpiresAt time.Time
}

// ExpiresAtMillis は有効期限をミリ秒単位のUNIX時刻で返す。
func (c *Credential) ExpiresAtMillis() int64 {
	return c.ExpiresAt.UnixMilli()
}

// Issuer は非対称鍵でクレデンシャルを署名する。
// 署名鍵以外の状態を持たず、並行利用しても安全。
type Issuer struct {
	privateKey   *rsa.PrivateKey
	publicKey    *rsa.PublicKey
	publicPEM    string
	keyID        string
	method       jwt.SigningMethod
	issuer       string
	ttl          time.Duration
	longLivedTTL time.Duration
	now          func() time.Time
}

// NewIssuer はIssuerを生成する。
// 公開鍵PEMが指定された場合は秘密鍵と対になっているかを検証する。
func NewIssuer(cfg Config) (*Issuer, error) {
	privateKey, err := jwt.ParseRSAPrivateKeyFromPEM([]byte(cfg.PrivateKeyPEM))
	if err != nil {
		return nil, fmt.Errorf("failed to parse signing key: %w", err)
	}

	publicKey := &privateKey.PublicKey
	publicPEM := cfg.PublicKeyPEM
	if publicPEM != "" {
		parsed, err := jwt.ParseRSAPublicKeyFromPEM([]byte(publicPEM))
		if err != nil {
			return nil, fmt.Errorf("failed to parse public key: %w", err)
		}
		if !parsed.Equal(publicKey) {
			return nil, fmt.Errorf("public key does not match signing key")
		}
	} else {
		publicPEM, err = encodePublicKey(publicKey)
		if err != nil {
			return nil, err
		}
	}

	method, err := signingMethod(cfg.Algorithm)
	if err != nil {
		return nil, err
	}

	keyID, err := deriveKeyID(publicKey)
	if err != nil {
		return nil, err
	}

	if cfg.TTL <= 0 {
		return nil, fmt.Errorf("credential ttl must be positive")
	}
	if cfg.LongLivedTTL <= 0 {
		return nil, fmt.Errorf("long-lived credential ttl must be positive")
	}

	now := cfg.Now
	if now == nil {
		now = time.Now
	}

	return &Issuer{
		privateKey:   privateKey,
		publicKey:    publicKey,
		publicPEM:    publicPEM,
		keyID:        keyID,
		method:       method,
		issuer:       cfg.Issuer,
		ttl:          cfg.TTL,
		longLivedTTL: cfg.LongLivedTTL,
		now:          now,
	}, nil
}

// Issue はuidを主体とする短期クレデンシャルを発行する。
func (i *Issuer) Issue(uid, audience string) (*Credential, error) {
	return i.sign(uid, audience, UseLogin, i.ttl)
}

// IssueLongLived はuidを主体とする長期クレデンシャルを発行する。
func (i *Issuer) IssueLongLived(uid, audience string) (*Credential, error) {
	return i.sign(uid, audience, UseLongLived, i.longLivedTTL)
}

func (i *Issuer) sign(uid, audience, use string, ttl time.Duration) (*Credential, error) {
	if uid == "" {
		return nil, fmt.Errorf("uid is required")
	}

	now := i.now()
	expiresAt := now.Add(ttl).Truncate(time.Second)

	claims := &Claims{
		UID:      uid,
		TokenUse: use,
		RegisteredClaims: jwt.RegisteredClaims{
			Issuer:    i.issuer,
			Subject:   uid,
			ExpiresAt: jwt.NewNumericDate(expiresAt),
			IssuedAt:  jwt.NewNumericDate(now),
		},
	}
	if audience != "" {
		claims.Audience = jwt.ClaimStrings{audience}
	}

	token := jwt.NewWithClaims(i.method, claims)
	token.Header["kid"] = i.keyID

	signed, err := token.SignedString(i.privateKey)
	if err != nil {
		return nil, fmt.Errorf("failed to sign token: %w", err)
	}

	return &Credential{Token: signed, ExpiresAt: expiresAt}, nil
}

// Verify は署名・発行者・有効期限を検証してクレームを返す。
func (i *Issuer) Verify(tokenString string) (*Claims, error) {
	token, err := jwt.ParseWithClaims(tokenString, &Claims{}, func(token *jwt.Token) (interface{}, error) {
		if token.Method.Alg() != i.method.Alg() {
			return nil, ErrInvalidToken
		}
		return i.publicKey, nil
	},
		jwt.WithIssuer(i.issuer),
		jwt.WithTimeFunc(i.now),
		jwt.WithExpirationRequired(),
	)
	if err != nil {
		if errors.Is(err, jwt.ErrTokenExpired) {
			return nil, ErrExpiredToken
		}
		return nil, fmt.Errorf("%w: %v", ErrInvalidToken, err)
	}

	claims, ok := token.Claims.(*Claims)
	if !ok || !token.Valid || claims.Subject == "" {
		return nil, ErrInvalidToken
	}

	return claims, nil
}

// PublicKey は検証用公開鍵をPEM形式で返す。
func (i *Issuer) PublicKey() string {
	return i.publicPEM
}

// KeyID は公開鍵のRFC 7638 thumbprintを返す。
func (i *Issuer) KeyID() string {
	return i.keyID
}

// JWKS は検証用公開鍵をJWK Setとして返す。
func (i *Issuer) JWKS() jose.JSONWebKeySet {
	return jose.JSONWebKeySet{
		Keys: []jose.JSONWebKey{{
			Key:       i.publicKey,
			KeyID:     i.keyID,
			Algorithm: i.method.Alg(),
			Use:       "sig",
		}},
	}
}

func signingMethod(alg string) (jwt.SigningMethod, error) {
	switch alg {
	case "", "RS256":
		return jwt.SigningMethodRS256, nil
	case "RS384":
		return jwt.SigningMethodRS384, nil
	case "RS512":
		return jwt.SigningMethodRS512, nil
	}
	return nil, fmt.Errorf("unsupported signing algorithm %q", alg)
}

func encodePublicKey(key *rsa.PublicKey) (string, error) {
	der, err := x509.MarshalPKIXPublicKey(key)
	if err != nil {
		return "", fmt.Errorf("failed to encode public key: %w", err)
	}
	return string(pem.EncodeToMemory(&pem.Block{Type: "PUBLIC KEY", Bytes: der})), nil
}

func deriveKeyID(key *rsa.PublicKey) (string, error) {
	jwk := jose.JSONWebKey{Key: key}
	thumbprint, err := jwk.Thumbprint(crypto.SHA256)
	if err != nil {
		return "", fmt.Errorf("failed to compute key thumbprint: %w", err)
	}
	return base64.RawURLEncoding.EncodeToString(thumbprint), nil
}
