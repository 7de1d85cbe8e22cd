package app

import (
	"context"
	"database/sql"
	"fmt"
	"log/slog"
	"net/http"

	"github.com/prometheus/client_golang/prometheus"

	"github.com/hitoshi/steamauth/internal/auth"
	"github.com/hitoshi/steamauth/internal/client"
	"github.com/hitoshi/steamauth/internal/config"
	"github.com/hitoshi/steamauth/internal/credential"
	"github.com/hitoshi/steamauth/internal/handler"
	"github.com/hitoshi/steamauth/internal/identity"
	"github.com/hitoshi/steamauth/internal/metrics"
	"github.com/hitoshi/steamauth/internal/middleware"
	"github.com/hitoshi/steamauth/internal/provider"
	"github.com/hitoshi/steamauth/internal/repository"
	"github.com/hitoshi/steamauth/internal/security"
	"github.com/hitoshi/steamauth/internal/session"
)

// server はserveモードで組み立てたHTTPハンドラーと、終了時に解放するリソース。
type server struct {
	Handler http.Handler
	closers []func()
}

// Close は組み立て時に確保したリソースを逆順に解放する。
func (s *server) Close() {
	for i := len(s.closers) - 1; i >= 0; i-- {
		s.closers[i]()
	}
}

// buildServer は設定からserveモードの全依存関係を組み立てる。
// ctxはOIDC鍵の取得に使われるため、サーバーの寿命と同じものを渡す。
func buildServer(ctx context.Context, cfg *config.Config, db *sql.DB, reg *prometheus.Registry) (*server, error) {
	srv := &server{}
	fail := func(err error) (*server, error) {
		srv.Close()
		return nil, err
	}

	// 1. リポジトリの初期化
	userRepo := repository.NewPostgresUserRepo(db)
	profileRepo := repository.NewPostgresProfileRepo(db)
	tokenRepo := repository.NewPostgresTokenRepo(db)

	var sessionRepo repository.SessionRepository
	switch cfg.SessionStore {
	case config.SessionStoreRedis:
		redisRepo, err := repository.NewRedisSessionRepo(ctx, cfg.RedisURL)
		if err != nil {
			return fail(err)
		}
		srv.closers = append(srv.closers, func() { _ = redisRepo.Close() })
		sessionRepo = redisRepo
	default:
		sessionRepo = repository.NewPostgresSessionRepo(db)
	}
	slog.Info("session store configured", slog.String("store", cfg.SessionStore))

	// 2. セッション・クライアント・クレデンシャル
	sessions, err := session.NewManager(sessionRepo, session.Config{
		Secret:       cfg.SessionSecret,
		TTL:          cfg.SessionTTL,
		CookieDomain: cfg.CookieDomain,
		CookieSecure: cfg.CookieSecure,
	})
	if err != nil {
		return fail(fmt.Errorf("failed to configure sessions: %w", err))
	}

	registry, err := client.NewRegistry(cfg.Clients)
	if err != nil {
		return fail(fmt.Errorf("failed to load clients: %w", err))
	}

	issuer, err := credential.NewIssuer(credential.Config{
		PrivateKeyPEM: cfg.JWTPrivateKey,
		PublicKeyPEM:  cfg.JWTPublicKey,
		Issuer:        cfg.JWTIssuer,
		Algorithm:     cfg.JWTAlgorithm,
		TTL:           cfg.CredentialTTL,
		LongLivedTTL:  cfg.LongLivedTokenTTL,
	})
	if err != nil {
		return fail(fmt.Errorf("failed to configure credential issuer: %w", err))
	}

	// 3. IdPプロバイダー（外向き通信はSSRFガード付きクライアントを使う）
	outbound := security.NewOutboundClient(security.DefaultOutboundTimeout)

	steam := provider.NewSteamProvider(provider.SteamConfig{
		APIKey:     cfg.SteamAPIKey,
		ReturnURL:  cfg.SteamCallbackURL(),
		Realm:      cfg.Realm,
		HTTPClient: outbound,
	})
	discord := provider.NewDiscordProvider(provider.DiscordConfig{
		ClientID:     cfg.DiscordClientID,
		ClientSecret: cfg.DiscordClientSecret,
		RedirectURL:  cfg.DiscordCallbackURL(),
		Scopes:       cfg.DiscordScopes,
		HTTPClient:   outbound,
	})

	idTokens, err := newIDTokenVerifier(ctx, cfg, issuer, outbound)
	if err != nil {
		return fail(err)
	}

	// 4. ドメインサービス
	collector := metrics.NewCollector(reg)
	linker := identity.NewLinker(userRepo, profileRepo, tokenRepo, security.NewDisplayNameSanitizer())
	orchestrator := auth.NewOrchestrator(registry, sessions, steam, discord, idTokens, linker, issuer, collector)

	// 5. ルーター
	limiter := middleware.NewRateLimiter(middleware.NewRateLimiterConfig(cfg.RateLimitAuth, cfg.RateLimitToken))
	srv.closers = append(srv.closers, limiter.Stop)

	srv.Handler = handler.NewRouter(&handler.RouterDeps{
		SessionLoader:  sessions,
		AllowedOrigins: registry.Origins(),
		RateLimiter:    limiter,
		Logger:         slog.Default(),
		StatusRecorder: collector,
		AuthService:    orchestrator,
		Keys:           issuer,
		HealthChecker:  db,
		MetricsHandler: metrics.Handler(reg),
	})

	return srv, nil
}

// newIDTokenVerifier はid_tokenの検証器を選ぶ。
// ID_TOKEN_ISSUERが設定されていれば外部OIDC発行者、なければ自身の署名鍵で検証する。
func newIDTokenVerifier(ctx context.Context, cfg *config.Config, issuer *credential.Issuer, httpClient *http.Client) (provider.IDTokenVerifier, error) {
	if cfg.IDTokenIssuer == "" {
		slog.Info("id tokens verified with local signing key")
		return provider.NewLocalVerifier(issuer), nil
	}

	if err := security.ValidateEndpoint(cfg.IDTokenJWKSURL); err != nil {
		return nil, fmt.Errorf("invalid ID_TOKEN_JWKS_URL: %w", err)
	}
	verifier, err := provider.NewOIDCVerifier(ctx, provider.OIDCConfig{
		Issuer:     cfg.IDTokenIssuer,
		JWKSURL:    cfg.IDTokenJWKSURL,
		Audience:   cfg.IDTokenAudience,
		HTTPClient: httpClient,
	})
	if err != nil {
		return nil, fmt.Errorf("failed to configure id token verifier: %w", err)
	}
	slog.Info("id tokens verified with external issuer", slog.String("issuer", cfg.IDTokenIssuer))
	return verifier, nil
}
