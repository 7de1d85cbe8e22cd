package handler

import (
	"log/slog"
	"net/http"

	"github.com/go-chi/chi/v5"
	chimw "github.com/go-chi/chi/v5/middleware"

	"github.com/hitoshi/steamauth/internal/middleware"
)

// RouterDeps はNewRouterに必要な依存関係をまとめた構造体。
type RouterDeps struct {
	// ミドルウェア依存
	SessionLoader  middleware.SessionLoader
	AllowedOrigins []string
	RateLimiter    *middleware.RateLimiter
	Logger         *slog.Logger
	StatusRecorder middleware.HTTPStatusRecorder

	// 認証
	AuthService AuthServiceInterface

	// クレデンシャル
	Keys KeyPublisher

	// 運用
	HealthChecker  HealthChecker
	MetricsHandler http.Handler
}

// NewRouter は全エンドポイントのルーティングとミドルウェアチェーンを構成したchi.Routerを返す。
//
// ミドルウェアスタックの実行順序:
//
//	RealIP → Recovery → SecurityHeaders → CORS → Session → Logging
//
// 認証エントリポイントと /longlived-token にはIPごとのレート制限を追加する。
func NewRouter(deps *RouterDeps) http.Handler {
	r := chi.NewRouter()

	logger := deps.Logger
	if logger == nil {
		logger = slog.Default()
	}

	r.Use(chimw.RealIP)
	r.Use(middleware.NewRecoveryMiddleware())
	r.Use(middleware.NewSecurityHeadersMiddleware())
	r.Use(middleware.NewCORSMiddleware(deps.AllowedOrigins))
	r.Use(middleware.NewSessionMiddleware(deps.SessionLoader))
	r.Use(middleware.NewLoggingMiddleware(logger, deps.StatusRecorder))

	authHandler := NewAuthHandler(deps.AuthService)
	jwtHandler := NewJWTHandler(deps.Keys, deps.AuthService)
	healthHandler := NewHealthHandler(deps.HealthChecker)

	// 認証フロー
	r.Route("/auth", func(r chi.Router) {
		r.With(deps.RateLimiter.AuthMiddleware()).Get("/steam", authHandler.SteamLogin)
		r.Get("/steam/callback", Scoped(RedirectOnError, deps.AuthService, authHandler.SteamCallback))

		r.With(deps.RateLimiter.AuthMiddleware()).Get("/discord", authHandler.DiscordLogin)
		r.Get("/discord/callback", Scoped(RedirectOnError, deps.AuthService, authHandler.DiscordCallback))
	})
	r.Get("/fail", authHandler.Fail)

	// クレデンシャル
	r.Get("/jwt-public", jwtHandler.PublicKey)
	r.Get("/.well-known/jwks.json", jwtHandler.JWKS)
	r.With(deps.RateLimiter.TokenMiddleware()).Post("/longlived-token", Scoped(JSONOnError, nil, jwtHandler.LongLivedToken))

	// 運用
	r.Get("/healthz", healthHandler.Healthz)
	r.Get("/version", healthHandler.Version)
	if deps.MetricsHandler != nil {
		r.Handle("/metrics", deps.MetricsHandler)
	}

	return r
}
