// Package handler はHTTPハンドラーを提供する。
package handler

import (
	"context"
	"log/slog"
	"net/http"
	"net/url"

	"github.com/hitoshi/steamauth/internal/credential"
	"github.com/hitoshi/steamauth/internal/middleware"
	"github.com/hitoshi/steamauth/internal/model"
)

// AuthServiceInterface は認証ハンドラーが必要とするサービスインターフェース。
type AuthServiceInterface interface {
	FailureResolver
	StartSteam(ctx context.Context, w http.ResponseWriter, current *model.Session, clientID string) (string, error)
	CompleteSteam(ctx context.Context, w http.ResponseWriter, sess *model.Session, query url.Values) (string, error)
	StartDiscord(ctx context.Context, w http.ResponseWriter, current *model.Session, clientID, idToken string) (string, error)
	CompleteDiscord(ctx context.Context, w http.ResponseWriter, sess *model.Session, query url.Values) (string, error)
	Fail(ctx context.Context, w http.ResponseWriter, sess *model.Session) (string, error)
	ExchangeLongLived(ctx context.Context, idToken string) (*credential.Credential, error)
}

// AuthHandler はSteamログインとDiscord紐付けのHTTPハンドラー。
type AuthHandler struct {
	service AuthServiceInterface
}

// NewAuthHandler はAuthHandlerを生成する。
func NewAuthHandler(service AuthServiceInterface) *AuthHandler {
	return &AuthHandler{service: service}
}

// SteamLogin はSteamログインを開始する。
// GET /auth/steam?client_id=xxx
func (h *AuthHandler) SteamLogin(w http.ResponseWriter, r *http.Request) {
	target, err := h.service.StartSteam(r.Context(), w, middleware.SessionFromContext(r.Context()), r.URL.Query().Get("client_id"))
	if err != nil {
		if model.KindOf(err) == model.KindInvalidClientID {
			http.Error(w, "Invalid client id", http.StatusBadRequest)
			return
		}
		slog.Error("failed to start steam login", slog.String("error", err.Error()))
		http.Error(w, errorLoggingIn, http.StatusInternalServerError)
		return
	}
	http.Redirect(w, r, target, http.StatusFound)
}

// SteamCallback はSteamからのコールバックを処理する。
// GET /auth/steam/callback
func (h *AuthHandler) SteamCallback(w http.ResponseWriter, r *http.Request) error {
	target, err := h.service.CompleteSteam(r.Context(), w, middleware.SessionFromContext(r.Context()), r.URL.Query())
	if err != nil {
		return err
	}
	http.Redirect(w, r, target, http.StatusFound)
	return nil
}

// DiscordLogin はDiscord紐付けを開始する。
// GET /auth/discord?client_id=xxx&id_token=yyy
func (h *AuthHandler) DiscordLogin(w http.ResponseWriter, r *http.Request) {
	q := r.URL.Query()
	target, err := h.service.StartDiscord(r.Context(), w, middleware.SessionFromContext(r.Context()), q.Get("client_id"), q.Get("id_token"))
	if err != nil {
		switch model.KindOf(err) {
		case model.KindInvalidClientID:
			http.Error(w, "Missing or invalid client_id", http.StatusBadRequest)
		case model.KindMissingParameter:
			http.Error(w, "Missing id_token", http.StatusForbidden)
		case model.KindInvalidIDToken:
			http.Error(w, "Invalid id_token", http.StatusForbidden)
		default:
			slog.Error("failed to start discord link", slog.String("error", err.Error()))
			http.Error(w, errorLoggingIn, http.StatusInternalServerError)
		}
		return
	}
	http.Redirect(w, r, target, http.StatusFound)
}

// DiscordCallback はDiscordからのコールバックを処理する。
// GET /auth/discord/callback?code=xxx&state=yyy
func (h *AuthHandler) DiscordCallback(w http.ResponseWriter, r *http.Request) error {
	target, err := h.service.CompleteDiscord(r.Context(), w, middleware.SessionFromContext(r.Context()), r.URL.Query())
	if err != nil {
		return err
	}
	http.Redirect(w, r, target, http.StatusFound)
	return nil
}

// Fail はIdPでの認証失敗をクライアントへ伝える。
// GET /fail
func (h *AuthHandler) Fail(w http.ResponseWriter, r *http.Request) {
	target, err := h.service.Fail(r.Context(), w, middleware.SessionFromContext(r.Context()))
	if err != nil {
		slog.Warn("fail callback without client", slog.String("error", err.Error()))
		http.Error(w, errorLoggingIn, http.StatusInternalServerError)
		return
	}
	http.Redirect(w, r, target, http.StatusFound)
}
