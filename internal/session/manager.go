// Package session はリダイレクト往復中のセッションをCookieとセッションストアで管理する。
package session

import (
	"context"
	"crypto/hmac"
	"crypto/rand"
	"crypto/sha256"
	"encoding/base64"
	"encoding/hex"
	"fmt"
	"log/slog"
	"net/http"
	"strings"
	"time"

	"github.com/hitoshi/steamauth/internal/model"
	"github.com/hitoshi/steamauth/internal/repository"
)

// DefaultCookieName はセッションCookieの名前。
const DefaultCookieName = "steamauth_sid"

// Config はセッションマネージャーの設定。
type Config struct {
	Secret       string
	TTL          time.Duration
	CookieName   string
	CookieDomain string
	CookieSecure bool
}

// Manager はセッションの生成・読み込み・破棄を行う。
// Cookieにはセッションストアのキーと、その署名のみを格納する。
type Manager struct {
	repo   repository.SessionRepository
	config Config
	now    func() time.Time
}

// NewManager はManagerを生成する。
func NewManager(repo repository.SessionRepository, config Config) (*Manager, error) {
	if config.Secret == "" {
		return nil, fmt.Errorf("session secret is required")
	}
	if config.TTL <= 0 {
		return nil, fmt.Errorf("session ttl must be positive")
	}
	if config.CookieName == "" {
		config.CookieName = DefaultCookieName
	}
	return &Manager{repo: repo, config: config, now: time.Now}, nil
}

// Load はリクエストのCookieからセッションを読み込む。
// Cookieが無い、署名が不正、または期限切れの場合はnilを返す。
func (m *Manager) Load(ctx context.Context, r *http.Request) (*model.Session, error) {
	cookie, err := r.Cookie(m.config.CookieName)
	if err != nil || cookie.Value == "" {
		return nil, nil
	}

	id, ok := m.verify(cookie.Value)
	if !ok {
		slog.Warn("session cookie signature mismatch")
		return nil, nil
	}

	sess, err := m.repo.FindByID(ctx, id)
	if err != nil {
		return nil, fmt.Errorf("failed to load session: %w", err)
	}
	if sess == nil || !sess.ExpiresAt.After(m.now()) {
		return nil, nil
	}
	return sess, nil
}

// Begin は現在のセッションを破棄して新しいIDのセッションを発行し、stateを保存する。
// セッション固定攻撃を防ぐため、ログインの入口では必ずこれを呼ぶ。
func (m *Manager) Begin(ctx context.Context, w http.ResponseWriter, current *model.Session, state model.SessionState) (*model.Session, error) {
	if current != nil {
		if err := m.repo.DeleteByID(ctx, current.ID); err != nil {
			return nil, fmt.Errorf("failed to discard previous session: %w", err)
		}
	}

	id, err := generateSessionID()
	if err != nil {
		return nil, fmt.Errorf("failed to generate session ID: %w", err)
	}

	now := m.now()
	sess := &model.Session{
		ID:        id,
		State:     state,
		ExpiresAt: now.Add(m.config.TTL),
		CreatedAt: now,
	}
	if err := m.repo.Save(ctx, sess); err != nil {
		return nil, err
	}

	http.SetCookie(w, &http.Cookie{
		Name:     m.config.CookieName,
		Value:    m.sign(id),
		Path:     "/",
		Domain:   m.config.CookieDomain,
		MaxAge:   int(m.config.TTL.Seconds()),
		HttpOnly: true,
		Secure:   m.config.CookieSecure,
		SameSite: http.SameSiteLaxMode,
	})

	return sess, nil
}

// Destroy はセッションをストアから削除し、Cookieをクリアする。
func (m *Manager) Destroy(ctx context.Context, w http.ResponseWriter, sess *model.Session) error {
	http.SetCookie(w, &http.Cookie{
		Name:     m.config.CookieName,
		Value:    "",
		Path:     "/",
		Domain:   m.config.CookieDomain,
		MaxAge:   -1,
		HttpOnly: true,
		Secure:   m.config.CookieSecure,
		SameSite: http.SameSiteLaxMode,
	})

	if sess == nil {
		return nil
	}
	if err := m.repo.DeleteByID(ctx, sess.ID); err != nil {
		return fmt.Errorf("failed to destroy session: %w", err)
	}
	return nil
}

func (m *Manager) sign(id string) string {
	return id + "." + m.mac(id)
}

func (m *Manager) verify(value string) (string, bool) {
	id, sig, ok := strings.Cut(value, ".")
	if !ok || id == "" {
		return "", false
	}
	if !hmac.Equal([]byte(sig), []byte(m.mac(id))) {
		return "", false
	}
	return id, true
}

func (m *Manager) mac(id string) string {
	h := hmac.New(sha256.New, []byte(m.config.Secret))
	h.Write([]byte(id))
	return base64.RawURLEncoding.EncodeToString(h.Sum(nil))
}

// generateSessionID は暗号的に安全なセッションIDを生成する。
func generateSessionID() (string, error) {
	b := make([]byte, 32)
	if _, err := rand.Read(b); err != nil {
		return "", err
	}
	return hex.EncodeToString(b), nil
}
