// Package auth はSteamログインとDiscord紐付けのリダイレクトフローを駆動する。
package auth

import (
	"context"
	"crypto/rand"
	"encoding/base64"
	"fmt"
	"log/slog"
	"net/http"
	"net/url"
	"time"

	"github.com/hitoshi/steamauth/internal/credential"
	"github.com/hitoshi/steamauth/internal/metrics"
	"github.com/hitoshi/steamauth/internal/model"
)

// FailPath はIdPでの認証失敗時のリダイレクト先。
const FailPath = "/fail"

// Orchestrator はクライアント検証 → IdPへの委譲 → コールバック → アイデンティティ解決 →
// クレデンシャル発行 → クライアントへのリダイレクト、の一連の流れを実行する。
type Orchestrator struct {
	clients  ClientResolver
	sessions SessionStore
	steam    SteamAuthenticator
	discord  DiscordAuthenticator
	idTokens IDTokenVerifier
	linker   IdentityLinker
	issuer   CredentialIssuer
	recorder Recorder
	now      func() time.Time
	newState func() (string, error)
}

// NewOrchestrator はOrchestratorを生成する。recorderがnilの場合はメトリクスを記録しない。
func NewOrchestrator(
	clients ClientResolver,
	sessions SessionStore,
	steam SteamAuthenticator,
	discord DiscordAuthenticator,
	idTokens IDTokenVerifier,
	linker IdentityLinker,
	issuer CredentialIssuer,
	recorder Recorder,
) *Orchestrator {
	if recorder == nil {
		recorder = nopRecorder{}
	}
	return &Orchestrator{
		clients:  clients,
		sessions: sessions,
		steam:    steam,
		discord:  discord,
		idTokens: idTokens,
		linker:   linker,
		issuer:   issuer,
		recorder: recorder,
		now:      time.Now,
		newState: generateOAuthState,
	}
}

// StartSteam はSteamログインを開始し、IdPのログインURLを返す。
// client_idが未登録の場合はセッションに触れる前にInvalidClientIDを返す。
func (o *Orchestrator) StartSteam(ctx context.Context, w http.ResponseWriter, current *model.Session, clientID string) (string, error) {
	if _, err := o.clients.Resolve(clientID); err != nil {
		return "", err
	}

	state := model.PendingState{ClientID: clientID, Provider: model.ProviderSteam}
	if _, err := o.sessions.Begin(ctx, w, current, state); err != nil {
		return "", fmt.Errorf("failed to begin session: %w", err)
	}

	return o.steam.AuthURL(), nil
}

// CompleteSteam はSteamからのコールバックを処理し、クレデンシャル付きのクライアントURLを返す。
func (o *Orchestrator) CompleteSteam(ctx context.Context, w http.ResponseWriter, sess *model.Session, query url.Values) (string, error) {
	pending, ok := sess.PendingState()
	if !ok {
		o.recorder.RecordLogin(string(model.ProviderSteam), metrics.OutcomeFailure)
		return "", model.NewSessionInvalidError("no pending login")
	}
	if pending.Provider != model.ProviderSteam {
		o.recorder.RecordLogin(string(model.ProviderSteam), metrics.OutcomeFailure)
		return "", model.NewUnhandledProviderError(pending.Provider)
	}

	started := o.now()
	steamIdentity, err := o.steam.Authenticate(ctx, query)
	o.recorder.RecordProviderLatency(string(model.ProviderSteam), o.now().Sub(started))
	if err != nil {
		o.recorder.RecordLogin(string(model.ProviderSteam), metrics.OutcomeFailure)
		return "", model.NewProviderFailureError(model.ProviderSteam, err)
	}

	user, err := o.linker.ResolvePrimaryIdentity(ctx, steamIdentity)
	if err != nil {
		o.recorder.RecordLogin(string(model.ProviderSteam), metrics.OutcomeFailure)
		return "", fmt.Errorf("failed to resolve steam identity: %w", err)
	}

	cred, err := o.issuer.Issue(user.ID, pending.ClientID)
	if err != nil {
		o.recorder.RecordLogin(string(model.ProviderSteam), metrics.OutcomeFailure)
		return "", model.NewSigningFailureError(err)
	}
	o.recorder.RecordCredentialIssued(metrics.CredentialLogin)

	redirect, err := o.clients.RedirectURL(pending.ClientID, url.Values{
		"provider": {string(model.ProviderSteam)},
		"token":    {cred.Token},
	})
	if err != nil {
		o.recorder.RecordLogin(string(model.ProviderSteam), metrics.OutcomeFailure)
		return "", err
	}

	o.finish(ctx, w, sess)
	o.recorder.RecordLogin(string(model.ProviderSteam), metrics.OutcomeSuccess)
	slog.Info("credential issued",
		slog.String("user_id", user.ID),
		slog.String("client_id", pending.ClientID),
		slog.String("provider", string(model.ProviderSteam)),
	)
	return redirect, nil
}

// StartDiscord はDiscord紐付けを開始し、IdPの認可URLを返す。
// id_tokenで認証済みのユーザーIDをセッションに保持する。
func (o *Orchestrator) StartDiscord(ctx context.Context, w http.ResponseWriter, current *model.Session, clientID, idToken string) (string, error) {
	if _, err := o.clients.Resolve(clientID); err != nil {
		return "", err
	}
	if idToken == "" {
		return "", model.NewMissingParameterError("id_token")
	}

	verified, err := o.idTokens.VerifyIDToken(ctx, idToken)
	if err != nil {
		slog.Warn("could not verify id_token", slog.String("client_id", clientID), slog.String("error", err.Error()))
		return "", model.NewInvalidIDTokenError(err)
	}

	oauthState, err := o.newState()
	if err != nil {
		return "", fmt.Errorf("failed to generate oauth state: %w", err)
	}

	state := model.AuthenticatedState{
		ClientID:   clientID,
		Provider:   model.ProviderDiscord,
		UserID:     verified.UID,
		OAuthState: oauthState,
	}
	if _, err := o.sessions.Begin(ctx, w, current, state); err != nil {
		return "", fmt.Errorf("failed to begin session: %w", err)
	}

	return o.discord.AuthURL(oauthState), nil
}

// CompleteDiscord はDiscordからのコールバックを処理し、紐付け後のクライアントURLを返す。
func (o *Orchestrator) CompleteDiscord(ctx context.Context, w http.ResponseWriter, sess *model.Session, query url.Values) (string, error) {
	authed, ok := sess.AuthenticatedState()
	if !ok {
		o.recorder.RecordLink(metrics.OutcomeFailure)
		return "", model.NewSessionInvalidError("no authenticated user")
	}
	if authed.Provider != model.ProviderDiscord {
		o.recorder.RecordLink(metrics.OutcomeFailure)
		return "", model.NewUnhandledProviderError(authed.Provider)
	}

	if denied := query.Get("error"); denied != "" {
		o.recorder.RecordLink(metrics.OutcomeFailure)
		return "", model.NewProviderFailureError(model.ProviderDiscord, fmt.Errorf("authorization denied: %s", denied))
	}
	if authed.OAuthState == "" || query.Get("state") != authed.OAuthState {
		o.recorder.RecordLink(metrics.OutcomeFailure)
		return "", model.NewProviderFailureError(model.ProviderDiscord, fmt.Errorf("oauth state mismatch"))
	}

	started := o.now()
	discordIdentity, token, err := o.discord.Exchange(ctx, query.Get("code"))
	o.recorder.RecordProviderLatency(string(model.ProviderDiscord), o.now().Sub(started))
	if err != nil {
		o.recorder.RecordLink(metrics.OutcomeFailure)
		return "", model.NewProviderFailureError(model.ProviderDiscord, err)
	}

	if err := o.linker.LinkSecondaryIdentity(ctx, authed.UserID, discordIdentity, token); err != nil {
		o.recorder.RecordLink(metrics.OutcomeFailure)
		return "", fmt.Errorf("failed to link discord account: %w", err)
	}

	redirect, err := o.clients.RedirectURL(authed.ClientID, url.Values{
		"provider": {string(model.ProviderDiscord)},
	})
	if err != nil {
		o.recorder.RecordLink(metrics.OutcomeFailure)
		return "", err
	}

	o.finish(ctx, w, sess)
	o.recorder.RecordLink(metrics.OutcomeSuccess)
	return redirect, nil
}

// Fail はIdPでの認証失敗時に、セッションのクライアントへ code=oauth_fail 付きで戻すURLを返す。
// セッションにクライアントが無い場合はSessionInvalidを返す。
func (o *Orchestrator) Fail(ctx context.Context, w http.ResponseWriter, sess *model.Session) (string, error) {
	slog.Info("oauth login failed", slog.String("provider", string(sess.Provider())))

	clientID, ok := sess.ClientID()
	if !ok {
		return "", model.NewSessionInvalidError("no client in session")
	}
	redirect, err := o.clients.RedirectURL(clientID, url.Values{"code": {model.CodeOAuthFail}})
	if err != nil {
		return "", err
	}

	o.finish(ctx, w, sess)
	return redirect, nil
}

// FailureRedirect はコールバック処理中のエラーをクライアントへ伝えるURLを返す。
// IdPへの委譲失敗は /fail へ、それ以外はセッションのクライアントへ code 付きで戻す。
// 戻り先が無い場合はfalseを返す。
func (o *Orchestrator) FailureRedirect(sess *model.Session, err error) (string, bool) {
	if model.KindOf(err) == model.KindProviderFailure {
		return FailPath, true
	}
	clientID, ok := sess.ClientID()
	if !ok {
		return "", false
	}
	redirect, rerr := o.clients.RedirectURL(clientID, url.Values{"code": {model.CodeOf(err)}})
	if rerr != nil {
		return "", false
	}
	return redirect, true
}

// ExchangeLongLived は検証済みid_tokenと引き換えに長期クレデンシャルを発行する。
// audienceはid_tokenのaudを引き継ぐ。
func (o *Orchestrator) ExchangeLongLived(ctx context.Context, idToken string) (*credential.Credential, error) {
	if idToken == "" {
		return nil, model.NewMissingParameterError("id token")
	}

	verified, err := o.idTokens.VerifyIDToken(ctx, idToken)
	if err != nil {
		return nil, model.NewInvalidIDTokenError(err)
	}

	cred, err := o.issuer.IssueLongLived(verified.UID, verified.Audience)
	if err != nil {
		return nil, model.NewSigningFailureError(err)
	}
	o.recorder.RecordCredentialIssued(metrics.CredentialLongLived)

	slog.Info("credential issued",
		slog.String("user_id", verified.UID),
		slog.String("kind", metrics.CredentialLongLived),
	)
	return cred, nil
}

// finish はワンショットのセッションを破棄する。失敗してもリダイレクトは続行する。
func (o *Orchestrator) finish(ctx context.Context, w http.ResponseWriter, sess *model.Session) {
	if err := o.sessions.Destroy(ctx, w, sess); err != nil {
		slog.Warn("failed to destroy session", slog.String("error", err.Error()))
	}
}

// generateOAuthState はDiscord認可リクエストのstateを生成する。
func generateOAuthState() (string, error) {
	b := make([]byte, 24)
	if _, err := rand.Read(b); err != nil {
		return "", err
	}
	return base64.RawURLEncoding.EncodeToString(b), nil
}

type nopRecorder struct{}

func (nopRecorder) RecordLogin(string, string)                  {}
func (nopRecorder) RecordLink(string)                           {}
func (nopRecorder) RecordCredentialIssued(string)               {}
func (nopRecorder) RecordProviderLatency(string, time.Duration) {}
