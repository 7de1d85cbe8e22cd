package model

import (
	"encoding/json"
	"fmt"
	"time"
)

// SessionState はリダイレクト往復中のセッション状態。
// EmptyState / PendingState / AuthenticatedState のいずれかを取り、
// client_id と provider が揃っていない不正な状態を型として表現できないようにする。
type SessionState interface {
	kind() string
}

// EmptyState は再生成直後でまだ何も保持していない状態。
type EmptyState struct{}

// PendingState はクライアント検証済みでIdPへ委譲中の状態。
type PendingState struct {
	ClientID   string
	Provider   Provider
	OAuthState string
}

// AuthenticatedState はプライマリIdPで認証済みのユーザーIDを保持する状態。
// Discord紐付けフローで使用する。
type AuthenticatedState struct {
	ClientID   string
	Provider   Provider
	UserID     string
	OAuthState string
}

func (EmptyState) kind() string         { return "empty" }
func (PendingState) kind() string       { return "pending" }
func (AuthenticatedState) kind() string { return "authenticated" }

// Session は Cookie で識別される短命なセッション。
type Session struct {
	ID        string
	State     SessionState
	ExpiresAt time.Time
	CreatedAt time.Time
}

// ClientID はセッションが保持するclient_idを返す。Empty状態ではfalse。
func (s *Session) ClientID() (string, bool) {
	if s == nil {
		return "", false
	}
	switch st := s.State.(type) {
	case PendingState:
		return st.ClientID, st.ClientID != ""
	case AuthenticatedState:
		return st.ClientID, st.ClientID != ""
	}
	return "", false
}

// Provider はセッションが委譲中のプロバイダーを返す。
func (s *Session) Provider() Provider {
	if s == nil {
		return ""
	}
	switch st := s.State.(type) {
	case PendingState:
		return st.Provider
	case AuthenticatedState:
		return st.Provider
	}
	return ""
}

// sessionData はセッション状態の永続化フォーマット。
type sessionData struct {
	Kind       string   `json:"kind"`
	ClientID   string   `json:"client_id,omitempty"`
	Provider   Provider `json:"provider,omitempty"`
	UserID     string   `json:"user_id,omitempty"`
	OAuthState string   `json:"oauth_state,omitempty"`
}

// MarshalSessionState はセッション状態をJSONにエンコードする。
func MarshalSessionState(state SessionState) ([]byte, error) {
	var d sessionData
	switch st := state.(type) {
	case nil, EmptyState:
		d.Kind = EmptyState{}.kind()
	case PendingState:
		d = sessionData{Kind: st.kind(), ClientID: st.ClientID, Provider: st.Provider, OAuthState: st.OAuthState}
	case AuthenticatedState:
		d = sessionData{Kind: st.kind(), ClientID: st.ClientID, Provider: st.Provider, UserID: st.UserID, OAuthState: st.OAuthState}
	default:
		return nil, fmt.Errorf("unknown session state %T", state)
	}
	return json.Marshal(d)
}

// UnmarshalSessionState はJSONからセッション状態を復元する。
// 必須フィールドが欠けている場合はエラーを返す。
func UnmarshalSessionState(data []byte) (SessionState, error) {
	var d sessionData
	if err := json.Unmarshal(data, &d); err != nil {
		return nil, fmt.Errorf("failed to decode session state: %w", err)
	}

	switch d.Kind {
	case "", "empty":
		return EmptyState{}, nil
	case "pending":
		if d.ClientID == "" || d.Provider == "" {
			return nil, fmt.Errorf("pending session missing client_id or provider")
		}
		return PendingState{ClientID: d.ClientID, Provider: d.Provider, OAuthState: d.OAuthState}, nil
	case "authenticated":
		if d.ClientID == "" || d.Provider == "" || d.UserID == "" {
			return nil, fmt.Errorf("authenticated session missing client_id, provider or user_id")
		}
		return AuthenticatedState{ClientID: d.ClientID, Provider: d.Provider, UserID: d.UserID, OAuthState: d.OAuthState}, nil
	}
	return nil, fmt.Errorf("unknown session kind %q", d.Kind)
}

// PendingState はセッションがPending状態であればその値を返す。
func (s *Session) PendingState() (PendingState, bool) {
	if s == nil {
		return PendingState{}, false
	}
	st, ok := s.State.(PendingState)
	return st, ok
}

// AuthenticatedState はセッションがAuthenticated状態であればその値を返す。
func (s *Session) AuthenticatedState() (AuthenticatedState, bool) {
	if s == nil {
		return AuthenticatedState{}, false
	}
	st, ok := s.State.(AuthenticatedState)
	return st, ok
}
