package model

import (
	"errors"
	"fmt"
)

// ErrorKind は認証フローで発生するエラーの種別。
type ErrorKind int

const (
	KindUnknown ErrorKind = iota
	KindInvalidClientID
	KindMissingParameter
	KindInvalidIDToken
	KindSessionInvalid
	KindAlreadyLinked
	KindUserNotFound
	KindUnhandledProvider
	KindProviderFailure
	KindSigningFailure
)

// リダイレクトの code パラメータに載せる記号的なエラーコード。
const (
	CodeInvalidClientID   = "invalid_client_id"
	CodeMissingParameter  = "missing_parameter"
	CodeInvalidIDToken    = "invalid_id_token"
	CodeSessionInvalid    = "session_invalid"
	CodeAlreadyLinked     = "account_already_linked"
	CodeUserNotFound      = "user_not_found"
	CodeUnhandledProvider = "unhandled_provider"
	CodeProviderFailure   = "provider_failure"
	CodeSigningFailure    = "signing_failure"
	CodeUnknown           = "unknown"
	CodeOAuthFail         = "oauth_fail"
)

var kindCodes = map[ErrorKind]string{
	KindInvalidClientID:   CodeInvalidClientID,
	KindMissingParameter:  CodeMissingParameter,
	KindInvalidIDToken:    CodeInvalidIDToken,
	KindSessionInvalid:    CodeSessionInvalid,
	KindAlreadyLinked:     CodeAlreadyLinked,
	KindUserNotFound:      CodeUserNotFound,
	KindUnhandledProvider: CodeUnhandledProvider,
	KindProviderFailure:   CodeProviderFailure,
	KindSigningFailure:    CodeSigningFailure,
}

// AuthError は認証フローのドメインエラー。
type AuthError struct {
	Kind    ErrorKind
	Message string
	Err     error
}

// Error はerrorインターフェースを実装する。
func (e *AuthError) Error() string {
	if e.Err != nil {
		return fmt.Sprintf("[%s] %s: %v", e.Code(), e.Message, e.Err)
	}
	return fmt.Sprintf("[%s] %s", e.Code(), e.Message)
}

// Unwrap は原因エラーを返す。
func (e *AuthError) Unwrap() error {
	return e.Err
}

// Code は記号的なエラーコードを返す。
func (e *AuthError) Code() string {
	if c, ok := kindCodes[e.Kind]; ok {
		return c
	}
	return CodeUnknown
}

// KindOf はエラーチェーンからAuthErrorの種別を取り出す。AuthErrorでなければKindUnknown。
func KindOf(err error) ErrorKind {
	var ae *AuthError
	if errors.As(err, &ae) {
		return ae.Kind
	}
	return KindUnknown
}

// CodeOf はリダイレクト用のエラーコードを返す。AuthError以外は "unknown"。
func CodeOf(err error) string {
	var ae *AuthError
	if errors.As(err, &ae) {
		return ae.Code()
	}
	return CodeUnknown
}

// NewInvalidClientIDError は未登録client_idのエラーを生成する。
func NewInvalidClientIDError(clientID string) *AuthError {
	return &AuthError{Kind: KindInvalidClientID, Message: fmt.Sprintf("invalid client id: %q", clientID)}
}

// NewMissingParameterError は必須パラメータ欠落のエラーを生成する。
func NewMissingParameterError(name string) *AuthError {
	return &AuthError{Kind: KindMissingParameter, Message: "missing " + name}
}

// NewInvalidIDTokenError はid_token検証失敗のエラーを生成する。
func NewInvalidIDTokenError(err error) *AuthError {
	return &AuthError{Kind: KindInvalidIDToken, Message: "invalid id token", Err: err}
}

// NewSessionInvalidError はセッション状態不整合のエラーを生成する。
func NewSessionInvalidError(reason string) *AuthError {
	return &AuthError{Kind: KindSessionInvalid, Message: "invalid session: " + reason}
}

// NewAlreadyLinkedError は別アカウントが既に紐付けられている場合のエラーを生成する。
// ユーザーに「別のアカウントに紐付け済み」と案内できる回復可能なエラー。
func NewAlreadyLinkedError() *AuthError {
	return &AuthError{Kind: KindAlreadyLinked, Message: "account already linked to a different account"}
}

// NewUserNotFoundError はユーザーが見つからない場合のエラーを生成する。
func NewUserNotFoundError(userID string) *AuthError {
	return &AuthError{Kind: KindUserNotFound, Message: fmt.Sprintf("user not found: %s", userID)}
}

// NewUnhandledProviderError は未対応プロバイダーのエラーを生成する。
func NewUnhandledProviderError(provider Provider) *AuthError {
	return &AuthError{Kind: KindUnhandledProvider, Message: fmt.Sprintf("unhandled provider %q", provider)}
}

// NewProviderFailureError はIdPへの委譲が失敗した場合のエラーを生成する。
func NewProviderFailureError(provider Provider, err error) *AuthError {
	return &AuthError{Kind: KindProviderFailure, Message: fmt.Sprintf("%s authentication failed", provider), Err: err}
}

// NewSigningFailureError はクレデンシャル署名失敗のエラーを生成する。
func NewSigningFailureError(err error) *AuthError {
	return &AuthError{Kind: KindSigningFailure, Message: "failed to sign credential", Err: err}
}

// APIError はJSONエンドポイント向けの統一エラーフォーマットを表す。
type APIError struct {
	Code     string // エラーコード
	Message  string // エラーメッセージ
	Category string // カテゴリ: auth, validation, system
	Action   string // ユーザー向け対処方法
}

// Error はerrorインターフェースを実装する。
func (e *APIError) Error() string {
	return fmt.Sprintf("[%s] %s", e.Code, e.Message)
}
