package handler

import (
	"context"
	"encoding/json"
	"errors"
	"io"
	"net/http"

	"github.com/go-jose/go-jose/v4"

	"github.com/hitoshi/steamauth/internal/credential"
	"github.com/hitoshi/steamauth/internal/model"
)

// maxTokenRequestBody は /longlived-token のリクエストボディ上限。
const maxTokenRequestBody = 64 << 10

// KeyPublisher はクレデンシャル検証用の公開鍵を提供する。
type KeyPublisher interface {
	PublicKey() string
	JWKS() jose.JSONWebKeySet
}

// TokenExchanger はid_tokenを長期クレデンシャルに交換する。
type TokenExchanger interface {
	ExchangeLongLived(ctx context.Context, idToken string) (*credential.Credential, error)
}

// JWTHandler はクレデンシャル関連のHTTPハンドラー。
type JWTHandler struct {
	keys      KeyPublisher
	exchanger TokenExchanger
}

// NewJWTHandler はJWTHandlerを生成する。
func NewJWTHandler(keys KeyPublisher, exchanger TokenExchanger) *JWTHandler {
	return &JWTHandler{keys: keys, exchanger: exchanger}
}

// PublicKey はPEM形式の公開鍵を返す。
// GET /jwt-public
func (h *JWTHandler) PublicKey(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, map[string]string{"key": h.keys.PublicKey()})
}

// JWKS は公開鍵をJWK Set形式で返す。
// GET /.well-known/jwks.json
func (h *JWTHandler) JWKS(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, h.keys.JWKS())
}

type longLivedTokenRequest struct {
	IDToken string `json:"idToken"`
}

type longLivedTokenResponse struct {
	Token   string `json:"token"`
	Expires int64  `json:"expires"`
}

// LongLivedToken はid_tokenと引き換えに長期クレデンシャルを発行する。
// POST /longlived-token {"idToken": "..."}
func (h *JWTHandler) LongLivedToken(w http.ResponseWriter, r *http.Request) error {
	var req longLivedTokenRequest
	if err := json.NewDecoder(http.MaxBytesReader(w, r.Body, maxTokenRequestBody)).Decode(&req); err != nil && !errors.Is(err, io.EOF) {
		return model.NewMissingParameterError("id token")
	}

	cred, err := h.exchanger.ExchangeLongLived(r.Context(), req.IDToken)
	if err != nil {
		return err
	}

	writeJSON(w, http.StatusOK, longLivedTokenResponse{
		Token:   cred.Token,
		Expires: cred.ExpiresAtMillis(),
	})
	return nil
}

// writeJSON はJSONレスポンスを書き込む。
func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	json.NewEncoder(w).Encode(v)
}
