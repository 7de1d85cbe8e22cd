package middleware

import (
	"encoding/json"
	"net/http"

	"github.com/hitoshi/steamauth/internal/model"
)

// ErrorResponseBody はAPIエラーレスポンスの統一フォーマット。
// 原因カテゴリと対処方法を含む。
type ErrorResponseBody struct {
	Code     string `json:"code"`
	Message  string `json:"message"`
	Category string `json:"category"`
	Action   string `json:"action"`
}

// WriteErrorResponse は統一エラーフォーマットでHTTPエラーレスポンスを書き込む。
// JSONを返すエンドポイントで一貫したエラーレスポンスを提供する。
func WriteErrorResponse(w http.ResponseWriter, statusCode int, apiErr *model.APIError) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(statusCode)
	json.NewEncoder(w).Encode(ErrorResponseBody{
		Code:     apiErr.Code,
		Message:  apiErr.Message,
		Category: apiErr.Category,
		Action:   apiErr.Action,
	})
}

// WriteInternalServerError は内部サーバーエラーの統一レスポンスを書き込む。
// 詳細はログのみに記録し、ユーザーには一般的なメッセージを返す。
func WriteInternalServerError(w http.ResponseWriter) {
	WriteErrorResponse(w, http.StatusInternalServerError, internalError())
}

func internalError() *model.APIError {
	return &model.APIError{
		Code:     "INTERNAL_ERROR",
		Message:  "内部エラーが発生しました。",
		Category: "system",
		Action:   "しばらく待ってから再度お試しください。",
	}
}

// APIErrorFor は認証フローのエラーをAPIエラーに変換する。
// AuthError以外は内部エラーとして扱い、詳細を返さない。
func APIErrorFor(err error) *model.APIError {
	switch model.KindOf(err) {
	case model.KindMissingParameter:
		return &model.APIError{
			Code:     model.CodeOf(err),
			Message:  "Missing id token",
			Category: "validation",
			Action:   "リクエストボディにidTokenを指定してください。",
		}
	case model.KindInvalidIDToken:
		return &model.APIError{
			Code:     model.CodeOf(err),
			Message:  "Invalid id token",
			Category: "auth",
			Action:   "再ログインしてid_tokenを取得し直してください。",
		}
	case model.KindSigningFailure:
		return &model.APIError{
			Code:     model.CodeOf(err),
			Message:  "Failed to sign token",
			Category: "system",
			Action:   "しばらく待ってから再度お試しください。",
		}
	}
	return internalError()
}
