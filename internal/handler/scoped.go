package handler

import (
	"log/slog"
	"net/http"

	"github.com/hitoshi/steamauth/internal/middleware"
	"github.com/hitoshi/steamauth/internal/model"
)

// ErrorPolicy はScopedハンドラーがエラーを応答に変換する方法。
type ErrorPolicy int

const (
	// RedirectOnError はセッションのクライアントへ code 付きでリダイレクトする。
	// 戻り先が無い場合は500を返す。
	RedirectOnError ErrorPolicy = iota
	// JSONOnError は500のJSONエラーを返す。
	JSONOnError
)

// errorLoggingIn は戻り先が無い場合に返す本文。
const errorLoggingIn = "Error logging in"

// HandlerFunc はエラーを返すHTTPハンドラー。
type HandlerFunc func(w http.ResponseWriter, r *http.Request) error

// FailureResolver はエラー発生時のリダイレクト先を決める。
type FailureResolver interface {
	FailureRedirect(sess *model.Session, err error) (string, bool)
}

// Scoped はfnを実行し、返されたエラーをpolicyに従って応答に変換するハンドラーを返す。
func Scoped(policy ErrorPolicy, resolver FailureResolver, fn HandlerFunc) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		err := fn(w, r)
		if err == nil {
			return
		}

		sess := middleware.SessionFromContext(r.Context())
		slog.Error("request failed",
			slog.String("path", r.URL.Path),
			slog.String("code", model.CodeOf(err)),
			slog.String("error", err.Error()),
		)

		switch policy {
		case JSONOnError:
			if model.KindOf(err) == model.KindUnknown {
				middleware.WriteInternalServerError(w)
				return
			}
			middleware.WriteErrorResponse(w, http.StatusInternalServerError, middleware.APIErrorFor(err))
		default:
			if resolver != nil {
				if target, ok := resolver.FailureRedirect(sess, err); ok {
					http.Redirect(w, r, target, http.StatusFound)
					return
				}
			}
			http.Error(w, errorLoggingIn, http.StatusInternalServerError)
		}
	}
}
