package middleware

import (
	"log/slog"
	"net/http"
	"runtime/debug"
)

// NewRecoveryMiddleware はpanic発生時にプロセスクラッシュを防ぎ、
// 500レスポンスを返すミドルウェアを生成する。スタックトレースはログのみに出力する。
func NewRecoveryMiddleware() func(next http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			defer func() {
				rec := recover()
				if rec == nil {
					return
				}
				if rec == http.ErrAbortHandler {
					panic(rec)
				}
				attrs := []any{
					slog.Any("panic", rec),
					slog.String("method", r.Method),
					slog.String("path", r.URL.Path),
					slog.String("stack", string(debug.Stack())),
				}
				if clientID, ok := SessionFromContext(r.Context()).ClientID(); ok {
					attrs = append(attrs, slog.String("client_id", clientID))
				}
				slog.Error("panic recovered", attrs...)
				http.Error(w, "Error logging in", http.StatusInternalServerError)
			}()
			next.ServeHTTP(w, r)
		})
	}
}
