package middleware

import (
	"context"
	"net/http"
)

// Аутентификация живёт снаружи (gateway), сюда личность пользователя
// приходит заголовком.
const userHeader = "X-User-ID"

type userKey struct{}

// Identity кладёт id пользователя из заголовка в контекст запроса.
func Identity(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if userID := r.Header.Get(userHeader); userID != "" {
			r = r.WithContext(context.WithValue(r.Context(), userKey{}, userID))
		}
		next.ServeHTTP(w, r)
	})
}

func UserFromContext(ctx context.Context) (string, bool) {
	userID, ok := ctx.Value(userKey{}).(string)
	return userID, ok
}
