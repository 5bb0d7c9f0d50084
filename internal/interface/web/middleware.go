package webservice

import (
	"context"
	"net/http"
)

type accountKey struct{}

// authMiddleware resolves the X-API-Key header to an account name. Every
// mutating endpoint reads the caller identity from the request context, so a
// request without a valid key never reaches a handler.
func authMiddleware(apiKeys map[string]string) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			account, ok := apiKeys[r.Header.Get("X-API-Key")]
			if !ok {
				writeError(w, http.StatusUnauthorized, "invalid or missing api key")
				return
			}
			ctx := context.WithValue(r.Context(), accountKey{}, account)
			next.ServeHTTP(w, r.WithContext(ctx))
		})
	}
}

func accountFromContext(ctx context.Context) string {
	account, _ := ctx.Value(accountKey{}).(string)
	return account
}
