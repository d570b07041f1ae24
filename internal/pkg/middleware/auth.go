package middleware

import (
	"crypto/subtle"
	"net/http"
	"strings"

	apperrors "github.com/lusochat/smart-search/internal/pkg/errors"
)

// APIKeyHeader is the header carrying the shared secret.
const APIKeyHeader = "X-API-Key"

// APIKey rejects requests that do not present key, either in X-API-Key or as
// a bearer token. An empty key disables the check. Paths in open bypass it.
func APIKey(key string, open ...string) func(http.Handler) http.Handler {
	public := make(map[string]bool, len(open))
	for _, p := range open {
		public[p] = true
	}

	return func(next http.Handler) http.Handler {
		if key == "" {
			return next
		}
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			if public[r.URL.Path] || r.Method == http.MethodOptions {
				next.ServeHTTP(w, r)
				return
			}

			if !validKey(presentedKey(r), key) {
				apperrors.WriteError(w, apperrors.UnauthorizedError())
				return
			}

			next.ServeHTTP(w, r)
		})
	}
}

func presentedKey(r *http.Request) string {
	if k := r.Header.Get(APIKeyHeader); k != "" {
		return k
	}
	auth := r.Header.Get("Authorization")
	if len(auth) > 7 && strings.EqualFold(auth[:7], "bearer ") {
		return strings.TrimSpace(auth[7:])
	}
	return ""
}

func validKey(got, want string) bool {
	if got == "" {
		return false
	}
	return subtle.ConstantTimeCompare([]byte(got), []byte(want)) == 1
}
