package middleware

import (
	"net/http"

	"github.com/google/uuid"

	reqctx "github.com/lusochat/smart-search/internal/pkg/context"
)

// Header names for correlation IDs.
const (
	RequestIDHeader = "X-Request-ID"
	ChatIDHeader    = "X-Chat-ID"
)

// maxIDLength bounds client-supplied IDs so they cannot bloat log lines.
const maxIDLength = 128

// RequestID propagates X-Request-ID, generating one when absent, and copies
// X-Chat-ID into the request context.
func RequestID(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		id := r.Header.Get(RequestIDHeader)
		if id == "" || len(id) > maxIDLength {
			id = uuid.NewString()
		}
		w.Header().Set(RequestIDHeader, id)

		ctx := reqctx.WithRequestID(r.Context(), id)
		if chat := r.Header.Get(ChatIDHeader); chat != "" && len(chat) <= maxIDLength {
			ctx = reqctx.WithChatID(ctx, chat)
		}

		next.ServeHTTP(w, r.WithContext(ctx))
	})
}
