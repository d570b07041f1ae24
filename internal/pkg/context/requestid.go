// Package context provides request-scoped context helpers.
package context

import (
	"context"
)

type contextKey string

const (
	// RequestIDKey is the context key for the request ID.
	RequestIDKey contextKey = "request_id"

	// ChatIDKey is the context key for the host chat ID, when the host sends one.
	ChatIDKey contextKey = "chat_id"
)

// WithRequestID adds a request ID to the context.
func WithRequestID(ctx context.Context, requestID string) context.Context {
	return context.WithValue(ctx, RequestIDKey, requestID)
}

// GetRequestID retrieves the request ID from context.
// Returns empty string if not found.
func GetRequestID(ctx context.Context) string {
	if id, ok := ctx.Value(RequestIDKey).(string); ok {
		return id
	}
	return ""
}

// WithChatID adds the host chat ID to the context.
func WithChatID(ctx context.Context, chatID string) context.Context {
	return context.WithValue(ctx, ChatIDKey, chatID)
}

// GetChatID retrieves the host chat ID from context.
func GetChatID(ctx context.Context) string {
	if id, ok := ctx.Value(ChatIDKey).(string); ok {
		return id
	}
	return ""
}
