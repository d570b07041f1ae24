package context

import (
	"context"
	"testing"
)

func TestRequestID(t *testing.T) {
	ctx := context.Background()
	if got := GetRequestID(ctx); got != "" {
		t.Errorf("GetRequestID() on empty context = %q, want empty", got)
	}

	ctx = WithRequestID(ctx, "req-123")
	if got := GetRequestID(ctx); got != "req-123" {
		t.Errorf("GetRequestID() = %q, want %q", got, "req-123")
	}
}

func TestChatID(t *testing.T) {
	ctx := WithChatID(context.Background(), "chat-9")
	if got := GetChatID(ctx); got != "chat-9" {
		t.Errorf("GetChatID() = %q, want %q", got, "chat-9")
	}
	if got := GetRequestID(ctx); got != "" {
		t.Errorf("GetRequestID() = %q, want empty", got)
	}
}
