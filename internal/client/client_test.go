package client

import (
	"context"
	"encoding/json"
	"errors"
	"io"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/lusochat/smart-search/internal/decision"
	"github.com/lusochat/smart-search/internal/filter"
	"github.com/lusochat/smart-search/internal/metrics"
	"github.com/lusochat/smart-search/internal/settings"
)

func TestDefaultConfig(t *testing.T) {
	cfg := DefaultConfig()

	if cfg.BaseURL != "http://localhost:8090" {
		t.Errorf("BaseURL = %q, want %q", cfg.BaseURL, "http://localhost:8090")
	}
	if cfg.Timeout != 30*time.Second {
		t.Errorf("Timeout = %v, want %v", cfg.Timeout, 30*time.Second)
	}
}

func TestClientNew(t *testing.T) {
	t.Run("default config", func(t *testing.T) {
		c := New(Config{})
		if c.BaseURL() != "http://localhost:8090" {
			t.Errorf("BaseURL = %q, want %q", c.BaseURL(), "http://localhost:8090")
		}
	})

	t.Run("trailing slash trimmed", func(t *testing.T) {
		c := New(Config{BaseURL: "http://custom:9000/"})
		if c.BaseURL() != "http://custom:9000" {
			t.Errorf("BaseURL = %q, want %q", c.BaseURL(), "http://custom:9000")
		}
	})
}

func TestClientHealth(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path != "/healthz" {
			t.Errorf("path = %q, want %q", r.URL.Path, "/healthz")
		}
		if r.Method != http.MethodGet {
			t.Errorf("method = %q, want %q", r.Method, http.MethodGet)
		}
		_ = json.NewEncoder(w).Encode(map[string]string{"status": "ok"})
	}))
	defer server.Close()

	resp, err := New(Config{BaseURL: server.URL}).Health(context.Background())
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if resp.Status != "ok" {
		t.Errorf("Status = %q, want %q", resp.Status, "ok")
	}
}

func TestClientVersion(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		_ = json.NewEncoder(w).Encode(map[string]string{
			"version":    "1.2.3",
			"git_commit": "abc",
		})
	}))
	defer server.Close()

	v, err := New(Config{BaseURL: server.URL}).Version(context.Background())
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if v.Version != "1.2.3" || v.GitCommit != "abc" {
		t.Errorf("Version = %+v", v)
	}
}

func TestClientDecide(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path != "/v1/decide" || r.Method != http.MethodPost {
			t.Errorf("request = %s %s", r.Method, r.URL.Path)
		}

		var req struct {
			Messages decision.Transcript `json:"messages"`
			Config   map[string]any      `json:"config"`
		}
		if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
			t.Fatalf("decode request: %v", err)
		}
		if len(req.Messages) != 1 || req.Messages[0].Text() != "propinas 2025" {
			t.Errorf("messages = %+v", req.Messages)
		}
		if req.Config["mode"] != "always_on" {
			t.Errorf("config = %v", req.Config)
		}

		_ = json.NewEncoder(w).Encode(decision.Decision{
			Enabled:     true,
			Reason:      decision.ReasonModeAlwaysOn,
			Mode:        decision.ModeAlwaysOn,
			Category:    decision.CategoryDefault,
			ResultCount: 3,
		})
	}))
	defer server.Close()

	msgs := decision.Transcript{{Role: decision.RoleUser, Content: decision.TextContent("propinas 2025")}}
	d, err := New(Config{BaseURL: server.URL}).Decide(context.Background(), msgs, map[string]string{"mode": "always_on"})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if !d.Enabled || d.ResultCount != 3 || d.Reason != decision.ReasonModeAlwaysOn {
		t.Errorf("decision = %+v", d)
	}
}

func TestClientInlet(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path != "/v1/filter/inlet" {
			t.Errorf("path = %q", r.URL.Path)
		}
		var req struct {
			Body json.RawMessage `json:"body"`
			User *filter.User    `json:"user"`
		}
		if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
			t.Fatalf("decode request: %v", err)
		}
		if req.User == nil || req.User.ID != "u1" {
			t.Errorf("user = %+v", req.User)
		}

		_, _ = io.WriteString(w, `{
			"body": {"messages": [{"role": "user", "content": "olá"}], "features": {"web_search": false}},
			"decision": {"enabled": false, "reason": "chitchat_skip", "mode": "auto", "category": "default"},
			"events": [{"type": "status", "data": {"description": "Pesquisa web ignorada", "done": true}}]
		}`)
	}))
	defer server.Close()

	body := filter.NewBody(decision.Transcript{{Role: decision.RoleUser, Content: decision.TextContent("olá")}})
	out, err := New(Config{BaseURL: server.URL}).Inlet(context.Background(), body, &filter.User{ID: "u1"})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if out.Decision.Reason != decision.ReasonChitchatSkip {
		t.Errorf("Reason = %q", out.Decision.Reason)
	}
	if got := out.Body.Features[filter.FeatureWebSearch]; got != false {
		t.Errorf("web_search = %v, want false", got)
	}
	if len(out.Events) != 1 || !out.Events[0].Data.Done {
		t.Errorf("events = %+v", out.Events)
	}
}

func TestClientSettings(t *testing.T) {
	var gotMethod, gotChangedBy, gotKey string
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		gotMethod = r.Method
		gotChangedBy = r.Header.Get("X-Changed-By")
		gotKey = r.Header.Get("X-API-Key")

		v := settings.Valves{Version: 2, StatusEnabled: true}
		v.Rules.Mode = decision.ModeOff
		switch r.URL.Path {
		case "/v1/settings", "/v1/settings/reset":
			_ = json.NewEncoder(w).Encode(v)
		case "/v1/settings/history":
			if r.URL.Query().Get("limit") != "5" {
				t.Errorf("limit = %q", r.URL.Query().Get("limit"))
			}
			_ = json.NewEncoder(w).Encode(map[string]any{
				"entries": []settings.AuditEntry{{Version: 2, ChangedBy: "ops"}},
			})
		default:
			http.NotFound(w, r)
		}
	}))
	defer server.Close()

	c := New(Config{BaseURL: server.URL, APIKey: "k", ChangedBy: "ops"})
	ctx := context.Background()

	v, err := c.GetSettings(ctx)
	if err != nil {
		t.Fatalf("GetSettings: %v", err)
	}
	if v.Version != 2 || v.Rules.Mode != decision.ModeOff {
		t.Errorf("valves = %+v", v)
	}
	if gotKey != "k" {
		t.Errorf("X-API-Key = %q, want k", gotKey)
	}

	if _, err := c.UpdateSettings(ctx, map[string]any{"status_enabled": true}); err != nil {
		t.Fatalf("UpdateSettings: %v", err)
	}
	if gotMethod != http.MethodPut || gotChangedBy != "ops" {
		t.Errorf("update sent %s with changed_by %q", gotMethod, gotChangedBy)
	}

	if _, err := c.ResetSettings(ctx); err != nil {
		t.Fatalf("ResetSettings: %v", err)
	}
	if gotMethod != http.MethodPost {
		t.Errorf("reset method = %s", gotMethod)
	}

	entries, err := c.SettingsHistory(ctx, 5)
	if err != nil {
		t.Fatalf("SettingsHistory: %v", err)
	}
	if len(entries) != 1 || entries[0].ChangedBy != "ops" {
		t.Errorf("entries = %+v", entries)
	}
}

func TestClientStats(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Query().Get("days") != "3" {
			t.Errorf("days = %q, want 3", r.URL.Query().Get("days"))
		}
		_ = json.NewEncoder(w).Encode(map[string]any{
			"days": []metrics.DayStats{{Date: "2026-10-18", Total: 4, Enabled: 1}},
		})
	}))
	defer server.Close()

	days, err := New(Config{BaseURL: server.URL}).Stats(context.Background(), 3)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if len(days) != 1 || days[0].Total != 4 {
		t.Errorf("days = %+v", days)
	}
}

func TestClientErrors(t *testing.T) {
	tests := []struct {
		name     string
		status   int
		body     string
		wantCode string
	}{
		{"api error", http.StatusBadRequest, `{"error":"bad","code":"VALIDATION_ERROR","message":"messages is required"}`, "VALIDATION_ERROR"},
		{"plain text", http.StatusBadGateway, "upstream down", ""},
		{"json without code", http.StatusInternalServerError, `{"oops":true}`, ""},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
				w.WriteHeader(tt.status)
				_, _ = io.WriteString(w, tt.body)
			}))
			defer server.Close()

			_, err := New(Config{BaseURL: server.URL}).Health(context.Background())
			if err == nil {
				t.Fatal("expected error")
			}

			var apiErr *APIError
			if tt.wantCode == "" {
				if errors.As(err, &apiErr) {
					t.Errorf("unexpected APIError: %v", err)
				}
				return
			}
			if !errors.As(err, &apiErr) {
				t.Fatalf("expected APIError, got %T", err)
			}
			if apiErr.Code != tt.wantCode || apiErr.StatusCode != tt.status {
				t.Errorf("APIError = %+v", apiErr)
			}
		})
	}
}

func TestClientContextCancelled(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		<-r.Context().Done()
	}))
	defer server.Close()

	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	if _, err := New(Config{BaseURL: server.URL}).Health(ctx); err == nil {
		t.Error("expected error for cancelled context")
	}
}
