// Package client provides an HTTP client for the smart-search API.
package client

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strconv"
	"strings"
	"time"

	"github.com/lusochat/smart-search/internal/decision"
	"github.com/lusochat/smart-search/internal/filter"
	"github.com/lusochat/smart-search/internal/metrics"
	"github.com/lusochat/smart-search/internal/pkg/middleware"
	"github.com/lusochat/smart-search/internal/settings"
)

// Client is an HTTP client for the smart-search API.
type Client struct {
	baseURL    string
	apiKey     string
	changedBy  string
	httpClient *http.Client
}

// Config configures the client.
type Config struct {
	// BaseURL is the base URL of the API server.
	BaseURL string

	// APIKey is sent as X-API-Key when set.
	APIKey string

	// ChangedBy names the actor recorded in the settings audit log.
	ChangedBy string

	// Timeout is the request timeout.
	Timeout time.Duration

	// MaxIdleConns controls the maximum number of idle (keep-alive) connections
	// across all hosts. Zero means no limit.
	MaxIdleConns int

	// MaxConnsPerHost limits the total number of connections per host.
	// Zero means no limit.
	MaxConnsPerHost int

	// IdleConnTimeout is the maximum amount of time an idle (keep-alive)
	// connection will remain idle before closing itself.
	IdleConnTimeout time.Duration
}

// DefaultConfig returns sensible defaults.
func DefaultConfig() Config {
	return Config{
		BaseURL:         "http://localhost:8090",
		Timeout:         30 * time.Second,
		MaxIdleConns:    100,
		MaxConnsPerHost: 100,
		IdleConnTimeout: 90 * time.Second,
	}
}

// New creates a new client.
func New(cfg Config) *Client {
	def := DefaultConfig()
	if cfg.BaseURL == "" {
		cfg.BaseURL = def.BaseURL
	}
	if cfg.Timeout == 0 {
		cfg.Timeout = def.Timeout
	}
	if cfg.MaxIdleConns == 0 {
		cfg.MaxIdleConns = def.MaxIdleConns
	}
	if cfg.MaxConnsPerHost == 0 {
		cfg.MaxConnsPerHost = def.MaxConnsPerHost
	}
	if cfg.IdleConnTimeout == 0 {
		cfg.IdleConnTimeout = def.IdleConnTimeout
	}

	transport := &http.Transport{
		Proxy:               http.ProxyFromEnvironment,
		MaxIdleConns:        cfg.MaxIdleConns,
		MaxIdleConnsPerHost: max(cfg.MaxConnsPerHost/5, 1), // 20% per host
		MaxConnsPerHost:     cfg.MaxConnsPerHost,
		IdleConnTimeout:     cfg.IdleConnTimeout,
		ForceAttemptHTTP2:   true,
	}

	return &Client{
		baseURL:   strings.TrimRight(cfg.BaseURL, "/"),
		apiKey:    cfg.APIKey,
		changedBy: cfg.ChangedBy,
		httpClient: &http.Client{
			Timeout:   cfg.Timeout,
			Transport: transport,
		},
	}
}

// BaseURL returns the server the client talks to.
func (c *Client) BaseURL() string {
	return c.baseURL
}

// HealthResponse represents the health check response.
type HealthResponse struct {
	Status string `json:"status"`
}

// VersionResponse describes the server build.
type VersionResponse struct {
	Version   string `json:"version"`
	GitCommit string `json:"git_commit"`
	BuildTime string `json:"build_time"`
	GoVersion string `json:"go_version"`
}

// APIError represents an API error response.
type APIError struct {
	StatusCode int               `json:"-"`
	Code       string            `json:"code"`
	Message    string            `json:"message"`
	Details    map[string]string `json:"details,omitempty"`
}

func (e *APIError) Error() string {
	return fmt.Sprintf("%s: %s", e.Code, e.Message)
}

// Health checks if the API is healthy.
func (c *Client) Health(ctx context.Context) (*HealthResponse, error) {
	var resp HealthResponse
	if err := c.get(ctx, "/healthz", &resp); err != nil {
		return nil, err
	}
	return &resp, nil
}

// Version returns the server build information.
func (c *Client) Version(ctx context.Context) (*VersionResponse, error) {
	var resp VersionResponse
	if err := c.get(ctx, "/v1/version", &resp); err != nil {
		return nil, err
	}
	return &resp, nil
}

// Inlet runs the filter inlet on body and returns the rewritten request
// with the decision taken.
func (c *Client) Inlet(ctx context.Context, body *filter.Body, user *filter.User) (*filter.Outcome, error) {
	req := struct {
		Body *filter.Body `json:"body"`
		User *filter.User `json:"user,omitempty"`
	}{Body: body, User: user}

	var out filter.Outcome
	if err := c.post(ctx, "/v1/filter/inlet", req, &out); err != nil {
		return nil, err
	}
	return &out, nil
}

// Decide evaluates messages on the server. A non-nil override is merged
// over the current rules for this call only.
func (c *Client) Decide(ctx context.Context, messages decision.Transcript, override any) (*decision.Decision, error) {
	req := struct {
		Messages decision.Transcript `json:"messages"`
		Config   any                 `json:"config,omitempty"`
	}{Messages: messages, Config: override}

	var d decision.Decision
	if err := c.post(ctx, "/v1/decide", req, &d); err != nil {
		return nil, err
	}
	return &d, nil
}

// GetSettings returns the live settings.
func (c *Client) GetSettings(ctx context.Context) (*settings.Valves, error) {
	var v settings.Valves
	if err := c.get(ctx, "/v1/settings", &v); err != nil {
		return nil, err
	}
	return &v, nil
}

// UpdateSettings sends a partial or full settings document. Fields left out
// keep their current values on the server.
func (c *Client) UpdateSettings(ctx context.Context, patch any) (*settings.Valves, error) {
	var v settings.Valves
	if err := c.send(ctx, http.MethodPut, "/v1/settings", patch, &v); err != nil {
		return nil, err
	}
	return &v, nil
}

// ResetSettings restores the configured defaults.
func (c *Client) ResetSettings(ctx context.Context) (*settings.Valves, error) {
	var v settings.Valves
	if err := c.post(ctx, "/v1/settings/reset", nil, &v); err != nil {
		return nil, err
	}
	return &v, nil
}

// SettingsHistory returns up to limit audit entries, newest first.
func (c *Client) SettingsHistory(ctx context.Context, limit int) ([]settings.AuditEntry, error) {
	var resp struct {
		Entries []settings.AuditEntry `json:"entries"`
	}
	path := "/v1/settings/history"
	if limit > 0 {
		path += "?limit=" + strconv.Itoa(limit)
	}
	if err := c.get(ctx, path, &resp); err != nil {
		return nil, err
	}
	return resp.Entries, nil
}

// Stats returns the daily decision counters for the last days days.
func (c *Client) Stats(ctx context.Context, days int) ([]metrics.DayStats, error) {
	var resp struct {
		Days []metrics.DayStats `json:"days"`
	}
	q := url.Values{}
	if days > 0 {
		q.Set("days", strconv.Itoa(days))
	}
	path := "/v1/stats"
	if len(q) > 0 {
		path += "?" + q.Encode()
	}
	if err := c.get(ctx, path, &resp); err != nil {
		return nil, err
	}
	return resp.Days, nil
}

// get performs a GET request.
func (c *Client) get(ctx context.Context, path string, result any) error {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, c.baseURL+path, nil)
	if err != nil {
		return fmt.Errorf("failed to create request: %w", err)
	}
	req.Header.Set("Accept", "application/json")

	return c.do(req, result)
}

// post performs a POST request.
func (c *Client) post(ctx context.Context, path string, body, result any) error {
	return c.send(ctx, http.MethodPost, path, body, result)
}

func (c *Client) send(ctx context.Context, method, path string, body, result any) error {
	var bodyReader io.Reader
	if body != nil {
		data, err := json.Marshal(body)
		if err != nil {
			return fmt.Errorf("failed to marshal request: %w", err)
		}
		bodyReader = bytes.NewReader(data)
	}

	req, err := http.NewRequestWithContext(ctx, method, c.baseURL+path, bodyReader)
	if err != nil {
		return fmt.Errorf("failed to create request: %w", err)
	}
	if body != nil {
		req.Header.Set("Content-Type", "application/json")
	}
	req.Header.Set("Accept", "application/json")

	return c.do(req, result)
}

// do executes a request.
func (c *Client) do(req *http.Request, result any) error {
	if c.apiKey != "" {
		req.Header.Set(middleware.APIKeyHeader, c.apiKey)
	}
	if c.changedBy != "" {
		req.Header.Set("X-Changed-By", c.changedBy)
	}

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return fmt.Errorf("request failed: %w", err)
	}
	defer resp.Body.Close()

	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return fmt.Errorf("failed to read response: %w", err)
	}

	if resp.StatusCode >= 400 {
		apiErr := APIError{StatusCode: resp.StatusCode}
		if err := json.Unmarshal(body, &apiErr); err != nil || apiErr.Code == "" {
			return fmt.Errorf("HTTP %d: %s", resp.StatusCode, strings.TrimSpace(string(body)))
		}
		return &apiErr
	}

	if result != nil && len(body) > 0 {
		if err := json.Unmarshal(body, result); err != nil {
			return fmt.Errorf("failed to unmarshal response: %w", err)
		}
	}

	return nil
}
