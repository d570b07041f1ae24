package prefetch

import (
	"context"
	"time"

	"golang.org/x/time/rate"
	"google.golang.org/api/customsearch/v1"
	"google.golang.org/api/option"

	"github.com/lusochat/smart-search/internal/config"
	apperrors "github.com/lusochat/smart-search/internal/pkg/errors"
	"github.com/lusochat/smart-search/internal/pkg/security"
)

// SourceGoogle marks results fetched from Google Programmable Search.
const SourceGoogle = "google"

// GoogleConfig configures a GoogleSearcher.
type GoogleConfig struct {
	APIKey   string
	EngineID string
	Endpoint string // optional, for proxies and tests
	Language string // lr parameter, e.g. "lang_pt"
	Timeout  time.Duration

	// RateLimit and Burst bound outbound calls. Zero disables limiting.
	RateLimit float64
	Burst     int
}

// GoogleConfigFrom maps the process configuration.
func GoogleConfigFrom(cfg config.SearchConfig) GoogleConfig {
	return GoogleConfig{
		APIKey:    cfg.GoogleAPIKey,
		EngineID:  cfg.GoogleEngineID,
		Endpoint:  cfg.Endpoint,
		Language:  cfg.Language,
		Timeout:   time.Duration(cfg.Timeout) * time.Second,
		RateLimit: cfg.RateLimit,
		Burst:     cfg.RateBurst,
	}
}

// GoogleSearcher queries the Custom Search JSON API.
type GoogleSearcher struct {
	svc      *customsearch.Service
	engineID string
	language string
	timeout  time.Duration
	limiter  *rate.Limiter
}

// NewGoogleSearcher creates a searcher. It does not contact Google.
func NewGoogleSearcher(ctx context.Context, cfg GoogleConfig) (*GoogleSearcher, error) {
	if cfg.APIKey == "" || cfg.EngineID == "" {
		return nil, apperrors.ValidationError("google api key and engine id are required")
	}

	opts := []option.ClientOption{option.WithAPIKey(cfg.APIKey)}
	if cfg.Endpoint != "" {
		opts = append(opts, option.WithEndpoint(cfg.Endpoint))
	}

	svc, err := customsearch.NewService(ctx, opts...)
	if err != nil {
		return nil, apperrors.SearchError("failed to create custom search client", err)
	}

	if cfg.Timeout <= 0 {
		cfg.Timeout = 10 * time.Second
	}

	limiter := rate.NewLimiter(rate.Inf, 0)
	if cfg.RateLimit > 0 {
		burst := cfg.Burst
		if burst < 1 {
			burst = 1
		}
		limiter = rate.NewLimiter(rate.Limit(cfg.RateLimit), burst)
	}

	return &GoogleSearcher{
		svc:      svc,
		engineID: cfg.EngineID,
		language: cfg.Language,
		timeout:  cfg.Timeout,
		limiter:  limiter,
	}, nil
}

// Prefetch implements Prefetcher.
func (g *GoogleSearcher) Prefetch(ctx context.Context, q Query) (*Result, error) {
	// Pasted documents can be far longer than the provider accepts; the
	// head of the turn is what gets searched.
	text := security.TruncateQuery(security.SanitizeQuery(q.Text), security.MaxQueryLength)
	if err := security.ValidateQuery(text); err != nil {
		return nil, apperrors.ValidationError(err.Error())
	}
	count := clampCount(q.Count)

	if err := g.limiter.Wait(ctx); err != nil {
		return nil, apperrors.Wrap(apperrors.CodeRateLimited, "search rate limit wait aborted", err)
	}

	ctx, cancel := context.WithTimeout(ctx, g.timeout)
	defer cancel()

	call := g.svc.Cse.List().Q(text).Cx(g.engineID).Num(int64(count))
	lang := q.Language
	if lang == "" {
		lang = g.language
	}
	if lang != "" {
		call = call.Lr(lang)
	}

	resp, err := call.Context(ctx).Do()
	if err != nil {
		if ctx.Err() != nil {
			return nil, apperrors.TimeoutError("google search")
		}
		return nil, apperrors.SearchError("google search failed", err)
	}

	items := make([]Item, 0, len(resp.Items))
	for _, it := range resp.Items {
		if it == nil {
			continue
		}
		items = append(items, Item{
			Title:       it.Title,
			Link:        it.Link,
			Snippet:     it.Snippet,
			DisplayLink: it.DisplayLink,
		})
	}

	return &Result{
		Query:     text,
		Items:     items,
		Source:    SourceGoogle,
		FetchedAt: time.Now().UTC(),
	}, nil
}

// clampCount keeps the count inside what the API accepts.
func clampCount(n int) int {
	if security.ValidateResultCount(n) == nil {
		return n
	}
	switch {
	case n < security.MinResultCount:
		return security.MinResultCount
	case n > security.MaxResultCount:
		return security.MaxResultCount
	default:
		return n
	}
}
