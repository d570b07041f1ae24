// Package prefetch fetches web search results for turns the filter enabled,
// so the host can inject them without a second round trip.
package prefetch

import (
	"context"
	"time"
)

// Query is one prefetch request.
type Query struct {
	Text     string `json:"text"`
	Count    int    `json:"count"`
	Language string `json:"language,omitempty"`
}

// Item is one search hit.
type Item struct {
	Title       string `json:"title"`
	Link        string `json:"link"`
	Snippet     string `json:"snippet,omitempty"`
	DisplayLink string `json:"display_link,omitempty"`
}

// Result holds the hits of one query.
type Result struct {
	Query     string    `json:"query"`
	Items     []Item    `json:"items"`
	Source    string    `json:"source"`
	FetchedAt time.Time `json:"fetched_at"`
	Cached    bool      `json:"cached"`
}

// Prefetcher fetches search results.
type Prefetcher interface {
	Prefetch(ctx context.Context, q Query) (*Result, error)
}

// Recorder receives prefetch outcomes. *metrics.Metrics implements it.
type Recorder interface {
	RecordPrefetch(outcome string, d time.Duration)
}
