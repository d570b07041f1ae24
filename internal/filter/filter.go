// Package filter is the inlet hook of the host chat application. It runs the
// decision engine on the incoming request body, flips the host's web search
// features, tells the user what it did, and optionally prefetches results.
package filter

import (
	"context"
	"time"

	"github.com/lusochat/smart-search/internal/bus"
	"github.com/lusochat/smart-search/internal/decision"
	"github.com/lusochat/smart-search/internal/metrics"
	reqctx "github.com/lusochat/smart-search/internal/pkg/context"
	apperrors "github.com/lusochat/smart-search/internal/pkg/errors"
	"github.com/lusochat/smart-search/internal/pkg/logger"
	"github.com/lusochat/smart-search/internal/pkg/security"
	"github.com/lusochat/smart-search/internal/prefetch"
	"github.com/lusochat/smart-search/internal/settings"
)

const defaultPrefetchTimeout = 15 * time.Second

// ConfigSource supplies the engine and valves for each request.
// *settings.Service implements it.
type ConfigSource interface {
	Snapshot() (*decision.Engine, settings.Valves)
}

// StaticSource is a ConfigSource with fixed valves.
type StaticSource struct {
	engine *decision.Engine
	valves settings.Valves
}

// NewStaticSource compiles v once.
func NewStaticSource(v settings.Valves) *StaticSource {
	return &StaticSource{engine: decision.New(v.Rules), valves: v}
}

// Snapshot implements ConfigSource.
func (s *StaticSource) Snapshot() (*decision.Engine, settings.Valves) {
	return s.engine, s.valves
}

// Recorder receives decision and prefetch metrics. *metrics.Metrics
// implements it.
type Recorder interface {
	RecordDecision(mode string, enabled bool, reason, category string, score int)
	RecordPrefetch(outcome string, d time.Duration)
}

// User identifies the chat user, as the host sends it.
type User struct {
	ID    string `json:"id,omitempty"`
	Name  string `json:"name,omitempty"`
	Email string `json:"email,omitempty"`
	Role  string `json:"role,omitempty"`
}

// Outcome is what Inlet did to one request.
type Outcome struct {
	Body     *Body             `json:"body"`
	Decision decision.Decision `json:"decision"`
	Events   []StatusEvent     `json:"events"`
	Prefetch *prefetch.Result  `json:"prefetch,omitempty"`
}

// Options configures a Filter. Only Source is required.
type Options struct {
	Source     ConfigSource
	Bus        bus.Bus
	Prefetcher prefetch.Prefetcher
	Recorder   Recorder
	Logger     *logger.Logger

	// PrefetchTimeout bounds one prefetch call. Zero means 15s.
	PrefetchTimeout time.Duration
}

// Filter applies search decisions to host request bodies. It is safe for
// concurrent use.
type Filter struct {
	source          ConfigSource
	bus             bus.Bus
	prefetcher      prefetch.Prefetcher
	recorder        Recorder
	log             *logger.Logger
	prefetchTimeout time.Duration
}

// New creates a filter.
func New(opts Options) *Filter {
	log := opts.Logger
	if log == nil {
		log = logger.Discard()
	}
	timeout := opts.PrefetchTimeout
	if timeout <= 0 {
		timeout = defaultPrefetchTimeout
	}
	return &Filter{
		source:          opts.Source,
		bus:             opts.Bus,
		prefetcher:      opts.Prefetcher,
		recorder:        opts.Recorder,
		log:             log.WithComponent("filter"),
		prefetchTimeout: timeout,
	}
}

// Inlet decides on the latest user turn of body and mutates its features.
// It never fails: collaborator errors are logged and the body is returned
// with whatever was decided.
func (f *Filter) Inlet(ctx context.Context, body *Body, user *User) Outcome {
	if body == nil {
		body = NewBody(nil)
	}
	engine, valves := f.source.Snapshot()
	cfg := engine.Config()
	log := f.log.WithContext(ctx)

	transcript := body.transcript()
	d := engine.Decide(transcript)

	if cfg.ResultCountOverride != nil {
		body.setFeature(FeatureResultCount, *cfg.ResultCountOverride)
	} else if d.Enabled {
		body.setFeature(FeatureResultCount, d.ResultCount)
	}
	body.setFeature(FeatureWebSearch, d.Enabled)
	if cfg.Debug {
		body.setFeature(FeatureReason, d.Reason)
	}

	out := Outcome{Body: body, Decision: d, Events: []StatusEvent{}}

	if valves.StatusEnabled {
		ev := statusFor(d, cfg.Debug)
		out.Events = append(out.Events, ev)
		f.publishStatus(ctx, ev)
	}

	text := transcript.LastText(decision.RoleUser)

	if d.Enabled {
		switch {
		case valves.Prefetch && f.prefetcher != nil:
			out.Prefetch = f.prefetch(ctx, text, d.ResultCount)
		default:
			f.recordPrefetch(metrics.PrefetchSkipped, 0)
		}
	}

	if f.recorder != nil {
		f.recorder.RecordDecision(string(d.Mode), d.Enabled, d.Reason, string(d.Category), d.Score)
	}

	log.Info("Search decision",
		"mode", d.Mode,
		"enabled", d.Enabled,
		"reason", d.Reason,
		"category", d.Category,
		"result_count", d.ResultCount,
		"query", security.SanitizeForLog(text),
	)

	f.publishDecision(ctx, body, user, d, text, out.Prefetch)

	return out
}

func (f *Filter) prefetch(ctx context.Context, text string, count int) *prefetch.Result {
	log := f.log.WithContext(ctx)

	if security.SanitizeQuery(text) == "" {
		f.recordPrefetch(metrics.PrefetchSkipped, 0)
		return nil
	}

	ctx, cancel := context.WithTimeout(ctx, f.prefetchTimeout)
	defer cancel()

	res, err := f.prefetcher.Prefetch(ctx, prefetch.Query{Text: text, Count: count})
	if err != nil {
		// Timeouts and provider throttling are expected under load.
		if apperrors.HasCode(err, apperrors.CodeTimeout) || apperrors.HasCode(err, apperrors.CodeRateLimited) {
			log.Info("Prefetch skipped", "error", err)
		} else {
			log.Warn("Prefetch failed", "error", err)
		}
		return nil
	}

	log.Debug("Prefetched results", "count", len(res.Items), "cached", res.Cached)
	return res
}

func (f *Filter) recordPrefetch(outcome string, d time.Duration) {
	if f.recorder != nil {
		f.recorder.RecordPrefetch(outcome, d)
	}
}

func (f *Filter) publishStatus(ctx context.Context, ev StatusEvent) {
	if f.bus == nil {
		return
	}
	event := bus.NewEvent(bus.TopicStatus, "filter", reqctx.GetRequestID(ctx), bus.StatusPayload{
		Level:       ev.Type,
		Description: ev.Data.Description,
		Done:        ev.Data.Done,
	})
	if err := f.bus.Publish(ctx, bus.TopicStatus, event); err != nil {
		f.log.WithContext(ctx).Warn("Failed to publish status event", "error", err)
	}
}

func (f *Filter) publishDecision(ctx context.Context, body *Body, user *User, d decision.Decision, text string, res *prefetch.Result) {
	if f.bus == nil {
		return
	}

	p := bus.DecisionPayload{
		Mode:        string(d.Mode),
		Enabled:     d.Enabled,
		Reason:      d.Reason,
		Category:    string(d.Category),
		ResultCount: d.ResultCount,
		Score:       d.Score,
		ChatID:      body.ChatID,
		Query:       security.SanitizeForLog(text),
	}
	if p.ChatID == "" {
		p.ChatID = reqctx.GetChatID(ctx)
	}
	if user != nil {
		p.UserID = user.ID
	}
	if res != nil {
		p.Prefetched = len(res.Items)
	}

	event := bus.NewEvent(bus.TopicDecision, "filter", reqctx.GetRequestID(ctx), p)
	if err := f.bus.Publish(ctx, bus.TopicDecision, event); err != nil {
		f.log.WithContext(ctx).Warn("Failed to publish decision event", "error", err)
	}
}
