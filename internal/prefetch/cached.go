package prefetch

import (
	"context"
	"time"

	"golang.org/x/sync/singleflight"

	"github.com/lusochat/smart-search/internal/pkg/hash"
	"github.com/lusochat/smart-search/internal/pkg/logger"
)

// Prefetch outcomes reported to the Recorder.
const (
	outcomeHit   = "hit"
	outcomeMiss  = "miss"
	outcomeError = "error"
)

// sharedCallTimeout bounds an upstream lookup that no longer has a caller
// waiting on it.
const sharedCallTimeout = 30 * time.Second

// CachedPrefetcher serves repeated queries from a cache and collapses
// concurrent identical lookups into one upstream call.
type CachedPrefetcher struct {
	inner    Prefetcher
	cache    Cache // may be nil
	group    singleflight.Group
	recorder Recorder
	log      *logger.Logger
}

// NewCachedPrefetcher wraps inner. cache and recorder may be nil.
func NewCachedPrefetcher(inner Prefetcher, cache Cache, recorder Recorder, log *logger.Logger) *CachedPrefetcher {
	if log == nil {
		log = logger.Discard()
	}
	return &CachedPrefetcher{
		inner:    inner,
		cache:    cache,
		recorder: recorder,
		log:      log.WithComponent("prefetch"),
	}
}

// Prefetch implements Prefetcher.
func (p *CachedPrefetcher) Prefetch(ctx context.Context, q Query) (*Result, error) {
	start := time.Now()
	key := hash.QueryKey(q.Text, q.Count)
	if q.Language != "" {
		key += ":" + q.Language
	}

	if p.cache != nil {
		r, ok, err := p.cache.Get(ctx, key)
		if err != nil {
			p.log.WithContext(ctx).Warn("Prefetch cache read failed", "error", err)
		} else if ok {
			p.record(outcomeHit, start)
			hit := *r
			hit.Cached = true
			return &hit, nil
		}
	}

	// The shared call outlives any single caller; each caller stops
	// waiting when its own context ends.
	ch := p.group.DoChan(key, func() (any, error) {
		callCtx, cancel := context.WithTimeout(context.WithoutCancel(ctx), sharedCallTimeout)
		defer cancel()
		r, err := p.inner.Prefetch(callCtx, q)
		if err != nil {
			return nil, err
		}
		if p.cache != nil {
			if err := p.cache.Set(callCtx, key, r); err != nil {
				p.log.WithContext(ctx).Warn("Prefetch cache write failed", "error", err)
			}
		}
		return r, nil
	})

	var res singleflight.Result
	select {
	case <-ctx.Done():
		p.record(outcomeError, start)
		return nil, ctx.Err()
	case res = <-ch:
	}
	if res.Err != nil {
		p.record(outcomeError, start)
		return nil, res.Err
	}

	p.record(outcomeMiss, start)
	r := *res.Val.(*Result)
	return &r, nil
}

func (p *CachedPrefetcher) record(outcome string, start time.Time) {
	if p.recorder != nil {
		p.recorder.RecordPrefetch(outcome, time.Since(start))
	}
}

// Close closes the cache.
func (p *CachedPrefetcher) Close() error {
	if p.cache == nil {
		return nil
	}
	return p.cache.Close()
}
