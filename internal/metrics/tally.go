package metrics

import (
	"context"
	"sort"
	"strings"
	"time"

	"github.com/lusochat/smart-search/internal/bus"
	"github.com/lusochat/smart-search/internal/pkg/logger"
)

// dayLayout is the key format of a statistics day (UTC).
const dayLayout = "2006-01-02"

// Field names in a day's counter set.
const (
	fieldTotal          = "total"
	fieldEnabled        = "enabled"
	fieldPrefetched     = "prefetched"
	fieldReasonPrefix   = "reason:"
	fieldCategoryPrefix = "category:"
	fieldModePrefix     = "mode:"
)

// Storage persists per-day counters.
type Storage interface {
	// Increment adds one to each field of day.
	Increment(ctx context.Context, day string, fields []string) error

	// Load returns the counters of day. A day without data is an empty map.
	Load(ctx context.Context, day string) (map[string]int64, error)

	// Close releases resources.
	Close() error
}

// DayStats is the decision summary of one UTC day.
type DayStats struct {
	Date       string           `json:"date"`
	Total      int64            `json:"total"`
	Enabled    int64            `json:"enabled"`
	Prefetched int64            `json:"prefetched"`
	ByReason   map[string]int64 `json:"by_reason"`
	ByCategory map[string]int64 `json:"by_category"`
	ByMode     map[string]int64 `json:"by_mode"`
}

// EnabledRate is the share of decisions that enabled search.
func (d DayStats) EnabledRate() float64 {
	if d.Total == 0 {
		return 0
	}
	return float64(d.Enabled) / float64(d.Total)
}

// Tally aggregates decision events into daily counters.
type Tally struct {
	storage Storage
	log     *logger.Logger
	now     func() time.Time
}

// NewTally creates a tally over storage.
func NewTally(storage Storage, log *logger.Logger) *Tally {
	if log == nil {
		log = logger.Discard()
	}
	return &Tally{
		storage: storage,
		log:     log.WithComponent("tally"),
		now:     time.Now,
	}
}

// Attach subscribes the tally to decision events on b.
func (t *Tally) Attach(ctx context.Context, b bus.Bus) error {
	return b.Subscribe(ctx, bus.TopicDecision, t.handleDecision)
}

func (t *Tally) handleDecision(ctx context.Context, event bus.Event) error {
	var p bus.DecisionPayload
	if err := bus.DecodePayload(event, &p); err != nil {
		return err
	}

	at := t.now()
	if event.Timestamp > 0 {
		at = time.UnixMilli(event.Timestamp)
	}
	return t.Record(ctx, at, p)
}

// Record counts one decision on the day of at.
func (t *Tally) Record(ctx context.Context, at time.Time, p bus.DecisionPayload) error {
	fields := []string{
		fieldTotal,
		fieldReasonPrefix + ReasonLabel(p.Reason),
		fieldModePrefix + p.Mode,
	}
	if p.Category != "" {
		fields = append(fields, fieldCategoryPrefix+p.Category)
	}
	if p.Enabled {
		fields = append(fields, fieldEnabled)
	}
	if p.Prefetched > 0 {
		fields = append(fields, fieldPrefetched)
	}

	return t.storage.Increment(ctx, at.UTC().Format(dayLayout), fields)
}

// Days returns the statistics of the last n days, today first.
func (t *Tally) Days(ctx context.Context, n int) ([]DayStats, error) {
	if n < 1 {
		n = 1
	}

	today := t.now().UTC()
	out := make([]DayStats, 0, n)
	for i := 0; i < n; i++ {
		day := today.AddDate(0, 0, -i).Format(dayLayout)
		counters, err := t.storage.Load(ctx, day)
		if err != nil {
			return nil, err
		}
		out = append(out, summarize(day, counters))
	}
	return out, nil
}

func summarize(day string, counters map[string]int64) DayStats {
	s := DayStats{
		Date:       day,
		ByReason:   map[string]int64{},
		ByCategory: map[string]int64{},
		ByMode:     map[string]int64{},
	}

	// Sorted for stable output in tests and logs.
	keys := make([]string, 0, len(counters))
	for k := range counters {
		keys = append(keys, k)
	}
	sort.Strings(keys)

	for _, k := range keys {
		v := counters[k]
		switch {
		case k == fieldTotal:
			s.Total = v
		case k == fieldEnabled:
			s.Enabled = v
		case k == fieldPrefetched:
			s.Prefetched = v
		case strings.HasPrefix(k, fieldReasonPrefix):
			s.ByReason[strings.TrimPrefix(k, fieldReasonPrefix)] = v
		case strings.HasPrefix(k, fieldCategoryPrefix):
			s.ByCategory[strings.TrimPrefix(k, fieldCategoryPrefix)] = v
		case strings.HasPrefix(k, fieldModePrefix):
			s.ByMode[strings.TrimPrefix(k, fieldModePrefix)] = v
		}
	}
	return s
}

// Close closes the storage.
func (t *Tally) Close() error {
	return t.storage.Close()
}
