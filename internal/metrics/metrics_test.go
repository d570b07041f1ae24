package metrics

import (
	"errors"
	"io"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/testutil"
)

func TestReasonLabel(t *testing.T) {
	tests := map[string]string{
		"score=3, force=1, skip=0, aggr=0, thr=1": ReasonScored,
		"too_short": "too_short",
		"mode_off":  "mode_off",
		"":          "unknown",
	}
	for in, want := range tests {
		if got := ReasonLabel(in); got != want {
			t.Errorf("ReasonLabel(%q) = %q, want %q", in, got, want)
		}
	}
}

func TestRecordDecision(t *testing.T) {
	m := MustNewMetrics(prometheus.NewRegistry())

	m.RecordDecision("auto", true, "score=3, force=1, skip=0, aggr=0, thr=1", "simple", 3)
	m.RecordDecision("auto", true, "score=5, force=3, skip=0, aggr=0, thr=1", "simple", 5)
	m.RecordDecision("auto", false, "too_short", "default", 0)

	if got := testutil.ToFloat64(m.decisions.WithLabelValues("auto", "true", ReasonScored)); got != 2 {
		t.Errorf("scored decisions = %v, want 2", got)
	}
	if got := testutil.ToFloat64(m.decisions.WithLabelValues("auto", "false", "too_short")); got != 1 {
		t.Errorf("too_short decisions = %v, want 1", got)
	}
	if got := testutil.ToFloat64(m.categories.WithLabelValues("simple")); got != 2 {
		t.Errorf("simple categories = %v, want 2", got)
	}
	if n := testutil.CollectAndCount(m.decisionScore); n != 1 {
		t.Errorf("decision score histogram series = %d, want 1", n)
	}
}

func TestRecordPrefetchAndBus(t *testing.T) {
	m := MustNewMetrics(prometheus.NewRegistry())

	m.RecordPrefetch(PrefetchHit, 2*time.Millisecond)
	m.RecordPrefetch(PrefetchError, time.Second)
	m.RecordBusPublish("filter.decision", time.Millisecond, nil)
	m.RecordBusPublish("filter.decision", time.Millisecond, errors.New("down"))
	m.RecordSettingsUpdate()

	if got := testutil.ToFloat64(m.prefetches.WithLabelValues(PrefetchHit)); got != 1 {
		t.Errorf("prefetch hits = %v, want 1", got)
	}
	if got := testutil.ToFloat64(m.busPublished.WithLabelValues("filter.decision", "error")); got != 1 {
		t.Errorf("bus errors = %v, want 1", got)
	}
	if got := testutil.ToFloat64(m.settingsUpdate); got != 1 {
		t.Errorf("settings updates = %v, want 1", got)
	}
}

func TestNilMetricsAreNoops(t *testing.T) {
	var m *Metrics
	m.RecordDecision("auto", true, "x", "default", 1)
	m.RecordPrefetch(PrefetchMiss, time.Millisecond)
	m.RecordBusPublish("t", time.Millisecond, nil)
	m.RecordSettingsUpdate()
}

func TestMustNewMetrics_ReusesRegisteredCollectors(t *testing.T) {
	reg := prometheus.NewRegistry()
	first := MustNewMetrics(reg)
	second := MustNewMetrics(reg)

	first.RecordSettingsUpdate()
	if got := testutil.ToFloat64(second.settingsUpdate); got != 1 {
		t.Errorf("second instance sees %v updates, want 1", got)
	}
}

func TestHandler(t *testing.T) {
	m := New()
	m.RecordDecision("off", false, "mode_off", "default", 0)

	rec := httptest.NewRecorder()
	m.Handler().ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/metrics", nil))

	body, _ := io.ReadAll(rec.Body)
	for _, want := range []string{
		`smart_search_filter_decisions_total{enabled="false",mode="off",reason="mode_off"} 1`,
		"go_goroutines",
	} {
		if !strings.Contains(string(body), want) {
			t.Errorf("metrics output missing %q", want)
		}
	}
}

func TestHTTPMiddleware(t *testing.T) {
	m := MustNewMetrics(prometheus.NewRegistry())

	mux := http.NewServeMux()
	mux.HandleFunc("GET /v1/settings", func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusOK)
	})
	handler := HTTPMiddleware(m, mux)

	for _, path := range []string{"/v1/settings", "/v1/settings", "/nope"} {
		handler.ServeHTTP(httptest.NewRecorder(), httptest.NewRequest(http.MethodGet, path, nil))
	}

	if got := testutil.ToFloat64(m.httpRequests.WithLabelValues("GET", "GET /v1/settings", "200")); got != 2 {
		t.Errorf("matched requests = %v, want 2", got)
	}
	if got := testutil.ToFloat64(m.httpRequests.WithLabelValues("GET", "unmatched", "404")); got != 1 {
		t.Errorf("unmatched requests = %v, want 1", got)
	}
	if got := testutil.ToFloat64(m.httpInFlight); got != 0 {
		t.Errorf("in-flight = %v, want 0", got)
	}
}

func TestStatusCode(t *testing.T) {
	tests := map[int]string{200: "200", 201: "2xx", 429: "429", 418: "4xx", 504: "5xx", 99: "99"}
	for code, want := range tests {
		if got := statusCode(code); got != want {
			t.Errorf("statusCode(%d) = %s, want %s", code, got, want)
		}
	}
}
