package server

import (
	"encoding/json"
	"net/http"
	"runtime"
	"strconv"
	"strings"
	"time"

	"github.com/lusochat/smart-search/internal/decision"
	"github.com/lusochat/smart-search/internal/filter"
	"github.com/lusochat/smart-search/internal/metrics"
	apperrors "github.com/lusochat/smart-search/internal/pkg/errors"
	"github.com/lusochat/smart-search/internal/pkg/security"
	"github.com/lusochat/smart-search/internal/settings"
)

// Stats query limits.
const (
	defaultStatsDays = 7
	maxStatsDays     = 366
	maxEventsLimit   = 1000
)

// changedBy labels settings changes made through the API.
const changedByAPI = "api"

// InletRequest is the body of POST /v1/filter/inlet.
type InletRequest struct {
	Body *filter.Body `json:"body"`
	User *filter.User `json:"user,omitempty"`
}

// DecideRequest is the body of POST /v1/decide. Config, when present, is
// merged over the current rules.
type DecideRequest struct {
	Messages decision.Transcript `json:"messages"`
	Config   json.RawMessage     `json:"config,omitempty"`
}

// StatsResponse is the body of GET /v1/stats.
type StatsResponse struct {
	Days []metrics.DayStats `json:"days"`
}

func (s *Server) registerRoutes(mux *http.ServeMux) {
	mux.HandleFunc("GET /healthz", s.handleHealth)
	mux.HandleFunc("GET /readyz", s.handleReady)
	mux.HandleFunc("GET /v1/version", s.handleVersion)

	mux.HandleFunc("POST /v1/filter/inlet", s.handleInlet)
	mux.HandleFunc("POST /v1/decide", s.handleDecide)

	mux.HandleFunc("GET /v1/settings", s.handleGetSettings)
	mux.HandleFunc("PUT /v1/settings", s.handlePutSettings)
	mux.HandleFunc("POST /v1/settings/reset", s.handleResetSettings)
	mux.HandleFunc("GET /v1/settings/history", s.handleSettingsHistory)

	mux.HandleFunc("GET /v1/stats", s.handleStats)
	mux.HandleFunc("GET /v1/events", s.handleEvents)

	if s.deps.Metrics != nil && s.cfg.MetricsPath != "" {
		mux.Handle("GET "+s.cfg.MetricsPath, s.deps.Metrics.Handler())
	}
}

func (s *Server) handleHealth(w http.ResponseWriter, _ *http.Request) {
	writeJSON(w, http.StatusOK, map[string]string{"status": "ok"})
}

func (s *Server) handleReady(w http.ResponseWriter, _ *http.Request) {
	if !s.Ready() {
		writeJSON(w, http.StatusServiceUnavailable, map[string]string{"status": "not_ready", "reason": "shutting_down"})
		return
	}
	writeJSON(w, http.StatusOK, map[string]string{"status": "ready"})
}

func (s *Server) handleVersion(w http.ResponseWriter, _ *http.Request) {
	writeJSON(w, http.StatusOK, map[string]string{
		"version":    s.cfg.Version,
		"git_commit": s.cfg.Commit,
		"build_time": s.cfg.BuildDate,
		"go_version": runtime.Version(),
	})
}

// handleInlet handles POST /v1/filter/inlet.
func (s *Server) handleInlet(w http.ResponseWriter, r *http.Request) {
	var req InletRequest
	if err := decodeJSON(w, r, &req); err != nil {
		apperrors.WriteError(w, err)
		return
	}
	if req.Body == nil {
		apperrors.WriteError(w, apperrors.ValidationError("body is required"))
		return
	}
	if err := security.ValidateMessageCount(len(req.Body.Messages)); err != nil {
		apperrors.WriteError(w, apperrors.ValidationError(err.Error()))
		return
	}

	out := s.deps.Filter.Inlet(r.Context(), req.Body, req.User)
	writeJSON(w, http.StatusOK, out)
}

// handleDecide handles POST /v1/decide.
func (s *Server) handleDecide(w http.ResponseWriter, r *http.Request) {
	var req DecideRequest
	if err := decodeJSON(w, r, &req); err != nil {
		apperrors.WriteError(w, err)
		return
	}
	if err := security.ValidateMessageCount(len(req.Messages)); err != nil {
		apperrors.WriteError(w, apperrors.ValidationError(err.Error()))
		return
	}

	engine := s.deps.Settings.Engine()
	if len(req.Config) > 0 && string(req.Config) != "null" {
		cfg := s.deps.Settings.Get(r.Context()).Rules
		if err := json.Unmarshal(req.Config, &cfg); err != nil {
			apperrors.WriteError(w, apperrors.ValidationError("invalid config: "+err.Error()))
			return
		}
		if err := cfg.Validate(); err != nil {
			apperrors.WriteError(w, apperrors.ValidationError(err.Error()))
			return
		}
		engine = decision.New(cfg)
	}

	writeJSON(w, http.StatusOK, engine.Decide(req.Messages))
}

// handleGetSettings handles GET /v1/settings[?format=yaml].
func (s *Server) handleGetSettings(w http.ResponseWriter, r *http.Request) {
	if !wantsYAML(r) {
		writeJSON(w, http.StatusOK, s.deps.Settings.Get(r.Context()))
		return
	}

	data, err := s.deps.Settings.ExportYAML(r.Context())
	if err != nil {
		apperrors.WriteError(w, apperrors.InternalError("failed to export settings", err))
		return
	}
	writeYAML(w, http.StatusOK, data)
}

// handlePutSettings handles PUT /v1/settings. The body is JSON, or YAML
// with ?format=yaml or a YAML content type. Omitted fields keep their
// current values.
func (s *Server) handlePutSettings(w http.ResponseWriter, r *http.Request) {
	data, err := readBody(w, r)
	if err != nil {
		apperrors.WriteError(w, err)
		return
	}

	var updated settings.Valves
	if wantsYAML(r) {
		updated, err = s.deps.Settings.ImportYAML(r.Context(), data, changedBy(r))
	} else {
		updated, err = s.deps.Settings.ImportJSON(r.Context(), data, changedBy(r))
	}
	if err != nil {
		if !apperrors.IsValidation(err) {
			s.log.WithContext(r.Context()).Error("Settings update failed", "error", err)
		}
		apperrors.WriteError(w, err)
		return
	}

	if wantsYAML(r) {
		out, err := s.deps.Settings.ExportYAML(r.Context())
		if err != nil {
			apperrors.WriteError(w, apperrors.InternalError("failed to export settings", err))
			return
		}
		writeYAML(w, http.StatusOK, out)
		return
	}
	writeJSON(w, http.StatusOK, updated)
}

// handleResetSettings handles POST /v1/settings/reset.
func (s *Server) handleResetSettings(w http.ResponseWriter, r *http.Request) {
	updated, err := s.deps.Settings.Reset(r.Context(), changedBy(r))
	if err != nil {
		apperrors.WriteError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, updated)
}

// handleSettingsHistory handles GET /v1/settings/history?limit=N.
func (s *Server) handleSettingsHistory(w http.ResponseWriter, r *http.Request) {
	limit, err := intParam(r, "limit", 20, 1, maxEventsLimit)
	if err != nil {
		apperrors.WriteError(w, err)
		return
	}

	entries, err := s.deps.Settings.History(limit)
	if err != nil {
		apperrors.WriteError(w, apperrors.InternalError("failed to read settings history", err))
		return
	}
	writeJSON(w, http.StatusOK, map[string][]settings.AuditEntry{"entries": entries})
}

// handleStats handles GET /v1/stats?days=N.
func (s *Server) handleStats(w http.ResponseWriter, r *http.Request) {
	if s.deps.Tally == nil {
		apperrors.WriteError(w, apperrors.ServiceUnavailableError("stats"))
		return
	}

	days, err := intParam(r, "days", defaultStatsDays, 1, maxStatsDays)
	if err != nil {
		apperrors.WriteError(w, err)
		return
	}

	stats, err := s.deps.Tally.Days(r.Context(), days)
	if err != nil {
		apperrors.WriteError(w, apperrors.InternalError("failed to load stats", err))
		return
	}
	writeJSON(w, http.StatusOK, StatsResponse{Days: stats})
}

// handleEvents handles GET /v1/events?since=RFC3339&topic=T&limit=N.
func (s *Server) handleEvents(w http.ResponseWriter, r *http.Request) {
	if s.deps.Events == nil || !s.deps.Events.IsEnabled() {
		apperrors.WriteError(w, apperrors.ServiceUnavailableError("event log"))
		return
	}

	var since time.Time
	if raw := r.URL.Query().Get("since"); raw != "" {
		t, err := time.Parse(time.RFC3339, raw)
		if err != nil {
			apperrors.WriteError(w, apperrors.ValidationError("since must be an RFC 3339 timestamp"))
			return
		}
		since = t
	}

	limit, err := intParam(r, "limit", 100, 1, maxEventsLimit)
	if err != nil {
		apperrors.WriteError(w, err)
		return
	}

	events, err := s.deps.Events.GetEvents(since, r.URL.Query().Get("topic"), limit)
	if err != nil {
		apperrors.WriteError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"events": events})
}

// intParam reads an optional integer query parameter within [min, max].
func intParam(r *http.Request, name string, def, lo, hi int) (int, error) {
	raw := r.URL.Query().Get(name)
	if raw == "" {
		return def, nil
	}
	n, err := strconv.Atoi(raw)
	if err != nil || n < lo || n > hi {
		return 0, apperrors.ValidationError(name + " must be an integer between " +
			strconv.Itoa(lo) + " and " + strconv.Itoa(hi))
	}
	return n, nil
}

// wantsYAML reports whether the request asks for YAML settings documents.
func wantsYAML(r *http.Request) bool {
	if f := r.URL.Query().Get("format"); f != "" {
		return strings.EqualFold(f, "yaml")
	}
	return strings.Contains(r.Header.Get("Content-Type"), "yaml")
}

// changedBy names the actor of a settings change.
func changedBy(r *http.Request) string {
	if who := r.Header.Get("X-Changed-By"); who != "" {
		return security.SanitizeForLogWithLength(who, 64)
	}
	return changedByAPI
}
