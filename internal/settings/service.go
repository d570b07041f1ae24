// Package settings provides the runtime valves of the filter: the decision
// rules and filter options an administrator can change without a restart.
package settings

import (
	"context"
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"slices"
	"sync"
	"time"

	"gopkg.in/yaml.v3"

	"github.com/lusochat/smart-search/internal/bus"
	"github.com/lusochat/smart-search/internal/config"
	"github.com/lusochat/smart-search/internal/decision"
	reqctx "github.com/lusochat/smart-search/internal/pkg/context"
	apperrors "github.com/lusochat/smart-search/internal/pkg/errors"
	"github.com/lusochat/smart-search/internal/pkg/logger"
)

// Valves are the runtime settings of the filter.
type Valves struct {
	Rules decision.Config `json:"rules" yaml:"rules"`

	// StatusEnabled controls the status lines shown in the chat.
	StatusEnabled bool `json:"status_enabled" yaml:"status_enabled"`

	// Prefetch fetches results when the decision is enabled.
	Prefetch bool `json:"prefetch" yaml:"prefetch"`

	// Metadata
	UpdatedAt time.Time `json:"updated_at" yaml:"updated_at"`
	Version   int       `json:"version" yaml:"version"`
	ChangedBy string    `json:"changed_by,omitempty" yaml:"changed_by,omitempty"`
}

// ValvesFromConfig seeds valves from the process configuration.
func ValvesFromConfig(cfg *config.Config) Valves {
	return Valves{
		Rules:         cfg.DecisionConfig(),
		StatusEnabled: cfg.Filter.StatusEnabled,
		Prefetch:      cfg.Filter.Prefetch,
	}
}

// Validate checks the valves before they are stored.
func (v Valves) Validate() error {
	if err := v.Rules.Validate(); err != nil {
		return apperrors.ValidationError(err.Error())
	}
	return nil
}

// Clone returns a deep copy, so callers may modify keyword lists freely.
func (v Valves) Clone() Valves {
	r := &v.Rules
	r.ForceKeywords = slices.Clone(r.ForceKeywords)
	r.SkipKeywords = slices.Clone(r.SkipKeywords)
	r.ChitchatKeywords = slices.Clone(r.ChitchatKeywords)
	r.ResourceKeywords = slices.Clone(r.ResourceKeywords)
	r.DomainKeywords = slices.Clone(r.DomainKeywords)
	r.SearchTriggerWords = slices.Clone(r.SearchTriggerWords)
	r.QuestionCues = slices.Clone(r.QuestionCues)
	r.AnaphoraPhrases = slices.Clone(r.AnaphoraPhrases)
	r.LinkMarkers = slices.Clone(r.LinkMarkers)
	r.TimeSensitiveKeywords = slices.Clone(r.TimeSensitiveKeywords)
	r.SimpleCategoryKeywords = slices.Clone(r.SimpleCategoryKeywords)
	r.ComplexCategoryKeywords = slices.Clone(r.ComplexCategoryKeywords)
	if r.ResultCountOverride != nil {
		n := *r.ResultCountOverride
		r.ResultCountOverride = &n
	}
	return v
}

// Recorder counts settings updates. *metrics.Metrics implements it.
type Recorder interface {
	RecordSettingsUpdate()
}

// Service manages the valves with persistence and event publishing.
type Service struct {
	mu          sync.RWMutex
	valves      Valves
	engine      *decision.Engine
	seed        Valves
	storagePath string
	eventBus    bus.Bus
	recorder    Recorder
	audit       *AuditLogger
	log         *logger.Logger
}

// ServiceConfig configures the settings service.
type ServiceConfig struct {
	// StoragePath is the directory where settings are persisted. Empty keeps
	// them in memory only.
	StoragePath string

	// Seed is used when no settings file exists yet.
	Seed Valves
}

// NewService creates a settings service. eventBus and recorder may be nil.
func NewService(cfg ServiceConfig, eventBus bus.Bus, recorder Recorder, log *logger.Logger) (*Service, error) {
	if log == nil {
		log = logger.Discard()
	}
	s := &Service{
		seed:        cfg.Seed.Clone(),
		storagePath: cfg.StoragePath,
		eventBus:    eventBus,
		recorder:    recorder,
		log:         log.WithComponent("settings"),
	}

	if err := s.seed.Validate(); err != nil {
		return nil, fmt.Errorf("invalid seed settings: %w", err)
	}

	if s.storagePath == "" {
		s.audit, _ = NewAuditLogger(AuditLoggerConfig{Enabled: false})
		s.set(s.initial())
		return s, nil
	}

	if err := os.MkdirAll(s.storagePath, 0755); err != nil {
		return nil, fmt.Errorf("failed to create settings directory: %w", err)
	}

	audit, err := NewAuditLogger(AuditLoggerConfig{
		LogPath: filepath.Join(s.storagePath, "audit.log"),
		Enabled: true,
	})
	if err != nil {
		return nil, err
	}
	s.audit = audit

	v, err := s.load()
	switch {
	case err == nil:
		s.set(v)
	case os.IsNotExist(err):
		v := s.initial()
		if err := s.save(v); err != nil {
			s.log.Warn("Failed to save initial settings", "error", err)
		}
		s.set(v)
	default:
		audit.Close()
		return nil, fmt.Errorf("failed to load settings: %w", err)
	}

	return s, nil
}

func (s *Service) initial() Valves {
	v := s.seed.Clone()
	v.Version = 1
	v.UpdatedAt = time.Now().UTC()
	v.ChangedBy = "config"
	return v
}

// set swaps in new valves and compiles their engine. Caller holds mu or
// has exclusive access.
func (s *Service) set(v Valves) {
	s.valves = v
	s.engine = decision.New(v.Rules)
}

// Get returns a copy of the current valves.
func (s *Service) Get(ctx context.Context) Valves {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.valves.Clone()
}

// Engine returns the engine compiled from the current rules.
func (s *Service) Engine() *decision.Engine {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.engine
}

// Snapshot returns the current engine together with the valves it was
// compiled from. The returned valves are shared and must not be modified.
func (s *Service) Snapshot() (*decision.Engine, Valves) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.engine, s.valves
}

// Version returns the current settings version.
func (s *Service) Version() int {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.valves.Version
}

// Update validates and stores new valves. Metadata fields of v are ignored.
func (s *Service) Update(ctx context.Context, v Valves, changedBy string) (Valves, error) {
	if err := v.Validate(); err != nil {
		return Valves{}, err
	}
	v = v.Clone()

	s.mu.Lock()
	old := s.valves

	v.Version = old.Version + 1
	v.UpdatedAt = time.Now().UTC()
	v.ChangedBy = changedBy

	if s.storagePath != "" {
		if err := s.save(v); err != nil {
			s.mu.Unlock()
			return Valves{}, apperrors.InternalError("failed to save settings", err)
		}
	}
	s.set(v)
	s.mu.Unlock()

	if err := s.audit.Log(AuditEntry{
		Timestamp: v.UpdatedAt,
		Version:   v.Version,
		ChangedBy: changedBy,
		Changes:   Diff(old, v),
		RequestID: reqctx.GetRequestID(ctx),
	}); err != nil {
		s.log.Warn("Failed to write settings audit entry", "error", err)
	}

	if s.eventBus != nil {
		event := bus.NewEvent(bus.TopicSettingsChanged, "settings", reqctx.GetRequestID(ctx), bus.SettingsPayload{
			Version:   v.Version,
			ChangedBy: changedBy,
			Mode:      string(decision.ParseMode(string(v.Rules.Mode))),
		})
		if err := s.eventBus.Publish(ctx, bus.TopicSettingsChanged, event); err != nil {
			s.log.WithContext(ctx).Warn("Failed to publish settings changed event", "error", err)
		}
	}

	if s.recorder != nil {
		s.recorder.RecordSettingsUpdate()
	}

	s.log.WithContext(ctx).Info("Settings updated",
		"version", v.Version,
		"changed_by", changedBy,
		"mode", v.Rules.Mode,
	)

	return v.Clone(), nil
}

// Reset restores the seed valves.
func (s *Service) Reset(ctx context.Context, changedBy string) (Valves, error) {
	return s.Update(ctx, s.seed, changedBy)
}

// History returns the most recent audit entries, newest first.
func (s *Service) History(limit int) ([]AuditEntry, error) {
	return s.audit.GetEntries(limit)
}

// ExportYAML exports the valves as YAML.
func (s *Service) ExportYAML(ctx context.Context) ([]byte, error) {
	return yaml.Marshal(s.Get(ctx))
}

// ImportYAML replaces the valves with a YAML document. Omitted fields keep
// their current values.
func (s *Service) ImportYAML(ctx context.Context, data []byte, changedBy string) (Valves, error) {
	v := s.Get(ctx)
	if err := yaml.Unmarshal(data, &v); err != nil {
		return Valves{}, apperrors.ValidationError(fmt.Sprintf("invalid YAML: %v", err))
	}
	return s.Update(ctx, v, changedBy)
}

// ImportJSON is ImportYAML for JSON documents.
func (s *Service) ImportJSON(ctx context.Context, data []byte, changedBy string) (Valves, error) {
	v := s.Get(ctx)
	if err := json.Unmarshal(data, &v); err != nil {
		return Valves{}, apperrors.ValidationError(fmt.Sprintf("invalid JSON: %v", err))
	}
	return s.Update(ctx, v, changedBy)
}

// Close releases the audit log.
func (s *Service) Close() error {
	return s.audit.Close()
}

func (s *Service) settingsFile() string {
	return filepath.Join(s.storagePath, "settings.yaml")
}

func (s *Service) load() (Valves, error) {
	data, err := os.ReadFile(s.settingsFile())
	if err != nil {
		return Valves{}, err
	}

	// Decode over the seed so fields added since the file was written keep
	// their defaults.
	v := s.seed.Clone()
	if err := yaml.Unmarshal(data, &v); err != nil {
		return Valves{}, fmt.Errorf("failed to parse settings: %w", err)
	}
	if err := v.Validate(); err != nil {
		return Valves{}, err
	}
	return v, nil
}

// save writes atomically via a temp file in the same directory.
func (s *Service) save(v Valves) error {
	data, err := yaml.Marshal(v)
	if err != nil {
		return fmt.Errorf("failed to marshal settings: %w", err)
	}

	tmp := s.settingsFile() + ".tmp"
	if err := os.WriteFile(tmp, data, 0644); err != nil {
		return err
	}
	return os.Rename(tmp, s.settingsFile())
}
