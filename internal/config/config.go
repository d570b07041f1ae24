// Package config handles configuration loading and validation.
package config

import (
	"fmt"
	"os"
	"strings"

	"github.com/kelseyhightower/envconfig"
	"gopkg.in/yaml.v3"

	"github.com/lusochat/smart-search/internal/decision"
	"github.com/lusochat/smart-search/internal/pkg/middleware"
	"github.com/lusochat/smart-search/internal/pkg/security"
)

// Config holds all application configuration.
type Config struct {
	// Server configuration
	Host string `envconfig:"SMART_SEARCH_HOST" yaml:"host"`
	Port int    `envconfig:"SMART_SEARCH_PORT" yaml:"port"`

	// Filter holds the initial valves of the inlet filter
	Filter FilterConfig `yaml:"filter"`

	// Search holds the web search provider used for prefetch
	Search SearchConfig `yaml:"search"`

	// Cache configuration for prefetched results
	Cache CacheConfig `yaml:"cache"`

	// Bus configuration
	Bus BusConfig `yaml:"bus"`

	// Stats configuration
	Stats StatsConfig `yaml:"stats"`

	// Settings persistence
	Settings SettingsConfig `yaml:"settings"`

	// Logging configuration
	Log LogConfig `yaml:"log"`

	// Security configuration
	Security SecurityConfig `yaml:"security"`

	// Observability configuration
	Observability ObservabilityConfig `yaml:"observability"`
}

// FilterConfig seeds the runtime valves on first start. Scalar knobs may be
// set from the environment; keyword lists only from the YAML rules block.
// A scalar may also be given inside the rules block, but not in both places
// with different values.
type FilterConfig struct {
	Mode                string `envconfig:"SMART_SEARCH_MODE" yaml:"mode"`
	Debug               bool   `envconfig:"SMART_SEARCH_DEBUG" yaml:"debug"`
	StatusEnabled       bool   `envconfig:"SMART_SEARCH_STATUS" yaml:"status_enabled"`
	Prefetch            bool   `envconfig:"SMART_SEARCH_PREFETCH" yaml:"prefetch"`
	Aggressiveness      int    `envconfig:"SMART_SEARCH_AGGRESSIVENESS" yaml:"aggressiveness"`
	Threshold           int    `envconfig:"SMART_SEARCH_THRESHOLD" yaml:"threshold"`
	MinCharsForSearch   int    `envconfig:"SMART_SEARCH_MIN_CHARS" yaml:"min_chars_for_search"`
	CooldownTurns       int    `envconfig:"SMART_SEARCH_COOLDOWN_TURNS" yaml:"cooldown_turns"`
	ResultCountOverride int    `envconfig:"SMART_SEARCH_RESULT_COUNT_OVERRIDE" yaml:"result_count_override"` // 0 = per category

	Rules decision.Config `yaml:"rules" ignored:"true"`
}

// SearchConfig holds Google Programmable Search settings.
type SearchConfig struct {
	GoogleAPIKey   string  `envconfig:"SMART_SEARCH_GOOGLE_API_KEY" yaml:"google_api_key"`
	GoogleEngineID string  `envconfig:"SMART_SEARCH_GOOGLE_ENGINE_ID" yaml:"google_engine_id"`
	Endpoint       string  `envconfig:"SMART_SEARCH_GOOGLE_ENDPOINT" yaml:"endpoint"` // empty = Google default
	Language       string  `envconfig:"SMART_SEARCH_LANGUAGE" yaml:"language"`
	Timeout        int     `envconfig:"SMART_SEARCH_TIMEOUT" yaml:"timeout"` // seconds
	RateLimit      float64 `envconfig:"SMART_SEARCH_RATE_LIMIT" yaml:"rate_limit"`
	RateBurst      int     `envconfig:"SMART_SEARCH_RATE_BURST" yaml:"rate_burst"`
}

// CacheConfig holds cache settings.
type CacheConfig struct {
	Type     string `envconfig:"SMART_SEARCH_CACHE_TYPE" yaml:"type"`
	Size     int    `envconfig:"SMART_SEARCH_CACHE_SIZE" yaml:"size"`
	TTL      int    `envconfig:"SMART_SEARCH_CACHE_TTL" yaml:"ttl"` // seconds
	RedisURL string `envconfig:"SMART_SEARCH_REDIS_URL" yaml:"redis_url"`
}

// BusConfig holds event bus settings.
type BusConfig struct {
	Type         string `envconfig:"SMART_SEARCH_BUS_TYPE" yaml:"type"`
	KafkaBrokers string `envconfig:"SMART_SEARCH_KAFKA_BROKERS" yaml:"kafka_brokers"`
	KafkaGroup   string `envconfig:"SMART_SEARCH_KAFKA_GROUP" yaml:"kafka_group"`
	EventLog     string `envconfig:"SMART_SEARCH_EVENT_LOG" yaml:"event_log"` // empty = disabled
}

// StatsConfig holds decision statistics settings.
type StatsConfig struct {
	Storage       string `envconfig:"SMART_SEARCH_STATS_STORAGE" yaml:"storage"`
	RedisURL      string `envconfig:"SMART_SEARCH_STATS_REDIS_URL" yaml:"redis_url"`
	RetentionDays int    `envconfig:"SMART_SEARCH_STATS_RETENTION_DAYS" yaml:"retention_days"`
}

// SettingsConfig holds runtime settings persistence.
type SettingsConfig struct {
	StoragePath string `envconfig:"SMART_SEARCH_SETTINGS_PATH" yaml:"storage_path"` // empty = in memory
}

// LogConfig holds logging settings.
type LogConfig struct {
	Level  string `envconfig:"SMART_SEARCH_LOG_LEVEL" yaml:"level"`
	Format string `envconfig:"SMART_SEARCH_LOG_FORMAT" yaml:"format"`
	File   string `envconfig:"SMART_SEARCH_LOG_FILE" yaml:"file"`
}

// SecurityConfig holds security settings.
type SecurityConfig struct {
	APIKey    string  `envconfig:"SMART_SEARCH_API_KEY" yaml:"api_key"`
	RateLimit float64 `envconfig:"SMART_SEARCH_HTTP_RATE_LIMIT" yaml:"rate_limit"` // 0 = disabled
	RateBurst int     `envconfig:"SMART_SEARCH_HTTP_RATE_BURST" yaml:"rate_burst"`
	// TrustedProxies may set the client IP via X-Forwarded-For (IPs or CIDRs).
	TrustedProxies []string `envconfig:"SMART_SEARCH_TRUSTED_PROXIES" yaml:"trusted_proxies"`
}

// ObservabilityConfig holds observability settings.
type ObservabilityConfig struct {
	MetricsEnabled bool   `envconfig:"SMART_SEARCH_METRICS_ENABLED" yaml:"metrics_enabled"`
	MetricsPath    string `envconfig:"SMART_SEARCH_METRICS_PATH" yaml:"metrics_path"`
}

// Load loads configuration from environment variables and optional config file.
func Load(configPath string) (*Config, error) {
	cfg := Default()

	// Load from YAML file if provided (overrides defaults)
	if configPath != "" {
		if err := loadFromFile(cfg, configPath); err != nil {
			return nil, fmt.Errorf("loading config file: %w", err)
		}
	}

	// Override with environment variables (highest priority)
	if err := envconfig.Process("", cfg); err != nil {
		return nil, fmt.Errorf("processing env config: %w", err)
	}

	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("validating config: %w", err)
	}

	return cfg, nil
}

func loadFromFile(cfg *Config, path string) error {
	data, err := os.ReadFile(path)
	if err != nil {
		return err
	}

	if err := yaml.Unmarshal(data, cfg); err != nil {
		return err
	}
	return cfg.Filter.adoptRules()
}

// adoptRules moves scalar knobs written inside the rules block to the
// filter scalars, which are what the environment overrides and what
// DecisionConfig applies. A knob still at its default counts as unset.
func (f *FilterConfig) adoptRules() error {
	def := decision.DefaultConfig()
	var errs []string

	adopt := func(name string, scalar *int, rule, dflt int) {
		switch {
		case rule == dflt || rule == *scalar:
		case *scalar == dflt:
			*scalar = rule
		default:
			errs = append(errs, fmt.Sprintf("filter.%s (%d) conflicts with filter.rules.%s (%d)", name, *scalar, name, rule))
		}
	}
	adopt("aggressiveness", &f.Aggressiveness, f.Rules.Aggressiveness, def.Aggressiveness)
	adopt("threshold", &f.Threshold, f.Rules.Threshold, def.Threshold)
	adopt("min_chars_for_search", &f.MinCharsForSearch, f.Rules.MinCharsForSearch, def.MinCharsForSearch)
	adopt("cooldown_turns", &f.CooldownTurns, f.Rules.CooldownTurns, def.CooldownTurns)
	if f.Rules.ResultCountOverride != nil {
		adopt("result_count_override", &f.ResultCountOverride, *f.Rules.ResultCountOverride, 0)
	}

	ruleMode := strings.ToLower(string(f.Rules.Mode))
	scalarMode := strings.ToLower(f.Mode)
	switch {
	case ruleMode == string(def.Mode) || ruleMode == scalarMode:
	case scalarMode == string(def.Mode):
		f.Mode = ruleMode
	default:
		errs = append(errs, fmt.Sprintf("filter.mode (%s) conflicts with filter.rules.mode (%s)", f.Mode, f.Rules.Mode))
	}
	if f.Rules.Debug {
		f.Debug = true
	}

	if len(errs) > 0 {
		return fmt.Errorf("%s", strings.Join(errs, "; "))
	}
	return nil
}

// Default returns the built-in defaults without reading file or environment.
func Default() *Config {
	cfg := &Config{}
	cfg.Host = "0.0.0.0"
	cfg.Port = 8090

	rules := decision.DefaultConfig()
	cfg.Filter = FilterConfig{
		Mode:              string(rules.Mode),
		StatusEnabled:     true,
		Aggressiveness:    rules.Aggressiveness,
		Threshold:         rules.Threshold,
		MinCharsForSearch: rules.MinCharsForSearch,
		CooldownTurns:     rules.CooldownTurns,
		Rules:             rules,
	}

	cfg.Search = SearchConfig{
		Language:  "lang_pt",
		Timeout:   10,
		RateLimit: 5,
		RateBurst: 5,
	}

	cfg.Cache = CacheConfig{
		Type:     "memory",
		Size:     1000,
		TTL:      900,
		RedisURL: "redis://localhost:6379",
	}

	cfg.Bus = BusConfig{
		Type:       "memory",
		KafkaGroup: "smart-search",
	}

	cfg.Stats = StatsConfig{
		Storage:       "memory",
		RedisURL:      "redis://localhost:6379",
		RetentionDays: 30,
	}

	cfg.Log = LogConfig{
		Level:  "info",
		Format: "text",
	}

	cfg.Security = SecurityConfig{
		RateLimit: 0,
		RateBurst: 100,
	}

	cfg.Observability = ObservabilityConfig{
		MetricsEnabled: true,
		MetricsPath:    "/metrics",
	}
	return cfg
}

// Validate validates the configuration.
func (c *Config) Validate() error {
	var errs []string

	// Server validation
	if c.Port < 1 || c.Port > 65535 {
		errs = append(errs, "port must be between 1 and 65535")
	}

	// Filter validation
	validModes := map[string]bool{"off": true, "auto": true, "always_on": true}
	if !validModes[strings.ToLower(c.Filter.Mode)] {
		errs = append(errs, fmt.Sprintf("invalid filter mode: %s (must be off, auto, or always_on)", c.Filter.Mode))
	}
	if n := c.Filter.ResultCountOverride; n < 0 {
		errs = append(errs, "result_count_override must not be negative")
	} else if n > 0 {
		if err := security.ValidateResultCount(n); err != nil {
			errs = append(errs, err.Error())
		}
	}
	if err := c.DecisionConfig().Validate(); err != nil {
		errs = append(errs, err.Error())
	}

	// Search validation
	if c.Filter.Prefetch && (c.Search.GoogleAPIKey == "" || c.Search.GoogleEngineID == "") {
		errs = append(errs, "prefetch requires google_api_key and google_engine_id")
	}
	if c.Search.Timeout < 1 {
		errs = append(errs, "search timeout must be positive")
	}
	if c.Search.RateLimit < 0 {
		errs = append(errs, "search rate_limit must not be negative")
	}

	// Cache validation
	validCacheTypes := map[string]bool{"memory": true, "redis": true, "none": true}
	if !validCacheTypes[c.Cache.Type] {
		errs = append(errs, fmt.Sprintf("invalid cache type: %s (must be memory, redis, or none)", c.Cache.Type))
	}
	if c.Cache.Type == "memory" && c.Cache.Size < 1 {
		errs = append(errs, "cache size must be positive")
	}

	// Bus validation
	validBusTypes := map[string]bool{"memory": true, "kafka": true}
	if !validBusTypes[c.Bus.Type] {
		errs = append(errs, fmt.Sprintf("invalid bus type: %s (must be memory or kafka)", c.Bus.Type))
	}
	if c.Bus.Type == "kafka" && c.Bus.KafkaBrokers == "" {
		errs = append(errs, "kafka bus requires kafka_brokers")
	}

	// Stats validation
	validStorage := map[string]bool{"memory": true, "redis": true}
	if !validStorage[c.Stats.Storage] {
		errs = append(errs, fmt.Sprintf("invalid stats storage: %s (must be memory or redis)", c.Stats.Storage))
	}
	if c.Stats.RetentionDays < 1 {
		errs = append(errs, "stats retention_days must be positive")
	}

	// Log validation
	validLevels := map[string]bool{"debug": true, "info": true, "warn": true, "error": true}
	if !validLevels[c.Log.Level] {
		errs = append(errs, fmt.Sprintf("invalid log level: %s (must be debug, info, warn, or error)", c.Log.Level))
	}

	validFormats := map[string]bool{"text": true, "json": true}
	if !validFormats[c.Log.Format] {
		errs = append(errs, fmt.Sprintf("invalid log format: %s (must be text or json)", c.Log.Format))
	}

	if c.Security.RateLimit < 0 {
		errs = append(errs, "http rate_limit must not be negative")
	}
	if _, err := middleware.ParseTrustedProxies(c.Security.TrustedProxies); err != nil {
		errs = append(errs, err.Error())
	}

	if len(errs) > 0 {
		return fmt.Errorf("config validation failed:\n  - %s", strings.Join(errs, "\n  - "))
	}

	return nil
}

// DecisionConfig returns the engine configuration: the YAML rules with the
// scalar filter knobs applied on top.
func (c *Config) DecisionConfig() decision.Config {
	d := c.Filter.Rules
	d.Mode = decision.ParseMode(c.Filter.Mode)
	d.Debug = c.Filter.Debug
	d.Aggressiveness = c.Filter.Aggressiveness
	d.Threshold = c.Filter.Threshold
	d.MinCharsForSearch = c.Filter.MinCharsForSearch
	d.CooldownTurns = c.Filter.CooldownTurns
	if c.Filter.ResultCountOverride > 0 {
		n := c.Filter.ResultCountOverride
		d.ResultCountOverride = &n
	}
	return d
}

// Address returns the server address.
func (c *Config) Address() string {
	return fmt.Sprintf("%s:%d", c.Host, c.Port)
}
