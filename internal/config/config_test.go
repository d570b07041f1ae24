package config

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/google/go-cmp/cmp"

	"github.com/lusochat/smart-search/internal/decision"
)

func TestLoad_Env(t *testing.T) {
	t.Setenv("SMART_SEARCH_PORT", "9090")
	t.Setenv("SMART_SEARCH_LOG_LEVEL", "debug")
	t.Setenv("SMART_SEARCH_MODE", "always_on")
	t.Setenv("SMART_SEARCH_RESULT_COUNT_OVERRIDE", "4")

	cfg, err := Load("")
	if err != nil {
		t.Fatalf("Load() error = %v", err)
	}

	if cfg.Port != 9090 {
		t.Errorf("Port = %d, want 9090", cfg.Port)
	}
	if cfg.Log.Level != "debug" {
		t.Errorf("Log.Level = %s, want debug", cfg.Log.Level)
	}

	d := cfg.DecisionConfig()
	if d.Mode != decision.ModeAlwaysOn {
		t.Errorf("Mode = %s, want always_on", d.Mode)
	}
	if d.ResultCountOverride == nil || *d.ResultCountOverride != 4 {
		t.Errorf("ResultCountOverride = %v, want 4", d.ResultCountOverride)
	}
}

func TestLoadFromFile(t *testing.T) {
	tmpDir := t.TempDir()
	configPath := filepath.Join(tmpDir, "config.yaml")

	configContent := `
host: "127.0.0.1"
port: 8888
log:
  level: warn
  format: json
filter:
  mode: auto
  threshold: 2
  rules:
    domain_keywords: ["exemplo.pt"]
cache:
  type: redis
  redis_url: "redis://cache:6379/1"
`
	if err := os.WriteFile(configPath, []byte(configContent), 0644); err != nil {
		t.Fatalf("Failed to write config file: %v", err)
	}

	cfg, err := Load(configPath)
	if err != nil {
		t.Fatalf("Load() error = %v", err)
	}

	if cfg.Host != "127.0.0.1" || cfg.Port != 8888 {
		t.Errorf("Address() = %s, want 127.0.0.1:8888", cfg.Address())
	}
	if cfg.Log.Level != "warn" {
		t.Errorf("Log.Level = %s, want warn", cfg.Log.Level)
	}
	if cfg.Cache.Type != "redis" || cfg.Cache.RedisURL != "redis://cache:6379/1" {
		t.Errorf("Cache = %+v", cfg.Cache)
	}

	d := cfg.DecisionConfig()
	if d.Threshold != 2 {
		t.Errorf("Threshold = %d, want 2", d.Threshold)
	}
	if diff := cmp.Diff([]string{"exemplo.pt"}, d.DomainKeywords); diff != "" {
		t.Errorf("DomainKeywords mismatch (-want +got):\n%s", diff)
	}
	// Lists absent from the file keep their defaults.
	if diff := cmp.Diff(decision.DefaultConfig().ForceKeywords, d.ForceKeywords); diff != "" {
		t.Errorf("ForceKeywords mismatch (-want +got):\n%s", diff)
	}
}

func TestLoad_MissingFile(t *testing.T) {
	if _, err := Load(filepath.Join(t.TempDir(), "missing.yaml")); err == nil {
		t.Error("expected error for missing config file")
	}
}

func TestDefaultDecisionConfigMatchesEngineDefaults(t *testing.T) {
	got := Default().DecisionConfig()
	if diff := cmp.Diff(decision.DefaultConfig(), got); diff != "" {
		t.Errorf("DecisionConfig mismatch (-want +got):\n%s", diff)
	}
}

func TestValidation(t *testing.T) {
	tests := []struct {
		name    string
		modify  func(*Config)
		wantErr bool
	}{
		{"valid defaults", func(c *Config) {}, false},
		{"invalid port", func(c *Config) { c.Port = 0 }, true},
		{"invalid mode", func(c *Config) { c.Filter.Mode = "sometimes" }, true},
		{"mode is case insensitive", func(c *Config) { c.Filter.Mode = "ALWAYS_ON" }, false},
		{"negative override", func(c *Config) { c.Filter.ResultCountOverride = -1 }, true},
		{"negative cooldown", func(c *Config) { c.Filter.CooldownTurns = -1 }, true},
		{"prefetch without credentials", func(c *Config) { c.Filter.Prefetch = true }, true},
		{"prefetch with credentials", func(c *Config) {
			c.Filter.Prefetch = true
			c.Search.GoogleAPIKey = "key"
			c.Search.GoogleEngineID = "cx"
		}, false},
		{"invalid log level", func(c *Config) { c.Log.Level = "invalid" }, true},
		{"invalid cache type", func(c *Config) { c.Cache.Type = "invalid" }, true},
		{"invalid bus type", func(c *Config) { c.Bus.Type = "nats" }, true},
		{"kafka without brokers", func(c *Config) { c.Bus.Type = "kafka" }, true},
		{"invalid stats storage", func(c *Config) { c.Stats.Storage = "disk" }, true},
		{"zero retention", func(c *Config) { c.Stats.RetentionDays = 0 }, true},
		{"override above provider max", func(c *Config) { c.Filter.ResultCountOverride = 11 }, true},
		{"trusted proxies", func(c *Config) { c.Security.TrustedProxies = []string{"10.0.0.0/8", "127.0.0.1"} }, false},
		{"invalid trusted proxy", func(c *Config) { c.Security.TrustedProxies = []string{"proxy.local"} }, true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			cfg := Default()
			tt.modify(cfg)

			err := cfg.Validate()
			if (err != nil) != tt.wantErr {
				t.Errorf("Validate() error = %v, wantErr %v", err, tt.wantErr)
			}
		})
	}
}

func TestAddress(t *testing.T) {
	cfg := &Config{Host: "localhost", Port: 8090}

	if addr := cfg.Address(); addr != "localhost:8090" {
		t.Errorf("Address() = %s, want localhost:8090", addr)
	}
}

func TestLoad_RulesScalars(t *testing.T) {
	tests := []struct {
		name    string
		yaml    string
		env     map[string]string
		check   func(t *testing.T, d decision.Config)
		wantErr bool
	}{
		{
			name: "rules block only",
			yaml: "filter:\n  rules:\n    threshold: 3\n    mode: always_on\n    cooldown_turns: 3\n",
			check: func(t *testing.T, d decision.Config) {
				if d.Threshold != 3 || d.Mode != decision.ModeAlwaysOn || d.CooldownTurns != 3 {
					t.Errorf("threshold=%d mode=%s cooldown=%d", d.Threshold, d.Mode, d.CooldownTurns)
				}
			},
		},
		{
			name: "same value in both places",
			yaml: "filter:\n  threshold: 3\n  rules:\n    threshold: 3\n",
			check: func(t *testing.T, d decision.Config) {
				if d.Threshold != 3 {
					t.Errorf("threshold = %d, want 3", d.Threshold)
				}
			},
		},
		{
			name: "environment overrides the rules block",
			yaml: "filter:\n  rules:\n    threshold: 3\n",
			env:  map[string]string{"SMART_SEARCH_THRESHOLD": "4"},
			check: func(t *testing.T, d decision.Config) {
				if d.Threshold != 4 {
					t.Errorf("threshold = %d, want 4", d.Threshold)
				}
			},
		},
		{
			name:    "conflicting values",
			yaml:    "filter:\n  threshold: 4\n  rules:\n    threshold: 3\n",
			wantErr: true,
		},
		{
			name:    "conflicting modes",
			yaml:    "filter:\n  mode: \"off\"\n  rules:\n    mode: always_on\n",
			wantErr: true,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			for k, v := range tt.env {
				t.Setenv(k, v)
			}
			path := filepath.Join(t.TempDir(), "config.yaml")
			if err := os.WriteFile(path, []byte(tt.yaml), 0644); err != nil {
				t.Fatal(err)
			}

			cfg, err := Load(path)
			if (err != nil) != tt.wantErr {
				t.Fatalf("Load() error = %v, wantErr %v", err, tt.wantErr)
			}
			if err == nil {
				tt.check(t, cfg.DecisionConfig())
			}
		})
	}
}
