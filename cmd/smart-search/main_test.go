package main

import (
	"bytes"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/google/go-cmp/cmp"

	"github.com/lusochat/smart-search/internal/decision"
)

func TestBuildPatch(t *testing.T) {
	dir := t.TempDir()
	yamlFile := filepath.Join(dir, "rules.yaml")
	if err := os.WriteFile(yamlFile, []byte("prefetch: true\nrules:\n  threshold: 3\n"), 0644); err != nil {
		t.Fatal(err)
	}

	tests := []struct {
		name string
		args []string
		want map[string]any
	}{
		{"empty", nil, map[string]any{}},
		{"mode flag", []string{"--mode", "ALWAYS_ON"}, map[string]any{
			"rules": map[string]any{"mode": "always_on"},
		}},
		{"status flag", []string{"--status=false"}, map[string]any{
			"status_enabled": false,
		}},
		{"file with flag override", []string{"--file", yamlFile, "--threshold", "2"}, map[string]any{
			"prefetch": true,
			"rules":    map[string]any{"threshold": 2},
		}},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			cmd := settingsSetCmd()
			if err := cmd.ParseFlags(tt.args); err != nil {
				t.Fatalf("ParseFlags: %v", err)
			}
			got, err := buildPatch(cmd)
			if err != nil {
				t.Fatalf("buildPatch: %v", err)
			}
			if diff := cmp.Diff(tt.want, got); diff != "" {
				t.Errorf("patch mismatch (-want +got):\n%s", diff)
			}
		})
	}
}

func TestReadTranscript(t *testing.T) {
	t.Run("args", func(t *testing.T) {
		cmd := decideCmd()
		got, err := readTranscript(cmd, []string{"propinas", "2025"})
		if err != nil {
			t.Fatal(err)
		}
		if got.LastText(decision.RoleUser) != "propinas 2025" {
			t.Errorf("text = %q", got.LastText(decision.RoleUser))
		}
	})

	t.Run("stdin", func(t *testing.T) {
		cmd := decideCmd()
		cmd.SetIn(strings.NewReader("  qual o prazo?\n"))
		got, err := readTranscript(cmd, nil)
		if err != nil {
			t.Fatal(err)
		}
		if got.LastText(decision.RoleUser) != "qual o prazo?" {
			t.Errorf("text = %q", got.LastText(decision.RoleUser))
		}
	})

	t.Run("empty", func(t *testing.T) {
		cmd := decideCmd()
		cmd.SetIn(strings.NewReader(""))
		if _, err := readTranscript(cmd, nil); err == nil {
			t.Error("expected error for empty input")
		}
	})

	t.Run("messages file", func(t *testing.T) {
		path := filepath.Join(t.TempDir(), "chat.json")
		data := `[{"role":"assistant","content":"Fonte: https://ulusofona.pt"},{"role":"user","content":"e isso?"}]`
		if err := os.WriteFile(path, []byte(data), 0644); err != nil {
			t.Fatal(err)
		}
		cmd := decideCmd()
		if err := cmd.ParseFlags([]string{"--messages", path}); err != nil {
			t.Fatal(err)
		}
		got, err := readTranscript(cmd, nil)
		if err != nil {
			t.Fatal(err)
		}
		if len(got) != 2 {
			t.Errorf("len = %d, want 2", len(got))
		}
	})
}

func TestRunDecideLocal(t *testing.T) {
	cmd := decideCmd()
	cmd.Flags().StringP("config", "c", "", "")
	cmd.Flags().StringP("server", "s", "", "")
	cmd.Flags().String("api-key", "", "")
	cmd.Flags().String("format", "text", "")
	t.Setenv("SMART_SEARCH_SERVER", "")

	var out bytes.Buffer
	cmd.SetOut(&out)
	if err := cmd.ParseFlags([]string{"--mode", "off"}); err != nil {
		t.Fatal(err)
	}
	if err := runDecide(cmd, []string{"qual o prazo de candidatura 2025?"}); err != nil {
		t.Fatalf("runDecide: %v", err)
	}
	if !strings.Contains(out.String(), "search: no") || !strings.Contains(out.String(), decision.ReasonModeOff) {
		t.Errorf("output = %q", out.String())
	}
}
