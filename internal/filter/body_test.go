package filter

import (
	"encoding/json"
	"testing"

	"github.com/google/go-cmp/cmp"

	"github.com/lusochat/smart-search/internal/decision"
)

func TestBody_RoundTripKeepsUnknownKeys(t *testing.T) {
	in := `{
		"model": "lusochat-pt",
		"stream": true,
		"chat_id": "c-1",
		"metadata": {"session_id": "s-9"},
		"messages": [
			{"role": "system", "content": "És um assistente."},
			{"role": "user", "content": [{"type": "text", "text": "propinas 2025"}, {"type": "image_url"}], "id": "m-2"}
		],
		"features": {"image_generation": false}
	}`

	var b Body
	if err := json.Unmarshal([]byte(in), &b); err != nil {
		t.Fatalf("Unmarshal() error = %v", err)
	}
	if b.ChatID != "c-1" {
		t.Errorf("ChatID = %q", b.ChatID)
	}
	if got := b.Messages.LastText(decision.RoleUser); got != "propinas 2025" {
		t.Errorf("last user text = %q", got)
	}

	b.setFeature(FeatureWebSearch, true)

	data, err := json.Marshal(&b)
	if err != nil {
		t.Fatalf("Marshal() error = %v", err)
	}

	var got, want map[string]any
	json.Unmarshal(data, &got)
	json.Unmarshal([]byte(in), &want)
	want["features"] = map[string]any{"image_generation": false, "web_search": true}

	if diff := cmp.Diff(want, got); diff != "" {
		t.Errorf("round trip mismatch (-want +got):\n%s", diff)
	}
}

func TestBody_TolerantDecoding(t *testing.T) {
	in := `{"messages": "not a list", "prompt": 42, "features": [1, 2]}`

	var b Body
	if err := json.Unmarshal([]byte(in), &b); err != nil {
		t.Fatalf("Unmarshal() error = %v", err)
	}
	if len(b.Messages) != 0 || b.Prompt != "" || b.Features != nil {
		t.Errorf("body = %+v", b)
	}

	if err := json.Unmarshal([]byte(`[1]`), &b); err == nil {
		t.Error("expected error for a non-object body")
	}
}

func TestBody_NewBodyMarshal(t *testing.T) {
	b := NewBody(decision.Transcript{{Role: decision.RoleUser, Content: decision.TextContent("olá")}})
	b.setFeature(FeatureResultCount, 3)

	data, err := json.Marshal(b)
	if err != nil {
		t.Fatalf("Marshal() error = %v", err)
	}

	want := `{"features":{"web_search_result_count":3},"messages":[{"role":"user","content":"olá"}]}`
	if string(data) != want {
		t.Errorf("Marshal() = %s, want %s", data, want)
	}
}
