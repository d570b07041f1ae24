package filter

import (
	"bytes"
	"encoding/json"

	"github.com/lusochat/smart-search/internal/decision"
)

// Feature keys written to the host request body.
const (
	FeatureWebSearch   = "web_search"
	FeatureResultCount = "web_search_result_count"
	FeatureReason      = "web_search_reason"
)

// Body is the host chat request body. Only the keys the filter reads or
// writes are decoded; everything else is kept verbatim, so a round trip
// through Body changes nothing but the features object.
type Body struct {
	Messages decision.Transcript
	Prompt   string
	ChatID   string
	Features map[string]any

	raw map[string]json.RawMessage
}

// NewBody builds a body from a transcript, for callers that do not start
// from host JSON.
func NewBody(messages decision.Transcript) *Body {
	return &Body{Messages: messages, Features: map[string]any{}}
}

// UnmarshalJSON decodes a host body. Fields of unexpected shape decode to
// their zero value; only a body that is not a JSON object is an error.
func (b *Body) UnmarshalJSON(data []byte) error {
	raw := map[string]json.RawMessage{}
	if err := json.Unmarshal(data, &raw); err != nil {
		return err
	}
	*b = Body{raw: raw}

	if m, ok := raw["messages"]; ok {
		var msgs decision.Transcript
		if err := json.Unmarshal(m, &msgs); err == nil {
			b.Messages = msgs
		}
	}
	if p, ok := raw["prompt"]; ok {
		_ = json.Unmarshal(p, &b.Prompt)
	}
	if c, ok := raw["chat_id"]; ok {
		_ = json.Unmarshal(c, &b.ChatID)
	}
	if f, ok := raw["features"]; ok {
		_ = json.Unmarshal(f, &b.Features)
	}
	return nil
}

// MarshalJSON writes the original keys back with the current features.
func (b *Body) MarshalJSON() ([]byte, error) {
	out := make(map[string]json.RawMessage, len(b.raw)+2)
	for k, v := range b.raw {
		out[k] = v
	}

	if b.raw == nil {
		// Built in code, not decoded.
		msgs, err := json.Marshal(b.Messages)
		if err != nil {
			return nil, err
		}
		out["messages"] = msgs
		if b.Prompt != "" {
			out["prompt"], _ = json.Marshal(b.Prompt)
		}
		if b.ChatID != "" {
			out["chat_id"], _ = json.Marshal(b.ChatID)
		}
	}

	if b.Features != nil {
		f, err := json.Marshal(b.Features)
		if err != nil {
			return nil, err
		}
		out["features"] = f
	}

	var buf bytes.Buffer
	enc := json.NewEncoder(&buf)
	enc.SetEscapeHTML(false)
	if err := enc.Encode(out); err != nil {
		return nil, err
	}
	return bytes.TrimRight(buf.Bytes(), "\n"), nil
}

// setFeature writes one feature flag, creating the map on first use.
func (b *Body) setFeature(key string, value any) {
	if b.Features == nil {
		b.Features = map[string]any{}
	}
	b.Features[key] = value
}

// transcript returns the messages, falling back to the prompt as a single
// user turn when the messages carry no user text.
func (b *Body) transcript() decision.Transcript {
	if b.Messages.HasRole(decision.RoleUser) || b.Prompt == "" {
		return b.Messages
	}
	t := make(decision.Transcript, 0, len(b.Messages)+1)
	t = append(t, b.Messages...)
	return append(t, decision.Message{
		Role:    decision.RoleUser,
		Content: decision.TextContent(b.Prompt),
	})
}
