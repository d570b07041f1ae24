// Package decision decides whether a chat turn should trigger a web search.
//
// The engine is a pure function of (Config, Transcript). It keeps no state
// between calls; anything that looks like memory (cooldowns, history nudges)
// is recomputed from the transcript every time.
package decision

import (
	"bytes"
	"encoding/json"
	"strings"
)

// Mode selects how the engine behaves.
type Mode string

const (
	// ModeOff never enables search.
	ModeOff Mode = "off"

	// ModeAuto scores the latest user turn.
	ModeAuto Mode = "auto"

	// ModeAlwaysOn enables search for every turn.
	ModeAlwaysOn Mode = "always_on"
)

// ParseMode normalises a mode string. Anything unrecognised is auto.
func ParseMode(s string) Mode {
	switch Mode(strings.ToLower(strings.TrimSpace(s))) {
	case ModeOff:
		return ModeOff
	case ModeAlwaysOn:
		return ModeAlwaysOn
	default:
		return ModeAuto
	}
}

// Category sizes the number of search results to request.
type Category string

const (
	CategorySimpleRecent Category = "simple_recent"
	CategorySimple       Category = "simple"
	CategoryComplex      Category = "complex"
	CategoryDefault      Category = "default"
)

// Role of a transcript turn.
type Role string

const (
	RoleUser      Role = "user"
	RoleAssistant Role = "assistant"
	RoleSystem    Role = "system"
)

// Reasons reported by the short-circuit rules.
const (
	ReasonModeOff             = "mode_off"
	ReasonModeAlwaysOn        = "mode_always_on"
	ReasonEmptyText           = "empty_text"
	ReasonUserRequestedSearch = "user_requested_search"
	ReasonTooShort            = "too_short_rag_first"
	ReasonChitchatSkip        = "chitchat_skip"
	ReasonNoDomainIntent      = "no_domain_intent"
	ReasonCooldownFollowup    = "cooldown_followup"
	ReasonSkipKeywordsBlock   = "skip_keywords_block"
)

// Part is one element of a structured message content list.
type Part struct {
	Type string `json:"type,omitempty"`
	Text string `json:"text,omitempty"`
}

// Content is either a plain string or a list of parts. Only the first part
// carries text for the purposes of the engine.
type Content struct {
	text  string
	parts []Part
	list  bool
}

// TextContent returns plain string content.
func TextContent(s string) Content {
	return Content{text: s}
}

// PartsContent returns structured content.
func PartsContent(parts ...Part) Content {
	return Content{parts: parts, list: true}
}

// Text extracts the text uniformly regardless of representation.
func (c Content) Text() string {
	if !c.list {
		return c.text
	}
	if len(c.parts) == 0 {
		return ""
	}
	return c.parts[0].Text
}

// UnmarshalJSON accepts a string, a list of part objects, or anything else.
// Shapes it does not understand decode to empty content rather than failing.
func (c *Content) UnmarshalJSON(data []byte) error {
	*c = Content{}
	data = bytes.TrimSpace(data)
	if len(data) == 0 {
		return nil
	}

	switch data[0] {
	case '"':
		var s string
		if err := json.Unmarshal(data, &s); err == nil {
			c.text = s
		}
	case '[':
		var raw []json.RawMessage
		if err := json.Unmarshal(data, &raw); err != nil {
			return nil
		}
		c.list = true
		c.parts = make([]Part, 0, len(raw))
		for _, item := range raw {
			var p Part
			// Non-object entries keep their slot with empty text.
			_ = json.Unmarshal(item, &p)
			c.parts = append(c.parts, p)
		}
	}
	return nil
}

// MarshalJSON writes the content back in the shape it arrived in.
func (c Content) MarshalJSON() ([]byte, error) {
	if c.list {
		if c.parts == nil {
			return []byte("[]"), nil
		}
		return json.Marshal(c.parts)
	}
	return json.Marshal(c.text)
}

// Message is one transcript turn.
type Message struct {
	Role    Role    `json:"role"`
	Content Content `json:"content"`
}

// UnmarshalJSON tolerates a non-string role by treating it as unknown.
func (m *Message) UnmarshalJSON(data []byte) error {
	var raw struct {
		Role    json.RawMessage `json:"role"`
		Content Content         `json:"content"`
	}
	if err := json.Unmarshal(data, &raw); err != nil {
		*m = Message{}
		return nil
	}
	var role string
	_ = json.Unmarshal(raw.Role, &role)
	m.Role = Role(role)
	m.Content = raw.Content
	return nil
}

// Is reports whether the message has the given role, ignoring case.
func (m Message) Is(role Role) bool {
	return strings.EqualFold(string(m.Role), string(role))
}

// Text returns the message text.
func (m Message) Text() string {
	return m.Content.Text()
}

// Transcript is an ordered conversation, oldest first.
type Transcript []Message

// LastText returns the text of the most recent turn with the given role, or
// the empty string if there is none.
func (t Transcript) LastText(role Role) string {
	for i := len(t) - 1; i >= 0; i-- {
		if t[i].Is(role) {
			return t[i].Text()
		}
	}
	return ""
}

// HasRole reports whether any turn has the given role.
func (t Transcript) HasRole(role Role) bool {
	for i := range t {
		if t[i].Is(role) {
			return true
		}
	}
	return false
}

// Decision is the engine output.
type Decision struct {
	Enabled bool   `json:"enabled"`
	Reason  string `json:"reason"`

	// ResultCount is only meaningful when Enabled is true.
	ResultCount int      `json:"result_count"`
	Category    Category `json:"category"`

	Mode      Mode `json:"mode"`
	Score     int  `json:"score"`
	ForceHits int  `json:"force_hits"`
	SkipHits  int  `json:"skip_hits"`
}
