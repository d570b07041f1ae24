package filter

import (
	"fmt"

	"github.com/lusochat/smart-search/internal/decision"
)

// StatusEvent is a status line for the chat stream, in the host's event
// shape.
type StatusEvent struct {
	Type string     `json:"type"`
	Data StatusData `json:"data"`
}

// StatusData is the payload of a StatusEvent.
type StatusData struct {
	Description string `json:"description"`
	Done        bool   `json:"done"`
}

// LevelInfo is the only level the filter emits.
const LevelInfo = "info"

// Status messages shown to the chat user.
const (
	StatusDisabled = "Smart search: disabled (mode=off)"
	StatusAlwaysOn = "Smart search: enabled (mode=always_on)"
	StatusEnabled  = "Smart search: enabled (auto mode)"
	StatusSkipped  = "Smart search: skipped (RAG/local likely sufficient)"
)

// statusFor renders the status line of a decision. Debug mode appends the
// category and reason of auto decisions.
func statusFor(d decision.Decision, debug bool) StatusEvent {
	var msg string
	switch d.Mode {
	case decision.ModeOff:
		msg = StatusDisabled
	case decision.ModeAlwaysOn:
		msg = StatusAlwaysOn
	default:
		if d.Enabled {
			msg = StatusEnabled
			if debug {
				msg += fmt.Sprintf(" - cat=%s, count=%d - %s", d.Category, d.ResultCount, d.Reason)
			}
		} else {
			msg = StatusSkipped
			if debug {
				msg += fmt.Sprintf(" - cat=%s - %s", d.Category, d.Reason)
			}
		}
	}

	return StatusEvent{
		Type: LevelInfo,
		Data: StatusData{Description: msg, Done: true},
	}
}
