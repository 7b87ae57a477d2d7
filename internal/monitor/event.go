package monitor

import (
	"encoding/json"
	"strings"

	"netmig/internal/engine"
)

// Effect is what one stream event means for the monitor. It is a closed
// union: every event collapses to either "go refetch authoritative state"
// or "show this line to the operator". Stream payloads themselves are
// never applied to the store.
type Effect interface {
	effect()
}

// Refresh asks the orchestrator for a new generation-tagged status fetch.
// It deliberately carries no data.
type Refresh struct{}

func (Refresh) effect() {}

// Note carries advisory text for the rolling note log. It never mutates
// job state.
type Note struct {
	Text string
}

func (Note) effect() {}

// Normalize collapses a raw stream event into its effect. Anything that
// hints at a state change, including event names this version does not
// know, becomes a Refresh; refetching is always safe.
func Normalize(ev engine.StreamEvent) Effect {
	switch ev.Type {
	case engine.EventConnected:
		return Note{Text: "stream connected"}
	case engine.EventMessage:
		return Note{Text: noteText(ev.Data)}
	default:
		return Refresh{}
	}
}

// noteText pulls a display line out of a message payload. Engines send
// either a bare string, an object with a "message" field, or plain text.
func noteText(data json.RawMessage) string {
	if len(data) == 0 {
		return ""
	}

	var obj struct {
		Message string `json:"message"`
		Text    string `json:"text"`
	}
	if err := json.Unmarshal(data, &obj); err == nil {
		if obj.Message != "" {
			return obj.Message
		}
		if obj.Text != "" {
			return obj.Text
		}
	}

	var plain string
	if err := json.Unmarshal(data, &plain); err == nil {
		return plain
	}

	return strings.TrimSpace(string(data))
}
