package conversation

import "strings"

// EventKind classifies one incoming chat message.
type EventKind int

const (
	// EventText is free text routed through the state machine.
	EventText EventKind = iota
	// EventReset clears the whole session.
	EventReset
	// EventSetModel selects the active LLM.
	EventSetModel
	// EventEnableRAG starts web-RAG setup.
	EventEnableRAG
	// EventDisableRAG turns web RAG off.
	EventDisableRAG
)

// Event is a parsed chat message. Commands are recognized once, here; the
// state machine never inspects raw command strings.
type Event struct {
	Kind  EventKind
	Model string // EventSetModel only
	Text  string
}

// ParseEvent turns a raw message into a typed event. Command matching is
// case-insensitive; anything that is not a recognized command is free text.
func ParseEvent(message string) Event {
	lower := strings.ToLower(strings.TrimSpace(message))

	switch {
	case lower == "/reset":
		return Event{Kind: EventReset}
	case strings.HasPrefix(lower, "/set_llm "):
		parts := strings.Fields(lower)
		if len(parts) == 2 {
			return Event{Kind: EventSetModel, Model: parts[1]}
		}
		return Event{Kind: EventSetModel}
	case lower == "/set_llm":
		return Event{Kind: EventSetModel}
	case lower == "/enable_rag":
		return Event{Kind: EventEnableRAG}
	case lower == "/disable_rag":
		return Event{Kind: EventDisableRAG}
	}
	return Event{Kind: EventText, Text: message}
}
