package events

import "github.com/crystal-mush/mushkit/pkg/gamedb"

// TracebackMarker starts the text of every EvTraceback event.
const TracebackMarker = "Traceback (most recent call last):"

// EventType classifies events for transport-specific encoding.
type EventType int

const (
	EvText       EventType = iota // Plain command output
	EvSay                         // Speech
	EvPose                        // Pose/emote
	EvRoom                        // Room description
	EvMove                        // Arrive/depart
	EvConnect                     // Player connected
	EvDisconnect                  // Player disconnected
	EvWho                         // WHO data
	EvSystem                      // Server notices
	EvTraceback                   // Internal error report
)

var typeNames = [...]string{
	EvText:       "text",
	EvSay:        "say",
	EvPose:       "pose",
	EvRoom:       "room",
	EvMove:       "move",
	EvConnect:    "connect",
	EvDisconnect: "disconnect",
	EvWho:        "who",
	EvSystem:     "system",
	EvTraceback:  "traceback",
}

// String returns a human-readable name for the event type.
func (t EventType) String() string {
	if t < 0 || int(t) >= len(typeNames) {
		return "unknown"
	}
	return typeNames[t]
}

// Event is a structured game event that flows through the event bus.
// Transports decide how to encode each event: telnet and SSH use Text,
// the websocket portal sends the structured form.
type Event struct {
	Type   EventType
	Player gamedb.DBRef   // Recipient character
	Source gamedb.DBRef   // Who generated the event
	Room   gamedb.DBRef   // Room context
	Text   string         // Pre-formatted text, may carry {x colour markup
	Data   map[string]any // Structured data for JSON clients
}

// Text builds a plain text event for player.
func Text(player gamedb.DBRef, text string) Event {
	return Event{Type: EvText, Player: player, Source: gamedb.Nothing, Room: gamedb.Nothing, Text: text}
}
