// Package events defines the relay event types carried by the EventBus.
package events

import (
	"time"

	"github.com/sanicball-project/sanicrelay/internal/protocol"
)

// EventType represents the type of event emitted through the EventBus.
type EventType string

const (
	// EventAny subscribes a handler to every event type.
	EventAny EventType = "*"

	// Roster events
	EventClientJoined EventType = "client_joined"
	EventClientLeft   EventType = "client_left"
	EventPlayerJoined EventType = "player_joined"
	EventPlayerLeft   EventType = "player_left"

	// Match events
	EventChat            EventType = "chat"
	EventSettingsChanged EventType = "settings_changed"
	EventLoadRace        EventType = "load_race"
	EventStartRace       EventType = "start_race"
	EventRaceFinished    EventType = "race_finished"

	// Relay events
	EventDecodeError EventType = "decode_error"
	EventShutdown    EventType = "shutdown"
)

// MatchPhase is the coarse lifecycle phase reported to observers.
type MatchPhase int

const (
	PhaseLobby MatchPhase = iota
	PhaseCountdown
	PhaseLoading
	PhaseRacing
)

var matchPhaseStrings = map[MatchPhase]string{
	PhaseLobby:     "lobby",
	PhaseCountdown: "countdown",
	PhaseLoading:   "loading",
	PhaseRacing:    "racing",
}

// String returns the string representation of MatchPhase.
func (p MatchPhase) String() string {
	if str, ok := matchPhaseStrings[p]; ok {
		return str
	}
	return "lobby"
}

// MarshalJSON serializes MatchPhase as a JSON string (e.g. "racing").
func (p MatchPhase) MarshalJSON() ([]byte, error) {
	return []byte(`"` + p.String() + `"`), nil
}

// Event represents a single event in the system.
type Event struct {
	Type    EventType   `json:"type"`
	Source  string      `json:"source"`
	Time    time.Time   `json:"time"`
	Payload interface{} `json:"payload,omitempty"`
}

// New returns an event stamped with the current time.
func New(eventType EventType, source string, payload interface{}) Event {
	return Event{Type: eventType, Source: source, Time: time.Now(), Payload: payload}
}

// ClientPayload describes a client joining or leaving.
type ClientPayload struct {
	GUID string `json:"guid"`
	Name string `json:"name,omitempty"`
	Addr string `json:"addr,omitempty"`
}

// PlayerPayload describes a player joining or leaving.
type PlayerPayload struct {
	GUID        string `json:"guid"`
	CtrlType    string `json:"ctrl_type"`
	CharacterID int32  `json:"character_id,omitempty"`
}

// ChatPayload is a chat line, either relayed from a client or sent by the server.
type ChatPayload struct {
	From   string `json:"from"`
	Text   string `json:"text"`
	System bool   `json:"system"`
}

// RacePayload describes a player's race result.
type RacePayload struct {
	GUID         string  `json:"guid"`
	CtrlType     string  `json:"ctrl_type"`
	RaceTime     float64 `json:"race_time"`
	Position     int32   `json:"position,omitempty"`
	Disqualified bool    `json:"disqualified,omitempty"`
}

// SettingsPayload carries the replaced match settings.
type SettingsPayload struct {
	Settings protocol.MatchSettings `json:"settings"`
}

// PhasePayload reports a lifecycle transition.
type PhasePayload struct {
	Phase   MatchPhase `json:"phase"`
	Players int        `json:"players"`
}

// DecodeErrorPayload describes a dropped datagram.
type DecodeErrorPayload struct {
	Addr   string `json:"addr"`
	Reason string `json:"reason"`
	Error  string `json:"error"`
}
