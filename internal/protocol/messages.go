package protocol

import (
	"bytes"
	"encoding/json"
	"fmt"
	"strings"
)

// Discriminator wrapping expected by the game client's JSON deserialiser.
const (
	TypePrefix = "SanicballCore.MatchMessages."
	TypeSuffix = ", SanicballCore"
)

// MatchMessage is one variant of the match-state message catalogue.
type MatchMessage interface {
	MessageType() string
}

// ChatMessageType distinguishes server notices from player chat.
type ChatMessageType int

const (
	ChatSystem ChatMessageType = iota
	ChatUser
)

func (t ChatMessageType) String() string {
	if t == ChatUser {
		return "User"
	}
	return "System"
}

// MarshalJSON encodes the type by name.
func (t ChatMessageType) MarshalJSON() ([]byte, error) {
	return json.Marshal(t.String())
}

// UnmarshalJSON accepts the type either by name or by its numeric value.
func (t *ChatMessageType) UnmarshalJSON(data []byte) error {
	var name string
	if err := json.Unmarshal(data, &name); err == nil {
		switch name {
		case "System":
			*t = ChatSystem
		case "User":
			*t = ChatUser
		default:
			return fmt.Errorf("unknown chat message type %q", name)
		}
		return nil
	}
	var n int
	if err := json.Unmarshal(data, &n); err != nil {
		return fmt.Errorf("invalid chat message type: %w", err)
	}
	if n != int(ChatSystem) && n != int(ChatUser) {
		return fmt.Errorf("unknown chat message type %d", n)
	}
	*t = ChatMessageType(n)
	return nil
}

type AutoStartTimerMessage struct {
	Enabled bool `json:"Enabled"`
}

type ChangedReadyMessage struct {
	ClientGUID GUID        `json:"ClientGuid"`
	CtrlType   ControlType `json:"CtrlType"`
	Ready      bool        `json:"Ready"`
}

type CharacterChangedMessage struct {
	ClientGUID   GUID        `json:"ClientGuid"`
	CtrlType     ControlType `json:"CtrlType"`
	NewCharacter int32       `json:"NewCharacter"`
}

type ChatMessage struct {
	From string          `json:"From"`
	Type ChatMessageType `json:"Type"`
	Text string          `json:"Text"`
}

type CheckpointPassedMessage struct {
	ClientGUID GUID        `json:"ClientGuid"`
	CtrlType   ControlType `json:"CtrlType"`
	LapTime    float32     `json:"LapTime"`
}

type ClientJoinedMessage struct {
	ClientGUID GUID   `json:"ClientGuid"`
	ClientName string `json:"ClientName"`
}

type ClientLeftMessage struct {
	ClientGUID GUID `json:"ClientGuid"`
}

type DoneRacingMessage struct {
	ClientGUID   GUID        `json:"ClientGuid"`
	CtrlType     ControlType `json:"CtrlType"`
	RaceTime     float64     `json:"RaceTime"`
	Disqualified bool        `json:"Disqualified"`
}

type LoadLobbyMessage struct{}

type LoadRaceMessage struct{}

type PlayerJoinedMessage struct {
	ClientGUID       GUID        `json:"ClientGuid"`
	CtrlType         ControlType `json:"CtrlType"`
	InitialCharacter int32       `json:"InitialCharacter"`
}

type PlayerLeftMessage struct {
	ClientGUID GUID        `json:"ClientGuid"`
	CtrlType   ControlType `json:"CtrlType"`
}

type RaceFinishedMessage struct {
	ClientGUID   GUID        `json:"ClientGuid"`
	CtrlType     ControlType `json:"CtrlType"`
	RaceTime     float32     `json:"RaceTime"`
	RacePosition int32       `json:"RacePosition"`
}

type RaceTimeoutMessage struct {
	ClientGUID GUID        `json:"ClientGuid"`
	CtrlType   ControlType `json:"CtrlType"`
	Time       float32     `json:"Time"`
}

type SettingsChangedMessage struct {
	NewMatchSettings MatchSettings `json:"NewMatchSettings"`
}

type StartRaceMessage struct{}

func (AutoStartTimerMessage) MessageType() string   { return "AutoStartTimerMessage" }
func (ChangedReadyMessage) MessageType() string     { return "ChangedReadyMessage" }
func (CharacterChangedMessage) MessageType() string { return "CharacterChangedMessage" }
func (ChatMessage) MessageType() string             { return "ChatMessage" }
func (CheckpointPassedMessage) MessageType() string { return "CheckpointPassedMessage" }
func (ClientJoinedMessage) MessageType() string     { return "ClientJoinedMessage" }
func (ClientLeftMessage) MessageType() string       { return "ClientLeftMessage" }
func (DoneRacingMessage) MessageType() string       { return "DoneRacingMessage" }
func (LoadLobbyMessage) MessageType() string        { return "LoadLobbyMessage" }
func (LoadRaceMessage) MessageType() string         { return "LoadRaceMessage" }
func (PlayerJoinedMessage) MessageType() string     { return "PlayerJoinedMessage" }
func (PlayerLeftMessage) MessageType() string       { return "PlayerLeftMessage" }
func (RaceFinishedMessage) MessageType() string     { return "RaceFinishedMessage" }
func (RaceTimeoutMessage) MessageType() string      { return "RaceTimeoutMessage" }
func (SettingsChangedMessage) MessageType() string  { return "SettingsChangedMessage" }
func (StartRaceMessage) MessageType() string        { return "StartRaceMessage" }

// decoders maps bare variant names to a decoder for that variant.
var decoders = map[string]func([]byte) (MatchMessage, error){
	"AutoStartTimerMessage":   decodeAs[AutoStartTimerMessage],
	"ChangedReadyMessage":     decodeAs[ChangedReadyMessage],
	"CharacterChangedMessage": decodeAs[CharacterChangedMessage],
	"ChatMessage":             decodeAs[ChatMessage],
	"CheckpointPassedMessage": decodeAs[CheckpointPassedMessage],
	"CheckPointPassedMessage": decodeAs[CheckpointPassedMessage],
	"ClientJoinedMessage":     decodeAs[ClientJoinedMessage],
	"ClientLeftMessage":       decodeAs[ClientLeftMessage],
	"DoneRacingMessage":       decodeAs[DoneRacingMessage],
	"LoadLobbyMessage":        decodeAs[LoadLobbyMessage],
	"LoadRaceMessage":         decodeAs[LoadRaceMessage],
	"PlayerJoinedMessage":     decodeAs[PlayerJoinedMessage],
	"PlayerLeftMessage":       decodeAs[PlayerLeftMessage],
	"RaceFinishedMessage":     decodeAs[RaceFinishedMessage],
	"RaceTimeoutMessage":      decodeAs[RaceTimeoutMessage],
	"SettingsChangedMessage":  decodeAs[SettingsChangedMessage],
	"SettingsChanged":         decodeAs[SettingsChangedMessage],
	"StartRaceMessage":        decodeAs[StartRaceMessage],
}

func decodeAs[T MatchMessage](data []byte) (MatchMessage, error) {
	var m T
	if err := json.Unmarshal(data, &m); err != nil {
		return nil, err
	}
	return m, nil
}

// WrapType returns the fully qualified discriminator for a bare variant name.
func WrapType(name string) string {
	return TypePrefix + name + TypeSuffix
}

// UnwrapType strips the fixed prefix and suffix from an inbound discriminator.
// It reports false when either is missing.
func UnwrapType(qualified string) (string, bool) {
	if !strings.HasPrefix(qualified, TypePrefix) || !strings.HasSuffix(qualified, TypeSuffix) {
		return "", false
	}
	name := qualified[len(TypePrefix) : len(qualified)-len(TypeSuffix)]
	return name, name != ""
}

// EncodeMatchMessage encodes m as JSON with the qualified "$type" discriminator
// as the first member.
func EncodeMatchMessage(m MatchMessage) (string, error) {
	body, err := json.Marshal(m)
	if err != nil {
		return "", fmt.Errorf("failed to encode %s: %w", m.MessageType(), err)
	}
	tag, err := json.Marshal(WrapType(m.MessageType()))
	if err != nil {
		return "", fmt.Errorf("failed to encode %s discriminator: %w", m.MessageType(), err)
	}

	var out bytes.Buffer
	out.WriteString(`{"$type":`)
	out.Write(tag)
	if inner := bytes.TrimSpace(body[1 : len(body)-1]); len(inner) > 0 {
		out.WriteByte(',')
		out.Write(inner)
	}
	out.WriteByte('}')
	return out.String(), nil
}

// DecodeMatchMessage decodes a tagged match message. Errors are *DecodeError.
func DecodeMatchMessage(data string) (MatchMessage, error) {
	var envelope struct {
		Type string `json:"$type"`
	}
	if err := json.Unmarshal([]byte(data), &envelope); err != nil {
		return nil, decodeErr("match message", err)
	}
	name, ok := UnwrapType(envelope.Type)
	if !ok {
		return nil, decodeErr("match message type "+envelope.Type, ErrUnknownMessage)
	}
	decode, ok := decoders[name]
	if !ok {
		return nil, decodeErr("match message type "+name, ErrUnknownMessage)
	}
	m, err := decode([]byte(data))
	if err != nil {
		return nil, decodeErr(name, err)
	}
	return m, nil
}
