// Package protocol implements the datagram format spoken by Sanicball clients:
// the 5-byte frame preamble, the little-endian field codec, the guid layout
// and the JSON match-message catalogue carried inside match-state frames.
package protocol

import "fmt"

// MaxDatagramSize is the capacity of one outbound datagram.
const MaxDatagramSize = 1500

// HeaderSize is the size of the frame preamble in bytes.
const HeaderSize = 5

// AppID is the application identifier the server answers connect requests with.
const AppID = "Sanicball"

// MessageClass is the first preamble byte. It classifies the transport
// semantics of a datagram.
type MessageClass byte

const (
	ClassUnconnected           MessageClass = 0 // no-reply sentinel, never transmitted
	ClassUserUnreliable        MessageClass = 1
	ClassUserSequenced1        MessageClass = 2
	ClassUserReliableUnordered MessageClass = 34
	ClassUserReliableSequenced MessageClass = 35
	ClassUserReliableOrdered1  MessageClass = 67
	ClassUnused1               MessageClass = 99
	ClassLibraryError          MessageClass = 128
	ClassPing                  MessageClass = 129
	ClassPong                  MessageClass = 130
	ClassConnect               MessageClass = 131
	ClassConnectResponse       MessageClass = 132
	ClassConnectionEstablished MessageClass = 133
	ClassAcknowledge           MessageClass = 134
	ClassDisconnect            MessageClass = 135
	ClassDiscovery             MessageClass = 136
	ClassDiscoveryResponse     MessageClass = 137
	ClassNatPunchMessage       MessageClass = 138
	ClassNatIntroduction       MessageClass = 139
	ClassExpandMTURequest      MessageClass = 140
	ClassExpandMTUSuccess      MessageClass = 141
	ClassNatIntroConfirmReq    MessageClass = 142
	ClassNatIntroConfirmed     MessageClass = 143
)

// NoReply is returned by handlers that have nothing further to send.
const NoReply = ClassUnconnected

// lastReliableOrdered is the highest reliable-ordered channel code.
const lastReliableOrdered MessageClass = 98

var classNames = map[MessageClass]string{
	ClassUnconnected:           "Unconnected",
	ClassUserUnreliable:        "UserUnreliable",
	ClassUserReliableUnordered: "UserReliableUnordered",
	ClassLibraryError:          "LibraryError",
	ClassPing:                  "Ping",
	ClassPong:                  "Pong",
	ClassConnect:               "Connect",
	ClassConnectResponse:       "ConnectResponse",
	ClassConnectionEstablished: "ConnectionEstablished",
	ClassAcknowledge:           "Acknowledge",
	ClassDisconnect:            "Disconnect",
	ClassDiscovery:             "Discovery",
	ClassDiscoveryResponse:     "DiscoveryResponse",
	ClassNatPunchMessage:       "NatPunchMessage",
	ClassNatIntroduction:       "NatIntroduction",
	ClassExpandMTURequest:      "ExpandMTURequest",
	ClassExpandMTUSuccess:      "ExpandMTUSuccess",
	ClassNatIntroConfirmReq:    "NatIntroductionConfirmRequest",
	ClassNatIntroConfirmed:     "NatIntroductionConfirmed",
}

// String returns the transport name of the class, with the channel number
// for the channelled ranges.
func (c MessageClass) String() string {
	if name, ok := classNames[c]; ok {
		return name
	}
	switch {
	case c >= ClassUserSequenced1 && c < ClassUserReliableUnordered:
		return fmt.Sprintf("UserSequenced%d", c-ClassUserSequenced1+1)
	case c >= ClassUserReliableSequenced && c < ClassUserReliableOrdered1:
		return fmt.Sprintf("UserReliableSequenced%d", c-ClassUserReliableSequenced+1)
	case c.IsReliableOrdered():
		return fmt.Sprintf("UserReliableOrdered%d", c.Channel()+1)
	case c >= ClassUnused1 && c < ClassLibraryError:
		return fmt.Sprintf("Unused%d", c-ClassUnused1+1)
	}
	return fmt.Sprintf("Invalid(%d)", byte(c))
}

// IsReliableOrdered reports whether c is one of the reliable-ordered channels.
func (c MessageClass) IsReliableOrdered() bool {
	return c >= ClassUserReliableOrdered1 && c <= lastReliableOrdered
}

// Channel returns the reliable-ordered channel index, or -1.
func (c MessageClass) Channel() int {
	if !c.IsReliableOrdered() {
		return -1
	}
	return int(c - ClassUserReliableOrdered1)
}

// IsUserData reports whether the class carries a game frame.
func (c MessageClass) IsUserData() bool {
	return c == ClassUserUnreliable || c.IsReliableOrdered()
}

// Accepted reports whether the server handles inbound datagrams of this class.
// Sequenced, unordered, reserved and disabled transport-feature classes are
// filtered here so they never reach dispatch.
func (c MessageClass) Accepted() bool {
	switch c {
	case ClassPing, ClassConnect, ClassConnectionEstablished, ClassAcknowledge:
		return true
	}
	return c.IsUserData()
}

// GameFrame is the first payload byte of a user-data datagram.
type GameFrame byte

const (
	FrameMatchMessage   GameFrame = 0
	FrameInit           GameFrame = 1
	FramePlayerMovement GameFrame = 2
)

// String returns the frame name.
func (f GameFrame) String() string {
	switch f {
	case FrameMatchMessage:
		return "MatchMessage"
	case FrameInit:
		return "InitMessage"
	case FramePlayerMovement:
		return "PlayerMovementMessage"
	default:
		return fmt.Sprintf("GameFrame(%d)", byte(f))
	}
}
