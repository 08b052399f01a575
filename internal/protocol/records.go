package protocol

// ControlType identifies the input device a player is driven by.
type ControlType int32

const (
	CtrlNone      ControlType = -1
	CtrlKeyboard  ControlType = 0
	CtrlJoystick1 ControlType = 1
	CtrlJoystick2 ControlType = 2
	CtrlJoystick3 ControlType = 3
	CtrlJoystick4 ControlType = 4
)

func (c ControlType) String() string {
	switch c {
	case CtrlNone:
		return "None"
	case CtrlKeyboard:
		return "Keyboard"
	case CtrlJoystick1, CtrlJoystick2, CtrlJoystick3, CtrlJoystick4:
		return "Joystick" + string(rune('0'+c))
	default:
		return "Unknown"
	}
}

// CharacterTier groups characters by speed class.
type CharacterTier int32

const (
	TierNormal CharacterTier = iota
	TierOdd
	TierHypersonic
)

// Vec3 is three consecutive floats.
type Vec3 [3]float32

// Vec4 is four consecutive floats, used for rotations.
type Vec4 [4]float32

// ClientInfo is one record of the client list.
type ClientInfo struct {
	GUID GUID   `json:"guid"`
	Name string `json:"name"`
}

// PlayerInfo is one record of the player list.
type PlayerInfo struct {
	GUID        GUID        `json:"guid"`
	CtrlType    ControlType `json:"ctrl_type"`
	Ready       bool        `json:"ready"`
	CharacterID int32       `json:"character_id"`
}

// MatchSettings is the match configuration as carried on the wire, both in
// the Init frame and in SettingsChanged messages.
type MatchSettings struct {
	StageID             int32   `json:"StageId"`
	Laps                int32   `json:"Laps"`
	AICount             int32   `json:"AICount"`
	AISkill             int32   `json:"AISkill"`
	AutoStartTime       int32   `json:"AutoStartTime"`
	AutoStartMinPlayers int32   `json:"AutoStartMinPlayers"`
	AutoReturnTime      int32   `json:"AutoReturnTime"`
	VoteRatio           float32 `json:"VoteRatio"`
	StageRotationMode   int32   `json:"StageRotationMode"`
}

// InitMessage is the server-to-client snapshot sent after a connection is established.
type InitMessage struct {
	Clients   []ClientInfo
	Players   []PlayerInfo
	Settings  MatchSettings
	InRace    bool
	Countdown int32
}

// PlayerMovement is the body of a movement frame.
type PlayerMovement struct {
	GUID            GUID
	CtrlType        byte
	Position        Vec3
	Rotation        Vec4
	Velocity        Vec3
	AngularVelocity Vec3
	Direction       Vec3
}
