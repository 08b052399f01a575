package match

import (
	"fmt"
	"math"
	"net"
	"time"

	"github.com/sanicball-project/sanicrelay/internal/protocol"
)

// Default lifecycle thresholds.
const (
	DefaultLobbyCountdown   = 3 * time.Second
	DefaultStageLoadTimeout = 20 * time.Second
)

// Config is the initial state of a match.
type Config struct {
	Settings         protocol.MatchSettings
	MOTD             string
	LobbyCountdown   time.Duration
	StageLoadTimeout time.Duration
}

// NoticeScope selects who receives a server notice.
type NoticeScope int

const (
	// NoticeSender is delivered only to the socket the message came from.
	NoticeSender NoticeScope = iota
	// NoticeAll is broadcast to every client.
	NoticeAll
)

// Notice is a server chat line produced by a state effect.
type Notice struct {
	Scope NoticeScope
	Text  string
}

// Outcome lists the side effects of applying a message that the caller must deliver.
type Outcome struct {
	Notices []Notice
}

// Transition is a lifecycle change produced by Tick.
type Transition int

const (
	TransitionLoadRace Transition = iota + 1
	TransitionStartRace
)

func (t Transition) String() string {
	switch t {
	case TransitionLoadRace:
		return "load_race"
	case TransitionStartRace:
		return "start_race"
	default:
		return fmt.Sprintf("transition(%d)", int(t))
	}
}

// Message returns the server-originated match message announcing t.
func (t Transition) Message() protocol.MatchMessage {
	if t == TransitionStartRace {
		return protocol.StartRaceMessage{}
	}
	return protocol.LoadRaceMessage{}
}

// State is the match state machine.
type State struct {
	Roster   Roster
	Settings protocol.MatchSettings
	Clock    *Clock

	motd             string
	lobbyCountdown   time.Duration
	stageLoadTimeout time.Duration
}

// NewState returns a state with an empty roster. A nil now uses time.Now.
func NewState(cfg Config, now func() time.Time) *State {
	if cfg.LobbyCountdown <= 0 {
		cfg.LobbyCountdown = DefaultLobbyCountdown
	}
	if cfg.StageLoadTimeout <= 0 {
		cfg.StageLoadTimeout = DefaultStageLoadTimeout
	}
	return &State{
		Settings:         cfg.Settings,
		Clock:            NewClock(now),
		motd:             cfg.MOTD,
		lobbyCountdown:   cfg.LobbyCountdown,
		stageLoadTimeout: cfg.StageLoadTimeout,
	}
}

// MOTD returns the message of the day.
func (s *State) MOTD() string { return s.motd }

// SetMOTD replaces the message of the day sent to joining clients.
func (s *State) SetMOTD(text string) { s.motd = text }

// InRace reports whether any player is racing.
func (s *State) InRace() bool {
	for _, p := range s.Roster.players {
		if p.Racing {
			return true
		}
	}
	return false
}

// Countdown returns the whole seconds left on the lobby countdown, or the
// configured auto-start time when the countdown is not running.
func (s *State) Countdown() int32 {
	if !s.Clock.Lobby.Running() {
		return s.Settings.AutoStartTime
	}
	left := s.lobbyCountdown - s.Clock.Lobby.Elapsed()
	if left < 0 {
		return 0
	}
	return int32(math.Ceil(left.Seconds()))
}

// Init returns the snapshot sent to a newly connected client.
func (s *State) Init() protocol.InitMessage {
	return protocol.InitMessage{
		Clients:   s.Roster.ClientInfos(),
		Players:   s.Roster.PlayerInfos(),
		Settings:  s.Settings,
		InRace:    s.InRace(),
		Countdown: s.Countdown(),
	}
}

// Apply applies the effect of msg received from addr. Errors wrapping
// ErrUnknownClient or ErrUnknownPlayer mean the roster was left unchanged;
// ErrNotSupported marks messages without an implemented effect.
func (s *State) Apply(msg protocol.MatchMessage, from net.Addr) (Outcome, error) {
	var out Outcome

	switch m := msg.(type) {
	case protocol.AutoStartTimerMessage:
		return out, fmt.Errorf("%w: %s", ErrNotSupported, m.MessageType())

	case protocol.ChangedReadyMessage:
		s.Clock.Lobby.Start()
		p := s.Roster.Player(m.ClientGUID, m.CtrlType)
		if p == nil {
			return out, fmt.Errorf("%w: %s/%s", ErrUnknownPlayer, m.ClientGUID, m.CtrlType)
		}
		p.Ready = m.Ready

	case protocol.CharacterChangedMessage:
		p := s.Roster.Player(m.ClientGUID, m.CtrlType)
		if p == nil {
			return out, fmt.Errorf("%w: %s/%s", ErrUnknownPlayer, m.ClientGUID, m.CtrlType)
		}
		p.CharacterID = m.NewCharacter

	case protocol.ClientJoinedMessage:
		s.Roster.AddClient(&Client{GUID: m.ClientGUID, Name: m.ClientName, Addr: from})
		out.Notices = append(out.Notices, Notice{Scope: NoticeSender, Text: "Welcome"})
		if s.motd != "" {
			out.Notices = append(out.Notices, Notice{Scope: NoticeSender, Text: "Our Message of the day is " + s.motd})
		}
		out.Notices = append(out.Notices, Notice{Scope: NoticeAll, Text: m.ClientName + ", Has Joined The Match"})

	case protocol.PlayerJoinedMessage:
		err := s.Roster.AddPlayer(&Player{
			GUID:        m.ClientGUID,
			CtrlType:    m.CtrlType,
			CharacterID: m.InitialCharacter,
		})
		if err != nil {
			return out, err
		}

	case protocol.PlayerLeftMessage:
		if err := s.Roster.RemovePlayer(m.ClientGUID, m.CtrlType); err != nil {
			return out, err
		}

	case protocol.DoneRacingMessage:
		p := s.Roster.Player(m.ClientGUID, m.CtrlType)
		if p == nil {
			return out, fmt.Errorf("%w: %s/%s", ErrUnknownPlayer, m.ClientGUID, m.CtrlType)
		}
		p.Racing = false

	case protocol.SettingsChangedMessage:
		s.Settings = m.NewMatchSettings

	case protocol.StartRaceMessage:
		if s.Roster.ClientByAddr(from) == nil {
			return out, fmt.Errorf("%w: start race from %s", ErrUnknownClient, from)
		}
		for _, p := range s.Roster.players {
			p.Racing = true
		}

	case protocol.ChatMessage, protocol.CheckpointPassedMessage, protocol.ClientLeftMessage,
		protocol.LoadLobbyMessage, protocol.LoadRaceMessage, protocol.RaceFinishedMessage,
		protocol.RaceTimeoutMessage:
		// relayed without a roster effect

	default:
		return out, fmt.Errorf("%w: %T", ErrNotSupported, msg)
	}

	return out, nil
}

// Tick evaluates the lifecycle timers once and returns the transitions that fired.
func (s *State) Tick() []Transition {
	var fired []Transition
	if s.Clock.Lobby.TimedOut(s.lobbyCountdown) {
		s.Clock.Lobby.Reset()
		s.Clock.StageLoadTimeout.Start()
		fired = append(fired, TransitionLoadRace)
	}
	if s.Clock.StageLoadTimeout.TimedOut(s.stageLoadTimeout) {
		s.Clock.StageLoadTimeout.Reset()
		fired = append(fired, TransitionStartRace)
	}
	return fired
}
