package match

import (
	"errors"
	"net"
	"testing"
	"time"

	"github.com/sanicball-project/sanicrelay/internal/protocol"
)

type fakeClock struct {
	t time.Time
}

func (c *fakeClock) now() time.Time { return c.t }

func (c *fakeClock) advance(d time.Duration) { c.t = c.t.Add(d) }

func newTestState(cfg Config) (*State, *fakeClock) {
	fc := &fakeClock{t: time.Unix(1700000000, 0)}
	return NewState(cfg, fc.now), fc
}

var (
	guidA = protocol.MustParseGUID("3f2504e0-4f89-11d3-9a0c-0305e82c3301")
	guidB = protocol.MustParseGUID("00112233-4455-6677-8899-aabbccddeeff")
	addrA = &net.UDPAddr{IP: net.IPv4(10, 0, 0, 1), Port: 5000}
	addrB = &net.UDPAddr{IP: net.IPv4(10, 0, 0, 2), Port: 5000}
)

func mustApply(t *testing.T, s *State, msg protocol.MatchMessage, from net.Addr) Outcome {
	t.Helper()
	out, err := s.Apply(msg, from)
	if err != nil {
		t.Fatalf("Apply(%s) error: %v", msg.MessageType(), err)
	}
	return out
}

func TestJoinThenLeave(t *testing.T) {
	s, _ := newTestState(Config{})
	mustApply(t, s, protocol.ClientJoinedMessage{ClientGUID: guidA, ClientName: "X"}, addrA)
	mustApply(t, s, protocol.PlayerJoinedMessage{ClientGUID: guidA, CtrlType: 0, InitialCharacter: 3}, addrA)

	players := s.Roster.Players()
	if len(players) != 1 {
		t.Fatalf("len(Players()) = %d, want 1", len(players))
	}
	p := players[0]
	if p.CharacterID != 3 || p.Ready || p.Racing {
		t.Errorf("player = %+v, want character 3, not ready, not racing", p)
	}

	mustApply(t, s, protocol.PlayerLeftMessage{ClientGUID: guidA, CtrlType: 0}, addrA)
	if n := len(s.Roster.Players()); n != 0 {
		t.Errorf("len(Players()) after leave = %d, want 0", n)
	}
	if n := len(s.Roster.Clients()); n != 1 {
		t.Errorf("len(Clients()) after leave = %d, want 1", n)
	}
}

func TestClientJoinedNotices(t *testing.T) {
	s, _ := newTestState(Config{MOTD: "go fast"})
	out := mustApply(t, s, protocol.ClientJoinedMessage{ClientGUID: guidA, ClientName: "Sonic"}, addrA)

	want := []Notice{
		{Scope: NoticeSender, Text: "Welcome"},
		{Scope: NoticeSender, Text: "Our Message of the day is go fast"},
		{Scope: NoticeAll, Text: "Sonic, Has Joined The Match"},
	}
	if len(out.Notices) != len(want) {
		t.Fatalf("Notices = %+v, want %+v", out.Notices, want)
	}
	for i := range want {
		if out.Notices[i] != want[i] {
			t.Errorf("Notices[%d] = %+v, want %+v", i, out.Notices[i], want[i])
		}
	}
	c := s.Roster.ClientByAddr(addrA)
	if c == nil || c.GUID != guidA || c.Name != "Sonic" || c.Sequence != 0 {
		t.Errorf("ClientByAddr() = %+v", c)
	}
}

func TestSplitScreenPlayers(t *testing.T) {
	s, _ := newTestState(Config{})
	mustApply(t, s, protocol.ClientJoinedMessage{ClientGUID: guidA, ClientName: "X"}, addrA)
	mustApply(t, s, protocol.PlayerJoinedMessage{ClientGUID: guidA, CtrlType: protocol.CtrlKeyboard, InitialCharacter: 1}, addrA)
	mustApply(t, s, protocol.PlayerJoinedMessage{ClientGUID: guidA, CtrlType: protocol.CtrlJoystick1, InitialCharacter: 2}, addrA)

	mustApply(t, s, protocol.CharacterChangedMessage{ClientGUID: guidA, CtrlType: protocol.CtrlJoystick1, NewCharacter: 9}, addrA)
	if got := s.Roster.Player(guidA, protocol.CtrlJoystick1).CharacterID; got != 9 {
		t.Errorf("joystick player character = %d, want 9", got)
	}
	if got := s.Roster.Player(guidA, protocol.CtrlKeyboard).CharacterID; got != 1 {
		t.Errorf("keyboard player character = %d, want 1", got)
	}
}

func TestRosterErrors(t *testing.T) {
	tests := []struct {
		name string
		msg  protocol.MatchMessage
		want error
	}{
		{"player for unknown client", protocol.PlayerJoinedMessage{ClientGUID: guidB}, ErrUnknownClient},
		{"ready for unknown player", protocol.ChangedReadyMessage{ClientGUID: guidB, Ready: true}, ErrUnknownPlayer},
		{"character for unknown player", protocol.CharacterChangedMessage{ClientGUID: guidB}, ErrUnknownPlayer},
		{"leave for unknown player", protocol.PlayerLeftMessage{ClientGUID: guidB}, ErrUnknownPlayer},
		{"done racing for unknown player", protocol.DoneRacingMessage{ClientGUID: guidB}, ErrUnknownPlayer},
		{"start race from stranger", protocol.StartRaceMessage{}, ErrUnknownClient},
		{"auto start toggle", protocol.AutoStartTimerMessage{Enabled: true}, ErrNotSupported},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			s, _ := newTestState(Config{})
			mustApply(t, s, protocol.ClientJoinedMessage{ClientGUID: guidA, ClientName: "X"}, addrA)
			mustApply(t, s, protocol.PlayerJoinedMessage{ClientGUID: guidA}, addrA)

			_, err := s.Apply(tt.msg, addrB)
			if !errors.Is(err, tt.want) {
				t.Errorf("Apply() error = %v, want %v", err, tt.want)
			}
			if n := len(s.Roster.Players()); n != 1 {
				t.Errorf("len(Players()) = %d, want 1", n)
			}
		})
	}
}

func TestReadyStartsLobby(t *testing.T) {
	s, fc := newTestState(Config{})
	mustApply(t, s, protocol.ClientJoinedMessage{ClientGUID: guidA, ClientName: "X"}, addrA)
	mustApply(t, s, protocol.PlayerJoinedMessage{ClientGUID: guidA}, addrA)

	mustApply(t, s, protocol.ChangedReadyMessage{ClientGUID: guidA, Ready: true}, addrA)
	if !s.Roster.Player(guidA, 0).Ready {
		t.Error("Ready = false, want true")
	}
	if !s.Clock.Lobby.Running() {
		t.Fatal("lobby timer not running")
	}

	fc.advance(2 * time.Second)
	mustApply(t, s, protocol.ChangedReadyMessage{ClientGUID: guidA, Ready: false}, addrA)
	if got := s.Clock.Lobby.Elapsed(); got != 2*time.Second {
		t.Errorf("lobby Elapsed() = %v, want 2s (not restarted)", got)
	}
}

func TestStartAndDoneRacing(t *testing.T) {
	s, _ := newTestState(Config{})
	mustApply(t, s, protocol.ClientJoinedMessage{ClientGUID: guidA, ClientName: "X"}, addrA)
	mustApply(t, s, protocol.PlayerJoinedMessage{ClientGUID: guidA}, addrA)
	mustApply(t, s, protocol.PlayerJoinedMessage{ClientGUID: guidA, CtrlType: protocol.CtrlJoystick1}, addrA)

	mustApply(t, s, protocol.StartRaceMessage{}, addrA)
	for _, p := range s.Roster.Players() {
		if !p.Racing {
			t.Errorf("player %s Racing = false, want true", p.CtrlType)
		}
	}
	if !s.InRace() {
		t.Error("InRace() = false, want true")
	}

	mustApply(t, s, protocol.DoneRacingMessage{ClientGUID: guidA, CtrlType: protocol.CtrlJoystick1}, addrA)
	if s.Roster.Player(guidA, protocol.CtrlJoystick1).Racing {
		t.Error("joystick player still racing")
	}
	if !s.Roster.Player(guidA, protocol.CtrlKeyboard).Racing {
		t.Error("keyboard player stopped racing")
	}
}

func TestSettingsChangedReplacesWholesale(t *testing.T) {
	s, _ := newTestState(Config{Settings: protocol.MatchSettings{Laps: 2, AICount: 5}})
	next := protocol.MatchSettings{StageID: 3, Laps: 4, VoteRatio: 0.5}
	mustApply(t, s, protocol.SettingsChangedMessage{NewMatchSettings: next}, addrA)
	if s.Settings != next {
		t.Errorf("Settings = %+v, want %+v", s.Settings, next)
	}
}

func TestPlaceholderMessagesAccepted(t *testing.T) {
	s, _ := newTestState(Config{})
	msgs := []protocol.MatchMessage{
		protocol.ChatMessage{From: "a", Text: "b"},
		protocol.CheckpointPassedMessage{ClientGUID: guidB},
		protocol.ClientLeftMessage{ClientGUID: guidB},
		protocol.LoadLobbyMessage{},
		protocol.LoadRaceMessage{},
		protocol.RaceFinishedMessage{ClientGUID: guidB},
		protocol.RaceTimeoutMessage{ClientGUID: guidB},
	}
	for _, m := range msgs {
		out, err := s.Apply(m, addrB)
		if err != nil || len(out.Notices) != 0 {
			t.Errorf("Apply(%s) = %+v, %v; want no effect", m.MessageType(), out, err)
		}
	}
}

func TestTickScenario(t *testing.T) {
	s, fc := newTestState(Config{})
	s.Clock.Lobby.Start()

	fc.advance(2900 * time.Millisecond)
	if got := s.Tick(); len(got) != 0 {
		t.Fatalf("Tick() at 2.9s = %v, want none", got)
	}

	fc.advance(200 * time.Millisecond)
	got := s.Tick()
	if len(got) != 1 || got[0] != TransitionLoadRace {
		t.Fatalf("Tick() at 3.1s = %v, want [load_race]", got)
	}
	if s.Clock.Lobby.Running() {
		t.Error("lobby timer still running after load race")
	}
	if !s.Clock.StageLoadTimeout.Running() {
		t.Error("stage load timer not started")
	}

	fc.advance(10 * time.Second)
	if got := s.Tick(); len(got) != 0 {
		t.Fatalf("Tick() at 13.1s = %v, want none", got)
	}

	fc.advance(10 * time.Second)
	got = s.Tick()
	if len(got) != 1 || got[0] != TransitionStartRace {
		t.Fatalf("Tick() at 23.1s = %v, want [start_race]", got)
	}

	fc.advance(time.Minute)
	if got := s.Tick(); len(got) != 0 {
		t.Errorf("Tick() after start = %v, want none", got)
	}
}

func TestCountdown(t *testing.T) {
	s, fc := newTestState(Config{Settings: protocol.MatchSettings{AutoStartTime: 67}})
	if got := s.Countdown(); got != 67 {
		t.Errorf("Countdown() idle = %d, want 67", got)
	}
	s.Clock.Lobby.Start()
	fc.advance(1500 * time.Millisecond)
	if got := s.Countdown(); got != 2 {
		t.Errorf("Countdown() after 1.5s = %d, want 2", got)
	}
}

func TestInitSnapshot(t *testing.T) {
	s, _ := newTestState(Config{Settings: protocol.MatchSettings{Laps: 3}})
	mustApply(t, s, protocol.ClientJoinedMessage{ClientGUID: guidA, ClientName: "X"}, addrA)
	mustApply(t, s, protocol.PlayerJoinedMessage{ClientGUID: guidA, InitialCharacter: 4}, addrA)

	snap := s.Init()
	if len(snap.Clients) != 1 || snap.Clients[0].Name != "X" {
		t.Errorf("Init().Clients = %+v", snap.Clients)
	}
	if len(snap.Players) != 1 || snap.Players[0].CharacterID != 4 {
		t.Errorf("Init().Players = %+v", snap.Players)
	}
	if snap.Settings.Laps != 3 || snap.InRace {
		t.Errorf("Init() = %+v", snap)
	}
}
