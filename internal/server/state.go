package server

import (
	"sync"
	"time"

	"github.com/sanicball-project/sanicrelay/internal/events"
	"github.com/sanicball-project/sanicrelay/internal/protocol"
)

// ClientStatus is the observable state of one client.
type ClientStatus struct {
	GUID     string `json:"guid"`
	Name     string `json:"name"`
	Addr     string `json:"addr"`
	Sequence uint16 `json:"sequence"`
}

// PlayerStatus is the observable state of one player.
type PlayerStatus struct {
	GUID        string `json:"guid"`
	CtrlType    string `json:"ctrl_type"`
	CharacterID int32  `json:"character_id"`
	Ready       bool   `json:"ready"`
	Racing      bool   `json:"racing"`
}

// Snapshot is an immutable copy of the match state for readers outside the
// relay goroutine.
type Snapshot struct {
	Phase     events.MatchPhase      `json:"phase"`
	Uptime    float64                `json:"uptime_sec"`
	MOTD      string                 `json:"motd"`
	Settings  protocol.MatchSettings `json:"settings"`
	InRace    bool                   `json:"in_race"`
	Countdown int32                  `json:"countdown"`
	Clients   []ClientStatus         `json:"clients"`
	Players   []PlayerStatus         `json:"players"`
	UpdatedAt time.Time              `json:"updated_at"`
}

// Status holds the latest published snapshot. It is safe for concurrent use.
type Status struct {
	mu   sync.RWMutex
	snap Snapshot
}

// NewStatus returns a status with an empty lobby snapshot.
func NewStatus() *Status {
	return &Status{snap: Snapshot{
		Phase:     events.PhaseLobby,
		Clients:   []ClientStatus{},
		Players:   []PlayerStatus{},
		UpdatedAt: time.Now(),
	}}
}

// Set replaces the published snapshot.
func (st *Status) Set(snap Snapshot) {
	st.mu.Lock()
	defer st.mu.Unlock()
	st.snap = snap
}

// Get returns the latest snapshot. Its slices must not be modified.
func (st *Status) Get() Snapshot {
	st.mu.RLock()
	defer st.mu.RUnlock()
	return st.snap
}

// Snapshot returns the latest published match state.
func (s *Server) Snapshot() Snapshot {
	return s.status.Get()
}

// phase derives the coarse lifecycle phase from the players and timers.
func (s *Server) phase() events.MatchPhase {
	switch {
	case s.state.InRace():
		return events.PhaseRacing
	case s.state.Clock.StageLoadTimeout.Running():
		return events.PhaseLoading
	case s.state.Clock.Lobby.Running():
		return events.PhaseCountdown
	default:
		return events.PhaseLobby
	}
}

// publish copies the match state into the shared snapshot.
func (s *Server) publish() {
	clients := s.state.Roster.Clients()
	players := s.state.Roster.Players()

	snap := Snapshot{
		Phase:     s.phase(),
		Uptime:    s.state.Clock.Uptime.Elapsed().Seconds(),
		MOTD:      s.state.MOTD(),
		Settings:  s.state.Settings,
		InRace:    s.state.InRace(),
		Countdown: s.state.Countdown(),
		Clients:   make([]ClientStatus, 0, len(clients)),
		Players:   make([]PlayerStatus, 0, len(players)),
		UpdatedAt: s.now(),
	}
	for _, c := range clients {
		addr := ""
		if c.Addr != nil {
			addr = c.Addr.String()
		}
		snap.Clients = append(snap.Clients, ClientStatus{
			GUID:     c.GUID.String(),
			Name:     c.Name,
			Addr:     addr,
			Sequence: c.Sequence,
		})
	}
	for _, p := range players {
		snap.Players = append(snap.Players, PlayerStatus{
			GUID:        p.GUID.String(),
			CtrlType:    p.CtrlType.String(),
			CharacterID: p.CharacterID,
			Ready:       p.Ready,
			Racing:      p.Racing,
		})
	}

	s.status.Set(snap)
	s.metrics.SetRoster(len(clients), len(players))
	s.dirty = false
}

func (s *Server) publishIfDirty() {
	if s.dirty {
		s.publish()
	}
}
