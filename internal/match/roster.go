package match

import (
	"errors"
	"fmt"
	"net"

	"github.com/sanicball-project/sanicrelay/internal/protocol"
)

var (
	// ErrUnknownClient is returned when no client has the referenced identity.
	ErrUnknownClient = errors.New("match: unknown client")

	// ErrUnknownPlayer is returned when no player has the referenced identity and slot.
	ErrUnknownPlayer = errors.New("match: unknown player")

	// ErrNotSupported is returned for messages whose effect is not implemented.
	ErrNotSupported = errors.New("match: not yet supported")
)

// Client is one connected game instance.
type Client struct {
	GUID       protocol.GUID
	Name       string
	Addr       net.Addr
	Sequence   uint16 // next outbound sequence number for this client
	IsLoading  bool
	WantsLobby bool
}

// NextSequence returns the sequence number for the next datagram to this
// client and advances the counter.
func (c *Client) NextSequence() uint16 {
	seq := c.Sequence
	c.Sequence++
	return seq
}

// Player is one racer owned by a client, distinguished by controller slot.
type Player struct {
	GUID        protocol.GUID
	CtrlType    protocol.ControlType
	CharacterID int32
	Ready       bool
	Racing      bool
	RaceTimeout float32
	HasTimedOut bool
}

// Roster is the ordered list of clients and players.
type Roster struct {
	clients []*Client
	players []*Player
}

// SameAddr reports whether a and b name the same endpoint.
func SameAddr(a, b net.Addr) bool {
	if a == nil || b == nil {
		return a == b
	}
	return a.Network() == b.Network() && a.String() == b.String()
}

// Clients returns the clients in join order.
func (r *Roster) Clients() []*Client { return r.clients }

// Players returns the players in join order.
func (r *Roster) Players() []*Player { return r.players }

// ClientByAddr returns the first client registered from addr, or nil.
func (r *Roster) ClientByAddr(addr net.Addr) *Client {
	for _, c := range r.clients {
		if SameAddr(c.Addr, addr) {
			return c
		}
	}
	return nil
}

// ClientByGUID returns the first client with identity g, or nil.
func (r *Roster) ClientByGUID(g protocol.GUID) *Client {
	for _, c := range r.clients {
		if c.GUID == g {
			return c
		}
	}
	return nil
}

// Player returns the player with identity g on controller ctrl, or nil.
func (r *Roster) Player(g protocol.GUID, ctrl protocol.ControlType) *Player {
	for _, p := range r.players {
		if p.GUID == g && p.CtrlType == ctrl {
			return p
		}
	}
	return nil
}

// AddClient appends a client.
func (r *Roster) AddClient(c *Client) {
	r.clients = append(r.clients, c)
}

// AddPlayer appends a player. The owning client must already be registered.
func (r *Roster) AddPlayer(p *Player) error {
	if r.ClientByGUID(p.GUID) == nil {
		return fmt.Errorf("%w: %s", ErrUnknownClient, p.GUID)
	}
	r.players = append(r.players, p)
	return nil
}

// RemovePlayer removes the player with identity g on controller ctrl.
func (r *Roster) RemovePlayer(g protocol.GUID, ctrl protocol.ControlType) error {
	for i, p := range r.players {
		if p.GUID == g && p.CtrlType == ctrl {
			r.players = append(r.players[:i], r.players[i+1:]...)
			return nil
		}
	}
	return fmt.Errorf("%w: %s/%s", ErrUnknownPlayer, g, ctrl)
}

// ClientInfos returns the client list as sent in the Init frame.
func (r *Roster) ClientInfos() []protocol.ClientInfo {
	out := make([]protocol.ClientInfo, 0, len(r.clients))
	for _, c := range r.clients {
		out = append(out, protocol.ClientInfo{GUID: c.GUID, Name: c.Name})
	}
	return out
}

// PlayerInfos returns the player list as sent in the Init frame.
func (r *Roster) PlayerInfos() []protocol.PlayerInfo {
	out := make([]protocol.PlayerInfo, 0, len(r.players))
	for _, p := range r.players {
		out = append(out, protocol.PlayerInfo{
			GUID:        p.GUID,
			CtrlType:    p.CtrlType,
			Ready:       p.Ready,
			CharacterID: p.CharacterID,
		})
	}
	return out
}
