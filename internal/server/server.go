// Package server runs the relay loop: it reads datagrams, applies their
// effects to the match state and sends replies and broadcasts.
package server

import (
	"context"
	"errors"
	"fmt"
	"net"
	"time"

	"github.com/rs/zerolog/log"

	"github.com/sanicball-project/sanicrelay/internal/events"
	"github.com/sanicball-project/sanicrelay/internal/match"
	"github.com/sanicball-project/sanicrelay/internal/protocol"
	"github.com/sanicball-project/sanicrelay/internal/telemetry"
)

// DefaultPollInterval bounds how long the loop blocks waiting for a datagram
// before evaluating the match timers again.
const DefaultPollInterval = 100 * time.Millisecond

// PacketConn is the datagram transport used by the relay loop.
type PacketConn interface {
	ReadFrom(p []byte) (n int, addr net.Addr, err error)
	WriteTo(p []byte, addr net.Addr) (n int, err error)
	SetReadDeadline(t time.Time) error
}

// InvariantError reports a message class that reached a dispatch stage it
// must never reach. It indicates a bug, not bad input, and stops the loop.
type InvariantError struct {
	Class protocol.MessageClass
}

func (e *InvariantError) Error() string {
	return fmt.Sprintf("relay invariant violated: message class %d (%s) reached dispatch", byte(e.Class), e.Class)
}

// Options configures a Server.
type Options struct {
	Match        match.Config
	AppID        string
	PollInterval time.Duration

	// Optional collaborators; nil disables them.
	Bus     *events.EventBus
	Metrics *telemetry.Metrics

	// Now drives the match timers. Defaults to time.Now.
	Now func() time.Time
}

// Server owns the match state and the connection. All state is touched only
// by the goroutine running Run; other goroutines talk to it through Submit
// and read it through Snapshot.
type Server struct {
	conn    PacketConn
	state   *match.State
	appID   string
	poll    time.Duration
	now     func() time.Time
	bus     *events.EventBus
	metrics *telemetry.Metrics

	// out holds the reply to the datagram being dispatched; aux holds
	// server-originated frames built while out is still pending.
	out *protocol.Buffer
	aux *protocol.Buffer

	recv     [protocol.MaxDatagramSize]byte
	commands chan func(*Server)
	status   *Status
	dirty    bool
}

// New creates a relay server on conn.
func New(conn PacketConn, opts Options) *Server {
	if opts.AppID == "" {
		opts.AppID = protocol.AppID
	}
	if opts.PollInterval <= 0 {
		opts.PollInterval = DefaultPollInterval
	}
	if opts.Now == nil {
		opts.Now = time.Now
	}

	s := &Server{
		conn:     conn,
		state:    match.NewState(opts.Match, opts.Now),
		appID:    opts.AppID,
		poll:     opts.PollInterval,
		now:      opts.Now,
		bus:      opts.Bus,
		metrics:  opts.Metrics,
		out:      protocol.NewBuffer(),
		aux:      protocol.NewBuffer(),
		commands: make(chan func(*Server), 16),
		status:   NewStatus(),
	}
	s.publish()
	return s
}

// Run processes datagrams until ctx is cancelled. It returns nil on
// cancellation and an *InvariantError if dispatch hits an unreachable state.
func (s *Server) Run(ctx context.Context) error {
	log.Info().
		Str("app_id", s.appID).
		Dur("poll_interval", s.poll).
		Msg("relay loop started")

	for {
		select {
		case <-ctx.Done():
			log.Info().Msg("relay loop stopping")
			return nil
		default:
		}

		s.drainCommands()
		s.tick()

		if err := s.conn.SetReadDeadline(time.Now().Add(s.poll)); err != nil {
			if ctx.Err() != nil {
				return nil
			}
			return fmt.Errorf("failed to set read deadline: %w", err)
		}

		n, addr, err := s.conn.ReadFrom(s.recv[:])
		if err != nil {
			var ne net.Error
			switch {
			case errors.As(err, &ne) && ne.Timeout():
				s.dirty = true
				s.publishIfDirty()
				continue
			case ctx.Err() != nil:
				log.Info().Msg("relay loop stopping")
				return nil
			case errors.Is(err, net.ErrClosed):
				return fmt.Errorf("relay socket closed: %w", err)
			default:
				log.Warn().Err(err).Msg("UDP read error")
				continue
			}
		}

		if err := s.HandleDatagram(s.recv[:n], addr); err != nil {
			var inv *InvariantError
			if errors.As(err, &inv) {
				log.Error().Err(err).Msg("relay loop aborted")
				return err
			}
		}
		s.publishIfDirty()
	}
}

// HandleDatagram dispatches one inbound datagram from addr and sends the
// resulting replies. Decode errors are logged and returned; the datagram is
// dropped and the server remains usable. An *InvariantError is fatal.
func (s *Server) HandleDatagram(data []byte, addr net.Addr) error {
	start := time.Now()
	defer func() { s.metrics.ObserveHandle(time.Since(start).Seconds()) }()

	d, err := protocol.ParseDatagram(data)
	if err != nil {
		s.dropped(addr, err)
		return err
	}
	s.metrics.Received(d.Class.String())

	log.Trace().
		Str("class", d.Class.String()).
		Uint16("seq", d.Sequence).
		Int("bits", d.Bits).
		Str("addr", addr.String()).
		Msg("datagram received")

	reply, err := s.dispatch(d, addr)
	if err != nil {
		var inv *InvariantError
		if !errors.As(err, &inv) {
			s.dropped(addr, err)
		}
		return err
	}

	switch reply {
	case protocol.NoReply:
	case protocol.ClassConnectResponse:
		s.unicast(s.out, reply, 0, addr)
	default:
		s.broadcast(s.out, reply)
	}
	return nil
}

// dispatch decodes d and prepares the reply in s.out. It returns the class
// the reply is sent with, or NoReply when it sent everything itself.
func (s *Server) dispatch(d protocol.Datagram, addr net.Addr) (protocol.MessageClass, error) {
	r := protocol.NewReader(d.Payload)
	s.out.Reset()

	switch {
	case d.Class == protocol.ClassAcknowledge:
		// Nothing is retransmitted, so acknowledgements have nothing to retire.
		return protocol.NoReply, nil

	case d.Class == protocol.ClassPing:
		return s.handlePing(r, addr)

	case d.Class == protocol.ClassConnect:
		return s.handleConnect(r, addr)

	case d.Class == protocol.ClassConnectionEstablished:
		return s.handleEstablished(r, addr)

	case d.Class == protocol.ClassUserUnreliable, d.Class.IsReliableOrdered():
		return s.relay(d, r, addr)

	default:
		return protocol.NoReply, &InvariantError{Class: d.Class}
	}
}

func (s *Server) handlePing(r *protocol.Reader, addr net.Addr) (protocol.MessageClass, error) {
	token, err := r.ReadUint8()
	if err != nil {
		return protocol.NoReply, err
	}

	s.out.WriteUint8(token).WriteFloat32(s.state.Clock.Seconds())
	s.unicast(s.out, protocol.ClassPong, 0, addr)
	return protocol.NoReply, nil
}

func (s *Server) handleConnect(r *protocol.Reader, addr net.Addr) (protocol.MessageClass, error) {
	peerID, err := r.ReadString()
	if err != nil {
		return protocol.NoReply, err
	}
	// Version fields; accepted as sent.
	for i := 0; i < 3; i++ {
		if _, err := r.ReadFloat32(); err != nil {
			return protocol.NoReply, err
		}
	}

	ev := log.Debug()
	if peerID != s.appID {
		ev = log.Warn()
	}
	ev.Str("addr", addr.String()).Str("peer_app_id", peerID).Msg("connect request")

	s.out.WriteString(s.appID)
	return protocol.ClassConnectResponse, nil
}

func (s *Server) handleEstablished(r *protocol.Reader, addr net.Addr) (protocol.MessageClass, error) {
	if _, err := r.ReadFloat32(); err != nil {
		return protocol.NoReply, err
	}

	snap := s.state.Init()
	s.out.WriteInit(snap)
	s.unicast(s.out, protocol.ClassUserReliableOrdered1, 0, addr)

	log.Info().
		Str("addr", addr.String()).
		Int("clients", len(snap.Clients)).
		Int("players", len(snap.Players)).
		Msg("sent init to new connection")
	return protocol.NoReply, nil
}

// relay handles user data: it acknowledges the datagram and then relays the
// game frame it carries.
func (s *Server) relay(d protocol.Datagram, r *protocol.Reader, addr net.Addr) (protocol.MessageClass, error) {
	s.acknowledge(d, addr)

	frame, err := r.ReadGameFrame()
	if err != nil {
		return protocol.NoReply, err
	}

	switch frame {
	case protocol.FrameMatchMessage:
		return s.relayMatchMessage(d, r, addr)
	case protocol.FramePlayerMovement:
		return s.relayMovement(r, addr)
	default:
		return protocol.NoReply, &protocol.DecodeError{Field: "game frame " + frame.String(), Err: protocol.ErrProtocolViolation}
	}
}

func (s *Server) relayMatchMessage(d protocol.Datagram, r *protocol.Reader, addr net.Addr) (protocol.MessageClass, error) {
	if _, err := r.ReadFloat32(); err != nil {
		return protocol.NoReply, err
	}
	raw, err := r.ReadString()
	if err != nil {
		return protocol.NoReply, err
	}
	msg, err := protocol.DecodeMatchMessage(raw)
	if err != nil {
		return protocol.NoReply, err
	}

	s.out.WriteGameFrame(protocol.FrameMatchMessage).
		WriteFloat32(s.state.Clock.Seconds()).
		WriteString(raw)

	s.apply(msg, addr)

	if c := s.state.Roster.ClientByAddr(addr); c != nil {
		c.Sequence = d.Sequence + 1
	} else {
		log.Debug().
			Str("addr", addr.String()).
			Str("message", msg.MessageType()).
			Msg("client joining, sequence not resynchronised")
	}

	s.dirty = true
	return protocol.ClassUserReliableOrdered1, nil
}

// relayMovement forwards a movement frame to every client except the
// sender's own identity. The record itself is not decoded.
func (s *Server) relayMovement(r *protocol.Reader, addr net.Addr) (protocol.MessageClass, error) {
	if _, err := r.ReadFloat32(); err != nil {
		return protocol.NoReply, err
	}

	s.out.WriteGameFrame(protocol.FramePlayerMovement).
		WriteFloat32(s.state.Clock.Seconds()).
		WriteBytes(r.Rest()).
		Finalize(protocol.ClassUserUnreliable, 0)

	sender := s.state.Roster.ClientByAddr(addr)
	for _, c := range s.state.Roster.Clients() {
		if sender != nil && c.GUID == sender.GUID {
			continue
		}
		s.write(s.out, c.Addr)
	}
	return protocol.NoReply, nil
}

// acknowledge echoes the class and sequence of d back to its sender.
func (s *Server) acknowledge(d protocol.Datagram, addr net.Addr) {
	s.aux.Reset()
	s.aux.WriteUint8(byte(d.Class)).
		WriteUint8(byte(d.Sequence)).
		WriteUint8(byte(d.Sequence >> 8))
	s.unicast(s.aux, protocol.ClassAcknowledge, 0, addr)
}

// apply runs the match effect of msg and delivers the notices it produces.
func (s *Server) apply(msg protocol.MatchMessage, addr net.Addr) {
	out, err := s.state.Apply(msg, addr)
	if err != nil {
		log.Warn().
			Err(err).
			Str("message", msg.MessageType()).
			Str("addr", addr.String()).
			Msg("match message relayed without effect")
		s.metrics.RosterError(msg.MessageType())
	}

	for _, n := range out.Notices {
		switch n.Scope {
		case match.NoticeSender:
			s.chatTo(n.Text, addr)
		case match.NoticeAll:
			s.chatAll(n.Text)
		}
	}

	if err == nil {
		s.emitMatchMessage(msg, addr)
	}
}

// tick evaluates the match timers and broadcasts the transitions that fired.
func (s *Server) tick() {
	for _, t := range s.state.Tick() {
		log.Info().
			Str("transition", t.String()).
			Int("clients", len(s.state.Roster.Clients())).
			Int("players", len(s.state.Roster.Players())).
			Msg("match transition")

		s.metrics.Transition(t.String())
		s.broadcastMatchMessage(t.Message())
		s.dirty = true

		eventType := events.EventLoadRace
		phase := events.PhaseLoading
		if t == match.TransitionStartRace {
			eventType = events.EventStartRace
			phase = events.PhaseRacing
		}
		s.emit(eventType, events.PhasePayload{Phase: phase, Players: len(s.state.Roster.Players())})
	}
}

func (s *Server) dropped(addr net.Addr, err error) {
	reason := protocol.Reason(err)
	log.Warn().
		Err(err).
		Str("addr", addr.String()).
		Str("reason", reason).
		Msg("dropping datagram")
	s.metrics.DecodeError(reason)
	s.emit(events.EventDecodeError, events.DecodeErrorPayload{
		Addr:   addr.String(),
		Reason: reason,
		Error:  err.Error(),
	})
}

func (s *Server) emit(t events.EventType, payload interface{}) {
	if s.bus == nil {
		return
	}
	s.bus.Emit(context.Background(), events.New(t, "relay", payload))
}
