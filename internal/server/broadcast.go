package server

import (
	"errors"
	"net"

	"github.com/rs/zerolog/log"

	"github.com/sanicball-project/sanicrelay/internal/events"
	"github.com/sanicball-project/sanicrelay/internal/match"
	"github.com/sanicball-project/sanicrelay/internal/protocol"
)

// ServerChatName is the sender shown on chat lines written by the relay.
const ServerChatName = "Server"

// maxMatchJSON is the longest match message body that fits in one datagram
// after the frame byte, the clock and a two-byte length prefix.
const maxMatchJSON = protocol.MaxDatagramSize - protocol.HeaderSize - 1 - 4 - 2

// ErrQueueFull is returned by Submit when the command queue is full.
var ErrQueueFull = errors.New("server: command queue full")

// unicast finalizes buf with class and seq and sends it to addr.
func (s *Server) unicast(buf *protocol.Buffer, class protocol.MessageClass, seq uint16, addr net.Addr) {
	buf.Finalize(class, seq)
	s.write(buf, addr)
}

// broadcast finalizes buf with class and sends it to every client in join
// order, restamping each copy with that client's next sequence number.
func (s *Server) broadcast(buf *protocol.Buffer, class protocol.MessageClass) {
	buf.Finalize(class, 0)
	for _, c := range s.state.Roster.Clients() {
		buf.Restamp(c.NextSequence())
		s.write(buf, c.Addr)
	}
}

func (s *Server) write(buf *protocol.Buffer, addr net.Addr) {
	data := buf.Bytes()
	if _, err := s.conn.WriteTo(data, addr); err != nil {
		log.Warn().
			Err(err).
			Str("addr", addr.String()).
			Msg("failed to send datagram")
		return
	}
	s.metrics.Sent(protocol.MessageClass(data[0]).String())
}

// buildMatchFrame writes msg as a match-state frame into s.aux. It reports
// false when the encoded message does not fit in one datagram.
func (s *Server) buildMatchFrame(msg protocol.MatchMessage) bool {
	raw, err := protocol.EncodeMatchMessage(msg)
	if err != nil {
		log.Error().Err(err).Str("message", msg.MessageType()).Msg("failed to encode match message")
		return false
	}
	if len(raw) > maxMatchJSON {
		log.Warn().
			Str("message", msg.MessageType()).
			Int("size", len(raw)).
			Msg("match message too large for one datagram, not sent")
		return false
	}

	s.aux.Reset()
	s.aux.WriteGameFrame(protocol.FrameMatchMessage).
		WriteFloat32(s.state.Clock.Seconds()).
		WriteString(raw)
	return true
}

// broadcastMatchMessage sends a server-originated match message to every client.
func (s *Server) broadcastMatchMessage(msg protocol.MatchMessage) {
	if s.buildMatchFrame(msg) {
		s.broadcast(s.aux, protocol.ClassUserReliableOrdered1)
	}
}

func serverChat(text string) protocol.ChatMessage {
	return protocol.ChatMessage{From: ServerChatName, Type: protocol.ChatSystem, Text: text}
}

// chatTo sends a system chat line to addr alone.
func (s *Server) chatTo(text string, addr net.Addr) {
	if s.buildMatchFrame(serverChat(text)) {
		s.unicast(s.aux, protocol.ClassUserReliableOrdered1, 0, addr)
	}
}

// chatAll sends a system chat line to every client.
func (s *Server) chatAll(text string) {
	s.broadcastMatchMessage(serverChat(text))
	s.emit(events.EventChat, events.ChatPayload{From: ServerChatName, Text: text, System: true})
}

// emitMatchMessage publishes the observable effect of a relayed message.
func (s *Server) emitMatchMessage(msg protocol.MatchMessage, addr net.Addr) {
	switch m := msg.(type) {
	case protocol.ClientJoinedMessage:
		s.emit(events.EventClientJoined, events.ClientPayload{
			GUID: m.ClientGUID.String(),
			Name: m.ClientName,
			Addr: addr.String(),
		})
	case protocol.ClientLeftMessage:
		s.emit(events.EventClientLeft, events.ClientPayload{GUID: m.ClientGUID.String(), Addr: addr.String()})
	case protocol.PlayerJoinedMessage:
		s.emit(events.EventPlayerJoined, events.PlayerPayload{
			GUID:        m.ClientGUID.String(),
			CtrlType:    m.CtrlType.String(),
			CharacterID: m.InitialCharacter,
		})
	case protocol.PlayerLeftMessage:
		s.emit(events.EventPlayerLeft, events.PlayerPayload{GUID: m.ClientGUID.String(), CtrlType: m.CtrlType.String()})
	case protocol.ChatMessage:
		s.emit(events.EventChat, events.ChatPayload{From: m.From, Text: m.Text, System: m.Type == protocol.ChatSystem})
	case protocol.SettingsChangedMessage:
		s.emit(events.EventSettingsChanged, events.SettingsPayload{Settings: m.NewMatchSettings})
	case protocol.LoadRaceMessage:
		s.emit(events.EventLoadRace, events.PhasePayload{Phase: events.PhaseLoading, Players: len(s.state.Roster.Players())})
	case protocol.StartRaceMessage:
		s.emit(events.EventStartRace, events.PhasePayload{Phase: events.PhaseRacing, Players: len(s.state.Roster.Players())})
	case protocol.RaceFinishedMessage:
		s.emit(events.EventRaceFinished, events.RacePayload{
			GUID:     m.ClientGUID.String(),
			CtrlType: m.CtrlType.String(),
			RaceTime: float64(m.RaceTime),
			Position: m.RacePosition,
		})
	}
}

// Submit queues fn to run on the relay goroutine before the next receive.
// It never blocks.
func (s *Server) Submit(fn func(*Server)) error {
	select {
	case s.commands <- fn:
		return nil
	default:
		return ErrQueueFull
	}
}

// Say queues a system chat line to every client.
func (s *Server) Say(text string) error {
	return s.Submit(func(s *Server) {
		log.Info().Str("text", text).Msg("server chat")
		s.chatAll(text)
	})
}

// SetMOTD queues a change of the message of the day.
func (s *Server) SetMOTD(text string) error {
	return s.Submit(func(s *Server) {
		s.state.SetMOTD(text)
		log.Info().Str("motd", text).Msg("message of the day changed")
	})
}

func (s *Server) drainCommands() {
	for {
		select {
		case fn := <-s.commands:
			fn(s)
			s.dirty = true
		default:
			return
		}
	}
}

// State exposes the match state. It must only be used from the relay goroutine
// or before Run starts.
func (s *Server) State() *match.State {
	return s.state
}
