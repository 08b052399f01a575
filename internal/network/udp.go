// Package network opens the relay's UDP socket and provides the transport
// helpers around it.
package network

import (
	"context"
	"errors"
	"fmt"
	"net"
	"strconv"
	"time"

	"github.com/rs/zerolog/log"

	"github.com/sanicball-project/sanicrelay/internal/protocol"
)

// ErrUnexpectedReply is returned by Probe when the reply is not a Pong for
// the token it sent.
var ErrUnexpectedReply = errors.New("network: unexpected probe reply")

// Listen binds the relay UDP socket on ip:port. The socket is closed when
// ctx is cancelled, which unblocks any pending read.
func Listen(ctx context.Context, ip string, port int) (*net.UDPConn, error) {
	if ip == "" {
		ip = net.IPv4zero.String()
	}
	addr := net.JoinHostPort(ip, strconv.Itoa(port))

	// SO_REUSEADDR allows immediate rebinding after a restart
	lc := ReuseAddrListenConfig()
	pc, err := lc.ListenPacket(ctx, "udp4", addr)
	if err != nil {
		return nil, fmt.Errorf("failed to listen on udp %s: %w", addr, err)
	}
	conn := pc.(*net.UDPConn)

	log.Info().Str("addr", conn.LocalAddr().String()).Msg("UDP relay socket bound")

	go func() {
		<-ctx.Done()
		conn.Close()
	}()

	return conn, nil
}

// Probe sends a Ping datagram to addr and waits up to timeout for the Pong.
// It returns the server clock reading carried by the reply.
func Probe(addr string, timeout time.Duration) (float32, error) {
	raddr, err := net.ResolveUDPAddr("udp4", addr)
	if err != nil {
		return 0, fmt.Errorf("probe resolve failed: %w", err)
	}
	conn, err := net.DialUDP("udp4", nil, raddr)
	if err != nil {
		return 0, fmt.Errorf("probe dial failed: %w", err)
	}
	defer conn.Close()

	const token = 0x5A
	ping := protocol.NewBuffer()
	ping.WriteUint8(token).Finalize(protocol.ClassPing, 0)
	if _, err := conn.Write(ping.Bytes()); err != nil {
		return 0, fmt.Errorf("probe write failed: %w", err)
	}

	buf := make([]byte, protocol.MaxDatagramSize)
	conn.SetReadDeadline(time.Now().Add(timeout))
	n, err := conn.Read(buf)
	if err != nil {
		return 0, fmt.Errorf("probe read failed: %w", err)
	}
	if n < protocol.HeaderSize || protocol.MessageClass(buf[0]) != protocol.ClassPong {
		return 0, fmt.Errorf("%w: % x", ErrUnexpectedReply, buf[:n])
	}

	r := protocol.NewReader(buf[protocol.HeaderSize:n])
	got, err := r.ReadUint8()
	if err != nil || got != token {
		return 0, fmt.Errorf("%w: token %d", ErrUnexpectedReply, got)
	}
	clock, err := r.ReadFloat32()
	if err != nil {
		return 0, fmt.Errorf("%w: %v", ErrUnexpectedReply, err)
	}

	log.Debug().Str("addr", addr).Float32("server_clock", clock).Msg("probe answered")
	return clock, nil
}
