package network

import (
	"context"
	"errors"
	"net"
	"testing"
	"time"

	"github.com/sanicball-project/sanicrelay/internal/protocol"
)

func TestRateTrackerWindow(t *testing.T) {
	rt := newRateTracker(3)
	start := time.Unix(1700000000, 0)

	for i := 0; i < 3; i++ {
		if !rt.allow("10.0.0.1", start) {
			t.Fatalf("packet %d rejected within limit", i)
		}
	}
	if rt.allow("10.0.0.1", start.Add(500*time.Millisecond)) {
		t.Error("fourth packet in the same second allowed")
	}
	if !rt.allow("10.0.0.2", start) {
		t.Error("other source rejected")
	}
	if !rt.allow("10.0.0.1", start.Add(time.Second)) {
		t.Error("packet in a new window rejected")
	}
}

func TestRateTrackerSweepsStaleSources(t *testing.T) {
	rt := newRateTracker(10)
	start := time.Unix(1700000000, 0)
	rt.allow("10.0.0.1", start)
	rt.allow("10.0.0.2", start)

	rt.allow("10.0.0.3", start.Add(2*staleAfter))
	if n := rt.sources(); n != 1 {
		t.Errorf("sources after sweep = %d, want 1", n)
	}
}

func TestExtractIP(t *testing.T) {
	tests := []struct {
		addr net.Addr
		want string
	}{
		{&net.UDPAddr{IP: net.IPv4(192, 168, 1, 2), Port: 7878}, "192.168.1.2"},
		{&net.TCPAddr{IP: net.IPv4(10, 0, 0, 1), Port: 80}, "10.0.0.1"},
	}
	for _, tt := range tests {
		if got := extractIP(tt.addr); got != tt.want {
			t.Errorf("extractIP(%v) = %q, want %q", tt.addr, got, tt.want)
		}
	}
}

// pongResponder answers every datagram on conn with a Pong echoing its token.
func pongResponder(conn net.PacketConn, clock float32) {
	buf := make([]byte, protocol.MaxDatagramSize)
	for {
		n, addr, err := conn.ReadFrom(buf)
		if err != nil {
			return
		}
		d, err := protocol.ParseDatagram(buf[:n])
		if err != nil || d.Class != protocol.ClassPing {
			continue
		}
		token, _ := protocol.NewReader(d.Payload).ReadUint8()
		pong := protocol.NewBuffer()
		pong.WriteUint8(token).WriteFloat32(clock).Finalize(protocol.ClassPong, 0)
		conn.WriteTo(pong.Bytes(), addr)
	}
}

func TestListenAndProbe(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	conn, err := Listen(ctx, "127.0.0.1", 0)
	if err != nil {
		t.Skipf("cannot bind loopback UDP: %v", err)
	}
	go pongResponder(conn, 4.5)

	clock, err := Probe(conn.LocalAddr().String(), 2*time.Second)
	if err != nil {
		t.Fatalf("Probe error: %v", err)
	}
	if clock != 4.5 {
		t.Errorf("Probe clock = %v, want 4.5", clock)
	}
}

func TestProbeRejectsWrongReply(t *testing.T) {
	pc, err := net.ListenPacket("udp4", "127.0.0.1:0")
	if err != nil {
		t.Skipf("cannot bind loopback UDP: %v", err)
	}
	defer pc.Close()

	go func() {
		buf := make([]byte, protocol.MaxDatagramSize)
		_, addr, err := pc.ReadFrom(buf)
		if err != nil {
			return
		}
		reply := protocol.NewBuffer()
		reply.WriteString("Sanicball").Finalize(protocol.ClassConnectResponse, 0)
		pc.WriteTo(reply.Bytes(), addr)
	}()

	_, err = Probe(pc.LocalAddr().String(), 2*time.Second)
	if !errors.Is(err, ErrUnexpectedReply) {
		t.Errorf("Probe error = %v, want ErrUnexpectedReply", err)
	}
}

func TestLimitedConnDropsExcess(t *testing.T) {
	server, err := net.ListenPacket("udp4", "127.0.0.1:0")
	if err != nil {
		t.Skipf("cannot bind loopback UDP: %v", err)
	}
	defer server.Close()
	limited := NewLimitedConn(server, 2)
	fixed := time.Unix(1700000000, 0)
	limited.now = func() time.Time { return fixed }

	client, err := net.DialUDP("udp4", nil, server.LocalAddr().(*net.UDPAddr))
	if err != nil {
		t.Fatal(err)
	}
	defer client.Close()
	for i := byte(0); i < 4; i++ {
		client.Write([]byte{i})
	}

	buf := make([]byte, 16)
	for want := byte(0); want < 2; want++ {
		limited.SetReadDeadline(time.Now().Add(2 * time.Second))
		n, _, err := limited.ReadFrom(buf)
		if err != nil || n != 1 || buf[0] != want {
			t.Fatalf("ReadFrom = %d %v %v, want datagram %d", n, buf[:n], err, want)
		}
	}

	limited.SetReadDeadline(time.Now().Add(200 * time.Millisecond))
	if _, _, err := limited.ReadFrom(buf); err == nil {
		t.Error("third datagram passed the limit")
	}
	if limited.Dropped() != 2 {
		t.Errorf("Dropped() = %d, want 2", limited.Dropped())
	}
}
