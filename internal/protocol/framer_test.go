package protocol

import (
	"bytes"
	"errors"
	"testing"
)

func TestPreambleRoundTrip(t *testing.T) {
	payloads := []int{0, 1, 4, 100, MaxDatagramSize - HeaderSize}
	for _, n := range payloads {
		for seq := 0; seq <= 32767; seq += 127 {
			b := NewBuffer().WriteBytes(make([]byte, n)).Finalize(ClassUserReliableOrdered1, uint16(seq))
			d, err := ParseDatagram(b.Bytes())
			if err != nil {
				t.Fatalf("ParseDatagram(n=%d, seq=%d) error: %v", n, seq, err)
			}
			if d.Bits != 8*n {
				t.Errorf("Bits(n=%d) = %d, want %d", n, d.Bits, 8*n)
			}
			if int(d.Sequence) != seq {
				t.Errorf("Sequence = %d, want %d", d.Sequence, seq)
			}
			if len(d.Payload) != n {
				t.Errorf("len(Payload) = %d, want %d", len(d.Payload), n)
			}
		}
	}
}

func TestPreambleLayout(t *testing.T) {
	b := NewBuffer().WriteInt32(7).Finalize(ClassPong, 300)
	got := b.Bytes()[:HeaderSize]
	// 300<<1 = 600 -> 0x58, 300>>7 = 2, 32 bits
	want := []byte{130, 0x58, 0x02, 32, 0}
	if !bytes.Equal(got, want) {
		t.Errorf("preamble = %x, want %x", got, want)
	}
}

func TestSequenceBoundary(t *testing.T) {
	for _, seq := range []uint16{0, 1, 127, 128, 255, 256, 32767} {
		b := NewBuffer().Finalize(ClassUserUnreliable, seq)
		d, err := ParseDatagram(b.Bytes())
		if err != nil {
			t.Fatalf("ParseDatagram error: %v", err)
		}
		if d.Sequence != seq {
			t.Errorf("Sequence = %d, want %d", d.Sequence, seq)
		}
	}
}

func TestSequenceWraps(t *testing.T) {
	b := NewBuffer().Finalize(ClassUserUnreliable, 32768)
	d, _ := ParseDatagram(b.Bytes())
	if d.Sequence != 0 {
		t.Errorf("Sequence(32768) = %d, want 0", d.Sequence)
	}
}

func TestRestampOnlyTouchesSequence(t *testing.T) {
	b := NewBuffer().WriteString("payload").Finalize(ClassUserReliableOrdered1, 0)
	before := append([]byte(nil), b.Bytes()...)
	b.Restamp(12345)
	after := b.Bytes()
	if len(after) != len(before) {
		t.Fatalf("Len changed from %d to %d", len(before), len(after))
	}
	for i := range after {
		if i == 1 || i == 2 {
			continue
		}
		if after[i] != before[i] {
			t.Errorf("byte %d = %#x, want %#x", i, after[i], before[i])
		}
	}
	d, _ := ParseDatagram(after)
	if d.Sequence != 12345 {
		t.Errorf("Sequence = %d, want 12345", d.Sequence)
	}
}

func TestParseDatagramErrors(t *testing.T) {
	tests := []struct {
		name string
		data []byte
		want error
	}{
		{"empty", nil, ErrTruncated},
		{"short preamble", []byte{129, 0, 0}, ErrTruncated},
		{"declared longer than datagram", []byte{129, 0, 0, 64, 0, 1}, ErrTruncated},
		{"disabled class", []byte{byte(ClassDisconnect), 0, 0, 0, 0}, ErrClassNotAccepted},
		{"sequenced class", []byte{byte(ClassUserSequenced1), 0, 0, 0, 0}, ErrClassNotAccepted},
		{"out of range", []byte{200, 0, 0, 0, 0}, ErrClassNotAccepted},
		{"pong from peer", []byte{byte(ClassPong), 0, 0, 0, 0}, ErrClassNotAccepted},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := ParseDatagram(tt.data)
			if !errors.Is(err, tt.want) {
				t.Errorf("ParseDatagram(%x) error = %v, want %v", tt.data, err, tt.want)
			}
		})
	}
}

func TestParseDatagramBoundsPayload(t *testing.T) {
	// declares 2 bytes, carries 4
	data := []byte{byte(ClassUserUnreliable), 0, 0, 16, 0, 1, 2, 3, 4}
	d, err := ParseDatagram(data)
	if err != nil {
		t.Fatalf("ParseDatagram error: %v", err)
	}
	if !bytes.Equal(d.Payload, []byte{1, 2}) {
		t.Errorf("Payload = %x, want 0102", d.Payload)
	}
}

func TestMessageClassTable(t *testing.T) {
	tests := []struct {
		class    MessageClass
		name     string
		accepted bool
		channel  int
	}{
		{0, "Unconnected", false, -1},
		{1, "UserUnreliable", true, -1},
		{2, "UserSequenced1", false, -1},
		{33, "UserSequenced32", false, -1},
		{34, "UserReliableUnordered", false, -1},
		{35, "UserReliableSequenced1", false, -1},
		{67, "UserReliableOrdered1", true, 0},
		{98, "UserReliableOrdered32", true, 31},
		{99, "Unused1", false, -1},
		{128, "LibraryError", false, -1},
		{129, "Ping", true, -1},
		{130, "Pong", false, -1},
		{131, "Connect", true, -1},
		{132, "ConnectResponse", false, -1},
		{133, "ConnectionEstablished", true, -1},
		{134, "Acknowledge", true, -1},
		{135, "Disconnect", false, -1},
		{143, "NatIntroductionConfirmed", false, -1},
		{144, "Invalid(144)", false, -1},
		{255, "Invalid(255)", false, -1},
	}
	for _, tt := range tests {
		if got := tt.class.String(); got != tt.name {
			t.Errorf("MessageClass(%d).String() = %q, want %q", tt.class, got, tt.name)
		}
		if got := tt.class.Accepted(); got != tt.accepted {
			t.Errorf("MessageClass(%d).Accepted() = %v, want %v", tt.class, got, tt.accepted)
		}
		if got := tt.class.Channel(); got != tt.channel {
			t.Errorf("MessageClass(%d).Channel() = %d, want %d", tt.class, got, tt.channel)
		}
	}
}
