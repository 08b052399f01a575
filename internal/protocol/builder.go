package protocol

import (
	"encoding/binary"
	"fmt"
	"math"
)

// Buffer builds one outbound datagram at a time in a fixed-capacity region.
// Field writers append after the reserved preamble; Finalize writes the
// preamble from the final length, and Restamp rewrites only the sequence
// bytes so the same payload can be sent to several recipients.
//
// Writing past MaxDatagramSize panics with ErrBufferOverflow.
type Buffer struct {
	data [MaxDatagramSize]byte
	n    int
}

// NewBuffer returns an empty buffer with the cursor after the preamble.
func NewBuffer() *Buffer {
	return &Buffer{n: HeaderSize}
}

// Reset discards the payload. Must be called before building a new message.
func (b *Buffer) Reset() {
	b.n = HeaderSize
}

func (b *Buffer) grow(size int) []byte {
	if b.n+size > MaxDatagramSize {
		panic(fmt.Errorf("%w: need %d bytes, have %d", ErrBufferOverflow, size, MaxDatagramSize-b.n))
	}
	p := b.data[b.n : b.n+size]
	b.n += size
	return p
}

// WriteUint8 writes a single byte.
func (b *Buffer) WriteUint8(v byte) *Buffer {
	b.grow(1)[0] = v
	return b
}

// WriteBool writes 1 for true, 0 for false.
func (b *Buffer) WriteBool(v bool) *Buffer {
	if v {
		return b.WriteUint8(1)
	}
	return b.WriteUint8(0)
}

// WriteInt32 writes an int32 in little-endian order.
func (b *Buffer) WriteInt32(v int32) *Buffer {
	binary.LittleEndian.PutUint32(b.grow(4), uint32(v))
	return b
}

// WriteFloat32 writes a float32 in little-endian order.
func (b *Buffer) WriteFloat32(v float32) *Buffer {
	binary.LittleEndian.PutUint32(b.grow(4), math.Float32bits(v))
	return b
}

// WriteUvarint writes v as a base-128 varint, low groups first.
func (b *Buffer) WriteUvarint(v uint32) *Buffer {
	for v >= 0x80 {
		b.WriteUint8(byte(v) | 0x80)
		v >>= 7
	}
	return b.WriteUint8(byte(v))
}

// WriteString writes a varint byte length followed by the UTF-8 bytes.
func (b *Buffer) WriteString(s string) *Buffer {
	b.WriteUvarint(uint32(len(s)))
	copy(b.grow(len(s)), s)
	return b
}

// WriteBytes writes raw bytes.
func (b *Buffer) WriteBytes(p []byte) *Buffer {
	copy(b.grow(len(p)), p)
	return b
}

// WriteGUID writes an int32 length of 16 followed by the native layout bytes.
func (b *Buffer) WriteGUID(g GUID) *Buffer {
	b.WriteInt32(int32(len(g)))
	return b.WriteBytes(g[:])
}

// WriteVec3 writes three floats.
func (b *Buffer) WriteVec3(v Vec3) *Buffer {
	for _, f := range v {
		b.WriteFloat32(f)
	}
	return b
}

// WriteVec4 writes four floats.
func (b *Buffer) WriteVec4(v Vec4) *Buffer {
	for _, f := range v {
		b.WriteFloat32(f)
	}
	return b
}

// WriteGameFrame writes the game frame code.
func (b *Buffer) WriteGameFrame(f GameFrame) *Buffer {
	return b.WriteUint8(byte(f))
}

// WriteClients writes an int32 count followed by guid and name per client.
func (b *Buffer) WriteClients(clients []ClientInfo) *Buffer {
	b.WriteInt32(int32(len(clients)))
	for _, c := range clients {
		b.WriteGUID(c.GUID).WriteString(c.Name)
	}
	return b
}

// WritePlayers writes an int32 count followed by guid, control type, ready
// flag and character id per player.
func (b *Buffer) WritePlayers(players []PlayerInfo) *Buffer {
	b.WriteInt32(int32(len(players)))
	for _, p := range players {
		b.WriteGUID(p.GUID).
			WriteInt32(int32(p.CtrlType)).
			WriteBool(p.Ready).
			WriteInt32(p.CharacterID)
	}
	return b
}

// WriteSettings writes the match settings in wire order.
func (b *Buffer) WriteSettings(s MatchSettings) *Buffer {
	return b.WriteInt32(s.StageID).
		WriteInt32(s.Laps).
		WriteInt32(s.AICount).
		WriteInt32(s.AISkill).
		WriteInt32(s.AutoStartTime).
		WriteInt32(s.AutoStartMinPlayers).
		WriteInt32(s.AutoReturnTime).
		WriteFloat32(s.VoteRatio).
		WriteInt32(s.StageRotationMode)
}

// WriteInit writes a complete Init frame including the frame code.
func (b *Buffer) WriteInit(m InitMessage) *Buffer {
	return b.WriteGameFrame(FrameInit).
		WriteClients(m.Clients).
		WritePlayers(m.Players).
		WriteSettings(m.Settings).
		WriteBool(m.InRace).
		WriteInt32(m.Countdown)
}

// WritePlayerMovement writes the body of a movement frame.
func (b *Buffer) WritePlayerMovement(m PlayerMovement) *Buffer {
	return b.WriteGUID(m.GUID).
		WriteUint8(m.CtrlType).
		WriteVec3(m.Position).
		WriteVec4(m.Rotation).
		WriteVec3(m.Velocity).
		WriteVec3(m.AngularVelocity).
		WriteVec3(m.Direction)
}

// Finalize writes the preamble: class code, sequence number and the payload
// length in bits. It must be called after all payload fields are written.
func (b *Buffer) Finalize(class MessageClass, seq uint16) *Buffer {
	bits := (b.n - HeaderSize) * 8
	b.data[0] = byte(class)
	b.Restamp(seq)
	b.data[3] = byte(bits)
	b.data[4] = byte(bits >> 8)
	return b
}

// Restamp overwrites only the sequence bytes of a finalized buffer. Sequence
// numbers above 32767 wrap.
func (b *Buffer) Restamp(seq uint16) {
	b.data[1] = byte(seq << 1)
	b.data[2] = byte(seq >> 7)
}

// Bytes returns the valid portion of the buffer, preamble included. The slice
// aliases the buffer and is only valid until the next write.
func (b *Buffer) Bytes() []byte {
	return b.data[:b.n]
}

// Len returns the number of valid bytes, preamble included.
func (b *Buffer) Len() int {
	return b.n
}

// PayloadLen returns the number of payload bytes written after the preamble.
func (b *Buffer) PayloadLen() int {
	return b.n - HeaderSize
}

// String returns a hex dump of the valid bytes for debugging.
func (b *Buffer) String() string {
	return fmt.Sprintf("Buffer[%d bytes]: %x", b.n, b.data[:b.n])
}
