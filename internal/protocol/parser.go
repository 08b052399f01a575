package protocol

import (
	"encoding/binary"
	"math"
	"unicode/utf8"
)

// Datagram is an inbound datagram split into preamble fields and payload.
type Datagram struct {
	Class    MessageClass
	Sequence uint16
	Bits     int
	Payload  []byte
}

// ParseDatagram reads the preamble of data and bounds the payload by the
// declared bit length. Classes the server does not accept are rejected here.
func ParseDatagram(data []byte) (Datagram, error) {
	var d Datagram
	if len(data) < HeaderSize {
		return d, decodeErr("preamble", ErrTruncated)
	}

	d.Class = MessageClass(data[0])
	d.Sequence = uint16(data[1]>>1) | uint16(data[2])<<7
	d.Bits = int(data[3]) | int(data[4])<<8

	size := (d.Bits + 7) / 8
	if size > len(data)-HeaderSize {
		return d, decodeErr("payload", ErrTruncated)
	}
	d.Payload = data[HeaderSize : HeaderSize+size]

	if !d.Class.Accepted() {
		return d, decodeErr("message class "+d.Class.String(), ErrClassNotAccepted)
	}
	return d, nil
}

// Reader decodes fields from a datagram payload. Every method returns a
// *DecodeError instead of reading past the end.
type Reader struct {
	buf []byte
	pos int
}

// NewReader returns a Reader over payload.
func NewReader(payload []byte) *Reader {
	return &Reader{buf: payload}
}

// Remaining returns the number of unread bytes.
func (r *Reader) Remaining() int {
	return len(r.buf) - r.pos
}

// Rest returns the unread bytes and advances to the end.
func (r *Reader) Rest() []byte {
	p := r.buf[r.pos:]
	r.pos = len(r.buf)
	return p
}

func (r *Reader) take(field string, n int) ([]byte, error) {
	if n < 0 || r.Remaining() < n {
		return nil, decodeErr(field, ErrTruncated)
	}
	p := r.buf[r.pos : r.pos+n]
	r.pos += n
	return p, nil
}

// ReadUint8 reads a single byte.
func (r *Reader) ReadUint8() (byte, error) {
	p, err := r.take("byte", 1)
	if err != nil {
		return 0, err
	}
	return p[0], nil
}

// ReadBool reads a byte; any nonzero value is true.
func (r *Reader) ReadBool() (bool, error) {
	p, err := r.take("bool", 1)
	if err != nil {
		return false, err
	}
	return p[0] != 0, nil
}

// ReadInt32 reads a little-endian int32.
func (r *Reader) ReadInt32() (int32, error) {
	p, err := r.take("int32", 4)
	if err != nil {
		return 0, err
	}
	return int32(binary.LittleEndian.Uint32(p)), nil
}

// ReadFloat32 reads a little-endian float32.
func (r *Reader) ReadFloat32() (float32, error) {
	p, err := r.take("float32", 4)
	if err != nil {
		return 0, err
	}
	return math.Float32frombits(binary.LittleEndian.Uint32(p)), nil
}

// ReadUvarint reads a base-128 varint of at most 32 bits.
func (r *Reader) ReadUvarint() (uint32, error) {
	var v uint32
	for shift := uint(0); ; shift += 7 {
		if shift >= 35 {
			return 0, decodeErr("varint", ErrMalformedLength)
		}
		c, err := r.ReadUint8()
		if err != nil {
			return 0, decodeErr("varint", ErrTruncated)
		}
		v |= uint32(c&0x7F) << shift
		if c&0x80 == 0 {
			return v, nil
		}
	}
}

// ReadString reads a varint length followed by that many UTF-8 bytes.
func (r *Reader) ReadString() (string, error) {
	n, err := r.ReadUvarint()
	if err != nil {
		return "", decodeErr("string length", err)
	}
	if int64(n) > int64(r.Remaining()) {
		return "", decodeErr("string", ErrTruncated)
	}
	p, _ := r.take("string", int(n))
	if !utf8.Valid(p) {
		return "", decodeErr("string", ErrInvalidUTF8)
	}
	return string(p), nil
}

// ReadGUID reads an int32 length followed by the identifier bytes. The length
// must be 16.
func (r *Reader) ReadGUID() (GUID, error) {
	var g GUID
	n, err := r.ReadInt32()
	if err != nil {
		return g, decodeErr("guid length", err)
	}
	if n < 0 {
		return g, decodeErr("guid length", ErrMalformedLength)
	}
	p, err := r.take("guid", int(n))
	if err != nil {
		return g, err
	}
	if len(p) != len(g) {
		return g, decodeErr("guid", ErrInvalidGUID)
	}
	copy(g[:], p)
	return g, nil
}

// ReadVec3 reads three floats.
func (r *Reader) ReadVec3() (Vec3, error) {
	var v Vec3
	for i := range v {
		f, err := r.ReadFloat32()
		if err != nil {
			return v, decodeErr("vec3", err)
		}
		v[i] = f
	}
	return v, nil
}

// ReadVec4 reads four floats.
func (r *Reader) ReadVec4() (Vec4, error) {
	var v Vec4
	for i := range v {
		f, err := r.ReadFloat32()
		if err != nil {
			return v, decodeErr("vec4", err)
		}
		v[i] = f
	}
	return v, nil
}

// ReadGameFrame reads the frame code and rejects unknown values.
func (r *Reader) ReadGameFrame() (GameFrame, error) {
	c, err := r.ReadUint8()
	if err != nil {
		return 0, decodeErr("game frame", err)
	}
	f := GameFrame(c)
	switch f {
	case FrameMatchMessage, FrameInit, FramePlayerMovement:
		return f, nil
	}
	return f, decodeErr("game frame "+f.String(), ErrUnknownGameFrame)
}

func (r *Reader) readCount(field string, minRecord int) (int, error) {
	n, err := r.ReadInt32()
	if err != nil {
		return 0, decodeErr(field+" count", err)
	}
	if n < 0 {
		return 0, decodeErr(field+" count", ErrMalformedLength)
	}
	if int64(n)*int64(minRecord) > int64(r.Remaining()) {
		return 0, decodeErr(field, ErrTruncated)
	}
	return int(n), nil
}

// ReadClients reads a client list.
func (r *Reader) ReadClients() ([]ClientInfo, error) {
	// guid (4+16) and an empty name (1)
	n, err := r.readCount("clients", 21)
	if err != nil {
		return nil, err
	}
	clients := make([]ClientInfo, 0, n)
	for i := 0; i < n; i++ {
		g, err := r.ReadGUID()
		if err != nil {
			return nil, decodeErr("clients", err)
		}
		name, err := r.ReadString()
		if err != nil {
			return nil, decodeErr("clients", err)
		}
		clients = append(clients, ClientInfo{GUID: g, Name: name})
	}
	return clients, nil
}

// ReadPlayers reads a player list.
func (r *Reader) ReadPlayers() ([]PlayerInfo, error) {
	n, err := r.readCount("players", 29)
	if err != nil {
		return nil, err
	}
	players := make([]PlayerInfo, 0, n)
	for i := 0; i < n; i++ {
		var p PlayerInfo
		if p.GUID, err = r.ReadGUID(); err != nil {
			return nil, decodeErr("players", err)
		}
		ctrl, err := r.ReadInt32()
		if err != nil {
			return nil, decodeErr("players", err)
		}
		p.CtrlType = ControlType(ctrl)
		if p.Ready, err = r.ReadBool(); err != nil {
			return nil, decodeErr("players", err)
		}
		if p.CharacterID, err = r.ReadInt32(); err != nil {
			return nil, decodeErr("players", err)
		}
		players = append(players, p)
	}
	return players, nil
}

// ReadSettings reads match settings in wire order.
func (r *Reader) ReadSettings() (MatchSettings, error) {
	var s MatchSettings
	ints := []*int32{&s.StageID, &s.Laps, &s.AICount, &s.AISkill,
		&s.AutoStartTime, &s.AutoStartMinPlayers, &s.AutoReturnTime}
	for _, p := range ints {
		v, err := r.ReadInt32()
		if err != nil {
			return s, decodeErr("settings", err)
		}
		*p = v
	}
	var err error
	if s.VoteRatio, err = r.ReadFloat32(); err != nil {
		return s, decodeErr("settings", err)
	}
	if s.StageRotationMode, err = r.ReadInt32(); err != nil {
		return s, decodeErr("settings", err)
	}
	return s, nil
}

// ReadInit reads the body of an Init frame, after the frame code.
func (r *Reader) ReadInit() (InitMessage, error) {
	var m InitMessage
	var err error
	if m.Clients, err = r.ReadClients(); err != nil {
		return m, err
	}
	if m.Players, err = r.ReadPlayers(); err != nil {
		return m, err
	}
	if m.Settings, err = r.ReadSettings(); err != nil {
		return m, err
	}
	if m.InRace, err = r.ReadBool(); err != nil {
		return m, decodeErr("init", err)
	}
	if m.Countdown, err = r.ReadInt32(); err != nil {
		return m, decodeErr("init", err)
	}
	return m, nil
}

// ReadPlayerMovement reads the body of a movement frame.
func (r *Reader) ReadPlayerMovement() (PlayerMovement, error) {
	var m PlayerMovement
	var err error
	if m.GUID, err = r.ReadGUID(); err != nil {
		return m, decodeErr("movement", err)
	}
	if m.CtrlType, err = r.ReadUint8(); err != nil {
		return m, decodeErr("movement", err)
	}
	if m.Position, err = r.ReadVec3(); err != nil {
		return m, decodeErr("movement", err)
	}
	if m.Rotation, err = r.ReadVec4(); err != nil {
		return m, decodeErr("movement", err)
	}
	if m.Velocity, err = r.ReadVec3(); err != nil {
		return m, decodeErr("movement", err)
	}
	if m.AngularVelocity, err = r.ReadVec3(); err != nil {
		return m, decodeErr("movement", err)
	}
	if m.Direction, err = r.ReadVec3(); err != nil {
		return m, decodeErr("movement", err)
	}
	return m, nil
}
