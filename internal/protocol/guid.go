package protocol

import (
	"encoding/json"
	"fmt"

	"github.com/google/uuid"
)

// GUID is an identifier in the peer's native 16-byte layout: the first three
// groups of the text form are stored byte-reversed, the last two in text order.
type GUID [16]byte

// guidTextLen is the length of the canonical 8-4-4-4-12 text form.
const guidTextLen = 36

// ParseGUID converts the canonical hyphenated text form into the native layout.
func ParseGUID(s string) (GUID, error) {
	var g GUID
	if len(s) != guidTextLen || s[8] != '-' || s[13] != '-' || s[18] != '-' || s[23] != '-' {
		return g, fmt.Errorf("%w: %q", ErrInvalidGUID, s)
	}
	u, err := uuid.Parse(s)
	if err != nil {
		return g, fmt.Errorf("%w: %v", ErrInvalidGUID, err)
	}

	g[0], g[1], g[2], g[3] = u[3], u[2], u[1], u[0]
	g[4], g[5] = u[5], u[4]
	g[6], g[7] = u[7], u[6]
	copy(g[8:], u[8:])
	return g, nil
}

// MustParseGUID is like ParseGUID but panics on error. Intended for constants and tests.
func MustParseGUID(s string) GUID {
	g, err := ParseGUID(s)
	if err != nil {
		panic(err)
	}
	return g
}

// UUID returns the identifier in text byte order.
func (g GUID) UUID() uuid.UUID {
	var u uuid.UUID
	u[0], u[1], u[2], u[3] = g[3], g[2], g[1], g[0]
	u[4], u[5] = g[5], g[4]
	u[6], u[7] = g[7], g[6]
	copy(u[8:], g[8:])
	return u
}

// String returns the lowercase canonical text form.
func (g GUID) String() string {
	return g.UUID().String()
}

// IsZero reports whether g is the all-zero identifier.
func (g GUID) IsZero() bool {
	return g == GUID{}
}

// MarshalJSON encodes the identifier as its canonical text form.
func (g GUID) MarshalJSON() ([]byte, error) {
	return json.Marshal(g.String())
}

// UnmarshalJSON decodes a canonical text identifier.
func (g *GUID) UnmarshalJSON(data []byte) error {
	var s string
	if err := json.Unmarshal(data, &s); err != nil {
		return fmt.Errorf("%w: %v", ErrInvalidGUID, err)
	}
	parsed, err := ParseGUID(s)
	if err != nil {
		return err
	}
	*g = parsed
	return nil
}
