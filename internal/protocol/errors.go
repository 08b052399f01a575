package protocol

import (
	"errors"
	"fmt"
)

var (
	// ErrTruncated is returned when a read would pass the end of the payload.
	ErrTruncated = errors.New("protocol: truncated input")

	// ErrMalformedLength is returned for negative counts or overlong varints.
	ErrMalformedLength = errors.New("protocol: malformed length")

	// ErrInvalidUTF8 is returned when a string field is not valid UTF-8.
	ErrInvalidUTF8 = errors.New("protocol: invalid utf-8 in string")

	// ErrInvalidGUID is returned for identifiers that are not 16 bytes or not
	// in canonical 8-4-4-4-12 text form.
	ErrInvalidGUID = errors.New("protocol: malformed guid")

	// ErrUnknownGameFrame is returned for game frame codes other than 0, 1, 2.
	ErrUnknownGameFrame = errors.New("protocol: unknown game frame")

	// ErrClassNotAccepted is returned for message classes the server filters out.
	ErrClassNotAccepted = errors.New("protocol: message class not accepted")

	// ErrUnknownMessage is returned for an unrecognised match message discriminator.
	ErrUnknownMessage = errors.New("protocol: unknown match message")

	// ErrProtocolViolation is returned for server-to-client frames received from a client.
	ErrProtocolViolation = errors.New("protocol: frame not allowed from client")

	// ErrBufferOverflow is the panic value when a write exceeds MaxDatagramSize.
	ErrBufferOverflow = errors.New("protocol: datagram buffer overflow")
)

// DecodeError reports a field that could not be decoded from an inbound datagram.
// The datagram carrying it is dropped.
type DecodeError struct {
	Field string
	Err   error
}

func (e *DecodeError) Error() string {
	return fmt.Sprintf("failed to decode %s: %v", e.Field, e.Err)
}

func (e *DecodeError) Unwrap() error { return e.Err }

func decodeErr(field string, err error) error {
	return &DecodeError{Field: field, Err: err}
}

// IsDecodeError reports whether err is, or wraps, a DecodeError.
func IsDecodeError(err error) bool {
	var de *DecodeError
	return errors.As(err, &de)
}

// Reason returns a short label for the sentinel wrapped by err, for metrics.
func Reason(err error) string {
	switch {
	case errors.Is(err, ErrTruncated):
		return "truncated"
	case errors.Is(err, ErrMalformedLength):
		return "malformed_length"
	case errors.Is(err, ErrInvalidUTF8):
		return "invalid_utf8"
	case errors.Is(err, ErrInvalidGUID):
		return "invalid_guid"
	case errors.Is(err, ErrUnknownGameFrame):
		return "unknown_frame"
	case errors.Is(err, ErrClassNotAccepted):
		return "class_not_accepted"
	case errors.Is(err, ErrUnknownMessage):
		return "unknown_message"
	case errors.Is(err, ErrProtocolViolation):
		return "protocol_violation"
	default:
		return "other"
	}
}
