// Package wire implements the chatroom wire codec: fixed-width
// little-endian integers and length-prefixed byte strings, decoded lazily
// off of a byte region the caller owns.
//
// The decode side never blocks and never copies more than it is asked to:
// given a byte slice and an offset it either succeeds with a new offset or
// reports ErrShortRead, mirroring the pull-based reads described for the
// session state machine built on top of this package.
package wire

import (
	"encoding/binary"
	"errors"
)

// IntSize is the width in bytes of every integer on the wire.
const IntSize = 4

// MaxNameLength is the exclusive upper bound on a display name's length.
const MaxNameLength = 64

// DefaultMaxPacketSize bounds the size of a single steady-state packet so a
// peer cannot coerce unbounded memory growth out of the decoder.
const DefaultMaxPacketSize = 1 << 20 // 1 MiB

// ErrShortRead is returned by the decode helpers when the supplied region
// does not yet contain a complete value.
var ErrShortRead = errors.New("wire: short read")

// ErrProtocolViolation is returned when a length prefix describes a value
// that the protocol does not allow (e.g. an oversized packet).
var ErrProtocolViolation = errors.New("wire: protocol violation")

// PutInt encodes n as a 4-byte little-endian integer appended to dst.
func PutInt(dst []byte, n int32) []byte {
	var b [IntSize]byte
	binary.LittleEndian.PutUint32(b[:], uint32(n))
	return append(dst, b[:]...)
}

// PutString encodes s as a length-prefixed byte string appended to dst.
func PutString(dst []byte, s string) []byte {
	dst = PutInt(dst, int32(len(s)))
	return append(dst, s...)
}

// DecodeInt reads a 4-byte little-endian integer from buf starting at off.
// It returns the value and the offset just past it, or ErrShortRead if buf
// does not yet hold enough bytes.
func DecodeInt(buf []byte, off int) (int32, int, error) {
	if len(buf)-off < IntSize {
		return 0, off, ErrShortRead
	}
	n := int32(binary.LittleEndian.Uint32(buf[off : off+IntSize]))
	return n, off + IntSize, nil
}

// DecodeString reads a length-prefixed byte string from buf starting at
// off, bounding the length by max (pass 0 for no bound beyond int32 range).
// It returns the decoded string and the offset just past it, ErrShortRead if
// buf does not yet hold the full prefix plus payload, or
// ErrProtocolViolation if the prefix exceeds max.
func DecodeString(buf []byte, off int, max int) (string, int, error) {
	n, next, err := DecodeInt(buf, off)
	if err != nil {
		return "", off, err
	}
	if n < 0 || (max > 0 && int(n) > max) {
		return "", off, ErrProtocolViolation
	}
	if len(buf)-next < int(n) {
		return "", off, ErrShortRead
	}
	return string(buf[next : next+int(n)]), next + int(n), nil
}
