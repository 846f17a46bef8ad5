package protocol

import (
	"encoding/binary"
	"fmt"
)

const (
	// HeaderSize is the size of a frame header: 2-byte length, 1-byte tag.
	HeaderSize = 3

	// MaxPayloadSize is the largest payload a single frame can declare.
	MaxPayloadSize = 0xFFFF
)

// Header is a decoded frame header.
type Header struct {
	Length uint16 // payload length, excluding the header
	Tag    byte
}

// FrameSize returns the number of bytes the whole frame occupies.
func (h Header) FrameSize() int {
	return HeaderSize + int(h.Length)
}

// String returns a short description of the header.
func (h Header) String() string {
	return fmt.Sprintf("frame(tag=%d, len=%d)", h.Tag, h.Length)
}

// ParseHeader decodes the frame header at buf[offset:].
// It does not check that the declared payload is present.
func ParseHeader(buf []byte, offset int) (Header, error) {
	if offset < 0 || offset > len(buf)-HeaderSize {
		return Header{}, ErrTruncatedHeader
	}
	return Header{
		Length: binary.LittleEndian.Uint16(buf[offset:]),
		Tag:    buf[offset+2],
	}, nil
}

// AppendHeader appends the encoding of h to dst.
func AppendHeader(dst []byte, h Header) []byte {
	dst = binary.LittleEndian.AppendUint16(dst, h.Length)
	return append(dst, h.Tag)
}

// putLength back-patches the length field of the header at buf[offset:].
func putLength(buf []byte, offset int, length uint16) {
	binary.LittleEndian.PutUint16(buf[offset:], length)
}

// SplitFrames reports whether payload is exactly a sequence of one or more
// complete frames, and returns their headers in order. Nested payloads are
// not examined.
func SplitFrames(payload []byte) ([]Header, bool) {
	if len(payload) == 0 {
		return nil, false
	}
	var headers []Header
	for off := 0; off < len(payload); {
		h, err := ParseHeader(payload, off)
		if err != nil {
			return nil, false
		}
		if off+h.FrameSize() > len(payload) {
			return nil, false
		}
		headers = append(headers, h)
		off += h.FrameSize()
	}
	return headers, true
}
