package protocol

import (
	"encoding/binary"
	"math"
)

// Reader is a bounded, read-only view over a message inside a byte buffer.
//
// The view starts at Offset and is Len bytes long; reads advance Position.
// The buffer is not owned: a Reader never writes to it, and many readers may
// view overlapping regions of the same buffer. The caller must keep the
// buffer unchanged until every reader over it has been recycled, unless the
// reader was produced by Clone or CopyIntoNewParent.
//
// A Reader is not safe for concurrent use.
type Reader struct {
	buf      []byte
	offset   int
	length   int
	pos      int
	tag      byte
	recycled bool
}

// OpenReader parses the frame header at buf[offset:] and returns a reader
// over its payload. It fails with ErrTruncatedHeader when fewer than 3 bytes
// are available at offset, and with ErrTruncatedField when the declared
// payload runs past the end of buf.
func OpenReader(buf []byte, offset int) (*Reader, error) {
	h, err := ParseHeader(buf, offset)
	if err != nil {
		return nil, err
	}
	start := offset + HeaderSize
	if start+int(h.Length) > len(buf) {
		return nil, ErrTruncatedField
	}
	return newReader(buf, start, int(h.Length), h.Tag), nil
}

// OpenReaderLength returns a reader over buf[offset:offset+length] without
// parsing a header. Use it when the extent is known from elsewhere, such as
// a datagram boundary. The tag is 0.
func OpenReaderLength(buf []byte, offset, length int) (*Reader, error) {
	return OpenReaderTagged(buf, offset, length, 0)
}

// OpenReaderTagged is like OpenReaderLength but assigns tag.
func OpenReaderTagged(buf []byte, offset, length int, tag byte) (*Reader, error) {
	if offset < 0 || length < 0 || offset > len(buf)-length {
		return nil, ErrTruncatedField
	}
	return newReader(buf, offset, length, tag), nil
}

func newReader(buf []byte, offset, length int, tag byte) *Reader {
	r := readers.Get()
	r.buf = buf
	r.offset = offset
	r.length = length
	r.pos = 0
	r.tag = tag
	r.recycled = false
	return r
}

// Tag returns the message tag. It is fixed when the reader is opened.
func (r *Reader) Tag() byte { return r.tag }

// Len returns the logical length of the view in bytes.
func (r *Reader) Len() int { return r.length }

// Offset returns the position of the view's first byte in the underlying buffer.
func (r *Reader) Offset() int { return r.offset }

// Position returns the read head, relative to Offset.
func (r *Reader) Position() int { return r.pos }

// Remaining returns the number of unread bytes in the view.
func (r *Reader) Remaining() int { return r.length - r.pos }

// SetLength changes the logical length of the view. Shrinking below the
// read head is rejected. Growing is allowed, but reads remain bounded by
// the underlying buffer.
func (r *Reader) SetLength(n int) error {
	if n < r.pos {
		return ErrTruncatedField
	}
	r.length = n
	return nil
}

// Payload returns the bytes of the whole view, independent of the read
// head. The slice aliases the underlying buffer; do not modify it.
func (r *Reader) Payload() []byte {
	end := r.offset + r.length
	if end > len(r.buf) {
		end = len(r.buf)
	}
	if r.offset > end {
		return nil
	}
	return r.buf[r.offset:end:end]
}

// unread returns the bytes between the read head and the end of the view,
// clipped to the underlying buffer.
func (r *Reader) unread() []byte {
	start := r.offset + r.pos
	end := r.offset + r.length
	if end > len(r.buf) {
		end = len(r.buf)
	}
	if start > end {
		return nil
	}
	return r.buf[start:end]
}

// take returns the next n bytes and advances the read head.
func (r *Reader) take(n int) ([]byte, error) {
	if n < 0 || n > r.length-r.pos {
		return nil, ErrTruncatedField
	}
	start := r.offset + r.pos
	if start+n > len(r.buf) {
		return nil, ErrTruncatedField
	}
	r.pos += n
	return r.buf[start : start+n], nil
}

// ReadMessage decodes the frame at the read head and returns a reader over
// its payload, sharing this reader's buffer. The read head moves past the
// whole child frame. On error the read head does not move.
func (r *Reader) ReadMessage() (*Reader, error) {
	if r.length-r.pos < HeaderSize {
		return nil, ErrTruncatedHeader
	}
	h, err := ParseHeader(r.buf, r.offset+r.pos)
	if err != nil {
		return nil, err
	}
	if h.FrameSize() > r.length-r.pos {
		return nil, ErrTruncatedField
	}
	start := r.offset + r.pos + HeaderSize
	if start+int(h.Length) > len(r.buf) {
		return nil, ErrTruncatedField
	}
	r.pos += h.FrameSize()
	return newReader(r.buf, start, int(h.Length), h.Tag), nil
}

// Skip advances the read head by n bytes.
func (r *Reader) Skip(n int) error {
	_, err := r.take(n)
	return err
}

// ReadBool reads one byte; any non-zero value is true.
func (r *Reader) ReadBool() (bool, error) {
	b, err := r.ReadByte()
	return b != 0, err
}

// ReadByte reads a single byte.
func (r *Reader) ReadByte() (byte, error) {
	b, err := r.take(1)
	if err != nil {
		return 0, err
	}
	return b[0], nil
}

// ReadInt8 reads a signed byte.
func (r *Reader) ReadInt8() (int8, error) {
	b, err := r.ReadByte()
	return int8(b), err
}

// ReadUint16 reads a little-endian uint16.
func (r *Reader) ReadUint16() (uint16, error) {
	b, err := r.take(2)
	if err != nil {
		return 0, err
	}
	return binary.LittleEndian.Uint16(b), nil
}

// ReadInt16 reads a little-endian int16.
func (r *Reader) ReadInt16() (int16, error) {
	v, err := r.ReadUint16()
	return int16(v), err
}

// ReadUint32 reads a little-endian uint32.
func (r *Reader) ReadUint32() (uint32, error) {
	b, err := r.take(4)
	if err != nil {
		return 0, err
	}
	return binary.LittleEndian.Uint32(b), nil
}

// ReadInt32 reads a little-endian int32.
func (r *Reader) ReadInt32() (int32, error) {
	v, err := r.ReadUint32()
	return int32(v), err
}

// ReadUint64 reads a little-endian uint64.
func (r *Reader) ReadUint64() (uint64, error) {
	b, err := r.take(8)
	if err != nil {
		return 0, err
	}
	return binary.LittleEndian.Uint64(b), nil
}

// ReadInt64 reads a little-endian int64.
func (r *Reader) ReadInt64() (int64, error) {
	v, err := r.ReadUint64()
	return int64(v), err
}

// ReadFloat32 reads an IEEE 754 single-precision float.
func (r *Reader) ReadFloat32() (float32, error) {
	v, err := r.ReadUint32()
	return math.Float32frombits(v), err
}

// ReadFloat64 reads an IEEE 754 double-precision float.
func (r *Reader) ReadFloat64() (float64, error) {
	v, err := r.ReadUint64()
	return math.Float64frombits(v), err
}

// ReadPackedUint32 reads a packed unsigned integer.
func (r *Reader) ReadPackedUint32() (uint32, error) {
	v, n, err := DecodePacked(r.unread())
	if err != nil {
		return 0, err
	}
	r.pos += n
	return v, nil
}

// ReadPackedInt32 reads a packed integer and reinterprets it as signed.
func (r *Reader) ReadPackedInt32() (int32, error) {
	v, err := r.ReadPackedUint32()
	return int32(v), err
}

// readPrefixed reads a packed length followed by that many bytes. The
// length is validated against the view before the read head moves.
func (r *Reader) readPrefixed() ([]byte, error) {
	win := r.unread()
	n, used, err := DecodePacked(win)
	if err != nil {
		return nil, err
	}
	if uint64(n) > uint64(len(win)-used) {
		return nil, ErrTruncatedField
	}
	r.pos += used + int(n)
	return win[used : used+int(n)], nil
}

// ReadString reads a length-prefixed string. The bytes are copied; no
// UTF-8 validation is performed.
func (r *Reader) ReadString() (string, error) {
	b, err := r.readPrefixed()
	if err != nil {
		return "", err
	}
	return string(b), nil
}

// ReadByteArray reads a length-prefixed byte array into a new slice.
func (r *Reader) ReadByteArray() ([]byte, error) {
	b, err := r.readPrefixed()
	if err != nil {
		return nil, err
	}
	out := make([]byte, len(b))
	copy(out, b)
	return out, nil
}

// ReadBytes reads exactly n raw bytes into a new slice.
func (r *Reader) ReadBytes(n int) ([]byte, error) {
	b, err := r.take(n)
	if err != nil {
		return nil, err
	}
	out := make([]byte, n)
	copy(out, b)
	return out, nil
}

// Clone returns a reader over a private copy of this reader's view, with
// the same tag, length and read head. The clone stays valid after the
// original buffer is reused.
func (r *Reader) Clone() (*Reader, error) {
	if r.offset+r.length > len(r.buf) {
		return nil, ErrTruncatedField
	}
	buf := make([]byte, r.length)
	copy(buf, r.buf[r.offset:r.offset+r.length])
	c := newReader(buf, 0, r.length, r.tag)
	c.pos = r.pos
	return c, nil
}

// CopyIntoNewParent promotes child to a standalone message. The result owns
// a private copy of child's complete frame, header included, and views it
// with tag 0, so a single ReadMessage on the result yields the child again.
// The result does not depend on the buffer child was read from.
func CopyIntoNewParent(child *Reader) (*Reader, error) {
	if child.length > MaxPayloadSize {
		return nil, ErrPayloadTooLarge
	}
	if child.offset+child.length > len(child.buf) {
		return nil, ErrTruncatedField
	}
	buf := make([]byte, 0, HeaderSize+child.length)
	buf = AppendHeader(buf, Header{Length: uint16(child.length), Tag: child.tag})
	buf = append(buf, child.buf[child.offset:child.offset+child.length]...)
	return newReader(buf, 0, len(buf), 0), nil
}

// Recycle resets the reader and returns it to the pool. The reference to
// the underlying buffer is dropped. Calling Recycle more than once is a
// no-op; using the reader after Recycle is not.
func (r *Reader) Recycle() {
	if r.recycled {
		return
	}
	r.recycled = true
	readers.Put(r)
}
