package protocol

import (
	"encoding/binary"
	"math"
)

// DefaultWriterCapacity is the initial buffer capacity of a new Writer.
const DefaultWriterCapacity = 256

// Writer builds one or more messages in a buffer it owns.
//
// StartMessage reserves a header and pushes it on a stack; EndMessage pops
// it and back-patches the payload length. Fixed-width values are written
// little-endian and mirror the Reader's read methods.
//
// A Writer is not safe for concurrent use.
type Writer struct {
	buf   []byte
	stack []int // offsets of open frame headers

	// Extent of the most recently closed top-level frame, and how many
	// top-level frames have been closed since the last Reset.
	topStart, topEnd, topFrames int

	recycled bool
}

// NewWriter returns a pooled writer with at least DefaultWriterCapacity bytes
// of buffer capacity.
func NewWriter() *Writer {
	return GetWriter(DefaultWriterCapacity)
}

// GetWriter returns a pooled writer with at least capacity bytes of buffer
// capacity.
func GetWriter(capacity int) *Writer {
	w := writers.Get()
	w.recycled = false
	if cap(w.buf) < capacity {
		w.buf = make([]byte, 0, capacity)
	}
	return w
}

// Reset discards all written bytes and open messages, keeping the buffer.
func (w *Writer) Reset() {
	w.buf = w.buf[:0]
	w.stack = w.stack[:0]
	w.topStart, w.topEnd, w.topFrames = 0, 0, 0
}

// Len returns the number of bytes written.
func (w *Writer) Len() int { return len(w.buf) }

// Position returns the offset at which the next byte will be written.
func (w *Writer) Position() int { return len(w.buf) }

// Depth returns the number of open messages.
func (w *Writer) Depth() int { return len(w.stack) }

// Bytes returns the written bytes. The slice aliases the writer's buffer and
// is only valid until the next write, Reset or Recycle. Length fields of
// open messages are still zero.
func (w *Writer) Bytes() []byte { return w.buf }

// StartMessage opens a nested message with the given tag. Its length is
// filled in by the matching EndMessage.
func (w *Writer) StartMessage(tag byte) {
	w.stack = append(w.stack, len(w.buf))
	w.buf = AppendHeader(w.buf, Header{Tag: tag})
}

// EndMessage closes the innermost open message and back-patches its length.
// It fails with ErrUnbalancedFraming when no message is open, and with
// ErrPayloadTooLarge when the payload exceeds MaxPayloadSize; in that case
// the message stays open so it can be cancelled.
func (w *Writer) EndMessage() error {
	n := len(w.stack)
	if n == 0 {
		return ErrUnbalancedFraming
	}
	start := w.stack[n-1]
	size := len(w.buf) - start - HeaderSize
	if size > MaxPayloadSize {
		return ErrPayloadTooLarge
	}
	putLength(w.buf, start, uint16(size))
	w.stack = w.stack[:n-1]

	if n == 1 {
		w.topStart, w.topEnd = start, len(w.buf)
		w.topFrames++
	}
	return nil
}

// CancelMessage discards the innermost open message together with
// everything written since it was started.
func (w *Writer) CancelMessage() error {
	n := len(w.stack)
	if n == 0 {
		return ErrUnbalancedFraming
	}
	w.buf = w.buf[:w.stack[n-1]]
	w.stack = w.stack[:n-1]
	return nil
}

// WriteBool writes true as 1 and false as 0.
func (w *Writer) WriteBool(v bool) {
	if v {
		w.buf = append(w.buf, 1)
	} else {
		w.buf = append(w.buf, 0)
	}
}

// WriteByte writes a single byte.
// It does not return an error and so does not implement io.ByteWriter.
func (w *Writer) WriteByte(b byte) {
	w.buf = append(w.buf, b)
}

// WriteInt8 writes a signed byte.
func (w *Writer) WriteInt8(v int8) {
	w.buf = append(w.buf, byte(v))
}

// WriteUint16 writes a little-endian uint16.
func (w *Writer) WriteUint16(v uint16) {
	w.buf = binary.LittleEndian.AppendUint16(w.buf, v)
}

// WriteInt16 writes a little-endian int16.
func (w *Writer) WriteInt16(v int16) {
	w.WriteUint16(uint16(v))
}

// WriteUint32 writes a little-endian uint32.
func (w *Writer) WriteUint32(v uint32) {
	w.buf = binary.LittleEndian.AppendUint32(w.buf, v)
}

// WriteInt32 writes a little-endian int32.
func (w *Writer) WriteInt32(v int32) {
	w.WriteUint32(uint32(v))
}

// WriteUint64 writes a little-endian uint64.
func (w *Writer) WriteUint64(v uint64) {
	w.buf = binary.LittleEndian.AppendUint64(w.buf, v)
}

// WriteInt64 writes a little-endian int64.
func (w *Writer) WriteInt64(v int64) {
	w.WriteUint64(uint64(v))
}

// WriteFloat32 writes an IEEE 754 single-precision float.
func (w *Writer) WriteFloat32(v float32) {
	w.WriteUint32(math.Float32bits(v))
}

// WriteFloat64 writes an IEEE 754 double-precision float.
func (w *Writer) WriteFloat64(v float64) {
	w.WriteUint64(math.Float64bits(v))
}

// WritePackedUint32 writes v as a packed integer.
func (w *Writer) WritePackedUint32(v uint32) {
	w.buf = AppendPacked(w.buf, v)
}

// WritePackedInt32 writes v as a packed integer. Negative values occupy
// MaxPackedLen bytes.
func (w *Writer) WritePackedInt32(v int32) {
	w.buf = AppendPacked(w.buf, uint32(v))
}

// WriteString writes a packed byte length followed by the string bytes.
func (w *Writer) WriteString(s string) {
	w.buf = AppendPacked(w.buf, uint32(len(s)))
	w.buf = append(w.buf, s...)
}

// WriteByteArray writes a packed length followed by b.
func (w *Writer) WriteByteArray(b []byte) {
	w.buf = AppendPacked(w.buf, uint32(len(b)))
	w.buf = append(w.buf, b...)
}

// WriteBytes writes b with no length prefix.
func (w *Writer) WriteBytes(b []byte) {
	w.buf = append(w.buf, b...)
}

// Finalize returns a copy of the written bytes. It fails with
// ErrUnbalancedFraming while any message is open.
//
// With includeHeader false, and when the buffer holds exactly one top-level
// frame, the frame's 3-byte header is omitted. Otherwise the bytes are
// returned unchanged.
func (w *Writer) Finalize(includeHeader bool) ([]byte, error) {
	if len(w.stack) > 0 {
		return nil, ErrUnbalancedFraming
	}
	src := w.buf
	if !includeHeader && w.singleFrame() {
		src = src[HeaderSize:]
	}
	out := make([]byte, len(src))
	copy(out, src)
	return out, nil
}

// singleFrame reports whether the buffer is exactly one closed top-level frame.
func (w *Writer) singleFrame() bool {
	return w.topFrames == 1 && w.topStart == 0 && w.topEnd == len(w.buf)
}

// Recycle returns the writer to the pool. Calling Recycle more than once is
// a no-op.
func (w *Writer) Recycle() {
	if w.recycled {
		return
	}
	w.recycled = true
	writers.Put(w)
}
