// Package protocol implements the msgwire binary message codec.
//
// A message is a length-framed, tagged byte sequence. Messages nest: the
// payload of a frame may itself contain frames, to any depth, and the
// nesting is purely positional.
//
// # Wire Format
//
// Every frame starts with a 3-byte header:
//
//	┌──────────────────────────────┬─────────┬──────────────────────┐
//	│ Payload Length               │ Tag     │ Payload              │
//	│ (2 bytes, little-endian)     │ (1 byte)│ (Length bytes)       │
//	└──────────────────────────────┴─────────┴──────────────────────┘
//
// The length excludes the header itself, so a frame occupies Length+3 bytes
// and a single frame carries at most 65535 payload bytes.
//
// # Encoding
//
//   - Fixed width: bool, byte, int8, (u)int16, (u)int32, (u)int64, float32,
//     float64, all little-endian.
//   - Packed: 32-bit integers, 7 bits per byte, low bits first, high bit set
//     on every byte but the last. Signed values are reinterpreted as
//     unsigned, so negative numbers always take 5 bytes.
//   - String and byte array: packed length followed by the raw bytes.
//
// # Readers and Writers
//
// A Reader is a bounded view over a buffer it does not own. Every read is
// checked against both the view's length and the underlying buffer, so a
// corrupted length prefix can never expose bytes outside the frame.
//
// A Writer owns its buffer and keeps a stack of open frames whose length
// fields are back-patched when EndMessage is called.
//
// Readers and writers are pooled. Call Recycle when done with one; do not
// use it afterwards.
package protocol
