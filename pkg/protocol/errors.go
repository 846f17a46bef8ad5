package protocol

import "errors"

// Decoding and framing errors. Compare with errors.Is; callers further up
// wrap these with context.
var (
	// ErrTruncatedHeader is returned when fewer than 3 bytes remain where a
	// frame header is expected.
	ErrTruncatedHeader = errors.New("protocol: truncated frame header")

	// ErrTruncatedField is returned when a read, or a declared frame or field
	// length, extends past the reader's view or the underlying buffer.
	ErrTruncatedField = errors.New("protocol: truncated field")

	// ErrMalformedVarint is returned for a packed integer longer than
	// MaxPackedLen bytes or one that overflows 32 bits.
	ErrMalformedVarint = errors.New("protocol: malformed packed integer")

	// ErrUnbalancedFraming is returned by EndMessage with no open message and
	// by Finalize while messages are still open.
	ErrUnbalancedFraming = errors.New("protocol: unbalanced message framing")

	// ErrPayloadTooLarge is returned when a frame payload would exceed
	// MaxPayloadSize.
	ErrPayloadTooLarge = errors.New("protocol: frame payload too large")

	// ErrMaxDepthExceeded is returned when nested frames exceed the
	// configured depth limit.
	ErrMaxDepthExceeded = errors.New("protocol: maximum nesting depth exceeded")
)

// ErrorKind returns a stable, low-cardinality label for err, suitable for
// metric labels and structured logs. Errors not produced by this package
// map to "other"; a nil error maps to "".
func ErrorKind(err error) string {
	switch {
	case err == nil:
		return ""
	case errors.Is(err, ErrTruncatedHeader):
		return "truncated_header"
	case errors.Is(err, ErrTruncatedField):
		return "truncated_field"
	case errors.Is(err, ErrMalformedVarint):
		return "malformed_varint"
	case errors.Is(err, ErrUnbalancedFraming):
		return "unbalanced_framing"
	case errors.Is(err, ErrPayloadTooLarge):
		return "payload_too_large"
	case errors.Is(err, ErrMaxDepthExceeded):
		return "max_depth_exceeded"
	default:
		return "other"
	}
}
