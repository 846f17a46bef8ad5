package protocol

// MaxPackedLen is the maximum number of bytes a packed 32-bit integer can occupy.
const MaxPackedLen = 5

// PutPacked encodes v into buf and returns the number of bytes written.
// buf must have at least PackedLen(v) bytes available.
func PutPacked(buf []byte, v uint32) int {
	i := 0
	for v >= 0x80 {
		buf[i] = byte(v) | 0x80
		v >>= 7
		i++
	}
	buf[i] = byte(v)
	return i + 1
}

// AppendPacked appends the packed encoding of v to dst.
func AppendPacked(dst []byte, v uint32) []byte {
	for v >= 0x80 {
		dst = append(dst, byte(v)|0x80)
		v >>= 7
	}
	return append(dst, byte(v))
}

// DecodePacked decodes a packed integer from the start of buf.
// Returns the value and the number of bytes consumed.
//
// A sequence that still has the continuation bit set after MaxPackedLen
// bytes, or whose final byte carries bits above bit 31, is malformed.
// A sequence cut short by the end of buf is truncated.
func DecodePacked(buf []byte) (uint32, int, error) {
	var v uint32
	var shift uint

	for i, b := range buf {
		if i == MaxPackedLen-1 {
			// Only 4 bits of the fifth byte fit in a uint32, and it must
			// be the last one.
			if b > 0x0F {
				return 0, 0, ErrMalformedVarint
			}
			return v | uint32(b)<<shift, i + 1, nil
		}
		v |= uint32(b&0x7F) << shift
		if b < 0x80 {
			return v, i + 1, nil
		}
		shift += 7
	}
	return 0, 0, ErrTruncatedField
}

// PackedLen returns the number of bytes needed to encode v.
func PackedLen(v uint32) int {
	n := 1
	for v >= 0x80 {
		n++
		v >>= 7
	}
	return n
}
