package protocol

import (
	"errors"
	"testing"
)

func TestParseHeader(t *testing.T) {
	buf := AppendHeader([]byte{0xEE}, Header{Length: 0x0102, Tag: 9})

	h, err := ParseHeader(buf, 1)
	if err != nil {
		t.Fatalf("ParseHeader() error = %v", err)
	}
	if h.Length != 0x0102 || h.Tag != 9 {
		t.Errorf("ParseHeader() = %v, want len=258 tag=9", h)
	}
	if h.FrameSize() != 0x0102+HeaderSize {
		t.Errorf("FrameSize() = %d, want %d", h.FrameSize(), 0x0102+HeaderSize)
	}
	if got, want := h.String(), "frame(tag=9, len=258)"; got != want {
		t.Errorf("String() = %q, want %q", got, want)
	}

	if _, err := ParseHeader(buf, 2); !errors.Is(err, ErrTruncatedHeader) {
		t.Errorf("ParseHeader(short) error = %v, want %v", err, ErrTruncatedHeader)
	}
}

func TestSplitFrames(t *testing.T) {
	tests := []struct {
		name    string
		payload []byte
		frames  int
		ok      bool
	}{
		{"empty", nil, 0, false},
		{"one_empty_frame", []byte{0, 0, 1}, 1, true},
		{"two_frames", []byte{1, 0, 1, 0xAA, 0, 0, 2}, 2, true},
		{"trailing_byte", []byte{0, 0, 1, 0xFF}, 0, false},
		{"overrun", []byte{5, 0, 1, 0xAA}, 0, false},
		{"short", []byte{0, 0}, 0, false},
	}

	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			headers, ok := SplitFrames(tc.payload)
			if ok != tc.ok {
				t.Fatalf("SplitFrames() ok = %v, want %v", ok, tc.ok)
			}
			if len(headers) != tc.frames {
				t.Errorf("SplitFrames() = %d frames, want %d", len(headers), tc.frames)
			}
		})
	}
}

func TestErrorKind(t *testing.T) {
	tests := []struct {
		err  error
		want string
	}{
		{nil, ""},
		{ErrTruncatedHeader, "truncated_header"},
		{ErrTruncatedField, "truncated_field"},
		{ErrMalformedVarint, "malformed_varint"},
		{ErrUnbalancedFraming, "unbalanced_framing"},
		{ErrPayloadTooLarge, "payload_too_large"},
		{ErrMaxDepthExceeded, "max_depth_exceeded"},
		{errors.New("boom"), "other"},
	}

	for _, tc := range tests {
		if got := ErrorKind(tc.err); got != tc.want {
			t.Errorf("ErrorKind(%v) = %q, want %q", tc.err, got, tc.want)
		}
	}

	wrapped := errors.Join(errors.New("receive"), ErrMalformedVarint)
	if got := ErrorKind(wrapped); got != "malformed_varint" {
		t.Errorf("ErrorKind(wrapped) = %q, want %q", got, "malformed_varint")
	}
}
