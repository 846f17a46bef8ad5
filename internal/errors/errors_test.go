package errors

import (
	"bytes"
	"encoding/json"
	stderrors "errors"
	"fmt"
	"strings"
	"testing"

	"github.com/vango-dev/msgwire/pkg/protocol"
)

func TestNew(t *testing.T) {
	tests := []struct {
		name    string
		code    string
		wantMsg string
		wantCat Category
	}{
		{
			name:    "protocol error",
			code:    "E061",
			wantMsg: "Truncated field",
			wantCat: CategoryProtocol,
		},
		{
			name:    "config error",
			code:    "E122",
			wantMsg: "Invalid configuration value",
			wantCat: CategoryConfig,
		},
		{
			name:    "unknown error code",
			code:    "E999",
			wantMsg: "Unknown error",
			wantCat: "",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			err := New(tt.code)
			if err.Message != tt.wantMsg {
				t.Errorf("Message = %q, want %q", err.Message, tt.wantMsg)
			}
			if err.Category != tt.wantCat {
				t.Errorf("Category = %q, want %q", err.Category, tt.wantCat)
			}
			if err.Code != tt.code {
				t.Errorf("Code = %q, want %q", err.Code, tt.code)
			}
			if err.Offset != -1 {
				t.Errorf("Offset = %d, want -1", err.Offset)
			}
		})
	}
}

func TestNewf(t *testing.T) {
	err := Newf(CategoryCLI, "file %q not found", "capture.bin")
	if err.Message != `file "capture.bin" not found` {
		t.Errorf("Message = %q", err.Message)
	}
	if err.Code != "" {
		t.Errorf("Code = %q, want empty", err.Code)
	}
	if err.Error() != err.Message {
		t.Errorf("Error() = %q, want %q", err.Error(), err.Message)
	}
}

func TestFromCodec(t *testing.T) {
	tests := []struct {
		err  error
		code string
	}{
		{protocol.ErrTruncatedHeader, "E060"},
		{protocol.ErrTruncatedField, "E061"},
		{protocol.ErrMalformedVarint, "E062"},
		{protocol.ErrUnbalancedFraming, "E063"},
		{protocol.ErrPayloadTooLarge, "E064"},
		{protocol.ErrMaxDepthExceeded, "E065"},
		{fmt.Errorf("receive: %w", protocol.ErrMalformedVarint), "E062"},
		{stderrors.New("boom"), "E069"},
	}

	for _, tt := range tests {
		t.Run(tt.code, func(t *testing.T) {
			e := FromCodec(tt.err)
			if e.Code != tt.code {
				t.Errorf("FromCodec(%v).Code = %q, want %q", tt.err, e.Code, tt.code)
			}
			if !stderrors.Is(e, tt.err) {
				t.Errorf("errors.Is(FromCodec(err), err) = false")
			}
		})
	}

	if FromCodec(nil) != nil {
		t.Error("FromCodec(nil) != nil")
	}
}

func TestFromErrorKeepsExisting(t *testing.T) {
	orig := New("E122").WithDetail("pool.maxIdleReaders must be >= 0")
	wrapped := fmt.Errorf("load: %w", orig)

	if got := FromError(wrapped, "E121"); got != orig {
		t.Errorf("FromError() = %v, want the original *Error", got)
	}
}

func TestFormat(t *testing.T) {
	DisableColors()
	defer EnableColors()

	input := []byte{0x05, 0x00, 0x01, 0x07, 0x78}
	err := FromCodec(protocol.ErrTruncatedField).
		WithInput(input, 4).
		WithSuggestion("Check the sender")

	out := err.Format()
	for _, want := range []string{
		"ERROR E061: Truncated field",
		"at byte 4",
		"0000 │ 05 00 01 07 78",
		"│             ^",
		"Hint: Check the sender",
		"extends past the end",
	} {
		if !strings.Contains(out, want) {
			t.Errorf("Format() missing %q in:\n%s", want, out)
		}
	}
}

func TestFormatOffsetPastEnd(t *testing.T) {
	DisableColors()
	defer EnableColors()

	input := bytes.Repeat([]byte{0xAA}, 16)
	out := New("E060").WithInput(input, 16).Format()
	if !strings.Contains(out, "0010 │ \n") {
		t.Errorf("Format() should show an empty row for an offset past the end:\n%s", out)
	}
}

func TestFormatCompact(t *testing.T) {
	err := New("E062").WithInput(nil, 3)
	if got, want := err.FormatCompact(), "E062: Malformed packed integer (at byte 3)"; got != want {
		t.Errorf("FormatCompact() = %q, want %q", got, want)
	}
}

func TestFormatJSON(t *testing.T) {
	err := New("E061").WithInput([]byte{1}, 0).Wrap(protocol.ErrTruncatedField)

	var decoded map[string]any
	if jerr := json.Unmarshal([]byte(err.FormatJSON()), &decoded); jerr != nil {
		t.Fatalf("FormatJSON() is not valid JSON: %v", jerr)
	}
	if decoded["code"] != "E061" {
		t.Errorf("code = %v, want E061", decoded["code"])
	}
	if decoded["offset"] != float64(0) {
		t.Errorf("offset = %v, want 0", decoded["offset"])
	}
	if decoded["cause"] != protocol.ErrTruncatedField.Error() {
		t.Errorf("cause = %v", decoded["cause"])
	}
}

func TestFprint(t *testing.T) {
	DisableColors()
	defer EnableColors()

	var buf bytes.Buffer
	Fprint(&buf, New("E120"))
	if !strings.Contains(buf.String(), "ERROR E120: Configuration file not found") {
		t.Errorf("Fprint(*Error) = %q", buf.String())
	}

	buf.Reset()
	Fprint(&buf, stderrors.New("plain"))
	if !strings.Contains(buf.String(), "ERROR: plain") {
		t.Errorf("Fprint(error) = %q", buf.String())
	}
}

func TestGetAllCodesSorted(t *testing.T) {
	codes := GetAllCodes()
	for i := 1; i < len(codes); i++ {
		if codes[i-1] >= codes[i] {
			t.Fatalf("codes not sorted: %v", codes)
		}
	}
	for _, code := range codes {
		tmpl, ok := GetTemplate(code)
		if !ok || tmpl.Message == "" || tmpl.Category == "" {
			t.Errorf("template %s incomplete: %+v", code, tmpl)
		}
	}
}
