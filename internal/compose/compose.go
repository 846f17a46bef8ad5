// Package compose builds messages from JSON descriptions.
//
// A description names a tag and an ordered list of typed fields:
//
//	{"tag": 1, "fields": [
//	    {"type": "int32", "value": 5},
//	    {"type": "string", "value": "hi"},
//	    {"type": "message", "message": {"tag": 2, "fields": []}}
//	]}
//
// Field types are bool, byte, int8, uint16, int16, uint32, int32, uint64,
// int64, float32, float64, packed, packedInt, string, bytes (base64) and
// message. A top-level description may instead hold a "messages" list, which
// encodes several top-level frames into one datagram.
package compose

import (
	"bytes"
	"encoding/base64"
	"encoding/json"
	"errors"
	"fmt"
	"math"
	"os"

	"github.com/vango-dev/msgwire/pkg/protocol"
)

// ErrInvalid is wrapped by every description error.
var ErrInvalid = errors.New("compose: invalid message description")

// Message describes one frame.
type Message struct {
	Tag    int     `json:"tag"`
	Fields []Field `json:"fields"`
}

// Field describes one value inside a message.
type Field struct {
	Type    string          `json:"type"`
	Value   json.RawMessage `json:"value,omitempty"`
	Message *Message        `json:"message,omitempty"`
}

// Datagram is a sequence of top-level messages.
type Datagram struct {
	Messages []Message `json:"messages"`
}

// Parse decodes a description. Both a single message object and an object
// with a "messages" list are accepted.
func Parse(data []byte) (*Datagram, error) {
	var probe map[string]json.RawMessage
	if err := json.Unmarshal(data, &probe); err != nil {
		return nil, fmt.Errorf("%w: %v", ErrInvalid, err)
	}

	dec := func(v any) error {
		d := json.NewDecoder(bytes.NewReader(data))
		d.DisallowUnknownFields()
		return d.Decode(v)
	}

	if _, ok := probe["messages"]; ok {
		var dg Datagram
		if err := dec(&dg); err != nil {
			return nil, fmt.Errorf("%w: %v", ErrInvalid, err)
		}
		if len(dg.Messages) == 0 {
			return nil, fmt.Errorf("%w: empty messages list", ErrInvalid)
		}
		return &dg, nil
	}

	var m Message
	if err := dec(&m); err != nil {
		return nil, fmt.Errorf("%w: %v", ErrInvalid, err)
	}
	return &Datagram{Messages: []Message{m}}, nil
}

// ParseFile reads and parses a description file.
func ParseFile(path string) (*Datagram, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, err
	}
	return Parse(data)
}

// Encode writes every message of d into w as top-level frames.
func (d *Datagram) Encode(w *protocol.Writer) error {
	for i := range d.Messages {
		if err := Encode(&d.Messages[i], w); err != nil {
			return err
		}
	}
	return nil
}

// Encode writes m into w as one frame. On error w may hold a partial
// message; callers should discard it.
func Encode(m *Message, w *protocol.Writer) error {
	return encode(m, w, "$")
}

func encode(m *Message, w *protocol.Writer, path string) error {
	if m.Tag < 0 || m.Tag > math.MaxUint8 {
		return fmt.Errorf("%w: %s.tag %d out of range", ErrInvalid, path, m.Tag)
	}
	w.StartMessage(byte(m.Tag))
	for i := range m.Fields {
		fp := fmt.Sprintf("%s.fields[%d]", path, i)
		if err := writeField(&m.Fields[i], w, fp); err != nil {
			return err
		}
	}
	if err := w.EndMessage(); err != nil {
		return fmt.Errorf("%s: %w", path, err)
	}
	return nil
}

func writeField(f *Field, w *protocol.Writer, path string) error {
	if f.Type == "message" {
		if f.Message == nil {
			return fmt.Errorf("%w: %s: message field without \"message\"", ErrInvalid, path)
		}
		return encode(f.Message, w, path+".message")
	}
	if len(f.Value) == 0 {
		return fmt.Errorf("%w: %s: missing value", ErrInvalid, path)
	}

	bad := func(err error) error {
		return fmt.Errorf("%w: %s (%s): %v", ErrInvalid, path, f.Type, err)
	}

	switch f.Type {
	case "bool":
		var v bool
		if err := json.Unmarshal(f.Value, &v); err != nil {
			return bad(err)
		}
		w.WriteBool(v)
	case "string":
		var v string
		if err := json.Unmarshal(f.Value, &v); err != nil {
			return bad(err)
		}
		w.WriteString(v)
	case "bytes":
		var s string
		if err := json.Unmarshal(f.Value, &s); err != nil {
			return bad(err)
		}
		v, err := base64.StdEncoding.DecodeString(s)
		if err != nil {
			return bad(err)
		}
		w.WriteByteArray(v)
	case "float32":
		var v float64
		if err := json.Unmarshal(f.Value, &v); err != nil {
			return bad(err)
		}
		w.WriteFloat32(float32(v))
	case "float64":
		var v float64
		if err := json.Unmarshal(f.Value, &v); err != nil {
			return bad(err)
		}
		w.WriteFloat64(v)
	case "uint64":
		var v uint64
		if err := json.Unmarshal(f.Value, &v); err != nil {
			return bad(err)
		}
		w.WriteUint64(v)
	case "int64":
		var v int64
		if err := json.Unmarshal(f.Value, &v); err != nil {
			return bad(err)
		}
		w.WriteInt64(v)
	default:
		return writeInteger(f, w, path)
	}
	return nil
}

// integer types up to 32 bits, with their ranges.
var integers = map[string]struct{ min, max int64 }{
	"byte":      {0, math.MaxUint8},
	"int8":      {math.MinInt8, math.MaxInt8},
	"uint16":    {0, math.MaxUint16},
	"int16":     {math.MinInt16, math.MaxInt16},
	"uint32":    {0, math.MaxUint32},
	"int32":     {math.MinInt32, math.MaxInt32},
	"packed":    {0, math.MaxUint32},
	"packedInt": {math.MinInt32, math.MaxInt32},
}

func writeInteger(f *Field, w *protocol.Writer, path string) error {
	r, ok := integers[f.Type]
	if !ok {
		return fmt.Errorf("%w: %s: unknown type %q", ErrInvalid, path, f.Type)
	}
	var v int64
	if err := json.Unmarshal(f.Value, &v); err != nil {
		return fmt.Errorf("%w: %s (%s): %v", ErrInvalid, path, f.Type, err)
	}
	if v < r.min || v > r.max {
		return fmt.Errorf("%w: %s: %d out of range for %s", ErrInvalid, path, v, f.Type)
	}

	switch f.Type {
	case "byte":
		w.WriteByte(byte(v))
	case "int8":
		w.WriteInt8(int8(v))
	case "uint16":
		w.WriteUint16(uint16(v))
	case "int16":
		w.WriteInt16(int16(v))
	case "uint32":
		w.WriteUint32(uint32(v))
	case "int32":
		w.WriteInt32(int32(v))
	case "packed":
		w.WritePackedUint32(uint32(v))
	case "packedInt":
		w.WritePackedInt32(int32(v))
	}
	return nil
}
