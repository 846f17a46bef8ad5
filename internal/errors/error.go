package errors

import (
	stderrors "errors"
	"fmt"

	"github.com/vango-dev/msgwire/pkg/protocol"
)

// Category represents the type of error.
type Category string

const (
	CategoryProtocol  Category = "protocol"
	CategoryTransport Category = "transport"
	CategoryConfig    Category = "config"
	CategoryCLI       Category = "cli"
)

// Error is a structured error with an optional view of the input it
// refers to.
type Error struct {
	// Code is a unique error identifier (e.g., "E061").
	Code string

	// Category is the error type.
	Category Category

	// Message is a short description of the error.
	Message string

	// Detail is a longer explanation of the error.
	Detail string

	// Input holds the bytes the error refers to, if any.
	Input []byte

	// Offset is the position in Input where decoding failed, or -1.
	Offset int

	// Suggestion is a hint on how to fix the error.
	Suggestion string

	// Wrapped is the underlying error, if any.
	Wrapped error
}

// Error implements the error interface.
func (e *Error) Error() string {
	msg := e.Message
	if e.Code != "" {
		msg = fmt.Sprintf("%s: %s", e.Code, e.Message)
	}
	if e.Wrapped != nil {
		msg += ": " + e.Wrapped.Error()
	}
	return msg
}

// Unwrap returns the wrapped error for errors.Is/As support.
func (e *Error) Unwrap() error {
	return e.Wrapped
}

// WithInput attaches the input bytes and the offset the error refers to.
// Pass offset -1 when no single position is at fault.
func (e *Error) WithInput(input []byte, offset int) *Error {
	e.Input = input
	e.Offset = offset
	return e
}

// WithSuggestion adds a fix suggestion to the error.
func (e *Error) WithSuggestion(s string) *Error {
	e.Suggestion = s
	return e
}

// WithDetail replaces the detailed explanation.
func (e *Error) WithDetail(d string) *Error {
	e.Detail = d
	return e
}

// Wrap wraps another error.
func (e *Error) Wrap(err error) *Error {
	e.Wrapped = err
	return e
}

// New creates an Error from a registered error code.
func New(code string) *Error {
	template, ok := registry[code]
	if !ok {
		return &Error{
			Code:    code,
			Message: "Unknown error",
			Offset:  -1,
		}
	}
	return &Error{
		Code:     code,
		Category: template.Category,
		Message:  template.Message,
		Detail:   template.Detail,
		Offset:   -1,
	}
}

// Newf creates a new Error with a formatted message (no code).
func Newf(category Category, format string, args ...any) *Error {
	return &Error{
		Category: category,
		Message:  fmt.Sprintf(format, args...),
		Offset:   -1,
	}
}

// FromError wraps a standard error in an Error with the given code.
// An *Error anywhere in err's chain is returned as is.
func FromError(err error, code string) *Error {
	if err == nil {
		return nil
	}
	var e *Error
	if stderrors.As(err, &e) {
		return e
	}
	return New(code).Wrap(err)
}

// codecCodes maps protocol error kinds to registry codes.
var codecCodes = map[string]string{
	"truncated_header":   "E060",
	"truncated_field":    "E061",
	"malformed_varint":   "E062",
	"unbalanced_framing": "E063",
	"payload_too_large":  "E064",
	"max_depth_exceeded": "E065",
}

// FromCodec wraps an error returned by pkg/protocol, choosing the code from
// the protocol error it carries. Other errors get the generic E069.
func FromCodec(err error) *Error {
	if err == nil {
		return nil
	}
	code, ok := codecCodes[protocol.ErrorKind(err)]
	if !ok {
		code = "E069"
	}
	return FromError(err, code)
}
