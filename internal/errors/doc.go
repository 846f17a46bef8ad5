// Package errors provides structured, actionable error messages for the
// msgwire tools.
//
// Codec errors from pkg/protocol are plain sentinels. When they reach a
// person through the CLI, this package attaches a stable
// code, a plain-language explanation, and optionally the offending bytes
// with the failing offset marked.
//
// # Error Categories
//
//   - protocol: malformed or truncated messages
//   - transport: websocket failures
//   - config: configuration file problems
//   - cli: bad command-line input
//
// # Usage
//
//	err := errors.FromCodec(readErr).
//	    WithInput(datagram, reader.Offset()+reader.Position()).
//	    WithSuggestion("Check the length prefix written by the sender")
//
//	fmt.Println(err.Format())
//	// Output:
//	// ERROR E061: Truncated field
//	//
//	//   at byte 5
//	//
//	//     0000 │ 05 00 01 07 78
//	//          │                ^
//	//
//	//   A read or a declared length extends past the end of the message.
package errors
