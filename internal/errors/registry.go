package errors

import "sort"

// ErrorTemplate defines a registered error type.
type ErrorTemplate struct {
	Category Category
	Message  string
	Detail   string
}

// registry maps error codes to their templates.
var registry = map[string]ErrorTemplate{
	// ============================================
	// Protocol Errors (E060-E079)
	// ============================================

	"E060": {
		Category: CategoryProtocol,
		Message:  "Truncated frame header",
		Detail:   "Fewer than 3 bytes remain where a frame header (2-byte length, 1-byte tag) was expected.",
	},
	"E061": {
		Category: CategoryProtocol,
		Message:  "Truncated field",
		Detail:   "A read or a declared length extends past the end of the message.",
	},
	"E062": {
		Category: CategoryProtocol,
		Message:  "Malformed packed integer",
		Detail:   "A packed integer is longer than 5 bytes or does not fit in 32 bits.",
	},
	"E063": {
		Category: CategoryProtocol,
		Message:  "Unbalanced message framing",
		Detail:   "A message was ended without being started, or the output was finalized with messages still open.",
	},
	"E064": {
		Category: CategoryProtocol,
		Message:  "Frame payload too large",
		Detail:   "A single frame can carry at most 65535 payload bytes.",
	},
	"E065": {
		Category: CategoryProtocol,
		Message:  "Maximum nesting depth exceeded",
		Detail:   "The message nests frames deeper than the configured limit.",
	},
	"E069": {
		Category: CategoryProtocol,
		Message:  "Message decode failed",
		Detail:   "The message could not be decoded.",
	},

	// ============================================
	// Transport Errors (E080-E089)
	// ============================================

	"E080": {
		Category: CategoryTransport,
		Message:  "WebSocket connection failed",
		Detail:   "The websocket connection could not be established or was closed unexpectedly.",
	},
	"E081": {
		Category: CategoryTransport,
		Message:  "Unexpected message type",
		Detail:   "Only binary websocket messages carry msgwire datagrams.",
	},

	// ============================================
	// Configuration Errors (E120-E139)
	// ============================================

	"E120": {
		Category: CategoryConfig,
		Message:  "Configuration file not found",
		Detail:   "No msgwire.json or msgwire.toml was found in the given directory.",
	},
	"E121": {
		Category: CategoryConfig,
		Message:  "Invalid configuration file",
		Detail:   "The configuration file could not be parsed.",
	},
	"E122": {
		Category: CategoryConfig,
		Message:  "Invalid configuration value",
		Detail:   "A configuration value is out of range or malformed.",
	},
	"E123": {
		Category: CategoryConfig,
		Message:  "Unsupported configuration format",
		Detail:   "Configuration files must end in .json or .toml.",
	},

	// ============================================
	// CLI Errors (E140-E159)
	// ============================================

	"E140": {
		Category: CategoryCLI,
		Message:  "Invalid message description",
		Detail:   "The JSON message description could not be parsed or names an unknown field type.",
	},
	"E141": {
		Category: CategoryCLI,
		Message:  "Invalid hex input",
		Detail:   "Input given with --hex must be hexadecimal; whitespace is ignored.",
	},
	"E142": {
		Category: CategoryCLI,
		Message:  "Quarantine store failed",
		Detail:   "A malformed datagram could not be written to the quarantine store.",
	},
	"E143": {
		Category: CategoryCLI,
		Message:  "Server failed",
		Detail:   "The HTTP server stopped with an error.",
	},
}

// GetAllCodes returns all registered error codes in ascending order.
func GetAllCodes() []string {
	codes := make([]string, 0, len(registry))
	for code := range registry {
		codes = append(codes, code)
	}
	sort.Strings(codes)
	return codes
}

// GetTemplate returns the template for an error code.
func GetTemplate(code string) (ErrorTemplate, bool) {
	t, ok := registry[code]
	return t, ok
}
