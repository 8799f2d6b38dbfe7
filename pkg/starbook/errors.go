package starbook

import "errors"

// Error kinds. Every error returned by this package matches exactly one of these
// through errors.Is, except mapper failures which match both ErrParse and ErrFormat.
var (
	// ErrValidation is returned when a command argument is rejected before any network call.
	ErrValidation = errors.New("validation error")
	// ErrTransport is returned when the round trip to the mount fails.
	ErrTransport = errors.New("transport error")
	// ErrFraming is returned when the payload comment is missing or empty.
	ErrFraming = errors.New("framing error")
	// ErrParse is returned when the payload or one of its fields cannot be parsed.
	ErrParse = errors.New("parse error")
	// ErrFormat is returned when a sexagesimal or date value does not match its wire pattern.
	ErrFormat = errors.New("format error")
)

// ProtocolError describes a failure in one step of a mount round trip.
type ProtocolError struct {
	// Kind is one of the package sentinels (ErrValidation, ErrTransport, ...)
	Kind error
	// Op is the step or command that failed (e.g. "extract", "SETSPEED")
	Op string
	// Message is a short human-readable description
	Message string
	// Err is the underlying error, if any
	Err error
}

// Error implements the error interface.
func (e *ProtocolError) Error() string {
	msg := e.Kind.Error()
	if e.Op != "" {
		msg = e.Op + ": " + msg
	}
	if e.Message != "" {
		msg += ": " + e.Message
	}
	if e.Err != nil {
		msg += ": " + e.Err.Error()
	}
	return msg
}

// Unwrap exposes both the kind and the cause to errors.Is and errors.As.
func (e *ProtocolError) Unwrap() []error {
	if e.Err != nil {
		return []error{e.Kind, e.Err}
	}
	return []error{e.Kind}
}

func validationError(op, message string) error {
	return &ProtocolError{Kind: ErrValidation, Op: op, Message: message}
}

func transportError(op string, err error) error {
	return &ProtocolError{Kind: ErrTransport, Op: op, Message: "round trip failed", Err: err}
}

func framingError(message string) error {
	return &ProtocolError{Kind: ErrFraming, Op: "extract", Message: message}
}

func parseError(op, message string, err error) error {
	return &ProtocolError{Kind: ErrParse, Op: op, Message: message, Err: err}
}

func formatError(op, message string) error {
	return &ProtocolError{Kind: ErrFormat, Op: op, Message: message}
}
