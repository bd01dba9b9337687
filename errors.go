package quotesock

import (
	"github.com/pkg/errors"
)

// Kind classifies why an exchange failed.
type Kind int

const (
	// KindUnknown is reported for errors that did not come from this package.
	KindUnknown Kind = iota
	// KindConnection covers dial, write and read failures on the socket.
	KindConnection
	// KindProtocol covers frames that cannot be parsed.
	KindProtocol
	// KindDecompression covers compressed bodies that fail to inflate.
	KindDecompression
	// KindTimeout is reported when a deadline expires before the frame completes.
	KindTimeout
	// KindNotConnected is reported when no session is available.
	KindNotConnected
)

// String returns the lower-case name of k.
func (k Kind) String() string {
	switch k {
	case KindConnection:
		return "connection"
	case KindProtocol:
		return "protocol"
	case KindDecompression:
		return "decompression"
	case KindTimeout:
		return "timeout"
	case KindNotConnected:
		return "not connected"
	default:
		return "unknown"
	}
}

// Protocol errors returned (wrapped in *Error) while decoding a frame.
var (
	// ErrShortHeader is returned when a frame is shorter than the header span.
	ErrShortHeader = errors.New("frame shorter than header")
	// ErrMalformedHeader is returned when the header lacks the expected fields.
	ErrMalformedHeader = errors.New("malformed header")
	// ErrBadBodyLength is returned when the body length field is not usable.
	ErrBadBodyLength = errors.New("bad body length")
	// ErrInvalidText is returned when a decoded frame is not valid UTF-8.
	ErrInvalidText = errors.New("invalid utf-8 text")
	// ErrMessageTooLarge is returned when a frame exceeds the maximum allowed size.
	ErrMessageTooLarge = errors.New("message too large")
)

// ErrNotConnected is returned by SendAndReceive when no default session exists.
var ErrNotConnected = &Error{Kind: KindNotConnected, Op: "send", Err: errors.New("no session")}

// ErrConnectionClosed is returned when operating on a closed session.
var ErrConnectionClosed = errors.New("connection closed")

// Error is the typed failure of a session operation.
type Error struct {
	Kind Kind
	Op   string
	Err  error
}

// Error formats the failure as "op: kind: cause".
func (e *Error) Error() string {
	if e.Err == nil {
		return e.Op + ": " + e.Kind.String()
	}
	return e.Op + ": " + e.Kind.String() + ": " + e.Err.Error()
}

// Unwrap returns the underlying cause.
func (e *Error) Unwrap() error { return e.Err }

// Cause returns the underlying cause for github.com/pkg/errors.Cause.
func (e *Error) Cause() error { return e.Err }

// KindOf reports the Kind carried by err, or KindUnknown.
func KindOf(err error) Kind {
	var e *Error
	if errors.As(err, &e) {
		return e.Kind
	}
	return KindUnknown
}

func newError(kind Kind, op string, err error) *Error {
	return &Error{Kind: kind, Op: op, Err: err}
}

func protocolError(op string, err error, format string, args ...interface{}) *Error {
	return newError(KindProtocol, op, errors.Wrapf(err, format, args...))
}
