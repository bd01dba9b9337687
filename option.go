package quotesock

import (
	"time"
)

// options holds the configuration for a session.
type options struct {
	logger   Logger
	protocol Protocol

	dialTimeout   time.Duration // bound on establishing the TCP connection
	readTimeout   time.Duration // bound on one exchange when ctx has no deadline
	maxReadLength int           // maximum size of a single response frame
}

// Option is a function that configures session options.
type Option func(*options)

// ProtocolOption returns an Option that sets the header layout and framing.
// If not set, DefaultProtocol is used.
func ProtocolOption(p Protocol) Option {
	return func(o *options) {
		o.protocol = p
	}
}

// DialTimeoutOption returns an Option that bounds connection establishment.
func DialTimeoutOption(timeout time.Duration) Option {
	return func(o *options) {
		o.dialTimeout = timeout
	}
}

// ReadTimeoutOption returns an Option that bounds a whole exchange.
// A deadline on the context passed to Exchange takes precedence when it is earlier.
func ReadTimeoutOption(timeout time.Duration) Option {
	return func(o *options) {
		o.readTimeout = timeout
	}
}

// MessageMaxSize returns an Option that sets the maximum response frame size.
// Frames larger than this size fail with ErrMessageTooLarge.
func MessageMaxSize(size int) Option {
	return func(o *options) {
		o.maxReadLength = size
	}
}

// LoggerOption returns an Option that sets the logger.
// If not set, the default slog logger will be used.
func LoggerOption(logger Logger) Option {
	return func(o *options) {
		o.logger = logger
	}
}
