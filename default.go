package quotesock

import (
	"context"
	"sync"
)

// DefaultAddr is the public quote server dialed by DialDefault.
const DefaultAddr = "public-api.baostock.com:10030"

// defaultAddr is the address DialDefault uses. Tests point it at a local server.
var defaultAddr = DefaultAddr

// std is the process-wide default session used by SendAndReceive.
var std struct {
	mu      sync.Mutex
	session *Session
}

// Connect dials addr and installs the session as the process-wide default,
// closing any previous default. On failure the default slot is left empty.
func Connect(ctx context.Context, addr string, opt ...Option) (*Session, error) {
	s, err := Dial(ctx, addr, opt...)

	std.mu.Lock()
	prev := std.session
	std.session = s
	std.mu.Unlock()

	if prev != nil && prev != s {
		_ = prev.Close()
	}

	if err != nil {
		return nil, err
	}
	return s, nil
}

// DialDefault dials DefaultAddr and returns the session without installing it
// as the process-wide default.
func DialDefault(ctx context.Context, opt ...Option) (*Session, error) {
	return Dial(ctx, defaultAddr, opt...)
}

// Default returns the process-wide default session, or nil.
func Default() *Session {
	std.mu.Lock()
	defer std.mu.Unlock()
	return std.session
}

// SendAndReceive runs one exchange on the default session.
// Without a default session it logs and returns ErrNotConnected.
func SendAndReceive(ctx context.Context, command string) (string, error) {
	s := Default()
	if s == nil {
		defaultLogger().Warn("quote session not connected", "command", command)
		return "", ErrNotConnected
	}
	return s.Exchange(ctx, command)
}

// Disconnect closes and clears the default session.
func Disconnect() error {
	std.mu.Lock()
	s := std.session
	std.session = nil
	std.mu.Unlock()

	if s == nil {
		return nil
	}
	return s.Close()
}
