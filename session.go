package quotesock

import (
	"bytes"
	"context"
	"io"
	"net"
	"sync"
	"sync/atomic"
	"time"

	"github.com/pkg/errors"
)

// Default configuration values.
const (
	// defaultDialTimeout bounds connection establishment.
	defaultDialTimeout = 10 * time.Second
	// defaultReadTimeout bounds one exchange.
	defaultReadTimeout = 30 * time.Second
	// defaultMaxPackageLength is the default maximum size of a response frame (8MB).
	defaultMaxPackageLength = 8 * 1024 * 1024
	// readChunkSize is the size of each socket read.
	readChunkSize = 8192
)

// limitedReader wraps a reader and returns ErrMessageTooLarge when the limit is exceeded.
type limitedReader struct {
	r         io.Reader
	remaining int64
}

func newLimitedReader(r io.Reader, limit int64) *limitedReader {
	return &limitedReader{r: r, remaining: limit}
}

func (l *limitedReader) Read(p []byte) (n int, err error) {
	if l.remaining <= 0 {
		return 0, ErrMessageTooLarge
	}
	if int64(len(p)) > l.remaining {
		p = p[:l.remaining]
	}
	n, err = l.r.Read(p)
	l.remaining -= int64(n)
	return
}

// Session is one connection to a quote server.
// Exchanges on a Session are serialized; it is safe to share between goroutines.
type Session struct {
	rawConn *net.TCPConn
	logger  Logger

	opts options

	mu     sync.Mutex // held for the whole of an exchange
	closed atomic.Bool
}

// Dial opens one TCP connection to addr.
// Failures are logged and returned as a *Error of KindConnection, or KindTimeout
// when the dial deadline expired. There is no retry.
func Dial(ctx context.Context, addr string, opt ...Option) (*Session, error) {
	var opts options
	for _, o := range opt {
		o(&opts)
	}
	if err := checkOptions(&opts); err != nil {
		return nil, err
	}

	dialer := net.Dialer{Timeout: opts.dialTimeout}
	c, err := dialer.DialContext(ctx, "tcp", addr)
	if err != nil {
		opts.logger.Error("quote server connection failed", "addr", addr, "error", err)
		return nil, newError(ioKind(err), "dial", errors.WithStack(err))
	}

	conn, ok := c.(*net.TCPConn)
	if !ok {
		c.Close()
		return nil, newError(KindConnection, "dial", errors.Errorf("unexpected connection type %T", c))
	}
	_ = conn.SetNoDelay(true)

	return newSessionWithOptions(conn, opts), nil
}

// NewSession wraps an established TCP connection.
// Returns an error if the configured protocol is invalid.
func NewSession(conn *net.TCPConn, opt ...Option) (*Session, error) {
	var opts options
	for _, o := range opt {
		o(&opts)
	}

	if err := checkOptions(&opts); err != nil {
		return nil, err
	}

	return newSessionWithOptions(conn, opts), nil
}

// checkOptions validates and sets default values for session options.
func checkOptions(opts *options) error {
	if opts.protocol.isZero() {
		opts.protocol = DefaultProtocol()
	}

	if err := opts.protocol.Validate(); err != nil {
		return err
	}

	if opts.dialTimeout <= 0 {
		opts.dialTimeout = defaultDialTimeout
	}

	if opts.readTimeout <= 0 {
		opts.readTimeout = defaultReadTimeout
	}

	if opts.maxReadLength <= 0 {
		opts.maxReadLength = defaultMaxPackageLength
	}

	if opts.logger == nil {
		opts.logger = defaultLogger()
	}

	return nil
}

func newSessionWithOptions(c *net.TCPConn, opts options) *Session {
	return &Session{
		rawConn: c,
		logger:  opts.logger,
		opts:    opts,
	}
}

// Exchange sends command followed by a newline and returns the decoded response.
//
// The exchange is bounded by the earlier of the context deadline and the read
// timeout; cancelling ctx aborts it. The read stops on the chunk that completes
// the frame terminator. In sentinel mode a compressed payload that happens to
// end a chunk with the sentinel bytes is cut short; the server framing offers
// no way to tell the two apart.
//
// Errors are *Error values:
//   - KindConnection: the session is closed or the socket failed
//   - KindTimeout: the deadline passed or ctx was cancelled before the frame completed
//   - KindProtocol: the frame is too large or its header is unusable
//   - KindDecompression: the compressed body does not inflate
//
// After a connection, timeout or decompression failure, an oversized frame or
// a body length that overruns the frame, the stream position is unknown and
// the session is closed.
func (s *Session) Exchange(ctx context.Context, command string) (string, error) {
	if s == nil {
		return "", ErrNotConnected
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	if s.closed.Load() {
		return "", newError(KindConnection, "exchange", ErrConnectionClosed)
	}

	_ = s.rawConn.SetDeadline(s.deadline(ctx))
	stop := watchContext(ctx, func() {
		_ = s.rawConn.SetDeadline(time.Now())
	})
	defer stop()

	text, err := s.exchange(ctx, command)
	if err != nil {
		kind := KindOf(err)
		s.logger.Warn("quote exchange failed", "addr", s.Addr(), "kind", kind.String(), "error", err)
		if desynced(err) {
			s.closeConn()
		}
		return "", err
	}

	return text, nil
}

// desynced reports whether err leaves unread bytes of the frame in the socket,
// so the next exchange would read them as its reply.
func desynced(err error) bool {
	switch KindOf(err) {
	case KindConnection, KindTimeout, KindDecompression:
		return true
	}
	return errors.Is(err, ErrMessageTooLarge) || errors.Is(err, ErrBadBodyLength)
}

// watchContext runs f once ctx is done. The returned stop prevents f from
// running, or waits for it to return if it already started. Call stop once.
func watchContext(ctx context.Context, f func()) (stop func()) {
	done := make(chan struct{})
	stopFunc := context.AfterFunc(ctx, func() {
		defer close(done)
		f()
	})
	return func() {
		if !stopFunc() {
			<-done
		}
	}
}

func (s *Session) exchange(ctx context.Context, command string) (string, error) {
	if _, err := s.rawConn.Write(s.opts.protocol.EncodeCommand(command)); err != nil {
		return "", s.ioError(ctx, "write", err)
	}

	frame, err := readFrame(s.rawConn, s.opts.protocol.Terminator(), s.opts.maxReadLength)
	if err != nil {
		if errors.Is(err, ErrMessageTooLarge) {
			return "", protocolError("read", err, "limit %d bytes", s.opts.maxReadLength)
		}
		return "", s.ioError(ctx, "read", err)
	}

	s.logger.Debug("quote frame received", "addr", s.Addr(), "bytes", len(frame))

	return s.opts.protocol.Decode(frame)
}

// deadline returns the earlier of the context deadline and now + readTimeout.
func (s *Session) deadline(ctx context.Context) time.Time {
	d := time.Now().Add(s.opts.readTimeout)
	if cd, ok := ctx.Deadline(); ok && cd.Before(d) {
		return cd
	}
	return d
}

func (s *Session) ioError(ctx context.Context, op string, err error) *Error {
	if ctxErr := ctx.Err(); ctxErr != nil {
		return newError(KindTimeout, op, errors.Wrap(ctxErr, err.Error()))
	}
	return newError(ioKind(err), op, errors.WithStack(err))
}

// readFrame reads chunks from r until the accumulated bytes end with term.
// It never reads past the chunk that completes term.
func readFrame(r io.Reader, term []byte, limit int) ([]byte, error) {
	lr := newLimitedReader(r, int64(limit))
	chunk := make([]byte, readChunkSize)
	var buf []byte

	for {
		n, err := lr.Read(chunk)
		buf = append(buf, chunk[:n]...)
		if n > 0 && bytes.HasSuffix(buf, term) {
			return buf, nil
		}
		if err != nil {
			if err == io.EOF {
				return buf, io.ErrUnexpectedEOF
			}
			return buf, err
		}
	}
}

func ioKind(err error) Kind {
	var netErr net.Error
	if errors.As(err, &netErr) && netErr.Timeout() {
		return KindTimeout
	}
	return KindConnection
}

// Close closes the session. Safe to call multiple times.
func (s *Session) Close() error {
	if s.closed.Swap(true) {
		return nil // already closed
	}
	return s.rawConn.Close()
}

// IsClosed returns true if the session has been closed.
func (s *Session) IsClosed() bool {
	return s.closed.Load()
}

// Addr returns the remote address of the session.
func (s *Session) Addr() net.Addr {
	return s.rawConn.RemoteAddr()
}

// closeConn marks the session as closed and closes the underlying TCP connection.
func (s *Session) closeConn() {
	s.closed.Store(true)
	s.rawConn.Close()
}
