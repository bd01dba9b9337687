package quotesock

import (
	"bufio"
	"context"
	"io"
	"log/slog"
	"net"
	"strings"
	"sync"
	"time"

	"github.com/pkg/errors"
	"golang.org/x/sync/errgroup"
)

// Reply is one response produced by a Handler.
type Reply struct {
	// Type is written as header field 1 and decides compression.
	Type string
	Body []byte
	// Raw, when non-nil, is written to the wire verbatim instead of encoding
	// Type and Body. It lets fixtures replay captured or broken frames.
	Raw []byte
}

// Handler answers the commands received by a Server.
type Handler interface {
	// Respond is called once per command line, without the trailing newline.
	// Returning an error closes the connection.
	Respond(ctx context.Context, command string) (Reply, error)
}

// HandlerFunc adapts a function to Handler.
type HandlerFunc func(ctx context.Context, command string) (Reply, error)

// Respond calls f.
func (f HandlerFunc) Respond(ctx context.Context, command string) (Reply, error) {
	return f(ctx, command)
}

// Server is a TCP server speaking the quote framing.
// Each connection reads newline-terminated commands and writes one frame per command.
type Server struct {
	listener        *net.TCPListener
	handler         Handler
	protocol        Protocol
	logger          Logger
	shutdownTimeout time.Duration
	idleTimeout     time.Duration

	mu          sync.Mutex
	shutdown    bool
	shutdownNow chan struct{} // signals immediate shutdown, bypassing timeout
}

// ServerOption configures a Server.
type ServerOption func(*Server)

// ServerLoggerOption sets the logger for the server.
func ServerLoggerOption(logger Logger) ServerOption {
	return func(s *Server) {
		s.logger = logger
	}
}

// ServerProtocolOption sets the framing used for replies. Default is DefaultProtocol.
func ServerProtocolOption(p Protocol) ServerOption {
	return func(s *Server) {
		s.protocol = p
	}
}

// ServerIdleTimeoutOption sets how long a connection may wait for its next command.
// Default is one minute.
func ServerIdleTimeoutOption(timeout time.Duration) ServerOption {
	return func(s *Server) {
		s.idleTimeout = timeout
	}
}

// ServerShutdownTimeoutOption sets the graceful shutdown timeout.
// When the context is canceled, the server keeps serving open connections for
// up to this duration before closing the listener and every connection.
// Default is 0 (immediate shutdown).
func ServerShutdownTimeoutOption(timeout time.Duration) ServerOption {
	return func(s *Server) {
		s.shutdownTimeout = timeout
	}
}

// NewServer creates a server bound to addr.
// Returns an error if the address cannot be bound or the protocol is invalid.
func NewServer(addr *net.TCPAddr, handler Handler, opts ...ServerOption) (*Server, error) {
	if handler == nil {
		return nil, errors.New("nil handler")
	}

	s := &Server{
		handler:     handler,
		protocol:    DefaultProtocol(),
		logger:      slog.Default(),
		idleTimeout: time.Minute,
		shutdownNow: make(chan struct{}, 1),
	}

	for _, opt := range opts {
		opt(s)
	}

	if err := s.protocol.Validate(); err != nil {
		return nil, err
	}

	listener, err := net.ListenTCP(addr.Network(), addr)
	if err != nil {
		return nil, errors.Wrap(err, "listen")
	}
	s.listener = listener

	return s, nil
}

// Serve accepts connections and answers their commands.
// It blocks until the context is canceled or an unrecoverable error occurs,
// then waits for every connection goroutine to finish.
// If ServerShutdownTimeoutOption is set, open connections keep being served for
// up to that long after cancellation. Call Close() to bypass the timeout.
func (s *Server) Serve(ctx context.Context) error {
	s.logger.Info("quote server started", "addr", s.listener.Addr())
	defer s.listener.Close()

	stopCtx, stop := context.WithCancel(context.Background())
	defer stop()

	go func() {
		select {
		case <-ctx.Done():
		case <-stopCtx.Done():
			return
		}

		// Wait for shutdown timeout if configured, but allow early exit via Close()
		if s.shutdownTimeout > 0 {
			s.logger.Info("graceful shutdown initiated", "timeout", s.shutdownTimeout)
			select {
			case <-time.After(s.shutdownTimeout):
			case <-s.shutdownNow:
				s.logger.Debug("shutdown timeout bypassed via Close()")
			case <-stopCtx.Done():
				return
			}
		}

		s.mu.Lock()
		s.shutdown = true
		s.mu.Unlock()
		// Set a deadline to unblock Accept
		_ = s.listener.SetDeadline(time.Now())
	}()

	var group errgroup.Group
	err := s.acceptLoop(ctx, stopCtx, &group)

	stop()
	_ = group.Wait()

	return err
}

func (s *Server) acceptLoop(ctx, connCtx context.Context, group *errgroup.Group) error {
	for {
		conn, err := s.listener.AcceptTCP()
		if err != nil {
			s.mu.Lock()
			isShutdown := s.shutdown
			s.mu.Unlock()

			if isShutdown {
				s.logger.Info("quote server stopped", "addr", s.listener.Addr())
				if ctx.Err() != nil {
					return ctx.Err()
				}
				return nil
			}

			var netErr net.Error
			if errors.As(err, &netErr) && netErr.Timeout() {
				continue
			}
			s.logger.Error("accept error", "error", err)
			return err
		}

		s.logger.Debug("accepted connection", "remote_addr", conn.RemoteAddr())
		_ = conn.SetNoDelay(true)

		group.Go(func() error {
			if err := s.serveConn(connCtx, conn); err != nil {
				s.logger.Debug("connection closed with error", "remote_addr", conn.RemoteAddr(), "error", err)
			}
			return nil
		})
	}
}

// serveConn answers commands on conn until the peer hangs up, the idle
// timeout passes, the handler fails or ctx is canceled.
func (s *Server) serveConn(ctx context.Context, conn *net.TCPConn) error {
	defer conn.Close()

	stop := context.AfterFunc(ctx, func() {
		_ = conn.SetDeadline(time.Now())
	})
	defer stop()

	reader := bufio.NewReader(conn)
	for {
		_ = conn.SetReadDeadline(time.Now().Add(s.idleTimeout))

		line, err := reader.ReadString('\n')
		if err != nil {
			if err == io.EOF {
				return nil
			}
			return err
		}
		command := strings.TrimSuffix(line, "\n")

		reply, err := s.handler.Respond(ctx, command)
		if err != nil {
			return errors.Wrapf(err, "respond to %q", command)
		}

		frame := reply.Raw
		if frame == nil {
			if frame, err = s.protocol.EncodeReply(reply.Type, reply.Body); err != nil {
				return err
			}
		}

		_ = conn.SetWriteDeadline(time.Now().Add(s.idleTimeout))
		if _, err := conn.Write(frame); err != nil {
			return err
		}
	}
}

// Close stops the server by closing the underlying listener.
// If a shutdown timeout is configured, Close() bypasses the remaining timeout.
// Any blocked Accept calls will return with an error.
func (s *Server) Close() error {
	s.mu.Lock()
	s.shutdown = true
	s.mu.Unlock()

	select {
	case s.shutdownNow <- struct{}{}:
	default:
	}

	return s.listener.Close()
}

// Addr returns the listener's network address.
func (s *Server) Addr() net.Addr {
	return s.listener.Addr()
}
