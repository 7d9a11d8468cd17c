package controlplane

import (
	"bufio"
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net"
	"sync"
	"sync/atomic"
	"time"

	"golang.org/x/time/rate"

	"github.com/korydraughn/irodsd/internal/logging"
)

const (
	defaultReadTimeout   = 10 * time.Second
	defaultAcceptBackoff = 200 * time.Millisecond
	defaultMaxLineLength = 512
)

// Sender is the part of a mailbox the listener writes to.
type Sender interface {
	Send(ctx context.Context, payload []byte) error
}

// Options configures a Server.
type Options struct {
	Addr          string
	ReadTimeout   time.Duration
	AcceptBackoff time.Duration
	// MaxLineLength bounds a command line; it matches the mailbox message size.
	MaxLineLength int
}

// Server accepts control-plane connections one at a time and forwards a
// shutdown request to the mailbox. It implements suture.Service.
type Server struct {
	opts    Options
	mailbox Sender
	logger  *slog.Logger
	limiter *rate.Limiter
	listen  func(ctx context.Context, addr string) (net.Listener, error)

	mu       sync.Mutex
	listener net.Listener

	shutdownRequested atomic.Bool
	shutdownSent      atomic.Bool
}

// NewServer configures a listener for opts.Addr. Call Listen to bind early,
// or let Serve bind on first use.
func NewServer(opts Options, mailbox Sender, logger *slog.Logger) *Server {
	if opts.ReadTimeout <= 0 {
		opts.ReadTimeout = defaultReadTimeout
	}
	if opts.AcceptBackoff <= 0 {
		opts.AcceptBackoff = defaultAcceptBackoff
	}
	if opts.MaxLineLength <= 0 {
		opts.MaxLineLength = defaultMaxLineLength
	}
	return &Server{
		opts:    opts,
		mailbox: mailbox,
		logger:  logging.NewComponentLogger(logger, "controlplane"),
		limiter: rate.NewLimiter(rate.Every(opts.AcceptBackoff), 1),
		listen:  listenTCP,
	}
}

func listenTCP(ctx context.Context, addr string) (net.Listener, error) {
	var lc net.ListenConfig
	return lc.Listen(ctx, "tcp", addr)
}

func (s *Server) String() string { return "controlplane" }

// Listen binds the TCP listener. It is a no-op when already listening.
func (s *Server) Listen(ctx context.Context) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.listener != nil {
		return nil
	}
	ln, err := s.listen(ctx, s.opts.Addr)
	if err != nil {
		return fmt.Errorf("listen on %s: %w", s.opts.Addr, err)
	}
	s.listener = ln
	s.logger.Info("control plane listening", logging.String("addr", ln.Addr().String()))
	return nil
}

// Addr returns the bound address, or nil before Listen and after shutdown.
func (s *Server) Addr() net.Addr {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.listener == nil {
		return nil
	}
	return s.listener.Addr()
}

// ShutdownRequested reports whether a shutdown command has been received.
func (s *Server) ShutdownRequested() bool {
	return s.shutdownRequested.Load()
}

// Serve accepts connections until a shutdown command arrives, then stops
// accepting, forwards the request, and blocks until ctx is cancelled. It only
// returns early on errors that warrant a restart.
func (s *Server) Serve(ctx context.Context) error {
	if s.shutdownRequested.Load() {
		return s.drain(ctx)
	}
	if err := s.Listen(ctx); err != nil {
		return err
	}
	s.mu.Lock()
	ln := s.listener
	s.mu.Unlock()

	stop := make(chan struct{})
	defer close(stop)
	go func() {
		select {
		case <-ctx.Done():
			s.closeListener()
		case <-stop:
		}
	}()

	for {
		conn, err := ln.Accept()
		if err != nil {
			if ctx.Err() != nil {
				return ctx.Err()
			}
			if errors.Is(err, net.ErrClosed) {
				s.closeListener()
				return fmt.Errorf("control plane listener closed: %w", err)
			}
			logging.WarnWithContext(s.logger, "accept failed", "controlplane_accept_failed",
				logging.Error(err),
				logging.String(logging.FieldImpact, "control-plane clients may fail to connect"),
				logging.String(logging.FieldErrorHint, "check file descriptor limits and network configuration"))
			if waitErr := s.limiter.Wait(ctx); waitErr != nil {
				return ctx.Err()
			}
			continue
		}

		cmd, ok := s.readCommand(conn)
		if !ok {
			continue
		}
		if cmd.Kind == Shutdown {
			s.shutdownRequested.Store(true)
			s.closeListener()
			return s.drain(ctx)
		}
	}
}

// drain delivers the shutdown request once, then waits for termination.
func (s *Server) drain(ctx context.Context) error {
	if !s.shutdownSent.Load() {
		if err := s.mailbox.Send(ctx, []byte(ShutdownKeyword)); err != nil {
			if ctx.Err() != nil {
				return ctx.Err()
			}
			logging.ErrorWithContext(s.logger, "forward shutdown request failed", "controlplane_shutdown_send_failed",
				logging.Error(err),
				logging.String(logging.FieldErrorHint, "stop irodsd with SIGTERM"))
			return fmt.Errorf("forward shutdown: %w", err)
		}
		s.shutdownSent.Store(true)
		s.logger.Info("shutdown request forwarded to supervisor")
	}
	<-ctx.Done()
	return ctx.Err()
}

func (s *Server) readCommand(conn net.Conn) (Command, bool) {
	defer conn.Close()
	remote := conn.RemoteAddr().String()

	if err := conn.SetReadDeadline(time.Now().Add(s.opts.ReadTimeout)); err != nil {
		s.logger.Debug("set read deadline failed", logging.String(logging.FieldRemote, remote), logging.Error(err))
	}
	limit := int64(s.opts.MaxLineLength) + 2
	line, err := bufio.NewReader(io.LimitReader(conn, limit)).ReadString('\n')
	if err != nil && !(errors.Is(err, io.EOF) && line != "") {
		logging.WarnWithContext(s.logger, "read command failed", "controlplane_read_failed",
			logging.String(logging.FieldRemote, remote),
			logging.Error(err),
			logging.String(logging.FieldImpact, "command ignored"),
			logging.String(logging.FieldErrorHint, "send one newline-terminated command per connection"))
		return Command{}, false
	}

	cmd := Parse(line)
	if len(cmd.Raw) > s.opts.MaxLineLength {
		logging.WarnWithContext(s.logger, "command line too long", "controlplane_line_too_long",
			logging.String(logging.FieldRemote, remote),
			logging.Int("limit", s.opts.MaxLineLength),
			logging.String(logging.FieldImpact, "command ignored"))
		return Command{}, false
	}

	s.logger.Info("command received",
		logging.String(logging.FieldRemote, remote),
		logging.String("command", cmd.Kind.String()),
		logging.String("line", cmd.Raw))
	if cmd.Kind == Unknown {
		s.logger.Info("unknown command ignored", logging.String("line", cmd.Raw))
	}
	return cmd, true
}

func (s *Server) closeListener() {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.listener != nil {
		_ = s.listener.Close()
		s.listener = nil
	}
}
