package supervisor

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sync"

	"github.com/korydraughn/irodsd/internal/controlplane"
	"github.com/korydraughn/irodsd/internal/logging"
	"github.com/korydraughn/irodsd/internal/mailbox"
	"github.com/korydraughn/irodsd/internal/worker"
)

// Supervisor owns the mailbox and the worker processes.
type Supervisor struct {
	opts    Options
	logger  *slog.Logger
	metrics *metrics

	// mu guards state, handles and exitsSeen; state and handles are written
	// only by the lifecycle goroutine.
	mu        sync.Mutex
	state     State
	handles   []*worker.Handle
	exitsSeen map[*worker.Handle]bool

	mbx   mailbox.Mailbox
	exits chan *worker.Handle

	pumpCancel context.CancelFunc
	pumpDone   chan struct{}

	terminated     chan struct{}
	terminatedOnce sync.Once
}

// New builds an idle supervisor.
func New(opts Options) *Supervisor {
	opts = opts.withDefaults()
	logger := logging.NewComponentLogger(opts.Logger, "supervisor").
		With(logging.String(logging.FieldMailbox, opts.Mailbox.Name))
	s := &Supervisor{
		opts:       opts,
		logger:     logger,
		metrics:    newMetrics(opts.MetricsFile, logger),
		exits:      make(chan *worker.Handle, len(opts.Roles)),
		terminated: make(chan struct{}),
	}
	s.exitsSeen = make(map[*worker.Handle]bool)
	s.metrics.setState(Idle)
	return s
}

// State returns the current lifecycle state.
func (s *Supervisor) State() State {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.state
}

// Handles returns the handle table in spawn order.
func (s *Supervisor) Handles() []*worker.Handle {
	s.mu.Lock()
	defer s.mu.Unlock()
	return append([]*worker.Handle(nil), s.handles...)
}

func (s *Supervisor) setState(next State) {
	s.mu.Lock()
	prev := s.state
	s.state = next
	s.mu.Unlock()
	if next == Terminated {
		s.terminatedOnce.Do(func() { close(s.terminated) })
	}
	s.logger.Info("supervisor state changed",
		logging.String("from", prev.String()),
		logging.String(logging.FieldState, next.String()))
	s.metrics.setState(next)
}

// transition moves from one of want to next atomically.
func (s *Supervisor) transition(next State, want ...State) (State, bool) {
	s.mu.Lock()
	prev := s.state
	ok := false
	for _, w := range want {
		if prev == w {
			ok = true
			break
		}
	}
	if ok {
		s.state = next
	}
	s.mu.Unlock()
	if ok {
		s.logger.Info("supervisor state changed",
			logging.String("from", prev.String()),
			logging.String(logging.FieldState, next.String()))
		s.metrics.setState(next)
	}
	return prev, ok
}

// Start creates the mailbox and spawns every role in order. If a spawn fails,
// the workers already started are terminated and reaped and the mailbox is
// removed before the *worker.SpawnError is returned.
func (s *Supervisor) Start(ctx context.Context) error {
	if prev, ok := s.transition(Initializing, Idle); !ok {
		return fmt.Errorf("%w: start from %s", ErrInvalidState, prev)
	}

	if s.opts.RemoveStale {
		switch err := mailbox.Remove(s.opts.Mailbox); {
		case err == nil:
			logging.WarnWithContext(s.logger, "removed stale mailbox", "mailbox_stale_removed",
				logging.String(logging.FieldImpact, "messages left by a previous run were discarded"),
				logging.String(logging.FieldErrorHint, "a previous irodsd did not shut down cleanly"))
		case !errors.Is(err, mailbox.ErrNotFound):
			s.logger.Debug("stale mailbox removal failed", logging.Error(err))
		}
	}

	mbx, err := mailbox.Create(s.opts.Mailbox)
	if err != nil {
		s.setState(Terminated)
		return fmt.Errorf("%w %s: %w", ErrMailboxCreate, s.opts.Mailbox.Name, err)
	}
	s.mu.Lock()
	s.mbx = mbx
	s.mu.Unlock()
	s.logger.Info("mailbox created",
		logging.String("driver", s.opts.Mailbox.Driver),
		logging.Int("capacity", mbx.Capacity()),
		logging.Int("max_message_size", mbx.MaxMessageSize()))

	for _, role := range s.opts.Roles {
		h, err := s.opts.Spawner.Spawn(ctx, role, s.opts.Params)
		if err != nil {
			var spawnErr *worker.SpawnError
			if !errors.As(err, &spawnErr) {
				err = &worker.SpawnError{Role: role, Err: err}
			}
			logging.ErrorWithContext(s.logger, "worker spawn failed; rolling back", "worker_spawn_failed",
				logging.String(logging.FieldRole, role.String()),
				logging.Error(err),
				logging.String(logging.FieldErrorHint, "check that the irodsd executable is runnable"))
			if rbErr := s.teardown(); rbErr != nil {
				return errors.Join(err, rbErr)
			}
			return err
		}
		s.track(h)
	}

	s.setState(Running)
	return nil
}

func (s *Supervisor) track(h *worker.Handle) {
	h.MarkRunning()
	s.mu.Lock()
	s.handles = append(s.handles, h)
	s.mu.Unlock()
	s.metrics.workerStarted(h.Role.String())
	s.logger.Info("worker spawned",
		logging.String(logging.FieldRole, h.Role.String()),
		logging.Int(logging.FieldPID, h.PID))

	go func() {
		<-h.Exited()
		select {
		case s.exits <- h:
		default:
		}
	}()
}

// Run drains the mailbox until a shutdown is requested by the control plane,
// an OS signal, or ctx, then performs Shutdown. A mailbox receive failure is
// fatal: workers are still shut down and ErrMailboxReceive is returned.
func (s *Supervisor) Run(ctx context.Context) error {
	if st := s.State(); st != Running {
		return fmt.Errorf("%w: run from %s", ErrInvalidState, st)
	}

	msgs, recvErrs := s.startPump()

	for {
		select {
		case msg := <-msgs:
			s.observe(msg)
			if string(msg.Payload) == controlplane.ShutdownKeyword {
				s.logger.Info("shutdown requested through control plane")
				return s.Shutdown()
			}
		case err := <-recvErrs:
			logging.ErrorWithContext(s.logger, "mailbox receive failed", "mailbox_receive_failed",
				logging.Error(err),
				logging.String(logging.FieldErrorHint, "the mailbox was removed or corrupted externally"))
			shutdownErr := s.Shutdown()
			return errors.Join(fmt.Errorf("%w: %w", ErrMailboxReceive, err), shutdownErr)
		case h := <-s.exits:
			s.workerExited(h)
		case sig := <-s.opts.Signals:
			s.logger.Info("signal received", logging.String("signal", sig.String()))
			return s.Shutdown()
		case <-ctx.Done():
			s.logger.Info("context cancelled", logging.Error(ctx.Err()))
			return s.Shutdown()
		case <-s.terminated:
			return nil
		}
	}
}

func (s *Supervisor) observe(msg mailbox.Message) {
	s.logger.Info("mailbox message",
		logging.String("sender", mailbox.SenderRole(msg.Payload)),
		logging.String("payload", string(msg.Payload)),
		logging.Int("length", msg.Len()))
	s.metrics.message(msg.Payload)
}

// workerExited handles a child that died while the supervisor was running.
// The handle stays in the table and is reaped during shutdown.
func (s *Supervisor) workerExited(h *worker.Handle) {
	if h.State() != worker.Running {
		return
	}
	s.mu.Lock()
	seen := s.exitsSeen[h]
	s.exitsSeen[h] = true
	s.mu.Unlock()
	if seen {
		return
	}
	s.metrics.workerExited(h.Role.String(), false)
	attrs := []logging.Attr{
		logging.String(logging.FieldRole, h.Role.String()),
		logging.Int(logging.FieldPID, h.PID),
		logging.String("exit", h.ExitDescription()),
		logging.Duration("uptime", h.Uptime()),
		logging.String(logging.FieldImpact, h.Role.DisplayName()+" is no longer running"),
		logging.String(logging.FieldErrorHint, "inspect the worker log lines; restart irodsd to recover"),
	}
	if err := h.ExitErr(); err != nil {
		attrs = append(attrs, logging.Error(err))
	}
	logging.WarnWithContext(s.logger, "worker exited unexpectedly", "worker_exited", attrs...)
}

// startPump feeds mailbox messages to Run from a dedicated goroutine so the
// event loop can also wait on exits, signals and ctx.
func (s *Supervisor) startPump() (<-chan mailbox.Message, <-chan error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.state != Running {
		// Shutdown already won; Run returns through s.terminated.
		return nil, nil
	}
	mbx := s.mbx
	ctx, cancel := context.WithCancel(context.Background())
	msgs := make(chan mailbox.Message)
	errs := make(chan error, 1)
	done := make(chan struct{})
	s.pumpCancel = cancel
	s.pumpDone = done

	go func() {
		defer close(done)
		for {
			msg, err := mbx.Receive(ctx)
			if err != nil {
				if ctx.Err() == nil {
					errs <- err
				}
				return
			}
			select {
			case msgs <- msg:
			case <-ctx.Done():
				return
			}
		}
	}()
	return msgs, errs
}

func (s *Supervisor) stopPump() {
	s.mu.Lock()
	cancel, done := s.pumpCancel, s.pumpDone
	s.pumpCancel, s.pumpDone = nil, nil
	s.mu.Unlock()
	if cancel == nil {
		return
	}
	cancel()
	<-done
}

// Done is closed once the supervisor reaches Terminated.
func (s *Supervisor) Done() <-chan struct{} { return s.terminated }
