package supervisor

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/korydraughn/irodsd/internal/logging"
	"github.com/korydraughn/irodsd/internal/mailbox"
	"github.com/korydraughn/irodsd/internal/worker"
)

// Shutdown terminates every worker in reverse spawn order, reaps them with
// SIGKILL escalation after the grace period, then closes and removes the
// mailbox. Calls after the first have no further effect; a call made while
// another is in progress returns once that one has finished.
func (s *Supervisor) Shutdown() error {
	prev, ok := s.transition(ShuttingDown, Initializing, Running)
	if !ok {
		switch prev {
		case Idle:
			s.setState(Terminated)
		case ShuttingDown:
			<-s.terminated
		}
		return nil
	}
	s.stopPump()
	return s.teardown()
}

// teardown stops all tracked workers and removes the mailbox. The mailbox is
// kept if any worker could not be reaped.
func (s *Supervisor) teardown() error {
	var errs []error
	if err := s.stopWorkers(s.Handles()); err != nil {
		errs = append(errs, err)
	}
	s.mu.Lock()
	mbx := s.mbx
	s.mbx = nil
	s.mu.Unlock()
	if mbx != nil {
		if err := mbx.Close(); err != nil {
			errs = append(errs, fmt.Errorf("close mailbox: %w", err))
		}
		if len(errs) == 0 {
			if err := mailbox.Remove(s.opts.Mailbox); err != nil && !errors.Is(err, mailbox.ErrNotFound) {
				errs = append(errs, fmt.Errorf("remove mailbox: %w", err))
			} else {
				s.logger.Info("mailbox removed")
			}
		} else {
			logging.ErrorWithContext(s.logger, "mailbox kept because workers may still use it", "mailbox_kept",
				logging.String(logging.FieldErrorHint, "kill remaining workers, then rerun irodsd to clear the stale mailbox"))
		}
	}
	s.setState(Terminated)
	return errors.Join(errs...)
}

// stopWorkers signals every handle first so workers stop concurrently, then
// reaps them in the same reverse order against one shared grace deadline.
func (s *Supervisor) stopWorkers(handles []*worker.Handle) error {
	exitedEarlier := make(map[*worker.Handle]bool, len(handles))
	for _, h := range handles {
		select {
		case <-h.Exited():
			exitedEarlier[h] = true
			// Run may not have drained this exit yet.
			s.workerExited(h)
		default:
		}
	}
	for i := len(handles) - 1; i >= 0; i-- {
		h := handles[i]
		if err := h.Terminate(); err != nil {
			s.logger.Warn("terminate failed", logging.String(logging.FieldRole, h.Role.String()), logging.Error(err))
		}
	}

	graceDeadline := time.Now().Add(s.opts.ShutdownGrace)
	var unreaped []string
	for i := len(handles) - 1; i >= 0; i-- {
		h := handles[i]
		if err := s.reap(h, graceDeadline); err != nil {
			unreaped = append(unreaped, fmt.Sprintf("%s (pid %d)", h.Role, h.PID))
			continue
		}
		if !exitedEarlier[h] {
			s.metrics.workerExited(h.Role.String(), true)
			s.logger.Info("worker reaped",
				logging.String(logging.FieldRole, h.Role.String()),
				logging.Int(logging.FieldPID, h.PID),
				logging.String("exit", h.ExitDescription()))
		}
	}
	if len(unreaped) > 0 {
		return fmt.Errorf("%w: %v", ErrUnreaped, unreaped)
	}
	return nil
}

func (s *Supervisor) reap(h *worker.Handle, graceDeadline time.Time) error {
	ctx, cancel := context.WithDeadline(context.Background(), graceDeadline)
	err := h.Reap(ctx)
	cancel()
	if err == nil {
		return nil
	}

	logging.WarnWithContext(s.logger, "worker ignored SIGTERM; sending SIGKILL", "worker_kill_escalation",
		logging.String(logging.FieldRole, h.Role.String()),
		logging.Int(logging.FieldPID, h.PID),
		logging.Duration("grace", s.opts.ShutdownGrace),
		logging.String(logging.FieldImpact, "worker stopped without cleanup"))
	s.metrics.forcedKill()
	if err := h.Kill(); err != nil {
		return err
	}
	killCtx, cancelKill := context.WithTimeout(context.Background(), s.opts.KillTimeout)
	defer cancelKill()
	if err := h.Reap(killCtx); err != nil {
		logging.ErrorWithContext(s.logger, "worker did not exit after SIGKILL", "worker_unreaped",
			logging.String(logging.FieldRole, h.Role.String()),
			logging.Int(logging.FieldPID, h.PID),
			logging.String(logging.FieldErrorHint, "the process may be stuck in uninterruptible sleep"))
		return err
	}
	return nil
}
