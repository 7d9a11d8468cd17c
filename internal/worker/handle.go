package worker

import (
	"context"
	"errors"
	"fmt"
	"os"
	"sync/atomic"
	"syscall"
	"time"
)

// State tracks a worker from the supervisor's point of view.
type State int

const (
	Starting State = iota
	Running
	Terminating
	Reaped
)

func (s State) String() string {
	switch s {
	case Starting:
		return "starting"
	case Running:
		return "running"
	case Terminating:
		return "terminating"
	case Reaped:
		return "reaped"
	default:
		return fmt.Sprintf("state(%d)", int(s))
	}
}

// Handle is the supervisor's record of one spawned worker process. State
// transitions are made only by the supervisor goroutine; the exit status is
// written once by the waiter goroutine before Exited is closed. State may be
// read from any goroutine.
type Handle struct {
	Role      Role
	PID       int
	StartedAt time.Time

	state   atomic.Int32
	process *os.Process

	exited   chan struct{}
	exitCode int
	exitErr  error
	signal   string
	endedAt  time.Time
}

// wait is the only caller of cmd.Wait for this process.
func newHandle(role Role, process *os.Process, wait func() (*os.ProcessState, error)) *Handle {
	h := &Handle{
		Role:      role,
		PID:       process.Pid,
		StartedAt: time.Now(),
		process:   process,
		exited:    make(chan struct{}),
		exitCode:  -1,
	}
	go func() {
		ps, err := wait()
		h.endedAt = time.Now()
		h.exitErr = err
		if ps != nil {
			h.exitCode = ps.ExitCode()
			if ws, ok := ps.Sys().(syscall.WaitStatus); ok && ws.Signaled() {
				h.signal = ws.Signal().String()
			}
		}
		close(h.exited)
	}()
	return h
}

// State returns the current lifecycle state.
func (h *Handle) State() State { return State(h.state.Load()) }

func (h *Handle) setState(s State) { h.state.Store(int32(s)) }

// MarkRunning records that the spawn returned. There is no readiness handshake.
func (h *Handle) MarkRunning() {
	h.state.CompareAndSwap(int32(Starting), int32(Running))
}

// Exited is closed once the process has exited and its status was collected.
func (h *Handle) Exited() <-chan struct{} { return h.exited }

func (h *Handle) hasExited() bool {
	select {
	case <-h.exited:
		return true
	default:
		return false
	}
}

// Terminate asks the worker to stop with SIGTERM. Repeated calls and calls
// after the process exited do nothing.
func (h *Handle) Terminate() error {
	if st := h.State(); st == Terminating || st == Reaped {
		return nil
	}
	if h.hasExited() {
		h.setState(Terminating)
		return nil
	}
	if err := h.process.Signal(syscall.SIGTERM); err != nil && !errors.Is(err, os.ErrProcessDone) {
		return fmt.Errorf("terminate %s (pid %d): %w", h.Role, h.PID, err)
	}
	h.setState(Terminating)
	return nil
}

// Kill sends SIGKILL. It is used when a worker outlives the grace period.
func (h *Handle) Kill() error {
	if h.hasExited() {
		return nil
	}
	if err := h.process.Signal(syscall.SIGKILL); err != nil && !errors.Is(err, os.ErrProcessDone) {
		return fmt.Errorf("kill %s (pid %d): %w", h.Role, h.PID, err)
	}
	h.state.CompareAndSwap(int32(Running), int32(Terminating))
	h.state.CompareAndSwap(int32(Starting), int32(Terminating))
	return nil
}

// Reap blocks until the process has exited and marks the handle Reaped. The
// OS-level wait already happened in the waiter goroutine, so reaping twice
// returns immediately.
func (h *Handle) Reap(ctx context.Context) error {
	select {
	case <-h.exited:
		h.setState(Reaped)
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}

// ExitCode returns the process exit code, or -1 if it was killed by a signal
// or has not exited.
func (h *Handle) ExitCode() int {
	if !h.hasExited() {
		return -1
	}
	return h.exitCode
}

// ExitErr returns the error reported by the wait, if any.
func (h *Handle) ExitErr() error {
	if !h.hasExited() {
		return nil
	}
	return h.exitErr
}

// ExitDescription summarizes how the process ended, e.g. "exit 0" or
// "signal terminated".
func (h *Handle) ExitDescription() string {
	if !h.hasExited() {
		return "-"
	}
	if h.signal != "" {
		return "signal " + h.signal
	}
	if h.exitCode < 0 && h.exitErr != nil {
		return h.exitErr.Error()
	}
	return fmt.Sprintf("exit %d", h.exitCode)
}

// Uptime is how long the process ran, or has been running so far.
func (h *Handle) Uptime() time.Duration {
	if h.hasExited() {
		return h.endedAt.Sub(h.StartedAt)
	}
	return time.Since(h.StartedAt)
}
