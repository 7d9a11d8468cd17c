package worker

import (
	"context"
	"errors"
	"fmt"
	"io"
	"os"
	"os/exec"
)

// WorkerCommand is the hidden irodsd subcommand that runs a worker.
const WorkerCommand = "worker"

// ErrSpawn matches every *SpawnError.
var ErrSpawn = errors.New("spawn worker")

// SpawnError reports that a worker process could not be created. No process
// exists when it is returned.
type SpawnError struct {
	Role Role
	Err  error
}

func (e *SpawnError) Error() string {
	return fmt.Sprintf("spawn %s worker: %v", e.Role, e.Err)
}

func (e *SpawnError) Unwrap() error { return e.Err }

func (e *SpawnError) Is(target error) bool { return target == ErrSpawn }

// Spawner starts worker processes.
type Spawner interface {
	Spawn(ctx context.Context, role Role, params Params) (*Handle, error)
}

// ExecSpawner re-executes Executable as "<Executable> worker <params>".
type ExecSpawner struct {
	// Executable defaults to the running binary.
	Executable string
	// Env is appended to the inherited environment.
	Env []string
	// Stdout and Stderr default to the supervisor's own streams.
	Stdout io.Writer
	Stderr io.Writer
}

// Spawn starts the worker in its own process group so terminal signals reach
// only the supervisor, which then stops workers in order.
func (s ExecSpawner) Spawn(ctx context.Context, role Role, params Params) (*Handle, error) {
	if err := ctx.Err(); err != nil {
		return nil, &SpawnError{Role: role, Err: err}
	}
	exe := s.Executable
	if exe == "" {
		var err error
		if exe, err = os.Executable(); err != nil {
			return nil, &SpawnError{Role: role, Err: fmt.Errorf("resolve executable: %w", err)}
		}
	}

	args := append([]string{WorkerCommand}, params.Args(role)...)
	// exec.CommandContext would kill the child on cancellation and bypass the
	// ordered shutdown.
	cmd := exec.Command(exe, args...)
	cmd.Stdout = s.Stdout
	if cmd.Stdout == nil {
		cmd.Stdout = os.Stdout
	}
	cmd.Stderr = s.Stderr
	if cmd.Stderr == nil {
		cmd.Stderr = os.Stderr
	}
	if len(s.Env) > 0 {
		cmd.Env = append(os.Environ(), s.Env...)
	}
	cmd.SysProcAttr = workerSysProcAttr()

	if err := cmd.Start(); err != nil {
		return nil, &SpawnError{Role: role, Err: err}
	}
	return newHandle(role, cmd.Process, func() (*os.ProcessState, error) {
		err := cmd.Wait()
		return cmd.ProcessState, err
	}), nil
}
