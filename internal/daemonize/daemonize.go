// Package daemonize detaches the supervisor from its terminal by re-executing
// itself in a new session.
package daemonize

import (
	"errors"
	"fmt"
	"os"
	"os/exec"
	"strings"
	"syscall"
)

// EnvMarker is set in the environment of the detached child.
const EnvMarker = "IRODSD_DAEMONIZED"

// Options controls the detached re-exec.
type Options struct {
	// Executable defaults to the running binary.
	Executable string
	// Args are passed to the child; daemonize flags are stripped.
	Args []string
	// OutputPath receives the child's stdout and stderr; empty means /dev/null.
	OutputPath string
	Env        []string
}

// IsChild reports whether this process is the detached copy.
func IsChild() bool {
	return os.Getenv(EnvMarker) == "1"
}

// Detach starts the detached copy and returns its PID. The caller is expected
// to exit 0 afterwards.
func Detach(opts Options) (int, error) {
	if IsChild() {
		return 0, errors.New("already daemonized")
	}
	exe := opts.Executable
	if exe == "" {
		var err error
		if exe, err = os.Executable(); err != nil {
			return 0, fmt.Errorf("resolve executable: %w", err)
		}
	}

	devNull, err := os.Open(os.DevNull)
	if err != nil {
		return 0, fmt.Errorf("open %s: %w", os.DevNull, err)
	}
	defer devNull.Close()

	out := devNull
	if path := strings.TrimSpace(opts.OutputPath); path != "" {
		if out, err = os.OpenFile(path, os.O_CREATE|os.O_WRONLY|os.O_APPEND, 0o644); err != nil {
			return 0, fmt.Errorf("open daemon output %q: %w", path, err)
		}
		defer out.Close()
	}

	cmd := exec.Command(exe, StripFlags(opts.Args)...)
	cmd.Stdin = devNull
	cmd.Stdout = out
	cmd.Stderr = out
	cmd.Env = append(append(os.Environ(), opts.Env...), EnvMarker+"=1")
	cmd.SysProcAttr = &syscall.SysProcAttr{Setsid: true}
	if err := cmd.Start(); err != nil {
		return 0, fmt.Errorf("start daemon: %w", err)
	}
	pid := cmd.Process.Pid
	if err := cmd.Process.Release(); err != nil {
		return pid, fmt.Errorf("release daemon process: %w", err)
	}
	return pid, nil
}

// StripFlags removes -d/--daemonize in every spelling pflag accepts.
func StripFlags(args []string) []string {
	out := make([]string, 0, len(args))
	for i, arg := range args {
		if arg == "--" {
			out = append(out, args[i:]...)
			break
		}
		switch {
		case arg == "-d", arg == "--daemonize":
			continue
		case strings.HasPrefix(arg, "--daemonize="), strings.HasPrefix(arg, "-d="):
			continue
		}
		out = append(out, arg)
	}
	return out
}
