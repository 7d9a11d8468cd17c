package testsupport

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/korydraughn/irodsd/internal/worker"
)

// HelperEnv switches a test binary into helper-process mode.
const HelperEnv = "IRODSD_TEST_HELPER"

const (
	// HelperWorker runs the real worker entry point.
	HelperWorker = "worker"
	// HelperIgnoreTerm ignores SIGTERM and sleeps, to exercise kill escalation.
	HelperIgnoreTerm = "ignore-term"
	// HelperExit exits with status 3 right away, like a crashing worker.
	HelperExit = "exit"
)

// RunHelperIfRequested must be called first thing in TestMain. When the test
// binary was re-executed as a worker it runs the requested helper and exits.
func RunHelperIfRequested() {
	mode := os.Getenv(HelperEnv)
	if mode == "" {
		return
	}
	args := os.Args[1:]
	if len(args) > 0 && args[0] == worker.WorkerCommand {
		args = args[1:]
	}
	switch mode {
	case HelperWorker:
		if err := worker.Execute(context.Background(), args); err != nil {
			fmt.Fprintln(os.Stderr, err)
			os.Exit(1)
		}
		os.Exit(0)
	case HelperIgnoreTerm:
		signal.Ignore(syscall.SIGTERM)
		time.Sleep(time.Hour)
		os.Exit(0)
	case HelperExit:
		os.Exit(3)
	default:
		fmt.Fprintf(os.Stderr, "unknown helper mode %q\n", mode)
		os.Exit(2)
	}
}

// HelperSpawner re-executes the test binary in the given helper mode.
func HelperSpawner(mode string) worker.ExecSpawner {
	exe, err := os.Executable()
	if err != nil {
		panic(fmt.Sprintf("resolve test executable: %v", err))
	}
	return worker.ExecSpawner{
		Executable: exe,
		Env:        []string{HelperEnv + "=" + mode},
	}
}
