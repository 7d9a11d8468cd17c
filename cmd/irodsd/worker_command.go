package main

import (
	"github.com/spf13/cobra"

	"github.com/korydraughn/irodsd/internal/worker"
)

// newWorkerCommand is the re-exec target used by the supervisor. Flags are
// parsed by worker.ParseParams so the spawn side and this side share one
// encoding.
func newWorkerCommand() *cobra.Command {
	return &cobra.Command{
		Use:                worker.WorkerCommand,
		Short:              "Run a worker process (internal)",
		Hidden:             true,
		DisableFlagParsing: true,
		RunE: func(cmd *cobra.Command, args []string) error {
			return worker.Execute(cmd.Context(), args)
		},
	}
}
