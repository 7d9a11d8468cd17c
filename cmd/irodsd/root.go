package main

import (
	"errors"
	"io"
	"strings"

	"github.com/spf13/cobra"

	"github.com/korydraughn/irodsd/internal/config"
)

type rootOptions struct {
	schemaFile   string
	dumpTemplate bool
	dumpSchema   bool
	daemonize    bool
	pidFile      string
}

func newRootCommand() *cobra.Command {
	opts := &rootOptions{}

	rootCmd := &cobra.Command{
		Use:           "irodsd [flags] CONFIG_FILE_PATH",
		Short:         "iRODS server process supervisor",
		Version:       version,
		SilenceUsage:  true,
		SilenceErrors: true,
		Args: func(cmd *cobra.Command, args []string) error {
			if opts.dumpTemplate || opts.dumpSchema {
				return nil
			}
			if len(args) != 1 {
				return errors.New("expected exactly one CONFIG_FILE_PATH argument (see --help)")
			}
			return nil
		},
		RunE: func(cmd *cobra.Command, args []string) error {
			out := cmd.OutOrStdout()
			switch {
			case opts.dumpTemplate:
				return dump(out, config.Template())
			case opts.dumpSchema:
				return dump(out, config.DefaultSchema())
			}
			return runSupervisor(cmd, args[0], opts)
		},
	}

	flags := rootCmd.Flags()
	flags.StringVar(&opts.schemaFile, "jsonschema-file", "", "Validate the configuration against this JSON schema instead of the built-in one")
	flags.BoolVar(&opts.dumpTemplate, "dump-config-template", false, "Print the configuration template and exit")
	flags.BoolVar(&opts.dumpSchema, "dump-default-jsonschema", false, "Print the built-in configuration JSON schema and exit")
	flags.BoolVarP(&opts.daemonize, "daemonize", "d", false, "Detach from the terminal and run in the background")
	flags.StringVar(&opts.pidFile, "pid-file", "", "Write the supervisor PID here and refuse to start if another instance holds it")
	rootCmd.MarkFlagsMutuallyExclusive("dump-config-template", "dump-default-jsonschema")

	rootCmd.AddCommand(newWorkerCommand())
	rootCmd.AddCommand(newCtlCommand())

	return rootCmd
}

func dump(out io.Writer, text string) error {
	if _, err := io.WriteString(out, text); err != nil {
		return err
	}
	if !strings.HasSuffix(text, "\n") {
		_, err := io.WriteString(out, "\n")
		return err
	}
	return nil
}
