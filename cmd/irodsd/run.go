package main

import (
	"errors"
	"fmt"
	"os"
	"os/signal"
	"path/filepath"
	"strings"
	"syscall"

	"github.com/google/uuid"
	"github.com/spf13/cobra"

	"github.com/korydraughn/irodsd/internal/config"
	"github.com/korydraughn/irodsd/internal/daemonize"
	"github.com/korydraughn/irodsd/internal/logging"
	"github.com/korydraughn/irodsd/internal/pidfile"
	"github.com/korydraughn/irodsd/internal/supervisor"
)

// daemonOutputName collects stdout/stderr of a daemonized supervisor.
const daemonOutputName = "irodsd.out"

func runSupervisor(cmd *cobra.Command, configPath string, opts *rootOptions) error {
	if err := validateSchema(configPath, opts.schemaFile); err != nil {
		return err
	}
	cfg, resolvedPath, _, err := config.Load(configPath)
	if err != nil {
		return fmt.Errorf("load config: %w", err)
	}
	if err := cfg.EnsureDirectories(); err != nil {
		return err
	}

	pidPath := cfg.Paths.PIDFile
	if strings.TrimSpace(opts.pidFile) != "" {
		if pidPath, err = config.ExpandPath(opts.pidFile); err != nil {
			return fmt.Errorf("resolve pid file: %w", err)
		}
	}

	if opts.daemonize && !daemonize.IsChild() {
		if err := pidfile.Probe(pidPath); err != nil {
			return err
		}
		pid, err := daemonize.Detach(daemonize.Options{
			Args:       os.Args[1:],
			OutputPath: filepath.Join(cfg.Paths.LogDir, daemonOutputName),
		})
		if err != nil {
			return err
		}
		fmt.Fprintf(cmd.OutOrStdout(), "irodsd running in the background (pid %d)\n", pid)
		return nil
	}

	var pidFile *pidfile.File
	if pidPath != "" {
		if pidFile, err = pidfile.Acquire(pidPath); err != nil {
			return err
		}
	}

	sessionID := uuid.NewString()
	logger, err := logging.NewFromConfig(cfg)
	if err != nil {
		_ = pidFile.Release()
		return fmt.Errorf("init logger: %w", err)
	}
	ctx := logging.WithSessionID(cmd.Context(), sessionID)
	logger = logging.WithContext(ctx, logger).With(logging.Int(logging.FieldPID, os.Getpid()))
	defer func() {
		if err := pidFile.Release(); err != nil {
			logger.Warn("release pid file failed", logging.Error(err))
		}
	}()

	logger.Info("irodsd starting",
		logging.String(logging.FieldEventType, "supervisor_starting"),
		logging.String("version", version),
		logging.String("config", resolvedPath),
		logging.String("pid_file", pidPath),
		logging.Bool("daemonized", daemonize.IsChild()))

	signals := make(chan os.Signal, 1)
	signal.Notify(signals, syscall.SIGINT, syscall.SIGTERM)
	defer signal.Stop(signals)

	supOpts := supervisor.OptionsFromConfig(cfg, logging.LogFilePath(cfg), sessionID)
	supOpts.Signals = signals
	supOpts.Logger = logger
	sup := supervisor.New(supOpts)

	if err := sup.Start(ctx); err != nil {
		logging.ErrorWithContext(logger, "supervisor start failed", "supervisor_start_failed",
			logging.Error(err),
			logging.String(logging.FieldErrorHint, startFailureHint(err)))
		return err
	}

	runErr := sup.Run(ctx)
	if !daemonize.IsChild() {
		printSummary(cmd.OutOrStdout(), sup.Handles())
	}
	if runErr != nil {
		logging.ErrorWithContext(logger, "supervisor stopped with errors", "supervisor_failed", logging.Error(runErr))
		return runErr
	}
	logger.Info("irodsd stopped", logging.String(logging.FieldEventType, "supervisor_stopped"))
	return nil
}

func validateSchema(configPath, schemaFile string) error {
	var err error
	if strings.TrimSpace(schemaFile) != "" {
		err = config.ValidateSchemaFile(configPath, schemaFile)
	} else {
		err = config.ValidateSchema(configPath, nil)
	}
	if err != nil {
		return fmt.Errorf("validate config: %w", err)
	}
	return nil
}

func startFailureHint(err error) string {
	switch {
	case errors.Is(err, supervisor.ErrMailboxCreate):
		return "another irodsd may be running, or set mailbox.remove_stale"
	default:
		return "check that the irodsd executable can be re-executed"
	}
}
