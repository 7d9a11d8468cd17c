package worker

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/thejerf/suture/v4"
	"github.com/thejerf/sutureslog"

	"github.com/korydraughn/irodsd/internal/controlplane"
	"github.com/korydraughn/irodsd/internal/logging"
	"github.com/korydraughn/irodsd/internal/mailbox"
)

const (
	serviceFailureThreshold = 5
	serviceFailureDecay     = 30
	serviceFailureBackoff   = time.Second
	serviceStopTimeout      = 5 * time.Second
)

// Execute is the entry point of a worker process: it decodes args produced by
// Params.Args, sets up logging, and runs the role until SIGTERM or SIGINT.
func Execute(ctx context.Context, args []string) error {
	role, params, err := ParseParams(args)
	if err != nil {
		return err
	}
	logger, err := params.Logger(role)
	if err != nil {
		return err
	}

	ctx, stop := signal.NotifyContext(ctx, syscall.SIGTERM, syscall.SIGINT)
	defer stop()

	if err := Run(ctx, role, params, logger); err != nil {
		logging.ErrorWithContext(logger, "worker failed", "worker_failed", logging.Error(err))
		return err
	}
	return nil
}

// Logger builds the worker's logger, tagged with its role, PID and session.
func (p Params) Logger(role Role) (*slog.Logger, error) {
	logger, err := logging.New(logging.Options{
		Level:    p.LogLevel,
		Format:   p.LogFormat,
		FilePath: p.LogFile,
	})
	if err != nil {
		return nil, err
	}
	attrs := []logging.Attr{
		logging.String(logging.FieldRole, role.String()),
		logging.Int(logging.FieldPID, os.Getpid()),
	}
	if p.SessionID != "" {
		attrs = append(attrs, logging.String(logging.FieldSessionID, p.SessionID))
	}
	return logger.With(logging.Args(attrs...)...), nil
}

// Run opens the existing mailbox and serves the role's services until ctx is
// cancelled. It never creates the mailbox.
func Run(ctx context.Context, role Role, params Params, logger *slog.Logger) error {
	if logger == nil {
		logger = logging.NewNop()
	}
	mbx, err := mailbox.Open(params.MailboxOptions())
	if err != nil {
		return fmt.Errorf("open mailbox: %w", err)
	}
	defer func() {
		if closeErr := mbx.Close(); closeErr != nil {
			logger.Warn("close mailbox failed", logging.Error(closeErr))
		}
	}()

	sup := suture.New(role.String(), suture.Spec{
		EventHook:        (&sutureslog.Handler{Logger: logger}).MustHook(),
		FailureThreshold: serviceFailureThreshold,
		FailureDecay:     serviceFailureDecay,
		FailureBackoff:   serviceFailureBackoff,
		Timeout:          serviceStopTimeout,
	})

	switch role {
	case RequestFactory, JobRunner:
		sup.Add(NewHeartbeat(role, mbx, params.HeartbeatInterval, logger))
	case ControlPlane:
		sup.Add(controlplane.NewServer(controlplane.Options{
			Addr:          params.ControlPlaneAddr,
			ReadTimeout:   params.ReadTimeout,
			AcceptBackoff: params.AcceptBackoff,
			MaxLineLength: mbx.MaxMessageSize(),
		}, mbx, logger))
	default:
		return fmt.Errorf("unknown worker role %v", role)
	}

	logger.Info("worker started",
		logging.String("display_name", role.DisplayName()),
		logging.String(logging.FieldMailbox, mbx.Name()))

	err = sup.Serve(ctx)
	if err != nil && !errors.Is(err, context.Canceled) && !errors.Is(err, context.DeadlineExceeded) {
		return fmt.Errorf("serve %s: %w", role, err)
	}
	logger.Info("worker stopped")
	return nil
}
