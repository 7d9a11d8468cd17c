package worker

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/korydraughn/irodsd/internal/controlplane"
	"github.com/korydraughn/irodsd/internal/logging"
)

// Heartbeat periodically reports a role's liveness to the supervisor. It
// stands in for the request serving and job execution that live outside
// irodsd.
type Heartbeat struct {
	role     Role
	mailbox  controlplane.Sender
	interval time.Duration
	logger   *slog.Logger
}

// NewHeartbeat builds the liveness service for role.
func NewHeartbeat(role Role, mailbox controlplane.Sender, interval time.Duration, logger *slog.Logger) *Heartbeat {
	return &Heartbeat{
		role:     role,
		mailbox:  mailbox,
		interval: interval,
		logger:   logging.NewComponentLogger(logger, "heartbeat"),
	}
}

func (h *Heartbeat) String() string { return h.role.String() + "-heartbeat" }

// Payload is the message sent every interval.
func (h *Heartbeat) Payload() []byte {
	return []byte(h.role.String() + ": heartbeat")
}

// Serve sends a heartbeat every interval, the first after one full interval,
// until ctx is cancelled. A failed send is returned so suture restarts the
// service with backoff.
func (h *Heartbeat) Serve(ctx context.Context) error {
	ticker := time.NewTicker(h.interval)
	defer ticker.Stop()

	payload := h.Payload()
	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-ticker.C:
			if err := h.mailbox.Send(ctx, payload); err != nil {
				if errors.Is(err, context.Canceled) {
					return ctx.Err()
				}
				logging.WarnWithContext(h.logger, "heartbeat send failed", "worker_heartbeat_failed",
					logging.Error(err),
					logging.String(logging.FieldImpact, "supervisor misses liveness reports"),
					logging.String(logging.FieldErrorHint, "check that the mailbox still exists"))
				return fmt.Errorf("send heartbeat: %w", err)
			}
			h.logger.Debug("heartbeat sent")
		}
	}
}
