package worker

import (
	"errors"
	"fmt"
	"io"
	"strconv"
	"time"

	"github.com/spf13/pflag"

	"github.com/korydraughn/irodsd/internal/config"
	"github.com/korydraughn/irodsd/internal/mailbox"
)

// Params is everything a worker process needs, passed explicitly on its
// command line.
type Params struct {
	MailboxName         string
	MailboxDriver       string
	MailboxDir          string
	MailboxPollInterval time.Duration

	HeartbeatInterval time.Duration

	ControlPlaneAddr string
	ReadTimeout      time.Duration
	AcceptBackoff    time.Duration

	LogLevel  string
	LogFormat string
	LogFile   string

	SessionID string
}

// ParamsFromConfig derives worker parameters from the loaded configuration.
func ParamsFromConfig(cfg *config.Config, logFile, sessionID string) Params {
	return Params{
		MailboxName:         cfg.Mailbox.Name,
		MailboxDriver:       cfg.Mailbox.Driver,
		MailboxDir:          cfg.Mailbox.Dir,
		MailboxPollInterval: cfg.MailboxPollInterval(),
		HeartbeatInterval:   cfg.HeartbeatInterval(),
		ControlPlaneAddr:    cfg.ControlPlane.Bind,
		ReadTimeout:         cfg.ReadTimeout(),
		AcceptBackoff:       cfg.AcceptBackoff(),
		LogLevel:            cfg.Logging.Level,
		LogFormat:           cfg.Logging.Format,
		LogFile:             logFile,
		SessionID:           sessionID,
	}
}

// MailboxOptions returns the options used to open the shared mailbox.
func (p Params) MailboxOptions() mailbox.Options {
	return mailbox.Options{
		Name:         p.MailboxName,
		Driver:       p.MailboxDriver,
		Dir:          p.MailboxDir,
		PollInterval: p.MailboxPollInterval,
	}
}

// Args encodes role and p as command-line flags understood by ParseParams.
func (p Params) Args(role Role) []string {
	args := []string{
		"--role", role.String(),
		"--mailbox-name", p.MailboxName,
		"--mailbox-driver", p.MailboxDriver,
		"--mailbox-dir", p.MailboxDir,
		"--mailbox-poll-interval", p.MailboxPollInterval.String(),
		"--heartbeat-interval", p.HeartbeatInterval.String(),
		"--control-plane-addr", p.ControlPlaneAddr,
		"--read-timeout", p.ReadTimeout.String(),
		"--accept-backoff", p.AcceptBackoff.String(),
		"--log-level", p.LogLevel,
		"--log-format", p.LogFormat,
	}
	if p.LogFile != "" {
		args = append(args, "--log-file", p.LogFile)
	}
	if p.SessionID != "" {
		args = append(args, "--session-id", p.SessionID)
	}
	return args
}

// ParseParams decodes arguments produced by Params.Args.
func ParseParams(args []string) (Role, Params, error) {
	var (
		p        Params
		roleName string
	)
	fs := pflag.NewFlagSet("worker", pflag.ContinueOnError)
	fs.SetOutput(io.Discard)
	fs.StringVar(&roleName, "role", "", "worker role")
	fs.StringVar(&p.MailboxName, "mailbox-name", "", "mailbox name")
	fs.StringVar(&p.MailboxDriver, "mailbox-driver", "", "mailbox driver")
	fs.StringVar(&p.MailboxDir, "mailbox-dir", "", "mailbox directory (sqlite driver)")
	fs.DurationVar(&p.MailboxPollInterval, "mailbox-poll-interval", 50*time.Millisecond, "mailbox poll interval")
	fs.DurationVar(&p.HeartbeatInterval, "heartbeat-interval", 5*time.Second, "heartbeat interval")
	fs.StringVar(&p.ControlPlaneAddr, "control-plane-addr", "", "control-plane listen address")
	fs.DurationVar(&p.ReadTimeout, "read-timeout", 10*time.Second, "control-plane read timeout")
	fs.DurationVar(&p.AcceptBackoff, "accept-backoff", 200*time.Millisecond, "control-plane accept backoff")
	fs.StringVar(&p.LogLevel, "log-level", "info", "log level")
	fs.StringVar(&p.LogFormat, "log-format", "console", "log format")
	fs.StringVar(&p.LogFile, "log-file", "", "JSON log file shared with the supervisor")
	fs.StringVar(&p.SessionID, "session-id", "", "supervisor session ID")

	if err := fs.Parse(args); err != nil {
		return 0, Params{}, fmt.Errorf("parse worker arguments: %w", err)
	}
	if fs.NArg() > 0 {
		return 0, Params{}, fmt.Errorf("unexpected worker arguments %q", fs.Args())
	}
	role, err := ParseRole(roleName)
	if err != nil {
		return 0, Params{}, err
	}
	if err := p.validate(role); err != nil {
		return 0, Params{}, err
	}
	return role, p, nil
}

func (p Params) validate(role Role) error {
	if !config.ValidMailboxName(p.MailboxName) {
		return fmt.Errorf("--mailbox-name %s is invalid", strconv.Quote(p.MailboxName))
	}
	if p.MailboxDriver == "" {
		return errors.New("--mailbox-driver is required")
	}
	switch role {
	case RequestFactory, JobRunner:
		if p.HeartbeatInterval <= 0 {
			return errors.New("--heartbeat-interval must be positive")
		}
	case ControlPlane:
		if p.ControlPlaneAddr == "" {
			return errors.New("--control-plane-addr is required for the control plane")
		}
	}
	return nil
}
