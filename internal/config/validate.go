package config

import (
	"errors"
	"fmt"
	"net"
	"regexp"
	"strconv"
)

var mailboxNamePattern = regexp.MustCompile(`^[A-Za-z0-9_.-]{1,200}$`)

// ValidMailboxName reports whether name can be used for every mailbox driver.
func ValidMailboxName(name string) bool {
	return mailboxNamePattern.MatchString(name) && name != "." && name != ".."
}

// Validate ensures the configuration is usable.
func (c *Config) Validate() error {
	if err := c.validateMailbox(); err != nil {
		return err
	}
	if err := c.validateSupervisor(); err != nil {
		return err
	}
	if c.Workers.HeartbeatIntervalSeconds <= 0 {
		return errors.New("workers.heartbeat_interval_seconds must be positive")
	}
	if err := c.validateControlPlane(); err != nil {
		return err
	}
	return c.validateLogging()
}

func (c *Config) validateMailbox() error {
	if !ValidMailboxName(c.Mailbox.Name) {
		return fmt.Errorf("mailbox.name %q must match [A-Za-z0-9_.-]{1,200}", c.Mailbox.Name)
	}
	switch c.Mailbox.Driver {
	case DriverPOSIX, DriverSQLite:
	default:
		return fmt.Errorf("mailbox.driver %q must be %q or %q", c.Mailbox.Driver, DriverPOSIX, DriverSQLite)
	}
	if c.Mailbox.Capacity < 1 {
		return errors.New("mailbox.capacity must be at least 1")
	}
	if c.Mailbox.MaxMessageSize < 1 {
		return errors.New("mailbox.max_message_size must be at least 1")
	}
	return nil
}

func (c *Config) validateSupervisor() error {
	if c.Supervisor.ShutdownGraceSeconds < 0 {
		return errors.New("supervisor.shutdown_grace_seconds must not be negative")
	}
	if c.Supervisor.KillTimeoutSeconds <= 0 {
		return errors.New("supervisor.kill_timeout_seconds must be positive")
	}
	return nil
}

func (c *Config) validateControlPlane() error {
	_, port, err := net.SplitHostPort(c.ControlPlane.Bind)
	if err != nil {
		return fmt.Errorf("control_plane.bind %q: %w", c.ControlPlane.Bind, err)
	}
	n, err := strconv.Atoi(port)
	if err != nil || n < 0 || n > 65535 {
		return fmt.Errorf("control_plane.bind %q: invalid port", c.ControlPlane.Bind)
	}
	if c.ControlPlane.ReadTimeoutSeconds <= 0 {
		return errors.New("control_plane.read_timeout_seconds must be positive")
	}
	return nil
}

func (c *Config) validateLogging() error {
	switch c.Logging.Format {
	case "console", "json":
	default:
		return fmt.Errorf("logging.format %q must be console or json", c.Logging.Format)
	}
	switch c.Logging.Level {
	case "debug", "info", "warn", "error":
	default:
		return fmt.Errorf("logging.level %q must be debug, info, warn or error", c.Logging.Level)
	}
	return nil
}
