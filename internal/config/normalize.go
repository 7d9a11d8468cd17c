package config

import (
	"fmt"
	"strings"
)

func (c *Config) normalize() error {
	if err := c.normalizePaths(); err != nil {
		return err
	}
	c.normalizeMailbox()
	c.normalizeControlPlane()
	c.normalizeLogging()
	return nil
}

func (c *Config) normalizePaths() error {
	var err error
	if c.Paths.LogDir, err = expandPath(strings.TrimSpace(c.Paths.LogDir)); err != nil {
		return fmt.Errorf("paths.log_dir: %w", err)
	}
	if c.Paths.PIDFile, err = expandPath(strings.TrimSpace(c.Paths.PIDFile)); err != nil {
		return fmt.Errorf("paths.pid_file: %w", err)
	}
	if c.Paths.MetricsFile, err = expandPath(strings.TrimSpace(c.Paths.MetricsFile)); err != nil {
		return fmt.Errorf("paths.metrics_file: %w", err)
	}
	if strings.TrimSpace(c.Mailbox.Dir) == "" {
		c.Mailbox.Dir = defaultMailboxDir
	}
	if c.Mailbox.Dir, err = expandPath(c.Mailbox.Dir); err != nil {
		return fmt.Errorf("mailbox.dir: %w", err)
	}
	return nil
}

func (c *Config) normalizeMailbox() {
	c.Mailbox.Name = strings.TrimSpace(c.Mailbox.Name)
	c.Mailbox.Driver = strings.ToLower(strings.TrimSpace(c.Mailbox.Driver))
	if c.Mailbox.Driver == "" {
		c.Mailbox.Driver = defaultMailboxDriver()
	}
	if c.Mailbox.PollIntervalMS <= 0 {
		c.Mailbox.PollIntervalMS = defaultMailboxPollIntervalMS
	}
}

func (c *Config) normalizeControlPlane() {
	c.ControlPlane.Bind = strings.TrimSpace(c.ControlPlane.Bind)
	if c.ControlPlane.AcceptBackoffMS <= 0 {
		c.ControlPlane.AcceptBackoffMS = defaultAcceptBackoffMS
	}
}

func (c *Config) normalizeLogging() {
	c.Logging.Format = strings.ToLower(strings.TrimSpace(c.Logging.Format))
	if c.Logging.Format == "" {
		c.Logging.Format = defaultLogFormat
	}
	c.Logging.Level = strings.ToLower(strings.TrimSpace(c.Logging.Level))
	if c.Logging.Level == "" {
		c.Logging.Level = defaultLogLevel
	}
}
