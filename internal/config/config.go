package config

import (
	_ "embed"
	"errors"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/pelletier/go-toml/v2"
)

//go:embed sample_config.toml
var sampleConfig string

// Mailbox describes the interprocess mailbox shared by the supervisor and its workers.
type Mailbox struct {
	Name           string `toml:"name"`
	Driver         string `toml:"driver"`
	Dir            string `toml:"dir"`
	Capacity       int    `toml:"capacity"`
	MaxMessageSize int    `toml:"max_message_size"`
	PollIntervalMS int    `toml:"poll_interval_ms"`
	RemoveStale    bool   `toml:"remove_stale"`
}

// Supervisor contains shutdown timing for the parent process.
type Supervisor struct {
	ShutdownGraceSeconds int `toml:"shutdown_grace_seconds"`
	KillTimeoutSeconds   int `toml:"kill_timeout_seconds"`
}

// Workers contains settings shared by every worker role.
type Workers struct {
	HeartbeatIntervalSeconds int `toml:"heartbeat_interval_seconds"`
}

// ControlPlane contains the control-plane listener settings.
type ControlPlane struct {
	Bind               string `toml:"bind"`
	ReadTimeoutSeconds int    `toml:"read_timeout_seconds"`
	AcceptBackoffMS    int    `toml:"accept_backoff_ms"`
}

// Logging contains configuration for log output.
type Logging struct {
	Format string `toml:"format"`
	Level  string `toml:"level"`
}

// Paths contains filesystem locations used by the supervisor.
type Paths struct {
	LogDir      string `toml:"log_dir"`
	PIDFile     string `toml:"pid_file"`
	MetricsFile string `toml:"metrics_file"`
}

// Config encapsulates all configuration values for irodsd.
//
// Configuration sections by subsystem:
//   - Mailbox: name, driver and sizing of the worker-to-supervisor channel
//   - Supervisor: termination grace period and kill escalation
//   - Workers: heartbeat cadence
//   - ControlPlane: TCP bind address and listener timeouts
//   - Logging: log format and level
//   - Paths: log directory, PID file and metrics textfile
type Config struct {
	Mailbox      Mailbox      `toml:"mailbox"`
	Supervisor   Supervisor   `toml:"supervisor"`
	Workers      Workers      `toml:"workers"`
	ControlPlane ControlPlane `toml:"control_plane"`
	Logging      Logging      `toml:"logging"`
	Paths        Paths        `toml:"paths"`
}

// ErrNotFound indicates the configuration file passed on the command line does not exist.
var ErrNotFound = errors.New("config file not found")

// Load reads, normalizes, and validates a configuration file. An empty path
// falls back to the default locations and then to repository defaults. An
// explicit path that does not exist is an error.
func Load(path string) (*Config, string, bool, error) {
	cfg := Default()

	resolvedPath, exists, err := resolveConfigPath(path)
	if err != nil {
		return nil, "", false, err
	}
	if strings.TrimSpace(path) != "" && !exists {
		return nil, resolvedPath, false, fmt.Errorf("%w: %s", ErrNotFound, resolvedPath)
	}

	if exists {
		file, err := os.Open(resolvedPath)
		if err != nil {
			return nil, "", false, fmt.Errorf("open config: %w", err)
		}
		defer file.Close()

		decoder := toml.NewDecoder(file)
		decoder.DisallowUnknownFields()
		if err := decoder.Decode(&cfg); err != nil {
			return nil, "", false, fmt.Errorf("parse config: %w", err)
		}
	}

	if err := cfg.normalize(); err != nil {
		return nil, "", false, err
	}

	if err := cfg.Validate(); err != nil {
		return nil, "", false, err
	}

	return &cfg, resolvedPath, exists, nil
}

// DefaultConfigPath returns the absolute path to the default configuration file location.
func DefaultConfigPath() (string, error) {
	return expandPath(defaultConfigPath)
}

func resolveConfigPath(path string) (string, bool, error) {
	if strings.TrimSpace(path) != "" {
		expanded, err := expandPath(path)
		if err != nil {
			return "", false, err
		}
		info, err := os.Stat(expanded)
		if err != nil {
			if errors.Is(err, fs.ErrNotExist) {
				return expanded, false, nil
			}
			return "", false, fmt.Errorf("stat config: %w", err)
		}
		if info.IsDir() {
			return "", false, fmt.Errorf("config path %q is a directory", expanded)
		}
		return expanded, true, nil
	}

	defaultPath, err := expandPath(defaultConfigPath)
	if err != nil {
		return "", false, err
	}
	if info, err := os.Stat(defaultPath); err == nil && !info.IsDir() {
		return defaultPath, true, nil
	}
	return defaultPath, false, nil
}

// EnsureDirectories creates directories the supervisor writes into.
func (c *Config) EnsureDirectories() error {
	dirs := []string{c.Paths.LogDir}
	if c.Mailbox.Driver == DriverSQLite {
		dirs = append(dirs, c.Mailbox.Dir)
	}
	for _, file := range []string{c.Paths.PIDFile, c.Paths.MetricsFile} {
		if file != "" {
			dirs = append(dirs, filepath.Dir(file))
		}
	}
	for _, dir := range dirs {
		if strings.TrimSpace(dir) == "" {
			continue
		}
		if err := os.MkdirAll(dir, 0o755); err != nil {
			return fmt.Errorf("create directory %q: %w", dir, err)
		}
	}
	return nil
}

// ShutdownGrace is how long the supervisor waits for a terminated worker before escalating.
func (c *Config) ShutdownGrace() time.Duration {
	return time.Duration(c.Supervisor.ShutdownGraceSeconds) * time.Second
}

// KillTimeout bounds the wait after a worker has been sent SIGKILL.
func (c *Config) KillTimeout() time.Duration {
	return time.Duration(c.Supervisor.KillTimeoutSeconds) * time.Second
}

// HeartbeatInterval is the cadence of worker status messages.
func (c *Config) HeartbeatInterval() time.Duration {
	return time.Duration(c.Workers.HeartbeatIntervalSeconds) * time.Second
}

// ReadTimeout bounds how long the control plane waits for a command line.
func (c *Config) ReadTimeout() time.Duration {
	return time.Duration(c.ControlPlane.ReadTimeoutSeconds) * time.Second
}

// AcceptBackoff is the minimum spacing between accept retries after a transport error.
func (c *Config) AcceptBackoff() time.Duration {
	return time.Duration(c.ControlPlane.AcceptBackoffMS) * time.Millisecond
}

// MailboxPollInterval is the polling cadence used by drivers without native blocking.
func (c *Config) MailboxPollInterval() time.Duration {
	return time.Duration(c.Mailbox.PollIntervalMS) * time.Millisecond
}

func expandPath(pathValue string) (string, error) {
	if pathValue == "" {
		return pathValue, nil
	}
	if strings.HasPrefix(pathValue, "~") {
		home, err := os.UserHomeDir()
		if err != nil {
			return "", fmt.Errorf("resolve home directory: %w", err)
		}
		if pathValue == "~" {
			pathValue = home
		} else if len(pathValue) > 1 && (pathValue[1] == '/' || pathValue[1] == '\\') {
			pathValue = filepath.Join(home, pathValue[2:])
		}
	}
	cleaned := filepath.Clean(pathValue)
	absolute, err := filepath.Abs(cleaned)
	if err != nil {
		return "", fmt.Errorf("resolve absolute path for %q: %w", cleaned, err)
	}
	return absolute, nil
}

// ExpandPath exposes the repository path expansion rules for other packages.
func ExpandPath(pathValue string) (string, error) {
	return expandPath(pathValue)
}

// Template returns the annotated sample configuration.
func Template() string {
	return sampleConfig
}
