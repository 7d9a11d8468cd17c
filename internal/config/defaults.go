package config

import "runtime"

const (
	// DriverPOSIX selects the Linux POSIX message queue mailbox.
	DriverPOSIX = "posix"
	// DriverSQLite selects the file-backed SQLite mailbox.
	DriverSQLite = "sqlite"
)

const (
	defaultConfigPath             = "~/.config/irodsd/config.toml"
	defaultMailboxName            = "irodsd"
	defaultMailboxDir             = "~/.local/share/irodsd/mailbox"
	defaultMailboxCapacity        = 10
	defaultMailboxMaxMessageSize  = 512
	defaultMailboxPollIntervalMS  = 50
	defaultShutdownGraceSeconds   = 10
	defaultKillTimeoutSeconds     = 5
	defaultHeartbeatSeconds       = 5
	defaultControlPlaneBind       = "127.0.0.1:9000"
	defaultControlPlaneReadTimout = 10
	defaultAcceptBackoffMS        = 200
	defaultLogFormat              = "console"
	defaultLogLevel               = "info"
	defaultLogDir                 = "~/.local/share/irodsd/logs"
)

func defaultMailboxDriver() string {
	if runtime.GOOS == "linux" {
		return DriverPOSIX
	}
	return DriverSQLite
}

// Default returns a Config populated with repository defaults.
func Default() Config {
	return Config{
		Mailbox: Mailbox{
			Name:           defaultMailboxName,
			Driver:         defaultMailboxDriver(),
			Dir:            defaultMailboxDir,
			Capacity:       defaultMailboxCapacity,
			MaxMessageSize: defaultMailboxMaxMessageSize,
			PollIntervalMS: defaultMailboxPollIntervalMS,
			RemoveStale:    true,
		},
		Supervisor: Supervisor{
			ShutdownGraceSeconds: defaultShutdownGraceSeconds,
			KillTimeoutSeconds:   defaultKillTimeoutSeconds,
		},
		Workers: Workers{
			HeartbeatIntervalSeconds: defaultHeartbeatSeconds,
		},
		ControlPlane: ControlPlane{
			Bind:               defaultControlPlaneBind,
			ReadTimeoutSeconds: defaultControlPlaneReadTimout,
			AcceptBackoffMS:    defaultAcceptBackoffMS,
		},
		Logging: Logging{
			Format: defaultLogFormat,
			Level:  defaultLogLevel,
		},
		Paths: Paths{
			LogDir: defaultLogDir,
		},
	}
}
