package supervisor

import (
	"log/slog"
	"os"
	"time"

	"github.com/korydraughn/irodsd/internal/config"
	"github.com/korydraughn/irodsd/internal/mailbox"
	"github.com/korydraughn/irodsd/internal/worker"
)

const (
	defaultShutdownGrace = 10 * time.Second
	defaultKillTimeout   = 5 * time.Second
)

// Options configures a Supervisor.
type Options struct {
	Mailbox     mailbox.Options
	RemoveStale bool

	// Roles are spawned in order and stopped in reverse; defaults to worker.Roles().
	Roles   []worker.Role
	Spawner worker.Spawner
	Params  worker.Params

	ShutdownGrace time.Duration
	KillTimeout   time.Duration

	// MetricsFile receives a Prometheus textfile after every state change and message.
	MetricsFile string
	// Signals delivers SIGINT/SIGTERM; nil disables signal handling.
	Signals <-chan os.Signal

	Logger *slog.Logger
}

// OptionsFromConfig turns the loaded configuration into supervisor options.
func OptionsFromConfig(cfg *config.Config, logFile, sessionID string) Options {
	return Options{
		Mailbox:       mailbox.OptionsFromConfig(cfg),
		RemoveStale:   cfg.Mailbox.RemoveStale,
		Roles:         worker.Roles(),
		Spawner:       worker.ExecSpawner{},
		Params:        worker.ParamsFromConfig(cfg, logFile, sessionID),
		ShutdownGrace: cfg.ShutdownGrace(),
		KillTimeout:   cfg.KillTimeout(),
		MetricsFile:   cfg.Paths.MetricsFile,
	}
}

func (o Options) withDefaults() Options {
	if len(o.Roles) == 0 {
		o.Roles = worker.Roles()
	}
	if o.Spawner == nil {
		o.Spawner = worker.ExecSpawner{}
	}
	if o.ShutdownGrace < 0 {
		o.ShutdownGrace = defaultShutdownGrace
	}
	if o.KillTimeout <= 0 {
		o.KillTimeout = defaultKillTimeout
	}
	return o
}
