package testsupport

import (
	"fmt"
	"os"
	"path/filepath"
	"testing"

	"github.com/korydraughn/irodsd/internal/config"
)

// ConfigOption allows callers to customize the generated test configuration.
type ConfigOption func(*configBuilder)

type configBuilder struct {
	t       testing.TB
	baseDir string
	cfg     *config.Config
}

// NewConfig produces a config seeded with unique temp directories, a unique
// mailbox name, a free control-plane port and short timings. It uses the
// portable sqlite mailbox unless an option says otherwise.
func NewConfig(t testing.TB, opts ...ConfigOption) *config.Config {
	t.Helper()

	base := t.TempDir()
	cfgVal := config.Default()
	cfgVal.Mailbox.Name = fmt.Sprintf("irodsd-test-%d-%d", os.Getpid(), nextID())
	cfgVal.Mailbox.Driver = config.DriverSQLite
	cfgVal.Mailbox.Dir = filepath.Join(base, "mailbox")
	cfgVal.Mailbox.PollIntervalMS = 10
	cfgVal.Workers.HeartbeatIntervalSeconds = 1
	cfgVal.Supervisor.ShutdownGraceSeconds = 5
	cfgVal.Supervisor.KillTimeoutSeconds = 5
	cfgVal.ControlPlane.Bind = FreeTCPAddr(t)
	cfgVal.ControlPlane.ReadTimeoutSeconds = 2
	cfgVal.Paths.LogDir = filepath.Join(base, "logs")

	builder := &configBuilder{
		t:       t,
		baseDir: base,
		cfg:     &cfgVal,
	}

	for _, opt := range opts {
		opt(builder)
	}

	if err := builder.cfg.Validate(); err != nil {
		t.Fatalf("test config invalid: %v", err)
	}
	return builder.cfg
}

// WithDriver selects the mailbox driver.
func WithDriver(driver string) ConfigOption {
	return func(b *configBuilder) {
		b.cfg.Mailbox.Driver = driver
	}
}

// WithGracePeriod sets the termination grace period in seconds.
func WithGracePeriod(seconds int) ConfigOption {
	return func(b *configBuilder) {
		b.cfg.Supervisor.ShutdownGraceSeconds = seconds
	}
}

// WithMetricsFile enables the metrics textfile under the test directory.
func WithMetricsFile() ConfigOption {
	return func(b *configBuilder) {
		b.cfg.Paths.MetricsFile = filepath.Join(b.baseDir, "metrics", "irodsd.prom")
	}
}

// WithPIDFile sets a PID file under the test directory.
func WithPIDFile() ConfigOption {
	return func(b *configBuilder) {
		b.cfg.Paths.PIDFile = filepath.Join(b.baseDir, "run", "irodsd.pid")
	}
}

// BaseDir returns the root temp directory backing the generated config.
func BaseDir(cfg *config.Config) string {
	return filepath.Dir(cfg.Mailbox.Dir)
}
