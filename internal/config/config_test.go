package config_test

import (
	"errors"
	"os"
	"path/filepath"
	"runtime"
	"strings"
	"testing"

	"github.com/pelletier/go-toml/v2"

	"github.com/korydraughn/irodsd/internal/config"
)

func TestLoadDefaultConfigExpandsPaths(t *testing.T) {
	tempHome := t.TempDir()
	t.Setenv("HOME", tempHome)

	cfg, resolved, exists, err := config.Load("")
	if err != nil {
		t.Fatalf("Load returned error: %v", err)
	}
	if resolved != filepath.Join(tempHome, ".config", "irodsd", "config.toml") {
		t.Fatalf("unexpected resolved path %q", resolved)
	}
	if exists {
		t.Fatal("expected config file to be absent in temp HOME")
	}

	if cfg.Mailbox.Name != "irodsd" || cfg.Mailbox.Capacity != 10 || cfg.Mailbox.MaxMessageSize != 512 {
		t.Fatalf("unexpected mailbox defaults: %+v", cfg.Mailbox)
	}
	wantDriver := config.DriverSQLite
	if runtime.GOOS == "linux" {
		wantDriver = config.DriverPOSIX
	}
	if cfg.Mailbox.Driver != wantDriver {
		t.Fatalf("driver = %q, want %q", cfg.Mailbox.Driver, wantDriver)
	}
	if !cfg.Mailbox.RemoveStale {
		t.Fatal("expected remove_stale default true")
	}
	if want := filepath.Join(tempHome, ".local", "share", "irodsd", "mailbox"); cfg.Mailbox.Dir != want {
		t.Fatalf("mailbox dir = %q, want %q", cfg.Mailbox.Dir, want)
	}
	if want := filepath.Join(tempHome, ".local", "share", "irodsd", "logs"); cfg.Paths.LogDir != want {
		t.Fatalf("log dir = %q, want %q", cfg.Paths.LogDir, want)
	}
	if cfg.Paths.PIDFile != "" || cfg.Paths.MetricsFile != "" {
		t.Fatalf("expected empty pid/metrics paths, got %+v", cfg.Paths)
	}
	if cfg.ControlPlane.Bind != "127.0.0.1:9000" {
		t.Fatalf("unexpected bind %q", cfg.ControlPlane.Bind)
	}
	if cfg.ShutdownGrace().Seconds() != 10 || cfg.KillTimeout().Seconds() != 5 {
		t.Fatalf("unexpected shutdown timing: %v %v", cfg.ShutdownGrace(), cfg.KillTimeout())
	}
	if cfg.HeartbeatInterval().Seconds() != 5 || cfg.AcceptBackoff().Milliseconds() != 200 {
		t.Fatalf("unexpected worker timing: %v %v", cfg.HeartbeatInterval(), cfg.AcceptBackoff())
	}
}

func TestLoadExplicitMissingPathFails(t *testing.T) {
	_, _, _, err := config.Load(filepath.Join(t.TempDir(), "missing.toml"))
	if !errors.Is(err, config.ErrNotFound) {
		t.Fatalf("expected ErrNotFound, got %v", err)
	}
}

func TestLoadCustomConfigOverrides(t *testing.T) {
	tempHome := t.TempDir()
	t.Setenv("HOME", tempHome)
	path := filepath.Join(tempHome, "irodsd.toml")

	payload := map[string]any{
		"mailbox": map[string]any{
			"name":     "irods_config_derived_mq_name",
			"driver":   "SQLite",
			"dir":      "~/mq",
			"capacity": 4,
		},
		"control_plane": map[string]any{"bind": "127.0.0.1:0"},
		"paths": map[string]any{
			"pid_file":     "~/run/irodsd.pid",
			"metrics_file": "~/metrics/irodsd.prom",
		},
		"logging": map[string]any{"format": " JSON "},
	}
	data, err := toml.Marshal(payload)
	if err != nil {
		t.Fatalf("marshal toml: %v", err)
	}
	if err := os.WriteFile(path, data, 0o644); err != nil {
		t.Fatalf("write config: %v", err)
	}

	cfg, resolved, exists, err := config.Load(path)
	if err != nil {
		t.Fatalf("Load returned error: %v", err)
	}
	if !exists || resolved != path {
		t.Fatalf("unexpected resolution: %q exists=%v", resolved, exists)
	}
	if cfg.Mailbox.Name != "irods_config_derived_mq_name" || cfg.Mailbox.Capacity != 4 {
		t.Fatalf("unexpected mailbox: %+v", cfg.Mailbox)
	}
	if cfg.Mailbox.MaxMessageSize != 512 {
		t.Fatalf("expected untouched key to keep default, got %d", cfg.Mailbox.MaxMessageSize)
	}
	if cfg.Mailbox.Driver != config.DriverSQLite || cfg.Logging.Format != "json" {
		t.Fatalf("expected normalized driver/format, got %q %q", cfg.Mailbox.Driver, cfg.Logging.Format)
	}
	if cfg.Mailbox.Dir != filepath.Join(tempHome, "mq") {
		t.Fatalf("mailbox dir = %q", cfg.Mailbox.Dir)
	}
	if cfg.Paths.PIDFile != filepath.Join(tempHome, "run", "irodsd.pid") {
		t.Fatalf("pid file = %q", cfg.Paths.PIDFile)
	}

	if err := cfg.EnsureDirectories(); err != nil {
		t.Fatalf("EnsureDirectories: %v", err)
	}
	for _, dir := range []string{cfg.Paths.LogDir, cfg.Mailbox.Dir, filepath.Join(tempHome, "run"), filepath.Join(tempHome, "metrics")} {
		if info, err := os.Stat(dir); err != nil || !info.IsDir() {
			t.Fatalf("expected directory %q: %v", dir, err)
		}
	}
}

func TestLoadRejectsUnknownKeys(t *testing.T) {
	path := filepath.Join(t.TempDir(), "config.toml")
	if err := os.WriteFile(path, []byte("[mailbox]\nnmae = \"typo\"\n"), 0o644); err != nil {
		t.Fatalf("write config: %v", err)
	}
	if _, _, _, err := config.Load(path); err == nil {
		t.Fatal("expected unknown key to be rejected")
	}
}

func TestValidate(t *testing.T) {
	tests := []struct {
		name    string
		mutate  func(*config.Config)
		wantErr string
	}{
		{name: "defaults", mutate: func(*config.Config) {}},
		{name: "bad name", mutate: func(c *config.Config) { c.Mailbox.Name = "a/b" }, wantErr: "mailbox.name"},
		{name: "dot name", mutate: func(c *config.Config) { c.Mailbox.Name = ".." }, wantErr: "mailbox.name"},
		{name: "long name", mutate: func(c *config.Config) { c.Mailbox.Name = strings.Repeat("a", 201) }, wantErr: "mailbox.name"},
		{name: "bad driver", mutate: func(c *config.Config) { c.Mailbox.Driver = "redis" }, wantErr: "mailbox.driver"},
		{name: "zero capacity", mutate: func(c *config.Config) { c.Mailbox.Capacity = 0 }, wantErr: "mailbox.capacity"},
		{name: "zero message size", mutate: func(c *config.Config) { c.Mailbox.MaxMessageSize = 0 }, wantErr: "mailbox.max_message_size"},
		{name: "negative grace", mutate: func(c *config.Config) { c.Supervisor.ShutdownGraceSeconds = -1 }, wantErr: "shutdown_grace_seconds"},
		{name: "zero kill timeout", mutate: func(c *config.Config) { c.Supervisor.KillTimeoutSeconds = 0 }, wantErr: "kill_timeout_seconds"},
		{name: "zero heartbeat", mutate: func(c *config.Config) { c.Workers.HeartbeatIntervalSeconds = 0 }, wantErr: "heartbeat_interval_seconds"},
		{name: "bind without port", mutate: func(c *config.Config) { c.ControlPlane.Bind = "localhost" }, wantErr: "control_plane.bind"},
		{name: "bind bad port", mutate: func(c *config.Config) { c.ControlPlane.Bind = "localhost:99999" }, wantErr: "invalid port"},
		{name: "bad level", mutate: func(c *config.Config) { c.Logging.Level = "trace" }, wantErr: "logging.level"},
		{name: "bad format", mutate: func(c *config.Config) { c.Logging.Format = "xml" }, wantErr: "logging.format"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			cfg := config.Default()
			tt.mutate(&cfg)
			err := cfg.Validate()
			if tt.wantErr == "" {
				if err != nil {
					t.Fatalf("unexpected error: %v", err)
				}
				return
			}
			if err == nil || !strings.Contains(err.Error(), tt.wantErr) {
				t.Fatalf("expected error containing %q, got %v", tt.wantErr, err)
			}
		})
	}
}

func TestTemplateLoadsCleanly(t *testing.T) {
	tempHome := t.TempDir()
	t.Setenv("HOME", tempHome)
	path := filepath.Join(tempHome, "config.toml")
	if err := os.WriteFile(path, []byte(config.Template()), 0o644); err != nil {
		t.Fatalf("write template: %v", err)
	}
	if _, _, _, err := config.Load(path); err != nil {
		t.Fatalf("sample config failed to load: %v", err)
	}
	if err := config.ValidateSchema(path, nil); err != nil {
		t.Fatalf("sample config failed default schema: %v", err)
	}
}
