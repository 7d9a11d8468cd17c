package daemonize_test

import (
	"fmt"
	"os"
	"path/filepath"
	"reflect"
	"strconv"
	"strings"
	"testing"
	"time"

	"golang.org/x/sys/unix"

	"github.com/korydraughn/irodsd/internal/daemonize"
)

const reportEnv = "IRODSD_DAEMONIZE_REPORT"

func TestMain(m *testing.M) {
	if path := os.Getenv(reportEnv); path != "" && daemonize.IsChild() {
		sid, _ := unix.Getsid(0)
		report := fmt.Sprintf("%d %d %s", os.Getpid(), sid, strings.Join(os.Args[1:], ","))
		_ = os.WriteFile(path+".tmp", []byte(report), 0o644)
		_ = os.Rename(path+".tmp", path)
		os.Exit(0)
	}
	os.Exit(m.Run())
}

func TestStripFlags(t *testing.T) {
	cases := []struct {
		in   []string
		want []string
	}{
		{[]string{"-d", "config.toml"}, []string{"config.toml"}},
		{[]string{"--daemonize", "--pid-file", "x.pid", "config.toml"}, []string{"--pid-file", "x.pid", "config.toml"}},
		{[]string{"--daemonize=true", "config.toml"}, []string{"config.toml"}},
		{[]string{"config.toml", "--", "-d"}, []string{"config.toml", "--", "-d"}},
		{[]string{}, []string{}},
	}
	for _, tc := range cases {
		if got := daemonize.StripFlags(tc.in); !reflect.DeepEqual(got, tc.want) {
			t.Fatalf("StripFlags(%v) = %v, want %v", tc.in, got, tc.want)
		}
	}
}

func TestDetachStartsNewSession(t *testing.T) {
	dir := t.TempDir()
	report := filepath.Join(dir, "report")
	t.Setenv(reportEnv, report)

	pid, err := daemonize.Detach(daemonize.Options{
		Args:       []string{"-d", "config.toml"},
		OutputPath: filepath.Join(dir, "daemon.out"),
	})
	if err != nil {
		t.Fatalf("Detach: %v", err)
	}
	if pid <= 0 || pid == os.Getpid() {
		t.Fatalf("bad child pid %d", pid)
	}

	var data []byte
	deadline := time.Now().Add(10 * time.Second)
	for {
		if data, err = os.ReadFile(report); err == nil {
			break
		}
		if time.Now().After(deadline) {
			t.Fatalf("child never reported: %v", err)
		}
		time.Sleep(20 * time.Millisecond)
	}

	fields := strings.SplitN(string(data), " ", 3)
	if len(fields) != 3 {
		t.Fatalf("unexpected report %q", data)
	}
	childPID, _ := strconv.Atoi(fields[0])
	sid, _ := strconv.Atoi(fields[1])
	if childPID != pid {
		t.Fatalf("report pid %d, want %d", childPID, pid)
	}
	if sid != pid {
		t.Fatalf("child is not a session leader: sid=%d pid=%d", sid, pid)
	}
	if fields[2] != "config.toml" {
		t.Fatalf("child args = %q, daemonize flag not stripped", fields[2])
	}
}

func TestDetachRefusesInChild(t *testing.T) {
	t.Setenv(daemonize.EnvMarker, "1")
	if _, err := daemonize.Detach(daemonize.Options{}); err == nil {
		t.Fatal("expected error when already daemonized")
	}
}
