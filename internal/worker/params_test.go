package worker_test

import (
	"strings"
	"testing"
	"time"

	"github.com/korydraughn/irodsd/internal/testsupport"
	"github.com/korydraughn/irodsd/internal/worker"
)

func TestParamsArgsRoundTrip(t *testing.T) {
	cfg := testsupport.NewConfig(t)
	want := worker.ParamsFromConfig(cfg, "/tmp/irodsd.log", "5b7c")

	role, got, err := worker.ParseParams(want.Args(worker.JobRunner))
	if err != nil {
		t.Fatalf("ParseParams: %v", err)
	}
	if role != worker.JobRunner {
		t.Fatalf("role = %v", role)
	}
	if got != want {
		t.Fatalf("round trip mismatch:\n got %+v\nwant %+v", got, want)
	}
	opts := got.MailboxOptions()
	if opts.Name != cfg.Mailbox.Name || opts.Dir != cfg.Mailbox.Dir || opts.PollInterval != 10*time.Millisecond {
		t.Fatalf("unexpected mailbox options %+v", opts)
	}
}

func TestParseParamsRejectsBadInput(t *testing.T) {
	cfg := testsupport.NewConfig(t)
	base := worker.ParamsFromConfig(cfg, "", "")

	tests := []struct {
		name    string
		args    []string
		wantErr string
	}{
		{"missing role", base.Args(worker.JobRunner)[2:], "unknown worker role"},
		{"unknown flag", append(base.Args(worker.JobRunner), "--fork"), "unknown flag"},
		{"positional", append(base.Args(worker.JobRunner), "irods_config_derived_mq_name"), "unexpected worker arguments"},
		{"bad mailbox name", replaceFlag(base.Args(worker.JobRunner), "--mailbox-name", "a/b"), "--mailbox-name"},
		{"zero heartbeat", replaceFlag(base.Args(worker.RequestFactory), "--heartbeat-interval", "0s"), "--heartbeat-interval"},
		{"controlplane without addr", replaceFlag(base.Args(worker.ControlPlane), "--control-plane-addr", ""), "--control-plane-addr"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, _, err := worker.ParseParams(tt.args)
			if err == nil || !strings.Contains(err.Error(), tt.wantErr) {
				t.Fatalf("expected error containing %q, got %v", tt.wantErr, err)
			}
		})
	}
}

func replaceFlag(args []string, flag, value string) []string {
	out := append([]string(nil), args...)
	for i := 0; i < len(out)-1; i++ {
		if out[i] == flag {
			out[i+1] = value
		}
	}
	return out
}
