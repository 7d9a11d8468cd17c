package worker_test

import (
	"testing"

	"github.com/korydraughn/irodsd/internal/worker"
)

func TestRoles(t *testing.T) {
	tests := []struct {
		role    worker.Role
		wire    string
		display string
	}{
		{worker.RequestFactory, "requestfactory", "Request Factory"},
		{worker.JobRunner, "jobrunner", "Job Runner"},
		{worker.ControlPlane, "controlplane", "Control Plane"},
	}
	roles := worker.Roles()
	if len(roles) != len(tests) {
		t.Fatalf("Roles() = %v", roles)
	}
	for i, tt := range tests {
		if roles[i] != tt.role {
			t.Fatalf("spawn order[%d] = %v, want %v", i, roles[i], tt.role)
		}
		if got := tt.role.String(); got != tt.wire {
			t.Errorf("String() = %q, want %q", got, tt.wire)
		}
		if got := tt.role.DisplayName(); got != tt.display {
			t.Errorf("DisplayName() = %q, want %q", got, tt.display)
		}
		parsed, err := worker.ParseRole(" " + tt.wire + " ")
		if err != nil || parsed != tt.role {
			t.Errorf("ParseRole(%q) = %v, %v", tt.wire, parsed, err)
		}
	}
	if _, err := worker.ParseRole("agentfactory"); err == nil {
		t.Fatal("expected unknown role error")
	}
}
