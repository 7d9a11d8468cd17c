package worker_test

import (
	"context"
	"testing"
	"time"

	"github.com/korydraughn/irodsd/internal/controlplane"
)

// sendShutdown retries until the listener is bound.
func sendShutdown(t *testing.T, addr string) {
	t.Helper()
	deadline := time.Now().Add(10 * time.Second)
	for {
		ctx, cancel := context.WithTimeout(context.Background(), time.Second)
		err := controlplane.Send(ctx, addr, controlplane.ShutdownKeyword)
		cancel()
		if err == nil {
			return
		}
		if time.Now().After(deadline) {
			t.Fatalf("send shutdown to %s: %v", addr, err)
		}
		time.Sleep(50 * time.Millisecond)
	}
}
