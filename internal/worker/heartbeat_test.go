package worker_test

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/korydraughn/irodsd/internal/logging"
	"github.com/korydraughn/irodsd/internal/worker"
)

type stubSender struct {
	mu   sync.Mutex
	sent []time.Time
	body []string
	err  error
}

func (s *stubSender) Send(_ context.Context, payload []byte) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.err != nil {
		return s.err
	}
	s.sent = append(s.sent, time.Now())
	s.body = append(s.body, string(payload))
	return nil
}

func TestHeartbeatSendsAfterEachInterval(t *testing.T) {
	sender := &stubSender{}
	hb := worker.NewHeartbeat(worker.RequestFactory, sender, 50*time.Millisecond, logging.NewNop())

	ctx, cancel := context.WithCancel(context.Background())
	start := time.Now()
	done := make(chan error, 1)
	go func() { done <- hb.Serve(ctx) }()

	time.Sleep(180 * time.Millisecond)
	cancel()
	if err := <-done; !errors.Is(err, context.Canceled) {
		t.Fatalf("Serve returned %v", err)
	}

	sender.mu.Lock()
	defer sender.mu.Unlock()
	if len(sender.body) < 2 {
		t.Fatalf("expected at least two heartbeats, got %d", len(sender.body))
	}
	if first := sender.sent[0].Sub(start); first < 45*time.Millisecond {
		t.Fatalf("first heartbeat after %v, want one full interval", first)
	}
	for _, body := range sender.body {
		if body != "requestfactory: heartbeat" {
			t.Fatalf("unexpected payload %q", body)
		}
	}
}

func TestHeartbeatReturnsSendFailure(t *testing.T) {
	sender := &stubSender{err: errors.New("mailbox gone")}
	hb := worker.NewHeartbeat(worker.JobRunner, sender, 10*time.Millisecond, logging.NewNop())

	ctx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
	defer cancel()
	err := hb.Serve(ctx)
	if err == nil || errors.Is(err, context.DeadlineExceeded) {
		t.Fatalf("expected send failure, got %v", err)
	}
}
