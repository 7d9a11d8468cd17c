package controlplane

import (
	"context"
	"errors"
	"net"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/korydraughn/irodsd/internal/logging"
)

type recordingSender struct {
	mu    sync.Mutex
	sent  []string
	calls chan string
	err   error
}

func newRecordingSender() *recordingSender {
	return &recordingSender{calls: make(chan string, 8)}
}

func (r *recordingSender) Send(_ context.Context, payload []byte) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.err != nil {
		return r.err
	}
	r.sent = append(r.sent, string(payload))
	r.calls <- string(payload)
	return nil
}

func (r *recordingSender) payloads() []string {
	r.mu.Lock()
	defer r.mu.Unlock()
	return append([]string(nil), r.sent...)
}

func startServer(t *testing.T, opts Options, sender Sender) (*Server, context.CancelFunc, <-chan error) {
	t.Helper()
	if opts.Addr == "" {
		opts.Addr = "127.0.0.1:0"
	}
	srv := NewServer(opts, sender, logging.NewNop())
	ctx, cancel := context.WithCancel(context.Background())
	if err := srv.Listen(ctx); err != nil {
		cancel()
		t.Fatalf("Listen: %v", err)
	}
	done := make(chan error, 1)
	go func() { done <- srv.Serve(ctx) }()
	t.Cleanup(cancel)
	return srv, cancel, done
}

func TestServerForwardsShutdownOnce(t *testing.T) {
	sender := newRecordingSender()
	srv, cancel, done := startServer(t, Options{}, sender)
	addr := srv.Addr().String()

	ctx, cancelSend := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancelSend()

	if err := Send(ctx, addr, "status"); err != nil {
		t.Fatalf("Send status: %v", err)
	}
	if err := Send(ctx, addr, "shutdown"); err != nil {
		t.Fatalf("Send shutdown: %v", err)
	}

	select {
	case got := <-sender.calls:
		if got != ShutdownKeyword {
			t.Fatalf("mailbox received %q", got)
		}
	case <-time.After(5 * time.Second):
		t.Fatal("shutdown was not forwarded")
	}
	if got := sender.payloads(); len(got) != 1 {
		t.Fatalf("expected exactly one mailbox message, got %q", got)
	}
	if !srv.ShutdownRequested() {
		t.Fatal("expected ShutdownRequested")
	}

	if srv.Addr() != nil {
		t.Fatal("expected listener to be closed after shutdown")
	}
	if conn, err := net.DialTimeout("tcp", addr, time.Second); err == nil {
		conn.Close()
		t.Fatal("expected connection refused after shutdown")
	}

	select {
	case err := <-done:
		t.Fatalf("Serve returned before cancellation: %v", err)
	case <-time.After(200 * time.Millisecond):
	}
	cancel()
	select {
	case err := <-done:
		if !errors.Is(err, context.Canceled) {
			t.Fatalf("Serve returned %v, want context.Canceled", err)
		}
	case <-time.After(5 * time.Second):
		t.Fatal("Serve did not return after cancellation")
	}
}

func TestServerIgnoresUnknownAndOversizedLines(t *testing.T) {
	sender := newRecordingSender()
	srv, cancel, done := startServer(t, Options{MaxLineLength: 16}, sender)
	addr := srv.Addr().String()
	ctx := context.Background()

	for _, line := range []string{"status", "", strings.Repeat("x", 64), "shutdown please"} {
		if err := Send(ctx, addr, line); err != nil {
			t.Fatalf("Send %q: %v", line, err)
		}
	}

	// A shutdown sent last proves the earlier lines were consumed without effect.
	if err := Send(ctx, addr, "shutdown"); err != nil {
		t.Fatalf("Send shutdown: %v", err)
	}
	select {
	case <-sender.calls:
	case <-time.After(5 * time.Second):
		t.Fatal("shutdown was not forwarded")
	}
	if got := sender.payloads(); len(got) != 1 || got[0] != ShutdownKeyword {
		t.Fatalf("unexpected mailbox traffic %q", got)
	}
	cancel()
	<-done
}

func TestServerRecoversFromSilentClient(t *testing.T) {
	sender := newRecordingSender()
	srv, cancel, done := startServer(t, Options{ReadTimeout: 100 * time.Millisecond}, sender)
	addr := srv.Addr().String()

	idle, err := net.Dial("tcp", addr)
	if err != nil {
		t.Fatalf("dial: %v", err)
	}
	defer idle.Close()

	if err := Send(context.Background(), addr, "shutdown"); err != nil {
		t.Fatalf("Send: %v", err)
	}
	select {
	case <-sender.calls:
	case <-time.After(5 * time.Second):
		t.Fatal("silent client blocked the accept loop")
	}
	cancel()
	<-done
}

func TestServerRetriesFailedForwardAfterRestart(t *testing.T) {
	sender := newRecordingSender()
	sender.err = errors.New("mailbox unavailable")
	srv, _, done := startServer(t, Options{}, sender)

	if err := Send(context.Background(), srv.Addr().String(), "shutdown"); err != nil {
		t.Fatalf("Send: %v", err)
	}
	select {
	case err := <-done:
		if err == nil || errors.Is(err, context.Canceled) {
			t.Fatalf("expected forward error, got %v", err)
		}
	case <-time.After(5 * time.Second):
		t.Fatal("Serve did not report the forward failure")
	}

	sender.mu.Lock()
	sender.err = nil
	sender.mu.Unlock()

	ctx, cancel := context.WithCancel(context.Background())
	restarted := make(chan error, 1)
	go func() { restarted <- srv.Serve(ctx) }()
	select {
	case got := <-sender.calls:
		if got != ShutdownKeyword {
			t.Fatalf("unexpected payload %q", got)
		}
	case <-time.After(5 * time.Second):
		t.Fatal("restarted Serve did not forward shutdown")
	}
	if srv.Addr() != nil {
		t.Fatal("restarted Serve must not listen again after shutdown")
	}
	cancel()
	<-restarted
}

func TestSendRejectsMultiLineCommand(t *testing.T) {
	if err := Send(context.Background(), "127.0.0.1:1", "shutdown\nshutdown"); err == nil {
		t.Fatal("expected error for multi-line command")
	}
}

// flakyListener fails the first n Accept calls with a transport error and
// records when each call happened.
type flakyListener struct {
	net.Listener

	mu       sync.Mutex
	failures int
	calls    []time.Time
}

func (l *flakyListener) Accept() (net.Conn, error) {
	l.mu.Lock()
	l.calls = append(l.calls, time.Now())
	fail := l.failures > 0
	if fail {
		l.failures--
	}
	l.mu.Unlock()
	if fail {
		return nil, errors.New("accept tcp: too many open files")
	}
	return l.Listener.Accept()
}

func (l *flakyListener) acceptTimes() []time.Time {
	l.mu.Lock()
	defer l.mu.Unlock()
	return append([]time.Time(nil), l.calls...)
}

func TestServerKeepsAcceptingAfterTransportErrors(t *testing.T) {
	inner, err := net.Listen("tcp", "127.0.0.1:0")
	if err != nil {
		t.Fatalf("listen: %v", err)
	}
	flaky := &flakyListener{Listener: inner, failures: 3}

	backoff := 50 * time.Millisecond
	sender := newRecordingSender()
	srv := NewServer(Options{Addr: inner.Addr().String(), AcceptBackoff: backoff}, sender, logging.NewNop())
	srv.listen = func(context.Context, string) (net.Listener, error) { return flaky, nil }

	ctx, cancel := context.WithCancel(context.Background())
	t.Cleanup(cancel)
	done := make(chan error, 1)
	go func() { done <- srv.Serve(ctx) }()

	sendCtx, cancelSend := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancelSend()
	if err := Send(sendCtx, inner.Addr().String(), "shutdown"); err != nil {
		t.Fatalf("Send: %v", err)
	}
	select {
	case got := <-sender.calls:
		if got != ShutdownKeyword {
			t.Fatalf("mailbox received %q", got)
		}
	case err := <-done:
		t.Fatalf("Serve gave up after accept errors: %v", err)
	case <-time.After(5 * time.Second):
		t.Fatal("server stopped accepting after transport errors")
	}

	calls := flaky.acceptTimes()
	if len(calls) < 4 {
		t.Fatalf("expected at least 4 accept calls, got %d", len(calls))
	}
	// The first retry spends the limiter's burst; the next two wait a full interval each.
	if gap := calls[3].Sub(calls[1]); gap < 2*backoff-10*time.Millisecond {
		t.Fatalf("retries not spaced by backoff: %s between second and fourth accept", gap)
	}

	cancel()
	select {
	case err := <-done:
		if !errors.Is(err, context.Canceled) {
			t.Fatalf("Serve returned %v", err)
		}
	case <-time.After(5 * time.Second):
		t.Fatal("Serve did not return after cancellation")
	}
}
