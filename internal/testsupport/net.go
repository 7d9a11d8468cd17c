package testsupport

import (
	"net"
	"sync/atomic"
	"testing"
)

var idCounter atomic.Int64

func nextID() int64 { return idCounter.Add(1) }

// FreeTCPAddr returns a loopback address whose port was free a moment ago.
func FreeTCPAddr(t testing.TB) string {
	t.Helper()
	ln, err := net.Listen("tcp", "127.0.0.1:0")
	if err != nil {
		t.Fatalf("reserve port: %v", err)
	}
	addr := ln.Addr().String()
	if err := ln.Close(); err != nil {
		t.Fatalf("release port: %v", err)
	}
	return addr
}
