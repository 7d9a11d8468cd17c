package controlplane

import (
	"context"
	"fmt"
	"net"
	"strings"
	"time"
)

const defaultDialTimeout = 5 * time.Second

// Send delivers one command line to the control plane at addr. The protocol
// has no response, so success only means the line was written.
func Send(ctx context.Context, addr, line string) error {
	if strings.ContainsAny(line, "\r\n") {
		return fmt.Errorf("command %q must be a single line", line)
	}
	dialer := net.Dialer{Timeout: defaultDialTimeout}
	conn, err := dialer.DialContext(ctx, "tcp", addr)
	if err != nil {
		return fmt.Errorf("connect to control plane %s: %w", addr, err)
	}
	defer conn.Close()

	if deadline, ok := ctx.Deadline(); ok {
		_ = conn.SetWriteDeadline(deadline)
	}
	if _, err := conn.Write([]byte(line + "\n")); err != nil {
		return fmt.Errorf("send command: %w", err)
	}
	return nil
}
