//go:build linux

package worker

import "syscall"

// Pdeathsig stops workers when the supervisor dies without a shutdown.
func workerSysProcAttr() *syscall.SysProcAttr {
	return &syscall.SysProcAttr{Setpgid: true, Pdeathsig: syscall.SIGTERM}
}
