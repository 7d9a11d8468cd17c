// Package controlplane implements the TCP line protocol used to administer a
// running irodsd.
//
// Each connection carries exactly one newline-terminated command and never
// receives a response. The only recognized command is "shutdown", which the
// listener forwards to the supervisor through the mailbox after it stops
// accepting connections.
package controlplane
