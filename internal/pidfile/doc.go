// Package pidfile guards a single running supervisor with an advisory flock
// on its PID file.
//
// The lock lives on a sibling "<path>.lock" file so the PID file itself can be
// rewritten and removed without releasing exclusivity.
package pidfile
