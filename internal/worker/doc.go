// Package worker models the irodsd worker processes: their roles, the handles
// the supervisor keeps for them, how they are spawned, and the runtime that
// executes inside each child.
//
// Workers are started by re-executing the irodsd binary with the hidden
// "worker" subcommand and an explicit parameter set (see Params). Nothing is
// inherited implicitly from the supervisor's memory. Inside the child, Run
// opens the existing mailbox and serves the role's services under a suture
// supervisor until the process is asked to terminate.
package worker
