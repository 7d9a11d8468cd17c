// Package supervisor implements the irodsd parent process: it creates the
// mailbox, spawns the worker processes in a fixed order, drains their
// messages from a single event loop, and performs the ordered, cascading
// shutdown that terminates and reaps every worker before the mailbox is
// removed.
//
// Control state (lifecycle state, the handle table, the mailbox) is mutated
// only by the goroutine driving Start, Run and Shutdown. Auxiliary goroutines
// (the mailbox receive pump and one waiter per child) only deliver events.
package supervisor
