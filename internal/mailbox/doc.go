// Package mailbox implements the bounded, named, process-shared FIFO that
// irodsd workers use to report status to the supervisor.
//
// A mailbox is created exactly once by the supervisor, opened (never created)
// by every worker, and removed by the supervisor after the last worker has
// been reaped. Senders block while the mailbox is full; receivers block while
// it is empty. Two drivers are available: "posix" maps onto Linux POSIX
// message queues and "sqlite" keeps the queue in a SQLite file so the same
// semantics work on hosts without mqueue support.
package mailbox
