package supervisor

import "errors"

var (
	// ErrMailboxCreate wraps failures to create the mailbox during Start.
	ErrMailboxCreate = errors.New("create mailbox")
	// ErrMailboxReceive wraps a failed mailbox receive; it is fatal to Run.
	ErrMailboxReceive = errors.New("receive from mailbox")
	// ErrInvalidState reports a lifecycle call made in the wrong state.
	ErrInvalidState = errors.New("invalid supervisor state")
	// ErrUnreaped reports workers that could not be reaped during shutdown.
	ErrUnreaped = errors.New("workers not reaped")
)
