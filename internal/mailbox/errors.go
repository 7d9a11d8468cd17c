package mailbox

import "errors"

var (
	// ErrAlreadyExists is returned by Create when a mailbox with the same name is present.
	ErrAlreadyExists = errors.New("mailbox already exists")
	// ErrNotFound is returned by Open and Remove when no mailbox has the given name.
	ErrNotFound = errors.New("mailbox not found")
	// ErrMessageTooLarge is returned by Send when the payload exceeds MaxMessageSize.
	ErrMessageTooLarge = errors.New("message exceeds mailbox max message size")
	// ErrInvalidOptions reports unusable mailbox options.
	ErrInvalidOptions = errors.New("invalid mailbox options")
	// ErrDriverUnsupported reports a driver that is unknown or unavailable on this platform.
	ErrDriverUnsupported = errors.New("mailbox driver unsupported")
	// ErrClosed is returned by operations on a closed mailbox handle.
	ErrClosed = errors.New("mailbox closed")
)
