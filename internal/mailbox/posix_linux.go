//go:build linux

package mailbox

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"
	"unsafe"

	"golang.org/x/sys/unix"
)

// mqAttr mirrors struct mq_attr; every field is a C long.
type mqAttr struct {
	Flags   int
	MaxMsg  int
	MsgSize int
	CurMsgs int
	_       [4]int
}

// Blocking calls wake at least this often to observe context cancellation.
const mqWakeInterval = 100 * time.Millisecond

type posixDriver struct{}

// The raw syscalls take the queue name without the leading slash that
// mq_open(3) requires.
func (posixDriver) create(opts Options) (Mailbox, error) {
	attr := mqAttr{MaxMsg: opts.Capacity, MsgSize: opts.MaxMessageSize}
	fd, err := mqOpen(opts.Name, unix.O_RDWR|unix.O_CREAT|unix.O_EXCL, &attr)
	if err != nil {
		switch {
		case errors.Is(err, unix.EEXIST):
			return nil, fmt.Errorf("%w: %s", ErrAlreadyExists, opts.Name)
		case errors.Is(err, unix.EINVAL):
			return nil, fmt.Errorf("%w: capacity %d / message size %d exceed /proc/sys/fs/mqueue limits",
				ErrInvalidOptions, opts.Capacity, opts.MaxMessageSize)
		case errors.Is(err, unix.ENOSYS):
			return nil, fmt.Errorf("%w: kernel has no POSIX message queues", ErrDriverUnsupported)
		}
		return nil, fmt.Errorf("mq_open %s: %w", opts.Name, err)
	}
	return &posixMailbox{name: opts.Name, fd: fd, capacity: opts.Capacity, maxSize: opts.MaxMessageSize}, nil
}

func (posixDriver) open(opts Options) (Mailbox, error) {
	fd, err := mqOpen(opts.Name, unix.O_RDWR, nil)
	if err != nil {
		switch {
		case errors.Is(err, unix.ENOENT):
			return nil, fmt.Errorf("%w: %s", ErrNotFound, opts.Name)
		case errors.Is(err, unix.ENOSYS):
			return nil, fmt.Errorf("%w: kernel has no POSIX message queues", ErrDriverUnsupported)
		}
		return nil, fmt.Errorf("mq_open %s: %w", opts.Name, err)
	}
	var attr mqAttr
	if _, _, errno := unix.Syscall(unix.SYS_MQ_GETSETATTR, uintptr(fd), 0, uintptr(unsafe.Pointer(&attr))); errno != 0 {
		_ = unix.Close(fd)
		return nil, fmt.Errorf("mq_getattr %s: %w", opts.Name, errno)
	}
	return &posixMailbox{name: opts.Name, fd: fd, capacity: attr.MaxMsg, maxSize: attr.MsgSize}, nil
}

func (posixDriver) remove(opts Options) error {
	name, err := unix.BytePtrFromString(opts.Name)
	if err != nil {
		return fmt.Errorf("%w: %v", ErrInvalidOptions, err)
	}
	for {
		_, _, errno := unix.Syscall(unix.SYS_MQ_UNLINK, uintptr(unsafe.Pointer(name)), 0, 0)
		switch errno {
		case 0:
			return nil
		case unix.EINTR:
			continue
		case unix.ENOENT:
			return fmt.Errorf("%w: %s", ErrNotFound, opts.Name)
		default:
			return fmt.Errorf("mq_unlink %s: %w", opts.Name, errno)
		}
	}
}

func mqOpen(name string, flags int, attr *mqAttr) (int, error) {
	p, err := unix.BytePtrFromString(name)
	if err != nil {
		return -1, fmt.Errorf("%w: %v", ErrInvalidOptions, err)
	}
	for {
		fd, _, errno := unix.Syscall6(unix.SYS_MQ_OPEN,
			uintptr(unsafe.Pointer(p)), uintptr(flags|unix.O_CLOEXEC), 0o600, uintptr(unsafe.Pointer(attr)), 0, 0)
		if errno == unix.EINTR {
			continue
		}
		if errno != 0 {
			return -1, errno
		}
		return int(fd), nil
	}
}

type posixMailbox struct {
	name     string
	capacity int
	maxSize  int

	mu     sync.RWMutex
	fd     int
	closed bool
}

func (m *posixMailbox) Name() string        { return m.name }
func (m *posixMailbox) Capacity() int       { return m.capacity }
func (m *posixMailbox) MaxMessageSize() int { return m.maxSize }

func (m *posixMailbox) Send(ctx context.Context, payload []byte) error {
	if err := checkSize(payload, m.maxSize); err != nil {
		return err
	}
	m.mu.RLock()
	defer m.mu.RUnlock()
	if m.closed {
		return ErrClosed
	}
	for {
		if err := ctx.Err(); err != nil {
			return err
		}
		ts := wakeDeadline(ctx)
		_, _, errno := unix.Syscall6(unix.SYS_MQ_TIMEDSEND, uintptr(m.fd),
			uintptr(unsafe.Pointer(unsafe.SliceData(payload))), uintptr(len(payload)), 0,
			uintptr(unsafe.Pointer(&ts)), 0)
		switch errno {
		case 0:
			return nil
		case unix.ETIMEDOUT, unix.EINTR:
			continue
		case unix.EMSGSIZE:
			return fmt.Errorf("%w: %d > %d bytes", ErrMessageTooLarge, len(payload), m.maxSize)
		default:
			return fmt.Errorf("mq_timedsend %s: %w", m.name, errno)
		}
	}
}

func (m *posixMailbox) Receive(ctx context.Context) (Message, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	if m.closed {
		return Message{}, ErrClosed
	}
	buf := make([]byte, m.maxSize)
	for {
		if err := ctx.Err(); err != nil {
			return Message{}, err
		}
		ts := wakeDeadline(ctx)
		n, _, errno := unix.Syscall6(unix.SYS_MQ_TIMEDRECEIVE, uintptr(m.fd),
			uintptr(unsafe.Pointer(&buf[0])), uintptr(len(buf)), 0,
			uintptr(unsafe.Pointer(&ts)), 0)
		switch errno {
		case 0:
			return Message{Payload: buf[:n:n]}, nil
		case unix.ETIMEDOUT, unix.EINTR:
			continue
		default:
			return Message{}, fmt.Errorf("mq_timedreceive %s: %w", m.name, errno)
		}
	}
}

// Close waits for in-flight Send and Receive calls, which return within
// mqWakeInterval once their contexts are cancelled.
func (m *posixMailbox) Close() error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.closed {
		return nil
	}
	m.closed = true
	return unix.Close(m.fd)
}

func wakeDeadline(ctx context.Context) unix.Timespec {
	deadline := time.Now().Add(mqWakeInterval)
	if d, ok := ctx.Deadline(); ok && d.Before(deadline) {
		deadline = d
	}
	return unix.NsecToTimespec(deadline.UnixNano())
}
