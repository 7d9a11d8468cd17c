package mailbox

import (
	"bytes"
	"context"
	"fmt"
	"time"

	"github.com/korydraughn/irodsd/internal/config"
)

const defaultPollInterval = 50 * time.Millisecond

// Options names and sizes a mailbox. Capacity and MaxMessageSize are only
// consulted by Create; Open reads them from the existing mailbox.
type Options struct {
	Name           string
	Driver         string
	Dir            string
	Capacity       int
	MaxMessageSize int
	PollInterval   time.Duration
}

// OptionsFromConfig builds mailbox options from the [mailbox] section.
func OptionsFromConfig(cfg *config.Config) Options {
	return Options{
		Name:           cfg.Mailbox.Name,
		Driver:         cfg.Mailbox.Driver,
		Dir:            cfg.Mailbox.Dir,
		Capacity:       cfg.Mailbox.Capacity,
		MaxMessageSize: cfg.Mailbox.MaxMessageSize,
		PollInterval:   cfg.MailboxPollInterval(),
	}
}

// Message is one payload received from the mailbox.
type Message struct {
	Payload []byte
}

// Len returns the payload length in bytes.
func (m Message) Len() int { return len(m.Payload) }

// Mailbox is one process's handle on a named mailbox. A handle may be used
// from several goroutines, but Close must not race with a blocked call.
type Mailbox interface {
	// Send enqueues payload, blocking while the mailbox is full.
	Send(ctx context.Context, payload []byte) error
	// Receive dequeues the oldest message, blocking while the mailbox is empty.
	Receive(ctx context.Context) (Message, error)
	// Close releases this handle without removing the mailbox.
	Close() error
	Name() string
	Capacity() int
	MaxMessageSize() int
}

type driver interface {
	create(opts Options) (Mailbox, error)
	open(opts Options) (Mailbox, error)
	remove(opts Options) error
}

// Create makes a new mailbox and returns a handle to it.
func Create(opts Options) (Mailbox, error) {
	d, err := validate(opts)
	if err != nil {
		return nil, err
	}
	if opts.Capacity < 1 {
		return nil, fmt.Errorf("%w: capacity must be at least 1", ErrInvalidOptions)
	}
	if opts.MaxMessageSize < 1 {
		return nil, fmt.Errorf("%w: max message size must be at least 1", ErrInvalidOptions)
	}
	return d.create(opts)
}

// Open attaches to an existing mailbox.
func Open(opts Options) (Mailbox, error) {
	d, err := validate(opts)
	if err != nil {
		return nil, err
	}
	return d.open(opts)
}

// Remove deletes the named mailbox.
func Remove(opts Options) error {
	d, err := validate(opts)
	if err != nil {
		return err
	}
	return d.remove(opts)
}

func validate(opts Options) (driver, error) {
	if !config.ValidMailboxName(opts.Name) {
		return nil, fmt.Errorf("%w: name %q", ErrInvalidOptions, opts.Name)
	}
	switch opts.Driver {
	case config.DriverPOSIX:
		return posixDriver{}, nil
	case config.DriverSQLite:
		return sqliteDriver{}, nil
	default:
		return nil, fmt.Errorf("%w: %q", ErrDriverUnsupported, opts.Driver)
	}
}

// SenderRole extracts the "<role>: " prefix workers put on their payloads.
// It is informational only and returns "" when no prefix is present.
func SenderRole(payload []byte) string {
	idx := bytes.Index(payload, []byte(": "))
	if idx <= 0 {
		return ""
	}
	role := payload[:idx]
	if bytes.ContainsAny(role, " \t\r\n") {
		return ""
	}
	return string(role)
}

func checkSize(payload []byte, max int) error {
	if len(payload) > max {
		return fmt.Errorf("%w: %d > %d bytes", ErrMessageTooLarge, len(payload), max)
	}
	return nil
}

func pollInterval(opts Options) time.Duration {
	if opts.PollInterval > 0 {
		return opts.PollInterval
	}
	return defaultPollInterval
}
