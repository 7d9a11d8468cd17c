//go:build !linux

package mailbox

import "fmt"

type posixDriver struct{}

func (posixDriver) create(Options) (Mailbox, error) { return nil, errPOSIXUnsupported }

func (posixDriver) open(Options) (Mailbox, error) { return nil, errPOSIXUnsupported }

func (posixDriver) remove(Options) error { return errPOSIXUnsupported }

var errPOSIXUnsupported = fmt.Errorf("%w: posix message queues require linux", ErrDriverUnsupported)
