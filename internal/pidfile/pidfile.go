package pidfile

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strconv"
	"strings"

	"github.com/gofrs/flock"
)

// ErrAlreadyRunning is returned by Acquire when another process holds the lock.
var ErrAlreadyRunning = errors.New("another irodsd instance is already running")

// File is a held PID file.
type File struct {
	path string
	lock *flock.Flock
}

// Acquire takes the lock and writes the current PID to path.
func Acquire(path string) (*File, error) {
	path = strings.TrimSpace(path)
	if path == "" {
		return nil, errors.New("pid file path is empty")
	}
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return nil, fmt.Errorf("create pid file directory: %w", err)
	}

	lock := flock.New(path + ".lock")
	ok, err := lock.TryLock()
	if err != nil {
		return nil, fmt.Errorf("acquire pid lock: %w", err)
	}
	if !ok {
		if pid, readErr := Read(path); readErr == nil {
			return nil, fmt.Errorf("%w (pid %d)", ErrAlreadyRunning, pid)
		}
		return nil, ErrAlreadyRunning
	}

	f := &File{path: path, lock: lock}
	if err := f.Write(os.Getpid()); err != nil {
		_ = lock.Unlock()
		return nil, err
	}
	return f, nil
}

// Write replaces the recorded PID.
func (f *File) Write(pid int) error {
	tmp := f.path + ".tmp"
	if err := os.WriteFile(tmp, []byte(strconv.Itoa(pid)+"\n"), 0o644); err != nil {
		return fmt.Errorf("write pid file: %w", err)
	}
	if err := os.Rename(tmp, f.path); err != nil {
		_ = os.Remove(tmp)
		return fmt.Errorf("write pid file: %w", err)
	}
	return nil
}

// Release removes the PID file and drops the lock.
func (f *File) Release() error {
	if f == nil || f.lock == nil {
		return nil
	}
	var errs []error
	if err := os.Remove(f.path); err != nil && !errors.Is(err, os.ErrNotExist) {
		errs = append(errs, fmt.Errorf("remove pid file: %w", err))
	}
	if err := f.lock.Unlock(); err != nil {
		errs = append(errs, fmt.Errorf("release pid lock: %w", err))
	}
	f.lock = nil
	return errors.Join(errs...)
}

// Probe reports ErrAlreadyRunning if path is currently locked, without
// keeping the lock. The daemonizing parent uses it to fail fast.
func Probe(path string) error {
	path = strings.TrimSpace(path)
	if path == "" {
		return nil
	}
	lock := flock.New(path + ".lock")
	ok, err := lock.TryLock()
	if err != nil {
		if errors.Is(err, os.ErrNotExist) {
			return nil
		}
		return fmt.Errorf("probe pid lock: %w", err)
	}
	if !ok {
		return ErrAlreadyRunning
	}
	return lock.Unlock()
}

// Read returns the PID recorded at path.
func Read(path string) (int, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return 0, err
	}
	pid, err := strconv.Atoi(strings.TrimSpace(string(data)))
	if err != nil || pid <= 0 {
		return 0, fmt.Errorf("pid file %q: invalid contents %q", path, strings.TrimSpace(string(data)))
	}
	return pid, nil
}
