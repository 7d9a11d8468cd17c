package mailbox

import (
	"context"
	"database/sql"
	_ "embed"
	"errors"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"time"

	"github.com/gofrs/flock"
	_ "modernc.org/sqlite"
)

//go:embed schema.sql
var schemaSQL string

const (
	sqliteFileSuffix        = ".mbx"
	sqliteBusyCode          = 5
	busyRetryAttempts       = 5
	busyRetryInitialBackoff = 10 * time.Millisecond
	busyRetryMaxBackoff     = 200 * time.Millisecond
)

type sqliteDriver struct{}

func sqlitePaths(opts Options) (dbPath, lockPath string, err error) {
	if strings.TrimSpace(opts.Dir) == "" {
		return "", "", fmt.Errorf("%w: sqlite driver needs a directory", ErrInvalidOptions)
	}
	dbPath = filepath.Join(opts.Dir, opts.Name+sqliteFileSuffix)
	return dbPath, dbPath + ".lock", nil
}

// create claims the file with O_EXCL under an exclusive lock so a concurrent
// Open never observes a database without its meta row.
func (sqliteDriver) create(opts Options) (Mailbox, error) {
	dbPath, lockPath, err := sqlitePaths(opts)
	if err != nil {
		return nil, err
	}
	if err := os.MkdirAll(opts.Dir, 0o755); err != nil {
		return nil, fmt.Errorf("create mailbox directory: %w", err)
	}

	lock := flock.New(lockPath)
	if err := lock.Lock(); err != nil {
		return nil, fmt.Errorf("lock mailbox %s: %w", opts.Name, err)
	}
	defer func() { _ = lock.Unlock() }()

	file, err := os.OpenFile(dbPath, os.O_RDWR|os.O_CREATE|os.O_EXCL, 0o600)
	if err != nil {
		if errors.Is(err, fs.ErrExist) {
			return nil, fmt.Errorf("%w: %s", ErrAlreadyExists, dbPath)
		}
		return nil, fmt.Errorf("create mailbox file: %w", err)
	}
	_ = file.Close()

	db, err := openSQLite(dbPath)
	if err != nil {
		_ = removeSQLiteFiles(dbPath)
		return nil, err
	}
	ctx := context.Background()
	if _, err := db.ExecContext(ctx, schemaSQL); err != nil {
		_ = db.Close()
		_ = removeSQLiteFiles(dbPath)
		return nil, fmt.Errorf("initialize mailbox schema: %w", err)
	}
	if _, err := db.ExecContext(ctx,
		"INSERT INTO meta (id, capacity, max_message_size) VALUES (1, ?, ?)",
		opts.Capacity, opts.MaxMessageSize,
	); err != nil {
		_ = db.Close()
		_ = removeSQLiteFiles(dbPath)
		return nil, fmt.Errorf("record mailbox limits: %w", err)
	}

	return &sqliteMailbox{
		name:     opts.Name,
		db:       db,
		capacity: opts.Capacity,
		maxSize:  opts.MaxMessageSize,
		poll:     pollInterval(opts),
	}, nil
}

func (sqliteDriver) open(opts Options) (Mailbox, error) {
	dbPath, lockPath, err := sqlitePaths(opts)
	if err != nil {
		return nil, err
	}
	if _, err := os.Stat(lockPath); errors.Is(err, fs.ErrNotExist) {
		return nil, fmt.Errorf("%w: %s", ErrNotFound, dbPath)
	}
	lock := flock.New(lockPath)
	if err := lock.RLock(); err != nil {
		return nil, fmt.Errorf("lock mailbox %s: %w", opts.Name, err)
	}
	defer func() { _ = lock.Unlock() }()

	if _, err := os.Stat(dbPath); err != nil {
		if errors.Is(err, fs.ErrNotExist) {
			return nil, fmt.Errorf("%w: %s", ErrNotFound, dbPath)
		}
		return nil, fmt.Errorf("stat mailbox: %w", err)
	}

	db, err := openSQLite(dbPath)
	if err != nil {
		return nil, err
	}
	mbx := &sqliteMailbox{name: opts.Name, db: db, poll: pollInterval(opts)}
	if err := db.QueryRow("SELECT capacity, max_message_size FROM meta WHERE id = 1").
		Scan(&mbx.capacity, &mbx.maxSize); err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("read mailbox limits from %s: %w", dbPath, err)
	}
	return mbx, nil
}

func (sqliteDriver) remove(opts Options) error {
	dbPath, lockPath, err := sqlitePaths(opts)
	if err != nil {
		return err
	}
	if _, err := os.Stat(dbPath); errors.Is(err, fs.ErrNotExist) {
		return fmt.Errorf("%w: %s", ErrNotFound, dbPath)
	}
	lock := flock.New(lockPath)
	if err := lock.Lock(); err != nil {
		return fmt.Errorf("lock mailbox %s: %w", opts.Name, err)
	}
	defer func() { _ = lock.Unlock() }()
	return removeSQLiteFiles(dbPath)
}

func removeSQLiteFiles(dbPath string) error {
	for _, path := range []string{dbPath, dbPath + "-wal", dbPath + "-shm"} {
		if err := os.Remove(path); err != nil && !errors.Is(err, fs.ErrNotExist) {
			return fmt.Errorf("remove %s: %w", path, err)
		}
	}
	return nil
}

func openSQLite(dbPath string) (*sql.DB, error) {
	db, err := sql.Open("sqlite", dbPath)
	if err != nil {
		return nil, fmt.Errorf("open sqlite db: %w", err)
	}
	// Pragmas are per connection.
	db.SetMaxOpenConns(1)

	pragmas := []string{
		"PRAGMA journal_mode=WAL",
		"PRAGMA busy_timeout = 5000",
		"PRAGMA synchronous = NORMAL",
	}
	for _, pragma := range pragmas {
		if _, execErr := db.Exec(pragma); execErr != nil {
			_ = db.Close()
			return nil, fmt.Errorf("apply pragma %q: %w", pragma, execErr)
		}
	}
	return db, nil
}

type sqliteMailbox struct {
	name     string
	capacity int
	maxSize  int
	poll     time.Duration

	mu     sync.RWMutex
	db     *sql.DB
	closed bool
}

func (m *sqliteMailbox) Name() string        { return m.name }
func (m *sqliteMailbox) Capacity() int       { return m.capacity }
func (m *sqliteMailbox) MaxMessageSize() int { return m.maxSize }

func (m *sqliteMailbox) Send(ctx context.Context, payload []byte) error {
	if err := checkSize(payload, m.maxSize); err != nil {
		return err
	}
	if payload == nil {
		payload = []byte{}
	}
	m.mu.RLock()
	defer m.mu.RUnlock()
	if m.closed {
		return ErrClosed
	}
	return m.pollUntil(ctx, func() (bool, error) {
		var res sql.Result
		err := retryOnBusy(ctx, func() error {
			var execErr error
			res, execErr = m.db.ExecContext(ctx,
				"INSERT INTO messages (payload) SELECT ? WHERE (SELECT COUNT(*) FROM messages) < ?",
				payload, m.capacity)
			return execErr
		})
		if err != nil {
			return false, fmt.Errorf("enqueue on %s: %w", m.name, err)
		}
		n, err := res.RowsAffected()
		if err != nil {
			return false, fmt.Errorf("enqueue on %s: %w", m.name, err)
		}
		return n == 1, nil
	})
}

func (m *sqliteMailbox) Receive(ctx context.Context) (Message, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	if m.closed {
		return Message{}, ErrClosed
	}
	var msg Message
	err := m.pollUntil(ctx, func() (bool, error) {
		var payload []byte
		err := retryOnBusy(ctx, func() error {
			return m.db.QueryRowContext(ctx,
				"DELETE FROM messages WHERE seq = (SELECT MIN(seq) FROM messages) RETURNING payload",
			).Scan(&payload)
		})
		if errors.Is(err, sql.ErrNoRows) {
			return false, nil
		}
		if err != nil {
			return false, fmt.Errorf("dequeue on %s: %w", m.name, err)
		}
		if payload == nil {
			payload = []byte{}
		}
		msg = Message{Payload: payload}
		return true, nil
	})
	return msg, err
}

// pollUntil retries attempt every poll interval until it reports done.
func (m *sqliteMailbox) pollUntil(ctx context.Context, attempt func() (bool, error)) error {
	ticker := time.NewTicker(m.poll)
	defer ticker.Stop()
	for {
		if err := ctx.Err(); err != nil {
			return err
		}
		done, err := attempt()
		if err != nil {
			if ctxErr := ctx.Err(); ctxErr != nil {
				return ctxErr
			}
			return err
		}
		if done {
			return nil
		}
		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-ticker.C:
		}
	}
}

func (m *sqliteMailbox) Close() error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.closed {
		return nil
	}
	m.closed = true
	return m.db.Close()
}

func isSQLiteBusy(err error) bool {
	if err == nil {
		return false
	}
	var coder interface{ Code() int }
	if errors.As(err, &coder) && coder.Code()&0xff == sqliteBusyCode {
		return true
	}
	msg := err.Error()
	return strings.Contains(msg, "SQLITE_BUSY") || strings.Contains(msg, "database is locked")
}

func retryOnBusy(ctx context.Context, op func() error) error {
	delay := busyRetryInitialBackoff
	var lastErr error
	for attempt := 0; attempt < busyRetryAttempts; attempt++ {
		lastErr = op()
		if lastErr == nil {
			return nil
		}
		if !isSQLiteBusy(lastErr) || attempt == busyRetryAttempts-1 {
			break
		}
		select {
		case <-time.After(delay):
		case <-ctx.Done():
			return ctx.Err()
		}
		if next := delay * 2; next <= busyRetryMaxBackoff {
			delay = next
		}
	}
	return lastErr
}
