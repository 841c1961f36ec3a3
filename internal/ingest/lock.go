package ingest

import (
	"context"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"time"

	"github.com/gofrs/flock"
)

// ErrLocked is returned when another process holds the writer lock.
var ErrLocked = errors.New("database is being written by another process")

// lockRetryDelay is how often LockContext retries a held lock.
const lockRetryDelay = 100 * time.Millisecond

// WriterLock serialises writers of one database across processes. Readers
// never take it.
type WriterLock struct {
	path   string
	flock  *flock.Flock
	locked bool
}

// NewWriterLock creates the lock for the database at dbPath. The lock file
// is <dbPath>.lock.
func NewWriterLock(dbPath string) *WriterLock {
	lockPath := dbPath + ".lock"
	return &WriterLock{
		path:  lockPath,
		flock: flock.New(lockPath),
	}
}

// TryLock acquires the lock without blocking. It returns ErrLocked if
// another process holds it.
func (l *WriterLock) TryLock() error {
	if err := l.ensureDir(); err != nil {
		return err
	}
	acquired, err := l.flock.TryLock()
	if err != nil {
		return fmt.Errorf("failed to acquire lock: %w", err)
	}
	if !acquired {
		return ErrLocked
	}
	l.locked = true
	return nil
}

// LockContext waits for the lock until ctx is done, then returns ErrLocked.
func (l *WriterLock) LockContext(ctx context.Context) error {
	if err := l.ensureDir(); err != nil {
		return err
	}
	acquired, err := l.flock.TryLockContext(ctx, lockRetryDelay)
	if err != nil {
		if ctx.Err() != nil {
			return fmt.Errorf("%w: %s", ErrLocked, l.path)
		}
		return fmt.Errorf("failed to acquire lock: %w", err)
	}
	if !acquired {
		return fmt.Errorf("%w: %s", ErrLocked, l.path)
	}
	l.locked = true
	return nil
}

// Unlock releases the lock. It is safe to call on an unlocked WriterLock.
func (l *WriterLock) Unlock() error {
	if !l.locked {
		return nil
	}
	l.locked = false
	if err := l.flock.Unlock(); err != nil {
		return fmt.Errorf("failed to release lock: %w", err)
	}
	return nil
}

// Path returns the path to the lock file.
func (l *WriterLock) Path() string {
	return l.path
}

// IsLocked reports whether this process holds the lock.
func (l *WriterLock) IsLocked() bool {
	return l.locked
}

func (l *WriterLock) ensureDir() error {
	if err := os.MkdirAll(filepath.Dir(l.path), 0o755); err != nil {
		return fmt.Errorf("failed to create lock directory: %w", err)
	}
	return nil
}
