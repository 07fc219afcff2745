// Package lock implements the file-based advisory mutex described in the
// Lock component: a single file under the data root whose mtime freshness
// determines whether the store is considered locked.
package lock

import (
	"context"
	"fmt"
	"log"
	"os"
	"time"

	"github.com/google/uuid"
)

const (
	// DefaultTimeout is the default staleness timeout: a lock file older
	// than this is considered abandoned and removed.
	DefaultTimeout = 10 * time.Minute

	// DefaultDeadlock is the default time acquire() will poll before
	// giving up.
	DefaultDeadlock = 30 * time.Minute

	pollInterval = 5 * time.Second
)

// Lock is a single advisory lock file. It is not a critical section across
// goroutines in-process; coordination is strictly cross-process, and the
// surrounding protocols it guards (store mutation, config writes, deplist
// push) must themselves be idempotent, since two processes can both
// observe IsLocked()==false and then race to create the file.
type Lock struct {
	Path string

	// Timeout is the staleness timeout; defaults to DefaultTimeout.
	Timeout time.Duration

	// Deadlock is how long Acquire polls before giving up; defaults to
	// DefaultDeadlock.
	Deadlock time.Duration

	// PollInterval is how often Acquire rechecks IsLocked; defaults to
	// pollInterval (5s). The config-file micro-lock uses a much shorter
	// interval than the data lock.
	PollInterval time.Duration
}

// New returns a Lock at path with the default timeouts.
func New(path string) *Lock {
	return &Lock{Path: path, Timeout: DefaultTimeout, Deadlock: DefaultDeadlock}
}

func (l *Lock) timeout() time.Duration {
	if l.Timeout > 0 {
		return l.Timeout
	}
	return DefaultTimeout
}

func (l *Lock) deadlock() time.Duration {
	if l.Deadlock > 0 {
		return l.Deadlock
	}
	return DefaultDeadlock
}

func (l *Lock) poll() time.Duration {
	if l.PollInterval > 0 {
		return l.PollInterval
	}
	return pollInterval
}

// IsLocked reports whether the lock file exists and is fresh (mtime younger
// than Timeout). A stale file is forcibly removed and IsLocked returns
// false.
func (l *Lock) IsLocked() bool {
	st, err := os.Stat(l.Path)
	if err != nil {
		return false
	}
	if time.Since(st.ModTime()) < l.timeout() {
		return true
	}
	log.Printf("lock: removing stale lock %s (age %s, held by %s)", l.Path, time.Since(st.ModTime()), l.holder())
	if err := os.Remove(l.Path); err != nil && !os.IsNotExist(err) {
		log.Printf("lock: failed to remove stale lock %s: %v", l.Path, err)
	}
	return false
}

// holder returns the token recorded by whichever process created the
// current lock file, for inclusion in the stale-lock log line. An unreadable
// or empty file just yields "unknown" rather than failing the removal.
func (l *Lock) holder() string {
	b, err := os.ReadFile(l.Path)
	if err != nil || len(b) == 0 {
		return "unknown"
	}
	return string(b)
}

// Acquire polls IsLocked every PollInterval (5s by default) and creates the lock file once it
// observes the lock free, giving up after Deadlock. Acquire returns
// success iff the file exists after the call; two racing acquirers may
// both believe they succeeded, per the weakened "last writer wins"
// guarantee documented on the Lock component.
func (l *Lock) Acquire(ctx context.Context) error {
	deadline := time.Now().Add(l.deadlock())
	for {
		if !l.IsLocked() {
			if err := l.create(); err != nil {
				return fmt.Errorf("lock: create %s: %w", l.Path, err)
			}
			return nil
		}
		if time.Now().After(deadline) {
			return fmt.Errorf("lock: timed out after %s waiting for %s", l.deadlock(), l.Path)
		}
		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-time.After(l.poll()):
		}
	}
}

// create writes a fresh lock file containing a random token identifying
// this acquisition, so a later stale-lock removal can log who held it.
func (l *Lock) create() error {
	f, err := os.OpenFile(l.Path, os.O_CREATE|os.O_WRONLY|os.O_TRUNC, 0644)
	if err != nil {
		return err
	}
	_, werr := f.WriteString(uuid.New().String())
	cerr := f.Close()
	if werr != nil {
		return werr
	}
	return cerr
}

// Release best-effort unlinks the lock file; a missing file is not an
// error.
func (l *Lock) Release() error {
	if err := os.Remove(l.Path); err != nil && !os.IsNotExist(err) {
		return fmt.Errorf("lock: release %s: %w", l.Path, err)
	}
	return nil
}

// WithLock acquires l, runs fn, and releases l unconditionally afterwards.
func WithLock(ctx context.Context, l *Lock, fn func() error) error {
	if err := l.Acquire(ctx); err != nil {
		return err
	}
	defer func() {
		if err := l.Release(); err != nil {
			log.Printf("lock: %v", err)
		}
	}()
	return fn()
}
