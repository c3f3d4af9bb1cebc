package store

import (
	"context"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"sync"
	"time"
)

// ErrLockTimeout is returned when a per-record lock cannot be acquired
// within the configured timeout. The caller may retry; no data is touched.
var ErrLockTimeout = errors.New("lock acquisition timed out")

const lockPollInterval = 100 * time.Millisecond

// Locker hands out scoped per-path locks. Each lock combines an in-process
// token (serializes goroutines in this process) with an on-disk .lock file
// (coordinates with other processes syncing the same directory).
type Locker struct {
	timeout time.Duration

	mu     sync.Mutex
	tokens map[string]chan struct{}
}

// NewLocker creates a Locker with the given acquisition timeout.
func NewLocker(timeout time.Duration) *Locker {
	if timeout <= 0 {
		timeout = 5 * time.Second
	}
	return &Locker{
		timeout: timeout,
		tokens:  make(map[string]chan struct{}),
	}
}

// ScopedLock is a held lock. Release must be called exactly once; callers
// defer it immediately after a successful Acquire.
type ScopedLock struct {
	locker   *Locker
	path     string
	lockPath string
	once     sync.Once
}

// Acquire obtains the lock for path, waiting at most the locker timeout.
// Returns ErrLockTimeout if the lock is still held when the deadline passes.
func (l *Locker) Acquire(ctx context.Context, path string) (*ScopedLock, error) {
	deadline := time.Now().Add(l.timeout)
	ctx, cancel := context.WithDeadline(ctx, deadline)
	defer cancel()

	token := l.token(path)
	select {
	case token <- struct{}{}:
	case <-ctx.Done():
		return nil, fmt.Errorf("acquiring lock for %s: %w", path, ErrLockTimeout)
	}

	lockPath := path + ".lock"
	if err := l.acquireFile(ctx, lockPath); err != nil {
		<-token
		return nil, err
	}

	return &ScopedLock{locker: l, path: path, lockPath: lockPath}, nil
}

// Release frees both the on-disk lock file and the in-process token.
// Safe to call multiple times.
func (s *ScopedLock) Release() {
	s.once.Do(func() {
		os.Remove(s.lockPath)
		<-s.locker.token(s.path)
	})
}

func (l *Locker) token(path string) chan struct{} {
	l.mu.Lock()
	defer l.mu.Unlock()
	t, ok := l.tokens[path]
	if !ok {
		t = make(chan struct{}, 1)
		l.tokens[path] = t
	}
	return t
}

// acquireFile creates the lock file exclusively, polling until the deadline.
// A lock file older than twice the timeout is considered stale (left behind
// by a crashed process) and is reclaimed.
func (l *Locker) acquireFile(ctx context.Context, lockPath string) error {
	for {
		if err := os.MkdirAll(filepath.Dir(lockPath), 0o755); err != nil {
			return fmt.Errorf("creating lock directory: %w", err)
		}

		f, err := os.OpenFile(lockPath, os.O_CREATE|os.O_EXCL|os.O_WRONLY, 0o644)
		if err == nil {
			f.Close()
			return nil
		}
		if !os.IsExist(err) {
			return fmt.Errorf("creating lock file %s: %w", lockPath, err)
		}

		if info, statErr := os.Stat(lockPath); statErr == nil {
			if time.Since(info.ModTime()) > 2*l.timeout {
				os.Remove(lockPath) // stale lock from a crashed writer
				continue
			}
		}

		select {
		case <-ctx.Done():
			return fmt.Errorf("waiting for lock file %s: %w", lockPath, ErrLockTimeout)
		case <-time.After(lockPollInterval):
		}
	}
}
