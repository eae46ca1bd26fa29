package rpc

import (
	"errors"
	"fmt"
	"os"

	"golang.org/x/sys/unix"
)

// ErrAlreadyLocked is returned by AcquireLock when another process already
// holds the storage directory's lock file (spec §5: "exactly one process
// may own the storage directory; enforced by a lock file").
var ErrAlreadyLocked = errors.New("rpc: storage directory is locked by another process")

// Lock is an exclusive, advisory file lock held for the lifetime of a
// daemon process.
type Lock struct {
	f    *os.File
	path string
}

// AcquireLock takes an exclusive flock on <dir>/LOCK, creating it if
// necessary. It returns ErrAlreadyLocked if another process holds it,
// grounded on original_source/chitta/src/socket_server.cpp's
// daemon-singleton check.
func AcquireLock(dir string) (*Lock, error) {
	if err := os.MkdirAll(dir, 0o700); err != nil {
		return nil, fmt.Errorf("rpc: create lock dir: %w", err)
	}
	path := dir + "/LOCK"
	f, err := os.OpenFile(path, os.O_CREATE|os.O_RDWR, 0o600)
	if err != nil {
		return nil, fmt.Errorf("rpc: open lock file: %w", err)
	}
	if err := unix.Flock(int(f.Fd()), unix.LOCK_EX|unix.LOCK_NB); err != nil {
		f.Close()
		if errors.Is(err, unix.EWOULDBLOCK) {
			return nil, ErrAlreadyLocked
		}
		return nil, fmt.Errorf("rpc: flock: %w", err)
	}
	return &Lock{f: f, path: path}, nil
}

// Release drops the lock, closes the underlying file descriptor, and
// removes the lock file so a watcher (WatchLock) can detect the release via
// fsnotify instead of polling flock.
func (l *Lock) Release() error {
	if l == nil || l.f == nil {
		return nil
	}
	_ = unix.Flock(int(l.f.Fd()), unix.LOCK_UN)
	err := l.f.Close()
	_ = os.Remove(l.path)
	return err
}
