//go:build linux || darwin || freebsd || netbsd || openbsd || dragonfly

package database

import (
	"errors"
	"fmt"
	"os"

	"golang.org/x/sys/unix"

	apperrors "github.com/Adithya-Monish-Kumar-K/searchcore/pkg/errors"
)

// fileLock is an advisory flock on the database's LOCK file. The lock is
// tied to the open file description, so it is released if the process dies.
type fileLock struct {
	f *os.File
}

func acquireLock(path string) (*fileLock, error) {
	f, err := os.OpenFile(path, os.O_CREATE|os.O_RDWR, 0o644)
	if err != nil {
		return nil, fmt.Errorf("%w: opening lock file: %v", apperrors.ErrDatabaseOpening, err)
	}
	if err := unix.Flock(int(f.Fd()), unix.LOCK_EX|unix.LOCK_NB); err != nil {
		f.Close()
		if errors.Is(err, unix.EWOULDBLOCK) {
			return nil, fmt.Errorf("%w: %s is held by another writer", apperrors.ErrDatabaseLock, path)
		}
		return nil, fmt.Errorf("%w: locking %s: %v", apperrors.ErrDatabaseLock, path, err)
	}
	return &fileLock{f: f}, nil
}

func (l *fileLock) release() error {
	if err := unix.Flock(int(l.f.Fd()), unix.LOCK_UN); err != nil {
		l.f.Close()
		return fmt.Errorf("unlocking: %w", err)
	}
	return l.f.Close()
}
