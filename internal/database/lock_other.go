//go:build !(linux || darwin || freebsd || netbsd || openbsd || dragonfly)

package database

import (
	"errors"
	"fmt"
	"os"

	apperrors "github.com/Adithya-Monish-Kumar-K/searchcore/pkg/errors"
)

// fileLock falls back to exclusive creation of the LOCK file. A crashed
// writer leaves the file behind and it must be removed by hand.
type fileLock struct {
	path string
	f    *os.File
}

func acquireLock(path string) (*fileLock, error) {
	f, err := os.OpenFile(path, os.O_CREATE|os.O_EXCL|os.O_RDWR, 0o644)
	if err != nil {
		if errors.Is(err, os.ErrExist) {
			return nil, fmt.Errorf("%w: %s is held by another writer", apperrors.ErrDatabaseLock, path)
		}
		return nil, fmt.Errorf("%w: creating lock file: %v", apperrors.ErrDatabaseOpening, err)
	}
	fmt.Fprintf(f, "%d\n", os.Getpid())
	return &fileLock{path: path, f: f}, nil
}

func (l *fileLock) release() error {
	l.f.Close()
	return os.Remove(l.path)
}
