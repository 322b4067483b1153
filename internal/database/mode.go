package database

import (
	"fmt"
	"strings"

	apperrors "github.com/Adithya-Monish-Kumar-K/searchcore/pkg/errors"
)

// OpenMode selects how OpenWritable treats an existing or missing database.
// The numeric values are part of the public contract.
type OpenMode int

const (
	// ModeCreateOrOpen opens an existing database or creates an empty one.
	ModeCreateOrOpen OpenMode = 0
	// ModeCreateOrOverwrite discards any existing contents.
	ModeCreateOrOverwrite OpenMode = 1
	// ModeCreate fails if a database already exists at the path.
	ModeCreate OpenMode = 2
	// ModeOpen fails if no database exists at the path.
	ModeOpen OpenMode = 3
)

func (m OpenMode) String() string {
	switch m {
	case ModeCreateOrOpen:
		return "create_or_open"
	case ModeCreateOrOverwrite:
		return "create_or_overwrite"
	case ModeCreate:
		return "create"
	case ModeOpen:
		return "open"
	default:
		return fmt.Sprintf("OpenMode(%d)", int(m))
	}
}

func (m OpenMode) valid() bool {
	return m >= ModeCreateOrOpen && m <= ModeOpen
}

// ParseOpenMode accepts the names produced by OpenMode.String.
func ParseOpenMode(s string) (OpenMode, error) {
	for m := ModeCreateOrOpen; m <= ModeOpen; m++ {
		if strings.EqualFold(s, m.String()) {
			return m, nil
		}
	}
	return 0, fmt.Errorf("%w: unknown open mode %q", apperrors.ErrInvalidArgument, s)
}
