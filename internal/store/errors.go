package store

import (
	"errors"
	"fmt"

	"github.com/mattn/go-sqlite3"
)

var (
	// ErrNotFound is returned when a row does not exist.
	ErrNotFound = errors.New("not found")
	// ErrIntegrity is returned when a write violates a schema constraint.
	ErrIntegrity = errors.New("integrity constraint violated")
	// ErrDuplicateName is returned when a project name is already taken.
	ErrDuplicateName = fmt.Errorf("%w: duplicate project name", ErrIntegrity)
)

// classify maps SQLite constraint failures onto the package sentinels.
func classify(err error) error {
	var se sqlite3.Error
	if !errors.As(err, &se) || se.Code != sqlite3.ErrConstraint {
		return err
	}
	if se.ExtendedCode == sqlite3.ErrConstraintUnique {
		return fmt.Errorf("%w: %w", ErrDuplicateName, err)
	}
	return fmt.Errorf("%w: %w", ErrIntegrity, err)
}
