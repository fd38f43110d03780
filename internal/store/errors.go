package store

import (
	"errors"
	"fmt"

	"github.com/lib/pq"
)

// ErrNotFound is returned when a record does not exist.
var ErrNotFound = errors.New("not found")

// ErrUniqueViolation is returned when a write would break a unique constraint.
var ErrUniqueViolation = errors.New("unique constraint violation")

const pqUniqueViolation pq.ErrorCode = "23505"

// classify maps driver errors onto the store sentinels and leaves every
// other error untouched.
func classify(err error) error {
	var pqErr *pq.Error
	if errors.As(err, &pqErr) && pqErr.Code == pqUniqueViolation {
		if pqErr.Constraint != "" {
			return fmt.Errorf("%w: %s", ErrUniqueViolation, pqErr.Constraint)
		}
		return ErrUniqueViolation
	}
	return err
}
