package services

import (
	"errors"
	"fmt"
	"strings"

	"github.com/userhub/apiserver/internal/store"
	"github.com/userhub/apiserver/types"
)

var (
	// ErrUserNotFound is returned when no user has the requested id.
	ErrUserNotFound = errors.New("user not found")

	// ErrDuplicateUser is matched by every DuplicateUserError.
	ErrDuplicateUser = errors.New("username or email already exists")

	// ErrStorage wraps unexpected persistence failures.
	ErrStorage = errors.New("storage failure")
)

// DuplicateUserError reports which unique field a write collided on.
// Field is empty when the store did not say.
type DuplicateUserError struct {
	Field string
}

func (e *DuplicateUserError) Error() string {
	if e.Field == "" {
		return ErrDuplicateUser.Error()
	}
	return e.Field + " already exists"
}

func (e *DuplicateUserError) Is(target error) bool {
	return target == ErrDuplicateUser
}

// translate converts store errors into service errors so callers never
// see driver types.
func translate(op string, err error) error {
	switch {
	case err == nil:
		return nil
	case errors.Is(err, store.ErrNotFound):
		return ErrUserNotFound
	case errors.Is(err, store.ErrUniqueViolation):
		return &DuplicateUserError{Field: duplicateField(err.Error())}
	case errors.Is(err, types.ErrInvalidPatch):
		return err
	default:
		return fmt.Errorf("%w: %s: %v", ErrStorage, op, err)
	}
}

func duplicateField(msg string) string {
	switch {
	case strings.Contains(msg, "users_username_key"):
		return string(types.FieldUsername)
	case strings.Contains(msg, "users_email_key"):
		return string(types.FieldEmail)
	default:
		return ""
	}
}
