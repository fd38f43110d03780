package types

import (
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
)

// Role is the authorization level attached to a user record.
type Role string

const (
	RoleAdmin Role = "admin"
	RoleUser  Role = "user"
	RoleGuest Role = "guest"
)

// Valid reports whether r is one of the known roles.
func (r Role) Valid() bool {
	switch r {
	case RoleAdmin, RoleUser, RoleGuest:
		return true
	default:
		return false
	}
}

// User represents a managed user record.
// It contains identity, profile, role, and audit metadata.
type User struct {
	// ID is assigned once at creation and never changes.
	ID uuid.UUID `json:"id" db:"id"`

	// Username is the unique login name of the user.
	Username string `json:"username" db:"username"`

	// Email is the user's unique email address.
	Email string `json:"email" db:"email"`

	FirstName string `json:"first_name" db:"first_name"`
	LastName  string `json:"last_name" db:"last_name"`

	// Role indicates the user's authorization level within the system.
	Role Role `json:"role" db:"role"`

	// CreatedAt is the UTC timestamp when the record was created.
	CreatedAt time.Time `json:"created_at" db:"created_at"`

	// UpdatedAt is the UTC timestamp of the most recent successful mutation.
	UpdatedAt time.Time `json:"updated_at" db:"updated_at"`

	// Active flags whether the account is enabled.
	Active bool `json:"active" db:"active"`
}

// UserInput carries every mutable field for a create or a full update.
// A nil Active means "use the configured default".
type UserInput struct {
	Username  string
	Email     string
	FirstName string
	LastName  string
	Role      Role
	Active    *bool
}

// UserPage is one page of users plus the metadata needed to page further.
type UserPage struct {
	Items []User `json:"items"`
	Total int    `json:"total"`
	Page  int    `json:"page"`
	Size  int    `json:"size"`
	Pages int    `json:"pages"`
}

// UserField names a mutable user attribute.
type UserField string

const (
	FieldUsername  UserField = "username"
	FieldEmail     UserField = "email"
	FieldFirstName UserField = "first_name"
	FieldLastName  UserField = "last_name"
	FieldRole      UserField = "role"
	FieldActive    UserField = "active"
)

// MutableFields lists every field a patch may touch.
var MutableFields = []UserField{
	FieldUsername,
	FieldEmail,
	FieldFirstName,
	FieldLastName,
	FieldRole,
	FieldActive,
}

// ErrInvalidPatch is returned when a patch carries an unknown field or a
// value of the wrong type.
var ErrInvalidPatch = errors.New("invalid patch")

// UserPatch is a sparse update: only the fields present in the map are
// applied. String fields hold string values, FieldRole holds a Role and
// FieldActive holds a bool.
type UserPatch map[UserField]any

// ApplyTo writes the present fields onto u. On error u is left untouched.
func (p UserPatch) ApplyTo(u *User) error {
	next := *u
	for field, value := range p {
		var ok bool
		switch field {
		case FieldUsername:
			next.Username, ok = value.(string)
		case FieldEmail:
			next.Email, ok = value.(string)
		case FieldFirstName:
			next.FirstName, ok = value.(string)
		case FieldLastName:
			next.LastName, ok = value.(string)
		case FieldRole:
			next.Role, ok = asRole(value)
		case FieldActive:
			next.Active, ok = value.(bool)
		default:
			return fmt.Errorf("%w: unknown field %q", ErrInvalidPatch, field)
		}
		if !ok {
			return fmt.Errorf("%w: unexpected %T for %q", ErrInvalidPatch, value, field)
		}
	}
	*u = next
	return nil
}

func asRole(value any) (Role, bool) {
	switch v := value.(type) {
	case Role:
		return v, true
	case string:
		return Role(v), true
	default:
		return "", false
	}
}
