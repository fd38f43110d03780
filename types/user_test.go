package types

import (
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func sampleUser() User {
	now := time.Date(2026, 1, 2, 3, 4, 5, 0, time.UTC)
	return User{
		ID:        uuid.New(),
		Username:  "jdoe",
		Email:     "jdoe@example.com",
		FirstName: "John",
		LastName:  "Doe",
		Role:      RoleUser,
		Active:    true,
		CreatedAt: now,
		UpdatedAt: now,
	}
}

func TestRoleValid(t *testing.T) {
	assert.True(t, RoleAdmin.Valid())
	assert.True(t, RoleUser.Valid())
	assert.True(t, RoleGuest.Valid())
	assert.False(t, Role("root").Valid())
	assert.False(t, Role("").Valid())
}

func TestUserPatchApplyTo(t *testing.T) {
	tests := []struct {
		name   string
		patch  UserPatch
		mutate func(u *User)
	}{
		{
			name:   "empty patch changes nothing",
			patch:  UserPatch{},
			mutate: func(u *User) {},
		},
		{
			name:   "first name only",
			patch:  UserPatch{FieldFirstName: "X"},
			mutate: func(u *User) { u.FirstName = "X" },
		},
		{
			name:   "role from string",
			patch:  UserPatch{FieldRole: "admin"},
			mutate: func(u *User) { u.Role = RoleAdmin },
		},
		{
			name:   "explicit false is applied",
			patch:  UserPatch{FieldActive: false},
			mutate: func(u *User) { u.Active = false },
		},
		{
			name: "several fields",
			patch: UserPatch{
				FieldUsername: "jane",
				FieldEmail:    "jane@example.com",
				FieldLastName: "Roe",
				FieldRole:     RoleGuest,
			},
			mutate: func(u *User) {
				u.Username = "jane"
				u.Email = "jane@example.com"
				u.LastName = "Roe"
				u.Role = RoleGuest
			},
		},
	}

	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			got := sampleUser()
			want := got
			tc.mutate(&want)

			require.NoError(t, tc.patch.ApplyTo(&got))
			assert.Equal(t, want, got)
		})
	}
}

func TestUserPatchApplyToRejectsBadValues(t *testing.T) {
	tests := []struct {
		name  string
		patch UserPatch
	}{
		{name: "unknown field", patch: UserPatch{"id": "x"}},
		{name: "wrong type", patch: UserPatch{FieldActive: "yes"}},
		{name: "nil value", patch: UserPatch{FieldEmail: nil}},
	}

	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			u := sampleUser()
			before := u

			err := tc.patch.ApplyTo(&u)
			require.ErrorIs(t, err, ErrInvalidPatch)
			assert.Equal(t, before, u)
		})
	}
}
