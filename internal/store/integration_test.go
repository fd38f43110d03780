//go:build integration

package store_test

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/userhub/apiserver/internal/store"
	"github.com/userhub/apiserver/internal/testutil"
	"github.com/userhub/apiserver/types"
)

func TestPostgresUserRepository(t *testing.T) {
	conn := testutil.SetupTestDB(t)
	database := store.NewDB(conn)
	repo := store.NewUserRepository()
	ctx := context.Background()

	insert := func(t *testing.T, u types.User) (types.User, error) {
		t.Helper()
		var got types.User
		err := database.WithinTx(ctx, nil, func(q store.Querier) error {
			var err error
			got, err = repo.Insert(ctx, q, u)
			return err
		})
		return got, err
	}

	t.Run("insert and get round trip", func(t *testing.T) {
		testutil.TruncateUsers(t, conn)
		u := newUser()

		created, err := insert(t, u)
		require.NoError(t, err)
		assert.Equal(t, u, created)

		got, err := repo.Get(ctx, conn, u.ID)
		require.NoError(t, err)
		assert.Equal(t, u, got)
	})

	t.Run("unique username and email", func(t *testing.T) {
		testutil.TruncateUsers(t, conn)
		first := newUser()
		_, err := insert(t, first)
		require.NoError(t, err)

		sameName := newUser()
		sameName.Email = "other@example.com"
		_, err = insert(t, sameName)
		require.ErrorIs(t, err, store.ErrUniqueViolation)
		assert.Contains(t, err.Error(), "users_username_key")

		sameEmail := newUser()
		sameEmail.Username = "other"
		_, err = insert(t, sameEmail)
		require.ErrorIs(t, err, store.ErrUniqueViolation)
		assert.Contains(t, err.Error(), "users_email_key")

		_, total, err := repo.List(ctx, conn, 0, 10)
		require.NoError(t, err)
		assert.Equal(t, 1, total)
	})

	t.Run("failed transaction leaves nothing behind", func(t *testing.T) {
		testutil.TruncateUsers(t, conn)
		boom := errors.New("abort")

		err := database.WithinTx(ctx, nil, func(q store.Querier) error {
			if _, err := repo.Insert(ctx, q, newUser()); err != nil {
				return err
			}
			return boom
		})
		require.ErrorIs(t, err, boom)

		_, total, err := repo.List(ctx, conn, 0, 10)
		require.NoError(t, err)
		assert.Zero(t, total)
	})

	t.Run("update and delete", func(t *testing.T) {
		testutil.TruncateUsers(t, conn)
		u := newUser()
		_, err := insert(t, u)
		require.NoError(t, err)

		u.FirstName = "Jane"
		u.UpdatedAt = u.UpdatedAt.Add(time.Minute)
		updated, err := repo.Update(ctx, conn, u)
		require.NoError(t, err)
		assert.Equal(t, "Jane", updated.FirstName)

		require.NoError(t, repo.Delete(ctx, conn, u.ID))
		_, err = repo.Get(ctx, conn, u.ID)
		require.ErrorIs(t, err, store.ErrNotFound)
		require.ErrorIs(t, repo.Delete(ctx, conn, u.ID), store.ErrNotFound)
	})

	t.Run("list orders by creation", func(t *testing.T) {
		testutil.TruncateUsers(t, conn)
		base := newUser().CreatedAt
		for i := range 5 {
			u := newUser()
			u.ID = uuid.New()
			u.Username = fmt.Sprintf("user%d", i)
			u.Email = fmt.Sprintf("user%d@example.com", i)
			u.CreatedAt = base.Add(time.Duration(i) * time.Second)
			u.UpdatedAt = u.CreatedAt
			_, err := insert(t, u)
			require.NoError(t, err)
		}

		items, total, err := repo.List(ctx, conn, 2, 2)
		require.NoError(t, err)
		assert.Equal(t, 5, total)
		require.Len(t, items, 2)
		assert.Equal(t, "user2", items[0].Username)
		assert.Equal(t, "user3", items[1].Username)
	})

	t.Run("concurrent inserts on one username", func(t *testing.T) {
		testutil.TruncateUsers(t, conn)
		const writers = 8

		var wg sync.WaitGroup
		errs := make([]error, writers)
		for i := range writers {
			wg.Add(1)
			go func() {
				defer wg.Done()
				u := newUser()
				u.ID = uuid.New()
				u.Email = fmt.Sprintf("racer%d@example.com", i)
				_, errs[i] = insert(t, u)
			}()
		}
		wg.Wait()

		succeeded := 0
		for _, err := range errs {
			if err == nil {
				succeeded++
				continue
			}
			assert.ErrorIs(t, err, store.ErrUniqueViolation)
		}
		assert.Equal(t, 1, succeeded)
	})
}
