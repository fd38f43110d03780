package store

import (
	"context"
	"database/sql"
	"errors"
	"fmt"

	"github.com/google/uuid"
	"github.com/userhub/apiserver/types"
)

const userColumns = `id, username, email, first_name, last_name, role, active, created_at, updated_at`

const defaultListLimit = 50

// UserRepository handles persistence for users.
type UserRepository struct{}

func NewUserRepository() *UserRepository {
	return &UserRepository{}
}

func (r *UserRepository) Get(ctx context.Context, q Querier, id uuid.UUID) (types.User, error) {
	row := q.QueryRowContext(ctx, `SELECT `+userColumns+` FROM users WHERE id = $1`, id)
	user, err := scanUser(row)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return types.User{}, ErrNotFound
		}
		return types.User{}, fmt.Errorf("get user: %w", err)
	}
	return user, nil
}

// GetForUpdate loads a user and locks the row until the surrounding
// transaction ends.
func (r *UserRepository) GetForUpdate(ctx context.Context, q Querier, id uuid.UUID) (types.User, error) {
	row := q.QueryRowContext(ctx, `SELECT `+userColumns+` FROM users WHERE id = $1 FOR UPDATE`, id)
	user, err := scanUser(row)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return types.User{}, ErrNotFound
		}
		return types.User{}, fmt.Errorf("get user for update: %w", err)
	}
	return user, nil
}

// List returns one window of users in creation order along with the
// total number of users.
func (r *UserRepository) List(ctx context.Context, q Querier, offset, limit int) ([]types.User, int, error) {
	if offset < 0 {
		offset = 0
	}
	if limit < 1 {
		limit = defaultListLimit
	}

	const countQuery = `SELECT COUNT(1) FROM users`
	var total int
	if err := q.QueryRowContext(ctx, countQuery).Scan(&total); err != nil {
		return nil, 0, fmt.Errorf("count users: %w", err)
	}

	rows, err := q.QueryContext(ctx,
		`SELECT `+userColumns+` FROM users ORDER BY created_at, id OFFSET $1 LIMIT $2`,
		offset, limit,
	)
	if err != nil {
		return nil, 0, fmt.Errorf("list users: %w", err)
	}
	defer rows.Close()

	users := make([]types.User, 0, limit)
	for rows.Next() {
		user, err := scanUser(rows)
		if err != nil {
			return nil, 0, fmt.Errorf("list users: scan: %w", err)
		}
		users = append(users, user)
	}
	if err := rows.Err(); err != nil {
		return nil, 0, fmt.Errorf("list users: rows: %w", err)
	}

	return users, total, nil
}

// Insert writes a new user and returns the row as stored.
func (r *UserRepository) Insert(ctx context.Context, q Querier, user types.User) (types.User, error) {
	row := q.QueryRowContext(ctx,
		`INSERT INTO users (`+userColumns+`)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9)
		RETURNING `+userColumns,
		user.ID,
		user.Username,
		user.Email,
		user.FirstName,
		user.LastName,
		user.Role,
		user.Active,
		user.CreatedAt,
		user.UpdatedAt,
	)
	created, err := scanUser(row)
	if err != nil {
		return types.User{}, fmt.Errorf("insert user: %w", classify(err))
	}
	return created, nil
}

// Update overwrites every mutable column of an existing user and returns
// the row as stored. id and created_at are never written.
func (r *UserRepository) Update(ctx context.Context, q Querier, user types.User) (types.User, error) {
	row := q.QueryRowContext(ctx,
		`UPDATE users
		SET username = $1,
			email = $2,
			first_name = $3,
			last_name = $4,
			role = $5,
			active = $6,
			updated_at = $7
		WHERE id = $8
		RETURNING `+userColumns,
		user.Username,
		user.Email,
		user.FirstName,
		user.LastName,
		user.Role,
		user.Active,
		user.UpdatedAt,
		user.ID,
	)
	updated, err := scanUser(row)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return types.User{}, ErrNotFound
		}
		return types.User{}, fmt.Errorf("update user: %w", classify(err))
	}
	return updated, nil
}

func (r *UserRepository) Delete(ctx context.Context, q Querier, id uuid.UUID) error {
	const query = `DELETE FROM users WHERE id = $1`
	result, err := q.ExecContext(ctx, query, id)
	if err != nil {
		return fmt.Errorf("delete user: %w", err)
	}
	affected, err := result.RowsAffected()
	if err != nil {
		return fmt.Errorf("delete user: %w", err)
	}
	if affected == 0 {
		return ErrNotFound
	}
	return nil
}

func scanUser(s scanner) (types.User, error) {
	var user types.User
	err := s.Scan(
		&user.ID,
		&user.Username,
		&user.Email,
		&user.FirstName,
		&user.LastName,
		&user.Role,
		&user.Active,
		&user.CreatedAt,
		&user.UpdatedAt,
	)
	if err != nil {
		return types.User{}, err
	}
	user.CreatedAt = user.CreatedAt.UTC()
	user.UpdatedAt = user.UpdatedAt.UTC()
	return user, nil
}
