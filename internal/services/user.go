package services

import (
	"context"
	"database/sql"
	"math"
	"time"

	"github.com/google/uuid"
	"github.com/userhub/apiserver/internal/events"
	"github.com/userhub/apiserver/internal/logging"
	"github.com/userhub/apiserver/internal/store"
	"github.com/userhub/apiserver/types"
)

const (
	DefaultPageSize = 50
	MaxPageSize     = 100
)

// UserRepository defines persistence operations for users. Every call
// runs on the query handle it is given.
type UserRepository interface {
	Get(ctx context.Context, q store.Querier, id uuid.UUID) (types.User, error)
	GetForUpdate(ctx context.Context, q store.Querier, id uuid.UUID) (types.User, error)
	List(ctx context.Context, q store.Querier, offset, limit int) ([]types.User, int, error)
	Insert(ctx context.Context, q store.Querier, user types.User) (types.User, error)
	Update(ctx context.Context, q store.Querier, user types.User) (types.User, error)
	Delete(ctx context.Context, q store.Querier, id uuid.UUID) error
}

// Transactor runs a unit of work inside one database transaction.
type Transactor interface {
	WithinTx(ctx context.Context, opts *sql.TxOptions, fn func(q store.Querier) error) error
}

// EventPublisher announces committed user changes.
type EventPublisher interface {
	Publish(ctx context.Context, evt events.Event) (string, error)
}

var (
	readOnly = &sql.TxOptions{ReadOnly: true}
	snapshot = &sql.TxOptions{Isolation: sql.LevelRepeatableRead, ReadOnly: true}
)

// UserService encapsulates user use-cases. It holds no per-request state
// and is safe for concurrent use.
type UserService struct {
	db            Transactor
	repo          UserRepository
	events        EventPublisher
	defaultActive bool
	now           func() time.Time
}

type UserServiceOption func(*UserService)

// WithDefaultActive sets the value used when an input omits Active.
func WithDefaultActive(active bool) UserServiceOption {
	return func(s *UserService) { s.defaultActive = active }
}

// WithEventPublisher enables lifecycle events.
func WithEventPublisher(p EventPublisher) UserServiceOption {
	return func(s *UserService) { s.events = p }
}

func WithClock(now func() time.Time) UserServiceOption {
	return func(s *UserService) { s.now = now }
}

func NewUserService(db Transactor, repo UserRepository, opts ...UserServiceOption) *UserService {
	s := &UserService{
		db:            db,
		repo:          repo,
		defaultActive: true,
		now:           time.Now,
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

func (s *UserService) GetByID(ctx context.Context, id uuid.UUID) (types.User, error) {
	var user types.User
	err := s.db.WithinTx(ctx, readOnly, func(q store.Querier) error {
		var err error
		user, err = s.repo.Get(ctx, q, id)
		return err
	})
	if err != nil {
		return types.User{}, translate("get user", err)
	}
	return user, nil
}

// List returns the 1-based page of users. Out-of-range sizes fall back to
// DefaultPageSize or are capped at MaxPageSize.
func (s *UserService) List(ctx context.Context, page, size int) (types.UserPage, error) {
	if page < 1 {
		page = 1
	}
	if size < 1 {
		size = DefaultPageSize
	}
	if size > MaxPageSize {
		size = MaxPageSize
	}

	// Pages past the addressable range saturate the offset so they come
	// back empty instead of wrapping around to the first rows.
	offset := math.MaxInt
	if page-1 <= math.MaxInt/size {
		offset = (page - 1) * size
	}

	var (
		items []types.User
		total int
	)
	err := s.db.WithinTx(ctx, readOnly, func(q store.Querier) error {
		var err error
		items, total, err = s.repo.List(ctx, q, offset, size)
		return err
	})
	if err != nil {
		return types.UserPage{}, translate("list users", err)
	}
	if items == nil {
		items = []types.User{}
	}

	return types.UserPage{
		Items: items,
		Total: total,
		Page:  page,
		Size:  size,
		Pages: (total + size - 1) / size,
	}, nil
}

// Walk hands every user to fn in creation order. All pages are read from
// one repeatable-read snapshot, so concurrent writes cannot make a row
// appear twice or go missing. An error from fn stops the walk and is
// returned unchanged.
func (s *UserService) Walk(ctx context.Context, size int, fn func(types.User) error) error {
	if size < 1 || size > MaxPageSize {
		size = MaxPageSize
	}

	var fnErr error
	err := s.db.WithinTx(ctx, snapshot, func(q store.Querier) error {
		for offset := 0; ; offset += size {
			items, _, err := s.repo.List(ctx, q, offset, size)
			if err != nil {
				return err
			}
			for _, user := range items {
				if err := fn(user); err != nil {
					fnErr = err
					return err
				}
			}
			if len(items) < size {
				return nil
			}
		}
	})
	if fnErr != nil {
		return fnErr
	}
	if err != nil {
		return translate("walk users", err)
	}
	return nil
}

// Create stores a new user with a fresh id and equal created/updated
// timestamps. Input is expected to be validated already.
func (s *UserService) Create(ctx context.Context, in types.UserInput) (types.User, error) {
	now := s.stamp()
	user := types.User{
		ID:        uuid.New(),
		Username:  in.Username,
		Email:     in.Email,
		FirstName: in.FirstName,
		LastName:  in.LastName,
		Role:      in.Role,
		Active:    s.activeOrDefault(in.Active),
		CreatedAt: now,
		UpdatedAt: now,
	}

	var created types.User
	err := s.db.WithinTx(ctx, nil, func(q store.Querier) error {
		var err error
		created, err = s.repo.Insert(ctx, q, user)
		return err
	})
	if err != nil {
		return types.User{}, translate("create user", err)
	}

	s.publish(ctx, events.UserCreated, created)
	return created, nil
}

// Replace overwrites every mutable field of an existing user. An omitted
// Active reverts to the configured default.
func (s *UserService) Replace(ctx context.Context, id uuid.UUID, in types.UserInput) (types.User, error) {
	return s.mutate(ctx, "replace user", id, func(u *types.User) error {
		u.Username = in.Username
		u.Email = in.Email
		u.FirstName = in.FirstName
		u.LastName = in.LastName
		u.Role = in.Role
		u.Active = s.activeOrDefault(in.Active)
		return nil
	})
}

// Patch applies only the fields present in patch.
func (s *UserService) Patch(ctx context.Context, id uuid.UUID, patch types.UserPatch) (types.User, error) {
	return s.mutate(ctx, "patch user", id, patch.ApplyTo)
}

func (s *UserService) Delete(ctx context.Context, id uuid.UUID) error {
	var deleted types.User
	err := s.db.WithinTx(ctx, nil, func(q store.Querier) error {
		var err error
		deleted, err = s.repo.GetForUpdate(ctx, q, id)
		if err != nil {
			return err
		}
		return s.repo.Delete(ctx, q, id)
	})
	if err != nil {
		return translate("delete user", err)
	}

	s.publish(ctx, events.UserDeleted, deleted)
	return nil
}

// mutate locks the row, lets change edit it, refreshes updated_at and
// persists the result in one transaction.
func (s *UserService) mutate(ctx context.Context, op string, id uuid.UUID, change func(*types.User) error) (types.User, error) {
	var updated types.User
	err := s.db.WithinTx(ctx, nil, func(q store.Querier) error {
		current, err := s.repo.GetForUpdate(ctx, q, id)
		if err != nil {
			return err
		}

		next := current
		if err := change(&next); err != nil {
			return err
		}
		next.ID = current.ID
		next.CreatedAt = current.CreatedAt
		next.UpdatedAt = s.stamp()
		if next.UpdatedAt.Before(current.CreatedAt) {
			next.UpdatedAt = current.CreatedAt
		}

		updated, err = s.repo.Update(ctx, q, next)
		return err
	})
	if err != nil {
		return types.User{}, translate(op, err)
	}

	s.publish(ctx, events.UserUpdated, updated)
	return updated, nil
}

// stamp returns the current UTC time at storage precision.
func (s *UserService) stamp() time.Time {
	return s.now().UTC().Truncate(time.Microsecond)
}

func (s *UserService) activeOrDefault(active *bool) bool {
	if active == nil {
		return s.defaultActive
	}
	return *active
}

func (s *UserService) publish(ctx context.Context, t events.Type, user types.User) {
	if s.events == nil {
		return
	}
	if _, err := s.events.Publish(ctx, events.NewEvent(t, user, s.now())); err != nil {
		logging.FromContext(ctx).Warn("failed to publish user event",
			"event_type", string(t),
			"user_id", user.ID.String(),
			"error", err,
		)
	}
}
