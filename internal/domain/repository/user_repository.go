package repository

import (
	"context"
	"errors"

	"github.com/usersvc/users-api/internal/domain/entity"
)

var (
	// ErrNotFound is returned when a lookup matches no user.
	ErrNotFound = errors.New("user not found")
	// ErrDuplicateEmail is returned when a write violates email uniqueness.
	ErrDuplicateEmail = errors.New("duplicate email")
)

// UserQueries are the user-table operations available inside a unit of work.
type UserQueries interface {
	CreateUser(ctx context.Context, u *entity.User) error
	ListUsers(ctx context.Context) ([]entity.User, error)
	GetUserByID(ctx context.Context, id int64) (*entity.User, error)
	GetUserByEmail(ctx context.Context, email string) (*entity.User, error)
	EmailTakenByOther(ctx context.Context, email string, id int64) (bool, error)
	UpdateUser(ctx context.Context, u *entity.User) error
	DeleteUser(ctx context.Context, id int64) error
}

// UnitOfWork is a per-request persistence session. Rollback must be safe to
// call after Commit so callers can defer it unconditionally.
type UnitOfWork interface {
	UserQueries
	Commit(ctx context.Context) error
	Rollback(ctx context.Context) error
}

// Store opens units of work against the backing database.
type Store interface {
	Begin(ctx context.Context) (UnitOfWork, error)
}
