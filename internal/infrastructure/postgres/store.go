package postgres

import (
	"context"
	"errors"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/usersvc/users-api/internal/domain/entity"
	"github.com/usersvc/users-api/internal/domain/repository"
)

const uniqueViolation = "23505"

// Store opens one transaction per unit of work against a pgx pool.
type Store struct {
	pool *pgxpool.Pool
}

func NewStore(pool *pgxpool.Pool) *Store {
	return &Store{pool: pool}
}

func (s *Store) Begin(ctx context.Context) (repository.UnitOfWork, error) {
	tx, err := s.pool.Begin(ctx)
	if err != nil {
		return nil, err
	}
	return &unitOfWork{tx: tx}, nil
}

type unitOfWork struct {
	tx pgx.Tx
}

func (w *unitOfWork) Commit(ctx context.Context) error {
	return mapError(w.tx.Commit(ctx))
}

// Rollback is a no-op after Commit so callers can defer it unconditionally.
func (w *unitOfWork) Rollback(ctx context.Context) error {
	if err := w.tx.Rollback(ctx); err != nil && !errors.Is(err, pgx.ErrTxClosed) {
		return err
	}
	return nil
}

func (w *unitOfWork) CreateUser(ctx context.Context, u *entity.User) error {
	row := w.tx.QueryRow(ctx, `
		INSERT INTO users (name, email, avatar_url, avatar_key)
		VALUES ($1, $2, $3, $4)
		RETURNING id, created_at
	`, u.Name, u.Email, u.AvatarURL, u.AvatarKey)

	return mapError(row.Scan(&u.ID, &u.CreatedAt))
}

func (w *unitOfWork) ListUsers(ctx context.Context) ([]entity.User, error) {
	rows, err := w.tx.Query(ctx, `
		SELECT id, name, email, avatar_url, avatar_key, created_at
		FROM users
		ORDER BY id
	`)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	users := make([]entity.User, 0)
	for rows.Next() {
		var u entity.User
		if err := rows.Scan(&u.ID, &u.Name, &u.Email, &u.AvatarURL, &u.AvatarKey, &u.CreatedAt); err != nil {
			return nil, err
		}
		users = append(users, u)
	}
	return users, rows.Err()
}

func (w *unitOfWork) GetUserByID(ctx context.Context, id int64) (*entity.User, error) {
	return w.getUser(ctx, `
		SELECT id, name, email, avatar_url, avatar_key, created_at
		FROM users
		WHERE id = $1
	`, id)
}

func (w *unitOfWork) GetUserByEmail(ctx context.Context, email string) (*entity.User, error) {
	return w.getUser(ctx, `
		SELECT id, name, email, avatar_url, avatar_key, created_at
		FROM users
		WHERE email = $1
	`, email)
}

func (w *unitOfWork) getUser(ctx context.Context, query string, arg any) (*entity.User, error) {
	u := &entity.User{}
	row := w.tx.QueryRow(ctx, query, arg)
	if err := row.Scan(&u.ID, &u.Name, &u.Email, &u.AvatarURL, &u.AvatarKey, &u.CreatedAt); err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, repository.ErrNotFound
		}
		return nil, err
	}
	return u, nil
}

func (w *unitOfWork) EmailTakenByOther(ctx context.Context, email string, id int64) (bool, error) {
	var taken bool
	row := w.tx.QueryRow(ctx, `
		SELECT EXISTS (SELECT 1 FROM users WHERE email = $1 AND id <> $2)
	`, email, id)
	if err := row.Scan(&taken); err != nil {
		return false, err
	}
	return taken, nil
}

func (w *unitOfWork) UpdateUser(ctx context.Context, u *entity.User) error {
	res, err := w.tx.Exec(ctx, `
		UPDATE users
		SET name = $1, email = $2, avatar_url = $3, avatar_key = $4
		WHERE id = $5
	`, u.Name, u.Email, u.AvatarURL, u.AvatarKey, u.ID)
	if err != nil {
		return mapError(err)
	}
	if res.RowsAffected() == 0 {
		return repository.ErrNotFound
	}
	return nil
}

func (w *unitOfWork) DeleteUser(ctx context.Context, id int64) error {
	res, err := w.tx.Exec(ctx, `DELETE FROM users WHERE id = $1`, id)
	if err != nil {
		return err
	}
	if res.RowsAffected() == 0 {
		return repository.ErrNotFound
	}
	return nil
}

// mapError translates a unique-constraint violation on users.email into the
// repository sentinel. The constraint, not the application pre-check, is the
// source of truth when concurrent requests race on the same email.
func mapError(err error) error {
	if err == nil {
		return nil
	}
	var pgErr *pgconn.PgError
	if errors.As(err, &pgErr) && pgErr.Code == uniqueViolation {
		return repository.ErrDuplicateEmail
	}
	return err
}

var _ repository.Store = (*Store)(nil)
var _ repository.UnitOfWork = (*unitOfWork)(nil)
