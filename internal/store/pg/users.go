package pg

import (
	"context"
	"database/sql"
	"errors"

	"conselho.org/internal/auth"
	"conselho.org/internal/ids"
)

var _ auth.UserStore = (*Store)(nil)

func (s *Store) CreateUser(ctx context.Context, u *auth.User) error {
	if u.ID == "" {
		u.ID = ids.New()
	}
	_, err := s.db.ExecContext(ctx, `
		insert into users (id, email, password_hash, role, status, created_at, updated_at)
		values ($1, $2, $3, $4, $5, $6, $7)
	`, u.ID, u.Email, u.PasswordHash, u.Role, u.Status, u.CreatedAt, u.UpdatedAt)
	if err != nil {
		if pgErr, ok := maybePgError(err); ok && pgErr.Code == pgErrUniqueViolation {
			return auth.ErrAlreadyExists
		}
		return err
	}
	return nil
}

func (s *Store) FindUser(ctx context.Context, id string) (*auth.User, error) {
	return s.scanUser(s.db.QueryRowContext(ctx, `
		select id, email, password_hash, role, status, created_at, updated_at
		from users where id=$1
	`, id))
}

func (s *Store) FindUserByEmail(ctx context.Context, email string) (*auth.User, error) {
	return s.scanUser(s.db.QueryRowContext(ctx, `
		select id, email, password_hash, role, status, created_at, updated_at
		from users where email=$1
	`, email))
}

func (s *Store) scanUser(row *sql.Row) (*auth.User, error) {
	var u auth.User
	err := row.Scan(&u.ID, &u.Email, &u.PasswordHash, &u.Role, &u.Status, &u.CreatedAt, &u.UpdatedAt)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, auth.ErrNotFound
	}
	if err != nil {
		return nil, err
	}
	return &u, nil
}
