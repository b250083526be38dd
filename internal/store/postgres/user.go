package postgres

import (
	"context"
	"errors"
	"strings"

	"securefiles/server/internal/model"

	"github.com/jackc/pgx/v5"
)

const userColumns = `id::text, email, username, active, role, email_verified, created_at, updated_at`

func scanUser(row pgx.Row) (model.User, error) {
	var u model.User
	var role string
	err := row.Scan(&u.ID, &u.Email, &u.Username, &u.Active, &role, &u.EmailVerified, &u.CreatedAt, &u.UpdatedAt)
	u.Role = model.ParseRole(role)
	return u, err
}

func (s *Store) CreateUser(ctx context.Context, u model.User) (model.User, error) {
	email := strings.ToLower(strings.TrimSpace(u.Email))
	if email == "" {
		return model.User{}, errors.New("email_required")
	}
	if u.Role == "" {
		u.Role = model.RoleUnassigned
	}

	out, err := scanUser(s.pool.QueryRow(ctx, `
		insert into public.users (email, username, active, role, email_verified)
		values ($1, $2, $3, $4, $5)
		returning `+userColumns,
		email, strings.TrimSpace(u.Username), u.Active, string(u.Role), u.EmailVerified))
	if err != nil {
		return model.User{}, mapPgErr(err)
	}
	return out, nil
}

func (s *Store) GetUserByID(ctx context.Context, id string) (*model.User, error) {
	u, err := scanUser(s.pool.QueryRow(ctx, `
		select `+userColumns+`
		from public.users
		where id = $1::uuid
	`, id))
	if err != nil {
		return nil, mapPgErr(err)
	}
	return &u, nil
}

func (s *Store) GetUserByEmail(ctx context.Context, email string) (*model.User, error) {
	u, err := scanUser(s.pool.QueryRow(ctx, `
		select `+userColumns+`
		from public.users
		where lower(email) = lower($1)
	`, strings.TrimSpace(email)))
	if err != nil {
		return nil, mapPgErr(err)
	}
	return &u, nil
}

func (s *Store) UpdateUser(ctx context.Context, u model.User) (model.User, error) {
	email := strings.ToLower(strings.TrimSpace(u.Email))
	if email == "" {
		return model.User{}, errors.New("email_required")
	}

	out, err := scanUser(s.pool.QueryRow(ctx, `
		update public.users
		set email = $2,
		    username = $3,
		    active = $4,
		    role = $5,
		    email_verified = $6
		where id = $1::uuid
		returning `+userColumns,
		u.ID, email, strings.TrimSpace(u.Username), u.Active, string(u.Role), u.EmailVerified))
	if err != nil {
		return model.User{}, mapPgErr(err)
	}
	return out, nil
}
