package sqlite

import (
	"context"
	"database/sql"
	"errors"
	"strings"
	"time"

	"securefiles/server/internal/model"
	"securefiles/server/internal/store"
)

const userColumns = `id, email, username, active, role, email_verified, created_at, updated_at`

func scanUser(row interface{ Scan(...any) error }) (model.User, error) {
	var (
		u                model.User
		role             string
		created, updated int64
	)
	if err := row.Scan(&u.ID, &u.Email, &u.Username, &u.Active, &role, &u.EmailVerified, &created, &updated); err != nil {
		return model.User{}, err
	}
	u.Role = model.ParseRole(role)
	u.CreatedAt = fromNanos(created)
	u.UpdatedAt = fromNanos(updated)
	return u, nil
}

func (s *Store) CreateUser(ctx context.Context, u model.User) (model.User, error) {
	email := strings.ToLower(strings.TrimSpace(u.Email))
	if email == "" {
		return model.User{}, errors.New("email_required")
	}
	if u.Role == "" {
		u.Role = model.RoleUnassigned
	}

	now := time.Now().UTC()
	u.ID = newID()
	u.Email = email
	u.Username = strings.TrimSpace(u.Username)
	u.CreatedAt = now
	u.UpdatedAt = now

	_, err := s.db.ExecContext(ctx,
		`INSERT INTO users (`+userColumns+`) VALUES (?, ?, ?, ?, ?, ?, ?, ?)`,
		u.ID, u.Email, u.Username, u.Active, string(u.Role), u.EmailVerified, toNanos(now), toNanos(now))
	if err != nil {
		return model.User{}, mapErr(err)
	}
	return u, nil
}

func (s *Store) GetUserByID(ctx context.Context, id string) (*model.User, error) {
	u, err := scanUser(s.db.QueryRowContext(ctx, `SELECT `+userColumns+` FROM users WHERE id = ?`, id))
	if err != nil {
		return nil, mapErr(err)
	}
	return &u, nil
}

func (s *Store) GetUserByEmail(ctx context.Context, email string) (*model.User, error) {
	u, err := scanUser(s.db.QueryRowContext(ctx,
		`SELECT `+userColumns+` FROM users WHERE email = ?`, strings.ToLower(strings.TrimSpace(email))))
	if err != nil {
		return nil, mapErr(err)
	}
	return &u, nil
}

func (s *Store) UpdateUser(ctx context.Context, u model.User) (model.User, error) {
	email := strings.ToLower(strings.TrimSpace(u.Email))
	if email == "" {
		return model.User{}, errors.New("email_required")
	}

	var out model.User
	err := s.withTx(ctx, func(tx *sql.Tx) error {
		res, err := tx.ExecContext(ctx,
			`UPDATE users SET email = ?, username = ?, active = ?, role = ?, email_verified = ?, updated_at = ? WHERE id = ?`,
			email, strings.TrimSpace(u.Username), u.Active, string(u.Role), u.EmailVerified, toNanos(time.Now().UTC()), u.ID)
		if err != nil {
			return mapErr(err)
		}
		if n, _ := res.RowsAffected(); n == 0 {
			return store.ErrNotFound
		}
		out, err = scanUser(tx.QueryRowContext(ctx, `SELECT `+userColumns+` FROM users WHERE id = ?`, u.ID))
		return mapErr(err)
	})
	if err != nil {
		return model.User{}, err
	}
	return out, nil
}
