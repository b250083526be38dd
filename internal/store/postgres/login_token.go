package postgres

import (
	"context"
	"errors"
	"time"

	"securefiles/server/internal/model"
	"securefiles/server/internal/store"

	"github.com/jackc/pgx/v5"
)

const loginTokenColumns = `token, user_id::text, created_at, expires_at, used, coalesce(login_ip, ''), user_agent`

func scanLoginToken(row pgx.Row) (model.LoginToken, error) {
	var lt model.LoginToken
	err := row.Scan(&lt.Token, &lt.UserID, &lt.CreatedAt, &lt.ExpiresAt, &lt.Used, &lt.LoginIP, &lt.UserAgent)
	return lt, err
}

func (s *Store) ReissueLoginToken(ctx context.Context, t model.LoginToken) (int, error) {
	if t.Token == "" {
		return 0, errors.New("token_required")
	}

	tx, err := s.pool.BeginTx(ctx, pgx.TxOptions{})
	if err != nil {
		return 0, mapPgErr(err)
	}
	defer func() { _ = tx.Rollback(ctx) }()

	// Lock the owner so concurrent reissues for one user run one after another;
	// the later transaction sees and invalidates the earlier token.
	var userID string
	if err := tx.QueryRow(ctx, `
		select id::text from public.users where id = $1::uuid for update
	`, t.UserID).Scan(&userID); err != nil {
		return 0, mapPgErr(err)
	}

	tag, err := tx.Exec(ctx, `
		update public.login_tokens
		set used = true
		where user_id = $1::uuid
		  and used = false
	`, userID)
	if err != nil {
		return 0, mapPgErr(err)
	}

	if _, err := tx.Exec(ctx, `
		insert into public.login_tokens (token, user_id, created_at, expires_at, used, login_ip, user_agent)
		values ($1, $2::uuid, $3, $4, false, nullif($5, ''), $6)
	`, t.Token, userID, t.CreatedAt, t.ExpiresAt, t.LoginIP, t.UserAgent); err != nil {
		return 0, mapPgErr(err)
	}

	if err := tx.Commit(ctx); err != nil {
		return 0, mapPgErr(err)
	}
	return int(tag.RowsAffected()), nil
}

func (s *Store) ConsumeLoginToken(ctx context.Context, token string, now time.Time) (*model.LoginToken, error) {
	lt, err := scanLoginToken(s.pool.QueryRow(ctx, `
		update public.login_tokens
		set used = true
		where token = $1
		  and used = false
		  and expires_at > $2
		returning `+loginTokenColumns,
		token, now))
	if err == nil {
		return &lt, nil
	}
	if !errors.Is(err, pgx.ErrNoRows) {
		return nil, mapPgErr(err)
	}

	existing, err := s.GetLoginToken(ctx, token)
	if err != nil {
		return nil, err
	}
	if err := store.ClassifyToken(*existing, now); err != nil {
		return nil, err
	}
	// Valid on re-read but the update matched nothing: another caller won.
	return nil, store.ErrTokenUsed
}

func (s *Store) GetLoginToken(ctx context.Context, token string) (*model.LoginToken, error) {
	lt, err := scanLoginToken(s.pool.QueryRow(ctx, `
		select `+loginTokenColumns+`
		from public.login_tokens
		where token = $1
	`, token))
	if err != nil {
		return nil, mapPgErr(err)
	}
	return &lt, nil
}

func (s *Store) PurgeLoginTokens(ctx context.Context, expiredBefore, createdBefore time.Time) (int, error) {
	var n int
	err := s.pool.QueryRow(ctx, `
		with d as (
		  delete from public.login_tokens
		  where expires_at < $1
		     or created_at < $2
		  returning 1
		)
		select count(*) from d
	`, expiredBefore, createdBefore).Scan(&n)
	if err != nil {
		return 0, mapPgErr(err)
	}
	return n, nil
}
