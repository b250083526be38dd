package sqlite

import (
	"context"
	"database/sql"
	"errors"
	"time"

	"securefiles/server/internal/model"
	"securefiles/server/internal/store"
)

const loginTokenColumns = `token, user_id, created_at, expires_at, used, login_ip, user_agent`

func getLoginToken(ctx context.Context, q queryer, token string) (model.LoginToken, error) {
	var (
		lt               model.LoginToken
		created, expires int64
	)
	err := q.QueryRowContext(ctx, `SELECT `+loginTokenColumns+` FROM login_tokens WHERE token = ?`, token).
		Scan(&lt.Token, &lt.UserID, &created, &expires, &lt.Used, &lt.LoginIP, &lt.UserAgent)
	if err != nil {
		return model.LoginToken{}, mapErr(err)
	}
	lt.CreatedAt = fromNanos(created)
	lt.ExpiresAt = fromNanos(expires)
	return lt, nil
}

func (s *Store) ReissueLoginToken(ctx context.Context, t model.LoginToken) (int, error) {
	if t.Token == "" {
		return 0, errors.New("token_required")
	}

	var invalidated int64
	err := s.withTx(ctx, func(tx *sql.Tx) error {
		var one int
		if err := tx.QueryRowContext(ctx, `SELECT 1 FROM users WHERE id = ?`, t.UserID).Scan(&one); err != nil {
			return mapErr(err)
		}

		res, err := tx.ExecContext(ctx, `UPDATE login_tokens SET used = 1 WHERE user_id = ? AND used = 0`, t.UserID)
		if err != nil {
			return mapErr(err)
		}
		invalidated, _ = res.RowsAffected()

		_, err = tx.ExecContext(ctx,
			`INSERT INTO login_tokens (`+loginTokenColumns+`) VALUES (?, ?, ?, ?, 0, ?, ?)`,
			t.Token, t.UserID, toNanos(t.CreatedAt), toNanos(t.ExpiresAt), t.LoginIP, t.UserAgent)
		return mapErr(err)
	})
	if err != nil {
		return 0, err
	}
	return int(invalidated), nil
}

func (s *Store) ConsumeLoginToken(ctx context.Context, token string, now time.Time) (*model.LoginToken, error) {
	var out model.LoginToken
	err := s.withTx(ctx, func(tx *sql.Tx) error {
		res, err := tx.ExecContext(ctx,
			`UPDATE login_tokens SET used = 1 WHERE token = ? AND used = 0 AND expires_at > ?`,
			token, toNanos(now))
		if err != nil {
			return mapErr(err)
		}
		n, err := res.RowsAffected()
		if err != nil {
			return err
		}

		out, err = getLoginToken(ctx, tx, token)
		if err != nil {
			return err
		}
		if n == 1 {
			return nil
		}
		if err := store.ClassifyToken(out, now); err != nil {
			return err
		}
		return store.ErrTokenUsed
	})
	if err != nil {
		return nil, err
	}
	return &out, nil
}

func (s *Store) GetLoginToken(ctx context.Context, token string) (*model.LoginToken, error) {
	lt, err := getLoginToken(ctx, s.db, token)
	if err != nil {
		return nil, err
	}
	return &lt, nil
}

func (s *Store) PurgeLoginTokens(ctx context.Context, expiredBefore, createdBefore time.Time) (int, error) {
	res, err := s.db.ExecContext(ctx,
		`DELETE FROM login_tokens WHERE expires_at < ? OR created_at < ?`,
		toNanos(expiredBefore), toNanos(createdBefore))
	if err != nil {
		return 0, mapErr(err)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return 0, err
	}
	return int(n), nil
}
