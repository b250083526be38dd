package token

import (
	"context"
	"errors"
	"fmt"
	"time"

	"securefiles/server/internal/logging"
	"securefiles/server/internal/model"
	"securefiles/server/internal/obs"
	"securefiles/server/internal/store"
)

// LoginStore is the persistence the login engine needs.
type LoginStore interface {
	store.UserStore
	store.LoginTokenStore
}

type LoginEngine struct {
	store LoginStore
	log   logging.Logger
	now   func() time.Time
	ttl   time.Duration
}

type Option func(*LoginEngine)

// WithClock overrides time.Now.
func WithClock(now func() time.Time) Option {
	return func(e *LoginEngine) { e.now = now }
}

// WithTTL sets the lifetime of new tokens. Non-positive values are ignored.
func WithTTL(ttl time.Duration) Option {
	return func(e *LoginEngine) {
		if ttl > 0 {
			e.ttl = ttl
		}
	}
}

func NewLoginEngine(s LoginStore, log logging.Logger, opts ...Option) *LoginEngine {
	e := &LoginEngine{
		store: s,
		log:   log.With("component", "login_tokens"),
		now:   time.Now,
		ttl:   DefaultTTL,
	}
	for _, opt := range opts {
		opt(e)
	}
	return e
}

// Now is the engine's clock, exposed so callers stamp times consistently.
func (e *LoginEngine) Now() time.Time { return e.now().UTC() }

func (e *LoginEngine) TTL() time.Duration { return e.ttl }

// CreateToken issues a new token for u, invalidating every unused token the
// user still holds. u must be active and have a role.
func (e *LoginEngine) CreateToken(ctx context.Context, u model.User, rc model.RequestContext) (model.LoginToken, error) {
	if !u.CanLogin() {
		return model.LoginToken{}, ErrIneligible
	}

	for attempt := 0; ; attempt++ {
		id, err := NewIdentifier()
		if err != nil {
			return model.LoginToken{}, err
		}

		now := e.Now()
		t := model.LoginToken{
			Token:     id,
			UserID:    u.ID,
			CreatedAt: now,
			ExpiresAt: now.Add(e.ttl),
			LoginIP:   rc.IP,
			UserAgent: rc.UserAgent,
		}

		invalidated, err := e.store.ReissueLoginToken(ctx, t)
		if errors.Is(err, store.ErrConflict) && attempt < 2 {
			continue
		}
		if errors.Is(err, store.ErrNotFound) {
			return model.LoginToken{}, ErrIneligible
		}
		if err != nil {
			return model.LoginToken{}, fmt.Errorf("reissue login token: %w", err)
		}

		obs.TokenIssued()
		e.log.Info(ctx, "login token issued",
			"user_id", u.ID, "invalidated", invalidated, "expires_at", t.ExpiresAt, "ip", rc.IP)
		return t, nil
	}
}

// ValidateAndConsume marks the token used and returns its user. Exactly one
// of any number of concurrent callers succeeds. Expiry is reported before
// reuse.
func (e *LoginEngine) ValidateAndConsume(ctx context.Context, identifier string) (model.User, error) {
	if identifier == "" {
		return e.reject(ctx, ErrNotFound, "", "empty identifier")
	}

	t, err := e.store.ConsumeLoginToken(ctx, identifier, e.Now())
	switch {
	case errors.Is(err, store.ErrNotFound):
		return e.reject(ctx, ErrNotFound, "", "unknown token")
	case errors.Is(err, store.ErrTokenExpired):
		return e.reject(ctx, ErrExpired, "", "token expired")
	case errors.Is(err, store.ErrTokenUsed):
		return e.reject(ctx, ErrAlreadyUsed, "", "token already used")
	case err != nil:
		return model.User{}, fmt.Errorf("consume login token: %w", err)
	}

	u, err := e.store.GetUserByID(ctx, t.UserID)
	if errors.Is(err, store.ErrNotFound) {
		return e.reject(ctx, ErrNotFound, t.UserID, "user deleted")
	}
	if err != nil {
		return model.User{}, fmt.Errorf("load token user: %w", err)
	}
	if !u.Active {
		return e.reject(ctx, ErrNotFound, u.ID, "user inactive")
	}

	obs.TokenValidation("ok")
	e.log.Info(ctx, "login token consumed", "user_id", u.ID, "role", string(u.Role))
	return *u, nil
}

func (e *LoginEngine) reject(ctx context.Context, err error, userID, reason string) (model.User, error) {
	outcome := "not_found"
	switch err {
	case ErrExpired:
		outcome = "expired"
	case ErrAlreadyUsed:
		outcome = "already_used"
	}
	obs.TokenValidation(outcome)
	e.log.Warn(ctx, "login token rejected", "reason", reason, "user_id", userID)
	return model.User{}, err
}

// Sweep deletes tokens that expired before now or were created more than
// retention ago, used or not. Non-positive retention means DefaultRetention.
func (e *LoginEngine) Sweep(ctx context.Context, retention time.Duration) (int, error) {
	if retention <= 0 {
		retention = DefaultRetention
	}
	now := e.Now()

	n, err := e.store.PurgeLoginTokens(ctx, now, now.Add(-retention))
	if err != nil {
		return 0, fmt.Errorf("purge login tokens: %w", err)
	}

	obs.TokensSwept(n)
	e.log.Info(ctx, "login tokens swept", "deleted", n, "retention", retention.String())
	return n, nil
}
