package token

import (
	"context"
	"fmt"
	"regexp"
	"sync"
	"testing"
	"time"

	"securefiles/server/internal/logging"
	"securefiles/server/internal/model"
	"securefiles/server/internal/store/memory"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type fakeClock struct {
	mu  sync.Mutex
	now time.Time
}

func (c *fakeClock) Now() time.Time {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.now
}

func (c *fakeClock) Set(t time.Time) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.now = t
}

var t0 = time.Date(2025, 3, 1, 9, 0, 0, 0, time.UTC)

func newEngine(t *testing.T) (*LoginEngine, *memory.Store, *fakeClock) {
	t.Helper()
	s := memory.NewStore()
	clock := &fakeClock{now: t0}
	return NewLoginEngine(s, logging.Discard(), WithClock(clock.Now)), s, clock
}

func createUser(t *testing.T, s *memory.Store, email string, role model.Role, active bool) model.User {
	t.Helper()
	u, err := s.CreateUser(context.Background(), model.User{Email: email, Active: active, Role: role})
	require.NoError(t, err)
	return u
}

var rc = model.RequestContext{IP: "203.0.113.7", UserAgent: "Mozilla/5.0"}

func TestCreateToken_Shape(t *testing.T) {
	e, s, _ := newEngine(t)
	u := createUser(t, s, "a@x.com", model.RoleClient, true)

	tok, err := e.CreateToken(context.Background(), u, rc)
	require.NoError(t, err)

	assert.Regexp(t, regexp.MustCompile(`^[A-Za-z0-9_-]{43}$`), tok.Token)
	assert.Equal(t, u.ID, tok.UserID)
	assert.Equal(t, t0, tok.CreatedAt)
	assert.Equal(t, t0.Add(time.Hour), tok.ExpiresAt)
	assert.False(t, tok.Used)
	assert.Equal(t, "203.0.113.7", tok.LoginIP)
	assert.Equal(t, "Mozilla/5.0", tok.UserAgent)
}

func TestLoginScenario(t *testing.T) {
	e, s, clock := newEngine(t)
	ctx := context.Background()
	u := createUser(t, s, "a@x.com", model.RoleClient, true)

	tok, err := e.CreateToken(ctx, u, rc)
	require.NoError(t, err)

	clock.Set(t0.Add(59 * time.Minute))
	got, err := e.ValidateAndConsume(ctx, tok.Token)
	require.NoError(t, err)
	assert.Equal(t, u.ID, got.ID)
	assert.Equal(t, model.RoleClient, got.Role)

	_, err = e.ValidateAndConsume(ctx, tok.Token)
	assert.ErrorIs(t, err, ErrAlreadyUsed)
}

func TestCreateToken_InvalidatesPrevious(t *testing.T) {
	e, s, clock := newEngine(t)
	ctx := context.Background()
	u := createUser(t, s, "a@x.com", model.RoleOperations, true)

	t1, err := e.CreateToken(ctx, u, rc)
	require.NoError(t, err)
	clock.Set(t0.Add(10 * time.Minute))
	t2, err := e.CreateToken(ctx, u, rc)
	require.NoError(t, err)
	assert.NotEqual(t, t1.Token, t2.Token)

	_, err = e.ValidateAndConsume(ctx, t1.Token)
	assert.ErrorIs(t, err, ErrAlreadyUsed)

	got, err := e.ValidateAndConsume(ctx, t2.Token)
	require.NoError(t, err)
	assert.Equal(t, u.ID, got.ID)
}

func TestValidateAndConsume_ExpiryBoundary(t *testing.T) {
	e, s, clock := newEngine(t)
	ctx := context.Background()
	u := createUser(t, s, "a@x.com", model.RoleClient, true)

	tok, err := e.CreateToken(ctx, u, rc)
	require.NoError(t, err)

	clock.Set(tok.ExpiresAt)
	_, err = e.ValidateAndConsume(ctx, tok.Token)
	assert.ErrorIs(t, err, ErrExpired)

	clock.Set(tok.ExpiresAt.Add(-time.Nanosecond))
	_, err = e.ValidateAndConsume(ctx, tok.Token)
	assert.NoError(t, err)

	// used and expired reports expired
	clock.Set(tok.ExpiresAt.Add(time.Minute))
	_, err = e.ValidateAndConsume(ctx, tok.Token)
	assert.ErrorIs(t, err, ErrExpired)
}

func TestValidateAndConsume_Unknown(t *testing.T) {
	e, _, _ := newEngine(t)

	_, err := e.ValidateAndConsume(context.Background(), "nope")
	assert.ErrorIs(t, err, ErrNotFound)

	_, err = e.ValidateAndConsume(context.Background(), "")
	assert.ErrorIs(t, err, ErrNotFound)
}

func TestValidateAndConsume_DeactivatedAfterIssue(t *testing.T) {
	e, s, _ := newEngine(t)
	ctx := context.Background()
	u := createUser(t, s, "a@x.com", model.RoleClient, true)

	tok, err := e.CreateToken(ctx, u, rc)
	require.NoError(t, err)

	u.Active = false
	_, err = s.UpdateUser(ctx, u)
	require.NoError(t, err)

	_, err = e.ValidateAndConsume(ctx, tok.Token)
	assert.ErrorIs(t, err, ErrNotFound)
}

func TestCreateToken_Ineligible(t *testing.T) {
	e, s, _ := newEngine(t)
	ctx := context.Background()

	cases := []struct {
		name string
		user model.User
	}{
		{"inactive", createUser(t, s, "off@x.com", model.RoleClient, false)},
		{"unassigned", createUser(t, s, "none@x.com", model.RoleUnassigned, true)},
		{"unknown user", model.User{ID: "ghost", Active: true, Role: model.RoleClient}},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			_, err := e.CreateToken(ctx, tc.user, rc)
			assert.ErrorIs(t, err, ErrIneligible)
		})
	}
}

func TestValidateAndConsume_Concurrent(t *testing.T) {
	e, s, _ := newEngine(t)
	ctx := context.Background()
	u := createUser(t, s, "a@x.com", model.RoleClient, true)

	tok, err := e.CreateToken(ctx, u, rc)
	require.NoError(t, err)

	const n = 20
	var (
		wg   sync.WaitGroup
		mu   sync.Mutex
		wins int
		used int
	)
	start := make(chan struct{})
	for i := 0; i < n; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			<-start
			_, err := e.ValidateAndConsume(ctx, tok.Token)
			mu.Lock()
			defer mu.Unlock()
			if err == nil {
				wins++
			} else if err == ErrAlreadyUsed {
				used++
			}
		}()
	}
	close(start)
	wg.Wait()

	assert.Equal(t, 1, wins)
	assert.Equal(t, n-1, used)
}

func TestSweep(t *testing.T) {
	e, s, clock := newEngine(t)
	ctx := context.Background()

	old := createUser(t, s, "old@x.com", model.RoleClient, true)
	fresh := createUser(t, s, "fresh@x.com", model.RoleClient, true)

	expired, err := e.CreateToken(ctx, old, rc)
	require.NoError(t, err)

	clock.Set(t0.Add(90 * time.Minute))
	live, err := e.CreateToken(ctx, fresh, rc)
	require.NoError(t, err)

	n, err := e.Sweep(ctx, 0)
	require.NoError(t, err)
	assert.Equal(t, 1, n)

	_, err = s.GetLoginToken(ctx, expired.Token)
	assert.Error(t, err)
	_, err = s.GetLoginToken(ctx, live.Token)
	assert.NoError(t, err)

	n, err = e.Sweep(ctx, 0)
	require.NoError(t, err)
	assert.Zero(t, n)
}

func TestSweep_ConcurrentWithLogins(t *testing.T) {
	e, s, _ := newEngine(t)
	ctx := context.Background()

	const n = 8
	users := make([]model.User, n)
	tokens := make([]model.LoginToken, n)
	for i := range users {
		users[i] = createUser(t, s, fmt.Sprintf("u%d@x.com", i), model.RoleClient, true)
		tok, err := e.CreateToken(ctx, users[i], rc)
		require.NoError(t, err)
		tokens[i] = tok
	}

	var wg sync.WaitGroup
	errs := make(chan error, 3*n)
	start := make(chan struct{})
	for i := 0; i < n; i++ {
		wg.Add(3)
		go func(id string) {
			defer wg.Done()
			<-start
			if _, err := e.ValidateAndConsume(ctx, id); err != nil {
				errs <- err
			}
		}(tokens[i].Token)
		go func(u model.User) {
			defer wg.Done()
			<-start
			if _, err := e.CreateToken(ctx, u, rc); err != nil {
				errs <- err
			}
		}(users[i])
		go func() {
			defer wg.Done()
			<-start
			if _, err := e.Sweep(ctx, 0); err != nil {
				errs <- err
			}
		}()
	}
	close(start)
	wg.Wait()
	close(errs)

	// a reissue may beat the consume and retire its token first
	for err := range errs {
		assert.ErrorIs(t, err, ErrAlreadyUsed)
	}

	// nothing is stale yet, so every token is still on record
	for _, tok := range tokens {
		_, err := s.GetLoginToken(ctx, tok.Token)
		assert.NoError(t, err)
	}
}

func TestWithTTL(t *testing.T) {
	s := memory.NewStore()
	e := NewLoginEngine(s, logging.Discard(), WithClock(func() time.Time { return t0 }), WithTTL(15*time.Minute), WithTTL(-1))
	u := createUser(t, s, "a@x.com", model.RoleClient, true)

	tok, err := e.CreateToken(context.Background(), u, rc)
	require.NoError(t, err)
	assert.Equal(t, t0.Add(15*time.Minute), tok.ExpiresAt)
	assert.Equal(t, 15*time.Minute, e.TTL())
}

func TestNewIdentifier_Unique(t *testing.T) {
	seen := make(map[string]bool)
	for i := 0; i < 1000; i++ {
		id, err := NewIdentifier()
		require.NoError(t, err)
		require.False(t, seen[id])
		seen[id] = true
	}
}
