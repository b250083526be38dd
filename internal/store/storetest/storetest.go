// Package storetest holds the behaviour every store.Store backend must share.
// Backend packages call Run from their own tests with a constructor that
// returns an empty store.
package storetest

import (
	"context"
	"fmt"
	"sync"
	"testing"
	"time"

	"securefiles/server/internal/model"
	"securefiles/server/internal/store"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// Factory returns an empty store. Cleanup is registered on t.
type Factory func(t *testing.T) store.Store

func Run(t *testing.T, newStore Factory) {
	t.Run("Users", func(t *testing.T) { testUsers(t, newStore(t)) })
	t.Run("ReissueLoginToken", func(t *testing.T) { testReissue(t, newStore(t)) })
	t.Run("ReissueConcurrent", func(t *testing.T) { testReissueConcurrent(t, newStore(t)) })
	t.Run("ConsumeLoginToken", func(t *testing.T) { testConsume(t, newStore(t)) })
	t.Run("ConsumeExpiryBoundary", func(t *testing.T) { testConsumeBoundary(t, newStore(t)) })
	t.Run("ConsumeConcurrent", func(t *testing.T) { testConsumeConcurrent(t, newStore(t)) })
	t.Run("PurgeLoginTokens", func(t *testing.T) { testPurge(t, newStore(t)) })
	t.Run("PurgeConcurrent", func(t *testing.T) { testPurgeConcurrent(t, newStore(t)) })
	t.Run("Files", func(t *testing.T) { testFiles(t, newStore(t)) })
}

func baseTime() time.Time {
	return time.Now().UTC().Truncate(time.Second)
}

func mustUser(t *testing.T, s store.Store, email string, role model.Role) model.User {
	t.Helper()
	u, err := s.CreateUser(context.Background(), model.User{
		Email:    email,
		Username: email,
		Active:   true,
		Role:     role,
	})
	require.NoError(t, err)
	return u
}

func newToken(userID string, created time.Time) model.LoginToken {
	return model.LoginToken{
		Token:     uuid.NewString(),
		UserID:    userID,
		CreatedAt: created,
		ExpiresAt: created.Add(time.Hour),
		LoginIP:   "127.0.0.1",
		UserAgent: "storetest",
	}
}

func testUsers(t *testing.T, s store.Store) {
	ctx := context.Background()

	u := mustUser(t, s, "Alice@Example.com", model.RoleClient)
	assert.NotEmpty(t, u.ID)
	assert.Equal(t, "alice@example.com", u.Email)
	assert.Equal(t, model.RoleClient, u.Role)
	assert.True(t, u.Active)

	_, err := s.CreateUser(ctx, model.User{Email: "ALICE@example.com", Role: model.RoleOperations})
	assert.ErrorIs(t, err, store.ErrConflict)

	got, err := s.GetUserByEmail(ctx, "alice@EXAMPLE.com")
	require.NoError(t, err)
	assert.Equal(t, u.ID, got.ID)

	got, err = s.GetUserByID(ctx, u.ID)
	require.NoError(t, err)
	assert.Equal(t, u.Email, got.Email)

	_, err = s.GetUserByEmail(ctx, "nobody@example.com")
	assert.ErrorIs(t, err, store.ErrNotFound)

	got.Active = false
	got.EmailVerified = true
	got.Role = model.RoleOperations
	updated, err := s.UpdateUser(ctx, *got)
	require.NoError(t, err)
	assert.False(t, updated.Active)
	assert.True(t, updated.EmailVerified)
	assert.Equal(t, model.RoleOperations, updated.Role)

	got, err = s.GetUserByID(ctx, u.ID)
	require.NoError(t, err)
	assert.False(t, got.Active)
	assert.Equal(t, model.RoleOperations, got.Role)
}

func testReissue(t *testing.T, s store.Store) {
	ctx := context.Background()
	u := mustUser(t, s, "a@x.com", model.RoleClient)
	now := baseTime()

	t1 := newToken(u.ID, now)
	n, err := s.ReissueLoginToken(ctx, t1)
	require.NoError(t, err)
	assert.Equal(t, 0, n)

	t2 := newToken(u.ID, now.Add(time.Second))
	n, err = s.ReissueLoginToken(ctx, t2)
	require.NoError(t, err)
	assert.Equal(t, 1, n)

	got1, err := s.GetLoginToken(ctx, t1.Token)
	require.NoError(t, err)
	assert.True(t, got1.Used)

	got2, err := s.GetLoginToken(ctx, t2.Token)
	require.NoError(t, err)
	assert.False(t, got2.Used)
	assert.Equal(t, "127.0.0.1", got2.LoginIP)
	assert.Equal(t, "storetest", got2.UserAgent)
	assert.True(t, t2.ExpiresAt.Equal(got2.ExpiresAt))

	// other users are untouched
	other := mustUser(t, s, "b@x.com", model.RoleOperations)
	t3 := newToken(other.ID, now)
	_, err = s.ReissueLoginToken(ctx, t3)
	require.NoError(t, err)
	got2, err = s.GetLoginToken(ctx, t2.Token)
	require.NoError(t, err)
	assert.False(t, got2.Used)
}

func testReissueConcurrent(t *testing.T, s store.Store) {
	ctx := context.Background()
	u := mustUser(t, s, "race@x.com", model.RoleClient)
	now := baseTime()

	const n = 8
	tokens := make([]model.LoginToken, n)
	for i := range tokens {
		tokens[i] = newToken(u.ID, now)
	}

	var wg sync.WaitGroup
	errs := make(chan error, n)
	for i := range tokens {
		wg.Add(1)
		go func(tok model.LoginToken) {
			defer wg.Done()
			if _, err := s.ReissueLoginToken(ctx, tok); err != nil {
				errs <- err
			}
		}(tokens[i])
	}
	wg.Wait()
	close(errs)
	for err := range errs {
		require.NoError(t, err)
	}

	unused := 0
	for _, tok := range tokens {
		got, err := s.GetLoginToken(ctx, tok.Token)
		require.NoError(t, err)
		if !got.Used {
			unused++
		}
	}
	assert.Equal(t, 1, unused, "exactly one outstanding token per user")
}

func testConsume(t *testing.T, s store.Store) {
	ctx := context.Background()
	u := mustUser(t, s, "c@x.com", model.RoleClient)
	now := baseTime()

	tok := newToken(u.ID, now)
	_, err := s.ReissueLoginToken(ctx, tok)
	require.NoError(t, err)

	got, err := s.ConsumeLoginToken(ctx, tok.Token, now.Add(time.Minute))
	require.NoError(t, err)
	assert.True(t, got.Used)
	assert.Equal(t, u.ID, got.UserID)

	_, err = s.ConsumeLoginToken(ctx, tok.Token, now.Add(time.Minute))
	assert.ErrorIs(t, err, store.ErrTokenUsed)

	_, err = s.ConsumeLoginToken(ctx, "does-not-exist", now)
	assert.ErrorIs(t, err, store.ErrNotFound)

	// used and expired reports expired
	_, err = s.ConsumeLoginToken(ctx, tok.Token, now.Add(2*time.Hour))
	assert.ErrorIs(t, err, store.ErrTokenExpired)
}

func testConsumeBoundary(t *testing.T, s store.Store) {
	ctx := context.Background()
	u := mustUser(t, s, "d@x.com", model.RoleOperations)
	now := baseTime()

	tok := newToken(u.ID, now)
	_, err := s.ReissueLoginToken(ctx, tok)
	require.NoError(t, err)

	_, err = s.ConsumeLoginToken(ctx, tok.Token, tok.ExpiresAt)
	assert.ErrorIs(t, err, store.ErrTokenExpired)

	got, err := s.GetLoginToken(ctx, tok.Token)
	require.NoError(t, err)
	assert.False(t, got.Used, "a rejected consume must not mark the token")

	_, err = s.ConsumeLoginToken(ctx, tok.Token, tok.ExpiresAt.Add(-time.Second))
	assert.NoError(t, err)
}

func testConsumeConcurrent(t *testing.T, s store.Store) {
	ctx := context.Background()
	u := mustUser(t, s, "e@x.com", model.RoleClient)
	now := baseTime()

	tok := newToken(u.ID, now)
	_, err := s.ReissueLoginToken(ctx, tok)
	require.NoError(t, err)

	const n = 16
	var (
		wg      sync.WaitGroup
		mu      sync.Mutex
		wins    int
		used    int
		unknown []error
	)
	start := make(chan struct{})
	for i := 0; i < n; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			<-start
			_, err := s.ConsumeLoginToken(ctx, tok.Token, now.Add(time.Minute))
			mu.Lock()
			defer mu.Unlock()
			switch {
			case err == nil:
				wins++
			case err == store.ErrTokenUsed:
				used++
			default:
				unknown = append(unknown, err)
			}
		}()
	}
	close(start)
	wg.Wait()

	assert.Empty(t, unknown)
	assert.Equal(t, 1, wins)
	assert.Equal(t, n-1, used)
}

func testPurge(t *testing.T, s store.Store) {
	ctx := context.Background()
	now := baseTime()
	retention := 7 * 24 * time.Hour

	// one user per token so reissue does not mark them used
	mk := func(i int, created, expires time.Time) model.LoginToken {
		u := mustUser(t, s, fmt.Sprintf("purge%d@x.com", i), model.RoleClient)
		tok := newToken(u.ID, created)
		tok.ExpiresAt = expires
		_, err := s.ReissueLoginToken(ctx, tok)
		require.NoError(t, err)
		return tok
	}

	expired := mk(1, now.Add(-2*time.Hour), now.Add(-time.Hour))
	ancient := mk(2, now.Add(-8*24*time.Hour), now.Add(time.Hour))
	valid := mk(3, now.Add(-time.Minute), now.Add(59*time.Minute))
	edge := mk(4, now.Add(-time.Hour), now)

	n, err := s.PurgeLoginTokens(ctx, now, now.Add(-retention))
	require.NoError(t, err)
	assert.Equal(t, 2, n)

	_, err = s.GetLoginToken(ctx, expired.Token)
	assert.ErrorIs(t, err, store.ErrNotFound)
	_, err = s.GetLoginToken(ctx, ancient.Token)
	assert.ErrorIs(t, err, store.ErrNotFound)
	_, err = s.GetLoginToken(ctx, valid.Token)
	assert.NoError(t, err)
	// expires_at == now is not strictly before now
	_, err = s.GetLoginToken(ctx, edge.Token)
	assert.NoError(t, err)

	n, err = s.PurgeLoginTokens(ctx, now, now.Add(-retention))
	require.NoError(t, err)
	assert.Equal(t, 0, n)
}

// testPurgeConcurrent runs purges while live tokens are consumed and
// reissued. Purges must only ever remove stale rows.
func testPurgeConcurrent(t *testing.T, s store.Store) {
	ctx := context.Background()
	now := baseTime()
	retention := 7 * 24 * time.Hour

	const n = 6
	var live, reissue, stale []model.LoginToken
	for i := 0; i < n; i++ {
		u := mustUser(t, s, fmt.Sprintf("live%d@x.com", i), model.RoleClient)
		tok := newToken(u.ID, now)
		_, err := s.ReissueLoginToken(ctx, tok)
		require.NoError(t, err)
		live = append(live, tok)

		r := mustUser(t, s, fmt.Sprintf("again%d@x.com", i), model.RoleOperations)
		first := newToken(r.ID, now)
		_, err = s.ReissueLoginToken(ctx, first)
		require.NoError(t, err)
		reissue = append(reissue, newToken(r.ID, now.Add(time.Second)))

		o := mustUser(t, s, fmt.Sprintf("stale%d@x.com", i), model.RoleClient)
		old := newToken(o.ID, now.Add(-3*time.Hour))
		_, err = s.ReissueLoginToken(ctx, old)
		require.NoError(t, err)
		stale = append(stale, old)
	}

	var wg sync.WaitGroup
	errs := make(chan error, 4*n)
	start := make(chan struct{})
	for i := 0; i < n; i++ {
		wg.Add(3)
		go func(tok model.LoginToken) {
			defer wg.Done()
			<-start
			if _, err := s.ConsumeLoginToken(ctx, tok.Token, now.Add(time.Minute)); err != nil {
				errs <- fmt.Errorf("consume: %w", err)
			}
		}(live[i])
		go func(tok model.LoginToken) {
			defer wg.Done()
			<-start
			if _, err := s.ReissueLoginToken(ctx, tok); err != nil {
				errs <- fmt.Errorf("reissue: %w", err)
			}
		}(reissue[i])
		go func() {
			defer wg.Done()
			<-start
			if _, err := s.PurgeLoginTokens(ctx, now, now.Add(-retention)); err != nil {
				errs <- fmt.Errorf("purge: %w", err)
			}
		}()
	}
	close(start)
	wg.Wait()
	close(errs)
	for err := range errs {
		require.NoError(t, err)
	}

	for _, tok := range live {
		got, err := s.GetLoginToken(ctx, tok.Token)
		require.NoError(t, err)
		assert.True(t, got.Used)
	}
	for _, tok := range reissue {
		got, err := s.GetLoginToken(ctx, tok.Token)
		require.NoError(t, err)
		assert.False(t, got.Used)
	}
	for _, tok := range stale {
		_, err := s.GetLoginToken(ctx, tok.Token)
		assert.ErrorIs(t, err, store.ErrNotFound)
	}
}

func testFiles(t *testing.T, s store.Store) {
	ctx := context.Background()
	ops := mustUser(t, s, "ops@x.com", model.RoleOperations)

	f, err := s.CreateFile(ctx, model.UploadedFile{
		UploaderID:    ops.ID,
		Name:          "report.docx",
		ContentType:   "application/vnd.openxmlformats-officedocument.wordprocessingml.document",
		Size:          42,
		BlobKey:       "uploads/report.docx",
		UploadedAt:    baseTime(),
		DownloadToken: "dl-token-1",
	})
	require.NoError(t, err)
	assert.NotEmpty(t, f.ID)

	got, err := s.GetFile(ctx, f.ID)
	require.NoError(t, err)
	assert.Equal(t, "report.docx", got.Name)
	assert.Equal(t, int64(42), got.Size)

	for i := 0; i < 3; i++ {
		byTok, err := s.GetFileByDownloadToken(ctx, "dl-token-1")
		require.NoError(t, err)
		assert.Equal(t, f.ID, byTok.ID)
		assert.Equal(t, "uploads/report.docx", byTok.BlobKey)
	}

	_, err = s.GetFileByDownloadToken(ctx, "nope")
	assert.ErrorIs(t, err, store.ErrNotFound)

	_, err = s.CreateFile(ctx, model.UploadedFile{
		UploaderID:    ops.ID,
		Name:          "other.xlsx",
		BlobKey:       "uploads/other.xlsx",
		DownloadToken: "dl-token-1",
	})
	assert.ErrorIs(t, err, store.ErrConflict)

	list, err := s.ListFiles(ctx)
	require.NoError(t, err)
	assert.Len(t, list, 1)
}
